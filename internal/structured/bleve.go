package structured

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/single"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"

	herrors "github.com/Aman-CERP/hotelrag/internal/errors"
	"github.com/Aman-CERP/hotelrag/internal/hydrate"
)

// Catalog document kinds.
const (
	DocHotel  = "hotel"
	DocReview = "review"
	DocVisa   = "visa"
)

const (
	docTypeField = "doc_type"
	foldAnalyzer = "fold"
	// scanLimit caps the review documents aggregated in memory.
	scanLimit = 10000
)

// keyFields match whole values, case-insensitively.
var keyFields = []string{
	docTypeField, "hotel_id", "hotel_name", "city", "country",
	"review_id", "review_date", "traveller_type", "traveller_country", "user_id",
	"from_country", "to_country", "visa_type",
}

// BleveExecutor answers the template library from a local bleve catalog of
// hotel, review and visa documents. It needs no graph database.
type BleveExecutor struct {
	mu     sync.RWMutex
	index  bleve.Index
	closed bool
	logger *slog.Logger
}

// OpenBleve opens or creates the catalog at path. An empty path gives an
// in-memory catalog.
func OpenBleve(path string, logger *slog.Logger) (*BleveExecutor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "catalog")

	m, err := catalogMapping()
	if err != nil {
		return nil, fmt.Errorf("create catalog mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(m)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create catalog directory: %w", err)
		}
		if verr := validateIntegrity(path); verr != nil {
			logger.Warn("catalog_corrupted", slog.String("path", path), slog.String("error", verr.Error()))
			if rerr := os.RemoveAll(path); rerr != nil {
				return nil, herrors.New(herrors.ErrCodeCorruptIndex, "catalog corrupted and cannot be cleared", rerr).
					WithDetail("path", path)
			}
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, m)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	return &BleveExecutor{index: idx, logger: logger}, nil
}

func catalogMapping() (*mapping.IndexMappingImpl, error) {
	m := bleve.NewIndexMapping()
	err := m.AddCustomAnalyzer(foldAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     single.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, err
	}

	doc := bleve.NewDocumentMapping()
	for _, f := range keyFields {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = foldAnalyzer
		doc.AddFieldMappingsAt(f, fm)
	}
	m.DefaultMapping = doc
	return m, nil
}

// validateIntegrity reports a catalog directory with a missing or broken
// index_meta.json.
func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(path, "index_meta.json"))
	if err != nil {
		return fmt.Errorf("read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

// docID returns the catalog id for a normalized record.
func docID(kind string, p hydrate.Payload) (string, error) {
	var id string
	switch kind {
	case DocHotel:
		id = p.String("hotel_id")
	case DocReview:
		id = p.String("review_id")
	case DocVisa:
		if from, to := p.String("from_country"), p.String("to_country"); from != "" && to != "" {
			id = hydrate.VisaID(from, to)
		}
	default:
		return "", fmt.Errorf("unknown document kind %q", kind)
	}
	if id == "" {
		return "", fmt.Errorf("%s record has no id", kind)
	}
	return kind + ":" + id, nil
}

// Index adds records of one kind. Reviews inherit hotel_name, city and
// country from hotels already in the catalog.
func (b *BleveExecutor) Index(ctx context.Context, kind string, records []hydrate.Payload) error {
	if len(records) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("catalog is closed")
	}

	batch := b.index.NewBatch()
	for _, r := range records {
		doc := Normalize(kind, r)
		if kind == DocReview {
			b.enrichReview(ctx, doc)
		}
		id, err := docID(kind, doc)
		if err != nil {
			return err
		}
		doc[docTypeField] = kind
		if err := batch.Index(id, map[string]any(doc)); err != nil {
			return fmt.Errorf("index %s: %w", id, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("execute batch: %w", err)
	}
	return nil
}

func (b *BleveExecutor) enrichReview(ctx context.Context, doc hydrate.Payload) {
	hotelID := doc.String("hotel_id")
	if hotelID == "" {
		return
	}
	hits, err := b.search(ctx, bleve.NewDocIDQuery([]string{DocHotel + ":" + hotelID}), 1)
	if err != nil || len(hits) == 0 {
		return
	}
	for _, f := range []string{"hotel_name", "city", "country"} {
		if _, ok := doc[f]; !ok {
			if v, ok := hits[0].Fields[f]; ok {
				doc[f] = v
			}
		}
	}
}

// Count returns the number of catalog documents.
func (b *BleveExecutor) Count() (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, fmt.Errorf("catalog is closed")
	}
	return b.index.DocCount()
}

// Close closes the catalog.
func (b *BleveExecutor) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}

// Execute implements Executor.
func (b *BleveExecutor) Execute(ctx context.Context, q Query) ([]Row, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, herrors.New(herrors.ErrCodeExecutorFailed, "catalog is closed", nil)
	}

	rows, err := b.execute(ctx, q)
	if err != nil {
		return nil, err
	}
	b.logger.DebugContext(ctx, "catalog_query",
		slog.String("query", q.Name),
		slog.Int("rows", len(rows)))
	return rows, nil
}

func (b *BleveExecutor) execute(ctx context.Context, q Query) ([]Row, error) {
	p := params(q.Params)
	limit := p.intOr("limit", defaultLimit)

	switch q.Name {
	case QueryHotelsByCity:
		return b.rows(ctx, and(kindQ(DocHotel), match("city", p.str("city"))), limit, "-avg_score")
	case QueryHotelsByCountry:
		return b.rows(ctx, and(kindQ(DocHotel), match("country", p.str("country"))), limit, "-avg_score")
	case QueryHotelsByRating:
		return b.rows(ctx, and(kindQ(DocHotel), atLeast("avg_score", p.num("min_rating"))), limit, "-avg_score")
	case QueryHotelsByStars:
		return b.rows(ctx, and(kindQ(DocHotel), atLeast("star_rating", p.num("star_rating"))), limit, "-star_rating", "-avg_score")
	case QueryHotelsByQuality:
		d, ok := DimensionByName(p.str("dimension"))
		if !ok {
			return nil, fmt.Errorf("quality dimension %q: %w", p.str("dimension"), ErrUnsupported)
		}
		return b.rows(ctx, and(kindQ(DocHotel), atLeast(d.Alias, p.num("min"))), limit, "-"+d.Alias)
	case QueryBestLocation:
		qs := []query.Query{kindQ(DocHotel), exists("avg_location")}
		if city := p.str("city"); city != "" {
			qs = append(qs, match("city", city))
		}
		return b.rows(ctx, and(qs...), limit, "-avg_location")
	case QueryReviewsByHotelName:
		return b.rows(ctx, and(kindQ(DocReview), match("hotel_name", p.str("hotel_name"))), limit, "-review_date")
	case QueryReviewsByHotelID:
		return b.rows(ctx, and(kindQ(DocReview), match("hotel_id", p.str("hotel_id"))), limit, "-review_date")
	case QueryTopForTraveller:
		return b.topForTraveller(ctx, p.str("traveller_type"), limit)
	case QueryVisaCheck:
		return b.visaCheck(ctx, p.str("from_country"), p.str("to_country"))
	case QueryTravellersNoVisa:
		return b.travellersWithoutVisa(ctx, p.str("from_country"), p.str("to_country"))
	case QueryHotelDetails:
		return b.hotelDetails(ctx, p.str("hotel_name"))
	}
	return nil, fmt.Errorf("%s: %w", q.Name, ErrUnsupported)
}

func (b *BleveExecutor) search(ctx context.Context, q query.Query, size int, sortBy ...string) ([]*search.DocumentMatch, error) {
	req := bleve.NewSearchRequestOptions(q, size, 0, false)
	req.Fields = []string{"*"}
	if len(sortBy) > 0 {
		req.SortBy(append(sortBy, "_id"))
	}
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, herrors.New(herrors.ErrCodeExecutorFailed, "catalog search failed", err)
	}
	return res.Hits, nil
}

func (b *BleveExecutor) rows(ctx context.Context, q query.Query, limit int, sortBy ...string) ([]Row, error) {
	hits, err := b.search(ctx, q, limit, sortBy...)
	if err != nil {
		return nil, err
	}
	out := make([]Row, 0, len(hits))
	for _, h := range hits {
		out = append(out, toRow(h))
	}
	return out, nil
}

func (b *BleveExecutor) topForTraveller(ctx context.Context, travellerType string, limit int) ([]Row, error) {
	hits, err := b.search(ctx, and(kindQ(DocReview), match("traveller_type", travellerType)), scanLimit)
	if err != nil {
		return nil, err
	}

	type agg struct {
		sum   float64
		count int
	}
	byHotel := make(map[string]*agg)
	for _, h := range hits {
		id, _ := h.Fields["hotel_id"].(string)
		score, ok := h.Fields["score_overall"].(float64)
		if id == "" || !ok {
			continue
		}
		a := byHotel[id]
		if a == nil {
			a = &agg{}
			byHotel[id] = a
		}
		a.sum += score
		a.count++
	}

	ids := make([]string, 0, len(byHotel))
	for id := range byHotel {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, c := byHotel[ids[i]], byHotel[ids[j]]
		ai, ci := a.sum/float64(a.count), c.sum/float64(c.count)
		if ai != ci {
			return ai > ci
		}
		if a.count != c.count {
			return a.count > c.count
		}
		return ids[i] < ids[j]
	})
	if len(ids) > limit {
		ids = ids[:limit]
	}

	hotels, err := b.hotelsByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]Row, 0, len(ids))
	for _, id := range ids {
		a := byHotel[id]
		row := Row{"hotel_id": id}
		for k, v := range hotels[id] {
			row[k] = v
		}
		row["avg_rating"] = a.sum / float64(a.count)
		row["review_count"] = a.count
		out = append(out, row)
	}
	return out, nil
}

func (b *BleveExecutor) hotelsByID(ctx context.Context, ids []string) (map[string]Row, error) {
	if len(ids) == 0 {
		return map[string]Row{}, nil
	}
	docIDs := make([]string, len(ids))
	for i, id := range ids {
		docIDs[i] = DocHotel + ":" + id
	}
	hits, err := b.search(ctx, bleve.NewDocIDQuery(docIDs), len(docIDs))
	if err != nil {
		return nil, err
	}
	out := make(map[string]Row, len(hits))
	for _, h := range hits {
		row := toRow(h)
		if id, ok := row["hotel_id"].(string); ok {
			out[id] = row
		}
	}
	return out, nil
}

func (b *BleveExecutor) visa(ctx context.Context, from, to string) (Row, error) {
	hits, err := b.search(ctx, bleve.NewDocIDQuery([]string{DocVisa + ":" + hydrate.VisaID(from, to)}), 1)
	if err != nil || len(hits) == 0 {
		return nil, err
	}
	return toRow(hits[0]), nil
}

// visaCheck reports no requirement when the catalog holds no visa record for
// the pair.
func (b *BleveExecutor) visaCheck(ctx context.Context, from, to string) ([]Row, error) {
	if from == "" || to == "" {
		return nil, nil
	}
	row, err := b.visa(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if row == nil {
		row = Row{"from_country": from, "to_country": to, "visa_required": false, "visa_type": nil}
	}
	return []Row{row}, nil
}

func (b *BleveExecutor) travellersWithoutVisa(ctx context.Context, from, to string) ([]Row, error) {
	if from == "" || to == "" {
		return nil, nil
	}
	v, err := b.visa(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if required, _ := v["visa_required"].(bool); required {
		return nil, nil
	}

	hits, err := b.search(ctx, and(
		kindQ(DocReview),
		match("traveller_country", from),
		match("country", to),
	), scanLimit)
	if err != nil {
		return nil, err
	}
	travellers := make(map[string]bool)
	for _, h := range hits {
		key, _ := h.Fields["user_id"].(string)
		if key == "" {
			key = h.ID
		}
		travellers[key] = true
	}
	if len(travellers) == 0 {
		return nil, nil
	}
	return []Row{{"traveller_count": len(travellers), "from_country": from, "to_country": to}}, nil
}

func (b *BleveExecutor) hotelDetails(ctx context.Context, name string) ([]Row, error) {
	rows, err := b.rows(ctx, and(kindQ(DocHotel), match("hotel_name", name)), 1)
	if err != nil || len(rows) == 0 {
		return rows, err
	}
	id, _ := rows[0]["hotel_id"].(string)
	req := bleve.NewSearchRequestOptions(and(kindQ(DocReview), match("hotel_id", id)), 0, 0, false)
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, herrors.New(herrors.ErrCodeExecutorFailed, "catalog search failed", err)
	}
	if res.Total > 0 {
		rows[0]["review_count"] = int(res.Total)
	}
	return rows, nil
}

func toRow(h *search.DocumentMatch) Row {
	row := make(Row, len(h.Fields))
	for k, v := range h.Fields {
		if k != docTypeField {
			row[k] = v
		}
	}
	return row
}

// Query builders.

func kindQ(kind string) query.Query { return match(docTypeField, kind) }

func match(field, value string) query.Query {
	q := bleve.NewMatchQuery(value)
	q.SetField(field)
	return q
}

func atLeast(field string, lo float64) query.Query {
	inclusive := true
	q := bleve.NewNumericRangeInclusiveQuery(&lo, nil, &inclusive, nil)
	q.SetField(field)
	return q
}

func exists(field string) query.Query {
	return atLeast(field, -1e308)
}

func and(qs ...query.Query) query.Query { return bleve.NewConjunctionQuery(qs...) }

// params reads loosely typed template parameters.
type params map[string]any

func (p params) str(key string) string {
	switch v := p[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func (p params) num(key string) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	}
	return 0
}

func (p params) intOr(key string, def int) int {
	if _, ok := p[key]; !ok {
		return def
	}
	if n := int(p.num(key)); n > 0 {
		return n
	}
	return def
}
