// Package merge combines structured rows and vector candidates into one
// ranked, de-duplicated list and renders it as a bounded context string.
package merge

import (
	"log/slog"
	"math"
	"sort"
	"strconv"

	"github.com/Aman-CERP/hotelrag/internal/hydrate"
	"github.com/Aman-CERP/hotelrag/internal/search"
	"github.com/Aman-CERP/hotelrag/internal/structured"
)

// Source records which retrieval paths produced an item.
type Source string

// Sources.
const (
	SourceBaseline  Source = "baseline"
	SourceEmbedding Source = "embedding"
	SourceHybrid    Source = "hybrid"
)

// Kind partitions items for rendering.
type Kind string

// Kinds, in render order.
const (
	KindOther  Kind = "other"
	KindHotel  Kind = "hotel"
	KindReview Kind = "review"
)

// Item is one merged result. Keys are unique within a merge.
type Item struct {
	Key     string          `json:"key"`
	Kind    Kind            `json:"kind"`
	Score   float64         `json:"score"`
	Source  Source          `json:"source"`
	Payload hydrate.Payload `json:"payload"`
}

// Options tunes merging and rendering.
type Options struct {
	TokenBudget   int
	CharsPerToken int
	// StructuredWeight and VectorWeight split the score of an item found by
	// both paths.
	StructuredWeight float64
	VectorWeight     float64
	// ReviewTextLimit truncates review text, in runes.
	ReviewTextLimit int
	Logger          *slog.Logger
}

// DefaultOptions returns a 2500-token budget at 4 chars per token with
// 0.6/0.4 weights.
func DefaultOptions() Options {
	return Options{
		TokenBudget:      2500,
		CharsPerToken:    4,
		StructuredWeight: 0.6,
		VectorWeight:     0.4,
		ReviewTextLimit:  200,
	}
}

// structuredScore is the relevance assigned to every structured row.
const structuredScore = 1.0

// Merger merges and renders results. It is stateless and safe for
// concurrent use.
type Merger struct {
	opts   Options
	logger *slog.Logger
}

// New returns a Merger; zero options take defaults.
func New(opts Options) *Merger {
	d := DefaultOptions()
	if opts.TokenBudget <= 0 {
		opts.TokenBudget = d.TokenBudget
	}
	if opts.CharsPerToken <= 0 {
		opts.CharsPerToken = d.CharsPerToken
	}
	if opts.StructuredWeight == 0 && opts.VectorWeight == 0 {
		opts.StructuredWeight, opts.VectorWeight = d.StructuredWeight, d.VectorWeight
	}
	if opts.ReviewTextLimit <= 0 {
		opts.ReviewTextLimit = d.ReviewTextLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Merger{opts: opts, logger: logger.With("component", "merge")}
}

// Budget returns the context size limit in characters.
func (m *Merger) Budget() int {
	return m.opts.TokenBudget * m.opts.CharsPerToken
}

// Merge seeds structured rows at full relevance, folds in vector candidates,
// and returns items sorted by score descending. Only a vector candidate that
// meets a structured row is fused into a hybrid item. Ties keep insertion order,
// structured rows first.
func (m *Merger) Merge(rows []structured.Row, candidates []search.Candidate) []Item {
	items := make([]Item, 0, len(rows)+len(candidates))
	index := make(map[string]int, cap(items))

	for i, r := range rows {
		p := hydrate.Payload(r).Clone()
		key := canonicalKey(p, "", "")
		if key == "" {
			key = otherKey("other", i)
		}
		if at, ok := index[key]; ok {
			fill(items[at].Payload, p)
			continue
		}
		index[key] = len(items)
		items = append(items, Item{Key: key, Kind: kindOf(p), Score: structuredScore, Source: SourceBaseline, Payload: p})
	}

	for i, c := range candidates {
		p := c.Payload.Clone()
		if p == nil {
			p = hydrate.Payload{}
		}
		key := canonicalKey(p, c.EntityType, c.ID)
		if key == "" {
			key = otherKey("other_emb", i)
		}
		if at, ok := index[key]; ok {
			it := &items[at]
			switch it.Source {
			case SourceBaseline:
				it.Score = m.opts.StructuredWeight*it.Score + m.opts.VectorWeight*c.Score
				it.Source = SourceHybrid
			case SourceEmbedding:
				// Two vector hits on one record are still one embedding result.
				it.Score = math.Max(it.Score, c.Score)
			}
			fill(it.Payload, p)
			continue
		}
		index[key] = len(items)
		items = append(items, Item{Key: key, Kind: kindOf(p), Score: c.Score, Source: SourceEmbedding, Payload: p})
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].Score > items[j].Score })
	return items
}

// canonicalKey identifies a record across sources. Reviews key on review_id,
// hotels on hotel_id, visa rules on their country pair. Traveller statistics
// and unknown shapes have no canonical key.
func canonicalKey(p hydrate.Payload, entityType, id string) string {
	if v := p.String("review_id"); v != "" {
		return "review:" + v
	}
	if v := p.String("hotel_id"); v != "" {
		return "hotel:" + v
	}
	if _, stats := p["traveller_count"]; !stats {
		if from, to := p.String("from_country"), p.String("to_country"); from != "" && to != "" {
			return "visa:" + hydrate.VisaID(from, to)
		}
	}
	if entityType != "" && id != "" {
		return entityType + ":" + id
	}
	return ""
}

func otherKey(prefix string, i int) string {
	return prefix + "_" + strconv.Itoa(i)
}

func kindOf(p hydrate.Payload) Kind {
	_, id := p["review_id"]
	_, text := p["review_text"]
	if id || text {
		return KindReview
	}
	_, hid := p["hotel_id"]
	_, name := p["hotel_name"]
	if hid || name {
		return KindHotel
	}
	return KindOther
}

// fill copies fields of src missing from dst.
func fill(dst, src hydrate.Payload) {
	for k, v := range src {
		if _, ok := dst[k]; !ok {
			dst[k] = v
		}
	}
}
