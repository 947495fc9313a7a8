// Package ingest loads hotel, review and visa records into the local
// stores: a vector index per kind, the hydration record table and the
// structured catalog.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/Aman-CERP/hotelrag/internal/embed"
	herrors "github.com/Aman-CERP/hotelrag/internal/errors"
	"github.com/Aman-CERP/hotelrag/internal/hydrate"
	"github.com/Aman-CERP/hotelrag/internal/structured"
	"github.com/Aman-CERP/hotelrag/internal/vector"
)

// RecordWriter stores hydration payloads.
type RecordWriter interface {
	Put(ctx context.Context, records []hydrate.Record) error
}

// CatalogWriter stores structured catalog documents.
type CatalogWriter interface {
	Index(ctx context.Context, kind string, records []hydrate.Payload) error
}

// target describes where one record kind goes.
type target struct {
	index      string
	entityType string
}

var targets = map[string]target{
	structured.DocHotel:  {index: "hotel", entityType: vector.EntityHotel},
	structured.DocReview: {index: "review", entityType: vector.EntityHotel},
	structured.DocVisa:   {index: "visa", entityType: vector.EntityVisa},
}

// Kinds returns the ingestible record kinds.
func Kinds() []string {
	return []string{structured.DocHotel, structured.DocReview, structured.DocVisa}
}

// Options tunes an Ingester.
type Options struct {
	BatchSize int
	// Workers is the embedding pool size. Zero means NumCPU/2.
	Workers int
	Logger  *slog.Logger
}

// Stats summarizes one ingest run.
type Stats struct {
	Kind     string        `json:"kind"`
	Records  int           `json:"records"`
	Vectors  int           `json:"vectors"`
	Skipped  int           `json:"skipped"`
	Index    string        `json:"index"`
	Duration time.Duration `json:"duration"`
}

// Ingester embeds records and writes them to every store.
type Ingester struct {
	embedder embed.Embedder
	records  RecordWriter
	catalog  CatalogWriter
	dataDir  string
	pool     *ants.Pool
	batch    int
	logger   *slog.Logger
}

// New returns an Ingester writing vector indexes under dataDir/indexes.
// records and catalog may be nil to skip those stores.
func New(e embed.Embedder, records RecordWriter, catalog CatalogWriter, dataDir string, opts Options) (*Ingester, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU() / 2
	}
	if workers < 1 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create embedding pool: %w", err)
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = embed.DefaultBatchSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{
		embedder: e,
		records:  records,
		catalog:  catalog,
		dataDir:  dataDir,
		pool:     pool,
		batch:    batch,
		logger:   logger.With("component", "ingest"),
	}, nil
}

// Release frees the worker pool.
func (in *Ingester) Release() { in.pool.Release() }

// IndexDir is where vector indexes are written.
func (in *Ingester) IndexDir() string { return IndexDir(in.dataDir) }

// IndexDir returns the vector index directory under dataDir.
func IndexDir(dataDir string) string { return filepath.Join(dataDir, "indexes") }

// prepared is a normalized record ready to embed.
type prepared struct {
	id, ref, text string
	doc           hydrate.Payload
}

// Ingest writes records of one kind. It holds the data directory lock for
// the whole run and fails fast if another writer holds it.
func (in *Ingester) Ingest(ctx context.Context, kind string, raw []hydrate.Payload) (Stats, error) {
	start := time.Now()
	tgt, ok := targets[kind]
	if !ok {
		return Stats{}, herrors.ValidationError(fmt.Sprintf("unknown record kind %q", kind), nil).
			WithSuggestion("use --type hotel, review or visa")
	}
	stats := Stats{Kind: kind, Index: tgt.index}

	lock := NewFileLock(in.dataDir)
	ok, err := lock.TryLock()
	if err != nil {
		return stats, err
	}
	if !ok {
		return stats, herrors.New(herrors.ErrCodeStoreLocked, "another ingest is running", nil).
			WithDetail("lock", lock.Path())
	}
	defer func() { _ = lock.Unlock() }()

	items, docs := in.prepare(kind, raw)
	stats.Records = len(items)
	stats.Skipped = len(raw) - len(items)
	if len(items) == 0 {
		return stats, nil
	}

	vectors, err := in.embedAll(ctx, items)
	if err != nil {
		return stats, herrors.New(herrors.ErrCodeEmbeddingFailed, "embed records", err)
	}

	idx, err := vector.OpenOrCreate(in.IndexDir(), vector.DefaultConfig(tgt.index, tgt.entityType, in.embedder.Dimensions()))
	if err != nil {
		return stats, herrors.New(herrors.ErrCodeIngestFailed, "open vector index", err)
	}
	defer func() { _ = idx.Close() }()

	vitems := make([]vector.Item, len(items))
	for i, it := range items {
		vitems[i] = vector.Item{ID: it.id, Ref: it.ref, Vector: vectors[i]}
	}
	if err := idx.Add(ctx, vitems); err != nil {
		return stats, herrors.New(herrors.ErrCodeIngestFailed, "add vectors", err)
	}
	if err := idx.Save(vector.Path(in.IndexDir(), tgt.index)); err != nil {
		return stats, herrors.New(herrors.ErrCodeIngestFailed, "save vector index", err)
	}
	stats.Vectors = len(vitems)

	if in.records != nil {
		recs := make([]hydrate.Record, len(items))
		for i, it := range items {
			recs[i] = hydrate.Record{EntityType: kind, ID: it.id, Payload: it.doc}
		}
		if err := in.records.Put(ctx, recs); err != nil {
			return stats, herrors.New(herrors.ErrCodeIngestFailed, "store records", err)
		}
	}
	if in.catalog != nil {
		if err := in.catalog.Index(ctx, kind, docs); err != nil {
			return stats, herrors.New(herrors.ErrCodeIngestFailed, "index catalog", err)
		}
	}

	stats.Duration = time.Since(start)
	in.logger.InfoContext(ctx, "ingest_complete",
		slog.String("kind", kind),
		slog.Int("records", stats.Records),
		slog.Int("skipped", stats.Skipped),
		slog.Duration("duration", stats.Duration))
	return stats, nil
}

// prepare normalizes records and drops those without an id. Reviews also
// need a hotel to point at.
func (in *Ingester) prepare(kind string, raw []hydrate.Payload) ([]prepared, []hydrate.Payload) {
	items := make([]prepared, 0, len(raw))
	docs := make([]hydrate.Payload, 0, len(raw))
	for i, r := range raw {
		doc := structured.Normalize(kind, r)
		var id, ref string
		switch kind {
		case structured.DocHotel:
			id = doc.String("hotel_id")
			ref = id
		case structured.DocReview:
			id = doc.String("review_id")
			ref = doc.String("hotel_id")
		case structured.DocVisa:
			if from, to := doc.String("from_country"), doc.String("to_country"); from != "" && to != "" {
				id = hydrate.VisaID(from, to)
			}
			ref = id
		}
		if id == "" || ref == "" {
			in.logger.Warn("record_skipped", slog.String("kind", kind), slog.Int("position", i))
			continue
		}
		items = append(items, prepared{id: id, ref: ref, text: Text(kind, doc), doc: doc})
		docs = append(docs, doc)
	}
	return items, docs
}

// embedAll embeds items in batches on the worker pool. Output order matches
// input order.
func (in *Ingester) embedAll(ctx context.Context, items []prepared) ([][]float32, error) {
	out := make([][]float32, len(items))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	for start := 0; start < len(items); start += in.batch {
		end := min(start+in.batch, len(items))
		texts := make([]string, 0, end-start)
		for _, it := range items[start:end] {
			texts = append(texts, it.text)
		}

		wg.Add(1)
		offset := start
		err := in.pool.Submit(func() {
			defer wg.Done()
			vecs, err := in.embedder.EmbedBatch(ctx, texts)
			if err != nil {
				fail(err)
				return
			}
			if len(vecs) != len(texts) {
				fail(fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts)))
				return
			}
			copy(out[offset:], vecs)
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("submit batch: %w", err))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}
