package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/hotelrag/internal/diag"
	"github.com/Aman-CERP/hotelrag/internal/domain"
	herrors "github.com/Aman-CERP/hotelrag/internal/errors"
	"github.com/Aman-CERP/hotelrag/internal/hydrate"
	"github.com/Aman-CERP/hotelrag/internal/vector"
)

const component = "search"

// Catalog resolves index names to backends.
type Catalog interface {
	Get(name string) (vector.Backend, bool)
}

// Options configures a Searcher.
type Options struct {
	PrimaryIndex  string
	Threshold     float64
	Limit         int
	Weights       Weights
	IntentWeights map[domain.Intent]Weights
	// Timeout bounds each index query and each hydration call.
	Timeout time.Duration
	// HydrateParallelism caps concurrent fetches.
	HydrateParallelism int
	Logger             *slog.Logger
}

// DefaultOptions returns the standard search tuning.
func DefaultOptions() Options {
	return Options{
		PrimaryIndex:       "hotel",
		Threshold:          DefaultThreshold,
		Limit:              DefaultLimit,
		Weights:            DefaultWeights(),
		Timeout:            5 * time.Second,
		HydrateParallelism: 8,
	}
}

// Searcher fans a query out over indexes and fuses the results.
type Searcher struct {
	catalog Catalog
	fetcher hydrate.Fetcher
	opts    Options
	logger  *slog.Logger
}

// New returns a Searcher. fetcher may be nil, in which case candidates are
// returned without payloads.
func New(catalog Catalog, fetcher hydrate.Fetcher, opts Options) *Searcher {
	d := DefaultOptions()
	if opts.PrimaryIndex == "" {
		opts.PrimaryIndex = d.PrimaryIndex
	}
	if opts.Threshold <= 0 {
		opts.Threshold = d.Threshold
	}
	if opts.Limit <= 0 {
		opts.Limit = d.Limit
	}
	if opts.Weights == (Weights{}) {
		opts.Weights = d.Weights
	}
	if opts.Timeout <= 0 {
		opts.Timeout = d.Timeout
	}
	if opts.HydrateParallelism <= 0 {
		opts.HydrateParallelism = d.HydrateParallelism
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{
		catalog: catalog,
		fetcher: fetcher,
		opts:    opts,
		logger:  logger.With("component", component),
	}
}

// WeightsFor returns the fusion weights used for intent.
func (s *Searcher) WeightsFor(intent domain.Intent) Weights {
	if w, ok := s.opts.IntentWeights[intent]; ok {
		return w
	}
	return s.opts.Weights
}

// indexResult is one index's outcome.
type indexResult struct {
	name       string
	entityType string
	neighbors  []vector.Neighbor
	err        error
}

// Search queries every requested index concurrently, drops hits below the
// threshold, fuses per canonical id, hydrates, and truncates to the limit.
// Failures are reported to sink and never returned.
func (s *Searcher) Search(ctx context.Context, req Request, sink diag.Sink) Result {
	limit := req.Limit
	if limit <= 0 {
		limit = s.opts.Limit
	}
	threshold := req.Threshold
	if threshold <= 0 {
		threshold = s.opts.Threshold
	}

	names := dedupe(req.Indexes)
	results := make([]indexResult, len(names))

	// Every goroutine returns nil so one failed index cannot cancel the rest.
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			results[i] = s.queryIndex(gctx, name, req.Vector, limit*oversample)
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Searched: []string{}}
	groups := make(map[string]*group)
	for _, r := range results {
		if r.err != nil {
			res.Failed = append(res.Failed, r.name)
			s.logger.WarnContext(ctx, "index_search_failed",
				slog.String("index", r.name), slog.String("error", r.err.Error()))
			diag.Report(sink, diag.KindIndexUnavailable, component,
				fmt.Sprintf("index %s unavailable", r.name), r.err)
			continue
		}
		res.Searched = append(res.Searched, r.name)
		for _, n := range r.neighbors {
			sim := Similarity(n.Distance)
			if sim < threshold {
				continue
			}
			ref := n.Ref
			if ref == "" {
				ref = n.ID
			}
			key := r.entityType + "\x00" + ref
			gr, ok := groups[key]
			if !ok {
				gr = &group{id: ref, entityType: r.entityType, best: make(map[string]Hit)}
				groups[key] = gr
			}
			if prev, ok := gr.best[r.name]; !ok || sim > prev.Similarity {
				gr.best[r.name] = Hit{Index: r.name, ID: n.ID, Distance: n.Distance, Similarity: sim}
			}
		}
	}

	candidates := fuse(groups, s.opts.PrimaryIndex, s.WeightsFor(req.Intent))
	candidates = s.hydrate(ctx, candidates, limit, sink)
	res.Candidates = candidates

	if len(candidates) == 0 && len(res.Searched) > 0 {
		diag.Report(sink, diag.KindNoCandidateAboveThreshold, component,
			fmt.Sprintf("no hit reached similarity %.2f", threshold), nil)
	}

	s.logger.DebugContext(ctx, "search_complete",
		slog.Int("indexes", len(names)),
		slog.Int("failed", len(res.Failed)),
		slog.Int("candidates", len(candidates)))
	return res
}

func (s *Searcher) queryIndex(ctx context.Context, name string, vec []float32, k int) indexResult {
	backend, ok := s.catalog.Get(name)
	if !ok {
		return indexResult{name: name, err: herrors.New(herrors.ErrCodeUnknownIndex,
			fmt.Sprintf("index %q is not loaded", name), nil).
			WithSuggestion("run 'hotelrag ingest' for this index")}
	}
	entityType := backend.Descriptor().EntityType
	if entityType == "" {
		entityType = vector.EntityHotel
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	neighbors, err := backend.Search(ctx, vec, k)
	if err != nil {
		return indexResult{name: name, err: herrors.IndexUnavailable(name, err)}
	}
	return indexResult{name: name, entityType: entityType, neighbors: neighbors}
}

// hydrate fetches payloads for ranked candidates and keeps the first limit
// that hydrate successfully. Order is preserved.
func (s *Searcher) hydrate(ctx context.Context, ranked []Candidate, limit int, sink diag.Sink) []Candidate {
	if s.fetcher == nil {
		if len(ranked) > limit {
			ranked = ranked[:limit]
		}
		return ranked
	}

	ok := make([]bool, len(ranked))
	var mu sync.Mutex
	var failures []error

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.HydrateParallelism)
	for i := range ranked {
		i := i
		g.Go(func() error {
			c := &ranked[i]
			fctx, cancel := context.WithTimeout(gctx, s.opts.Timeout)
			defer cancel()
			p, err := s.fetcher.Fetch(fctx, c.ID, c.EntityType)
			if err != nil {
				mu.Lock()
				failures = append(failures, herrors.New(herrors.ErrCodeHydrationFailed,
					fmt.Sprintf("hydrate %s %s", c.EntityType, c.ID), err).
					WithDetail("id", c.ID))
				mu.Unlock()
				return nil
			}
			c.Payload = p
			ok[i] = true
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(failures, func(i, j int) bool { return failures[i].Error() < failures[j].Error() })
	for _, err := range failures {
		level := slog.LevelWarn
		if errors.Is(err, hydrate.ErrNotFound) {
			level = slog.LevelDebug
		}
		s.logger.Log(ctx, level, "hydration_failed", slog.String("error", err.Error()))
		diag.Report(sink, diag.KindHydrationFailed, component, "record dropped", err)
	}

	out := make([]Candidate, 0, min(limit, len(ranked)))
	for i, c := range ranked {
		if !ok[i] {
			continue
		}
		out = append(out, c)
		if len(out) == limit {
			break
		}
	}
	return out
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != "" && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
