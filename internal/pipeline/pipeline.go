// Package pipeline runs one query through routing, resolution, retrieval and
// merging, and returns a bounded context string for an answer generator.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/hotelrag/internal/diag"
	"github.com/Aman-CERP/hotelrag/internal/domain"
	"github.com/Aman-CERP/hotelrag/internal/embed"
	herrors "github.com/Aman-CERP/hotelrag/internal/errors"
	"github.com/Aman-CERP/hotelrag/internal/merge"
	"github.com/Aman-CERP/hotelrag/internal/resolve"
	"github.com/Aman-CERP/hotelrag/internal/router"
	"github.com/Aman-CERP/hotelrag/internal/search"
	"github.com/Aman-CERP/hotelrag/internal/selector"
	"github.com/Aman-CERP/hotelrag/internal/structured"
)

// Deps are the collaborators of a Pipeline. Executor may be nil, in which
// case only vector results are merged.
type Deps struct {
	Router   *router.Router
	Resolver *resolve.Resolver
	Embedder embed.Embedder
	Searcher *search.Searcher
	Library  *structured.Library
	Executor structured.Executor
	Merger   *merge.Merger
}

// DefaultTimeout bounds each query embedding and structured query.
const DefaultTimeout = 5 * time.Second

// Options tune a Pipeline.
type Options struct {
	// Sink receives every diagnostic in addition to the per-run recorder.
	Sink diag.Sink
	// Timeout bounds each embedding and executor call. Zero means
	// DefaultTimeout.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Pipeline is safe for concurrent use; each Run is independent.
type Pipeline struct {
	deps    Deps
	sink    diag.Sink
	timeout time.Duration
	logger  *slog.Logger
}

// New returns a Pipeline.
func New(deps Deps, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Library == nil {
		deps.Library = structured.NewLibrary()
	}
	if deps.Merger == nil {
		deps.Merger = merge.New(merge.DefaultOptions())
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Pipeline{
		deps:    deps,
		sink:    opts.Sink,
		timeout: timeout,
		logger:  logger.With("component", "pipeline"),
	}
}

// Result is everything one Run produced.
type Result struct {
	RequestID    string                   `json:"request_id"`
	Query        string                   `json:"query"`
	Intent       domain.Intent            `json:"intent"`
	IntentSource domain.Provenance        `json:"intent_source"`
	IntentTier   router.Tier              `json:"intent_tier"`
	Entities     domain.Entities          `json:"entities"`
	EntitySource domain.Provenance        `json:"entity_source"`
	Matches      []resolve.CandidateMatch `json:"matches,omitempty"`
	Indexes      []string                 `json:"indexes"`
	Candidates   []search.Candidate       `json:"candidates"`
	Rows         []structured.Row         `json:"rows,omitempty"`
	Context      merge.Context            `json:"context"`
	Diagnostics  []diag.Event             `json:"diagnostics,omitempty"`
	Duration     time.Duration            `json:"duration"`
}

// Classification is the routing half of a Run.
type Classification struct {
	Intent   router.IntentDecision    `json:"intent"`
	Entities router.EntityDecision    `json:"entities"`
	Matches  []resolve.CandidateMatch `json:"matches,omitempty"`
}

// Classify routes the query and resolves entity values without retrieving
// anything.
func (p *Pipeline) Classify(ctx context.Context, query string, sink diag.Sink) Classification {
	intent := p.deps.Router.ClassifyIntent(ctx, query, sink)
	ents := p.deps.Router.ExtractEntities(ctx, query, intent.Intent, sink)
	c := Classification{Intent: intent, Entities: ents}
	if p.deps.Resolver != nil {
		c.Entities.Entities, c.Matches = p.deps.Resolver.NormalizeEntities(ctx, ents.Entities, sink)
	}
	return c
}

// Run answers query. The only error is an empty query; every collaborator
// failure is reported in Result.Diagnostics and the best available context
// is returned.
func (p *Pipeline) Run(ctx context.Context, query string) (Result, error) {
	start := time.Now()
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{}, herrors.New(herrors.ErrCodeQueryEmpty, "query is empty", nil)
	}

	res := Result{RequestID: uuid.NewString(), Query: query}
	rec := diag.NewRecorder()
	sink := diag.Tagged(diag.Multi(rec, diag.NewLogSink(p.logger), p.sink), res.RequestID)
	logger := p.logger.With(slog.String("request_id", res.RequestID))

	c := p.Classify(ctx, query, sink)
	res.Intent, res.IntentSource, res.IntentTier = c.Intent.Intent, c.Intent.Source, c.Intent.Tier
	res.Entities, res.EntitySource, res.Matches = c.Entities.Entities, c.Entities.Source, c.Matches

	if res.Intent != domain.IntentCasualConversation {
		res.Indexes = selector.Select(res.Intent, res.Entities.Keys())

		intent, ents, indexes := res.Intent, res.Entities, res.Indexes
		var cands []search.Candidate
		var rows []structured.Row
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			cands = p.vector(gctx, query, intent, ents, indexes, sink)
			return nil
		})
		g.Go(func() error {
			rows = p.structured(gctx, intent, ents, sink)
			return nil
		})
		_ = g.Wait()
		res.Candidates, res.Rows = cands, rows
	}

	res.Context = p.deps.Merger.Build(res.Rows, res.Candidates)
	res.Diagnostics = rec.Events()
	res.Duration = time.Since(start)

	logger.InfoContext(ctx, "query_complete",
		slog.String("intent", string(res.Intent)),
		slog.String("intent_source", string(res.IntentSource)),
		slog.Int("candidates", len(res.Candidates)),
		slog.Int("rows", len(res.Rows)),
		slog.Int("included", res.Context.Included),
		slog.Int("diagnostics", len(res.Diagnostics)),
		slog.Duration("duration", res.Duration))
	return res, nil
}

// vector embeds the query and searches the selected indexes.
func (p *Pipeline) vector(ctx context.Context, query string, intent domain.Intent, ents domain.Entities, indexes []string, sink diag.Sink) []search.Candidate {
	if p.deps.Embedder == nil || p.deps.Searcher == nil || len(indexes) == 0 {
		return nil
	}
	embedCtx, cancel := context.WithTimeout(ctx, p.timeout)
	vec, err := p.deps.Embedder.Embed(embedCtx, query)
	cancel()
	if err != nil {
		diag.Report(sink, diag.KindEmbeddingUnavailable, "embed", "query embedding failed",
			herrors.New(herrors.ErrCodeEmbeddingFailed, "embed query", err))
		return nil
	}
	req := search.Request{Vector: vec, Indexes: indexes, Intent: intent}
	if n, ok := ents.Number(domain.FieldLimit); ok && n > 0 {
		req.Limit = int(n)
	}
	return p.deps.Searcher.Search(ctx, req, sink).Candidates
}

// structured runs the library queries for intent. Queries the executor does
// not support are skipped quietly.
func (p *Pipeline) structured(ctx context.Context, intent domain.Intent, ents domain.Entities, sink diag.Sink) []structured.Row {
	if p.deps.Executor == nil {
		return nil
	}
	var rows []structured.Row
	for _, q := range p.deps.Library.Select(intent, ents) {
		queryCtx, cancel := context.WithTimeout(ctx, p.timeout)
		got, err := p.deps.Executor.Execute(queryCtx, q)
		cancel()
		switch {
		case errors.Is(err, structured.ErrUnsupported):
			p.logger.DebugContext(ctx, "query_unsupported", slog.String("query", q.Name))
		case err != nil:
			diag.Report(sink, diag.KindExecutorUnavailable, "structured", "query "+q.Name+" failed", err)
		default:
			rows = append(rows, got...)
		}
	}
	return rows
}
