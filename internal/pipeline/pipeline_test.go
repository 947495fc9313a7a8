package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/hotelrag/internal/diag"
	"github.com/Aman-CERP/hotelrag/internal/domain"
	"github.com/Aman-CERP/hotelrag/internal/embed"
	herrors "github.com/Aman-CERP/hotelrag/internal/errors"
	"github.com/Aman-CERP/hotelrag/internal/hydrate"
	"github.com/Aman-CERP/hotelrag/internal/merge"
	"github.com/Aman-CERP/hotelrag/internal/oracle"
	"github.com/Aman-CERP/hotelrag/internal/patterns"
	"github.com/Aman-CERP/hotelrag/internal/resolve"
	"github.com/Aman-CERP/hotelrag/internal/router"
	"github.com/Aman-CERP/hotelrag/internal/search"
	"github.com/Aman-CERP/hotelrag/internal/structured"
	"github.com/Aman-CERP/hotelrag/internal/vector"
)

const dims = 64

var hotels = []hydrate.Payload{
	{"hotel_id": "h1", "name": "The Grand", "city": "Paris", "country": "France", "star_rating": 5.0},
	{"hotel_id": "h2", "name": "Harbour View", "city": "Sydney", "country": "Australia", "star_rating": 4.0},
}

type executorFunc func(ctx context.Context, q structured.Query) ([]structured.Row, error)

func (f executorFunc) Execute(ctx context.Context, q structured.Query) ([]structured.Row, error) {
	return f(ctx, q)
}

type brokenEmbedder struct{ embed.Embedder }

func (brokenEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("model offline")
}

// slowEmbedder blocks until its context ends.
type slowEmbedder struct{ embed.Embedder }

func (slowEmbedder) Embed(ctx context.Context, _ string) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func testRules() patterns.IntentRules {
	return patterns.IntentRules{
		Exact: map[string]domain.Intent{"hello": domain.IntentCasualConversation},
		Keywords: []patterns.Keyword{
			{Intent: domain.IntentHotelSearch, Term: "hotels in", Weight: 0.95},
			{Intent: domain.IntentVisaQuestion, Term: "visa", Weight: 0.95},
		},
	}
}

type fixture struct {
	deps        Deps
	oracleCalls *atomic.Int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	ref, err := domain.DefaultReference()
	require.NoError(t, err)

	calls := &atomic.Int64{}
	o := oracle.Func(func(context.Context, oracle.Request) (string, error) {
		calls.Add(1)
		return "", errors.New("unexpected oracle call")
	})
	rt := router.New(patterns.NewIntentMatcher(testRules(), 0.1),
		router.NewRegistry(patterns.NewEntityExtractor(ref, 0.1)), o, router.DefaultOptions())
	res, err := resolve.New(ref, o, resolve.DefaultOptions())
	require.NoError(t, err)

	e := embed.NewStaticEmbedder(dims)
	idx, err := vector.NewHNSWIndex(vector.DefaultConfig("hotel", vector.EntityHotel, dims))
	require.NoError(t, err)
	records, err := hydrate.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = records.Close() })

	var items []vector.Item
	var recs []hydrate.Record
	for _, h := range hotels {
		doc := structured.Normalize(structured.DocHotel, h)
		id := doc.String("hotel_id")
		v, err := e.Embed(ctx, doc.String("hotel_name")+" in "+doc.String("city"))
		require.NoError(t, err)
		items = append(items, vector.Item{ID: id, Ref: id, Vector: v})
		recs = append(recs, hydrate.Record{EntityType: vector.EntityHotel, ID: id, Payload: doc})
	}
	require.NoError(t, idx.Add(ctx, items))
	require.NoError(t, records.Put(ctx, recs))
	catalog := vector.NewCatalog()
	catalog.Register(idx)

	exec, err := structured.OpenBleve("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = exec.Close() })
	require.NoError(t, exec.Index(ctx, structured.DocHotel, hotels))

	opts := search.DefaultOptions()
	opts.Threshold = 0.01
	return &fixture{
		deps: Deps{
			Router:   rt,
			Resolver: res,
			Embedder: e,
			Searcher: search.New(catalog, records, opts),
			Executor: exec,
		},
		oracleCalls: calls,
	}
}

func itemByKey(items []merge.Item, key string) (merge.Item, bool) {
	for _, it := range items {
		if it.Key == key {
			return it, true
		}
	}
	return merge.Item{}, false
}

// =============================================================================
// Run
// =============================================================================

func TestRun_EmptyQuery(t *testing.T) {
	p := New(newFixture(t).deps, Options{})
	_, err := p.Run(context.Background(), "   ")
	require.Error(t, err)
	assert.Equal(t, herrors.ErrCodeQueryEmpty, herrors.GetCode(err))
}

func TestRun_HotelSearchMergesBothSources(t *testing.T) {
	f := newFixture(t)
	p := New(f.deps, Options{})

	res, err := p.Run(context.Background(), "hotels in Paris")
	require.NoError(t, err)

	assert.NotEmpty(t, res.RequestID)
	assert.Equal(t, domain.IntentHotelSearch, res.Intent)
	assert.Equal(t, domain.SourceRule, res.IntentSource)
	assert.Equal(t, "Paris", res.Entities.Text(domain.FieldCity))
	assert.Equal(t, []string{"hotel"}, res.Indexes)
	require.Len(t, res.Rows, 1)
	assert.NotEmpty(t, res.Candidates)

	h1, ok := itemByKey(res.Context.Items, "hotel:h1")
	require.True(t, ok)
	assert.Equal(t, merge.SourceHybrid, h1.Source)
	assert.Contains(t, res.Context.Text, "=== HOTELS ===")
	assert.Contains(t, res.Context.Text, "The Grand")
	assert.Zero(t, f.oracleCalls.Load(), "high-tier rules never ask the oracle")
	assert.Empty(t, res.Diagnostics)
}

func TestRun_CasualConversationSkipsRetrieval(t *testing.T) {
	f := newFixture(t)
	p := New(f.deps, Options{})

	res, err := p.Run(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, domain.IntentCasualConversation, res.Intent)
	assert.Empty(t, res.Indexes)
	assert.Empty(t, res.Candidates)
	assert.Equal(t, merge.NoResults, res.Context.Text)
}

func TestRun_ExecutorFailureIsDiagnosed(t *testing.T) {
	f := newFixture(t)
	f.deps.Executor = executorFunc(func(context.Context, structured.Query) ([]structured.Row, error) {
		return nil, errors.New("graph down")
	})
	external := diag.NewRecorder()
	p := New(f.deps, Options{Sink: external})

	res, err := p.Run(context.Background(), "hotels in Paris")
	require.NoError(t, err)

	assert.Empty(t, res.Rows)
	assert.NotEmpty(t, res.Candidates, "vector results survive a failed executor")
	require.Len(t, res.Diagnostics, 1)
	ev := res.Diagnostics[0]
	assert.Equal(t, diag.KindExecutorUnavailable, ev.Kind)
	assert.Equal(t, res.RequestID, ev.RequestID)
	assert.False(t, ev.At.IsZero())
	assert.True(t, external.Has(diag.KindExecutorUnavailable))
}

func TestRun_SlowExecutorTimesOut(t *testing.T) {
	f := newFixture(t)
	f.deps.Executor = executorFunc(func(ctx context.Context, _ structured.Query) ([]structured.Row, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	p := New(f.deps, Options{Timeout: 50 * time.Millisecond})

	start := time.Now()
	res, err := p.Run(context.Background(), "hotels in Paris")
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Empty(t, res.Rows)
	assert.NotEmpty(t, res.Candidates)
	require.NotEmpty(t, res.Diagnostics)
	assert.Equal(t, diag.KindExecutorUnavailable, res.Diagnostics[0].Kind)
	assert.ErrorIs(t, res.Diagnostics[0].Err, context.DeadlineExceeded)
}

func TestRun_SlowEmbedderTimesOut(t *testing.T) {
	f := newFixture(t)
	f.deps.Embedder = slowEmbedder{}
	p := New(f.deps, Options{Timeout: 50 * time.Millisecond})

	start := time.Now()
	res, err := p.Run(context.Background(), "hotels in Paris")
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Empty(t, res.Candidates)
	assert.NotEmpty(t, res.Rows, "structured rows survive a stalled embedder")
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, diag.KindEmbeddingUnavailable, res.Diagnostics[0].Kind)
}

func TestRun_UnsupportedQueryIsQuiet(t *testing.T) {
	f := newFixture(t)
	f.deps.Executor = executorFunc(func(context.Context, structured.Query) ([]structured.Row, error) {
		return nil, structured.ErrUnsupported
	})
	p := New(f.deps, Options{})

	res, err := p.Run(context.Background(), "hotels in Paris")
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
	assert.Empty(t, res.Diagnostics)
}

func TestRun_EmbeddingFailureKeepsStructuredRows(t *testing.T) {
	f := newFixture(t)
	f.deps.Embedder = brokenEmbedder{}
	p := New(f.deps, Options{})

	res, err := p.Run(context.Background(), "hotels in Paris")
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
	require.Len(t, res.Rows, 1)

	h1, ok := itemByKey(res.Context.Items, "hotel:h1")
	require.True(t, ok)
	assert.Equal(t, merge.SourceBaseline, h1.Source)

	kinds := make([]diag.Kind, 0, len(res.Diagnostics))
	for _, ev := range res.Diagnostics {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []diag.Kind{diag.KindEmbeddingUnavailable}, kinds)
}

// =============================================================================
// Classify
// =============================================================================

func TestClassify_ResolvesEntities(t *testing.T) {
	p := New(newFixture(t).deps, Options{})
	c := p.Classify(context.Background(), "hotels in Paris", diag.Nop{})

	assert.Equal(t, domain.IntentHotelSearch, c.Intent.Intent)
	assert.Equal(t, "Paris", c.Entities.Entities.Text(domain.FieldCity))
	n, ok := c.Entities.Entities.Number(domain.FieldLimit)
	assert.True(t, ok)
	assert.Equal(t, float64(domain.DefaultLimit), n)
}
