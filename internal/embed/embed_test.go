package embed

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockEmbedder is a test double that counts calls.
type mockEmbedder struct {
	embedCalls atomic.Int64
	batchCalls atomic.Int64
	batchSizes []int
	dims       int
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.embedCalls.Add(1)
	return m.vector(text), nil
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.batchCalls.Add(1)
	m.batchSizes = append(m.batchSizes, len(texts))
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = m.vector(t)
	}
	return out, nil
}

func (m *mockEmbedder) vector(text string) []float32 {
	v := make([]float32, m.dims)
	v[0] = float32(len(text))
	return v
}

func (m *mockEmbedder) Dimensions() int   { return m.dims }
func (m *mockEmbedder) ModelName() string { return "mock-model" }
func (m *mockEmbedder) Close() error      { return nil }

func l2norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

// ============================================================================
// Static embedder
// ============================================================================

func TestStaticEmbedder_Basics(t *testing.T) {
	e := NewStaticEmbedder(0)
	ctx := context.Background()

	v, err := e.Embed(ctx, "Family friendly hotel in Paris")
	require.NoError(t, err)
	assert.Len(t, v, StaticDimensions)
	assert.InDelta(t, 1.0, l2norm(v), 1e-5)

	again, err := NewStaticEmbedder(0).Embed(ctx, "Family friendly hotel in Paris")
	require.NoError(t, err)
	assert.Equal(t, v, again, "deterministic across instances")

	blank, err := e.Embed(ctx, "   ")
	require.NoError(t, err)
	assert.Zero(t, l2norm(blank))
}

func TestStaticEmbedder_AccentsFold(t *testing.T) {
	e := NewStaticEmbedder(64)
	a, err := e.Embed(context.Background(), "Zürich")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "zurich")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, 64, e.Dimensions())
}

func TestStaticEmbedder_SimilarTextsAreCloser(t *testing.T) {
	e := NewStaticEmbedder(0)
	ctx := context.Background()
	vecs, err := e.EmbedBatch(ctx, []string{"quiet hotel near the beach", "quiet hotel by the beach", "visa rules for Egypt"})
	require.NoError(t, err)

	dot := func(a, b []float32) float64 {
		var s float64
		for i := range a {
			s += float64(a[i]) * float64(b[i])
		}
		return s
	}
	assert.Greater(t, dot(vecs[0], vecs[1]), dot(vecs[0], vecs[2]))
}

func TestStaticEmbedder_Closed(t *testing.T) {
	e := NewStaticEmbedder(0)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	_, err := e.Embed(context.Background(), "x")
	assert.Error(t, err)
}

// ============================================================================
// Cache
// ============================================================================

func TestCachedEmbedder_Embed(t *testing.T) {
	inner := &mockEmbedder{dims: 4}
	c := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	_, err := c.Embed(ctx, "paris")
	require.NoError(t, err)
	_, err = c.Embed(ctx, "paris")
	require.NoError(t, err)

	assert.Equal(t, int64(1), inner.embedCalls.Load())
	assert.Equal(t, 1, c.Len())
}

func TestCachedEmbedder_BatchEmbedsOnlyMisses(t *testing.T) {
	inner := &mockEmbedder{dims: 4}
	c := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	_, err := c.Embed(ctx, "b")
	require.NoError(t, err)

	out, err := c.EmbedBatch(ctx, []string{"a", "b", "cc"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, float32(2), out[2][0])
	assert.Equal(t, []int{2}, inner.batchSizes)

	_, err = c.EmbedBatch(ctx, []string{"a", "cc"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), inner.batchCalls.Load(), "all hits")
}

func TestCachedEmbedder_Evicts(t *testing.T) {
	inner := &mockEmbedder{dims: 4}
	c := NewCachedEmbedder(inner, 2)
	ctx := context.Background()
	for _, s := range []string{"a", "b", "c"} {
		_, _ = c.Embed(ctx, s)
	}
	assert.Equal(t, 2, c.Len())
}

// ============================================================================
// OpenAI-compatible
// ============================================================================

func TestOpenAIEmbedder(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"m","data":[
			{"object":"embedding","index":1,"embedding":[0,2,0]},
			{"object":"embedding","index":0,"embedding":[3,0,4]}]}`))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder("key", "m", srv.URL, 3)
	out, err := e.EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.InDeltaSlice(t, []float32{0.6, 0, 0.8}, out[0], 1e-6)
	assert.InDeltaSlice(t, []float32{0, 1, 0}, out[1], 1e-6)
	assert.Equal(t, "m", got["model"])
	assert.EqualValues(t, 3, got["dimensions"])
}

func TestOpenAIEmbedder_DimensionCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1,2]}]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIEmbedder("key", "m", srv.URL, 3).Embed(context.Background(), "x")
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	e, err := New(Config{Provider: "static", Dimensions: 32}, nil)
	require.NoError(t, err)
	assert.Equal(t, 32, e.Dimensions())
	assert.IsType(t, &CachedEmbedder{}, e)

	t.Setenv("HOTELRAG_TEST_MISSING_KEY", "")
	_, err = New(Config{Provider: "openai", APIKeyEnv: "HOTELRAG_TEST_MISSING_KEY"}, nil)
	assert.Error(t, err)

	_, err = New(Config{Provider: "word2vec"}, nil)
	assert.Error(t, err)

	e, err = New(Config{Provider: "ollama", Model: "nomic-embed-text", Dimensions: 768}, nil)
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", e.ModelName())
}
