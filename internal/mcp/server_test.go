package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/hotelrag/internal/diag"
	"github.com/Aman-CERP/hotelrag/internal/domain"
	herrors "github.com/Aman-CERP/hotelrag/internal/errors"
	"github.com/Aman-CERP/hotelrag/internal/merge"
	"github.com/Aman-CERP/hotelrag/internal/pipeline"
	"github.com/Aman-CERP/hotelrag/internal/resolve"
	"github.com/Aman-CERP/hotelrag/internal/router"
	"github.com/Aman-CERP/hotelrag/internal/vector"
)

// MockEngine is a test double for Engine.
type MockEngine struct {
	RunFn      func(ctx context.Context, query string) (pipeline.Result, error)
	ClassifyFn func(ctx context.Context, query string, sink diag.Sink) pipeline.Classification
	runs       atomic.Int64
}

func (m *MockEngine) Run(ctx context.Context, query string) (pipeline.Result, error) {
	m.runs.Add(1)
	if m.RunFn != nil {
		return m.RunFn(ctx, query)
	}
	return pipeline.Result{Context: merge.Context{Text: merge.NoResults}}, nil
}

func (m *MockEngine) Classify(ctx context.Context, query string, sink diag.Sink) pipeline.Classification {
	if m.ClassifyFn != nil {
		return m.ClassifyFn(ctx, query, sink)
	}
	return pipeline.Classification{}
}

type staticLister []vector.Descriptor

func (s staticLister) Descriptors() []vector.Descriptor { return s }

func parisResult() pipeline.Result {
	return pipeline.Result{
		RequestID:    "req-1",
		Intent:       domain.IntentHotelSearch,
		IntentSource: domain.SourceRule,
		Entities: domain.Entities{
			domain.FieldCity: {Value: domain.Text("Paris"), Source: domain.SourceRule, Confidence: 0.95},
		},
		Indexes: []string{"hotel"},
		Context: merge.Context{
			Text:     "=== HOTELS ===\n1. The Grand\n",
			Items:    []merge.Item{{Key: "hotel:h1", Kind: merge.KindHotel, Score: 0.92, Source: merge.SourceHybrid}},
			Included: 1,
		},
		Diagnostics: []diag.Event{{Kind: diag.KindIndexUnavailable, Component: "search", Message: "index review failed", Err: errors.New("boom")}},
		Duration:    42 * time.Millisecond,
	}
}

func newTestServer(t *testing.T, engine Engine, lister IndexLister) *Server {
	t.Helper()
	srv, err := NewServer(engine, lister, nil)
	require.NoError(t, err)
	return srv
}

// ============================================================================
// Construction
// ============================================================================

func TestNewServer_RequiresEngine(t *testing.T) {
	_, err := NewServer(nil, nil, nil)
	require.Error(t, err)
}

func TestListTools(t *testing.T) {
	srv := newTestServer(t, &MockEngine{}, nil)
	var names []string
	for _, tool := range srv.ListTools() {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description)
	}
	assert.Equal(t, []string{ToolHotelContext, ToolClassify, ToolIndexStatus}, names)
}

// ============================================================================
// hotel_context
// ============================================================================

func TestHotelContext_ReturnsContextAndDiagnostics(t *testing.T) {
	engine := &MockEngine{RunFn: func(context.Context, string) (pipeline.Result, error) {
		return parisResult(), nil
	}}
	srv := newTestServer(t, engine, nil)

	result, err := srv.CallTool(context.Background(), ToolHotelContext, map[string]any{"query": "hotels in Paris"})
	require.NoError(t, err)
	out, ok := result.(HotelContextOutput)
	require.True(t, ok, "got %T", result)

	assert.Equal(t, "req-1", out.RequestID)
	assert.Equal(t, "HotelSearch", out.Intent)
	assert.Contains(t, out.Context, "The Grand")
	assert.Equal(t, int64(42), out.DurationMS)
	require.Len(t, out.Diagnostics, 1)
	assert.Equal(t, "index_unavailable", out.Diagnostics[0].Kind)
	assert.Equal(t, "boom", out.Diagnostics[0].Error)
	assert.Nil(t, out.Items, "items only with explain")
	assert.Nil(t, out.Entities)
}

func TestHotelContext_Explain(t *testing.T) {
	engine := &MockEngine{RunFn: func(context.Context, string) (pipeline.Result, error) {
		return parisResult(), nil
	}}
	srv := newTestServer(t, engine, nil)

	result, err := srv.CallTool(context.Background(), ToolHotelContext, map[string]any{"query": "hotels in Paris", "explain": true})
	require.NoError(t, err)
	out := result.(HotelContextOutput)

	assert.Equal(t, map[string]any{"city": "Paris"}, out.Entities)
	assert.Equal(t, []string{"hotel"}, out.Indexes)
	require.Len(t, out.Items, 1)
	assert.Equal(t, ItemOutput{Key: "hotel:h1", Kind: "hotel", Score: 0.92, Source: "hybrid"}, out.Items[0])
}

func TestHotelContext_EmptyQuery(t *testing.T) {
	engine := &MockEngine{}
	srv := newTestServer(t, engine, nil)

	_, err := srv.CallTool(context.Background(), ToolHotelContext, map[string]any{"query": "  "})
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
	assert.Zero(t, engine.runs.Load())
}

func TestHotelContext_EngineErrorIsMapped(t *testing.T) {
	engine := &MockEngine{RunFn: func(context.Context, string) (pipeline.Result, error) {
		return pipeline.Result{}, herrors.New(herrors.ErrCodeQueryEmpty, "query is empty", nil)
	}}
	srv := newTestServer(t, engine, nil)

	_, err := srv.CallTool(context.Background(), ToolHotelContext, map[string]any{"query": "x"})
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestCallTool_Unknown(t *testing.T) {
	srv := newTestServer(t, &MockEngine{}, nil)
	_, err := srv.CallTool(context.Background(), "search_code", nil)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeMethodNotFound, mcpErr.Code)
}

// ============================================================================
// classify_query
// ============================================================================

func TestClassify(t *testing.T) {
	engine := &MockEngine{ClassifyFn: func(_ context.Context, _ string, sink diag.Sink) pipeline.Classification {
		diag.Report(sink, diag.KindExtractionAmbiguous, "router", "intent in medium tier", nil)
		return pipeline.Classification{
			Intent: router.IntentDecision{Intent: domain.IntentVisaQuestion, Source: domain.SourceHybrid, Confidence: 0.6, Tier: router.TierMedium},
			Entities: router.EntityDecision{
				Entities: domain.Entities{domain.FieldToCountry: {Value: domain.Text("France"), Source: domain.SourceRule, Confidence: 0.9}},
				Source:   domain.SourceRule,
			},
			Matches: []resolve.CandidateMatch{{Raw: "Frnace", Candidate: "France", Ratio: 0.83, Validated: true, Method: resolve.MethodValidated}},
		}
	}}
	srv := newTestServer(t, engine, nil)

	result, err := srv.CallTool(context.Background(), ToolClassify, map[string]any{"query": "visa for Frnace"})
	require.NoError(t, err)
	out := result.(ClassifyOutput)

	assert.Equal(t, "VisaQuestion", out.Intent)
	assert.Equal(t, "hybrid", out.IntentSource)
	assert.Equal(t, "medium", out.Tier)
	assert.Equal(t, map[string]any{"to_country": "France"}, out.Entities)
	require.Len(t, out.Matches, 1)
	assert.Equal(t, "validated", out.Matches[0].Method)
	require.Len(t, out.Diagnostics, 1)
	assert.Equal(t, "extraction_ambiguous", out.Diagnostics[0].Kind)
}

// ============================================================================
// index_status
// ============================================================================

func TestIndexStatus(t *testing.T) {
	srv := newTestServer(t, &MockEngine{}, nil)
	result, err := srv.CallTool(context.Background(), ToolIndexStatus, nil)
	require.NoError(t, err)
	assert.False(t, result.(IndexStatusOutput).Ready)

	srv.SetIndexes(staticLister{
		{Name: "hotel", EntityType: "hotel", Dimensions: 256, Count: 25},
		{Name: "visa", EntityType: "visa", Dimensions: 256},
	})
	result, err = srv.CallTool(context.Background(), ToolIndexStatus, nil)
	require.NoError(t, err)
	out := result.(IndexStatusOutput)
	assert.True(t, out.Ready)
	require.Len(t, out.Indexes, 2)
	assert.Equal(t, 25, out.Indexes[0].Count)
}

// ============================================================================
// Session stats and protocol round trip
// ============================================================================

func TestSessionStats(t *testing.T) {
	s := NewSessionStats()
	s.Observe(parisResult())
	s.Observe(pipeline.Result{Intent: domain.IntentCasualConversation, Context: merge.Context{Text: merge.NoResults}})

	snap := s.Snapshot()
	assert.Equal(t, int64(2), snap.TotalQueries)
	assert.InDelta(t, 50.0, snap.EmptyPct, 1e-9)
	assert.Equal(t, int64(1), snap.Intents["HotelSearch"])
	assert.Equal(t, int64(1), snap.Diagnostics["index_unavailable"])
	assert.Contains(t, snap.Diagnostics, "hydration_failed", "every kind is reported")
}

func TestServer_InMemoryRoundTrip(t *testing.T) {
	engine := &MockEngine{RunFn: func(context.Context, string) (pipeline.Result, error) {
		return parisResult(), nil
	}}
	srv := newTestServer(t, engine, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	ss, err := srv.MCPServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	defer func() { _ = ss.Close() }()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer func() { _ = cs.Close() }()

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      ToolHotelContext,
		Arguments: map[string]any{"query": "hotels in Paris"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "The Grand")

	read, err := cs.ReadResource(ctx, &mcp.ReadResourceParams{URI: DiagnosticsURI})
	require.NoError(t, err)
	require.Len(t, read.Contents, 1)
	var snap DiagnosticsOutput
	require.NoError(t, json.Unmarshal([]byte(read.Contents[0].Text), &snap))
	assert.Equal(t, int64(1), snap.TotalQueries)
}

// ============================================================================
// Errors
// ============================================================================

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"validation", herrors.ValidationError("bad", nil), ErrCodeInvalidParams},
		{"corrupt index", herrors.New(herrors.ErrCodeCorruptIndex, "corrupt", nil), ErrCodeIndexNotFound},
		{"embedding", herrors.New(herrors.ErrCodeEmbeddingFailed, "embed", nil), ErrCodeEmbeddingFailed},
		{"network", herrors.New(herrors.ErrCodeNetworkTimeout, "slow", nil), ErrCodeTimeout},
		{"deadline", context.DeadlineExceeded, ErrCodeTimeout},
		{"sentinel", ErrIndexNotFound, ErrCodeIndexNotFound},
		{"unknown", errors.New("x"), ErrCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, MapError(tt.err).Code)
		})
	}
	assert.Nil(t, MapError(nil))
}

func TestMapError_IncludesSuggestion(t *testing.T) {
	err := herrors.ValidationError("unknown record kind", nil).WithSuggestion("use --type hotel")
	assert.Equal(t, "unknown record kind use --type hotel", MapError(err).Message)
}
