package mcp

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/hotelrag/internal/diag"
	"github.com/Aman-CERP/hotelrag/internal/merge"
	"github.com/Aman-CERP/hotelrag/internal/pipeline"
)

// DiagnosticsURI is the session diagnostics resource.
const DiagnosticsURI = "hotelrag://diagnostics"

// SessionStats counts queries and diagnostics for the life of the server.
// It is safe for concurrent use.
type SessionStats struct {
	mu      sync.Mutex
	queries int64
	empty   int64
	intents map[string]int64
	kinds   map[diag.Kind]int64
}

// NewSessionStats returns zeroed counters.
func NewSessionStats() *SessionStats {
	return &SessionStats{
		intents: make(map[string]int64),
		kinds:   make(map[diag.Kind]int64),
	}
}

// Observe counts one finished query.
func (s *SessionStats) Observe(res pipeline.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	if res.Context.Text == merge.NoResults {
		s.empty++
	}
	s.intents[string(res.Intent)]++
	for _, e := range res.Diagnostics {
		s.kinds[e.Kind]++
	}
}

// DiagnosticsOutput is the JSON body of the diagnostics resource.
type DiagnosticsOutput struct {
	TotalQueries int64            `json:"total_queries"`
	EmptyPct     float64          `json:"empty_pct"`
	Intents      map[string]int64 `json:"intents"`
	Diagnostics  map[string]int64 `json:"diagnostics"`
}

// Snapshot copies the counters.
func (s *SessionStats) Snapshot() DiagnosticsOutput {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := DiagnosticsOutput{
		TotalQueries: s.queries,
		Intents:      make(map[string]int64, len(s.intents)),
		Diagnostics:  make(map[string]int64, len(diag.AllKinds())),
	}
	if s.queries > 0 {
		out.EmptyPct = float64(s.empty) / float64(s.queries) * 100
	}
	for k, v := range s.intents {
		out.Intents[k] = v
	}
	for _, k := range diag.AllKinds() {
		out.Diagnostics[string(k)] = s.kinds[k]
	}
	return out
}

func (s *Server) registerDiagnosticsResource() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "diagnostics",
			URI:         DiagnosticsURI,
			Description: "Query and degraded-path counters for this session",
			MIMEType:    "application/json",
		},
		s.readDiagnostics,
	)
}

func (s *Server) readDiagnostics(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	content, err := json.MarshalIndent(s.stats.Snapshot(), "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{URI: DiagnosticsURI, MIMEType: "application/json", Text: string(content)},
		},
	}, nil
}
