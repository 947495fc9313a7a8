package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/hotelrag/internal/diag"
	"github.com/Aman-CERP/hotelrag/internal/pipeline"
	"github.com/Aman-CERP/hotelrag/internal/vector"
	"github.com/Aman-CERP/hotelrag/pkg/version"
)

// Engine answers and classifies queries. *pipeline.Pipeline implements it.
type Engine interface {
	Run(ctx context.Context, query string) (pipeline.Result, error)
	Classify(ctx context.Context, query string, sink diag.Sink) pipeline.Classification
}

// IndexLister reports the loaded vector indexes. *vector.Catalog implements
// it.
type IndexLister interface {
	Descriptors() []vector.Descriptor
}

// Tool names.
const (
	ToolHotelContext = "hotel_context"
	ToolClassify     = "classify_query"
	ToolIndexStatus  = "index_status"
)

// Server bridges MCP clients with the hotel context engine.
type Server struct {
	mcp     *mcp.Server
	engine  Engine
	indexes IndexLister
	stats   *SessionStats
	logger  *slog.Logger

	mu sync.RWMutex
}

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name:        ToolHotelContext,
		Description: "Retrieve ranked hotel, review and visa facts for a traveller's question. Returns a bounded context block ready to ground an answer, plus any degraded-path diagnostics.",
	},
	{
		Name:        ToolClassify,
		Description: "Classify a travel question into an intent and extract normalized entities (city, country, traveller type, score thresholds) without retrieving anything.",
	},
	{
		Name:        ToolIndexStatus,
		Description: "List the loaded vector indexes with their record counts. Use to check that data has been ingested.",
	},
}

// NewServer returns a server over engine. indexes may be nil.
func NewServer(engine Engine, indexes IndexLister, logger *slog.Logger) (*Server, error) {
	if engine == nil {
		return nil, errors.New("engine is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		engine:  engine,
		indexes: indexes,
		stats:   NewSessionStats(),
		logger:  logger.With("component", "mcp"),
	}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{Name: version.Name, Version: version.Version},
		nil,
	)
	s.registerTools()
	s.registerDiagnosticsResource()
	return s, nil
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Stats returns the session counters.
func (s *Server) Stats() *SessionStats {
	return s.stats
}

// ListTools returns the registered tools.
func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(tools))
	copy(out, tools)
	return out
}

// CallTool invokes a tool by name, decoding args into its input type.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case ToolHotelContext:
		var in HotelContextInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		return s.hotelContext(ctx, in)
	case ToolClassify:
		var in ClassifyInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		return s.classify(ctx, in)
	case ToolIndexStatus:
		return s.indexStatus(), nil
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func decodeArgs(args map[string]any, dst any) error {
	b, err := json.Marshal(args)
	if err != nil {
		return NewInvalidParamsError(err.Error())
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return NewInvalidParamsError(err.Error())
	}
	return nil
}

func (s *Server) hotelContext(ctx context.Context, in HotelContextInput) (HotelContextOutput, error) {
	if strings.TrimSpace(in.Query) == "" {
		return HotelContextOutput{}, NewInvalidParamsError("query parameter is required")
	}

	res, err := s.engine.Run(ctx, in.Query)
	if err != nil {
		return HotelContextOutput{}, MapError(err)
	}
	s.stats.Observe(res)

	out := HotelContextOutput{
		RequestID:    res.RequestID,
		Intent:       string(res.Intent),
		IntentSource: string(res.IntentSource),
		Context:      res.Context.Text,
		Included:     res.Context.Included,
		Omitted:      res.Context.Omitted,
		Diagnostics:  diagnostics(res.Diagnostics),
		DurationMS:   res.Duration.Milliseconds(),
	}
	if in.Explain {
		out.Entities = res.Entities.Params()
		out.Indexes = res.Indexes
		for _, it := range res.Context.Items {
			out.Items = append(out.Items, ItemOutput{
				Key:    it.Key,
				Kind:   string(it.Kind),
				Score:  it.Score,
				Source: string(it.Source),
			})
		}
	}
	return out, nil
}

func (s *Server) classify(ctx context.Context, in ClassifyInput) (ClassifyOutput, error) {
	if strings.TrimSpace(in.Query) == "" {
		return ClassifyOutput{}, NewInvalidParamsError("query parameter is required")
	}
	rec := diag.NewRecorder()
	c := s.engine.Classify(ctx, in.Query, diag.Multi(rec, diag.NewLogSink(s.logger)))

	out := ClassifyOutput{
		Intent:       string(c.Intent.Intent),
		IntentSource: string(c.Intent.Source),
		Confidence:   c.Intent.Confidence,
		Tier:         c.Intent.Tier.String(),
		Entities:     c.Entities.Entities.Params(),
		EntitySource: string(c.Entities.Source),
		Diagnostics:  diagnostics(rec.Events()),
	}
	for _, m := range c.Matches {
		out.Matches = append(out.Matches, MatchOutput{
			Raw:       m.Raw,
			Candidate: m.Candidate,
			Ratio:     m.Ratio,
			Validated: m.Validated,
			Method:    string(m.Method),
		})
	}
	return out, nil
}

func (s *Server) indexStatus() IndexStatusOutput {
	s.mu.RLock()
	lister := s.indexes
	s.mu.RUnlock()

	out := IndexStatusOutput{Indexes: []IndexOutput{}}
	if lister == nil {
		return out
	}
	for _, d := range lister.Descriptors() {
		out.Indexes = append(out.Indexes, IndexOutput{
			Name:       d.Name,
			EntityType: d.EntityType,
			Dimensions: d.Dimensions,
			Count:      d.Count,
		})
		if d.Count > 0 {
			out.Ready = true
		}
	}
	return out
}

// SetIndexes swaps the index lister, for example after a reload.
func (s *Server) SetIndexes(indexes IndexLister) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexes = indexes
}

func diagnostics(events []diag.Event) []DiagnosticOutput {
	if len(events) == 0 {
		return nil
	}
	out := make([]DiagnosticOutput, 0, len(events))
	for _, e := range events {
		out = append(out, DiagnosticOutput{
			Kind:      string(e.Kind),
			Component: e.Component,
			Message:   e.Message,
			Error:     e.Error(),
		})
	}
	return out
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[0].Name, Description: tools[0].Description},
		func(ctx context.Context, _ *mcp.CallToolRequest, in HotelContextInput) (*mcp.CallToolResult, HotelContextOutput, error) {
			out, err := s.hotelContext(ctx, in)
			if err != nil {
				return nil, HotelContextOutput{}, err
			}
			return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: out.Context}}}, out, nil
		})
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[1].Name, Description: tools[1].Description},
		func(ctx context.Context, _ *mcp.CallToolRequest, in ClassifyInput) (*mcp.CallToolResult, ClassifyOutput, error) {
			out, err := s.classify(ctx, in)
			return nil, out, err
		})
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[2].Name, Description: tools[2].Description},
		func(_ context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (*mcp.CallToolResult, IndexStatusOutput, error) {
			return nil, s.indexStatus(), nil
		})
	s.logger.Debug("mcp_tools_registered", slog.Int("count", len(tools)))
}

// Serve runs the server over transport until ctx is done.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("mcp_server_stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}
