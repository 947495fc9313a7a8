package mcp

// HotelContextInput is the input of the hotel_context tool.
type HotelContextInput struct {
	Query   string `json:"query" jsonschema:"the traveller's question in natural language"`
	Explain bool   `json:"explain,omitempty" jsonschema:"include routing details and ranked items"`
}

// HotelContextOutput is the output of the hotel_context tool.
type HotelContextOutput struct {
	RequestID    string             `json:"request_id"`
	Intent       string             `json:"intent"`
	IntentSource string             `json:"intent_source"`
	Entities     map[string]any     `json:"entities,omitempty"`
	Indexes      []string           `json:"indexes,omitempty"`
	Context      string             `json:"context" jsonschema:"ranked hotel, review and visa facts for answer generation"`
	Included     int                `json:"included"`
	Omitted      int                `json:"omitted"`
	Items        []ItemOutput       `json:"items,omitempty"`
	Diagnostics  []DiagnosticOutput `json:"diagnostics,omitempty"`
	DurationMS   int64              `json:"duration_ms"`
}

// ItemOutput is one ranked item, reported with explain.
type ItemOutput struct {
	Key    string  `json:"key"`
	Kind   string  `json:"kind"`
	Score  float64 `json:"score"`
	Source string  `json:"source" jsonschema:"baseline, embedding or hybrid"`
}

// DiagnosticOutput is one degraded-path event.
type DiagnosticOutput struct {
	Kind      string `json:"kind"`
	Component string `json:"component"`
	Message   string `json:"message"`
	Error     string `json:"error,omitempty"`
}

// ClassifyInput is the input of the classify_query tool.
type ClassifyInput struct {
	Query string `json:"query" jsonschema:"the query to classify"`
}

// ClassifyOutput is the output of the classify_query tool.
type ClassifyOutput struct {
	Intent       string             `json:"intent"`
	IntentSource string             `json:"intent_source"`
	Confidence   float64            `json:"confidence"`
	Tier         string             `json:"tier" jsonschema:"high, medium or low"`
	Entities     map[string]any     `json:"entities,omitempty"`
	EntitySource string             `json:"entity_source"`
	Matches      []MatchOutput      `json:"matches,omitempty"`
	Diagnostics  []DiagnosticOutput `json:"diagnostics,omitempty"`
}

// MatchOutput reports how one raw value was resolved.
type MatchOutput struct {
	Raw       string  `json:"raw"`
	Candidate string  `json:"candidate,omitempty"`
	Ratio     float64 `json:"ratio"`
	Validated bool    `json:"validated"`
	Method    string  `json:"method"`
}

// IndexStatusInput is the input of the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput is the output of the index_status tool.
type IndexStatusOutput struct {
	Ready   bool          `json:"ready"`
	Indexes []IndexOutput `json:"indexes"`
}

// IndexOutput describes one vector index.
type IndexOutput struct {
	Name       string `json:"name"`
	EntityType string `json:"entity_type"`
	Dimensions int    `json:"dimensions"`
	Count      int    `json:"count"`
}
