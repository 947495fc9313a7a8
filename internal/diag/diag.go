// Package diag carries per-query diagnostics out of band.
//
// Failures during a query never reach the caller as errors. Components report
// them to a Sink and keep going with the best deterministic result they have.
package diag

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Aman-CERP/hotelrag/internal/errors"
)

// Kind classifies a diagnostic event.
type Kind string

const (
	// KindExtractionAmbiguous marks a medium-confidence routing decision.
	KindExtractionAmbiguous Kind = "extraction_ambiguous"
	// KindOracleUnavailable marks an oracle call that failed or timed out.
	KindOracleUnavailable Kind = "oracle_unavailable"
	// KindMalformedOracleOutput marks oracle output that could not be decoded.
	KindMalformedOracleOutput Kind = "malformed_oracle_output"
	// KindIndexUnavailable marks a vector index that could not be searched.
	KindIndexUnavailable Kind = "index_unavailable"
	// KindNoCandidateAboveThreshold marks a search with no surviving hit.
	KindNoCandidateAboveThreshold Kind = "no_candidate_above_threshold"
	// KindHydrationFailed marks a hit whose record could not be fetched.
	KindHydrationFailed Kind = "hydration_failed"
	// KindExecutorUnavailable marks a failed structured query.
	KindExecutorUnavailable Kind = "executor_unavailable"
	// KindEmbeddingUnavailable marks a query that could not be embedded.
	KindEmbeddingUnavailable Kind = "embedding_unavailable"
)

// AllKinds returns every kind in a stable order.
func AllKinds() []Kind {
	return []Kind{
		KindExtractionAmbiguous,
		KindOracleUnavailable,
		KindMalformedOracleOutput,
		KindIndexUnavailable,
		KindNoCandidateAboveThreshold,
		KindHydrationFailed,
		KindExecutorUnavailable,
		KindEmbeddingUnavailable,
	}
}

// Informational reports whether the kind describes a normal outcome rather
// than a failure.
func (k Kind) Informational() bool {
	return k == KindExtractionAmbiguous || k == KindNoCandidateAboveThreshold
}

// KindFor maps the code of a structured error to the kind that reports it.
// Errors without a known code map to fallback.
func KindFor(err error, fallback Kind) Kind {
	switch errors.GetCode(err) {
	case errors.ErrCodeOracleMalformed:
		return KindMalformedOracleOutput
	case errors.ErrCodeOracleUnavailable:
		return KindOracleUnavailable
	case errors.ErrCodeIndexUnavailable:
		return KindIndexUnavailable
	case errors.ErrCodeHydrationFailed:
		return KindHydrationFailed
	case errors.ErrCodeExecutorFailed:
		return KindExecutorUnavailable
	case errors.ErrCodeEmbeddingFailed:
		return KindEmbeddingUnavailable
	}
	return fallback
}

// Event is one diagnostic.
type Event struct {
	Kind      Kind      `json:"kind"`
	Component string    `json:"component"`
	Message   string    `json:"message"`
	Err       error     `json:"-"`
	At        time.Time `json:"at"`
	RequestID string    `json:"request_id,omitempty"`
}

// Error returns the error text, or "" when the event carries none.
func (e Event) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// Sink receives events. Implementations must be safe for concurrent use.
type Sink interface {
	Report(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Report calls f.
func (f SinkFunc) Report(e Event) { f(e) }

// Nop discards events.
type Nop struct{}

// Report does nothing.
func (Nop) Report(Event) {}

// Report sends an event to sink, stamping the time. A nil sink is allowed.
func Report(sink Sink, kind Kind, component, message string, err error) {
	if sink == nil {
		return
	}
	sink.Report(Event{Kind: kind, Component: component, Message: message, Err: err, At: time.Now()})
}

// Recorder collects events for one run.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Report appends e.
func (r *Recorder) Report(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the collected events in arrival order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Has reports whether an event of kind k was recorded.
func (r *Recorder) Has(k Kind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Kind == k {
			return true
		}
	}
	return false
}

// Counts tallies events by kind.
func (r *Recorder) Counts() map[Kind]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[Kind]int64)
	for _, e := range r.events {
		out[e.Kind]++
	}
	return out
}

// LogSink writes events to a logger. Informational kinds log at debug,
// failures at warn.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a sink over logger, or slog.Default when nil.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Report logs e.
func (s *LogSink) Report(e Event) {
	level := slog.LevelWarn
	if e.Kind.Informational() {
		level = slog.LevelDebug
	}
	attrs := []slog.Attr{
		slog.String("kind", string(e.Kind)),
		slog.String("component", e.Component),
		slog.String("message", e.Message),
	}
	if e.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", e.RequestID))
	}
	if e.Err != nil {
		attrs = append(attrs, slog.String("error", e.Err.Error()))
	}
	s.logger.LogAttrs(context.Background(), level, "diagnostic", attrs...)
}

// Multi fans an event out to several sinks. Nil entries are skipped.
func Multi(sinks ...Sink) Sink {
	var live []Sink
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return multi(live)
}

type multi []Sink

func (m multi) Report(e Event) {
	for _, s := range m {
		s.Report(e)
	}
}

// Tagged stamps every event with a request id before forwarding it.
func Tagged(sink Sink, requestID string) Sink {
	return SinkFunc(func(e Event) {
		if e.RequestID == "" {
			e.RequestID = requestID
		}
		if e.At.IsZero() {
			e.At = time.Now()
		}
		sink.Report(e)
	})
}
