// Package router decides between pattern rules and the oracle.
//
// Rules run first and produce a confidence. High confidence is final. Medium
// confidence asks the oracle with the rule result as a hint, low confidence
// asks it cold. Oracle failures never escape: they are reported to the
// diagnostics sink and the best rule result stands.
package router

import (
	"context"
	"log/slog"

	"github.com/Aman-CERP/hotelrag/internal/diag"
	"github.com/Aman-CERP/hotelrag/internal/domain"
	"github.com/Aman-CERP/hotelrag/internal/oracle"
	"github.com/Aman-CERP/hotelrag/internal/patterns"
)

// Options configure a Router.
type Options struct {
	Thresholds Thresholds
	// DefaultIntent is used when the low tier gets no valid oracle answer.
	DefaultIntent domain.Intent
	// MaxTokens bounds oracle replies; RecoveryMaxTokens is the allowance for
	// the single retry after malformed JSON.
	MaxTokens         int
	RecoveryMaxTokens int
	Logger            *slog.Logger
}

// DefaultOptions returns the stock options.
func DefaultOptions() Options {
	return Options{
		Thresholds:        DefaultThresholds(),
		DefaultIntent:     domain.DefaultIntent,
		MaxTokens:         256,
		RecoveryMaxTokens: 512,
	}
}

// Router classifies intents and extracts entities.
type Router struct {
	matcher  *patterns.IntentMatcher
	registry *Registry
	oracle   oracle.Oracle
	opts     Options
	logger   *slog.Logger
}

// New returns a Router. A nil oracle behaves like oracle.Disabled.
func New(matcher *patterns.IntentMatcher, registry *Registry, o oracle.Oracle, opts Options) *Router {
	if o == nil {
		o = oracle.Disabled{}
	}
	if !opts.DefaultIntent.Valid() {
		opts.DefaultIntent = domain.DefaultIntent
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		matcher:  matcher,
		registry: registry,
		oracle:   o,
		opts:     opts,
		logger:   logger.With("component", "router"),
	}
}

// Registry returns the strategy registry.
func (r *Router) Registry() *Registry { return r.registry }

// reportOracle turns an oracle failure into a diagnostic. A disabled oracle
// is configuration, not a failure, and is only logged.
func (r *Router) reportOracle(ctx context.Context, sink diag.Sink, what string, err error) {
	if oracle.IsDisabled(err) {
		r.logger.DebugContext(ctx, "oracle_disabled", slog.String("stage", what))
		return
	}
	kind := diag.KindFor(err, diag.KindOracleUnavailable)
	r.logger.WarnContext(ctx, "oracle_fallback",
		slog.String("stage", what),
		slog.String("kind", string(kind)),
		slog.String("error", err.Error()))
	diag.Report(sink, kind, "router", what+": falling back to rules", err)
}
