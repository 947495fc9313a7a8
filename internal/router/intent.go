package router

import (
	"context"
	"log/slog"

	"github.com/Aman-CERP/hotelrag/internal/diag"
	"github.com/Aman-CERP/hotelrag/internal/domain"
	"github.com/Aman-CERP/hotelrag/internal/errors"
	"github.com/Aman-CERP/hotelrag/internal/oracle"
	"github.com/Aman-CERP/hotelrag/internal/patterns"
)

// IntentDecision is the outcome of ClassifyIntent.
type IntentDecision struct {
	Intent domain.Intent     `json:"intent"`
	Source domain.Provenance `json:"source"`
	// Confidence is the rule confidence after the ambiguity penalty.
	Confidence float64                `json:"confidence"`
	Tier       Tier                   `json:"tier"`
	Scores     []patterns.IntentScore `json:"-"`
}

// ClassifyIntent routes query to an intent.
func (r *Router) ClassifyIntent(ctx context.Context, query string, sink diag.Sink) IntentDecision {
	th := r.opts.Thresholds

	if intent, ok := r.matcher.Exact(query); ok {
		r.logger.DebugContext(ctx, "intent_routed",
			slog.String("intent", string(intent)), slog.String("tier", "exact"))
		return IntentDecision{Intent: intent, Source: domain.SourceRule, Confidence: 1, Tier: TierHigh}
	}

	scores := r.matcher.Score(query)
	best := r.opts.DefaultIntent
	var top, second float64
	if len(scores) > 0 {
		best, top = scores[0].Intent, scores[0].Score
	}
	if len(scores) > 1 {
		second = scores[1].Score
	}
	conf := th.Penalize(top, second)
	tier := th.Tier(conf)

	d := IntentDecision{Intent: best, Source: domain.SourceRule, Confidence: conf, Tier: tier, Scores: scores}

	switch tier {
	case TierMedium:
		diag.Report(sink, diag.KindExtractionAmbiguous, "router", "intent in medium tier", nil)
		if got, err := r.askIntent(ctx, query, best); err != nil {
			r.reportOracle(ctx, sink, "intent", err)
		} else if got == best {
			d.Source = domain.SourceHybrid
		} else {
			d.Intent, d.Source = got, domain.SourceOracle
		}
	case TierLow:
		d.Intent = r.opts.DefaultIntent
		if got, err := r.askIntent(ctx, query, ""); err != nil {
			r.reportOracle(ctx, sink, "intent", err)
		} else {
			d.Intent, d.Source = got, domain.SourceOracle
		}
	}

	r.logger.DebugContext(ctx, "intent_routed",
		slog.String("intent", string(d.Intent)),
		slog.String("source", string(d.Source)),
		slog.String("tier", tier.String()),
		slog.Float64("confidence", conf))
	return d
}

// askIntent asks the oracle for an intent. A reply that names no valid
// intent is a malformed-output error.
func (r *Router) askIntent(ctx context.Context, query string, hint domain.Intent) (domain.Intent, error) {
	text, err := r.oracle.Ask(ctx, oracle.Request{
		System:    intentSystem,
		Prompt:    intentPrompt(query, hint),
		MaxTokens: r.opts.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	intent, ok := domain.ParseIntent(text)
	if !ok {
		return "", errors.OracleMalformed("oracle reply names no known intent", nil).
			WithDetail("reply", text)
	}
	return intent, nil
}
