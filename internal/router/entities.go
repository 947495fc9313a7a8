package router

import (
	"context"
	"log/slog"
	"math"

	"github.com/Aman-CERP/hotelrag/internal/diag"
	"github.com/Aman-CERP/hotelrag/internal/domain"
	"github.com/Aman-CERP/hotelrag/internal/oracle"
	"github.com/Aman-CERP/hotelrag/internal/patterns"
)

// EntityDecision is the outcome of ExtractEntities.
type EntityDecision struct {
	Entities domain.Entities   `json:"entities"`
	Source   domain.Provenance `json:"source"`
	// Confidence is the lowest rule field confidence, 0 with no rule fields.
	Confidence float64 `json:"confidence"`
	Tier       Tier    `json:"tier"`
}

// ExtractEntities routes entity extraction for query under intent.
//
// The default limit is added after routing and never affects the tier.
func (r *Router) ExtractEntities(ctx context.Context, query string, intent domain.Intent, sink diag.Sink) EntityDecision {
	th := r.opts.Thresholds
	strategy := r.registry.Lookup(intent)
	fields := strategy.Fields()

	if len(fields) == 0 {
		return EntityDecision{Entities: domain.Entities{}, Source: domain.SourceRule, Tier: TierHigh}
	}

	rules := patterns.Resolve(strategy.Extract(query), th.Boost).Restrict(intent)
	conf := rules.MinConfidence()
	tier := th.Tier(conf)
	ents := rules

	switch tier {
	case TierMedium:
		diag.Report(sink, diag.KindExtractionAmbiguous, "router", "entities in medium tier", nil)
		if found, err := r.askEntities(ctx, query, intent, strategy, rules); err != nil {
			r.reportOracle(ctx, sink, "entities", err)
		} else {
			ents = mergeOracle(rules, found, th.High)
		}
	case TierLow:
		if found, err := r.askEntities(ctx, query, intent, strategy, nil); err != nil {
			r.reportOracle(ctx, sink, "entities", err)
		} else {
			ents = mergeOracle(rules, found, th.High)
		}
	}

	d := EntityDecision{Entities: ents, Source: overallSource(ents), Confidence: conf, Tier: tier}
	applyDefaultLimit(intent, d.Entities)

	r.logger.DebugContext(ctx, "entities_routed",
		slog.String("intent", string(intent)),
		slog.String("source", string(d.Source)),
		slog.String("tier", tier.String()),
		slog.Int("fields", len(d.Entities)),
		slog.Float64("confidence", conf))
	return d
}

// askEntities asks the oracle for a JSON object of field values. Keys outside
// the intent schema, nulls and placeholders are dropped.
func (r *Router) askEntities(ctx context.Context, query string, intent domain.Intent, s Strategy, hint domain.Entities) (map[domain.Field]domain.Value, error) {
	var raw map[string]any
	req := oracle.Request{
		System:    entitySystem,
		Prompt:    entityPrompt(query, s.Fields(), hint, s.Guidance()),
		MaxTokens: r.opts.MaxTokens,
	}
	if err := oracle.AskJSON(ctx, r.oracle, req, r.opts.RecoveryMaxTokens, &raw, r.logger); err != nil {
		return nil, err
	}

	out := make(map[domain.Field]domain.Value, len(raw))
	for k, v := range raw {
		f, ok := domain.ParseField(k)
		if !ok || !domain.InSchema(intent, f) {
			continue
		}
		val, err := domain.ParseValue(f, v)
		if err != nil {
			continue
		}
		out[f] = val
	}
	return out, nil
}

// mergeOracle lays oracle values over rule entities. Agreement keeps the
// better confidence and marks the field hybrid.
func mergeOracle(rules domain.Entities, found map[domain.Field]domain.Value, oracleConf float64) domain.Entities {
	out := rules.Clone()
	for f, v := range found {
		if prev, ok := out[f]; ok && prev.Value.Equal(v) {
			out[f] = domain.Entity{Value: prev.Value, Source: domain.SourceHybrid, Confidence: math.Max(prev.Confidence, oracleConf)}
			continue
		}
		out[f] = domain.Entity{Value: v, Source: domain.SourceOracle, Confidence: oracleConf}
	}
	return out
}

func overallSource(ents domain.Entities) domain.Provenance {
	var rule, orc bool
	for _, e := range ents {
		switch e.Source {
		case domain.SourceRule:
			rule = true
		case domain.SourceOracle:
			orc = true
		case domain.SourceHybrid:
			return domain.SourceHybrid
		}
	}
	switch {
	case rule && orc:
		return domain.SourceHybrid
	case orc:
		return domain.SourceOracle
	default:
		return domain.SourceRule
	}
}

func applyDefaultLimit(intent domain.Intent, ents domain.Entities) {
	if !domain.InSchema(intent, domain.FieldLimit) || ents.Has(domain.FieldLimit) {
		return
	}
	ents[domain.FieldLimit] = domain.Entity{
		Value:      domain.Number(domain.DefaultLimit),
		Source:     domain.SourceRule,
		Confidence: 1,
	}
}
