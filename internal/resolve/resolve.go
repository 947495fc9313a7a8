// Package resolve maps free-text entity values onto the closed reference
// domains, correcting typos with help from the oracle when a match is close
// but not certain.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/Aman-CERP/hotelrag/internal/diag"
	"github.com/Aman-CERP/hotelrag/internal/domain"
	"github.com/Aman-CERP/hotelrag/internal/oracle"
	"github.com/Aman-CERP/hotelrag/internal/patterns"
)

// Method names how a value was resolved.
type Method string

const (
	MethodExact       Method = "exact"
	MethodAlias       Method = "alias"
	MethodContainment Method = "containment"
	MethodSimilar     Method = "similar"
	MethodValidated   Method = "validated"
	MethodRejected    Method = "rejected"
	MethodUnmatched   Method = "unmatched"
)

// minContainment is the shortest raw value tried for containment, so that
// short fragments do not land inside longer names.
const minContainment = 3

// CandidateMatch records how a raw value was resolved.
type CandidateMatch struct {
	Raw       string  `json:"raw"`
	Candidate string  `json:"candidate,omitempty"`
	Ratio     float64 `json:"ratio"`
	Validated bool    `json:"validated"`
	Method    Method  `json:"method"`
}

// Options configure a Resolver.
type Options struct {
	// Accept is the ratio at or above which the best candidate is taken.
	Accept float64
	// Validate is the ratio at or above which the oracle is asked.
	Validate float64
	// MemoSize bounds the typo-answer cache.
	MemoSize int
	Logger   *slog.Logger
}

// DefaultOptions returns the stock resolver options.
func DefaultOptions() Options {
	return Options{Accept: 0.95, Validate: 0.70, MemoSize: 1000}
}

// Resolver normalizes values against reference domains. It is safe for
// concurrent use.
type Resolver struct {
	ref    domain.Lookup
	oracle oracle.Oracle
	opts   Options
	memo   *lru.Cache[string, bool]
	logger *slog.Logger
}

// New returns a Resolver. A nil oracle rejects every typo candidate.
func New(ref domain.Lookup, o oracle.Oracle, opts Options) (*Resolver, error) {
	if o == nil {
		o = oracle.Disabled{}
	}
	if opts.MemoSize <= 0 {
		opts.MemoSize = DefaultOptions().MemoSize
	}
	memo, err := lru.New[string, bool](opts.MemoSize)
	if err != nil {
		return nil, fmt.Errorf("create typo memo: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		ref:    ref,
		oracle: o,
		opts:   opts,
		memo:   memo,
		logger: logger.With("component", "resolve"),
	}, nil
}

// Normalize returns the canonical value for raw in domain d.
//
// Order: exact match, alias, containment, then the best similarity ratio.
// Close-but-uncertain candidates are confirmed by the oracle. Anything
// unresolved comes back title-cased.
func (r *Resolver) Normalize(ctx context.Context, raw string, d domain.Domain, sink diag.Sink) (string, CandidateMatch) {
	m := CandidateMatch{Raw: raw}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		m.Method = MethodUnmatched
		return "", m
	}
	folded := patterns.Fold(trimmed)
	values := r.ref.Values(d)

	for _, v := range values {
		if patterns.Fold(v) == folded {
			return r.hit(m, v, 1, MethodExact)
		}
	}

	if v, ok := r.ref.Alias(d, folded); ok {
		return r.hit(m, v, 1, MethodAlias)
	}

	if len([]rune(folded)) >= minContainment {
		best, bestRatio := "", -1.0
		for _, v := range values {
			fv := patterns.Fold(v)
			if !strings.Contains(fv, folded) && !strings.Contains(folded, fv) {
				continue
			}
			if ratio := Ratio(folded, fv); ratio > bestRatio {
				best, bestRatio = v, ratio
			}
		}
		if best != "" {
			return r.hit(m, best, bestRatio, MethodContainment)
		}
	}

	best, bestRatio := "", 0.0
	for _, v := range values {
		if ratio := Ratio(folded, patterns.Fold(v)); ratio > bestRatio {
			best, bestRatio = v, ratio
		}
	}
	m.Candidate, m.Ratio = best, bestRatio

	switch {
	case best != "" && bestRatio >= r.opts.Accept:
		return r.hit(m, best, bestRatio, MethodSimilar)
	case best != "" && bestRatio >= r.opts.Validate:
		if r.confirm(ctx, trimmed, best, sink) {
			m.Validated = true
			return r.hit(m, best, bestRatio, MethodValidated)
		}
		m.Method = MethodRejected
	default:
		m.Method = MethodUnmatched
	}

	out := cases.Title(language.Und).String(trimmed)
	r.logger.DebugContext(ctx, "value_unresolved",
		slog.String("domain", string(d)),
		slog.String("raw", raw),
		slog.String("candidate", best),
		slog.Float64("ratio", bestRatio))
	return out, m
}

func (r *Resolver) hit(m CandidateMatch, v string, ratio float64, method Method) (string, CandidateMatch) {
	m.Candidate, m.Ratio, m.Method = v, ratio, method
	return v, m
}

// confirm asks the oracle whether raw is a typo of candidate. Answers are
// memoized; failures are not, and count as rejection.
func (r *Resolver) confirm(ctx context.Context, raw, candidate string, sink diag.Sink) bool {
	key := patterns.Fold(raw) + "\x00" + candidate
	if ok, cached := r.memo.Get(key); cached {
		return ok
	}

	text, err := r.oracle.Ask(ctx, oracle.Request{
		System:    "Answer with yes or no only.",
		Prompt:    fmt.Sprintf("Is %q a typo of %q?", raw, candidate),
		MaxTokens: 5,
	})
	if err != nil {
		if !oracle.IsDisabled(err) {
			r.logger.WarnContext(ctx, "typo_check_failed",
				slog.String("raw", raw),
				slog.String("candidate", candidate),
				slog.String("error", err.Error()))
			diag.Report(sink, diag.KindFor(err, diag.KindOracleUnavailable), "resolve",
				"typo check failed for "+raw, err)
		}
		return false
	}

	ok := strings.Contains(strings.ToLower(text), "yes")
	r.memo.Add(key, ok)
	r.logger.DebugContext(ctx, "typo_checked",
		slog.String("raw", raw),
		slog.String("candidate", candidate),
		slog.Bool("confirmed", ok))
	return ok
}

// NormalizeEntities resolves every text entity whose field has a reference
// domain. Provenance and confidence are kept.
func (r *Resolver) NormalizeEntities(ctx context.Context, ents domain.Entities, sink diag.Sink) (domain.Entities, []CandidateMatch) {
	out := ents.Clone()
	var matches []CandidateMatch
	for _, f := range ents.Keys() {
		d, ok := f.Domain()
		if !ok {
			continue
		}
		e := ents[f]
		raw, ok := e.Value.Text()
		if !ok {
			continue
		}
		v, m := r.Normalize(ctx, raw, d, sink)
		matches = append(matches, m)
		if v == "" {
			delete(out, f)
			continue
		}
		e.Value = domain.Text(v)
		out[f] = e
	}
	return out, matches
}
