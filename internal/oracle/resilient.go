package oracle

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/Aman-CERP/hotelrag/internal/errors"
)

// DefaultTimeout bounds a single provider call.
const DefaultTimeout = 10 * time.Second

// Resilient decorates an Oracle with a per-call timeout, retry with backoff,
// and a circuit breaker. Failures come back as ERR_601_ORACLE_UNAVAILABLE.
type Resilient struct {
	inner   Oracle
	name    string
	timeout time.Duration
	retry   errors.RetryConfig
	breaker *errors.CircuitBreaker
	logger  *slog.Logger
}

// ResilientOption configures a Resilient oracle.
type ResilientOption func(*Resilient)

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) ResilientOption {
	return func(r *Resilient) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithRetry sets the retry policy.
func WithRetry(cfg errors.RetryConfig) ResilientOption {
	return func(r *Resilient) { r.retry = cfg }
}

// WithBreaker sets the circuit breaker.
func WithBreaker(cb *errors.CircuitBreaker) ResilientOption {
	return func(r *Resilient) {
		if cb != nil {
			r.breaker = cb
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ResilientOption {
	return func(r *Resilient) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewResilient wraps inner. name identifies the provider in errors and logs.
func NewResilient(inner Oracle, name string, opts ...ResilientOption) *Resilient {
	r := &Resilient{
		inner:   inner,
		name:    name,
		timeout: DefaultTimeout,
		retry:   errors.DefaultRetryConfig(),
		logger:  slog.Default().With("component", "oracle"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.breaker == nil {
		r.breaker = errors.NewCircuitBreaker("oracle-" + name)
	}
	return r
}

// Breaker exposes the circuit breaker for status reporting.
func (r *Resilient) Breaker() *errors.CircuitBreaker { return r.breaker }

// Ask implements Oracle. A whole retry sequence counts as one breaker outcome.
func (r *Resilient) Ask(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	attempts := 0

	// A disabled oracle is not a provider fault, so it never reaches the breaker.
	disabled := false
	out, err := errors.Do(r.breaker, func() (string, error) {
		return errors.RetryWithResult(ctx, r.retry, func() (string, error) {
			attempts++
			callCtx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()

			text, err := r.inner.Ask(callCtx, req)
			if stderrors.Is(err, ErrDisabled) {
				disabled = true
				return "", nil
			}
			return text, err
		})
	})
	if err == nil && disabled {
		err = ErrDisabled
	}
	if err != nil {
		r.logger.Debug("oracle_call_failed",
			slog.String("provider", r.name),
			slog.Int("attempts", attempts),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()))
		return "", errors.OracleUnavailable(r.name, err)
	}

	r.logger.Debug("oracle_call",
		slog.String("provider", r.name),
		slog.Int("attempts", attempts),
		slog.Duration("elapsed", time.Since(start)),
		slog.Int("chars", len(out)))
	return out, nil
}
