package oracle

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/hotelrag/internal/errors"
)

func fastRetry(n int) errors.RetryConfig {
	return errors.RetryConfig{MaxRetries: n, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}

var errFlaky = stderrors.New("flaky")

// =============================================================================
// Resilient
// =============================================================================

func TestResilient_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int64
	inner := Func(func(ctx context.Context, req Request) (string, error) {
		if calls.Add(1) < 3 {
			return "", errFlaky
		}
		return "ok", nil
	})

	r := NewResilient(inner, "fake", WithRetry(fastRetry(2)))
	out, err := r.Ask(context.Background(), Request{Prompt: "p"})

	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int64(3), calls.Load())
	assert.Equal(t, errors.StateClosed, r.Breaker().State())
}

func TestResilient_WrapsFailure(t *testing.T) {
	inner := Func(func(ctx context.Context, req Request) (string, error) { return "", errFlaky })
	r := NewResilient(inner, "fake", WithRetry(fastRetry(1)))

	_, err := r.Ask(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeOracleUnavailable, errors.GetCode(err))
	assert.ErrorIs(t, err, errFlaky)
}

func TestResilient_TimeoutCountsAsFailure(t *testing.T) {
	inner := Func(func(ctx context.Context, req Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	r := NewResilient(inner, "slow", WithRetry(fastRetry(0)), WithTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := r.Ask(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestResilient_BreakerOpensAndFailsFast(t *testing.T) {
	var calls atomic.Int64
	inner := Func(func(ctx context.Context, req Request) (string, error) {
		calls.Add(1)
		return "", errFlaky
	})
	cb := errors.NewCircuitBreaker("test", errors.WithMaxFailures(2), errors.WithResetTimeout(time.Hour))
	r := NewResilient(inner, "fake", WithRetry(fastRetry(0)), WithBreaker(cb))

	for i := 0; i < 2; i++ {
		_, err := r.Ask(context.Background(), Request{})
		require.Error(t, err)
	}
	assert.Equal(t, errors.StateOpen, cb.State())

	_, err := r.Ask(context.Background(), Request{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrCircuitOpen)
	assert.Equal(t, int64(2), calls.Load(), "open breaker must not call the provider")
}

func TestResilient_DisabledIsNotRetried(t *testing.T) {
	var calls atomic.Int64
	inner := Func(func(ctx context.Context, req Request) (string, error) {
		calls.Add(1)
		return Disabled{}.Ask(ctx, req)
	})
	r := NewResilient(inner, "none", WithRetry(fastRetry(3)))

	_, err := r.Ask(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrDisabled)
	assert.Equal(t, int64(1), calls.Load())
}

func TestResilient_DisabledNeverOpensBreaker(t *testing.T) {
	breaker := errors.NewCircuitBreaker("oracle-none", errors.WithMaxFailures(2))
	r := NewResilient(Disabled{}, "none", WithRetry(fastRetry(0)), WithBreaker(breaker))

	for i := 0; i < 5; i++ {
		_, err := r.Ask(context.Background(), Request{})
		require.Error(t, err)
		assert.True(t, IsDisabled(err), "call %d", i)
		assert.NotErrorIs(t, err, errors.ErrCircuitOpen)
	}
	assert.Equal(t, errors.StateClosed, breaker.State())
	assert.Zero(t, breaker.Failures())
}

func TestNew_DisabledStaysDisabled(t *testing.T) {
	o, err := New(context.Background(), Config{Provider: "none", CircuitFailures: 2}, nil)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := o.Ask(context.Background(), Request{})
		assert.True(t, IsDisabled(err), "call %d", i)
	}
}

// =============================================================================
// AskJSON
// =============================================================================

func scripted(replies ...string) (Oracle, *atomic.Int64, *[]Request) {
	var calls atomic.Int64
	var seen []Request
	return Func(func(ctx context.Context, req Request) (string, error) {
		n := calls.Add(1)
		seen = append(seen, req)
		if int(n) > len(replies) {
			return "", errFlaky
		}
		return replies[n-1], nil
	}), &calls, &seen
}

func TestAskJSON(t *testing.T) {
	tests := []struct {
		name      string
		replies   []string
		wantCity  string
		wantCalls int64
		wantCode  string
	}{
		{"clean", []string{`{"city":"Paris"}`}, "Paris", 1, ""},
		{"fenced", []string{"```json\n{\"city\":\"Rome\"}\n```"}, "Rome", 1, ""},
		{"prose around object", []string{`Sure! {"city":"Tokyo"} hope that helps`}, "Tokyo", 1, ""},
		{"retry recovers", []string{`{"city": "Par`, `{"city":"Paris"}`}, "Paris", 2, ""},
		{"gives up", []string{`nope`, `still nope`}, "", 2, errors.ErrCodeOracleMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, calls, seen := scripted(tt.replies...)
			var out struct {
				City string `json:"city"`
			}
			err := AskJSON(context.Background(), o, Request{Prompt: "p", MaxTokens: 100}, 300, &out, nil)

			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, errors.GetCode(err))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantCity, out.City)
			assert.Equal(t, tt.wantCalls, calls.Load())
			assert.True(t, (*seen)[0].JSON)
			if tt.wantCalls == 2 {
				assert.Equal(t, 300, (*seen)[1].MaxTokens)
			}
		})
	}
}

func TestAskJSON_TransportErrorPassesThrough(t *testing.T) {
	o := Func(func(ctx context.Context, req Request) (string, error) { return "", errFlaky })
	var out map[string]any
	err := AskJSON(context.Background(), o, Request{}, 512, &out, nil)
	assert.ErrorIs(t, err, errFlaky)
}

func TestExtractObject(t *testing.T) {
	got, ok := ExtractObject(`x {"a":{"b":1}} y`)
	require.True(t, ok)
	assert.Equal(t, `{"a":{"b":1}}`, got)

	_, ok = ExtractObject("} backwards {")
	assert.False(t, ok)
}

// =============================================================================
// Provider adapters against local HTTP fakes
// =============================================================================

func TestOpenAI_Ask(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"m",
			"choices":[{"index":0,"message":{"role":"assistant","content":"HotelSearch"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	o := NewOpenAI("test-key", "gpt-test", srv.URL+"/v1", 0, 64)
	out, err := o.Ask(context.Background(), Request{System: "classify", Prompt: "hotels in Paris", JSON: true})
	require.NoError(t, err)
	assert.Equal(t, "HotelSearch", out)

	assert.Equal(t, "gpt-test", body["model"])
	assert.EqualValues(t, 64, body["max_tokens"])
	msgs, _ := body["messages"].([]any)
	assert.Len(t, msgs, 2)
	assert.NotNil(t, body["response_format"])
}

func TestAnthropic_Ask(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"m",
			"content":[{"type":"text","text":"yes"}],"stop_reason":"end_turn",
			"usage":{"input_tokens":3,"output_tokens":1}}`))
	}))
	defer srv.Close()

	a := NewAnthropic("test-key", "claude-test", srv.URL+"/v1", 0, 8)
	out, err := a.Ask(context.Background(), Request{Prompt: "Is Paaris a typo of Paris?"})
	require.NoError(t, err)
	assert.Equal(t, "yes", out)
	assert.Equal(t, int64(1), calls.Load())
}

func TestNew_Providers(t *testing.T) {
	o, err := New(context.Background(), Config{Provider: "none"}, nil)
	require.NoError(t, err)
	_, err = o.Ask(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrDisabled)

	_, err = New(context.Background(), Config{Provider: "cohere"}, nil)
	assert.Error(t, err)

	t.Setenv("HOTELRAG_TEST_KEY", "")
	_, err = New(context.Background(), Config{Provider: "anthropic", APIKeyEnv: "HOTELRAG_TEST_KEY"}, nil)
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.GetCode(err))
}
