package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Aman-CERP/hotelrag/internal/errors"
)

// Config selects and tunes a provider.
type Config struct {
	Provider    string
	Model       string
	BaseURL     string
	APIKeyEnv   string
	Temperature float64
	MaxTokens   int

	Timeout         time.Duration
	MaxRetries      int
	CircuitFailures int
	CircuitReset    time.Duration
}

// New builds the configured provider wrapped in Resilient.
// Provider "none" yields a Disabled oracle, also wrapped, so callers see the
// same error shape either way.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Oracle, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	apiKey := ""
	if cfg.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.APIKeyEnv)
	}
	temp := float32(cfg.Temperature)

	var inner Oracle
	switch provider {
	case "", "none":
		inner = Disabled{}
	case "openai":
		if apiKey == "" && cfg.BaseURL == "" {
			return nil, errors.ConfigError("openai oracle needs an API key", nil).
				WithSuggestion(fmt.Sprintf("export %s=...", cfg.APIKeyEnv))
		}
		inner = NewOpenAI(apiKey, cfg.Model, cfg.BaseURL, temp, cfg.MaxTokens)
	case "anthropic":
		if apiKey == "" {
			return nil, errors.ConfigError("anthropic oracle needs an API key", nil).
				WithSuggestion(fmt.Sprintf("export %s=...", cfg.APIKeyEnv))
		}
		inner = NewAnthropic(apiKey, cfg.Model, cfg.BaseURL, temp, cfg.MaxTokens)
	case "gemini":
		g, err := NewGemini(ctx, apiKey, cfg.Model, temp, cfg.MaxTokens)
		if err != nil {
			return nil, errors.ConfigError("gemini oracle", err)
		}
		inner = g
	case "ollama":
		l, err := NewOllama(cfg.Model, cfg.BaseURL, cfg.Temperature, cfg.MaxTokens)
		if err != nil {
			return nil, errors.ConfigError("ollama oracle", err)
		}
		inner = l
	default:
		return nil, errors.ConfigError(fmt.Sprintf("unknown oracle provider %q", cfg.Provider), nil)
	}

	if provider == "" {
		provider = "none"
	}
	retry := errors.DefaultRetryConfig()
	if cfg.MaxRetries >= 0 {
		retry.MaxRetries = cfg.MaxRetries
	}
	breaker := errors.NewCircuitBreaker("oracle-"+provider,
		errors.WithMaxFailures(cfg.CircuitFailures),
		errors.WithResetTimeout(cfg.CircuitReset))

	return NewResilient(inner, provider,
		WithTimeout(cfg.Timeout),
		WithRetry(retry),
		WithBreaker(breaker),
		WithLogger(logger),
	), nil
}
