package embed

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Provider names.
const (
	ProviderStatic = "static"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// DefaultOllamaURL is Ollama's OpenAI-compatible endpoint.
const DefaultOllamaURL = "http://localhost:11434/v1"

// Config selects and sizes an embedder.
type Config struct {
	Provider   string
	Model      string
	Dimensions int
	BaseURL    string
	APIKeyEnv  string
	CacheSize  int
}

// New builds the configured embedder wrapped in a query cache.
func New(cfg Config, logger *slog.Logger) (Embedder, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var inner Embedder
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderStatic:
		inner = NewStaticEmbedder(cfg.Dimensions)
	case ProviderOpenAI:
		keyEnv := cfg.APIKeyEnv
		if keyEnv == "" {
			keyEnv = "OPENAI_API_KEY"
		}
		key := os.Getenv(keyEnv)
		if key == "" {
			return nil, fmt.Errorf("embeddings provider openai: %s is not set", keyEnv)
		}
		inner = NewOpenAIEmbedder(key, cfg.Model, cfg.BaseURL, cfg.Dimensions)
	case ProviderOllama:
		base := cfg.BaseURL
		if base == "" {
			base = DefaultOllamaURL
		}
		inner = NewOpenAIEmbedder("ollama", cfg.Model, base, cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", cfg.Provider)
	}

	logger.Debug("embedder_ready",
		slog.String("provider", cfg.Provider),
		slog.String("model", inner.ModelName()),
		slog.Int("dimensions", inner.Dimensions()))
	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}
