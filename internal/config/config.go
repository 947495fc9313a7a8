package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config represents the complete hotelrag configuration.
type Config struct {
	Version    int              `yaml:"version" toml:"version" json:"version"`
	Router     RouterConfig     `yaml:"router" toml:"router" json:"router"`
	Resolver   ResolverConfig   `yaml:"resolver" toml:"resolver" json:"resolver"`
	Search     SearchConfig     `yaml:"search" toml:"search" json:"search"`
	Merge      MergeConfig      `yaml:"merge" toml:"merge" json:"merge"`
	Oracle     OracleConfig     `yaml:"oracle" toml:"oracle" json:"oracle"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" toml:"embeddings" json:"embeddings"`
	Store      StoreConfig      `yaml:"store" toml:"store" json:"store"`
	Reference  ReferenceConfig  `yaml:"reference" toml:"reference" json:"reference"`
	Log        LogConfig        `yaml:"log" toml:"log" json:"log"`
}

// RouterConfig tunes confidence routing for intents and entities.
type RouterConfig struct {
	// HighThreshold and above: the rule result is final.
	HighThreshold float64 `yaml:"high_threshold" toml:"high_threshold" json:"high_threshold"`
	// MediumThreshold and above: the oracle is consulted with the rule hint.
	MediumThreshold float64 `yaml:"medium_threshold" toml:"medium_threshold" json:"medium_threshold"`
	// TieMargin is the top-two score gap below which the top score is penalized.
	TieMargin float64 `yaml:"tie_margin" toml:"tie_margin" json:"tie_margin"`
	// TiePenalty is subtracted from an ambiguous top score.
	TiePenalty float64 `yaml:"tie_penalty" toml:"tie_penalty" json:"tie_penalty"`
	// PenaltyFloor bounds the penalized score from below.
	PenaltyFloor float64 `yaml:"penalty_floor" toml:"penalty_floor" json:"penalty_floor"`
	// MultiMatchBoost rewards agreement between independent rules.
	MultiMatchBoost float64 `yaml:"multi_match_boost" toml:"multi_match_boost" json:"multi_match_boost"`
	// DefaultIntent is used when nothing else yields a valid intent.
	DefaultIntent string `yaml:"default_intent" toml:"default_intent" json:"default_intent"`
}

// ResolverConfig tunes fuzzy resolution.
type ResolverConfig struct {
	AcceptThreshold   float64 `yaml:"accept_threshold" toml:"accept_threshold" json:"accept_threshold"`
	ValidateThreshold float64 `yaml:"validate_threshold" toml:"validate_threshold" json:"validate_threshold"`
	MemoSize          int     `yaml:"memo_size" toml:"memo_size" json:"memo_size"`
}

// FusionWeights splits a fused score between two signals.
type FusionWeights struct {
	Primary   float64 `yaml:"primary" toml:"primary" json:"primary"`
	Secondary float64 `yaml:"secondary" toml:"secondary" json:"secondary"`
}

// SearchConfig tunes multi-index vector search.
type SearchConfig struct {
	Threshold float64 `yaml:"threshold" toml:"threshold" json:"threshold"`
	Limit     int     `yaml:"limit" toml:"limit" json:"limit"`
	// PrimaryIndex anchors multi-index fusion.
	PrimaryIndex string        `yaml:"primary_index" toml:"primary_index" json:"primary_index"`
	Weights      FusionWeights `yaml:"weights" toml:"weights" json:"weights"`
	// IntentWeights overrides Weights for specific intents.
	IntentWeights map[string]FusionWeights `yaml:"intent_weights,omitempty" toml:"intent_weights,omitempty" json:"intent_weights,omitempty"`
	HydrateCache  int                      `yaml:"hydrate_cache" toml:"hydrate_cache" json:"hydrate_cache"`
	Timeout       string                   `yaml:"timeout" toml:"timeout" json:"timeout"`
}

// MergeConfig tunes result merging and the context budget.
type MergeConfig struct {
	TokenBudget      int     `yaml:"token_budget" toml:"token_budget" json:"token_budget"`
	CharsPerToken    int     `yaml:"chars_per_token" toml:"chars_per_token" json:"chars_per_token"`
	StructuredWeight float64 `yaml:"structured_weight" toml:"structured_weight" json:"structured_weight"`
	VectorWeight     float64 `yaml:"vector_weight" toml:"vector_weight" json:"vector_weight"`
	ReviewTextLimit  int     `yaml:"review_text_limit" toml:"review_text_limit" json:"review_text_limit"`
}

// OracleConfig selects and tunes the language-model oracle.
type OracleConfig struct {
	// Provider is openai, anthropic, gemini, ollama, or none.
	Provider  string `yaml:"provider" toml:"provider" json:"provider"`
	Model     string `yaml:"model" toml:"model" json:"model"`
	BaseURL   string `yaml:"base_url,omitempty" toml:"base_url,omitempty" json:"base_url,omitempty"`
	APIKeyEnv string `yaml:"api_key_env,omitempty" toml:"api_key_env,omitempty" json:"api_key_env,omitempty"`

	Temperature       float64 `yaml:"temperature" toml:"temperature" json:"temperature"`
	MaxTokens         int     `yaml:"max_tokens" toml:"max_tokens" json:"max_tokens"`
	RecoveryMaxTokens int     `yaml:"recovery_max_tokens" toml:"recovery_max_tokens" json:"recovery_max_tokens"`
	Timeout           string  `yaml:"timeout" toml:"timeout" json:"timeout"`

	MaxRetries      int    `yaml:"max_retries" toml:"max_retries" json:"max_retries"`
	CircuitFailures int    `yaml:"circuit_failures" toml:"circuit_failures" json:"circuit_failures"`
	CircuitReset    string `yaml:"circuit_reset" toml:"circuit_reset" json:"circuit_reset"`
}

// EmbeddingsConfig selects the query/record embedder.
type EmbeddingsConfig struct {
	// Provider is openai or static.
	Provider   string `yaml:"provider" toml:"provider" json:"provider"`
	Model      string `yaml:"model" toml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" toml:"dimensions" json:"dimensions"`
	BaseURL    string `yaml:"base_url,omitempty" toml:"base_url,omitempty" json:"base_url,omitempty"`
	APIKeyEnv  string `yaml:"api_key_env,omitempty" toml:"api_key_env,omitempty" json:"api_key_env,omitempty"`
	CacheSize  int    `yaml:"cache_size" toml:"cache_size" json:"cache_size"`
	BatchSize  int    `yaml:"batch_size" toml:"batch_size" json:"batch_size"`
	Workers    int    `yaml:"workers" toml:"workers" json:"workers"`
}

// StoreConfig locates on-disk data and optional graph backends.
type StoreConfig struct {
	DataDir    string `yaml:"data_dir" toml:"data_dir" json:"data_dir"`
	SQLitePath string `yaml:"sqlite_path,omitempty" toml:"sqlite_path,omitempty" json:"sqlite_path,omitempty"`
	BlevePath  string `yaml:"bleve_path,omitempty" toml:"bleve_path,omitempty" json:"bleve_path,omitempty"`
	// Neo4jURI enables the graph executor and fetcher when set.
	Neo4jURI         string `yaml:"neo4j_uri,omitempty" toml:"neo4j_uri,omitempty" json:"neo4j_uri,omitempty"`
	Neo4jUser        string `yaml:"neo4j_user,omitempty" toml:"neo4j_user,omitempty" json:"neo4j_user,omitempty"`
	Neo4jPasswordEnv string `yaml:"neo4j_password_env,omitempty" toml:"neo4j_password_env,omitempty" json:"neo4j_password_env,omitempty"`
}

// ReferenceConfig points at user-supplied reference data.
type ReferenceConfig struct {
	// Path overrides the embedded reference file.
	Path string `yaml:"path,omitempty" toml:"path,omitempty" json:"path,omitempty"`
	// Watch reloads Path on change while serving.
	Watch bool `yaml:"watch" toml:"watch" json:"watch"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level     string `yaml:"level" toml:"level" json:"level"`
	MaxSizeMB int    `yaml:"max_size_mb" toml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" toml:"max_files" json:"max_files"`
}

// NewConfig returns a configuration with defaults applied.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Router: RouterConfig{
			HighThreshold:   0.9,
			MediumThreshold: 0.5,
			TieMargin:       0.3,
			TiePenalty:      0.3,
			PenaltyFloor:    0.3,
			MultiMatchBoost: 0.1,
			DefaultIntent:   "GeneralQuestionAnswering",
		},
		Resolver: ResolverConfig{
			AcceptThreshold:   0.95,
			ValidateThreshold: 0.70,
			MemoSize:          1000,
		},
		Search: SearchConfig{
			Threshold:    0.7,
			Limit:        10,
			PrimaryIndex: "hotel",
			Weights:      FusionWeights{Primary: 0.6, Secondary: 0.4},
			HydrateCache: 1000,
			Timeout:      "5s",
		},
		Merge: MergeConfig{
			TokenBudget:      2500,
			CharsPerToken:    4,
			StructuredWeight: 0.6,
			VectorWeight:     0.4,
			ReviewTextLimit:  200,
		},
		Oracle: OracleConfig{
			Provider:          "none",
			Model:             "gpt-4o-mini",
			APIKeyEnv:         "OPENAI_API_KEY",
			Temperature:       0,
			MaxTokens:         256,
			RecoveryMaxTokens: 512,
			Timeout:           "10s",
			MaxRetries:        2,
			CircuitFailures:   5,
			CircuitReset:      "30s",
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "static",
			Model:      "text-embedding-3-small",
			Dimensions: 256,
			APIKeyEnv:  "OPENAI_API_KEY",
			CacheSize:  1000,
			BatchSize:  32,
			Workers:    4,
		},
		Store: StoreConfig{
			DataDir:          defaultDataDir(),
			Neo4jUser:        "neo4j",
			Neo4jPasswordEnv: "NEO4J_PASSWORD",
		},
		Log: LogConfig{
			Level:     "warn",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".hotelrag", "data")
	}
	return filepath.Join(home, ".hotelrag", "data")
}

// GetUserConfigPath returns the user configuration file path, honouring
// $XDG_CONFIG_HOME and defaulting to ~/.config/hotelrag/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "hotelrag", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "hotelrag", "config.yaml")
	}
	return filepath.Join(home, ".config", "hotelrag", "config.yaml")
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load loads configuration for dir in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/hotelrag/config.yaml)
//  3. Project config (.hotelrag.yaml, .hotelrag.yml or .hotelrag.toml in dir)
//  4. Environment variables (HOTELRAG_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if dir != "" {
		if err := cfg.loadProject(dir); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()
	cfg.Store.DataDir = expandHome(cfg.Store.DataDir)
	cfg.Reference.Path = expandHome(cfg.Reference.Path)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ProjectConfigNames lists project config file names in lookup order.
var ProjectConfigNames = []string{".hotelrag.yaml", ".hotelrag.yml", ".hotelrag.toml"}

func (c *Config) loadProject(dir string) error {
	for _, name := range ProjectConfigNames {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return c.loadFile(path)
		}
	}
	return nil
}

// loadFile decodes path over c. Keys absent from the file keep their current values.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	return nil
}

// applyEnvOverrides applies HOTELRAG_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	floatEnv("HOTELRAG_HIGH_THRESHOLD", &c.Router.HighThreshold)
	floatEnv("HOTELRAG_MEDIUM_THRESHOLD", &c.Router.MediumThreshold)
	floatEnv("HOTELRAG_SEARCH_THRESHOLD", &c.Search.Threshold)
	intEnv("HOTELRAG_SEARCH_LIMIT", &c.Search.Limit)
	intEnv("HOTELRAG_TOKEN_BUDGET", &c.Merge.TokenBudget)

	if v := os.Getenv("HOTELRAG_ORACLE_PROVIDER"); v != "" {
		c.Oracle.Provider = v
	}
	if v := os.Getenv("HOTELRAG_ORACLE_MODEL"); v != "" {
		c.Oracle.Model = v
	}
	if v := os.Getenv("HOTELRAG_ORACLE_BASE_URL"); v != "" {
		c.Oracle.BaseURL = v
	}
	if v := os.Getenv("HOTELRAG_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("HOTELRAG_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	intEnv("HOTELRAG_EMBEDDINGS_DIMENSIONS", &c.Embeddings.Dimensions)
	if v := os.Getenv("HOTELRAG_DATA_DIR"); v != "" {
		c.Store.DataDir = v
	}
	if v := os.Getenv("HOTELRAG_NEO4J_URI"); v != "" {
		c.Store.Neo4jURI = v
	}
	if v := os.Getenv("HOTELRAG_REFERENCE_PATH"); v != "" {
		c.Reference.Path = v
	}
	if v := os.Getenv("HOTELRAG_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

func floatEnv(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			*dst = f
		}
	}
}

func intEnv(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

var (
	validOracleProviders   = []string{"openai", "anthropic", "gemini", "ollama", "none"}
	validEmbedderProviders = []string{"openai", "ollama", "static"}
	validLogLevels         = []string{"debug", "info", "warn", "error"}
)

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	r := c.Router
	if err := unit("router.high_threshold", r.HighThreshold); err != nil {
		return err
	}
	if err := unit("router.medium_threshold", r.MediumThreshold); err != nil {
		return err
	}
	if r.MediumThreshold > r.HighThreshold {
		return fmt.Errorf("router.medium_threshold (%.2f) must not exceed router.high_threshold (%.2f)", r.MediumThreshold, r.HighThreshold)
	}
	for name, v := range map[string]float64{
		"router.tie_margin":        r.TieMargin,
		"router.tie_penalty":       r.TiePenalty,
		"router.penalty_floor":     r.PenaltyFloor,
		"router.multi_match_boost": r.MultiMatchBoost,
	} {
		if err := unit(name, v); err != nil {
			return err
		}
	}

	rs := c.Resolver
	if err := unit("resolver.accept_threshold", rs.AcceptThreshold); err != nil {
		return err
	}
	if err := unit("resolver.validate_threshold", rs.ValidateThreshold); err != nil {
		return err
	}
	if rs.ValidateThreshold > rs.AcceptThreshold {
		return fmt.Errorf("resolver.validate_threshold (%.2f) must not exceed resolver.accept_threshold (%.2f)", rs.ValidateThreshold, rs.AcceptThreshold)
	}
	if rs.MemoSize <= 0 {
		return fmt.Errorf("resolver.memo_size must be positive, got %d", rs.MemoSize)
	}

	s := c.Search
	if err := unit("search.threshold", s.Threshold); err != nil {
		return err
	}
	if s.Limit <= 0 {
		return fmt.Errorf("search.limit must be positive, got %d", s.Limit)
	}
	if s.PrimaryIndex == "" {
		return fmt.Errorf("search.primary_index must not be empty")
	}
	if err := weights("search.weights", s.Weights.Primary, s.Weights.Secondary); err != nil {
		return err
	}
	for intent, w := range s.IntentWeights {
		if err := weights("search.intent_weights."+intent, w.Primary, w.Secondary); err != nil {
			return err
		}
	}
	if _, err := time.ParseDuration(s.Timeout); err != nil {
		return fmt.Errorf("search.timeout: %w", err)
	}

	m := c.Merge
	if m.TokenBudget <= 0 || m.CharsPerToken <= 0 {
		return fmt.Errorf("merge.token_budget and merge.chars_per_token must be positive")
	}
	if err := weights("merge", m.StructuredWeight, m.VectorWeight); err != nil {
		return err
	}

	o := c.Oracle
	if !oneOf(o.Provider, validOracleProviders) {
		return fmt.Errorf("oracle.provider must be one of %s, got %q", strings.Join(validOracleProviders, ", "), o.Provider)
	}
	if o.MaxTokens <= 0 || o.RecoveryMaxTokens < o.MaxTokens {
		return fmt.Errorf("oracle.recovery_max_tokens (%d) must be at least oracle.max_tokens (%d) and both positive", o.RecoveryMaxTokens, o.MaxTokens)
	}
	if _, err := time.ParseDuration(o.Timeout); err != nil {
		return fmt.Errorf("oracle.timeout: %w", err)
	}
	if _, err := time.ParseDuration(o.CircuitReset); err != nil {
		return fmt.Errorf("oracle.circuit_reset: %w", err)
	}

	if !oneOf(c.Embeddings.Provider, validEmbedderProviders) {
		return fmt.Errorf("embeddings.provider must be one of %s, got %q", strings.Join(validEmbedderProviders, ", "), c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}

	if !oneOf(c.Log.Level, validLogLevels) {
		return fmt.Errorf("log.level must be one of %s, got %q", strings.Join(validLogLevels, ", "), c.Log.Level)
	}
	return nil
}

func unit(name string, v float64) error {
	if v < 0 || v > 1 || math.IsNaN(v) {
		return fmt.Errorf("%s must be between 0 and 1, got %f", name, v)
	}
	return nil
}

func weights(name string, a, b float64) error {
	if err := unit(name+".primary", a); err != nil {
		return err
	}
	if err := unit(name+".secondary", b); err != nil {
		return err
	}
	if math.Abs(a+b-1.0) > 0.01 {
		return fmt.Errorf("%s weights must sum to 1.0, got %.2f", name, a+b)
	}
	return nil
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return true
		}
	}
	return false
}

// SearchTimeout returns the per-call search timeout.
func (c *Config) SearchTimeout() time.Duration { return mustDuration(c.Search.Timeout, 5*time.Second) }

// OracleTimeout returns the per-call oracle timeout.
func (c *Config) OracleTimeout() time.Duration { return mustDuration(c.Oracle.Timeout, 10*time.Second) }

// CircuitReset returns the oracle circuit-breaker reset timeout.
func (c *Config) CircuitReset() time.Duration { return mustDuration(c.Oracle.CircuitReset, 30*time.Second) }

func mustDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Path helpers resolve store locations under DataDir.

// SQLitePath returns the record store path.
func (c *Config) SQLitePath() string {
	if c.Store.SQLitePath != "" {
		return c.Store.SQLitePath
	}
	return filepath.Join(c.Store.DataDir, "records.db")
}

// BlevePath returns the structured catalog path.
func (c *Config) BlevePath() string {
	if c.Store.BlevePath != "" {
		return c.Store.BlevePath
	}
	return filepath.Join(c.Store.DataDir, "catalog.bleve")
}

// IndexDir returns the directory holding vector index files.
func (c *Config) IndexDir() string {
	return filepath.Join(c.Store.DataDir, "indexes")
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
