package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Aman-CERP/hotelrag/internal/config"
	"github.com/Aman-CERP/hotelrag/internal/diag"
	"github.com/Aman-CERP/hotelrag/internal/domain"
	"github.com/Aman-CERP/hotelrag/internal/embed"
	"github.com/Aman-CERP/hotelrag/internal/hydrate"
	"github.com/Aman-CERP/hotelrag/internal/logging"
	"github.com/Aman-CERP/hotelrag/internal/merge"
	"github.com/Aman-CERP/hotelrag/internal/oracle"
	"github.com/Aman-CERP/hotelrag/internal/patterns"
	"github.com/Aman-CERP/hotelrag/internal/pipeline"
	"github.com/Aman-CERP/hotelrag/internal/resolve"
	"github.com/Aman-CERP/hotelrag/internal/router"
	"github.com/Aman-CERP/hotelrag/internal/search"
	"github.com/Aman-CERP/hotelrag/internal/structured"
	"github.com/Aman-CERP/hotelrag/internal/vector"
)

// app holds every collaborator built from one configuration.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	reference *domain.Holder
	oracle    oracle.Oracle
	embedder  embed.Embedder
	router    *router.Router
	resolver  *resolve.Resolver
	indexes   *vector.Catalog
	records   *hydrate.SQLiteStore
	catalog   *structured.BleveExecutor
	driver    neo4j.DriverWithContext
	diagStore *diag.SQLiteStore
	pipeline  *pipeline.Pipeline

	closers []func() error
}

// appOptions select the optional parts of an app.
type appOptions struct {
	// retrieval opens the stores and builds the pipeline.
	retrieval bool
}

// loadConfig loads configuration for the --config-dir flag. Outside debug
// mode it also applies the configured log settings.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, err
	}
	if !debugMode {
		lc := logging.DefaultConfig()
		lc.Level = cfg.Log.Level
		lc.MaxSizeMB = cfg.Log.MaxSizeMB
		lc.MaxFiles = cfg.Log.MaxFiles
		logger, cleanup, err := logging.Setup(lc)
		if err != nil {
			return nil, err
		}
		teardown()
		loggingCleanup = cleanup
		slog.SetDefault(logger)
	}
	return cfg, nil
}

// loadReference reads reference data from the configured path, or the
// embedded default.
func loadReference(cfg *config.Config) (*domain.Reference, error) {
	if cfg.Reference.Path != "" {
		return domain.LoadReference(cfg.Reference.Path)
	}
	return domain.DefaultReference()
}

// newOracle builds the configured oracle port.
func newOracle(ctx context.Context, cfg *config.Config, logger *slog.Logger) (oracle.Oracle, error) {
	return oracle.New(ctx, oracle.Config{
		Provider:        cfg.Oracle.Provider,
		Model:           cfg.Oracle.Model,
		BaseURL:         cfg.Oracle.BaseURL,
		APIKeyEnv:       cfg.Oracle.APIKeyEnv,
		Temperature:     cfg.Oracle.Temperature,
		MaxTokens:       cfg.Oracle.MaxTokens,
		Timeout:         cfg.OracleTimeout(),
		MaxRetries:      cfg.Oracle.MaxRetries,
		CircuitFailures: cfg.Oracle.CircuitFailures,
		CircuitReset:    cfg.CircuitReset(),
	}, logger)
}

// newEmbedder builds the configured embedder.
func newEmbedder(cfg *config.Config, logger *slog.Logger) (embed.Embedder, error) {
	return embed.New(embed.Config{
		Provider:   cfg.Embeddings.Provider,
		Model:      cfg.Embeddings.Model,
		Dimensions: cfg.Embeddings.Dimensions,
		BaseURL:    cfg.Embeddings.BaseURL,
		APIKeyEnv:  cfg.Embeddings.APIKeyEnv,
		CacheSize:  cfg.Embeddings.CacheSize,
	}, logger)
}

func routerOptions(cfg *config.Config, logger *slog.Logger) router.Options {
	opts := router.DefaultOptions()
	opts.Thresholds = router.Thresholds{
		High:         cfg.Router.HighThreshold,
		Medium:       cfg.Router.MediumThreshold,
		TieMargin:    cfg.Router.TieMargin,
		TiePenalty:   cfg.Router.TiePenalty,
		PenaltyFloor: cfg.Router.PenaltyFloor,
		Boost:        cfg.Router.MultiMatchBoost,
	}
	if intent, ok := domain.ParseIntent(cfg.Router.DefaultIntent); ok {
		opts.DefaultIntent = intent
	}
	opts.MaxTokens = cfg.Oracle.MaxTokens
	opts.RecoveryMaxTokens = cfg.Oracle.RecoveryMaxTokens
	opts.Logger = logger
	return opts
}

func searchOptions(cfg *config.Config, logger *slog.Logger) search.Options {
	opts := search.DefaultOptions()
	opts.PrimaryIndex = cfg.Search.PrimaryIndex
	opts.Threshold = cfg.Search.Threshold
	opts.Limit = cfg.Search.Limit
	opts.Weights = search.Weights{Primary: cfg.Search.Weights.Primary, Secondary: cfg.Search.Weights.Secondary}
	opts.Timeout = cfg.SearchTimeout()
	opts.Logger = logger
	if len(cfg.Search.IntentWeights) > 0 {
		opts.IntentWeights = make(map[domain.Intent]search.Weights, len(cfg.Search.IntentWeights))
		for name, w := range cfg.Search.IntentWeights {
			if intent, ok := domain.ParseIntent(name); ok {
				opts.IntentWeights[intent] = search.Weights{Primary: w.Primary, Secondary: w.Secondary}
			}
		}
	}
	return opts
}

func mergeOptions(cfg *config.Config, logger *slog.Logger) merge.Options {
	return merge.Options{
		TokenBudget:      cfg.Merge.TokenBudget,
		CharsPerToken:    cfg.Merge.CharsPerToken,
		StructuredWeight: cfg.Merge.StructuredWeight,
		VectorWeight:     cfg.Merge.VectorWeight,
		ReviewTextLimit:  cfg.Merge.ReviewTextLimit,
		Logger:           logger,
	}
}

// newApp wires the engine from cfg. Close must be called when done.
func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (_ *app, err error) {
	logger := slog.Default()
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	ref, err := loadReference(cfg)
	if err != nil {
		return nil, err
	}
	a.reference = domain.NewHolder(ref)

	if a.oracle, err = newOracle(ctx, cfg, logger); err != nil {
		return nil, err
	}

	boost := cfg.Router.MultiMatchBoost
	a.router = router.New(
		patterns.NewIntentMatcher(patterns.DefaultIntentRules(), boost),
		router.NewRegistry(patterns.NewEntityExtractor(a.reference, boost)),
		a.oracle,
		routerOptions(cfg, logger),
	)
	a.resolver, err = resolve.New(a.reference, a.oracle, resolve.Options{
		Accept:   cfg.Resolver.AcceptThreshold,
		Validate: cfg.Resolver.ValidateThreshold,
		MemoSize: cfg.Resolver.MemoSize,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	if !opts.retrieval {
		a.pipeline = pipeline.New(pipeline.Deps{Router: a.router, Resolver: a.resolver}, pipeline.Options{Logger: logger})
		return a, nil
	}

	if err := os.MkdirAll(cfg.Store.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	if a.embedder, err = newEmbedder(cfg, logger); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.embedder.Close)

	if a.indexes, err = vector.LoadDir(cfg.IndexDir()); err != nil {
		return nil, err
	}
	if a.records, err = hydrate.OpenSQLite(cfg.SQLitePath()); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.records.Close)
	if a.diagStore, err = diag.OpenSQLite(diagPath(cfg)); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.diagStore.Close)

	var fetcher hydrate.Fetcher = a.records
	var executor structured.Executor
	if cfg.Store.Neo4jURI != "" {
		a.driver, err = structured.Connect(ctx, structured.Neo4jConfig{
			URI:      cfg.Store.Neo4jURI,
			User:     cfg.Store.Neo4jUser,
			Password: os.Getenv(cfg.Store.Neo4jPasswordEnv),
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { return a.driver.Close(context.Background()) })
		fetcher = hydrate.NewNeo4jFetcher(a.driver, "")
		executor = structured.NewNeo4jExecutor(a.driver, "", logger)
	} else {
		if a.catalog, err = structured.OpenBleve(cfg.BlevePath(), logger); err != nil {
			return nil, err
		}
		a.closers = append(a.closers, a.catalog.Close)
		executor = a.catalog
	}

	cached, err := hydrate.NewCached(fetcher, cfg.Search.HydrateCache, logger)
	if err != nil {
		return nil, err
	}

	a.pipeline = pipeline.New(pipeline.Deps{
		Router:   a.router,
		Resolver: a.resolver,
		Embedder: a.embedder,
		Searcher: search.New(a.indexes, cached, searchOptions(cfg, logger)),
		Library:  structured.NewLibrary(),
		Executor: executor,
		Merger:   merge.New(mergeOptions(cfg, logger)),
	}, pipeline.Options{Timeout: cfg.SearchTimeout(), Logger: logger})
	return a, nil
}

// diagPath is the diagnostics counter database.
func diagPath(cfg *config.Config) string {
	return filepath.Join(cfg.Store.DataDir, "diagnostics.db")
}

// recordDiagnostics persists per-kind counts for the stats command.
func (a *app) recordDiagnostics(ctx context.Context, events []diag.Event) {
	if a.diagStore == nil {
		return
	}
	if err := a.diagStore.Record(ctx, events); err != nil {
		a.logger.Warn("diag_record_failed", slog.String("error", err.Error()))
	}
}

// Close releases stores in reverse order of opening.
func (a *app) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
