package structured

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	herrors "github.com/Aman-CERP/hotelrag/internal/errors"
)

// Neo4jConfig locates a graph database.
type Neo4jConfig struct {
	URI      string
	User     string
	Password string
	Database string
}

// Connect opens a driver and checks connectivity.
func Connect(ctx context.Context, cfg Neo4jConfig) (neo4j.DriverWithContext, error) {
	auth := neo4j.NoAuth()
	if cfg.User != "" {
		auth = neo4j.BasicAuth(cfg.User, cfg.Password, "")
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth)
	if err != nil {
		return nil, herrors.New(herrors.ErrCodeConfigInvalid, "invalid neo4j settings", err).
			WithDetail("uri", cfg.URI)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, herrors.New(herrors.ErrCodeNetworkUnavailable, "neo4j unreachable", err).
			WithDetail("uri", cfg.URI).
			WithSuggestion("check store.neo4j_uri and that the database is running")
	}
	return driver, nil
}

// Neo4jExecutor runs Cypher templates against a graph database.
type Neo4jExecutor struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *slog.Logger
}

// NewNeo4jExecutor wraps an open driver.
func NewNeo4jExecutor(driver neo4j.DriverWithContext, database string, logger *slog.Logger) *Neo4jExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Neo4jExecutor{driver: driver, database: database, logger: logger.With("component", "neo4j")}
}

// Execute implements Executor.
func (e *Neo4jExecutor) Execute(ctx context.Context, q Query) ([]Row, error) {
	if q.Cypher == "" {
		return nil, fmt.Errorf("%s: %w", q.Name, ErrUnsupported)
	}
	opts := []neo4j.ExecuteQueryConfigurationOption{neo4j.ExecuteQueryWithReadersRouting()}
	if e.database != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(e.database))
	}

	res, err := neo4j.ExecuteQuery(ctx, e.driver, q.Cypher, q.Params, neo4j.EagerResultTransformer, opts...)
	if err != nil {
		return nil, herrors.New(herrors.ErrCodeExecutorFailed, "cypher query failed", err).
			WithDetail("query", q.Name)
	}

	rows := make([]Row, 0, len(res.Records))
	for _, rec := range res.Records {
		rows = append(rows, Row(rec.AsMap()))
	}
	e.logger.DebugContext(ctx, "cypher_executed",
		slog.String("query", q.Name),
		slog.Int("rows", len(rows)))
	return rows, nil
}
