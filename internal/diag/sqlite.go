package diag

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Pure Go driver, registered as "sqlite".
	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

// SQLiteStore persists daily event counts per kind.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the diagnostics database at path.
// Use ":memory:" for a throwaway store.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create diag directory: %w", err)
		}
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open diag database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS diag_daily (
		date TEXT NOT NULL,
		kind TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, kind)
	);`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create diag schema: %w", err)
	}
	return nil
}

// Record adds events to their day's counters.
func (s *SQLiteStore) Record(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	type key struct{ date, kind string }
	counts := make(map[key]int64)
	for _, e := range events {
		at := e.At
		if at.IsZero() {
			at = time.Now()
		}
		counts[key{at.UTC().Format(dateLayout), string(e.Kind)}]++
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO diag_daily (date, kind, count)
		VALUES (?, ?, ?)
		ON CONFLICT(date, kind) DO UPDATE SET count = count + excluded.count
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for k, n := range counts {
		if _, err := stmt.ExecContext(ctx, k.date, k.kind, n); err != nil {
			return fmt.Errorf("upsert %s: %w", k.kind, err)
		}
	}
	return tx.Commit()
}

// Counts sums events per kind for days in [from, to], inclusive.
func (s *SQLiteStore) Counts(ctx context.Context, from, to time.Time) (map[Kind]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, SUM(count)
		FROM diag_daily
		WHERE date >= ? AND date <= ?
		GROUP BY kind
	`, from.UTC().Format(dateLayout), to.UTC().Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("query diag counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[Kind]int64)
	for rows.Next() {
		var kind string
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan diag row: %w", err)
		}
		out[Kind(kind)] = n
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
