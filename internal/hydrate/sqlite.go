package hydrate

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	// Pure Go driver, registered as "sqlite".
	_ "modernc.org/sqlite"
)

// Record is one stored payload.
type Record struct {
	EntityType string
	ID         string
	Payload    Payload
}

// SQLiteStore keeps ingested records in a local SQLite table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the record store at path. ":memory:" gives a
// private in-memory store.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create record directory: %w", err)
		}
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open record database: %w", err)
	}
	// Single writer prevents lock contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	schema := `
	CREATE TABLE IF NOT EXISTS records (
		entity_type TEXT NOT NULL,
		id TEXT NOT NULL,
		payload TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (entity_type, id)
	);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create record schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Put upserts records in one transaction.
func (s *SQLiteStore) Put(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (entity_type, id, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(entity_type, id) DO UPDATE SET
			payload = excluded.payload,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range records {
		raw, err := json.Marshal(r.Payload)
		if err != nil {
			return fmt.Errorf("encode record %s/%s: %w", r.EntityType, r.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, r.EntityType, r.ID, string(raw)); err != nil {
			return fmt.Errorf("upsert record %s/%s: %w", r.EntityType, r.ID, err)
		}
	}
	return tx.Commit()
}

// Fetch implements Fetcher.
func (s *SQLiteStore) Fetch(ctx context.Context, id, entityType string) (Payload, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM records WHERE entity_type = ? AND id = ?`, entityType, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %q: %w", entityType, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query record: %w", err)
	}

	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("decode record %s/%s: %w", entityType, id, err)
	}
	return p, nil
}

// Counts returns the number of records per entity type.
func (s *SQLiteStore) Counts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT entity_type, COUNT(*) FROM records GROUP BY entity_type`)
	if err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[kind] = n
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
