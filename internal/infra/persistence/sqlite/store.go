// Package sqlite provides a SQLite-backed persistent store. Transactions run
// against the in-memory store; each commit writes the entity buckets and the
// newly appended audit entries to SQLite before the new state becomes visible.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"crmcore/internal/infra/persistence/memory"
	"crmcore/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const defaultPath = "crmcore.db"

// Store persists state to a SQLite database file.
type Store struct {
	*memory.Store
	db   *sql.DB
	path string
}

// NewStore opens (or creates) the database at path and hydrates the in-memory
// working set from it.
func NewStore(path string, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	ctx := context.Background()
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	snapshot, err := loadSnapshot(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &Store{db: db, path: path}
	opts = append(opts, memory.WithCommitHook(s.persist))
	s.Store = memory.NewStore(engine, opts...)
	s.ImportState(snapshot)
	return s, nil
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS state (
			bucket TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			table_name TEXT NOT NULL,
			record_id TEXT NOT NULL,
			action TEXT NOT NULL,
			created_at TEXT NOT NULL,
			payload BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS audit_log_record ON audit_log(table_name, record_id)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

func loadSnapshot(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	var snapshot memory.Snapshot
	rows, err := db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return snapshot, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return snapshot, fmt.Errorf("scan: %w", err)
		}
		if err := snapshot.DecodeBucket(bucket, payload); err != nil {
			return snapshot, err
		}
	}
	if err := rows.Err(); err != nil {
		return snapshot, fmt.Errorf("iterate state: %w", err)
	}

	auditRows, err := db.QueryContext(ctx, `SELECT payload FROM audit_log ORDER BY seq`)
	if err != nil {
		return snapshot, fmt.Errorf("select audit_log: %w", err)
	}
	defer func() { _ = auditRows.Close() }()
	for auditRows.Next() {
		var payload []byte
		if err := auditRows.Scan(&payload); err != nil {
			return snapshot, fmt.Errorf("scan audit: %w", err)
		}
		var entry domain.AuditLogEntry
		if err := json.Unmarshal(payload, &entry); err != nil {
			return snapshot, fmt.Errorf("decode audit entry: %w", err)
		}
		snapshot.AuditLog = append(snapshot.AuditLog, entry)
	}
	if err := auditRows.Err(); err != nil {
		return snapshot, fmt.Errorf("iterate audit_log: %w", err)
	}
	return snapshot, nil
}

func (s *Store) persist(ctx context.Context, snapshot memory.Snapshot, appended []domain.AuditLogEntry) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range memory.Buckets {
		data, err := snapshot.EncodeBucket(bucket)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	for _, entry := range appended {
		payload, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("encode audit entry %s: %w", entry.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO audit_log(id,table_name,record_id,action,created_at,payload) VALUES(?,?,?,?,?,?)`,
			entry.ID, string(entry.TableName), entry.RecordID, string(entry.Action), entry.CreatedAt.UTC().Format(time.RFC3339Nano), payload,
		); err != nil {
			return fmt.Errorf("insert audit entry %s: %w", entry.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
