// Package postgres provides a Postgres-backed persistent store that mirrors the
// in-memory semantics. Entity buckets live in a JSONB state table and audit
// entries in an append-only audit_log table.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"crmcore/internal/infra/persistence/memory"
	"crmcore/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/crmcore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		table_name TEXT NOT NULL,
		record_id TEXT NOT NULL,
		action TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		payload JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS audit_log_record ON audit_log(table_name, record_id)`,
}

// Store persists state to Postgres while reusing the in-memory implementation for transactions.
type Store struct {
	*memory.Store
	db *sql.DB
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to defaultDSN).
// It ensures the schema exists and hydrates the in-memory store from any existing rows.
func NewStore(dsn string, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
	}
	snapshot, err := loadSnapshot(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &Store{db: db}
	opts = append(opts, memory.WithCommitHook(s.persist))
	s.Store = memory.NewStore(engine, opts...)
	s.ImportState(snapshot)
	return s, nil
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
			return snapshot, fmt.Errorf("scan state: %w", err)
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
			return snapshot, fmt.Errorf("scan audit_log: %w", err)
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

func (s *Store) persist(ctx context.Context, snapshot memory.Snapshot, appended []domain.AuditLogEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range memory.Buckets {
		data, err := snapshot.EncodeBucket(bucket)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload`, bucket, data); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	for _, entry := range appended {
		payload, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("encode audit entry %s: %w", entry.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO audit_log(id,table_name,record_id,action,created_at,payload) VALUES($1,$2,$3,$4,$5,$6)`,
			entry.ID, string(entry.TableName), entry.RecordID, string(entry.Action), entry.CreatedAt.UTC(), payload,
		); err != nil {
			return fmt.Errorf("insert audit entry %s: %w", entry.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
