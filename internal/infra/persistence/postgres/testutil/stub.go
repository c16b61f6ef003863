// Package testutil provides a stub database/sql driver for postgres store tests.
// It understands the small statement vocabulary the store issues: inserts
// (with ON CONFLICT upserts keyed by the first column) and single-table selects.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
)

var driverSeq atomic.Int64

// StubConn records statements and keeps rows per table.
type StubConn struct {
	Execs      []string
	Tables     map[string][]map[string]any
	FailPing   bool
	FailBegin  bool
	FailCommit bool
	FailTables map[string]bool
}

// NewStubDB registers a uniquely named driver and opens a sql.DB on it.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: make(map[string][]map[string]any)}
	name := fmt.Sprintf("stubpg%d", driverSeq.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	db.SetMaxOpenConns(1)
	return db, conn
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx. Writes are staged and only applied on commit.
func (c *StubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	return &stubTx{conn: c, saved: c.cloneTables()}, nil
}

func (c *StubConn) cloneTables() map[string][]map[string]any {
	out := make(map[string][]map[string]any, len(c.Tables))
	for table, rows := range c.Tables {
		out[table] = append([]map[string]any(nil), rows...)
	}
	return out
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.Execs = append(c.Execs, query)
	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "INSERT INTO") {
		return driver.RowsAffected(0), nil
	}
	table, cols, err := parseInsert(query)
	if err != nil {
		return nil, err
	}
	if c.FailTables[table] {
		return nil, fmt.Errorf("exec fail for %s", table)
	}
	if len(cols) != len(args) {
		return nil, fmt.Errorf("column/arg mismatch for %s", table)
	}
	row := make(map[string]any, len(cols))
	for i, col := range cols {
		row[col] = args[i].Value
	}
	if strings.Contains(strings.ToUpper(query), "ON CONFLICT") {
		key := cols[0]
		kept := c.Tables[table][:0:0]
		for _, existing := range c.Tables[table] {
			if existing[key] != row[key] {
				kept = append(kept, existing)
			}
		}
		c.Tables[table] = kept
	}
	c.Tables[table] = append(c.Tables[table], row)
	return driver.RowsAffected(1), nil
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	table, cols, err := parseSelect(query)
	if err != nil {
		return nil, err
	}
	if c.FailTables[table] {
		return nil, fmt.Errorf("query fail for %s", table)
	}
	values := make([][]driver.Value, 0, len(c.Tables[table]))
	for _, row := range c.Tables[table] {
		vals := make([]driver.Value, len(cols))
		for i, col := range cols {
			vals[i] = row[col]
		}
		values = append(values, vals)
	}
	return &stubRows{cols: cols, rows: values}, nil
}

type stubTx struct {
	conn  *StubConn
	saved map[string][]map[string]any
}

func (t *stubTx) Commit() error {
	if t.conn.FailCommit {
		t.conn.Tables = t.saved
		return fmt.Errorf("commit fail")
	}
	return nil
}

func (t *stubTx) Rollback() error {
	t.conn.Tables = t.saved
	return nil
}

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

func parseInsert(query string) (string, []string, error) {
	up := strings.ToUpper(query)
	intoIdx := strings.Index(up, "INTO ")
	if intoIdx == -1 {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	rest := strings.TrimSpace(query[intoIdx+len("INTO "):])
	open := strings.Index(rest, "(")
	closeIdx := strings.Index(rest, ")")
	if open == -1 || closeIdx <= open {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	return strings.ToLower(strings.TrimSpace(rest[:open])), splitColumns(rest[open+1 : closeIdx]), nil
}

func parseSelect(query string) (string, []string, error) {
	lower := strings.ToLower(strings.TrimSpace(query))
	if !strings.HasPrefix(lower, "select ") {
		return "", nil, fmt.Errorf("cannot parse select: %s", query)
	}
	fromIdx := strings.Index(lower, " from ")
	if fromIdx == -1 {
		return "", nil, fmt.Errorf("cannot parse select: %s", query)
	}
	fields := strings.Fields(lower[fromIdx+len(" from "):])
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("cannot parse select: %s", query)
	}
	return fields[0], splitColumns(lower[len("select "):fromIdx]), nil
}

func splitColumns(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		out = append(out, strings.ToLower(strings.TrimSpace(part)))
	}
	return out
}
