// Package testutil provides a minimal in-memory database/sql driver that
// understands the statements issued by the postgres catalog store.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// StubConn records statements and keeps table rows in memory.
type StubConn struct {
	mu         sync.Mutex
	Execs      []string
	Tables     map[string][]map[string]any
	FailPing   bool
	FailBegin  bool
	FailCommit bool
	FailTables map[string]bool
}

var stubSeq atomic.Int64

// NewStubDB registers a sql.DB backed by a fresh stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: make(map[string][]map[string]any)}
	name := fmt.Sprintf("stubpg%d", stubSeq.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

// Rows returns a copy of the rows stored for table.
func (c *StubConn) Rows(table string) []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, len(c.Tables[table]))
	copy(out, c.Tables[table])
	return out
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
func (c *StubConn) Ping(_ context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	return &stubTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext for CREATE, INSERT (with an
// optional ON CONFLICT(cols) upsert) and DELETE ... WHERE a = $1 AND b = $2.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Execs = append(c.Execs, query)
	q := strings.TrimSpace(query)
	up := strings.ToUpper(q)
	switch {
	case strings.HasPrefix(up, "INSERT INTO"):
		table, cols, conflict, err := parseInsert(q)
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
		if len(conflict) > 0 {
			c.Tables[table] = without(c.Tables[table], func(existing map[string]any) bool {
				for _, col := range conflict {
					if existing[col] != row[col] {
						return false
					}
				}
				return true
			})
		}
		c.Tables[table] = append(c.Tables[table], row)
		return driver.RowsAffected(1), nil
	case strings.HasPrefix(up, "DELETE FROM"):
		table, preds, err := parseDelete(q)
		if err != nil {
			return nil, err
		}
		c.Tables[table] = without(c.Tables[table], func(row map[string]any) bool {
			return matches(row, preds, args)
		})
		return driver.RowsAffected(1), nil
	}
	return driver.RowsAffected(0), nil
}

// QueryContext implements driver.QueryerContext for
// SELECT cols FROM table [WHERE col = $n] [ORDER BY col].
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sel, err := parseSelect(strings.TrimSpace(query))
	if err != nil {
		return nil, err
	}
	if c.FailTables[sel.table] {
		return nil, fmt.Errorf("query fail for %s", sel.table)
	}
	var matched []map[string]any
	for _, row := range c.Tables[sel.table] {
		if matches(row, sel.where, args) {
			matched = append(matched, row)
		}
	}
	if sel.orderBy != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			a, b := matched[i][sel.orderBy], matched[j][sel.orderBy]
			ai, aok := a.(int64)
			bi, bok := b.(int64)
			if aok && bok {
				return ai < bi
			}
			return fmt.Sprint(a) < fmt.Sprint(b)
		})
	}
	values := make([][]driver.Value, 0, len(matched))
	for _, row := range matched {
		vals := make([]driver.Value, len(sel.cols))
		for i, col := range sel.cols {
			vals[i] = row[col]
		}
		values = append(values, vals)
	}
	return &stubRows{cols: sel.cols, rows: values}, nil
}

type stubTx struct {
	conn *StubConn
}

func (t *stubTx) Commit() error {
	if t.conn.FailCommit {
		return fmt.Errorf("commit fail")
	}
	return nil
}

func (t *stubTx) Rollback() error { return nil }

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

// predicate binds a column to a $n placeholder.
type predicate struct {
	col string
	arg int
}

type selectStmt struct {
	table   string
	cols    []string
	where   []predicate
	orderBy string
}

func without(rows []map[string]any, drop func(map[string]any) bool) []map[string]any {
	var kept []map[string]any
	for _, row := range rows {
		if !drop(row) {
			kept = append(kept, row)
		}
	}
	return kept
}

func matches(row map[string]any, preds []predicate, args []driver.NamedValue) bool {
	for _, p := range preds {
		if p.arg < 1 || p.arg > len(args) || row[p.col] != args[p.arg-1].Value {
			return false
		}
	}
	return true
}

func parseInsert(query string) (string, []string, []string, error) {
	up := strings.ToUpper(query)
	rest := strings.TrimSpace(query[len("INSERT INTO"):])
	open := strings.Index(rest, "(")
	closeIdx := strings.Index(rest, ")")
	if open == -1 || closeIdx <= open {
		return "", nil, nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	table := strings.ToLower(strings.TrimSpace(rest[:open]))
	cols := splitColumns(rest[open+1 : closeIdx])
	var conflict []string
	if idx := strings.Index(up, "ON CONFLICT"); idx != -1 {
		tail := query[idx+len("ON CONFLICT"):]
		o := strings.Index(tail, "(")
		e := strings.Index(tail, ")")
		if o != -1 && e > o {
			conflict = splitColumns(tail[o+1 : e])
		}
	}
	return table, cols, conflict, nil
}

func parseDelete(query string) (string, []predicate, error) {
	rest := strings.TrimSpace(query[len("DELETE FROM"):])
	whereIdx := strings.Index(strings.ToUpper(rest), " WHERE ")
	if whereIdx == -1 {
		return strings.ToLower(strings.TrimSpace(rest)), nil, nil
	}
	preds, err := parsePredicates(rest[whereIdx+len(" WHERE "):])
	if err != nil {
		return "", nil, err
	}
	return strings.ToLower(strings.TrimSpace(rest[:whereIdx])), preds, nil
}

func parseSelect(query string) (selectStmt, error) {
	up := strings.ToUpper(query)
	if !strings.HasPrefix(up, "SELECT ") {
		return selectStmt{}, fmt.Errorf("cannot parse select: %s", query)
	}
	fromIdx := strings.Index(up, " FROM ")
	if fromIdx == -1 {
		return selectStmt{}, fmt.Errorf("cannot parse select: %s", query)
	}
	stmt := selectStmt{cols: splitColumns(query[len("SELECT "):fromIdx])}
	rest := query[fromIdx+len(" FROM "):]
	if idx := strings.Index(strings.ToUpper(rest), " ORDER BY "); idx != -1 {
		stmt.orderBy = strings.ToLower(strings.TrimSpace(rest[idx+len(" ORDER BY "):]))
		rest = rest[:idx]
	}
	if idx := strings.Index(strings.ToUpper(rest), " WHERE "); idx != -1 {
		preds, err := parsePredicates(rest[idx+len(" WHERE "):])
		if err != nil {
			return selectStmt{}, err
		}
		stmt.where = preds
		rest = rest[:idx]
	}
	stmt.table = strings.ToLower(strings.TrimSpace(rest))
	if stmt.table == "" {
		return selectStmt{}, fmt.Errorf("cannot parse select: %s", query)
	}
	return stmt, nil
}

func parsePredicates(where string) ([]predicate, error) {
	var preds []predicate
	for _, part := range strings.Split(strings.ReplaceAll(where, " and ", " AND "), " AND ") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("cannot parse predicate: %s", part)
		}
		n, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(kv[1]), "$"))
		if err != nil {
			return nil, fmt.Errorf("cannot parse placeholder: %s", part)
		}
		preds = append(preds, predicate{col: strings.ToLower(strings.TrimSpace(kv[0])), arg: n})
	}
	return preds, nil
}

func splitColumns(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		out = append(out, strings.ToLower(strings.TrimSpace(part)))
	}
	return out
}
