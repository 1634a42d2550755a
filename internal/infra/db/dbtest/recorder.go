// Package dbtest provides a database/sql driver for repository tests. It
// records every statement with its bound arguments and answers queries with
// canned rows, so SQL wiring can be checked without a running server.
package dbtest

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"sync"
	"testing"
)

// Call is one statement the repository sent.
type Call struct {
	Query string
	Args  []driver.Value
}

// Recorder collects calls. Set Columns and Rows before querying; Err, when
// set, is returned from every statement.
type Recorder struct {
	Columns []string
	Rows    [][]driver.Value
	Err     error

	mu      sync.Mutex
	execs   []Call
	queries []Call
}

// Open returns a *sql.DB backed by r and closed when the test ends.
func Open(t testing.TB, r *Recorder) *sql.DB {
	t.Helper()
	db := sql.OpenDB(connector{r})
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// Execs returns the recorded Exec calls.
func (r *Recorder) Execs() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.execs...)
}

// Queries returns the recorded Query calls.
func (r *Recorder) Queries() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.queries...)
}

func (r *Recorder) record(dst *[]Call, query string, args []driver.NamedValue) {
	vals := make([]driver.Value, len(args))
	for i, a := range args {
		vals[i] = a.Value
	}
	r.mu.Lock()
	*dst = append(*dst, Call{Query: query, Args: vals})
	r.mu.Unlock()
}

type connector struct{ r *Recorder }

func (c connector) Connect(context.Context) (driver.Conn, error) { return &conn{r: c.r}, nil }
func (c connector) Driver() driver.Driver                        { return drv{r: c.r} }

type drv struct{ r *Recorder }

func (d drv) Open(string) (driver.Conn, error) { return &conn{r: d.r}, nil }

var errUnsupported = errors.New("dbtest: prepared statements and transactions are not supported")

type conn struct{ r *Recorder }

func (c *conn) Prepare(string) (driver.Stmt, error) { return nil, errUnsupported }
func (c *conn) Close() error                        { return nil }
func (c *conn) Begin() (driver.Tx, error)           { return nil, errUnsupported }

func (c *conn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.r.record(&c.r.execs, query, args)
	if c.r.Err != nil {
		return nil, c.r.Err
	}
	return driver.RowsAffected(1), nil
}

func (c *conn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.r.record(&c.r.queries, query, args)
	if c.r.Err != nil {
		return nil, c.r.Err
	}
	return &rows{cols: c.r.Columns, data: c.r.Rows}, nil
}

type rows struct {
	cols []string
	data [][]driver.Value
	pos  int
}

func (r *rows) Columns() []string { return r.cols }
func (r *rows) Close() error      { return nil }

func (r *rows) Next(dest []driver.Value) error {
	if r.pos >= len(r.data) {
		return io.EOF
	}
	copy(dest, r.data[r.pos])
	r.pos++
	return nil
}
