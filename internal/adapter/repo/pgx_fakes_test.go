package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type simpleRow struct {
	scan func(dest ...any) error
}

func (r simpleRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

type testRowsBase struct{}

func (testRowsBase) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }

func (testRowsBase) Conn() *pgx.Conn { return nil }

func (testRowsBase) FieldDescriptions() []pgconn.FieldDescription { return nil }

func (testRowsBase) Values() ([]any, error) {
	return nil, fmt.Errorf("values not supported in test rows")
}

func (testRowsBase) RawValues() [][]byte { return nil }

// sliceRows yields one scan function per row.
type sliceRows struct {
	testRowsBase
	rows   []func(dest ...any) error
	pos    int
	err    error
	closed bool
}

func (r *sliceRows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *sliceRows) Scan(dest ...any) error { return r.rows[r.pos-1](dest...) }

func (r *sliceRows) Err() error { return r.err }

func (r *sliceRows) Close() { r.closed = true }

type call struct {
	query string
	args  []any
}

type fakeExecutor struct {
	execs   []call
	queries []call
	execErr error
	row     pgx.Row
	rows    *sliceRows
	rowsErr error
}

func (f *fakeExecutor) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, call{query: query, args: args})
	return pgconn.CommandTag{}, f.execErr
}

func (f *fakeExecutor) QueryRow(_ context.Context, query string, args ...any) pgx.Row {
	f.queries = append(f.queries, call{query: query, args: args})
	return f.row
}

func (f *fakeExecutor) Query(_ context.Context, query string, args ...any) (pgx.Rows, error) {
	f.queries = append(f.queries, call{query: query, args: args})
	if f.rowsErr != nil {
		return nil, f.rowsErr
	}
	return f.rows, nil
}
