package infra

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDB struct {
	lastQuery string
	lastArgs  []any
}

func (d *recordingDB) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	d.lastQuery, d.lastArgs = query, args
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (d *recordingDB) QueryRow(_ context.Context, query string, args ...any) pgx.Row {
	d.lastQuery, d.lastArgs = query, args
	return errorRow{err: pgx.ErrNoRows}
}

func (d *recordingDB) Query(_ context.Context, query string, args ...any) (pgx.Rows, error) {
	d.lastQuery, d.lastArgs = query, args
	return nil, errors.New("not connected")
}

const markedQuery = `--sql 6fe62992-02b6-41a4-8829-2b9f384182d0
select 1;
`

func TestExtractMarker(t *testing.T) {
	marker, stmt, err := extractMarker(markedQuery)
	require.NoError(t, err)
	assert.Equal(t, "6fe62992-02b6-41a4-8829-2b9f384182d0", marker)
	assert.Equal(t, "select 1;", stmt)

	_, _, err = extractMarker("select 1;")
	require.ErrorIs(t, err, ErrMissingMarker)

	_, _, err = extractMarker("--sql not-a-uuid\nselect 1;")
	require.ErrorIs(t, err, ErrMissingMarker)

	_, _, err = extractMarker("--sql 6fe62992-02b6-41a4-8829-2b9f384182d0")
	require.Error(t, err)
}

func TestSQLRunnerStripsMarker(t *testing.T) {
	db := &recordingDB{}
	runner := NewSQLRunner(db, zerolog.New(io.Discard))

	_, err := runner.Exec(context.Background(), markedQuery, 1)
	require.NoError(t, err)
	assert.Equal(t, "select 1;", db.lastQuery)
	assert.Equal(t, []any{1}, db.lastArgs)

	err = runner.QueryRow(context.Background(), markedQuery).Scan()
	require.ErrorIs(t, err, pgx.ErrNoRows)

	_, err = runner.Query(context.Background(), markedQuery)
	require.EqualError(t, err, "not connected")
}

func TestSQLRunnerRejectsUnmarkedQueries(t *testing.T) {
	db := &recordingDB{}
	runner := NewSQLRunner(db, zerolog.New(io.Discard))

	_, err := runner.Exec(context.Background(), "delete from generations;")
	require.ErrorIs(t, err, ErrMissingMarker)
	require.ErrorIs(t, runner.QueryRow(context.Background(), "select 1;").Scan(), ErrMissingMarker)
	_, err = runner.Query(context.Background(), "select 1;")
	require.ErrorIs(t, err, ErrMissingMarker)
	assert.Empty(t, db.lastQuery)
}
