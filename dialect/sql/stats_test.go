package sql

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/relorm/dialect"
)

func TestStatsDriver(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var slow []string
	drv := NewStatsDriver(OpenDB(dialect.MySQL, db),
		WithSlowThreshold(-1),
		WithSlowQueryHook(func(_ context.Context, query string, _ []any, _ time.Duration) {
			slow = append(slow, query)
		}),
	)

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"Id"}).AddRow(1))
	mock.ExpectExec("UPDATE").WillReturnError(errors.New("locked"))
	mock.ExpectBegin()
	mock.ExpectExec("DELETE").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rows := &Rows{}
	require.NoError(t, drv.Query(context.Background(), "SELECT Id FROM user", []any{}, rows))
	require.NoError(t, rows.Close())
	require.Error(t, drv.Exec(context.Background(), "UPDATE user SET name = ?", []any{"x"}, nil))

	tx, err := drv.Tx(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Exec(context.Background(), "DELETE FROM user", []any{}, nil))
	require.NoError(t, tx.Commit())

	s := drv.QueryStats().Stats()
	assert.Equal(t, map[string]int64{"SELECT": 1, "UPDATE": 1, "DELETE": 1}, s.Statements)
	assert.Equal(t, int64(3), s.Total())
	assert.Equal(t, int64(1), s.Errors)
	assert.Equal(t, int64(3), s.Slow)
	assert.Equal(t, []string{"SELECT Id FROM user", "UPDATE user SET name = ?", "DELETE FROM user"}, slow)
	assert.Contains(t, s.String(), "statements=3 DELETE=1 SELECT=1 UPDATE=1 duration=")
	assert.Contains(t, s.String(), "slow=3 errors=1")

	drv.QueryStats().Reset()
	assert.Equal(t, StatsSnapshot{}, drv.QueryStats().Stats())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatementVerb(t *testing.T) {
	t.Parallel()
	for query, want := range map[string]string{
		"SELECT Id FROM user":             "SELECT",
		"  insert INTO user () VALUES ()": "INSERT",
		"(SELECT 1)":                      "SELECT",
		"update\tuser SET name = ?":       "UPDATE",
		"":                                "",
	} {
		assert.Equal(t, want, verb(query), query)
	}
}

func TestStatsDriverThreshold(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var buf bytes.Buffer
	drv := NewStatsDriver(OpenDB(dialect.MySQL, db), WithSlowQueryLog(slog.New(slog.NewTextHandler(&buf, nil))))
	drv.SetSlowThreshold(time.Hour)

	mock.ExpectExec("DELETE").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, drv.Exec(context.Background(), "DELETE FROM user", []any{}, nil))
	assert.Zero(t, drv.QueryStats().Stats().Slow)
	assert.Empty(t, buf.String())

	drv.SetSlowThreshold(-1)
	mock.ExpectExec("DELETE").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, drv.Exec(context.Background(), "DELETE FROM post", []any{}, nil))
	assert.Contains(t, buf.String(), "slow query detected")
	assert.Contains(t, buf.String(), "DELETE FROM post")
}

func TestDebugDriver(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	drv := NewDebugDriver(OpenDB(dialect.MySQL, db), log)

	mock.ExpectExec("INSERT").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectBegin()
	mock.ExpectRollback()

	require.NoError(t, drv.Exec(context.Background(), "INSERT INTO user (name) VALUES (?)", []any{"Ann"}, nil))
	tx, err := drv.Tx(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	out := buf.String()
	assert.Contains(t, out, "INSERT INTO user (name) VALUES (?)")
	assert.Contains(t, out, "begin transaction")
	assert.Contains(t, out, "rollback transaction")
	require.NoError(t, mock.ExpectationsWereMet())
}
