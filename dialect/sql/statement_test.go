package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/relorm/dialect"
)

func TestStatementBuild(t *testing.T) {
	t.Parallel()

	newStmt := func(t *testing.T) *Statement {
		st := NewStatement()
		st.WriteString("UPDATE user SET name = :name WHERE user.Id IN (:Id0, :Id1)")
		require.NoError(t, st.Bind("name", "Ann"))
		require.NoError(t, st.Bind(":Id0", int64(1)))
		require.NoError(t, st.Bind("Id1", int64(2)))
		return st
	}

	tests := []struct {
		dialect string
		want    string
	}{
		{dialect.MySQL, "UPDATE user SET name = ? WHERE user.Id IN (?, ?)"},
		{dialect.SQLite, "UPDATE user SET name = ? WHERE user.Id IN (?, ?)"},
		{dialect.Postgres, "UPDATE user SET name = $1 WHERE user.Id IN ($2, $3)"},
	}
	for _, tt := range tests {
		t.Run(tt.dialect, func(t *testing.T) {
			query, args, err := newStmt(t).Build(tt.dialect)
			require.NoError(t, err)
			assert.Equal(t, tt.want, query)
			assert.Equal(t, []any{"Ann", int64(1), int64(2)}, args)
		})
	}
}

func TestStatementErrors(t *testing.T) {
	t.Parallel()

	t.Run("unbound", func(t *testing.T) {
		st := NewStatement().WriteString("DELETE FROM user WHERE user.Id = :Id")
		_, _, err := st.Build(dialect.MySQL)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"Id" is not bound`)
	})

	t.Run("unreferenced", func(t *testing.T) {
		st := NewStatement().WriteString("DELETE FROM user")
		require.NoError(t, st.Bind("Id", 1))
		_, _, err := st.Build(dialect.MySQL)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not referenced")
	})

	t.Run("duplicate", func(t *testing.T) {
		st := NewStatement()
		require.NoError(t, st.Bind("Id", 1))
		assert.Error(t, st.Bind("Id", 2))
	})

	t.Run("invalid name", func(t *testing.T) {
		assert.Error(t, NewStatement().Bind("1abc", 1))
		assert.Error(t, NewStatement().Bind("a b", 1))
	})
}

func TestStatementLiteralsAndCasts(t *testing.T) {
	t.Parallel()

	st := NewStatement().WriteString("SELECT ':skip', x::text FROM t WHERE a = :a")
	require.NoError(t, st.Bind("a", 1))
	query, args, err := st.Build(dialect.Postgres)
	require.NoError(t, err)
	assert.Equal(t, "SELECT ':skip', x::text FROM t WHERE a = $1", query)
	assert.Equal(t, []any{1}, args)

	v, ok := st.Value(":a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, []string{"a"}, st.Params())
}
