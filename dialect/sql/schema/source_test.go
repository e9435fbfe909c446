package schema

import (
	"context"
	stdsql "database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/relorm/dialect"
	"github.com/syssam/relorm/dialect/sql"
)

type testConn struct {
	dialect.ExecQuerier
	name     string
	database string
}

func (c testConn) Dialect() string  { return c.name }
func (c testConn) Database() string { return c.database }

func TestMySQLSource(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(strings.ReplaceAll(mysqlColumns, ":db", "?")).
		WithArgs("blog").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME", "COLUMN_NAME"}).
			AddRow("post", "Id").AddRow("post", "title").AddRow("post", "user_id").
			AddRow("user", "Id").AddRow("user", "name"))
	mock.ExpectQuery(strings.ReplaceAll(mysqlForeignKeys, ":db", "?")).
		WithArgs("blog").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME", "COLUMN_NAME", "REFERENCED_TABLE_NAME", "REFERENCED_COLUMN_NAME"}).
			AddRow("post", "user_id", "user", "Id"))

	src, err := NewSource(testConn{ExecQuerier: sql.OpenDB(dialect.MySQL, db), name: dialect.MySQL, database: "blog"})
	require.NoError(t, err)
	md, err := src.Inspect(context.Background())
	require.NoError(t, err)
	assert.Len(t, md.Columns, 5)
	assert.Equal(t, []ForeignKey{{Table: "post", Column: "user_id", RefTable: "user", RefColumn: "Id"}}, md.ForeignKeys)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSource(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(strings.ReplaceAll(postgresColumns, ":db", "$1")).
		WithArgs("blog").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name"}).AddRow("user", "Id"))
	mock.ExpectQuery(strings.ReplaceAll(postgresForeignKeys, ":db", "$1")).
		WithArgs("blog").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "table_name", "column_name"}))

	src, err := NewSource(testConn{ExecQuerier: sql.OpenDB(dialect.Postgres, db), name: dialect.Postgres, database: "blog"})
	require.NoError(t, err)
	md, err := src.Inspect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Column{{"user", "Id"}}, md.Columns)
	assert.Empty(t, md.ForeignKeys)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSourceQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery("information_schema").WillReturnError(assert.AnError)

	src, err := NewSource(testConn{ExecQuerier: sql.OpenDB(dialect.MySQL, db), name: dialect.MySQL, database: "blog"})
	require.NoError(t, err)
	_, err = src.Inspect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)

	_, err = NewSource(testConn{name: "oracle"})
	assert.Error(t, err)
}

// openBlog creates the blog tables in a fresh SQLite file.
func openBlog(t *testing.T, roleRef string) *stdsql.DB {
	t.Helper()
	db, err := stdsql.Open("sqlite", filepath.Join(t.TempDir(), "blog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	for _, stmt := range []string{
		"CREATE TABLE user (Id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL, age INTEGER)",
		"CREATE TABLE post (Id INTEGER PRIMARY KEY AUTOINCREMENT, title TEXT, user_id INTEGER REFERENCES user(Id))",
		"CREATE TABLE role (Id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT)",
		"CREATE TABLE user_role (user_id INTEGER NOT NULL REFERENCES user(Id), role_id INTEGER NOT NULL REFERENCES " + roleRef + ")",
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	return db
}

func TestSQLiteSource(t *testing.T) {
	db := openBlog(t, "role")
	src, err := NewSource(testConn{ExecQuerier: sql.OpenDB(dialect.SQLite, db), name: dialect.SQLite})
	require.NoError(t, err)

	md, err := src.Inspect(context.Background())
	require.NoError(t, err)
	s := NewSchema(md)

	assert.ElementsMatch(t, []string{"post", "role", "user", "user_role"}, s.Tables())
	fields, err := s.Fields("user")
	require.NoError(t, err)
	assert.Equal(t, []string{"Id", "name", "age"}, fields)

	col, err := s.Link("post", "user")
	require.NoError(t, err)
	assert.Equal(t, "user_id", col)
	col, err = s.Link("role", "user_role")
	require.NoError(t, err)
	assert.Equal(t, IdentityColumn, col, "implicit reference resolves to the identity column")

	assoc, err := s.FindAssociation("user", "role")
	require.NoError(t, err)
	assert.Equal(t, "user_role", assoc.Table)
}

func TestAtlasSource(t *testing.T) {
	db := openBlog(t, "role(Id)")
	src, err := NewAtlasSource(dialect.SQLite, db)
	require.NoError(t, err)

	md, err := src.Inspect(context.Background())
	require.NoError(t, err)
	s := NewSchema(md)

	fields, err := s.Fields("post")
	require.NoError(t, err)
	assert.Equal(t, []string{"Id", "title", "user_id"}, fields)
	assert.True(t, s.IsLinked("user", "post"))
	col, err := s.Link("user_role", "role")
	require.NoError(t, err)
	assert.Equal(t, "role_id", col)
	assert.Contains(t, s.AssociationTables(), "user_role")

	_, err = NewAtlasSource("oracle", db)
	assert.Error(t, err)
}
