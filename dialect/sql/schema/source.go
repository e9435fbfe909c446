package schema

import (
	"context"
	stdsql "database/sql"
	"fmt"

	"github.com/syssam/relorm/dialect"
	"github.com/syssam/relorm/dialect/sql"
)

// Source introspects the tables, columns and foreign keys of a store.
type Source interface {
	Inspect(ctx context.Context) (*Metadata, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(context.Context) (*Metadata, error)

// Inspect calls f(ctx).
func (f SourceFunc) Inspect(ctx context.Context) (*Metadata, error) { return f(ctx) }

// Conn is the connection a catalog source reads from. *sql.Connector
// implements it.
type Conn interface {
	dialect.ExecQuerier
	Dialect() string
	Database() string
}

// NewSource returns the information-schema source matching the dialect of
// conn.
func NewSource(conn Conn) (Source, error) {
	switch d := conn.Dialect(); d {
	case dialect.MySQL:
		return &mysqlSource{conn: conn}, nil
	case dialect.Postgres:
		return &postgresSource{conn: conn}, nil
	case dialect.SQLite:
		return &sqliteSource{conn: conn}, nil
	default:
		return nil, fmt.Errorf("schema: unsupported dialect %q", d)
	}
}

const (
	mysqlColumns = "SELECT TABLE_NAME, COLUMN_NAME FROM information_schema.COLUMNS " +
		"WHERE TABLE_SCHEMA = :db ORDER BY TABLE_NAME, ORDINAL_POSITION"
	mysqlForeignKeys = "SELECT TABLE_NAME, COLUMN_NAME, REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME " +
		"FROM information_schema.KEY_COLUMN_USAGE " +
		"WHERE TABLE_SCHEMA = :db AND REFERENCED_TABLE_NAME IS NOT NULL"

	postgresColumns = "SELECT table_name, column_name FROM information_schema.columns " +
		"WHERE table_catalog = :db AND table_schema = current_schema() ORDER BY table_name, ordinal_position"
	postgresForeignKeys = "SELECT kcu.table_name, kcu.column_name, ccu.table_name, ccu.column_name " +
		"FROM information_schema.table_constraints tc " +
		"JOIN information_schema.key_column_usage kcu " +
		"ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema " +
		"JOIN information_schema.constraint_column_usage ccu " +
		"ON ccu.constraint_name = tc.constraint_name AND ccu.table_schema = tc.table_schema " +
		"WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_catalog = :db AND tc.table_schema = current_schema()"

	sqliteColumns = "SELECT m.name, p.name FROM sqlite_master m JOIN pragma_table_info(m.name) p " +
		"WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%' ORDER BY m.name, p.cid"
	sqliteForeignKeys = `SELECT m.name, f."from", f."table", f."to" FROM sqlite_master m ` +
		"JOIN pragma_foreign_key_list(m.name) f " +
		"WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%' ORDER BY m.name, f.id, f.seq"
)

type mysqlSource struct{ conn Conn }

func (s *mysqlSource) Inspect(ctx context.Context) (*Metadata, error) {
	return inspect(ctx, s.conn, mysqlColumns, mysqlForeignKeys, true)
}

type postgresSource struct{ conn Conn }

func (s *postgresSource) Inspect(ctx context.Context) (*Metadata, error) {
	return inspect(ctx, s.conn, postgresColumns, postgresForeignKeys, true)
}

type sqliteSource struct{ conn Conn }

func (s *sqliteSource) Inspect(ctx context.Context) (*Metadata, error) {
	return inspect(ctx, s.conn, sqliteColumns, sqliteForeignKeys, false)
}

// inspect runs the column and foreign-key queries. When scoped, both queries
// bind the active database name to :db.
func inspect(ctx context.Context, conn Conn, columnsQuery, fksQuery string, scoped bool) (*Metadata, error) {
	md := &Metadata{}
	err := query(ctx, conn, columnsQuery, scoped, func(rows *sql.Rows) error {
		var c Column
		if err := rows.Scan(&c.Table, &c.Name); err != nil {
			return err
		}
		md.Columns = append(md.Columns, c)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("schema: inspect columns: %w", err)
	}
	err = query(ctx, conn, fksQuery, scoped, func(rows *sql.Rows) error {
		var (
			fk  ForeignKey
			ref stdsql.NullString
		)
		if err := rows.Scan(&fk.Table, &fk.Column, &fk.RefTable, &ref); err != nil {
			return err
		}
		fk.RefColumn = ref.String
		md.ForeignKeys = append(md.ForeignKeys, fk)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("schema: inspect foreign keys: %w", err)
	}
	return md, nil
}

func query(ctx context.Context, conn Conn, q string, scoped bool, scan func(*sql.Rows) error) error {
	st := sql.NewStatement().WriteString(q)
	if scoped {
		if err := st.Bind("db", conn.Database()); err != nil {
			return err
		}
	}
	text, args, err := st.Build(conn.Dialect())
	if err != nil {
		return err
	}
	rows := &sql.Rows{}
	if err := conn.Query(ctx, text, args, rows); err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}
