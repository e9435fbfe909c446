// Package repository executes the statements of one entity table.
//
// Every table and column a statement names is checked against the schema
// catalog before it is written into the statement text; values are bound.
package repository

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"github.com/syssam/relorm"
	"github.com/syssam/relorm/dialect"
	"github.com/syssam/relorm/dialect/sql"
	"github.com/syssam/relorm/dialect/sql/schema"
	"github.com/syssam/relorm/dialect/sql/sqlgraph"
	"github.com/syssam/relorm/query"
)

// Repository is the data-access gateway of a single table.
type Repository struct {
	table   string
	drv     dialect.Driver
	catalog *schema.Catalog
	log     *slog.Logger
}

// Option configures a Repository.
type Option func(*Repository)

// WithLogger sets the logger used for statement events.
func WithLogger(l *slog.Logger) Option {
	return func(r *Repository) {
		r.log = l
	}
}

// New returns the repository of table. The table is checked against the
// catalog by every operation.
func New(drv dialect.Driver, catalog *schema.Catalog, table string, opts ...Option) *Repository {
	r := &Repository{
		table:   table,
		drv:     drv,
		catalog: catalog,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Table returns the table name as given to New.
func (r *Repository) Table() string { return r.table }

// Schema returns the catalog snapshot.
func (r *Repository) Schema(ctx context.Context) (*schema.Schema, error) {
	return r.catalog.Schema(ctx)
}

// resolve returns the snapshot and the canonical table name.
func (r *Repository) resolve(ctx context.Context) (*schema.Schema, string, error) {
	s, err := r.catalog.Schema(ctx)
	if err != nil {
		return nil, "", err
	}
	table, err := s.TableName(r.table)
	if err != nil {
		return nil, "", err
	}
	return s, table, nil
}

// columns resolves the keys of values to catalog columns, sorted.
func columns(s *schema.Schema, table string, values map[string]any) ([]string, map[string]any, error) {
	cols := make([]string, 0, len(values))
	resolved := make(map[string]any, len(values))
	for k, v := range values {
		col, err := s.ResolveField(table, k)
		if err != nil {
			return nil, nil, err
		}
		if _, ok := resolved[col]; ok {
			return nil, nil, fmt.Errorf("repository: column %s.%s given twice", table, col)
		}
		resolved[col] = v
		cols = append(cols, col)
	}
	slices.Sort(cols)
	return cols, resolved, nil
}

// valueParam names the parameter of the i-th written column. Conditions
// bind under the "w" prefix, so the two never collide.
func valueParam(i int) string {
	return "v" + strconv.Itoa(i)
}

// bindValues writes ":v0, :v1, ..." and binds the values of cols in order.
func bindValues(st *sql.Statement, cols []string, values map[string]any) error {
	for i, c := range cols {
		if i > 0 {
			st.WriteString(", ")
		}
		st.WriteString(":" + valueParam(i))
		if err := st.Bind(valueParam(i), values[c]); err != nil {
			return err
		}
	}
	return nil
}

// Insert writes one row and returns the identity the store generated. Nil
// values are written as NULL.
//
//	INSERT INTO user (age, name) VALUES (:v0, :v1)
func (r *Repository) Insert(ctx context.Context, values map[string]any) (int64, error) {
	s, table, err := r.resolve(ctx)
	if err != nil {
		return 0, err
	}
	cols, resolved, err := columns(s, table, values)
	if err != nil {
		return 0, err
	}
	st := sql.NewStatement().WriteString("INSERT INTO " + table)
	switch {
	case len(cols) > 0:
		st.WriteString(" (")
		for i, c := range cols {
			if i > 0 {
				st.WriteString(", ")
			}
			st.WriteString(c)
		}
		st.WriteString(") VALUES (")
		if err := bindValues(st, cols, resolved); err != nil {
			return 0, err
		}
		st.WriteString(")")
	case r.drv.Dialect() == dialect.MySQL:
		st.WriteString(" () VALUES ()")
	default:
		st.WriteString(" DEFAULT VALUES")
	}
	if r.drv.Dialect() == dialect.Postgres {
		return r.insertReturning(ctx, st, table)
	}
	text, args, err := st.Build(r.drv.Dialect())
	if err != nil {
		return 0, err
	}
	var res sql.Result
	if err := r.drv.Exec(ctx, text, args, &res); err != nil {
		return 0, relorm.NewMutationError(table, "insert", sqlgraph.Classify(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, relorm.NewMutationError(table, "insert", err)
	}
	r.log.DebugContext(ctx, "row inserted", "table", table, "id", id)
	return id, nil
}

func (r *Repository) insertReturning(ctx context.Context, st *sql.Statement, table string) (int64, error) {
	st.WriteString(" RETURNING " + schema.IdentityColumn)
	text, args, err := st.Build(dialect.Postgres)
	if err != nil {
		return 0, err
	}
	rows := &sql.Rows{}
	if err := r.drv.Query(ctx, text, args, rows); err != nil {
		return 0, relorm.NewMutationError(table, "insert", sqlgraph.Classify(err))
	}
	defer rows.Close()
	var id int64
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, relorm.NewMutationError(table, "insert", err)
		}
		return 0, relorm.NewMutationError(table, "insert", fmt.Errorf("no identity returned"))
	}
	if err := rows.Scan(&id); err != nil {
		return 0, relorm.NewMutationError(table, "insert", err)
	}
	r.log.DebugContext(ctx, "row inserted", "table", table, "id", id)
	return id, nil
}

// InsertWithID writes one row whose identity is supplied by the caller, as
// the non-root tables of an inheritance chain do.
func (r *Repository) InsertWithID(ctx context.Context, id int64, values map[string]any) error {
	s, table, err := r.resolve(ctx)
	if err != nil {
		return err
	}
	identity, err := s.ResolveField(table, schema.IdentityColumn)
	if err != nil {
		return err
	}
	row := make(map[string]any, len(values)+1)
	for k, v := range values {
		row[k] = v
	}
	row[identity] = id
	return r.insertRow(ctx, s, table, row)
}

// InsertRow writes one row without reading back an identity. Join tables,
// which carry no identity column, are written this way.
//
//	INSERT INTO user_role (role_id, user_id) VALUES (:v0, :v1)
func (r *Repository) InsertRow(ctx context.Context, values map[string]any) error {
	s, table, err := r.resolve(ctx)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return fmt.Errorf("%w: insert into %s sets no column", relorm.ErrNoFields, table)
	}
	return r.insertRow(ctx, s, table, values)
}

func (r *Repository) insertRow(ctx context.Context, s *schema.Schema, table string, values map[string]any) error {
	cols, resolved, err := columns(s, table, values)
	if err != nil {
		return err
	}
	st := sql.NewStatement().WriteString("INSERT INTO " + table + " (")
	for i, c := range cols {
		if i > 0 {
			st.WriteString(", ")
		}
		st.WriteString(c)
	}
	st.WriteString(") VALUES (")
	if err := bindValues(st, cols, resolved); err != nil {
		return err
	}
	st.WriteString(")")
	_, err = r.exec(ctx, st, table, "insert")
	return err
}

// Update sets values on the rows matching every condition and returns the
// number of rows affected. At least one condition is required.
//
//	UPDATE user SET name = :v0 WHERE user.Id = :w...
func (r *Repository) Update(ctx context.Context, values map[string]any, conds ...*query.Condition) (int64, error) {
	if len(conds) == 0 {
		return 0, fmt.Errorf("%w: update of %s requires a condition", relorm.ErrIncompleteCondition, r.table)
	}
	s, table, err := r.resolve(ctx)
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("%w: update of %s sets no column", relorm.ErrNoFields, table)
	}
	cols, resolved, err := columns(s, table, values)
	if err != nil {
		return 0, err
	}
	if err := available(s, []string{table}, conds); err != nil {
		return 0, err
	}
	st := sql.NewStatement().WriteString("UPDATE " + table + " SET ")
	for i, c := range cols {
		if i > 0 {
			st.WriteString(", ")
		}
		st.WriteString(c + " = :" + valueParam(i))
		if err := st.Bind(valueParam(i), resolved[c]); err != nil {
			return 0, err
		}
	}
	if err := query.WriteWhere(st, conds...); err != nil {
		return 0, err
	}
	return r.exec(ctx, st, table, "update")
}

// Delete removes the rows matching every condition and returns the number
// of rows affected. At least one condition is required.
func (r *Repository) Delete(ctx context.Context, conds ...*query.Condition) (int64, error) {
	if len(conds) == 0 {
		return 0, fmt.Errorf("%w: delete from %s requires a condition", relorm.ErrIncompleteCondition, r.table)
	}
	s, table, err := r.resolve(ctx)
	if err != nil {
		return 0, err
	}
	if err := available(s, []string{table}, conds); err != nil {
		return 0, err
	}
	st := sql.NewStatement().WriteString("DELETE FROM " + table)
	if err := query.WriteWhere(st, conds...); err != nil {
		return 0, err
	}
	return r.exec(ctx, st, table, "delete")
}

func (r *Repository) exec(ctx context.Context, st *sql.Statement, table, op string) (int64, error) {
	text, args, err := st.Build(r.drv.Dialect())
	if err != nil {
		return 0, err
	}
	var res sql.Result
	if err := r.drv.Exec(ctx, text, args, &res); err != nil {
		return 0, relorm.NewMutationError(table, op, sqlgraph.Classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, relorm.NewMutationError(table, op, err)
	}
	r.log.DebugContext(ctx, "rows affected", "table", table, "op", op, "rows", n)
	return n, nil
}

// SelectOption configures a select.
type SelectOption func(*selectConfig)

type selectConfig struct {
	joins []*query.Join
	conds []*query.Condition
}

// WithJoins joins tables onto the repository table, in order. Each join may
// reference the tables made available by the ones before it.
func WithJoins(joins ...*query.Join) SelectOption {
	return func(c *selectConfig) {
		c.joins = append(c.joins, joins...)
	}
}

// Where filters the rows by every condition.
func Where(conds ...*query.Condition) SelectOption {
	return func(c *selectConfig) {
		c.conds = append(c.conds, conds...)
	}
}

// Select reads the given columns, keyed by table. Every table must be the
// repository table or one made available by a join. Rows map column labels
// to values; when two tables share a label the later table wins.
//
//	SELECT user.Id, post.title FROM user INNER JOIN post ON user.Id = post.user_id WHERE ...
func (r *Repository) Select(ctx context.Context, fields map[string][]string, opts ...SelectOption) ([]map[string]any, error) {
	s, table, err := r.resolve(ctx)
	if err != nil {
		return nil, err
	}
	cfg, tables, err := r.prepare(s, table, opts)
	if err != nil {
		return nil, err
	}
	byTable := make(map[string][]string, len(fields))
	for name, cols := range fields {
		t, err := s.TableName(name)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(tables, t) {
			return nil, &relorm.SchemaError{Kind: relorm.ErrUnknownEntity, Table: name, Msg: "not available in this statement"}
		}
		for _, c := range cols {
			col, err := s.ResolveField(t, c)
			if err != nil {
				return nil, err
			}
			byTable[t] = append(byTable[t], col)
		}
	}
	var selected []string
	for _, t := range tables {
		for _, c := range byTable[t] {
			selected = append(selected, t+"."+c)
		}
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: select from %s names no column", relorm.ErrNoFields, table)
	}
	return r.query(ctx, table, selected, cfg)
}

// SelectAll reads every column of the repository table and of each joined
// table.
func (r *Repository) SelectAll(ctx context.Context, opts ...SelectOption) ([]map[string]any, error) {
	s, table, err := r.resolve(ctx)
	if err != nil {
		return nil, err
	}
	cfg, tables, err := r.prepare(s, table, opts)
	if err != nil {
		return nil, err
	}
	var selected []string
	for _, t := range tables {
		cols, err := s.Fields(t)
		if err != nil {
			return nil, err
		}
		for _, c := range cols {
			selected = append(selected, t+"."+c)
		}
	}
	return r.query(ctx, table, selected, cfg)
}

// Exists reports whether a row matches every condition.
func (r *Repository) Exists(ctx context.Context, conds ...*query.Condition) (bool, error) {
	rows, err := r.Select(ctx, map[string][]string{r.table: {schema.IdentityColumn}}, Where(conds...))
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// prepare resolves the joins and checks the conditions. It returns the
// tables available to the statement, the repository table first.
func (r *Repository) prepare(s *schema.Schema, table string, opts []SelectOption) (*selectConfig, []string, error) {
	cfg := &selectConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	tables := []string{table}
	for _, j := range cfg.joins {
		var err error
		if tables, err = j.Resolve(tables); err != nil {
			return nil, nil, err
		}
	}
	if err := available(s, tables, cfg.conds); err != nil {
		return nil, nil, err
	}
	return cfg, tables, nil
}

func (r *Repository) query(ctx context.Context, table string, selected []string, cfg *selectConfig) ([]map[string]any, error) {
	st := sql.NewStatement().WriteString("SELECT ")
	for i, c := range selected {
		if i > 0 {
			st.WriteString(", ")
		}
		st.WriteString(c)
	}
	st.WriteString(" FROM " + table)
	for _, j := range cfg.joins {
		frag, err := j.SQL()
		if err != nil {
			return nil, err
		}
		st.WriteString(" " + frag)
	}
	if err := query.WriteWhere(st, cfg.conds...); err != nil {
		return nil, err
	}
	text, args, err := st.Build(r.drv.Dialect())
	if err != nil {
		return nil, err
	}
	rows := &sql.Rows{}
	if err := r.drv.Query(ctx, text, args, rows); err != nil {
		return nil, relorm.NewQueryError(table, "select", err)
	}
	result, err := sql.ScanMaps(rows)
	if err != nil {
		return nil, relorm.NewQueryError(table, "select", err)
	}
	return result, nil
}

// available checks that every condition targets one of tables.
func available(s *schema.Schema, tables []string, conds []*query.Condition) error {
	for _, c := range conds {
		if c == nil {
			return fmt.Errorf("%w: nil condition", relorm.ErrIncompleteCondition)
		}
		if !c.Complete() {
			_, err := c.SQL()
			return err
		}
		t, err := s.TableName(c.Table())
		if err != nil {
			return err
		}
		if !slices.Contains(tables, t) {
			return &relorm.SchemaError{Kind: relorm.ErrUnknownEntity, Table: c.Table(), Msg: "not available in this statement"}
		}
	}
	return nil
}
