package schema

import (
	"golang.org/x/text/cases"

	"github.com/syssam/relorm"
)

// IdentityColumn is the primary-key column every entity table carries. Links
// reported without a column resolve to it.
const IdentityColumn = "Id"

// Column is one (table, column) pair reported by a Source, in ordinal order.
type Column struct {
	Table string `msgpack:"t"`
	Name  string `msgpack:"n"`
}

// ForeignKey is one foreign-key column reported by a Source.
type ForeignKey struct {
	Table     string `msgpack:"t"`
	Column    string `msgpack:"c"`
	RefTable  string `msgpack:"rt"`
	RefColumn string `msgpack:"rc"`
}

// Metadata is the raw result of an introspection.
type Metadata struct {
	Columns     []Column     `msgpack:"columns"`
	ForeignKeys []ForeignKey `msgpack:"fks"`
}

// Table is the catalog entry of a single table.
type Table struct {
	Name    string
	Columns []string

	columns map[string]string // folded -> canonical
	links   map[string]link   // folded table -> link
}

type link struct {
	table  string
	column string
}

// Links returns the linked tables mapped to the local column of each link.
func (t *Table) Links() map[string]string {
	m := make(map[string]string, len(t.links))
	for _, l := range t.links {
		m[l.table] = l.column
	}
	return m
}

// Schema is an immutable snapshot of the introspected tables. It is safe for
// concurrent use. Table and column lookups are case-insensitive.
type Schema struct {
	tables map[string]*Table
	order  []string
}

// fold returns the case-folded form used as lookup key. Casers are stateful,
// so one is created per call.
func fold(s string) string {
	return cases.Fold().String(s)
}

// NewSchema builds a snapshot from introspection metadata. Every foreign key
// is recorded on both tables: the referencing table maps the referenced table
// to the foreign-key column, and the referenced table maps the referencing
// table to the referenced column.
func NewSchema(md *Metadata) *Schema {
	s := &Schema{tables: make(map[string]*Table)}
	for _, c := range md.Columns {
		t := s.add(c.Table)
		key := fold(c.Name)
		if _, ok := t.columns[key]; ok {
			continue
		}
		t.columns[key] = c.Name
		t.Columns = append(t.Columns, c.Name)
	}
	for _, fk := range md.ForeignKeys {
		from, to := s.add(fk.Table), s.add(fk.RefTable)
		from.links[fold(to.Name)] = link{table: to.Name, column: fk.Column}
		to.links[fold(from.Name)] = link{table: from.Name, column: fk.RefColumn}
	}
	return s
}

func (s *Schema) add(name string) *Table {
	key := fold(name)
	if t, ok := s.tables[key]; ok {
		return t
	}
	t := &Table{
		Name:    name,
		columns: make(map[string]string),
		links:   make(map[string]link),
	}
	s.tables[key] = t
	s.order = append(s.order, name)
	return t
}

// Tables returns the table names in the order they were reported.
func (s *Schema) Tables() []string {
	return append([]string(nil), s.order...)
}

// Len returns the number of tables.
func (s *Schema) Len() int { return len(s.order) }

// Table returns the entry of the named table.
func (s *Schema) Table(name string) (*Table, error) {
	t, ok := s.tables[fold(name)]
	if !ok {
		return nil, relorm.NewUnknownEntityError(name)
	}
	return t, nil
}

// TableExists reports whether the table is known.
func (s *Schema) TableExists(name string) bool {
	_, ok := s.tables[fold(name)]
	return ok
}

// TableName returns the canonical casing of a table name.
func (s *Schema) TableName(name string) (string, error) {
	t, err := s.Table(name)
	if err != nil {
		return "", err
	}
	return t.Name, nil
}

// Fields returns the ordered column names of a table.
func (s *Schema) Fields(table string) ([]string, error) {
	t, err := s.Table(table)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), t.Columns...), nil
}

// HasField reports whether the table has the column.
func (s *Schema) HasField(table, field string) bool {
	_, err := s.ResolveField(table, field)
	return err == nil
}

// ResolveField returns the canonical casing of a column.
func (s *Schema) ResolveField(table, field string) (string, error) {
	t, err := s.Table(table)
	if err != nil {
		return "", err
	}
	name, ok := t.columns[fold(field)]
	if !ok {
		return "", relorm.NewUnknownFieldError(t.Name, field)
	}
	return name, nil
}

// Links returns the tables linked to table, mapped to the local column.
func (s *Schema) Links(table string) (map[string]string, error) {
	t, err := s.Table(table)
	if err != nil {
		return nil, err
	}
	return t.Links(), nil
}

// IsLinked reports whether a foreign key connects a and b directly.
func (s *Schema) IsLinked(a, b string) bool {
	t, ok := s.tables[fold(a)]
	if !ok {
		return false
	}
	_, ok = t.links[fold(b)]
	return ok
}

// Link returns the column of table that takes part in its link to other.
func (s *Schema) Link(table, other string) (string, error) {
	t, err := s.Table(table)
	if err != nil {
		return "", err
	}
	l, ok := t.links[fold(other)]
	if !ok {
		return "", relorm.NewLinkError(relorm.ErrNotLinked, t.Name, other)
	}
	if l.column == "" {
		return IdentityColumn, nil
	}
	return l.column, nil
}

// Association is a many-to-many join table: two columns, each a foreign key
// to one of the associated tables.
type Association struct {
	Table   string
	Columns map[string]string // associated table -> column in Table
}

// Column returns the column of the join table that references table.
func (a *Association) Column(table string) (string, bool) {
	for t, c := range a.Columns {
		if fold(t) == fold(table) {
			return c, true
		}
	}
	return "", false
}

// AssociationTables returns the join tables keyed by table name. A join table
// has exactly two columns, two links and no identity column.
func (s *Schema) AssociationTables() map[string]*Association {
	m := make(map[string]*Association)
	for _, name := range s.order {
		if a := s.association(s.tables[fold(name)]); a != nil {
			m[a.Table] = a
		}
	}
	return m
}

func (s *Schema) association(t *Table) *Association {
	if len(t.Columns) != 2 || len(t.links) != 2 {
		return nil
	}
	if _, ok := t.columns[fold(IdentityColumn)]; ok {
		return nil
	}
	a := &Association{Table: t.Name, Columns: make(map[string]string, 2)}
	for _, l := range t.links {
		a.Columns[l.table] = l.column
	}
	return a
}

// FindAssociation returns the join table associating a and b. Join tables are
// scanned in catalog order.
func (s *Schema) FindAssociation(a, b string) (*Association, error) {
	fa, fb := fold(a), fold(b)
	for _, name := range s.order {
		t := s.tables[fold(name)]
		assoc := s.association(t)
		if assoc == nil {
			continue
		}
		_, okA := t.links[fa]
		_, okB := t.links[fb]
		if okA && okB && fa != fb {
			return assoc, nil
		}
	}
	return nil, relorm.NewLinkError(relorm.ErrNoAssociation, a, b)
}
