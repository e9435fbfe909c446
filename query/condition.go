// Package query builds the WHERE and JOIN fragments of relorm statements.
// Table and column names are validated against a schema snapshot and
// written into the fragment; values are always bound as named parameters.
package query

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/syssam/relorm"
	"github.com/syssam/relorm/dialect/sql"
	"github.com/syssam/relorm/dialect/sql/schema"
)

// Condition is a single WHERE predicate on a table column. A scalar value
// compares with = (or LIKE), a list value tests membership with IN. Negate
// flips either form.
type Condition struct {
	schema *schema.Schema
	salt   string

	table string
	field string

	value    any
	list     []any
	isList   bool
	hasValue bool

	negate bool
	like   bool
}

// NewCondition returns an empty condition over the snapshot.
func NewCondition(s *schema.Schema) *Condition {
	return &Condition{schema: s, salt: newSalt()}
}

// newSalt returns a random parameter suffix.
func newSalt() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Reset clears every setting and draws a new parameter salt.
func (c *Condition) Reset() {
	*c = Condition{schema: c.schema, salt: newSalt()}
}

// SetTable resets the condition and targets the table.
func (c *Condition) SetTable(name string) error {
	table, err := c.schema.TableName(name)
	if err != nil {
		return err
	}
	c.Reset()
	c.table = table
	return nil
}

// SetField targets a column of the table, in its catalog casing.
func (c *Condition) SetField(name string) error {
	if c.table == "" {
		return fmt.Errorf("%w: table is not set", relorm.ErrIncompleteCondition)
	}
	field, err := c.schema.ResolveField(c.table, name)
	if err != nil {
		return err
	}
	c.field = field
	return nil
}

// SetValue sets the compared value. Slices and arrays, except []byte, are
// membership lists. A nil value or an empty list leaves the value unset.
func (c *Condition) SetValue(v any) *Condition {
	c.value, c.list, c.isList, c.hasValue = nil, nil, false, false
	if v == nil {
		return c
	}
	rv := reflect.ValueOf(v)
	if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Type().Elem().Kind() != reflect.Uint8 {
		if rv.Len() == 0 {
			return c
		}
		c.list = make([]any, rv.Len())
		for i := range c.list {
			c.list[i] = rv.Index(i).Interface()
		}
		c.isList, c.hasValue = true, true
		return c
	}
	c.value, c.hasValue = v, true
	return c
}

// Negate toggles between equality and inequality.
func (c *Condition) Negate() *Condition {
	c.negate = !c.negate
	return c
}

// ToggleLike toggles substring matching of scalar values.
func (c *Condition) ToggleLike() *Condition {
	c.like = !c.like
	return c
}

// Table returns the target table.
func (c *Condition) Table() string { return c.table }

// Field returns the target column.
func (c *Condition) Field() string { return c.field }

// Value returns the compared value, or the list of values.
func (c *Condition) Value() any {
	if c.isList {
		return c.list
	}
	return c.value
}

// Negated reports whether the condition is negated.
func (c *Condition) Negated() bool { return c.negate }

// Like reports whether scalar values match as substrings.
func (c *Condition) Like() bool { return c.like }

// Complete reports whether table, field and value are all set.
func (c *Condition) Complete() bool {
	return c.table != "" && c.field != "" && c.hasValue
}

func (c *Condition) check() error {
	switch {
	case c.table == "":
		return fmt.Errorf("%w: table is not set", relorm.ErrIncompleteCondition)
	case c.field == "":
		return fmt.Errorf("%w: field is not set", relorm.ErrIncompleteCondition)
	case !c.hasValue:
		return fmt.Errorf("%w: value of %s.%s is not set", relorm.ErrIncompleteCondition, c.table, c.field)
	}
	return nil
}

// params returns the parameter names used by SQL and BindTo. They derive
// from the salt, not from the column name.
func (c *Condition) params() []string {
	base := "w" + c.salt
	if !c.isList {
		return []string{base}
	}
	names := make([]string, len(c.list))
	for i := range c.list {
		names[i] = base + "_" + strconv.Itoa(i)
	}
	return names
}

// SQL renders the predicate.
//
//	user.name = :w6f1c...
//	user.Id NOT IN (:w6f1c..._0, :w6f1c..._1)
func (c *Condition) SQL() (string, error) {
	if err := c.check(); err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString(c.table + "." + c.field)
	params := c.params()
	if c.isList {
		if c.negate {
			sb.WriteString(" NOT")
		}
		sb.WriteString(" IN (")
		for i, p := range params {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(":" + p)
		}
		sb.WriteString(")")
		return sb.String(), nil
	}
	switch {
	case c.like && c.negate:
		sb.WriteString(" NOT LIKE ")
	case c.like:
		sb.WriteString(" LIKE ")
	case c.negate:
		sb.WriteString(" != ")
	default:
		sb.WriteString(" = ")
	}
	sb.WriteString(":" + params[0])
	return sb.String(), nil
}

// BindTo binds the values under the names SQL renders. LIKE values are
// wrapped in wildcards here, never in the statement text.
func (c *Condition) BindTo(st *sql.Statement) error {
	if err := c.check(); err != nil {
		return err
	}
	params := c.params()
	if c.isList {
		for i, p := range params {
			if err := st.Bind(p, c.list[i]); err != nil {
				return err
			}
		}
		return nil
	}
	v := c.value
	if c.like {
		v = fmt.Sprintf("%%%v%%", v)
	}
	return st.Bind(params[0], v)
}

// Write appends the predicate to the statement and binds its values.
func (c *Condition) Write(st *sql.Statement) error {
	frag, err := c.SQL()
	if err != nil {
		return err
	}
	if err := c.BindTo(st); err != nil {
		return err
	}
	st.WriteString(frag)
	return nil
}

// WriteWhere appends " WHERE c1 AND c2 ..." for the conditions. Nothing is
// written when conds is empty.
func WriteWhere(st *sql.Statement, conds ...*Condition) error {
	for i, c := range conds {
		if i == 0 {
			st.WriteString(" WHERE ")
		} else {
			st.WriteString(" AND ")
		}
		if err := c.Write(st); err != nil {
			return err
		}
	}
	return nil
}

// build returns a complete condition.
func build(s *schema.Schema, table, field string, v any, negate, like bool) (*Condition, error) {
	c := NewCondition(s)
	if err := c.SetTable(table); err != nil {
		return nil, err
	}
	if err := c.SetField(field); err != nil {
		return nil, err
	}
	c.SetValue(v)
	c.negate, c.like = negate, like
	if err := c.check(); err != nil {
		return nil, err
	}
	return c, nil
}

// Eq returns the condition table.field = v.
func Eq(s *schema.Schema, table, field string, v any) (*Condition, error) {
	return build(s, table, field, v, false, false)
}

// NotEq returns the condition table.field != v.
func NotEq(s *schema.Schema, table, field string, v any) (*Condition, error) {
	return build(s, table, field, v, true, false)
}

// Like returns the condition table.field LIKE %v%.
func Like(s *schema.Schema, table, field string, v any) (*Condition, error) {
	return build(s, table, field, v, false, true)
}

// NotLike returns the condition table.field NOT LIKE %v%.
func NotLike(s *schema.Schema, table, field string, v any) (*Condition, error) {
	return build(s, table, field, v, true, true)
}

// In returns the condition table.field IN (vs...).
func In[T any](s *schema.Schema, table, field string, vs ...T) (*Condition, error) {
	return build(s, table, field, vs, false, false)
}

// NotIn returns the condition table.field NOT IN (vs...).
func NotIn[T any](s *schema.Schema, table, field string, vs ...T) (*Condition, error) {
	return build(s, table, field, vs, true, false)
}
