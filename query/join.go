package query

import (
	"fmt"

	"github.com/syssam/relorm"
	"github.com/syssam/relorm/dialect/sql/schema"
)

// Join is an INNER JOIN of a target table onto a source table linked to it
// by a foreign key. The source may be left unset; Resolve then picks the
// first available table linked to the target.
type Join struct {
	schema *schema.Schema
	source string
	target string
}

// NewJoin returns an empty join over the snapshot.
func NewJoin(s *schema.Schema) *Join {
	return &Join{schema: s}
}

// JoinOn returns a join of target onto source. An empty source is resolved
// later.
func JoinOn(s *schema.Schema, target, source string) (*Join, error) {
	j := NewJoin(s)
	if err := j.SetTarget(target); err != nil {
		return nil, err
	}
	if source == "" {
		return j, nil
	}
	if err := j.SetSource(source); err != nil {
		return nil, err
	}
	return j, nil
}

// SetTarget resets the join and sets its target table.
func (j *Join) SetTarget(name string) error {
	table, err := j.schema.TableName(name)
	if err != nil {
		return err
	}
	j.source, j.target = "", table
	return nil
}

// SetSource sets the table the target joins onto. The target must be set
// and linked to the source.
func (j *Join) SetSource(name string) error {
	if j.target == "" {
		return relorm.ErrMissingJoinTarget
	}
	table, err := j.schema.TableName(name)
	if err != nil {
		return err
	}
	if !j.schema.IsLinked(table, j.target) {
		return relorm.NewLinkError(relorm.ErrNotLinked, table, j.target)
	}
	j.source = table
	return nil
}

// Source returns the source table, empty until set or resolved.
func (j *Join) Source() string { return j.source }

// Target returns the target table.
func (j *Join) Target() string { return j.target }

// Resolve checks the join against the tables already available to the
// statement and returns them with the target appended. An unset source is
// resolved to the first available table linked to the target.
func (j *Join) Resolve(available []string) ([]string, error) {
	if j.target == "" {
		return nil, relorm.ErrMissingJoinTarget
	}
	if j.source != "" {
		if !j.available(available, j.source) {
			return nil, relorm.NewLinkError(relorm.ErrSourceNotAvailable, j.source, j.target)
		}
		return append(available, j.target), nil
	}
	for _, table := range available {
		if j.schema.IsLinked(table, j.target) {
			name, err := j.schema.TableName(table)
			if err != nil {
				return nil, err
			}
			j.source = name
			return append(available, j.target), nil
		}
	}
	return nil, relorm.NewLinkError(relorm.ErrUnreachableTable, "", j.target)
}

// SQL renders the join. The link columns are read from the catalog in both
// directions; a link without a column uses the identity column.
//
//	INNER JOIN post ON user.Id = post.user_id
func (j *Join) SQL() (string, error) {
	if j.target == "" {
		return "", relorm.ErrMissingJoinTarget
	}
	if j.source == "" {
		return "", fmt.Errorf("%w: source of %s is not resolved", relorm.ErrSourceNotAvailable, j.target)
	}
	from, err := j.schema.Link(j.source, j.target)
	if err != nil {
		return "", err
	}
	to, err := j.schema.Link(j.target, j.source)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("INNER JOIN %s ON %s.%s = %s.%s", j.target, j.source, from, j.target, to), nil
}

// available reports whether the canonical table name is among tables.
func (j *Join) available(tables []string, name string) bool {
	for _, t := range tables {
		if canonical, err := j.schema.TableName(t); err == nil && canonical == name {
			return true
		}
	}
	return false
}
