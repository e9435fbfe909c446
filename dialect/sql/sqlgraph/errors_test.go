package sqlgraph

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/syssam/relorm"
)

type sqliteError int

func (e sqliteError) Error() string { return fmt.Sprintf("sqlite error %d", int(e)) }
func (e sqliteError) Code() int     { return int(e) }

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		constraint bool
		unique     bool
		foreignKey bool
		check      bool
	}{
		{name: "nil"},
		{name: "plain", err: errors.New("connection refused")},
		{name: "mysql duplicate", err: &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, constraint: true, unique: true},
		{name: "mysql child row", err: fmt.Errorf("insert: %w", &mysql.MySQLError{Number: 1452}), constraint: true, foreignKey: true},
		{name: "postgres unique", err: &pq.Error{Code: "23505"}, constraint: true, unique: true},
		{name: "postgres check", err: &pq.Error{Code: "23514"}, constraint: true, check: true},
		{name: "sqlite foreign key", err: sqliteError(787), constraint: true, foreignKey: true},
		{name: "sqlite primary key", err: sqliteError(1555), constraint: true, unique: true},
		{name: "message fallback", err: errors.New("UNIQUE constraint failed: role.name"), constraint: true, unique: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.unique, IsUniqueConstraintError(tt.err))
			assert.Equal(t, tt.foreignKey, IsForeignKeyConstraintError(tt.err))
			assert.Equal(t, tt.check, IsCheckConstraintError(tt.err))

			got := Classify(tt.err)
			assert.Equal(t, tt.constraint, relorm.IsConstraintError(got))
			assert.Equal(t, tt.constraint, IsConstraintError(got))
			if tt.err != nil {
				assert.ErrorIs(t, got, tt.err)
			}
		})
	}
}

func TestClassifyKeepsConstraintErrors(t *testing.T) {
	t.Parallel()
	err := relorm.NewConstraintError("unique", errors.New("dup"))
	assert.Equal(t, err, Classify(err))
}
