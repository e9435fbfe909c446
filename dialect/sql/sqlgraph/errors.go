// Package sqlgraph classifies store errors raised by statements that touch
// linked tables.
package sqlgraph

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"github.com/syssam/relorm"
)

// IsConstraintError returns true if the error resulted from a database constraint violation.
func IsConstraintError(err error) bool {
	return relorm.IsConstraintError(err) ||
		IsUniqueConstraintError(err) ||
		IsForeignKeyConstraintError(err) ||
		IsCheckConstraintError(err)
}

// Classify wraps a store error in a relorm.ConstraintError when it reports a
// constraint violation. Other errors, and nil, are returned unchanged.
func Classify(err error) error {
	switch {
	case err == nil, relorm.IsConstraintError(err):
		return err
	case IsUniqueConstraintError(err):
		return relorm.NewConstraintError("unique", err)
	case IsForeignKeyConstraintError(err):
		return relorm.NewConstraintError("foreign key", err)
	case IsCheckConstraintError(err):
		return relorm.NewConstraintError("check", err)
	default:
		return err
	}
}

// errorCoder is implemented by modernc.org/sqlite errors.
type errorCoder interface {
	Code() int
}

// PostgreSQL SQLSTATE codes for constraint violations (Class 23).
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// MySQL error numbers for constraint violations.
const (
	mysqlDuplicateEntry         = 1062
	mysqlForeignKeyParent       = 1451 // Cannot delete or update a parent row
	mysqlForeignKeyChild        = 1452 // Cannot add or update a child row
	mysqlCheckConstraintViolate = 3819
)

// SQLite extended result codes for constraint violations.
const (
	sqliteConstraintCheck      = 275
	sqliteConstraintForeignKey = 787
	sqliteConstraintPrimaryKey = 1555
	sqliteConstraintUnique     = 2067
)

// IsUniqueConstraintError reports if the error resulted from a DB uniqueness constraint violation.
// e.g. duplicate value in unique index.
func IsUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := asError[*pq.Error](err); ok && string(e.Code) == pgUniqueViolation {
		return true
	}
	if e, ok := asError[*mysql.MySQLError](err); ok && e.Number == mysqlDuplicateEntry {
		return true
	}
	if e, ok := asError[errorCoder](err); ok {
		if c := e.Code(); c == sqliteConstraintUnique || c == sqliteConstraintPrimaryKey {
			return true
		}
	}
	// Fallback to string matching for wrapped or foreign drivers.
	return containsAny(err.Error(),
		"Error 1062",                 // MySQL
		"violates unique constraint", // Postgres
		"UNIQUE constraint failed",   // SQLite
	)
}

// IsForeignKeyConstraintError reports if the error resulted from a database foreign-key constraint violation.
// e.g. parent row does not exist.
func IsForeignKeyConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := asError[*pq.Error](err); ok && string(e.Code) == pgForeignKeyViolation {
		return true
	}
	if e, ok := asError[*mysql.MySQLError](err); ok &&
		(e.Number == mysqlForeignKeyParent || e.Number == mysqlForeignKeyChild) {
		return true
	}
	if e, ok := asError[errorCoder](err); ok && e.Code() == sqliteConstraintForeignKey {
		return true
	}
	return containsAny(err.Error(),
		"Error 1451",                      // MySQL (Cannot delete or update a parent row)
		"Error 1452",                      // MySQL (Cannot add or update a child row)
		"violates foreign key constraint", // Postgres
		"FOREIGN KEY constraint failed",   // SQLite
	)
}

// IsCheckConstraintError reports if the error resulted from a database check constraint violation.
func IsCheckConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := asError[*pq.Error](err); ok && string(e.Code) == pgCheckViolation {
		return true
	}
	if e, ok := asError[*mysql.MySQLError](err); ok && e.Number == mysqlCheckConstraintViolate {
		return true
	}
	if e, ok := asError[errorCoder](err); ok && e.Code() == sqliteConstraintCheck {
		return true
	}
	return containsAny(err.Error(),
		"Error 3819",                // MySQL
		"violates check constraint", // Postgres
		"CHECK constraint failed",   // SQLite
	)
}

// asError attempts to extract an error implementing interface T from the error chain.
func asError[T any](err error) (T, bool) {
	var target T
	for err != nil {
		if e, ok := err.(T); ok {
			return e, true
		}
		err = errors.Unwrap(err)
	}
	return target, false
}

// containsAny returns true if s contains any of the substrings.
func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
