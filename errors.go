package relorm

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors, one per failure kind. Typed errors below match their
// sentinel through errors.Is.
var (
	// ErrUnknownEntity is returned when a table is absent from the schema catalog.
	ErrUnknownEntity = errors.New("relorm: unknown entity")

	// ErrUnknownField is returned when a column is absent from a table.
	ErrUnknownField = errors.New("relorm: unknown field")

	// ErrNotLinked is returned when no foreign key directly connects two tables.
	ErrNotLinked = errors.New("relorm: tables not linked")

	// ErrNoAssociation is returned when no association table joins two tables.
	ErrNoAssociation = errors.New("relorm: no association table")

	// ErrUnreachableTable is returned when a join target has no linked source
	// among the tables available to the statement.
	ErrUnreachableTable = errors.New("relorm: unreachable table")

	// ErrIncompleteCondition is returned when a condition is used before its
	// table, field and value are set.
	ErrIncompleteCondition = errors.New("relorm: incomplete condition")

	// ErrMissingJoinTarget is returned when a join is resolved without a target.
	ErrMissingJoinTarget = errors.New("relorm: missing join target")

	// ErrSourceNotAvailable is returned when an explicit join source is not
	// available in the statement.
	ErrSourceNotAvailable = errors.New("relorm: join source not available")

	// ErrTypeMismatch is returned when a field rejects a value.
	ErrTypeMismatch = errors.New("relorm: type mismatch")

	// ErrInvalidFormat is returned when a date string cannot be parsed.
	ErrInvalidFormat = errors.New("relorm: invalid format")

	// ErrNonNullableFieldMissing is returned when a non-nullable field has no value.
	ErrNonNullableFieldMissing = errors.New("relorm: non-nullable field missing")

	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("relorm: entity not found")

	// ErrNotPersisted is returned when an operation requires a persisted entity.
	ErrNotPersisted = errors.New("relorm: entity not persisted")

	// ErrStaleID is returned when the identity of a persisted entity no longer
	// matches a stored row.
	ErrStaleID = errors.New("relorm: stale identity")

	// ErrConnection is returned when the store is unreachable.
	ErrConnection = errors.New("relorm: connection failed")

	// ErrIdentityReassigned is returned when an identity is assigned twice.
	ErrIdentityReassigned = errors.New("relorm: identity already assigned")

	// ErrNoFields is returned when a statement that needs columns names none:
	// an insert of a join row, an update or a select.
	ErrNoFields = errors.New("relorm: no columns given")
)

// SchemaError reports an invalid reference to a table or a column.
type SchemaError struct {
	Kind  error // ErrUnknownEntity or ErrUnknownField
	Table string
	Field string
	Msg   string
}

// Error returns the error string.
func (e *SchemaError) Error() string {
	var sb strings.Builder
	if e.Field != "" {
		fmt.Fprintf(&sb, "relorm: table %q has no field %q", e.Table, e.Field)
	} else {
		fmt.Fprintf(&sb, "relorm: table %q does not exist", e.Table)
	}
	if e.Msg != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Msg)
	}
	return sb.String()
}

// Is reports whether the target matches the error kind.
func (e *SchemaError) Is(err error) bool {
	return err == e.Kind
}

// NewUnknownEntityError returns a SchemaError for a missing table.
func NewUnknownEntityError(table string) *SchemaError {
	return &SchemaError{Kind: ErrUnknownEntity, Table: table}
}

// NewUnknownFieldError returns a SchemaError for a missing column.
func NewUnknownFieldError(table, field string) *SchemaError {
	return &SchemaError{Kind: ErrUnknownField, Table: table, Field: field}
}

// IsUnknownEntity returns true if the error is an unknown-entity error.
func IsUnknownEntity(err error) bool {
	return errors.Is(err, ErrUnknownEntity)
}

// IsUnknownField returns true if the error is an unknown-field error.
func IsUnknownField(err error) bool {
	return errors.Is(err, ErrUnknownField)
}

// LinkError reports a failure to resolve a path between two tables.
type LinkError struct {
	Kind error // ErrNotLinked, ErrNoAssociation, ErrUnreachableTable or ErrSourceNotAvailable
	From string
	To   string
}

// Error returns the error string.
func (e *LinkError) Error() string {
	switch e.Kind {
	case ErrNoAssociation:
		return fmt.Sprintf("relorm: %s and %s are not linked by an association table", e.From, e.To)
	case ErrUnreachableTable:
		return fmt.Sprintf("relorm: table %s is unreachable", e.To)
	case ErrSourceNotAvailable:
		return fmt.Sprintf("relorm: join source %s is not available for %s", e.From, e.To)
	default:
		return fmt.Sprintf("relorm: %s and %s are not linked", e.From, e.To)
	}
}

// Is reports whether the target matches the error kind.
func (e *LinkError) Is(err error) bool {
	return err == e.Kind
}

// NewLinkError returns a new LinkError of the given kind.
func NewLinkError(kind error, from, to string) *LinkError {
	return &LinkError{Kind: kind, From: from, To: to}
}

// IsNotLinked returns true if the error is a not-linked error.
func IsNotLinked(err error) bool {
	return errors.Is(err, ErrNotLinked)
}

// IsNoAssociation returns true if the error is a no-association error.
func IsNoAssociation(err error) bool {
	return errors.Is(err, ErrNoAssociation)
}

// IsUnreachableTable returns true if the error is an unreachable-table error.
func IsUnreachableTable(err error) bool {
	return errors.Is(err, ErrUnreachableTable)
}

// FieldError reports a value rejected by a field.
type FieldError struct {
	Kind  error // ErrTypeMismatch, ErrInvalidFormat, ErrIdentityReassigned or ErrNotPersisted
	Field string
	Msg   string
}

// Error returns the error string.
func (e *FieldError) Error() string {
	if e.Field == "" {
		return "relorm: " + e.Msg
	}
	return fmt.Sprintf("relorm: field %q: %s", e.Field, e.Msg)
}

// Is reports whether the target matches the error kind.
func (e *FieldError) Is(err error) bool {
	return err == e.Kind
}

// NewFieldError returns a new FieldError.
func NewFieldError(kind error, field, msg string) *FieldError {
	return &FieldError{Kind: kind, Field: field, Msg: msg}
}

// IsTypeMismatch returns true if the error is a type-mismatch error.
func IsTypeMismatch(err error) bool {
	return errors.Is(err, ErrTypeMismatch)
}

// IsInvalidFormat returns true if the error is an invalid-format error.
func IsInvalidFormat(err error) bool {
	return errors.Is(err, ErrInvalidFormat)
}

// MissingFieldError reports a non-nullable field without a value.
type MissingFieldError struct {
	Entity string
	Field  string
}

// Error returns the error string.
func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("relorm: field %q of %s is not nullable", e.Field, e.Entity)
}

// Is reports whether the target matches ErrNonNullableFieldMissing.
func (e *MissingFieldError) Is(err error) bool {
	return err == ErrNonNullableFieldMissing
}

// IsNonNullableFieldMissing returns true if the error, or any error it
// aggregates, is a missing non-nullable field.
func IsNonNullableFieldMissing(err error) bool {
	return errors.Is(err, ErrNonNullableFieldMissing)
}

// NotFoundError represents an error when an entity is not found.
type NotFoundError struct {
	label string
	id    any
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if e.id != nil {
		return fmt.Sprintf("relorm: %s not found (id=%v)", e.label, e.id)
	}
	return fmt.Sprintf("relorm: %s not found", e.label)
}

// Is reports whether the target error matches NotFoundError.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Label returns the entity label.
func (e *NotFoundError) Label() string {
	return e.label
}

// ID returns the ID that was searched for, if available.
func (e *NotFoundError) ID() any {
	return e.id
}

// NewNotFoundError returns a new NotFoundError for the given entity type.
func NewNotFoundError(label string) *NotFoundError {
	return &NotFoundError{label: label}
}

// NewNotFoundErrorWithID returns a new NotFoundError with the ID that was searched for.
func NewNotFoundErrorWithID(label string, id any) *NotFoundError {
	return &NotFoundError{label: label, id: id}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// StateError reports an entity lifecycle precondition violation.
type StateError struct {
	Kind   error // ErrNotPersisted or ErrStaleID
	Entity string
	ID     any
}

// Error returns the error string.
func (e *StateError) Error() string {
	if e.Kind == ErrStaleID {
		return fmt.Sprintf("relorm: %s id=%v no longer exists", e.Entity, e.ID)
	}
	return fmt.Sprintf("relorm: %s has not been created yet", e.Entity)
}

// Is reports whether the target matches the error kind.
func (e *StateError) Is(err error) bool {
	return err == e.Kind
}

// IsNotPersisted returns true if the error is a not-persisted error.
func IsNotPersisted(err error) bool {
	return errors.Is(err, ErrNotPersisted)
}

// IsStaleID returns true if the error is a stale-identity error.
func IsStaleID(err error) bool {
	return errors.Is(err, ErrStaleID)
}

// ConnectionError reports an unreachable store.
type ConnectionError struct {
	Err error
}

// Error returns the error string.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("relorm: connection failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Is reports whether the target matches ErrConnection.
func (e *ConnectionError) Is(err error) bool {
	return err == ErrConnection
}

// NewConnectionError returns a new ConnectionError.
func NewConnectionError(err error) *ConnectionError {
	return &ConnectionError{Err: err}
}

// IsConnectionError returns true if the error is a ConnectionError.
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrConnection)
}

// IsIncompleteCondition returns true if the error is an incomplete-condition error.
func IsIncompleteCondition(err error) bool {
	return errors.Is(err, ErrIncompleteCondition)
}

// ConstraintError represents a database constraint violation error.
type ConstraintError struct {
	msg  string
	wrap error
}

// Error returns the error string.
func (e ConstraintError) Error() string {
	return fmt.Sprintf("relorm: constraint failed: %s", e.msg)
}

// Unwrap returns the underlying error.
func (e ConstraintError) Unwrap() error {
	return e.wrap
}

// NewConstraintError returns a new ConstraintError with the given message.
func NewConstraintError(msg string, wrap error) error {
	return ConstraintError{msg: msg, wrap: wrap}
}

// IsConstraintError returns true if the error is a ConstraintError.
func IsConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var e ConstraintError
	return errors.As(err, &e)
}

// AggregateError represents multiple errors collected during an operation.
type AggregateError struct {
	Errors []error
}

// Error returns the error string.
func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "relorm: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("relorm: multiple errors:")
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\n  [%d] %v", i+1, err)
	}
	return sb.String()
}

// Unwrap returns the aggregated errors.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// NewAggregateError returns a new AggregateError if there are errors,
// otherwise returns nil.
func NewAggregateError(errs ...error) error {
	var filtered []error
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &AggregateError{Errors: filtered}
}

// QueryError wraps a query error with additional context.
type QueryError struct {
	Entity string // Table being queried
	Op     string // Operation (e.g., "select", "exists")
	Err    error  // Underlying error
}

// Error returns the error string.
func (e *QueryError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("relorm: querying %s (%s): %v", e.Entity, e.Op, e.Err)
	}
	return fmt.Sprintf("relorm: querying %s: %v", e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// NewQueryError returns a new QueryError.
func NewQueryError(entity, op string, err error) *QueryError {
	return &QueryError{Entity: entity, Op: op, Err: err}
}

// IsQueryError returns true if the error is a QueryError.
func IsQueryError(err error) bool {
	if err == nil {
		return false
	}
	var e *QueryError
	return errors.As(err, &e)
}

// MutationError wraps a mutation error with additional context.
type MutationError struct {
	Entity string // Table being mutated
	Op     string // Operation (e.g., "insert", "update", "delete")
	Err    error  // Underlying error
}

// Error returns the error string.
func (e *MutationError) Error() string {
	return fmt.Sprintf("relorm: %s %s: %v", e.Op, e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *MutationError) Unwrap() error {
	return e.Err
}

// NewMutationError returns a new MutationError.
func NewMutationError(entity, op string, err error) *MutationError {
	return &MutationError{Entity: entity, Op: op, Err: err}
}

// IsMutationError returns true if the error is a MutationError.
func IsMutationError(err error) bool {
	if err == nil {
		return false
	}
	var e *MutationError
	return errors.As(err, &e)
}
