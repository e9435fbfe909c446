// Package field provides the typed value containers entities are made of.
//
// A Field holds an optional value, validates every assignment and can fill
// itself on demand through a loader. Assignments that fail validation leave
// the field untouched.
package field

import (
	"context"
	"errors"
	"fmt"

	"github.com/syssam/relorm"
)

// Value is the type-erased view of a field used by entities.
type Value interface {
	// Name returns the column the field maps to.
	Name() string
	// Nullable reports whether the field may be stored without a value.
	Nullable() bool
	// IsSet reports whether the field holds a value, without loading.
	IsSet() bool
	// Any returns the boxed value, loading it first when load is true.
	Any(ctx context.Context, load bool) (any, bool)
	// Set validates and assigns a caller-supplied value.
	Set(v any) error
	// Decode assigns a value read from storage.
	Decode(v any) error
	// SetLoader installs the function used to fill the field on demand.
	SetLoader(func(context.Context) error)
	// Clear drops the value.
	Clear()
}

// Option configures a field.
type Option func(*settings)

type settings struct {
	nullable bool
	message  string
}

// Nullable marks the field as optional.
func Nullable() Option {
	return func(s *settings) {
		s.nullable = true
	}
}

// Message sets the error message reported when a value is rejected.
func Message(msg string) Option {
	return func(s *settings) {
		s.message = msg
	}
}

// Field is a value container of type T.
type Field[T any] struct {
	name     string
	value    T
	set      bool
	nullable bool
	message  string
	convert  func(any) (T, error)
	decode   func(any) (T, error)
	loader   func(context.Context) error
}

// New returns a field named after its column. convert validates assigned
// values and decode, when not nil, converts stored ones.
func New[T any](name string, convert, decode func(any) (T, error), opts ...Option) *Field[T] {
	s := settings{message: "invalid value"}
	for _, opt := range opts {
		opt(&s)
	}
	if decode == nil {
		decode = convert
	}
	return &Field[T]{
		name:     name,
		nullable: s.nullable,
		message:  s.message,
		convert:  convert,
		decode:   decode,
	}
}

// Name returns the column name.
func (f *Field[T]) Name() string { return f.name }

// Nullable reports whether the field is optional.
func (f *Field[T]) Nullable() bool { return f.nullable }

// IsSet reports whether a value is stored.
func (f *Field[T]) IsSet() bool { return f.set }

// SetLoader installs the on-demand loader.
func (f *Field[T]) SetLoader(load func(context.Context) error) { f.loader = load }

// Set validates v and stores it. A rejected value leaves the field as it was.
func (f *Field[T]) Set(v any) error {
	t, err := f.convert(v)
	if err != nil {
		return f.reject(err)
	}
	f.value, f.set = t, true
	return nil
}

// Decode stores a value read from storage. Stored representations, such as
// numeric strings, are accepted where Set would reject them.
func (f *Field[T]) Decode(v any) error {
	t, err := f.decode(v)
	if err != nil {
		return f.reject(err)
	}
	f.value, f.set = t, true
	return nil
}

// reject reports err against the field. Errors that already name a kind
// keep it; anything else is a type mismatch carrying the field's message.
func (f *Field[T]) reject(err error) error {
	var fe *relorm.FieldError
	if errors.As(err, &fe) {
		return relorm.NewFieldError(fe.Kind, f.name, fe.Msg)
	}
	return relorm.NewFieldError(relorm.ErrTypeMismatch, f.name, f.message)
}

// Get returns the value. When none is stored and load is true, the loader
// runs first; its failure leaves the value absent and is not reported.
func (f *Field[T]) Get(ctx context.Context, load bool) (T, bool) {
	if !f.set && load && f.loader != nil {
		_ = f.loader(ctx)
	}
	return f.value, f.set
}

// Peek returns the stored value without loading.
func (f *Field[T]) Peek() (T, bool) {
	return f.value, f.set
}

// Any implements Value.
func (f *Field[T]) Any(ctx context.Context, load bool) (any, bool) {
	v, ok := f.Get(ctx, load)
	if !ok {
		return nil, false
	}
	return v, true
}

// Clear drops the stored value.
func (f *Field[T]) Clear() {
	var zero T
	f.value, f.set = zero, false
}

func (f *Field[T]) String() string {
	if !f.set {
		return f.name + "=<unset>"
	}
	return fmt.Sprintf("%s=%v", f.name, f.value)
}

var _ Value = (*Field[string])(nil)
