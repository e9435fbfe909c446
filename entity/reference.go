package entity

import (
	"context"
	"fmt"

	"github.com/syssam/relorm"
	"github.com/syssam/relorm/field"
)

// Reference is a many-to-one field: a column holding the identity of
// another entity. Its value is the referenced identity; the entity itself
// is available through Entity.
type Reference struct {
	name     string
	target   string
	nullable bool
	client   *Client
	entity   *Entity
	loader   func(context.Context) error
}

// Name returns the column name.
func (r *Reference) Name() string { return r.name }

// Target returns the referenced type name.
func (r *Reference) Target() string { return r.target }

// Nullable reports whether the reference is optional.
func (r *Reference) Nullable() bool { return r.nullable }

// IsSet reports whether an entity is referenced.
func (r *Reference) IsSet() bool { return r.entity != nil }

// SetLoader installs the on-demand loader.
func (r *Reference) SetLoader(load func(context.Context) error) { r.loader = load }

// Set references a persisted entity of the target type, or the entity with
// the given integer identity. An identity is not checked against the store.
func (r *Reference) Set(v any) error {
	e, ok := v.(*Entity)
	if !ok {
		id, ok := field.AsInt64(v)
		if !ok {
			return relorm.NewFieldError(relorm.ErrTypeMismatch, r.name, "reference must be an entity or an integer identity")
		}
		return r.setID(id)
	}
	switch {
	case e == nil:
		return relorm.NewFieldError(relorm.ErrTypeMismatch, r.name, "reference must be an entity or an integer identity")
	case !e.Is(r.target):
		return relorm.NewFieldError(relorm.ErrTypeMismatch, r.name, fmt.Sprintf("expected %s, got %s", r.target, e.Name()))
	case e.IsNew():
		return relorm.NewFieldError(relorm.ErrNotPersisted, r.name, "referenced entity has not been created yet")
	}
	r.entity = e
	return nil
}

// Decode references the entity whose identity was read from storage.
func (r *Reference) Decode(v any) error {
	id, ok := field.DecodeInt64(v)
	if !ok {
		return relorm.NewFieldError(relorm.ErrTypeMismatch, r.name, "stored reference is not an integer identity")
	}
	return r.setID(id)
}

func (r *Reference) setID(id int64) error {
	e, err := r.client.Proxy(r.target, id)
	if err != nil {
		return err
	}
	r.entity = e
	return nil
}

// Any returns the referenced identity, loading the owner first when load
// is true and nothing is referenced.
func (r *Reference) Any(ctx context.Context, load bool) (any, bool) {
	e, ok := r.Get(ctx, load)
	if !ok {
		return nil, false
	}
	return e.ID()
}

// Get returns the referenced entity.
func (r *Reference) Get(ctx context.Context, load bool) (*Entity, bool) {
	if r.entity == nil && load && r.loader != nil {
		_ = r.loader(ctx)
	}
	return r.entity, r.entity != nil
}

// ID returns the referenced identity without loading.
func (r *Reference) ID() (int64, bool) {
	if r.entity == nil {
		return 0, false
	}
	return r.entity.ID()
}

// Load loads the fields of the referenced entity, if any. Failures leave
// the referenced entity unloaded and are not reported.
func (r *Reference) Load(ctx context.Context) {
	if r.entity != nil {
		_ = r.entity.Load(ctx)
	}
}

// Clear drops the reference.
func (r *Reference) Clear() { r.entity = nil }

func (r *Reference) String() string {
	if r.entity == nil {
		return r.name + "=<unset>"
	}
	return fmt.Sprintf("%s=%s", r.name, r.entity)
}

var _ field.Value = (*Reference)(nil)
