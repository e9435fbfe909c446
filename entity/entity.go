package entity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/syssam/relorm"
	"github.com/syssam/relorm/dialect/sql/schema"
	"github.com/syssam/relorm/field"
	"github.com/syssam/relorm/query"
	"github.com/syssam/relorm/repository"
)

// segment is one level of an inheritance chain: a table and the fields
// declared for it.
type segment struct {
	desc   *Descriptor
	repo   *repository.Repository
	fields []field.Value
}

func (s *segment) byID(ctx context.Context, id int64) (*query.Condition, error) {
	sc, err := s.repo.Schema(ctx)
	if err != nil {
		return nil, err
	}
	return query.Eq(sc, s.desc.Table, schema.IdentityColumn, id)
}

// Entity is a persistent object of a registered type. An entity is new
// until it is saved, and persisted afterwards. It is not safe for
// concurrent use.
type Entity struct {
	client   *Client
	name     string
	id       *field.Identity
	isNew    bool
	loaded   bool
	segments []*segment // root first
	index    map[string]field.Value

	relations map[string]any
}

// Name returns the type name.
func (e *Entity) Name() string { return e.name }

// Table returns the table of the entity type itself, the last of its chain.
func (e *Entity) Table() string { return e.leaf().desc.Table }

// Tables returns the tables of the inheritance chain, root first.
func (e *Entity) Tables() []string {
	tables := make([]string, len(e.segments))
	for i, s := range e.segments {
		tables[i] = s.desc.Table
	}
	return tables
}

// IsNew reports whether the entity has no stored row yet.
func (e *Entity) IsNew() bool { return e.isNew }

// IsInheritor reports whether the type extends another.
func (e *Entity) IsInheritor() bool { return len(e.segments) > 1 }

// Is reports whether the entity is of the named type or extends it.
func (e *Entity) Is(name string) bool {
	for _, s := range e.segments {
		if fold(s.desc.Name) == fold(name) {
			return true
		}
	}
	return false
}

// ID returns the identity, set once the entity is persisted.
func (e *Entity) ID() (int64, bool) { return e.id.ID() }

func (e *Entity) root() *segment { return e.segments[0] }

func (e *Entity) leaf() *segment { return e.segments[len(e.segments)-1] }

func (e *Entity) fields() []field.Value {
	var fields []field.Value
	for _, s := range e.segments {
		fields = append(fields, s.fields...)
	}
	return fields
}

// Field returns the field mapped to column, including inherited ones.
func (e *Entity) Field(column string) (field.Value, error) {
	v, ok := e.index[fold(column)]
	if !ok {
		return nil, relorm.NewUnknownFieldError(e.Table(), column)
	}
	return v, nil
}

// FieldAs returns the typed field mapped to column.
//
//	name, err := entity.FieldAs[string](u, "name")
func FieldAs[T any](e *Entity, column string) (*field.Field[T], error) {
	v, err := e.Field(column)
	if err != nil {
		return nil, err
	}
	f, ok := v.(*field.Field[T])
	if !ok {
		var zero T
		return nil, relorm.NewFieldError(relorm.ErrTypeMismatch, column, fmt.Sprintf("field does not hold %T values", zero))
	}
	return f, nil
}

// Reference returns the reference field mapped to column.
func (e *Entity) Reference(column string) (*Reference, error) {
	v, err := e.Field(column)
	if err != nil {
		return nil, err
	}
	r, ok := v.(*Reference)
	if !ok {
		return nil, relorm.NewFieldError(relorm.ErrTypeMismatch, column, "field is not a reference")
	}
	return r, nil
}

// Set assigns the field mapped to column.
func (e *Entity) Set(column string, v any) error {
	f, err := e.Field(column)
	if err != nil {
		return err
	}
	return f.Set(v)
}

// Get returns the value of the field mapped to column, loading the entity
// when the field holds none. References yield the referenced identity.
func (e *Entity) Get(ctx context.Context, column string) (any, bool) {
	f, err := e.Field(column)
	if err != nil {
		return nil, false
	}
	return f.Any(ctx, true)
}

// Exists reports whether the row of the entity is stored. New entities
// never exist.
func (e *Entity) Exists(ctx context.Context) (bool, error) {
	id, ok := e.ID()
	if e.isNew || !ok {
		return false, nil
	}
	cond, err := e.leaf().byID(ctx, id)
	if err != nil {
		return false, err
	}
	return e.leaf().repo.Exists(ctx, cond)
}

// Save writes the entity. A new entity is inserted table by table, root
// first, and takes the identity generated for the root row. A persisted
// entity is updated by identity after checking that its row still exists.
// Every non-nullable field must hold a value before any row is written.
func (e *Entity) Save(ctx context.Context) error {
	if e.isNew {
		values, err := e.collect(ctx)
		if err != nil {
			return err
		}
		return e.create(ctx, values)
	}
	id, _ := e.ID()
	ok, err := e.Exists(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return &relorm.StateError{Kind: relorm.ErrStaleID, Entity: e.name, ID: id}
	}
	values, err := e.collect(ctx)
	if err != nil {
		return err
	}
	return e.update(ctx, id, values)
}

// collect returns the values of every segment keyed by column. Unset
// nullable fields are written as NULL.
func (e *Entity) collect(ctx context.Context) ([]map[string]any, error) {
	var (
		errs   []error
		values = make([]map[string]any, len(e.segments))
	)
	for i, s := range e.segments {
		values[i] = make(map[string]any, len(s.fields))
		for _, f := range s.fields {
			v, ok := f.Any(ctx, true)
			if !ok && !f.Nullable() {
				errs = append(errs, &relorm.MissingFieldError{Entity: e.name, Field: f.Name()})
				continue
			}
			values[i][f.Name()] = v
		}
	}
	if err := relorm.NewAggregateError(errs...); err != nil {
		return nil, err
	}
	return values, nil
}

func (e *Entity) create(ctx context.Context, values []map[string]any) error {
	id, err := e.root().repo.Insert(ctx, values[0])
	if err != nil {
		return err
	}
	e.isNew = false
	if err := e.id.Set(id); err != nil {
		e.isNew = true
		return err
	}
	for i, s := range e.segments[1:] {
		if err := s.repo.InsertWithID(ctx, id, values[i+1]); err != nil {
			return err
		}
	}
	e.loaded = true
	e.client.log.DebugContext(ctx, "entity created", "entity", e.name, "id", id)
	return nil
}

func (e *Entity) update(ctx context.Context, id int64, values []map[string]any) error {
	for i, s := range e.segments {
		if len(values[i]) == 0 {
			continue
		}
		cond, err := s.byID(ctx, id)
		if err != nil {
			return err
		}
		if _, err := s.repo.Update(ctx, values[i], cond); err != nil {
			return err
		}
	}
	e.client.log.DebugContext(ctx, "entity updated", "entity", e.name, "id", id)
	return nil
}

// Load reads the rows of the entity and assigns every stored non-null
// value, replacing the values held. The identity is never reassigned.
func (e *Entity) Load(ctx context.Context) error {
	return e.load(ctx, true)
}

// fill is the loader of every field: it assigns the stored values of the
// fields holding none, once.
func (e *Entity) fill(ctx context.Context) error {
	if e.isNew || e.loaded {
		return nil
	}
	return e.load(ctx, false)
}

func (e *Entity) load(ctx context.Context, replace bool) error {
	if e.isNew {
		return &relorm.StateError{Kind: relorm.ErrNotPersisted, Entity: e.name}
	}
	id, _ := e.ID()
	row := make(map[string]any)
	for _, s := range e.segments {
		cond, err := s.byID(ctx, id)
		if err != nil {
			return err
		}
		rows, err := s.repo.SelectAll(ctx, repository.Where(cond))
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return relorm.NewNotFoundErrorWithID(e.name, id)
		}
		for k, v := range rows[0] {
			row[fold(k)] = v
		}
	}
	if err := e.decode(row, replace); err != nil {
		return err
	}
	e.loaded = true
	return nil
}

// decode assigns stored values keyed by folded column.
func (e *Entity) decode(row map[string]any, replace bool) error {
	var errs []error
	for _, f := range e.fields() {
		v, ok := row[fold(f.Name())]
		if !ok || v == nil || (!replace && f.IsSet()) {
			continue
		}
		if err := f.Decode(v); err != nil {
			errs = append(errs, err)
		}
	}
	return relorm.NewAggregateError(errs...)
}

// Delete removes the rows of the entity, leaf table first. The entity
// stays persisted and must not be saved again.
func (e *Entity) Delete(ctx context.Context) error {
	if e.isNew {
		return &relorm.StateError{Kind: relorm.ErrNotPersisted, Entity: e.name}
	}
	id, _ := e.ID()
	ok, err := e.Exists(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return relorm.NewNotFoundErrorWithID(e.name, id)
	}
	for i := len(e.segments) - 1; i >= 0; i-- {
		s := e.segments[i]
		cond, err := s.byID(ctx, id)
		if err != nil {
			return err
		}
		if _, err := s.repo.Delete(ctx, cond); err != nil {
			return err
		}
	}
	e.client.log.DebugContext(ctx, "entity deleted", "entity", e.name, "id", id)
	return nil
}

// Export returns the value of every field keyed by column, plus the
// identity once persisted. References export the referenced identity.
// Unset nullable fields export as nil; unset non-nullable ones fail.
func (e *Entity) Export(ctx context.Context) (map[string]any, error) {
	out := make(map[string]any, len(e.index)+1)
	if id, ok := e.ID(); ok {
		out[schema.IdentityColumn] = id
	}
	var errs []error
	for _, f := range e.fields() {
		v, ok := f.Any(ctx, true)
		if !ok && !f.Nullable() {
			errs = append(errs, &relorm.MissingFieldError{Entity: e.name, Field: f.Name()})
			continue
		}
		out[f.Name()] = v
	}
	if err := relorm.NewAggregateError(errs...); err != nil {
		return nil, err
	}
	return out, nil
}

// Import assigns every non-nil value of data whose key names a field,
// case-insensitively. Other fields keep their values and the identity is
// never assigned. Rejected values are reported together.
func (e *Entity) Import(data map[string]any) error {
	folded := make(map[string]any, len(data))
	for k, v := range data {
		folded[fold(k)] = v
	}
	var errs []error
	for _, f := range e.fields() {
		v, ok := folded[fold(f.Name())]
		if !ok || v == nil {
			continue
		}
		if err := f.Set(v); err != nil {
			errs = append(errs, err)
		}
	}
	return relorm.NewAggregateError(errs...)
}

// Clone copies the fields of src, an entity sharing the root type of e or
// the identity of one, into e.
func (e *Entity) Clone(ctx context.Context, src any) error {
	var other *Entity
	switch v := src.(type) {
	case *Entity:
		other = v
	default:
		id, ok := field.AsInt64(src)
		if !ok {
			return relorm.NewFieldError(relorm.ErrTypeMismatch, "", fmt.Sprintf("cannot clone %s from %T", e.name, src))
		}
		p, err := e.client.Proxy(e.name, id)
		if err != nil {
			return err
		}
		other = p
	}
	if other == nil || fold(other.root().desc.Name) != fold(e.root().desc.Name) {
		return relorm.NewFieldError(relorm.ErrTypeMismatch, "", fmt.Sprintf("cannot clone %s from another root type", e.name))
	}
	data, err := other.Export(ctx)
	if err != nil {
		return err
	}
	return e.Import(data)
}

// MarshalJSON encodes the held values without loading, followed by the
// entity state:
//
//	[{"Id":1,"name":"Ann","age":null},{"isInheritor":false,"isPersisted":true,"type":"User"}]
func (e *Entity) MarshalJSON() ([]byte, error) {
	data := make(map[string]any, len(e.index)+1)
	if id, ok := e.ID(); ok {
		data[schema.IdentityColumn] = id
	}
	for _, f := range e.fields() {
		v, _ := f.Any(context.Background(), false)
		data[f.Name()] = v
	}
	return json.Marshal([]any{data, map[string]any{
		"type":        e.name,
		"isPersisted": !e.isNew,
		"isInheritor": e.IsInheritor(),
	}})
}

func (e *Entity) String() string {
	if id, ok := e.ID(); ok {
		return fmt.Sprintf("%s(%d)", e.name, id)
	}
	return e.name + "(new)"
}

// OneToMany returns the declared one-to-many relation name.
func (e *Entity) OneToMany(name string) (*OneToMany, error) {
	r, ok := e.relations[fold(name)].(*OneToMany)
	if !ok {
		return nil, fmt.Errorf("entity: %s declares no one-to-many relation %q", e.name, name)
	}
	return r, nil
}

// ManyToMany returns the declared many-to-many relation name.
func (e *Entity) ManyToMany(name string) (*ManyToMany, error) {
	r, ok := e.relations[fold(name)].(*ManyToMany)
	if !ok {
		return nil, fmt.Errorf("entity: %s declares no many-to-many relation %q", e.name, name)
	}
	return r, nil
}

var _ field.Owner = (*Entity)(nil)
