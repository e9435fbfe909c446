package entity

import (
	"context"

	"github.com/syssam/relorm"
	"github.com/syssam/relorm/contrib/dataloader"
	"github.com/syssam/relorm/dialect/sql/schema"
	"github.com/syssam/relorm/field"
	"github.com/syssam/relorm/query"
	"github.com/syssam/relorm/repository"
)

// lookup returns the value of column in a scanned row, whatever the case
// of the label the store reported.
func lookup(row map[string]any, column string) (any, bool) {
	if v, ok := row[column]; ok {
		return v, true
	}
	for k, v := range row {
		if fold(k) == fold(column) {
			return v, true
		}
	}
	return nil, false
}

// identities decodes column of every row as an identity.
func identities(rows []map[string]any, column string) ([]int64, error) {
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		v, _ := lookup(row, column)
		id, ok := field.DecodeInt64(v)
		if !ok {
			return nil, relorm.NewFieldError(relorm.ErrTypeMismatch, column, "stored identity is not an integer")
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (c *Client) proxies(target string, ids []int64) ([]*Entity, error) {
	items := make([]*Entity, 0, len(ids))
	for _, id := range ids {
		e, err := c.Proxy(target, id)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, nil
}

// OneToMany is the collection of entities whose foreign key points to the
// owner.
type OneToMany struct {
	owner  *Entity
	name   string
	target string
	items  []*Entity
	loaded bool
}

// Name returns the relation name.
func (r *OneToMany) Name() string { return r.name }

// Target returns the related type name.
func (r *OneToMany) Target() string { return r.target }

// foreignKey returns the related table and its column linked to one of the
// owner tables, trying the owner type itself first.
func (r *OneToMany) foreignKey(s *schema.Schema) (string, string, error) {
	chain, err := r.owner.client.chain(r.target)
	if err != nil {
		return "", "", err
	}
	related := chain[len(chain)-1].Table
	for i := len(r.owner.segments) - 1; i >= 0; i-- {
		table := r.owner.segments[i].desc.Table
		if s.IsLinked(related, table) {
			col, err := s.Link(related, table)
			return related, col, err
		}
	}
	return "", "", relorm.NewLinkError(relorm.ErrNotLinked, related, r.owner.Table())
}

// Get returns unloaded entities for every related row. The list is cached
// until reload is true. A new owner has no related entities.
func (r *OneToMany) Get(ctx context.Context, reload bool) ([]*Entity, error) {
	id, ok := r.owner.ID()
	if r.owner.IsNew() || !ok {
		return nil, nil
	}
	if r.loaded && !reload {
		return r.items, nil
	}
	s, err := r.owner.client.catalog.Schema(ctx)
	if err != nil {
		return nil, err
	}
	related, col, err := r.foreignKey(s)
	if err != nil {
		return nil, err
	}
	cond, err := query.Eq(s, related, col, id)
	if err != nil {
		return nil, err
	}
	rows, err := r.owner.client.repo(related).Select(ctx,
		map[string][]string{related: {schema.IdentityColumn}},
		repository.Where(cond))
	if err != nil {
		return nil, err
	}
	ids, err := identities(rows, schema.IdentityColumn)
	if err != nil {
		return nil, err
	}
	items, err := r.owner.client.proxies(r.target, ids)
	if err != nil {
		return nil, err
	}
	r.items, r.loaded = items, true
	return items, nil
}

// GetLoaded returns the related entities with every field loaded.
func (r *OneToMany) GetLoaded(ctx context.Context, reload bool) ([]*Entity, error) {
	items, err := r.Get(ctx, reload)
	if err != nil {
		return nil, err
	}
	for _, e := range items {
		if err := e.Load(ctx); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// ManyToMany is the collection of entities associated with the owner
// through a join table.
type ManyToMany struct {
	owner  *Entity
	name   string
	target string
	items  []*Entity
	loaded bool
}

// Name returns the relation name.
func (r *ManyToMany) Name() string { return r.name }

// Target returns the related type name.
func (r *ManyToMany) Target() string { return r.target }

// association is the resolved join table of a relation.
type association struct {
	schema  *schema.Schema
	table   string
	owner   string // join column referencing the owner
	related string // join column referencing the related table
	target  string // related table
	chain   int    // length of the related inheritance chain
}

// association finds the join table between any table of the owner chain
// and any table of the related chain, leaf tables first.
func (r *ManyToMany) association(ctx context.Context) (*association, error) {
	s, err := r.owner.client.catalog.Schema(ctx)
	if err != nil {
		return nil, err
	}
	chain, err := r.owner.client.chain(r.target)
	if err != nil {
		return nil, err
	}
	for i := len(r.owner.segments) - 1; i >= 0; i-- {
		ownerTable := r.owner.segments[i].desc.Table
		for j := len(chain) - 1; j >= 0; j-- {
			relatedTable := chain[j].Table
			a, err := s.FindAssociation(ownerTable, relatedTable)
			if err != nil {
				continue
			}
			ownerCol, _ := a.Column(ownerTable)
			relatedCol, _ := a.Column(relatedTable)
			return &association{
				schema:  s,
				table:   a.Table,
				owner:   ownerCol,
				related: relatedCol,
				target:  chain[len(chain)-1].Table,
				chain:   len(chain),
			}, nil
		}
	}
	return nil, relorm.NewLinkError(relorm.ErrNoAssociation, r.owner.Table(), chain[len(chain)-1].Table)
}

// Get returns unloaded entities for every associated row. The list is
// cached until reload is true. A new owner has no associated entities.
//
//	SELECT user_role.role_id FROM user_role WHERE user_role.user_id = ?
func (r *ManyToMany) Get(ctx context.Context, reload bool) ([]*Entity, error) {
	id, ok := r.owner.ID()
	if r.owner.IsNew() || !ok {
		return nil, nil
	}
	if r.loaded && !reload {
		return r.items, nil
	}
	a, err := r.association(ctx)
	if err != nil {
		return nil, err
	}
	cond, err := query.Eq(a.schema, a.table, a.owner, id)
	if err != nil {
		return nil, err
	}
	rows, err := r.owner.client.repo(a.table).Select(ctx,
		map[string][]string{a.table: {a.related}},
		repository.Where(cond))
	if err != nil {
		return nil, err
	}
	ids, err := identities(rows, a.related)
	if err != nil {
		return nil, err
	}
	items, err := r.owner.client.proxies(r.target, ids)
	if err != nil {
		return nil, err
	}
	r.items, r.loaded = items, true
	return items, nil
}

// GetLoaded returns the associated entities with every field loaded. Rows
// of a single-table type are read with one statement.
//
//	SELECT role.Id, role.name FROM role WHERE role.Id IN (?, ?)
func (r *ManyToMany) GetLoaded(ctx context.Context, reload bool) ([]*Entity, error) {
	items, err := r.Get(ctx, reload)
	if err != nil || len(items) == 0 {
		return items, err
	}
	a, err := r.association(ctx)
	if err != nil {
		return nil, err
	}
	if a.chain > 1 {
		for _, e := range items {
			if err := e.Load(ctx); err != nil {
				return nil, err
			}
		}
		return items, nil
	}
	ids := make([]int64, len(items))
	for i, e := range items {
		ids[i], _ = e.ID()
	}
	cond, err := query.In(a.schema, a.target, schema.IdentityColumn, ids...)
	if err != nil {
		return nil, err
	}
	rows, err := r.owner.client.repo(a.target).SelectAll(ctx, repository.Where(cond))
	if err != nil {
		return nil, err
	}
	ordered, errs := dataloader.OrderByKeys(ids, rows, func(row map[string]any) int64 {
		v, _ := lookup(row, schema.IdentityColumn)
		id, _ := field.DecodeInt64(v)
		return id
	})
	for i, e := range items {
		if errs[i] != nil {
			return nil, relorm.NewNotFoundErrorWithID(e.Name(), ids[i])
		}
		row := make(map[string]any, len(ordered[i]))
		for k, v := range ordered[i] {
			row[fold(k)] = v
		}
		if err := e.decode(row, true); err != nil {
			return nil, err
		}
		e.loaded = true
	}
	return items, nil
}

// Add associates a persisted entity of the related type, or the entity
// with the given identity, with the owner. A cached list is extended
// without reading it again.
//
//	INSERT INTO user_role (role_id, user_id) VALUES (?, ?)
func (r *ManyToMany) Add(ctx context.Context, v any) error {
	ownerID, ok := r.owner.ID()
	if r.owner.IsNew() || !ok {
		return &relorm.StateError{Kind: relorm.ErrNotPersisted, Entity: r.owner.Name()}
	}
	related, err := r.candidate(ctx, v)
	if err != nil {
		return err
	}
	relatedID, _ := related.ID()
	a, err := r.association(ctx)
	if err != nil {
		return err
	}
	err = r.owner.client.repo(a.table).InsertRow(ctx, map[string]any{
		a.owner:   ownerID,
		a.related: relatedID,
	})
	if err != nil {
		return err
	}
	if r.loaded {
		r.items = append(r.items, related)
	}
	return nil
}

func (r *ManyToMany) candidate(ctx context.Context, v any) (*Entity, error) {
	if e, ok := v.(*Entity); ok && e != nil {
		if !e.Is(r.target) {
			return nil, relorm.NewFieldError(relorm.ErrTypeMismatch, r.name, "expected "+r.target+", got "+e.Name())
		}
		if e.IsNew() {
			return nil, &relorm.StateError{Kind: relorm.ErrNotPersisted, Entity: e.Name()}
		}
		return e, nil
	}
	id, ok := field.AsInt64(v)
	if !ok {
		return nil, relorm.NewFieldError(relorm.ErrTypeMismatch, r.name, "relation accepts an entity or an integer identity")
	}
	return r.owner.client.Get(ctx, r.target, id)
}
