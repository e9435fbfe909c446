// Package entity implements persistent entities on top of the repository
// layer.
//
// Entity types are declared once as static descriptors and registered
// together:
//
//	reg, err := entity.NewRegistry(
//		entity.Descriptor{Name: "User", Fields: []entity.FieldSpec{
//			{Column: "name", Kind: entity.KindString},
//			{Column: "age", Kind: entity.KindInt, Nullable: true},
//		}},
//	)
//	client := entity.NewClient(drv, catalog, reg)
//
//	u, _ := client.New("User")
//	_ = u.Set("name", "Ann")
//	err = u.Save(ctx) // INSERT INTO user (age, name) VALUES (?, ?)
//
// A type that extends another stores its own fields in its own table,
// keyed by the identity generated for the root table.
package entity

import (
	"context"
	"log/slog"
	"sync"

	"github.com/syssam/relorm"
	"github.com/syssam/relorm/dialect"
	"github.com/syssam/relorm/dialect/sql/schema"
	"github.com/syssam/relorm/field"
	"github.com/syssam/relorm/repository"
)

// Client builds entities of the registered types and owns the repository
// of every table.
type Client struct {
	drv      dialect.Driver
	catalog  *schema.Catalog
	registry *Registry
	log      *slog.Logger

	mu    sync.Mutex
	repos map[string]*repository.Repository
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger of the client and its repositories.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// NewClient returns a client over drv.
func NewClient(drv dialect.Driver, catalog *schema.Catalog, registry *Registry, opts ...Option) *Client {
	c := &Client{
		drv:      drv,
		catalog:  catalog,
		registry: registry,
		log:      slog.Default(),
		repos:    make(map[string]*repository.Repository),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Registry returns the registered descriptors.
func (c *Client) Registry() *Registry { return c.registry }

// Catalog returns the schema catalog.
func (c *Client) Catalog() *schema.Catalog { return c.catalog }

func (c *Client) repo(table string) *repository.Repository {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := fold(table)
	r, ok := c.repos[key]
	if !ok {
		r = repository.New(c.drv, c.catalog, table, repository.WithLogger(c.log))
		c.repos[key] = r
	}
	return r
}

// Repository returns the repository of a catalog table.
func (c *Client) Repository(ctx context.Context, table string) (*repository.Repository, error) {
	s, err := c.catalog.Schema(ctx)
	if err != nil {
		return nil, err
	}
	name, err := s.TableName(table)
	if err != nil {
		return nil, err
	}
	return c.repo(name), nil
}

// New returns a new, unsaved entity of the named type. The type may be
// given by name or by table.
func (c *Client) New(name string) (*Entity, error) {
	chain, err := c.chain(name)
	if err != nil {
		return nil, err
	}
	return c.build(chain), nil
}

// Get returns the persisted entity of the named type with the given
// identity. Fields are loaded on first access. It fails with NotFound when
// no such row exists.
func (c *Client) Get(ctx context.Context, name string, id int64) (*Entity, error) {
	e, err := c.Proxy(name, id)
	if err != nil {
		return nil, err
	}
	ok, err := e.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, relorm.NewNotFoundErrorWithID(e.Name(), id)
	}
	return e, nil
}

// Proxy returns a persisted entity with the given identity without
// checking the store. Its fields load on first access.
func (c *Client) Proxy(name string, id int64) (*Entity, error) {
	e, err := c.New(name)
	if err != nil {
		return nil, err
	}
	e.isNew = false
	if err := e.id.Set(id); err != nil {
		return nil, err
	}
	return e, nil
}

// Validate checks the registered descriptors against the catalog.
func (c *Client) Validate(ctx context.Context, opts ...schema.ValidateOption) (*schema.ValidationResult, error) {
	s, err := c.catalog.Schema(ctx)
	if err != nil {
		return nil, err
	}
	return schema.ValidateDescriptors(s, c.registry.TableSpecs(), opts...), nil
}

func (c *Client) chain(name string) ([]*Descriptor, error) {
	if _, ok := c.registry.Lookup(name); !ok {
		return nil, &relorm.SchemaError{Kind: relorm.ErrUnknownEntity, Table: name, Msg: "no entity type registered"}
	}
	return c.registry.Chain(name)
}

func (c *Client) build(chain []*Descriptor) *Entity {
	leaf := chain[len(chain)-1]
	e := &Entity{
		client:    c,
		name:      leaf.Name,
		isNew:     true,
		index:     make(map[string]field.Value),
		relations: make(map[string]any),
	}
	e.id = field.NewIdentity(schema.IdentityColumn, e)
	for _, d := range chain {
		seg := &segment{desc: d, repo: c.repo(d.Table)}
		for _, spec := range d.Fields {
			v := c.value(spec)
			v.SetLoader(e.fill)
			seg.fields = append(seg.fields, v)
			e.index[fold(spec.Column)] = v
		}
		for _, rel := range d.Relations {
			switch rel.Kind {
			case OneToManyRelation:
				e.relations[fold(rel.Name)] = &OneToMany{owner: e, name: rel.Name, target: rel.Target}
			case ManyToManyRelation:
				e.relations[fold(rel.Name)] = &ManyToMany{owner: e, name: rel.Name, target: rel.Target}
			}
		}
		e.segments = append(e.segments, seg)
	}
	return e
}

func (c *Client) value(spec FieldSpec) field.Value {
	var opts []field.Option
	if spec.Nullable {
		opts = append(opts, field.Nullable())
	}
	if spec.Message != "" {
		opts = append(opts, field.Message(spec.Message))
	}
	switch spec.Kind {
	case KindInt:
		return field.NewInt(spec.Column, opts...)
	case KindFloat:
		return field.NewFloat(spec.Column, opts...)
	case KindBool:
		return field.NewBool(spec.Column, opts...)
	case KindDate:
		return field.NewDate(spec.Column, opts...)
	case KindReference:
		return &Reference{name: spec.Column, target: spec.Ref, nullable: spec.Nullable, client: c}
	default:
		return field.NewString(spec.Column, opts...)
	}
}
