package entity

import (
	"fmt"

	"github.com/go-openapi/inflect"
	"golang.org/x/text/cases"

	"github.com/syssam/relorm/dialect/sql/schema"
)

// Kind is the value kind of a declared field.
type Kind uint8

// Field kinds.
const (
	KindString Kind = iota + 1
	KindInt
	KindFloat
	KindBool
	KindDate
	KindReference
)

var kindNames = [...]string{
	KindString:    "string",
	KindInt:       "int",
	KindFloat:     "float",
	KindBool:      "bool",
	KindDate:      "date",
	KindReference: "reference",
}

func (k Kind) String() string {
	if k > 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// FieldSpec declares one persistent field of an entity type.
type FieldSpec struct {
	Column   string
	Kind     Kind
	Nullable bool
	// Ref is the entity type a KindReference field points to.
	Ref string
	// Message replaces the default message of rejected values.
	Message string
}

// RelationKind is the kind of a collection relation.
type RelationKind uint8

// Relation kinds.
const (
	OneToManyRelation RelationKind = iota + 1
	ManyToManyRelation
)

// RelationSpec declares a collection of related entities. OneToMany follows
// the foreign key of Target back to the owner; ManyToMany goes through the
// join table associating both.
type RelationSpec struct {
	Name   string
	Kind   RelationKind
	Target string
}

// Descriptor is the static declaration of an entity type.
type Descriptor struct {
	Name string
	// Table defaults to the snake_case form of Name.
	Table string
	// Extends names the parent type of an inheritance chain. Each level
	// has its own table sharing the identity of the root.
	Extends   string
	Fields    []FieldSpec
	Relations []RelationSpec
}

// Registry holds the descriptors of every entity type, keyed by type name
// and by table.
type Registry struct {
	byName  map[string]*Descriptor
	byTable map[string]*Descriptor
	order   []*Descriptor
}

func fold(s string) string {
	return cases.Fold().String(s)
}

// NewRegistry validates and registers the descriptors. Parents, reference
// targets and relation targets must all be registered together.
func NewRegistry(descs ...Descriptor) (*Registry, error) {
	r := &Registry{
		byName:  make(map[string]*Descriptor, len(descs)),
		byTable: make(map[string]*Descriptor, len(descs)),
	}
	for i := range descs {
		d := descs[i]
		if d.Name == "" {
			return nil, fmt.Errorf("entity: descriptor %d has no name", i)
		}
		if d.Table == "" {
			d.Table = inflect.Underscore(d.Name)
		}
		if _, ok := r.byName[fold(d.Name)]; ok {
			return nil, fmt.Errorf("entity: %s registered twice", d.Name)
		}
		if other, ok := r.byTable[fold(d.Table)]; ok {
			return nil, fmt.Errorf("entity: %s and %s share table %s", other.Name, d.Name, d.Table)
		}
		r.byName[fold(d.Name)] = &d
		r.byTable[fold(d.Table)] = &d
		r.order = append(r.order, &d)
	}
	for _, d := range r.order {
		if err := r.check(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) check(d *Descriptor) error {
	chain, err := r.Chain(d.Name)
	if err != nil {
		return err
	}
	columns := make(map[string]string)
	relations := make(map[string]bool)
	for _, level := range chain {
		for _, f := range level.Fields {
			switch {
			case f.Column == "":
				return fmt.Errorf("entity: %s declares a field without column", level.Name)
			case fold(f.Column) == fold(schema.IdentityColumn):
				return fmt.Errorf("entity: %s declares the identity column %s", level.Name, f.Column)
			case f.Kind < KindString || f.Kind > KindReference:
				return fmt.Errorf("entity: %s.%s has invalid kind %s", level.Name, f.Column, f.Kind)
			case f.Kind == KindReference && r.byName[fold(f.Ref)] == nil:
				return fmt.Errorf("entity: %s.%s references unknown type %q", level.Name, f.Column, f.Ref)
			}
			if owner, ok := columns[fold(f.Column)]; ok {
				return fmt.Errorf("entity: column %s declared by both %s and %s", f.Column, owner, level.Name)
			}
			columns[fold(f.Column)] = level.Name
		}
		for _, rel := range level.Relations {
			switch {
			case rel.Name == "":
				return fmt.Errorf("entity: %s declares a relation without name", level.Name)
			case rel.Kind != OneToManyRelation && rel.Kind != ManyToManyRelation:
				return fmt.Errorf("entity: relation %s.%s has invalid kind", level.Name, rel.Name)
			case r.byName[fold(rel.Target)] == nil:
				return fmt.Errorf("entity: relation %s.%s targets unknown type %q", level.Name, rel.Name, rel.Target)
			case relations[fold(rel.Name)]:
				return fmt.Errorf("entity: relation %s declared twice in the chain of %s", rel.Name, d.Name)
			}
			relations[fold(rel.Name)] = true
		}
	}
	return nil
}

// Lookup returns the descriptor of a type, by type name or table name.
func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	if d, ok := r.byName[fold(name)]; ok {
		return d, true
	}
	d, ok := r.byTable[fold(name)]
	return d, ok
}

// Descriptors returns the registered descriptors in registration order.
func (r *Registry) Descriptors() []*Descriptor {
	return append([]*Descriptor(nil), r.order...)
}

// Chain returns the inheritance chain of a type, root first.
func (r *Registry) Chain(name string) ([]*Descriptor, error) {
	d, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("entity: unknown type %q", name)
	}
	var chain []*Descriptor
	seen := make(map[string]bool)
	for d != nil {
		if seen[fold(d.Name)] {
			return nil, fmt.Errorf("entity: inheritance cycle through %s", d.Name)
		}
		seen[fold(d.Name)] = true
		chain = append(chain, d)
		if d.Extends == "" {
			break
		}
		parent, ok := r.byName[fold(d.Extends)]
		if !ok {
			return nil, fmt.Errorf("entity: %s extends unknown type %q", d.Name, d.Extends)
		}
		d = parent
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// TableSpecs returns the declared shape of every table, for validation
// against the catalog.
func (r *Registry) TableSpecs() []schema.TableSpec {
	specs := make([]schema.TableSpec, 0, len(r.order))
	for _, d := range r.order {
		spec := schema.TableSpec{Name: d.Table}
		for _, f := range d.Fields {
			c := schema.ColumnSpec{Name: f.Column}
			if f.Kind == KindReference {
				c.Ref = r.byName[fold(f.Ref)].Table
			}
			spec.Columns = append(spec.Columns, c)
		}
		specs = append(specs, spec)
	}
	return specs
}
