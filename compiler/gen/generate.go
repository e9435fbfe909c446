// Package gen generates static entity descriptors from introspected catalog
// metadata.
//
// Every table with an identity column becomes an entity type named after
// the table. Foreign-key columns become references, a foreign key on the
// identity column makes the table extend the referenced one, and join
// tables become many-to-many relations on both sides:
//
//	md, err := schema.NewSource(conn).Inspect(ctx)
//	if err != nil {
//		return err
//	}
//	err = gen.Write(md, "internal/models/entities.go",
//		gen.WithPackage("models"),
//		gen.WithKind("user", "age", entity.KindInt),
//		gen.WithNullable("user", "age"),
//	)
package gen

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/dave/jennifer/jen"
	"github.com/go-openapi/inflect"
	"golang.org/x/text/cases"
	"golang.org/x/tools/imports"

	"github.com/syssam/relorm/dialect/sql/schema"
	"github.com/syssam/relorm/entity"
)

const entityPkg = "github.com/syssam/relorm/entity"

func fold(s string) string {
	return cases.Fold().String(s)
}

// typeName returns the Go type name of a table: user_role becomes UserRole.
func typeName(table string) string {
	return inflect.Camelize(table)
}

// Descriptors derives the entity descriptors of md. The result is checked
// with entity.NewRegistry.
func Descriptors(md *schema.Metadata, opts ...Option) ([]entity.Descriptor, error) {
	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}
	return descriptors(md, cfg)
}

func descriptors(md *schema.Metadata, cfg *Config) ([]entity.Descriptor, error) {
	s := schema.NewSchema(md)
	joins := s.AssociationTables()
	isJoin := make(map[string]bool, len(joins))
	for name := range joins {
		isJoin[fold(name)] = true
	}

	var descs []*entity.Descriptor
	byTable := make(map[string]*entity.Descriptor)
	for _, table := range s.Tables() {
		if isJoin[fold(table)] || !s.HasField(table, schema.IdentityColumn) {
			continue
		}
		d := &entity.Descriptor{Name: typeName(table), Table: table}
		descs = append(descs, d)
		byTable[fold(table)] = d
	}

	fks := make(map[string]schema.ForeignKey, len(md.ForeignKeys))
	for _, fk := range md.ForeignKeys {
		fks[key(fk.Table, fk.Column)] = fk
	}
	for _, d := range descs {
		columns, err := s.Fields(d.Table)
		if err != nil {
			return nil, err
		}
		for _, col := range columns {
			fk, isFK := fks[key(d.Table, col)]
			ref := byTable[fold(fk.RefTable)]
			if fold(col) == fold(schema.IdentityColumn) {
				if isFK && ref != nil && ref != d {
					d.Extends = ref.Name
				}
				continue
			}
			spec := entity.FieldSpec{
				Column:   col,
				Kind:     entity.KindString,
				Nullable: cfg.Nullable[key(d.Table, col)],
			}
			switch kind, ok := cfg.Kinds[key(d.Table, col)]; {
			case isFK && ref != nil:
				spec.Kind, spec.Ref = entity.KindReference, ref.Name
			case ok:
				spec.Kind = kind
			}
			d.Fields = append(d.Fields, spec)
		}
	}

	for _, fk := range md.ForeignKeys {
		owner, related := byTable[fold(fk.RefTable)], byTable[fold(fk.Table)]
		if owner == nil || related == nil || fold(fk.Column) == fold(schema.IdentityColumn) {
			continue
		}
		addRelation(owner, entity.RelationSpec{
			Name:   inflect.Pluralize(related.Table),
			Kind:   entity.OneToManyRelation,
			Target: related.Name,
		}, fk.Column)
	}
	names := make([]string, 0, len(joins))
	for name := range joins {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		var sides []*entity.Descriptor
		for table := range joins[name].Columns {
			if d := byTable[fold(table)]; d != nil {
				sides = append(sides, d)
			}
		}
		if len(sides) != 2 {
			continue
		}
		for i, owner := range sides {
			target := sides[1-i]
			addRelation(owner, entity.RelationSpec{
				Name:   inflect.Pluralize(target.Table),
				Kind:   entity.ManyToManyRelation,
				Target: target.Name,
			}, name)
		}
	}

	result := make([]entity.Descriptor, len(descs))
	for i, d := range descs {
		result[i] = *d
	}
	if _, err := entity.NewRegistry(result...); err != nil {
		return nil, fmt.Errorf("relorm/gen: derived descriptors are invalid: %w", err)
	}
	return result, nil
}

// addRelation appends rel to d, qualifying its name when it is taken.
func addRelation(d *entity.Descriptor, rel entity.RelationSpec, qualifier string) {
	for _, r := range d.Relations {
		if fold(r.Name) == fold(rel.Name) {
			rel.Name += "_" + qualifier
			break
		}
	}
	d.Relations = append(d.Relations, rel)
}

// Generate returns the formatted Go source declaring the descriptors of md
// and a Registry function registering them all.
func Generate(md *schema.Metadata, filename string, opts ...Option) ([]byte, error) {
	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}
	descs, err := descriptors(md, cfg)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := render(cfg, descs).Render(&buf); err != nil {
		return nil, fmt.Errorf("relorm/gen: render: %w", err)
	}
	formatted, err := imports.Process(filename, buf.Bytes(), nil)
	if err != nil {
		return nil, fmt.Errorf("relorm/gen: format %s: %w", filename, err)
	}
	return formatted, nil
}

// Write generates the descriptors of md into path.
func Write(md *schema.Metadata, path string, opts ...Option) error {
	src, err := Generate(md, path, opts...)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, src, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

var kindConsts = map[entity.Kind]string{
	entity.KindString:    "KindString",
	entity.KindInt:       "KindInt",
	entity.KindFloat:     "KindFloat",
	entity.KindBool:      "KindBool",
	entity.KindDate:      "KindDate",
	entity.KindReference: "KindReference",
}

var relationConsts = map[entity.RelationKind]string{
	entity.OneToManyRelation:  "OneToManyRelation",
	entity.ManyToManyRelation: "ManyToManyRelation",
}

func render(cfg *Config, descs []entity.Descriptor) *jen.File {
	f := jen.NewFile(cfg.Package)
	if cfg.Header != "" {
		f.HeaderComment(cfg.Header)
	}
	for _, d := range descs {
		name := d.Name + "Descriptor"
		f.Commentf("%s declares the %s entity of table %s.", name, d.Name, d.Table)
		f.Var().Id(name).Op("=").Qual(entityPkg, "Descriptor").Values(jen.DictFunc(func(dict jen.Dict) {
			dict[jen.Id("Name")] = jen.Lit(d.Name)
			dict[jen.Id("Table")] = jen.Lit(d.Table)
			if d.Extends != "" {
				dict[jen.Id("Extends")] = jen.Lit(d.Extends)
			}
			if len(d.Fields) > 0 {
				dict[jen.Id("Fields")] = jen.Index().Qual(entityPkg, "FieldSpec").ValuesFunc(func(g *jen.Group) {
					for _, fs := range d.Fields {
						g.Values(fieldDict(fs))
					}
				})
			}
			if len(d.Relations) > 0 {
				dict[jen.Id("Relations")] = jen.Index().Qual(entityPkg, "RelationSpec").ValuesFunc(func(g *jen.Group) {
					for _, r := range d.Relations {
						g.Values(jen.Dict{
							jen.Id("Name"):   jen.Lit(r.Name),
							jen.Id("Kind"):   jen.Qual(entityPkg, relationConsts[r.Kind]),
							jen.Id("Target"): jen.Lit(r.Target),
						})
					}
				})
			}
		}))
	}
	f.Comment("Registry returns the registry of every generated entity type.")
	f.Func().Id("Registry").Params().Params(jen.Op("*").Qual(entityPkg, "Registry"), jen.Error()).Block(
		jen.Return(jen.Qual(entityPkg, "NewRegistry").CallFunc(func(g *jen.Group) {
			for _, d := range descs {
				g.Id(d.Name + "Descriptor")
			}
		})),
	)
	return f
}

func fieldDict(fs entity.FieldSpec) jen.Dict {
	dict := jen.Dict{
		jen.Id("Column"): jen.Lit(fs.Column),
		jen.Id("Kind"):   jen.Qual(entityPkg, kindConsts[fs.Kind]),
	}
	if fs.Nullable {
		dict[jen.Id("Nullable")] = jen.True()
	}
	if fs.Ref != "" {
		dict[jen.Id("Ref")] = jen.Lit(fs.Ref)
	}
	return dict
}
