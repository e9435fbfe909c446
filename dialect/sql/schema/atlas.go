package schema

import (
	"context"
	"fmt"

	"ariga.io/atlas/sql/migrate"
	"ariga.io/atlas/sql/mysql"
	"ariga.io/atlas/sql/postgres"
	atlas "ariga.io/atlas/sql/schema"
	"ariga.io/atlas/sql/sqlite"

	"github.com/syssam/relorm/dialect"
)

// AtlasSource introspects a store through an Atlas inspector instead of the
// hand-written information-schema queries. It reads the schema the
// connection is bound to.
type AtlasSource struct {
	dialect string
	db      atlas.ExecQuerier
}

// NewAtlasSource returns a source reading db with the Atlas driver of the
// dialect. db is typically the *sql.DB of a *sql.Driver.
func NewAtlasSource(name string, db atlas.ExecQuerier) (*AtlasSource, error) {
	if !dialect.Supported(name) {
		return nil, fmt.Errorf("schema: unsupported dialect %q", name)
	}
	return &AtlasSource{dialect: name, db: db}, nil
}

func (s *AtlasSource) open() (migrate.Driver, error) {
	switch s.dialect {
	case dialect.MySQL:
		return mysql.Open(s.db)
	case dialect.Postgres:
		return postgres.Open(s.db)
	default:
		return sqlite.Open(s.db)
	}
}

// Inspect implements Source.
func (s *AtlasSource) Inspect(ctx context.Context) (*Metadata, error) {
	drv, err := s.open()
	if err != nil {
		return nil, fmt.Errorf("schema: open atlas driver: %w", err)
	}
	realm, err := drv.InspectSchema(ctx, "", nil)
	if err != nil {
		return nil, fmt.Errorf("schema: atlas inspect: %w", err)
	}
	return metadataOf(realm), nil
}

// metadataOf flattens an Atlas schema. Tables are sorted by Atlas; columns
// keep their ordinal order.
func metadataOf(s *atlas.Schema) *Metadata {
	md := &Metadata{}
	for _, t := range s.Tables {
		for _, c := range t.Columns {
			md.Columns = append(md.Columns, Column{Table: t.Name, Name: c.Name})
		}
		for _, fk := range t.ForeignKeys {
			if fk.RefTable == nil {
				continue
			}
			for i, c := range fk.Columns {
				ref := ForeignKey{Table: t.Name, Column: c.Name, RefTable: fk.RefTable.Name}
				if i < len(fk.RefColumns) {
					ref.RefColumn = fk.RefColumns[i].Name
				}
				md.ForeignKeys = append(md.ForeignKeys, ref)
			}
		}
	}
	return md
}
