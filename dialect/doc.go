// Package dialect defines the store abstraction consumed by the mapping layer.
//
// # Supported Dialects
//
//	dialect.MySQL    = "mysql"
//	dialect.Postgres = "postgres"
//	dialect.SQLite   = "sqlite"
//
// MySQL is the reference store: catalog introspection reads its
// information_schema. Postgres and SQLite expose equivalent metadata and are
// introspected through their own queries (see dialect/sql/schema).
//
// # Driver Interface
//
//	type Driver interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	    Tx(ctx context.Context) (Tx, error)
//	    Close() error
//	    Dialect() string
//	}
//
// Repositories only need the ExecQuerier half, which is also implemented by
// the lazily connecting sql.Connector.
//
// # Sub-packages
//
//   - dialect/sql: database/sql driver wrapper, named-parameter statements and the connector
//   - dialect/sql/schema: schema catalog introspection and caching
//   - dialect/sql/sqlgraph: store error classification
package dialect
