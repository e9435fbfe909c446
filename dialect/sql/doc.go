// Package sql wraps database/sql for the relorm dialects and provides the
// pieces every statement goes through.
//
// # Drivers
//
// Driver adapts a *sql.DB to dialect.Driver. Connector is the lazily
// connecting handle built from a Config; reconfiguring it drops the cached
// handle and the next statement reconnects:
//
//	cfg, err := sql.LoadConfig("db.yaml")
//	if err != nil {
//	    return err
//	}
//	conn := sql.NewConnector(cfg, sql.WithLogger(logger))
//	go sql.WatchConfig(ctx, "db.yaml", conn)
//
// StatsDriver and DebugDriver wrap any dialect.Driver with query statistics
// and statement logging.
//
// # Statements
//
// Statement holds SQL text with named ":param" markers and the values bound
// to them. Build renders the placeholders of a dialect:
//
//	st := sql.NewStatement().WriteString("SELECT name FROM user WHERE user.Id = :Id")
//	if err := st.Bind("Id", 5); err != nil {
//	    return err
//	}
//	query, args, err := st.Build(dialect.Postgres)
//	// SELECT name FROM user WHERE user.Id = $1  [5]
//
// Table and column names are written into the text directly and must come
// from the schema catalog. Values are always bound.
package sql
