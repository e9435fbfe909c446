package sql

import (
	"context"
	"log/slog"
	"sync"

	// Store drivers registered under the dialect names.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/syssam/relorm"
	"github.com/syssam/relorm/dialect"
)

// Connector lazily opens and caches a single store handle from its Config.
// Changing any setting drops the cached handle; the next statement
// reconnects. Statements, and handles taken with Driver until released, hold
// a read lock; reconfiguration takes the write lock. A handle is therefore
// never closed while in use.
type Connector struct {
	mu   sync.RWMutex
	cfg  Config
	drv  *Driver
	open func(name, dsn string) (*Driver, error)
	log  *slog.Logger
}

// ConnectorOption configures the Connector.
type ConnectorOption func(*Connector)

// WithLogger sets the logger used for connection lifecycle events.
func WithLogger(l *slog.Logger) ConnectorOption {
	return func(c *Connector) {
		c.log = l
	}
}

// WithOpener replaces the function used to open a handle from a driver name
// and DSN. Tests use it to hand out mocked handles.
func WithOpener(open func(name, dsn string) (*Driver, error)) ConnectorOption {
	return func(c *Connector) {
		c.open = open
	}
}

// NewConnector returns a connector for the given settings. No connection is
// made until the first statement.
func NewConnector(cfg Config, opts ...ConnectorOption) *Connector {
	c := &Connector{
		cfg:  cfg,
		open: Open,
		log:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configure replaces the server settings, keeping the dialect and
// parameters, and drops the cached handle.
func (c *Connector) Configure(host, database, user, password string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Host = host
	c.cfg.Database = database
	c.cfg.User = user
	c.cfg.Password = password
	c.dropLocked()
}

// Reconfigure replaces every setting and drops the cached handle.
func (c *Connector) Reconfigure(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
	c.dropLocked()
}

func (c *Connector) dropLocked() {
	if c.drv == nil {
		return
	}
	if err := c.drv.Close(); err != nil {
		c.log.Warn("closing dropped connection", "error", err)
	}
	c.drv = nil
	c.log.Info("connection dropped after reconfiguration", "dialect", c.cfg.Dialect, "database", c.cfg.Database)
}

// Config returns a copy of the current settings.
func (c *Connector) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// Database returns the name of the active database.
func (c *Connector) Database() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.Database
}

// Dialect returns the dialect of the configured store.
func (c *Connector) Dialect() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.Dialect
}

// Driver returns the live handle, opening it on first use, together with a
// release func. The handle stays open until release is called; a concurrent
// Configure or Reconfigure waits for it. Failures to reach the store are
// reported as *relorm.ConnectionError.
//
//	drv, release, err := conn.Driver(ctx)
//	if err != nil {
//		return err
//	}
//	defer release()
func (c *Connector) Driver(ctx context.Context) (*Driver, func(), error) {
	return c.acquire(ctx)
}

// acquire returns the live handle with the read lock held.
func (c *Connector) acquire(ctx context.Context) (*Driver, func(), error) {
	for {
		c.mu.RLock()
		if c.drv != nil {
			return c.drv, c.mu.RUnlock, nil
		}
		c.mu.RUnlock()
		if err := c.connect(ctx); err != nil {
			return nil, nil, err
		}
	}
}

func (c *Connector) connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.drv != nil {
		return nil
	}
	dsn, err := c.cfg.DSN()
	if err != nil {
		return relorm.NewConnectionError(err)
	}
	drv, err := c.open(c.cfg.driverName(), dsn)
	if err != nil {
		return relorm.NewConnectionError(err)
	}
	if err := drv.Ping(ctx); err != nil {
		_ = drv.Close()
		return relorm.NewConnectionError(err)
	}
	c.drv = drv
	c.log.Info("connection opened", "dialect", c.cfg.Dialect, "host", c.cfg.Host, "database", c.cfg.Database)
	return nil
}

// Exec implements dialect.ExecQuerier.
func (c *Connector) Exec(ctx context.Context, query string, args, v any) error {
	drv, release, err := c.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return drv.Exec(ctx, query, args, v)
}

// Query implements dialect.ExecQuerier.
func (c *Connector) Query(ctx context.Context, query string, args, v any) error {
	drv, release, err := c.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return drv.Query(ctx, query, args, v)
}

// Tx starts a transaction on the live handle.
func (c *Connector) Tx(ctx context.Context) (dialect.Tx, error) {
	drv, release, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return drv.Tx(ctx)
}

// Close closes the cached handle, if any. The connector stays usable and
// reconnects on the next statement.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.drv == nil {
		return nil
	}
	err := c.drv.Close()
	c.drv = nil
	return err
}

var _ dialect.Driver = (*Connector)(nil)
