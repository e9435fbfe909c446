// Package schema discovers tables, columns and foreign-key links of a store
// and answers the lookups the query builders and repositories need.
package schema

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"

	"github.com/syssam/relorm"
)

// Catalog caches the Schema of a store. The first lookup introspects the
// store; later lookups use the cached snapshot until Refresh or Reset is
// called. Concurrent first lookups share a single introspection.
type Catalog struct {
	src   Source
	log   *slog.Logger
	cache relorm.Cache
	key   string
	ttl   time.Duration

	group  singleflight.Group
	mu     sync.RWMutex
	schema *Schema
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets the logger used for refresh events.
func WithLogger(l *slog.Logger) Option {
	return func(c *Catalog) {
		c.log = l
	}
}

// WithCache stores every refreshed snapshot under key and starts from the
// cached snapshot, when present, instead of introspecting the store.
func WithCache(cache relorm.Cache, key string, ttl time.Duration) Option {
	return func(c *Catalog) {
		c.cache = cache
		c.key = key
		c.ttl = ttl
	}
}

// NewCatalog returns a catalog reading from src. Nothing is read until the
// first lookup.
func NewCatalog(src Source, opts ...Option) *Catalog {
	c := &Catalog{src: src, log: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewStatic returns a catalog over a fixed snapshot.
func NewStatic(s *Schema) *Catalog {
	return &Catalog{
		src: SourceFunc(func(context.Context) (*Metadata, error) {
			return nil, fmt.Errorf("schema: static catalog cannot refresh")
		}),
		log:    slog.Default(),
		schema: s,
	}
}

// Schema returns the cached snapshot, loading it on first use.
func (c *Catalog) Schema(ctx context.Context) (*Schema, error) {
	c.mu.RLock()
	s := c.schema
	c.mu.RUnlock()
	if s != nil {
		return s, nil
	}
	v, err, _ := c.group.Do("load", func() (any, error) {
		c.mu.RLock()
		s := c.schema
		c.mu.RUnlock()
		if s != nil {
			return s, nil
		}
		if s := c.warm(ctx); s != nil {
			c.set(s)
			return s, nil
		}
		return c.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Schema), nil
}

// Refresh introspects the store and replaces the cached snapshot. Concurrent
// refreshes share one introspection.
func (c *Catalog) Refresh(ctx context.Context) (*Schema, error) {
	v, err, _ := c.group.Do("refresh", func() (any, error) {
		return c.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Schema), nil
}

// Reset drops the cached snapshot. The next lookup reloads it.
func (c *Catalog) Reset() {
	c.mu.Lock()
	c.schema = nil
	c.mu.Unlock()
}

func (c *Catalog) refresh(ctx context.Context) (*Schema, error) {
	start := time.Now()
	md, err := c.src.Inspect(ctx)
	if err != nil {
		return nil, err
	}
	s := NewSchema(md)
	c.set(s)
	c.log.DebugContext(ctx, "catalog refreshed", "tables", s.Len(), "links", len(md.ForeignKeys), "duration", time.Since(start))
	if c.cache != nil {
		if err := c.store(ctx, md); err != nil {
			c.log.WarnContext(ctx, "catalog snapshot not stored", "key", c.key, "error", err)
		}
	}
	return s, nil
}

func (c *Catalog) set(s *Schema) {
	c.mu.Lock()
	c.schema = s
	c.mu.Unlock()
}

// warm reads the cached snapshot. Cache failures fall back to introspection.
func (c *Catalog) warm(ctx context.Context) *Schema {
	if c.cache == nil {
		return nil
	}
	data, err := c.cache.Get(ctx, c.key)
	if err != nil || data == nil {
		if err != nil {
			c.log.WarnContext(ctx, "catalog snapshot not read", "key", c.key, "error", err)
		}
		return nil
	}
	md, err := DecodeSnapshot(data)
	if err != nil {
		c.log.WarnContext(ctx, "catalog snapshot discarded", "key", c.key, "error", err)
		return nil
	}
	c.log.DebugContext(ctx, "catalog loaded from snapshot", "key", c.key, "columns", len(md.Columns))
	return NewSchema(md)
}

func (c *Catalog) store(ctx context.Context, md *Metadata) error {
	data, err := EncodeSnapshot(md)
	if err != nil {
		return err
	}
	return c.cache.Set(ctx, c.key, data, c.ttl)
}

// EncodeSnapshot serializes introspection metadata with msgpack.
func EncodeSnapshot(md *Metadata) ([]byte, error) {
	data, err := msgpack.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("schema: encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses metadata written by EncodeSnapshot.
func DecodeSnapshot(data []byte) (*Metadata, error) {
	md := &Metadata{}
	if err := msgpack.Unmarshal(data, md); err != nil {
		return nil, fmt.Errorf("schema: decode snapshot: %w", err)
	}
	return md, nil
}

// TableExists reports whether the table is known, loading the catalog on
// first use.
func (c *Catalog) TableExists(ctx context.Context, name string) (bool, error) {
	s, err := c.Schema(ctx)
	if err != nil {
		return false, err
	}
	return s.TableExists(name), nil
}

// Fields returns the ordered columns of a table.
func (c *Catalog) Fields(ctx context.Context, table string) ([]string, error) {
	s, err := c.Schema(ctx)
	if err != nil {
		return nil, err
	}
	return s.Fields(table)
}

// Links returns the tables linked to table.
func (c *Catalog) Links(ctx context.Context, table string) (map[string]string, error) {
	s, err := c.Schema(ctx)
	if err != nil {
		return nil, err
	}
	return s.Links(table)
}
