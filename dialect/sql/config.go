package sql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/go-sql-driver/mysql"
	"gopkg.in/yaml.v3"

	"github.com/syssam/relorm/dialect"
)

// Config holds the connection settings of a Connector.
type Config struct {
	Dialect  string            `yaml:"dialect"`
	Host     string            `yaml:"host"`
	Database string            `yaml:"database"`
	User     string            `yaml:"user"`
	Password string            `yaml:"password"`
	Params   map[string]string `yaml:"params,omitempty"`
}

// errSettingsMissing is wrapped in a ConnectionError when a connection is
// requested before the settings are complete.
var errSettingsMissing = errors.New("connection settings are not set")

// validate reports whether the settings are complete for the dialect.
func (c Config) validate() error {
	if !dialect.Supported(c.Dialect) {
		return fmt.Errorf("%w: unsupported dialect %q", errSettingsMissing, c.Dialect)
	}
	if c.Database == "" {
		return fmt.Errorf("%w: missing database", errSettingsMissing)
	}
	if c.Dialect != dialect.SQLite && (c.Host == "" || c.User == "") {
		return fmt.Errorf("%w: missing host or user", errSettingsMissing)
	}
	return nil
}

// DSN returns the data source name understood by the dialect's driver.
func (c Config) DSN() (string, error) {
	if err := c.validate(); err != nil {
		return "", err
	}
	switch c.Dialect {
	case dialect.MySQL:
		mc := mysql.NewConfig()
		mc.User = c.User
		mc.Passwd = c.Password
		mc.Net = "tcp"
		mc.Addr = c.Host
		mc.DBName = c.Database
		mc.ParseTime = true
		if len(c.Params) > 0 {
			mc.Params = make(map[string]string, len(c.Params))
			for k, v := range c.Params {
				mc.Params[k] = v
			}
		}
		return mc.FormatDSN(), nil
	case dialect.Postgres:
		q := url.Values{}
		for k, v := range c.Params {
			q.Set(k, v)
		}
		if q.Get("sslmode") == "" {
			q.Set("sslmode", "disable")
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(c.User, c.Password),
			Host:     c.Host,
			Path:     "/" + c.Database,
			RawQuery: q.Encode(),
		}
		return u.String(), nil
	default:
		if len(c.Params) == 0 {
			return c.Database, nil
		}
		q := url.Values{}
		for k, v := range c.Params {
			q.Add(k, v)
		}
		return "file:" + c.Database + "?" + q.Encode(), nil
	}
}

// driverName returns the database/sql driver registered for the dialect.
func (c Config) driverName() string {
	return c.Dialect
}

// LoadConfig reads a YAML connection file. Values of the form ${VAR} are
// expanded from the environment.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("dialect/sql: read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("dialect/sql: parse config %s: %w", path, err)
	}
	cfg.Host = os.ExpandEnv(cfg.Host)
	cfg.Database = os.ExpandEnv(cfg.Database)
	cfg.User = os.ExpandEnv(cfg.User)
	cfg.Password = os.ExpandEnv(cfg.Password)
	if cfg.Dialect == "" {
		cfg.Dialect = dialect.MySQL
	}
	return cfg, nil
}

// WatchConfig reloads the YAML file at path whenever it is written and
// reconfigures the connector when the settings changed. It blocks until the
// context is done.
func WatchConfig(ctx context.Context, path string, c *Connector) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("dialect/sql: watch config: %w", err)
	}
	defer w.Close()
	// Editors often replace the file, so the directory is watched.
	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("dialect/sql: watch config: %w", err)
	}
	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := LoadConfig(path)
			if err != nil {
				c.log.Warn("config reload failed", "path", path, "error", err)
				continue
			}
			if !sameConfig(cfg, c.Config()) {
				c.Reconfigure(cfg)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			c.log.Warn("config watcher error", slog.Any("error", err))
		}
	}
}

func sameConfig(a, b Config) bool {
	if a.Dialect != b.Dialect || a.Host != b.Host || a.Database != b.Database ||
		a.User != b.User || a.Password != b.Password || len(a.Params) != len(b.Params) {
		return false
	}
	for k, v := range a.Params {
		if bv, ok := b.Params[k]; !ok || bv != v {
			return false
		}
	}
	return true
}
