package gen

import (
	"errors"
	"fmt"
	"go/token"

	"github.com/syssam/relorm/entity"
)

// ErrMissingConfig is matched by every configuration error.
var ErrMissingConfig = errors.New("relorm/gen: invalid configuration")

// ConfigError represents a configuration error.
type ConfigError struct {
	Option  string
	Value   any
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("relorm/gen: config error for %q (value: %v): %s", e.Option, e.Value, e.Message)
	}
	return fmt.Sprintf("relorm/gen: config error for %q: %s", e.Option, e.Message)
}

// Is reports whether the target matches ErrMissingConfig.
func (e *ConfigError) Is(target error) bool {
	return target == ErrMissingConfig
}

// NewConfigError creates a new ConfigError.
func NewConfigError(option string, value any, message string) *ConfigError {
	return &ConfigError{
		Option:  option,
		Value:   value,
		Message: message,
	}
}

// Config holds the code generation settings.
type Config struct {
	// Package is the name of the generated package.
	Package string
	// Header is the comment at the top of the generated file.
	Header string
	// Kinds maps "table.column" to the kind of its field. Columns without
	// an entry are strings.
	Kinds map[string]entity.Kind
	// Nullable holds the "table.column" keys of optional fields.
	Nullable map[string]bool
}

// Option configures code generation.
type Option func(*Config) error

// WithPackage sets the name of the generated package.
func WithPackage(name string) Option {
	return func(c *Config) error {
		if !token.IsIdentifier(name) {
			return NewConfigError("Package", name, "package must be a Go identifier")
		}
		c.Package = name
		return nil
	}
}

// WithHeader sets the file header comment.
func WithHeader(header string) Option {
	return func(c *Config) error {
		c.Header = header
		return nil
	}
}

// WithKind sets the kind of the field generated for table.column.
// Reference kinds come from foreign keys and cannot be set.
func WithKind(table, column string, kind entity.Kind) Option {
	return func(c *Config) error {
		if kind < entity.KindString || kind >= entity.KindReference {
			return NewConfigError("Kind", kind, "kind must be string, int, float, bool or date")
		}
		c.Kinds[key(table, column)] = kind
		return nil
	}
}

// WithNullable marks the field generated for table.column as optional.
func WithNullable(table, column string) Option {
	return func(c *Config) error {
		c.Nullable[key(table, column)] = true
		return nil
	}
}

// NewConfig creates a new Config with the given options.
func NewConfig(opts ...Option) (*Config, error) {
	c := &Config{
		Package:  "models",
		Header:   "Code generated by relorm. DO NOT EDIT.",
		Kinds:    make(map[string]entity.Kind),
		Nullable: make(map[string]bool),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func key(table, column string) string {
	return fold(table) + "." + fold(column)
}
