package schema

import (
	"fmt"
	"strings"
)

// ValidationError is one finding of ValidateDescriptors.
type ValidationError struct {
	Table   string
	Column  string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s.%s: %s", e.Table, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Table, e.Message)
}

// ValidationResult holds the results of descriptor validation.
type ValidationResult struct {
	Errors   []*ValidationError
	Warnings []*ValidationError
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings.
func (r *ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// Err returns the errors as a single error, or nil.
func (r *ValidationResult) Err() error {
	if !r.HasErrors() {
		return nil
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("schema: descriptors do not match the catalog: %s", strings.Join(msgs, "; "))
}

// String returns a human-readable summary of the validation result.
func (r *ValidationResult) String() string {
	var sb strings.Builder
	if len(r.Errors) > 0 {
		sb.WriteString("Errors:\n")
		for _, e := range r.Errors {
			sb.WriteString("  - ")
			sb.WriteString(e.Error())
			sb.WriteString("\n")
		}
	}
	if len(r.Warnings) > 0 {
		sb.WriteString("Warnings:\n")
		for _, w := range r.Warnings {
			sb.WriteString("  - ")
			sb.WriteString(w.Error())
			sb.WriteString("\n")
		}
	}
	if !r.HasErrors() && !r.HasWarnings() {
		sb.WriteString("No issues found")
	}
	return sb.String()
}

// TableSpec is the declared shape of one entity table.
type TableSpec struct {
	Name    string
	Columns []ColumnSpec
}

// ColumnSpec is one declared column. Ref names the table a reference column
// points to.
type ColumnSpec struct {
	Name string
	Ref  string
}

// ValidateOption configures descriptor validation.
type ValidateOption func(*validateConfig)

type validateConfig struct {
	allowUndeclared bool
	requireIdentity bool
}

// AllowUndeclaredColumns stops catalog columns missing from a descriptor
// from being reported.
func AllowUndeclaredColumns() ValidateOption {
	return func(c *validateConfig) {
		c.allowUndeclared = true
	}
}

// RequireIdentity reports tables without the identity column as errors.
func RequireIdentity() ValidateOption {
	return func(c *validateConfig) {
		c.requireIdentity = true
	}
}

// ValidateDescriptors checks declared tables against the catalog. Declared
// tables or columns the catalog lacks, and reference columns without a link
// to their table, are errors. Catalog columns no descriptor declares are
// warnings.
//
//	result := schema.ValidateDescriptors(s, specs)
//	if err := result.Err(); err != nil {
//	    log.Fatal(err)
//	}
func ValidateDescriptors(s *Schema, specs []TableSpec, opts ...ValidateOption) *ValidationResult {
	cfg := &validateConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	result := &ValidationResult{}
	for _, spec := range specs {
		t, err := s.Table(spec.Name)
		if err != nil {
			result.Errors = append(result.Errors, &ValidationError{
				Table:   spec.Name,
				Message: "table does not exist",
			})
			continue
		}
		declared := make(map[string]bool, len(spec.Columns))
		for _, c := range spec.Columns {
			name, err := s.ResolveField(t.Name, c.Name)
			if err != nil {
				result.Errors = append(result.Errors, &ValidationError{
					Table:   t.Name,
					Column:  c.Name,
					Message: "column does not exist",
				})
				continue
			}
			declared[fold(name)] = true
			if c.Ref != "" && !s.IsLinked(t.Name, c.Ref) {
				result.Errors = append(result.Errors, &ValidationError{
					Table:   t.Name,
					Column:  name,
					Message: fmt.Sprintf("no foreign key links it to %q", c.Ref),
				})
			}
		}
		if cfg.requireIdentity && !s.HasField(t.Name, IdentityColumn) {
			result.Errors = append(result.Errors, &ValidationError{
				Table:   t.Name,
				Message: fmt.Sprintf("table has no %s column", IdentityColumn),
			})
		}
		if cfg.allowUndeclared {
			continue
		}
		for _, col := range t.Columns {
			if fold(col) == fold(IdentityColumn) || declared[fold(col)] {
				continue
			}
			result.Warnings = append(result.Warnings, &ValidationError{
				Table:   t.Name,
				Column:  col,
				Message: "column is not declared",
			})
		}
	}
	return result
}
