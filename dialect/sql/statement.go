package sql

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/syssam/relorm/dialect"
)

// Statement is a SQL text builder with named parameters. Fragments refer to
// values with ":name" markers and values are attached with Bind; Build turns
// the markers into the placeholders of a dialect. Values never enter the
// statement text.
type Statement struct {
	sb   strings.Builder
	args map[string]any
}

// NewStatement returns an empty statement.
func NewStatement() *Statement {
	return &Statement{args: make(map[string]any)}
}

// WriteString appends raw SQL text.
func (s *Statement) WriteString(text string) *Statement {
	s.sb.WriteString(text)
	return s
}

// Bind attaches a value to the named parameter. The name is given without
// the leading colon. Binding the same name twice is an error.
func (s *Statement) Bind(name string, v any) error {
	name = strings.TrimPrefix(name, ":")
	if !isParamName(name) {
		return fmt.Errorf("dialect/sql: invalid parameter name %q", name)
	}
	if _, ok := s.args[name]; ok {
		return fmt.Errorf("dialect/sql: parameter %q already bound", name)
	}
	s.args[name] = v
	return nil
}

// Value returns the value bound to the named parameter.
func (s *Statement) Value(name string) (any, bool) {
	v, ok := s.args[strings.TrimPrefix(name, ":")]
	return v, ok
}

// Params returns the bound parameter names, sorted.
func (s *Statement) Params() []string {
	names := make([]string, 0, len(s.args))
	for name := range s.args {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// String returns the statement text with its named markers.
func (s *Statement) String() string {
	return s.sb.String()
}

// Build renders the statement for the given dialect. Named markers become
// "?" (MySQL, SQLite) or "$n" (Postgres) and the returned arguments follow
// their order of appearance. Every marker must be bound and every bound
// value must be referenced.
func (s *Statement) Build(name string) (string, []any, error) {
	var (
		text = s.sb.String()
		out  strings.Builder
		args = make([]any, 0, len(s.args))
		used = make(map[string]struct{}, len(s.args))
	)
	out.Grow(len(text))
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '\'':
			// Copy quoted literals untouched.
			j := i + 1
			for j < len(text) && text[j] != '\'' {
				j++
			}
			if j >= len(text) {
				j = len(text) - 1
			}
			out.WriteString(text[i : j+1])
			i = j
		case c == ':' && i+1 < len(text) && text[i+1] == ':':
			out.WriteString("::")
			i++
		case c == ':' && i+1 < len(text) && isParamStart(text[i+1]):
			j := i + 1
			for j < len(text) && isParamChar(text[j]) {
				j++
			}
			param := text[i+1 : j]
			v, ok := s.args[param]
			if !ok {
				return "", nil, fmt.Errorf("dialect/sql: parameter %q is not bound", param)
			}
			used[param] = struct{}{}
			args = append(args, v)
			if name == dialect.Postgres {
				out.WriteString("$" + strconv.Itoa(len(args)))
			} else {
				out.WriteByte('?')
			}
			i = j - 1
		default:
			out.WriteByte(c)
		}
	}
	for param := range s.args {
		if _, ok := used[param]; !ok {
			return "", nil, fmt.Errorf("dialect/sql: parameter %q is bound but not referenced", param)
		}
	}
	return out.String(), args, nil
}

func isParamName(s string) bool {
	if s == "" || !isParamStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isParamChar(s[i]) {
			return false
		}
	}
	return isValidIdentifier(s)
}

func isParamStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isParamChar(c byte) bool {
	return isParamStart(c) || (c >= '0' && c <= '9')
}
