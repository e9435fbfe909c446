package field

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/syssam/relorm"
)

var errMismatch = errors.New("type mismatch")

// NewString returns a string field.
func NewString(name string, opts ...Option) *Field[string] {
	return New(name, toString, decodeString, opts...)
}

// NewInt returns an integer field. Any Go integer fitting in int64 is
// accepted.
func NewInt(name string, opts ...Option) *Field[int64] {
	return New(name, toInt, decodeInt, opts...)
}

// NewFloat returns a floating-point field. Integers are accepted.
func NewFloat(name string, opts ...Option) *Field[float64] {
	return New(name, toFloat, decodeFloat, opts...)
}

// NewBool returns a boolean field.
func NewBool(name string, opts ...Option) *Field[bool] {
	return New(name, toBool, decodeBool, opts...)
}

// NewDate returns a date field. It accepts a time.Time or a string in one of
// DateLayouts; other strings fail with relorm.ErrInvalidFormat.
func NewDate(name string, opts ...Option) *Field[time.Time] {
	return New(name, toDate, decodeDate, opts...)
}

func toString(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", errMismatch
	}
	return s, nil
}

func decodeString(v any) (string, error) {
	if b, ok := v.([]byte); ok {
		return string(b), nil
	}
	return toString(v)
}

func toInt(v any) (int64, error) {
	switch v := v.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return fromUint(uint64(v))
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		return fromUint(v)
	default:
		return 0, errMismatch
	}
}

func fromUint(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, errMismatch
	}
	return int64(v), nil
}

func decodeInt(v any) (int64, error) {
	switch v := v.(type) {
	case string:
		return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(v)), 10, 64)
	case float64:
		if v != math.Trunc(v) {
			return 0, errMismatch
		}
		return int64(v), nil
	default:
		return toInt(v)
	}
}

func toFloat(v any) (float64, error) {
	switch v := v.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	default:
		i, err := toInt(v)
		if err != nil {
			return 0, err
		}
		return float64(i), nil
	}
}

func decodeFloat(v any) (float64, error) {
	switch v := v.(type) {
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
	default:
		return toFloat(v)
	}
}

func toBool(v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, errMismatch
	}
	return b, nil
}

// decodeBool accepts the integer and string forms stores use for booleans.
func decodeBool(v any) (bool, error) {
	switch v := v.(type) {
	case string:
		return strconv.ParseBool(v)
	case []byte:
		return strconv.ParseBool(string(v))
	case bool:
		return v, nil
	default:
		i, err := toInt(v)
		if err != nil {
			return false, err
		}
		return i != 0, nil
	}
}

// DateLayouts are the string layouts date fields accept, tried in order.
var DateLayouts = []string{
	time.RFC3339Nano,
	time.DateTime,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	time.DateOnly,
}

func toDate(v any) (time.Time, error) {
	switch v := v.(type) {
	case time.Time:
		return v, nil
	case *time.Time:
		if v == nil {
			return time.Time{}, errMismatch
		}
		return *v, nil
	case string:
		return parseDate(v)
	default:
		return time.Time{}, errMismatch
	}
}

func decodeDate(v any) (time.Time, error) {
	if b, ok := v.([]byte); ok {
		return parseDate(string(b))
	}
	return toDate(v)
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, relorm.NewFieldError(relorm.ErrInvalidFormat, "", fmt.Sprintf("cannot parse %q as a date", s))
}

// AsInt64 converts a Go integer to int64 the way integer fields accept
// assigned values.
func AsInt64(v any) (int64, bool) {
	i, err := toInt(v)
	return i, err == nil
}

// DecodeInt64 converts a stored integer representation, such as a numeric
// string, to int64.
func DecodeInt64(v any) (int64, bool) {
	i, err := decodeInt(v)
	return i, err == nil
}
