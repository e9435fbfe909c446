package field

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/relorm"
)

func TestFieldSetRejectsWithoutMutation(t *testing.T) {
	t.Parallel()

	f := NewString("name", Message("name must be text"))
	err := f.Set(42)
	require.Error(t, err)
	assert.True(t, relorm.IsTypeMismatch(err))
	assert.Equal(t, `relorm: field "name": name must be text`, err.Error())
	assert.False(t, f.IsSet())

	require.NoError(t, f.Set("Ann"))
	assert.Error(t, f.Set(3.5))
	v, ok := f.Peek()
	assert.True(t, ok)
	assert.Equal(t, "Ann", v)
}

func TestFieldKinds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		field Value
		in    any
		want  any
		kind  error
	}{
		{"string", NewString("s"), "x", "x", nil},
		{"string rejects bytes", NewString("s"), []byte("x"), nil, relorm.ErrTypeMismatch},
		{"int", NewInt("i"), 7, int64(7), nil},
		{"int from uint8", NewInt("i"), uint8(7), int64(7), nil},
		{"int overflow", NewInt("i"), uint64(math.MaxUint64), nil, relorm.ErrTypeMismatch},
		{"int rejects string", NewInt("i"), "7", nil, relorm.ErrTypeMismatch},
		{"int rejects float", NewInt("i"), 7.0, nil, relorm.ErrTypeMismatch},
		{"float", NewFloat("f"), 1.5, 1.5, nil},
		{"float from int", NewFloat("f"), 2, 2.0, nil},
		{"float rejects bool", NewFloat("f"), true, nil, relorm.ErrTypeMismatch},
		{"bool", NewBool("b"), true, true, nil},
		{"bool rejects int", NewBool("b"), 1, nil, relorm.ErrTypeMismatch},
		{"date string", NewDate("d"), "2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), nil},
		{"date time string", NewDate("d"), "2024-03-01 10:20:30", time.Date(2024, 3, 1, 10, 20, 30, 0, time.UTC), nil},
		{"date invalid", NewDate("d"), "first of march", nil, relorm.ErrInvalidFormat},
		{"date rejects int", NewDate("d"), 20240301, nil, relorm.ErrTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.field.Set(tt.in)
			if tt.kind != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.kind)
				assert.False(t, tt.field.IsSet())
				return
			}
			require.NoError(t, err)
			got, ok := tt.field.Any(context.Background(), false)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFieldDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		field Value
		in    any
		want  any
	}{
		{"string bytes", NewString("s"), []byte("x"), "x"},
		{"int string", NewInt("i"), "42", int64(42)},
		{"int bytes", NewInt("i"), []byte("42"), int64(42)},
		{"int integral float", NewInt("i"), float64(3), int64(3)},
		{"float string", NewFloat("f"), "2.5", 2.5},
		{"bool int", NewBool("b"), int64(1), true},
		{"bool string", NewBool("b"), "0", false},
		{"date bytes", NewDate("d"), []byte("2024-03-01"), time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.field.Decode(tt.in))
			got, ok := tt.field.Any(context.Background(), false)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.True(t, relorm.IsTypeMismatch(NewInt("i").Decode("4.2")))
	assert.True(t, relorm.IsInvalidFormat(NewDate("d").Decode("never")))
}

func TestFieldLazyLoad(t *testing.T) {
	t.Parallel()

	f := NewInt("age", Nullable())
	assert.True(t, f.Nullable())
	calls := 0
	f.SetLoader(func(context.Context) error {
		calls++
		return f.Decode(int64(41))
	})

	_, ok := f.Get(context.Background(), false)
	assert.False(t, ok)
	assert.Zero(t, calls)

	v, ok := f.Get(context.Background(), true)
	assert.True(t, ok)
	assert.Equal(t, int64(41), v)
	_, _ = f.Get(context.Background(), true)
	assert.Equal(t, 1, calls, "loaded values are kept")

	f.Clear()
	assert.False(t, f.IsSet())
	assert.Equal(t, "age=<unset>", f.String())
}

func TestFieldLoaderFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	f := NewString("name")
	f.SetLoader(func(context.Context) error { return errors.New("store unreachable") })
	v, ok := f.Get(context.Background(), true)
	assert.False(t, ok)
	assert.Empty(t, v)
	got, ok := f.Any(context.Background(), true)
	assert.False(t, ok)
	assert.Nil(t, got)
}

type owner struct{ isNew bool }

func (o *owner) IsNew() bool { return o.isNew }

func TestIdentity(t *testing.T) {
	t.Parallel()

	o := &owner{isNew: true}
	id := NewIdentity("Id", o)

	err := id.Set(5)
	assert.True(t, relorm.IsNotPersisted(err))
	assert.False(t, id.IsSet())

	o.isNew = false
	assert.True(t, relorm.IsTypeMismatch(id.Set("five")))
	require.NoError(t, id.Set(5))
	v, ok := id.ID()
	assert.True(t, ok)
	assert.Equal(t, int64(5), v)

	err = id.Set(6)
	assert.ErrorIs(t, err, relorm.ErrIdentityReassigned)
	assert.ErrorIs(t, id.Decode("6"), relorm.ErrIdentityReassigned)
	id.Clear()
	v, _ = id.ID()
	assert.Equal(t, int64(5), v, "identity survives Clear")

	other := NewIdentity("Id", &owner{})
	require.NoError(t, other.Decode([]byte("9")))
	v, _ = other.ID()
	assert.Equal(t, int64(9), v)
}

func TestInt64Conversions(t *testing.T) {
	t.Parallel()

	i, ok := AsInt64(uint16(12))
	assert.True(t, ok)
	assert.Equal(t, int64(12), i)
	_, ok = AsInt64("12")
	assert.False(t, ok)

	i, ok = DecodeInt64("12")
	assert.True(t, ok)
	assert.Equal(t, int64(12), i)
	_, ok = DecodeInt64(1.5)
	assert.False(t, ok)
}
