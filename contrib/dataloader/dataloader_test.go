package dataloader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rowID(row map[string]any) int64 {
	return row["Id"].(int64)
}

func TestOrderByKeys(t *testing.T) {
	t.Parallel()

	t.Run("all keys found", func(t *testing.T) {
		t.Parallel()
		keys := []int64{1, 2, 3}
		rows := []map[string]any{
			{"Id": int64(3), "name": "third"},
			{"Id": int64(1), "name": "first"},
			{"Id": int64(2), "name": "second"},
		}

		result, errs := OrderByKeys(keys, rows, rowID)

		require.Len(t, result, 3)
		require.Len(t, errs, 3)
		assert.Equal(t, "first", result[0]["name"])
		assert.Equal(t, "second", result[1]["name"])
		assert.Equal(t, "third", result[2]["name"])
		for _, err := range errs {
			assert.NoError(t, err)
		}
	})

	t.Run("some keys missing", func(t *testing.T) {
		t.Parallel()
		keys := []int64{1, 2, 3, 4}
		rows := []map[string]any{
			{"Id": int64(1), "name": "first"},
			{"Id": int64(3), "name": "third"},
		}

		result, errs := OrderByKeys(keys, rows, rowID)

		require.Len(t, result, 4)
		assert.Equal(t, "first", result[0]["name"])
		assert.Nil(t, result[1])
		assert.Equal(t, "third", result[2]["name"])
		assert.Nil(t, result[3])
		assert.NoError(t, errs[0])
		assert.ErrorIs(t, errs[1], ErrNotFound)
		assert.NoError(t, errs[2])
		assert.ErrorIs(t, errs[3], ErrNotFound)
	})

	t.Run("empty keys", func(t *testing.T) {
		t.Parallel()
		result, errs := OrderByKeys([]int64{}, nil, rowID)
		assert.Empty(t, result)
		assert.Empty(t, errs)
	})

	t.Run("duplicate keys", func(t *testing.T) {
		t.Parallel()
		keys := []int64{1, 1, 2}
		rows := []map[string]any{
			{"Id": int64(1), "name": "first"},
			{"Id": int64(2), "name": "second"},
		}

		result, errs := OrderByKeys(keys, rows, rowID)

		require.Len(t, result, 3)
		assert.Equal(t, "first", result[0]["name"])
		assert.Equal(t, "first", result[1]["name"])
		assert.Equal(t, "second", result[2]["name"])
		for _, err := range errs {
			assert.NoError(t, err)
		}
	})
}

func BenchmarkOrderByKeys(b *testing.B) {
	keys := make([]int64, 100)
	rows := make([]map[string]any, 100)
	for i := range 100 {
		keys[i] = int64(i)
		rows[99-i] = map[string]any{"Id": int64(i)}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		OrderByKeys(keys, rows, rowID)
	}
}
