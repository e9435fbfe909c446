// Package dataloader provides generic helpers for batch loading rows by
// key.
//
// A batch read returns rows in store order, possibly with gaps. The helpers
// line the result up with the requested keys:
//
//	rows, _ := repo.SelectAll(ctx, repository.Where(idIn))
//	ordered, errs := dataloader.OrderByKeys(ids, rows, func(row map[string]any) int64 {
//	    return row["Id"].(int64)
//	})
package dataloader

import (
	"errors"
)

// ErrNotFound is returned for a key missing from a batch result.
var ErrNotFound = errors.New("dataloader: entity not found")

// KeyFunc extracts a key from a value.
type KeyFunc[K comparable, V any] func(V) K

// OrderByKeys reorders values to match the order of keys. The result has
// one entry per key; missing values are zero with ErrNotFound at the same
// index.
func OrderByKeys[K comparable, V any](keys []K, values []V, keyFn KeyFunc[K, V]) ([]V, []error) {
	lookup := make(map[K]V, len(values))
	for _, v := range values {
		lookup[keyFn(v)] = v
	}
	result := make([]V, len(keys))
	errs := make([]error, len(keys))
	for i, key := range keys {
		if v, ok := lookup[key]; ok {
			result[i] = v
		} else {
			errs[i] = ErrNotFound
		}
	}
	return result, errs
}
