package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// GetValue decodes the JSON value stored under key into a T. The boolean is
// false when the key is absent.
func GetValue[T any](ctx context.Context, s Store, key string) (T, bool, error) {
	var v T
	data, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return v, false, nil
	}
	if err != nil {
		return v, false, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return v, true, nil
}

// SetValue stores v as JSON under key.
func SetValue[T any](ctx context.Context, s Store, key string, v T, opts SetOptions) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, data, opts)
}

// GetOrCompute returns the value stored under key, or computes, stores and
// returns it. A failed computation is returned and nothing is stored. The
// boolean reports a cache hit.
func GetOrCompute[T any](ctx context.Context, s Store, key string, opts SetOptions, compute func(context.Context) (T, error)) (T, bool, error) {
	if v, ok, err := GetValue[T](ctx, s, key); err == nil && ok {
		return v, true, nil
	}
	v, err := compute(ctx)
	if err != nil {
		return v, false, err
	}
	if err := SetValue(ctx, s, key, v, opts); err != nil {
		return v, false, err
	}
	return v, false, nil
}
