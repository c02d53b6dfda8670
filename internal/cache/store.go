// Package cache stores computed search results so repeated requests skip the
// engine. Entries written by a preload are sticky: they never expire and only
// a replacing write or a full clear removes them.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Store.Get for an absent or expired key.
var ErrNotFound = errors.New("cache: key not found")

// Op names used in Error.
const (
	OpGet    = "GET"
	OpSet    = "SET"
	OpExists = "EXISTS"
	OpTTL    = "PTTL"
	OpScan   = "SCAN"
	OpDel    = "DEL"
	OpPing   = "PING"
)

// Error wraps a store failure with the operation that failed.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return "cache: " + e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// SetOptions control a single write.
type SetOptions struct {
	// TTL overrides the store's default expiration. Ignored for sticky writes.
	TTL time.Duration
	// Sticky entries never expire and survive Clear(ctx, false).
	Sticky bool
	// Replace overwrites a sticky entry. Without it, a sticky entry is kept.
	Replace bool
}

// Store is the key-value collaborator behind RequestCache.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, opts SetOptions) error
	Exists(ctx context.Context, key string) (bool, error)
	// Keys lists every live key.
	Keys(ctx context.Context) ([]string, error)
	// Clear removes expiring entries, and sticky ones too when alsoSticky is set.
	Clear(ctx context.Context, alsoSticky bool) error
	Close() error
}

// Flush removes every entry of s.
func Flush(ctx context.Context, s Store) error {
	return s.Clear(ctx, true)
}
