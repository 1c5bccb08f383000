// Package kv is the key-value backing store for register metadata and lock
// state. Implementations: Pebble (embedded, default), Redis (shared between
// instances) and an in-memory map for tests.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("kv: key not found")

type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	// Delete of a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns every key starting with prefix. Order is unspecified.
	List(ctx context.Context, prefix string) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}
