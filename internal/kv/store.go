// Package kv is the persistence contract for the waitlist engine.
//
// Every record is a JSON document stored under an opaque string key. The
// Store interface is deliberately small so that Redis, PostgreSQL, DynamoDB
// and an in-memory map can all satisfy it. Callers normally go through
// Client, which owns JSON encoding and the read/write failure policy:
// reads degrade to "not found", writes always surface their error.
package kv

import (
	"context"
	"errors"
	"sort"
)

// ErrNotFound is returned by Store.Get when the key does not exist.
var ErrNotFound = errors.New("kv: key not found")

// Item is one key/value pair returned by a prefix scan.
type Item struct {
	Key   string
	Value []byte
}

// Store is implemented by each backend.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// SetNX writes value only if key is absent. It reports whether the
	// write happened.
	SetNX(ctx context.Context, key string, value []byte) (bool, error)
	Delete(ctx context.Context, key string) error
	// GetByPrefix returns every item whose key starts with prefix, sorted by key.
	GetByPrefix(ctx context.Context, prefix string) ([]Item, error)
	CountByPrefix(ctx context.Context, prefix string) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

func sortItems(items []Item) {
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
}
