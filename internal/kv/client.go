package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ignite/waitlist-engine/internal/pkg/logger"
)

// Client applies JSON encoding and the failure policy on top of a Store.
//
// Get, GetByPrefix and List log backend errors and report "not found" or an
// empty result. Fetch is the strict variant for callers that must tell a
// missing record apart from an unavailable store. All writes return errors.
type Client struct {
	store Store
}

// NewClient wraps store.
func NewClient(store Store) *Client {
	return &Client{store: store}
}

// Store returns the underlying backend.
func (c *Client) Store() Store { return c.store }

// Get decodes key into dst and reports whether it was found.
func (c *Client) Get(ctx context.Context, key string, dst any) bool {
	found, err := c.Fetch(ctx, key, dst)
	if err != nil {
		logger.Warn("kv read degraded to not-found", "key", key, "error", err)
		return false
	}
	return found
}

// Fetch decodes key into dst. It returns (false, nil) for a missing key and
// an error if the backend failed or the stored document is not valid JSON.
func (c *Client) Fetch(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := c.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// Set encodes v and writes it under key.
func (c *Client) Set(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.store.Set(ctx, key, raw)
}

// SetNX encodes v and writes it only if key does not exist yet.
func (c *Client) SetNX(ctx context.Context, key string, v any) (bool, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("encode %s: %w", key, err)
	}
	return c.store.SetNX(ctx, key, raw)
}

// Delete removes key. Deleting a missing key is not an error.
func (c *Client) Delete(ctx context.Context, key string) error {
	return c.store.Delete(ctx, key)
}

// GetByPrefix returns the raw items under prefix, or nil if the backend failed.
func (c *Client) GetByPrefix(ctx context.Context, prefix string) []Item {
	items, err := c.store.GetByPrefix(ctx, prefix)
	if err != nil {
		logger.Warn("kv prefix scan degraded to empty", "prefix", prefix, "error", err)
		return nil
	}
	return items
}

// Count returns the number of keys under prefix.
func (c *Client) Count(ctx context.Context, prefix string) (int, error) {
	return c.store.CountByPrefix(ctx, prefix)
}

// Ping checks backend connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.store.Ping(ctx)
}

// Record is one decoded document from a prefix scan.
type Record[T any] struct {
	Key   string
	Value T
}

// List decodes every document under prefix into T. Documents that fail to
// decode are logged and skipped.
func List[T any](ctx context.Context, c *Client, prefix string) []Record[T] {
	items := c.GetByPrefix(ctx, prefix)
	out := make([]Record[T], 0, len(items))
	for _, it := range items {
		var v T
		if err := json.Unmarshal(it.Value, &v); err != nil {
			logger.Warn("kv skipping undecodable record", "key", it.Key, "error", err)
			continue
		}
		out = append(out, Record[T]{Key: it.Key, Value: v})
	}
	return out
}
