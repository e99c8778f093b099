package kv

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// brokenStore fails every call, to exercise the degrade/surface policy.
type brokenStore struct{ err error }

func (b brokenStore) Get(context.Context, string) ([]byte, error)         { return nil, b.err }
func (b brokenStore) Set(context.Context, string, []byte) error           { return b.err }
func (b brokenStore) SetNX(context.Context, string, []byte) (bool, error) { return false, b.err }
func (b brokenStore) Delete(context.Context, string) error                { return b.err }
func (b brokenStore) GetByPrefix(context.Context, string) ([]Item, error) { return nil, b.err }
func (b brokenStore) CountByPrefix(context.Context, string) (int, error)  { return 0, b.err }
func (b brokenStore) Ping(context.Context) error                          { return b.err }
func (b brokenStore) Close() error                                        { return nil }

type doc struct {
	Name string `json:"name"`
	N    int    `json:"n"`
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewClient(NewMemoryStore())

	require.NoError(t, c.Set(ctx, "doc_a", doc{Name: "a", N: 1}))

	var got doc
	assert.True(t, c.Get(ctx, "doc_a", &got))
	assert.Equal(t, doc{Name: "a", N: 1}, got)

	assert.False(t, c.Get(ctx, "doc_missing", &got))

	found, err := c.Fetch(ctx, "doc_missing", &got)
	require.NoError(t, err)
	assert.False(t, found)

	ok, err := c.SetNX(ctx, "doc_a", doc{Name: "other"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClientReadsDegrade(t *testing.T) {
	ctx := context.Background()
	c := NewClient(brokenStore{err: errors.New("store down")})

	var got doc
	assert.False(t, c.Get(ctx, "doc_a", &got))
	assert.Nil(t, c.GetByPrefix(ctx, "doc_"))
	assert.Empty(t, List[doc](ctx, c, "doc_"))

	_, err := c.Fetch(ctx, "doc_a", &got)
	assert.Error(t, err, "Fetch is strict")
}

func TestClientWritesSurface(t *testing.T) {
	ctx := context.Background()
	c := NewClient(brokenStore{err: errors.New("store down")})

	assert.Error(t, c.Set(ctx, "doc_a", doc{}))
	_, err := c.SetNX(ctx, "doc_a", doc{})
	assert.Error(t, err)
	assert.Error(t, c.Delete(ctx, "doc_a"))
}

func TestClientCorruptDocument(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, "doc_bad", []byte("not json")))
	require.NoError(t, store.Set(ctx, "doc_good", []byte(`{"name":"g","n":2}`)))
	c := NewClient(store)

	var got doc
	assert.False(t, c.Get(ctx, "doc_bad", &got))

	_, err := c.Fetch(ctx, "doc_bad", &got)
	assert.Error(t, err)

	recs := List[doc](ctx, c, "doc_")
	require.Len(t, recs, 1)
	assert.Equal(t, "doc_good", recs[0].Key)
	assert.Equal(t, 2, recs[0].Value.N)
}
