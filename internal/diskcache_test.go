package internal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskCacheRoundtrip(t *testing.T) {
	ctx := context.Background()

	c, err := NewDiskCache(t.TempDir(), time.Hour, nil)
	require.NoError(t, err)

	records := []BookRecord{
		{Title: "Dune", Author: "Frank Herbert", Users: []string{"alice", "bob"}, UserCount: 2},
	}

	_, ok := c.Get(ctx, "k1")
	assert.False(t, ok)

	assert.True(t, c.Put(ctx, "k1", records))

	got, ok := c.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, records, got)

	// Keys are independent.
	_, ok = c.Get(ctx, "k2")
	assert.False(t, ok)
}

func TestDiskCacheExpiry(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	c, err := NewDiskCache(dir, time.Hour, nil)
	require.NoError(t, err)

	// Write an entry whose timestamp is already past the TTL. The file
	// stays on disk but lookups must miss.
	stale, err := json.Marshal(cacheEntry{
		Timestamp: time.Now().Add(-2 * time.Hour),
		Data:      []BookRecord{{Title: "Old News"}},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stale.json"), stale, 0o644))

	_, ok := c.Get(ctx, "stale")
	assert.False(t, ok)
	assert.FileExists(t, filepath.Join(dir, "stale.json"))
}

func TestDiskCacheCorruptEntry(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	c, err := NewDiskCache(dir, time.Hour, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o644))

	_, ok := c.Get(ctx, "bad")
	assert.False(t, ok)
}

func TestDiskCacheClear(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	c, err := NewDiskCache(dir, time.Hour, nil)
	require.NoError(t, err)

	assert.True(t, c.Put(ctx, "k1", []BookRecord{{Title: "A"}}))
	assert.True(t, c.Put(ctx, "k2", []BookRecord{{Title: "B"}}))

	assert.True(t, c.Clear(ctx))

	_, ok := c.Get(ctx, "k1")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "k2")
	assert.False(t, ok)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Clearing an already-empty cache is fine.
	assert.True(t, c.Clear(ctx))

	// The cache still works after a clear.
	assert.True(t, c.Put(ctx, "k1", []BookRecord{{Title: "A"}}))
	_, ok = c.Get(ctx, "k1")
	assert.True(t, ok)
}
