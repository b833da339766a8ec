//go:build !without_sqlite

package memory_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memorylayer-ai/memengine/errors"
	"github.com/memorylayer-ai/memengine/memory"
)

func newSqliteStore(t *testing.T) *memory.SqliteStore {
	t.Helper()
	store, err := memory.NewSqliteStore(filepath.Join(t.TempDir(), "memories.db"), 3, memory.TagMatchAll)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSqliteStore_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	store := newSqliteStore(t)

	m := testMemory("m1", []float32{1, 0, 0})
	id, err := store.Save(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, "m1", id)

	got, err := store.Get(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, m.Content, got.Content)
	assert.Equal(t, m.Type, got.Type)
	assert.Equal(t, m.Scope, got.Scope)
	assert.Equal(t, m.Source.URL, got.Source.URL)
	assert.Equal(t, m.Source.Platform, got.Source.Platform)
	assert.Equal(t, m.Tags, got.Tags)
	require.Len(t, got.Embedding, 3)
	assert.InDelta(t, 1.0, float64(got.Embedding[0]), 1e-6)
}

func TestSqliteStore_SaveDuplicate(t *testing.T) {
	ctx := context.Background()
	store := newSqliteStore(t)

	_, err := store.Save(ctx, testMemory("m1", []float32{1, 0, 0}))
	require.NoError(t, err)

	_, err = store.Save(ctx, testMemory("m1", []float32{0, 1, 0}))
	assert.ErrorIs(t, err, errors.ErrDuplicate)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSqliteStore_Update(t *testing.T) {
	ctx := context.Background()
	store := newSqliteStore(t)

	_, err := store.Save(ctx, testMemory("m1", []float32{1, 0, 0}))
	require.NoError(t, err)
	before, err := store.Get(ctx, "m1")
	require.NoError(t, err)

	content := "rewritten"
	confidence := 0.99
	require.NoError(t, store.Update(ctx, "m1", memory.Patch{
		Content:    &content,
		Confidence: &confidence,
		Tags:       []string{"work", "golang"},
	}))

	got, err := store.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "rewritten", got.Content)
	assert.Equal(t, 0.99, got.Confidence)
	assert.Equal(t, []string{"work", "golang"}, got.Tags)
	assert.True(t, got.UpdatedAt.After(before.UpdatedAt))

	assert.ErrorIs(t, store.Update(ctx, "nope", memory.Patch{}), errors.ErrNotFound)
}

func TestSqliteStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := newSqliteStore(t)

	_, err := store.Save(ctx, testMemory("m1", []float32{1, 0, 0}))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "m1"))

	got, err := store.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.ErrorIs(t, store.Delete(ctx, "m1"), errors.ErrNotFound)
}

func TestSqliteStore_SearchRanksBySimilarity(t *testing.T) {
	ctx := context.Background()
	store := newSqliteStore(t)

	_, err := store.Save(ctx, testMemory("far", []float32{0, 1, 0}))
	require.NoError(t, err)
	_, err = store.Save(ctx, testMemory("close", []float32{0.9, 0.1, 0}))
	require.NoError(t, err)
	_, err = store.Save(ctx, testMemory("exact", []float32{1, 0, 0}))
	require.NoError(t, err)

	results, err := store.SearchByEmbedding(ctx, []float32{1, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "exact", results[0].Memory.ID)
	assert.Equal(t, "close", results[1].Memory.ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)
}

func TestSqliteStore_SearchAppliesFilter(t *testing.T) {
	ctx := context.Background()
	store := newSqliteStore(t)

	_, err := store.Save(ctx, testMemory("fact", []float32{1, 0, 0}, withType(memory.TypeFact)))
	require.NoError(t, err)
	_, err = store.Save(ctx, testMemory("task", []float32{1, 0, 0}, withType(memory.TypeTask)))
	require.NoError(t, err)

	results, err := store.SearchByEmbedding(ctx, []float32{1, 0, 0}, 10, &memory.MemoryFilter{Type: memory.TypeTask})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "task", results[0].Memory.ID)
}

func TestSqliteStore_SearchTagFilter(t *testing.T) {
	ctx := context.Background()
	store := newSqliteStore(t)

	_, err := store.Save(ctx, testMemory("both", []float32{1, 0, 0}, withTags("work", "golang")))
	require.NoError(t, err)
	_, err = store.Save(ctx, testMemory("one", []float32{1, 0, 0}, withTags("work")))
	require.NoError(t, err)

	// ALL policy: both tags must be present.
	results, err := store.SearchByEmbedding(ctx, []float32{1, 0, 0}, 10, &memory.MemoryFilter{Tags: []string{"work", "golang"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "both", results[0].Memory.ID)
}

func TestSqliteStore_List(t *testing.T) {
	ctx := context.Background()
	store := newSqliteStore(t)

	_, err := store.Save(ctx, testMemory("m1", []float32{1, 0, 0}))
	require.NoError(t, err)
	_, err = store.Save(ctx, testMemory("m2", []float32{0, 1, 0}, withPlatform("claude")))
	require.NoError(t, err)

	all, err := store.List(ctx, 0, 0, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	claude, err := store.List(ctx, 0, 0, &memory.MemoryFilter{Platform: "claude"})
	require.NoError(t, err)
	require.Len(t, claude, 1)
	assert.Equal(t, "m2", claude[0].ID)
}
