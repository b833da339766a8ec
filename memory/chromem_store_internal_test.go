package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChromemStore_ReplaceRestoresIndexOnFailure(t *testing.T) {
	ctx := context.Background()
	store, err := NewChromemStore(3, TagMatchAll)
	require.NoError(t, err)
	defer store.Close()

	now := time.Now()
	m := &Memory{
		ID:      "m1",
		UserID:  "local_user",
		Content: "existing",
		Type:    TypeFact,
		Scope:   ScopeUserGlobal,
		Source: Source{
			Platform:  "chatgpt",
			Timestamp: now,
		},
		CreatedAt:  now,
		UpdatedAt:  now,
		Confidence: 0.8,
		Embedding:  []float32{1, 0, 0},
	}
	_, err = store.Save(ctx, m)
	require.NoError(t, err)

	// A document without an id cannot be indexed, so the add fails after
	// the old one was removed; the old document must be put back.
	bad := cloneMemory(m)
	bad.ID = ""
	err = store.replaceDocument(ctx, m, bad)
	require.Error(t, err)

	results, err := store.col.QueryEmbedding(ctx, []float32{1, 0, 0}, 1, nil, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "m1", results[0].ID)
}
