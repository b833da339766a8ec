package memory

import (
	"context"
	"sort"

	"github.com/memorylayer-ai/memengine/errors"
)

// Store is the persistence contract shared by every backend variant.
//
// All write operations on a store instance are serialized: concurrent
// Save/Update/Delete calls never interleave in a way that loses an update.
// Reads see committed state only. Whether Save enforces id uniqueness or
// upserts is a per-backend policy documented on the implementation.
type Store interface {
	// Save inserts a memory and returns its id.
	Save(ctx context.Context, m *Memory) (string, error)

	// Update applies a partial update. UpdatedAt is always bumped, even for
	// an empty patch. Fails with ErrNotFound when the id does not exist.
	Update(ctx context.Context, id string, patch Patch) error

	// Delete removes a record. Fails with ErrNotFound when absent.
	Delete(ctx context.Context, id string) error

	// Get returns the memory, or nil without error when absent.
	Get(ctx context.Context, id string) (*Memory, error)

	// SearchByEmbedding filters, scores every surviving candidate against the
	// query with cosine similarity, and returns the top results in descending
	// score order. Ties break by insertion order.
	SearchByEmbedding(ctx context.Context, query []float32, limit int, filter *MemoryFilter) ([]ScoredMemory, error)

	// List filters and truncates without ranking, most recently updated first.
	List(ctx context.Context, limit, offset int, filter *MemoryFilter) ([]*Memory, error)

	// Count returns the number of stored memories.
	Count(ctx context.Context) (int, error)

	Close() error
}

// rankByEmbedding is the ranking half of SearchByEmbedding, shared by every
// backend so that scoring can never drift between variants. Candidates must
// already be filtered and in insertion order; the sort is stable, so equal
// scores keep that order.
func rankByEmbedding(candidates []*Memory, query []float32, limit int) ([]ScoredMemory, error) {
	if len(query) == 0 {
		return nil, errors.Wrapf(errors.ErrValidation, "query embedding is empty")
	}

	scored := make([]ScoredMemory, 0, len(candidates))
	for _, m := range candidates {
		score, err := CosineSimilarity(query, m.Embedding)
		if err != nil {
			return nil, errors.Wrapf(err, "scoring memory %s", m.ID)
		}
		scored = append(scored, ScoredMemory{Memory: m, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// sortByRecency orders memories most recently updated first, keeping the
// incoming order for equal timestamps.
func sortByRecency(ms []*Memory) {
	sort.SliceStable(ms, func(i, j int) bool {
		return ms[i].UpdatedAt.After(ms[j].UpdatedAt)
	})
}

// checkDimension enforces the store-wide embedding dimension.
func checkDimension(dim int, embedding []float32) error {
	if dim > 0 && len(embedding) != dim {
		return errors.Wrapf(errors.ErrValidation, "embedding dimension %d does not match store dimension %d", len(embedding), dim)
	}
	return nil
}
