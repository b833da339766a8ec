package memory

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/memorylayer-ai/memengine/errors"
)

// LocalStore keeps memories in an in-process slice and snapshots the whole
// collection to a JSON file on every mutation. With an empty path it runs
// purely in memory, which is what the tests use.
//
// Save policy: insert-enforcing. Re-saving an existing id fails with
// ErrDuplicate.
//
// The snapshot is written to a temp file and renamed into place, so a failed
// write leaves the previous snapshot intact; the in-memory view is rolled
// back on failure, keeping both views consistent.
type LocalStore struct {
	mu        sync.RWMutex
	path      string
	dim       int
	tagPolicy TagMatchPolicy
	memories  []*Memory
}

var _ Store = (*LocalStore)(nil)

// NewLocalStore loads the snapshot at path if it exists. dim is the
// store-wide embedding dimension; 0 disables the check.
func NewLocalStore(path string, dim int, tagPolicy TagMatchPolicy) (*LocalStore, error) {
	s := &LocalStore{
		path:      path,
		dim:       dim,
		tagPolicy: tagPolicy,
	}

	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	} else if err != nil {
		return nil, errors.Wrapf(errors.ErrPersistence, "failed to read snapshot at %s: %v", path, err)
	}

	if err := json.Unmarshal(data, &s.memories); err != nil {
		return nil, errors.Wrapf(errors.ErrPersistence, "failed to decode snapshot at %s: %v", path, err)
	}
	return s, nil
}

func (s *LocalStore) Save(ctx context.Context, m *Memory) (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}
	if err := checkDimension(s.dim, m.Embedding); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(m.ID) >= 0 {
		return "", errors.Wrapf(errors.ErrDuplicate, "memory %s already exists", m.ID)
	}

	s.memories = append(s.memories, cloneMemory(m))
	if err := s.persist(); err != nil {
		s.memories = s.memories[:len(s.memories)-1]
		return "", err
	}
	return m.ID, nil
}

func (s *LocalStore) Update(ctx context.Context, id string, patch Patch) error {
	if err := patch.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return errors.Wrapf(errors.ErrNotFound, "memory %s", id)
	}

	previous := s.memories[idx]
	s.memories[idx] = patch.apply(previous, time.Now())
	if err := s.persist(); err != nil {
		s.memories[idx] = previous
		return err
	}
	return nil
}

func (s *LocalStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return errors.Wrapf(errors.ErrNotFound, "memory %s", id)
	}

	previous := s.memories
	s.memories = append(append([]*Memory(nil), previous[:idx]...), previous[idx+1:]...)
	if err := s.persist(); err != nil {
		s.memories = previous
		return err
	}
	return nil
}

func (s *LocalStore) Get(ctx context.Context, id string) (*Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return nil, nil
	}
	return cloneMemory(s.memories[idx]), nil
}

func (s *LocalStore) SearchByEmbedding(ctx context.Context, query []float32, limit int, filter *MemoryFilter) ([]ScoredMemory, error) {
	if err := checkDimension(s.dim, query); err != nil {
		return nil, err
	}

	s.mu.RLock()
	candidates := cloneMemories(filterMemories(s.memories, filter, s.tagPolicy))
	s.mu.RUnlock()

	return rankByEmbedding(candidates, query, limit)
}

func (s *LocalStore) List(ctx context.Context, limit, offset int, filter *MemoryFilter) ([]*Memory, error) {
	s.mu.RLock()
	results := cloneMemories(filterMemories(s.memories, filter, s.tagPolicy))
	s.mu.RUnlock()

	sortByRecency(results)

	if offset > 0 {
		if offset >= len(results) {
			return []*Memory{}, nil
		}
		results = results[offset:]
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *LocalStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.memories), nil
}

func (s *LocalStore) Close() error {
	return nil
}

// indexOf requires s.mu to be held.
func (s *LocalStore) indexOf(id string) int {
	for i, m := range s.memories {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// persist requires s.mu to be held for writing.
func (s *LocalStore) persist() error {
	if s.path == "" {
		return nil
	}

	data, err := json.MarshalIndent(s.memories, "", "  ")
	if err != nil {
		return errors.Wrapf(errors.ErrPersistence, "failed to encode snapshot: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return errors.Wrapf(errors.ErrPersistence, "failed to create snapshot directory: %v", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrapf(errors.ErrPersistence, "failed to write snapshot: %v", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrapf(errors.ErrPersistence, "failed to replace snapshot: %v", err)
	}
	return nil
}
