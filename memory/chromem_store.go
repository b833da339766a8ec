package memory

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/memorylayer-ai/memengine/errors"
)

const chromemCollectionName = "memories"

// ChromemStore keeps memories in chromem-go, an embedded pure-Go vector
// database. The collection serves as the similarity index; full records are
// additionally held in a map so lookups and listings stay exact. This is the
// process-embedded variant: state lives for the lifetime of the process.
//
// Save policy: upsert. Re-saving an existing id overwrites the record.
type ChromemStore struct {
	mu        sync.RWMutex
	db        *chromem.DB
	col       *chromem.Collection
	dim       int
	tagPolicy TagMatchPolicy
	records   map[string]*Memory
	order     []string
}

var _ Store = (*ChromemStore)(nil)

func NewChromemStore(dim int, tagPolicy TagMatchPolicy) (*ChromemStore, error) {
	db := chromem.NewDB()
	// No embedding func: embeddings are always supplied by the caller.
	col, err := db.CreateCollection(chromemCollectionName, nil, nil)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrPersistence, "failed to create chromem collection: %v", err)
	}

	return &ChromemStore{
		db:        db,
		col:       col,
		dim:       dim,
		tagPolicy: tagPolicy,
		records:   make(map[string]*Memory),
	}, nil
}

func (s *ChromemStore) Save(ctx context.Context, m *Memory) (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}
	if err := checkDimension(s.dim, m.Embedding); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, exists := s.records[m.ID]
	if exists {
		if err := s.replaceDocument(ctx, old, m); err != nil {
			return "", err
		}
	} else if err := s.addDocument(ctx, m); err != nil {
		return "", err
	}

	s.records[m.ID] = cloneMemory(m)
	if !exists {
		s.order = append(s.order, m.ID)
	}
	return m.ID, nil
}

func (s *ChromemStore) Update(ctx context.Context, id string, patch Patch) error {
	if err := patch.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[id]
	if !ok {
		return errors.Wrapf(errors.ErrNotFound, "memory %s", id)
	}

	updated := patch.apply(existing, time.Now())

	if err := s.replaceDocument(ctx, existing, updated); err != nil {
		return err
	}

	s.records[id] = updated
	return nil
}

func (s *ChromemStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return errors.Wrapf(errors.ErrNotFound, "memory %s", id)
	}

	if err := s.col.Delete(ctx, nil, nil, id); err != nil {
		return errors.Wrapf(errors.ErrPersistence, "failed to delete document %s: %v", id, err)
	}

	delete(s.records, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *ChromemStore) Get(ctx context.Context, id string) (*Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	return cloneMemory(m), nil
}

func (s *ChromemStore) SearchByEmbedding(ctx context.Context, query []float32, limit int, filter *MemoryFilter) ([]ScoredMemory, error) {
	if err := checkDimension(s.dim, query); err != nil {
		return nil, err
	}
	if len(query) == 0 {
		return nil, errors.Wrapf(errors.ErrValidation, "query embedding is empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	total := s.col.Count()
	if total == 0 {
		return []ScoredMemory{}, nil
	}

	// Coarse retrieval through the vector index, over-fetching so the exact
	// re-rank still has enough candidates. Tag and date conditions cannot
	// ride the where clause and are applied after retrieval, so any such
	// filter forces a full fetch; otherwise post-filtering could starve the
	// result set while matches remain in the store.
	n := total
	if limit > 0 && limit*2 < n && !hasResidualFilter(filter) {
		n = limit * 2
	}

	// chromem requires nResults <= the number of documents matching the
	// where clause, which is unknown up front; back off until it fits.
	var results []chromem.Result
	var err error
	for currentN := n; currentN >= 1; currentN-- {
		results, err = s.col.QueryEmbedding(ctx, query, currentN, chromemWhere(filter), nil)
		if err == nil {
			break
		}
		if isInsufficientDocsError(err) {
			if currentN == 1 {
				return []ScoredMemory{}, nil
			}
			continue
		}
		return nil, errors.Wrapf(errors.ErrPersistence, "chromem query failed: %v", err)
	}

	hit := make(map[string]struct{}, len(results))
	for _, r := range results {
		hit[r.ID] = struct{}{}
	}

	// Walk insertion order so equal scores tie-break deterministically.
	candidates := make([]*Memory, 0, len(hit))
	for _, id := range s.order {
		m, ok := s.records[id]
		if !ok {
			continue
		}
		if _, ok := hit[id]; !ok {
			continue
		}
		if !MatchesFilter(m, filter, s.tagPolicy) {
			continue
		}
		candidates = append(candidates, cloneMemory(m))
	}

	return rankByEmbedding(candidates, query, limit)
}

func (s *ChromemStore) List(ctx context.Context, limit, offset int, filter *MemoryFilter) ([]*Memory, error) {
	s.mu.RLock()
	results := make([]*Memory, 0, len(s.order))
	for _, id := range s.order {
		m, ok := s.records[id]
		if !ok || !MatchesFilter(m, filter, s.tagPolicy) {
			continue
		}
		results = append(results, cloneMemory(m))
	}
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

func (s *ChromemStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *ChromemStore) Close() error {
	return nil
}

// replaceDocument swaps the indexed document for old with one for updated.
// If the new document cannot be added the old one is put back, so a failed
// write leaves search state untouched. Requires s.mu held for writing.
func (s *ChromemStore) replaceDocument(ctx context.Context, old, updated *Memory) error {
	if err := s.col.Delete(ctx, nil, nil, old.ID); err != nil {
		return errors.Wrapf(errors.ErrPersistence, "failed to replace document %s: %v", old.ID, err)
	}
	if err := s.addDocument(ctx, updated); err != nil {
		if restoreErr := s.addDocument(ctx, old); restoreErr != nil {
			return errors.Wrapf(errors.ErrPersistence, "failed to restore document %s after write failure %v: %v", old.ID, err, restoreErr)
		}
		return err
	}
	return nil
}

// addDocument requires s.mu to be held for writing.
func (s *ChromemStore) addDocument(ctx context.Context, m *Memory) error {
	content, err := json.Marshal(m)
	if err != nil {
		return errors.Wrapf(errors.ErrPersistence, "failed to serialize memory %s: %v", m.ID, err)
	}

	doc := chromem.Document{
		ID:        m.ID,
		Content:   string(content),
		Embedding: append([]float32(nil), m.Embedding...),
		Metadata: map[string]string{
			"user_id":  m.UserID,
			"type":     string(m.Type),
			"scope":    string(m.Scope),
			"platform": m.Source.Platform,
		},
	}

	if err := s.col.AddDocument(ctx, doc); err != nil {
		return errors.Wrapf(errors.ErrPersistence, "failed to add document %s: %v", m.ID, err)
	}
	return nil
}

// hasResidualFilter reports whether the filter carries conditions that are
// evaluated only after coarse retrieval.
func hasResidualFilter(f *MemoryFilter) bool {
	return f != nil && (len(f.Tags) > 0 || f.StartDate != nil || f.EndDate != nil)
}

func isInsufficientDocsError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}

// chromemWhere maps the exact-equality filter fields onto chromem metadata.
// Tag and date conditions cannot be expressed there and are applied after.
func chromemWhere(f *MemoryFilter) map[string]string {
	if f == nil {
		return nil
	}
	where := map[string]string{}
	if f.Type != "" {
		where["type"] = string(f.Type)
	}
	if f.Scope != "" {
		where["scope"] = string(f.Scope)
	}
	if f.Platform != "" {
		where["platform"] = f.Platform
	}
	if len(where) == 0 {
		return nil
	}
	return where
}
