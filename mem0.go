package memengine

import (
	"context"
	"time"

	"github.com/memorylayer-ai/memengine/memory"
	"github.com/memorylayer-ai/memengine/provider"
)

type (
	// MemoryItem is the mem0-style view of a stored memory.
	MemoryItem struct {
		ID        string         `json:"id"`
		Memory    string         `json:"memory"`
		CreatedAt string         `json:"createdAt,omitempty"`
		UpdatedAt string         `json:"updatedAt,omitempty"`
		Score     float64        `json:"score,omitempty"`
		Metadata  map[string]any `json:"metadata,omitempty"`
		UserID    string         `json:"userId,omitempty"`
	}

	SearchResult struct {
		Results []MemoryItem `json:"results"`
	}

	AddMemoryOptions struct {
		UserID   string
		URL      string
		Platform string
	}

	SearchMemoryOptions struct {
		Limit  int
		Filter *memory.MemoryFilter
	}

	GetAllMemoryOptions struct {
		Limit  int
		Offset int
		Filter *memory.MemoryFilter
	}

	// Mem0 adapts the engine to the mem0 client surface: add, search, getAll
	// over plain string memories. Applications already written against mem0
	// can switch backends without touching call sites.
	Mem0 struct {
		engine *Engine
	}
)

// Mem0 returns the adapter view of the engine.
func (e *Engine) Mem0() *Mem0 {
	return &Mem0{engine: e}
}

func (m *Mem0) Add(ctx context.Context, messages []string, opts AddMemoryOptions) (*SearchResult, error) {
	platform := opts.Platform
	if platform == "" {
		platform = "manual"
	}
	extractionCtx := &provider.ExtractionContext{
		URL:      opts.URL,
		Platform: platform,
	}

	ids, err := m.engine.IngestBatch(ctx, opts.UserID, messages, extractionCtx)
	if err != nil {
		return nil, err
	}

	results := make([]MemoryItem, 0, len(ids))
	for _, id := range ids {
		mem, err := m.engine.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if mem == nil {
			continue
		}
		results = append(results, toMemoryItem(mem, 0))
	}
	return &SearchResult{Results: results}, nil
}

func (m *Mem0) Search(ctx context.Context, query string, opts SearchMemoryOptions) (*SearchResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	scored, err := m.engine.Search(ctx, query, limit, opts.Filter)
	if err != nil {
		return nil, err
	}

	results := make([]MemoryItem, len(scored))
	for i, s := range scored {
		results[i] = toMemoryItem(s.Memory, s.Score)
	}
	return &SearchResult{Results: results}, nil
}

func (m *Mem0) GetAll(ctx context.Context, opts GetAllMemoryOptions) (*SearchResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	memories, err := m.engine.List(ctx, limit, opts.Offset, opts.Filter)
	if err != nil {
		return nil, err
	}

	results := make([]MemoryItem, len(memories))
	for i, mem := range memories {
		results[i] = toMemoryItem(mem, 0)
	}
	return &SearchResult{Results: results}, nil
}

func toMemoryItem(mem *memory.Memory, score float64) MemoryItem {
	metadata := map[string]any{
		"type":  string(mem.Type),
		"scope": string(mem.Scope),
	}
	if mem.Source.URL != "" {
		metadata["url"] = mem.Source.URL
	}
	if mem.Source.Platform != "" {
		metadata["platform"] = mem.Source.Platform
	}
	if mem.Source.ConversationID != "" {
		metadata["conversationId"] = mem.Source.ConversationID
	}

	return MemoryItem{
		ID:        mem.ID,
		Memory:    mem.Content,
		CreatedAt: mem.CreatedAt.Format(time.RFC3339),
		UpdatedAt: mem.UpdatedAt.Format(time.RFC3339),
		Score:     score,
		Metadata:  metadata,
		UserID:    mem.UserID,
	}
}
