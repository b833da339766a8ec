package memory_test

import (
	"time"

	"github.com/memorylayer-ai/memengine/memory"
)

// testMemory builds a valid memory with overridable defaults.
func testMemory(id string, embedding []float32, mutators ...func(*memory.Memory)) *memory.Memory {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := &memory.Memory{
		ID:         id,
		UserID:     "local_user",
		Content:    "content of " + id,
		Type:       memory.TypeFact,
		Scope:      memory.ScopeUserGlobal,
		Source: memory.Source{
			URL:       "https://chat.example.com/c/123",
			Platform:  "chatgpt",
			Timestamp: now,
		},
		CreatedAt:  now,
		UpdatedAt:  now,
		Confidence: 0.8,
		Tags:       []string{"personal"},
		Embedding:  embedding,
	}
	for _, mutate := range mutators {
		mutate(m)
	}
	return m
}

func withType(t memory.MemoryType) func(*memory.Memory) {
	return func(m *memory.Memory) { m.Type = t }
}

func withScope(s memory.MemoryScope) func(*memory.Memory) {
	return func(m *memory.Memory) { m.Scope = s }
}

func withTags(tags ...string) func(*memory.Memory) {
	return func(m *memory.Memory) { m.Tags = tags }
}

func withPlatform(platform string) func(*memory.Memory) {
	return func(m *memory.Memory) { m.Source.Platform = platform }
}

func withCreatedAt(ts time.Time) func(*memory.Memory) {
	return func(m *memory.Memory) {
		m.CreatedAt = ts
		m.UpdatedAt = ts
	}
}
