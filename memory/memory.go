package memory

import (
	"time"

	"github.com/memorylayer-ai/memengine/errors"
)

type (
	MemoryType  string
	MemoryScope string

	// Source records the provenance of a memory: where and when it was captured.
	Source struct {
		URL            string    `json:"url,omitempty" jsonschema:"description=Origin URL of the conversation the memory was captured from"`
		Platform       string    `json:"platform,omitempty" jsonschema:"description=Platform label such as chatgpt or claude"`
		Timestamp      time.Time `json:"timestamp" jsonschema:"description=Capture time"`
		ConversationID string    `json:"conversationId,omitempty" jsonschema:"description=Conversation identifier when known"`
	}

	// Memory is the atomic stored unit: a single remembered fact, preference,
	// task or project detail, together with its semantic embedding.
	Memory struct {
		ID         string      `json:"id"`
		UserID     string      `json:"userId"`
		Content    string      `json:"content"`
		Type       MemoryType  `json:"type"`
		Scope      MemoryScope `json:"scope"`
		Source     Source      `json:"source"`
		CreatedAt  time.Time   `json:"createdAt"`
		UpdatedAt  time.Time   `json:"updatedAt"`
		Confidence float64     `json:"confidence"`
		Tags       []string    `json:"tags,omitempty"`
		Embedding  []float32   `json:"embedding"`
	}

	// MemoryFilter is a conjunctive predicate: every specified field must
	// hold for a memory to match. A nil filter matches everything.
	MemoryFilter struct {
		Type      MemoryType
		Scope     MemoryScope
		Platform  string
		Tags      []string
		StartDate *time.Time
		EndDate   *time.Time
	}

	// Patch is a partial update applied by Store.Update. Nil fields are left
	// untouched. UpdatedAt is always set by the store, never by the caller.
	Patch struct {
		Content    *string
		Confidence *float64
		Tags       []string
		Source     *Source
	}

	// TagMatchPolicy selects the tag-filter semantics of a store instance.
	TagMatchPolicy int

	// ScoredMemory holds a memory with its similarity score against a query.
	ScoredMemory struct {
		Memory *Memory `json:"memory"`
		Score  float64 `json:"score"`
	}
)

const (
	TypePreference MemoryType = "preference"
	TypeFact       MemoryType = "fact"
	TypeTask       MemoryType = "task"
	TypeProject    MemoryType = "project"
	TypeMeta       MemoryType = "meta"
)

const (
	ScopeUserGlobal   MemoryScope = "user_global"
	ScopeSession      MemoryScope = "session"
	ScopeSite         MemoryScope = "site"
	ScopeConversation MemoryScope = "conversation"
)

const (
	// TagMatchAll requires a memory to carry every tag named by the filter.
	TagMatchAll TagMatchPolicy = iota
	// TagMatchAny requires at least one overlapping tag.
	TagMatchAny
)

var knownTypes = map[MemoryType]struct{}{
	TypePreference: {},
	TypeFact:       {},
	TypeTask:       {},
	TypeProject:    {},
	TypeMeta:       {},
}

var knownScopes = map[MemoryScope]struct{}{
	ScopeUserGlobal:   {},
	ScopeSession:      {},
	ScopeSite:         {},
	ScopeConversation: {},
}

// Validate checks the structural invariants every stored memory must satisfy.
// The embedding dimension is checked by the store, which owns the constant.
func (m *Memory) Validate() error {
	if m.ID == "" {
		return errors.Wrapf(errors.ErrValidation, "memory id is required")
	}
	if m.Content == "" {
		return errors.Wrapf(errors.ErrValidation, "memory content is required")
	}
	if _, ok := knownTypes[m.Type]; !ok {
		return errors.Wrapf(errors.ErrValidation, "unknown memory type %q", m.Type)
	}
	if _, ok := knownScopes[m.Scope]; !ok {
		return errors.Wrapf(errors.ErrValidation, "unknown memory scope %q", m.Scope)
	}
	if m.Confidence < 0 || m.Confidence > 1 {
		return errors.Wrapf(errors.ErrValidation, "confidence %f out of range [0,1]", m.Confidence)
	}
	if len(m.Embedding) == 0 {
		return errors.Wrapf(errors.ErrValidation, "memory embedding is required")
	}
	return nil
}

func cloneMemory(m *Memory) *Memory {
	c := *m
	c.Tags = append([]string(nil), m.Tags...)
	c.Embedding = append([]float32(nil), m.Embedding...)
	return &c
}

func cloneMemories(ms []*Memory) []*Memory {
	out := make([]*Memory, len(ms))
	for i, m := range ms {
		out[i] = cloneMemory(m)
	}
	return out
}

// apply merges a patch into a copy of the memory and stamps UpdatedAt.
func (p Patch) apply(m *Memory, now time.Time) *Memory {
	updated := cloneMemory(m)
	if p.Content != nil {
		updated.Content = *p.Content
	}
	if p.Confidence != nil {
		updated.Confidence = *p.Confidence
	}
	if p.Tags != nil {
		updated.Tags = append([]string(nil), p.Tags...)
	}
	if p.Source != nil {
		updated.Source = *p.Source
	}
	updated.UpdatedAt = now
	return updated
}

// Validate rejects patches that would violate record invariants.
func (p Patch) Validate() error {
	if p.Content != nil && *p.Content == "" {
		return errors.Wrapf(errors.ErrValidation, "patch content must not be empty")
	}
	if p.Confidence != nil && (*p.Confidence < 0 || *p.Confidence > 1) {
		return errors.Wrapf(errors.ErrValidation, "patch confidence %f out of range [0,1]", *p.Confidence)
	}
	return nil
}

// ParseTagMatchPolicy maps a config string to a policy. Unknown values fall
// back to ALL-match, the narrowing default.
func ParseTagMatchPolicy(s string) TagMatchPolicy {
	if s == "any" {
		return TagMatchAny
	}
	return TagMatchAll
}
