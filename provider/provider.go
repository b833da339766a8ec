package provider

import (
	"context"

	"github.com/memorylayer-ai/memengine/memory"
)

// Candidate is one extracted memory proposal, before consolidation decides
// whether it becomes a new record or folds into an existing one.
type Candidate struct {
	Content    string             `json:"content" jsonschema:"required,description=The actual fact or memory content" validate:"required"`
	Type       memory.MemoryType  `json:"type" jsonschema:"required,enum=preference,enum=fact,enum=task,enum=project,enum=meta" validate:"required,oneof=preference fact task project meta"`
	Scope      memory.MemoryScope `json:"scope" jsonschema:"required,enum=user_global,enum=session,enum=site,enum=conversation" validate:"required,oneof=user_global session site conversation"`
	Confidence float64            `json:"confidence" jsonschema:"required,description=How certain the extraction is on a 0.0 to 1.0 scale" validate:"gte=0,lte=1"`
	Tags       []string           `json:"tags,omitempty" jsonschema:"description=Short categorization tags"`
}

// ExtractionContext carries provenance hints into extraction so the model can
// pick better scopes; all fields are optional.
type ExtractionContext struct {
	URL            string
	Platform       string
	ConversationID string
}

// Provider is the LLM boundary: completions, embeddings, and the extraction
// step built on top of them.
type Provider interface {
	// GenerateCompletion runs a plain chat completion and returns the text.
	GenerateCompletion(ctx context.Context, prompt string) (string, error)

	// GenerateEmbedding embeds a single text.
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)

	// GenerateEmbeddings embeds texts in request-size batches. The result is
	// positionally aligned with the input.
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)

	// ExtractMemories pulls memory candidates out of raw conversation text.
	// Malformed or low-confidence candidates are dropped here, never passed on.
	ExtractMemories(ctx context.Context, text string, extractionCtx *ExtractionContext) ([]Candidate, error)
}
