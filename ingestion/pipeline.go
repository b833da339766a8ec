package ingestion

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/memorylayer-ai/memengine/config"
	"github.com/memorylayer-ai/memengine/errors"
	"github.com/memorylayer-ai/memengine/internal/mylog"
	"github.com/memorylayer-ai/memengine/memory"
	"github.com/memorylayer-ai/memengine/provider"
)

// Pipeline turns raw conversation text into consolidated memories: extract
// candidates, embed them, then for each candidate decide between adding a new
// record, refreshing the closest existing one, or just touching a duplicate.
type Pipeline struct {
	store    memory.Store
	provider provider.Provider
	logger   *mylog.Logger
	conf     *config.PipelineConfig
}

func NewPipeline(store memory.Store, p provider.Provider, logger *mylog.Logger, conf *config.PipelineConfig) (*Pipeline, error) {
	if store == nil {
		return nil, errors.Wrapf(errors.ErrInvalidConfig, "store is required")
	}
	if p == nil {
		return nil, errors.Wrapf(errors.ErrInvalidConfig, "provider is required")
	}
	if conf == nil {
		conf = config.NewPipelineConfig()
	}
	if conf.UpdateThreshold > conf.DedupeThreshold {
		return nil, errors.Wrapf(errors.ErrInvalidConfig, "update threshold %f exceeds dedupe threshold %f", conf.UpdateThreshold, conf.DedupeThreshold)
	}

	return &Pipeline{
		store:    store,
		provider: p,
		logger:   logger,
		conf:     conf,
	}, nil
}

// Run processes one piece of text. It returns the ids of every memory the
// text touched, in candidate order. When a candidate fails mid-way, the ids
// of already-committed candidates are returned alongside the error.
func (p *Pipeline) Run(ctx context.Context, userID, text string, extractionCtx *provider.ExtractionContext) ([]string, error) {
	candidates, err := p.provider.ExtractMemories(ctx, text, extractionCtx)
	if err != nil {
		return nil, errors.Wrapf(err, "extraction failed")
	}
	if len(candidates) == 0 {
		p.logger.Debug("no memory candidates extracted")
		return []string{}, nil
	}

	contents := make([]string, len(candidates))
	for i, c := range candidates {
		contents[i] = c.Content
	}
	embeddings, err := p.provider.GenerateEmbeddings(ctx, contents)
	if err != nil {
		return nil, errors.Wrapf(err, "embedding failed")
	}

	source := sourceFromContext(extractionCtx)

	processedIds := make([]string, 0, len(candidates))
	for i, candidate := range candidates {
		id, err := p.consolidate(ctx, userID, candidate, embeddings[i], source)
		if err != nil {
			return processedIds, errors.Wrapf(err, "candidate %d/%d failed", i+1, len(candidates))
		}
		processedIds = append(processedIds, id)
	}
	return processedIds, nil
}

// RunBatch processes several texts sequentially against the same context and
// returns the combined touched ids. The first failing text stops the batch.
func (p *Pipeline) RunBatch(ctx context.Context, userID string, texts []string, extractionCtx *provider.ExtractionContext) ([]string, error) {
	var processedIds []string
	for i, text := range texts {
		ids, err := p.Run(ctx, userID, text, extractionCtx)
		processedIds = append(processedIds, ids...)
		if err != nil {
			return processedIds, errors.Wrapf(err, "text %d/%d failed", i+1, len(texts))
		}
	}
	return processedIds, nil
}

// consolidate makes the per-candidate decision. Recall is restricted to
// memories of the same type and scope; only the single best match drives the
// decision.
func (p *Pipeline) consolidate(ctx context.Context, userID string, candidate provider.Candidate, embedding []float32, source memory.Source) (string, error) {
	recalled, err := p.store.SearchByEmbedding(ctx, embedding, p.conf.RecallDepth, &memory.MemoryFilter{
		Type:  candidate.Type,
		Scope: candidate.Scope,
	})
	if err != nil {
		return "", errors.Wrapf(err, "recall failed")
	}

	if len(recalled) > 0 {
		topMatch := recalled[0]

		if topMatch.Score > p.conf.DedupeThreshold {
			// Near-exact duplicate: only refresh the timestamp.
			if err := p.store.Update(ctx, topMatch.Memory.ID, memory.Patch{}); err != nil {
				return "", errors.Wrapf(err, "deduplicate failed")
			}
			p.logger.Info("deduplicated memory", "id", topMatch.Memory.ID, "score", topMatch.Score)
			return topMatch.Memory.ID, nil
		}

		if topMatch.Score > p.conf.UpdateThreshold {
			confidence := max(topMatch.Memory.Confidence, candidate.Confidence)
			if err := p.store.Update(ctx, topMatch.Memory.ID, memory.Patch{
				Confidence: &confidence,
			}); err != nil {
				return "", errors.Wrapf(err, "update failed")
			}
			p.logger.Info("updated memory", "id", topMatch.Memory.ID, "score", topMatch.Score, "confidence", confidence)
			return topMatch.Memory.ID, nil
		}
	}

	now := time.Now()
	m := &memory.Memory{
		ID:         uuid.NewString(),
		UserID:     userID,
		Content:    candidate.Content,
		Type:       candidate.Type,
		Scope:      candidate.Scope,
		Source:     source,
		CreatedAt:  now,
		UpdatedAt:  now,
		Confidence: candidate.Confidence,
		Tags:       candidate.Tags,
		Embedding:  embedding,
	}
	id, err := p.store.Save(ctx, m)
	if err != nil {
		return "", errors.Wrapf(err, "add failed")
	}
	p.logger.Info("added memory", "id", id, "type", m.Type, "scope", m.Scope)
	return id, nil
}

func sourceFromContext(extractionCtx *provider.ExtractionContext) memory.Source {
	source := memory.Source{Timestamp: time.Now()}
	if extractionCtx != nil {
		source.URL = extractionCtx.URL
		source.Platform = extractionCtx.Platform
		source.ConversationID = extractionCtx.ConversationID
	}
	return source
}
