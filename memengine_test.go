package memengine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memorylayer-ai/memengine"
	"github.com/memorylayer-ai/memengine/config"
	"github.com/memorylayer-ai/memengine/errors"
	"github.com/memorylayer-ai/memengine/internal/mylog"
	"github.com/memorylayer-ai/memengine/memory"
	"github.com/memorylayer-ai/memengine/provider"
)

// scriptedProvider maps texts to candidates and contents to embeddings.
type scriptedProvider struct {
	candidatesByText    map[string][]provider.Candidate
	embeddingsByContent map[string][]float32
}

func (s *scriptedProvider) GenerateCompletion(ctx context.Context, prompt string) (string, error) {
	return "", nil
}

func (s *scriptedProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	embedding, ok := s.embeddingsByContent[text]
	if !ok {
		return nil, errors.Errorf("no scripted embedding for %q", text)
	}
	return embedding, nil
}

func (s *scriptedProvider) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		embedding, err := s.GenerateEmbedding(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = embedding
	}
	return out, nil
}

func (s *scriptedProvider) ExtractMemories(ctx context.Context, text string, _ *provider.ExtractionContext) ([]provider.Candidate, error) {
	return s.candidatesByText[text], nil
}

func newTestEngine(t *testing.T, p provider.Provider) *memengine.Engine {
	t.Helper()

	store, err := memory.NewLocalStore("", 3, memory.TagMatchAll)
	require.NoError(t, err)

	engine, err := memengine.NewEngine(
		context.Background(),
		memengine.WithStore(store),
		memengine.WithProvider(p),
		memengine.WithLogger(mylog.NewLogger("error", "default")),
	)
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return engine
}

func TestEngine_IngestAndSearch(t *testing.T) {
	ctx := context.Background()
	p := &scriptedProvider{
		candidatesByText: map[string][]provider.Candidate{
			"conversation": {
				{
					Content:    "user prefers dark mode",
					Type:       memory.TypePreference,
					Scope:      memory.ScopeUserGlobal,
					Confidence: 0.9,
					Tags:       []string{"preferences"},
				},
			},
		},
		embeddingsByContent: map[string][]float32{
			"user prefers dark mode": {1, 0, 0},
			"dark mode?":             {0.95, 0.05, 0},
		},
	}

	engine := newTestEngine(t, p)

	ids, err := engine.Ingest(ctx, "user-1", "conversation", &provider.ExtractionContext{Platform: "chatgpt"})
	require.NoError(t, err)
	require.Len(t, ids, 1)

	results, err := engine.Search(ctx, "dark mode?", 5, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, ids[0], results[0].Memory.ID)
	assert.Greater(t, results[0].Score, 0.95)

	count, err := engine.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEngine_GetListDelete(t *testing.T) {
	ctx := context.Background()
	p := &scriptedProvider{
		candidatesByText: map[string][]provider.Candidate{
			"text": {
				{Content: "a fact", Type: memory.TypeFact, Scope: memory.ScopeUserGlobal, Confidence: 0.8},
			},
		},
		embeddingsByContent: map[string][]float32{
			"a fact": {0, 1, 0},
		},
	}

	engine := newTestEngine(t, p)
	ids, err := engine.Ingest(ctx, "user-1", "text", nil)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	got, err := engine.Get(ctx, ids[0])
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a fact", got.Content)

	listed, err := engine.List(ctx, 10, 0, nil)
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	require.NoError(t, engine.Delete(ctx, ids[0]))

	gone, err := engine.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestNewEngine_UnknownBackend(t *testing.T) {
	conf := config.NewStoreConfig()
	conf.Backend = "bogus"

	_, err := memengine.NewEngine(
		context.Background(),
		memengine.WithStoreConfig(conf),
		memengine.WithProvider(&scriptedProvider{}),
		memengine.WithLogger(mylog.NewLogger("error", "default")),
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestMem0_AddSearchGetAll(t *testing.T) {
	ctx := context.Background()
	p := &scriptedProvider{
		candidatesByText: map[string][]provider.Candidate{
			"I love espresso": {
				{Content: "user loves espresso", Type: memory.TypePreference, Scope: memory.ScopeUserGlobal, Confidence: 0.9},
			},
		},
		embeddingsByContent: map[string][]float32{
			"user loves espresso": {1, 0, 0},
			"coffee preference":   {0.9, 0.1, 0},
		},
	}

	engine := newTestEngine(t, p)
	mem0 := engine.Mem0()

	added, err := mem0.Add(ctx, []string{"I love espresso"}, memengine.AddMemoryOptions{UserID: "user-1"})
	require.NoError(t, err)
	require.Len(t, added.Results, 1)
	assert.Equal(t, "user loves espresso", added.Results[0].Memory)
	assert.Equal(t, "user-1", added.Results[0].UserID)
	assert.Equal(t, "preference", added.Results[0].Metadata["type"])
	// Add defaults to the manual platform when none is given.
	assert.Equal(t, "manual", added.Results[0].Metadata["platform"])

	found, err := mem0.Search(ctx, "coffee preference", memengine.SearchMemoryOptions{})
	require.NoError(t, err)
	require.Len(t, found.Results, 1)
	assert.Equal(t, added.Results[0].ID, found.Results[0].ID)
	assert.Greater(t, found.Results[0].Score, 0.9)

	all, err := mem0.GetAll(ctx, memengine.GetAllMemoryOptions{})
	require.NoError(t, err)
	assert.Len(t, all.Results, 1)
}
