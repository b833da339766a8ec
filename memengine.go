package memengine

import (
	"context"
	"log/slog"

	"github.com/memorylayer-ai/memengine/config"
	"github.com/memorylayer-ai/memengine/errors"
	"github.com/memorylayer-ai/memengine/ingestion"
	"github.com/memorylayer-ai/memengine/internal/mylog"
	"github.com/memorylayer-ai/memengine/memory"
	"github.com/memorylayer-ai/memengine/provider"
)

type (
	// Engine wires a store, a provider and the ingestion pipeline into one
	// entry point. Construct it with NewEngine and functional options.
	Engine struct {
		store    memory.Store
		provider provider.Provider
		pipeline *ingestion.Pipeline
		logger   *slog.Logger

		storeConfig    *config.StoreConfig
		providerConfig *config.ProviderConfig
		pipelineConfig *config.PipelineConfig
		logConfig      *config.LogConfig
	}
	Option func(*Engine)
)

func NewEngine(ctx context.Context, optionFuncs ...Option) (*Engine, error) {
	e := &Engine{
		storeConfig:    config.NewStoreConfig(),
		providerConfig: config.NewProviderConfig(),
		pipelineConfig: config.NewPipelineConfig(),
		logConfig:      config.NewLogConfig(),
	}

	if err := config.ResolveConfig(e.storeConfig, false); err != nil {
		return nil, err
	}
	if err := config.ResolveConfig(e.providerConfig, false); err != nil {
		return nil, err
	}
	if err := config.ResolveConfig(e.logConfig, false); err != nil {
		return nil, err
	}

	for _, f := range optionFuncs {
		f(e)
	}

	if e.logger == nil {
		e.logger = mylog.NewLogger(e.logConfig.LogLevel, e.logConfig.LogHandler)
	}

	var err error
	if e.store == nil {
		e.store, err = newStore(e.storeConfig)
		if err != nil {
			return nil, err
		}
	}

	if e.provider == nil {
		e.provider, err = provider.NewOpenAIProvider(e.providerConfig, e.logger)
		if err != nil {
			return nil, err
		}
	}

	e.pipeline, err = ingestion.NewPipeline(e.store, e.provider, e.logger, e.pipelineConfig)
	if err != nil {
		return nil, err
	}

	return e, nil
}

func newStore(conf *config.StoreConfig) (memory.Store, error) {
	tagPolicy := memory.ParseTagMatchPolicy(conf.TagMatch)

	switch conf.Backend {
	case "local":
		return memory.NewLocalStore(conf.Path, conf.Dimension, tagPolicy)
	case "chromem":
		return memory.NewChromemStore(conf.Dimension, tagPolicy)
	case "sqlite":
		if conf.Path == "" {
			return nil, errors.Wrapf(errors.ErrInvalidConfig, "sqlite backend requires a path")
		}
		return memory.NewSqliteStore(conf.Path, conf.Dimension, tagPolicy)
	case "postgres":
		if conf.DatabaseURL == "" {
			return nil, errors.Wrapf(errors.ErrInvalidConfig, "postgres backend requires DATABASE_URL")
		}
		return memory.NewPostgresStore(conf.DatabaseURL, conf.Dimension, tagPolicy)
	default:
		return nil, errors.Wrapf(errors.ErrInvalidConfig, "unknown backend %q", conf.Backend)
	}
}

// Ingest runs the consolidation pipeline over one piece of conversation text
// and returns the ids of every memory it touched.
func (e *Engine) Ingest(ctx context.Context, userID, text string, extractionCtx *provider.ExtractionContext) ([]string, error) {
	return e.pipeline.Run(ctx, userID, text, extractionCtx)
}

// IngestBatch runs the pipeline over several texts sequentially.
func (e *Engine) IngestBatch(ctx context.Context, userID string, texts []string, extractionCtx *provider.ExtractionContext) ([]string, error) {
	return e.pipeline.RunBatch(ctx, userID, texts, extractionCtx)
}

// Search embeds the query text and returns the most similar memories.
func (e *Engine) Search(ctx context.Context, query string, limit int, filter *memory.MemoryFilter) ([]memory.ScoredMemory, error) {
	if limit <= 0 {
		limit = 10
	}
	embedding, err := e.provider.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, err
	}
	return e.store.SearchByEmbedding(ctx, embedding, limit, filter)
}

func (e *Engine) Get(ctx context.Context, id string) (*memory.Memory, error) {
	return e.store.Get(ctx, id)
}

func (e *Engine) List(ctx context.Context, limit, offset int, filter *memory.MemoryFilter) ([]*memory.Memory, error) {
	return e.store.List(ctx, limit, offset, filter)
}

func (e *Engine) Delete(ctx context.Context, id string) error {
	return e.store.Delete(ctx, id)
}

func (e *Engine) Count(ctx context.Context) (int, error) {
	return e.store.Count(ctx)
}

func (e *Engine) Close() error {
	return e.store.Close()
}

func (e *Engine) Store() memory.Store {
	return e.store
}

func (e *Engine) Provider() provider.Provider {
	return e.provider
}

func WithStore(store memory.Store) Option {
	return func(e *Engine) {
		e.store = store
	}
}

func WithProvider(p provider.Provider) Option {
	return func(e *Engine) {
		e.provider = p
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithOpenAIAPIKey(apiKey string) Option {
	return func(e *Engine) {
		e.providerConfig.OpenAIApiKey = apiKey
	}
}

func WithStoreConfig(conf *config.StoreConfig) Option {
	return func(e *Engine) {
		e.storeConfig = conf
	}
}

func WithProviderConfig(conf *config.ProviderConfig) Option {
	return func(e *Engine) {
		e.providerConfig = conf
	}
}

func WithPipelineConfig(conf *config.PipelineConfig) Option {
	return func(e *Engine) {
		e.pipelineConfig = conf
	}
}

func WithLogConfig(conf *config.LogConfig) Option {
	return func(e *Engine) {
		e.logConfig = conf
	}
}
