package provider

import (
	"context"
	"encoding/json"

	"github.com/go-playground/validator/v10"
	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/samber/lo"

	"github.com/memorylayer-ai/memengine/config"
	"github.com/memorylayer-ai/memengine/errors"
	"github.com/memorylayer-ai/memengine/internal/mylog"
)

// OpenAIProvider implements Provider against the OpenAI API (or any
// compatible endpoint via BaseURL).
type OpenAIProvider struct {
	client   openai.Client
	conf     *config.ProviderConfig
	logger   *mylog.Logger
	validate *validator.Validate
}

var _ Provider = (*OpenAIProvider)(nil)

func NewOpenAIProvider(conf *config.ProviderConfig, logger *mylog.Logger) (*OpenAIProvider, error) {
	if conf == nil {
		return nil, errors.Wrapf(errors.ErrInvalidConfig, "provider config is nil")
	}
	if conf.OpenAIApiKey == "" {
		return nil, errors.Wrapf(errors.ErrInvalidConfig, "OPENAI_API_KEY is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(conf.OpenAIApiKey),
	}
	if conf.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(conf.BaseURL))
	}

	return &OpenAIProvider{
		client:   openai.NewClient(opts...),
		conf:     conf,
		logger:   logger,
		validate: validator.New(),
	}, nil
}

func (p *OpenAIProvider) GenerateCompletion(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.conf.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", errors.Wrapf(errors.ErrProvider, "completion request failed: %v", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.Wrapf(errors.ErrProvider, "completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := p.GenerateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

func (p *OpenAIProvider) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	for i, text := range texts {
		if text == "" {
			return nil, errors.Wrapf(errors.ErrValidation, "text %d is empty", i)
		}
	}

	batchSize := p.conf.EmbeddingBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	out := make([][]float32, 0, len(texts))
	for _, chunk := range lo.Chunk(texts, batchSize) {
		embeddings, err := p.embedChunk(ctx, chunk)
		if err != nil {
			return nil, err
		}
		out = append(out, embeddings...)
	}
	return out, nil
}

func (p *OpenAIProvider) embedChunk(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(p.conf.EmbeddingModel),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, errors.Wrapf(errors.ErrProvider, "embedding request failed: %v", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, errors.Wrapf(errors.ErrProvider, "embedding response has %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	// The API is documented to preserve input order; Index is checked anyway
	// because a misaligned embedding silently corrupts every later search.
	out := make([][]float32, len(texts))
	for i, d := range resp.Data {
		if int(d.Index) != i {
			return nil, errors.Wrapf(errors.ErrProvider, "embedding response out of order at %d", i)
		}
		out[i] = toFloat32(d.Embedding)
	}
	return out, nil
}

func (p *OpenAIProvider) ExtractMemories(ctx context.Context, text string, extractionCtx *ExtractionContext) ([]Candidate, error) {
	if text == "" {
		return nil, errors.Wrapf(errors.ErrValidation, "text is empty")
	}

	systemPrompt, err := buildExtractionPrompt(extractionCtx)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrProvider, "failed to build extraction prompt: %v", err)
	}

	reqCtx, cancel := p.withTimeout(ctx)
	defer cancel()

	resp, err := p.client.Chat.Completions.New(reqCtx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.conf.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(text),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return nil, errors.Wrapf(errors.ErrProvider, "extraction request failed: %v", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.Wrapf(errors.ErrProvider, "extraction returned no choices")
	}

	var parsed struct {
		Memories []Candidate `json:"memories"`
	}
	cleaned := stripCodeFences(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, errors.Wrapf(errors.ErrProvider, "extraction returned malformed JSON: %v", err)
	}

	for i := range parsed.Memories {
		if err := p.validate.Struct(&parsed.Memories[i]); err != nil {
			return nil, errors.Wrapf(errors.ErrProvider, "extraction candidate %d is invalid: %v", i, err)
		}
	}

	candidates := lo.Filter(parsed.Memories, func(c Candidate, _ int) bool {
		if c.Confidence < p.conf.MinConfidence {
			p.logger.Debug("dropping low-confidence candidate", "content", c.Content, "confidence", c.Confidence)
			return false
		}
		return true
	})
	return candidates, nil
}

func (p *OpenAIProvider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.conf.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.conf.RequestTimeout)
}

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
