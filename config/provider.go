package config

import "time"

type ProviderConfig struct {
	OpenAIApiKey string `json:"-" env:"OPENAI_API_KEY"`

	// BaseURL overrides the OpenAI endpoint, for proxies and tests.
	BaseURL string `json:"baseUrl,omitempty" env:"OPENAI_BASE_URL"`

	// Model is the chat model used for memory extraction.
	// Default: "gpt-4o-mini"
	Model string `json:"model,omitempty" env:"MEMENGINE_MODEL"`

	// EmbeddingModel produces the vectors stored next to each memory.
	// Default: "text-embedding-3-small"
	EmbeddingModel string `json:"embeddingModel,omitempty" env:"MEMENGINE_EMBEDDING_MODEL"`

	// RequestTimeout bounds every provider round trip.
	// Default: 30s
	RequestTimeout time.Duration `json:"requestTimeout,omitempty"`

	// MinConfidence drops extraction candidates the model itself is unsure
	// about before they reach the pipeline.
	// Default: 0.5
	MinConfidence float64 `json:"minConfidence,omitempty"`

	// EmbeddingBatchSize caps how many inputs go into one embeddings request.
	// Larger input sets are chunked and reassembled in order.
	// Default: 100
	EmbeddingBatchSize int `json:"embeddingBatchSize,omitempty"`
}

func NewProviderConfig() *ProviderConfig {
	return &ProviderConfig{
		Model:              "gpt-4o-mini",
		EmbeddingModel:     "text-embedding-3-small",
		RequestTimeout:     30 * time.Second,
		MinConfidence:      0.5,
		EmbeddingBatchSize: 100,
	}
}
