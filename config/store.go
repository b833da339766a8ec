package config

type StoreConfig struct {
	// Backend selects the persistence variant.
	// Options: "local" (JSON snapshot file), "chromem" (embedded vector DB),
	// "sqlite" (sqlite-vec), "postgres" (pgvector)
	// Default: "local"
	Backend string `json:"backend,omitempty" env:"MEMENGINE_BACKEND"`

	// Path is the snapshot file (local) or database file (sqlite). Empty
	// means fully in-memory for the local backend.
	Path string `json:"path,omitempty" env:"MEMENGINE_PATH"`

	// DatabaseURL is the postgres connection string.
	DatabaseURL string `json:"databaseUrl,omitempty" env:"DATABASE_URL"`

	// Dimension is the store-wide embedding dimension. Every embedding
	// written or queried must match it.
	// Default: 1536 (text-embedding-3-small)
	Dimension int `json:"dimension,omitempty" env:"MEMENGINE_DIMENSION"`

	// TagMatch selects tag filter semantics: "all" or "any".
	// Default: "all"
	TagMatch string `json:"tagMatch,omitempty" env:"MEMENGINE_TAG_MATCH"`
}

func NewStoreConfig() *StoreConfig {
	return &StoreConfig{
		Backend:   "local",
		Dimension: 1536,
		TagMatch:  "all",
	}
}
