package config

type PipelineConfig struct {
	// DedupeThreshold is the similarity above which an incoming candidate is
	// treated as a duplicate of an existing memory and only touches it.
	// Default: 0.95
	DedupeThreshold float64 `json:"dedupeThreshold,omitempty"`

	// UpdateThreshold is the similarity above which a candidate refreshes the
	// best-matching memory instead of being added as a new one.
	// Default: 0.85
	UpdateThreshold float64 `json:"updateThreshold,omitempty"`

	// RecallDepth is how many nearest neighbors consolidation compares each
	// candidate against.
	// Default: 5
	RecallDepth int `json:"recallDepth,omitempty"`
}

func NewPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		DedupeThreshold: 0.95,
		UpdateThreshold: 0.85,
		RecallDepth:     5,
	}
}
