package memory

import (
	"gonum.org/v1/gonum/floats"

	"github.com/memorylayer-ai/memengine/errors"
)

// CosineSimilarity returns dot(a,b) / (|a|*|b|) in [-1,1].
//
// Vectors of unequal length have no defined similarity and fail loudly
// rather than being truncated or padded. A zero vector carries no
// directional information, so similarity against it is 0, not NaN.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, errors.Wrapf(errors.ErrValidation, "embedding dimension mismatch: %d != %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, errors.Wrapf(errors.ErrValidation, "embeddings are empty")
	}

	av := toFloat64(a)
	bv := toFloat64(b)

	normA := floats.Norm(av, 2)
	normB := floats.Norm(bv, 2)
	if normA == 0 || normB == 0 {
		return 0, nil
	}

	return floats.Dot(av, bv) / (normA * normB), nil
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
