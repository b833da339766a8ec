package memory_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memorylayer-ai/memengine/errors"
	"github.com/memorylayer-ai/memengine/memory"
)

func TestCosineSimilarity_Identical(t *testing.T) {
	a := []float32{0.5, 0.3, 0.2}

	score, err := memory.CosineSimilarity(a, a)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-9)
}

func TestCosineSimilarity_Orthogonal(t *testing.T) {
	score, err := memory.CosineSimilarity([]float32{1, 0, 0}, []float32{0, 1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, score, 1e-9)
}

func TestCosineSimilarity_Opposite(t *testing.T) {
	score, err := memory.CosineSimilarity([]float32{1, 0, 0}, []float32{-1, 0, 0})
	require.NoError(t, err)
	assert.InDelta(t, -1.0, score, 1e-9)
}

func TestCosineSimilarity_Symmetric(t *testing.T) {
	a := []float32{0.2, 0.7, 0.1}
	b := []float32{0.9, 0.1, 0.4}

	ab, err := memory.CosineSimilarity(a, b)
	require.NoError(t, err)
	ba, err := memory.CosineSimilarity(b, a)
	require.NoError(t, err)
	assert.InDelta(t, ab, ba, 1e-12)
}

func TestCosineSimilarity_ScaleInvariant(t *testing.T) {
	a := []float32{0.2, 0.7, 0.1}
	b := []float32{0.4, 1.4, 0.2}

	score, err := memory.CosineSimilarity(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-6)
}

func TestCosineSimilarity_ZeroVector(t *testing.T) {
	score, err := memory.CosineSimilarity([]float32{0, 0, 0}, []float32{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestCosineSimilarity_DimensionMismatch(t *testing.T) {
	_, err := memory.CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestCosineSimilarity_Empty(t *testing.T) {
	_, err := memory.CosineSimilarity(nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestCosineSimilarity_KnownValue(t *testing.T) {
	// cos(45°) between [1,0] and [1,1].
	score, err := memory.CosineSimilarity([]float32{1, 0}, []float32{1, 1})
	require.NoError(t, err)
	assert.InDelta(t, 1/math.Sqrt2, score, 1e-6)
}
