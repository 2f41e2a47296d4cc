package service

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgmaxFirstMaximumWins(t *testing.T) {
	assert.Equal(t, 0, Argmax([]float32{0.5, 0.5}))
	assert.Equal(t, 2, Argmax([]float32{0.1, 0.2, 0.3, 0.3}))
	assert.Equal(t, 0, Argmax([]float32{1}))
	assert.Equal(t, 0, Argmax(nil))
}

func TestFormatResult(t *testing.T) {
	probs := []float32{0.01, 0.002, 0.03, 0.81234567, 0.1, 0.04, 0.00565433}
	res, err := FormatResult("smile.jpg", probs)
	require.NoError(t, err)

	assert.Equal(t, "smile.jpg", res.Filename)
	assert.Equal(t, "happy", res.Expression)
	assert.InDelta(t, 81.23, res.Accuracy, 1e-9)
	require.Len(t, res.Probabilities, len(Labels))
	assert.InDelta(t, 0.8123, res.Probabilities["happy"], 1e-9)
	assert.InDelta(t, 0.0057, res.Probabilities["surprise"], 1e-9)
	assert.InDelta(t, 0.002, res.Probabilities["disgust"], 1e-9)

	var sum float64
	best := ""
	for _, l := range Labels {
		v, ok := res.Probabilities[l]
		require.True(t, ok, l)
		sum += v
		if best == "" || v > res.Probabilities[best] {
			best = l
		}
	}
	assert.InDelta(t, 1.0, sum, 0.01)
	assert.Equal(t, best, res.Expression)
}

func TestFormatResultTieUsesFirstLabel(t *testing.T) {
	res, err := FormatResult("x.png", []float32{0, 0, 0.5, 0, 0, 0.5, 0})
	require.NoError(t, err)
	assert.Equal(t, "fear", res.Expression)
	assert.InDelta(t, 50.0, res.Accuracy, 1e-9)
}

func TestFormatResultRejectsBadScores(t *testing.T) {
	_, err := FormatResult("x.png", []float32{0.5, 0.5})
	assert.Error(t, err)

	nan := []float32{0, 0, 0, float32(math.NaN()), 0, 0, 0}
	_, err = FormatResult("x.png", nan)
	assert.Error(t, err)
}

func TestLabelOrder(t *testing.T) {
	assert.Equal(t, [...]string{"angry", "disgust", "fear", "happy", "neutral", "sad", "surprise"}, Labels)
}
