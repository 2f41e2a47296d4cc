package service

import (
	"fmt"
	"math"
)

// Argmax returns the index of the largest value. The first maximum wins.
func Argmax(p []float32) int {
	best := 0
	for i := 1; i < len(p); i++ {
		if p[i] > p[best] {
			best = i
		}
	}
	return best
}

func round(v float64, places int) float64 {
	scale := math.Pow10(places)
	return math.Round(v*scale) / scale
}

func FormatResult(filename string, probs []float32) (*PredictionResult, error) {
	if len(probs) != len(Labels) {
		return nil, fmt.Errorf("model returned %d scores, expected %d", len(probs), len(Labels))
	}
	for i, p := range probs {
		if math.IsNaN(float64(p)) || math.IsInf(float64(p), 0) {
			return nil, fmt.Errorf("model returned non-finite score for %s", Labels[i])
		}
	}

	best := Argmax(probs)
	scores := make(map[string]float64, len(Labels))
	for i, p := range probs {
		scores[Labels[i]] = round(float64(p), 4)
	}
	return &PredictionResult{
		Filename:      filename,
		Expression:    Labels[best],
		Accuracy:      round(float64(probs[best])*100, 2),
		Probabilities: scores,
	}, nil
}
