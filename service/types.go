package service

import ort "github.com/yalue/onnxruntime_go"

const ImageSize = 48

// Labels is the model's output order. Index i of the probability vector is Labels[i].
var Labels = [...]string{"angry", "disgust", "fear", "happy", "neutral", "sad", "surprise"}

// InputShape is batch, timestep, height, width, channel.
var InputShape = ort.NewShape(1, 1, ImageSize, ImageSize, 1)

type Tensor struct {
	Shape ort.Shape
	Data  []float32
}

type PredictionResult struct {
	Filename      string             `json:"filename"`
	Expression    string             `json:"expression"`
	Accuracy      float64            `json:"accuracy"`
	Probabilities map[string]float64 `json:"probabilities"`
}

type Model struct {
	session    *ort.AdvancedSession
	input      *ort.Tensor[float32]
	output     *ort.Tensor[float32]
	inputName  string
	outputName string
}
