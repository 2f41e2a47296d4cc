package service

import (
	"fmt"
	"log/slog"

	ort "github.com/yalue/onnxruntime_go"
)

// LoadModel opens workers sessions of the ONNX model at path. The ONNX
// environment must already be initialised.
func LoadModel(path string, workers int) (*ONNXClassifier, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get model input/output info: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("model has %d inputs and %d outputs", len(inputs), len(outputs))
	}
	if err := checkInputShape(inputs[0].Dimensions); err != nil {
		return nil, err
	}
	outputShape, err := resolveOutputShape(outputs[0].Dimensions)
	if err != nil {
		return nil, err
	}
	slog.Info("Model signature",
		slog.String("input", inputs[0].Name),
		slog.String("input_shape", inputs[0].Dimensions.String()),
		slog.String("output", outputs[0].Name),
		slog.String("output_shape", outputs[0].Dimensions.String()),
	)

	c := &ONNXClassifier{pool: make(chan *Model, workers)}
	for range workers {
		m, err := newModel(path, inputs[0].Name, outputs[0].Name, outputShape)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.models = append(c.models, m)
		c.pool <- m
	}
	return c, nil
}

func newModel(path, inputName, outputName string, outputShape ort.Shape) (*Model, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer opts.Destroy()

	inputTensor, err := ort.NewTensor(InputShape.Clone(), make([]float32, InputShape.FlattenedSize()))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		path,
		[]string{inputName},
		[]string{outputName},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX Runtime session: %w", err)
	}

	return &Model{
		session:    session,
		input:      inputTensor,
		output:     outputTensor,
		inputName:  inputName,
		outputName: outputName,
	}, nil
}

// checkInputShape accepts dims equal to InputShape, with -1 for dynamic axes.
func checkInputShape(dims ort.Shape) error {
	if len(dims) != len(InputShape) {
		return fmt.Errorf("model expects %d-D input %v, want %v", len(dims), dims, InputShape)
	}
	for i, d := range dims {
		if d != -1 && d != InputShape[i] {
			return fmt.Errorf("model input shape %v is incompatible with %v", dims, InputShape)
		}
	}
	return nil
}

// resolveOutputShape pins a dynamic batch axis to 1 and checks the class axis.
func resolveOutputShape(dims ort.Shape) (ort.Shape, error) {
	if len(dims) == 0 {
		return nil, fmt.Errorf("model output has no dimensions")
	}
	shape := dims.Clone()
	for i, d := range shape {
		if d == -1 {
			shape[i] = 1
		}
	}
	if n := shape.FlattenedSize(); n != int64(len(Labels)) {
		return nil, fmt.Errorf("model output shape %v has %d scores, expected %d", dims, n, len(Labels))
	}
	return shape, nil
}
