package service

import (
	"fmt"
	"slices"
	"sync"
)

// Classifier maps a preprocessed tensor to one score per label.
type Classifier interface {
	Classify(t *Tensor) ([]float32, error)
	Close() error
}

// ONNXClassifier hands each call one of a fixed set of sessions. A session
// owns its input and output tensors, so it serves one call at a time.
type ONNXClassifier struct {
	pool      chan *Model
	models    []*Model
	closeOnce sync.Once
}

func (c *ONNXClassifier) Classify(t *Tensor) ([]float32, error) {
	if t == nil || !slices.Equal(t.Shape, InputShape) || int64(len(t.Data)) != InputShape.FlattenedSize() {
		return nil, fmt.Errorf("input tensor does not match model shape %v", InputShape)
	}
	if c.pool == nil {
		return nil, fmt.Errorf("model not initialized")
	}

	m := <-c.pool
	defer func() { c.pool <- m }()

	copy(m.input.GetData(), t.Data)
	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("session %s->%s run failed: %w", m.inputName, m.outputName, err)
	}

	scores := m.output.GetData()
	out := make([]float32, len(scores))
	copy(out, scores)
	return out, nil
}

// Close destroys every session. It must not race with Classify.
func (c *ONNXClassifier) Close() error {
	c.closeOnce.Do(func() {
		for _, m := range c.models {
			m.destroy()
		}
	})
	return nil
}

func (m *Model) destroy() {
	if m.session != nil {
		m.session.Destroy()
	}
	if m.input != nil {
		m.input.Destroy()
	}
	if m.output != nil {
		m.output.Destroy()
	}
}
