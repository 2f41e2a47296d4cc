package service

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var happyScores = []float32{0.02, 0.01, 0.03, 0.85, 0.05, 0.02, 0.02}

func newTestPipeline(t *testing.T, c Classifier) *Pipeline {
	t.Helper()
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	return &Pipeline{
		Classifier: c,
		UploadDir:  t.TempDir(),
		Allowed:    defaultAllowed,
		Metrics:    m,
	}
}

func TestProcessSuccess(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	fake := &fakeClassifier{scores: happyScores}
	p := newTestPipeline(t, fake)
	body := encodeJPEG(t, uniformRGBA(100, 100, color.RGBA{180, 140, 120, 255}))

	res, err := p.Process(context.Background(), "my smile.JPG", bytes.NewReader(body))
	require.NoError(t, err)

	assert.Equal(t, "my_smile.JPG", res.Filename)
	assert.Equal(t, "happy", res.Expression)
	assert.Greater(t, res.Accuracy, 0.0)
	assert.LessOrEqual(t, res.Accuracy, 100.0)
	assert.Len(t, res.Probabilities, len(Labels))

	require.Equal(t, 1, fake.calls)
	requireModelInput(t, fake.last)
	requireEmptyDir(t, p.UploadDir)

	assert.Equal(t, 1.0, testutil.ToFloat64(p.Metrics.Requests.WithLabelValues(StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.Metrics.Predictions.WithLabelValues("happy")))
	assert.Equal(t, 1, testutil.CollectAndCount(p.Metrics.InferenceDuration))
}

func TestProcessGrayscalePNG(t *testing.T) {
	fake := &fakeClassifier{scores: happyScores}
	p := newTestPipeline(t, fake)

	res, err := p.Process(context.Background(), "black.png", bytes.NewReader(encodePNG(t, uniformGray(48, 48, 0))))
	require.NoError(t, err)
	assert.Equal(t, "happy", res.Expression)
	for _, v := range fake.last.Data {
		assert.Zero(t, v)
	}
	requireEmptyDir(t, p.UploadDir)
}

func TestProcessRejectsExtension(t *testing.T) {
	png := encodePNG(t, uniformGray(10, 10, 90))
	for _, name := range []string{"face", "face.gif", "face.txt", ""} {
		t.Run(name, func(t *testing.T) {
			fake := &fakeClassifier{scores: happyScores}
			p := newTestPipeline(t, fake)

			_, err := p.Process(context.Background(), name, bytes.NewReader(png))
			require.Error(t, err)
			assert.True(t, IsClientError(err))
			assert.ErrorIs(t, err, ErrInvalidExtension)
			assert.Zero(t, fake.calls)
			requireEmptyDir(t, p.UploadDir)
			assert.Equal(t, 1.0, testutil.ToFloat64(p.Metrics.Requests.WithLabelValues(StatusClientError)))
		})
	}
}

func TestProcessRejectsNonImage(t *testing.T) {
	fake := &fakeClassifier{scores: happyScores}
	p := newTestPipeline(t, fake)

	_, err := p.Process(context.Background(), "notes.png", bytes.NewReader([]byte("just some text, not pixels")))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidImage)
	assert.Zero(t, fake.calls)
	requireEmptyDir(t, p.UploadDir)
}

func TestProcessInferenceFailure(t *testing.T) {
	fake := &fakeClassifier{err: errors.New("shape mismatch")}
	p := newTestPipeline(t, fake)

	_, err := p.Process(context.Background(), "face.png", bytes.NewReader(encodePNG(t, uniformGray(20, 20, 50))))
	require.Error(t, err)
	assert.False(t, IsClientError(err))
	assert.Contains(t, err.Error(), "shape mismatch")
	requireEmptyDir(t, p.UploadDir)
	assert.Equal(t, 1.0, testutil.ToFloat64(p.Metrics.Requests.WithLabelValues(StatusServerError)))
}

func TestProcessRecoversFromPanic(t *testing.T) {
	p := newTestPipeline(t, &fakeClassifier{panicWith: "runtime exploded"})

	_, err := p.Process(context.Background(), "face.png", bytes.NewReader(encodePNG(t, uniformGray(20, 20, 50))))
	require.Error(t, err)
	assert.False(t, IsClientError(err))
	assert.Contains(t, err.Error(), "runtime exploded")
	requireEmptyDir(t, p.UploadDir)
}

func TestProcessWrongScoreCount(t *testing.T) {
	p := newTestPipeline(t, &fakeClassifier{scores: []float32{1, 0}})

	_, err := p.Process(context.Background(), "face.png", bytes.NewReader(encodePNG(t, uniformGray(20, 20, 50))))
	require.Error(t, err)
	var pe *ProcessingError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "format", pe.Stage)
	requireEmptyDir(t, p.UploadDir)
}

func TestProcessAppliesSoftmaxToLogits(t *testing.T) {
	p := newTestPipeline(t, &fakeClassifier{scores: []float32{-2, -1, 0, 1, 2, 3, 8}})
	p.Logits = true

	res, err := p.Process(context.Background(), "face.webp.png", bytes.NewReader(encodePNG(t, uniformGray(20, 20, 50))))
	require.NoError(t, err)
	assert.Equal(t, "surprise", res.Expression)

	var sum float64
	for _, v := range res.Probabilities {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 0.01)
}

func TestProcessCancelledContext(t *testing.T) {
	fake := &fakeClassifier{scores: happyScores}
	p := newTestPipeline(t, fake)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Process(ctx, "face.png", bytes.NewReader(encodePNG(t, uniformGray(20, 20, 50))))
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, fake.calls)
	requireEmptyDir(t, p.UploadDir)
}

func TestProcessWithoutMetrics(t *testing.T) {
	p := &Pipeline{
		Classifier: &fakeClassifier{scores: happyScores},
		UploadDir:  t.TempDir(),
		Allowed:    defaultAllowed,
	}
	_, err := p.Process(context.Background(), "face.png", bytes.NewReader(encodePNG(t, uniformGray(20, 20, 50))))
	require.NoError(t, err)
}
