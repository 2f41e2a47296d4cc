package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// Pipeline runs one upload through validation, decoding, preprocessing,
// inference and formatting. It is safe for concurrent use as long as the
// Classifier is.
type Pipeline struct {
	Classifier Classifier
	UploadDir  string
	Allowed    []string
	// MaxPixels caps width*height of a decoded upload. Zero means DefaultMaxPixels.
	MaxPixels int64
	// Logits makes the pipeline apply softmax to the classifier output.
	Logits  bool
	Metrics *Metrics
}

func (p *Pipeline) Process(ctx context.Context, filename string, r io.Reader) (res *PredictionResult, err error) {
	defer func() { p.Metrics.ObserveRequest(err) }()

	if !AllowedFile(filename, p.Allowed) {
		return nil, clientError(ErrInvalidExtension,
			"invalid file format, allowed: "+strings.Join(p.Allowed, ", "), nil)
	}

	upload, err := SaveUpload(p.UploadDir, filename, r)
	if err != nil {
		return nil, processingError("save upload", err)
	}
	defer func() {
		if rerr := upload.Remove(); rerr != nil {
			slog.Error("Failed to remove upload", slog.String("path", upload.Path), slog.String("error", rerr.Error()))
		}
	}()
	slog.Debug("Upload saved", slog.String("path", upload.Path), slog.Int64("size", upload.Size))

	if err := ctx.Err(); err != nil {
		return nil, processingError("request", err)
	}

	return p.run(upload)
}

// run decodes and classifies a saved upload. A panic in a decoder or the
// model runtime becomes a processing error for the stage it happened in.
func (p *Pipeline) run(upload *TempUpload) (res *PredictionResult, err error) {
	stage := "decode"
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, processingError(stage, fmt.Errorf("panic: %v", r))
		}
	}()

	img, format, err := DecodeFile(upload.Path, p.MaxPixels)
	if err != nil {
		return nil, err
	}
	slog.Debug("Image decoded", slog.String("format", format),
		slog.Int("width", img.Bounds().Dx()), slog.Int("height", img.Bounds().Dy()))

	stage = "preprocess"
	tensor, err := Preprocess(img)
	if err != nil {
		return nil, processingError("preprocess", err)
	}

	stage = "inference"
	start := time.Now()
	scores, err := p.Classifier.Classify(tensor)
	if err != nil {
		return nil, processingError("inference", err)
	}
	p.Metrics.observeInference(time.Since(start))

	if p.Logits {
		scores = Softmax(scores)
	}
	res, err = FormatResult(upload.Filename, scores)
	if err != nil {
		return nil, processingError("format", err)
	}
	p.Metrics.observePrediction(res.Expression)
	return res, nil
}
