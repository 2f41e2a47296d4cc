package service

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	StatusOK          = "ok"
	StatusClientError = "client_error"
	StatusServerError = "server_error"
)

type Metrics struct {
	Requests          *prometheus.CounterVec
	Predictions       *prometheus.CounterVec
	InferenceDuration prometheus.Histogram
}

// NewMetrics creates the pipeline collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fer_requests_total",
				Help: "Upload requests partitioned by outcome.",
			},
			[]string{"status"},
		),
		Predictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fer_predictions_total",
				Help: "Successful predictions partitioned by expression.",
			},
			[]string{"expression"},
		),
		InferenceDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fer_inference_duration_seconds",
				Help:    "Time spent in the model forward pass.",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 10), // 1ms to ~0.5s
			},
		),
	}
	for _, c := range []prometheus.Collector{m.Requests, m.Predictions, m.InferenceDuration} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) ObserveRequest(err error) {
	if m == nil {
		return
	}
	switch {
	case err == nil:
		m.Requests.WithLabelValues(StatusOK).Inc()
	case IsClientError(err):
		m.Requests.WithLabelValues(StatusClientError).Inc()
	default:
		m.Requests.WithLabelValues(StatusServerError).Inc()
	}
}

func (m *Metrics) observePrediction(expression string) {
	if m == nil {
		return
	}
	m.Predictions.WithLabelValues(expression).Inc()
}

func (m *Metrics) observeInference(d time.Duration) {
	if m == nil {
		return
	}
	m.InferenceDuration.Observe(d.Seconds())
}
