// Package metrics exposes Prometheus collectors for the pipeline and the API.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "churn"

// Metrics owns a private registry so tests and multiple servers do not clash
// on the global one.
type Metrics struct {
	registry *prometheus.Registry

	predictions       *prometheus.CounterVec
	predictionErrors  *prometheus.CounterVec
	predictionLatency prometheus.Histogram
	cleanRows         *prometheus.CounterVec
	batchRows         *prometheus.CounterVec
	modelLoaded       *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Online predictions by risk segment.",
		}, []string{"segment"}),
		predictionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_errors_total",
			Help:      "Failed online predictions by reason.",
		}, []string{"reason"}),
		predictionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_duration_seconds",
			Help:      "Latency of online predictions.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		cleanRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clean_rows_total",
			Help:      "Rows seen by the cleaner by outcome.",
		}, []string{"outcome"}),
		batchRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_rows_total",
			Help:      "Rows handled by batch scoring by outcome.",
		}, []string{"outcome"}),
		modelLoaded: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_loaded_timestamp_seconds",
			Help:      "Unix time the serving model was installed, by version.",
		}, []string{"version"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.predictions,
		m.predictionErrors,
		m.predictionLatency,
		m.cleanRows,
		m.batchRows,
		m.modelLoaded,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Push replaces the job's metrics on a Pushgateway with the registry.
// Batch commands exit before any scrape, so they report this way.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}

func (m *Metrics) ObservePrediction(segment string, d time.Duration) {
	m.predictions.WithLabelValues(segment).Inc()
	m.predictionLatency.Observe(d.Seconds())
}

func (m *Metrics) PredictionFailed(reason string) {
	m.predictionErrors.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveClean(kept, dropped, rejected int) {
	m.cleanRows.WithLabelValues("kept").Add(float64(kept))
	m.cleanRows.WithLabelValues("dropped").Add(float64(dropped))
	m.cleanRows.WithLabelValues("rejected").Add(float64(rejected))
}

func (m *Metrics) ObserveBatch(scored, skipped int) {
	m.batchRows.WithLabelValues("scored").Add(float64(scored))
	m.batchRows.WithLabelValues("skipped").Add(float64(skipped))
}

// ModelLoaded replaces the previous version series.
func (m *Metrics) ModelLoaded(version string, at time.Time) {
	m.modelLoaded.Reset()
	m.modelLoaded.WithLabelValues(version).Set(float64(at.Unix()))
}
