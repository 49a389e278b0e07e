package infrastructure

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "dtpanel"

// Metrics collects pipeline counters in a private registry. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	sourceRows     *prometheus.CounterVec
	sourcesMissing *prometheus.CounterVec
	rowsDropped    *prometheus.CounterVec
	mergeMatched   *prometheus.CounterVec
	derivedSkipped *prometheus.CounterVec
	modelFits      *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	panelRows      prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		sourceRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "source_rows_loaded_total",
			Help:      "Rows kept from each source after cleaning",
		}, []string{"source"}),

		sourcesMissing: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sources_missing_total",
			Help:      "Registry sources whose file was not found",
		}, []string{"source"}),

		rowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rows_dropped_total",
			Help:      "Rows discarded, by stage and reason",
		}, []string{"stage", "reason"}),

		mergeMatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "merge_matched_rows_total",
			Help:      "Panel rows that found a match in each joined source",
		}, []string{"source"}),

		derivedSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "derived_skipped_total",
			Help:      "Derived fields left missing, by field and reason",
		}, []string{"field", "reason"}),

		modelFits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "model_fits_total",
			Help:      "Regression model fits by outcome",
		}, []string{"model", "status"}),

		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of each pipeline stage",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"stage"}),

		panelRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "panel_rows",
			Help:      "Rows in the most recently written panel",
		}),
	}

	registry.MustRegister(
		m.sourceRows,
		m.sourcesMissing,
		m.rowsDropped,
		m.mergeMatched,
		m.derivedSkipped,
		m.modelFits,
		m.stageDuration,
		m.panelRows,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) SourceRows(source string, n int) {
	if m == nil {
		return
	}
	m.sourceRows.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) SourceMissing(source string) {
	if m == nil {
		return
	}
	m.sourcesMissing.WithLabelValues(source).Inc()
}

func (m *Metrics) RowsDropped(stage, reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.rowsDropped.WithLabelValues(stage, reason).Add(float64(n))
}

func (m *Metrics) MergeMatched(source string, n int) {
	if m == nil {
		return
	}
	m.mergeMatched.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) DerivedSkipped(field, reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.derivedSkipped.WithLabelValues(field, reason).Add(float64(n))
}

func (m *Metrics) ModelFit(model, status string) {
	if m == nil {
		return
	}
	m.modelFits.WithLabelValues(model, status).Inc()
}

func (m *Metrics) PanelRows(n int) {
	if m == nil {
		return
	}
	m.panelRows.Set(float64(n))
}

// ObserveStage records the time elapsed since start for stage.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// WriteTextfile writes the registry in the Prometheus text format, for
// collection by node_exporter's textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
