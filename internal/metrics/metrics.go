// Package metrics holds the Prometheus collectors exported by the pipeline
// service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dealpipeline"

// Outcome labels for TransitionsTotal.
const (
	OutcomeCommitted = "committed"
	OutcomeRejected  = "rejected"
	OutcomeConflict  = "conflict"
	OutcomeError     = "error"
)

// PipelineMetrics groups the collectors used by the transition engine, the
// WIP tracker and the hook dispatcher. A nil *PipelineMetrics is valid and
// records nothing.
type PipelineMetrics struct {
	registry *prometheus.Registry

	TransitionsTotal   *prometheus.CounterVec   // by from, to, outcome
	TransitionDuration prometheus.Histogram     // engine latency
	HookFailures       *prometheus.CounterVec   // by hook
	StageOccupancy     *prometheus.GaugeVec     // by stage
	DaysInStage        *prometheus.HistogramVec // days spent in the stage being left
}

// New creates the collectors on a private registry that also carries the Go
// runtime and process collectors.
func New() *PipelineMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &PipelineMetrics{
		registry: reg,
		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Stage transitions attempted, by source, destination and outcome",
		}, []string{"from", "to", "outcome"}),

		TransitionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transition_duration_seconds",
			Help:      "Time spent executing a stage transition",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),

		HookFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hook_failures_total",
			Help:      "Automation hooks that returned an error or panicked",
		}, []string{"hook"}),

		StageOccupancy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_occupancy",
			Help:      "Deals currently in each stage",
		}, []string{"stage"}),

		DaysInStage: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "days_in_stage",
			Help:      "Days a deal spent in a stage before leaving it",
			Buckets:   []float64{1, 3, 7, 14, 30, 60, 90, 180},
		}, []string{"stage"}),
	}

	reg.MustRegister(
		m.TransitionsTotal,
		m.TransitionDuration,
		m.HookFailures,
		m.StageOccupancy,
		m.DaysInStage,
	)
	return m
}

func (m *PipelineMetrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) ObserveTransition(from, to, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(from, to, outcome).Inc()
	m.TransitionDuration.Observe(seconds)
}

func (m *PipelineMetrics) HookFailed(hook string) {
	if m == nil {
		return
	}
	m.HookFailures.WithLabelValues(hook).Inc()
}

func (m *PipelineMetrics) SetOccupancy(stage string, count int) {
	if m == nil {
		return
	}
	m.StageOccupancy.WithLabelValues(stage).Set(float64(count))
}

func (m *PipelineMetrics) ObserveDaysInStage(stage string, days int) {
	if m == nil {
		return
	}
	m.DaysInStage.WithLabelValues(stage).Observe(float64(days))
}
