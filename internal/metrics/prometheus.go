// Package metrics instruments the simulation core with Prometheus
// counters, histograms, and gauges covering the run loop, the
// allocation LP solve, and water-balance health.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every gauge/counter/histogram this package exposes.
type Metrics struct {
	registry *prometheus.Registry

	StepsTotal       *prometheus.CounterVec
	StepDuration     prometheus.Histogram
	RejectedSteps    prometheus.Counter
	CurrentTime      prometheus.Gauge

	AllocationSolvesTotal *prometheus.CounterVec
	AllocationDuration    *prometheus.HistogramVec
	AllocationShortage    *prometheus.GaugeVec

	WaterBalanceError prometheus.Gauge
	BasinStorage      *prometheus.GaugeVec

	RunInfo *prometheus.GaugeVec
}

var defaultMetrics *Metrics

// InitMetrics builds a fresh registry and registers every metric under
// it, so repeated calls (as in tests) never hit a duplicate-registration
// panic against the global default registerer.
func InitMetrics(namespace, subsystem string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,

		StepsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "steps_total",
				Help:      "Total number of integrator steps taken, by outcome",
			},
			[]string{"outcome"}, // accepted, rejected
		),

		StepDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "step_duration_seconds",
				Help:      "Wall-clock duration of a single integrator step",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
		),

		RejectedSteps: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "steps_rejected_total",
				Help:      "Total number of steps rejected by tolerance control",
			},
		),

		CurrentTime: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "current_time_seconds",
				Help:      "Simulation time reached by the most recent accepted step",
			},
		),

		AllocationSolvesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "allocation_solves_total",
				Help:      "Total number of allocation LP solves, by outcome",
			},
			[]string{"status"}, // optimal, infeasible, timeout
		),

		AllocationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "allocation_solve_duration_seconds",
				Help:      "Duration of one subnetwork's allocation solve",
				Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
			},
			[]string{"subnetwork"},
		),

		AllocationShortage: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "allocation_shortage_m3s",
				Help:      "Unmet demand at the last allocation solve",
			},
			[]string{"subnetwork", "priority"},
		),

		WaterBalanceError: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "water_balance_error",
				Help:      "Relative water balance error over the last output interval",
			},
		),

		BasinStorage: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "basin_storage_m3",
				Help:      "Current storage volume per basin node",
			},
			[]string{"node_id"},
		),

		RunInfo: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "run_info",
				Help:      "Static run metadata, value is always 1",
			},
			[]string{"run_id", "input_path"},
		),
	}

	defaultMetrics = m
	return m
}

// Get returns the process-wide metrics, lazily initializing with
// defaults if nothing has called InitMetrics yet.
func Get() *Metrics {
	if defaultMetrics == nil {
		return InitMetrics("ribasim", "")
	}
	return defaultMetrics
}

// RecordStep records one integrator step's outcome and duration.
func (m *Metrics) RecordStep(accepted bool, duration time.Duration, simTime float64) {
	outcome := "accepted"
	if !accepted {
		outcome = "rejected"
		m.RejectedSteps.Inc()
	} else {
		m.CurrentTime.Set(simTime)
	}
	m.StepsTotal.WithLabelValues(outcome).Inc()
	m.StepDuration.Observe(duration.Seconds())
}

// RecordAllocationSolve records one subnetwork's LP solve outcome.
func (m *Metrics) RecordAllocationSolve(subnetwork string, status string, duration time.Duration) {
	m.AllocationSolvesTotal.WithLabelValues(status).Inc()
	m.AllocationDuration.WithLabelValues(subnetwork).Observe(duration.Seconds())
}

// RecordShortage records the unmet demand for one priority tier.
func (m *Metrics) RecordShortage(subnetwork string, priority int, shortage float64) {
	m.AllocationShortage.WithLabelValues(subnetwork, strconv.Itoa(priority)).Set(shortage)
}

// RecordWaterBalanceError records the relative water balance error.
func (m *Metrics) RecordWaterBalanceError(relError float64) {
	m.WaterBalanceError.Set(relError)
}

// RecordBasinStorage records the current storage for one basin node.
func (m *Metrics) RecordBasinStorage(nodeID int64, storage float64) {
	m.BasinStorage.WithLabelValues(strconv.FormatInt(nodeID, 10)).Set(storage)
}

// SetRunInfo publishes static metadata about the current run.
func (m *Metrics) SetRunInfo(runID, inputPath string) {
	m.RunInfo.WithLabelValues(runID, inputPath).Set(1)
}

// Handler returns the HTTP handler serving this Metrics' registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer runs a blocking HTTP server exposing /metrics on port.
func (m *Metrics) StartServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return server.ListenAndServe()
}
