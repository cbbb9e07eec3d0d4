package metrics

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

const namespace = "kubeprobe"

// Mode selects how check outcomes are stored.
type Mode string

const (
	// ModeState keeps a 0/1 gauge with the latest observed state
	ModeState Mode = "state"

	// ModeCounter keeps increment-only successful/failed counters
	ModeCounter Mode = "counter"
)

// ParseMode validates a mode string. Empty means ModeState.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeState:
		return ModeState, nil
	case ModeCounter:
		return ModeCounter, nil
	default:
		return "", fmt.Errorf("invalid metrics mode %q (must be %s or %s)", s, ModeState, ModeCounter)
	}
}

// PrometheusRecorder implements Recorder and CycleObserver on a private registry.
type PrometheusRecorder struct {
	mode     Mode
	registry *prometheus.Registry

	reachable *prometheus.GaugeVec
	succeeded *prometheus.CounterVec
	failed    *prometheus.CounterVec

	cycleDuration   prometheus.Gauge
	cycleServices   prometheus.Gauge
	cycleErrors     prometheus.Counter
	lastSuccessTime prometheus.Gauge
}

// NewPrometheusRecorder creates a recorder and registers its collectors.
func NewPrometheusRecorder(mode Mode) (*PrometheusRecorder, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	if mode == "" {
		mode = ModeState
	}

	r := &PrometheusRecorder{
		mode:     mode,
		registry: prometheus.NewRegistry(),
		cycleDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of the most recent polling cycle",
		}),
		cycleServices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cycle_services",
			Help:      "Number of services checked in the most recent polling cycle",
		}),
		cycleErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycle_errors_total",
			Help:      "Polling cycles abandoned because services could not be listed",
		}),
		lastSuccessTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_successful_cycle_timestamp_seconds",
			Help:      "Unix time at which the last complete polling cycle finished",
		}),
	}

	collectors := []prometheus.Collector{r.cycleDuration, r.cycleServices, r.cycleErrors, r.lastSuccessTime}

	switch mode {
	case ModeState:
		r.reachable = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "service_reachable",
			Help:      "Whether the service port accepted a TCP connection on the last check (1) or not (0)",
		}, targetLabels)
		collectors = append(collectors, r.reachable)
	case ModeCounter:
		r.succeeded = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "service_checks_successful_total",
			Help:      "Number of successful service port checks",
		}, targetLabels)
		r.failed = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "service_checks_failed_total",
			Help:      "Number of failed service port checks",
		}, targetLabels)
		collectors = append(collectors, r.succeeded, r.failed)
	}

	for _, c := range collectors {
		if err := r.registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}

	return r, nil
}

// Mode returns the recording policy.
func (r *PrometheusRecorder) Mode() Mode {
	return r.mode
}

// RecordSuccess implements Recorder
func (r *PrometheusRecorder) RecordSuccess(t Target) {
	if r.mode == ModeCounter {
		r.succeeded.WithLabelValues(t.labels()...).Inc()
		return
	}
	r.reachable.WithLabelValues(t.labels()...).Set(1)
}

// RecordFailure implements Recorder
func (r *PrometheusRecorder) RecordFailure(t Target) {
	if r.mode == ModeCounter {
		r.failed.WithLabelValues(t.labels()...).Inc()
		return
	}
	r.reachable.WithLabelValues(t.labels()...).Set(0)
}

// ObserveCycle implements CycleObserver
func (r *PrometheusRecorder) ObserveCycle(duration time.Duration, services int, err error) {
	if err != nil {
		r.cycleErrors.Inc()
		return
	}
	r.cycleDuration.Set(duration.Seconds())
	r.cycleServices.Set(float64(services))
	r.lastSuccessTime.SetToCurrentTime()
}

// Snapshot writes the current state in the Prometheus text exposition format.
func (r *PrometheusRecorder) Snapshot(w io.Writer) error {
	families, err := r.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// Handler serves the registry for scraping.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
