package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/ppiankov/kubeprobe/internal/checker"
	"github.com/ppiankov/kubeprobe/internal/discovery"
	"github.com/ppiankov/kubeprobe/internal/metrics"
	"github.com/ppiankov/kubeprobe/internal/probe"
	"github.com/ppiankov/kubeprobe/internal/scheduler"
	"github.com/ppiankov/kubeprobe/internal/server"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"k8s.io/client-go/kubernetes"
)

const (
	defaultClusterDomain         = discovery.DefaultClusterDomain
	defaultProbeTimeout          = probe.DefaultTimeout
	defaultMaxInFlight           = checker.DefaultMaxInFlight
	defaultMaxConcurrentServices = scheduler.DefaultMaxConcurrentServices
	defaultInterval              = scheduler.DefaultInterval
	defaultMetricsAddress        = server.DefaultAddress

	// Unitless durations are read as nanoseconds, so "300" or "3" land far
	// below these floors and are rejected.
	minProbeTimeout = time.Millisecond
	minInterval     = time.Second
)

// settings is the validated view of flags, environment and config file.
type settings struct {
	Kubeconfig    string
	Namespace     string
	Selector      string
	ClusterDomain string

	ProbeTimeout          time.Duration
	MaxInFlight           int64
	MaxConcurrentServices int

	Interval       time.Duration
	MetricsAddress string
	MetricsMode    metrics.Mode
	EnableTrigger  bool
	MaxCycles      int
}

// loadSettings reads and validates settings. Keys that a command did not
// register fall back to their defaults.
func loadSettings(v *viper.Viper) (*settings, error) {
	s := &settings{
		Kubeconfig:            v.GetString("kubeconfig"),
		Namespace:             v.GetString("namespace"),
		Selector:              v.GetString("selector"),
		ClusterDomain:         stringOr(v, "cluster-domain", defaultClusterDomain),
		ProbeTimeout:          durationOr(v, "probe-timeout", defaultProbeTimeout),
		MaxInFlight:           defaultMaxInFlight,
		MaxConcurrentServices: defaultMaxConcurrentServices,
		Interval:              durationOr(v, "interval", defaultInterval),
		MetricsAddress:        stringOr(v, "metrics-address", defaultMetricsAddress),
		EnableTrigger:         v.GetBool("enable-trigger"),
		MaxCycles:             v.GetInt("max-cycles"),
	}

	if v.IsSet("max-inflight") {
		s.MaxInFlight = v.GetInt64("max-inflight")
	}
	if v.IsSet("max-concurrent-services") {
		s.MaxConcurrentServices = v.GetInt("max-concurrent-services")
	}

	mode, err := metrics.ParseMode(v.GetString("metrics-mode"))
	if err != nil {
		return nil, err
	}
	s.MetricsMode = mode

	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *settings) validate() error {
	switch {
	case s.ProbeTimeout < minProbeTimeout:
		return fmt.Errorf("probe-timeout must be at least %s, got %s (durations need a unit, e.g. 3s)", minProbeTimeout, s.ProbeTimeout)
	case s.Interval < minInterval:
		return fmt.Errorf("interval must be at least %s, got %s (durations need a unit, e.g. 300s)", minInterval, s.Interval)
	case s.MaxInFlight <= 0:
		return fmt.Errorf("max-inflight must be positive, got %d", s.MaxInFlight)
	case s.MaxConcurrentServices <= 0:
		return fmt.Errorf("max-concurrent-services must be positive, got %d", s.MaxConcurrentServices)
	case s.MaxCycles < 0:
		return fmt.Errorf("max-cycles must not be negative, got %d", s.MaxCycles)
	case s.ClusterDomain == "":
		return fmt.Errorf("cluster-domain must not be empty")
	}
	return nil
}

// newScheduler wires enumerator, prober, checker and scheduler together.
func newScheduler(client kubernetes.Interface, recorder metrics.Recorder, observer metrics.CycleObserver, s *settings, log logrus.FieldLogger) *scheduler.Scheduler {
	enumerator := discovery.NewKubeEnumerator(client, s.Namespace, s.Selector, log)
	c := checker.New(probe.NewTCPProber(s.ProbeTimeout), recorder, checker.Config{
		ClusterDomain: s.ClusterDomain,
		MaxInFlight:   s.MaxInFlight,
	}, log)

	return scheduler.New(enumerator, c, observer, scheduler.Config{
		Interval:              s.Interval,
		MaxIterations:         s.MaxCycles,
		MaxConcurrentServices: s.MaxConcurrentServices,
	}, log)
}

func stringOr(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func durationOr(v *viper.Viper, key string, def time.Duration) time.Duration {
	if v.IsSet(key) {
		return v.GetDuration(key)
	}
	return def
}

// interrupted reports a nil error when ctx was cancelled by a signal, so a
// shutdown request exits cleanly instead of surfacing context.Canceled.
func interrupted(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
