// Package scheduler drives service checks across the cluster on a fixed interval.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ppiankov/kubeprobe/internal/checker"
	"github.com/ppiankov/kubeprobe/internal/discovery"
	"github.com/ppiankov/kubeprobe/internal/metrics"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultInterval              = 300 * time.Second
	DefaultMaxConcurrentServices = 64
)

// Config holds scheduler configuration.
type Config struct {
	Interval              time.Duration
	MaxIterations         int // 0 runs until the context is cancelled
	MaxConcurrentServices int
}

// ServiceChecker checks a single service.
type ServiceChecker interface {
	CheckService(ctx context.Context, svc discovery.ServiceDescriptor) checker.ServiceReport
}

// Scheduler runs polling cycles. Cycles never overlap, including cycles
// started through RunCycle from outside the loop.
type Scheduler struct {
	enumerator discovery.Enumerator
	checker    ServiceChecker
	observer   metrics.CycleObserver
	config     Config
	log        logrus.FieldLogger

	mu     sync.Mutex
	cycles int
	last   *checker.CycleReport
}

// New creates a scheduler. observer may be nil.
func New(enumerator discovery.Enumerator, sc ServiceChecker, observer metrics.CycleObserver, config Config, log logrus.FieldLogger) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.MaxConcurrentServices <= 0 {
		config.MaxConcurrentServices = DefaultMaxConcurrentServices
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scheduler{
		enumerator: enumerator,
		checker:    sc,
		observer:   observer,
		config:     config,
		log:        log,
	}
}

// Run executes polling cycles until ctx is cancelled or MaxIterations is
// reached. A failed cycle is logged and the loop carries on after the usual
// interval. Run returns nil on cancellation.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.WithFields(logrus.Fields{
		"interval":                s.config.Interval.String(),
		"max_concurrent_services": s.config.MaxConcurrentServices,
	}).Info("Starting service checks")

	for iteration := 1; ; iteration++ {
		_, err := s.RunCycle(ctx)
		if ctx.Err() != nil {
			s.log.Info("Stopping service checks")
			return nil
		}
		if err != nil {
			s.log.WithError(err).WithField("iteration", iteration).Error("Polling cycle failed")
		}

		if s.config.MaxIterations > 0 && iteration >= s.config.MaxIterations {
			return nil
		}

		// Sleep after the cycle rather than on a ticker, so a slow cycle
		// delays the next one instead of stacking up.
		timer := time.NewTimer(s.config.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("Stopping service checks")
			return nil
		case <-timer.C:
		}
	}
}

// RunCycle enumerates services and checks all of them concurrently.
// It returns an error only when enumeration fails or ctx is cancelled.
func (s *Scheduler) RunCycle(ctx context.Context) (*checker.CycleReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cycles++
	log := s.log.WithField("cycle", s.cycles)
	start := time.Now()

	services, err := s.enumerator.ListServices(ctx)
	if err != nil {
		s.observe(time.Since(start), 0, err)
		return nil, fmt.Errorf("cycle %d: %w", s.cycles, err)
	}

	report := &checker.CycleReport{
		StartedAt: start,
		Services:  make([]checker.ServiceReport, len(services)),
	}

	var g errgroup.Group
	g.SetLimit(s.config.MaxConcurrentServices)
	for i, svc := range services {
		g.Go(func() error {
			report.Services[i] = s.checker.CheckService(ctx, svc)
			return nil
		})
	}
	_ = g.Wait()
	report.Duration = time.Since(start)

	if err := ctx.Err(); err != nil {
		return report, err
	}

	s.observe(report.Duration, len(services), nil)
	s.logReport(log, report)
	s.last = report

	return report, nil
}

// Last returns the most recent completed cycle, or nil.
func (s *Scheduler) Last() *checker.CycleReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Scheduler) observe(d time.Duration, services int, err error) {
	if s.observer != nil {
		s.observer.ObserveCycle(d, services, err)
	}
}

func (s *Scheduler) logReport(log logrus.FieldLogger, report *checker.CycleReport) {
	for _, svc := range report.Services {
		entry := log.WithFields(logrus.Fields{
			"service":   svc.Service,
			"namespace": svc.Namespace,
			"hostname":  svc.Hostname,
			"ip":        svc.ClusterIP,
			"ports":     svc.Ports,
		})
		if svc.Healthy() {
			entry.Info("Service check results")
		} else {
			entry.Warn("Service check results")
		}
	}

	summary := report.Summary()
	log.WithFields(logrus.Fields{
		"services":           summary.Services,
		"unhealthy_services": summary.UnhealthyServices,
		"ports":              summary.Ports,
		"hostname_failures":  summary.HostnameFailures,
		"ip_failures":        summary.IPFailures,
		"duration":           report.Duration.Round(time.Millisecond).String(),
	}).Info("Polling cycle complete")
}
