// Package checker probes each declared port of a Service by cluster DNS name
// and by cluster IP, and forwards the outcomes to a metrics recorder.
package checker

import (
	"context"
	"sync"

	"github.com/ppiankov/kubeprobe/internal/discovery"
	"github.com/ppiankov/kubeprobe/internal/metrics"
	"github.com/ppiankov/kubeprobe/internal/probe"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// DefaultMaxInFlight bounds concurrent probes across all services.
const DefaultMaxInFlight = 256

// Config holds checker configuration
type Config struct {
	ClusterDomain string
	MaxInFlight   int64
}

// Checker runs probe pairs for every port of a service.
type Checker struct {
	prober   probe.Prober
	recorder metrics.Recorder
	config   Config
	inflight *semaphore.Weighted
	log      logrus.FieldLogger
}

// New creates a Checker. The semaphore is shared by every CheckService call.
func New(prober probe.Prober, recorder metrics.Recorder, config Config, log logrus.FieldLogger) *Checker {
	if config.ClusterDomain == "" {
		config.ClusterDomain = discovery.DefaultClusterDomain
	}
	if config.MaxInFlight <= 0 {
		config.MaxInFlight = DefaultMaxInFlight
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Checker{
		prober:   prober,
		recorder: recorder,
		config:   config,
		inflight: semaphore.NewWeighted(config.MaxInFlight),
		log:      log,
	}
}

// CheckService probes every declared port of svc. It never returns an error:
// unreachable endpoints are reported as failed checks.
func (c *Checker) CheckService(ctx context.Context, svc discovery.ServiceDescriptor) ServiceReport {
	report := ServiceReport{
		Service:   svc.Name,
		Namespace: svc.Namespace,
		Hostname:  svc.Hostname(c.config.ClusterDomain),
		ClusterIP: svc.ClusterIP,
		Ports:     make([]PortResult, len(svc.Ports)),
	}

	log := c.log.WithFields(logrus.Fields{
		"service":   svc.Name,
		"namespace": svc.Namespace,
	})

	if len(svc.Ports) == 0 {
		log.Warn("No ports defined for service")
		return report
	}
	if !svc.HasClusterIP() {
		log.Warn("Service has no cluster IP, skipping IP checks")
	}

	var wg sync.WaitGroup
	for i, port := range svc.Ports {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report.Ports[i] = c.checkPort(ctx, svc, report.Hostname, port)
		}()
	}
	wg.Wait()

	log.WithField("ports", report.Ports).Debug("Check results")
	return report
}

// checkPort runs the hostname and IP probes for one port concurrently and
// records both outcomes once they are known.
func (c *Checker) checkPort(ctx context.Context, svc discovery.ServiceDescriptor, hostname string, port int32) PortResult {
	result := PortResult{Port: port, IPSkipped: !svc.HasClusterIP()}

	var (
		wg         sync.WaitGroup
		hostnameOK bool
		ipOK       bool
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		hostnameOK = c.probe(ctx, hostname, port)
	}()

	if !result.IPSkipped {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ipOK = c.probe(ctx, svc.ClusterIP, port)
		}()
	}

	wg.Wait()
	result.Hostname = hostnameOK
	result.IP = ipOK

	// Probes aborted by shutdown say nothing about the endpoint.
	if ctx.Err() != nil {
		return result
	}

	target := metrics.Target{Service: svc.Name, Namespace: svc.Namespace, Port: port}

	target.AddressType = metrics.AddressHostname
	metrics.Record(c.recorder, target, result.Hostname)

	if !result.IPSkipped {
		target.AddressType = metrics.AddressIP
		metrics.Record(c.recorder, target, result.IP)
	}

	return result
}

// probe runs one probe under the in-flight limit.
func (c *Checker) probe(ctx context.Context, host string, port int32) bool {
	if err := c.inflight.Acquire(ctx, 1); err != nil {
		return false
	}
	defer c.inflight.Release(1)

	return c.prober.Probe(ctx, host, port)
}
