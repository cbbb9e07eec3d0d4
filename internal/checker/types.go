package checker

import "time"

// PortResult holds the two probe outcomes for one declared port.
type PortResult struct {
	Port      int32 `json:"port" yaml:"port"`
	Hostname  bool  `json:"hostname_check" yaml:"hostname_check"`
	IP        bool  `json:"ip_check" yaml:"ip_check"`
	IPSkipped bool  `json:"ip_skipped,omitempty" yaml:"ip_skipped,omitempty"` // service has no cluster IP
}

// Healthy reports whether every probe that ran succeeded.
func (p PortResult) Healthy() bool {
	return p.Hostname && (p.IP || p.IPSkipped)
}

// ServiceReport is the outcome of checking one service.
type ServiceReport struct {
	Service   string       `json:"service" yaml:"service"`
	Namespace string       `json:"namespace" yaml:"namespace"`
	Hostname  string       `json:"hostname" yaml:"hostname"`
	ClusterIP string       `json:"ip_address,omitempty" yaml:"ip_address,omitempty"`
	Ports     []PortResult `json:"ports" yaml:"ports"`
}

// Healthy reports whether all ports passed. A service with no ports is healthy.
func (r ServiceReport) Healthy() bool {
	for _, p := range r.Ports {
		if !p.Healthy() {
			return false
		}
	}
	return true
}

// CycleReport aggregates one polling cycle.
type CycleReport struct {
	StartedAt time.Time       `json:"started_at" yaml:"started_at"`
	Duration  time.Duration   `json:"duration" yaml:"duration"`
	Services  []ServiceReport `json:"services" yaml:"services"`
}

// CycleSummary holds totals for a cycle.
type CycleSummary struct {
	Services          int `json:"services" yaml:"services"`
	UnhealthyServices int `json:"unhealthy_services" yaml:"unhealthy_services"`
	Ports             int `json:"ports" yaml:"ports"`
	HostnameFailures  int `json:"hostname_failures" yaml:"hostname_failures"`
	IPFailures        int `json:"ip_failures" yaml:"ip_failures"`
	IPSkipped         int `json:"ip_skipped" yaml:"ip_skipped"`
}

// Failures returns the number of failed probes.
func (s CycleSummary) Failures() int {
	return s.HostnameFailures + s.IPFailures
}

// Summary computes totals over all services.
func (c *CycleReport) Summary() CycleSummary {
	var s CycleSummary
	s.Services = len(c.Services)
	for _, svc := range c.Services {
		if !svc.Healthy() {
			s.UnhealthyServices++
		}
		for _, p := range svc.Ports {
			s.Ports++
			if !p.Hostname {
				s.HostnameFailures++
			}
			switch {
			case p.IPSkipped:
				s.IPSkipped++
			case !p.IP:
				s.IPFailures++
			}
		}
	}
	return s
}
