package metrics

import (
	"strconv"
	"time"
)

// AddressType distinguishes the two ways a service endpoint is reached.
type AddressType string

const (
	AddressHostname AddressType = "hostname"
	AddressIP       AddressType = "ip"
)

// Target identifies one checked endpoint.
type Target struct {
	Service     string
	Namespace   string
	Port        int32
	AddressType AddressType
}

// labels returns label values in the order of targetLabels.
func (t Target) labels() []string {
	return []string{t.Service, t.Namespace, strconv.Itoa(int(t.Port)), string(t.AddressType)}
}

var targetLabels = []string{"service", "namespace", "port", "address_type"}

// Recorder receives check outcomes. Implementations must be safe for
// concurrent use and must not fail.
type Recorder interface {
	// RecordSuccess marks the target as reachable
	RecordSuccess(t Target)

	// RecordFailure marks the target as unreachable
	RecordFailure(t Target)
}

// CycleObserver receives one call per polling cycle.
type CycleObserver interface {
	// ObserveCycle records how long a cycle took and how many services it covered.
	// A non-nil err means the cycle was abandoned.
	ObserveCycle(duration time.Duration, services int, err error)
}

// Record dispatches to RecordSuccess or RecordFailure.
func Record(r Recorder, t Target, ok bool) {
	if ok {
		r.RecordSuccess(t)
	} else {
		r.RecordFailure(t)
	}
}
