package metrics

import (
	"sync"
	"time"
)

// MockRecorder is an in-memory Recorder and CycleObserver for testing
type MockRecorder struct {
	mu sync.Mutex

	// Latest state per target
	State map[Target]bool

	// Call tracking
	Successes map[Target]int
	Failures  map[Target]int
	Cycles    int
	CycleErrs []error
}

// NewMockRecorder creates an empty mock recorder
func NewMockRecorder() *MockRecorder {
	return &MockRecorder{
		State:     make(map[Target]bool),
		Successes: make(map[Target]int),
		Failures:  make(map[Target]int),
	}
}

// RecordSuccess implements Recorder
func (m *MockRecorder) RecordSuccess(t Target) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.State[t] = true
	m.Successes[t]++
}

// RecordFailure implements Recorder
func (m *MockRecorder) RecordFailure(t Target) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.State[t] = false
	m.Failures[t]++
}

// ObserveCycle implements CycleObserver
func (m *MockRecorder) ObserveCycle(_ time.Duration, _ int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Cycles++
	if err != nil {
		m.CycleErrs = append(m.CycleErrs, err)
	}
}

// Calls returns the total number of Record calls for a target.
func (m *MockRecorder) Calls(t Target) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Successes[t] + m.Failures[t]
}

// Get returns the latest state for a target and whether it was ever recorded.
func (m *MockRecorder) Get(t Target) (reachable, recorded bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reachable, recorded = m.State[t]
	return reachable, recorded
}

// Len returns the number of distinct targets recorded.
func (m *MockRecorder) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.State)
}

// CycleCount returns the number of observed cycles.
func (m *MockRecorder) CycleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Cycles
}
