package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/kubeprobe/internal/checker"
	"github.com/ppiankov/kubeprobe/internal/discovery"
	"github.com/ppiankov/kubeprobe/internal/metrics"
	"github.com/ppiankov/kubeprobe/internal/probe"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEnumerator returns queued responses in order, repeating the last one.
type fakeEnumerator struct {
	mu        sync.Mutex
	responses []response
	calls     int
	callTimes []time.Time
}

type response struct {
	services []discovery.ServiceDescriptor
	err      error
}

func (f *fakeEnumerator) ListServices(context.Context) ([]discovery.ServiceDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.callTimes = append(f.callTimes, time.Now())
	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	f.calls++
	return f.responses[idx].services, f.responses[idx].err
}

func (f *fakeEnumerator) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var web = discovery.ServiceDescriptor{
	Name: "web", Namespace: "default", ClusterIP: "10.0.0.5", Ports: []int32{80, 443},
}

func webProber() probe.Prober {
	table := map[string]bool{
		"web.default.svc.cluster.local:80":  true,
		"10.0.0.5:80":                       false,
		"web.default.svc.cluster.local:443": true,
		"10.0.0.5:443":                      true,
	}
	return probe.Func(func(_ context.Context, host string, port int32) bool {
		return table[fmt.Sprintf("%s:%d", host, port)]
	})
}

func newTestScheduler(enum discovery.Enumerator, prober probe.Prober, config Config) (*Scheduler, *metrics.MockRecorder, *logtest.Hook) {
	log, hook := logtest.NewNullLogger()
	rec := metrics.NewMockRecorder()
	c := checker.New(prober, rec, checker.Config{}, log)
	return New(enum, c, rec, config, log), rec, hook
}

func TestRunCycle_EndToEnd(t *testing.T) {
	enum := &fakeEnumerator{responses: []response{{services: []discovery.ServiceDescriptor{web}}}}
	s, rec, _ := newTestScheduler(enum, webProber(), Config{})

	report, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Services, 1)

	state := func(port int32, at metrics.AddressType) bool {
		v, recorded := rec.Get(metrics.Target{Service: "web", Namespace: "default", Port: port, AddressType: at})
		require.True(t, recorded)
		return v
	}
	assert.True(t, state(80, metrics.AddressHostname))
	assert.False(t, state(80, metrics.AddressIP))
	assert.True(t, state(443, metrics.AddressHostname))
	assert.True(t, state(443, metrics.AddressIP))

	assert.Equal(t, 1, rec.CycleCount())
	assert.Same(t, report, s.Last())
}

func TestRunCycle_EnumeratorError(t *testing.T) {
	enum := &fakeEnumerator{responses: []response{{err: errors.New("forbidden")}}}
	s, rec, _ := newTestScheduler(enum, webProber(), Config{})

	report, err := s.RunCycle(context.Background())
	assert.Nil(t, report)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forbidden")
	assert.Len(t, rec.CycleErrs, 1)
	assert.Nil(t, s.Last())
}

func TestRunCycle_FanOutIsConcurrent(t *testing.T) {
	services := make([]discovery.ServiceDescriptor, 0, 50)
	for i := 0; i < 50; i++ {
		services = append(services, discovery.ServiceDescriptor{
			Name:      fmt.Sprintf("svc-%d", i),
			Namespace: "load",
			ClusterIP: fmt.Sprintf("10.1.0.%d", i+1),
			Ports:     []int32{80, 443, 8080},
		})
	}

	slow := probe.Func(func(ctx context.Context, _ string, _ int32) bool {
		select {
		case <-time.After(100 * time.Millisecond):
			return true
		case <-ctx.Done():
			return false
		}
	})

	enum := &fakeEnumerator{responses: []response{{services: services}}}
	s, rec, _ := newTestScheduler(enum, slow, Config{})

	start := time.Now()
	report, err := s.RunCycle(context.Background())
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Len(t, report.Services, 50)
	assert.Equal(t, 300, rec.Len())
	// 50 services x 3 ports x 100ms would be 15s serially
	assert.Less(t, elapsed, 3*time.Second)
}

func TestRun_RecoversAfterEnumeratorError(t *testing.T) {
	enum := &fakeEnumerator{responses: []response{
		{err: errors.New("connection refused")},
		{services: []discovery.ServiceDescriptor{web}},
	}}
	interval := 50 * time.Millisecond
	s, rec, hook := newTestScheduler(enum, webProber(), Config{Interval: interval, MaxIterations: 2})

	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, 2, enum.Calls())
	assert.GreaterOrEqual(t, enum.callTimes[1].Sub(enum.callTimes[0]), interval)
	assert.Equal(t, 4, rec.Len())
	assert.Len(t, rec.CycleErrs, 1)

	var logged bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Message == "Polling cycle failed" {
			logged = true
		}
	}
	assert.True(t, logged, "expected the enumerator failure to be logged")
}

func TestRun_StopsOnCancel(t *testing.T) {
	enum := &fakeEnumerator{responses: []response{{services: []discovery.ServiceDescriptor{web}}}}
	s, _, _ := newTestScheduler(enum, webProber(), Config{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return enum.Calls() == 1 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRunCycle_CancelledMidCycle(t *testing.T) {
	hang := probe.Func(func(ctx context.Context, _ string, _ int32) bool {
		<-ctx.Done()
		return false
	})
	enum := &fakeEnumerator{responses: []response{{services: []discovery.ServiceDescriptor{web}}}}
	s, rec, _ := newTestScheduler(enum, hang, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := s.RunCycle(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, rec.Len())
	assert.Zero(t, rec.CycleCount())
	assert.Nil(t, s.Last())
}

func TestNew_Defaults(t *testing.T) {
	s := New(&fakeEnumerator{}, nil, nil, Config{}, nil)
	assert.Equal(t, DefaultInterval, s.config.Interval)
	assert.Equal(t, DefaultMaxConcurrentServices, s.config.MaxConcurrentServices)
}
