package agent

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubeadapt/gpu-exporter/internal/collector/gpu"
	"github.com/kubeadapt/gpu-exporter/internal/config"
	"github.com/kubeadapt/gpu-exporter/internal/device"
	"github.com/kubeadapt/gpu-exporter/internal/errors"
	"github.com/kubeadapt/gpu-exporter/internal/observability"
	"github.com/kubeadapt/gpu-exporter/pkg/model"
)

// --- test helpers ---

func newTestConfig() *config.Config {
	return &config.Config{
		Port:         9445,
		PollInterval: 20 * time.Millisecond, // fast for tests
		InstanceID:   "test",
		ErrorTTL:     time.Minute,
	}
}

// countingRunner is a PassRunner that records how many passes ran and
// whether two ever overlapped.
type countingRunner struct {
	mu          sync.Mutex
	initialized bool
	running     bool
	overlapped  bool
	executions  int
	last        *model.PassSummary
}

func (r *countingRunner) Execute() {
	r.mu.Lock()
	if r.running {
		r.overlapped = true
	}
	r.running = true
	r.mu.Unlock()

	time.Sleep(time.Millisecond)

	r.mu.Lock()
	r.running = false
	r.executions++
	r.last = &model.PassSummary{Result: observability.ResultComplete, DeviceCount: r.executions}
	r.mu.Unlock()
}

func (r *countingRunner) Initialized() bool { return r.initialized }

func (r *countingRunner) LastPass() *model.PassSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func newGPUCollector(t *testing.T, capability device.Capability, m *observability.Metrics) *gpu.Collector {
	t.Helper()
	return gpu.NewCollector(capability, m.Registry, gpu.WithMetrics(m))
}

// --- tests ---

func TestAgent_RunTransitionsToRunning(t *testing.T) {
	m := observability.NewMetrics()
	c := newGPUCollector(t, device.NewFakeFleet(2), m)
	sm := NewStateMachine(errors.RealClock{})
	a := NewAgent(newTestConfig(), c, sm, m)

	assert.False(t, a.IsReady(), "agent should not be ready before the first pass")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, a.IsReady, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, StateRunning, sm.State())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExporterState.WithLabelValues(string(StateRunning))))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ExporterState.WithLabelValues(string(StateStarting))))

	pass := a.LatestPass()
	require.NotNil(t, pass)
	assert.Equal(t, 2, pass.DeviceCount)

	cancel()
	select {
	case err := <-done:
		assert.True(t, stderrors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, StateStopped, sm.State())
}

func TestAgent_RunPollsOnInterval(t *testing.T) {
	runner := &countingRunner{initialized: true}
	a := NewAgent(newTestConfig(), runner, NewStateMachine(errors.RealClock{}), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx) //nolint:errcheck

	require.Eventually(t, func() bool { return a.Passes() >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestAgent_DisabledCollector(t *testing.T) {
	capability := device.NewFakeCapability()
	capability.InitErr = stderrors.New("driver not loaded")

	m := observability.NewMetrics()
	c := newGPUCollector(t, capability, m)
	sm := NewStateMachine(errors.RealClock{})
	a := NewAgent(newTestConfig(), c, sm, m)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return a.Passes() >= 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, StateDisabled, sm.State())
	assert.False(t, a.IsReady(), "disabled exporter must never report ready")
	assert.Nil(t, a.LatestPass())
	// Init only; passes are no-ops.
	assert.Equal(t, 1, capability.Calls())

	cancel()
	<-done
	assert.Equal(t, StateStopped, sm.State())
}

func TestAgent_CollectSerializesPasses(t *testing.T) {
	runner := &countingRunner{initialized: true}
	a := NewAgent(newTestConfig(), runner, NewStateMachine(errors.RealClock{}), nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Collect()
		}()
	}
	wg.Wait()

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.False(t, runner.overlapped, "passes must never overlap")
	assert.Equal(t, 8, runner.executions)
	assert.Equal(t, int64(8), a.Passes())
}

func TestAgent_CollectReturnsSummary(t *testing.T) {
	m := observability.NewMetrics()
	c := newGPUCollector(t, device.NewFakeFleet(3), m)
	a := NewAgent(newTestConfig(), c, NewStateMachine(errors.RealClock{}), m)

	pass := a.Collect()
	require.NotNil(t, pass)
	assert.Equal(t, observability.ResultComplete, pass.Result)
	assert.Equal(t, 3, pass.DeviceCount)
	assert.True(t, a.IsReady())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CollectionsTotal.WithLabelValues(observability.ResultComplete)))
}

func TestAgent_NilMetrics(t *testing.T) {
	c := gpu.NewCollector(device.NewFakeFleet(1), prometheus.NewRegistry())
	a := NewAgent(newTestConfig(), c, NewStateMachine(errors.RealClock{}), nil)

	assert.NotPanics(t, func() { a.Collect() })
	assert.True(t, a.IsReady())
}
