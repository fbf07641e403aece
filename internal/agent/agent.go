package agent

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kubeadapt/gpu-exporter/internal/config"
	"github.com/kubeadapt/gpu-exporter/internal/observability"
	"github.com/kubeadapt/gpu-exporter/pkg/model"
)

// PassRunner is the collection engine driven by the agent.
type PassRunner interface {
	Execute()
	Initialized() bool
	LastPass() *model.PassSummary
}

// Agent drives collection passes on a fixed interval and on demand.
type Agent struct {
	config       *config.Config
	collector    PassRunner
	stateMachine *StateMachine
	metrics      *observability.Metrics

	passMu sync.Mutex
	passes atomic.Int64
	ready  atomic.Bool
}

// NewAgent creates an Agent. metrics may be nil.
func NewAgent(cfg *config.Config, collector PassRunner, stateMachine *StateMachine, metrics *observability.Metrics) *Agent {
	a := &Agent{
		config:       cfg,
		collector:    collector,
		stateMachine: stateMachine,
		metrics:      metrics,
	}
	if metrics != nil {
		all := make([]string, len(AllStates))
		for i, s := range AllStates {
			all[i] = string(s)
		}
		stateMachine.OnChange(func(s AgentState) {
			metrics.SetState(string(s), all)
		})
		metrics.SetState(string(stateMachine.State()), all)
	}
	return a
}

// IsReady reports whether the first pass of an initialized collector has
// completed. Implements health.ReadinessChecker.
func (a *Agent) IsReady() bool {
	return a.ready.Load()
}

// LatestPass returns the most recent pass summary, or nil if none has run.
// Implements health.PassProvider.
func (a *Agent) LatestPass() *model.PassSummary {
	return a.collector.LastPass()
}

// Passes returns how many passes the agent has driven.
func (a *Agent) Passes() int64 {
	return a.passes.Load()
}

// Collect runs one pass now and returns its summary. Concurrent calls, and
// calls overlapping the interval loop, run one after another.
func (a *Agent) Collect() *model.PassSummary {
	a.passMu.Lock()
	defer a.passMu.Unlock()

	a.collector.Execute()
	a.passes.Add(1)
	if a.collector.Initialized() {
		a.ready.Store(true)
	}
	return a.collector.LastPass()
}

// Run performs one pass immediately and then one per PollInterval until ctx
// is canceled. A disabled collector still keeps the loop alive so the
// process serves its health endpoints.
func (a *Agent) Run(ctx context.Context) error {
	if a.collector.Initialized() {
		a.stateMachine.TransitionTo(StateRunning, "collector initialized")
		slog.Info("exporter is running", "poll_interval", a.config.PollInterval)
	} else {
		a.stateMachine.TransitionTo(StateDisabled, "collector initialization failed")
		slog.Warn("exporter is disabled; serving health endpoints only")
	}

	ticker := time.NewTicker(a.config.PollInterval)
	defer ticker.Stop()

	a.Collect()

	for {
		select {
		case <-ctx.Done():
			a.stateMachine.TransitionTo(StateStopped, "context canceled")
			slog.Info("exporter stopping", "passes", a.Passes())
			return ctx.Err()
		case <-ticker.C:
			a.Collect()
		}
	}
}
