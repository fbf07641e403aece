package agent

import (
	"sync"
	"time"

	"github.com/kubeadapt/gpu-exporter/internal/errors"
)

// AgentState represents the current lifecycle state of the exporter.
type AgentState string

// Exporter lifecycle states.
const (
	StateStarting AgentState = "starting"
	StateRunning  AgentState = "running"
	StateDisabled AgentState = "disabled"
	StateStopped  AgentState = "stopped"
)

// AllStates lists every state, used to publish the one-hot state gauge.
var AllStates = []AgentState{StateStarting, StateRunning, StateDisabled, StateStopped}

// StateMachine tracks the exporter's lifecycle. Running and Disabled are both
// entered only from Starting; Stopped is terminal.
type StateMachine struct {
	mu          sync.RWMutex
	state       AgentState
	stateReason string
	enteredAt   time.Time
	clock       errors.Clock
	onChange    func(AgentState)
}

// NewStateMachine creates a StateMachine starting in StateStarting.
func NewStateMachine(clock errors.Clock) *StateMachine {
	return &StateMachine{
		state:     StateStarting,
		enteredAt: clock.Now(),
		clock:     clock,
	}
}

// OnChange registers fn to be called with the new state after every
// successful transition.
func (sm *StateMachine) OnChange(fn func(AgentState)) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.onChange = fn
}

// State returns the current state.
func (sm *StateMachine) State() AgentState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state
}

// StateReason returns the human-readable reason for the current state.
func (sm *StateMachine) StateReason() string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.stateReason
}

// InState returns how long the machine has been in its current state.
func (sm *StateMachine) InState() time.Duration {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.clock.Now().Sub(sm.enteredAt)
}

// TransitionTo moves to state if the transition is allowed and reports
// whether it happened.
func (sm *StateMachine) TransitionTo(state AgentState, reason string) bool {
	sm.mu.Lock()
	if !allowed(sm.state, state) {
		sm.mu.Unlock()
		return false
	}
	sm.state = state
	sm.stateReason = reason
	sm.enteredAt = sm.clock.Now()
	fn := sm.onChange
	sm.mu.Unlock()

	if fn != nil {
		fn(state)
	}
	return true
}

func allowed(from, to AgentState) bool {
	switch from {
	case StateStarting:
		return to == StateRunning || to == StateDisabled || to == StateStopped
	case StateRunning, StateDisabled:
		return to == StateStopped
	default:
		return false
	}
}
