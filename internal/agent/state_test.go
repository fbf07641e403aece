package agent

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// mockClock is a controllable clock for testing.
type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func newMockClock(t time.Time) *mockClock {
	return &mockClock{now: t}
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestStateInitial(t *testing.T) {
	sm := NewStateMachine(newMockClock(time.Now()))

	assert.Equal(t, StateStarting, sm.State())
	assert.Equal(t, "", sm.StateReason())
}

func TestStateTransitionToRunning(t *testing.T) {
	sm := NewStateMachine(newMockClock(time.Now()))

	assert.True(t, sm.TransitionTo(StateRunning, "collector initialized"))
	assert.Equal(t, StateRunning, sm.State())
	assert.Equal(t, "collector initialized", sm.StateReason())
}

func TestStateTransitionToDisabled(t *testing.T) {
	sm := NewStateMachine(newMockClock(time.Now()))

	assert.True(t, sm.TransitionTo(StateDisabled, "NVML init failed"))
	assert.Equal(t, StateDisabled, sm.State())
}

func TestStateDisabledIsOneWay(t *testing.T) {
	sm := NewStateMachine(newMockClock(time.Now()))
	sm.TransitionTo(StateDisabled, "init failed")

	assert.False(t, sm.TransitionTo(StateRunning, "retry"))
	assert.Equal(t, StateDisabled, sm.State())
	assert.Equal(t, "init failed", sm.StateReason())
}

func TestStateRunningCannotGoBack(t *testing.T) {
	sm := NewStateMachine(newMockClock(time.Now()))
	sm.TransitionTo(StateRunning, "")

	assert.False(t, sm.TransitionTo(StateStarting, ""))
	assert.False(t, sm.TransitionTo(StateDisabled, ""))
	assert.Equal(t, StateRunning, sm.State())
}

func TestStateStoppedIsTerminal(t *testing.T) {
	sm := NewStateMachine(newMockClock(time.Now()))
	sm.TransitionTo(StateRunning, "")
	assert.True(t, sm.TransitionTo(StateStopped, "shutdown"))

	for _, s := range AllStates {
		assert.False(t, sm.TransitionTo(s, ""), "stopped -> %s", s)
	}
}

func TestStateInState(t *testing.T) {
	clk := newMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	sm := NewStateMachine(clk)

	clk.Advance(10 * time.Second)
	assert.Equal(t, 10*time.Second, sm.InState())

	sm.TransitionTo(StateRunning, "")
	clk.Advance(time.Second)
	assert.Equal(t, time.Second, sm.InState())
}

func TestStateOnChange(t *testing.T) {
	sm := NewStateMachine(newMockClock(time.Now()))

	var got []AgentState
	sm.OnChange(func(s AgentState) { got = append(got, s) })

	sm.TransitionTo(StateRunning, "")
	sm.TransitionTo(StateDisabled, "") // rejected
	sm.TransitionTo(StateStopped, "")

	assert.Equal(t, []AgentState{StateRunning, StateStopped}, got)
}

func TestStateConcurrentAccess(t *testing.T) {
	sm := NewStateMachine(newMockClock(time.Now()))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sm.TransitionTo(StateRunning, "")
		}()
		go func() {
			defer wg.Done()
			_ = sm.State()
			_ = sm.StateReason()
			_ = sm.InState()
		}()
	}
	wg.Wait()

	assert.Equal(t, StateRunning, sm.State())
}
