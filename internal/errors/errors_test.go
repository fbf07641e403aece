package errors

import (
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// mockClock is a controllable clock for testing auto-expiry.
type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func newMockClock(t time.Time) *mockClock {
	return &mockClock{now: t}
}

func (m *mockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *mockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

func TestCollectionError_ImplementsError(t *testing.T) {
	cause := stderrors.New("GPU is lost")
	ce := CollectionError{
		Code:      ErrDeviceUnavailable,
		Message:   "device 1 unavailable",
		Component: "device/1",
		Device:    1,
		Err:       cause,
	}

	var err error = &ce
	if err.Error() != "device 1 unavailable" {
		t.Fatalf("expected Error() = %q, got %q", "device 1 unavailable", err.Error())
	}
	if !stderrors.Is(err, cause) {
		t.Fatal("expected errors.Is to reach the wrapped cause")
	}
}

func TestErrorCollector_Report(t *testing.T) {
	clk := newMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ec := NewErrorCollector(clk)

	ec.Report(CollectionError{
		Code:      ErrEnumerationFailed,
		Message:   "driver not loaded",
		Component: "collector.gpu",
		Device:    -1,
	})

	active := ec.GetActiveErrors()
	if len(active) != 1 {
		t.Fatalf("expected 1 active error, got %d", len(active))
	}
	if active[0].Code != ErrEnumerationFailed {
		t.Fatalf("expected code %s, got %s", ErrEnumerationFailed, active[0].Code)
	}
	if active[0].Timestamp != clk.Now().UnixMilli() {
		t.Fatalf("expected timestamp to default to report time, got %d", active[0].Timestamp)
	}
}

func TestErrorCollector_AutoExpiry(t *testing.T) {
	clk := newMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ec := NewErrorCollector(clk)

	ec.Report(CollectionError{
		Code:      ErrQueryFailed,
		Message:   "fan speed not supported",
		Component: "device/0:fan_speed",
	})

	// Advance 6 minutes — beyond the 5-minute TTL.
	clk.Advance(6 * time.Minute)

	active := ec.GetActiveErrors()
	if len(active) != 0 {
		t.Fatalf("expected 0 active errors after expiry, got %d", len(active))
	}
}

func TestErrorCollector_CustomTTL(t *testing.T) {
	clk := newMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ec := NewErrorCollectorWithTTL(clk, 30*time.Second)

	ec.Report(CollectionError{Code: ErrQueryFailed, Component: "device/0:utilization"})
	clk.Advance(31 * time.Second)

	if n := len(ec.GetActiveErrors()); n != 0 {
		t.Fatalf("expected 0 active errors after custom TTL, got %d", n)
	}
}

func TestErrorCollector_RefreshPreventsExpiry(t *testing.T) {
	clk := newMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ec := NewErrorCollector(clk)

	ce := CollectionError{
		Code:      ErrDeviceUnavailable,
		Message:   "handle lookup failed",
		Component: "device/2",
		Device:    2,
	}
	ec.Report(ce)

	// Advance 3 minutes, re-report (refresh).
	clk.Advance(3 * time.Minute)
	ec.Report(ce)

	// Advance another 3 minutes (6 total from initial, but only 3 from last report).
	clk.Advance(3 * time.Minute)

	active := ec.GetActiveErrors()
	if len(active) != 1 {
		t.Fatalf("expected 1 active error (refreshed), got %d", len(active))
	}
}

func TestErrorCollector_SortedOutput(t *testing.T) {
	clk := newMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ec := NewErrorCollector(clk)

	ec.Report(CollectionError{Code: ErrQueryFailed, Component: "device/1:temperature"})
	ec.Report(CollectionError{Code: ErrDeviceUnavailable, Component: "device/3"})
	ec.Report(CollectionError{Code: ErrQueryFailed, Component: "device/0:fan_speed"})

	active := ec.GetActiveErrors()
	want := []string{"device/3", "device/0:fan_speed", "device/1:temperature"}
	if len(active) != len(want) {
		t.Fatalf("expected %d errors, got %d", len(want), len(active))
	}
	for i, w := range want {
		if active[i].Component != w {
			t.Errorf("active[%d].Component = %q, want %q", i, active[i].Component, w)
		}
	}
}

func TestErrorCollector_ThreadSafe(t *testing.T) {
	clk := newMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ec := NewErrorCollector(clk)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			ec.Report(CollectionError{
				Code:      Codes[idx%len(Codes)],
				Message:   fmt.Sprintf("error %d", idx),
				Component: fmt.Sprintf("device/%d", idx%3),
			})
			_ = ec.GetActiveErrors()
			_ = ec.GetActiveErrorCodes()
		}(i)
	}
	wg.Wait()

	active := ec.GetActiveErrors()
	if len(active) == 0 {
		t.Fatal("expected some active errors after concurrent writes")
	}
}

func TestErrorCollector_GetActiveErrorCodes(t *testing.T) {
	clk := newMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ec := NewErrorCollector(clk)

	ec.Report(CollectionError{Code: ErrQueryFailed, Component: "device/0:temperature"})
	ec.Report(CollectionError{Code: ErrDeviceUnavailable, Component: "device/1"})
	ec.Report(CollectionError{Code: ErrEnumerationFailed, Component: "collector.gpu"})

	// Same code, different component — should still show as one code.
	ec.Report(CollectionError{Code: ErrQueryFailed, Component: "device/2:utilization"})

	codes := ec.GetActiveErrorCodes()
	if len(codes) != 3 {
		t.Fatalf("expected 3 unique codes, got %d: %v", len(codes), codes)
	}

	codeSet := make(map[string]bool)
	for _, c := range codes {
		codeSet[c] = true
	}
	for _, expected := range []string{string(ErrQueryFailed), string(ErrDeviceUnavailable), string(ErrEnumerationFailed)} {
		if !codeSet[expected] {
			t.Fatalf("expected code %s in results", expected)
		}
	}
}

func TestErrorCollector_Clear(t *testing.T) {
	clk := newMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ec := NewErrorCollector(clk)

	ec.Report(CollectionError{Code: ErrCapabilityInitFailed, Component: "collector.gpu"})
	ec.Report(CollectionError{Code: ErrQueryFailed, Component: "device/0:power_usage"})

	ec.Clear()

	if len(ec.GetActiveErrors()) != 0 {
		t.Fatal("expected 0 errors after Clear()")
	}
	if len(ec.GetActiveErrorCodes()) != 0 {
		t.Fatal("expected 0 error codes after Clear()")
	}
}
