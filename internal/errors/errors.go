package errors

import (
	"sort"
	"sync"
	"time"
)

// Code classifies a collection failure by where it occurred.
type Code string

// Failure kinds, from widest to narrowest blast radius.
const (
	// ErrCapabilityInitFailed disables collection for the process lifetime.
	ErrCapabilityInitFailed Code = "CAPABILITY_INIT_FAILED"
	// ErrEnumerationFailed aborts one pass.
	ErrEnumerationFailed Code = "ENUMERATION_FAILED"
	// ErrDeviceUnavailable skips one device for one pass.
	ErrDeviceUnavailable Code = "DEVICE_UNAVAILABLE"
	// ErrQueryFailed skips one counter on one device for one pass.
	ErrQueryFailed Code = "QUERY_FAILED"
)

// Codes lists every Code in taxonomy order.
var Codes = []Code{
	ErrCapabilityInitFailed,
	ErrEnumerationFailed,
	ErrDeviceUnavailable,
	ErrQueryFailed,
}

// defaultTTL is the auto-expiry duration for errors not re-reported.
const defaultTTL = 5 * time.Minute

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock uses the system clock.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time { return time.Now() }

// CollectionError is a classified failure with the component it hit.
// Device is the enumeration ordinal, or -1 when the failure is not tied to a
// single device.
type CollectionError struct {
	Code      Code   `json:"code"`
	Message   string `json:"message"`
	Component string `json:"component"`
	Device    int    `json:"device"`
	Timestamp int64  `json:"timestamp"`
	Err       error  `json:"-"`
}

// Error implements the error interface.
func (e *CollectionError) Error() string {
	return e.Message
}

// Unwrap returns the wrapped error for errors.Is/As compatibility.
func (e *CollectionError) Unwrap() error {
	return e.Err
}

type entry struct {
	err        CollectionError
	lastReport time.Time
}

// ErrorCollector is a thread-safe store for recently seen collection errors.
// Errors are keyed by Code+Component and expire after the TTL unless
// re-reported, so a device that recovers drops out on its own.
type ErrorCollector struct {
	mu      sync.Mutex
	clock   Clock
	ttl     time.Duration
	entries map[string]entry
}

// NewErrorCollector creates an ErrorCollector with the given clock and the
// default five minute TTL.
func NewErrorCollector(clock Clock) *ErrorCollector {
	return NewErrorCollectorWithTTL(clock, defaultTTL)
}

// NewErrorCollectorWithTTL creates an ErrorCollector with a custom TTL.
// A non-positive ttl falls back to the default.
func NewErrorCollectorWithTTL(clock Clock, ttl time.Duration) *ErrorCollector {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &ErrorCollector{
		clock:   clock,
		ttl:     ttl,
		entries: make(map[string]entry),
	}
}

func key(code Code, component string) string {
	return string(code) + "|" + component
}

// Report stores or refreshes an error. The dedup key is Code+Component.
func (ec *ErrorCollector) Report(err CollectionError) {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	now := ec.clock.Now()
	if err.Timestamp == 0 {
		err.Timestamp = now.UnixMilli()
	}
	ec.entries[key(err.Code, err.Component)] = entry{
		err:        err,
		lastReport: now,
	}
}

// GetActiveErrors returns errors reported within the TTL window, ordered by
// code then component.
func (ec *ErrorCollector) GetActiveErrors() []CollectionError {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	now := ec.clock.Now()
	result := make([]CollectionError, 0, len(ec.entries))
	for k, e := range ec.entries {
		if now.Sub(e.lastReport) > ec.ttl {
			delete(ec.entries, k)
			continue
		}
		result = append(result, e.err)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Code != result[j].Code {
			return result[i].Code < result[j].Code
		}
		return result[i].Component < result[j].Component
	})
	return result
}

// GetActiveErrorCodes returns a deduplicated, sorted list of active codes.
func (ec *ErrorCollector) GetActiveErrorCodes() []string {
	seen := make(map[Code]struct{})
	codes := make([]string, 0)
	for _, e := range ec.GetActiveErrors() {
		if _, ok := seen[e.Code]; !ok {
			seen[e.Code] = struct{}{}
			codes = append(codes, string(e.Code))
		}
	}
	return codes
}

// Clear removes all tracked errors.
func (ec *ErrorCollector) Clear() {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	ec.entries = make(map[string]entry)
}
