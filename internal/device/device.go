package device

import (
	"errors"
	"fmt"
)

// Query names identify individual accessor reads in errors and logs.
const (
	QueryIndex          = "index"
	QueryName           = "name"
	QueryTemperature    = "temperature"
	QueryFanSpeed       = "fan_speed"
	QueryPowerState     = "power_state"
	QueryPowerUsage     = "power_usage"
	QueryGraphicsClock  = "graphics_clock"
	QueryMemoryClock    = "memory_clock"
	QueryMemoryInfo     = "memory_info"
	QueryBAR1MemoryInfo = "bar1_memory_info"
	QueryUtilization    = "utilization"
)

var (
	// ErrDeviceUnavailable is returned (wrapped) by Capability.Handle when the
	// ordinal no longer maps to a device, e.g. after a hot-unplug.
	ErrDeviceUnavailable = errors.New("device unavailable")

	// ErrNotSupported is the reason attached to a QueryError when the device
	// does not expose the requested counter.
	ErrNotSupported = errors.New("not supported")
)

// QueryError reports a failed accessor read on a single device handle.
type QueryError struct {
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %s failed: %v", e.Query, e.Err)
}

// Unwrap returns the underlying reason.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// ClockDomain selects which clock Handle.Clock reads.
type ClockDomain int

// Clock domains exposed by the collector.
const (
	ClockGraphics ClockDomain = iota
	ClockMemory
)

func (d ClockDomain) String() string {
	switch d {
	case ClockGraphics:
		return "graphics"
	case ClockMemory:
		return "memory"
	default:
		return fmt.Sprintf("clock(%d)", int(d))
	}
}

// MemoryInfo is the framebuffer memory of a device, in bytes.
type MemoryInfo struct {
	Total uint64
	Free  uint64
	Used  uint64
}

// BAR1MemoryInfo is the BAR1 aperture usage of a device, in bytes.
type BAR1MemoryInfo struct {
	Total uint64
	Free  uint64
	Used  uint64
}

// Utilization holds the sampled busy percentages of a device.
type Utilization struct {
	GPU    uint32
	Memory uint32
}

// Capability enumerates GPUs and hands out per-device handles.
type Capability interface {
	// Init acquires the underlying management library.
	Init() error
	// Shutdown releases the management library.
	Shutdown() error
	// Count returns the number of devices currently enumerable.
	Count() (int, error)
	// Handle returns the handle for a 0-based ordinal.
	Handle(ordinal int) (Handle, error)
}

// Handle reads counters from one device. Every accessor fails independently.
type Handle interface {
	Index() (int, error)
	Name() (string, error)
	// Temperature in degrees Celsius.
	Temperature() (uint32, error)
	// FanSpeed as a percentage of the maximum.
	FanSpeed() (uint32, error)
	// PowerState is the performance state, 0 (max) to 15 (min), 32 if unknown.
	PowerState() (int, error)
	// PowerUsage in milliwatts.
	PowerUsage() (uint32, error)
	// Clock in MHz.
	Clock(domain ClockDomain) (uint32, error)
	MemoryInfo() (MemoryInfo, error)
	BAR1MemoryInfo() (BAR1MemoryInfo, error)
	Utilization() (Utilization, error)
}
