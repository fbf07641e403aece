package device

import (
	"fmt"
	"sync"
)

// FakeCapability is an in-memory Capability for tests and hardware-less
// development. Errors can be injected per call site.
type FakeCapability struct {
	mu sync.Mutex

	Devices    []*FakeDevice
	InitErr    error
	CountErr   error
	HandleErrs map[int]error

	calls int
}

// NewFakeCapability returns a FakeCapability serving the given devices in order.
func NewFakeCapability(devices ...*FakeDevice) *FakeCapability {
	return &FakeCapability{Devices: devices}
}

// NewFakeFleet builds n devices with plausible idle readings, used when the
// exporter runs without a driver.
func NewFakeFleet(n int) *FakeCapability {
	devices := make([]*FakeDevice, 0, n)
	for i := 0; i < n; i++ {
		devices = append(devices, &FakeDevice{
			ID:            i,
			DeviceName:    "Fake GPU",
			Temp:          40 + uint32(i),
			Fan:           30,
			PState:        8,
			PowerMW:       55000,
			GraphicsClock: 210,
			MemoryClock:   405,
			Memory:        MemoryInfo{Total: 24 << 30, Free: 23 << 30, Used: 1 << 30},
			BAR1:          BAR1MemoryInfo{Total: 256 << 20, Free: 250 << 20, Used: 6 << 20},
		})
	}
	return NewFakeCapability(devices...)
}

// Calls returns how many Capability and Handle methods have been invoked.
func (f *FakeCapability) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *FakeCapability) record() {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
}

func (f *FakeCapability) Init() error {
	f.record()
	return f.InitErr
}

func (f *FakeCapability) Shutdown() error {
	f.record()
	return nil
}

func (f *FakeCapability) Count() (int, error) {
	f.record()
	if f.CountErr != nil {
		return 0, f.CountErr
	}
	return len(f.Devices), nil
}

func (f *FakeCapability) Handle(ordinal int) (Handle, error) {
	f.record()
	if err, ok := f.HandleErrs[ordinal]; ok && err != nil {
		return nil, fmt.Errorf("ordinal %d: %w", ordinal, err)
	}
	if ordinal < 0 || ordinal >= len(f.Devices) {
		return nil, fmt.Errorf("ordinal %d: %w", ordinal, ErrDeviceUnavailable)
	}
	return &fakeHandle{dev: f.Devices[ordinal], parent: f}, nil
}

// FakeDevice holds the readings returned for one device. Errs maps a Query*
// name to the error its accessor returns.
type FakeDevice struct {
	ID            int
	DeviceName    string
	Temp          uint32
	Fan           uint32
	PState        int
	PowerMW       uint32
	GraphicsClock uint32
	MemoryClock   uint32
	Memory        MemoryInfo
	BAR1          BAR1MemoryInfo
	Util          Utilization
	Errs          map[string]error
}

type fakeHandle struct {
	dev    *FakeDevice
	parent *FakeCapability
}

func (h *fakeHandle) fail(query string) error {
	h.parent.record()
	if err, ok := h.dev.Errs[query]; ok && err != nil {
		return &QueryError{Query: query, Err: err}
	}
	return nil
}

func (h *fakeHandle) Index() (int, error) {
	if err := h.fail(QueryIndex); err != nil {
		return 0, err
	}
	return h.dev.ID, nil
}

func (h *fakeHandle) Name() (string, error) {
	if err := h.fail(QueryName); err != nil {
		return "", err
	}
	return h.dev.DeviceName, nil
}

func (h *fakeHandle) Temperature() (uint32, error) {
	if err := h.fail(QueryTemperature); err != nil {
		return 0, err
	}
	return h.dev.Temp, nil
}

func (h *fakeHandle) FanSpeed() (uint32, error) {
	if err := h.fail(QueryFanSpeed); err != nil {
		return 0, err
	}
	return h.dev.Fan, nil
}

func (h *fakeHandle) PowerState() (int, error) {
	if err := h.fail(QueryPowerState); err != nil {
		return 0, err
	}
	return h.dev.PState, nil
}

func (h *fakeHandle) PowerUsage() (uint32, error) {
	if err := h.fail(QueryPowerUsage); err != nil {
		return 0, err
	}
	return h.dev.PowerMW, nil
}

func (h *fakeHandle) Clock(domain ClockDomain) (uint32, error) {
	switch domain {
	case ClockGraphics:
		if err := h.fail(QueryGraphicsClock); err != nil {
			return 0, err
		}
		return h.dev.GraphicsClock, nil
	case ClockMemory:
		if err := h.fail(QueryMemoryClock); err != nil {
			return 0, err
		}
		return h.dev.MemoryClock, nil
	default:
		h.parent.record()
		return 0, &QueryError{Query: domain.String(), Err: ErrNotSupported}
	}
}

func (h *fakeHandle) MemoryInfo() (MemoryInfo, error) {
	if err := h.fail(QueryMemoryInfo); err != nil {
		return MemoryInfo{}, err
	}
	return h.dev.Memory, nil
}

func (h *fakeHandle) BAR1MemoryInfo() (BAR1MemoryInfo, error) {
	if err := h.fail(QueryBAR1MemoryInfo); err != nil {
		return BAR1MemoryInfo{}, err
	}
	return h.dev.BAR1, nil
}

func (h *fakeHandle) Utilization() (Utilization, error) {
	if err := h.fail(QueryUtilization); err != nil {
		return Utilization{}, err
	}
	return h.dev.Util, nil
}

// Compile-time interface check
var _ Capability = (*FakeCapability)(nil)
