//go:build !nonvml

package nvml

import (
	"fmt"

	"github.com/NVIDIA/go-nvml/pkg/nvml"

	"github.com/kubeadapt/gpu-exporter/internal/device"
)

// Provider implements device.Capability on top of NVML.
type Provider struct {
	lib nvml.Interface
}

// NewProvider creates a Provider. An empty libraryPath lets NVML resolve
// libnvidia-ml.so.1 through the default loader search path.
func NewProvider(libraryPath string) *Provider {
	var opts []nvml.LibraryOption
	if libraryPath != "" {
		opts = append(opts, nvml.WithLibraryPath(libraryPath))
	}
	return &Provider{lib: nvml.New(opts...)}
}

func (p *Provider) Init() error {
	ret := p.lib.Init()
	if ret != nvml.SUCCESS {
		return fmt.Errorf("NVML init failed: %v", p.lib.ErrorString(ret))
	}
	return nil
}

func (p *Provider) Shutdown() error {
	ret := p.lib.Shutdown()
	if ret != nvml.SUCCESS {
		return fmt.Errorf("NVML shutdown failed: %v", p.lib.ErrorString(ret))
	}
	return nil
}

func (p *Provider) Count() (int, error) {
	count, ret := p.lib.DeviceGetCount()
	if ret != nvml.SUCCESS {
		return 0, fmt.Errorf("failed to get device count: %v", p.lib.ErrorString(ret))
	}
	return count, nil
}

func (p *Provider) Handle(ordinal int) (device.Handle, error) {
	dev, ret := p.lib.DeviceGetHandleByIndex(ordinal)
	if ret != nvml.SUCCESS {
		return nil, fmt.Errorf("ordinal %d: %w: %v", ordinal, device.ErrDeviceUnavailable, p.lib.ErrorString(ret))
	}
	return &handle{dev: dev, lib: p.lib}, nil
}

type handle struct {
	dev nvml.Device
	lib nvml.Interface
}

// check converts an NVML return code into a *device.QueryError.
func (h *handle) check(query string, ret nvml.Return) error {
	switch ret {
	case nvml.SUCCESS:
		return nil
	case nvml.ERROR_NOT_SUPPORTED:
		return &device.QueryError{Query: query, Err: device.ErrNotSupported}
	default:
		return &device.QueryError{Query: query, Err: fmt.Errorf("%s", h.lib.ErrorString(ret))}
	}
}

func (h *handle) Index() (int, error) {
	idx, ret := h.dev.GetIndex()
	return idx, h.check(device.QueryIndex, ret)
}

func (h *handle) Name() (string, error) {
	name, ret := h.dev.GetName()
	return name, h.check(device.QueryName, ret)
}

func (h *handle) Temperature() (uint32, error) {
	temp, ret := h.dev.GetTemperature(nvml.TEMPERATURE_GPU)
	return temp, h.check(device.QueryTemperature, ret)
}

func (h *handle) FanSpeed() (uint32, error) {
	speed, ret := h.dev.GetFanSpeed()
	return speed, h.check(device.QueryFanSpeed, ret)
}

func (h *handle) PowerState() (int, error) {
	state, ret := h.dev.GetPowerState()
	return int(state), h.check(device.QueryPowerState, ret)
}

func (h *handle) PowerUsage() (uint32, error) {
	mw, ret := h.dev.GetPowerUsage()
	return mw, h.check(device.QueryPowerUsage, ret)
}

func (h *handle) Clock(domain device.ClockDomain) (uint32, error) {
	switch domain {
	case device.ClockGraphics:
		mhz, ret := h.dev.GetClockInfo(nvml.CLOCK_GRAPHICS)
		return mhz, h.check(device.QueryGraphicsClock, ret)
	case device.ClockMemory:
		mhz, ret := h.dev.GetClockInfo(nvml.CLOCK_MEM)
		return mhz, h.check(device.QueryMemoryClock, ret)
	default:
		return 0, &device.QueryError{Query: domain.String(), Err: device.ErrNotSupported}
	}
}

func (h *handle) MemoryInfo() (device.MemoryInfo, error) {
	mem, ret := h.dev.GetMemoryInfo()
	if err := h.check(device.QueryMemoryInfo, ret); err != nil {
		return device.MemoryInfo{}, err
	}
	return device.MemoryInfo{Total: mem.Total, Free: mem.Free, Used: mem.Used}, nil
}

func (h *handle) BAR1MemoryInfo() (device.BAR1MemoryInfo, error) {
	bar1, ret := h.dev.GetBAR1MemoryInfo()
	if err := h.check(device.QueryBAR1MemoryInfo, ret); err != nil {
		return device.BAR1MemoryInfo{}, err
	}
	return device.BAR1MemoryInfo{Total: bar1.Bar1Total, Free: bar1.Bar1Free, Used: bar1.Bar1Used}, nil
}

func (h *handle) Utilization() (device.Utilization, error) {
	util, ret := h.dev.GetUtilizationRates()
	if err := h.check(device.QueryUtilization, ret); err != nil {
		return device.Utilization{}, err
	}
	return device.Utilization{GPU: util.Gpu, Memory: util.Memory}, nil
}

// Compile-time interface check
var _ device.Capability = (*Provider)(nil)
