package gpu

import "github.com/kubeadapt/gpu-exporter/internal/device"

// scalarRead maps one accessor onto a gauge with the device-only schema.
type scalarRead struct {
	gauge gaugeID
	query string
	read  func(device.Handle) (float64, error)
}

type typedValue struct {
	typ   string
	value float64
}

// typedRead maps one accessor onto several series of a typed gauge. The
// accessor is called once; all its values are written or none are.
type typedRead struct {
	gauge gaugeID
	query string
	read  func(device.Handle) ([]typedValue, error)
}

// Values are passed through in device units.
var scalarReads = []scalarRead{
	{gaugeTemperature, device.QueryTemperature, func(h device.Handle) (float64, error) {
		v, err := h.Temperature()
		return float64(v), err
	}},
	{gaugeFanSpeed, device.QueryFanSpeed, func(h device.Handle) (float64, error) {
		v, err := h.FanSpeed()
		return float64(v), err
	}},
	{gaugePowerState, device.QueryPowerState, func(h device.Handle) (float64, error) {
		v, err := h.PowerState()
		return float64(v), err
	}},
	{gaugePowerUsage, device.QueryPowerUsage, func(h device.Handle) (float64, error) {
		v, err := h.PowerUsage()
		return float64(v), err
	}},
	{gaugeGraphicsClock, device.QueryGraphicsClock, func(h device.Handle) (float64, error) {
		v, err := h.Clock(device.ClockGraphics)
		return float64(v), err
	}},
	{gaugeMemoryClock, device.QueryMemoryClock, func(h device.Handle) (float64, error) {
		v, err := h.Clock(device.ClockMemory)
		return float64(v), err
	}},
}

var typedReads = []typedRead{
	{gaugeMemoryUsage, device.QueryMemoryInfo, func(h device.Handle) ([]typedValue, error) {
		mem, err := h.MemoryInfo()
		if err != nil {
			return nil, err
		}
		return []typedValue{
			{TypeTotal, float64(mem.Total)},
			{TypeFree, float64(mem.Free)},
			{TypeUsed, float64(mem.Used)},
		}, nil
	}},
	{gaugeBAR1Memory, device.QueryBAR1MemoryInfo, func(h device.Handle) ([]typedValue, error) {
		bar1, err := h.BAR1MemoryInfo()
		if err != nil {
			return nil, err
		}
		return []typedValue{
			{TypeBAR1Total, float64(bar1.Total)},
			{TypeBAR1Free, float64(bar1.Free)},
			{TypeBAR1Used, float64(bar1.Used)},
		}, nil
	}},
	{gaugeUtilization, device.QueryUtilization, func(h device.Handle) ([]typedValue, error) {
		util, err := h.Utilization()
		if err != nil {
			return nil, err
		}
		return []typedValue{
			{TypeGPU, float64(util.GPU)},
			{TypeMemory, float64(util.Memory)},
		}, nil
	}},
}
