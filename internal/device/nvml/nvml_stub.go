//go:build nonvml

package nvml

import (
	"fmt"

	"github.com/kubeadapt/gpu-exporter/internal/device"
)

// Provider stub - used when building without NVIDIA libraries
type Provider struct{}

func NewProvider(string) *Provider {
	return &Provider{}
}

func (p *Provider) Init() error {
	return fmt.Errorf("NVML not available (built with nonvml tag)")
}

func (p *Provider) Shutdown() error {
	return nil
}

func (p *Provider) Count() (int, error) {
	return 0, fmt.Errorf("NVML not available")
}

func (p *Provider) Handle(ordinal int) (device.Handle, error) {
	return nil, fmt.Errorf("ordinal %d: %w: NVML not available", ordinal, device.ErrDeviceUnavailable)
}

// Compile-time interface check
var _ device.Capability = (*Provider)(nil)
