package config

import (
	"fmt"
	"time"
)

// maxFakeDevices bounds the synthetic fleet size.
const maxFakeDevices = 64

// Validate checks that the Config contains valid values.
// Returns an error describing the first invalid field found.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config: GPU_EXPORTER_PORT must be 1-65535, got %d", c.Port)
	}

	if c.PollInterval < time.Second {
		return fmt.Errorf("config: PollInterval must be >= 1s, got %v", c.PollInterval)
	}

	if c.FakeDevices < 0 || c.FakeDevices > maxFakeDevices {
		return fmt.Errorf("config: FakeDevices must be 0-%d, got %d", maxFakeDevices, c.FakeDevices)
	}

	if c.ErrorTTL < c.PollInterval {
		return fmt.Errorf("config: ErrorTTL (%v) must be >= PollInterval (%v)", c.ErrorTTL, c.PollInterval)
	}

	if c.InstanceID == "" {
		return fmt.Errorf("config: InstanceID must not be empty")
	}

	return nil
}
