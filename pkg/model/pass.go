package model

// PassSummary describes one collection pass. It is informational only; the
// collector never reads it back.
type PassSummary struct {
	StartedAt      int64          `json:"started_at"`
	DurationMillis int64          `json:"duration_ms"`
	Result         string         `json:"result"`
	DeviceCount    int            `json:"device_count"`
	Devices        []DeviceReport `json:"devices,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// DeviceReport is the per-device outcome within a pass. CardID and CardName
// are the label values written, empty when the device was skipped before its
// labels could be read.
type DeviceReport struct {
	Ordinal       int      `json:"ordinal"`
	CardID        string   `json:"card_id,omitempty"`
	CardName      string   `json:"card_name,omitempty"`
	Skipped       bool     `json:"skipped,omitempty"`
	Error         string   `json:"error,omitempty"`
	Writes        int      `json:"writes"`
	FailedQueries []string `json:"failed_queries,omitempty"`
}

// FailedDevices counts devices skipped in the pass.
func (p *PassSummary) FailedDevices() int {
	n := 0
	for _, d := range p.Devices {
		if d.Skipped {
			n++
		}
	}
	return n
}

// FailedQueries counts failed counter reads across all devices.
func (p *PassSummary) FailedQueries() int {
	n := 0
	for _, d := range p.Devices {
		n += len(d.FailedQueries)
	}
	return n
}
