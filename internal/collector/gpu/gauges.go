package gpu

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Exposed gauge names. Scrapers depend on these staying stable.
const (
	MetricTemperature   = "GPU_Temperature"
	MetricFanSpeed      = "GPU_fan_speed"
	MetricMemoryUsage   = "GPU_memory_usage"
	MetricPowerUsage    = "GPU_power_usage"
	MetricPowerState    = "GPU_power_state"
	MetricGraphicsClock = "GPU_graphics_clock"
	MetricMemoryClock   = "GPU_memory_clock"
	MetricPowerDraw     = "GPU_power_draw"
	MetricBAR1Memory    = "GPU_bar1_memory"
	MetricUtilization   = "GPU_util"
)

// Label names.
const (
	LabelCardID   = "card_id"
	LabelCardName = "card_name"
	LabelType     = "type"
)

// Values of the type label on multi-valued gauges.
const (
	TypeTotal     = "total"
	TypeFree      = "free"
	TypeUsed      = "used"
	TypeBAR1Total = "bar1Total"
	TypeBAR1Free  = "bar1Free"
	TypeBAR1Used  = "bar1Used"
	TypeGPU       = "gpu"
	TypeMemory    = "memory"
)

type gaugeID int

const (
	gaugeTemperature gaugeID = iota
	gaugeFanSpeed
	gaugeMemoryUsage
	gaugePowerUsage
	gaugePowerState
	gaugeGraphicsClock
	gaugeMemoryClock
	gaugePowerDraw
	gaugeBAR1Memory
	gaugeUtilization
	numGauges
)

type labelSchema int

const (
	// schemaDevice is {card_id, card_name}.
	schemaDevice labelSchema = iota
	// schemaDeviceType is {card_id, card_name, type}.
	schemaDeviceType
)

func (s labelSchema) labelNames() []string {
	if s == schemaDeviceType {
		return []string{LabelCardID, LabelCardName, LabelType}
	}
	return []string{LabelCardID, LabelCardName}
}

type gaugeSpec struct {
	name   string
	help   string
	schema labelSchema
}

// gaugeTable is the full set of declared gauges, indexed by gaugeID.
// GPU_power_draw is declared but never set: no counter feeds it.
var gaugeTable = [numGauges]gaugeSpec{
	gaugeTemperature:   {MetricTemperature, "Temperature of GPU.", schemaDevice},
	gaugeFanSpeed:      {MetricFanSpeed, "Fan Speed of GPU.", schemaDevice},
	gaugeMemoryUsage:   {MetricMemoryUsage, "Memory usage of GPU.", schemaDeviceType},
	gaugePowerUsage:    {MetricPowerUsage, "Power usage of GPU.", schemaDevice},
	gaugePowerState:    {MetricPowerState, "Power state of GPU.", schemaDevice},
	gaugeGraphicsClock: {MetricGraphicsClock, "Graphics clock of GPU.", schemaDevice},
	gaugeMemoryClock:   {MetricMemoryClock, "Memory clock of GPU.", schemaDevice},
	gaugePowerDraw:     {MetricPowerDraw, "Power draw of GPU.", schemaDevice},
	gaugeBAR1Memory:    {MetricBAR1Memory, "BAR1 memory of GPU.", schemaDeviceType},
	gaugeUtilization:   {MetricUtilization, "Utilization of GPU.", schemaDeviceType},
}

// gaugeSet owns the declared vecs.
type gaugeSet [numGauges]*prometheus.GaugeVec

func newGaugeSet() gaugeSet {
	var gs gaugeSet
	for id, spec := range gaugeTable {
		gs[id] = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: spec.name,
			Help: spec.help,
		}, spec.schema.labelNames())
	}
	return gs
}

// register declares every gauge on reg. On failure the gauges registered so
// far are unregistered again so the sink is left as it was found.
func (gs *gaugeSet) register(reg prometheus.Registerer) error {
	for id, vec := range gs {
		if err := reg.Register(vec); err != nil {
			for prev := 0; prev < id; prev++ {
				reg.Unregister(gs[prev])
			}
			return &declareError{name: gaugeTable[id].name, err: err}
		}
	}
	return nil
}

// deviceLabels are the label values shared by every series of one device.
type deviceLabels struct {
	cardID   string
	cardName string
}

func newDeviceLabels(index int, name string) deviceLabels {
	return deviceLabels{cardID: strconv.Itoa(index), cardName: name}
}

// set writes a gauge with the {card_id, card_name} schema.
func (gs *gaugeSet) set(id gaugeID, l deviceLabels, v float64) {
	gs[id].WithLabelValues(l.cardID, l.cardName).Set(v)
}

// setTyped writes a gauge with the {card_id, card_name, type} schema.
func (gs *gaugeSet) setTyped(id gaugeID, l deviceLabels, typ string, v float64) {
	gs[id].WithLabelValues(l.cardID, l.cardName, typ).Set(v)
}

type declareError struct {
	name string
	err  error
}

func (e *declareError) Error() string {
	return "declare gauge " + e.name + ": " + e.err.Error()
}

func (e *declareError) Unwrap() error { return e.err }
