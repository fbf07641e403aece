package gpu

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kubeadapt/gpu-exporter/internal/device"
	"github.com/kubeadapt/gpu-exporter/internal/errors"
	"github.com/kubeadapt/gpu-exporter/internal/observability"
	"github.com/kubeadapt/gpu-exporter/pkg/model"
)

const component = "collector.gpu"

// Collector reads every counter of every enumerated GPU and writes them to
// the declared gauges. Execute must not be called concurrently; the caller
// serializes passes.
type Collector struct {
	capability device.Capability
	errs       *errors.ErrorCollector
	metrics    *observability.Metrics
	clock      errors.Clock

	initialized bool
	initErr     error
	gauges      gaugeSet

	lastPass atomic.Pointer[model.PassSummary]
}

// Option configures optional Collector dependencies.
type Option func(*Collector)

// WithErrorCollector records every failure in ec.
func WithErrorCollector(ec *errors.ErrorCollector) Option {
	return func(c *Collector) { c.errs = ec }
}

// WithMetrics records pass durations, results and failure counts in m.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Collector) { c.metrics = m }
}

// WithClock overrides the clock used for pass timestamps.
func WithClock(clock errors.Clock) Option {
	return func(c *Collector) { c.clock = clock }
}

// NewCollector initializes capability and, on success, declares all gauges
// on sink. If either step fails the collector is permanently disabled:
// Execute becomes a no-op and initialization is not retried.
func NewCollector(capability device.Capability, sink prometheus.Registerer, opts ...Option) *Collector {
	c := &Collector{
		capability: capability,
		clock:      errors.RealClock{},
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := capability.Init(); err != nil {
		c.disable(fmt.Errorf("initialize device capability: %w", err))
		return c
	}

	gauges := newGaugeSet()
	if err := gauges.register(sink); err != nil {
		c.disable(err)
		if sdErr := capability.Shutdown(); sdErr != nil {
			slog.Warn("failed to release device capability", "error", sdErr)
		}
		return c
	}

	c.gauges = gauges
	c.initialized = true
	slog.Debug("gpu collector initialized", "gauges", len(gaugeTable))
	return c
}

// Initialized reports whether the capability was acquired and gauges declared.
func (c *Collector) Initialized() bool { return c.initialized }

// InitErr returns the initialization failure, or nil.
func (c *Collector) InitErr() error { return c.initErr }

// LastPass returns the summary of the most recent pass, or nil before the
// first one.
func (c *Collector) LastPass() *model.PassSummary {
	return c.lastPass.Load()
}

// Execute performs one collection pass. It never fails: every error is
// logged and recorded at the scope it occurred in.
func (c *Collector) Execute() {
	if !c.initialized {
		return
	}
	pass := c.collect()
	c.lastPass.Store(&pass)
}

func (c *Collector) collect() model.PassSummary {
	start := c.clock.Now()
	pass := model.PassSummary{StartedAt: start.UnixMilli()}

	count, err := c.capability.Count()
	if err != nil {
		c.fail(errors.ErrEnumerationFailed, component, -1, "enumerate devices", err)
		pass.Result = observability.ResultAborted
		pass.Error = err.Error()
		c.finish(&pass, start)
		return pass
	}

	pass.DeviceCount = count
	pass.Devices = make([]model.DeviceReport, 0, count)
	for ordinal := 0; ordinal < count; ordinal++ {
		pass.Devices = append(pass.Devices, c.collectDevice(ordinal))
	}

	pass.Result = observability.ResultComplete
	if pass.FailedDevices() > 0 || pass.FailedQueries() > 0 {
		pass.Result = observability.ResultPartial
	}
	if c.metrics != nil {
		c.metrics.Devices.Set(float64(count))
	}
	c.finish(&pass, start)
	return pass
}

func (c *Collector) finish(pass *model.PassSummary, start time.Time) {
	elapsed := c.clock.Now().Sub(start)
	pass.DurationMillis = elapsed.Milliseconds()
	if c.metrics != nil {
		c.metrics.CollectionDuration.Observe(elapsed.Seconds())
		c.metrics.CollectionsTotal.WithLabelValues(pass.Result).Inc()
	}
	slog.Debug("gpu collector: pass complete",
		"result", pass.Result,
		"devices", pass.DeviceCount,
		"skipped_devices", pass.FailedDevices(),
		"failed_queries", pass.FailedQueries(),
	)
}

func (c *Collector) collectDevice(ordinal int) model.DeviceReport {
	report := model.DeviceReport{Ordinal: ordinal}
	deviceComponent := fmt.Sprintf("device/%d", ordinal)

	h, err := c.capability.Handle(ordinal)
	if err != nil {
		c.skipDevice(&report, deviceComponent, "acquire handle", err)
		return report
	}

	// Labels come from the handle, not the ordinal.
	index, err := h.Index()
	if err != nil {
		c.skipDevice(&report, deviceComponent, "read device index", err)
		return report
	}
	name, err := h.Name()
	if err != nil {
		c.skipDevice(&report, deviceComponent, "read device name", err)
		return report
	}
	labels := newDeviceLabels(index, name)
	report.CardID = labels.cardID
	report.CardName = labels.cardName

	for _, r := range scalarReads {
		v, err := r.read(h)
		if err != nil {
			c.queryFailed(&report, labels, r.query, err)
			continue
		}
		c.gauges.set(r.gauge, labels, v)
		report.Writes++
	}

	for _, r := range typedReads {
		values, err := r.read(h)
		if err != nil {
			c.queryFailed(&report, labels, r.query, err)
			continue
		}
		for _, tv := range values {
			c.gauges.setTyped(r.gauge, labels, tv.typ, tv.value)
			report.Writes++
		}
	}

	return report
}

func (c *Collector) skipDevice(report *model.DeviceReport, deviceComponent, what string, err error) {
	report.Skipped = true
	report.Error = err.Error()
	c.fail(errors.ErrDeviceUnavailable, deviceComponent, report.Ordinal, what, err)
}

func (c *Collector) queryFailed(report *model.DeviceReport, labels deviceLabels, query string, err error) {
	report.FailedQueries = append(report.FailedQueries, query)
	// Unsupported counters fail on every pass.
	level := slog.LevelWarn
	if stderrors.Is(err, device.ErrNotSupported) {
		level = slog.LevelDebug
	}
	slog.Log(context.Background(), level, "gpu query failed",
		"kind", errors.ErrQueryFailed,
		"device", report.Ordinal,
		"card_id", labels.cardID,
		"query", query,
		"error", err,
	)
	c.record(errors.CollectionError{
		Code:      errors.ErrQueryFailed,
		Message:   fmt.Sprintf("device %d: %s: %v", report.Ordinal, query, err),
		Component: fmt.Sprintf("device/%d:%s", report.Ordinal, query),
		Device:    report.Ordinal,
		Err:       err,
	})
}

func (c *Collector) disable(err error) {
	c.initialized = false
	c.initErr = err
	slog.Error("gpu collection disabled; restart the exporter to retry",
		"kind", errors.ErrCapabilityInitFailed,
		"error", err,
	)
	c.record(errors.CollectionError{
		Code:      errors.ErrCapabilityInitFailed,
		Message:   err.Error(),
		Component: component,
		Device:    -1,
		Err:       err,
	})
}

// fail logs and records a failure that is not tied to a single counter.
func (c *Collector) fail(code errors.Code, comp string, ordinal int, what string, err error) {
	attrs := []any{"kind", code, "error", err}
	if ordinal >= 0 {
		attrs = append(attrs, "device", ordinal)
	}
	slog.Warn("gpu collector: failed to "+what, attrs...)

	msg := fmt.Sprintf("%s: %v", what, err)
	if ordinal >= 0 {
		msg = fmt.Sprintf("device %d: %s", ordinal, msg)
	}
	c.record(errors.CollectionError{
		Code:      code,
		Message:   msg,
		Component: comp,
		Device:    ordinal,
		Err:       err,
	})
}

func (c *Collector) record(ce errors.CollectionError) {
	if c.metrics != nil {
		c.metrics.CollectionErrors.WithLabelValues(string(ce.Code)).Inc()
	}
	if c.errs != nil {
		ce.Timestamp = c.clock.Now().UnixMilli()
		c.errs.Report(ce)
	}
}
