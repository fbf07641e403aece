// Package gpu implements the GPU collector: it enumerates devices through a
// device.Capability on every pass and republishes their counters as labeled
// Prometheus gauges.
//
// Gauges are declared once, when the collector is constructed, from a static
// table. Each pass overwrites values in place and never deletes series, so a
// failed read leaves the last good value exposed. Failures are isolated at
// the narrowest scope possible: a counter read failure skips that counter, a
// handle failure skips that device, and an enumeration failure skips the
// pass. None of them escape Execute.
//
// Label values come from the device itself (its reported index and name),
// never from the enumeration ordinal.
package gpu
