// Package nvml implements device.Capability with the NVIDIA Management
// Library through github.com/NVIDIA/go-nvml.
//
// NVML is loaded with dlopen at Init time, so binaries built from this package
// start on hosts without a driver; Init then fails and the exporter disables
// GPU collection. Build with the nonvml tag to drop the cgo dependency
// entirely.
package nvml
