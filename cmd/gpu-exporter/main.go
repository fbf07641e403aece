package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/KimMachineGun/automemlimit"
	_ "go.uber.org/automaxprocs"

	"github.com/kubeadapt/gpu-exporter/internal/agent"
	"github.com/kubeadapt/gpu-exporter/internal/collector/gpu"
	"github.com/kubeadapt/gpu-exporter/internal/config"
	"github.com/kubeadapt/gpu-exporter/internal/device"
	nvmldevice "github.com/kubeadapt/gpu-exporter/internal/device/nvml"
	"github.com/kubeadapt/gpu-exporter/internal/errors"
	"github.com/kubeadapt/gpu-exporter/internal/health"
	"github.com/kubeadapt/gpu-exporter/internal/observability"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// 1. Load and validate config.
	cfg := config.Load()
	cfg.Version = version
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	// 2. Create context with signal handling.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		slog.Info("shutdown signal received", "signal", sig)
		cancel()
	}()

	slog.Info("gpu-exporter starting",
		"version", cfg.Version,
		"instance_id", cfg.InstanceID,
		"port", cfg.Port,
		"poll_interval", cfg.PollInterval,
	)

	// 3. Create shared infrastructure.
	metrics := observability.NewMetrics()
	metrics.SetBuildInfo(cfg.Version, cfg.InstanceID)
	errCollector := errors.NewErrorCollectorWithTTL(errors.RealClock{}, cfg.ErrorTTL)
	sm := agent.NewStateMachine(errors.RealClock{})

	// 4. Select the device capability and run the initialization protocol.
	capability := newCapability(cfg)
	collector := gpu.NewCollector(capability, metrics.Registry,
		gpu.WithErrorCollector(errCollector),
		gpu.WithMetrics(metrics),
	)
	if collector.Initialized() {
		slog.Info("gpu collection enabled")
	} else {
		slog.Warn("gpu collection disabled", "error", collector.InitErr())
	}

	// 5. Create agent and start health server.
	ag := agent.NewAgent(&cfg, collector, sm, metrics)

	healthSrv := health.NewServer(cfg.Port, metrics, ag, ag, errCollector, ag,
		cfg.DebugEndpoints, cfg.MetricsCompression)
	if err := healthSrv.Start(); err != nil {
		slog.Error("failed to start health server", "error", err)
		os.Exit(1)
	}
	slog.Info("serving metrics", "addr", healthSrv.Addr(), "gzip", cfg.MetricsCompression)

	// 6. Run agent (blocks until context is canceled).
	if err := ag.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("agent exited with error", "error", err)
	}

	// 7. Graceful shutdown.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := healthSrv.Stop(shutdownCtx); err != nil {
		slog.Error("health server shutdown error", "error", err)
	}

	if collector.Initialized() {
		if err := capability.Shutdown(); err != nil {
			slog.Warn("device capability shutdown error", "error", err)
		}
	}

	slog.Info("gpu-exporter stopped")
}

func newCapability(cfg config.Config) device.Capability {
	if cfg.FakeDevices > 0 {
		slog.Warn("serving synthetic devices", "count", cfg.FakeDevices)
		return device.NewFakeFleet(cfg.FakeDevices)
	}
	return nvmldevice.NewProvider(cfg.NVMLLibraryPath)
}
