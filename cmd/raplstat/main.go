// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/sustainable-computing-io/raplstat/config"
	"github.com/sustainable-computing-io/raplstat/internal/device"
	"github.com/sustainable-computing-io/raplstat/internal/exporter/stdout"
	"github.com/sustainable-computing-io/raplstat/internal/logger"
	"github.com/sustainable-computing-io/raplstat/internal/monitor"
	"github.com/sustainable-computing-io/raplstat/internal/service"
	"github.com/sustainable-computing-io/raplstat/internal/version"
	"k8s.io/utils/ptr"
)

func main() {
	// parse args and config and exit with error if there is an error
	cfg, err := parseArgsAndConfig()
	if err != nil {
		os.Exit(1)
	}

	// stdout carries the table; logs go to stderr
	logger := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	logVersionInfo(logger)
	printConfigInfo(os.Stderr, logger, cfg)

	services, err := createServices(logger, cfg, os.Stdout)
	if err != nil {
		logger.Error("failed to create services", "error", err)
		os.Exit(1)
	}

	if err := service.Init(logger, services); err != nil {
		logger.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}

	logger.Info("Starting raplstat")
	if err := service.Run(context.Background(), logger, services); err != nil {
		logger.Error("raplstat terminated with an error", "error", err)
		os.Exit(1)
	}
	logger.Info("Graceful shutdown completed")
}

func logVersionInfo(logger *slog.Logger) {
	v := version.Info()
	logger.Info("raplstat version information",
		"version", v.Version,
		"buildTime", v.BuildTime,
		"gitBranch", v.GitBranch,
		"gitCommit", v.GitCommit,
		"goVersion", v.GoVersion,
		"goOS", v.GoOS,
		"goArch", v.GoArch,
	)
}

func parseArgsAndConfig() (*config.Config, error) {
	const appName = "raplstat"
	app := kingpin.New(appName, "Live RAPL power consumption of the CPU packages and their sub-domains.")
	app.Version(version.Info().String())

	configFiles := app.Flag("config.file",
		"Path to YAML configuration file; repeat to layer files, later files override earlier ones").Strings()
	updateConfig := config.RegisterFlags(app)
	kingpin.MustParse(app.Parse(os.Args[1:]))

	logger := logger.New("info", "text", os.Stderr)
	if len(*configFiles) > 0 {
		logger.Info("Loading configuration files", "paths", *configFiles)
	}
	cfg, err := config.FromFiles(*configFiles...)
	if err != nil {
		logger.Error("Error loading config file", "error", err.Error())
		return nil, err
	}

	// Apply command line flags (these override config file settings)
	if err := updateConfig(cfg); err != nil {
		logger.Error("Error applying command line flags", "error", err.Error())
		return nil, err
	}

	return cfg, nil
}

func printConfigInfo(w io.Writer, logger *slog.Logger, cfg *config.Config) {
	if !logger.Enabled(context.Background(), slog.LevelDebug) || cfg.Log.Format == "json" {
		return
	}

	fmt.Fprintf(w, `
Configuration
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
%s
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
`, cfg)
}

func createServices(logger *slog.Logger, cfg *config.Config, out io.WriteCloser) ([]service.Service, error) {
	logger.Debug("Creating all services")

	cpuPowerMeter, err := createCPUMeter(logger, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create CPU power meter: %w", err)
	}

	table := stdout.NewExporter(
		stdout.WithLogger(logger),
		stdout.WithOutput(out),
		stdout.WithProcFSPath(cfg.Host.ProcFS),
		stdout.WithRedraw(ptr.Deref(cfg.Display.Redraw, true)),
	)

	pm := monitor.NewPowerMonitor(
		cpuPowerMeter,
		monitor.WithLogger(logger),
		monitor.WithInterval(cfg.Monitor.Interval),
		monitor.WithReadTimeout(cfg.Monitor.ReadTimeout),
		monitor.WithRescan(ptr.Deref(cfg.Monitor.Rescan, false)),
		monitor.WithMaxParallelReads(cfg.Monitor.MaxParallelReads),
		monitor.WithSinks(table),
	)

	// the meter is initialized first and shut down last
	return []service.Service{
		cpuPowerMeter,
		table,
		pm,
		service.NewSignalHandler(logger, os.Interrupt, syscall.SIGTERM),
	}, nil
}

type cpuPowerMeter interface {
	device.CPUPowerMeter
	service.Initializer
	service.Shutdowner
}

func createCPUMeter(logger *slog.Logger, cfg *config.Config) (cpuPowerMeter, error) {
	if ptr.Deref(cfg.Dev.FakeCpuMeter.Enabled, false) {
		logger.Warn("Using fake CPU power meter")
		return device.NewFakeCPUMeter(cfg.Dev.FakeCpuMeter.Zones, device.WithFakeLogger(logger))
	}

	return device.NewCPUPowerMeter(
		cfg.Host.SysFS,
		device.WithRaplLogger(logger),
		device.WithZoneFilter(cfg.Rapl.Zones),
	), nil
}
