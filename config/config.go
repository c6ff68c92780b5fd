// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"gopkg.in/yaml.v3"
	"k8s.io/utils/ptr"
)

// Config represents the complete application configuration
type (
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	}
	Host struct {
		SysFS  string `yaml:"sysfs"`
		ProcFS string `yaml:"procfs"`
	}

	// Rapl configuration
	Rapl struct {
		Zones []string `yaml:"zones"`
	}

	// Development mode settings; disabled by default
	Dev struct {
		FakeCpuMeter struct {
			Enabled *bool    `yaml:"enabled"`
			Zones   []string `yaml:"zones"`
		} `yaml:"fake-cpu-meter"`
	}

	Monitor struct {
		Interval    time.Duration `yaml:"interval"`    // Interval between two reads of every domain
		ReadTimeout time.Duration `yaml:"readTimeout"` // Upper bound of a single counter read; 0 to disable

		// Rescan re-enumerates RAPL domains on every tick so that domains
		// appearing or disappearing at runtime are picked up
		Rescan *bool `yaml:"rescan"`

		// MaxParallelReads is the number of domains read concurrently; 1 reads
		// domains one after the other
		MaxParallelReads int `yaml:"maxParallelReads"`
	}

	Display struct {
		// Redraw refreshes the table in place when stdout is a terminal
		Redraw *bool `yaml:"redraw"`
	}

	Config struct {
		Log     Log     `yaml:"log"`
		Host    Host    `yaml:"host"`
		Monitor Monitor `yaml:"monitor"`
		Rapl    Rapl    `yaml:"rapl"`
		Display Display `yaml:"display"`
		Dev     Dev     `yaml:"dev"` // WARN: do not expose dev settings as flags
	}
)

type SkipValidation int

const (
	SkipHostValidation SkipValidation = 1
)

const (
	// Flags
	LogLevelFlag  = "log.level"
	LogFormatFlag = "log.format"

	HostSysFSFlag  = "host.sysfs"
	HostProcFSFlag = "host.procfs"

	MonitorIntervalFlag         = "monitor.interval"
	MonitorReadTimeoutFlag      = "monitor.read-timeout"
	MonitorRescanFlag           = "monitor.rescan"
	MonitorMaxParallelReadsFlag = "monitor.max-parallel-reads"

	// RAPL
	RaplZones = "rapl.zones" // not a flag

	DisplayRedrawFlag = "display.redraw"

	// NOTE: not a flag
	DevFakeCpuMeter = "dev.fake-cpu-meter"

// WARN:  dev settings shouldn't be exposed as flags as flags are intended for end users
)

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	cfg := &Config{
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Host: Host{
			SysFS:  "/sys",
			ProcFS: "/proc",
		},
		Rapl: Rapl{
			Zones: []string{},
		},
		Monitor: Monitor{
			Interval:         1 * time.Second,
			ReadTimeout:      500 * time.Millisecond,
			Rescan:           ptr.To(false),
			MaxParallelReads: 1,
		},
		Display: Display{
			Redraw: ptr.To(true),
		},
	}

	cfg.Dev.FakeCpuMeter.Enabled = ptr.To(false)
	return cfg
}

// Load loads configuration from an io.Reader
func Load(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.sanitize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// FromFile loads configuration from a file
func FromFile(filePath string) (cfg *Config, errRet error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil && errRet == nil {
			errRet = err
		}
	}()

	return Load(file)
}

// FromFiles loads the first file like FromFile and layers every following
// file over it with a Builder. Values set in a later file override earlier
// ones; zero values in a later file are ignored.
func FromFiles(paths ...string) (*Config, error) {
	if len(paths) == 0 {
		return DefaultConfig(), nil
	}

	cfg, err := FromFile(paths[0])
	if err != nil {
		return nil, err
	}
	if len(paths) == 1 {
		return cfg, nil
	}

	overlays := make([]string, 0, len(paths)-1)
	for _, path := range paths[1:] {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		overlays = append(overlays, string(data))
	}
	return (&Builder{}).Use(cfg).Merge(overlays...).Build()
}

type ConfigUpdaterFn func(*Config) error

// RegisterFlags registers command-line flags with kingpin app
// and returns ConfigUpdaterFn that updates the config from parsed flags
// as command line arguments override config file settings
func RegisterFlags(app *kingpin.Application) ConfigUpdaterFn {
	// track flags that were explicitly set
	flagsSet := map[string]bool{}

	app.PreAction(func(ctx *kingpin.ParseContext) error {
		// Clear the map in case this function is called multiple times
		flagsSet = map[string]bool{}

		for _, element := range ctx.Elements {
			if flag, ok := element.Clause.(*kingpin.FlagClause); ok && element.Value != nil {
				flagsSet[flag.Model().Name] = true
			}
		}
		return nil
	})

	// Logging
	logLevel := app.Flag(LogLevelFlag, "Logging level: debug, info, warn, error").Default("info").Enum("debug", "info", "warn", "error")
	logFormat := app.Flag(LogFormatFlag, "Logging format: text or json").Default("text").Enum("text", "json")
	// host
	hostSysFS := app.Flag(HostSysFSFlag, "Host sysfs path").Default("/sys").ExistingDir()
	hostProcFS := app.Flag(HostProcFSFlag, "Host procfs path").Default("/proc").ExistingDir()

	// monitor
	monitorInterval := app.Flag(MonitorIntervalFlag,
		"Interval between two reads of the RAPL energy counters").Default("1s").Duration()
	monitorReadTimeout := app.Flag(MonitorReadTimeoutFlag,
		"Maximum time a single energy counter read may take; 0 to disable").Default("500ms").Duration()
	monitorRescan := app.Flag(MonitorRescanFlag,
		"Re-discover RAPL domains on every interval").Default("false").Bool()
	monitorMaxParallelReads := app.Flag(MonitorMaxParallelReadsFlag,
		"Number of RAPL domains read concurrently").Default("1").Int()

	// display
	displayRedraw := app.Flag(DisplayRedrawFlag,
		"Redraw the table in place when stdout is a terminal").Default("true").Bool()

	return func(cfg *Config) error {
		// Logging settings
		if flagsSet[LogLevelFlag] {
			cfg.Log.Level = *logLevel
		}

		if flagsSet[LogFormatFlag] {
			cfg.Log.Format = *logFormat
		}

		if flagsSet[HostSysFSFlag] {
			cfg.Host.SysFS = *hostSysFS
		}

		if flagsSet[HostProcFSFlag] {
			cfg.Host.ProcFS = *hostProcFS
		}

		// monitor settings
		if flagsSet[MonitorIntervalFlag] {
			cfg.Monitor.Interval = *monitorInterval
		}
		if flagsSet[MonitorReadTimeoutFlag] {
			cfg.Monitor.ReadTimeout = *monitorReadTimeout
		}
		if flagsSet[MonitorRescanFlag] {
			cfg.Monitor.Rescan = monitorRescan
		}
		if flagsSet[MonitorMaxParallelReadsFlag] {
			cfg.Monitor.MaxParallelReads = *monitorMaxParallelReads
		}

		if flagsSet[DisplayRedrawFlag] {
			cfg.Display.Redraw = displayRedraw
		}

		cfg.sanitize()
		return cfg.Validate()
	}
}

func (c *Config) sanitize() {
	c.Log.Level = strings.TrimSpace(c.Log.Level)
	c.Log.Format = strings.TrimSpace(c.Log.Format)
	c.Host.SysFS = strings.TrimSpace(c.Host.SysFS)
	c.Host.ProcFS = strings.TrimSpace(c.Host.ProcFS)

	for i := range c.Rapl.Zones {
		c.Rapl.Zones[i] = strings.TrimSpace(c.Rapl.Zones[i])
	}
	for i := range c.Dev.FakeCpuMeter.Zones {
		c.Dev.FakeCpuMeter.Zones[i] = strings.TrimSpace(c.Dev.FakeCpuMeter.Zones[i])
	}
}

// Validate checks for configuration errors
func (c *Config) Validate(skips ...SkipValidation) error {
	skipped := make(map[SkipValidation]bool, len(skips))
	for _, v := range skips {
		skipped[v] = true
	}

	var errs []string
	errs = append(errs, c.Log.validate()...)
	if !skipped[SkipHostValidation] {
		errs = append(errs, c.Host.validate()...)
	}
	errs = append(errs, c.Rapl.validate()...)
	errs = append(errs, c.Monitor.validate()...)

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, ", "))
	}
	return nil
}

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

func (l Log) validate() []string {
	var errs []string
	if !slices.Contains(logLevels, l.Level) {
		errs = append(errs, fmt.Sprintf("invalid log level: %s", l.Level))
	}
	if !slices.Contains(logFormats, l.Format) {
		errs = append(errs, fmt.Sprintf("invalid log format: %s", l.Format))
	}
	return errs
}

func (h Host) validate() []string {
	var errs []string
	if err := canReadDir(h.SysFS); err != nil {
		errs = append(errs, fmt.Sprintf("invalid sysfs path: %s: %s", h.SysFS, err))
	}
	if err := canReadDir(h.ProcFS); err != nil {
		errs = append(errs, fmt.Sprintf("invalid procfs path: %s: %s", h.ProcFS, err))
	}
	return errs
}

func (r Rapl) validate() []string {
	if slices.Contains(r.Zones, "") {
		return []string{"rapl zone name cannot be empty"}
	}
	return nil
}

func (m Monitor) validate() []string {
	var errs []string
	if m.Interval <= 0 {
		errs = append(errs, fmt.Sprintf("invalid monitor interval: %s must be positive", m.Interval))
	}
	if m.ReadTimeout < 0 {
		errs = append(errs, fmt.Sprintf("invalid monitor read timeout: %s can't be negative", m.ReadTimeout))
	}
	if m.MaxParallelReads < 1 {
		errs = append(errs, fmt.Sprintf("invalid monitor max parallel reads: %d must be at least 1", m.MaxParallelReads))
	}
	return errs
}

func canReadDir(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}

	defer func() {
		// ignored on purpose
		_ = f.Close()
	}()

	_, err = f.ReadDir(1)
	if err != nil {
		return err
	}

	return nil
}

func (c *Config) String() string {
	bytes, err := yaml.Marshal(c)
	if err == nil {
		return string(bytes)
	}
	// NOTE:  this code path should not happen but if it does (i.e if yaml marshal) fails
	// for some reason, manually build the string
	return c.manualString()
}

func (c *Config) manualString() string {
	cfgs := []struct {
		Name  string
		Value string
	}{
		{LogLevelFlag, c.Log.Level},
		{LogFormatFlag, c.Log.Format},
		{HostSysFSFlag, c.Host.SysFS},
		{HostProcFSFlag, c.Host.ProcFS},
		{MonitorIntervalFlag, c.Monitor.Interval.String()},
		{MonitorReadTimeoutFlag, c.Monitor.ReadTimeout.String()},
		{MonitorRescanFlag, fmt.Sprintf("%v", ptr.Deref(c.Monitor.Rescan, false))},
		{MonitorMaxParallelReadsFlag, fmt.Sprintf("%d", c.Monitor.MaxParallelReads)},
		{RaplZones, strings.Join(c.Rapl.Zones, ", ")},
		{DisplayRedrawFlag, fmt.Sprintf("%v", ptr.Deref(c.Display.Redraw, true))},
		{DevFakeCpuMeter, fmt.Sprintf("%v", ptr.Deref(c.Dev.FakeCpuMeter.Enabled, false))},
	}
	sb := strings.Builder{}

	for _, cfg := range cfgs {
		sb.WriteString(cfg.Name)
		sb.WriteString(": ")
		sb.WriteString(cfg.Value)
		sb.WriteString("\n")
	}

	return sb.String()
}
