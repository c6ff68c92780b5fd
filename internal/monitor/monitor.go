// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sustainable-computing-io/raplstat/internal/device"
	"github.com/sustainable-computing-io/raplstat/internal/metrics"
	"github.com/sustainable-computing-io/raplstat/internal/service"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"
)

type PowerDataProvider interface {
	// Snapshot returns a copy of the most recent power data
	Snapshot() (*Snapshot, error)

	// DomainNames returns the labels of the monitored RAPL domains
	DomainNames() []string
}

// Sink consumes the snapshot produced by every tick. Snapshots handed to a
// sink are shared and must not be modified.
type Sink interface {
	Present(*Snapshot) error
}

// Service defines the interface for the power monitoring service
type Service interface {
	service.Service
	PowerDataProvider
}

// PowerMonitor samples the energy counters of all RAPL domains at a fixed
// interval and derives power statistics from them
type PowerMonitor struct {
	// passed externally
	logger *slog.Logger
	cpu    device.CPUPowerMeter
	reader *device.CounterReader
	sinks  []Sink

	interval         time.Duration
	clock            clock.WithTicker
	rescan           bool
	maxParallelReads int

	// owned by the sampling loop
	domains  []device.Domain
	samples  map[string]device.RawSample
	metrics  map[string]*metrics.DomainMetrics
	readErrs map[string]error

	domainNames atomic.Pointer[[]string]
	snapshot    atomic.Pointer[Snapshot]
}

var (
	_ Service             = (*PowerMonitor)(nil)
	_ service.Initializer = (*PowerMonitor)(nil)
	_ service.Runner      = (*PowerMonitor)(nil)
)

// NewPowerMonitor creates a new PowerMonitor instance
func NewPowerMonitor(meter device.CPUPowerMeter, applyOpts ...OptionFn) *PowerMonitor {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	monitor := &PowerMonitor{
		logger: opts.logger.With("service", "monitor"),
		cpu:    meter,
		reader: device.NewCounterReader(
			device.WithReadClock(opts.clock),
			device.WithReadTimeout(opts.readTimeout),
		),
		sinks:            opts.sinks,
		interval:         opts.interval,
		clock:            opts.clock,
		rescan:           opts.rescan,
		maxParallelReads: opts.maxParallelReads,
		samples:          map[string]device.RawSample{},
		metrics:          map[string]*metrics.DomainMetrics{},
		readErrs:         map[string]error{},
	}

	return monitor
}

func (pm *PowerMonitor) Name() string {
	return "monitor"
}

func (pm *PowerMonitor) Init() error {
	if pm.interval <= 0 {
		return fmt.Errorf("invalid sampling interval %s", pm.interval)
	}
	if err := pm.initDomains(); err != nil {
		return fmt.Errorf("domain initialization failed: %w", err)
	}
	return nil
}

// Run samples all domains immediately and then once per interval until ctx
// is cancelled. It returns an error only when domain enumeration fails.
func (pm *PowerMonitor) Run(ctx context.Context) error {
	pm.logger.Info("Monitor is running...", "interval", pm.interval, "domains", len(pm.domains))
	defer pm.logger.Info("Monitor has terminated.")

	if err := pm.refresh(ctx); err != nil {
		return err
	}

	ticker := pm.clock.NewTicker(pm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C():
			if err := pm.refresh(ctx); err != nil {
				return err
			}
		}
	}
}

func (pm *PowerMonitor) DomainNames() []string {
	names := pm.domainNames.Load()
	if names == nil {
		return nil
	}
	return *names
}

func (pm *PowerMonitor) Snapshot() (*Snapshot, error) {
	snapshot := pm.snapshot.Load()
	if snapshot == nil {
		return nil, fmt.Errorf("no snapshot available yet")
	}
	return snapshot.Clone(), nil
}

func (pm *PowerMonitor) initDomains() error {
	domains, err := pm.cpu.Domains()
	if err != nil {
		return err
	}
	pm.setDomains(domains)
	return nil
}

func (pm *PowerMonitor) setDomains(domains []device.Domain) {
	pm.domains = domains
	names := make([]string, len(domains))
	for i, d := range domains {
		names[i] = d.Label
	}
	pm.domainNames.Store(&names)
}

// rescanDomains merges the currently listed domains into the known set.
// Known domains that are still listed are kept as they are, even when their
// counter can not be read, so that their reads fail and their state is kept.
// Only domains no longer listed are removed along with their state. New
// domains are added once their counter can be read. A failed listing keeps
// the known set; a listing without any zone is returned as ErrNoDomainsFound.
func (pm *PowerMonitor) rescanDomains() error {
	listed, err := pm.cpu.ListDomains()
	switch {
	case errors.Is(err, device.ErrNoDomainsFound):
		return fmt.Errorf("domain rescan failed: %w", err)
	case err != nil:
		pm.logger.Warn("Failed to rescan RAPL domains, keeping known domains", "error", err)
		return nil
	}

	known := make(map[string]device.Domain, len(pm.domains))
	for _, d := range pm.domains {
		known[d.Label] = d
	}
	listedLabels := make(map[string]bool, len(listed))

	domains := make([]device.Domain, 0, len(listed))
	for _, d := range listed {
		listedLabels[d.Label] = true
		if k, ok := known[d.Label]; ok {
			// keeps the wraparound range captured at discovery
			domains = append(domains, k)
			continue
		}
		if err := d.CanRead(); err != nil {
			pm.logger.Debug("Ignoring unreadable new RAPL domain", "domain", d.Label, "error", err)
			continue
		}
		pm.logger.Info("RAPL domain added", "domain", d.Label, "path", d.Zone.Path())
		domains = append(domains, d)
	}

	for _, d := range pm.domains {
		if listedLabels[d.Label] {
			continue
		}
		pm.logger.Info("RAPL domain removed", "domain", d.Label)
		delete(pm.samples, d.Label)
		delete(pm.metrics, d.Label)
		delete(pm.readErrs, d.Label)
	}

	if len(domains) == 0 {
		return fmt.Errorf("domain rescan failed: %w", device.ErrNoDomainsFound)
	}
	pm.setDomains(domains)
	return nil
}

type readResult struct {
	sample device.RawSample
	err    error
}

// readAll reads every known domain. Each result is written to the slot of
// its domain.
func (pm *PowerMonitor) readAll(ctx context.Context) []readResult {
	results := make([]readResult, len(pm.domains))

	if pm.maxParallelReads < 2 {
		for i, d := range pm.domains {
			results[i].sample, results[i].err = pm.reader.Read(ctx, d)
		}
		return results
	}

	var g errgroup.Group
	g.SetLimit(pm.maxParallelReads)
	for i, d := range pm.domains {
		g.Go(func() error {
			results[i].sample, results[i].err = pm.reader.Read(ctx, d)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// refresh performs one tick: read all domains, update their metrics and
// publish a new snapshot
func (pm *PowerMonitor) refresh(ctx context.Context) error {
	started := pm.clock.Now()

	if pm.rescan {
		if err := pm.rescanDomains(); err != nil {
			return err
		}
	}

	results := pm.readAll(ctx)
	if ctx.Err() != nil {
		// cancelled mid-tick; reads may have been cut short
		return nil
	}

	for i, d := range pm.domains {
		pm.update(d.Label, results[i])
	}

	snapshot := pm.buildSnapshot()
	pm.snapshot.Store(snapshot)
	pm.logger.Debug("Refreshed snapshot",
		"domains", len(snapshot.Domains),
		"duration", pm.clock.Since(started))

	for _, s := range pm.sinks {
		if err := s.Present(snapshot); err != nil {
			pm.logger.Warn("Failed to present snapshot", "error", err)
		}
	}
	return nil
}

// update applies one read result to the state of a domain
func (pm *PowerMonitor) update(label string, res readResult) {
	if res.err != nil {
		if pm.readErrs[label] == nil {
			pm.logger.Warn("Failed to read RAPL domain", "domain", label, "error", res.err)
		} else {
			pm.logger.Debug("RAPL domain still unreadable", "domain", label, "error", res.err)
		}
		pm.readErrs[label] = res.err
		return
	}

	if pm.readErrs[label] != nil {
		pm.logger.Info("RAPL domain readable again", "domain", label)
		delete(pm.readErrs, label)
	}

	prev, ok := pm.samples[label]
	pm.samples[label] = res.sample
	if !ok {
		pm.metrics[label] = &metrics.DomainMetrics{}
		return
	}

	if err := pm.metrics[label].Update(prev, res.sample); err != nil {
		switch {
		case errors.Is(err, metrics.ErrClockAnomaly):
			pm.logger.Debug("Skipping power update", "domain", label, "reason", err)
		default:
			pm.logger.Warn("Skipping power update", "domain", label, "reason", err)
		}
	}
}

func (pm *PowerMonitor) buildSnapshot() *Snapshot {
	snapshot := NewSnapshot()
	snapshot.Timestamp = pm.clock.Now()
	snapshot.Domains = make([]DomainSnapshot, 0, len(pm.domains))

	for _, d := range pm.domains {
		ds := DomainSnapshot{
			Name:      d.Label,
			Parent:    d.Parent,
			Path:      d.Zone.Path(),
			Available: pm.readErrs[d.Label] == nil,
			Err:       pm.readErrs[d.Label],
		}
		if m, ok := pm.metrics[d.Label]; ok {
			ds.Power = m.LastPower
			ds.EnergyTotal = m.EnergyTotal
			ds.AveragePower = m.AveragePower()
			ds.MaxPower = m.MaxPower
			ds.Samples = m.Samples
		}
		snapshot.Domains = append(snapshot.Domains, ds)
	}
	return snapshot
}
