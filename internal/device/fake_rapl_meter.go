// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"fmt"
	"log/slog"
	"math/rand"
	"path/filepath"
	"sync"
)

// NOTE: This fake meter is not intended to be used in production and is for testing only
var defaultFakeZones = []Zone{ZonePackage, ZoneCore, ZoneDRAM}

const (
	defaultRaplPath = "/sys/class/powercap"

	// small enough that a wraparound happens within a few minutes
	defaultFakeMaxEnergy = 100 * Joule
)

// fakeZoneLayout maps a zone name to its powercap directory and the mean
// energy added per read
var fakeZoneLayout = map[Zone]struct {
	dir       string
	increment Energy
}{
	ZonePackage: {"intel-rapl:0", 12 * Joule},
	ZoneCore:    {"intel-rapl:0:0", 8 * Joule},
	ZoneDRAM:    {"intel-rapl:0:1", 5 * Joule},
	ZoneUncore:  {"intel-rapl:0:2", 2 * Joule},
	ZonePSys:    {"intel-rapl:1", 20 * Joule},
}

// fakeEnergyZone implements the EnergyZone interface
type fakeEnergyZone struct {
	name      string
	index     int
	path      string
	energy    Energy
	maxEnergy Energy
	mu        sync.Mutex

	// For generating fake values
	increment    Energy
	randomFactor float64
}

var _ EnergyZone = (*fakeEnergyZone)(nil)

// Name returns the zone name
func (z *fakeEnergyZone) Name() string {
	return z.name
}

// Index returns the index of the zone
func (z *fakeEnergyZone) Index() int {
	return z.index
}

// Path returns the path from which the energy usage value ie being read
func (z *fakeEnergyZone) Path() string {
	return z.path
}

// Energy advances and returns the fake counter, wrapping at maxEnergy
func (z *fakeEnergyZone) Energy() (Energy, error) {
	z.mu.Lock()
	defer z.mu.Unlock()

	randomComponent := Energy(rand.Float64() * float64(z.increment) * z.randomFactor)
	z.energy = (z.energy + z.increment + randomComponent) % z.maxEnergy

	return z.energy, nil
}

// MaxEnergy returns the maximum value of energy usage that can be read.
func (z *fakeEnergyZone) MaxEnergy() Energy {
	return z.maxEnergy
}

// fakeRaplReader implements raplReader with synthetic zones
type fakeRaplReader struct {
	zones []EnergyZone
}

var _ raplReader = (*fakeRaplReader)(nil)

func (r *fakeRaplReader) Name() string {
	return "fake"
}

func (r *fakeRaplReader) Init() error {
	return nil
}

func (r *fakeRaplReader) Zones() ([]EnergyZone, error) {
	return r.zones, nil
}

func (r *fakeRaplReader) Close() error {
	return nil
}

type fakeMeterOpts struct {
	basePath  string
	maxEnergy Energy
	logger    *slog.Logger
}

// FakeOptFn is a functional option for configuring the fake meter
type FakeOptFn func(*fakeMeterOpts)

// WithFakePath sets the base device path for the fake meter
func WithFakePath(path string) FakeOptFn {
	return func(o *fakeMeterOpts) {
		o.basePath = path
	}
}

// WithFakeMaxEnergy sets the maximum energy value before wrap-around
func WithFakeMaxEnergy(e Energy) FakeOptFn {
	return func(o *fakeMeterOpts) {
		o.maxEnergy = e
	}
}

// WithFakeLogger sets the logger for the fake meter
func WithFakeLogger(l *slog.Logger) FakeOptFn {
	return func(o *fakeMeterOpts) {
		o.logger = l
	}
}

// NewFakeCPUMeter creates a CPU power meter serving synthetic RAPL zones.
// Zone names are package, core, dram, uncore and psys.
func NewFakeCPUMeter(zones []string, opts ...FakeOptFn) (*raplPowerMeter, error) {
	o := fakeMeterOpts{
		basePath:  defaultRaplPath,
		maxEnergy: defaultFakeMaxEnergy,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	if o.maxEnergy == 0 {
		return nil, fmt.Errorf("fake max energy must be positive")
	}

	// nil and empty slices are equivalent
	if len(zones) == 0 {
		zones = defaultFakeZones
	}

	reader := &fakeRaplReader{zones: make([]EnergyZone, 0, len(zones))}
	for _, name := range zones {
		layout, ok := fakeZoneLayout[name]
		if !ok {
			return nil, fmt.Errorf("unknown fake zone %q", name)
		}
		reader.zones = append(reader.zones, &fakeEnergyZone{
			name:         name,
			path:         filepath.Join(o.basePath, layout.dir),
			maxEnergy:    o.maxEnergy,
			increment:    layout.increment,
			randomFactor: 0.5,
		})
	}

	return NewCPUPowerMeter(o.basePath,
		WithRaplReader(reader),
		WithRaplLogger(o.logger),
	), nil
}
