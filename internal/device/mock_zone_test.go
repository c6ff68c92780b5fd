// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// MockRaplZone is an EnergyZone whose counter is set by the test
type MockRaplZone struct {
	mu        sync.Mutex
	energy    Energy
	energyErr error
	delay     time.Duration

	name      string
	index     int
	path      string
	maxEnergy Energy
}

var _ EnergyZone = (*MockRaplZone)(nil)

func NewMockRaplZone(name string, index int, path string, maxEnergy Energy) *MockRaplZone {
	return &MockRaplZone{
		name:      name,
		index:     index,
		path:      path,
		maxEnergy: maxEnergy,
	}
}

func (m *MockRaplZone) Index() int        { return m.index }
func (m *MockRaplZone) Path() string      { return m.path }
func (m *MockRaplZone) Name() string      { return m.name }
func (m *MockRaplZone) MaxEnergy() Energy { return m.maxEnergy }

func (m *MockRaplZone) Energy() (Energy, error) {
	m.mu.Lock()
	delay := m.delay
	e, err := m.energy, m.energyErr
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	return e, err
}

func (m *MockRaplZone) OnEnergy(e Energy, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.energy = e
	m.energyErr = err
}

// Stall makes every subsequent Energy call block for d
func (m *MockRaplZone) Stall(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// mockMaxZone is a MockRaplZone that can report a changed wraparound range
type mockMaxZone struct {
	*MockRaplZone
	currentMax Energy
	maxErr     error
}

var _ maxEnergyReader = (*mockMaxZone)(nil)

func (m *mockMaxZone) CurrentMaxEnergy() (Energy, error) {
	return m.currentMax, m.maxErr
}

// mockRaplReader serves a fixed list of zones
type mockRaplReader struct {
	name     string
	zones    []EnergyZone
	initErr  error
	zonesErr error
	closed   bool
}

func (r *mockRaplReader) Name() string { return r.name }
func (r *mockRaplReader) Init() error  { return r.initErr }
func (r *mockRaplReader) Close() error {
	r.closed = true
	return nil
}

func (r *mockRaplReader) Zones() ([]EnergyZone, error) {
	return r.zones, r.zonesErr
}

// sysfsZone describes one powercap zone directory written by writeSysFS
type sysfsZone struct {
	dir       string // e.g. intel-rapl:0:1
	name      string // contents of the name file, e.g. package-0
	energy    string // contents of energy_uj; empty means the file is absent
	maxEnergy string
}

// writeSysFS builds a sysfs tree with the given powercap zones and returns
// its root
func writeSysFS(t *testing.T, zones ...sysfsZone) string {
	t.Helper()
	root := t.TempDir()
	powercap := filepath.Join(root, "class", "powercap")
	require.NoError(t, os.MkdirAll(powercap, 0o755))

	for _, z := range zones {
		dir := filepath.Join(powercap, z.dir)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		writeFile(t, filepath.Join(dir, "name"), z.name)
		writeFile(t, filepath.Join(dir, "max_energy_range_uj"), z.maxEnergy)
		if z.energy != "" {
			writeFile(t, filepath.Join(dir, "energy_uj"), z.energy)
		}
	}
	return root
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content+"\n"), 0o644))
}

// twoSocketZones is a typical two socket server layout including an mmio
// duplicate of package-0
func twoSocketZones() []sysfsZone {
	const maxRange = "262143328850"
	return []sysfsZone{
		{dir: "intel-rapl:0", name: "package-0", energy: "1000", maxEnergy: maxRange},
		{dir: "intel-rapl:0:0", name: "core", energy: "500", maxEnergy: maxRange},
		{dir: "intel-rapl:0:1", name: "dram", energy: "300", maxEnergy: "65532610987"},
		{dir: "intel-rapl:1", name: "package-1", energy: "2000", maxEnergy: maxRange},
		{dir: "intel-rapl:1:0", name: "core", energy: "700", maxEnergy: maxRange},
		{dir: "intel-rapl-mmio:0", name: "package-0", energy: "999", maxEnergy: maxRange},
	}
}

func domainLabels(domains []Domain) []string {
	labels := make([]string, len(domains))
	for i, d := range domains {
		labels[i] = d.Label
	}
	return labels
}

func sortedZoneNames(zones []EnergyZone) []string {
	names := make([]string, len(zones))
	for i, zone := range zones {
		names[i] = fmt.Sprintf("%s-%d", zone.Name(), zone.Index())
	}
	slices.Sort(names)

	return names
}
