// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/prometheus/procfs/sysfs"
)

const maxEnergyRangeFile = "max_energy_range_uj"

// powercapReader implements raplReader using the Linux powercap sysfs interface
type powercapReader struct {
	fs sysfs.FS
}

var _ raplReader = (*powercapReader)(nil)

// NewPowercapReader creates a new powercap reader using the specified sysfs path
func NewPowercapReader(sysfsPath string) (*powercapReader, error) {
	fs, err := sysfs.NewFS(sysfsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create sysfs filesystem: %w", err)
	}

	return &powercapReader{fs: fs}, nil
}

// Name returns the name of this reader implementation
func (p *powercapReader) Name() string {
	return "powercap"
}

// Init checks that the powercap class can be listed
func (p *powercapReader) Init() error {
	if _, err := sysfs.GetRaplZones(p.fs); err != nil {
		return fmt.Errorf("powercap interface not available: %w", err)
	}
	return nil
}

// Zones returns the list of RAPL energy zones available from powercap
func (p *powercapReader) Zones() ([]EnergyZone, error) {
	raplZones, err := sysfs.GetRaplZones(p.fs)
	if err != nil {
		return nil, fmt.Errorf("failed to read rapl zones: %w", err)
	}

	energyZones := make([]EnergyZone, 0, len(raplZones))
	for _, zone := range raplZones {
		energyZones = append(energyZones, sysfsRaplZone{zone})
	}

	return energyZones, nil
}

// Close is a no-op; sysfs files are opened per read
func (p *powercapReader) Close() error {
	return nil
}

// sysfsRaplZone implements EnergyZone using sysfs.RaplZone.
// It is an adapter for the EnergyZone interface
type sysfsRaplZone struct {
	zone sysfs.RaplZone
}

var (
	_ EnergyZone      = sysfsRaplZone{}
	_ maxEnergyReader = sysfsRaplZone{}
)

// Name returns the name of the zone
func (s sysfsRaplZone) Name() string {
	return s.zone.Name
}

// Index returns the index of the zone
func (s sysfsRaplZone) Index() int {
	return s.zone.Index
}

// Path returns the path of the zone
func (s sysfsRaplZone) Path() string {
	return s.zone.Path
}

// Energy returns the current energy value
func (s sysfsRaplZone) Energy() (Energy, error) {
	uj, err := s.zone.GetEnergyMicrojoules()
	return Energy(uj), err
}

// MaxEnergy returns the maximum energy value before wraparound as read
// when the zone was discovered
func (s sysfsRaplZone) MaxEnergy() Energy {
	return Energy(s.zone.MaxMicrojoules)
}

// CurrentMaxEnergy re-reads max_energy_range_uj from sysfs
func (s sysfsRaplZone) CurrentMaxEnergy() (Energy, error) {
	data, err := os.ReadFile(filepath.Join(s.zone.Path, maxEnergyRangeFile))
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed %s: %w", maxEnergyRangeFile, err)
	}
	return Energy(v), nil
}
