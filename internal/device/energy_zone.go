// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"fmt"
	"path/filepath"
	"strings"
)

type Zone = string

const (
	ZonePackage Zone = "package"
	ZoneCore    Zone = "core"
	ZoneDRAM    Zone = "dram"
	ZoneUncore  Zone = "uncore"
	ZonePSys    Zone = "psys"
)

// EnergyZone represents a measurable energy zone/domain exposed by the
// powercap interface, e.g. cpu package, cpu core, dram or uncore.
type EnergyZone interface {
	// Name() returns the zone name as reported by the kernel, without the
	// index suffix (e.g. "package" for "package-0")
	Name() string

	// Index() returns the index of the zone
	Index() int

	// Path() returns the path from which the energy usage value is being read
	Path() string

	// Energy() returns the current value of the zone's energy counter.
	Energy() (Energy, error)

	// MaxEnergy returns the maximum value of energy usage that can be read.
	// When energy usage reaches this value, the energy value returned by Energy()
	// will wrap around and start again from zero.
	MaxEnergy() Energy
}

// maxEnergyReader is implemented by zones that can re-read their wraparound
// range from the hardware on demand
type maxEnergyReader interface {
	CurrentMaxEnergy() (Energy, error)
}

// Domain is one RAPL measurement point as seen by the sampler. It pairs an
// EnergyZone with a stable hierarchical label such as "package-0/core".
type Domain struct {
	Label  string
	Parent string // label of the parent domain; empty for top level domains
	Zone   EnergyZone
}

// IsTopLevel reports whether the domain has no parent domain
func (d Domain) IsTopLevel() bool {
	return d.Parent == ""
}

// CanRead reports why the counter of the domain can not be read, if it can not
func (d Domain) CanRead() error {
	_, err := d.Zone.Energy()
	return err
}

// zoneKey uniquely identifies a zone by name and index
type zoneKey struct {
	name  string
	index int
}

// zoneID returns the powercap directory name of a zone, e.g. "intel-rapl:0:1"
func zoneID(z EnergyZone) string {
	return filepath.Base(z.Path())
}

// parentZoneID returns the powercap id of the parent zone, or "" if the zone
// is a top level zone. "intel-rapl:0:1" -> "intel-rapl:0", "intel-rapl:0" -> ""
func parentZoneID(id string) string {
	parts := strings.Split(id, ":")
	if len(parts) <= 2 {
		return ""
	}
	return strings.Join(parts[:len(parts)-1], ":")
}

// topLevelLabel is the label of a zone with no parent. The kernel names
// package zones "package-N"; procfs strips the suffix into Index.
func topLevelLabel(z EnergyZone) string {
	if z.Name() == ZonePackage || z.Index() > 0 {
		return fmt.Sprintf("%s-%d", z.Name(), z.Index())
	}
	return z.Name()
}

// labelDomains builds hierarchical labels for zones using their powercap ids.
// Zones whose parent is not in the set are treated as top level.
func labelDomains(zones []EnergyZone) []Domain {
	byID := make(map[string]EnergyZone, len(zones))
	for _, z := range zones {
		byID[zoneID(z)] = z
	}

	labels := make(map[string]string, len(zones))
	var labelOf func(z EnergyZone) (label, parent string)
	labelOf = func(z EnergyZone) (string, string) {
		id := zoneID(z)
		parentID := parentZoneID(id)
		p, ok := byID[parentID]
		if !ok {
			label := topLevelLabel(z)
			labels[id] = label
			return label, ""
		}

		parent, ok := labels[parentID]
		if !ok {
			parent, _ = labelOf(p)
		}
		label := parent + "/" + z.Name()
		labels[id] = label
		return label, parent
	}

	domains := make([]Domain, 0, len(zones))
	for _, z := range zones {
		label, parent := labelOf(z)
		domains = append(domains, Domain{Label: label, Parent: parent, Zone: z})
	}
	return domains
}
