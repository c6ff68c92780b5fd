// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"slices"
	"time"

	"github.com/sustainable-computing-io/raplstat/internal/device"
)

type (
	Energy = device.Energy
	Power  = device.Power
)

const (
	Joule = device.Joule
	Watt  = device.Watt
)

// DomainSnapshot is the state of one RAPL domain at the end of a tick
type DomainSnapshot struct {
	Name   string // hierarchical label, e.g. package-0/core
	Parent string // label of the parent domain; empty for top level domains
	Path   string

	Power        Power  // instantaneous power of the last successful delta
	EnergyTotal  Energy // energy consumed since the first sample
	AveragePower Power
	MaxPower     Power
	Samples      uint64 // number of power samples; zero until the first delta

	// Available is false when the last read of the domain failed; the
	// metrics then hold the last known values
	Available bool
	Err       error
}

// HasPower reports whether power values have been derived for the domain
func (d DomainSnapshot) HasPower() bool {
	return d.Samples > 0
}

// Snapshot is the state of all known domains at the end of a tick, ordered
// by domain name
type Snapshot struct {
	Timestamp time.Time
	Domains   []DomainSnapshot
}

// NewSnapshot creates a new Snapshot instance
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Domains: []DomainSnapshot{},
	}
}

// Clone creates a deep copy of the Snapshot
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	return &Snapshot{
		Timestamp: s.Timestamp,
		Domains:   slices.Clone(s.Domains),
	}
}

// Domain returns the snapshot of the named domain
func (s *Snapshot) Domain(name string) (DomainSnapshot, bool) {
	for _, d := range s.Domains {
		if d.Name == name {
			return d, true
		}
	}
	return DomainSnapshot{}, false
}
