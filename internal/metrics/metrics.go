// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics derives power and energy statistics from successive energy
// counter readings of a RAPL domain.
package metrics

import (
	"errors"
	"fmt"

	"github.com/sustainable-computing-io/raplstat/internal/device"
)

type (
	Energy = device.Energy
	Power  = device.Power
)

var (
	// ErrClockAnomaly is returned when the elapsed time between two samples
	// is not positive
	ErrClockAnomaly = errors.New("non-positive elapsed time between samples")

	// ErrInvalidWrap is returned when a counter appears to have wrapped but
	// the wraparound range does not allow it
	ErrInvalidWrap = errors.New("invalid counter wraparound")
)

// EnergyDelta returns the energy consumed between two counter values of a
// counter that wraps to zero after reaching maxEnergy. It returns false if the
// counter went backwards and the wrap can not be explained by maxEnergy.
func EnergyDelta(previous, current, maxEnergy Energy) (Energy, bool) {
	if current >= previous {
		return current - previous, true
	}

	// counter wraparound
	if maxEnergy == 0 || previous > maxEnergy {
		return 0, false
	}
	return (maxEnergy - previous) + current, true
}

// DomainMetrics accumulates derived statistics of one domain
type DomainMetrics struct {
	// EnergyTotal is the energy consumed since the first sample
	EnergyTotal Energy

	// PowerSum is the sum of all instantaneous power samples
	PowerSum Power

	// Samples is the number of instantaneous power samples
	Samples uint64

	MaxPower  Power
	LastPower Power
}

// AveragePower returns the arithmetic mean of all instantaneous power samples
func (m *DomainMetrics) AveragePower() Power {
	if m.Samples == 0 {
		return 0
	}
	return m.PowerSum / Power(m.Samples)
}

// HasPower reports whether at least one power sample was derived
func (m *DomainMetrics) HasPower() bool {
	return m.Samples > 0
}

// Update advances the metrics with the energy consumed between prev and cur.
// On error the metrics are left untouched.
func (m *DomainMetrics) Update(prev, cur device.RawSample) error {
	elapsed := cur.Timestamp.Sub(prev.Timestamp).Seconds()
	if elapsed <= 0 {
		return fmt.Errorf("%w: %s elapsed for %s", ErrClockAnomaly, cur.Timestamp.Sub(prev.Timestamp), cur.Domain)
	}

	delta, ok := EnergyDelta(prev.Energy, cur.Energy, cur.MaxEnergy)
	if !ok {
		return fmt.Errorf("%w: %s went from %d to %d with max %d",
			ErrInvalidWrap, cur.Domain, prev.Energy, cur.Energy, cur.MaxEnergy)
	}

	// P = ΔE / Δt
	power := device.PowerOver(delta, elapsed)

	m.EnergyTotal += delta
	m.PowerSum += power
	m.Samples++
	m.LastPower = power
	if power > m.MaxPower {
		m.MaxPower = power
	}
	return nil
}
