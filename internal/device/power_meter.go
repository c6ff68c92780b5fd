// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

// powerMeter is a generic interface for power meters which read energy
// counters from hardware power domains
type powerMeter interface {
	// Name() returns a string identifying the power meter
	Name() string
}
