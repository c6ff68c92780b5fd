// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

// raplReader is an internal abstraction over RAPL zone backends (powercap
// sysfs, fake zones). It lets raplPowerMeter enumerate domains independently of
// where the zones come from.
type raplReader interface {
	// Name returns a human-readable name for the reader implementation
	Name() string

	// Init verifies the reader can be used on the current system
	Init() error

	// Zones returns every energy zone the reader can see, readable or not
	Zones() ([]EnergyZone, error)

	// Close releases any resources held by the reader
	Close() error
}
