// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

// CPUPowerMeter enumerates the RAPL power domains of the host
type CPUPowerMeter interface {
	powerMeter

	// Domains returns the currently readable domains ordered by label.
	// It returns an error matching ErrNoDomainsFound if none are readable.
	Domains() ([]Domain, error)

	// ListDomains returns every listed domain ordered by label, including
	// the ones whose counter can not be read right now. It returns
	// ErrNoDomainsFound only when the listing holds no zone at all.
	ListDomains() ([]Domain, error)
}
