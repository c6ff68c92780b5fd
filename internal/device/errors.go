// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDomainsFound is returned when no readable RAPL domain is available
	ErrNoDomainsFound = errors.New("no RAPL domains found")

	// ErrReadFailed matches every per-domain read failure
	ErrReadFailed = errors.New("failed to read energy counter")

	// ErrCounterOutOfRange is returned when a counter exceeds its wraparound range
	ErrCounterOutOfRange = errors.New("energy counter out of range")

	// ErrMaxEnergyChanged is returned when a domain reports a wraparound range
	// different from the one discovered at startup
	ErrMaxEnergyChanged = errors.New("max energy range changed")

	// ErrReadTimeout is returned when a counter read does not complete in time
	ErrReadTimeout = errors.New("energy counter read timed out")
)

// ReadError reports a failed counter read of a single domain
type ReadError struct {
	Domain string
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("%s: domain %s: %v", ErrReadFailed, e.Domain, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// Is makes every ReadError match ErrReadFailed
func (e *ReadError) Is(target error) bool {
	return target == ErrReadFailed
}
