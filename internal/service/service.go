// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package service

import "context"

// Service is a named part of raplstat: the RAPL meter, the monitor, the
// table output or the signal handler
type Service interface {
	Name() string
}

// Initializer is implemented by services that must be prepared before
// sampling starts, e.g. the meter discovering its RAPL domains
type Initializer interface {
	Service
	Init() error
}

// Runner is implemented by services that block until ctx is done, e.g. the
// sampling loop
type Runner interface {
	Service
	Run(ctx context.Context) error
}

// Shutdowner is implemented by services holding resources, e.g. the meter's
// powercap reader or the table's output
type Shutdowner interface {
	Service
	Shutdown() error
}
