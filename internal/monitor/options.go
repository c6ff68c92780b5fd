// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"log/slog"
	"time"

	"k8s.io/utils/clock"
)

type Opts struct {
	logger           *slog.Logger
	interval         time.Duration
	readTimeout      time.Duration
	clock            clock.WithTicker
	rescan           bool
	maxParallelReads int
	sinks            []Sink
}

// DefaultOpts returns a new Opts with defaults set
func DefaultOpts() Opts {
	return Opts{
		logger:           slog.Default(),
		interval:         1 * time.Second,
		readTimeout:      500 * time.Millisecond,
		clock:            clock.RealClock{},
		rescan:           false,
		maxParallelReads: 1,
	}
}

// OptionFn is a function sets one more more options in Opts struct
type OptionFn func(*Opts)

// WithInterval sets the sampling interval for the PowerMonitor
func WithInterval(d time.Duration) OptionFn {
	return func(o *Opts) {
		o.interval = d
	}
}

// WithLogger sets the logger for the PowerMonitor
func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

// WithClock sets the clock the PowerMonitor
func WithClock(c clock.WithTicker) OptionFn {
	return func(o *Opts) {
		o.clock = c
	}
}

// WithReadTimeout bounds each energy counter read
func WithReadTimeout(d time.Duration) OptionFn {
	return func(o *Opts) {
		o.readTimeout = d
	}
}

// WithRescan enables re-enumeration of domains on every tick
func WithRescan(enabled bool) OptionFn {
	return func(o *Opts) {
		o.rescan = enabled
	}
}

// WithMaxParallelReads sets how many domains are read concurrently; values
// below 2 read domains sequentially
func WithMaxParallelReads(n int) OptionFn {
	return func(o *Opts) {
		o.maxParallelReads = n
	}
}

// WithSinks adds sinks that receive every snapshot
func WithSinks(sinks ...Sink) OptionFn {
	return func(o *Opts) {
		o.sinks = append(o.sinks, sinks...)
	}
}
