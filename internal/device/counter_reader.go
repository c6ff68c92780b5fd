// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"context"
	"fmt"
	"time"

	"k8s.io/utils/clock"
)

// RawSample is one reading of a domain's energy counter
type RawSample struct {
	Domain    string
	Energy    Energy
	MaxEnergy Energy
	Timestamp time.Time
}

// CounterReader reads energy counters of domains and timestamps each reading
type CounterReader struct {
	clock   clock.PassiveClock
	timeout time.Duration
}

// CounterReaderOptFn configures a CounterReader
type CounterReaderOptFn func(*CounterReader)

// WithReadClock sets the clock used to timestamp readings
func WithReadClock(c clock.PassiveClock) CounterReaderOptFn {
	return func(r *CounterReader) {
		r.clock = c
	}
}

// WithReadTimeout bounds every read; a zero timeout disables the bound
func WithReadTimeout(d time.Duration) CounterReaderOptFn {
	return func(r *CounterReader) {
		r.timeout = d
	}
}

// NewCounterReader returns a CounterReader using the real clock
func NewCounterReader(opts ...CounterReaderOptFn) *CounterReader {
	r := &CounterReader{
		clock: clock.RealClock{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type readResult struct {
	energy Energy
	at     time.Time
	err    error
}

// Read returns the current counter value of the domain. Every failure is
// returned as a *ReadError.
func (r *CounterReader) Read(ctx context.Context, d Domain) (RawSample, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	// buffered so an abandoned read does not leak the goroutine
	ch := make(chan readResult, 1)
	go func() {
		e, err := d.Zone.Energy()
		ch <- readResult{energy: e, at: r.clock.Now(), err: err}
	}()

	var res readResult
	select {
	case res = <-ch:
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return RawSample{}, &ReadError{Domain: d.Label, Err: fmt.Errorf("%w after %s", ErrReadTimeout, r.timeout)}
		}
		return RawSample{}, &ReadError{Domain: d.Label, Err: ctx.Err()}
	}

	if res.err != nil {
		return RawSample{}, &ReadError{Domain: d.Label, Err: res.err}
	}

	maxEnergy := d.Zone.MaxEnergy()
	if err := checkRange(d, res.energy, maxEnergy); err != nil {
		return RawSample{}, &ReadError{Domain: d.Label, Err: err}
	}

	return RawSample{
		Domain:    d.Label,
		Energy:    res.energy,
		MaxEnergy: maxEnergy,
		Timestamp: res.at,
	}, nil
}

// checkRange validates a counter value against the wraparound range captured
// at discovery and, when the zone supports it, the range currently reported
func checkRange(d Domain, e, maxEnergy Energy) error {
	if maxEnergy > 0 && e > maxEnergy {
		return fmt.Errorf("%w: %d > %d", ErrCounterOutOfRange, e, maxEnergy)
	}

	mr, ok := d.Zone.(maxEnergyReader)
	if !ok {
		return nil
	}
	current, err := mr.CurrentMaxEnergy()
	if err != nil {
		return fmt.Errorf("failed to read max energy: %w", err)
	}
	if current != maxEnergy {
		return fmt.Errorf("%w: %d -> %d", ErrMaxEnergyChanged, maxEnergy, current)
	}
	return nil
}
