// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"sync"
)

// lifecycle records the order in which services are initialized and shut
// down
type lifecycle struct {
	mu     sync.Mutex
	events []string
}

func (l *lifecycle) record(event string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *lifecycle) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// fakeMeter stands in for the RAPL meter: initialized first, shut down last
type fakeMeter struct {
	log         *lifecycle
	initErr     error
	shutdownErr error
}

func (m *fakeMeter) Name() string { return "rapl" }

func (m *fakeMeter) Init() error {
	m.log.record("init rapl")
	return m.initErr
}

func (m *fakeMeter) Shutdown() error {
	m.log.record("shutdown rapl")
	return m.shutdownErr
}

// fakeTable stands in for the table output, which closes its writer
type fakeTable struct {
	log     *lifecycle
	initErr error
	closed  int
}

func (t *fakeTable) Name() string { return "stdout" }

func (t *fakeTable) Init() error {
	t.log.record("init stdout")
	return t.initErr
}

func (t *fakeTable) Shutdown() error {
	t.log.record("shutdown stdout")
	t.closed++
	return nil
}

// fakeMonitor stands in for the sampling loop
type fakeMonitor struct {
	log     *lifecycle
	started chan struct{}
	runFn   func(ctx context.Context) error
	initErr error
}

func newFakeMonitor(log *lifecycle, runFn func(ctx context.Context) error) *fakeMonitor {
	return &fakeMonitor{log: log, started: make(chan struct{}), runFn: runFn}
}

func (m *fakeMonitor) Name() string { return "monitor" }

func (m *fakeMonitor) Init() error {
	m.log.record("init monitor")
	return m.initErr
}

func (m *fakeMonitor) Run(ctx context.Context) error {
	m.log.record("run monitor")
	close(m.started)
	if m.runFn != nil {
		return m.runFn(ctx)
	}
	<-ctx.Done()
	return nil
}

// untilCancelled blocks until the run group is interrupted
func untilCancelled(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// named is a service without any lifecycle method
type named string

func (n named) Name() string { return string(n) }
