// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/sustainable-computing-io/raplstat/internal/device"
)

// MockCPUPowerMeter is a mock implementation of device.CPUPowerMeter
type MockCPUPowerMeter struct {
	mock.Mock
}

var _ device.CPUPowerMeter = (*MockCPUPowerMeter)(nil)

func (m *MockCPUPowerMeter) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockCPUPowerMeter) Domains() ([]device.Domain, error) {
	args := m.Called()
	if d := args.Get(0); d != nil {
		return d.([]device.Domain), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCPUPowerMeter) ListDomains() ([]device.Domain, error) {
	args := m.Called()
	if d := args.Get(0); d != nil {
		return d.([]device.Domain), args.Error(1)
	}
	return nil, args.Error(1)
}

// fakeZone is an EnergyZone whose counter is driven by the test
type fakeZone struct {
	mu        sync.Mutex
	name      string
	path      string
	energy    Energy
	maxEnergy Energy
	err       error
	stall     time.Duration
}

var _ device.EnergyZone = (*fakeZone)(nil)

func (z *fakeZone) Name() string      { return z.name }
func (z *fakeZone) Index() int        { return 0 }
func (z *fakeZone) Path() string      { return z.path }
func (z *fakeZone) MaxEnergy() Energy { return z.maxEnergy }

func (z *fakeZone) Energy() (Energy, error) {
	z.mu.Lock()
	stall := z.stall
	e, err := z.energy, z.err
	z.mu.Unlock()

	if stall > 0 {
		time.Sleep(stall)
	}
	return e, err
}

func (z *fakeZone) Set(e Energy, err error) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.energy = e
	z.err = err
}

func (z *fakeZone) Stall(d time.Duration) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.stall = d
}

func newDomain(label, parent string, maxEnergy Energy) (device.Domain, *fakeZone) {
	z := &fakeZone{
		name:      label,
		path:      "/sys/class/powercap/" + label,
		maxEnergy: maxEnergy,
	}
	return device.Domain{Label: label, Parent: parent, Zone: z}, z
}

// recordingSink stores every snapshot it is given
type recordingSink struct {
	mu        sync.Mutex
	snapshots []*Snapshot
	ch        chan *Snapshot
	err       error
}

func newRecordingSink() *recordingSink {
	return &recordingSink{ch: make(chan *Snapshot, 16)}
}

func (s *recordingSink) Present(snapshot *Snapshot) error {
	s.mu.Lock()
	s.snapshots = append(s.snapshots, snapshot)
	ch := s.ch
	s.mu.Unlock()

	if ch != nil {
		ch <- snapshot
	}
	return s.err
}

func (s *recordingSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshots)
}
