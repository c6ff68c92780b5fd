// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

func mockDomain(label string, zone EnergyZone) Domain {
	return Domain{Label: label, Zone: zone}
}

func TestCounterReader_Read(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	fakeClock := testingclock.NewFakeClock(now)

	zone := NewMockRaplZone("package", 0, "/sys/class/powercap/intel-rapl:0", 2_000_000)
	zone.OnEnergy(1500, nil)

	r := NewCounterReader(WithReadClock(fakeClock), WithReadTimeout(time.Second))
	sample, err := r.Read(context.Background(), mockDomain("package-0", zone))
	require.NoError(t, err)

	assert.Equal(t, RawSample{
		Domain:    "package-0",
		Energy:    1500,
		MaxEnergy: 2_000_000,
		Timestamp: now,
	}, sample)
}

func TestCounterReader_ReadErrors(t *testing.T) {
	readErr := errors.New("permission denied")

	tests := []struct {
		name     string
		zone     func() EnergyZone
		expected error
	}{{
		name: "energy read fails",
		zone: func() EnergyZone {
			z := NewMockRaplZone("package", 0, "/p", 2_000_000)
			z.OnEnergy(0, readErr)
			return z
		},
		expected: readErr,
	}, {
		name: "counter above range",
		zone: func() EnergyZone {
			z := NewMockRaplZone("package", 0, "/p", 2_000_000)
			z.OnEnergy(2_000_001, nil)
			return z
		},
		expected: ErrCounterOutOfRange,
	}, {
		name: "range changed",
		zone: func() EnergyZone {
			z := NewMockRaplZone("package", 0, "/p", 2_000_000)
			z.OnEnergy(100, nil)
			return &mockMaxZone{MockRaplZone: z, currentMax: 4_000_000}
		},
		expected: ErrMaxEnergyChanged,
	}, {
		name: "range not readable",
		zone: func() EnergyZone {
			z := NewMockRaplZone("package", 0, "/p", 2_000_000)
			z.OnEnergy(100, nil)
			return &mockMaxZone{MockRaplZone: z, maxErr: os.ErrNotExist}
		},
		expected: os.ErrNotExist,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewCounterReader()
			_, err := r.Read(context.Background(), mockDomain("package-0", tt.zone()))
			require.Error(t, err)

			assert.ErrorIs(t, err, ErrReadFailed)
			assert.ErrorIs(t, err, tt.expected)

			var re *ReadError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, "package-0", re.Domain)
		})
	}
}

func TestCounterReader_UnchangedRange(t *testing.T) {
	z := NewMockRaplZone("package", 0, "/p", 2_000_000)
	z.OnEnergy(100, nil)
	zone := &mockMaxZone{MockRaplZone: z, currentMax: 2_000_000}

	sample, err := NewCounterReader().Read(context.Background(), mockDomain("package-0", zone))
	require.NoError(t, err)
	assert.Equal(t, Energy(100), sample.Energy)
}

func TestCounterReader_Timeout(t *testing.T) {
	zone := NewMockRaplZone("package", 0, "/p", 2_000_000)
	zone.Stall(time.Second)

	r := NewCounterReader(WithReadTimeout(10 * time.Millisecond))

	start := time.Now()
	_, err := r.Read(context.Background(), mockDomain("package-0", zone))
	assert.Less(t, time.Since(start), 500*time.Millisecond, "read must not wait for the stalled zone")

	assert.ErrorIs(t, err, ErrReadFailed)
	assert.ErrorIs(t, err, ErrReadTimeout)
}

func TestCounterReader_Cancelled(t *testing.T) {
	zone := NewMockRaplZone("package", 0, "/p", 2_000_000)
	zone.Stall(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCounterReader().Read(ctx, mockDomain("package-0", zone))
	assert.ErrorIs(t, err, ErrReadFailed)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCounterReader_SysFS(t *testing.T) {
	root := writeSysFS(t, sysfsZone{
		dir: "intel-rapl:0", name: "package-0", energy: "1000", maxEnergy: "2000000",
	})
	pm := NewCPUPowerMeter(root)
	require.NoError(t, pm.Init())
	domains, err := pm.Domains()
	require.NoError(t, err)
	require.Len(t, domains, 1)

	r := NewCounterReader()
	sample, err := r.Read(context.Background(), domains[0])
	require.NoError(t, err)
	assert.Equal(t, Energy(1000), sample.Energy)
	assert.Equal(t, Energy(2_000_000), sample.MaxEnergy)

	zoneDir := filepath.Join(root, "class/powercap/intel-rapl:0")

	t.Run("range changed", func(t *testing.T) {
		writeFile(t, filepath.Join(zoneDir, maxEnergyRangeFile), "4000000")
		_, err := r.Read(context.Background(), domains[0])
		assert.ErrorIs(t, err, ErrMaxEnergyChanged)
		writeFile(t, filepath.Join(zoneDir, maxEnergyRangeFile), "2000000")
	})

	t.Run("domain removed", func(t *testing.T) {
		require.NoError(t, os.RemoveAll(zoneDir))
		_, err := r.Read(context.Background(), domains[0])
		assert.ErrorIs(t, err, ErrReadFailed)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}
