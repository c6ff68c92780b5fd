// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRaplZones(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		zones []string
	}{
		{"all zones by default", ``, []string{}},
		{"packages only", "rapl:\n  zones: [package]\n", []string{"package"}},
		{"mixed case is kept", "rapl:\n  zones: [Package, DRAM]\n", []string{"Package", "DRAM"}},
		{"trimmed", "rapl:\n  zones: [\"  core\", \"psys \"]\n", []string{"core", "psys"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(strings.NewReader(tt.yaml))
			require.NoError(t, err)
			assert.Equal(t, tt.zones, cfg.Rapl.Zones)
		})
	}
}

func TestEmptyRaplZoneRejected(t *testing.T) {
	_, err := Load(strings.NewReader("rapl:\n  zones: [\"\"]\n"))
	assert.ErrorContains(t, err, "rapl zone name cannot be empty")
}

func TestRaplConfigString(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rapl.Zones = []string{"package", "dram"}

	str := cfg.String()
	assert.Contains(t, str, "- package")
	assert.Contains(t, str, "- dram")
	assert.Contains(t, cfg.manualString(), "rapl.zones: package, dram")
}

func TestRaplZonesWithFakeMeter(t *testing.T) {
	yamlData := `
rapl:
  zones: [package]
dev:
  fake-cpu-meter:
    enabled: true
    zones: [package, dram]
`
	cfg, err := Load(strings.NewReader(yamlData))
	require.NoError(t, err)
	assert.Equal(t, []string{"package"}, cfg.Rapl.Zones)
	assert.True(t, *cfg.Dev.FakeCpuMeter.Enabled)
	assert.Equal(t, []string{"package", "dram"}, cfg.Dev.FakeCpuMeter.Zones)
}
