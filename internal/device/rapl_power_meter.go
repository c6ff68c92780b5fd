// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// raplPowerMeter implements CPUPowerMeter on top of a raplReader
type raplPowerMeter struct {
	reader     raplReader
	sysfsPath  string
	logger     *slog.Logger
	zoneFilter []string

	// unreadable tracks zones excluded on the last enumeration so that a
	// zone that stays unreadable is only reported once
	unreadable map[string]bool
}

var _ CPUPowerMeter = (*raplPowerMeter)(nil)

type OptionFn func(*raplPowerMeter)

// WithRaplReader sets a specific raplReader (for testing)
func WithRaplReader(r raplReader) OptionFn {
	return func(pm *raplPowerMeter) {
		pm.reader = r
	}
}

// WithRaplLogger sets the logger for raplPowerMeter
func WithRaplLogger(logger *slog.Logger) OptionFn {
	return func(pm *raplPowerMeter) {
		pm.logger = logger.With("service", "rapl")
	}
}

// WithZoneFilter sets zone names to include for monitoring
// If empty, all zones are included
func WithZoneFilter(zones []string) OptionFn {
	return func(pm *raplPowerMeter) {
		pm.zoneFilter = zones
	}
}

// NewCPUPowerMeter creates a RAPL power meter reading zones below sysfsPath
func NewCPUPowerMeter(sysfsPath string, opts ...OptionFn) *raplPowerMeter {
	ret := &raplPowerMeter{
		sysfsPath:  sysfsPath,
		logger:     slog.Default().With("service", "rapl"),
		zoneFilter: []string{},
		unreadable: map[string]bool{},
	}

	for _, opt := range opts {
		opt(ret)
	}

	return ret
}

func (r *raplPowerMeter) Name() string {
	if r.reader != nil {
		return "rapl-" + r.reader.Name()
	}
	return "rapl"
}

// Init selects the powercap reader unless one was provided and verifies that
// at least one domain can be read
func (r *raplPowerMeter) Init() error {
	if r.reader == nil {
		reader, err := NewPowercapReader(r.sysfsPath)
		if err != nil {
			return err
		}
		r.reader = reader
	}

	r.logger.Info("Using power reader", "reader", r.reader.Name())
	if err := r.reader.Init(); err != nil {
		return fmt.Errorf("%w: %s reader: %w", ErrNoDomainsFound, r.reader.Name(), err)
	}

	domains, err := r.Domains()
	if err != nil {
		return err
	}

	for _, d := range domains {
		r.logger.Info("Found RAPL domain",
			"domain", d.Label,
			"path", d.Zone.Path(),
			"max_energy", d.Zone.MaxEnergy())
	}
	return nil
}

// Shutdown releases resources held by the power reader
func (r *raplPowerMeter) Shutdown() error {
	if r.reader != nil {
		return r.reader.Close()
	}
	return nil
}

func (r *raplPowerMeter) needsFiltering() bool {
	return len(r.zoneFilter) != 0
}

// filterZones applies the configured zone filter
// If the filter is empty, all zones are returned
func (r *raplPowerMeter) filterZones(zones []EnergyZone) []EnergyZone {
	if !r.needsFiltering() {
		return zones
	}

	wanted := make(map[string]bool, len(r.zoneFilter))
	for _, name := range r.zoneFilter {
		wanted[strings.ToLower(name)] = true
	}
	var included, excluded []string
	filtered := make([]EnergyZone, 0, len(zones))
	for _, zone := range zones {
		if wanted[strings.ToLower(zone.Name())] {
			filtered = append(filtered, zone)
			included = append(included, zone.Name())
		} else {
			excluded = append(excluded, zone.Name())
		}
	}
	r.logger.Debug("Filtered RAPL zones", "included", included, "excluded", excluded)
	return filtered
}

// standardZones drops non-standard zones (e.g. intel-rapl-mmio) that report
// the same name and index as a standard intel-rapl zone
func standardZones(zones []EnergyZone) []EnergyZone {
	std := make(map[zoneKey]EnergyZone, len(zones))
	order := make([]zoneKey, 0, len(zones))
	for _, zone := range zones {
		key := zoneKey{name: zone.Name(), index: zone.Index()}
		existing, exists := std[key]
		if !exists {
			order = append(order, key)
			std[key] = zone
			continue
		}
		if isStandardRaplPath(existing.Path()) {
			continue
		}
		std[key] = zone
	}

	ret := make([]EnergyZone, 0, len(order))
	for _, key := range order {
		ret = append(ret, std[key])
	}
	return ret
}

// readableDomains excludes domains whose energy counter can not be read
func (r *raplPowerMeter) readableDomains(domains []Domain) ([]Domain, error) {
	var errs []error
	readable := make([]Domain, 0, len(domains))
	for _, d := range domains {
		path := d.Zone.Path()
		if err := d.CanRead(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			if !r.unreadable[path] {
				r.logger.Warn("Excluding unreadable RAPL zone", "domain", d.Label, "path", path, "error", err)
				r.unreadable[path] = true
			}
			continue
		}
		if r.unreadable[path] {
			r.logger.Info("RAPL zone is readable again", "domain", d.Label, "path", path)
			delete(r.unreadable, path)
		}
		readable = append(readable, d)
	}
	return readable, errors.Join(errs...)
}

// ListDomains returns every domain listed by the powercap class ordered by
// label, whether or not its counter can currently be read. Labels are the
// same as the ones returned by Domains.
// A listing that succeeds but holds no zone returns ErrNoDomainsFound; any
// other failure to list is returned as is.
func (r *raplPowerMeter) ListDomains() ([]Domain, error) {
	if r.reader == nil {
		return nil, fmt.Errorf("power reader not initialized")
	}

	zones, err := r.reader.Zones()
	if err != nil {
		return nil, fmt.Errorf("failed to list RAPL zones: %w", err)
	}

	zones = standardZones(r.filterZones(zones))
	if len(zones) == 0 {
		return nil, ErrNoDomainsFound
	}

	domains := labelDomains(zones)
	sort.Slice(domains, func(i, j int) bool {
		return domains[i].Label < domains[j].Label
	})
	return domains, nil
}

// Domains enumerates the readable RAPL domains ordered by label
func (r *raplPowerMeter) Domains() ([]Domain, error) {
	listed, err := r.ListDomains()
	if err != nil {
		return nil, err
	}

	domains, readErr := r.readableDomains(listed)
	if len(domains) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrNoDomainsFound, readErr)
	}
	return domains, nil
}

// isStandardRaplPath checks if a RAPL zone path is in the standard format
func isStandardRaplPath(path string) bool {
	return strings.Contains(path, "/intel-rapl:")
}
