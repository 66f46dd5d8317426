package store

import (
	"context"
	"fmt"

	"campuscrawl/internal/academic"
)

type departmentKey struct {
	institutionID int64
	sourceID      int
}

type periodKey struct {
	part  int
	parts int
}

// refCache is an optional per-controller read-through cache for the small,
// hot reference sets. It belongs to exactly one controller and needs no
// locking. Entity merges that touch a cached set write through it.
type refCache struct {
	departments map[departmentKey]academic.Department
	degrees     map[string]academic.Degree
	periods     map[periodKey]academic.Period
	shiftTypes  map[string]academic.ShiftType
	buildings   map[string]academic.Building
}

func newRefCache() *refCache {
	return &refCache{
		departments: make(map[departmentKey]academic.Department),
		degrees:     make(map[string]academic.Degree),
		periods:     make(map[periodKey]academic.Period),
		shiftTypes:  make(map[string]academic.ShiftType),
		buildings:   make(map[string]academic.Building),
	}
}

func (rc *refCache) department(institutionID int64, sourceID int) (*academic.Department, bool) {
	if rc == nil {
		return nil, false
	}
	d, ok := rc.departments[departmentKey{institutionID, sourceID}]
	if !ok {
		return nil, false
	}
	return &d, true
}

func (rc *refCache) storeDepartment(d academic.Department) {
	if rc == nil {
		return
	}
	rc.departments[departmentKey{d.InstitutionID, d.SourceID}] = d
}

func (rc *refCache) degree(code string) (*academic.Degree, bool) {
	if rc == nil {
		return nil, false
	}
	d, ok := rc.degrees[code]
	if !ok {
		return nil, false
	}
	return &d, true
}

func (rc *refCache) period(part, parts int) (*academic.Period, bool) {
	if rc == nil {
		return nil, false
	}
	p, ok := rc.periods[periodKey{part, parts}]
	if !ok {
		return nil, false
	}
	return &p, true
}

func (rc *refCache) shiftType(abbreviation string) (*academic.ShiftType, bool) {
	if rc == nil {
		return nil, false
	}
	t, ok := rc.shiftTypes[abbreviation]
	if !ok {
		return nil, false
	}
	return &t, true
}

func (rc *refCache) building(name string) (*academic.Building, bool) {
	if rc == nil {
		return nil, false
	}
	b, ok := rc.buildings[name]
	if !ok {
		return nil, false
	}
	return &b, true
}

func (rc *refCache) storeBuilding(b academic.Building) {
	if rc == nil {
		return
	}
	rc.buildings[b.Name] = b
}

// loadCache warms the reference partitions in one sweep. The integrated
// master shares the "M" code with the plain master and stays out of the
// by-code partition; it is only reachable through IntegratedMasterDegree.
func (c *Controller) loadCache(ctx context.Context) error {
	degrees, err := c.ListDegrees(ctx)
	if err != nil {
		return fmt.Errorf("warm degree cache: %w", err)
	}
	for _, d := range degrees {
		if d.Name == "Mestrado Integrado" {
			continue
		}
		c.cache.degrees[d.Code] = d
	}
	periods, err := c.ListPeriods(ctx)
	if err != nil {
		return fmt.Errorf("warm period cache: %w", err)
	}
	for _, p := range periods {
		c.cache.periods[periodKey{p.Part, p.Parts}] = p
	}
	rows, err := c.query(ctx, `SELECT id, name, abbreviation FROM shift_types`)
	if err != nil {
		return fmt.Errorf("warm shift type cache: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t academic.ShiftType
		if err := rows.Scan(&t.ID, &t.Name, &t.Abbreviation); err != nil {
			return fmt.Errorf("warm shift type cache: %w", err)
		}
		c.cache.shiftTypes[t.Abbreviation] = t
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("warm shift type cache: %w", err)
	}
	buildings, err := c.ListBuildings(ctx)
	if err != nil {
		return fmt.Errorf("warm building cache: %w", err)
	}
	for _, b := range buildings {
		c.cache.buildings[b.Name] = b
	}
	departments, err := c.ListDepartments(ctx)
	if err != nil {
		return fmt.Errorf("warm department cache: %w", err)
	}
	for _, d := range departments {
		c.cache.storeDepartment(d)
	}
	return nil
}
