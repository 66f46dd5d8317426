package syncer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"campuscrawl/internal/academic"
	"campuscrawl/internal/metrics"
	"campuscrawl/internal/parse"
	"campuscrawl/internal/queue"
	"campuscrawl/internal/store"
	"campuscrawl/internal/worker"
)

// yearUnit crawls one academic year of an index page.
type yearUnit struct {
	Year int
}

func (u yearUnit) Label() string {
	return fmt.Sprintf("year %d", u.Year)
}

// termUnit crawls one (year, period) page of an index.
type termUnit struct {
	Year   int
	Period academic.Period
}

func (u termUnit) Label() string {
	return fmt.Sprintf("year %d period %d of %d", u.Year, u.Period.Part, u.Period.Parts)
}

// degreeUnit crawls the per-degree statistics page carrying course acronyms.
type degreeUnit struct {
	Code string
}

func (u degreeUnit) Label() string {
	return "degree " + u.Code
}

// syncDepartments crawls the department index of every academic year.
func (s *Syncer) syncDepartments(ctx context.Context) (worker.Result, error) {
	inst, years, err := s.ensureInstitution(ctx)
	if err != nil {
		return worker.Result{}, err
	}
	units := make([]yearUnit, 0, len(years))
	for _, y := range years {
		units = append(units, yearUnit{Year: y})
	}

	handle := func(ctx context.Context, ctl *store.Controller, unit yearUnit) error {
		doc, err := s.document(ctx, s.session.URLs().Departments(inst.SourceID, unit.Year))
		if err != nil {
			return err
		}
		if parse.NoData(doc) {
			return academic.ErrNoData
		}
		for _, link := range parse.Departments(doc) {
			_, err := ctl.MergeDepartment(ctx, academic.DepartmentCandidate{
				SourceID:      link.ID,
				Name:          link.Text,
				InstitutionID: inst.ID,
				Years:         yearRangeOf(unit.Year),
			})
			if err != nil {
				return fmt.Errorf("merge department %d: %w", link.ID, err)
			}
			metrics.ObserveMerge("department")
		}
		return nil
	}
	return runPool(ctx, s, StageDepartments, queue.NewFIFO(units...), handle)
}

// syncBuildings crawls the building index of every term and walks each
// building's weekday schedules to discover its rooms.
func (s *Syncer) syncBuildings(ctx context.Context) (worker.Result, error) {
	inst, years, err := s.ensureInstitution(ctx)
	if err != nil {
		return worker.Result{}, err
	}
	periods, err := s.listPeriods(ctx)
	if err != nil {
		return worker.Result{}, err
	}
	var units []termUnit
	for _, y := range years {
		for _, p := range periods {
			units = append(units, termUnit{Year: y, Period: p})
		}
	}

	urls := s.session.URLs()
	handle := func(ctx context.Context, ctl *store.Controller, unit termUnit) error {
		doc, err := s.document(ctx, urls.Buildings(inst.SourceID, unit.Year, unit.Period.Letter, unit.Period.Part))
		if err != nil {
			return err
		}
		if parse.NoData(doc) {
			return academic.ErrNoData
		}
		for _, link := range parse.Buildings(doc) {
			building, err := ctl.EnsureBuilding(ctx, academic.BuildingCandidate{
				SourceID: link.ID,
				Name:     link.Text,
				Years:    yearRangeOf(unit.Year),
			})
			if err != nil {
				return fmt.Errorf("merge building %q: %w", link.Text, err)
			}
			metrics.ObserveMerge("building")
			if err := s.syncBuildingRooms(ctx, ctl, inst, unit, link.ID, building.ID); err != nil {
				return err
			}
		}
		return nil
	}
	return runPool(ctx, s, StageBuildings, queue.NewFIFO(units...), handle)
}

// syncBuildingRooms walks one building's teaching weekdays, Monday through
// Saturday. The portal numbers weekdays the Portuguese way, segunda-feira
// being day 2.
func (s *Syncer) syncBuildingRooms(ctx context.Context, ctl *store.Controller,
	inst academic.Institution, unit termUnit, buildingSourceID int, buildingID int64) error {
	urls := s.session.URLs()
	for weekday := 0; weekday < 6; weekday++ {
		doc, err := s.document(ctx, urls.BuildingSchedule(
			inst.SourceID, buildingSourceID, unit.Year, unit.Period.Letter, unit.Period.Part, weekday+2))
		if err != nil {
			return err
		}
		if parse.NoData(doc) {
			continue
		}
		for _, place := range parse.Places(doc) {
			kind, name, err := parse.ParseRoom(place.Text)
			if err != nil {
				s.logger.Warn("unrecognized room label",
					zap.String("label", place.Text), zap.Error(err))
				continue
			}
			if _, err := ctl.EnsureRoom(ctx, academic.RoomCandidate{
				Name:       name,
				Kind:       kind,
				BuildingID: buildingID,
			}); err != nil {
				return fmt.Errorf("merge room %q: %w", name, err)
			}
			metrics.ObserveMerge("room")
		}
	}
	return nil
}

// syncCourses merges the course index inline, then crawls the per-degree
// statistics pages, the only place the portal shows course acronyms.
func (s *Syncer) syncCourses(ctx context.Context) (worker.Result, error) {
	inst, _, err := s.ensureInstitution(ctx)
	if err != nil {
		return worker.Result{}, err
	}
	doc, err := s.document(ctx, s.session.URLs().Courses(inst.SourceID))
	if err != nil {
		return worker.Result{}, err
	}

	ctl, err := s.st.Controller(ctx)
	if err != nil {
		return worker.Result{}, err
	}
	for _, link := range parse.Courses(doc) {
		if _, err := ctl.MergeCourse(ctx, academic.CourseCandidate{
			SourceID:      link.ID,
			Name:          link.Text,
			InstitutionID: inst.ID,
		}); err != nil {
			_ = ctl.Close()
			return worker.Result{}, fmt.Errorf("merge course %d: %w", link.ID, err)
		}
		metrics.ObserveMerge("course")
	}
	degrees, err := ctl.ListDegrees(ctx)
	_ = ctl.Close()
	if err != nil {
		return worker.Result{}, err
	}

	var units []degreeUnit
	seen := map[string]bool{}
	for _, d := range degrees {
		if seen[d.Code] {
			continue
		}
		seen[d.Code] = true
		units = append(units, degreeUnit{Code: d.Code})
	}

	handle := func(ctx context.Context, ctl *store.Controller, unit degreeUnit) error {
		degree, err := ctl.Degree(ctx, unit.Code)
		if err != nil {
			return err
		}
		if degree == nil {
			return fmt.Errorf("unknown degree code %q", unit.Code)
		}
		doc, err := s.document(ctx, s.session.URLs().Statistics(inst.SourceID, unit.Code))
		if err != nil {
			return err
		}
		if parse.NoData(doc) {
			return academic.ErrNoData
		}
		for _, link := range parse.CourseAbbreviations(doc) {
			if _, err := ctl.MergeCourse(ctx, academic.CourseCandidate{
				SourceID:      link.ID,
				Abbreviation:  link.Text,
				DegreeID:      degree.ID,
				InstitutionID: inst.ID,
			}); err != nil {
				return fmt.Errorf("merge course %d: %w", link.ID, err)
			}
			metrics.ObserveMerge("course")
		}
		return nil
	}
	return runPool(ctx, s, StageCourses, queue.NewFIFO(units...), handle)
}

func (s *Syncer) listPeriods(ctx context.Context) ([]academic.Period, error) {
	ctl, err := s.st.Controller(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = ctl.Close() }()
	return ctl.ListPeriods(ctx)
}
