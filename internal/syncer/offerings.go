package syncer

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"campuscrawl/internal/academic"
	"campuscrawl/internal/metrics"
	"campuscrawl/internal/parse"
	"campuscrawl/internal/queue"
	"campuscrawl/internal/store"
	"campuscrawl/internal/worker"
)

// offeringUnit crawls one class offering, carrying the source ids the portal
// URLs need alongside the persisted row.
type offeringUnit struct {
	Instance      academic.ClassInstance
	ClassSourceID int
	DeptSourceID  int
	Period        academic.Period
}

func (u offeringUnit) Label() string {
	return fmt.Sprintf("class %d year %d period %d of %d",
		u.ClassSourceID, u.Instance.Year, u.Period.Part, u.Period.Parts)
}

// offeringUnits expands every registered offering of the crawled years into
// crawl units.
func (s *Syncer) offeringUnits(ctx context.Context, years []int) ([]offeringUnit, error) {
	ctl, err := s.st.Controller(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = ctl.Close() }()

	periods, err := ctl.ListPeriods(ctx)
	if err != nil {
		return nil, err
	}
	periodByID := make(map[int64]academic.Period, len(periods))
	for _, p := range periods {
		periodByID[p.ID] = p
	}
	departments, err := ctl.ListDepartments(ctx)
	if err != nil {
		return nil, err
	}
	deptSource := make(map[int64]int, len(departments))
	for _, d := range departments {
		deptSource[d.ID] = d.SourceID
	}

	classes := map[int64]*academic.Class{}
	var units []offeringUnit
	for _, y := range years {
		instances, err := ctl.ListClassInstances(ctx, y, 0)
		if err != nil {
			return nil, err
		}
		for _, ci := range instances {
			class, ok := classes[ci.ClassID]
			if !ok {
				class, err = ctl.ClassByID(ctx, ci.ClassID)
				if err != nil {
					return nil, err
				}
				classes[ci.ClassID] = class
			}
			if class == nil {
				return nil, fmt.Errorf("offering %d references missing class %d", ci.ID, ci.ClassID)
			}
			units = append(units, offeringUnit{
				Instance:      ci,
				ClassSourceID: class.SourceID,
				DeptSourceID:  deptSource[class.DepartmentID],
				Period:        periodByID[ci.PeriodID],
			})
		}
	}
	return units, nil
}

// syncShifts crawls every offering's shift pages: operational shift fields,
// weekly schedule slots and the students attached to each shift.
func (s *Syncer) syncShifts(ctx context.Context) (worker.Result, error) {
	inst, years, err := s.ensureInstitution(ctx)
	if err != nil {
		return worker.Result{}, err
	}
	units, err := s.offeringUnits(ctx, years)
	if err != nil {
		return worker.Result{}, err
	}
	handle := func(ctx context.Context, ctl *store.Controller, unit offeringUnit) error {
		return s.syncOfferingShifts(ctx, ctl, inst, unit)
	}
	return runPool(ctx, s, StageShifts, queue.NewFIFO(units...), handle)
}

func (s *Syncer) syncOfferingShifts(ctx context.Context, ctl *store.Controller,
	inst academic.Institution, unit offeringUnit) error {
	urls := s.session.URLs()
	doc, err := s.document(ctx, urls.ClassShifts(
		inst.SourceID, unit.DeptSourceID, unit.Instance.Year,
		unit.Period.Letter, unit.Period.Part, unit.ClassSourceID))
	if err != nil {
		return err
	}
	if parse.NoData(doc) {
		return academic.ErrNoData
	}
	keys, err := parse.ShiftKeys(doc)
	if err != nil {
		return fmt.Errorf("decode shift index for %s: %w", unit.Label(), err)
	}

	for _, key := range keys {
		shiftType, err := ctl.ShiftType(ctx, key.Type)
		if err != nil {
			return err
		}
		if shiftType == nil {
			return fmt.Errorf("unknown shift type %q on %s", key.Type, unit.Label())
		}

		sdoc, err := s.document(ctx, urls.ClassShift(
			inst.SourceID, unit.DeptSourceID, unit.Instance.Year,
			unit.Period.Letter, unit.Period.Part, unit.ClassSourceID,
			key.Type, key.Number))
		if err != nil {
			return err
		}
		if parse.NoData(sdoc) {
			continue
		}
		info, err := parse.ParseShiftInfo(sdoc)
		if err != nil {
			return fmt.Errorf("decode shift %s%d of %s: %w", key.Type, key.Number, unit.Label(), err)
		}

		shift, err := ctl.MergeShift(ctx, academic.ShiftCandidate{
			ClassInstanceID: unit.Instance.ID,
			Number:          key.Number,
			TypeID:          shiftType.ID,
			Enrolled:        info.Enrolled,
			Capacity:        info.Capacity,
			Minutes:         info.WeeklyMinutes,
			Routes:          joinList(info.Routes),
			Restrictions:    info.Restrictions,
			State:           info.State,
		})
		if err != nil {
			return fmt.Errorf("merge shift %s%d of %s: %w", key.Type, key.Number, unit.Label(), err)
		}
		metrics.ObserveMerge("shift")

		if len(info.Slots) > 0 {
			slots := make([]academic.ShiftInstanceCandidate, 0, len(info.Slots))
			for _, slot := range info.Slots {
				roomID, err := resolveRoom(ctx, ctl, slot)
				if err != nil {
					return err
				}
				slots = append(slots, academic.ShiftInstanceCandidate{
					ShiftID: shift.ID,
					Weekday: slot.Weekday,
					Start:   slot.Start,
					End:     slot.End,
					RoomID:  roomID,
				})
			}
			if _, err := ctl.ReplaceShiftInstances(ctx, shift.ID, slots); err != nil {
				return fmt.Errorf("rebuild schedule of shift %s%d: %w", key.Type, key.Number, err)
			}
		}

		students, err := parse.ParseShiftStudents(sdoc)
		if err != nil {
			return fmt.Errorf("decode shift students of %s: %w", unit.Label(), err)
		}
		for _, stu := range students {
			if _, err := s.mergeObservedStudent(ctx, ctl, inst, unit.Instance.Year,
				stu.SourceID, stu.Name, stu.Abbreviation, stu.CourseAbbr); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolveRoom maps a decoded schedule slot to a persisted room. Rooms the
// building stage has not seen resolve to nil rather than failing the shift.
func resolveRoom(ctx context.Context, ctl *store.Controller, slot parse.ScheduleSlot) (*int64, error) {
	if slot.Room == "" || slot.Building == "" {
		return nil, nil
	}
	building, err := ctl.BuildingByName(ctx, slot.Building)
	if err != nil {
		return nil, err
	}
	if building == nil {
		return nil, nil
	}
	name := slot.Room
	var hint academic.RoomKind
	if rest, ok := strings.CutPrefix(name, "Lab "); ok {
		name = rest
		hint = academic.RoomLaboratory
	}
	room, err := ctl.RoomByName(ctx, name, building.ID, hint)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, nil
	}
	return &room.ID, nil
}

func (s *Syncer) mergeObservedStudent(ctx context.Context, ctl *store.Controller,
	inst academic.Institution, year, sourceID int, name, abbreviation, courseAbbr string) (academic.Student, error) {
	cand := academic.StudentCandidate{
		SourceID:      sourceID,
		Name:          name,
		Abbreviation:  abbreviation,
		InstitutionID: inst.ID,
		Years:         yearRangeOf(year),
	}
	if courseAbbr != "" {
		course, err := ctl.CourseByAbbreviation(ctx, courseAbbr, year)
		if err != nil {
			return academic.Student{}, err
		}
		if course != nil {
			cand.CourseID = course.ID
		}
	}
	student, err := ctl.MergeStudent(ctx, cand)
	if err != nil {
		return academic.Student{}, fmt.Errorf("merge student %d: %w", sourceID, err)
	}
	metrics.ObserveMerge("student")
	return student, nil
}

// syncEnrollments crawls every offering's roster export and reconciles the
// enrolled students.
func (s *Syncer) syncEnrollments(ctx context.Context) (worker.Result, error) {
	inst, years, err := s.ensureInstitution(ctx)
	if err != nil {
		return worker.Result{}, err
	}
	units, err := s.offeringUnits(ctx, years)
	if err != nil {
		return worker.Result{}, err
	}
	handle := func(ctx context.Context, ctl *store.Controller, unit offeringUnit) error {
		return s.syncOfferingRoster(ctx, ctl, inst, unit)
	}
	return runPool(ctx, s, StageEnrollments, queue.NewFIFO(units...), handle)
}

func (s *Syncer) syncOfferingRoster(ctx context.Context, ctl *store.Controller,
	inst academic.Institution, unit offeringUnit) error {
	data, err := s.fetchFile(ctx, s.session.URLs().ClassEnrolled(
		inst.SourceID, unit.DeptSourceID, unit.Instance.Year,
		unit.Period.Letter, unit.Period.Part, unit.ClassSourceID))
	if err != nil {
		return err
	}
	// restricted rosters answer with an HTML error page instead of the export
	if len(bytes.TrimSpace(data)) == 0 || bytes.Contains(data, []byte("<html")) {
		return academic.ErrNoData
	}
	rows, err := parse.ParseEnrollments(data)
	if err != nil {
		return fmt.Errorf("decode roster of %s: %w", unit.Label(), err)
	}

	cands := make([]academic.EnrollmentCandidate, 0, len(rows))
	for _, row := range rows {
		student, err := s.mergeObservedStudent(ctx, ctl, inst, unit.Instance.Year,
			row.SourceID, row.Name, row.Abbreviation, row.CourseAbbr)
		if err != nil {
			return err
		}
		attempt := row.Attempt
		studentYear := row.StudentYear
		cand := academic.EnrollmentCandidate{
			StudentID:       student.ID,
			ClassInstanceID: unit.Instance.ID,
			Attempt:         &attempt,
			StudentYear:     &studentYear,
		}
		if row.Statutes != "" {
			statutes := row.Statutes
			cand.Statutes = &statutes
		}
		cands = append(cands, cand)
	}
	if len(cands) == 0 {
		return academic.ErrNoData
	}
	if err := ctl.MergeEnrollments(ctx, unit.Instance.ID, cands); err != nil {
		return fmt.Errorf("reconcile roster of %s: %w", unit.Label(), err)
	}
	metrics.ObserveMerge("enrollment")
	return nil
}

// joinList flattens a decoded list field into a single stored value.
func joinList(items []string) *string {
	if len(items) == 0 {
		return nil
	}
	joined := strings.Join(items, "; ")
	return &joined
}
