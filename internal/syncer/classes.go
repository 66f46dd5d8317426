package syncer

import (
	"context"
	"fmt"

	"campuscrawl/internal/academic"
	"campuscrawl/internal/metrics"
	"campuscrawl/internal/parse"
	"campuscrawl/internal/queue"
	"campuscrawl/internal/store"
	"campuscrawl/internal/worker"
)

// departmentYearUnit crawls one department's class listings for one year.
type departmentYearUnit struct {
	Department academic.Department
	Year       int
}

func (u departmentYearUnit) Label() string {
	return fmt.Sprintf("department %d year %d", u.Department.SourceID, u.Year)
}

// contestUnit crawls one course's admitted-student table for one contest
// phase.
type contestUnit struct {
	Course academic.Course
	Year   int
	Phase  int
}

func (u contestUnit) Label() string {
	return fmt.Sprintf("course %d year %d phase %d", u.Course.SourceID, u.Year, u.Phase)
}

// syncClasses crawls every known department's class and teacher listings,
// registering offerings for every period the department taught on.
func (s *Syncer) syncClasses(ctx context.Context) (worker.Result, error) {
	inst, years, err := s.ensureInstitution(ctx)
	if err != nil {
		return worker.Result{}, err
	}

	ctl, err := s.st.Controller(ctx)
	if err != nil {
		return worker.Result{}, err
	}
	departments, err := ctl.ListDepartments(ctx)
	if err != nil {
		_ = ctl.Close()
		return worker.Result{}, err
	}
	periods, err := ctl.ListPeriods(ctx)
	_ = ctl.Close()
	if err != nil {
		return worker.Result{}, err
	}

	var units []departmentYearUnit
	for _, dept := range departments {
		for _, y := range years {
			if !dept.Years.Contains(y) {
				continue
			}
			units = append(units, departmentYearUnit{Department: dept, Year: y})
		}
	}

	handle := func(ctx context.Context, ctl *store.Controller, unit departmentYearUnit) error {
		for _, period := range periods {
			if err := s.syncDepartmentTerm(ctx, ctl, inst, unit, period); err != nil {
				return err
			}
		}
		return nil
	}
	return runPool(ctx, s, StageClasses, queue.NewFIFO(units...), handle)
}

// syncDepartmentTerm reconciles one department's classes and teachers on one
// period. Periods the department did not teach on answer with no data and are
// skipped.
func (s *Syncer) syncDepartmentTerm(ctx context.Context, ctl *store.Controller,
	inst academic.Institution, unit departmentYearUnit, period academic.Period) error {
	urls := s.session.URLs()
	doc, err := s.document(ctx, urls.DepartmentClasses(
		inst.SourceID, unit.Department.SourceID, unit.Year, period.Letter, period.Part))
	if err != nil {
		return err
	}
	if parse.NoData(doc) {
		return nil
	}

	var offerings []academic.ClassInstanceCandidate
	for _, link := range parse.Classes(doc) {
		class, err := ctl.MergeClass(ctx, academic.ClassCandidate{
			SourceID:     link.ID,
			DepartmentID: unit.Department.ID,
			Name:         link.Text,
		})
		if err != nil {
			return fmt.Errorf("merge class %d: %w", link.ID, err)
		}
		metrics.ObserveMerge("class")
		offerings = append(offerings, academic.ClassInstanceCandidate{
			ClassID:  class.ID,
			PeriodID: period.ID,
			Year:     unit.Year,
		})
	}
	if len(offerings) > 0 {
		if _, err := ctl.AddClassInstances(ctx, offerings); err != nil {
			return fmt.Errorf("register offerings: %w", err)
		}
		metrics.ObserveMerge("offering")
	}

	tdoc, err := s.document(ctx, urls.DepartmentTeachers(
		inst.SourceID, unit.Department.SourceID, unit.Year, period.Letter, period.Part))
	if err != nil {
		return err
	}
	if parse.NoData(tdoc) {
		return nil
	}
	for _, link := range parse.Teachers(tdoc) {
		if _, err := ctl.MergeTeacher(ctx, academic.TeacherCandidate{
			SourceID:     link.ID,
			Name:         link.Text,
			DepartmentID: unit.Department.ID,
			Years:        yearRangeOf(unit.Year),
		}); err != nil {
			return fmt.Errorf("merge teacher %d: %w", link.ID, err)
		}
		metrics.ObserveMerge("teacher")
	}
	return nil
}

// syncAdmissions crawls the national access contest results. The yearly
// contest index names the participating courses; each one is then visited
// once per phase.
func (s *Syncer) syncAdmissions(ctx context.Context) (worker.Result, error) {
	inst, years, err := s.ensureInstitution(ctx)
	if err != nil {
		return worker.Result{}, err
	}

	ctl, err := s.st.Controller(ctx)
	if err != nil {
		return worker.Result{}, err
	}
	var units []contestUnit
	for _, y := range years {
		doc, err := s.document(ctx, s.session.URLs().Admissions(inst.SourceID, y))
		if err != nil {
			_ = ctl.Close()
			return worker.Result{}, err
		}
		if parse.NoData(doc) {
			continue
		}
		for _, link := range parse.Courses(doc) {
			course, err := ctl.MergeCourse(ctx, academic.CourseCandidate{
				SourceID:      link.ID,
				Name:          link.Text,
				InstitutionID: inst.ID,
				Years:         yearRangeOf(y),
			})
			if err != nil {
				_ = ctl.Close()
				return worker.Result{}, fmt.Errorf("merge course %d: %w", link.ID, err)
			}
			for phase := 1; phase <= s.cfg.Phases; phase++ {
				units = append(units, contestUnit{Course: course, Year: y, Phase: phase})
			}
		}
	}
	_ = ctl.Close()

	handle := func(ctx context.Context, ctl *store.Controller, unit contestUnit) error {
		doc, err := s.document(ctx, s.session.URLs().Admitted(
			inst.SourceID, unit.Year, unit.Phase, unit.Course.SourceID))
		if err != nil {
			return err
		}
		if parse.NoData(doc) {
			return academic.ErrNoData
		}
		rows, err := parse.ParseAdmissions(doc)
		if err != nil {
			return fmt.Errorf("decode admissions for %s: %w", unit.Label(), err)
		}
		cands := make([]academic.AdmissionCandidate, 0, len(rows))
		for _, row := range rows {
			cand := academic.AdmissionCandidate{
				Name:     row.Name,
				CourseID: unit.Course.ID,
				Phase:    unit.Phase,
				Year:     unit.Year,
				Option:   row.Option,
				State:    row.State,
			}
			// the student row exists once the admitted student enrolled
			if row.SourceID != nil {
				student, err := ctl.StudentBySourceID(ctx, inst.ID, *row.SourceID)
				if err != nil {
					return err
				}
				if student != nil {
					cand.StudentID = &student.ID
				}
			}
			cands = append(cands, cand)
		}
		added, err := ctl.AddAdmissions(ctx, cands)
		if err != nil {
			return fmt.Errorf("record admissions for %s: %w", unit.Label(), err)
		}
		for range added {
			metrics.ObserveMerge("admission")
		}
		return nil
	}
	return runPool(ctx, s, StageAdmissions, queue.NewFIFO(units...), handle)
}
