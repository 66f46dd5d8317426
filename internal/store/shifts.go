package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"campuscrawl/internal/academic"
)

// ReplaceShiftInstances rebuilds the weekly slots of one shift from a fresh
// schedule decode. Slots carry no stable upstream identity, so the whole set
// is dropped and reinserted in one transaction. All candidates must target
// the named shift; a mixed batch is a contract violation. An empty batch
// clears the schedule.
func (c *Controller) ReplaceShiftInstances(ctx context.Context, shiftID int64, cands []academic.ShiftInstanceCandidate) ([]academic.ShiftInstance, error) {
	if shiftID == 0 {
		return nil, fmt.Errorf("%w: shift instance batch without a shift", academic.ErrContract)
	}
	for _, cand := range cands {
		if cand.ShiftID != shiftID {
			return nil, fmt.Errorf("%w: shift instance batch spans shifts %d and %d",
				academic.ErrContract, shiftID, cand.ShiftID)
		}
	}
	tx, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := c.exec(ctx, tx, `DELETE FROM shift_instances WHERE shift_id = ?`, shiftID); err != nil {
		return nil, err
	}
	out := make([]academic.ShiftInstance, 0, len(cands))
	for _, cand := range cands {
		var room any
		if cand.RoomID != nil {
			room = *cand.RoomID
		}
		id, err := c.insertReturningID(ctx, tx,
			`INSERT INTO shift_instances (shift_id, weekday, start_min, end_min, room_id)
			VALUES (?, ?, ?, ?, ?) RETURNING id`,
			shiftID, cand.Weekday, cand.Start, cand.End, room)
		if err != nil {
			return nil, err
		}
		out = append(out, academic.ShiftInstance{ID: id, ShiftID: shiftID,
			Weekday: cand.Weekday, Start: cand.Start, End: cand.End, RoomID: cand.RoomID})
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit shift schedule: %w", err)
	}
	c.logger.Debug("replaced shift schedule",
		zap.Int64("shift_id", shiftID), zap.Int("slots", len(out)))
	return out, nil
}

// MergeEnrollments reconciles the full roster of one offering against a
// fresh crawl. Absent students enroll, unset fields fill in once, and
// students no longer on the roster are dropped in the same transaction. A
// re-observation disagreeing with a stored value is logged and ignored.
func (c *Controller) MergeEnrollments(ctx context.Context, classInstanceID int64, cands []academic.EnrollmentCandidate) error {
	for _, cand := range cands {
		if cand.ClassInstanceID != classInstanceID {
			return fmt.Errorf("%w: enrollment batch spans offerings %d and %d",
				academic.ErrContract, classInstanceID, cand.ClassInstanceID)
		}
	}
	current, err := c.Enrollments(ctx, classInstanceID)
	if err != nil {
		return err
	}
	byStudent := make(map[int64]academic.Enrollment, len(current))
	for _, enr := range current {
		byStudent[enr.StudentID] = enr
	}

	tx, err := c.begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var added, updated, removed int
	seen := make(map[int64]bool, len(cands))
	for _, cand := range cands {
		seen[cand.StudentID] = true
		existing, ok := byStudent[cand.StudentID]
		if !ok {
			if err := c.exec(ctx, tx,
				`INSERT INTO enrollments (student_id, class_instance_id, attempt, student_year, statutes, observation)
				VALUES (?, ?, ?, ?, ?, ?)`,
				cand.StudentID, classInstanceID,
				nullInt(cand.Attempt), nullInt(cand.StudentYear),
				nullStr(cand.Statutes), nullStr(cand.Observation)); err != nil {
				return err
			}
			added++
			continue
		}
		merged := existing
		changed := false
		for _, f := range []struct {
			name string
			dst  **int
			src  *int
		}{
			{"attempt", &merged.Attempt, cand.Attempt},
			{"student_year", &merged.StudentYear, cand.StudentYear},
		} {
			filled, differs := fillOnceInt(f.dst, f.src)
			changed = changed || filled
			if differs {
				c.logger.Warn("enrollment re-observed with a different value",
					zap.Int64("student_id", cand.StudentID),
					zap.Int64("class_instance_id", classInstanceID),
					zap.String("field", f.name))
			}
		}
		for _, f := range []struct {
			name string
			dst  **string
			src  *string
		}{
			{"statutes", &merged.Statutes, cand.Statutes},
			{"observation", &merged.Observation, cand.Observation},
		} {
			filled, differs := fillOnceStr(f.dst, f.src)
			changed = changed || filled
			if differs {
				c.logger.Warn("enrollment re-observed with a different value",
					zap.Int64("student_id", cand.StudentID),
					zap.Int64("class_instance_id", classInstanceID),
					zap.String("field", f.name))
			}
		}
		if !changed {
			continue
		}
		if err := c.exec(ctx, tx,
			`UPDATE enrollments SET attempt = ?, student_year = ?, statutes = ?, observation = ? WHERE id = ?`,
			nullInt(merged.Attempt), nullInt(merged.StudentYear),
			nullStr(merged.Statutes), nullStr(merged.Observation), merged.ID); err != nil {
			return err
		}
		updated++
	}
	for studentID, enr := range byStudent {
		if seen[studentID] {
			continue
		}
		if err := c.exec(ctx, tx, `DELETE FROM enrollments WHERE id = ?`, enr.ID); err != nil {
			return err
		}
		removed++
	}
	if added == 0 && updated == 0 && removed == 0 {
		return nil
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit roster: %w", err)
	}
	c.logger.Debug("merged roster",
		zap.Int64("class_instance_id", classInstanceID),
		zap.Int("added", added), zap.Int("updated", updated), zap.Int("removed", removed))
	return nil
}

// fillOnceInt copies src into an unset dst, reporting whether it filled and
// whether the observation disagrees with a value already stored.
func fillOnceInt(dst **int, src *int) (filled, differs bool) {
	switch {
	case src == nil:
		return false, false
	case *dst == nil:
		*dst = src
		return true, false
	default:
		return false, **dst != *src
	}
}

func fillOnceStr(dst **string, src *string) (filled, differs bool) {
	switch {
	case src == nil:
		return false, false
	case *dst == nil:
		*dst = src
		return true, false
	default:
		return false, **dst != *src
	}
}

// AddAdmissions appends contest entries that are not recorded yet. An entry
// is keyed by (course, year, phase, name); repeats are skipped silently.
func (c *Controller) AddAdmissions(ctx context.Context, cands []academic.AdmissionCandidate) ([]academic.Admission, error) {
	now := time.Now().UTC()
	out := make([]academic.Admission, 0, len(cands))
	for _, cand := range cands {
		var id int64
		row := c.queryRow(ctx, `SELECT id FROM admissions
			WHERE course_id = ? AND year = ? AND phase = ? AND name = ?`,
			cand.CourseID, cand.Year, cand.Phase, cand.Name)
		switch err := row.Scan(&id); {
		case err == nil:
			continue
		case isNoRows(err):
		default:
			return out, fmt.Errorf("scan admission: %w", err)
		}

		tx, err := c.begin(ctx)
		if err != nil {
			return out, err
		}
		var student any
		if cand.StudentID != nil {
			student = *cand.StudentID
		}
		id, err = c.insertReturningID(ctx, tx,
			`INSERT INTO admissions (student_id, name, course_id, phase, year, option_number, state, check_date)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
			student, cand.Name, cand.CourseID, cand.Phase, cand.Year,
			nullInt(cand.Option), nullStr(cand.State), now)
		if err != nil {
			_ = tx.Rollback()
			return out, err
		}
		if err := tx.Commit(); err != nil {
			return out, fmt.Errorf("commit admission: %w", err)
		}
		out = append(out, academic.Admission{ID: id, StudentID: cand.StudentID,
			Name: cand.Name, CourseID: cand.CourseID, Phase: cand.Phase, Year: cand.Year,
			Option: cand.Option, State: cand.State, CheckDate: now})
	}
	return out, nil
}
