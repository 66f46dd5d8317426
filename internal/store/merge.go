package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"campuscrawl/internal/academic"
)

// Merge semantics, shared by every method below:
//   - temporal ranges only widen, never shrink
//   - identity fields fill in once and conflict on change
//   - operational fields take the freshest non-nil observation
//   - link rows insert when absent and are otherwise left alone
// Each merge runs in its own transaction on the controller session.

// MergeInstitution inserts or reconciles one institution and returns the
// persisted row.
func (c *Controller) MergeInstitution(ctx context.Context, cand academic.InstitutionCandidate) (academic.Institution, error) {
	existing, err := c.InstitutionBySourceID(ctx, cand.SourceID)
	if err != nil {
		return academic.Institution{}, err
	}
	tx, err := c.begin(ctx)
	if err != nil {
		return academic.Institution{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if existing == nil {
		id, err := c.insertReturningID(ctx, tx,
			`INSERT INTO institutions (source_id, abbreviation, name, first_year, last_year)
			VALUES (?, ?, ?, ?, ?) RETURNING id`,
			cand.SourceID, cand.Abbreviation, cand.Name,
			nullYear(cand.Years.First), nullYear(cand.Years.Last))
		if err != nil {
			return academic.Institution{}, err
		}
		if err := tx.Commit(); err != nil {
			return academic.Institution{}, fmt.Errorf("commit institution: %w", err)
		}
		c.logger.Info("created institution", zap.Int("source_id", cand.SourceID), zap.String("name", cand.Name))
		return academic.Institution{ID: id, SourceID: cand.SourceID,
			Abbreviation: cand.Abbreviation, Name: cand.Name, Years: cand.Years}, nil
	}

	merged := *existing
	merged.Years.Extend(cand.Years)
	if cand.Name != "" {
		merged.Name = cand.Name
	}
	if cand.Abbreviation != "" {
		merged.Abbreviation = cand.Abbreviation
	}
	if merged == *existing {
		return *existing, nil
	}
	if err := c.exec(ctx, tx, `UPDATE institutions SET abbreviation = ?, name = ?, first_year = ?, last_year = ?
		WHERE id = ?`,
		merged.Abbreviation, merged.Name, nullYear(merged.Years.First), nullYear(merged.Years.Last), merged.ID); err != nil {
		return academic.Institution{}, err
	}
	if err := tx.Commit(); err != nil {
		return academic.Institution{}, fmt.Errorf("commit institution: %w", err)
	}
	return merged, nil
}

// MergeDepartment inserts or reconciles one department.
func (c *Controller) MergeDepartment(ctx context.Context, cand academic.DepartmentCandidate) (academic.Department, error) {
	existing, err := c.DepartmentBySourceID(ctx, cand.InstitutionID, cand.SourceID)
	if err != nil {
		return academic.Department{}, err
	}
	tx, err := c.begin(ctx)
	if err != nil {
		return academic.Department{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if existing == nil {
		id, err := c.insertReturningID(ctx, tx,
			`INSERT INTO departments (source_id, name, institution_id, first_year, last_year)
			VALUES (?, ?, ?, ?, ?) RETURNING id`,
			cand.SourceID, cand.Name, cand.InstitutionID,
			nullYear(cand.Years.First), nullYear(cand.Years.Last))
		if err != nil {
			return academic.Department{}, err
		}
		if err := tx.Commit(); err != nil {
			return academic.Department{}, fmt.Errorf("commit department: %w", err)
		}
		dept := academic.Department{ID: id, SourceID: cand.SourceID, Name: cand.Name,
			InstitutionID: cand.InstitutionID, Years: cand.Years}
		c.cache.storeDepartment(dept)
		c.logger.Info("created department", zap.Int("source_id", cand.SourceID), zap.String("name", cand.Name))
		return dept, nil
	}

	merged := *existing
	merged.Years.Extend(cand.Years)
	if cand.Name != "" && cand.Name != merged.Name {
		c.logger.Warn("department renamed",
			zap.Int("source_id", cand.SourceID),
			zap.String("old", merged.Name), zap.String("new", cand.Name))
		merged.Name = cand.Name
	}
	if merged == *existing {
		c.cache.storeDepartment(merged)
		return *existing, nil
	}
	if err := c.exec(ctx, tx, `UPDATE departments SET name = ?, first_year = ?, last_year = ? WHERE id = ?`,
		merged.Name, nullYear(merged.Years.First), nullYear(merged.Years.Last), merged.ID); err != nil {
		return academic.Department{}, err
	}
	if err := tx.Commit(); err != nil {
		return academic.Department{}, fmt.Errorf("commit department: %w", err)
	}
	c.cache.storeDepartment(merged)
	return merged, nil
}

// MergeDepartments reconciles a batch in candidate order.
func (c *Controller) MergeDepartments(ctx context.Context, cands []academic.DepartmentCandidate) ([]academic.Department, error) {
	out := make([]academic.Department, 0, len(cands))
	for _, cand := range cands {
		dept, err := c.MergeDepartment(ctx, cand)
		if err != nil {
			return out, err
		}
		out = append(out, dept)
	}
	return out, nil
}

// MergeCourse inserts or reconciles one course. The name is immutable: a
// different non-empty name is a hard conflict and leaves the row unchanged.
// The degree link and the abbreviation take the freshest non-empty
// observation; years only widen.
func (c *Controller) MergeCourse(ctx context.Context, cand academic.CourseCandidate) (academic.Course, error) {
	existing, err := c.CourseBySourceID(ctx, cand.InstitutionID, cand.SourceID)
	if err != nil {
		return academic.Course{}, err
	}
	tx, err := c.begin(ctx)
	if err != nil {
		return academic.Course{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if existing == nil {
		id, err := c.insertReturningID(ctx, tx,
			`INSERT INTO courses (source_id, name, abbreviation, degree_id, institution_id, first_year, last_year)
			VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
			cand.SourceID, cand.Name, cand.Abbreviation, nullID(cand.DegreeID),
			cand.InstitutionID, nullYear(cand.Years.First), nullYear(cand.Years.Last))
		if err != nil {
			return academic.Course{}, err
		}
		if err := tx.Commit(); err != nil {
			return academic.Course{}, fmt.Errorf("commit course: %w", err)
		}
		c.logger.Info("created course", zap.Int("source_id", cand.SourceID), zap.String("name", cand.Name))
		return academic.Course{ID: id, SourceID: cand.SourceID, Name: cand.Name,
			Abbreviation: cand.Abbreviation, DegreeID: cand.DegreeID,
			InstitutionID: cand.InstitutionID, Years: cand.Years}, nil
	}

	if cand.Name != "" && existing.Name != "" && cand.Name != existing.Name {
		return academic.Course{}, &academic.ConflictError{
			Entity: "course",
			Key:    strconv.Itoa(cand.SourceID),
			Field:  "name",
			Old:    existing.Name,
			New:    cand.Name,
		}
	}

	merged := *existing
	merged.Years.Extend(cand.Years)
	if merged.Name == "" {
		merged.Name = cand.Name
	}
	if cand.Abbreviation != "" {
		merged.Abbreviation = cand.Abbreviation
	}
	if cand.DegreeID != 0 {
		merged.DegreeID = cand.DegreeID
	}
	if merged == *existing {
		return *existing, nil
	}
	if err := c.exec(ctx, tx, `UPDATE courses SET name = ?, abbreviation = ?, degree_id = ?, first_year = ?, last_year = ?
		WHERE id = ?`,
		merged.Name, merged.Abbreviation, nullID(merged.DegreeID),
		nullYear(merged.Years.First), nullYear(merged.Years.Last), merged.ID); err != nil {
		return academic.Course{}, err
	}
	if err := tx.Commit(); err != nil {
		return academic.Course{}, fmt.Errorf("commit course: %w", err)
	}
	return merged, nil
}

// MergeCourses reconciles a batch in candidate order.
func (c *Controller) MergeCourses(ctx context.Context, cands []academic.CourseCandidate) ([]academic.Course, error) {
	out := make([]academic.Course, 0, len(cands))
	for _, cand := range cands {
		course, err := c.MergeCourse(ctx, cand)
		if err != nil {
			return out, err
		}
		out = append(out, course)
	}
	return out, nil
}

// MergeClass inserts or reconciles one class. The name is immutable: a
// different non-empty name is a hard conflict and leaves the row unchanged.
func (c *Controller) MergeClass(ctx context.Context, cand academic.ClassCandidate) (academic.Class, error) {
	existing, err := c.ClassBySourceID(ctx, cand.DepartmentID, cand.SourceID)
	if err != nil {
		return academic.Class{}, err
	}
	tx, err := c.begin(ctx)
	if err != nil {
		return academic.Class{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if existing == nil {
		id, err := c.insertReturningID(ctx, tx,
			`INSERT INTO classes (source_id, department_id, name, abbreviation, ects)
			VALUES (?, ?, ?, ?, ?) RETURNING id`,
			cand.SourceID, cand.DepartmentID, cand.Name, cand.Abbreviation, nullInt(cand.ECTS))
		if err != nil {
			return academic.Class{}, err
		}
		if err := tx.Commit(); err != nil {
			return academic.Class{}, fmt.Errorf("commit class: %w", err)
		}
		c.logger.Debug("created class", zap.Int("source_id", cand.SourceID), zap.String("name", cand.Name))
		return academic.Class{ID: id, SourceID: cand.SourceID, DepartmentID: cand.DepartmentID,
			Name: cand.Name, Abbreviation: cand.Abbreviation, ECTS: cand.ECTS}, nil
	}

	if cand.Name != "" && existing.Name != "" && cand.Name != existing.Name {
		return academic.Class{}, &academic.ConflictError{
			Entity: "class",
			Key:    strconv.Itoa(cand.SourceID),
			Field:  "name",
			Old:    existing.Name,
			New:    cand.Name,
		}
	}

	merged := *existing
	if merged.Name == "" {
		merged.Name = cand.Name
	}
	if cand.Abbreviation != "" {
		merged.Abbreviation = cand.Abbreviation
	}
	if cand.ECTS != nil {
		merged.ECTS = cand.ECTS
	}
	if classEqual(merged, *existing) {
		return *existing, nil
	}
	if err := c.exec(ctx, tx, `UPDATE classes SET name = ?, abbreviation = ?, ects = ? WHERE id = ?`,
		merged.Name, merged.Abbreviation, nullInt(merged.ECTS), merged.ID); err != nil {
		return academic.Class{}, err
	}
	if err := tx.Commit(); err != nil {
		return academic.Class{}, fmt.Errorf("commit class: %w", err)
	}
	return merged, nil
}

func classEqual(a, b academic.Class) bool {
	if a.ID != b.ID || a.SourceID != b.SourceID || a.DepartmentID != b.DepartmentID ||
		a.Name != b.Name || a.Abbreviation != b.Abbreviation {
		return false
	}
	return equalIntPtr(a.ECTS, b.ECTS)
}

func equalIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// AddClassInstances inserts the offerings that do not exist yet and returns
// the full persisted batch, existing rows included.
func (c *Controller) AddClassInstances(ctx context.Context, cands []academic.ClassInstanceCandidate) ([]academic.ClassInstance, error) {
	out := make([]academic.ClassInstance, 0, len(cands))
	for _, cand := range cands {
		existing, err := c.ClassInstance(ctx, cand.ClassID, cand.Year, cand.PeriodID)
		if err != nil {
			return out, err
		}
		if existing != nil {
			out = append(out, *existing)
			continue
		}
		tx, err := c.begin(ctx)
		if err != nil {
			return out, err
		}
		id, err := c.insertReturningID(ctx, tx,
			`INSERT INTO class_instances (class_id, period_id, year) VALUES (?, ?, ?) RETURNING id`,
			cand.ClassID, cand.PeriodID, cand.Year)
		if err != nil {
			_ = tx.Rollback()
			return out, err
		}
		if err := tx.Commit(); err != nil {
			return out, fmt.Errorf("commit class instance: %w", err)
		}
		out = append(out, academic.ClassInstance{ID: id, ClassID: cand.ClassID,
			PeriodID: cand.PeriodID, Year: cand.Year})
	}
	return out, nil
}

var accentFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldName lowers and strips diacritics so that two renderings of the same
// personal name compare equal.
func foldName(name string) string {
	folded, _, err := transform.String(accentFold, name)
	if err != nil {
		folded = name
	}
	return strings.ToLower(strings.Join(strings.Fields(folded), " "))
}

// MergeStudent inserts or reconciles one student. Names that differ only in
// casing or diacritics are the same student and the freshest rendering wins;
// a materially different name is a hard conflict. The abbreviation fills in
// once and conflicts on change.
func (c *Controller) MergeStudent(ctx context.Context, cand academic.StudentCandidate) (academic.Student, error) {
	existing, err := c.StudentBySourceID(ctx, cand.InstitutionID, cand.SourceID)
	if err != nil {
		return academic.Student{}, err
	}
	tx, err := c.begin(ctx)
	if err != nil {
		return academic.Student{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if existing == nil {
		id, err := c.insertReturningID(ctx, tx,
			`INSERT INTO students (source_id, name, abbreviation, course_id, institution_id, first_year, last_year)
			VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
			cand.SourceID, cand.Name, cand.Abbreviation, nullID(cand.CourseID),
			cand.InstitutionID, nullYear(cand.Years.First), nullYear(cand.Years.Last))
		if err != nil {
			return academic.Student{}, err
		}
		if err := tx.Commit(); err != nil {
			return academic.Student{}, fmt.Errorf("commit student: %w", err)
		}
		return academic.Student{ID: id, SourceID: cand.SourceID, Name: cand.Name,
			Abbreviation: cand.Abbreviation, CourseID: cand.CourseID,
			InstitutionID: cand.InstitutionID, Years: cand.Years}, nil
	}

	if cand.Name != "" && existing.Name != "" && foldName(cand.Name) != foldName(existing.Name) {
		return academic.Student{}, &academic.ConflictError{
			Entity: "student",
			Key:    strconv.Itoa(cand.SourceID),
			Field:  "name",
			Old:    existing.Name,
			New:    cand.Name,
		}
	}
	if cand.Abbreviation != "" && existing.Abbreviation != "" && cand.Abbreviation != existing.Abbreviation {
		return academic.Student{}, &academic.ConflictError{
			Entity: "student",
			Key:    strconv.Itoa(cand.SourceID),
			Field:  "abbreviation",
			Old:    existing.Abbreviation,
			New:    cand.Abbreviation,
		}
	}

	merged := *existing
	merged.Years.Extend(cand.Years)
	if cand.Name != "" {
		merged.Name = cand.Name
	}
	if merged.Abbreviation == "" {
		merged.Abbreviation = cand.Abbreviation
	}
	if cand.CourseID != 0 {
		merged.CourseID = cand.CourseID
	}
	if merged == *existing {
		return *existing, nil
	}
	if err := c.exec(ctx, tx, `UPDATE students SET name = ?, abbreviation = ?, course_id = ?, first_year = ?, last_year = ?
		WHERE id = ?`,
		merged.Name, merged.Abbreviation, nullID(merged.CourseID),
		nullYear(merged.Years.First), nullYear(merged.Years.Last), merged.ID); err != nil {
		return academic.Student{}, err
	}
	if err := tx.Commit(); err != nil {
		return academic.Student{}, fmt.Errorf("commit student: %w", err)
	}
	return merged, nil
}

// MergeTeacher inserts or reconciles one teacher.
func (c *Controller) MergeTeacher(ctx context.Context, cand academic.TeacherCandidate) (academic.Teacher, error) {
	existing, err := c.TeacherBySourceID(ctx, cand.DepartmentID, cand.SourceID)
	if err != nil {
		return academic.Teacher{}, err
	}
	tx, err := c.begin(ctx)
	if err != nil {
		return academic.Teacher{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if existing == nil {
		id, err := c.insertReturningID(ctx, tx,
			`INSERT INTO teachers (source_id, name, department_id, first_year, last_year)
			VALUES (?, ?, ?, ?, ?) RETURNING id`,
			cand.SourceID, cand.Name, cand.DepartmentID,
			nullYear(cand.Years.First), nullYear(cand.Years.Last))
		if err != nil {
			return academic.Teacher{}, err
		}
		if err := tx.Commit(); err != nil {
			return academic.Teacher{}, fmt.Errorf("commit teacher: %w", err)
		}
		return academic.Teacher{ID: id, SourceID: cand.SourceID, Name: cand.Name,
			DepartmentID: cand.DepartmentID, Years: cand.Years}, nil
	}

	merged := *existing
	merged.Years.Extend(cand.Years)
	if cand.Name != "" {
		merged.Name = cand.Name
	}
	if merged == *existing {
		return *existing, nil
	}
	if err := c.exec(ctx, tx, `UPDATE teachers SET name = ?, first_year = ?, last_year = ? WHERE id = ?`,
		merged.Name, nullYear(merged.Years.First), nullYear(merged.Years.Last), merged.ID); err != nil {
		return academic.Teacher{}, err
	}
	if err := tx.Commit(); err != nil {
		return academic.Teacher{}, fmt.Errorf("commit teacher: %w", err)
	}
	return merged, nil
}

// EnsureBuilding inserts the building when absent and widens its years
// otherwise.
func (c *Controller) EnsureBuilding(ctx context.Context, cand academic.BuildingCandidate) (academic.Building, error) {
	existing, err := c.BuildingByName(ctx, cand.Name)
	if err != nil {
		return academic.Building{}, err
	}
	tx, err := c.begin(ctx)
	if err != nil {
		return academic.Building{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if existing == nil {
		id, err := c.insertReturningID(ctx, tx,
			`INSERT INTO buildings (source_id, name, first_year, last_year)
			VALUES (?, ?, ?, ?) RETURNING id`,
			cand.SourceID, cand.Name, nullYear(cand.Years.First), nullYear(cand.Years.Last))
		if err != nil {
			return academic.Building{}, err
		}
		if err := tx.Commit(); err != nil {
			return academic.Building{}, fmt.Errorf("commit building: %w", err)
		}
		b := academic.Building{ID: id, SourceID: cand.SourceID, Name: cand.Name, Years: cand.Years}
		c.cache.storeBuilding(b)
		return b, nil
	}

	merged := *existing
	merged.Years.Extend(cand.Years)
	if merged == *existing {
		c.cache.storeBuilding(merged)
		return *existing, nil
	}
	if err := c.exec(ctx, tx, `UPDATE buildings SET first_year = ?, last_year = ? WHERE id = ?`,
		nullYear(merged.Years.First), nullYear(merged.Years.Last), merged.ID); err != nil {
		return academic.Building{}, err
	}
	if err := tx.Commit(); err != nil {
		return academic.Building{}, fmt.Errorf("commit building: %w", err)
	}
	c.cache.storeBuilding(merged)
	return merged, nil
}

// EnsureRoom inserts the room when absent. Rooms carry no mutable attributes.
func (c *Controller) EnsureRoom(ctx context.Context, cand academic.RoomCandidate) (academic.Room, error) {
	row := c.queryRow(ctx, `SELECT id, name, kind, building_id FROM rooms
		WHERE building_id = ? AND name = ? AND kind = ?`, cand.BuildingID, cand.Name, cand.Kind)
	var room academic.Room
	err := row.Scan(&room.ID, &room.Name, &room.Kind, &room.BuildingID)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return academic.Room{}, fmt.Errorf("scan room: %w", err)
	}
	tx, err := c.begin(ctx)
	if err != nil {
		return academic.Room{}, err
	}
	defer func() { _ = tx.Rollback() }()
	id, err := c.insertReturningID(ctx, tx,
		`INSERT INTO rooms (name, kind, building_id) VALUES (?, ?, ?) RETURNING id`,
		cand.Name, cand.Kind, cand.BuildingID)
	if err != nil {
		return academic.Room{}, err
	}
	if err := tx.Commit(); err != nil {
		return academic.Room{}, fmt.Errorf("commit room: %w", err)
	}
	return academic.Room{ID: id, Name: cand.Name, Kind: cand.Kind, BuildingID: cand.BuildingID}, nil
}

// MergeShift inserts or reconciles one shift. Every operational field takes
// the freshest non-nil observation.
func (c *Controller) MergeShift(ctx context.Context, cand academic.ShiftCandidate) (academic.Shift, error) {
	existing, err := c.Shift(ctx, cand.ClassInstanceID, cand.TypeID, cand.Number)
	if err != nil {
		return academic.Shift{}, err
	}
	tx, err := c.begin(ctx)
	if err != nil {
		return academic.Shift{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if existing == nil {
		id, err := c.insertReturningID(ctx, tx,
			`INSERT INTO shifts (class_instance_id, number, type_id, enrolled, capacity, minutes, routes, restrictions, state)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
			cand.ClassInstanceID, cand.Number, cand.TypeID,
			nullInt(cand.Enrolled), nullInt(cand.Capacity), nullInt(cand.Minutes),
			nullStr(cand.Routes), nullStr(cand.Restrictions), nullStr(cand.State))
		if err != nil {
			return academic.Shift{}, err
		}
		if err := tx.Commit(); err != nil {
			return academic.Shift{}, fmt.Errorf("commit shift: %w", err)
		}
		return academic.Shift{ID: id, ClassInstanceID: cand.ClassInstanceID,
			Number: cand.Number, TypeID: cand.TypeID,
			Enrolled: cand.Enrolled, Capacity: cand.Capacity, Minutes: cand.Minutes,
			Routes: cand.Routes, Restrictions: cand.Restrictions, State: cand.State}, nil
	}

	merged := *existing
	changed := false
	for _, f := range []struct {
		dst **int
		src *int
	}{
		{&merged.Enrolled, cand.Enrolled},
		{&merged.Capacity, cand.Capacity},
		{&merged.Minutes, cand.Minutes},
	} {
		if f.src != nil && !equalIntPtr(*f.dst, f.src) {
			*f.dst = f.src
			changed = true
		}
	}
	for _, f := range []struct {
		dst **string
		src *string
	}{
		{&merged.Routes, cand.Routes},
		{&merged.Restrictions, cand.Restrictions},
		{&merged.State, cand.State},
	} {
		if f.src != nil && (*f.dst == nil || **f.dst != *f.src) {
			*f.dst = f.src
			changed = true
		}
	}
	if !changed {
		return *existing, nil
	}
	if err := c.exec(ctx, tx, `UPDATE shifts SET enrolled = ?, capacity = ?, minutes = ?, routes = ?, restrictions = ?, state = ?
		WHERE id = ?`,
		nullInt(merged.Enrolled), nullInt(merged.Capacity), nullInt(merged.Minutes),
		nullStr(merged.Routes), nullStr(merged.Restrictions), nullStr(merged.State), merged.ID); err != nil {
		return academic.Shift{}, err
	}
	if err := tx.Commit(); err != nil {
		return academic.Shift{}, fmt.Errorf("commit shift: %w", err)
	}
	return merged, nil
}
