package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"campuscrawl/internal/academic"
)

// Controller is the reconciliation façade over one exclusive store session.
// It performs natural-key lookups and idempotent add-or-merge operations.
// Controllers are NOT safe for concurrent use: each worker owns its own.
type Controller struct {
	conn   *sql.Conn
	st     *Store
	logger *zap.Logger
	cache  *refCache
}

// Close returns the session to the pool.
func (c *Controller) Close() error {
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("close store session: %w", err)
	}
	return nil
}

func (c *Controller) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	rows, err := c.conn.QueryContext(ctx, c.st.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("store query: %w", err)
	}
	return rows, nil
}

func (c *Controller) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return c.conn.QueryRowContext(ctx, c.st.rebind(q), args...)
}

func (c *Controller) begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin store transaction: %w", err)
	}
	return tx, nil
}

func (c *Controller) exec(ctx context.Context, tx *sql.Tx, q string, args ...any) error {
	if _, err := tx.ExecContext(ctx, c.st.rebind(q), args...); err != nil {
		return fmt.Errorf("store exec: %w", err)
	}
	return nil
}

func (c *Controller) insertReturningID(ctx context.Context, tx *sql.Tx, q string, args ...any) (int64, error) {
	var id int64
	if err := tx.QueryRowContext(ctx, c.st.rebind(q), args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("store insert: %w", err)
	}
	return id, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// --- null scanning helpers ---

func nullStr(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

// nullID maps the zero surrogate key to NULL.
func nullID(id int64) sql.NullInt64 {
	if id == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: id, Valid: true}
}

func nullYear(y int) sql.NullInt64 {
	if y == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(y), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func strPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

// --- lookups (natural keys only) ---

// InstitutionBySourceID returns nil when the institution is unknown.
func (c *Controller) InstitutionBySourceID(ctx context.Context, sourceID int) (*academic.Institution, error) {
	row := c.queryRow(ctx, `SELECT id, source_id, abbreviation, name, first_year, last_year
		FROM institutions WHERE source_id = ?`, sourceID)
	return scanInstitution(row)
}

// ListInstitutions returns every known institution.
func (c *Controller) ListInstitutions(ctx context.Context) ([]academic.Institution, error) {
	rows, err := c.query(ctx, `SELECT id, source_id, abbreviation, name, first_year, last_year
		FROM institutions ORDER BY source_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []academic.Institution
	for rows.Next() {
		var (
			inst        academic.Institution
			first, last sql.NullInt64
		)
		if err := rows.Scan(&inst.ID, &inst.SourceID, &inst.Abbreviation, &inst.Name, &first, &last); err != nil {
			return nil, fmt.Errorf("scan institution: %w", err)
		}
		inst.Years = yearRange(first, last)
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate institutions: %w", err)
	}
	return out, nil
}

func scanInstitution(row *sql.Row) (*academic.Institution, error) {
	var (
		inst        academic.Institution
		first, last sql.NullInt64
	)
	err := row.Scan(&inst.ID, &inst.SourceID, &inst.Abbreviation, &inst.Name, &first, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan institution: %w", err)
	}
	inst.Years = yearRange(first, last)
	return &inst, nil
}

// DepartmentBySourceID returns nil when the department is unknown.
func (c *Controller) DepartmentBySourceID(ctx context.Context, institutionID int64, sourceID int) (*academic.Department, error) {
	if d, ok := c.cache.department(institutionID, sourceID); ok {
		return d, nil
	}
	row := c.queryRow(ctx, `SELECT id, source_id, name, institution_id, first_year, last_year
		FROM departments WHERE institution_id = ? AND source_id = ?`, institutionID, sourceID)
	return scanDepartment(row)
}

func scanDepartment(row *sql.Row) (*academic.Department, error) {
	var (
		dept        academic.Department
		first, last sql.NullInt64
	)
	err := row.Scan(&dept.ID, &dept.SourceID, &dept.Name, &dept.InstitutionID, &first, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan department: %w", err)
	}
	dept.Years = yearRange(first, last)
	return &dept, nil
}

// ListDepartments returns every known department.
func (c *Controller) ListDepartments(ctx context.Context) ([]academic.Department, error) {
	rows, err := c.query(ctx, `SELECT id, source_id, name, institution_id, first_year, last_year
		FROM departments ORDER BY source_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []academic.Department
	for rows.Next() {
		var (
			dept        academic.Department
			first, last sql.NullInt64
		)
		if err := rows.Scan(&dept.ID, &dept.SourceID, &dept.Name, &dept.InstitutionID, &first, &last); err != nil {
			return nil, fmt.Errorf("scan department: %w", err)
		}
		dept.Years = yearRange(first, last)
		out = append(out, dept)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate departments: %w", err)
	}
	return out, nil
}

// Degree resolves a degree by its portal code. The integrated-master row
// shares the "M" code and is resolved explicitly by name, never by code.
func (c *Controller) Degree(ctx context.Context, code string) (*academic.Degree, error) {
	if d, ok := c.cache.degree(code); ok {
		return d, nil
	}
	row := c.queryRow(ctx, `SELECT id, code, name FROM degrees
		WHERE code = ? AND name <> 'Mestrado Integrado'`, code)
	var d academic.Degree
	err := row.Scan(&d.ID, &d.Code, &d.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan degree: %w", err)
	}
	return &d, nil
}

// IntegratedMasterDegree returns the dedicated integrated-master row.
func (c *Controller) IntegratedMasterDegree(ctx context.Context) (*academic.Degree, error) {
	row := c.queryRow(ctx, `SELECT id, code, name FROM degrees WHERE name = 'Mestrado Integrado'`)
	var d academic.Degree
	err := row.Scan(&d.ID, &d.Code, &d.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan degree: %w", err)
	}
	return &d, nil
}

// ListDegrees returns every degree.
func (c *Controller) ListDegrees(ctx context.Context) ([]academic.Degree, error) {
	rows, err := c.query(ctx, `SELECT id, code, name FROM degrees ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []academic.Degree
	for rows.Next() {
		var d academic.Degree
		if err := rows.Scan(&d.ID, &d.Code, &d.Name); err != nil {
			return nil, fmt.Errorf("scan degree: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate degrees: %w", err)
	}
	return out, nil
}

// Period resolves a period by (part, parts), e.g. (2, 2) = second semester.
func (c *Controller) Period(ctx context.Context, part, parts int) (*academic.Period, error) {
	if p, ok := c.cache.period(part, parts); ok {
		return p, nil
	}
	row := c.queryRow(ctx, `SELECT id, part, parts, letter FROM periods
		WHERE part = ? AND parts = ?`, part, parts)
	var p academic.Period
	err := row.Scan(&p.ID, &p.Part, &p.Parts, &p.Letter)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan period: %w", err)
	}
	return &p, nil
}

// ListPeriods returns every period scheme.
func (c *Controller) ListPeriods(ctx context.Context) ([]academic.Period, error) {
	rows, err := c.query(ctx, `SELECT id, part, parts, letter FROM periods ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []academic.Period
	for rows.Next() {
		var p academic.Period
		if err := rows.Scan(&p.ID, &p.Part, &p.Parts, &p.Letter); err != nil {
			return nil, fmt.Errorf("scan period: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate periods: %w", err)
	}
	return out, nil
}

// ShiftType resolves a shift type by its abbreviation ("t", "p", "tp", ...).
func (c *Controller) ShiftType(ctx context.Context, abbreviation string) (*academic.ShiftType, error) {
	if t, ok := c.cache.shiftType(abbreviation); ok {
		return t, nil
	}
	row := c.queryRow(ctx, `SELECT id, name, abbreviation FROM shift_types WHERE abbreviation = ?`, abbreviation)
	var t academic.ShiftType
	err := row.Scan(&t.ID, &t.Name, &t.Abbreviation)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan shift type: %w", err)
	}
	return &t, nil
}

// CourseBySourceID returns nil when the course is unknown.
func (c *Controller) CourseBySourceID(ctx context.Context, institutionID int64, sourceID int) (*academic.Course, error) {
	row := c.queryRow(ctx, `SELECT id, source_id, name, abbreviation, degree_id, institution_id, first_year, last_year
		FROM courses WHERE institution_id = ? AND source_id = ?`, institutionID, sourceID)
	course, err := scanCourseRow(row)
	if err != nil {
		return nil, err
	}
	return course, nil
}

// CourseByAbbreviation resolves a course by its acronym. When several courses
// share the acronym the year narrows the search to those active at the time;
// an unresolvable ambiguity returns nil rather than a guess.
func (c *Controller) CourseByAbbreviation(ctx context.Context, abbreviation string, year int) (*academic.Course, error) {
	rows, err := c.query(ctx, `SELECT id, source_id, name, abbreviation, degree_id, institution_id, first_year, last_year
		FROM courses WHERE abbreviation = ?`, abbreviation)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var matches []academic.Course
	for rows.Next() {
		course, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, course)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate courses: %w", err)
	}
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return &matches[0], nil
	}
	if year == 0 {
		c.logger.Warn("ambiguous course abbreviation, year unspecified", zap.String("abbreviation", abbreviation))
		return nil, nil
	}
	var active []academic.Course
	for _, course := range matches {
		if course.Years.Contains(year) {
			active = append(active, course)
		}
	}
	if len(active) == 1 {
		return &active[0], nil
	}
	c.logger.Warn("ambiguous course abbreviation",
		zap.String("abbreviation", abbreviation), zap.Int("year", year), zap.Int("matches", len(matches)))
	return nil, nil
}

// ListCourses returns every known course.
func (c *Controller) ListCourses(ctx context.Context) ([]academic.Course, error) {
	rows, err := c.query(ctx, `SELECT id, source_id, name, abbreviation, degree_id, institution_id, first_year, last_year
		FROM courses ORDER BY source_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []academic.Course
	for rows.Next() {
		course, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, course)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate courses: %w", err)
	}
	return out, nil
}

func scanCourse(rows *sql.Rows) (academic.Course, error) {
	var (
		course      academic.Course
		degree      sql.NullInt64
		first, last sql.NullInt64
	)
	if err := rows.Scan(&course.ID, &course.SourceID, &course.Name, &course.Abbreviation,
		&degree, &course.InstitutionID, &first, &last); err != nil {
		return academic.Course{}, fmt.Errorf("scan course: %w", err)
	}
	course.DegreeID = degree.Int64
	course.Years = yearRange(first, last)
	return course, nil
}

func scanCourseRow(row *sql.Row) (*academic.Course, error) {
	var (
		course      academic.Course
		degree      sql.NullInt64
		first, last sql.NullInt64
	)
	err := row.Scan(&course.ID, &course.SourceID, &course.Name, &course.Abbreviation,
		&degree, &course.InstitutionID, &first, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan course: %w", err)
	}
	course.DegreeID = degree.Int64
	course.Years = yearRange(first, last)
	return &course, nil
}

// ClassBySourceID returns nil when the class is unknown. Source class ids
// collide across departments, so the department scopes the key.
func (c *Controller) ClassBySourceID(ctx context.Context, departmentID int64, sourceID int) (*academic.Class, error) {
	row := c.queryRow(ctx, `SELECT id, source_id, department_id, name, abbreviation, ects
		FROM classes WHERE department_id = ? AND source_id = ?`, departmentID, sourceID)
	var (
		class academic.Class
		ects  sql.NullInt64
	)
	err := row.Scan(&class.ID, &class.SourceID, &class.DepartmentID, &class.Name, &class.Abbreviation, &ects)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan class: %w", err)
	}
	class.ECTS = intPtr(ects)
	return &class, nil
}

// ClassByID loads one class by surrogate key for the query facade.
func (c *Controller) ClassByID(ctx context.Context, id int64) (*academic.Class, error) {
	row := c.queryRow(ctx, `SELECT id, source_id, department_id, name, abbreviation, ects
		FROM classes WHERE id = ?`, id)
	var (
		class academic.Class
		ects  sql.NullInt64
	)
	err := row.Scan(&class.ID, &class.SourceID, &class.DepartmentID, &class.Name, &class.Abbreviation, &ects)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan class: %w", err)
	}
	class.ECTS = intPtr(ects)
	return &class, nil
}

// ClassInstance returns nil when the offering is unknown.
func (c *Controller) ClassInstance(ctx context.Context, classID int64, year int, periodID int64) (*academic.ClassInstance, error) {
	row := c.queryRow(ctx, `SELECT id, class_id, period_id, year FROM class_instances
		WHERE class_id = ? AND year = ? AND period_id = ?`, classID, year, periodID)
	var inst academic.ClassInstance
	err := row.Scan(&inst.ID, &inst.ClassID, &inst.PeriodID, &inst.Year)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan class instance: %w", err)
	}
	return &inst, nil
}

// ListClassInstances enumerates offerings, optionally filtered by year and
// period. Zero arguments mean "no filter".
func (c *Controller) ListClassInstances(ctx context.Context, year int, periodID int64) ([]academic.ClassInstance, error) {
	q := `SELECT id, class_id, period_id, year FROM class_instances`
	var (
		clauses []string
		args    []any
	)
	if year != 0 {
		clauses = append(clauses, "year = ?")
		args = append(args, year)
	}
	if periodID != 0 {
		clauses = append(clauses, "period_id = ?")
		args = append(args, periodID)
	}
	if len(clauses) > 0 {
		q += " WHERE " + strings.Join(clauses, " AND ")
	}
	q += " ORDER BY year, id"
	rows, err := c.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []academic.ClassInstance
	for rows.Next() {
		var inst academic.ClassInstance
		if err := rows.Scan(&inst.ID, &inst.ClassID, &inst.PeriodID, &inst.Year); err != nil {
			return nil, fmt.Errorf("scan class instance: %w", err)
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate class instances: %w", err)
	}
	return out, nil
}

// StudentBySourceID returns nil when the student is unknown.
func (c *Controller) StudentBySourceID(ctx context.Context, institutionID int64, sourceID int) (*academic.Student, error) {
	row := c.queryRow(ctx, `SELECT id, source_id, name, abbreviation, course_id, institution_id, first_year, last_year
		FROM students WHERE institution_id = ? AND source_id = ?`, institutionID, sourceID)
	var (
		student     academic.Student
		course      sql.NullInt64
		first, last sql.NullInt64
	)
	err := row.Scan(&student.ID, &student.SourceID, &student.Name, &student.Abbreviation,
		&course, &student.InstitutionID, &first, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan student: %w", err)
	}
	student.CourseID = course.Int64
	student.Years = yearRange(first, last)
	return &student, nil
}

// FindStudents searches by name fragments for the query facade.
func (c *Controller) FindStudents(ctx context.Context, name string) ([]academic.Student, error) {
	pattern := "%"
	for _, word := range strings.Fields(name) {
		pattern += word + "%"
	}
	rows, err := c.query(ctx, `SELECT id, source_id, name, abbreviation, course_id, institution_id, first_year, last_year
		FROM students WHERE name LIKE ? ORDER BY source_id`, pattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []academic.Student
	for rows.Next() {
		var (
			student     academic.Student
			course      sql.NullInt64
			first, last sql.NullInt64
		)
		if err := rows.Scan(&student.ID, &student.SourceID, &student.Name, &student.Abbreviation,
			&course, &student.InstitutionID, &first, &last); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		student.CourseID = course.Int64
		student.Years = yearRange(first, last)
		out = append(out, student)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}
	return out, nil
}

// TeacherBySourceID returns nil when the teacher is unknown.
func (c *Controller) TeacherBySourceID(ctx context.Context, departmentID int64, sourceID int) (*academic.Teacher, error) {
	row := c.queryRow(ctx, `SELECT id, source_id, name, department_id, first_year, last_year
		FROM teachers WHERE department_id = ? AND source_id = ?`, departmentID, sourceID)
	var (
		teacher     academic.Teacher
		first, last sql.NullInt64
	)
	err := row.Scan(&teacher.ID, &teacher.SourceID, &teacher.Name, &teacher.DepartmentID, &first, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan teacher: %w", err)
	}
	teacher.Years = yearRange(first, last)
	return &teacher, nil
}

// BuildingByName returns nil when the building is unknown.
func (c *Controller) BuildingByName(ctx context.Context, name string) (*academic.Building, error) {
	if b, ok := c.cache.building(name); ok {
		return b, nil
	}
	row := c.queryRow(ctx, `SELECT id, source_id, name, first_year, last_year FROM buildings WHERE name = ?`, name)
	var (
		building    academic.Building
		first, last sql.NullInt64
	)
	err := row.Scan(&building.ID, &building.SourceID, &building.Name, &first, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan building: %w", err)
	}
	building.Years = yearRange(first, last)
	return &building, nil
}

// ListBuildings returns every known building.
func (c *Controller) ListBuildings(ctx context.Context) ([]academic.Building, error) {
	rows, err := c.query(ctx, `SELECT id, source_id, name, first_year, last_year FROM buildings ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []academic.Building
	for rows.Next() {
		var (
			building    academic.Building
			first, last sql.NullInt64
		)
		if err := rows.Scan(&building.ID, &building.SourceID, &building.Name, &first, &last); err != nil {
			return nil, fmt.Errorf("scan building: %w", err)
		}
		building.Years = yearRange(first, last)
		out = append(out, building)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate buildings: %w", err)
	}
	return out, nil
}

// RoomByName resolves a room within a building. The kind hint mirrors the
// schedule decoder's best guess: lab hints match both laboratories and
// computer rooms, while an absent hint prefers non-lab rooms.
func (c *Controller) RoomByName(ctx context.Context, name string, buildingID int64, hint academic.RoomKind) (*academic.Room, error) {
	rows, err := c.query(ctx, `SELECT id, name, kind, building_id FROM rooms
		WHERE building_id = ? AND name = ?`, buildingID, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var matches []academic.Room
	for rows.Next() {
		var room academic.Room
		if err := rows.Scan(&room.ID, &room.Name, &room.Kind, &room.BuildingID); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		matches = append(matches, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rooms: %w", err)
	}
	if len(matches) == 1 {
		return &matches[0], nil
	}
	if len(matches) == 0 {
		return nil, nil
	}
	var filtered []academic.Room
	for _, room := range matches {
		switch {
		case hint == academic.RoomLaboratory:
			if room.Kind == academic.RoomLaboratory || room.Kind == academic.RoomComputer {
				filtered = append(filtered, room)
			}
		case hint != 0:
			if room.Kind == hint {
				filtered = append(filtered, room)
			}
		default:
			if room.Kind != academic.RoomLaboratory && room.Kind != academic.RoomComputer {
				filtered = append(filtered, room)
			}
		}
	}
	if len(filtered) == 1 {
		return &filtered[0], nil
	}
	return nil, nil
}

// Shift returns nil when the shift is unknown.
func (c *Controller) Shift(ctx context.Context, classInstanceID int64, typeID int64, number int) (*academic.Shift, error) {
	row := c.queryRow(ctx, `SELECT id, class_instance_id, number, type_id, enrolled, capacity, minutes,
		routes, restrictions, state
		FROM shifts WHERE class_instance_id = ? AND type_id = ? AND number = ?`, classInstanceID, typeID, number)
	return scanShift(row)
}

func scanShift(row *sql.Row) (*academic.Shift, error) {
	var (
		shift                        academic.Shift
		enrolled, capacity, minutes  sql.NullInt64
		routes, restrictions, status sql.NullString
	)
	err := row.Scan(&shift.ID, &shift.ClassInstanceID, &shift.Number, &shift.TypeID,
		&enrolled, &capacity, &minutes, &routes, &restrictions, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan shift: %w", err)
	}
	shift.Enrolled = intPtr(enrolled)
	shift.Capacity = intPtr(capacity)
	shift.Minutes = intPtr(minutes)
	shift.Routes = strPtr(routes)
	shift.Restrictions = strPtr(restrictions)
	shift.State = strPtr(status)
	return &shift, nil
}

// ShiftInstances lists the current weekly slots of one shift.
func (c *Controller) ShiftInstances(ctx context.Context, shiftID int64) ([]academic.ShiftInstance, error) {
	rows, err := c.query(ctx, `SELECT id, shift_id, weekday, start_min, end_min, room_id
		FROM shift_instances WHERE shift_id = ? ORDER BY weekday, start_min`, shiftID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []academic.ShiftInstance
	for rows.Next() {
		var (
			inst academic.ShiftInstance
			room sql.NullInt64
		)
		if err := rows.Scan(&inst.ID, &inst.ShiftID, &inst.Weekday, &inst.Start, &inst.End, &room); err != nil {
			return nil, fmt.Errorf("scan shift instance: %w", err)
		}
		if room.Valid {
			id := room.Int64
			inst.RoomID = &id
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shift instances: %w", err)
	}
	return out, nil
}

// Enrollments lists the current roster of one offering.
func (c *Controller) Enrollments(ctx context.Context, classInstanceID int64) ([]academic.Enrollment, error) {
	rows, err := c.query(ctx, `SELECT id, student_id, class_instance_id, attempt, student_year, statutes, observation
		FROM enrollments WHERE class_instance_id = ? ORDER BY student_id`, classInstanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []academic.Enrollment
	for rows.Next() {
		var (
			enr                   academic.Enrollment
			attempt, studentYear  sql.NullInt64
			statutes, observation sql.NullString
		)
		if err := rows.Scan(&enr.ID, &enr.StudentID, &enr.ClassInstanceID,
			&attempt, &studentYear, &statutes, &observation); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		enr.Attempt = intPtr(attempt)
		enr.StudentYear = intPtr(studentYear)
		enr.Statutes = strPtr(statutes)
		enr.Observation = strPtr(observation)
		out = append(out, enr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrollments: %w", err)
	}
	return out, nil
}

func yearRange(first, last sql.NullInt64) academic.YearRange {
	return academic.YearRange{First: int(first.Int64), Last: int(last.Int64)}
}
