// Package academic defines the persisted entity model shared across subsystems.
package academic

import "time"

// YearRange is the inclusive [First, Last] academic-year interval during
// which an entity is known to have existed. The zero value means unknown.
type YearRange struct {
	First int `json:"first_year"`
	Last  int `json:"last_year"`
}

// IsZero reports whether the range has never been observed.
func (r YearRange) IsZero() bool {
	return r.First == 0 && r.Last == 0
}

// Contains reports whether year falls inside the range.
func (r YearRange) Contains(year int) bool {
	return !r.IsZero() && year >= r.First && year <= r.Last
}

// Add widens the range to include year. The range never shrinks.
func (r *YearRange) Add(year int) {
	if year == 0 {
		return
	}
	if r.First == 0 {
		r.First = year
	}
	if r.Last == 0 {
		r.Last = year
	}
	if year < r.First {
		r.First = year
	} else if year > r.Last {
		r.Last = year
	}
}

// Extend widens the range to cover another range.
func (r *YearRange) Extend(other YearRange) {
	r.Add(other.First)
	r.Add(other.Last)
}

// Institution is a teaching institution of the remote portal.
type Institution struct {
	ID           int64
	SourceID     int
	Abbreviation string
	Name         string
	Years        YearRange
}

// Department is an organic unit of an institution.
type Department struct {
	ID            int64
	SourceID      int
	Name          string
	InstitutionID int64
	Years         YearRange
}

// Degree is a static reference row (bachelor, master, ...).
type Degree struct {
	ID   int64
	Code string
	Name string
}

// Period is a static reference row describing an academic period scheme,
// e.g. part 1 of 2 semesters, part 3 of 4 trimesters.
type Period struct {
	ID     int64
	Part   int
	Parts  int
	Letter string
}

// Course is a degree-conferring study programme.
type Course struct {
	ID            int64
	SourceID      int
	Name          string
	Abbreviation  string
	DegreeID      int64 // 0 when unknown
	InstitutionID int64
	Years         YearRange
}

// Class is a subject taught by a department. The name is immutable once set.
type Class struct {
	ID           int64
	SourceID     int
	DepartmentID int64
	Name         string
	Abbreviation string
	ECTS         *int
}

// ClassInstance is one offering of a Class on a (year, period).
// Offerings are insert-if-absent and never updated.
type ClassInstance struct {
	ID       int64
	ClassID  int64
	PeriodID int64
	Year     int
}

// Student is a portal user doing a course. Abbreviation fills in once and
// conflicts on change afterwards.
type Student struct {
	ID            int64
	SourceID      int
	Name          string
	Abbreviation  string
	CourseID      int64 // 0 when unknown
	InstitutionID int64
	Years         YearRange
}

// Teacher is keyed by its source identifier within a department.
type Teacher struct {
	ID           int64
	SourceID     int
	Name         string
	DepartmentID int64
	Years        YearRange
}

// Building is a simple existence-or-create entity keyed by name.
type Building struct {
	ID       int64
	SourceID int
	Name     string
	Years    YearRange
}

// RoomKind tells the purpose of a room.
type RoomKind int

// Room purposes recognized by the schedule decoder.
const (
	RoomGeneric RoomKind = iota + 1
	RoomClassroom
	RoomAuditorium
	RoomLaboratory
	RoomComputer
	RoomMeeting
)

// Room is keyed by (building, name, kind).
type Room struct {
	ID         int64
	Name       string
	Kind       RoomKind
	BuildingID int64
}

// ShiftType is a static reference row (theoretical, practical, ...).
type ShiftType struct {
	ID           int64
	Name         string
	Abbreviation string
}

// Shift is a scheduled section of an offering, keyed by
// (offering, number, type). Operational fields are last-write-wins.
type Shift struct {
	ID              int64
	ClassInstanceID int64
	Number          int
	TypeID          int64
	Enrolled        *int
	Capacity        *int
	Minutes         *int
	Routes          *string
	Restrictions    *string
	State           *string
}

// ShiftInstance is one weekly meeting slot of a Shift. Slots carry no stable
// upstream identity and are rebuilt wholesale on every schedule resync.
type ShiftInstance struct {
	ID      int64
	ShiftID int64
	Weekday int // 0 = Monday
	Start   int // minutes from midnight
	End     int
	RoomID  *int64
}

// Enrollment links a Student to a ClassInstance.
type Enrollment struct {
	ID              int64
	StudentID       int64
	ClassInstanceID int64
	Attempt         *int
	StudentYear     *int
	Statutes        *string
	Observation     *string
}

// Admission is a national access contest entry. Admissions are append-only
// observations keyed by (course, year, phase, name).
type Admission struct {
	ID        int64
	StudentID *int64
	Name      string
	CourseID  int64
	Phase     int
	Year      int
	Option    *int
	State     *string
	CheckDate time.Time
}
