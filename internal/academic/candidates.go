package academic

// Candidates are transient, freshly observed attribute sets for one entity.
// They carry natural keys (source ids, names) and parent surrogate keys
// already resolved through controller lookups, never their own surrogate key.
// A candidate is built by a crawl task and discarded right after the merge.

// InstitutionCandidate proposes an institution observation.
type InstitutionCandidate struct {
	SourceID     int
	Name         string
	Abbreviation string
	Years        YearRange
}

// DepartmentCandidate proposes a department observation.
type DepartmentCandidate struct {
	SourceID      int
	Name          string
	InstitutionID int64
	Years         YearRange
}

// CourseCandidate proposes a course observation. Nil-equivalent fields
// (empty abbreviation, zero degree) leave the persisted value untouched.
type CourseCandidate struct {
	SourceID      int
	Name          string
	Abbreviation  string
	DegreeID      int64
	InstitutionID int64
	Years         YearRange
}

// ClassCandidate proposes a class observation.
type ClassCandidate struct {
	SourceID     int
	DepartmentID int64
	Name         string
	Abbreviation string
	ECTS         *int
}

// ClassInstanceCandidate proposes an offering.
type ClassInstanceCandidate struct {
	ClassID  int64
	PeriodID int64
	Year     int
}

// StudentCandidate proposes a student observation.
type StudentCandidate struct {
	SourceID      int
	Name          string
	Abbreviation  string
	CourseID      int64
	InstitutionID int64
	Years         YearRange
}

// TeacherCandidate proposes a teacher observation.
type TeacherCandidate struct {
	SourceID     int
	Name         string
	DepartmentID int64
	Years        YearRange
}

// BuildingCandidate proposes a building observation.
type BuildingCandidate struct {
	SourceID int
	Name     string
	Years    YearRange
}

// RoomCandidate proposes a room observation.
type RoomCandidate struct {
	Name       string
	Kind       RoomKind
	BuildingID int64
}

// ShiftCandidate proposes a shift observation. Nil fields are "not observed".
type ShiftCandidate struct {
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

// ShiftInstanceCandidate is one decoded weekly slot of a shift schedule.
type ShiftInstanceCandidate struct {
	ShiftID int64
	Weekday int
	Start   int
	End     int
	RoomID  *int64
}

// EnrollmentCandidate proposes a student-to-offering enrollment.
type EnrollmentCandidate struct {
	StudentID       int64
	ClassInstanceID int64
	Attempt         *int
	StudentYear     *int
	Statutes        *string
	Observation     *string
}

// AdmissionCandidate proposes an admission record.
type AdmissionCandidate struct {
	StudentID *int64
	Name      string
	CourseID  int64
	Phase     int
	Year      int
	Option    *int
	State     *string
}
