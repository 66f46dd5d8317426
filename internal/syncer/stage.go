package syncer

import "fmt"

// Stage is one crawl phase. Stages build on each other's persisted entities,
// so a full sync runs them in the order Stages returns.
type Stage string

// Crawl stages in dependency order.
const (
	StageDepartments Stage = "departments"
	StageBuildings   Stage = "buildings"
	StageCourses     Stage = "courses"
	StageClasses     Stage = "classes"
	StageAdmissions  Stage = "admissions"
	StageShifts      Stage = "shifts"
	StageEnrollments Stage = "enrollments"
)

// Stages returns every stage in dependency order.
func Stages() []Stage {
	return []Stage{
		StageDepartments,
		StageBuildings,
		StageCourses,
		StageClasses,
		StageAdmissions,
		StageShifts,
		StageEnrollments,
	}
}

// ParseStage validates a stage name coming from the API or the CLI.
func ParseStage(name string) (Stage, error) {
	for _, s := range Stages() {
		if string(s) == name {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown sync stage %q", name)
}
