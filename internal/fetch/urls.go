// Package fetch implements the authenticated portal session and the
// endpoint catalogue the sync stages request pages from.
package fetch

import "fmt"

// The portal query strings carry Latin-1 percent-encoded parameter names.
// They are kept as literal templates so requests match what the portal
// expects byte for byte.

// Endpoints builds request URLs against one portal deployment.
type Endpoints struct {
	Base string
}

// Institutions lists the registered institutions.
func (e Endpoints) Institutions() string {
	return e.Base + "/utente/institui%E7%E3o_sede/unidade_organica"
}

// InstitutionYears lists the academic years an institution has records for.
func (e Endpoints) InstitutionYears(institution int) string {
	return fmt.Sprintf(
		e.Base+"/utente/institui%%E7%%E3o_sede/unidade_organica/ensino/ano_lectivo?institui%%E7%%E3o=%d",
		institution)
}

// Departments lists the departments of an institution in a given year.
func (e Endpoints) Departments(institution, year int) string {
	return fmt.Sprintf(
		e.Base+"/utente/institui%%E7%%E3o_sede/unidade_organica/ensino/ano_lectivo/sector?"+
			"ano_lectivo=%d&institui%%E7%%E3o=%d",
		year, institution)
}

// DepartmentClasses lists the classes a department teaches on one period.
func (e Endpoints) DepartmentClasses(institution, department, year int, periodLetter string, period int) string {
	return fmt.Sprintf(
		e.Base+"/utente/institui%%E7%%E3o_sede/unidade_organica/ensino/ano_lectivo/sector/ano_lectivo?"+
			"tipo_de_per%%EDodo_lectivo=%s&sector=%d&ano_lectivo=%d&per%%EDodo_lectivo=%d&institui%%E7%%E3o=%d",
		periodLetter, department, year, period, institution)
}

// DepartmentTeachers lists the teachers of a department on one period.
func (e Endpoints) DepartmentTeachers(institution, department, year int, periodLetter string, period int) string {
	return fmt.Sprintf(
		e.Base+"/utente/institui%%E7%%E3o_sede/unidade_organica/ensino/ano_lectivo/hor%%E1rio/unidade_de_ensino/Docente?"+
			"tipo_de_per%%EDodo_lectivo=%s&sector=%d&ano_lectivo=%d&per%%EDodo_lectivo=%d&institui%%E7%%E3o=%d",
		periodLetter, department, year, period, institution)
}

// Courses lists the courses an institution teaches.
func (e Endpoints) Courses(institution int) string {
	return fmt.Sprintf(
		e.Base+"/utente/institui%%E7%%E3o_sede/unidade_organica/ensino/curso?institui%%E7%%E3o=%d",
		institution)
}

// Statistics serves per-degree course statistics; the course abbreviations
// only show up here.
func (e Endpoints) Statistics(institution int, degreeCode string) string {
	return fmt.Sprintf(
		e.Base+"/utente/institui%%E7%%E3o_sede/unidade_organica/ensino/estat%%EDstica/alunos/evolu%%E7%%E3o?"+
			"institui%%E7%%E3o=%d&n%%EDvel_acad%%E9mico=%s",
		institution, degreeCode)
}

// Admissions lists the access-contest course index for one year.
func (e Endpoints) Admissions(institution, year int) string {
	return fmt.Sprintf(
		e.Base+"/utente/institui%%E7%%E3o_sede/unidade_organica/ensino/ano_lectivo/candidaturas?"+
			"ano_lectivo=%d&institui%%E7%%E3o=%d",
		year, institution)
}

// Admitted lists the students admitted to a course on one contest phase.
func (e Endpoints) Admitted(institution, year, phase, course int) string {
	return fmt.Sprintf(
		e.Base+"/utente/institui%%E7%%E3o_sede/unidade_organica/ensino/ano_lectivo/candidaturas/colocados?"+
			"ano_lectivo=%d&institui%%E7%%E3o=%d&fase=%d&curso=%d",
		year, institution, phase, course)
}

// ClassEnrolled serves the enrollment roster of one class offering.
func (e Endpoints) ClassEnrolled(institution, department, year int, periodLetter string, period, classID int) string {
	return fmt.Sprintf(
		e.Base+"/utente/institui%%E7%%E3o_sede/unidade_organica/ensino/ano_lectivo/sector/ano_lectivo/unidade_curricular/actividade/inscri%%E7%%F5es/pautas?"+
			"tipo_de_per%%EDodo_lectivo=%s&sector=%d&ano_lectivo=%d&per%%EDodo_lectivo=%d&institui%%E7%%E3o=%d"+
			"&unidade_curricular=%d&modo=pauta&aux=ficheiro",
		periodLetter, department, year, period, institution, classID)
}

// ClassShifts lists the shifts of one class offering.
func (e Endpoints) ClassShifts(institution, department, year int, periodLetter string, period, classID int) string {
	return fmt.Sprintf(
		e.Base+"/utente/institui%%E7%%E3o_sede/unidade_organica/ensino/ano_lectivo/sector/ano_lectivo/unidade_curricular/actividade/turnos?"+
			"unidade_curricular=%d&institui%%E7%%E3o=%d&ano_lectivo=%d&tipo_de_per%%EDodo_lectivo=%s&per%%EDodo_lectivo=%d&sector=%d",
		classID, institution, year, periodLetter, period, department)
}

// ClassShift serves one shift's students, teachers, rooms and times.
func (e Endpoints) ClassShift(institution, department, year int, periodLetter string, period, classID int, shiftType string, shiftNumber int) string {
	return fmt.Sprintf(
		e.Base+"/utente/institui%%E7%%E3o_sede/unidade_organica/ensino/ano_lectivo/sector/ano_lectivo/unidade_curricular/actividade/turnos?"+
			"tipo_de_per%%EDodo_lectivo=%s&sector=%d&ano_lectivo=%d&per%%EDodo_lectivo=%d&institui%%E7%%E3o=%d"+
			"&unidade_curricular=%d&tipo=%s&n%%BA=%d",
		periodLetter, department, year, period, institution, classID, shiftType, shiftNumber)
}

// Buildings lists the buildings with schedules on one period.
func (e Endpoints) Buildings(institution, year int, periodLetter string, period int) string {
	return fmt.Sprintf(
		e.Base+"/utente/institui%%E7%%E3o_sede/unidade_organica/ensino/ano_lectivo/hor%%E1rio/espa%%E7o?"+
			"tipo_de_per%%EDodo_lectivo=%s&ano_lectivo=%d&per%%EDodo_lectivo=%d&institui%%E7%%E3o=%d",
		periodLetter, year, period, institution)
}

// BuildingSchedule serves one building's weekday occupation; rooms and their
// kinds are extracted from it.
func (e Endpoints) BuildingSchedule(institution, building, year int, periodLetter string, period, weekday int) string {
	return fmt.Sprintf(
		e.Base+"/utente/institui%%E7%%E3o_sede/unidade_organica/ensino/ano_lectivo/hor%%E1rio/espa%%E7o/ocupa%%E7%%E3o?"+
			"tipo_de_per%%EDodo_lectivo=%s&ano_lectivo=%d&per%%EDodo_lectivo=%d&edif%%EDcio=%d&institui%%E7%%E3o=%d&dia_%%FAtil_da_semana=%d",
		periodLetter, year, period, building, institution, weekday)
}
