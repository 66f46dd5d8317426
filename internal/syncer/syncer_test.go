package syncer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"campuscrawl/internal/academic"
	"campuscrawl/internal/fetch"
	"campuscrawl/internal/runlog"
	"campuscrawl/internal/store"
	"campuscrawl/internal/worker"
)

// route serves body for requests whose raw URI contains every match
// fragment. Unmatched requests get the portal's "invalid request" page.
type route struct {
	match []string
	body  string
}

const noDataPage = "<html><body>Pedido inválido</body></html>"

// newPortal fakes the portal: Windows-1252 bodies, POST login, Latin-1
// escaped query strings matched raw.
func newPortal(t *testing.T, routes []route) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			fmt.Fprint(w, "<html><body>bem-vindo</body></html>")
			return
		}
		body := noDataPage
		for _, rt := range routes {
			if uriMatches(r.RequestURI, rt.match) {
				body = rt.body
				break
			}
		}
		encoded, _, err := transform.String(charmap.Windows1252.NewEncoder(), body)
		require.NoError(t, err)
		fmt.Fprint(w, encoded)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func uriMatches(uri string, fragments []string) bool {
	for _, f := range fragments {
		if !strings.Contains(uri, f) {
			return false
		}
	}
	return len(fragments) > 0
}

const yearsPage = `<html><body>
	<a href="?ano_lectivo=2015&institui%E7%E3o=97747">2014/2015</a>
</body></html>`

func newTestSyncer(t *testing.T, routes []route) (*Syncer, *store.Store) {
	t.Helper()
	srv := newPortal(t, routes)
	logger := zap.NewNop()

	st, err := store.Open(context.Background(), store.Config{
		Driver: store.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "campus.db"),
		Cache:  true,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	session, err := fetch.NewSession(fetch.Config{
		BaseURL:  srv.URL,
		Username: "crawler",
		Password: "secret",
	}, logger)
	require.NoError(t, err)

	s := New(st, session, runlog.NewMemory(), Config{
		InstitutionID: 97747,
		Workers:       1,
		Phases:        1,
	}, worker.NewRetryPolicyWith(1, time.Millisecond, time.Millisecond), logger)
	return s, st
}

func testController(t *testing.T, st *store.Store) *store.Controller {
	t.Helper()
	ctl, err := st.Controller(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctl.Close() })
	return ctl
}

func TestStagesOrder(t *testing.T) {
	t.Parallel()
	stages := Stages()
	require.Len(t, stages, 7)
	assert.Equal(t, StageDepartments, stages[0])
	assert.Equal(t, StageEnrollments, stages[6])

	got, err := ParseStage("shifts")
	require.NoError(t, err)
	assert.Equal(t, StageShifts, got)

	_, err = ParseStage("everything")
	require.Error(t, err)
}

func TestEnsureInstitutionReadsRegistryAbbreviation(t *testing.T) {
	t.Parallel()
	s, st := newTestSyncer(t, []route{
		{match: []string{"ano_lectivo?institui%E7%E3o=97747"}, body: yearsPage},
		{match: []string{"unidade_organica"}, body: `<html><body>
			<a href="/utente/institui%E7%E3o_sede/unidade_organica?institui%E7%E3o=97747">FCT</a>
			<a href="/utente/institui%E7%E3o_sede/unidade_organica?institui%E7%E3o=109056">FD</a>
		</body></html>`},
	})

	inst, years, err := s.ensureInstitution(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{2015}, years)
	assert.Equal(t, "FCT", inst.Abbreviation)

	ctl := testController(t, st)
	stored, err := ctl.InstitutionBySourceID(context.Background(), 97747)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "FCT", stored.Abbreviation)
}

func TestSyncDepartments(t *testing.T) {
	t.Parallel()
	s, st := newTestSyncer(t, []route{
		{match: []string{"ano_lectivo?institui%E7%E3o=97747"}, body: yearsPage},
		{match: []string{"/sector?ano_lectivo=2015"}, body: `<html><body>
			<a href="?ano_lectivo=2015&sector=98021&institui%E7%E3o=97747">Departamento de Informática</a>
			<a href="?ano_lectivo=2015&sector=98024&institui%E7%E3o=97747">Departamento de Matemática</a>
		</body></html>`},
	})

	run, err := s.Run(context.Background(), StageDepartments)
	require.NoError(t, err)
	assert.Equal(t, runlog.StatusSucceeded, run.Status)
	assert.Equal(t, 1, run.UnitsTotal)
	assert.Zero(t, run.UnitsFailed)

	ctl := testController(t, st)
	departments, err := ctl.ListDepartments(context.Background())
	require.NoError(t, err)
	require.Len(t, departments, 2)
	assert.Equal(t, "Departamento de Informática", departments[0].Name)
	assert.Equal(t, academic.YearRange{First: 2015, Last: 2015}, departments[0].Years)

	recorded, err := s.Recorder().Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, runlog.StatusSucceeded, recorded.Status)
	require.NotNil(t, recorded.FinishedAt)
}

func TestSyncCourses(t *testing.T) {
	t.Parallel()
	s, st := newTestSyncer(t, []route{
		{match: []string{"ano_lectivo?institui%E7%E3o=97747"}, body: yearsPage},
		{match: []string{"/curso?institui%E7%E3o=97747"}, body: `<html><body>
			<a href="?institui%E7%E3o=97747&curso=151">Engenharia Informática</a>
		</body></html>`},
		{match: []string{"n%EDvel_acad%E9mico=L"}, body: `<html><body>
			<a href="?institui%E7%E3o=97747&curso=151">MIEI</a>
		</body></html>`},
	})

	run, err := s.Run(context.Background(), StageCourses)
	require.NoError(t, err)
	assert.Equal(t, runlog.StatusSucceeded, run.Status)
	// one unit per distinct degree code; pages without statistics count as
	// empty units, not failures
	assert.Equal(t, 6, run.UnitsTotal)
	assert.Zero(t, run.UnitsFailed)

	ctl := testController(t, st)
	inst, err := ctl.InstitutionBySourceID(context.Background(), 97747)
	require.NoError(t, err)
	require.NotNil(t, inst)
	course, err := ctl.CourseBySourceID(context.Background(), inst.ID, 151)
	require.NoError(t, err)
	require.NotNil(t, course)
	assert.Equal(t, "Engenharia Informática", course.Name)
	assert.Equal(t, "MIEI", course.Abbreviation)
	assert.EqualValues(t, 1, course.DegreeID)
}

func TestSyncClasses(t *testing.T) {
	t.Parallel()
	s, st := newTestSyncer(t, []route{
		{match: []string{"ano_lectivo?institui%E7%E3o=97747"}, body: yearsPage},
		{match: []string{"/sector/ano_lectivo?", "tipo_de_per%EDodo_lectivo=s", "per%EDodo_lectivo=1&"}, body: `<html><body>
			<a href="?unidade_curricular=7332&sector=98021">Algoritmos e Estruturas de Dados</a>
		</body></html>`},
		{match: []string{"/Docente?", "tipo_de_per%EDodo_lectivo=s", "per%EDodo_lectivo=1&"}, body: `<html><body>
			<a href="?docente=387">Maria Oliveira</a>
		</body></html>`},
	})

	ctx := context.Background()
	seed := testController(t, st)
	inst, err := seed.MergeInstitution(ctx, academic.InstitutionCandidate{SourceID: 97747})
	require.NoError(t, err)
	dept, err := seed.MergeDepartment(ctx, academic.DepartmentCandidate{
		SourceID:      98021,
		Name:          "Departamento de Informática",
		InstitutionID: inst.ID,
		Years:         academic.YearRange{First: 2015, Last: 2015},
	})
	require.NoError(t, err)

	run, err := s.Run(ctx, StageClasses)
	require.NoError(t, err)
	assert.Equal(t, runlog.StatusSucceeded, run.Status)
	assert.Equal(t, 1, run.UnitsTotal)
	assert.Zero(t, run.UnitsFailed)

	ctl := testController(t, st)
	class, err := ctl.ClassBySourceID(ctx, dept.ID, 7332)
	require.NoError(t, err)
	require.NotNil(t, class)
	assert.Equal(t, "Algoritmos e Estruturas de Dados", class.Name)

	semester1, err := ctl.Period(ctx, 1, 2)
	require.NoError(t, err)
	offering, err := ctl.ClassInstance(ctx, class.ID, 2015, semester1.ID)
	require.NoError(t, err)
	require.NotNil(t, offering)

	teacher, err := ctl.TeacherBySourceID(ctx, dept.ID, 387)
	require.NoError(t, err)
	require.NotNil(t, teacher)
	assert.Equal(t, "Maria Oliveira", teacher.Name)
}

func TestSyncBuildings(t *testing.T) {
	t.Parallel()
	s, st := newTestSyncer(t, []route{
		{match: []string{"ano_lectivo?institui%E7%E3o=97747"}, body: yearsPage},
		{match: []string{"ocupa%E7%E3o?", "dia_%FAtil_da_semana=2"}, body: `<html><body>
			<a href="?espa%E7o=1234">Laboratório de Ensino Ed II: Lab 127</a>
		</body></html>`},
		{match: []string{"/espa%E7o?", "tipo_de_per%EDodo_lectivo=s", "per%EDodo_lectivo=1&"}, body: `<html><body>
			<a href="?edif%EDcio=1518">Ed.II</a>
		</body></html>`},
	})

	run, err := s.Run(context.Background(), StageBuildings)
	require.NoError(t, err)
	assert.Equal(t, runlog.StatusSucceeded, run.Status)
	// one unit per (year, period scheme)
	assert.Equal(t, 7, run.UnitsTotal)
	assert.Zero(t, run.UnitsFailed)

	ctl := testController(t, st)
	building, err := ctl.BuildingByName(context.Background(), "Ed.II")
	require.NoError(t, err)
	require.NotNil(t, building)

	room, err := ctl.RoomByName(context.Background(), "127", building.ID, academic.RoomLaboratory)
	require.NoError(t, err)
	require.NotNil(t, room)
	assert.Equal(t, academic.RoomLaboratory, room.Kind)
}

// seedOffering registers the offering the shift and enrollment stages crawl.
func seedOffering(t *testing.T, st *store.Store) (academic.Institution, academic.ClassInstance) {
	t.Helper()
	ctx := context.Background()
	ctl := testController(t, st)

	inst, err := ctl.MergeInstitution(ctx, academic.InstitutionCandidate{SourceID: 97747})
	require.NoError(t, err)
	dept, err := ctl.MergeDepartment(ctx, academic.DepartmentCandidate{
		SourceID:      98021,
		Name:          "Departamento de Informática",
		InstitutionID: inst.ID,
		Years:         academic.YearRange{First: 2015, Last: 2015},
	})
	require.NoError(t, err)
	class, err := ctl.MergeClass(ctx, academic.ClassCandidate{
		SourceID:     7332,
		DepartmentID: dept.ID,
		Name:         "Algoritmos e Estruturas de Dados",
	})
	require.NoError(t, err)
	semester1, err := ctl.Period(ctx, 1, 2)
	require.NoError(t, err)
	offerings, err := ctl.AddClassInstances(ctx, []academic.ClassInstanceCandidate{
		{ClassID: class.ID, PeriodID: semester1.ID, Year: 2015},
	})
	require.NoError(t, err)
	require.Len(t, offerings, 1)
	return inst, offerings[0]
}

func TestSyncShifts(t *testing.T) {
	t.Parallel()
	shiftDetail := `<html><body>
		<table>
			<tr><th colspan="2" bgcolor="#aaaaaa">Turno: Teórico 1</th></tr>
			<tr><td>Turno</td><td>Teórico 1</td></tr>
			<tr><td>Marcação</td><td>Segunda-Feira  10:00 - 12:00  Ed II: Lab 127/Ed.II</td></tr>
			<tr><td>Docentes</td><td>Maria Oliveira</td></tr>
			<tr><td>Carga horária semanal</td><td>2.0 horas</td></tr>
			<tr><td>Capacidade</td><td>87/120</td></tr>
		</table>
		<table>
			<tr><th colspan="4" bgcolor="#95AEA8">Alunos</th></tr>
			<tr><td>Ana Martins</td><td>41234</td><td>a.martins</td><td></td></tr>
		</table>
	</body></html>`
	s, st := newTestSyncer(t, []route{
		{match: []string{"ano_lectivo?institui%E7%E3o=97747"}, body: yearsPage},
		{match: []string{"&tipo=t&n%BA=1"}, body: shiftDetail},
		{match: []string{"turnos?unidade_curricular=7332"}, body: `<html><body>
			<a href="?unidade_curricular=7332&tipo=t&n%BA=1">Teórico 1</a>
		</body></html>`},
	})

	ctx := context.Background()
	_, offering := seedOffering(t, st)
	seed := testController(t, st)
	building, err := seed.EnsureBuilding(ctx, academic.BuildingCandidate{Name: "Ed.II"})
	require.NoError(t, err)
	_, err = seed.EnsureRoom(ctx, academic.RoomCandidate{
		Name:       "127",
		Kind:       academic.RoomLaboratory,
		BuildingID: building.ID,
	})
	require.NoError(t, err)

	run, err := s.Run(ctx, StageShifts)
	require.NoError(t, err)
	assert.Equal(t, runlog.StatusSucceeded, run.Status)
	assert.Equal(t, 1, run.UnitsTotal)
	assert.Zero(t, run.UnitsFailed)

	ctl := testController(t, st)
	theoretical, err := ctl.ShiftType(ctx, "t")
	require.NoError(t, err)
	shift, err := ctl.Shift(ctx, offering.ID, theoretical.ID, 1)
	require.NoError(t, err)
	require.NotNil(t, shift)
	require.NotNil(t, shift.Capacity)
	assert.Equal(t, 120, *shift.Capacity)
	require.NotNil(t, shift.Minutes)
	assert.Equal(t, 120, *shift.Minutes)

	slots, err := ctl.ShiftInstances(ctx, shift.ID)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, 0, slots[0].Weekday)
	assert.Equal(t, 600, slots[0].Start)
	require.NotNil(t, slots[0].RoomID)

	inst, err := ctl.InstitutionBySourceID(ctx, 97747)
	require.NoError(t, err)
	student, err := ctl.StudentBySourceID(ctx, inst.ID, 41234)
	require.NoError(t, err)
	require.NotNil(t, student)
	assert.Equal(t, "Ana Martins", student.Name)
}

func TestSyncEnrollments(t *testing.T) {
	t.Parallel()
	roster := strings.Join([]string{
		"Pauta",
		"2014/2015",
		"",
		"Estatutos\tNome\tNúmero\tE-mail\tCurso\tInsc.\tAno",
		"\tAna Martins\t41234\ta.martins\tMIEI\t1º\t2º",
	}, "\n")
	s, st := newTestSyncer(t, []route{
		{match: []string{"ano_lectivo?institui%E7%E3o=97747"}, body: yearsPage},
		{match: []string{"modo=pauta"}, body: roster},
	})

	ctx := context.Background()
	inst, offering := seedOffering(t, st)

	run, err := s.Run(ctx, StageEnrollments)
	require.NoError(t, err)
	assert.Equal(t, runlog.StatusSucceeded, run.Status)
	assert.Equal(t, 1, run.UnitsTotal)
	assert.Zero(t, run.UnitsFailed)

	ctl := testController(t, st)
	student, err := ctl.StudentBySourceID(ctx, inst.ID, 41234)
	require.NoError(t, err)
	require.NotNil(t, student)
	assert.Equal(t, "a.martins", student.Abbreviation)

	enrollments, err := ctl.Enrollments(ctx, offering.ID)
	require.NoError(t, err)
	require.Len(t, enrollments, 1)
	assert.Equal(t, student.ID, enrollments[0].StudentID)
	require.NotNil(t, enrollments[0].StudentYear)
	assert.Equal(t, 2, *enrollments[0].StudentYear)
}

func TestSyncAdmissions(t *testing.T) {
	t.Parallel()
	s, st := newTestSyncer(t, []route{
		{match: []string{"ano_lectivo?institui%E7%E3o=97747"}, body: yearsPage},
		{match: []string{"/candidaturas/colocados?", "fase=1", "curso=151"}, body: `<html><body><table>
			<tr><th colspan="8" bgcolor="#95AEA8">Colocados</th></tr>
			<tr>
				<td>Rui Costa</td><td></td><td></td><td></td>
				<td>1</td><td></td><td>por contactar</td>
			</tr>
		</table></body></html>`},
		{match: []string{"/candidaturas?"}, body: `<html><body>
			<a href="?curso=151&institui%E7%E3o=97747">Engenharia Informática</a>
		</body></html>`},
	})

	ctx := context.Background()
	run, err := s.Run(ctx, StageAdmissions)
	require.NoError(t, err)
	assert.Equal(t, runlog.StatusSucceeded, run.Status)
	assert.Equal(t, 1, run.UnitsTotal)
	assert.Zero(t, run.UnitsFailed)

	ctl := testController(t, st)
	inst, err := ctl.InstitutionBySourceID(ctx, 97747)
	require.NoError(t, err)
	course, err := ctl.CourseBySourceID(ctx, inst.ID, 151)
	require.NoError(t, err)
	require.NotNil(t, course)

	// the row is already recorded, so replaying it inserts nothing
	added, err := ctl.AddAdmissions(ctx, []academic.AdmissionCandidate{
		{Name: "Rui Costa", CourseID: course.ID, Phase: 1, Year: 2015},
	})
	require.NoError(t, err)
	assert.Empty(t, added)
}

func TestSyncDepartmentsNoData(t *testing.T) {
	t.Parallel()
	// only the year index answers; the department page serves the portal's
	// "invalid request" answer and the unit completes empty
	s, st := newTestSyncer(t, []route{
		{match: []string{"ano_lectivo?institui%E7%E3o=97747"}, body: yearsPage},
	})

	run, err := s.Run(context.Background(), StageDepartments)
	require.NoError(t, err)
	assert.Equal(t, runlog.StatusSucceeded, run.Status)
	assert.Equal(t, 1, run.UnitsTotal)
	assert.Zero(t, run.UnitsFailed)

	ctl := testController(t, st)
	departments, err := ctl.ListDepartments(context.Background())
	require.NoError(t, err)
	assert.Empty(t, departments)
}
