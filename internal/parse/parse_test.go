package parse

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	d, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return d
}

func TestNoData(t *testing.T) {
	t.Parallel()
	assert.True(t, NoData(doc(t, `<html><body>Pedido inválido</body></html>`)))
	assert.False(t, NoData(doc(t, `<html><body>Departamentos</body></html>`)))
}

func TestInstitutions(t *testing.T) {
	t.Parallel()
	d := doc(t, `<html><body>
		<a href="/utente/institui%E7%E3o_sede/unidade_organica?institui%E7%E3o=97747">FCT</a>
		<a href="/utente/institui%E7%E3o_sede/unidade_organica?institui%E7%E3o=109056">FD</a>
		<a href="/x?institui%E7%E3o=97747&curso=151">scoped link</a>
	</body></html>`)

	got := Institutions(d)
	require.Len(t, got, 2)
	assert.Equal(t, Link{ID: 97747, Text: "FCT"}, got[0])
	assert.Equal(t, Link{ID: 109056, Text: "FD"}, got[1])
}

func TestDepartments(t *testing.T) {
	t.Parallel()
	d := doc(t, `<html><body>
		<a href="/x?ano_lectivo=2015&sector=98021&institui%E7%E3o=97747">Departamento de Informática</a>
		<a href="/x?ano_lectivo=2015&sector=98024&institui%E7%E3o=97747">Departamento de Matemática</a>
		<a href="/unrelated">elsewhere</a>
	</body></html>`)

	got := Departments(d)
	require.Len(t, got, 2)
	assert.Equal(t, Link{ID: 98021, Text: "Departamento de Informática"}, got[0])
	assert.Equal(t, Link{ID: 98024, Text: "Departamento de Matemática"}, got[1])
}

func TestCoursesAndAbbreviations(t *testing.T) {
	t.Parallel()
	d := doc(t, `<html><body>
		<a href="/x?institui%E7%E3o=97747&curso=151">Engenharia Informática</a>
		<a href="/x?institui%E7%E3o=97747&curso=167"></a>
	</body></html>`)

	courses := Courses(d)
	require.Len(t, courses, 2)
	assert.Equal(t, 151, courses[0].ID)

	// empty anchor text carries no acronym
	abbrs := CourseAbbreviations(d)
	require.Len(t, abbrs, 1)
	assert.Equal(t, "Engenharia Informática", abbrs[0].Text)
}

func TestYearSpan(t *testing.T) {
	t.Parallel()
	d := doc(t, `<html><body>
		<a href="/x?ano_lectivo=2015">2014/2015</a>
		<a href="/x?ano_lectivo=2009">2008/2009</a>
		<a href="/x?ano_lectivo=2020">2019/2020</a>
		<a href="/x?ano_lectivo=2015">repeat</a>
	</body></html>`)

	first, last := YearSpan(d)
	assert.Equal(t, 2009, first)
	assert.Equal(t, 2020, last)
	assert.Len(t, Years(d), 3)

	first, last = YearSpan(doc(t, `<html><body>nothing</body></html>`))
	assert.Zero(t, first)
	assert.Zero(t, last)
}

func TestShiftKeys(t *testing.T) {
	t.Parallel()
	d := doc(t, `<html><body>
		<a href="/turnos?unidade_curricular=7332&tipo=t&n%BA=1">Teórico 1</a>
		<a href="/turnos?unidade_curricular=7332&tipo=p&n%BA=2">Prático 2</a>
		<a href="/turnos?unidade_curricular=7332&tipo=t&n%BA=1">repeat</a>
	</body></html>`)

	keys, err := ShiftKeys(d)
	require.NoError(t, err)
	assert.Equal(t, []ShiftKey{{Type: "t", Number: 1}, {Type: "p", Number: 2}}, keys)
}

func TestWeekday(t *testing.T) {
	t.Parallel()
	tests := []struct {
		label string
		want  int
	}{
		{"Segunda-Feira", 0},
		{"Terça-Feira", 1},
		{"terça", 1},
		{"Quarta-Feira", 2},
		{"Quinta-Feira", 3},
		{"Sexta-Feira", 4},
		{"Sábado", 5},
		{"Domingo", 6},
	}
	for _, tc := range tests {
		got, err := Weekday(tc.label)
		require.NoError(t, err, tc.label)
		assert.Equal(t, tc.want, got, tc.label)
	}

	_, err := Weekday("Someday")
	require.Error(t, err)
}

const shiftDetailHTML = `<html><body><table>
	<tr><th colspan="2" bgcolor="#aaaaaa">Turno: Teórico 1</th></tr>
	<tr><td>Turno</td><td>Teórico 1</td></tr>
	<tr><td>Marcação</td><td>Segunda-Feira  10:00 - 12:00  Ed II: Lab 127/Ed.II</td></tr>
	<tr><td>Quarta-Feira  10:00 - 12:00</td></tr>
	<tr><td>Docentes</td><td>Maria Oliveira</td></tr>
	<tr><td>José Pereira</td></tr>
	<tr><td>Carga horária semanal</td><td>4.0 horas</td></tr>
	<tr><td>Estado</td><td>Aberto</td></tr>
	<tr><td>Capacidade</td><td>87/120</td></tr>
	<tr><td>Restrição</td><td>Apenas MIEI</td></tr>
	<tr><td>Percursos associados</td><td>Perfil de Sistemas</td></tr>
</table></body></html>`

func TestParseShiftInfo(t *testing.T) {
	t.Parallel()
	info, err := ParseShiftInfo(doc(t, shiftDetailHTML))
	require.NoError(t, err)

	require.Len(t, info.Slots, 2)
	assert.Equal(t, ScheduleSlot{Weekday: 0, Start: 600, End: 720, Building: "Ed.II", Room: "Lab 127"}, info.Slots[0])
	assert.Equal(t, ScheduleSlot{Weekday: 2, Start: 600, End: 720}, info.Slots[1])

	assert.Equal(t, []string{"Maria Oliveira", "José Pereira"}, info.Teachers)
	assert.Equal(t, []string{"Perfil de Sistemas"}, info.Routes)

	require.NotNil(t, info.WeeklyMinutes)
	assert.Equal(t, 240, *info.WeeklyMinutes)
	require.NotNil(t, info.Enrolled)
	assert.Equal(t, 87, *info.Enrolled)
	require.NotNil(t, info.Capacity)
	assert.Equal(t, 120, *info.Capacity)
	require.NotNil(t, info.State)
	assert.Equal(t, "Aberto", *info.State)
	require.NotNil(t, info.Restrictions)
	assert.Equal(t, "Apenas MIEI", *info.Restrictions)
}

func TestParseShiftInfoPartialCapacity(t *testing.T) {
	t.Parallel()
	info, err := ParseShiftInfo(doc(t, `<html><body><table>
		<tr><th colspan="2" bgcolor="#aaaaaa">Turno</th></tr>
		<tr><td>Capacidade</td><td>/120</td></tr>
	</table></body></html>`))
	require.NoError(t, err)
	assert.Nil(t, info.Enrolled)
	require.NotNil(t, info.Capacity)
	assert.Equal(t, 120, *info.Capacity)
}

func TestParseShiftInfoUnknownField(t *testing.T) {
	t.Parallel()
	_, err := ParseShiftInfo(doc(t, `<html><body><table>
		<tr><th colspan="2" bgcolor="#aaaaaa">Turno</th></tr>
		<tr><td>Novidade</td><td>???</td></tr>
	</table></body></html>`))
	require.Error(t, err)
	var fieldErr *ShiftFieldError
	require.ErrorAs(t, err, &fieldErr)
	assert.Equal(t, "novidade", fieldErr.Field)
}

func TestParseShiftInfoIgnoresUnknownFieldWhenLenient(t *testing.T) {
	t.Parallel()
	info, err := ParseShiftInfoWith(doc(t, `<html><body><table>
		<tr><th colspan="2" bgcolor="#aaaaaa">Turno</th></tr>
		<tr><td>Novidade</td><td>???</td></tr>
		<tr><td>Estado</td><td>Aberto</td></tr>
	</table></body></html>`), UnknownFieldIgnore)
	require.NoError(t, err)
	require.NotNil(t, info.State)
	assert.Equal(t, "Aberto", *info.State)
}

func TestParseShiftInfoBadSchedule(t *testing.T) {
	t.Parallel()
	_, err := ParseShiftInfo(doc(t, `<html><body><table>
		<tr><th colspan="2" bgcolor="#aaaaaa">Turno</th></tr>
		<tr><td>Marcação</td><td>whenever works</td></tr>
	</table></body></html>`))
	require.ErrorContains(t, err, "malformed schedule")
}

func TestParseShiftStudents(t *testing.T) {
	t.Parallel()
	students, err := ParseShiftStudents(doc(t, `<html><body><table>
		<tr><th colspan="4" bgcolor="#95AEA8">Alunos</th></tr>
		<tr><td>Ana Martins</td><td>41234</td><td>a.martins</td><td>MIEI</td></tr>
		<tr><td>Rui Costa</td><td>40999</td><td></td><td>MIEGI</td></tr>
	</table></body></html>`))
	require.NoError(t, err)
	require.Len(t, students, 2)
	assert.Equal(t, ShiftStudent{Name: "Ana Martins", SourceID: 41234, Abbreviation: "a.martins", CourseAbbr: "MIEI"}, students[0])
	assert.Equal(t, 40999, students[1].SourceID)
}

func TestParseShiftStudentsBadID(t *testing.T) {
	t.Parallel()
	_, err := ParseShiftStudents(doc(t, `<html><body><table>
		<tr><th colspan="4" bgcolor="#95AEA8">Alunos</th></tr>
		<tr><td>Ana Martins</td><td>abc</td><td></td><td>MIEI</td></tr>
	</table></body></html>`))
	require.ErrorContains(t, err, "non-numeric id")
}

func TestParseRoom(t *testing.T) {
	t.Parallel()
	tests := []struct {
		label    string
		wantKind string
		wantName string
	}{
		{"Sala de Aula Ed II: 127", "classroom", "127"},
		{"Sala de Computadores Ed II: Lab 112", "computer", "112"},
		{"Sala de Reunião Ed VII: 2.2", "meeting", "2.2"},
		{"Laboratório de Ensino Ed II: Lab 127", "laboratory", "127"},
		{"Anfiteatro Ed II: 127 A", "auditorium", "127 A"},
		{"Sala Ed I: 3.4", "generic", "3.4"},
	}
	kinds := map[string]int{
		"generic": 1, "classroom": 2, "auditorium": 3,
		"laboratory": 4, "computer": 5, "meeting": 6,
	}
	for _, tc := range tests {
		kind, name, err := ParseRoom(tc.label)
		require.NoError(t, err, tc.label)
		assert.Equal(t, kinds[tc.wantKind], int(kind), tc.label)
		assert.Equal(t, tc.wantName, name, tc.label)
	}
}

func TestParseAdmissions(t *testing.T) {
	t.Parallel()
	rows, err := ParseAdmissions(doc(t, `<html><body><table>
		<tr><th colspan="8" bgcolor="#95AEA8">Colocados</th></tr>
		<tr>
			<td>Ana Martins</td><td></td><td></td><td></td>
			<td>1</td><td>41234</td><td>activo</td>
		</tr>
		<tr>
			<td>Rui Costa</td><td></td><td></td><td></td>
			<td></td><td></td><td></td>
		</tr>
	</table></body></html>`))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.NotNil(t, rows[0].Option)
	assert.Equal(t, 1, *rows[0].Option)
	require.NotNil(t, rows[0].SourceID)
	assert.Equal(t, 41234, *rows[0].SourceID)
	require.NotNil(t, rows[0].State)
	assert.Equal(t, "activo", *rows[0].State)

	// not yet enrolled: name only
	assert.Nil(t, rows[1].Option)
	assert.Nil(t, rows[1].SourceID)
	assert.Nil(t, rows[1].State)
}

func TestParseAdmissionsMissingTable(t *testing.T) {
	t.Parallel()
	_, err := ParseAdmissions(doc(t, `<html><body>Pedido inválido</body></html>`))
	require.Error(t, err)
}
