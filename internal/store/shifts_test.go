package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campuscrawl/internal/academic"
)

// seedShift builds the institution/department/class/offering chain down to
// one theoretical shift and returns the controller with it.
func seedShift(t *testing.T) (*Controller, academic.Shift, academic.ClassInstance) {
	t.Helper()
	c := newTestController(t)
	ctx := context.Background()
	dept := mergeTestDepartment(t, c, mergeTestInstitution(t, c))

	class, err := c.MergeClass(ctx, academic.ClassCandidate{
		SourceID: 7332, DepartmentID: dept.ID, Name: "Algorithms",
	})
	require.NoError(t, err)
	period, err := c.Period(ctx, 1, 2)
	require.NoError(t, err)
	offerings, err := c.AddClassInstances(ctx, []academic.ClassInstanceCandidate{
		{ClassID: class.ID, PeriodID: period.ID, Year: 2015},
	})
	require.NoError(t, err)
	shiftType, err := c.ShiftType(ctx, "t")
	require.NoError(t, err)
	shift, err := c.MergeShift(ctx, academic.ShiftCandidate{
		ClassInstanceID: offerings[0].ID, Number: 1, TypeID: shiftType.ID,
	})
	require.NoError(t, err)
	return c, shift, offerings[0]
}

func seedStudent(t *testing.T, c *Controller, sourceID int, name string) academic.Student {
	t.Helper()
	inst, err := c.InstitutionBySourceID(context.Background(), 97747)
	require.NoError(t, err)
	require.NotNil(t, inst)
	student, err := c.MergeStudent(context.Background(), academic.StudentCandidate{
		SourceID: sourceID, Name: name, InstitutionID: inst.ID,
	})
	require.NoError(t, err)
	return student
}

func TestReplaceShiftInstancesRebuildsSchedule(t *testing.T) {
	t.Parallel()
	c, shift, _ := seedShift(t)
	ctx := context.Background()

	first, err := c.ReplaceShiftInstances(ctx, shift.ID, []academic.ShiftInstanceCandidate{
		{ShiftID: shift.ID, Weekday: 0, Start: 9 * 60, End: 11 * 60},
		{ShiftID: shift.ID, Weekday: 2, Start: 9 * 60, End: 11 * 60},
	})
	require.NoError(t, err)
	require.Len(t, first, 2)

	// the resync drops the old slots wholesale, stale ids included
	second, err := c.ReplaceShiftInstances(ctx, shift.ID, []academic.ShiftInstanceCandidate{
		{ShiftID: shift.ID, Weekday: 4, Start: 14 * 60, End: 16 * 60},
	})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, 4, second[0].Weekday)

	persisted, err := c.ShiftInstances(ctx, shift.ID)
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, 14*60, persisted[0].Start)
	assert.Equal(t, 16*60, persisted[0].End)
}

func TestReplaceShiftInstancesEmptyClearsSchedule(t *testing.T) {
	t.Parallel()
	c, shift, _ := seedShift(t)
	ctx := context.Background()

	_, err := c.ReplaceShiftInstances(ctx, shift.ID, []academic.ShiftInstanceCandidate{
		{ShiftID: shift.ID, Weekday: 0, Start: 9 * 60, End: 11 * 60},
	})
	require.NoError(t, err)

	cleared, err := c.ReplaceShiftInstances(ctx, shift.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, cleared)

	persisted, err := c.ShiftInstances(ctx, shift.ID)
	require.NoError(t, err)
	assert.Empty(t, persisted)
}

func TestReplaceShiftInstancesRejectsMixedBatch(t *testing.T) {
	t.Parallel()
	c, shift, _ := seedShift(t)
	ctx := context.Background()

	_, err := c.ReplaceShiftInstances(ctx, shift.ID, []academic.ShiftInstanceCandidate{
		{ShiftID: shift.ID, Weekday: 0, Start: 9 * 60, End: 11 * 60},
		{ShiftID: shift.ID + 1, Weekday: 1, Start: 9 * 60, End: 11 * 60},
	})
	require.ErrorIs(t, err, academic.ErrContract)

	_, err = c.ReplaceShiftInstances(ctx, 0, nil)
	require.ErrorIs(t, err, academic.ErrContract)
}

func TestMergeEnrollmentsDiffsRoster(t *testing.T) {
	t.Parallel()
	c, _, offering := seedShift(t)
	ctx := context.Background()

	ana := seedStudent(t, c, 1001, "Ana Martins")
	rui := seedStudent(t, c, 1002, "Rui Costa")

	attempt := 1
	err := c.MergeEnrollments(ctx, offering.ID, []academic.EnrollmentCandidate{
		{StudentID: ana.ID, ClassInstanceID: offering.ID, Attempt: &attempt},
		{StudentID: rui.ID, ClassInstanceID: offering.ID, Attempt: &attempt},
	})
	require.NoError(t, err)

	roster, err := c.Enrollments(ctx, offering.ID)
	require.NoError(t, err)
	require.Len(t, roster, 2)

	// rui dropped the class; ana's re-crawl fills her year in
	year := 2
	err = c.MergeEnrollments(ctx, offering.ID, []academic.EnrollmentCandidate{
		{StudentID: ana.ID, ClassInstanceID: offering.ID, StudentYear: &year},
	})
	require.NoError(t, err)

	roster, err = c.Enrollments(ctx, offering.ID)
	require.NoError(t, err)
	require.Len(t, roster, 1)
	assert.Equal(t, ana.ID, roster[0].StudentID)
	require.NotNil(t, roster[0].Attempt)
	assert.Equal(t, 1, *roster[0].Attempt)
	require.NotNil(t, roster[0].StudentYear)
	assert.Equal(t, 2, *roster[0].StudentYear)
}

func TestMergeEnrollmentsFieldsFillOnce(t *testing.T) {
	t.Parallel()
	c, _, offering := seedShift(t)
	ctx := context.Background()

	ana := seedStudent(t, c, 1001, "Ana Martins")
	attempt := 1
	err := c.MergeEnrollments(ctx, offering.ID, []academic.EnrollmentCandidate{
		{StudentID: ana.ID, ClassInstanceID: offering.ID, Attempt: &attempt},
	})
	require.NoError(t, err)

	// a disagreeing re-observation never overwrites a stored value
	retry := 2
	statutes := "trabalhador-estudante"
	err = c.MergeEnrollments(ctx, offering.ID, []academic.EnrollmentCandidate{
		{StudentID: ana.ID, ClassInstanceID: offering.ID, Attempt: &retry, Statutes: &statutes},
	})
	require.NoError(t, err)

	roster, err := c.Enrollments(ctx, offering.ID)
	require.NoError(t, err)
	require.Len(t, roster, 1)
	require.NotNil(t, roster[0].Attempt)
	assert.Equal(t, 1, *roster[0].Attempt)
	require.NotNil(t, roster[0].Statutes)
	assert.Equal(t, "trabalhador-estudante", *roster[0].Statutes)
}

func TestMergeEnrollmentsRejectsMixedBatch(t *testing.T) {
	t.Parallel()
	c, _, offering := seedShift(t)

	ana := seedStudent(t, c, 1001, "Ana Martins")
	err := c.MergeEnrollments(context.Background(), offering.ID, []academic.EnrollmentCandidate{
		{StudentID: ana.ID, ClassInstanceID: offering.ID + 1},
	})
	require.ErrorIs(t, err, academic.ErrContract)
}

func TestAddAdmissionsSkipsRepeats(t *testing.T) {
	t.Parallel()
	c := newTestController(t)
	ctx := context.Background()
	inst := mergeTestInstitution(t, c)

	course, err := c.MergeCourse(ctx, academic.CourseCandidate{
		SourceID: 151, Name: "Engenharia Informática", InstitutionID: inst.ID,
	})
	require.NoError(t, err)

	option := 1
	batch := []academic.AdmissionCandidate{
		{Name: "Ana Martins", CourseID: course.ID, Phase: 1, Year: 2015, Option: &option},
		{Name: "Rui Costa", CourseID: course.ID, Phase: 1, Year: 2015},
	}
	first, err := c.AddAdmissions(ctx, batch)
	require.NoError(t, err)
	assert.Len(t, first, 2)

	second, err := c.AddAdmissions(ctx, batch)
	require.NoError(t, err)
	assert.Empty(t, second)

	// the same name in another phase is a distinct entry
	third, err := c.AddAdmissions(ctx, []academic.AdmissionCandidate{
		{Name: "Ana Martins", CourseID: course.ID, Phase: 2, Year: 2015},
	})
	require.NoError(t, err)
	assert.Len(t, third, 1)
}
