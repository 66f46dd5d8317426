package runlog

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLifecycle(t *testing.T) {
	t.Parallel()
	rec := NewMemory()
	ctx := context.Background()

	id := uuid.New()
	started := time.Date(2016, 2, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, rec.Start(ctx, Run{
		ID:        id,
		Stage:     "departments",
		StartedAt: started,
		Status:    StatusRunning,
	}))

	run, err := rec.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, run.Status)
	assert.Nil(t, run.FinishedAt)

	finished := started.Add(3 * time.Minute)
	require.NoError(t, rec.Complete(ctx, id, finished, StatusSucceeded, 12, 1, []string{"year 2009"}, nil))

	run, err = rec.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, run.Status)
	require.NotNil(t, run.FinishedAt)
	assert.Equal(t, finished, *run.FinishedAt)
	assert.Equal(t, 12, run.UnitsTotal)
	assert.Equal(t, 1, run.UnitsFailed)
	assert.Equal(t, []string{"year 2009"}, run.FailedUnits)
}

func TestMemoryGetUnknown(t *testing.T) {
	t.Parallel()
	rec := NewMemory()
	_, err := rec.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, rec.Complete(context.Background(), uuid.New(), time.Now(), StatusFailed, 0, 0, nil, nil), ErrNotFound)
}

func TestMemoryListNewestFirst(t *testing.T) {
	t.Parallel()
	rec := NewMemory()
	ctx := context.Background()
	base := time.Date(2016, 2, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		require.NoError(t, rec.Start(ctx, Run{
			ID:        uuid.New(),
			Stage:     "courses",
			StartedAt: base.Add(time.Duration(i) * time.Hour),
			Status:    StatusRunning,
		}))
	}

	runs, err := rec.List(ctx, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, base.Add(3*time.Hour), runs[0].StartedAt)
	assert.Equal(t, base.Add(1*time.Hour), runs[2].StartedAt)
}
