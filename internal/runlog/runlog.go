// Package runlog records sync runs for the status endpoints.
package runlog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested run does not exist.
var ErrNotFound = errors.New("run not found")

// Status mirrors the sync_runs status column.
type Status string

// Run statuses persisted in sync_runs.status.
const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Run models one sync run of a stage.
type Run struct {
	ID          uuid.UUID
	Stage       string
	StartedAt   time.Time
	FinishedAt  *time.Time
	Status      Status
	Error       *string
	UnitsTotal  int
	UnitsFailed int
	// FailedUnits holds the labels of the units that were abandoned.
	FailedUnits []string
}

// Recorder persists sync runs.
type Recorder interface {
	// Start records a new run in the running state.
	Start(ctx context.Context, run Run) error
	// Complete marks the run finished with its unit tallies.
	Complete(ctx context.Context, id uuid.UUID, finishedAt time.Time, status Status,
		unitsTotal, unitsFailed int, failedUnits []string, errMsg *string) error
	// Get loads a single run or returns ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (Run, error)
	// List returns the most recent runs, newest first.
	List(ctx context.Context, limit int) ([]Run, error)
}
