package runlog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory keeps runs in process memory. It backs sqlite deployments and tests,
// where no postgres pool is available.
type Memory struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]Run
}

// NewMemory returns an empty in-memory recorder.
func NewMemory() *Memory {
	return &Memory{runs: make(map[uuid.UUID]Run)}
}

// Start implements Recorder.
func (m *Memory) Start(_ context.Context, run Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	return nil
}

// Complete implements Recorder.
func (m *Memory) Complete(_ context.Context, id uuid.UUID, finishedAt time.Time, status Status,
	unitsTotal, unitsFailed int, failedUnits []string, errMsg *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return ErrNotFound
	}
	run.FinishedAt = &finishedAt
	run.Status = status
	run.UnitsTotal = unitsTotal
	run.UnitsFailed = unitsFailed
	run.FailedUnits = failedUnits
	run.Error = errMsg
	m.runs[id] = run
	return nil
}

// Get implements Recorder.
func (m *Memory) Get(_ context.Context, id uuid.UUID) (Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return Run{}, ErrNotFound
	}
	return run, nil
}

// List implements Recorder.
func (m *Memory) List(_ context.Context, limit int) ([]Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Run, 0, len(m.runs))
	for _, run := range m.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
