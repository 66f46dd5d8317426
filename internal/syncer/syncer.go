// Package syncer drives the crawl: it expands each stage into crawl units,
// drains them through the worker pool and records the run outcome.
package syncer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"campuscrawl/internal/academic"
	"campuscrawl/internal/fetch"
	"campuscrawl/internal/metrics"
	"campuscrawl/internal/parse"
	"campuscrawl/internal/queue"
	"campuscrawl/internal/runlog"
	"campuscrawl/internal/store"
	"campuscrawl/internal/worker"
)

// Config controls what the syncer crawls.
type Config struct {
	// InstitutionID is the portal source id of the crawled institution.
	InstitutionID int
	// FirstYear and LastYear clamp the crawled academic years. Zero bounds
	// follow whatever span the portal advertises.
	FirstYear int
	LastYear  int
	// Workers is the crawl pool size.
	Workers int
	// Phases is how many national contest phases the admissions stage visits.
	Phases int
}

// Syncer runs crawl stages against one portal and one store.
type Syncer struct {
	st       *store.Store
	session  *fetch.Session
	recorder runlog.Recorder
	cfg      Config
	policy   *worker.RetryPolicy
	logger   *zap.Logger
}

// New builds a syncer. A nil recorder gets an in-memory one and a nil policy
// the default retry policy.
func New(st *store.Store, session *fetch.Session, recorder runlog.Recorder, cfg Config, policy *worker.RetryPolicy, logger *zap.Logger) *Syncer {
	if recorder == nil {
		recorder = runlog.NewMemory()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 8
	}
	if cfg.Phases < 1 {
		cfg.Phases = 3
	}
	return &Syncer{st: st, session: session, recorder: recorder, cfg: cfg, policy: policy, logger: logger}
}

// Recorder exposes the run recorder backing this syncer.
func (s *Syncer) Recorder() runlog.Recorder {
	return s.recorder
}

// Run executes one stage to completion and records it. The returned error
// covers setup failures and cancellation; units that exhausted their retries
// only mark the run failed.
func (s *Syncer) Run(ctx context.Context, stage Stage) (runlog.Run, error) {
	run, err := s.startRun(ctx, stage)
	if err != nil {
		return run, err
	}
	return s.finishRun(ctx, run, stage)
}

// RunDetached records the run and executes the stage in the background,
// returning the run id right away for status polling.
func (s *Syncer) RunDetached(stage Stage) (uuid.UUID, error) {
	run, err := s.startRun(context.Background(), stage)
	if err != nil {
		return uuid.Nil, err
	}
	go func() {
		if _, err := s.finishRun(context.Background(), run, stage); err != nil {
			s.logger.Error("background sync run failed",
				zap.String("stage", string(stage)),
				zap.String("run", run.ID.String()),
				zap.Error(err))
		}
	}()
	return run.ID, nil
}

func (s *Syncer) startRun(ctx context.Context, stage Stage) (runlog.Run, error) {
	run := runlog.Run{
		ID:        uuid.New(),
		Stage:     string(stage),
		StartedAt: time.Now().UTC(),
		Status:    runlog.StatusRunning,
	}
	if err := s.recorder.Start(ctx, run); err != nil {
		return run, fmt.Errorf("recording run start: %w", err)
	}
	s.logger.Info("sync run started",
		zap.String("stage", string(stage)),
		zap.String("run", run.ID.String()))
	return run, nil
}

func (s *Syncer) finishRun(ctx context.Context, run runlog.Run, stage Stage) (runlog.Run, error) {
	res, stageErr := s.runStage(ctx, stage)

	status := runlog.StatusSucceeded
	var errMsg *string
	if stageErr != nil {
		status = runlog.StatusFailed
		msg := stageErr.Error()
		errMsg = &msg
	} else if len(res.Failed) > 0 {
		status = runlog.StatusFailed
	}
	failed := make([]string, 0, len(res.Failed))
	for _, f := range res.Failed {
		failed = append(failed, f.Label)
	}

	finished := time.Now().UTC()
	// completion is recorded even when ctx is already gone
	if err := s.recorder.Complete(context.Background(), run.ID, finished, status,
		res.Processed, len(res.Failed), failed, errMsg); err != nil {
		s.logger.Error("recording run completion failed",
			zap.String("run", run.ID.String()), zap.Error(err))
	}
	metrics.ObserveRun(string(stage), string(status))

	run.FinishedAt = &finished
	run.Status = status
	run.UnitsTotal = res.Processed
	run.UnitsFailed = len(res.Failed)
	run.FailedUnits = failed
	run.Error = errMsg
	s.logger.Info("sync run finished",
		zap.String("stage", string(stage)),
		zap.String("run", run.ID.String()),
		zap.String("status", string(status)),
		zap.Int("units", res.Processed),
		zap.Int("failed", len(res.Failed)))
	return run, stageErr
}

// RunAll executes every stage in dependency order. Stages with failed units
// do not stop the sequence; setup errors and cancellation do.
func (s *Syncer) RunAll(ctx context.Context) ([]runlog.Run, error) {
	var runs []runlog.Run
	for _, stage := range Stages() {
		run, err := s.Run(ctx, stage)
		runs = append(runs, run)
		if err != nil {
			return runs, err
		}
	}
	return runs, nil
}

func (s *Syncer) runStage(ctx context.Context, stage Stage) (worker.Result, error) {
	switch stage {
	case StageDepartments:
		return s.syncDepartments(ctx)
	case StageBuildings:
		return s.syncBuildings(ctx)
	case StageCourses:
		return s.syncCourses(ctx)
	case StageClasses:
		return s.syncClasses(ctx)
	case StageAdmissions:
		return s.syncAdmissions(ctx)
	case StageShifts:
		return s.syncShifts(ctx)
	case StageEnrollments:
		return s.syncEnrollments(ctx)
	default:
		return worker.Result{}, fmt.Errorf("unknown sync stage %q", stage)
	}
}

// runPool drains one stage queue, reporting progress and unit metrics.
func runPool[T worker.Unit](ctx context.Context, s *Syncer, stage Stage, q *queue.FIFO[T], handle worker.Handler[T]) (worker.Result, error) {
	stop := watchQueue(s.logger, stage, q)
	defer stop()

	pool := worker.NewPool[T](s.st, string(stage), s.cfg.Workers, s.policy,
		s.logger.With(zap.String("stage", string(stage))))
	return pool.Run(ctx, q, instrument(handle))
}

func instrument[T worker.Unit](handle worker.Handler[T]) worker.Handler[T] {
	return func(ctx context.Context, ctl *store.Controller, unit T) error {
		metrics.IncActiveWorkers()
		defer metrics.DecActiveWorkers()
		return handle(ctx, ctl, unit)
	}
}

// watchQueue logs the queue depth periodically until the returned stop
// function runs.
func watchQueue[T any](logger *zap.Logger, stage Stage, q *queue.FIFO[T]) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				logger.Info("stage progress",
					zap.String("stage", string(stage)),
					zap.Int("queued", q.Size()))
			}
		}
	}()
	return func() { close(done) }
}

// document fetches and parses one portal page, timing the round-trip.
func (s *Syncer) document(ctx context.Context, url string) (*goquery.Document, error) {
	start := time.Now()
	doc, err := s.session.Document(ctx, url)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.ObserveFetch(status, time.Since(start))
	return doc, err
}

// fetchFile fetches one raw portal export, timing the round-trip.
func (s *Syncer) fetchFile(ctx context.Context, url string) ([]byte, error) {
	start := time.Now()
	body, err := s.session.Fetch(ctx, url)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.ObserveFetch(status, time.Since(start))
	return body, err
}

// ensureInstitution reconciles the configured institution and returns it with
// the academic years to crawl, oldest first. While the stored row has no
// abbreviation the portal's registry index is consulted for one.
func (s *Syncer) ensureInstitution(ctx context.Context) (academic.Institution, []int, error) {
	doc, err := s.document(ctx, s.session.URLs().InstitutionYears(s.cfg.InstitutionID))
	if err != nil {
		return academic.Institution{}, nil, err
	}
	if parse.NoData(doc) {
		return academic.Institution{}, nil,
			fmt.Errorf("institution %d unknown to the portal", s.cfg.InstitutionID)
	}
	years := s.clampYears(parse.Years(doc))
	var span academic.YearRange
	for _, y := range years {
		span.Add(y)
	}

	ctl, err := s.st.Controller(ctx)
	if err != nil {
		return academic.Institution{}, nil, err
	}
	defer func() { _ = ctl.Close() }()
	cand := academic.InstitutionCandidate{
		SourceID: s.cfg.InstitutionID,
		Years:    span,
	}
	existing, err := ctl.InstitutionBySourceID(ctx, s.cfg.InstitutionID)
	if err != nil {
		return academic.Institution{}, nil, err
	}
	if existing == nil || existing.Abbreviation == "" {
		cand.Abbreviation = s.institutionAbbreviation(ctx)
	}
	inst, err := ctl.MergeInstitution(ctx, cand)
	if err != nil {
		return academic.Institution{}, nil, fmt.Errorf("merge institution: %w", err)
	}
	return inst, years, nil
}

// institutionAbbreviation reads the configured institution's abbreviation off
// the registry index, the only page that carries it. A missing or unreachable
// index leaves the abbreviation unset until a later run.
func (s *Syncer) institutionAbbreviation(ctx context.Context) string {
	doc, err := s.document(ctx, s.session.URLs().Institutions())
	if err != nil {
		s.logger.Warn("institution registry unavailable", zap.Error(err))
		return ""
	}
	for _, l := range parse.Institutions(doc) {
		if l.ID == s.cfg.InstitutionID {
			return l.Text
		}
	}
	return ""
}

func (s *Syncer) clampYears(years []int) []int {
	out := make([]int, 0, len(years))
	for _, y := range years {
		if s.cfg.FirstYear != 0 && y < s.cfg.FirstYear {
			continue
		}
		if s.cfg.LastYear != 0 && y > s.cfg.LastYear {
			continue
		}
		out = append(out, y)
	}
	sort.Ints(out)
	return out
}

func yearRangeOf(year int) academic.YearRange {
	var r academic.YearRange
	r.Add(year)
	return r
}
