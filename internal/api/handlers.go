package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"campuscrawl/internal/academic"
	"campuscrawl/internal/runlog"
	"campuscrawl/internal/store"
	"campuscrawl/internal/syncer"
)

const (
	defaultRunLimit = 50
	maxRunLimit     = 500
)

// startSync handles POST /v1/sync/{stage}: it launches the stage in the
// background and answers with the run id to poll.
func (s *Server) startSync(w http.ResponseWriter, r *http.Request) {
	if s.sync == nil {
		writeError(w, http.StatusServiceUnavailable, "sync is disabled")
		return
	}
	stage, err := syncer.ParseStage(chi.URLParam(r, "stage"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	runID, err := s.sync.RunDetached(stage)
	if err != nil {
		s.logger.Error("launch sync run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start sync run")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"run_id": runID.String(),
		"stage":  string(stage),
	})
}

// listRuns handles GET /v1/runs?limit=.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil || val <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if val > maxRunLimit {
			val = maxRunLimit
		}
		limit = val
	}
	runs, err := s.recorder.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": toRunDTOs(runs)})
}

// getRun handles GET /v1/runs/{run_id}.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(chi.URLParam(r, "run_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}
	run, err := s.recorder.Get(r.Context(), runID)
	if err != nil {
		if errors.Is(err, runlog.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("get run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": toRunDTO(run)})
}

// controller checks out a store session for one request. The caller must
// close it.
func (s *Server) controller(w http.ResponseWriter, r *http.Request) *store.Controller {
	ctl, err := s.st.Controller(r.Context())
	if err != nil {
		s.logger.Error("store session checkout failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return nil
	}
	return ctl
}

func (s *Server) listDepartments(w http.ResponseWriter, r *http.Request) {
	ctl := s.controller(w, r)
	if ctl == nil {
		return
	}
	defer func() { _ = ctl.Close() }()

	departments, err := ctl.ListDepartments(r.Context())
	if err != nil {
		s.logger.Error("list departments failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list departments")
		return
	}
	out := make([]departmentDTO, 0, len(departments))
	for _, d := range departments {
		out = append(out, departmentDTO{
			ID:       d.ID,
			SourceID: d.SourceID,
			Name:     d.Name,
			Years:    d.Years,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"departments": out})
}

func (s *Server) listCourses(w http.ResponseWriter, r *http.Request) {
	ctl := s.controller(w, r)
	if ctl == nil {
		return
	}
	defer func() { _ = ctl.Close() }()

	courses, err := ctl.ListCourses(r.Context())
	if err != nil {
		s.logger.Error("list courses failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list courses")
		return
	}
	out := make([]courseDTO, 0, len(courses))
	for _, c := range courses {
		out = append(out, courseDTO{
			ID:           c.ID,
			SourceID:     c.SourceID,
			Name:         c.Name,
			Abbreviation: c.Abbreviation,
			DegreeID:     c.DegreeID,
			Years:        c.Years,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"courses": out})
}

func (s *Server) listBuildings(w http.ResponseWriter, r *http.Request) {
	ctl := s.controller(w, r)
	if ctl == nil {
		return
	}
	defer func() { _ = ctl.Close() }()

	buildings, err := ctl.ListBuildings(r.Context())
	if err != nil {
		s.logger.Error("list buildings failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list buildings")
		return
	}
	out := make([]buildingDTO, 0, len(buildings))
	for _, b := range buildings {
		out = append(out, buildingDTO{ID: b.ID, Name: b.Name, Years: b.Years})
	}
	writeJSON(w, http.StatusOK, map[string]any{"buildings": out})
}

func (s *Server) getClass(w http.ResponseWriter, r *http.Request) {
	classID, err := strconv.ParseInt(chi.URLParam(r, "class_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid class id")
		return
	}
	ctl := s.controller(w, r)
	if ctl == nil {
		return
	}
	defer func() { _ = ctl.Close() }()

	class, err := ctl.ClassByID(r.Context(), classID)
	if err != nil {
		s.logger.Error("get class failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load class")
		return
	}
	if class == nil {
		writeError(w, http.StatusNotFound, "class not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"class": classDTO{
		ID:           class.ID,
		SourceID:     class.SourceID,
		DepartmentID: class.DepartmentID,
		Name:         class.Name,
		Abbreviation: class.Abbreviation,
		ECTS:         class.ECTS,
	}})
}

// listOfferings handles GET /v1/offerings?year=&period=.
func (s *Server) listOfferings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	year := 0
	if raw := q.Get("year"); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid year")
			return
		}
		year = val
	}
	var periodID int64
	if raw := q.Get("period"); raw != "" {
		val, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid period")
			return
		}
		periodID = val
	}

	ctl := s.controller(w, r)
	if ctl == nil {
		return
	}
	defer func() { _ = ctl.Close() }()

	offerings, err := ctl.ListClassInstances(r.Context(), year, periodID)
	if err != nil {
		s.logger.Error("list offerings failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list offerings")
		return
	}
	out := make([]offeringDTO, 0, len(offerings))
	for _, o := range offerings {
		out = append(out, offeringDTO{
			ID:       o.ID,
			ClassID:  o.ClassID,
			PeriodID: o.PeriodID,
			Year:     o.Year,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"offerings": out})
}

// findStudents handles GET /v1/students?name=.
func (s *Server) findStudents(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	ctl := s.controller(w, r)
	if ctl == nil {
		return
	}
	defer func() { _ = ctl.Close() }()

	students, err := ctl.FindStudents(r.Context(), name)
	if err != nil {
		s.logger.Error("find students failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to search students")
		return
	}
	out := make([]studentDTO, 0, len(students))
	for _, stu := range students {
		out = append(out, studentDTO{
			ID:           stu.ID,
			SourceID:     stu.SourceID,
			Name:         stu.Name,
			Abbreviation: stu.Abbreviation,
			CourseID:     stu.CourseID,
			Years:        stu.Years,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"students": out})
}

func toRunDTOs(runs []runlog.Run) []runDTO {
	out := make([]runDTO, 0, len(runs))
	for _, run := range runs {
		out = append(out, toRunDTO(run))
	}
	return out
}

func toRunDTO(run runlog.Run) runDTO {
	return runDTO{
		ID:          run.ID.String(),
		Stage:       run.Stage,
		StartedAt:   run.StartedAt,
		FinishedAt:  run.FinishedAt,
		Status:      string(run.Status),
		Error:       run.Error,
		UnitsTotal:  run.UnitsTotal,
		UnitsFailed: run.UnitsFailed,
		FailedUnits: run.FailedUnits,
	}
}

type runDTO struct {
	ID          string     `json:"id"`
	Stage       string     `json:"stage"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Status      string     `json:"status"`
	Error       *string    `json:"error,omitempty"`
	UnitsTotal  int        `json:"units_total"`
	UnitsFailed int        `json:"units_failed"`
	FailedUnits []string   `json:"failed_units,omitempty"`
}

type departmentDTO struct {
	ID       int64              `json:"id"`
	SourceID int                `json:"source_id"`
	Name     string             `json:"name"`
	Years    academic.YearRange `json:"years"`
}

type courseDTO struct {
	ID           int64              `json:"id"`
	SourceID     int                `json:"source_id"`
	Name         string             `json:"name"`
	Abbreviation string             `json:"abbreviation,omitempty"`
	DegreeID     int64              `json:"degree_id,omitempty"`
	Years        academic.YearRange `json:"years"`
}

type buildingDTO struct {
	ID    int64              `json:"id"`
	Name  string             `json:"name"`
	Years academic.YearRange `json:"years"`
}

type classDTO struct {
	ID           int64  `json:"id"`
	SourceID     int    `json:"source_id"`
	DepartmentID int64  `json:"department_id"`
	Name         string `json:"name"`
	Abbreviation string `json:"abbreviation,omitempty"`
	ECTS         *int   `json:"ects,omitempty"`
}

type offeringDTO struct {
	ID       int64 `json:"id"`
	ClassID  int64 `json:"class_id"`
	PeriodID int64 `json:"period_id"`
	Year     int   `json:"year"`
}

type studentDTO struct {
	ID           int64              `json:"id"`
	SourceID     int                `json:"source_id"`
	Name         string             `json:"name"`
	Abbreviation string             `json:"abbreviation,omitempty"`
	CourseID     int64              `json:"course_id,omitempty"`
	Years        academic.YearRange `json:"years"`
}
