// Package web exposes the scheduler and schedule store over a JSON HTTP API.
package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"crawlsched/internal/cronexpr"
	"crawlsched/internal/models"
	"crawlsched/internal/scheduler"
	"crawlsched/internal/store"
)

const defaultPageSize = 15

type RouteHandler struct {
	executor *scheduler.Executor
	log      zerolog.Logger

	authEnabled  bool
	username     string
	passwordHash string
	port         int
}

func NewRouteHandler(executor *scheduler.Executor, log zerolog.Logger, authEnabled bool, username, passwordHash string, port int) *RouteHandler {
	return &RouteHandler{
		executor:     executor,
		log:          log,
		authEnabled:  authEnabled,
		username:     username,
		passwordHash: passwordHash,
		port:         port,
	}
}

func (h *RouteHandler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", h.authMiddleware(h.handleStatus))
	mux.HandleFunc("POST /api/scheduler/start", h.authMiddleware(h.handleStart))
	mux.HandleFunc("POST /api/scheduler/stop", h.authMiddleware(h.handleStop))
	mux.HandleFunc("PUT /api/scheduler/config", h.authMiddleware(h.handleUpdateConfig))
	mux.HandleFunc("POST /api/cron/validate", h.authMiddleware(h.handleValidateCron))
	mux.HandleFunc("GET /api/schedules", h.authMiddleware(h.handleListSchedules))
	mux.HandleFunc("POST /api/schedules", h.authMiddleware(h.handleCreateSchedule))
	mux.HandleFunc("GET /api/schedules/{id}", h.authMiddleware(h.handleGetSchedule))
	mux.HandleFunc("PATCH /api/schedules/{id}", h.authMiddleware(h.handleUpdateSchedule))
	mux.HandleFunc("DELETE /api/schedules/{id}", h.authMiddleware(h.handleDeleteSchedule))
	mux.HandleFunc("POST /api/schedules/{id}/trigger", h.authMiddleware(h.handleTrigger))
	mux.HandleFunc("GET /api/schedules/{id}/executions", h.authMiddleware(h.handleListExecutions))
	return mux
}

func (h *RouteHandler) Serve() error {
	addr := fmt.Sprintf(":%d", h.port)
	h.log.Info().Str("addr", addr).Msg("http api listening")
	return http.ListenAndServe(addr, h.Routes())
}

type statusResponse struct {
	Running           bool `json:"is_running"`
	ActiveRuns        int  `json:"active_run_count"`
	MaxConcurrentRuns int  `json:"max_concurrent_runs"`
	CheckIntervalMs   int  `json:"check_interval_ms"`
}

func (h *RouteHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := h.executor.GetStatus()
	writeJSON(w, http.StatusOK, statusResponse{
		Running:           st.Running,
		ActiveRuns:        st.ActiveRuns,
		MaxConcurrentRuns: st.MaxConcurrentRuns,
		CheckIntervalMs:   int(st.CheckInterval.Milliseconds()),
	})
}

func (h *RouteHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	h.executor.Start()
	h.handleStatus(w, r)
}

func (h *RouteHandler) handleStop(w http.ResponseWriter, r *http.Request) {
	h.executor.Stop()
	h.handleStatus(w, r)
}

type configRequest struct {
	CheckIntervalMs      *int  `json:"check_interval_ms"`
	MaxConcurrentRuns    *int  `json:"max_concurrent_runs"`
	RetryFailedSchedules *bool `json:"retry_failed_schedules"`
	RetryDelayMs         *int  `json:"retry_delay_ms"`
}

func (h *RouteHandler) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	var upd scheduler.ConfigUpdate
	if req.CheckIntervalMs != nil {
		d := time.Duration(*req.CheckIntervalMs) * time.Millisecond
		upd.CheckInterval = &d
	}
	if req.RetryDelayMs != nil {
		d := time.Duration(*req.RetryDelayMs) * time.Millisecond
		upd.RetryDelay = &d
	}
	upd.MaxConcurrentRuns = req.MaxConcurrentRuns
	upd.RetryFailedSchedules = req.RetryFailedSchedules
	h.executor.UpdateConfig(upd)
	h.handleStatus(w, r)
}

type validateRequest struct {
	Expression string `json:"expression"`
}

type validateResponse struct {
	Valid       bool        `json:"valid"`
	Error       string      `json:"error,omitempty"`
	NextRun     *time.Time  `json:"next_run,omitempty"`
	Description string      `json:"description,omitempty"`
	Upcoming    []time.Time `json:"upcoming,omitempty"`
}

func (h *RouteHandler) handleValidateCron(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	v := cronexpr.Validate(req.Expression)
	resp := validateResponse{Valid: v.Valid, Error: v.Error}
	if v.Valid {
		next := v.NextRun
		resp.NextRun = &next
		resp.Description = cronexpr.Describe(req.Expression)
		resp.Upcoming = cronexpr.Upcoming(req.Expression, time.Now(), 3)
	}
	writeJSON(w, http.StatusOK, resp)
}

type createScheduleRequest struct {
	Name       string          `json:"name"`
	Expression string          `json:"expression"`
	Config     json.RawMessage `json:"config"`
	Enabled    *bool           `json:"enabled"`
}

func (h *RouteHandler) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req createScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	v := cronexpr.Validate(req.Expression)
	if !v.Valid {
		writeError(w, http.StatusBadRequest, v.Error)
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	sched := &models.Schedule{
		Name:       req.Name,
		Expression: req.Expression,
		Config:     req.Config,
		Enabled:    enabled,
		NextRunAt:  v.NextRun.UTC(),
	}
	if err := h.executor.Store().CreateSchedule(r.Context(), sched); err != nil {
		h.log.Error().Err(err).Msg("failed to create schedule")
		writeError(w, http.StatusInternalServerError, "failed to create schedule")
		return
	}
	writeJSON(w, http.StatusCreated, sched)
}

func (h *RouteHandler) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	page := pageNumber(r)
	result, err := h.executor.Store().GetAllSchedules(r.Context(), page, defaultPageSize)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list schedules")
		writeError(w, http.StatusInternalServerError, "failed to list schedules")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *RouteHandler) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	sched, err := h.executor.Store().GetSchedule(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

func (h *RouteHandler) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	var upd models.ScheduleUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if upd.Expression != nil {
		v := cronexpr.Validate(*upd.Expression)
		if !v.Valid {
			writeError(w, http.StatusBadRequest, v.Error)
			return
		}
		next := v.NextRun.UTC()
		upd.NextRunAt = &next
	}
	id := r.PathValue("id")
	if err := h.executor.Store().UpdateSchedule(r.Context(), id, upd); err != nil {
		writeStoreError(w, err)
		return
	}
	sched, err := h.executor.Store().GetSchedule(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

func (h *RouteHandler) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	if err := h.executor.Store().DeleteSchedule(r.Context(), r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RouteHandler) handleTrigger(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := h.executor.TriggerSchedule(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
	case errors.Is(err, scheduler.ErrScheduleNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, scheduler.ErrScheduleDisabled):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, scheduler.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, scheduler.ErrConcurrencyLimit):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *RouteHandler) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	page := pageNumber(r)
	result, err := h.executor.Store().GetExecutions(r.Context(), r.PathValue("id"), page, defaultPageSize)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list executions")
		writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func pageNumber(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "schedule not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
