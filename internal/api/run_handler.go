package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/shaiso/Relay/internal/dispatch"
	"github.com/shaiso/Relay/internal/domain"
	"github.com/shaiso/Relay/internal/store"
)

// CreateRunRequest — тело запроса на запуск задания.
type CreateRunRequest struct {
	JobID          uuid.UUID      `json:"job_id"`
	Payload        map[string]any `json:"payload,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

// CreateRunResponse — ответ на принятый запуск.
type CreateRunResponse struct {
	RunID  uuid.UUID        `json:"run_id"`
	Status domain.RunStatus `json:"status"`
}

// CreateRun принимает запрос на запуск задания.
//
// POST /api/runs
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.JobID == uuid.Nil {
		BadRequest(w, "job_id is required")
		return
	}

	runID, err := h.dispatcher.Submit(r.Context(), dispatch.RunRequest{
		JobID:          req.JobID,
		Trigger:        req.Payload,
		IdempotencyKey: req.IdempotencyKey,
	})
	switch {
	case err == nil:
		Accepted(w, CreateRunResponse{RunID: runID, Status: domain.RunStatusPending})
	case errors.Is(err, dispatch.ErrOverloaded):
		Overloaded(w)
	case errors.Is(err, dispatch.ErrJobNotFound):
		NotFound(w, "job not found")
	case errors.Is(err, dispatch.ErrJobInactive):
		Conflict(w, "job is not active")
	default:
		InternalError(w, h.logger, err)
	}
}

// GetRun возвращает run с исходами шагов.
//
// GET /api/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	run, err := h.runs.Get(r.Context(), runID)
	if HandleStoreError(w, h.logger, err, "run not found") {
		return
	}
	Success(w, run)
}

// ListRuns возвращает runs по фильтру.
//
// GET /api/runs?job_id=&status=&limit=&offset=
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	filter := store.ListFilter{}

	if v := r.URL.Query().Get("job_id"); v != "" {
		jobID, err := uuid.Parse(v)
		if err != nil {
			BadRequest(w, "invalid job_id")
			return
		}
		filter.JobID = &jobID
	}
	if v := r.URL.Query().Get("status"); v != "" {
		filter.Status = domain.RunStatus(v)
	}
	filter.Limit = parseInt(r.URL.Query().Get("limit"))
	filter.Offset = parseInt(r.URL.Query().Get("offset"))

	runs, err := h.runs.List(r.Context(), filter)
	if HandleStoreError(w, h.logger, err, "") {
		return
	}
	List(w, runs, len(runs))
}

// CancelRun запрашивает отмену run. Отмена кооперативная: активный
// актор заметит её на границе шага.
//
// POST /api/runs/{id}/cancel
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	if h.dispatcher.Cancel(runID) {
		Accepted(w, map[string]any{"run_id": runID, "cancelling": true})
		return
	}

	// Актора нет: run либо не существует, либо уже в терминальном статусе.
	run, err := h.runs.Get(r.Context(), runID)
	if HandleStoreError(w, h.logger, err, "run not found") {
		return
	}
	Conflict(w, "run is already "+string(run.Status))
}

// Healthz — проверка живости.
//
// GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	Success(w, map[string]string{"status": "ok"})
}

func parseInt(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
