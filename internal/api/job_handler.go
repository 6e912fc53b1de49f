package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Relay/internal/domain"
)

// ApplyJob создаёт или обновляет определение задания.
//
// PUT /api/jobs/{id}
func (h *Handler) ApplyJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid job id")
		return
	}

	var job domain.JobDefinition
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	job.ID = jobID
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	if err := job.Validate(); err != nil {
		BadRequest(w, err.Error())
		return
	}

	if err := h.jobs.Save(r.Context(), &job); err != nil {
		InternalError(w, h.logger, err)
		return
	}
	Success(w, job)
}

// GetJob возвращает определение задания.
//
// GET /api/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid job id")
		return
	}

	job, err := h.jobs.Load(r.Context(), jobID)
	if HandleStoreError(w, h.logger, err, "job not found") {
		return
	}
	Success(w, job)
}

// ListJobs возвращает все определения заданий.
//
// GET /api/jobs
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.jobs.List(r.Context())
	if HandleStoreError(w, h.logger, err, "") {
		return
	}
	List(w, jobs, len(jobs))
}

// DeleteJob удаляет определение задания.
//
// DELETE /api/jobs/{id}
func (h *Handler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid job id")
		return
	}

	if err := h.jobs.Delete(r.Context(), jobID); HandleStoreError(w, h.logger, err, "job not found") {
		return
	}
	NoContent(w)
}
