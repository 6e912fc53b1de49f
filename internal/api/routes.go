package api

import (
	"net/http"
)

// RegisterRoutes регистрирует маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
		Auth(h.guard),
	)

	mux.Handle("POST /api/runs", chain(http.HandlerFunc(h.CreateRun)))
	mux.Handle("GET /api/runs", chain(http.HandlerFunc(h.ListRuns)))
	mux.Handle("GET /api/runs/{id}", chain(http.HandlerFunc(h.GetRun)))
	mux.Handle("POST /api/runs/{id}/cancel", chain(http.HandlerFunc(h.CancelRun)))

	mux.Handle("GET /api/jobs", chain(http.HandlerFunc(h.ListJobs)))
	mux.Handle("PUT /api/jobs/{id}", chain(http.HandlerFunc(h.ApplyJob)))
	mux.Handle("GET /api/jobs/{id}", chain(http.HandlerFunc(h.GetJob)))
	mux.Handle("DELETE /api/jobs/{id}", chain(http.HandlerFunc(h.DeleteJob)))

	// healthz без аутентификации, для liveness probe.
	mux.Handle("GET /healthz", Chain(Recovery(h.logger))(http.HandlerFunc(h.Healthz)))
}
