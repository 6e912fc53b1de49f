package api

import (
	"log/slog"

	"github.com/shaiso/Relay/internal/authguard"
	"github.com/shaiso/Relay/internal/dispatch"
	"github.com/shaiso/Relay/internal/store"
)

// Handler — обработчики HTTP API.
type Handler struct {
	dispatcher *dispatch.Dispatcher
	jobs       *store.JobStore
	runs       *store.RunStore
	guard      *authguard.Guard
	logger     *slog.Logger
}

// NewHandler создаёт обработчики API.
func NewHandler(dispatcher *dispatch.Dispatcher, jobs *store.JobStore, runs *store.RunStore, guard *authguard.Guard, logger *slog.Logger) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		jobs:       jobs,
		runs:       runs,
		guard:      guard,
		logger:     logger,
	}
}
