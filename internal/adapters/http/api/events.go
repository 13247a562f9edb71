package api

import (
	"context"
	"net/http"

	"github.com/okian/circlematch/internal/domain/model"
	"github.com/okian/circlematch/internal/domain/types"
	"github.com/okian/circlematch/pkg/logger"
)

// EventDependencies lists circle events.
type EventDependencies interface {
	Events(ctx context.Context) ([]model.Record, error)
}

// EventsHandler handles event listing.
type EventsHandler struct {
	deps   EventDependencies
	logger logger.Logger
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies, l logger.Logger) *EventsHandler {
	return &EventsHandler{deps: deps, logger: l}
}

// HandleListEvents handles GET /events.
func (h *EventsHandler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.deps.Events(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, err, "failed to load events")
		return
	}
	out := types.EventsResponse{Events: make([]map[string]any, 0, len(events)), Count: len(events)}
	for _, e := range events {
		out.Events = append(out.Events, recordData(e))
	}
	writeJSON(w, http.StatusOK, out)
}
