package api

import (
	"context"
	"errors"
	"net/http"

	service "github.com/okian/circlematch/internal/app"
	"github.com/okian/circlematch/internal/domain/types"
	"github.com/okian/circlematch/pkg/logger"
)

// SubmitDependencies runs a matching session.
type SubmitDependencies interface {
	Submit(ctx context.Context, userID string, req service.MatchingRequest) (service.MatchingResult, error)
}

// SubmitHandler handles matching submissions.
type SubmitHandler struct {
	deps   SubmitDependencies
	logger logger.Logger
}

// NewSubmitHandler creates a new submit handler.
func NewSubmitHandler(deps SubmitDependencies, l logger.Logger) *SubmitHandler {
	return &SubmitHandler{deps: deps, logger: l}
}

// HandleSubmit handles POST /event-matching/submit requests.
func (h *SubmitHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, _ := UserID(ctx)

	var req types.MatchingRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", clientMessage(err, ErrBadRequest))
		return
	}

	h.logger.Info(ctx, "matching request received",
		logger.String("circle_id", req.CircleID),
		logger.String("user_id", userID),
	)
	res, err := h.deps.Submit(ctx, userID, service.MatchingRequest{
		CircleID:         req.CircleID,
		EventPreferences: req.EventPreferences,
		Budget:           req.Budget,
		Availability:     req.Availability,
	})
	if err != nil {
		writeServiceError(ctx, w, h.logger, err, submitFailure(err))
		return
	}
	writeJSON(w, http.StatusOK, matchingResponse(res))
}

func submitFailure(err error) string {
	switch {
	case errors.Is(err, service.ErrSessionCreate):
		return "Failed to initiate matching session"
	case errors.Is(err, service.ErrFetchData):
		return "Error fetching data for recommendations"
	default:
		return "Error generating recommendations"
	}
}
