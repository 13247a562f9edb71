package api

import (
	"context"
	"net/http"

	"github.com/okian/circlematch/internal/domain/model"
	"github.com/okian/circlematch/internal/domain/types"
	"github.com/okian/circlematch/pkg/logger"
)

// AttributeDependencies stores manual user attributes.
type AttributeDependencies interface {
	AddAttribute(ctx context.Context, userID string, attr model.Attribute) (model.Attribute, error)
}

// AttributesHandler lets callers add their own preferences and constraints.
type AttributesHandler struct {
	deps   AttributeDependencies
	logger logger.Logger
}

// NewAttributesHandler creates a new attributes handler.
func NewAttributesHandler(deps AttributeDependencies, l logger.Logger) *AttributesHandler {
	return &AttributesHandler{deps: deps, logger: l}
}

// HandleAddAttribute handles POST /users/me/attributes.
func (h *AttributesHandler) HandleAddAttribute(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())

	var req types.AttributeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", clientMessage(err, ErrBadRequest))
		return
	}

	attr, err := h.deps.AddAttribute(r.Context(), userID, model.Attribute{
		Type:        model.AttributeType(req.AttributeType),
		Description: req.Description,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, err, "failed to store attribute")
		return
	}
	writeJSON(w, http.StatusCreated, attributeResponse(attr))
}
