package api

import (
	"context"
	"net/http"

	"github.com/okian/circlematch/internal/domain/model"
	"github.com/okian/circlematch/internal/domain/types"
	"github.com/okian/circlematch/pkg/logger"
)

// UserDependencies reads profiles and circles.
type UserDependencies interface {
	UserProfile(ctx context.Context, userID string) (model.Record, error)
	Circle(ctx context.Context, id string) (model.Circle, error)
}

// UsersHandler serves the caller's profile and circle details.
type UsersHandler struct {
	deps   UserDependencies
	logger logger.Logger
}

// NewUsersHandler creates a new users handler.
func NewUsersHandler(deps UserDependencies, l logger.Logger) *UsersHandler {
	return &UsersHandler{deps: deps, logger: l}
}

// HandleGetMe handles GET /users/me.
func (h *UsersHandler) HandleGetMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	p, err := h.deps.UserProfile(r.Context(), userID)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, err, "failed to load profile")
		return
	}
	writeJSON(w, http.StatusOK, recordData(p))
}

// HandleGetCircle handles GET /circles/{id}.
func (h *UsersHandler) HandleGetCircle(w http.ResponseWriter, r *http.Request) {
	c, err := h.deps.Circle(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, err, "failed to load circle")
		return
	}
	writeJSON(w, http.StatusOK, types.CircleResponse{
		ID:              c.ID,
		Name:            c.Name,
		CreatedByUserID: c.CreatedByUserID,
		CreatedAt:       c.CreatedAt,
	})
}
