package api

import (
	"context"
	"net/http"

	"github.com/okian/circlematch/internal/domain/model"
	"github.com/okian/circlematch/internal/domain/types"
	"github.com/okian/circlematch/pkg/logger"
)

// SessionDependencies reads stored sessions.
type SessionDependencies interface {
	Session(ctx context.Context, id string) (model.Session, error)
	Recommendations(ctx context.Context, sessionID string) ([]model.StoredRecommendation, error)
	SessionUsers(ctx context.Context, sessionID string) ([]model.Record, error)
}

// SessionsHandler serves stored sessions and their recommendations.
type SessionsHandler struct {
	deps   SessionDependencies
	logger logger.Logger
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps SessionDependencies, l logger.Logger) *SessionsHandler {
	return &SessionsHandler{deps: deps, logger: l}
}

// HandleGetSession handles GET /sessions/{id}.
func (h *SessionsHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.deps.Session(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, err, "failed to load session")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(sess))
}

// HandleGetRecommendations handles GET /sessions/{id}/recommendations.
func (h *SessionsHandler) HandleGetRecommendations(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	recs, err := h.deps.Recommendations(r.Context(), id)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, err, "failed to load recommendations")
		return
	}
	out := types.RecommendationsResponse{SessionID: id, Recommendations: make([]types.RecommendationResult, 0, len(recs))}
	for _, rec := range recs {
		out.Recommendations = append(out.Recommendations, storedResult(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGetSessionUsers handles GET /sessions/{id}/users.
func (h *SessionsHandler) HandleGetSessionUsers(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	users, err := h.deps.SessionUsers(r.Context(), id)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, err, "failed to load session users")
		return
	}
	out := types.UsersResponse{SessionID: id, Users: make([]map[string]any, 0, len(users)), Count: len(users)}
	for _, u := range users {
		out.Users = append(out.Users, recordData(u))
	}
	writeJSON(w, http.StatusOK, out)
}
