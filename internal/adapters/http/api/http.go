// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	service "github.com/okian/circlematch/internal/app"
	"github.com/okian/circlematch/internal/domain/model"
	"github.com/okian/circlematch/pkg/logger"
)

const (
	maxBodyBytes    = 1 << 20
	rateLimitWindow = time.Minute
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	SubmitDependencies
	SessionDependencies
	AttributeDependencies
	EventDependencies
	UserDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	apiKey      string
	auth        *Authenticator
	submitLimit int
	stats       StatsProvider
	logger      logger.Logger

	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	submitHandler     *SubmitHandler
	sessionsHandler   *SessionsHandler
	attributesHandler *AttributesHandler
	eventsHandler     *EventsHandler
	usersHandler      *UsersHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		logger: logger.Get().Named("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.stats == nil {
		s.stats = emptyStats{}
	}

	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(s.stats)
	s.submitHandler = NewSubmitHandler(deps, s.logger)
	s.sessionsHandler = NewSessionsHandler(deps, s.logger)
	s.attributesHandler = NewAttributesHandler(deps, s.logger)
	s.eventsHandler = NewEventsHandler(deps, s.logger)
	s.usersHandler = NewUsersHandler(deps, s.logger)
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.instrument("healthz", s.healthHandler.HandleHealth))
	mux.HandleFunc("GET /stats", s.instrument("stats", s.statsHandler.HandleStats))

	submit := s.requireAPIKey(s.requireUser(s.submitHandler.HandleSubmit))
	if s.submitLimit > 0 {
		submit = rateLimited(s.submitLimit, submit)
	}
	mux.HandleFunc("POST /event-matching/submit", s.instrument("submit", submit))
	mux.HandleFunc("GET /sessions/{id}",
		s.instrument("session", s.requireAPIKey(s.requireUser(s.sessionsHandler.HandleGetSession))))
	mux.HandleFunc("GET /sessions/{id}/recommendations",
		s.instrument("recommendations", s.requireAPIKey(s.requireUser(s.sessionsHandler.HandleGetRecommendations))))
	mux.HandleFunc("GET /sessions/{id}/users",
		s.instrument("session_users", s.requireAPIKey(s.requireUser(s.sessionsHandler.HandleGetSessionUsers))))
	mux.HandleFunc("GET /users/me",
		s.instrument("profile", s.requireAPIKey(s.requireUser(s.usersHandler.HandleGetMe))))
	mux.HandleFunc("GET /circles/{id}",
		s.instrument("circle", s.requireAPIKey(s.requireUser(s.usersHandler.HandleGetCircle))))
	mux.HandleFunc("POST /users/me/attributes",
		s.instrument("attributes", s.requireAPIKey(s.requireUser(s.attributesHandler.HandleAddAttribute))))
	mux.HandleFunc("GET /events", s.instrument("events", s.requireAPIKey(s.eventsHandler.HandleListEvents)))

	s.logger.Info(ctx, "routes registered",
		logger.Bool("api_key", s.apiKey != ""),
		logger.Bool("jwt", s.auth != nil),
		logger.Int("submit_rate_limit", s.submitLimit),
	)
}

func rateLimited(perMinute int, next http.HandlerFunc) http.HandlerFunc {
	limit := httprate.Limit(perMinute, rateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusTooManyRequests, "rate_limited", errors.New("too many requests"))
		}),
	)
	return limit(next).ServeHTTP
}

var validate = newValidator() //nolint:gochecknoglobals

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeBody reads a JSON body into dst and validates it.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body", ErrBadRequest)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %s", ErrBadRequest, describeValidation(err))
	}
	return nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "oneof":
			msgs = append(msgs, fe.Field()+" must be one of: "+fe.Param())
		case "max":
			msgs = append(msgs, fe.Field()+" is too long")
		default:
			msgs = append(msgs, fe.Field()+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// clientMessage drops the sentinel prefix of err so only the detail is
// shown to clients.
func clientMessage(err, kind error) error {
	return errors.New(strings.TrimPrefix(err.Error(), kind.Error()+": "))
}

// writeServiceError maps service sentinels to status codes. Server-side
// failures are logged and answered with generic text.
func writeServiceError(ctx context.Context, w http.ResponseWriter, log logger.Logger, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", errors.New("not found"))
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("invalid request"))
	default:
		log.Error(ctx, fallback, logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", errors.New(fallback))
	}
}

func recordData(r model.Record) map[string]any {
	if r == nil {
		return nil
	}
	return map[string]any(r)
}
