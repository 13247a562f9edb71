package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/circlematch/pkg/logger"
	"github.com/okian/circlematch/pkg/metrics"
)

// statusRecorder remembers the status code a handler wrote.
type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (rec *statusRecorder) WriteHeader(code int) {
	if rec.wrote {
		return
	}
	rec.status = code
	rec.wrote = true
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	if !rec.wrote {
		rec.WriteHeader(http.StatusOK)
	}
	return rec.ResponseWriter.Write(b) //nolint:wrapcheck // passthrough writer
}

// instrument records request counters and latency under endpoint and turns
// a handler panic into a logged 500.
func (s *Server) instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			if p := recover(); p != nil {
				s.logger.Error(r.Context(), "handler panic",
					logger.String("endpoint", endpoint),
					logger.Any("panic", p),
				)
				if !rec.wrote {
					writeError(rec, http.StatusInternalServerError, "internal_error", errors.New("internal server error"))
				}
			}

			code := strconv.Itoa(rec.status)
			metrics.RecordHTTPRequest(endpoint, r.Method, code)
			metrics.RecordHTTPRequestDuration(endpoint, r.Method, code, float64(time.Since(start).Milliseconds()))
			if kind := errorKind(rec.status); kind != "" {
				metrics.RecordErrorByEndpoint(endpoint, r.Method, kind)
			}
		}()

		next(rec, r)
	}
}

// errorKind buckets a status code for the error counter; "" means success.
func errorKind(status int) string {
	switch {
	case status >= http.StatusInternalServerError:
		return "server_error"
	case status == http.StatusTooManyRequests:
		return "rate_limit"
	case status == http.StatusNotFound:
		return "not_found"
	case status == http.StatusUnauthorized:
		return "unauthorized"
	case status >= http.StatusBadRequest:
		return "client_error"
	default:
		return ""
	}
}
