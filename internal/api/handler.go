// Package api exposes the mailbox scheduler over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/nhle/procurement-inbox/internal/mailbox"
	"github.com/nhle/procurement-inbox/internal/store"
	"github.com/nhle/procurement-inbox/internal/sync"
)

const maxRequestBodySize = 1 << 10

// Scheduler is the subset of *sync.Scheduler the handlers drive.
type Scheduler interface {
	Status() sync.Status
	Start(intervalMinutes int) error
	Stop()
	TestConnection(ctx context.Context) (*sync.ConnectionReport, error)
	FetchAndProcessEmails(ctx context.Context) (*sync.Summary, error)
}

// Deps holds the handler collaborators. Metrics may be nil to disable
// /metrics.
type Deps struct {
	Scheduler Scheduler
	Metrics   http.Handler
	Logger    *zap.Logger
}

type startRequest struct {
	IntervalMinutes int `json:"intervalMinutes"`
}

// NewHandler returns the HTTP router.
func NewHandler(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("api")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/healthz", handleHealth)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/api/email", func(r chi.Router) {
		r.Get("/status", handleStatus(deps.Scheduler))
		r.Post("/test-connection", handleTestConnection(deps.Scheduler))
		r.Post("/fetch", handleFetch(deps.Scheduler))
		r.Post("/polling/start", handleStart(deps.Scheduler))
		r.Post("/polling/stop", handleStop(deps.Scheduler))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleStatus(s Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.Status())
	}
}

func handleTestConnection(s Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := s.TestConnection(r.Context())
		if err != nil && report == nil {
			writeError(w, err)
			return
		}
		code := http.StatusOK
		if err != nil {
			code = statusFor(err)
		}
		writeJSON(w, code, report)
	}
}

func handleFetch(s Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := s.FetchAndProcessEmails(r.Context())
		if err != nil {
			if summary != nil {
				writeJSON(w, statusFor(err), summary)
				return
			}
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

func handleStart(s Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req startRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.IntervalMinutes < 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "intervalMinutes must not be negative")
			return
		}

		if err := s.Start(req.IntervalMinutes); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.Status())
	}
}

func handleStop(s Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Stop()
		writeJSON(w, http.StatusOK, s.Status())
	}
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, sync.ErrCycleInProgress):
		return http.StatusConflict
	case sync.IsConfigurationError(err):
		return http.StatusPreconditionFailed
	case mailbox.IsConnectionError(err):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func errorType(err error) string {
	switch {
	case errors.Is(err, sync.ErrCycleInProgress):
		return "conflict_error"
	case sync.IsConfigurationError(err):
		return "configuration_error"
	case mailbox.IsConnectionError(err):
		return "connection_error"
	case store.IsPersistenceError(err):
		return "persistence_error"
	default:
		return "api_error"
	}
}

func writeError(w http.ResponseWriter, err error) {
	httpError(w, statusFor(err), errorType(err), "%v", err)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
