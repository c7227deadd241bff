// Package api serves the taskboard HTTP interface.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"taskboard/internal/metrics"
	"taskboard/internal/service"
	"taskboard/pkg/apperr"
	"taskboard/pkg/realtime"
)

// DefaultKeepAlive is the interval between SSE keep-alive comments.
const DefaultKeepAlive = 15 * time.Second

// Server is the HTTP API server.
type Server struct {
	tasks         *service.TaskService
	notifications *service.NotificationService
	bus           *realtime.Bus
	metrics       *metrics.Metrics
	logger        *zap.Logger
	cors          CORS
	keepAlive     time.Duration

	mux     *http.ServeMux
	handler http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records request metrics and serves them on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithCORS replaces the default allow-all CORS policy.
func WithCORS(c CORS) Option {
	return func(s *Server) { s.cors = c }
}

// WithKeepAlive sets the SSE keep-alive interval.
func WithKeepAlive(d time.Duration) Option {
	return func(s *Server) { s.keepAlive = d }
}

// New creates a new Server. bus may be nil, in which case the event stream
// endpoint is not registered.
func New(tasks *service.TaskService, notifications *service.NotificationService, bus *realtime.Bus, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		tasks:         tasks,
		notifications: notifications,
		bus:           bus,
		logger:        logger.Named("api"),
		cors:          DefaultCORS(),
		keepAlive:     DefaultKeepAlive,
		mux:           http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	s.handler = s.observe(s.cors.Handler(s.mux))
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() {
	// Tasks
	s.mux.HandleFunc("GET /api/tasks", s.handleTaskList)
	s.mux.HandleFunc("POST /api/tasks", s.handleTaskCreate)
	s.mux.HandleFunc("GET /api/tasks/{id}", s.handleTaskGet)
	s.mux.HandleFunc("PUT /api/tasks/{id}", s.handleTaskUpdate)
	s.mux.HandleFunc("DELETE /api/tasks/{id}", s.handleTaskDelete)

	// Notifications
	s.mux.HandleFunc("POST /api/notifications", s.handleNotificationList)

	// Realtime
	if s.bus != nil {
		s.mux.HandleFunc("GET /api/events/stream", s.handleEventStream)
	}

	// System
	s.mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("writing response", zap.Int("status", status), zap.Error(err))
	}
}

// writeError writes the {message, error} body. cause may be nil.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string, cause error) {
	body := errorBody{Message: msg}
	if cause != nil {
		body.Error = cause.Error()
	}
	s.writeJSON(w, status, body)
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with the status of its kind. msg is the operation message
// used for 400 and 500; not-found always reads "Task not found".
func (s *Server) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := statusFor(err)
	if status == http.StatusNotFound {
		msg = "Task not found"
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg,
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	s.writeError(w, status, msg, err)
}
