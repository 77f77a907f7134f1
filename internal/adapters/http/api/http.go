// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
)

// Dependencies required by the HTTP handlers. An interface bundle keeps
// the handler layer loosely coupled to the pipeline wiring.
type Dependencies interface {
	// Enqueue pushes a raw event for async processing. Returns false on
	// backpressure.
	Enqueue(ctx context.Context, e map[string]any) bool
}

// Server wires HTTP routes for the collector API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	eventsHandler  *EventsHandler
	handoffHandler *HandoffHandler
	metricsHandler http.Handler
	token          string
	strict         bool
}

// NewServer creates the API server with all handlers.
func NewServer(deps Dependencies, stats StatsProvider, handoffs HandoffSource, metricsHandler http.Handler, opts ...ServerOption) *Server {
	s := &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(stats),
		eventsHandler:  NewEventsHandler(deps),
		handoffHandler: NewHandoffHandler(handoffs),
		metricsHandler: metricsHandler,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.eventsHandler.token = s.token
	s.eventsHandler.strict = s.strict
	return s
}

// ServerOption applies a configuration option to the Server.
type ServerOption func(*Server)

// WithIngestToken requires X-Collector-Token on POST /events.
func WithIngestToken(token string) ServerOption {
	return func(s *Server) {
		s.token = token
	}
}

// WithStrictValidation rejects batches containing events that lack the
// required fields instead of defaulting them downstream.
func WithStrictValidation(strict bool) ServerOption {
	return func(s *Server) {
		s.strict = strict
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/health", LoggingMiddleware(s.healthHandler.HandleHealth, "health"))
	mux.HandleFunc("/stats", LoggingMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/events", LoggingMiddleware(s.eventsHandler.HandlePostEvents, "events"))
	mux.HandleFunc("/handoff/next", LoggingMiddleware(s.handoffHandler.HandleNext, "handoff_next"))
	mux.HandleFunc("/handoff/consume", LoggingMiddleware(s.handoffHandler.HandleConsume, "handoff_consume"))
	if s.metricsHandler != nil {
		mux.Handle("/metrics", s.metricsHandler)
	}
}

type ackResponse struct {
	Status   string `json:"status"`
	Accepted int    `json:"accepted"`
	Rejected int    `json:"rejected,omitempty"`
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
