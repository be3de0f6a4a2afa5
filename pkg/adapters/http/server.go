package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/aretw0/weave"
	"github.com/aretw0/weave/internal/logging"
	"github.com/aretw0/weave/pkg/domain"
	"github.com/aretw0/weave/pkg/session"
)

// DefaultMaxBodyBytes caps request bodies (program sources are small).
const DefaultMaxBodyBytes = 1 << 20

// SourceRequest is the body of POST /check and POST /sessions/{id}/execute.
type SourceRequest struct {
	Source string `json:"source"`
}

// CheckResponse reports a well formed program.
type CheckResponse struct {
	Valid      bool `json:"valid"`
	Statements int  `json:"statements"`
	Depth      int  `json:"depth"`
}

// ErrorResponse is the JSON body of every error status.
type ErrorResponse struct {
	Error  string        `json:"error"`
	Syntax *SyntaxDetail `json:"syntax,omitempty"`
}

// SyntaxDetail locates a syntax error.
type SyntaxDetail struct {
	Line      int    `json:"line"`
	Col       int    `json:"col"`
	Statement string `json:"statement,omitempty"`
	Token     string `json:"token,omitempty"`
	Message   string `json:"message"`
}

// Server exposes a session.Manager over HTTP.
type Server struct {
	Manager *session.Manager
	Streams *StreamManager

	logger   *slog.Logger
	metrics  http.Handler
	maxBody  int64
	maxDepth int
	upgrader websocket.Upgrader
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsHandler mounts h on GET /metrics (typically promhttp.HandlerFor).
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithMaxBodyBytes overrides DefaultMaxBodyBytes.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// WithMaxDepth sets the loop nesting limit used by POST /check.
// It should match the limit the Manager's interpreters run with.
func WithMaxDepth(depth int) Option {
	return func(s *Server) {
		s.maxDepth = depth
	}
}

// NewServer creates the server. Its StreamManager is not attached to the Manager;
// Execute requests pass it to the interpreter per call.
func NewServer(mgr *session.Manager, opts ...Option) *Server {
	s := &Server{
		Manager: mgr,
		logger:  logging.NewNop(),
		maxBody: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Streams = NewStreamManager(s.logger)
	return s
}

// NewHandler creates the HTTP handler for the manager.
func NewHandler(mgr *session.Manager, opts ...Option) http.Handler {
	return NewServer(mgr, opts...).Routes()
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(enableCORS)

	r.Get("/healthz", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Post("/check", s.Check)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.ListSessions)
		r.Post("/", s.CreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.GetSession)
			r.Delete("/", s.DeleteSession)
			r.Post("/execute", s.Execute)
			r.Get("/events", s.SubscribeEvents)
		})
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles GET /healthz.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":     "weave-http",
		"version": strings.TrimSpace(weave.Version),
	})
}

// Check handles POST /check: parse only, no session is touched.
func (s *Server) Check(w http.ResponseWriter, r *http.Request) {
	body, ok := s.decode(w, r)
	if !ok {
		return
	}
	prog, err := weave.New(weave.WithMaxDepth(s.maxDepth)).Parse(body.Source)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CheckResponse{Valid: true, Statements: len(prog.Statements), Depth: prog.Depth})
}

// Execute handles POST /sessions/{id}/execute: one tick against the session.
func (s *Server) Execute(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	body, ok := s.decode(w, r)
	if !ok {
		return
	}

	res, err := s.Manager.Execute(r.Context(), id, body.Source, weave.WithObserver(s.Streams))
	if err != nil {
		s.logger.Warn("execute failed", "session_id", id, "err", err)
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetSession handles GET /sessions/{id}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, err := s.Manager.Load(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// DeleteSession handles DELETE /sessions/{id}.
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Manager.Delete(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSessions handles GET /sessions.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Manager.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"sessions": ids})
}

// CreateSession handles POST /sessions: a new seeded session under a random ID.
func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	st, err := s.Manager.LoadOrCreate(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Location", "/sessions/"+id)
	writeJSON(w, http.StatusCreated, st)
}

// SubscribeEvents handles GET /sessions/{id}/events, a websocket that receives
// every event the session emits from then on, one JSON object per message.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "session_id", id, "err", err)
		return
	}
	defer conn.Close()

	events, cancel := s.Streams.Subscribe(id)
	defer cancel()
	s.logger.Info("stream: subscriber connected", "session_id", id)

	// The read loop only detects the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			s.logger.Info("stream: subscriber disconnected", "session_id", id)
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Warn("stream: write failed", "session_id", id, "err", err)
				return
			}
		}
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request) (SourceRequest, bool) {
	var body SourceRequest
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return body, false
	}
	return body, true
}

// writeError maps domain errors to statuses: syntax 400, resource exhaustion 422,
// unknown session 404, anything else 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: err.Error()}
	status := http.StatusInternalServerError

	var se *domain.SyntaxError
	switch {
	case errors.As(err, &se):
		status = http.StatusBadRequest
		resp.Syntax = &SyntaxDetail{Line: se.Line, Col: se.Col, Statement: se.Statement, Token: se.Token, Message: se.Msg}
	case errors.Is(err, domain.ErrResourceExhausted):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrSessionNotFound):
		status = http.StatusNotFound
	default:
		s.logger.Error("request failed", "err", err)
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
