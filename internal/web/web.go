package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"schedcal/internal/agenda"
	"schedcal/internal/config"
	"schedcal/internal/datekey"
	appLog "schedcal/internal/log"
	"schedcal/internal/model"
)

const maxBodyBytes = 64 << 10

// Agenda is the event store the API reads and mutates. *agenda.Store
// satisfies it.
type Agenda interface {
	Snapshot() agenda.Snapshot
	Check(d agenda.Draft, excludeID string) error
	Create(d agenda.Draft) (model.Event, error)
	Update(id string, d agenda.Draft) (model.Event, error)
	Delete(id string) error
}

// Server provides the JSON API over an Agenda.
type Server struct {
	cfg    *config.Config
	agenda Agenda
	loc    *time.Location
	now    func() time.Time
	router chi.Router
}

// Option customizes a Server.
type Option func(*Server)

// WithClock overrides the clock used to decide "today".
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, a Agenda, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		agenda: a,
		loc:    cfg.Location(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on cfg.Listen until ctx is done, then shuts down
// gracefully, giving in-flight requests up to 15 seconds.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen, "basic_auth", s.basicAuthEnabled())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	appLog.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		if s.basicAuthEnabled() {
			r.Use(s.basicAuth)
		}
		r.Use(chimiddleware.RequestSize(maxBodyBytes))

		r.Get("/months/{year}/{month}", s.handleMonth)
		r.Get("/days/{date}", s.handleDay)

		r.Get("/events", s.handleListEvents)
		r.Post("/events", s.handleCreateEvent)
		r.Put("/events/{id}", s.handleUpdateEvent)
		r.Delete("/events/{id}", s.handleDeleteEvent)

		r.Post("/conflicts", s.handleCheckConflict)
		r.Get("/upcoming", s.handleUpcoming)
		r.Get("/stats", s.handleStats)
		r.Get("/calendar.ics", s.handleExport)
	})

	return r
}

// requestLogger writes one structured line per request, after the
// downstream handler has run.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		appLog.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", chimiddleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) basicAuthEnabled() bool {
	return s.cfg != nil && s.cfg.BasicAuth != nil &&
		s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuth guards the API; /health is registered outside it.
func (s *Server) basicAuth(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="schedcal", charset="UTF-8"`)
			writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) today() datekey.Key {
	return datekey.FromTime(s.now().In(s.loc))
}

// ---- responses -------------------------------------------------------------

type errorDetail struct {
	Code     string       `json:"code"`
	Message  string       `json:"message"`
	Field    string       `json:"field,omitempty"`
	Conflict *model.Event `json:"conflict,omitempty"`
}

type errorResponse struct {
	Error errorDetail `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: errorDetail{Code: code, Message: msg}})
}

// writeDomainError maps workflow errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var conflictErr *agenda.ConflictError
	var validationErr *model.ValidationError

	switch {
	case errors.As(err, &conflictErr):
		existing := conflictErr.Existing
		writeJSON(w, http.StatusConflict, errorResponse{Error: errorDetail{
			Code:     "conflict",
			Message:  conflictErr.Error(),
			Conflict: &existing,
		}})
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: errorDetail{
			Code:    "validation_error",
			Message: validationErr.Error(),
			Field:   validationErr.Field,
		}})
	case errors.Is(err, model.ErrValidation):
		writeError(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		appLog.Error("request failed", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// queryInt parses an optional integer parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
