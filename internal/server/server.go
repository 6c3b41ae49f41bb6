// Package server exposes the clipboard history over a loopback HTTP API and
// streams new entry ids to websocket clients.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"clipit/internal/logging"
	"clipit/internal/service"
	"clipit/internal/storage"
	"clipit/pkg/types"
)

// Service is the part of the consumption contract the API needs
type Service interface {
	FetchEntryByID(ctx context.Context, id int64) (types.Entry, error)
	List(ctx context.Context, filter storage.Filter) (*storage.ResultSet, error)
	DeleteEntry(ctx context.Context, entry types.Entry) error
	Paste(ctx context.Context, id int64) error
	Purge(ctx context.Context) (int, error)
}

type Config struct {
	Addr string
}

type Server struct {
	svc     Service
	hub     *Hub
	srv     *http.Server
	config  Config
	log     *slog.Logger
	started time.Time
}

func New(svc Service, config Config, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	log = logging.Component(log, "server")
	return &Server{
		svc:    svc,
		hub:    NewHub(log),
		config: config,
		log:    log,
	}
}

// Hub returns the websocket hub. Register it as an entry handler to
// stream notifications.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler builds the router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/ws", s.serveWs)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(10 * time.Second))

		r.Get("/status", s.handleStatus)
		r.Route("/api", func(r chi.Router) {
			r.Get("/entries", s.handleListEntries)
			r.Get("/entries/{id}", s.handleGetEntry)
			r.Delete("/entries/{id}", s.handleDeleteEntry)
			r.Post("/entries/{id}/paste", s.handlePasteEntry)
			r.Post("/purge", s.handlePurge)
		})
	})
	return r
}

// Start listens on the configured address and serves in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("http server: listen on %s: %w", s.config.Addr, err)
	}

	s.srv = &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.started = time.Now()

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server stopped", "err", err)
		}
	}()
	s.log.Info("http server listening", "addr", s.srv.Addr)
	return nil
}

// Addr returns the address the server listens on, or "" before Start
func (s *Server) Addr() string {
	if s.srv == nil {
		return ""
	}
	return s.srv.Addr
}

// Stop closes websocket clients and shuts the HTTP server down
func (s *Server) Stop(ctx context.Context) error {
	s.hub.Close()
	if s.srv == nil {
		return nil
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"time":    time.Now().Format(time.RFC3339),
		"addr":    s.Addr(),
		"uptime":  time.Since(s.started).Round(time.Second).String(),
		"clients": s.hub.Len(),
	})
}

// handleListEntries supports ?id=&kind=&payload=&date= filters plus
// ?sort=<field>&reverse=true.
func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	rs, err := s.svc.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if field := r.URL.Query().Get("sort"); field != "" {
		f, err := storage.ParseField(field)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		reverse, _ := strconv.ParseBool(r.URL.Query().Get("reverse"))
		rs = rs.Sort(f, reverse)
	}

	entries := rs.All()
	if entries == nil {
		entries = []types.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := s.svc.DeleteEntry(r.Context(), entry); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePasteEntry(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid id"))
		return
	}

	if err := s.svc.Paste(r.Context(), id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.Purge(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"queued": n})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (types.Entry, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, errors.New("invalid id"))
		return types.Entry{}, false
	}

	entry, err := s.svc.FetchEntryByID(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return types.Entry{}, false
	}
	return entry, true
}

func parseFilter(r *http.Request) (storage.Filter, error) {
	q := r.URL.Query()
	var f storage.Filter

	if v := q.Get("id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, fmt.Errorf("invalid id %q", v)
		}
		f.ID = id
	}
	if v := q.Get("kind"); v != "" {
		kind, err := types.ParseKind(strings.ToLower(v))
		if err != nil {
			return f, err
		}
		f.Kind = kind
	}
	if v := q.Get("date"); v != "" {
		date, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, fmt.Errorf("invalid date %q", v)
		}
		f.CapturedAt = date
	}
	f.Payload = q.Get("payload")
	return f, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNoSource):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
