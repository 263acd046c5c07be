// Package api serves a read-only JSON view of one target over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/AzozzALFiras/velo"
	"github.com/AzozzALFiras/velo/internal/app"
)

// RequestTimeout bounds each request, including the commands it runs
const RequestTimeout = 2 * time.Minute

// Server answers API requests from a velo client
type Server struct {
	client *velo.Client
	log    *zap.Logger
}

// New creates a Server over client
func New(client *velo.Client, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{client: client, log: log}
}

// Routes returns the router:
//
//	GET /healthz
//	GET /apps?category=database
//	GET /apps/{id}
//	GET /apps/{id}/sections/{section}
//	GET /status?apps=nginx,php
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(RequestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": velo.Version})
	})
	r.Get("/status", s.handleStatus)
	r.Route("/apps", func(r chi.Router) {
		r.Get("/", s.handleApps)
		r.Get("/{id}", s.handleApp)
		r.Get("/{id}/sections/{section}", s.handleSection)
	})
	return r
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (s *Server) handleApps(w http.ResponseWriter, r *http.Request) {
	defs := s.client.Applications()
	if c := r.URL.Query().Get("category"); c != "" {
		filtered := defs[:0:0]
		for _, d := range defs {
			if string(d.Category) == c {
				filtered = append(filtered, d)
			}
		}
		defs = filtered
	}
	writeJSON(w, http.StatusOK, defs)
}

func (s *Server) handleApp(w http.ResponseWriter, r *http.Request) {
	def, err := s.client.Application(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var ids []string
	if q := r.URL.Query().Get("apps"); q != "" {
		for _, id := range strings.Split(q, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	statuses, err := s.client.Status(r.Context(), ids...)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

// sectionResponse carries the state after a load; a failed load still
// returns the state with the failure recorded
type sectionResponse struct {
	State app.State `json:"state"`
	Error string    `json:"error,omitempty"`
}

func (s *Server) handleSection(w http.ResponseWriter, r *http.Request) {
	st, err := s.client.LoadSection(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "section"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, sectionResponse{State: st})
	case errors.Is(err, app.ErrLoadFailed):
		writeJSON(w, http.StatusBadGateway, sectionResponse{State: st, Error: err.Error()})
	default:
		s.writeError(w, err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, app.ErrServiceNotFound), errors.Is(err, app.ErrNotSupported):
		return http.StatusNotFound
	case errors.Is(err, app.ErrSessionNotAvailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, app.ErrLoadFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.log.Warn("request failed", zap.Error(err))
	}
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
