// Package api exposes the coordinator and its operational state over HTTP.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/HanTheDev/content-gateway/internal/auth"
)

type RouterDeps struct {
	Generate *GenerateHandler
	Admin    *AdminHandler
	Auth     *auth.Middleware
	Logger   *slog.Logger
	Version  string
}

// NewRouter wires the public, authenticated and admin routes.
func NewRouter(d RouterDeps) *mux.Router {
	router := mux.NewRouter()
	router.Use(accessLog(d.Logger))

	router.HandleFunc("/health", healthHandler(d.Version)).Methods("GET")

	protected := router.PathPrefix("/api").Subrouter()
	protected.Use(d.Auth.Authenticate)
	protected.Handle("/generate", d.Generate).Methods("POST")

	if d.Admin != nil {
		admin := router.PathPrefix("/admin").Subrouter()
		admin.Use(d.Auth.Authenticate, d.Auth.RequireAdmin)
		d.Admin.RegisterRoutes(admin)
	}

	return router
}

func healthHandler(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"version": version,
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

func accessLog(logger *slog.Logger) mux.MiddlewareFunc {
	logger = logger.With("component", "http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.InfoContext(r.Context(), "request handled",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"response_size", rec.bytes,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
