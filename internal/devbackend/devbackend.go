// Package devbackend is a stand-in generation vendor for local runs. It speaks the JSON wire
// format of the http provider kind and answers with deterministic placeholder artifacts.
package devbackend

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"github.com/HanTheDev/content-gateway/internal/models"
	"github.com/HanTheDev/content-gateway/internal/provider"
)

type Settings struct {
	// Latency delays every answer; the request context still wins.
	Latency time.Duration
	// FailEvery makes every Nth request answer 503. Zero never fails.
	FailEvery int
	// APIKey, when set, is required as a bearer token.
	APIKey string
}

type generateRequest struct {
	ContentType models.ContentType `json:"content_type"`
	Prompt      string             `json:"prompt"`
	Options     models.Options     `json:"options"`
	Fingerprint string             `json:"fingerprint"`
}

type generateResponse struct {
	Blog    *models.BlogArtifact    `json:"blog,omitempty"`
	Image   *models.ImageArtifact   `json:"image,omitempty"`
	Video   *models.VideoArtifact   `json:"video,omitempty"`
	Podcast *models.PodcastArtifact `json:"podcast,omitempty"`
}

type Backend struct {
	settings Settings
	logger   *slog.Logger
	requests atomic.Int64
}

func New(settings Settings, logger *slog.Logger) *Backend {
	return &Backend{settings: settings, logger: logger.With("component", "devbackend")}
}

func (b *Backend) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}).Methods("GET")
	router.HandleFunc("/generate", b.generate).Methods("POST")
	return router
}

func (b *Backend) generate(w http.ResponseWriter, r *http.Request) {
	n := b.requests.Add(1)

	if b.settings.APIKey != "" && r.Header.Get("Authorization") != "Bearer "+b.settings.APIKey {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if !req.ContentType.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown content type"})
		return
	}

	if d := b.settings.Latency; d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-r.Context().Done():
			return
		}
	}

	if every := int64(b.settings.FailEvery); every > 0 && n%every == 0 {
		b.logger.Info("simulating outage", "request", n, "content_type", req.ContentType)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "simulated outage"})
		return
	}

	art := provider.Placeholder(models.SubRequest{
		ContentType: req.ContentType,
		Prompt:      req.Prompt,
		Options:     req.Options,
		Fingerprint: req.Fingerprint,
	})
	b.logger.Info("generated", "content_type", req.ContentType, "idempotency_key", r.Header.Get("Idempotency-Key"))

	writeJSON(w, http.StatusOK, generateResponse{
		Blog:    art.Blog,
		Image:   art.Image,
		Video:   art.Video,
		Podcast: art.Podcast,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
