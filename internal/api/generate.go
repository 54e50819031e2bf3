package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/HanTheDev/content-gateway/internal/auth"
	"github.com/HanTheDev/content-gateway/internal/generation"
	"github.com/HanTheDev/content-gateway/internal/models"
)

const maxBodyBytes = 64 << 10

// Generator is the coordinator as seen by the HTTP layer.
type Generator interface {
	Generate(ctx context.Context, req models.GenerationRequest, opts ...generation.GenerateOption) (models.GenerationResult, error)
}

type GenerateHandler struct {
	gen    Generator
	logger *slog.Logger
}

func NewGenerateHandler(gen Generator, logger *slog.Logger) *GenerateHandler {
	return &GenerateHandler{gen: gen, logger: logger.With("component", "generate_handler")}
}

type generateBody struct {
	ProductDescription string               `json:"product_description"`
	Options            models.Options       `json:"options"`
	ContentTypes       []models.ContentType `json:"content_types,omitempty"`
}

// ServeHTTP runs one generation for the authenticated requester. Degraded sub-requests still
// answer 200; only malformed input is rejected.
func (h *GenerateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var body generateBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req := models.GenerationRequest{
		ID:                 requestID(r),
		ProductDescription: body.ProductDescription,
		Options:            body.Options,
		ContentTypes:       body.ContentTypes,
		RequesterID:        claims.UserID,
		PlanTier:           claims.Plan,
	}

	res, err := h.gen.Generate(r.Context(), req)
	if err != nil {
		var ve *generation.ValidationError
		if errors.As(err, &ve) {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: ve.Error(), Field: ve.Field})
			return
		}
		h.logger.ErrorContext(r.Context(), "generation failed", "error", err, "user_id", claims.UserID)
		writeError(w, http.StatusInternalServerError, "generation failed")
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// requestID honours a caller supplied X-Request-ID only when it is a UUID. Anything else is
// dropped and the coordinator assigns one.
func requestID(r *http.Request) string {
	v := r.Header.Get("X-Request-ID")
	if v == "" {
		return ""
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return ""
	}
	return id.String()
}
