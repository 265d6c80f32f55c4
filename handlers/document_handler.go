package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/upb/crossaudit-gateway/middleware"
	"github.com/upb/crossaudit-gateway/models"
	"github.com/upb/crossaudit-gateway/utils"
	"go.uber.org/zap"
)

// DefaultMaxUploadBytes bounds POST /upload bodies
const DefaultMaxUploadBytes int64 = 32 << 20

// DocumentService defines the document operations used by the handler
type DocumentService interface {
	Upload(ctx context.Context, orgID uuid.UUID, name string, data []byte) (*models.Document, error)
	ListIDs(ctx context.Context, orgID uuid.UUID) ([]uuid.UUID, error)
	Get(ctx context.Context, orgID, id uuid.UUID) (*models.Document, []byte, error)
	Search(ctx context.Context, query string, limit int) []models.Fragment
}

// DocumentHandler handles document upload, download and search
type DocumentHandler struct {
	service        DocumentService
	maxUploadBytes int64
	logger         *zap.Logger
}

// NewDocumentHandler creates a new DocumentHandler. maxUploadBytes <= 0
// selects DefaultMaxUploadBytes.
func NewDocumentHandler(service DocumentService, maxUploadBytes int64, logger *zap.Logger) *DocumentHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &DocumentHandler{
		service:        service,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// HandleUpload handles POST /upload. The body is the raw document; the
// optional ?name= query parameter names it.
func (h *DocumentHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxUploadBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			_ = utils.WriteJSON(w, http.StatusRequestEntityTooLarge, utils.ErrorResponse{
				Error:   "payload_too_large",
				Message: fmt.Sprintf("document exceeds %d bytes", maxErr.Limit),
			})
			return
		}
		_ = utils.WriteBadRequest(w, "failed to read request body", nil)
		return
	}

	doc, err := h.service.Upload(ctx, middleware.GetOrgIDFromContext(ctx), r.URL.Query().Get("name"), data)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteCreated(w, doc); err != nil {
		h.logger.Error("failed to write upload response", zap.Error(err))
	}
}

// HandleList handles GET /docs
func (h *DocumentHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ids, err := h.service.ListIDs(ctx, middleware.GetOrgIDFromContext(ctx))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if ids == nil {
		ids = []uuid.UUID{}
	}

	if err := utils.WriteOK(w, ids); err != nil {
		h.logger.Error("failed to write document list", zap.Error(err))
	}
}

// HandleGet handles GET /docs/{id} and returns the raw bytes
func (h *DocumentHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		// Unknown ids and malformed ids look the same to the caller.
		_ = utils.WriteNotFound(w, "document not found")
		return
	}

	doc, data, err := h.service.Get(ctx, middleware.GetOrgIDFromContext(ctx), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteBytes(w, http.StatusOK, doc.Mime, data); err != nil {
		h.logger.Error("failed to write document", zap.Error(err))
	}
}

// HandleSearch handles GET /search?q=&limit=
func (h *DocumentHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		_ = utils.WriteBadRequest(w, "q is required", nil)
		return
	}
	limit, err := utils.QueryInt(r, "limit", 0)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	fragments := h.service.Search(r.Context(), query, limit)
	if fragments == nil {
		fragments = []models.Fragment{}
	}

	if err := utils.WriteOK(w, fragments); err != nil {
		h.logger.Error("failed to write search results", zap.Error(err))
	}
}
