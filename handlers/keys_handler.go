package handlers

import (
	"errors"
	"net/http"

	"github.com/upb/crossaudit-gateway/services/keys"
	"github.com/upb/crossaudit-gateway/utils"
	"go.uber.org/zap"
)

// SetKeyRequest is the POST /keys body
type SetKeyRequest struct {
	Provider string `json:"provider" validate:"required,notblank,max=64"`
	Key      string `json:"key" validate:"required,notblank"`
}

// KeyListResponse lists configured providers. Secret values are never returned.
type KeyListResponse struct {
	Providers []string `json:"providers"`
}

// KeyStore is the provider credential store
type KeyStore interface {
	Set(provider, key string) error
	List() []string
}

// KeysHandler manages model provider credentials
type KeysHandler struct {
	store  KeyStore
	logger *zap.Logger
}

// NewKeysHandler creates a new KeysHandler
func NewKeysHandler(store KeyStore, logger *zap.Logger) *KeysHandler {
	return &KeysHandler{
		store:  store,
		logger: logger,
	}
}

// HandleList handles GET /keys
func (h *KeysHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if err := utils.WriteOK(w, KeyListResponse{Providers: h.store.List()}); err != nil {
		h.logger.Error("failed to write key list", zap.Error(err))
	}
}

// HandleSet handles POST /keys
func (h *KeysHandler) HandleSet(w http.ResponseWriter, r *http.Request) {
	var req SetKeyRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	if err := h.store.Set(req.Provider, req.Key); err != nil {
		if errors.Is(err, keys.ErrEmptyProvider) || errors.Is(err, keys.ErrEmptyKey) {
			_ = utils.WriteBadRequest(w, err.Error(), nil)
			return
		}
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("provider key updated", zap.String("provider", req.Provider))

	if err := utils.WriteCreated(w, KeyListResponse{Providers: h.store.List()}); err != nil {
		h.logger.Error("failed to write key response", zap.Error(err))
	}
}
