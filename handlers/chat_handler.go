package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	authmw "github.com/upb/crossaudit-gateway/middleware"
	"github.com/upb/crossaudit-gateway/services/chat"
	"github.com/upb/crossaudit-gateway/utils"
	"go.uber.org/zap"
)

// ChatRequest is the POST /chat body
type ChatRequest struct {
	Prompt string `json:"prompt" validate:"required,notblank"`
}

// ChatProcessor runs the prompt pipeline
type ChatProcessor interface {
	Process(ctx context.Context, req *chat.ChatRequest) (*chat.ChatResponse, error)
}

// ChatHandler handles prompt requests
type ChatHandler struct {
	service ChatProcessor
	logger  *zap.Logger
}

// NewChatHandler creates a new ChatHandler
func NewChatHandler(service ChatProcessor, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		service: service,
		logger:  logger,
	}
}

// HandleChat handles POST /chat
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ChatRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	resp, err := h.service.Process(ctx, &chat.ChatRequest{
		OrgID:     authmw.GetOrgIDFromContext(ctx),
		Prompt:    req.Prompt,
		RequestID: middleware.GetReqID(ctx),
	})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteOK(w, resp); err != nil {
		h.logger.Error("failed to write chat response", zap.Error(err))
	}
}
