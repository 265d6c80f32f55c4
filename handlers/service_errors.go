package handlers

import (
	"errors"
	"net/http"

	"github.com/upb/crossaudit-gateway/services"
	"github.com/upb/crossaudit-gateway/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)
	var writeErr error

	switch {
	case services.IsNotFoundError(err):
		writeErr = utils.WriteNotFound(w, publicMessage(err))

	case services.IsValidationError(err):
		writeErr = utils.WriteBadRequest(w, publicMessage(err), details)

	case services.IsUnauthorizedError(err):
		writeErr = utils.WriteUnauthorized(w, publicMessage(err))

	case services.IsForbiddenError(err):
		writeErr = utils.WriteForbidden(w, publicMessage(err))

	case services.IsRateLimitError(err):
		writeErr = utils.WriteTooManyRequests(w, publicMessage(err), 0)

	case services.IsPolicyViolationError(err):
		// Never echo the prompt or the matching rule back to the caller.
		writeErr = utils.WriteJSON(w, http.StatusForbidden, utils.ErrorResponse{
			Error:   "policy_violation",
			Message: services.ErrPromptBlocked.Message,
		})

	case services.IsExternalError(err):
		logger.Error("model provider error", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "The model call failed")

	case services.IsInternalError(err):
		logger.Error("internal server error", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "An internal error occurred")

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w, "An unexpected error occurred")
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{})
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}

// publicMessage returns the domain message without the wrapped cause.
func publicMessage(err error) string {
	var domainErr *services.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return err.Error()
}
