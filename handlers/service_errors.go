package handlers

import (
	"net/http"

	"github.com/upb/venture-hub/services"
	"github.com/upb/venture-hub/utils"
	"go.uber.org/zap"
)

// statusFor maps an error kind to its HTTP status
func statusFor(err error) int {
	switch {
	case services.IsUnauthenticatedError(err),
		services.IsInvalidCredentialsError(err),
		services.IsExpiredError(err):
		return http.StatusUnauthorized
	case services.IsForbiddenError(err), services.IsAccessDeniedError(err):
		return http.StatusForbidden
	case services.IsAlreadyUsedError(err),
		services.IsOTPInvalidOrExpiredError(err),
		services.IsValidationError(err):
		return http.StatusBadRequest
	case services.IsNotFoundError(err):
		return http.StatusNotFound
	case services.IsConflictError(err):
		return http.StatusConflict
	case services.IsRateLimitError(err):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// HandleServiceError maps domain errors to HTTP responses. Only the
// caller-safe message is written; causes go to the log.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	status := statusFor(err)
	errType := services.GetErrorType(err)
	message := services.GetErrorMessage(err)

	var details map[string]interface{}
	if errType != "" {
		details = map[string]interface{}{"code": string(errType)}
		for k, v := range services.GetErrorDetails(err) {
			details[k] = v
		}
	}

	switch {
	case services.IsEmailDeliveryError(err):
		logger.Error("email delivery failed", zap.Error(err))
	case status == http.StatusInternalServerError:
		if errType == "" {
			logger.Error("unhandled error type", zap.Error(err))
		} else {
			logger.Error("internal server error", zap.Error(err))
		}
		message = "An internal error occurred"
		details = nil
	default:
		logger.Debug("handled service error",
			zap.String("type", string(errType)),
			zap.Int("status", status),
			zap.Error(err))
	}

	if err := utils.WriteError(w, status, message, details); err != nil {
		logger.Error("failed to write error response", zap.Error(err))
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
