package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeUnauthenticated     ErrorType = "unauthenticated"
	ErrorTypeForbidden           ErrorType = "forbidden"
	ErrorTypeInvalidCredentials  ErrorType = "invalid_credentials"
	ErrorTypeAlreadyUsed         ErrorType = "already_used"
	ErrorTypeExpired             ErrorType = "expired"
	ErrorTypeOTPInvalidOrExpired ErrorType = "otp_invalid_or_expired"
	ErrorTypeAccessDenied        ErrorType = "access_denied"
	ErrorTypeValidation          ErrorType = "validation"
	ErrorTypeNotFound            ErrorType = "not_found"
	ErrorTypeConflict            ErrorType = "conflict"
	ErrorTypeRateLimit           ErrorType = "rate_limit"
	ErrorTypeEmailDelivery       ErrorType = "email_delivery"
	ErrorTypeInternal            ErrorType = "internal"
)

// DomainError represents a structured error with additional context.
// Message is safe to show to the caller; Err is for logs only.
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is by comparing types
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail returns a copy of the error carrying an extra detail.
// Sentinels are never mutated.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &DomainError{Type: e.Type, Message: e.Message, Err: e.Err, Details: details}
}

// Wrap returns a copy of the error with err attached as the cause
func (e *DomainError) Wrap(err error) *DomainError {
	return &DomainError{Type: e.Type, Message: e.Message, Err: err, Details: e.Details}
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

var (
	// Authentication
	ErrUnauthenticated    = NewDomainError(ErrorTypeUnauthenticated, "Authentication required", nil)
	ErrInvalidCredentials = NewDomainError(ErrorTypeInvalidCredentials, "Invalid email or password", nil)
	ErrTokenExpired       = NewDomainError(ErrorTypeExpired, "Session expired, please sign in again", nil)
	ErrUnverifiedEmail    = NewDomainError(ErrorTypeUnauthenticated, "The provider has not verified this email", nil)

	// OTP
	ErrOTPAlreadyUsed      = NewDomainError(ErrorTypeAlreadyUsed, "This code has already been used", nil)
	ErrOTPInvalidOrExpired = NewDomainError(ErrorTypeOTPInvalidOrExpired, "Invalid or expired code", nil)

	// Authorization
	ErrForbidden           = NewDomainError(ErrorTypeForbidden, "You do not have permission to perform this action", nil)
	ErrInsufficientLevel   = NewDomainError(ErrorTypeForbidden, "Insufficient admin level", nil)
	ErrContextAccessDenied = NewDomainError(ErrorTypeAccessDenied, "You do not have access to this context", nil)
	ErrEntityAccessDenied  = NewDomainError(ErrorTypeAccessDenied, "You do not have access to this entity", nil)

	// Validation
	ErrInvalidInput      = NewDomainError(ErrorTypeValidation, "Invalid input", nil)
	ErrInvalidContext    = NewDomainError(ErrorTypeValidation, "Unknown context", nil)
	ErrEntityIDRequired  = NewDomainError(ErrorTypeValidation, "An entity id is required for this context", nil)
	ErrInvalidEmail      = NewDomainError(ErrorTypeValidation, "Invalid email format", nil)
	ErrPasswordTooShort  = NewDomainError(ErrorTypeValidation, "Password must be at least 8 characters", nil)
	ErrInvalidLegacyRole = NewDomainError(ErrorTypeValidation, "Unknown role", nil)
	ErrInvalidOTPPurpose = NewDomainError(ErrorTypeValidation, "Unknown code purpose", nil)

	// Not found
	ErrUserNotFound = NewDomainError(ErrorTypeNotFound, "User not found", nil)

	// Conflict
	ErrDuplicateEmail = NewDomainError(ErrorTypeConflict, "Email already registered", nil)

	// Throttling
	ErrRateLimitExceeded = NewDomainError(ErrorTypeRateLimit, "Too many requests, please try again later", nil)

	// Side effects
	ErrEmailDelivery = NewDomainError(ErrorTypeEmailDelivery, "We could not send the email, please try again", nil)

	// Internal
	ErrInternal = NewDomainError(ErrorTypeInternal, "internal server error", nil)
)

func hasType(err error, t ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == t
	}
	return false
}

// IsUnauthenticatedError checks if an error is an unauthenticated error
func IsUnauthenticatedError(err error) bool { return hasType(err, ErrorTypeUnauthenticated) }

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool { return hasType(err, ErrorTypeForbidden) }

// IsInvalidCredentialsError checks if an error is an invalid credentials error
func IsInvalidCredentialsError(err error) bool { return hasType(err, ErrorTypeInvalidCredentials) }

// IsAlreadyUsedError checks if an error is an already used error
func IsAlreadyUsedError(err error) bool { return hasType(err, ErrorTypeAlreadyUsed) }

// IsExpiredError checks if an error is an expired token error
func IsExpiredError(err error) bool { return hasType(err, ErrorTypeExpired) }

// IsOTPInvalidOrExpiredError checks if an error is an invalid or expired code error
func IsOTPInvalidOrExpiredError(err error) bool { return hasType(err, ErrorTypeOTPInvalidOrExpired) }

// IsAccessDeniedError checks if an error is an access denied error
func IsAccessDeniedError(err error) bool { return hasType(err, ErrorTypeAccessDenied) }

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool { return hasType(err, ErrorTypeValidation) }

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool { return hasType(err, ErrorTypeNotFound) }

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool { return hasType(err, ErrorTypeConflict) }

// IsRateLimitError checks if an error is a rate limit error
func IsRateLimitError(err error) bool { return hasType(err, ErrorTypeRateLimit) }

// IsEmailDeliveryError checks if an error is an email delivery error
func IsEmailDeliveryError(err error) bool { return hasType(err, ErrorTypeEmailDelivery) }

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool { return hasType(err, ErrorTypeInternal) }

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorMessage returns the caller-facing message of a domain error
func GetErrorMessage(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		if len(domainErr.Details) == 0 {
			return nil
		}
		return domainErr.Details
	}
	return nil
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}
