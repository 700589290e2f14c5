package errors

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/render"
)

// APIError represents a structured error surfaced by panel operations
type APIError struct {
	StatusCode int         `json:"status_code"`
	ErrorCode  string      `json:"error_code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// Render implements the render.Renderer interface for chi/render
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// Error codes for panel operations
const (
	CodeUnauthenticated   = "UNAUTHENTICATED"
	CodeProviderError     = "PROVIDER_ERROR"
	CodeBackendError      = "BACKEND_ERROR"
	CodeTransportError    = "TRANSPORT_ERROR"
	CodeValidationFailed  = "VALIDATION_FAILED"
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	CodeInternalError     = "INTERNAL_SERVER_ERROR"
)

// New creates a new APIError with the given parameters
func New(statusCode int, errorCode, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
	}
}

// NewWithDetails creates a new APIError with additional details
func NewWithDetails(statusCode int, errorCode, message string, details interface{}) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
		Details:    details,
	}
}

// Predefined errors for common scenarios
var (
	// ErrUnauthenticated is returned when a privileged operation is
	// attempted without a session. It is detected locally; no network
	// call is made.
	ErrUnauthenticated = New(http.StatusUnauthorized, CodeUnauthenticated, "sign in first")

	ErrRateLimitExceeded = New(http.StatusTooManyRequests, CodeRateLimitExceeded, "Too many requests. Please try again later")
	ErrInternalServer    = New(http.StatusInternalServerError, CodeInternalError, "Internal server error")
)

// ProviderError wraps a credential operation rejected by the identity
// provider. The provider's message is passed through verbatim so the
// user sees exactly what the provider reported.
func ProviderError(message string) *APIError {
	if message == "" {
		message = "authentication failed"
	}
	return New(http.StatusUnauthorized, CodeProviderError, message)
}

// BackendError wraps a non-success response from a backend endpoint.
// message is the backend-provided error text when present, else the
// caller's per-endpoint fallback.
func BackendError(statusCode int, message string) *APIError {
	if statusCode < 400 {
		statusCode = http.StatusBadGateway
	}
	return New(statusCode, CodeBackendError, message)
}

// TransportError wraps a network failure that happened before any
// response was received.
func TransportError(err error, message string) *APIError {
	return NewWithDetails(http.StatusServiceUnavailable, CodeTransportError, message, err.Error())
}

// ValidationError creates a validation error with field details
func ValidationError(field, message string) *APIError {
	return NewWithDetails(http.StatusBadRequest, CodeValidationFailed, message, map[string]string{"field": field})
}

// IsUnauthenticated reports whether err is the local no-session error
func IsUnauthenticated(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.ErrorCode == CodeUnauthenticated
}

// ErrorResponse represents a standard error response envelope
type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   *APIError `json:"error"`
}

// NewErrorResponse creates a new error response
func NewErrorResponse(err *APIError) *ErrorResponse {
	return &ErrorResponse{
		Success: false,
		Error:   err,
	}
}

// Render implements the render.Renderer interface
func (e *ErrorResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return e.Error.Render(w, r)
}

// WriteError writes an error response to the HTTP response writer
func WriteError(w http.ResponseWriter, err *APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	json.NewEncoder(w).Encode(NewErrorResponse(err))
}

// FromError converts an arbitrary error into an APIError, preserving
// structured errors and falling back to an internal error otherwise.
func FromError(err error) *APIError {
	if apiErr, ok := err.(*APIError); ok {
		return apiErr
	}
	return NewWithDetails(http.StatusInternalServerError, CodeInternalError, err.Error(), nil)
}
