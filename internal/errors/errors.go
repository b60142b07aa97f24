// Package errors provides the error categories used by the reference server:
// configuration validation, rate limiting and internal failures. It also
// renders errors as JSON responses tagged with the request ID.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mcncl/request-id/pkg/requestid"
)

// Standard error types for the application
var (
	ErrValidation = errors.New("validation error")
	ErrRateLimit  = errors.New("rate limit error")
	ErrInternal   = errors.New("internal error")
)

// errorType is a custom error with a specific type
type errorType struct {
	baseErr error
	msg     string
	cause   error
	details map[string]interface{}
}

// Error implements the error interface
func (e *errorType) Error() string {
	if e == nil {
		return ""
	}

	base := fmt.Sprintf("%s: %s", e.baseErr.Error(), e.msg)

	if len(e.details) > 0 {
		detailsJSON, err := json.Marshal(e.details)
		if err == nil {
			base += fmt.Sprintf(" - details: %s", detailsJSON)
		}
	}

	if e.cause != nil {
		base += fmt.Sprintf(" - caused by: %v", e.cause)
	}

	return base
}

// Unwrap returns the underlying cause of the error
func (e *errorType) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is reports whether the error is of the specified type
func (e *errorType) Is(target error) bool {
	if e == nil {
		return target == nil
	}
	return errors.Is(e.baseErr, target)
}

// Details returns the structured details attached to the error
func (e *errorType) Details() map[string]interface{} {
	if e == nil {
		return nil
	}
	return e.details
}

// NewValidationError creates a new validation error
func NewValidationError(msg string) error {
	return &errorType{baseErr: ErrValidation, msg: msg}
}

// NewRateLimitError creates a new rate limit error
func NewRateLimitError(msg string) error {
	return &errorType{baseErr: ErrRateLimit, msg: msg}
}

// NewInternalError creates a new internal error
func NewInternalError(msg string) error {
	return &errorType{baseErr: ErrInternal, msg: msg}
}

// Wrap wraps an error with additional context. Categorised errors keep
// their category; anything else becomes an internal error.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}

	var customErr *errorType
	if errors.As(err, &customErr) {
		return &errorType{
			baseErr: customErr.baseErr,
			msg:     msg + ": " + customErr.msg,
			cause:   customErr.cause,
			details: customErr.details,
		}
	}

	return &errorType{
		baseErr: ErrInternal,
		msg:     msg,
		cause:   err,
	}
}

// WithDetails adds detail information to an error
func WithDetails(err error, details map[string]interface{}) error {
	if err == nil {
		return nil
	}

	var customErr *errorType
	if errors.As(err, &customErr) {
		return &errorType{
			baseErr: customErr.baseErr,
			msg:     customErr.msg,
			cause:   customErr.cause,
			details: details,
		}
	}

	return &errorType{
		baseErr: ErrInternal,
		msg:     err.Error(),
		details: details,
	}
}

// GetDetails returns error details if available, nil otherwise
func GetDetails(err error) map[string]interface{} {
	var customErr *errorType
	if errors.As(err, &customErr) {
		return customErr.Details()
	}
	return nil
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return err != nil && errors.Is(err, ErrValidation)
}

// IsRateLimitError checks if the error is a rate limit error
func IsRateLimitError(err error) bool {
	return err != nil && errors.Is(err, ErrRateLimit)
}

// IsInternalError checks if the error is an internal error
func IsInternalError(err error) bool {
	return err != nil && errors.Is(err, ErrInternal)
}

// ErrorResponse provides a consistent structure for error responses
type ErrorResponse struct {
	Status    string                 `json:"status"`
	Message   string                 `json:"message"`
	ErrorType string                 `json:"error_type"`
	RequestID string                 `json:"request_id"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// ToErrorResponse converts an error to a standardized ErrorResponse
func ToErrorResponse(err error, requestID string) ErrorResponse {
	if err == nil {
		return ErrorResponse{
			Status:    "error",
			Message:   "Unknown error",
			ErrorType: "internal",
			RequestID: requestID,
		}
	}

	response := ErrorResponse{
		Status:    "error",
		Message:   err.Error(),
		RequestID: requestID,
		Details:   GetDetails(err),
	}

	switch {
	case IsValidationError(err):
		response.ErrorType = "validation"
	case IsRateLimitError(err):
		response.ErrorType = "rate_limit"
	default:
		response.ErrorType = "internal"
	}

	return response
}

// WriteHTTP writes err as a JSON ErrorResponse carrying the request ID
// found in r's context.
func WriteHTTP(w http.ResponseWriter, r *http.Request, status int, err error) {
	response := ToErrorResponse(err, requestid.StringFromContext(r.Context()))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response)
}
