package errors

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sort"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// Caller errors
	ErrorTypeValidation      ErrorType = "VALIDATION"
	ErrorTypeNotFound        ErrorType = "NOT_FOUND"
	ErrorTypeConflict        ErrorType = "CONFLICT"
	ErrorTypeUnauthenticated ErrorType = "UNAUTHENTICATED"

	// Sync and transport errors
	ErrorTypeSync     ErrorType = "SYNC"
	ErrorTypeStore    ErrorType = "STORE"
	ErrorTypeInternal ErrorType = "INTERNAL"
)

// Validation reasons carried in AppError.Details["reason"].
const (
	ReasonMissingFields   = "missingFields"
	ReasonThumbnailFailed = "thumbnailFailed"
)

// AppError represents an application-specific error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	Code       string                 `json:"code,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	StackTrace string                 `json:"-"`
	HTTPStatus int                    `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithCode adds an error code
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// WithDetails merges error details
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{}, len(details))
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithCause wraps an underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// captureStackTrace captures the current stack trace
func captureStackTrace() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	stack := ""
	for {
		frame, more := frames.Next()
		stack += fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function)
		if !more {
			break
		}
	}
	return stack
}

// Constructor functions

// NewMissingFieldsError reports required input fields that were left empty.
func NewMissingFieldsError(fields ...string) *AppError {
	sorted := append([]string(nil), fields...)
	sort.Strings(sorted)
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    fmt.Sprintf("missing required fields: %v", sorted),
		Code:       "MISSING_FIELDS",
		Details:    map[string]interface{}{"reason": ReasonMissingFields, "fields": sorted},
		HTTPStatus: http.StatusBadRequest,
		StackTrace: captureStackTrace(),
	}
}

// NewThumbnailError reports a video link no thumbnail could be derived from.
func NewThumbnailError(url, platform string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    fmt.Sprintf("cannot derive a %s thumbnail from %q", platform, url),
		Code:       "THUMBNAIL_FAILED",
		Details:    map[string]interface{}{"reason": ReasonThumbnailFailed, "url": url, "platform": platform},
		HTTPStatus: http.StatusBadRequest,
		StackTrace: captureStackTrace(),
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource, id string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Message:    fmt.Sprintf("%s %q not found", resource, id),
		Details:    map[string]interface{}{"resource": resource, "id": id},
		HTTPStatus: http.StatusNotFound,
		StackTrace: captureStackTrace(),
	}
}

// NewConflictError creates a conflict error
func NewConflictError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
		StackTrace: captureStackTrace(),
	}
}

// NewUnauthenticatedError is returned when no current identity is available.
func NewUnauthenticatedError(message string) *AppError {
	if message == "" {
		message = "no current identity"
	}
	return &AppError{
		Type:       ErrorTypeUnauthenticated,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
		StackTrace: captureStackTrace(),
	}
}

// NewSyncError reports a failed live subscription channel.
func NewSyncError(collection string, err error) *AppError {
	return &AppError{
		Type:       ErrorTypeSync,
		Message:    fmt.Sprintf("subscription on %q failed", collection),
		Details:    map[string]interface{}{"collection": collection},
		Cause:      err,
		HTTPStatus: http.StatusBadGateway,
		StackTrace: captureStackTrace(),
	}
}

// NewStoreError reports a remote store call that failed in transport.
func NewStoreError(operation string, err error) *AppError {
	return &AppError{
		Type:       ErrorTypeStore,
		Message:    fmt.Sprintf("store operation '%s' failed", operation),
		Cause:      err,
		HTTPStatus: http.StatusBadGateway,
		StackTrace: captureStackTrace(),
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		StackTrace: captureStackTrace(),
	}
}

// Helper functions

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts AppError from an error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Type == errType
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return IsType(err, ErrorTypeValidation)
}

// IsConflict checks if an error is a conflict error
func IsConflict(err error) bool {
	return IsType(err, ErrorTypeConflict)
}

// IsUnauthenticated checks if an error is an unauthenticated error
func IsUnauthenticated(err error) bool {
	return IsType(err, ErrorTypeUnauthenticated)
}

// IsSync checks if an error is a subscription failure
func IsSync(err error) bool {
	return IsType(err, ErrorTypeSync)
}

// IsStore checks if an error is a store transport failure
func IsStore(err error) bool {
	return IsType(err, ErrorTypeStore)
}

// ValidationReason returns missingFields or thumbnailFailed for validation
// errors and "" for anything else.
func ValidationReason(err error) string {
	appErr := GetAppError(err)
	if appErr == nil || appErr.Type != ErrorTypeValidation {
		return ""
	}
	reason, _ := appErr.Details["reason"].(string)
	return reason
}

// MissingFields returns the field names of a missingFields validation error.
func MissingFields(err error) []string {
	if ValidationReason(err) != ReasonMissingFields {
		return nil
	}
	fields, _ := GetAppError(err).Details["fields"].([]string)
	return fields
}

// HTTPStatus maps an error to a response status, 500 for non-AppErrors.
func HTTPStatus(err error) int {
	if appErr := GetAppError(err); appErr != nil && appErr.HTTPStatus != 0 {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	// If it's already an AppError, add context to message
	if appErr := GetAppError(err); appErr != nil {
		appErr.Message = fmt.Sprintf("%s: %s", message, appErr.Message)
		return appErr
	}

	return NewInternalError(message).WithCause(err)
}

// FromStore keeps typed store errors and classifies anything else as a
// STORE transport failure of operation.
func FromStore(operation string, err error) error {
	if err == nil {
		return nil
	}
	if IsAppError(err) {
		return err
	}
	return NewStoreError(operation, err)
}
