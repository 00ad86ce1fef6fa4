package errors

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// Request errors
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeInvalid     ErrorType = "invalid"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeUnsupported ErrorType = "unsupported_media"
	ErrorTypeTooLarge    ErrorType = "too_large"

	// Edit errors
	ErrorTypeSurface    ErrorType = "surface_unavailable"
	ErrorTypeDecode     ErrorType = "decode"
	ErrorTypeSuperseded ErrorType = "superseded"
	ErrorTypeTimeout    ErrorType = "timeout"

	// System errors
	ErrorTypeInternal ErrorType = "internal"
	ErrorTypeExternal ErrorType = "external"
	ErrorTypeUnknown  ErrorType = "unknown"
)

// Sentinels for errors.Is. AppError.Is matches on Type, so any error built
// with the same type compares equal to these.
var (
	ErrNotFound           = &AppError{Type: ErrorTypeNotFound}
	ErrSurfaceUnavailable = &AppError{Type: ErrorTypeSurface}
	ErrDecode             = &AppError{Type: ErrorTypeDecode}
	ErrSuperseded         = &AppError{Type: ErrorTypeSuperseded}
	ErrUnsupportedMedia   = &AppError{Type: ErrorTypeUnsupported}
	ErrTooLarge           = &AppError{Type: ErrorTypeTooLarge}
	ErrInvalid            = &AppError{Type: ErrorTypeInvalid}
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType      `json:"type"`
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	InnerError error          `json:"-"`
	Stack      []string       `json:"-"`
	HTTPStatus int            `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Message != "" {
		if e.InnerError != nil {
			return e.Message + ": " + e.InnerError.Error()
		}
		return e.Message
	}
	if e.InnerError != nil {
		return e.InnerError.Error()
	}
	return string(e.Type)
}

// Unwrap returns the inner error
func (e *AppError) Unwrap() error {
	return e.InnerError
}

// Is checks if this error is of a specific type
func (e *AppError) Is(target error) bool {
	if targetApp, ok := target.(*AppError); ok {
		return e.Type == targetApp.Type
	}
	return false
}

// WithMessage adds a message to the error
func (e *AppError) WithMessage(msg string) *AppError {
	e.Message = msg
	return e
}

// WithDetail adds a detail to the error
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithHTTPStatus sets the HTTP status code
func (e *AppError) WithHTTPStatus(status int) *AppError {
	e.HTTPStatus = status
	return e
}

// WithInnerError sets the inner error
func (e *AppError) WithInnerError(err error) *AppError {
	e.InnerError = err
	return e
}

// WithStack captures the call stack
func (e *AppError) WithStack() *AppError {
	e.Stack = captureStack(3)
	return e
}

// New creates a new AppError
func New(errType ErrorType, message string) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Code:    string(errType),
	}
}

// FromError converts a standard error to AppError
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return &AppError{
		Type:       ErrorTypeUnknown,
		Code:       string(ErrorTypeUnknown),
		Message:    err.Error(),
		HTTPStatus: http.StatusInternalServerError,
	}
}

// WrapWithType wraps an error with a specific type
func WrapWithType(err error, errType ErrorType, message string) *AppError {
	return &AppError{
		Type:       errType,
		Message:    message,
		InnerError: err,
		Code:       string(errType),
	}
}

// Request errors

func NewValidation(message string) *AppError {
	return New(ErrorTypeValidation, message).WithHTTPStatus(http.StatusBadRequest)
}

func NewInvalid(field string, value any, reason string) *AppError {
	return New(ErrorTypeInvalid, fmt.Sprintf("invalid value for %s: %v", field, value)).
		WithDetail("field", field).
		WithDetail("value", value).
		WithDetail("reason", reason).
		WithHTTPStatus(http.StatusBadRequest)
}

func NewNotFound(resource string, id any) *AppError {
	return New(ErrorTypeNotFound, fmt.Sprintf("%s not found", resource)).
		WithDetail("resource", resource).
		WithDetail("id", id).
		WithHTTPStatus(http.StatusNotFound)
}

func NewUnsupportedMedia(contentType string) *AppError {
	return New(ErrorTypeUnsupported, fmt.Sprintf("unsupported media type %s", contentType)).
		WithDetail("contentType", contentType).
		WithHTTPStatus(http.StatusUnsupportedMediaType)
}

func NewTooLarge(size, limit int64) *AppError {
	return New(ErrorTypeTooLarge, fmt.Sprintf("upload of %d bytes exceeds limit of %d", size, limit)).
		WithDetail("size", size).
		WithDetail("limit", limit).
		WithHTTPStatus(http.StatusRequestEntityTooLarge)
}

// NewTooManyPixels reports a bitmap whose declared size exceeds the pixel limit.
func NewTooManyPixels(width, height int, limit int64) *AppError {
	return New(ErrorTypeTooLarge, fmt.Sprintf("bitmap of %dx%d pixels exceeds limit of %d", width, height, limit)).
		WithDetail("width", width).
		WithDetail("height", height).
		WithDetail("limit", limit).
		WithHTTPStatus(http.StatusRequestEntityTooLarge)
}

// Edit errors

// NewSurfaceUnavailable reports that no drawable bitmap exists for the item,
// e.g. a pixel operation on a video.
func NewSurfaceUnavailable(id string, reason string) *AppError {
	return New(ErrorTypeSurface, "drawing surface unavailable").
		WithDetail("id", id).
		WithDetail("reason", reason).
		WithHTTPStatus(http.StatusUnprocessableEntity)
}

func NewDecode(err error) *AppError {
	return WrapWithType(err, ErrorTypeDecode, "failed to decode source bitmap").
		WithHTTPStatus(http.StatusUnprocessableEntity)
}

func NewSuperseded(id string, generation, current uint64) *AppError {
	return New(ErrorTypeSuperseded, "render superseded by a newer edit").
		WithDetail("id", id).
		WithDetail("generation", generation).
		WithDetail("current", current).
		WithHTTPStatus(http.StatusConflict)
}

func NewTimeout(message string) *AppError {
	return New(ErrorTypeTimeout, message).WithHTTPStatus(http.StatusGatewayTimeout)
}

// System errors

func NewInternal(message string) *AppError {
	return New(ErrorTypeInternal, message).WithHTTPStatus(http.StatusInternalServerError)
}

func NewExternal(message string) *AppError {
	return New(ErrorTypeExternal, message).WithHTTPStatus(http.StatusBadGateway)
}

// HTTPStatusOf returns the HTTP status carried by err, or 500.
func HTTPStatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.HTTPStatus != 0 {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

func captureStack(skip int) []string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var stack []string
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			stack = append(stack, fmt.Sprintf("%s:%d %s", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}
	return stack
}
