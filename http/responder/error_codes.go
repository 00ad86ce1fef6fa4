package responder

import (
	"context"
	"errors"
	"net/http"

	apperrors "github.com/leeforge/mediaedit/errors"
)

const (
	// 4xxx - client errors
	ErrCodeBadRequest         = 4000
	ErrCodeBindFailed         = 4001
	ErrCodeValidationFailed   = 4002
	ErrCodeNotFound           = 4003
	ErrCodeRouteNotFound      = 4004
	ErrCodeMethodNotAllowed   = 4005
	ErrCodeConflict           = 4008
	ErrCodeUnsupportedMedia   = 4010
	ErrCodeTooLarge           = 4011
	ErrCodeSurfaceUnavailable = 4012
	ErrCodeDecodeFailed       = 4013

	// 5xxx - server errors
	ErrCodeInternalServer     = 5000
	ErrCodeStorageService     = 5004
	ErrCodeExternalService    = 5005
	ErrCodeTimeout            = 5006
	ErrCodeServiceUnavailable = 5007
)

var errorMessages = map[int]string{
	ErrCodeBadRequest:         "Bad Request",
	ErrCodeBindFailed:         "Invalid Request Body",
	ErrCodeValidationFailed:   "Validation Failed",
	ErrCodeNotFound:           "Resource Not Found",
	ErrCodeRouteNotFound:      "Route Not Found",
	ErrCodeMethodNotAllowed:   "Method Not Allowed",
	ErrCodeConflict:           "Edit Superseded",
	ErrCodeUnsupportedMedia:   "Unsupported Media Type",
	ErrCodeTooLarge:           "Upload Too Large",
	ErrCodeSurfaceUnavailable: "Drawing Surface Unavailable",
	ErrCodeDecodeFailed:       "Image Decode Failed",
	ErrCodeInternalServer:     "Internal Server Error",
	ErrCodeStorageService:     "Storage Service Error",
	ErrCodeExternalService:    "External Service Error",
	ErrCodeTimeout:            "Request Timeout",
	ErrCodeServiceUnavailable: "Service Unavailable",
}

// GetErrorMessage returns the default message for an error code
func GetErrorMessage(code int) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}
	return "Unknown Error"
}

func NewError(code int, message string) Error {
	return NewErrorWithDetails(code, message, nil)
}

func NewErrorWithDetails(code int, message string, details any) Error {
	if message == "" {
		message = GetErrorMessage(code)
	}
	return Error{
		Code:    code,
		Message: message,
		Details: details,
	}
}

var typeCodes = map[apperrors.ErrorType]int{
	apperrors.ErrorTypeValidation:  ErrCodeValidationFailed,
	apperrors.ErrorTypeInvalid:     ErrCodeValidationFailed,
	apperrors.ErrorTypeNotFound:    ErrCodeNotFound,
	apperrors.ErrorTypeUnsupported: ErrCodeUnsupportedMedia,
	apperrors.ErrorTypeTooLarge:    ErrCodeTooLarge,
	apperrors.ErrorTypeSurface:     ErrCodeSurfaceUnavailable,
	apperrors.ErrorTypeDecode:      ErrCodeDecodeFailed,
	apperrors.ErrorTypeSuperseded:  ErrCodeConflict,
	apperrors.ErrorTypeTimeout:     ErrCodeTimeout,
	apperrors.ErrorTypeExternal:    ErrCodeExternalService,
}

// FromError maps err to an HTTP status and a response error. Internal and
// unknown errors are reported without their message.
func FromError(err error) (int, Error) {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, NewError(ErrCodeTimeout, "")
	}

	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError, NewError(ErrCodeInternalServer, "")
	}

	status := apperrors.HTTPStatusOf(appErr)
	if status == http.StatusServiceUnavailable {
		return status, NewError(ErrCodeServiceUnavailable, appErr.Message)
	}
	code, ok := typeCodes[appErr.Type]
	if !ok {
		return status, NewError(ErrCodeInternalServer, "")
	}

	var details any
	if len(appErr.Details) > 0 {
		details = appErr.Details
	}
	return status, NewErrorWithDetails(code, appErr.Message, details)
}

// Predefined errors for common scenarios
var (
	ErrBadRequest       = NewError(ErrCodeBadRequest, "")
	ErrNotFound         = NewError(ErrCodeNotFound, "")
	ErrRouteNotFound    = NewError(ErrCodeRouteNotFound, "")
	ErrMethodNotAllowed = NewError(ErrCodeMethodNotAllowed, "")
	ErrInternalServer   = NewError(ErrCodeInternalServer, "")
)
