package binding

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	validatorV10 "github.com/go-playground/validator/v10"
)

const (
	InvalidRequestBodyError = "invalid request body"
)

type BindError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e BindError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: field '%s' %s", e.Type, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

type ValidationErrors []BindError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", ve[0].Error())
}

// JSON decodes the request body into v, filling `default` tags for absent
// fields, then validates v. Decode problems come back as *BindError, failed
// rules as ValidationErrors. A body cut off by http.MaxBytesReader returns
// the *http.MaxBytesError unchanged.
func JSON(r *http.Request, v any, opts ...Option) error {
	if r == nil || r.Body == nil || r.Body == http.NoBody {
		return &BindError{
			Type:    "bind_error",
			Message: "request body is empty",
		}
	}
	defer r.Body.Close()

	if err := decodeJson(r.Body, v, opts...); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return tooLarge
		}
		if errors.Is(err, io.EOF) {
			return &BindError{
				Type:    "bind_error",
				Message: "request body is empty",
			}
		}
		return &BindError{
			Type:    "json_error",
			Message: "failed to unmarshal JSON: " + err.Error(),
		}
	}

	return Validate(v)
}

// Validate runs the `validate` tags on v.
func Validate(v any) error {
	err := validator.Struct(v)
	if err == nil {
		return nil
	}

	var validationErrors validatorV10.ValidationErrors
	if errors.As(err, &validationErrors) {
		bindErrors := make(ValidationErrors, 0, len(validationErrors))
		for _, ve := range validationErrors {
			bindErrors = append(bindErrors, BindError{
				Type:    "validation_error",
				Field:   ve.Field(),
				Message: getValidationMessage(ve),
			})
		}
		return bindErrors
	}
	return &BindError{
		Type:    "validation_error",
		Message: err.Error(),
	}
}
