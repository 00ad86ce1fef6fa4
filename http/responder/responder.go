package responder

import (
	"mime"
	"net/http"
	"strconv"

	"github.com/leeforge/mediaedit/json"
)

var encodeFailed = []byte("{\"error\":{\"code\":5000,\"message\":\"encode failed\"}}")

// Responder writes responses for one request. A marshal or write failure is
// handed to its PanicFn.
type Responder struct {
	w       http.ResponseWriter
	r       *http.Request
	panicFn PanicFn
}

func New(w http.ResponseWriter, r *http.Request, panicFn PanicFn) *Responder {
	if panicFn == nil {
		panicFn = DefaultPanicFn
	}
	return &Responder{w: w, r: r, panicFn: panicFn}
}

func (r *Responder) writeRaw(status int, payload []byte, contentType string) {
	r.w.Header().Set("Content-Type", contentType)
	r.w.WriteHeader(status)
	if _, err := r.w.Write(payload); err != nil {
		r.panicFn(r.w, r.r, err)
	}
}

func (r *Responder) writeJson(status int, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		r.writeRaw(http.StatusInternalServerError, encodeFailed, "application/json")
		r.panicFn(r.w, r.r, err)
		return
	}
	r.writeRaw(status, raw, "application/json")
}

// Write sends a success response with data
func (r *Responder) Write(status int, payload any, opts ...Option) {
	r.writeJson(status, &Response{
		Data: payload,
		Meta: *requestMeta(r.r, opts),
	})
}

// WriteError sends an error response
func (r *Responder) WriteError(status int, err Error, opts ...Option) {
	r.writeJson(status, &Response{
		Error: &err,
		Meta:  *requestMeta(r.r, opts),
	})
}

// Fail maps err through FromError and writes it.
func (r *Responder) Fail(err error, opts ...Option) {
	status, body := FromError(err)
	r.WriteError(status, body, opts...)
}

// File sends raw bytes. With attachment set the browser is asked to save the
// body under name.
func (r *Responder) File(name, contentType string, data []byte, attachment bool) {
	disposition := "inline"
	if attachment {
		disposition = "attachment"
	}
	if name != "" {
		disposition = mime.FormatMediaType(disposition, map[string]string{"filename": name})
	}
	r.w.Header().Set("Content-Disposition", disposition)
	r.w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	r.writeRaw(http.StatusOK, data, contentType)
}

// ============================================
// Global Convenience Functions (Recommended)
// ============================================

func silent(http.ResponseWriter, *http.Request, error) {}

// Write sends a success response with data
func Write(w http.ResponseWriter, r *http.Request, status int, data any, opts ...Option) {
	New(w, r, silent).Write(status, data, opts...)
}

// WriteError sends an error response
func WriteError(w http.ResponseWriter, r *http.Request, status int, err Error, opts ...Option) {
	New(w, r, silent).WriteError(status, err, opts...)
}

// Fail sends the response error and status derived from err.
func Fail(w http.ResponseWriter, r *http.Request, err error, opts ...Option) {
	New(w, r, silent).Fail(err, opts...)
}

// File sends raw bytes with a Content-Disposition header.
func File(w http.ResponseWriter, r *http.Request, name, contentType string, data []byte, attachment bool) {
	New(w, r, silent).File(name, contentType, data, attachment)
}

// OK responds with 200 OK and data
func OK(w http.ResponseWriter, r *http.Request, data any, opts ...Option) {
	Write(w, r, http.StatusOK, data, opts...)
}

// Created responds with 201 Created and data
func Created(w http.ResponseWriter, r *http.Request, data any, opts ...Option) {
	Write(w, r, http.StatusCreated, data, opts...)
}

// NoContent responds with 204 No Content
func NoContent(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// BadRequest responds with 400 Bad Request
func BadRequest(w http.ResponseWriter, r *http.Request, message string, opts ...Option) {
	WriteError(w, r, http.StatusBadRequest, NewError(ErrCodeBadRequest, message), opts...)
}

// NotFound responds with 404 Not Found
func NotFound(w http.ResponseWriter, r *http.Request, message string, opts ...Option) {
	WriteError(w, r, http.StatusNotFound, NewError(ErrCodeNotFound, message), opts...)
}

// RouteNotFound answers requests no route matched.
func RouteNotFound(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, http.StatusNotFound, ErrRouteNotFound)
}

func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, http.StatusMethodNotAllowed, ErrMethodNotAllowed)
}

// ValidationError responds with 400 Bad Request and validation details
func ValidationError(w http.ResponseWriter, r *http.Request, details any, opts ...Option) {
	WriteError(w, r, http.StatusBadRequest, NewErrorWithDetails(ErrCodeValidationFailed, "", details), opts...)
}

// BindError responds with 400 Bad Request for binding errors
func BindError(w http.ResponseWriter, r *http.Request, details any, opts ...Option) {
	WriteError(w, r, http.StatusBadRequest, NewErrorWithDetails(ErrCodeBindFailed, "", details), opts...)
}

// InternalServerError responds with 500 Internal Server Error
func InternalServerError(w http.ResponseWriter, r *http.Request, message string, opts ...Option) {
	WriteError(w, r, http.StatusInternalServerError, NewError(ErrCodeInternalServer, message), opts...)
}
