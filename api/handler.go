package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/leeforge/mediaedit/errors"
	"github.com/leeforge/mediaedit/http/binding"
	"github.com/leeforge/mediaedit/http/responder"
	"github.com/leeforge/mediaedit/logging"
	"github.com/leeforge/mediaedit/media/editor"
)

const (
	// multipartOverhead covers boundaries and part headers on top of the file.
	multipartOverhead = 64 << 10
	maxJSONBody       = 64 << 10
	multipartMemory   = 8 << 20
)

// QueueStats is the part of the render queue the health check reports on.
type QueueStats interface {
	Pending() int
	Stats() (processed, failed int64)
}

type Config struct {
	Editor         *editor.Service
	Queue          QueueStats
	Logger         logging.Logger
	MaxUploadBytes int64
}

type Handler struct {
	editor         *editor.Service
	queue          QueueStats
	logger         logging.Logger
	maxUploadBytes int64
}

func NewHandler(cfg Config) *Handler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	return &Handler{
		editor:         cfg.Editor,
		queue:          cfg.Queue,
		logger:         cfg.Logger.Named("api"),
		maxUploadBytes: cfg.MaxUploadBytes,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status: "ok",
		Media:  len(h.editor.List(r.Context())),
		Cache:  h.editor.CacheStats(),
	}
	if h.queue != nil {
		processed, failed := h.queue.Stats()
		resp.Queue = &queueStats{Pending: h.queue.Pending(), Processed: processed, Failed: failed}
	}
	responder.OK(w, r, resp)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	responder.OK(w, r, h.editor.List(r.Context()))
}

func (h *Handler) Active(w http.ResponseWriter, r *http.Request) {
	item, err := h.editor.Active(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	responder.OK(w, r, item)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	item, err := h.editor.Get(r.Context(), mediaID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	responder.OK(w, r, item)
}

// Upload takes a multipart form with a "file" part and, for videos, an
// optional "duration" field in seconds.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fail(w, r, apperrors.NewTooLarge(r.ContentLength, h.maxUploadBytes))
			return
		}
		responder.BindError(w, r, err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		responder.ValidationError(w, r, []responder.FieldError{{Field: "file", Message: "is required"}})
		return
	}
	defer file.Close()

	var duration float64
	if raw := strings.TrimSpace(r.FormValue("duration")); raw != "" {
		duration, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			responder.ValidationError(w, r, []responder.FieldError{{Field: "duration", Message: "must be a valid number"}})
			return
		}
	}

	// One byte past the limit is enough for the editor to reject it.
	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		h.fail(w, r, apperrors.WrapWithType(err, apperrors.ErrorTypeValidation, "failed to read upload").
			WithHTTPStatus(http.StatusBadRequest))
		return
	}

	item, err := h.editor.Upload(r.Context(), editor.UploadInput{
		Name:     header.Filename,
		Data:     data,
		Duration: duration,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	responder.Created(w, r, item)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.editor.Delete(r.Context(), mediaID(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	responder.NoContent(w, r)
}

func (h *Handler) Original(w http.ResponseWriter, r *http.Request) {
	file, err := h.editor.Original(r.Context(), mediaID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	responder.File(w, r, file.Name, file.ContentType, file.Data, false)
}

// Download offers the modified bitmap as edited_<name>.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	file, err := h.editor.Download(r.Context(), mediaID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	responder.File(w, r, file.Name, file.ContentType, file.Data, true)
}

func (h *Handler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	file, err := h.editor.Thumbnail(r.Context(), mediaID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	responder.File(w, r, file.Name, file.ContentType, file.Data, false)
}

func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if !h.bind(w, r, &req) {
		return
	}
	res, err := h.editor.Adjust(r.Context(), mediaID(r), req.adjustment())
	h.edited(w, r, res, err)
}

func (h *Handler) Text(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !h.bind(w, r, &req) {
		return
	}
	res, err := h.editor.AddText(r.Context(), mediaID(r), req.overlay())
	h.edited(w, r, res, err)
}

func (h *Handler) Crop(w http.ResponseWriter, r *http.Request) {
	var req cropRequest
	if !h.bind(w, r, &req) {
		return
	}
	res, err := h.editor.Crop(r.Context(), mediaID(r), req.region())
	h.edited(w, r, res, err)
}

func (h *Handler) Background(w http.ResponseWriter, r *http.Request) {
	res, err := h.editor.RemoveBackground(r.Context(), mediaID(r))
	h.edited(w, r, res, err)
}

func (h *Handler) Trim(w http.ResponseWriter, r *http.Request) {
	var req trimRequest
	if !h.bind(w, r, &req) {
		return
	}

	id := mediaID(r)
	var end float64
	if req.End != nil {
		end = *req.End
	} else {
		item, err := h.editor.Get(r.Context(), id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		end = item.Duration
	}

	marks, err := h.editor.Trim(r.Context(), id, req.Start, end)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	responder.OK(w, r, trimResponse{ID: id, Trim: marks})
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	out, err := h.editor.Export(r.Context(), mediaID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	responder.OK(w, r, out)
}

func (h *Handler) edited(w http.ResponseWriter, r *http.Request, res *editor.EditResult, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := editResponse{
		Item:   res.Item,
		Width:  res.Result.Width,
		Height: res.Result.Height,
		Size:   len(res.Result.Data),
	}
	if inline(r) {
		resp.DataURI = res.Result.DataURI()
	}
	responder.OK(w, r, resp)
}

func inline(r *http.Request) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get("inline"))
	return err == nil && v
}

// bind decodes and validates a JSON body, answering the request itself when
// that fails.
func (h *Handler) bind(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	err := binding.JSON(r, v)
	if err == nil {
		return true
	}

	var ve binding.ValidationErrors
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &ve):
		details := make([]responder.FieldError, 0, len(ve))
		for _, fe := range ve {
			details = append(details, responder.FieldError{Field: fe.Field, Message: fe.Message})
		}
		responder.ValidationError(w, r, details)
	case errors.As(err, &tooLarge):
		h.fail(w, r, apperrors.NewTooLarge(tooLarge.Limit+1, tooLarge.Limit))
	default:
		responder.BindError(w, r, err.Error())
	}
	return false
}

// fail logs server side failures and writes the mapped error response.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if status := apperrors.HTTPStatusOf(err); status >= http.StatusInternalServerError {
		logging.WithContext(h.logger, r.Context()).Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	responder.Fail(w, r, err)
}
