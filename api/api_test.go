package api

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/leeforge/mediaedit/cache"
	"github.com/leeforge/mediaedit/http/middleware"
	"github.com/leeforge/mediaedit/http/responder"
	"github.com/leeforge/mediaedit/logging"
	"github.com/leeforge/mediaedit/media/editor"
	"github.com/leeforge/mediaedit/media/library"
	"github.com/leeforge/mediaedit/media/queue"
	"github.com/leeforge/mediaedit/media/storage"
)

type envelope struct {
	Data  json.RawMessage  `json:"data"`
	Error *responder.Error `json:"error"`
	Meta  responder.Meta   `json:"meta"`
}

type server struct {
	t      *testing.T
	router chi.Router
}

func newServer(t *testing.T) *server {
	t.Helper()

	q := queue.NewAsyncProcessor(queue.Options{Workers: 2, QueueSize: 8, Timeout: 5 * time.Second}, logging.NewNop())
	q.Start()
	t.Cleanup(func() { _ = q.Stop(time.Second) })

	sink, err := storage.NewLocalStorageProvider(t.TempDir(), "/exports")
	require.NoError(t, err)

	adapter := cache.NewSimpleAdapter(0)
	t.Cleanup(adapter.Close)

	svc := editor.NewService(editor.Deps{
		Library: library.New(),
		Blobs:   storage.NewMemoryBlobStore(),
		Queue:   q,
		Cache:   adapter,
		Export:  sink,
	}, editor.Options{MaxUploadBytes: 1 << 20, ThumbnailSize: 16})

	h := NewHandler(Config{Editor: svc, Queue: q, MaxUploadBytes: 1 << 20})
	return &server{t: t, router: NewRouter(h, nil, RouterOptions{CORSOrigins: []string{"*"}})}
}

func (s *server) do(req *http.Request) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)

	var env envelope
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") && rr.Body.Len() > 0 {
		require.NoError(s.t, json.Unmarshal(rr.Body.Bytes(), &env))
	}
	return rr, env
}

func (s *server) postJSON(path, body string) (*httptest.ResponseRecorder, envelope) {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return s.do(req)
}

func (s *server) upload(name string, data []byte, duration string) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if data != nil {
		fw, err := mw.CreateFormFile("file", name)
		require.NoError(s.t, err)
		_, err = fw.Write(data)
		require.NoError(s.t, err)
	}
	if duration != "" {
		require.NoError(s.t, mw.WriteField("duration", duration))
	}
	require.NoError(s.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/media", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return s.do(req)
}

func (s *server) uploadImage(w, h int) *library.MediaItem {
	s.t.Helper()
	rr, env := s.upload("cat.png", solidPNG(s.t, w, h, color.NRGBA{R: 100, G: 100, B: 100, A: 255}), "")
	require.Equal(s.t, http.StatusCreated, rr.Code, rr.Body.String())
	var item library.MediaItem
	require.NoError(s.t, json.Unmarshal(env.Data, &item))
	return &item
}

func solidPNG(t *testing.T, w, h int, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// headerOnlyPNG declares width x height in a valid IHDR but carries no pixels.
func headerOnlyPNG(width, height uint32) []byte {
	chunk := func(typ string, data []byte) []byte {
		out := binary.BigEndian.AppendUint32(nil, uint32(len(data)))
		out = append(out, typ...)
		out = append(out, data...)
		return binary.BigEndian.AppendUint32(out, crc32.ChecksumIEEE(append([]byte(typ), data...)))
	}

	ihdr := binary.BigEndian.AppendUint32(nil, width)
	ihdr = binary.BigEndian.AppendUint32(ihdr, height)
	ihdr = append(ihdr, 8, 6, 0, 0, 0)

	out := []byte("\x89PNG\r\n\x1a\n")
	out = append(out, chunk("IHDR", ihdr)...)
	return append(out, chunk("IEND", nil)...)
}

var mp4Header = []byte{
	0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p',
	'm', 'p', '4', '2', 0x00, 0x00, 0x00, 0x00,
	'm', 'p', '4', '2', 'i', 's', 'o', 'm',
}

func TestUploadAndList(t *testing.T) {
	s := newServer(t)
	item := s.uploadImage(20, 10)

	assert.NotEmpty(t, item.ID)
	assert.Equal(t, library.KindImage, item.Kind)
	assert.Equal(t, 20, item.Width)
	assert.Equal(t, 10, item.Height)
	assert.Equal(t, item.Original, item.Modified)

	rr, env := s.do(httptest.NewRequest(http.MethodGet, "/api/v1/media", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var items []library.MediaItem
	require.NoError(t, json.Unmarshal(env.Data, &items))
	require.Len(t, items, 1)

	rr, env = s.do(httptest.NewRequest(http.MethodGet, "/api/v1/media/active", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var active library.MediaItem
	require.NoError(t, json.Unmarshal(env.Data, &active))
	assert.Equal(t, item.ID, active.ID)
}

func TestResponsesCarryTraceID(t *testing.T) {
	s := newServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/media", nil)
	req.Header.Set(middleware.TraceIDHeader, "trace-1")

	rr, env := s.do(req)
	assert.Equal(t, "trace-1", rr.Header().Get(middleware.TraceIDHeader))
	assert.Equal(t, "trace-1", env.Meta.TraceId)
}

func TestUploadRejections(t *testing.T) {
	s := newServer(t)

	rr, env := s.upload("", nil, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, responder.ErrCodeValidationFailed, env.Error.Code)

	rr, env = s.upload("notes.txt", []byte("just some text"), "")
	assert.Equal(t, http.StatusUnsupportedMediaType, rr.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, responder.ErrCodeUnsupportedMedia, env.Error.Code)

	rr, env = s.upload("big.png", bytes.Repeat([]byte{0}, 1<<20+10), "")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, responder.ErrCodeTooLarge, env.Error.Code)

	rr, env = s.upload("huge.png", headerOnlyPNG(60000, 60000), "")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, responder.ErrCodeTooLarge, env.Error.Code)

	rr, _ = s.do(httptest.NewRequest(http.MethodGet, "/api/v1/media", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"data":[]`)

	rr, env = s.upload("clip.mp4", mp4Header, "abc")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	require.NotNil(t, env.Error)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/media", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	rr, env = s.do(req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, responder.ErrCodeBindFailed, env.Error.Code)
}

func TestAdjustInline(t *testing.T) {
	s := newServer(t)
	item := s.uploadImage(8, 8)

	rr, env := s.postJSON("/api/v1/media/"+item.ID+"/adjust?inline=1", `{"brightness":150,"contrast":100}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp editResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, 8, resp.Width)
	assert.Equal(t, 150.0, resp.Item.Params.Adjustment.Brightness)
	assert.NotEqual(t, item.Modified, resp.Item.Modified)
	require.True(t, strings.HasPrefix(resp.DataURI, "data:image/png;base64,"))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(resp.DataURI, "data:image/png;base64,"))
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	r, _, _, _ := img.At(0, 0).RGBA()
	assert.Equal(t, uint32(150), r>>8)

	rr, env = s.postJSON("/api/v1/media/"+item.ID+"/adjust", `{"brightness":50}`)
	require.Equal(t, http.StatusOK, rr.Code)
	resp = editResponse{}
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Empty(t, resp.DataURI)
	assert.Equal(t, 100.0, resp.Item.Params.Adjustment.Contrast)
}

func TestAdjustValidation(t *testing.T) {
	s := newServer(t)
	item := s.uploadImage(4, 4)

	rr, env := s.postJSON("/api/v1/media/"+item.ID+"/adjust", `{"brightness":250}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, responder.ErrCodeValidationFailed, env.Error.Code)
	details, ok := env.Error.Details.([]any)
	require.True(t, ok)
	require.Len(t, details, 1)
	assert.Equal(t, "brightness", details[0].(map[string]any)["field"])

	rr, env = s.postJSON("/api/v1/media/"+item.ID+"/adjust", `{"brightness":`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, responder.ErrCodeBindFailed, env.Error.Code)
}

func TestTextAndCrop(t *testing.T) {
	s := newServer(t)
	item := s.uploadImage(100, 100)

	rr, env := s.postJSON("/api/v1/media/"+item.ID+"/text", `{"content":"Hi","color":"red"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp editResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	require.NotNil(t, resp.Item.Params.Text)
	assert.Equal(t, 24.0, resp.Item.Params.Text.FontSize)
	assert.Equal(t, 50.0, resp.Item.Params.Text.Position.X)

	rr, _ = s.postJSON("/api/v1/media/"+item.ID+"/text", `{"content":"Hi","font_size":8}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, env = s.postJSON("/api/v1/media/"+item.ID+"/text", `{"content":"Hi","color":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	require.NotNil(t, env.Error)

	rr, env = s.postJSON("/api/v1/media/"+item.ID+"/crop", `{"x":25,"y":25,"width":50,"height":50}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp = editResponse{}
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, 50, resp.Width)
	assert.Equal(t, 50, resp.Height)
	require.NotNil(t, resp.Item.Params.Text)

	rr, _ = s.postJSON("/api/v1/media/"+item.ID+"/crop", `{"width":0}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestBackgroundAndDownload(t *testing.T) {
	s := newServer(t)
	rr, env := s.upload("white.png", solidPNG(t, 4, 4, color.NRGBA{R: 255, G: 255, B: 255, A: 255}), "")
	require.Equal(t, http.StatusCreated, rr.Code)
	var item library.MediaItem
	require.NoError(t, json.Unmarshal(env.Data, &item))

	rr, _ = s.postJSON("/api/v1/media/"+item.ID+"/background", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr, _ = s.do(httptest.NewRequest(http.MethodGet, "/api/v1/media/"+item.ID+"/modified", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=edited_white.png", rr.Header().Get("Content-Disposition"))

	img, err := png.Decode(rr.Body)
	require.NoError(t, err)
	_, _, _, a := img.At(1, 1).RGBA()
	assert.Zero(t, a)

	rr, _ = s.do(httptest.NewRequest(http.MethodGet, "/api/v1/media/"+item.ID+"/original", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	img, err = png.Decode(rr.Body)
	require.NoError(t, err)
	_, _, _, a = img.At(1, 1).RGBA()
	assert.Equal(t, uint32(0xffff), a)
}

func TestThumbnail(t *testing.T) {
	s := newServer(t)
	item := s.uploadImage(64, 32)

	rr, _ := s.do(httptest.NewRequest(http.MethodGet, "/api/v1/media/"+item.ID+"/thumbnail", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/jpeg", rr.Header().Get("Content-Type"))
	cfg, _, err := image.DecodeConfig(rr.Body)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Width)
}

func TestVideoTrim(t *testing.T) {
	s := newServer(t)
	rr, env := s.upload("clip.mp4", mp4Header, "30")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var item library.MediaItem
	require.NoError(t, json.Unmarshal(env.Data, &item))
	assert.Equal(t, library.KindVideo, item.Kind)

	rr, env = s.postJSON("/api/v1/media/"+item.ID+"/trim", `{"start":-5,"end":9999}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var trim trimResponse
	require.NoError(t, json.Unmarshal(env.Data, &trim))
	assert.Equal(t, library.TrimMarks{Start: 0, End: 30}, trim.Trim)

	rr, env = s.postJSON("/api/v1/media/"+item.ID+"/trim", `{"start":5}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(env.Data, &trim))
	assert.Equal(t, library.TrimMarks{Start: 5, End: 30}, trim.Trim)

	rr, env = s.postJSON("/api/v1/media/"+item.ID+"/adjust", `{"brightness":120}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, responder.ErrCodeSurfaceUnavailable, env.Error.Code)
}

func TestNotFound(t *testing.T) {
	s := newServer(t)

	rr, env := s.do(httptest.NewRequest(http.MethodGet, "/api/v1/media/active", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, responder.ErrCodeNotFound, env.Error.Code)

	rr, _ = s.postJSON("/api/v1/media/missing/adjust", `{"brightness":120}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr, env = s.do(httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, responder.ErrCodeRouteNotFound, env.Error.Code)

	rr, _ = s.do(httptest.NewRequest(http.MethodPut, "/api/v1/media/active", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestDelete(t *testing.T) {
	s := newServer(t)
	first := s.uploadImage(4, 4)
	second := s.uploadImage(4, 4)

	rr, _ := s.do(httptest.NewRequest(http.MethodDelete, "/api/v1/media/"+second.ID, nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr, _ = s.do(httptest.NewRequest(http.MethodDelete, "/api/v1/media/"+second.ID, nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	_, env := s.do(httptest.NewRequest(http.MethodGet, "/api/v1/media", nil))
	var items []library.MediaItem
	require.NoError(t, json.Unmarshal(env.Data, &items))
	require.Len(t, items, 1)
	assert.Equal(t, first.ID, items[0].ID)
}

func TestExport(t *testing.T) {
	s := newServer(t)
	item := s.uploadImage(4, 4)

	rr, env := s.postJSON("/api/v1/media/"+item.ID+"/export", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var out editor.ExportResult
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, "edited_cat.png", out.Filename)
	assert.Equal(t, "local", out.Provider)
	assert.Contains(t, out.URL, item.ID)
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	s.uploadImage(4, 4)

	rr, env := s.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Status string           `json:"status"`
		Media  int              `json:"media"`
		Cache  cache.CacheStats `json:"cache"`
		Queue  *queueStats      `json:"queue"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Media)
	require.NotNil(t, resp.Queue)
}

func TestLogRoutes(t *testing.T) {
	s := newServer(t)
	core, logs := observer.New(zapcore.DebugLevel)
	require.NoError(t, LogRoutes(s.router, logging.FromZap(zap.New(core))))

	var routes []string
	for _, entry := range logs.All() {
		routes = append(routes, entry.ContextMap()["method"].(string)+" "+entry.ContextMap()["route"].(string))
	}
	assert.Contains(t, routes, "POST /api/v1/media/{id}/crop")
	assert.Contains(t, routes, "GET /healthz")
}
