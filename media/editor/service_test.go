package editor

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leeforge/mediaedit/cache"
	apperrors "github.com/leeforge/mediaedit/errors"
	"github.com/leeforge/mediaedit/events"
	"github.com/leeforge/mediaedit/logging"
	"github.com/leeforge/mediaedit/media/library"
	"github.com/leeforge/mediaedit/media/pipeline"
	"github.com/leeforge/mediaedit/media/queue"
	"github.com/leeforge/mediaedit/media/storage"
)

type recorder struct {
	mu     sync.Mutex
	topics []string
}

func (r *recorder) handle(ctx context.Context, e events.Event) error {
	r.mu.Lock()
	r.topics = append(r.topics, e.Name)
	r.mu.Unlock()
	return nil
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.topics...)
}

type fixture struct {
	svc    *Service
	blobs  *storage.MemoryBlobStore
	bus    *events.Bus
	events *recorder
	export string
}

func newFixture(t *testing.T, q RenderQueue) *fixture {
	t.Helper()
	return newFixtureWithStore(t, q, nil)
}

// newFixtureWithStore lets wrap put a decorator in front of the blob store
// the service sees. The fixture keeps the underlying store for inspection.
func newFixtureWithStore(t *testing.T, q RenderQueue, wrap func(*storage.MemoryBlobStore) storage.BlobStore) *fixture {
	t.Helper()

	if q == nil {
		p := queue.NewAsyncProcessor(queue.Options{Workers: 2, QueueSize: 8, Timeout: 5 * time.Second}, logging.NewNop())
		p.Start()
		t.Cleanup(func() { _ = p.Stop(time.Second) })
		q = p
	}

	exportDir := t.TempDir()
	sink, err := storage.NewLocalStorageProvider(exportDir, "/exports")
	require.NoError(t, err)

	adapter := cache.NewSimpleAdapter(0)
	t.Cleanup(adapter.Close)

	bus := events.NewBus(32, logging.NewNop())
	rec := &recorder{}
	bus.SubscribeAll(rec.handle)

	blobs := storage.NewMemoryBlobStore()
	var store storage.BlobStore = blobs
	if wrap != nil {
		store = wrap(blobs)
	}
	svc := NewService(Deps{
		Library: library.New(),
		Blobs:   store,
		Queue:   q,
		Cache:   adapter,
		Bus:     bus,
		Export:  sink,
		Logger:  logging.NewNop(),
	}, Options{MaxUploadBytes: 1 << 20, ThumbnailSize: 16})

	return &fixture{svc: svc, blobs: blobs, bus: bus, events: rec, export: exportDir}
}

// closeBus flushes pending events so the recorder is complete.
func (f *fixture) closeBus(t *testing.T) {
	t.Helper()
	require.NoError(t, f.bus.Close())
}

// hookedBlobs runs beforeGet ahead of every lookup. Lookups happen on the
// caller's goroutine, so tests set the hook without locking.
type hookedBlobs struct {
	*storage.MemoryBlobStore
	beforeGet func(key string) error
}

func (h *hookedBlobs) Get(ctx context.Context, key string) (*storage.Blob, error) {
	if h.beforeGet != nil {
		if err := h.beforeGet(key); err != nil {
			return nil, err
		}
	}
	return h.MemoryBlobStore.Get(ctx, key)
}

func pngBytes(t *testing.T, w, h int, c color.NRGBA) []byte {
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

// mp4Header is enough of an ISO BMFF file for content sniffing.
var mp4Header = []byte{
	0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p',
	'm', 'p', '4', '2', 0x00, 0x00, 0x00, 0x00,
	'm', 'p', '4', '2', 'i', 's', 'o', 'm',
}

func TestUploadImage(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	item, err := f.svc.Upload(ctx, UploadInput{Name: "dir/cat.png", Data: pngBytes(t, 8, 4, color.NRGBA{R: 1, A: 255})})
	require.NoError(t, err)

	assert.Equal(t, library.KindImage, item.Kind)
	assert.Equal(t, "cat.png", item.Name)
	assert.Equal(t, "image/png", item.ContentType)
	assert.Equal(t, 8, item.Width)
	assert.Equal(t, 4, item.Height)
	assert.Equal(t, item.Original, item.Modified)

	active, err := f.svc.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, item.ID, active.ID)

	f.closeBus(t)
	assert.Contains(t, f.events.seen(), events.TopicUploaded)
}

func TestUploadRejections(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Upload(ctx, UploadInput{Name: "notes.txt", Data: []byte("just some text")})
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedMedia)

	_, err = f.svc.Upload(ctx, UploadInput{Name: "big.png", Data: make([]byte, 2<<20)})
	assert.ErrorIs(t, err, apperrors.ErrTooLarge)

	_, err = f.svc.Upload(ctx, UploadInput{Name: "empty.png"})
	require.Error(t, err)

	assert.Empty(t, f.svc.List(ctx))
	assert.Equal(t, 0, f.blobs.Len())
}

func TestUploadRejectsTooManyPixels(t *testing.T) {
	f := newFixture(t, nil)
	f.svc.opts.MaxPixels = 50
	ctx := context.Background()

	_, err := f.svc.Upload(ctx, UploadInput{Name: "big.png", Data: pngBytes(t, 8, 8, color.NRGBA{A: 255})})
	assert.ErrorIs(t, err, apperrors.ErrTooLarge)
	assert.Equal(t, 0, f.blobs.Len())

	item, err := f.svc.Upload(ctx, UploadInput{Name: "ok.png", Data: pngBytes(t, 7, 7, color.NRGBA{A: 255})})
	require.NoError(t, err)
	assert.Equal(t, 7, item.Width)
}

func TestAdjustRendersFromOriginal(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	src := pngBytes(t, 10, 10, color.NRGBA{R: 100, G: 100, B: 100, A: 255})

	item, err := f.svc.Upload(ctx, UploadInput{Name: "grey.png", Data: src})
	require.NoError(t, err)

	adj := pipeline.Adjustment{Brightness: 150, Contrast: 100}
	res, err := f.svc.Adjust(ctx, item.ID, adj)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.Item.Generation)
	assert.Equal(t, adj, res.Item.Params.Adjustment)

	want, err := pipeline.Render(ctx, src, pipeline.Params{Adjustment: adj})
	require.NoError(t, err)

	file, err := f.svc.Download(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "edited_grey.png", file.Name)
	assert.Equal(t, "image/png", file.ContentType)
	assert.Equal(t, want.Data, file.Data)

	// Applying the same edit twice renders from the original, not on top of the last result.
	_, err = f.svc.Adjust(ctx, item.ID, adj)
	require.NoError(t, err)
	again, err := f.svc.Download(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, want.Data, again.Data)
	assert.Equal(t, int64(1), f.svc.CacheStats().TotalHits)

	original, err := f.svc.Original(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, src, original.Data)
	assert.Equal(t, "grey.png", original.Name)

	// original + current modified
	assert.Equal(t, 2, f.blobs.Len())
}

func TestCumulativeEdits(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	item, err := f.svc.Upload(ctx, UploadInput{Name: "a.png", Data: pngBytes(t, 100, 100, color.NRGBA{G: 200, A: 255})})
	require.NoError(t, err)

	_, err = f.svc.AddText(ctx, item.ID, pipeline.TextOverlay{
		Content: "Hi", Position: pipeline.Position{X: 10, Y: 50}, FontSize: 24, FontFamily: "Arial", Color: "#ffffff",
	})
	require.NoError(t, err)

	res, err := f.svc.Crop(ctx, item.ID, pipeline.CropRegion{X: 25, Y: 25, Width: 50, Height: 50})
	require.NoError(t, err)
	assert.Equal(t, 50, res.Item.Width)
	assert.Equal(t, 50, res.Item.Height)
	require.NotNil(t, res.Item.Params.Text)
	assert.Equal(t, "Hi", res.Item.Params.Text.Content)

	res, err = f.svc.Crop(ctx, item.ID, pipeline.FullCrop())
	require.NoError(t, err)
	assert.Nil(t, res.Item.Params.Crop)
	assert.Equal(t, 100, res.Item.Width)

	res, err = f.svc.AddText(ctx, item.ID, pipeline.TextOverlay{})
	require.NoError(t, err)
	assert.Nil(t, res.Item.Params.Text)
}

func TestPixelEditsNeedAnImage(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	video, err := f.svc.Upload(ctx, UploadInput{Name: "clip.mp4", Data: mp4Header, Duration: 30})
	require.NoError(t, err)
	require.Equal(t, library.KindVideo, video.Kind)

	_, err = f.svc.Adjust(ctx, video.ID, pipeline.NeutralAdjustment())
	assert.ErrorIs(t, err, apperrors.ErrSurfaceUnavailable)
	_, err = f.svc.RemoveBackground(ctx, video.ID)
	assert.ErrorIs(t, err, apperrors.ErrSurfaceUnavailable)
	_, err = f.svc.Thumbnail(ctx, video.ID)
	assert.ErrorIs(t, err, apperrors.ErrSurfaceUnavailable)

	_, err = f.svc.Adjust(ctx, "missing", pipeline.NeutralAdjustment())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestTrim(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	video, err := f.svc.Upload(ctx, UploadInput{Name: "clip.mp4", Data: mp4Header, Duration: 30})
	require.NoError(t, err)

	marks, err := f.svc.Trim(ctx, video.ID, -5, 9999)
	require.NoError(t, err)
	assert.Equal(t, library.TrimMarks{Start: 0, End: 30}, marks)

	file, err := f.svc.Download(ctx, video.ID)
	require.NoError(t, err)
	assert.Equal(t, "edited_clip.mp4", file.Name)
	assert.Equal(t, mp4Header, file.Data)

	f.closeBus(t)
	assert.Contains(t, f.events.seen(), events.TopicTrimmed)
}

func TestDecodeFailureRollsBack(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	// Signature and header survive, pixel data does not.
	full := pngBytes(t, 4, 4, color.NRGBA{A: 255})
	broken := append([]byte(nil), full[:33]...)

	item, err := f.svc.Upload(ctx, UploadInput{Name: "broken.png", Data: broken})
	require.NoError(t, err)

	_, err = f.svc.Adjust(ctx, item.ID, pipeline.Adjustment{Brightness: 50, Contrast: 100})
	assert.ErrorIs(t, err, apperrors.ErrDecode)

	got, err := f.svc.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.NeutralAdjustment(), got.Params.Adjustment)
	assert.Equal(t, item.Modified, got.Modified)

	f.closeBus(t)
	assert.Contains(t, f.events.seen(), events.TopicRenderFailed)
}

type gatedQueue struct {
	started chan struct{}
	release chan struct{}
}

func (q *gatedQueue) Do(ctx context.Context, job queue.Job) (*pipeline.Result, error) {
	if job.Generation == 1 {
		close(q.started)
		<-q.release
	}
	return job.Render(ctx)
}

func TestLatestEditWins(t *testing.T) {
	q := &gatedQueue{started: make(chan struct{}), release: make(chan struct{})}
	f := newFixture(t, q)
	ctx := context.Background()

	item, err := f.svc.Upload(ctx, UploadInput{Name: "a.png", Data: pngBytes(t, 4, 4, color.NRGBA{R: 50, A: 255})})
	require.NoError(t, err)

	staleErr := make(chan error, 1)
	go func() {
		_, err := f.svc.Adjust(ctx, item.ID, pipeline.Adjustment{Brightness: 10, Contrast: 100})
		staleErr <- err
	}()
	<-q.started

	latest, err := f.svc.Adjust(ctx, item.ID, pipeline.Adjustment{Brightness: 190, Contrast: 100})
	require.NoError(t, err)
	close(q.release)

	assert.ErrorIs(t, <-staleErr, apperrors.ErrSuperseded)

	got, err := f.svc.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, latest.Item.Modified, got.Modified)
	assert.Equal(t, 190.0, got.Params.Adjustment.Brightness)
	assert.Equal(t, 2, f.blobs.Len())
}

func TestRemoveBackgroundIsLostOnRerender(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	item, err := f.svc.Upload(ctx, UploadInput{Name: "white.png", Data: pngBytes(t, 3, 3, color.NRGBA{R: 255, G: 255, B: 255, A: 255})})
	require.NoError(t, err)

	res, err := f.svc.RemoveBackground(ctx, item.ID)
	require.NoError(t, err)
	keyed, err := pipeline.Decode(ctx, res.Result.Data)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), keyed.NRGBAAt(1, 1).A)

	res, err = f.svc.Adjust(ctx, item.ID, pipeline.NeutralAdjustment())
	require.NoError(t, err)
	rerendered, err := pipeline.Decode(ctx, res.Result.Data)
	require.NoError(t, err)
	assert.Equal(t, uint8(255), rerendered.NRGBAAt(1, 1).A)
}

func TestRemoveBackgroundFetchFailureKeepsGeneration(t *testing.T) {
	var hooked *hookedBlobs
	f := newFixtureWithStore(t, nil, func(m *storage.MemoryBlobStore) storage.BlobStore {
		hooked = &hookedBlobs{MemoryBlobStore: m}
		return hooked
	})
	ctx := context.Background()

	item, err := f.svc.Upload(ctx, UploadInput{Name: "white.png", Data: pngBytes(t, 3, 3, color.NRGBA{R: 255, G: 255, B: 255, A: 255})})
	require.NoError(t, err)

	inFlight, err := f.svc.library.Begin(item.ID, nil)
	require.NoError(t, err)

	offline := apperrors.NewExternal("blob store offline")
	hooked.beforeGet = func(string) error { return offline }

	_, err = f.svc.RemoveBackground(ctx, item.ID)
	assert.ErrorIs(t, err, offline)

	got, err := f.svc.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, inFlight.Generation, got.Generation)

	_, err = f.svc.library.Commit(inFlight, item.Modified, 3, 3)
	assert.NoError(t, err)
}

func TestDownloadFollowsConcurrentCommit(t *testing.T) {
	var hooked *hookedBlobs
	f := newFixtureWithStore(t, nil, func(m *storage.MemoryBlobStore) storage.BlobStore {
		hooked = &hookedBlobs{MemoryBlobStore: m}
		return hooked
	})
	ctx := context.Background()

	item, err := f.svc.Upload(ctx, UploadInput{Name: "grey.png", Data: pngBytes(t, 4, 4, color.NRGBA{R: 100, G: 100, B: 100, A: 255})})
	require.NoError(t, err)
	first, err := f.svc.Adjust(ctx, item.ID, pipeline.Adjustment{Brightness: 150, Contrast: 100})
	require.NoError(t, err)
	stale := first.Item.Modified

	// The first read of the stale key lets a newer edit commit and release it.
	var latest *EditResult
	hooked.beforeGet = func(key string) error {
		if key != stale || latest != nil {
			return nil
		}
		res, err := f.svc.Adjust(ctx, item.ID, pipeline.Adjustment{Brightness: 50, Contrast: 100})
		require.NoError(t, err)
		latest = res
		return nil
	}

	file, err := f.svc.Download(ctx, item.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, latest.Result.Data, file.Data)
	assert.Equal(t, "edited_grey.png", file.Name)

	_, err = f.blobs.Get(ctx, stale)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDeleteReleasesBlobs(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	a, err := f.svc.Upload(ctx, UploadInput{Name: "a.png", Data: pngBytes(t, 2, 2, color.NRGBA{A: 255})})
	require.NoError(t, err)
	b, err := f.svc.Upload(ctx, UploadInput{Name: "b.png", Data: pngBytes(t, 2, 2, color.NRGBA{B: 9, A: 255})})
	require.NoError(t, err)
	_, err = f.svc.Adjust(ctx, a.ID, pipeline.Adjustment{Brightness: 120, Contrast: 100})
	require.NoError(t, err)
	require.Equal(t, 3, f.blobs.Len())

	require.NoError(t, f.svc.Delete(ctx, a.ID))
	assert.Equal(t, 1, f.blobs.Len())

	items := f.svc.List(ctx)
	require.Len(t, items, 1)
	assert.Equal(t, b.ID, items[0].ID)

	assert.ErrorIs(t, f.svc.Delete(ctx, a.ID), apperrors.ErrNotFound)

	f.closeBus(t)
	assert.Contains(t, f.events.seen(), events.TopicDeleted)
}

func TestThumbnailIsCached(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	item, err := f.svc.Upload(ctx, UploadInput{Name: "wide.png", Data: pngBytes(t, 64, 32, color.NRGBA{R: 9, A: 255})})
	require.NoError(t, err)

	first, err := f.svc.Thumbnail(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", first.ContentType)
	w, h, _, err := pipeline.Dimensions(first.Data)
	require.NoError(t, err)
	assert.Equal(t, 16, w)
	assert.Equal(t, 8, h)

	second, err := f.svc.Thumbnail(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Data, second.Data)
	assert.Equal(t, int64(1), f.svc.CacheStats().TotalHits)
}

func TestExport(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	item, err := f.svc.Upload(ctx, UploadInput{Name: "cat.png", Data: pngBytes(t, 2, 2, color.NRGBA{A: 255})})
	require.NoError(t, err)

	out, err := f.svc.Export(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "local", out.Provider)
	assert.Equal(t, "/exports/"+item.ID+"/edited_cat.png", out.URL)

	_, err = os.Stat(filepath.Join(f.export, item.ID, "edited_cat.png"))
	assert.NoError(t, err)

	noSink := NewService(Deps{Library: library.New(), Blobs: storage.NewMemoryBlobStore()}, Options{})
	_, err = noSink.Export(ctx, item.ID)
	assert.ErrorIs(t, err, apperrors.ErrSurfaceUnavailable)
}
