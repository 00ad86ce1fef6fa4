// Package library keeps the in-memory, newest-first collection of uploaded
// media and serialises edits to each item with a generation counter.
package library

import (
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/leeforge/mediaedit/errors"
	"github.com/leeforge/mediaedit/media/pipeline"
)

// Ticket identifies one in-flight edit. A render started from a ticket may be
// committed only while the item's generation still equals Generation.
type Ticket struct {
	ID         string
	Generation uint64
	Params     pipeline.Params
	// Previous is the parameter set the edit replaced, used for rollback.
	Previous pipeline.Params
	Original string
	Modified string
}

type Library struct {
	mu    sync.RWMutex
	items []*MediaItem
	index map[string]*MediaItem
	now   func() time.Time
}

func New() *Library {
	return &Library{
		index: make(map[string]*MediaItem),
		now:   time.Now,
	}
}

// Add prepends item and returns a copy of what was stored. An empty ID is
// replaced with a fresh UUID.
func (l *Library) Add(item *MediaItem) (*MediaItem, error) {
	if item == nil {
		return nil, apperrors.NewValidation("media item is nil")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	stored := item.clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if _, exists := l.index[stored.ID]; exists {
		return nil, apperrors.NewInvalid("id", stored.ID, "already exists")
	}
	if stored.Params.Adjustment == (pipeline.Adjustment{}) {
		stored.Params.Adjustment = pipeline.NeutralAdjustment()
	}
	now := l.now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	stored.Generation = 0

	l.items = append([]*MediaItem{stored}, l.items...)
	l.index[stored.ID] = stored
	return stored.clone(), nil
}

func (l *Library) Get(id string) (*MediaItem, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	item, ok := l.index[id]
	if !ok {
		return nil, apperrors.NewNotFound("media", id)
	}
	return item.clone(), nil
}

// List returns copies of every item, newest first.
func (l *Library) List() []*MediaItem {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*MediaItem, len(l.items))
	for i, item := range l.items {
		out[i] = item.clone()
	}
	return out
}

// Active returns the most recently added item.
func (l *Library) Active() (*MediaItem, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.items) == 0 {
		return nil, apperrors.NewNotFound("media", "active")
	}
	return l.items[0].clone(), nil
}

func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// Delete removes exactly one item and keeps the order of the rest.
func (l *Library) Delete(id string) (*MediaItem, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	item, ok := l.index[id]
	if !ok {
		return nil, apperrors.NewNotFound("media", id)
	}
	delete(l.index, id)

	kept := make([]*MediaItem, 0, len(l.items)-1)
	for _, it := range l.items {
		if it.ID != id {
			kept = append(kept, it)
		}
	}
	l.items = kept
	return item, nil
}

// Begin applies mutate to the item's cumulative params and bumps its
// generation. A nil mutate keeps the params and only claims a generation.
// Only images have a pixel surface.
func (l *Library) Begin(id string, mutate func(*pipeline.Params)) (Ticket, error) {
	return l.begin(id, "", mutate)
}

// BeginOn claims a generation for an edit of the bitmap the caller already
// read from modified, leaving the params as they are. It fails with a
// superseded error if another edit has replaced that bitmap since.
func (l *Library) BeginOn(id, modified string) (Ticket, error) {
	return l.begin(id, modified, nil)
}

func (l *Library) begin(id, modified string, mutate func(*pipeline.Params)) (Ticket, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	item, ok := l.index[id]
	if !ok {
		return Ticket{}, apperrors.NewNotFound("media", id)
	}
	if !item.IsImage() {
		return Ticket{}, apperrors.NewSurfaceUnavailable(id, "pixel edits require an image")
	}
	if modified != "" && item.Modified != modified {
		return Ticket{}, apperrors.NewSuperseded(id, item.Generation, item.Generation)
	}

	previous := item.Params.Clone()
	if mutate != nil {
		next := item.Params.Clone()
		mutate(&next)
		item.Params = next
	}
	item.Generation++
	item.UpdatedAt = l.now()

	return Ticket{
		ID:         id,
		Generation: item.Generation,
		Params:     item.Params.Clone(),
		Previous:   previous,
		Original:   item.Original,
		Modified:   item.Modified,
	}, nil
}

// Commit stores the result of the edit t started. It fails with a superseded
// error when a newer edit has begun since, leaving the item untouched.
func (l *Library) Commit(t Ticket, modifiedKey string, width, height int) (*MediaItem, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	item, ok := l.index[t.ID]
	if !ok {
		return nil, apperrors.NewNotFound("media", t.ID)
	}
	if item.Generation != t.Generation {
		return nil, apperrors.NewSuperseded(t.ID, t.Generation, item.Generation)
	}

	item.Modified = modifiedKey
	item.Width = width
	item.Height = height
	item.UpdatedAt = l.now()
	return item.clone(), nil
}

// Rollback restores the params t replaced if no newer edit has begun.
func (l *Library) Rollback(t Ticket) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	item, ok := l.index[t.ID]
	if !ok || item.Generation != t.Generation {
		return false
	}
	item.Params = t.Previous.Clone()
	item.UpdatedAt = l.now()
	return true
}

// Trim records clamped in and out points on a video. Nothing is re-encoded.
func (l *Library) Trim(id string, start, end float64) (TrimMarks, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	item, ok := l.index[id]
	if !ok {
		return TrimMarks{}, apperrors.NewNotFound("media", id)
	}
	if !item.IsVideo() {
		return TrimMarks{}, apperrors.NewSurfaceUnavailable(id, "trim requires a video")
	}

	marks := Clamp(start, end, item.Duration)
	item.Trim = &marks
	item.UpdatedAt = l.now()
	return marks, nil
}
