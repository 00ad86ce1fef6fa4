package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/leeforge/mediaedit/errors"
)

// BlobPrefix starts every key handed out by a BlobStore.
const BlobPrefix = "blob/"

// Blob is an immutable bitmap or upload held by the process.
type Blob struct {
	Key         string
	Data        []byte
	ContentType string
	CreatedAt   time.Time
}

func (b *Blob) Size() int64 { return int64(len(b.Data)) }

// BlobStore holds uploads and rendered bitmaps for the life of the process.
// Keys are opaque references; nothing survives a restart.
type BlobStore interface {
	Put(ctx context.Context, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) (*Blob, error)
	Delete(ctx context.Context, key string) error
}

type MemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string]*Blob
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[string]*Blob)}
}

// Put stores a copy of data under a fresh key.
func (s *MemoryBlobStore) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key := BlobPrefix + uuid.NewString()
	blob := &Blob{
		Key:         key,
		Data:        append([]byte(nil), data...),
		ContentType: contentType,
		CreatedAt:   time.Now(),
	}

	s.mu.Lock()
	s.blobs[key] = blob
	s.mu.Unlock()
	return key, nil
}

// Get returns the stored blob. Callers must not modify Data.
func (s *MemoryBlobStore) Get(ctx context.Context, key string) (*Blob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[key]
	if !ok {
		return nil, apperrors.NewNotFound("blob", key)
	}
	return blob, nil
}

// Delete is idempotent.
func (s *MemoryBlobStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.blobs, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryBlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
