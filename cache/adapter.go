// Package cache holds short-lived, process-local memoised values such as
// finished renders.
package cache

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrMiss    = errors.New("cache not found")
	ErrExpired = errors.New("cache expired")
)

type CacheAdapter interface {
	Get(key string) (any, error)
	Set(key string, value any, ttl time.Duration) error
	Delete(key string) error
	Exists(key string) bool
}

// SimpleAdapter is an in-memory CacheAdapter with per-entry TTL. A background
// sweeper drops expired entries until Close is called.
type SimpleAdapter struct {
	cache map[string]*cacheItem
	mu    sync.RWMutex

	stop     chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

type cacheItem struct {
	value     any
	expiresAt time.Time
}

func NewSimpleAdapter(sweepInterval time.Duration) *SimpleAdapter {
	adapter := &SimpleAdapter{
		cache: make(map[string]*cacheItem),
		stop:  make(chan struct{}),
		now:   time.Now,
	}
	if sweepInterval > 0 {
		go adapter.cleanupExpired(sweepInterval)
	}
	return adapter
}

func (c *SimpleAdapter) Get(key string) (any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, exists := c.cache[key]
	if !exists {
		return nil, ErrMiss
	}
	if c.now().After(item.expiresAt) {
		return nil, ErrExpired
	}
	return item.value, nil
}

// Set stores value for ttl. A non-positive ttl is rejected silently.
func (c *SimpleAdapter) Set(key string, value any, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache[key] = &cacheItem{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

func (c *SimpleAdapter) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.cache, key)
	return nil
}

func (c *SimpleAdapter) Exists(key string) bool {
	_, err := c.Get(key)
	return err == nil
}

func (c *SimpleAdapter) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// Close stops the sweeper.
func (c *SimpleAdapter) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *SimpleAdapter) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *SimpleAdapter) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, item := range c.cache {
		if now.After(item.expiresAt) {
			delete(c.cache, key)
		}
	}
}
