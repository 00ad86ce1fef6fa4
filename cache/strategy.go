package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/leeforge/mediaedit/json"
)

const defaultTTL = 10 * time.Minute

// CacheStrategy builds namespaced keys and picks TTLs per cache type.
type CacheStrategy struct {
	config CacheConfig
}

type CacheConfig struct {
	TTL    map[string]time.Duration
	Prefix string
}

func NewCacheStrategy(config CacheConfig) *CacheStrategy {
	if config.TTL == nil {
		config.TTL = make(map[string]time.Duration)
	}
	return &CacheStrategy{config: config}
}

// Key joins prefix and keys with colons under the configured namespace.
func (s *CacheStrategy) Key(prefix string, keys ...string) string {
	return s.config.Prefix + strings.Join(append([]string{prefix}, keys...), ":")
}

// ValueKey hashes v's JSON encoding into a key segment, so equal values map
// to equal keys.
func (s *CacheStrategy) ValueKey(prefix string, v any, keys ...string) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return s.Key(prefix, append(keys, Digest(data))...), nil
}

func (s *CacheStrategy) GetTTL(cacheType string) time.Duration {
	if ttl, exists := s.config.TTL[cacheType]; exists {
		return ttl
	}
	return defaultTTL
}

// Digest returns the hex SHA-256 of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

type CacheStats struct {
	TotalHits   int64   `json:"hits"`
	TotalMisses int64   `json:"misses"`
	TotalSets   int64   `json:"sets"`
	HitRate     float64 `json:"hit_rate"`
}

type CacheMonitor struct {
	stats CacheStats
	mu    sync.RWMutex
}

func NewCacheMonitor() *CacheMonitor {
	return &CacheMonitor{}
}

func (m *CacheMonitor) RecordHit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.TotalHits++
}

func (m *CacheMonitor) RecordMiss() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.TotalMisses++
}

func (m *CacheMonitor) RecordSet() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.TotalSets++
}

func (m *CacheMonitor) GetStats() CacheStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := m.stats
	if total := stats.TotalHits + stats.TotalMisses; total > 0 {
		stats.HitRate = float64(stats.TotalHits) / float64(total) * 100
	}
	return stats
}
