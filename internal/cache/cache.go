package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"time"

	"github.com/ppiankov/skylink/internal/model"
)

// Cache stores raw NASA responses keyed by request.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Stats counts cache lookups by the layer that answered them.
type Stats struct {
	MemoryHits int64 `json:"memory_hits"`
	DiskHits   int64 `json:"disk_hits"`
	Misses     int64 `json:"misses"`
}

// Hits is the number of lookups answered by any layer.
func (s Stats) Hits() int64 { return s.MemoryHits + s.DiskHits }

// StatsReporter is implemented by caches that count their lookups.
type StatsReporter interface {
	Stats() Stats
}

// Pruner is implemented by caches that can sweep expired entries from disk.
type Pruner interface {
	Prune(now time.Time) (int, error)
}

// secretParams never take part in a cache key, so rotating a key keeps the cache warm.
var secretParams = []string{"api_key"}

// CacheKey derives a key from a request URL. Query parameters are sorted and
// credentials dropped, so equivalent requests share an entry.
func CacheKey(rawURL string) string {
	hash := sha256.Sum256([]byte(canonicalURL(rawURL)))
	return "skylink:v1:" + hex.EncodeToString(hash[:])
}

func canonicalURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	for _, p := range secretParams {
		q.Del(p)
	}
	u.RawQuery = q.Encode() // Encode sorts by key
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	return u.String()
}

// New builds the cache described by cfg: memory + disk when enabled,
// otherwise a cache that stores nothing.
func New(cfg model.CacheConfig) Cache {
	if !cfg.Enabled {
		return Noop{}
	}
	if cfg.Dir == "" {
		return NewMemoryCache(cfg.MemoryTTL, 10*time.Minute)
	}
	return NewLayeredCache(cfg.MemoryTTL, cfg.Dir, cfg.DiskTTL)
}

// Noop is a Cache that never hits.
type Noop struct{}

func (Noop) Get(string) ([]byte, bool) { return nil, false }
func (Noop) Set(string, []byte, time.Duration) error { return nil }
func (Noop) Delete(string) error { return nil }
func (Noop) Clear() error { return nil }
