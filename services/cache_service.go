package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/isir-tracker/isir-backend/models"
)

// CacheEntry represents a cached item with expiration
type CacheEntry struct {
	Data      interface{}
	ExpiresAt time.Time
}

// IsExpired checks if the cache entry has expired at now
func (ce *CacheEntry) IsExpired(now time.Time) bool {
	return now.After(ce.ExpiresAt)
}

// CacheService is an in-memory TTL cache with oldest-first eviction when full.
// Expired entries are removed by CleanupExpired, which the cache cleanup job calls.
type CacheService struct {
	cache      map[string]*CacheEntry
	mutex      sync.RWMutex
	defaultTTL time.Duration
	maxSize    int
	now        func() time.Time
}

// NewCacheServiceWithConfig creates a cache service with custom configuration
func NewCacheServiceWithConfig(defaultTTL time.Duration, maxSize int) *CacheService {
	if maxSize <= 0 {
		maxSize = 500
	}
	return &CacheService{
		cache:      make(map[string]*CacheEntry),
		defaultTTL: defaultTTL,
		maxSize:    maxSize,
		now:        time.Now,
	}
}

// Get retrieves a value from cache
func (cs *CacheService) Get(key string) (interface{}, bool) {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	entry, exists := cs.cache[key]
	if !exists || entry.IsExpired(cs.now()) {
		return nil, false
	}

	return entry.Data, true
}

// Set stores a value in cache with the default TTL
func (cs *CacheService) Set(key string, value interface{}) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	if _, replacing := cs.cache[key]; !replacing && len(cs.cache) >= cs.maxSize {
		cs.evictOldest()
	}

	cs.cache[key] = &CacheEntry{
		Data:      value,
		ExpiresAt: cs.now().Add(cs.defaultTTL),
	}
}

// evictOldest removes the entry closest to expiry
func (cs *CacheService) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range cs.cache {
		if oldestKey == "" || entry.ExpiresAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.ExpiresAt
		}
	}

	if oldestKey != "" {
		delete(cs.cache, oldestKey)
	}
}

// Delete removes a value from cache
func (cs *CacheService) Delete(key string) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	delete(cs.cache, key)
}

// Size returns the number of items in cache
func (cs *CacheService) Size() int {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	return len(cs.cache)
}

// CleanupExpired removes expired entries and returns how many were dropped
func (cs *CacheService) CleanupExpired() int {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	now := cs.now()
	removed := 0
	for key, entry := range cs.cache {
		if entry.IsExpired(now) {
			delete(cs.cache, key)
			removed++
		}
	}
	return removed
}

// SummaryCache stores AI summaries keyed by document id and language.
type SummaryCache struct {
	cache *CacheService
}

func NewSummaryCache(cache *CacheService) *SummaryCache {
	return &SummaryCache{cache: cache}
}

func summaryCacheKey(docID models.SequenceID, lang string) string {
	return fmt.Sprintf("summary:%d:%s", docID, lang)
}

// Get returns the cached summary for docID, if any
func (sc *SummaryCache) Get(docID models.SequenceID, lang string) (string, bool) {
	cached, found := sc.cache.Get(summaryCacheKey(docID, lang))
	if !found {
		return "", false
	}
	summary, ok := cached.(string)
	return summary, ok
}

// Set caches summary for docID with the default TTL
func (sc *SummaryCache) Set(docID models.SequenceID, lang, summary string) {
	sc.cache.Set(summaryCacheKey(docID, lang), summary)
}

// Forget drops every cached language of docID
func (sc *SummaryCache) Forget(docID models.SequenceID) {
	for _, lang := range []string{"cs", "en"} {
		sc.cache.Delete(summaryCacheKey(docID, lang))
	}
}
