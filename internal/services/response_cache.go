package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"aitwin/internal/models"
)

const responseCacheKeyPrefix = "cache:response:"

// ResponseCache memoizes final answers per (user, intent, normalized query).
// Any store failure is treated as a miss; the cache never fails a request.
type ResponseCache struct {
	store    KVStore
	policies PolicyTable
	metrics  *Metrics
	now      func() time.Time
}

// NewResponseCache creates a cache over the given store. A nil store disables caching.
func NewResponseCache(store KVStore, policies PolicyTable, metrics *Metrics) *ResponseCache {
	return &ResponseCache{
		store:    store,
		policies: policies,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Fingerprint returns the cache key of a query. Queries differing only by
// case or surrounding whitespace share a key.
func Fingerprint(userID string, intent models.Intent, query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	raw := userID + ":" + string(intent) + ":" + normalized
	hash := sha256.Sum256([]byte(raw))
	return responseCacheKeyPrefix + hex.EncodeToString(hash[:])
}

// Get looks up a cached response. Non-cacheable intents always miss.
func (c *ResponseCache) Get(ctx context.Context, userID string, intent models.Intent, query string) (*models.CacheEntry, bool) {
	if c == nil || c.store == nil || !c.policies.For(intent).Cacheable {
		return nil, false
	}

	key := Fingerprint(userID, intent, query)
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrKeyNotFound) {
			log.Printf("⚠️  [CACHE] Lookup failed, treating as miss: %v", err)
		}
		c.metrics.RecordCacheMiss(intent)
		return nil, false
	}

	var entry models.CacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		log.Printf("⚠️  [CACHE] Corrupt entry dropped: %v", err)
		c.drop(ctx, key)
		c.metrics.RecordCacheMiss(intent)
		return nil, false
	}
	if !entry.Intent.Valid() || entry.Intent != intent {
		log.Printf("⚠️  [CACHE] Entry tagged %q under intent=%s dropped", entry.Intent, intent)
		c.drop(ctx, key)
		c.metrics.RecordCacheMiss(intent)
		return nil, false
	}

	c.metrics.RecordCacheHit(intent)
	log.Printf("⚡ [CACHE] Hit for intent=%s", intent)
	return &entry, true
}

func (c *ResponseCache) drop(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, key); err != nil {
		log.Printf("⚠️  [CACHE] Failed to drop entry: %v", err)
	}
}

// Put stores a response with the intent's TTL. Non-cacheable intents are ignored.
func (c *ResponseCache) Put(ctx context.Context, userID string, intent models.Intent, query, response string) {
	if c == nil || c.store == nil {
		return
	}
	policy := c.policies.For(intent)
	if !policy.Cacheable || policy.TTL <= 0 {
		return
	}

	data, err := json.Marshal(models.CacheEntry{
		Response: response,
		Intent:   intent,
		CachedAt: c.now().UTC(),
	})
	if err != nil {
		log.Printf("⚠️  [CACHE] Failed to encode entry: %v", err)
		return
	}

	if err := c.store.SetEx(ctx, Fingerprint(userID, intent, query), string(data), policy.TTL); err != nil {
		log.Printf("⚠️  [CACHE] Write failed, skipping: %v", err)
		return
	}
	log.Printf("💾 [CACHE] Stored response for intent=%s (ttl=%s)", intent, policy.TTL)
}
