package models

import "time"

// CacheEntry is the serialized value stored under a response fingerprint
type CacheEntry struct {
	Response string    `json:"response"`
	Intent   Intent    `json:"intent"`
	CachedAt time.Time `json:"cached_at"`
}
