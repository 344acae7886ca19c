package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"aitwin/internal/models"
)

// ShortTermStore is a per-user bounded buffer of the most recent messages.
// Append must be atomic per user: after it returns the buffer holds at most
// capacity records, the newest being the one just appended.
type ShortTermStore interface {
	Append(ctx context.Context, userID, role, content string) error
	Recent(ctx context.Context, userID string) ([]models.ShortTermRecord, error)
}

func shortTermKey(userID string) string {
	return fmt.Sprintf("chat:%s:history", userID)
}

// RedisShortTermStore keeps each user's buffer in a Redis list
type RedisShortTermStore struct {
	redis    *RedisService
	capacity int
	idleTTL  time.Duration
	now      func() time.Time
}

// NewRedisShortTermStore creates a Redis-backed buffer. A zero idleTTL keeps lists forever.
func NewRedisShortTermStore(redis *RedisService, capacity int, idleTTL time.Duration) *RedisShortTermStore {
	if capacity <= 0 {
		capacity = 10
	}
	return &RedisShortTermStore{
		redis:    redis,
		capacity: capacity,
		idleTTL:  idleTTL,
		now:      time.Now,
	}
}

func (s *RedisShortTermStore) Append(ctx context.Context, userID, role, content string) error {
	data, err := json.Marshal(models.ShortTermRecord{
		Role:      role,
		Content:   content,
		Timestamp: s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode short-term record: %w", err)
	}

	if err := s.redis.AppendBounded(ctx, shortTermKey(userID), string(data), s.capacity, s.idleTTL); err != nil {
		return fmt.Errorf("failed to append short-term record: %w", err)
	}
	return nil
}

func (s *RedisShortTermStore) Recent(ctx context.Context, userID string) ([]models.ShortTermRecord, error) {
	raw, err := s.redis.ListRange(ctx, shortTermKey(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to read short-term history: %w", err)
	}

	records := make([]models.ShortTermRecord, 0, len(raw))
	for _, item := range raw {
		var rec models.ShortTermRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// InMemoryShortTermStore is the in-process ShortTermStore. Buffers that
// have not been written for idleTTL are dropped, like the Redis list expiry.
type InMemoryShortTermStore struct {
	mu        sync.Mutex
	buffers   map[string]*userBuffer
	capacity  int
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type userBuffer struct {
	mu        sync.Mutex
	records   []models.ShortTermRecord
	lastWrite atomic.Int64 // unix nanos
}

// NewInMemoryShortTermStore creates an in-process buffer holding capacity
// records per user. A zero idleTTL keeps buffers forever.
func NewInMemoryShortTermStore(capacity int, idleTTL time.Duration) *InMemoryShortTermStore {
	if capacity <= 0 {
		capacity = 10
	}
	return &InMemoryShortTermStore{
		buffers:  make(map[string]*userBuffer),
		capacity: capacity,
		idleTTL:  idleTTL,
		now:      time.Now,
	}
}

func (s *InMemoryShortTermStore) idle(buf *userBuffer, now time.Time) bool {
	return s.idleTTL > 0 && now.Sub(time.Unix(0, buf.lastWrite.Load())) > s.idleTTL
}

// sweepLocked drops idle buffers. Callers hold s.mu.
func (s *InMemoryShortTermStore) sweepLocked(now time.Time) {
	for userID, buf := range s.buffers {
		if s.idle(buf, now) {
			delete(s.buffers, userID)
		}
	}
	s.lastSweep = now
}

// lookup returns the user's live buffer, creating one when create is set.
// At most one sweep runs per idleTTL.
func (s *InMemoryShortTermStore) lookup(userID string, create bool) *userBuffer {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.idleTTL > 0 && now.Sub(s.lastSweep) >= s.idleTTL {
		s.sweepLocked(now)
	}

	buf, ok := s.buffers[userID]
	if ok && s.idle(buf, now) {
		delete(s.buffers, userID)
		buf, ok = nil, false
	}
	if !ok && create {
		buf = &userBuffer{}
		buf.lastWrite.Store(now.UnixNano())
		s.buffers[userID] = buf
	}
	return buf
}

func (s *InMemoryShortTermStore) Append(_ context.Context, userID, role, content string) error {
	buf := s.lookup(userID, true)
	buf.mu.Lock()
	defer buf.mu.Unlock()

	now := s.now()
	buf.records = append(buf.records, models.ShortTermRecord{
		Role:      role,
		Content:   content,
		Timestamp: now.UTC(),
	})
	if overflow := len(buf.records) - s.capacity; overflow > 0 {
		buf.records = append([]models.ShortTermRecord(nil), buf.records[overflow:]...)
	}
	buf.lastWrite.Store(now.UnixNano())
	return nil
}

func (s *InMemoryShortTermStore) Recent(_ context.Context, userID string) ([]models.ShortTermRecord, error) {
	buf := s.lookup(userID, false)
	if buf == nil {
		return []models.ShortTermRecord{}, nil
	}
	buf.mu.Lock()
	defer buf.mu.Unlock()

	out := make([]models.ShortTermRecord, len(buf.records))
	copy(out, buf.records)
	return out, nil
}
