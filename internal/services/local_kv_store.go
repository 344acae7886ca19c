package services

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// LocalKVStore is an in-process KVStore used when Redis is not available.
// Entries are lost on restart.
type LocalKVStore struct {
	cache *cache.Cache
}

// NewLocalKVStore creates an in-process store
func NewLocalKVStore() *LocalKVStore {
	return &LocalKVStore{
		cache: cache.New(time.Hour, 10*time.Minute),
	}
}

func (s *LocalKVStore) Get(_ context.Context, key string) (string, error) {
	value, found := s.cache.Get(key)
	if !found {
		return "", ErrKeyNotFound
	}
	return value.(string), nil
}

func (s *LocalKVStore) SetEx(_ context.Context, key, value string, ttl time.Duration) error {
	s.cache.Set(key, value, ttl)
	return nil
}

func (s *LocalKVStore) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		s.cache.Delete(key)
	}
	return nil
}

// ItemCount returns the number of live entries
func (s *LocalKVStore) ItemCount() int {
	return s.cache.ItemCount()
}
