// Package memory keeps session keys in process memory. Sessions do not
// survive a restart.
package memory

import (
	"context"
	"sync"
	"time"

	"tender-admin/internal/domain"
	"tender-admin/internal/observability"
)

const backendName = "memory"

type KVStore struct {
	mu   sync.RWMutex
	data map[string]string
}

var _ domain.KeyValueStore = (*KVStore)(nil)

func NewKVStore() *KVStore {
	return &KVStore{data: make(map[string]string)}
}

func (s *KVStore) Get(_ context.Context, key string) (string, bool, error) {
	defer observability.ObserveKV(backendName, "get", time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	return v, ok, nil
}

func (s *KVStore) Set(_ context.Context, key, value string) error {
	defer observability.ObserveKV(backendName, "set", time.Now())

	s.mu.Lock()
	s.data[key] = value
	s.mu.Unlock()
	return nil
}

// SetMany applies all entries under one lock.
func (s *KVStore) SetMany(_ context.Context, entries map[string]string) error {
	defer observability.ObserveKV(backendName, "set_many", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range entries {
		s.data[k] = v
	}
	return nil
}

func (s *KVStore) Remove(_ context.Context, keys ...string) error {
	defer observability.ObserveKV(backendName, "remove", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

func (s *KVStore) Ping(context.Context) error { return nil }

func (s *KVStore) Close() error { return nil }

// Len reports how many keys are stored.
func (s *KVStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
