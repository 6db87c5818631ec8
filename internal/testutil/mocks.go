// Package testutil provides shared test utilities, mocks, and fixtures
// for testing the tender-admin gateway.
package testutil

import (
	"context"
	"errors"
	"sync"

	"tender-admin/internal/domain"
)

// Common test errors
var (
	ErrMockNotImplemented = errors.New("mock function not implemented")
	ErrMockUnavailable    = errors.New("mock: backend unavailable")
)

// MockKeyValueStore implements domain.KeyValueStore for testing
type MockKeyValueStore struct {
	mu sync.RWMutex

	// Function overrides - set these to customize behavior
	GetFunc     func(ctx context.Context, key string) (string, bool, error)
	SetFunc     func(ctx context.Context, key, value string) error
	SetManyFunc func(ctx context.Context, entries map[string]string) error
	RemoveFunc  func(ctx context.Context, keys ...string) error
	PingFunc    func(ctx context.Context) error

	// In-memory storage for simple tests
	Data map[string]string

	// Call counters
	GetCalls     int
	SetManyCalls int
	RemoveCalls  int
	Closed       bool
}

// NewMockKeyValueStore creates a new MockKeyValueStore with initialized maps
func NewMockKeyValueStore() *MockKeyValueStore {
	return &MockKeyValueStore{
		Data: make(map[string]string),
	}
}

func (m *MockKeyValueStore) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	m.GetCalls++
	m.mu.Unlock()

	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.Data[key]
	return v, ok, nil
}

func (m *MockKeyValueStore) Set(ctx context.Context, key, value string) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Data == nil {
		m.Data = make(map[string]string)
	}
	m.Data[key] = value
	return nil
}

func (m *MockKeyValueStore) SetMany(ctx context.Context, entries map[string]string) error {
	m.mu.Lock()
	m.SetManyCalls++
	m.mu.Unlock()

	if m.SetManyFunc != nil {
		return m.SetManyFunc(ctx, entries)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Data == nil {
		m.Data = make(map[string]string)
	}
	for k, v := range entries {
		m.Data[k] = v
	}
	return nil
}

func (m *MockKeyValueStore) Remove(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	m.RemoveCalls++
	m.mu.Unlock()

	if m.RemoveFunc != nil {
		return m.RemoveFunc(ctx, keys...)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		delete(m.Data, k)
	}
	return nil
}

func (m *MockKeyValueStore) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

func (m *MockKeyValueStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// Has reports whether key is stored.
func (m *MockKeyValueStore) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.Data[key]
	return ok
}

// Len returns the number of stored keys.
func (m *MockKeyValueStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.Data)
}

// MockAuthenticator implements the credential exchange for testing
type MockAuthenticator struct {
	mu sync.Mutex

	LoginFunc  func(ctx context.Context, creds domain.Credentials) (*domain.LoginResult, error)
	LogoutFunc func(ctx context.Context, token string) error

	LoginCalls   int
	LogoutCalls  int
	LogoutTokens []string
}

func NewMockAuthenticator() *MockAuthenticator {
	return &MockAuthenticator{}
}

func (m *MockAuthenticator) Login(ctx context.Context, creds domain.Credentials) (*domain.LoginResult, error) {
	m.mu.Lock()
	m.LoginCalls++
	m.mu.Unlock()

	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, creds)
	}
	return nil, ErrMockNotImplemented
}

func (m *MockAuthenticator) Logout(ctx context.Context, token string) error {
	m.mu.Lock()
	m.LogoutCalls++
	m.LogoutTokens = append(m.LogoutTokens, token)
	m.mu.Unlock()

	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, token)
	}
	return nil
}

// MockEventSink records published session events
type MockEventSink struct {
	mu sync.Mutex

	PublishFunc func(ctx context.Context, event *domain.SessionEvent) error

	Events []domain.SessionEvent
}

func NewMockEventSink() *MockEventSink {
	return &MockEventSink{}
}

func (m *MockEventSink) PublishSessionEvent(ctx context.Context, event *domain.SessionEvent) error {
	if m.PublishFunc != nil {
		if err := m.PublishFunc(ctx, event); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, *event)
	return nil
}

// Types returns the types of the recorded events in order.
func (m *MockEventSink) Types() []domain.SessionEventType {
	m.mu.Lock()
	defer m.mu.Unlock()

	types := make([]domain.SessionEventType, len(m.Events))
	for i, e := range m.Events {
		types[i] = e.Type
	}
	return types
}
