package testutil

import (
	"sync"
	"time"
)

// MockClock is a settable clock for deterministic window bounds.
type MockClock struct {
	mu      sync.Mutex
	current time.Time
}

func NewMockClock(unix int64) *MockClock {
	return &MockClock{current: time.Unix(unix, 0)}
}

func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.current.Add(d)
}

func (m *MockClock) Set(unix int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = time.Unix(unix, 0)
}
