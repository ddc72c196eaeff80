package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"custodia/internal/domain"
)

// MemoryLimiter is a fixed-window counter held in process memory. It is the
// default when no Redis address is configured; counts are lost on restart,
// which is acceptable for politeness throttling of calendar submissions.
type MemoryLimiter struct {
	mu      sync.Mutex
	now     func() time.Time
	windows map[string]*window
	maxKeys int
}

type window struct {
	count int
	ends  time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		now:     time.Now,
		windows: make(map[string]*window),
		maxKeys: 10000,
	}
}

// WithClock overrides the limiter clock. Used in tests.
func (m *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	if m == nil || now == nil {
		return m
	}
	m.now = now
	return m
}

func (m *MemoryLimiter) Allow(_ context.Context, key string, limit int, windowLen time.Duration) (domain.RateLimitDecision, error) {
	if limit <= 0 {
		return domain.RateLimitDecision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[key]
	if ok && now.After(w.ends) {
		delete(m.windows, key)
		ok = false
	}
	if !ok {
		if len(m.windows) >= m.maxKeys {
			m.prune(now)
		}
		if len(m.windows) >= m.maxKeys {
			return domain.RateLimitDecision{}, errors.New("rate limiter capacity exceeded")
		}
		w = &window{ends: now.Add(windowLen)}
		m.windows[key] = w
	}

	if w.count < limit {
		w.count++
		return domain.RateLimitDecision{
			Allowed:   true,
			Limit:     limit,
			Remaining: limit - w.count,
			ResetAt:   w.ends,
		}, nil
	}
	return domain.RateLimitDecision{
		Allowed: false,
		Limit:   limit,
		ResetAt: w.ends,
	}, nil
}

func (m *MemoryLimiter) prune(now time.Time) {
	for key, w := range m.windows {
		if now.After(w.ends) {
			delete(m.windows, key)
		}
	}
}
