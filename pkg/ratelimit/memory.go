package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter keeps one token bucket per key in process memory.
// Buckets idle for longer than two windows are evicted.
type MemoryLimiter struct {
	cfg       Config
	every     rate.Limit
	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
	now       func() time.Time
}

// NewMemoryLimiter creates a limiter refilling cfg.Requests tokens per cfg.Window
func NewMemoryLimiter(cfg Config) *MemoryLimiter {
	cfg = cfg.normalized()
	return &MemoryLimiter{
		cfg:     cfg,
		every:   rate.Every(cfg.Window / time.Duration(cfg.Requests)),
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow consumes one token for key
func (m *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweep(now)

	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(m.every, m.cfg.Requests)}
		m.buckets[key] = b
	}
	b.lastSeen = now

	allowed := b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)

	res := Result{
		Allowed: allowed,
		Limit:   m.cfg.Requests,
	}
	if tokens > 0 {
		res.Remaining = int(math.Floor(tokens))
	}

	// Denied callers wait for one token, allowed callers see when the bucket is full again.
	missing := float64(m.cfg.Requests) - tokens
	if !allowed {
		missing = 1 - tokens
	}
	res.ResetAt = now.Add(time.Duration(missing / float64(m.every) * float64(time.Second)))

	return res, nil
}

// Len returns the number of tracked keys
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}

func (m *MemoryLimiter) sweep(now time.Time) {
	if now.Sub(m.lastSweep) < m.cfg.Window {
		return
	}
	m.lastSweep = now

	idle := 2 * m.cfg.Window
	for key, b := range m.buckets {
		if now.Sub(b.lastSeen) > idle {
			delete(m.buckets, key)
		}
	}
}
