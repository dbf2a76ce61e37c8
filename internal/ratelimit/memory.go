package ratelimit

import (
	"context"
	"sync"
	"time"
)

// staleAfter is how long a bucket may go untouched before the sweeper
// removes it. Re-creating a bucket hands out a full burst again, so this
// must be long enough that an actively limited caller is never reset.
const staleAfter = 10 * time.Minute

// bucket tracks the token balance for one key.
type bucket struct {
	tokens  float64
	updated time.Time
}

// take refills the bucket for the time elapsed since the last call and
// consumes one token if available.
func (b *bucket) take(now time.Time, rate, burst float64) bool {
	b.tokens += now.Sub(b.updated).Seconds() * rate
	if b.tokens > burst {
		b.tokens = burst
	}
	b.updated = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// MemoryLimiter implements Limiter with an in-process token bucket per key.
// Every key gets the same sustained rate and burst capacity; callers that
// need different budgets per endpoint family separate them by key prefix.
type MemoryLimiter struct {
	rate  float64
	burst float64

	mu      sync.Mutex
	buckets map[string]*bucket

	stopOnce sync.Once
	done     chan struct{}
}

// NewMemoryLimiter creates a token bucket limiter with the given sustained
// requests per second and burst capacity per key. A background sweeper
// drops buckets idle past staleAfter to bound memory; call Close to stop it.
func NewMemoryLimiter(rate float64, burst int) *MemoryLimiter {
	m := &MemoryLimiter{
		rate:    rate,
		burst:   float64(burst),
		buckets: make(map[string]*bucket),
		done:    make(chan struct{}),
	}
	go m.sweep()
	return m
}

// Allow consumes one token from the bucket for key. Returns true if a token
// was available (request should proceed), false otherwise (rate limited).
func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[key]
	if !ok {
		// First sighting of this key: full bucket minus the token
		// this request consumes.
		m.buckets[key] = &bucket{tokens: m.burst - 1, updated: now}
		return true, nil
	}
	return b.take(now, m.rate, m.burst), nil
}

// Close stops the sweeper goroutine. Safe to call multiple times.
func (m *MemoryLimiter) Close() error {
	m.stopOnce.Do(func() { close(m.done) })
	return nil
}

func (m *MemoryLimiter) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.dropStale(time.Now())
		}
	}
}

func (m *MemoryLimiter) dropStale(now time.Time) {
	cutoff := now.Add(-staleAfter)

	m.mu.Lock()
	defer m.mu.Unlock()

	for key, b := range m.buckets {
		if b.updated.Before(cutoff) {
			delete(m.buckets, key)
		}
	}
}
