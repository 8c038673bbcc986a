// Package ratelimit caps how often each caller may invoke each tool.
package ratelimit

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when a caller has used up its quota for a tool.
var ErrRateLimited = errors.New("rate limit exceeded")

// Config configures the limiter.
type Config struct {
	CallsPerMinute int // 0 = unlimited.
	Burst          int // 0 = CallsPerMinute.
}

// Key identifies one quota. The chat loop and the MCP server are separate
// callers and never draw from each other's quota.
type Key struct {
	Caller string
	Tool   string
}

// Limiter holds a rate.Limiter per Key, created on first use.
type Limiter struct {
	mu     sync.Mutex
	quotas map[Key]*rate.Limiter
	every  rate.Limit
	burst  int
	now    func() time.Time
}

// New creates a limiter. A zero CallsPerMinute disables limiting.
func New(cfg Config) *Limiter {
	l := &Limiter{
		quotas: make(map[Key]*rate.Limiter),
		now:    time.Now,
	}
	if cfg.CallsPerMinute <= 0 {
		return l
	}
	l.every = rate.Every(time.Minute / time.Duration(cfg.CallsPerMinute))
	l.burst = cfg.Burst
	if l.burst <= 0 {
		l.burst = cfg.CallsPerMinute
	}
	return l
}

// Allow takes one call from caller's quota for tool.
// A nil or unlimited limiter allows everything.
func (l *Limiter) Allow(caller, tool string) error {
	if l == nil || l.every == 0 {
		return nil
	}
	if !l.quota(Key{Caller: caller, Tool: tool}).AllowN(l.now(), 1) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) quota(k Key) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	q, ok := l.quotas[k]
	if !ok {
		q = rate.NewLimiter(l.every, l.burst)
		l.quotas[k] = q
	}
	return q
}

// Reset forgets every quota.
func (l *Limiter) Reset() {
	if l == nil {
		return
	}
	l.mu.Lock()
	clear(l.quotas)
	l.mu.Unlock()
}
