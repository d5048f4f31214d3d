package ratelimit

import (
	"context"
	"sync"
	"time"

	gerr "github.com/ketowell/waitlist-manager/internal/errors"
)

// Limiter implements a simple in-memory fixed window rate limiter
type Limiter struct {
	mu       sync.Mutex
	counters map[string]*counter
	window   time.Duration
	max      int
	now      func() time.Time
}

type counter struct {
	count     int
	expiresAt time.Time
}

// NewLimiter creates a new rate limiter with the specified window and max requests
func NewLimiter(window time.Duration, max int) *Limiter {
	return &Limiter{
		counters: make(map[string]*counter),
		window:   window,
		max:      max,
		now:      time.Now,
	}
}

// Allow checks if a request for the given key is allowed
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, exists := l.counters[key]

	if !exists || now.After(c.expiresAt) {
		l.counters[key] = &counter{
			count:     1,
			expiresAt: now.Add(l.window),
		}
		return true
	}

	if c.count >= l.max {
		return false
	}

	c.count++
	return true
}

// Remaining returns the number of remaining requests for the given key
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, exists := l.counters[key]
	if !exists || l.now().After(c.expiresAt) {
		return l.max
	}
	return max(l.max-c.count, 0)
}

func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for key, c := range l.counters {
		if now.After(c.expiresAt) {
			delete(l.counters, key)
		}
	}
}

// Limits configures the signup and checkout limits.
type Limits struct {
	SignupsPerIP      int `mapstructure:"signups_per_ip"`
	SignupsPerEmail   int `mapstructure:"signups_per_email"`
	CheckoutsPerIP    int `mapstructure:"checkouts_per_ip"`
	CheckoutsPerEmail int `mapstructure:"checkouts_per_email"`
}

func DefaultLimits() Limits {
	return Limits{
		SignupsPerIP:      20,
		SignupsPerEmail:   3,
		CheckoutsPerIP:    30,
		CheckoutsPerEmail: 10,
	}
}

// MultiKeyLimiter limits signups and checkouts per client IP and per email, hourly.
type MultiKeyLimiter struct {
	limiters map[string]*Limiter
}

func NewMultiKeyLimiter(l Limits) *MultiKeyLimiter {
	return &MultiKeyLimiter{
		limiters: map[string]*Limiter{
			"ip_signup":      NewLimiter(time.Hour, l.SignupsPerIP),
			"email_signup":   NewLimiter(time.Hour, l.SignupsPerEmail),
			"ip_checkout":    NewLimiter(time.Hour, l.CheckoutsPerIP),
			"email_checkout": NewLimiter(time.Hour, l.CheckoutsPerEmail),
		},
	}
}

// Run drops expired counters every interval until ctx is done.
func (m *MultiKeyLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, l := range m.limiters {
				l.sweep()
			}
		}
	}
}

func (m *MultiKeyLimiter) check(kind, ip, email string) error {
	if !m.limiters["ip_"+kind].Allow(ip) {
		return gerr.ErrTooManyRequests
	}
	if email != "" && !m.limiters["email_"+kind].Allow(email) {
		return gerr.ErrTooManyRequests
	}
	return nil
}

// CheckSignup covers waitlist joins and newsletter subscriptions.
func (m *MultiKeyLimiter) CheckSignup(ip, email string) error {
	return m.check("signup", ip, email)
}

func (m *MultiKeyLimiter) CheckCheckout(ip, email string) error {
	return m.check("checkout", ip, email)
}
