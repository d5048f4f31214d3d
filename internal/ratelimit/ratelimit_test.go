package ratelimit

import (
	"context"
	"testing"
	"time"

	gerr "github.com/ketowell/waitlist-manager/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestLimiter_Allow(t *testing.T) {
	now := time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)
	limiter := NewLimiter(time.Second, 3)
	limiter.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow("test-key"), "request %d", i+1)
	}
	assert.False(t, limiter.Allow("test-key"))
	assert.True(t, limiter.Allow("other-key"))

	now = now.Add(1100 * time.Millisecond)
	assert.True(t, limiter.Allow("test-key"))
}

func TestLimiter_Remaining(t *testing.T) {
	limiter := NewLimiter(time.Minute, 5)
	assert.Equal(t, 5, limiter.Remaining("test-key"))

	limiter.Allow("test-key")
	limiter.Allow("test-key")
	assert.Equal(t, 3, limiter.Remaining("test-key"))
}

func TestLimiter_Sweep(t *testing.T) {
	now := time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)
	limiter := NewLimiter(time.Second, 1)
	limiter.now = func() time.Time { return now }

	limiter.Allow("a")
	now = now.Add(2 * time.Second)
	limiter.sweep()
	assert.Empty(t, limiter.counters)
}

func TestMultiKeyLimiter_CheckSignup(t *testing.T) {
	m := NewMultiKeyLimiter(Limits{SignupsPerIP: 2, SignupsPerEmail: 1, CheckoutsPerIP: 1, CheckoutsPerEmail: 1})

	assert.NoError(t, m.CheckSignup("192.168.1.1", "a@example.com"))
	assert.ErrorIs(t, m.CheckSignup("192.168.1.2", "a@example.com"), gerr.ErrTooManyRequests)
	assert.NoError(t, m.CheckSignup("192.168.1.1", "b@example.com"))
	assert.ErrorIs(t, m.CheckSignup("192.168.1.1", "c@example.com"), gerr.ErrTooManyRequests)

	// checkout counters are separate
	assert.NoError(t, m.CheckCheckout("192.168.1.1", "a@example.com"))
	assert.ErrorIs(t, m.CheckCheckout("192.168.1.1", ""), gerr.ErrTooManyRequests)
}

func TestMultiKeyLimiter_RunStops(t *testing.T) {
	m := NewMultiKeyLimiter(DefaultLimits())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
