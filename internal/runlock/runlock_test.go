package runlock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ketowell/waitlist-manager/internal/entity"
	gerr "github.com/ketowell/waitlist-manager/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) *Locker {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR is not set")
	}
	rdb, err := NewClient(context.Background(), &Config{Addr: addr})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, "test:"+uuid.NewString()+":", nil)
}

func TestLocker_AcquireRelease(t *testing.T) {
	l := newTestLocker(t)
	ctx := context.Background()

	lease, err := l.Acquire(ctx, "2026-10-16", time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "2026-10-16", time.Minute)
	assert.ErrorIs(t, err, gerr.ErrDripRunInProgress)

	// other run keys are independent
	other, err := l.Acquire(ctx, "2026-10-17", time.Minute)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx, nil, nil))

	require.NoError(t, lease.Release(ctx, &entity.DripRunSummary{}, nil))
	assert.ErrorIs(t, lease.Release(ctx, nil, nil), gerr.ErrLeaseLost)

	lease, err = l.Acquire(ctx, "2026-10-16", time.Minute)
	require.NoError(t, err)
	require.NoError(t, lease.Release(ctx, nil, nil))
}

func TestLocker_Expiry(t *testing.T) {
	l := newTestLocker(t)
	ctx := context.Background()

	stale, err := l.Acquire(ctx, "2026-10-16", 50*time.Millisecond)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		lease, err := l.Acquire(ctx, "2026-10-16", time.Minute)
		if err != nil {
			return false
		}
		defer lease.Release(ctx, nil, nil)
		// the expired holder must not delete the new lock
		return assert.ErrorIs(t, stale.Release(ctx, nil, nil), gerr.ErrLeaseLost)
	}, 2*time.Second, 20*time.Millisecond)
}
