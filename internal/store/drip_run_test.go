package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ketowell/waitlist-manager/internal/entity"
	gerr "github.com/ketowell/waitlist-manager/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDripRuns_Lease(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()
	ctx := context.Background()
	dr := db.DripRuns()

	ok, err := dr.AcquireLease(ctx, "2026-10-16", "owner-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = dr.AcquireLease(ctx, "2026-10-16", "owner-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	err = dr.ReleaseLease(ctx, "2026-10-16", "owner-b", nil, nil)
	assert.ErrorIs(t, err, gerr.ErrLeaseLost)

	summary := &entity.DripRunSummary{Sent: 3, Failed: 1}
	err = dr.ReleaseLease(ctx, "2026-10-16", "owner-a", summary, errors.New("boom"))
	require.NoError(t, err)

	runs, err := dr.ListDripRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 3, runs[0].Sent)
	assert.Equal(t, 1, runs[0].Failed)
	assert.Equal(t, "boom", runs[0].Error.String)
	assert.True(t, runs[0].FinishedAt.Valid)

	// a released lease can be taken again
	ok, err = dr.AcquireLease(ctx, "2026-10-16", "owner-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDripRuns_ExpiredLeaseIsTakenOver(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()
	ctx := context.Background()
	dr := db.DripRuns()

	ok, err := dr.AcquireLease(ctx, "2026-10-17", "owner-a", -time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = dr.AcquireLease(ctx, "2026-10-17", "owner-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	err = dr.ReleaseLease(ctx, "2026-10-17", "owner-a", nil, nil)
	assert.ErrorIs(t, err, gerr.ErrLeaseLost)
}
