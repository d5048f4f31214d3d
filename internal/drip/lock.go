package drip

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ketowell/waitlist-manager/internal/dependency"
	"github.com/ketowell/waitlist-manager/internal/entity"
	gerr "github.com/ketowell/waitlist-manager/internal/errors"
)

// StoreLocker keeps the run marker in the drip_run table.
type StoreLocker struct {
	runs dependency.DripRuns
}

func NewStoreLocker(runs dependency.DripRuns) *StoreLocker {
	return &StoreLocker{runs: runs}
}

func (l *StoreLocker) Acquire(ctx context.Context, runKey string, ttl time.Duration) (dependency.Lease, error) {
	owner := uuid.NewString()
	ok, err := l.runs.AcquireLease(ctx, runKey, owner, ttl)
	if err != nil {
		return nil, fmt.Errorf("can't acquire drip run lease: %w", err)
	}
	if !ok {
		return nil, gerr.ErrDripRunInProgress
	}
	return &storeLease{runs: l.runs, runKey: runKey, owner: owner}, nil
}

type storeLease struct {
	runs   dependency.DripRuns
	runKey string
	owner  string
}

func (l *storeLease) Release(ctx context.Context, summary *entity.DripRunSummary, runErr error) error {
	return l.runs.ReleaseLease(ctx, l.runKey, l.owner, summary, runErr)
}
