package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ketowell/waitlist-manager/internal/dependency"
	"github.com/ketowell/waitlist-manager/internal/entity"
	gerr "github.com/ketowell/waitlist-manager/internal/errors"
)

type dripRunStore struct {
	*MYSQLStore
}

// DripRuns returns an object implementing drip runs interface
func (ms *MYSQLStore) DripRuns() dependency.DripRuns {
	return &dripRunStore{
		MYSQLStore: ms,
	}
}

// AcquireLease takes the run marker for runKey. It succeeds when no marker exists
// or the previous holder's lease has expired.
func (ms *MYSQLStore) AcquireLease(ctx context.Context, runKey, owner string, ttl time.Duration) (bool, error) {
	acquired := false
	err := ms.Tx(ctx, func(ctx context.Context, rep dependency.Repository) error {
		now := rep.Now()
		params := map[string]any{
			"runKey":     runKey,
			"owner":      owner,
			"leaseUntil": now.Add(ttl),
			"now":        now,
		}

		run, err := QueryNamedOne[entity.DripRun](ctx, rep.DB(),
			`SELECT * FROM drip_run WHERE run_key = :runKey FOR UPDATE`, params)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("failed to get drip run: %w", err)
			}
			_, err = ExecNamed(ctx, rep.DB(), `
			INSERT INTO drip_run (run_key, owner, lease_until, started_at)
			VALUES (:runKey, :owner, :leaseUntil, :now)`, params)
			if err != nil {
				if rep.IsErrUniqueViolation(err) {
					return nil
				}
				return fmt.Errorf("failed to insert drip run: %w", err)
			}
			acquired = true
			return nil
		}

		if run.LeaseUntil.After(now) {
			return nil
		}

		_, err = ExecNamed(ctx, rep.DB(), `
		UPDATE drip_run
		SET owner = :owner,
			lease_until = :leaseUntil,
			started_at = :now,
			finished_at = NULL,
			sent = 0,
			failed = 0,
			error_msg = NULL
		WHERE run_key = :runKey`, params)
		if err != nil {
			return fmt.Errorf("failed to take over drip run: %w", err)
		}
		acquired = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return acquired, nil
}

// ReleaseLease stores the run totals and ends the lease. It fails with ErrLeaseLost
// when owner no longer holds the marker.
func (ms *MYSQLStore) ReleaseLease(ctx context.Context, runKey, owner string, summary *entity.DripRunSummary, runErr error) error {
	var sent, failed int
	if summary != nil {
		sent, failed = summary.Sent, summary.Failed
	}
	var errMsg string
	if runErr != nil {
		errMsg = runErr.Error()
	}

	query := `
	UPDATE drip_run
	SET lease_until = :now,
		finished_at = :now,
		sent = :sent,
		failed = :failed,
		error_msg = :errorMsg
	WHERE run_key = :runKey AND owner = :owner AND finished_at IS NULL`
	n, err := ExecNamed(ctx, ms.DB(), query, map[string]any{
		"now":      ms.Now(),
		"sent":     sent,
		"failed":   failed,
		"errorMsg": nullString(errMsg),
		"runKey":   runKey,
		"owner":    owner,
	})
	if err != nil {
		return fmt.Errorf("failed to release drip run lease: %w", err)
	}
	if n == 0 {
		return gerr.ErrLeaseLost
	}
	return nil
}

func (ms *MYSQLStore) ListDripRuns(ctx context.Context, limit int) ([]entity.DripRun, error) {
	query := `SELECT * FROM drip_run ORDER BY started_at DESC LIMIT :limit`
	runs, err := QueryListNamed[entity.DripRun](ctx, ms.DB(), query, map[string]any{
		"limit": limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list drip runs: %w", err)
	}
	return runs, nil
}
