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

type waitlistStore struct {
	*MYSQLStore
}

// Waitlist returns an object implementing waitlist interface
func (ms *MYSQLStore) Waitlist() dependency.Waitlist {
	return &waitlistStore{
		MYSQLStore: ms,
	}
}

// AddMember inserts an unconfirmed waitlist member.
func (ms *MYSQLStore) AddMember(ctx context.Context, m *entity.WaitlistMemberInsert) (int, error) {
	query := `
	INSERT INTO waitlist_member (email, first_name, confirmation_token)
	VALUES (:email, :firstName, :token)`
	id, err := ExecNamedLastId(ctx, ms.DB(), query, map[string]any{
		"email":     m.Email,
		"firstName": m.FirstName,
		"token":     m.ConfirmationToken,
	})
	if err != nil {
		if ms.IsErrUniqueViolation(err) {
			return 0, gerr.ErrAlreadyOnWaitlist
		}
		return 0, fmt.Errorf("failed to add waitlist member: %w", err)
	}
	return id, nil
}

func (ms *MYSQLStore) GetMemberByEmail(ctx context.Context, email string) (*entity.WaitlistMember, error) {
	query := `SELECT * FROM waitlist_member WHERE email = :email`
	m, err := QueryNamedOne[entity.WaitlistMember](ctx, ms.DB(), query, map[string]any{
		"email": email,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get waitlist member by email: %w", err)
	}
	return &m, nil
}

func (ms *MYSQLStore) GetMemberById(ctx context.Context, id int) (*entity.WaitlistMember, error) {
	query := `SELECT * FROM waitlist_member WHERE id = :id`
	m, err := QueryNamedOne[entity.WaitlistMember](ctx, ms.DB(), query, map[string]any{
		"id": id,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get waitlist member by id: %w", err)
	}
	return &m, nil
}

// ConfirmMember redeems a confirmation token. The token is cleared on success,
// so a second redemption reports ErrInvalidConfirmationToken.
func (ms *MYSQLStore) ConfirmMember(ctx context.Context, token string, at time.Time) (*entity.WaitlistMember, error) {
	var member *entity.WaitlistMember
	err := ms.Tx(ctx, func(ctx context.Context, rep dependency.Repository) error {
		m, err := QueryNamedOne[entity.WaitlistMember](ctx, rep.DB(),
			`SELECT * FROM waitlist_member WHERE confirmation_token = :token FOR UPDATE`,
			map[string]any{"token": token})
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return gerr.ErrInvalidConfirmationToken
			}
			return fmt.Errorf("failed to get member by token: %w", err)
		}

		// COALESCE keeps an existing confirmed_at untouched.
		_, err = ExecNamed(ctx, rep.DB(), `
		UPDATE waitlist_member
		SET confirmed_at = COALESCE(confirmed_at, :at), confirmation_token = NULL
		WHERE id = :id`, map[string]any{
			"id": m.Id,
			"at": at,
		})
		if err != nil {
			return fmt.Errorf("failed to confirm member: %w", err)
		}

		m.ConfirmationToken = sql.NullString{}
		if !m.ConfirmedAt.Valid {
			m.ConfirmedAt = sql.NullTime{Time: at, Valid: true}
		}
		member = &m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return member, nil
}

// GetMembersForDripEmail computes the eligibility set of a drip email in one query:
// members confirmed at or before cutoff, minus those with a sent (or possibly sent)
// record of the type, minus those with an attempt of the type still in flight,
// minus undeliverable addresses.
func (ms *MYSQLStore) GetMembersForDripEmail(ctx context.Context, emailType entity.EmailType, cutoff time.Time) ([]entity.WaitlistMember, error) {
	query := `
	SELECT w.*
	FROM waitlist_member w
	WHERE w.confirmed_at IS NOT NULL
		AND w.confirmed_at <= :cutoff
		AND NOT EXISTS (
			SELECT 1 FROM email_send s
			WHERE s.member_id = w.id
				AND s.email_type = :emailType
				AND s.status IN ('sent', 'unknown')
		)
		AND NOT EXISTS (
			SELECT 1 FROM email_send a
			WHERE a.member_id = w.id
				AND a.email_type = :emailType
				AND a.status = 'attempting'
				AND NOT EXISTS (
					SELECT 1 FROM email_send t
					WHERE t.attempt_id = a.attempt_id AND t.status <> 'attempting'
				)
		)
		AND NOT EXISTS (
			SELECT 1 FROM email_send b
			WHERE b.member_id = w.id
				AND (b.status = 'bounced' OR b.error_kind = 'invalid_recipient')
		)
	ORDER BY w.id`

	members, err := QueryListNamed[entity.WaitlistMember](ctx, ms.DB(), query, map[string]any{
		"cutoff":    cutoff,
		"emailType": emailType.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get members for %s: %w", emailType, err)
	}
	return members, nil
}

func (ms *MYSQLStore) GetWaitlistStats(ctx context.Context) (*entity.WaitlistStats, error) {
	query := `
	SELECT
		COUNT(*) AS total,
		COALESCE(SUM(confirmed_at IS NOT NULL), 0) AS confirmed
	FROM waitlist_member`
	stats, err := QueryNamedOne[entity.WaitlistStats](ctx, ms.DB(), query, map[string]any{})
	if err != nil {
		return nil, fmt.Errorf("failed to get waitlist stats: %w", err)
	}
	return &stats, nil
}
