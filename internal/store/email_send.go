package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ketowell/waitlist-manager/internal/dependency"
	"github.com/ketowell/waitlist-manager/internal/entity"
)

type emailSendStore struct {
	*MYSQLStore
}

// EmailSends returns an object implementing email sends interface
func (ms *MYSQLStore) EmailSends() dependency.EmailSends {
	return &emailSendStore{
		MYSQLStore: ms,
	}
}

// CreateEmailSend appends a row to the send log. Rows are never updated.
func (ms *MYSQLStore) CreateEmailSend(ctx context.Context, es *entity.EmailSendInsert) (int, error) {
	query := `
	INSERT INTO email_send
		(member_id, email_type, status, attempt_id, message_id, error_kind, error_message, created_at)
	VALUES
		(:memberId, :emailType, :status, :attemptId, :messageId, :errorKind, :errorMessage, :createdAt)`

	id, err := ExecNamedLastId(ctx, ms.DB(), query, map[string]any{
		"memberId":     es.MemberId,
		"emailType":    es.EmailType.String(),
		"status":       string(es.Status),
		"attemptId":    es.AttemptId,
		"messageId":    nullString(es.MessageId),
		"errorKind":    nullString(string(es.ErrorKind)),
		"errorMessage": nullString(es.ErrorMessage),
		"createdAt":    ms.Now(),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create email send: %w", err)
	}
	return id, nil
}

func (ms *MYSQLStore) HasEmailBeenSent(ctx context.Context, memberId int, emailType entity.EmailType) (bool, error) {
	query := `
	SELECT COUNT(*) FROM email_send
	WHERE member_id = :memberId AND email_type = :emailType AND status = 'sent'`
	n, err := QueryCountNamed(ctx, ms.DB(), query, map[string]any{
		"memberId":  memberId,
		"emailType": emailType.String(),
	})
	if err != nil {
		return false, fmt.Errorf("failed to check email send: %w", err)
	}
	return n > 0, nil
}

func (ms *MYSQLStore) ListEmailSends(ctx context.Context, memberId int) ([]entity.EmailSendRecord, error) {
	query := `SELECT * FROM email_send WHERE member_id = :memberId ORDER BY id`
	records, err := QueryListNamed[entity.EmailSendRecord](ctx, ms.DB(), query, map[string]any{
		"memberId": memberId,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list email sends: %w", err)
	}
	return records, nil
}

// ReconcileStaleAttempts appends an unknown outcome for every attempt that started
// before olderThan and never got a terminal row. Unknown suppresses the pair, so a
// crash between delivery and recording does not turn into a duplicate email.
func (ms *MYSQLStore) ReconcileStaleAttempts(ctx context.Context, olderThan time.Time) (int, error) {
	query := `
	INSERT INTO email_send (member_id, email_type, status, attempt_id, error_kind, error_message, created_at)
	SELECT a.member_id, a.email_type, 'unknown', a.attempt_id, :errorKind, :errorMessage, :now
	FROM email_send a
	WHERE a.status = 'attempting'
		AND a.created_at < :olderThan
		AND NOT EXISTS (
			SELECT 1 FROM email_send t
			WHERE t.attempt_id = a.attempt_id AND t.status <> 'attempting'
		)`
	n, err := ExecNamed(ctx, ms.DB(), query, map[string]any{
		"errorKind":    string(entity.FailureInterrupted),
		"errorMessage": "attempt never recorded an outcome",
		"olderThan":    olderThan,
		"now":          ms.Now(),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to reconcile stale attempts: %w", err)
	}
	return int(n), nil
}

func (ms *MYSQLStore) GetEmailSendStats(ctx context.Context) ([]entity.EmailSendStats, error) {
	query := `
	SELECT email_type, status, COUNT(*) AS cnt
	FROM email_send
	WHERE status <> 'attempting'
	GROUP BY email_type, status
	ORDER BY email_type, status`
	stats, err := QueryListNamed[entity.EmailSendStats](ctx, ms.DB(), query, map[string]any{})
	if err != nil {
		return nil, fmt.Errorf("failed to get email send stats: %w", err)
	}
	return stats, nil
}
