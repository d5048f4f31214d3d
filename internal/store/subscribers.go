package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ketowell/waitlist-manager/internal/dependency"
	"github.com/ketowell/waitlist-manager/internal/entity"
	gerr "github.com/ketowell/waitlist-manager/internal/errors"
)

type subscribersStore struct {
	*MYSQLStore
}

// Subscribers returns an object implementing Subscribers interface
func (ms *MYSQLStore) Subscribers() dependency.Subscribers {
	return &subscribersStore{
		MYSQLStore: ms,
	}
}

func (ms *MYSQLStore) GetActiveSubscribers(ctx context.Context) ([]entity.Subscriber, error) {
	query := `SELECT * FROM subscriber WHERE receive_emails = 1 ORDER BY id`
	subscribers, err := QueryListNamed[entity.Subscriber](ctx, ms.DB(), query, map[string]any{})
	if err != nil {
		return nil, fmt.Errorf("failed to get active subscribers: %w", err)
	}
	return subscribers, nil
}

// Subscribe adds a subscriber or turns emails back on for a previous one.
func (ms *MYSQLStore) Subscribe(ctx context.Context, email, name string) error {
	var subscriber struct {
		ID            int  `db:"id"`
		ReceiveEmails bool `db:"receive_emails"`
	}
	err := ms.DB().GetContext(ctx, &subscriber, "SELECT id, receive_emails FROM subscriber WHERE email = ?", email)
	if err == nil {
		if subscriber.ReceiveEmails {
			return gerr.ErrAlreadySubscribed
		}
		_, err := ExecNamed(ctx, ms.DB(), `UPDATE subscriber SET receive_emails = TRUE WHERE id = :id`, map[string]any{
			"id": subscriber.ID,
		})
		if err != nil {
			return fmt.Errorf("failed to update subscriber: %w", err)
		}
		return nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to check subscriber: %w", err)
	}

	_, err = ExecNamed(ctx, ms.DB(), `INSERT INTO subscriber (name, email, receive_emails) VALUES (:name, :email, :receiveEmails)`, map[string]any{
		"email":         email,
		"name":          name,
		"receiveEmails": true,
	})
	if err != nil {
		if ms.IsErrUniqueViolation(err) {
			return gerr.ErrAlreadySubscribed
		}
		return fmt.Errorf("failed to add subscriber: %w", err)
	}
	return nil
}

// Unsubscribe is a no-op for unknown addresses.
func (ms *MYSQLStore) Unsubscribe(ctx context.Context, email string) error {
	_, err := ExecNamed(ctx, ms.DB(), `UPDATE subscriber SET receive_emails = FALSE WHERE email = :email`, map[string]any{
		"email": email,
	})
	if err != nil {
		return fmt.Errorf("failed to unsubscribe subscriber: %w", err)
	}
	return nil
}

func (ms *MYSQLStore) IsSubscribed(ctx context.Context, email string) (bool, error) {
	n, err := QueryCountNamed(ctx, ms.DB(),
		`SELECT COUNT(*) FROM subscriber WHERE email = :email AND receive_emails = 1`,
		map[string]any{"email": email})
	if err != nil {
		return false, fmt.Errorf("failed to check subscription: %w", err)
	}
	return n > 0, nil
}
