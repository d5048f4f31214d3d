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
	"github.com/shopspring/decimal"
)

type purchaseStore struct {
	*MYSQLStore
}

// Purchases returns an object implementing purchases interface
func (ms *MYSQLStore) Purchases() dependency.Purchases {
	return &purchaseStore{
		MYSQLStore: ms,
	}
}

func (ms *MYSQLStore) AddPurchase(ctx context.Context, p *entity.BookPurchaseInsert) (int, error) {
	query := `
	INSERT INTO book_purchase (checkout_session_id, email, referral_code, amount, currency, status)
	VALUES (:sessionId, :email, :referralCode, :amount, :currency, :status)`
	id, err := ExecNamedLastId(ctx, ms.DB(), query, map[string]any{
		"sessionId":    p.CheckoutSessionId,
		"email":        p.Email,
		"referralCode": nullString(p.ReferralCode),
		"amount":       p.Amount,
		"currency":     p.Currency,
		"status":       string(entity.PurchasePending),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to add purchase: %w", err)
	}
	return id, nil
}

func (ms *MYSQLStore) GetPurchaseBySessionId(ctx context.Context, sessionId string) (*entity.BookPurchase, error) {
	p, err := QueryNamedOne[entity.BookPurchase](ctx, ms.DB(),
		`SELECT * FROM book_purchase WHERE checkout_session_id = :sessionId`,
		map[string]any{"sessionId": sessionId})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, gerr.ErrPurchaseNotFound
		}
		return nil, fmt.Errorf("failed to get purchase: %w", err)
	}
	return &p, nil
}

// MarkPurchasePaid moves a pending purchase to paid with the amount Stripe
// actually charged, in minor units. Only the call that made the transition
// gets true, which lets webhook and verify race without double receipts.
func (ms *MYSQLStore) MarkPurchasePaid(ctx context.Context, sessionId string, amount int64, at time.Time) (bool, error) {
	query := `
	UPDATE book_purchase
	SET status = 'paid', paid_at = :at, amount = :amount
	WHERE checkout_session_id = :sessionId AND status = 'pending'`
	n, err := ExecNamed(ctx, ms.DB(), query, map[string]any{
		"at":        at,
		"amount":    decimal.New(amount, -2),
		"sessionId": sessionId,
	})
	if err != nil {
		return false, fmt.Errorf("failed to mark purchase paid: %w", err)
	}
	return n == 1, nil
}

func (ms *MYSQLStore) MarkPurchaseExpired(ctx context.Context, sessionId string) error {
	query := `
	UPDATE book_purchase SET status = 'expired'
	WHERE checkout_session_id = :sessionId AND status = 'pending'`
	_, err := ExecNamed(ctx, ms.DB(), query, map[string]any{
		"sessionId": sessionId,
	})
	if err != nil {
		return fmt.Errorf("failed to mark purchase expired: %w", err)
	}
	return nil
}

func (ms *MYSQLStore) CountPendingPurchases(ctx context.Context, code string, since time.Time) (int, error) {
	query := `
	SELECT COUNT(*) FROM book_purchase
	WHERE referral_code = :code AND status = 'pending' AND created_at > :since`
	n, err := QueryCountNamed(ctx, ms.DB(), query, map[string]any{
		"code":  code,
		"since": since,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count pending purchases: %w", err)
	}
	return n, nil
}
