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

type referralStore struct {
	*MYSQLStore
}

// Referrals returns an object implementing referrals interface
func (ms *MYSQLStore) Referrals() dependency.Referrals {
	return &referralStore{
		MYSQLStore: ms,
	}
}

const referralStatsSelect = `
	SELECT rc.*, COUNT(rr.id) AS redemptions
	FROM referral_code rc
	LEFT JOIN referral_redemption rr ON rr.code = rc.code`

func (ms *MYSQLStore) AddReferralCode(ctx context.Context, rc *entity.ReferralCodeInsert) (int, error) {
	query := `
	INSERT INTO referral_code (code, owner_email, discount_percent, max_redemptions)
	VALUES (:code, :ownerEmail, :discountPercent, :maxRedemptions)`
	id, err := ExecNamedLastId(ctx, ms.DB(), query, map[string]any{
		"code":            rc.Code,
		"ownerEmail":      rc.OwnerEmail,
		"discountPercent": rc.DiscountPercent,
		"maxRedemptions":  rc.MaxRedemptions,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to add referral code: %w", err)
	}
	return id, nil
}

func (ms *MYSQLStore) GetReferralCode(ctx context.Context, code string) (*entity.ReferralCodeStats, error) {
	query := referralStatsSelect + `
	WHERE rc.code = :code
	GROUP BY rc.id`
	rc, err := QueryNamedOne[entity.ReferralCodeStats](ctx, ms.DB(), query, map[string]any{
		"code": code,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, gerr.ErrReferralCodeNotFound
		}
		return nil, fmt.Errorf("failed to get referral code: %w", err)
	}
	return &rc, nil
}

// LockReferralCode locks the code row for the rest of the transaction and
// returns the code with its redemption count.
func (ms *MYSQLStore) LockReferralCode(ctx context.Context, code string) (*entity.ReferralCodeStats, error) {
	if !ms.InTx() {
		return nil, fmt.Errorf("referral code lock requires a transaction")
	}
	_, err := QueryCountNamed(ctx, ms.DB(), `SELECT id FROM referral_code WHERE code = :code FOR UPDATE`, map[string]any{
		"code": code,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, gerr.ErrReferralCodeNotFound
		}
		return nil, fmt.Errorf("failed to lock referral code: %w", err)
	}
	return ms.GetReferralCode(ctx, code)
}

func (ms *MYSQLStore) ListReferralCodes(ctx context.Context) ([]entity.ReferralCodeStats, error) {
	query := referralStatsSelect + `
	GROUP BY rc.id
	ORDER BY rc.id`
	codes, err := QueryListNamed[entity.ReferralCodeStats](ctx, ms.DB(), query, map[string]any{})
	if err != nil {
		return nil, fmt.Errorf("failed to list referral codes: %w", err)
	}
	return codes, nil
}

// AddRedemption records a code redemption once per purchase.
func (ms *MYSQLStore) AddRedemption(ctx context.Context, code string, purchaseId int, email string) error {
	query := `
	INSERT INTO referral_redemption (code, purchase_id, email)
	VALUES (:code, :purchaseId, :email)`
	_, err := ExecNamed(ctx, ms.DB(), query, map[string]any{
		"code":       code,
		"purchaseId": purchaseId,
		"email":      email,
	})
	if err != nil {
		if ms.IsErrUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("failed to add referral redemption: %w", err)
	}
	return nil
}
