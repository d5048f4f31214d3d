package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReferralCode grants a percentage discount on the book purchase.
type ReferralCode struct {
	Id              int             `db:"id" json:"id"`
	Code            string          `db:"code" json:"code"`
	OwnerEmail      string          `db:"owner_email" json:"ownerEmail"`
	DiscountPercent decimal.Decimal `db:"discount_percent" json:"discountPercent"`
	MaxRedemptions  int             `db:"max_redemptions" json:"maxRedemptions"`
	Active          bool            `db:"active" json:"active"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
}

type ReferralCodeInsert struct {
	Code            string
	OwnerEmail      string
	DiscountPercent decimal.Decimal
	MaxRedemptions  int
}

// ReferralCodeStats is a referral code along with its redemption count.
type ReferralCodeStats struct {
	ReferralCode
	Redemptions int `db:"redemptions" json:"redemptions"`
}

type ReferralRedemption struct {
	Id         int       `db:"id"`
	Code       string    `db:"code"`
	PurchaseId int       `db:"purchase_id"`
	Email      string    `db:"email"`
	CreatedAt  time.Time `db:"created_at"`
}
