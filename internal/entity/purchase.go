package entity

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

type PurchaseStatus string

const (
	PurchasePending PurchaseStatus = "pending"
	PurchasePaid    PurchaseStatus = "paid"
	PurchaseExpired PurchaseStatus = "expired"
)

// BookPurchase tracks one hosted checkout session for the book.
type BookPurchase struct {
	Id                int             `db:"id"`
	CheckoutSessionId string          `db:"checkout_session_id"`
	Email             string          `db:"email"`
	ReferralCode      sql.NullString  `db:"referral_code"`
	Amount            decimal.Decimal `db:"amount"`
	Currency          string          `db:"currency"`
	Status            PurchaseStatus  `db:"status"`
	CreatedAt         time.Time       `db:"created_at"`
	PaidAt            sql.NullTime    `db:"paid_at"`
}

type BookPurchaseInsert struct {
	CheckoutSessionId string
	Email             string
	ReferralCode      string
	Amount            decimal.Decimal
	Currency          string
}

// Checkout is a created hosted checkout session the buyer is redirected to.
type Checkout struct {
	SessionId string          `json:"sessionId"`
	URL       string          `json:"url"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
}
