// Package purchase sells the book through Stripe hosted checkout and tracks referral codes.
package purchase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"log/slog"

	v "github.com/asaskevich/govalidator"
	"github.com/google/uuid"
	"github.com/ketowell/waitlist-manager/internal/dependency"
	"github.com/ketowell/waitlist-manager/internal/dto"
	"github.com/ketowell/waitlist-manager/internal/entity"
	gerr "github.com/ketowell/waitlist-manager/internal/errors"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const (
	eventSessionCompleted      stripe.EventType = "checkout.session.completed"
	eventAsyncPaymentSucceeded stripe.EventType = "checkout.session.async_payment_succeeded"
	eventSessionExpired        stripe.EventType = "checkout.session.expired"

	metadataReferralCode = "referral_code"
)

type Config struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	ProductName   string `mapstructure:"product_name"`
	// Price is a decimal string in major units, e.g. "19.99".
	Price       string `mapstructure:"price"`
	Currency    string `mapstructure:"currency"`
	SuccessURL  string `mapstructure:"success_url"`
	CancelURL   string `mapstructure:"cancel_url"`
	DownloadURL string `mapstructure:"download_url"`
}

type Service struct {
	c        *Config
	price    decimal.Decimal
	repo     dependency.Repository
	mailer   dependency.Mailer
	checkout dependency.CheckoutClient
	now      func() time.Time
}

func New(c *Config, repo dependency.Repository, mailer dependency.Mailer, checkout dependency.CheckoutClient) (*Service, error) {
	price, err := decimal.NewFromString(c.Price)
	if err != nil {
		return nil, fmt.Errorf("invalid book price %q: %w", c.Price, err)
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("book price must be positive: %s", c.Price)
	}
	if c.Currency == "" {
		return nil, fmt.Errorf("checkout currency is required")
	}
	return &Service{
		c:        c,
		price:    price,
		repo:     repo,
		mailer:   mailer,
		checkout: checkout,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Price returns the checkout price after the referral discount, rounded to cents.
func Price(base, discountPercent decimal.Decimal) decimal.Decimal {
	if !discountPercent.IsPositive() {
		return base.Round(2)
	}
	if discountPercent.GreaterThan(decimal.NewFromInt(100)) {
		discountPercent = decimal.NewFromInt(100)
	}
	factor := decimal.NewFromInt(100).Sub(discountPercent).Div(decimal.NewFromInt(100))
	return base.Mul(factor).Round(2)
}

// referralSessionTTL bounds how long an unpaid referral checkout holds one of
// the code's redemptions.
const referralSessionTTL = time.Hour

// reserve checks that the code can take one more checkout. Paid redemptions
// and unexpired pending checkouts both count against the limit. It must run
// inside a transaction holding the code's row lock.
func (s *Service) reserve(ctx context.Context, rep dependency.Repository, code string) (*entity.ReferralCodeStats, error) {
	rc, err := rep.Referrals().LockReferralCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !rc.Active {
		return nil, gerr.ErrReferralCodeNotFound
	}
	if rc.MaxRedemptions > 0 {
		pending, err := rep.Purchases().CountPendingPurchases(ctx, code, s.now().Add(-referralSessionTTL))
		if err != nil {
			return nil, err
		}
		if rc.Redemptions+pending >= rc.MaxRedemptions {
			return nil, gerr.ErrReferralCodeExhausted
		}
	}
	return rc, nil
}

// CreateCheckout opens a hosted checkout session for email with the optional
// referral discount applied and stores it as a pending purchase. Checkouts
// with a referral code are serialized per code so its limit holds.
func (s *Service) CreateCheckout(ctx context.Context, email, referralCode string) (*entity.Checkout, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !v.IsEmail(email) {
		return nil, gerr.ErrInvalidEmail
	}
	referralCode = NormalizeCode(referralCode)

	if referralCode == "" {
		return s.openSession(ctx, s.repo, email, "", s.price)
	}

	var co *entity.Checkout
	err := s.repo.Tx(ctx, func(ctx context.Context, rep dependency.Repository) error {
		rc, err := s.reserve(ctx, rep, referralCode)
		if err != nil {
			return err
		}
		co, err = s.openSession(ctx, rep, email, referralCode, Price(s.price, rc.DiscountPercent))
		return err
	})
	if err != nil {
		return nil, err
	}
	return co, nil
}

func (s *Service) openSession(ctx context.Context, rep dependency.Repository, email, referralCode string, price decimal.Decimal) (*entity.Checkout, error) {
	amount := price.Shift(2).IntPart()
	if amount <= 0 {
		return nil, gerr.ErrCheckoutAmountTooLow
	}

	currency := strings.ToLower(s.c.Currency)
	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModePayment)),
		CustomerEmail: stripe.String(email),
		SuccessURL:    stripe.String(s.c.SuccessURL),
		CancelURL:     stripe.String(s.c.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(s.c.ProductName),
					},
				},
			},
		},
	}
	if referralCode != "" {
		params.Metadata = map[string]string{metadataReferralCode: referralCode}
		params.ExpiresAt = stripe.Int64(s.now().Add(referralSessionTTL).Unix())
	}

	cs, err := s.checkout.NewSession(params)
	if err != nil {
		return nil, fmt.Errorf("can't create checkout session: %w", err)
	}

	_, err = rep.Purchases().AddPurchase(ctx, &entity.BookPurchaseInsert{
		CheckoutSessionId: cs.ID,
		Email:             email,
		ReferralCode:      referralCode,
		Amount:            price,
		Currency:          currency,
	})
	if err != nil {
		return nil, err
	}

	slog.Default().InfoContext(ctx, "checkout session created",
		slog.String("session_id", cs.ID),
		slog.String("amount", price.StringFixed(2)),
		slog.String("referral_code", referralCode),
	)

	return &entity.Checkout{
		SessionId: cs.ID,
		URL:       cs.URL,
		Amount:    price,
		Currency:  currency,
	}, nil
}

// VerifySession looks the session up at Stripe and completes the purchase if it is paid.
// It backs the success page in case the webhook has not arrived yet.
func (s *Service) VerifySession(ctx context.Context, sessionId string) (*entity.BookPurchase, error) {
	if sessionId == "" {
		return nil, gerr.ErrPurchaseNotFound
	}
	p, err := s.repo.Purchases().GetPurchaseBySessionId(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	if p.Status != entity.PurchasePending {
		return p, nil
	}

	cs, err := s.checkout.GetSession(sessionId)
	if err != nil {
		return nil, fmt.Errorf("can't get checkout session: %w", err)
	}
	if cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
		if err := s.complete(ctx, cs); err != nil {
			return nil, err
		}
	}
	return s.repo.Purchases().GetPurchaseBySessionId(ctx, sessionId)
}

// HandleWebhook verifies and applies a Stripe event.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.c.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", gerr.ErrInvalidWebhook, err)
	}

	switch event.Type {
	case eventSessionCompleted, eventAsyncPaymentSucceeded:
		cs, err := decodeSession(event)
		if err != nil {
			return err
		}
		// Delayed payment methods complete the session before the money arrives.
		if cs.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			return nil
		}
		return s.complete(ctx, cs)
	case eventSessionExpired:
		cs, err := decodeSession(event)
		if err != nil {
			return err
		}
		return s.repo.Purchases().MarkPurchaseExpired(ctx, cs.ID)
	default:
		slog.Default().DebugContext(ctx, "ignoring stripe event", slog.String("type", string(event.Type)))
		return nil
	}
}

func decodeSession(event stripe.Event) (*stripe.CheckoutSession, error) {
	if event.Data == nil {
		return nil, fmt.Errorf("%w: event %s has no data", gerr.ErrInvalidWebhook, event.ID)
	}
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return nil, fmt.Errorf("%w: can't decode checkout session: %v", gerr.ErrInvalidWebhook, err)
	}
	return &cs, nil
}

// complete marks the purchase paid, records the referral redemption and sends
// the receipt. Only the caller that flips the purchase to paid does the rest.
func (s *Service) complete(ctx context.Context, cs *stripe.CheckoutSession) error {
	ok, err := s.repo.Purchases().MarkPurchasePaid(ctx, cs.ID, cs.AmountTotal, s.now())
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	p, err := s.repo.Purchases().GetPurchaseBySessionId(ctx, cs.ID)
	if err != nil {
		return err
	}

	if p.ReferralCode.Valid {
		err := s.repo.Referrals().AddRedemption(ctx, p.ReferralCode.String, p.Id, p.Email)
		if err != nil {
			slog.Default().ErrorContext(ctx, "can't record referral redemption",
				slog.Int("purchase_id", p.Id),
				slog.String("err", err.Error()),
			)
		}
	}

	_, err = s.mailer.SendPurchaseReceipt(ctx, p.Email, &dto.PurchaseReceipt{
		Preheader:    "Your KetoWell book is ready",
		Email:        p.Email,
		Amount:       p.Amount.StringFixed(2),
		Currency:     strings.ToUpper(p.Currency),
		ReferralCode: p.ReferralCode.String,
		DownloadURL:  s.c.DownloadURL,
	})
	if err != nil {
		slog.Default().ErrorContext(ctx, "can't send purchase receipt",
			slog.Int("purchase_id", p.Id),
			slog.String("err", err.Error()),
		)
	}
	return nil
}

// NormalizeCode uppercases and trims a referral code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CreateReferralCode adds a referral code. An empty code is generated.
func (s *Service) CreateReferralCode(ctx context.Context, rc *entity.ReferralCodeInsert) (*entity.ReferralCodeStats, error) {
	rc.Code = NormalizeCode(rc.Code)
	if rc.Code == "" {
		rc.Code = strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	}
	rc.OwnerEmail = strings.ToLower(strings.TrimSpace(rc.OwnerEmail))
	if !v.IsEmail(rc.OwnerEmail) {
		return nil, gerr.ErrInvalidEmail
	}
	// a full discount would make a zero amount checkout, which Stripe refuses
	if rc.DiscountPercent.IsNegative() || rc.DiscountPercent.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return nil, gerr.ErrInvalidReferralCode
	}
	if rc.MaxRedemptions < 0 {
		return nil, gerr.ErrInvalidReferralCode
	}
	if _, err := s.repo.Referrals().AddReferralCode(ctx, rc); err != nil {
		return nil, err
	}
	return s.repo.Referrals().GetReferralCode(ctx, rc.Code)
}
