package dependency

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/ketowell/waitlist-manager/internal/dto"
	"github.com/ketowell/waitlist-manager/internal/entity"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stripe/stripe-go/v79"
)

type (
	ContextStore interface {
		Tx(ctx context.Context, fn func(ctx context.Context, store Repository) error) error
	}

	Waitlist interface {
		// AddMember creates an unconfirmed waitlist member and returns its id.
		AddMember(ctx context.Context, m *entity.WaitlistMemberInsert) (int, error)
		GetMemberByEmail(ctx context.Context, email string) (*entity.WaitlistMember, error)
		GetMemberById(ctx context.Context, id int) (*entity.WaitlistMember, error)
		// ConfirmMember redeems the token. confirmed_at is set only once.
		ConfirmMember(ctx context.Context, token string, at time.Time) (*entity.WaitlistMember, error)
		// GetMembersForDripEmail returns confirmed members due for the email type:
		// confirmed at or before cutoff, not yet sent, not in flight and not undeliverable.
		GetMembersForDripEmail(ctx context.Context, emailType entity.EmailType, cutoff time.Time) ([]entity.WaitlistMember, error)
		GetWaitlistStats(ctx context.Context) (*entity.WaitlistStats, error)
	}

	EmailSends interface {
		CreateEmailSend(ctx context.Context, es *entity.EmailSendInsert) (int, error)
		HasEmailBeenSent(ctx context.Context, memberId int, emailType entity.EmailType) (bool, error)
		ListEmailSends(ctx context.Context, memberId int) ([]entity.EmailSendRecord, error)
		// ReconcileStaleAttempts closes attempts started before olderThan that never got a terminal row.
		ReconcileStaleAttempts(ctx context.Context, olderThan time.Time) (int, error)
		GetEmailSendStats(ctx context.Context) ([]entity.EmailSendStats, error)
	}

	DripRuns interface {
		AcquireLease(ctx context.Context, runKey, owner string, ttl time.Duration) (bool, error)
		ReleaseLease(ctx context.Context, runKey, owner string, summary *entity.DripRunSummary, runErr error) error
		ListDripRuns(ctx context.Context, limit int) ([]entity.DripRun, error)
	}

	Subscribers interface {
		Subscribe(ctx context.Context, email, name string) error
		Unsubscribe(ctx context.Context, email string) error
		IsSubscribed(ctx context.Context, email string) (bool, error)
		GetActiveSubscribers(ctx context.Context) ([]entity.Subscriber, error)
	}

	Purchases interface {
		AddPurchase(ctx context.Context, p *entity.BookPurchaseInsert) (int, error)
		GetPurchaseBySessionId(ctx context.Context, sessionId string) (*entity.BookPurchase, error)
		// MarkPurchasePaid flips a pending purchase to paid, reporting whether this call did it.
		MarkPurchasePaid(ctx context.Context, sessionId string, amount int64, at time.Time) (bool, error)
		MarkPurchaseExpired(ctx context.Context, sessionId string) error
		// CountPendingPurchases counts pending checkouts with the code created after since.
		CountPendingPurchases(ctx context.Context, code string, since time.Time) (int, error)
	}

	Referrals interface {
		AddReferralCode(ctx context.Context, rc *entity.ReferralCodeInsert) (int, error)
		GetReferralCode(ctx context.Context, code string) (*entity.ReferralCodeStats, error)
		// LockReferralCode is GetReferralCode holding the code row lock until the transaction ends.
		LockReferralCode(ctx context.Context, code string) (*entity.ReferralCodeStats, error)
		ListReferralCodes(ctx context.Context) ([]entity.ReferralCodeStats, error)
		AddRedemption(ctx context.Context, code string, purchaseId int, email string) error
	}

	Repository interface {
		Waitlist() Waitlist
		EmailSends() EmailSends
		DripRuns() DripRuns
		Subscribers() Subscribers
		Purchases() Purchases
		Referrals() Referrals
		Tx(ctx context.Context, f func(context.Context, Repository) error) error
		TxBegin(ctx context.Context) (Repository, error)
		TxCommit(ctx context.Context) error
		TxRollback(ctx context.Context) error
		Now() time.Time
		InTx() bool
		Close()
		Ping(ctx context.Context) error
		IsErrUniqueViolation(err error) bool
		IsErrorRepeat(err error) bool
		DB() DB
	}

	// DB represents database interface.
	DB interface {
		BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
		ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)

		// sqlx methods
		GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
		QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row
		QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error)
		SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	}

	// Mailer renders and delivers transactional emails. Every send returns the provider message id.
	Mailer interface {
		SendConfirmation(ctx context.Context, to string, data *dto.ConfirmationEmail) (string, error)
		SendDrip(ctx context.Context, emailType entity.EmailType, to string, data *dto.DripEmail) (string, error)
		SendPurchaseReceipt(ctx context.Context, to string, data *dto.PurchaseReceipt) (string, error)
		SendNewSubscriber(ctx context.Context, to string, data *dto.NewSubscriber) (string, error)
	}

	// Sender is the part of the SendGrid client the mailer needs.
	Sender interface {
		SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
	}

	// Lease is a held drip run lock.
	Lease interface {
		Release(ctx context.Context, summary *entity.DripRunSummary, runErr error) error
	}

	// RunLocker guards against overlapping drip runs.
	RunLocker interface {
		Acquire(ctx context.Context, runKey string, ttl time.Duration) (Lease, error)
	}

	// CheckoutClient is the part of the Stripe API the purchase flow needs.
	CheckoutClient interface {
		NewSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
		GetSession(id string) (*stripe.CheckoutSession, error)
	}
)
