// Package fake provides in-memory implementations of the dependency interfaces for tests.
package fake

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ketowell/waitlist-manager/internal/dependency"
	"github.com/ketowell/waitlist-manager/internal/drip"
	"github.com/ketowell/waitlist-manager/internal/entity"
	gerr "github.com/ketowell/waitlist-manager/internal/errors"
	"github.com/shopspring/decimal"
)

// Store is an in-memory Repository. Errors can be injected per operation.
type Store struct {
	mu sync.Mutex
	// txMu serializes Tx callers the way row locks serialize them in MySQL.
	txMu sync.Mutex

	Clock func() time.Time

	members     []entity.WaitlistMember
	sends       []entity.EmailSendRecord
	runs        map[string]*entity.DripRun
	subscribers []entity.Subscriber
	purchases   []entity.BookPurchase
	codes       []entity.ReferralCode
	redemptions []entity.ReferralRedemption

	// EligibilityErr fails GetMembersForDripEmail for the given type.
	EligibilityErr map[entity.EmailType]error
	// CreateSendErr, when set, is consulted before every send log insert.
	CreateSendErr func(es *entity.EmailSendInsert) error
	// ReconcileErr fails ReconcileStaleAttempts.
	ReconcileErr error
}

func NewStore(clock func() time.Time) *Store {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Store{
		Clock:          clock,
		runs:           map[string]*entity.DripRun{},
		EligibilityErr: map[entity.EmailType]error{},
	}
}

var _ dependency.Repository = (*Store)(nil)

func (s *Store) Waitlist() dependency.Waitlist       { return s }
func (s *Store) EmailSends() dependency.EmailSends   { return s }
func (s *Store) DripRuns() dependency.DripRuns       { return s }
func (s *Store) Subscribers() dependency.Subscribers { return s }
func (s *Store) Purchases() dependency.Purchases     { return s }
func (s *Store) Referrals() dependency.Referrals     { return s }

func (s *Store) Tx(ctx context.Context, f func(context.Context, dependency.Repository) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return f(ctx, s)
}
func (s *Store) TxBegin(ctx context.Context) (dependency.Repository, error) { return s, nil }
func (s *Store) TxCommit(ctx context.Context) error                         { return nil }
func (s *Store) TxRollback(ctx context.Context) error                       { return nil }
func (s *Store) Now() time.Time                                             { return s.Clock() }
func (s *Store) InTx() bool                                                 { return false }
func (s *Store) Close()                                                     {}
func (s *Store) Ping(ctx context.Context) error                             { return nil }
func (s *Store) IsErrUniqueViolation(err error) bool                        { return false }
func (s *Store) IsErrorRepeat(err error) bool                               { return false }
func (s *Store) DB() dependency.DB                                          { return nil }

// AddConfirmed seeds a confirmed member and returns its id.
func (s *Store) AddConfirmed(email, firstName string, confirmedAt time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addMember(entity.WaitlistMember{
		Email:       email,
		FirstName:   sql.NullString{String: firstName, Valid: firstName != ""},
		ConfirmedAt: sql.NullTime{Time: confirmedAt, Valid: true},
		CreatedAt:   confirmedAt,
	})
}

// AddUnconfirmed seeds a member who never confirmed.
func (s *Store) AddUnconfirmed(email, token string, createdAt time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addMember(entity.WaitlistMember{
		Email:             email,
		ConfirmationToken: sql.NullString{String: token, Valid: token != ""},
		CreatedAt:         createdAt,
	})
}

func (s *Store) addMember(m entity.WaitlistMember) int {
	m.Id = len(s.members) + 1
	s.members = append(s.members, m)
	return m.Id
}

// Sends returns a copy of the send log.
func (s *Store) Sends() []entity.EmailSendRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entity.EmailSendRecord(nil), s.sends...)
}

// Run returns the run marker for runKey.
func (s *Store) Run(runKey string) (entity.DripRun, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runKey]
	if !ok {
		return entity.DripRun{}, false
	}
	return *r, true
}

// Waitlist

func (s *Store) AddMember(ctx context.Context, m *entity.WaitlistMemberInsert) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.members {
		if existing.Email == m.Email {
			return 0, gerr.ErrAlreadyOnWaitlist
		}
	}
	return s.addMember(entity.WaitlistMember{
		Email:             m.Email,
		FirstName:         m.FirstName,
		ConfirmationToken: sql.NullString{String: m.ConfirmationToken, Valid: m.ConfirmationToken != ""},
		CreatedAt:         s.Clock(),
	}), nil
}

func (s *Store) GetMemberByEmail(ctx context.Context, email string) (*entity.WaitlistMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.members {
		if m.Email == email {
			return &m, nil
		}
	}
	return nil, fmt.Errorf("failed to get waitlist member by email: %w", sql.ErrNoRows)
}

func (s *Store) GetMemberById(ctx context.Context, id int) (*entity.WaitlistMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 1 || id > len(s.members) {
		return nil, fmt.Errorf("failed to get waitlist member by id: %w", sql.ErrNoRows)
	}
	m := s.members[id-1]
	return &m, nil
}

func (s *Store) ConfirmMember(ctx context.Context, token string, at time.Time) (*entity.WaitlistMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.members {
		m := &s.members[i]
		if !m.ConfirmationToken.Valid || m.ConfirmationToken.String != token {
			continue
		}
		m.ConfirmationToken = sql.NullString{}
		if !m.ConfirmedAt.Valid {
			m.ConfirmedAt = sql.NullTime{Time: at, Valid: true}
		}
		out := *m
		return &out, nil
	}
	return nil, gerr.ErrInvalidConfirmationToken
}

func (s *Store) GetMembersForDripEmail(ctx context.Context, emailType entity.EmailType, cutoff time.Time) ([]entity.WaitlistMember, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.EligibilityErr[emailType]; err != nil {
		return nil, err
	}
	var out []entity.WaitlistMember
	for _, m := range s.members {
		if !m.Confirmed() || m.ConfirmedAt.Time.After(cutoff) {
			continue
		}
		if drip.Suppressed(s.history(m.Id), emailType) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) GetWaitlistStats(ctx context.Context) (*entity.WaitlistStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := &entity.WaitlistStats{Total: len(s.members)}
	for _, m := range s.members {
		if m.Confirmed() {
			st.Confirmed++
		}
	}
	return st, nil
}

// EmailSends

func (s *Store) history(memberId int) []entity.EmailSendRecord {
	var out []entity.EmailSendRecord
	for _, r := range s.sends {
		if r.MemberId == memberId {
			out = append(out, r)
		}
	}
	return out
}

func (s *Store) CreateEmailSend(ctx context.Context, es *entity.EmailSendInsert) (int, error) {
	if s.CreateSendErr != nil {
		if err := s.CreateSendErr(es); err != nil {
			return 0, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendSend(*es, s.Clock()), nil
}

func (s *Store) appendSend(es entity.EmailSendInsert, at time.Time) int {
	r := entity.EmailSendRecord{
		Id:           len(s.sends) + 1,
		MemberId:     es.MemberId,
		EmailType:    es.EmailType,
		Status:       es.Status,
		AttemptId:    es.AttemptId,
		MessageId:    sql.NullString{String: es.MessageId, Valid: es.MessageId != ""},
		ErrorKind:    sql.NullString{String: string(es.ErrorKind), Valid: es.ErrorKind != ""},
		ErrorMessage: sql.NullString{String: es.ErrorMessage, Valid: es.ErrorMessage != ""},
		CreatedAt:    at,
	}
	s.sends = append(s.sends, r)
	return r.Id
}

func (s *Store) HasEmailBeenSent(ctx context.Context, memberId int, emailType entity.EmailType) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.sends {
		if r.MemberId == memberId && r.EmailType == emailType && r.Status == entity.EmailSendSent {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListEmailSends(ctx context.Context, memberId int) ([]entity.EmailSendRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history(memberId), nil
}

func (s *Store) ReconcileStaleAttempts(ctx context.Context, olderThan time.Time) (int, error) {
	if s.ReconcileErr != nil {
		return 0, s.ReconcileErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	closed := map[string]bool{}
	for _, r := range s.sends {
		if r.Status != entity.EmailSendAttempting {
			closed[r.AttemptId] = true
		}
	}
	n := 0
	now := s.Clock()
	for _, r := range s.sends {
		if r.Status != entity.EmailSendAttempting || closed[r.AttemptId] || !r.CreatedAt.Before(olderThan) {
			continue
		}
		s.appendSend(entity.EmailSendInsert{
			MemberId:     r.MemberId,
			EmailType:    r.EmailType,
			Status:       entity.EmailSendUnknown,
			AttemptId:    r.AttemptId,
			ErrorKind:    entity.FailureInterrupted,
			ErrorMessage: "attempt never recorded an outcome",
		}, now)
		closed[r.AttemptId] = true
		n++
	}
	return n, nil
}

func (s *Store) GetEmailSendStats(ctx context.Context) ([]entity.EmailSendStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	type key struct {
		et entity.EmailType
		st entity.EmailSendStatus
	}
	counts := map[key]int{}
	for _, r := range s.sends {
		if r.Status == entity.EmailSendAttempting {
			continue
		}
		counts[key{r.EmailType, r.Status}]++
	}
	out := make([]entity.EmailSendStats, 0, len(counts))
	for k, n := range counts {
		out = append(out, entity.EmailSendStats{EmailType: k.et, Status: k.st, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EmailType != out[j].EmailType {
			return out[i].EmailType < out[j].EmailType
		}
		return out[i].Status < out[j].Status
	})
	return out, nil
}

// DripRuns

func (s *Store) AcquireLease(ctx context.Context, runKey, owner string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Clock()
	if r, ok := s.runs[runKey]; ok && r.LeaseUntil.After(now) {
		return false, nil
	}
	s.runs[runKey] = &entity.DripRun{
		RunKey:     runKey,
		Owner:      owner,
		LeaseUntil: now.Add(ttl),
		StartedAt:  now,
	}
	return true, nil
}

func (s *Store) ReleaseLease(ctx context.Context, runKey, owner string, summary *entity.DripRunSummary, runErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runKey]
	if !ok || r.Owner != owner || r.FinishedAt.Valid {
		return gerr.ErrLeaseLost
	}
	now := s.Clock()
	r.LeaseUntil = now
	r.FinishedAt = sql.NullTime{Time: now, Valid: true}
	if summary != nil {
		r.Sent, r.Failed = summary.Sent, summary.Failed
	}
	if runErr != nil {
		r.Error = sql.NullString{String: runErr.Error(), Valid: true}
	}
	return nil
}

func (s *Store) ListDripRuns(ctx context.Context, limit int) ([]entity.DripRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.DripRun, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Subscribers

func (s *Store) Subscribe(ctx context.Context, email, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.subscribers {
		if s.subscribers[i].Email == email {
			if s.subscribers[i].ReceiveEmails {
				return gerr.ErrAlreadySubscribed
			}
			s.subscribers[i].ReceiveEmails = true
			return nil
		}
	}
	s.subscribers = append(s.subscribers, entity.Subscriber{
		ID:            len(s.subscribers) + 1,
		Name:          name,
		Email:         email,
		ReceiveEmails: true,
		CreatedAt:     s.Clock(),
	})
	return nil
}

func (s *Store) Unsubscribe(ctx context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.subscribers {
		if s.subscribers[i].Email == email {
			s.subscribers[i].ReceiveEmails = false
		}
	}
	return nil
}

func (s *Store) IsSubscribed(ctx context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subscribers {
		if sub.Email == email {
			return sub.ReceiveEmails, nil
		}
	}
	return false, nil
}

func (s *Store) GetActiveSubscribers(ctx context.Context) ([]entity.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.Subscriber
	for _, sub := range s.subscribers {
		if sub.ReceiveEmails {
			out = append(out, sub)
		}
	}
	return out, nil
}

// Purchases

func (s *Store) AddPurchase(ctx context.Context, p *entity.BookPurchaseInsert) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bp := entity.BookPurchase{
		Id:                len(s.purchases) + 1,
		CheckoutSessionId: p.CheckoutSessionId,
		Email:             p.Email,
		ReferralCode:      sql.NullString{String: p.ReferralCode, Valid: p.ReferralCode != ""},
		Amount:            p.Amount,
		Currency:          p.Currency,
		Status:            entity.PurchasePending,
		CreatedAt:         s.Clock(),
	}
	s.purchases = append(s.purchases, bp)
	return bp.Id, nil
}

func (s *Store) GetPurchaseBySessionId(ctx context.Context, sessionId string) (*entity.BookPurchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.purchases {
		if p.CheckoutSessionId == sessionId {
			return &p, nil
		}
	}
	return nil, gerr.ErrPurchaseNotFound
}

func (s *Store) MarkPurchasePaid(ctx context.Context, sessionId string, amount int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.purchases {
		p := &s.purchases[i]
		if p.CheckoutSessionId != sessionId || p.Status != entity.PurchasePending {
			continue
		}
		p.Status = entity.PurchasePaid
		p.PaidAt = sql.NullTime{Time: at, Valid: true}
		p.Amount = decimal.New(amount, -2)
		return true, nil
	}
	return false, nil
}

func (s *Store) MarkPurchaseExpired(ctx context.Context, sessionId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.purchases {
		p := &s.purchases[i]
		if p.CheckoutSessionId == sessionId && p.Status == entity.PurchasePending {
			p.Status = entity.PurchaseExpired
		}
	}
	return nil
}

func (s *Store) CountPendingPurchases(ctx context.Context, code string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.purchases {
		if p.ReferralCode.String == code && p.Status == entity.PurchasePending && p.CreatedAt.After(since) {
			n++
		}
	}
	return n, nil
}

// Referrals

func (s *Store) AddReferralCode(ctx context.Context, rc *entity.ReferralCodeInsert) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code := entity.ReferralCode{
		Id:              len(s.codes) + 1,
		Code:            rc.Code,
		OwnerEmail:      rc.OwnerEmail,
		DiscountPercent: rc.DiscountPercent,
		MaxRedemptions:  rc.MaxRedemptions,
		Active:          true,
		CreatedAt:       s.Clock(),
	}
	s.codes = append(s.codes, code)
	return code.Id, nil
}

// DeactivateReferralCode marks a seeded code inactive.
func (s *Store) DeactivateReferralCode(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.codes {
		if s.codes[i].Code == code {
			s.codes[i].Active = false
		}
	}
}

func (s *Store) codeStats(rc entity.ReferralCode) entity.ReferralCodeStats {
	n := 0
	for _, r := range s.redemptions {
		if r.Code == rc.Code {
			n++
		}
	}
	return entity.ReferralCodeStats{ReferralCode: rc, Redemptions: n}
}

func (s *Store) GetReferralCode(ctx context.Context, code string) (*entity.ReferralCodeStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rc := range s.codes {
		if rc.Code == code {
			st := s.codeStats(rc)
			return &st, nil
		}
	}
	return nil, gerr.ErrReferralCodeNotFound
}

func (s *Store) LockReferralCode(ctx context.Context, code string) (*entity.ReferralCodeStats, error) {
	return s.GetReferralCode(ctx, code)
}

func (s *Store) ListReferralCodes(ctx context.Context) ([]entity.ReferralCodeStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.ReferralCodeStats, 0, len(s.codes))
	for _, rc := range s.codes {
		out = append(out, s.codeStats(rc))
	}
	return out, nil
}

func (s *Store) AddRedemption(ctx context.Context, code string, purchaseId int, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.redemptions {
		if r.PurchaseId == purchaseId {
			return nil
		}
	}
	s.redemptions = append(s.redemptions, entity.ReferralRedemption{
		Id:         len(s.redemptions) + 1,
		Code:       code,
		PurchaseId: purchaseId,
		Email:      email,
		CreatedAt:  s.Clock(),
	})
	return nil
}
