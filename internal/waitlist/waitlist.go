// Package waitlist implements waitlist signup with double opt-in and the newsletter subscription.
package waitlist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"log/slog"

	v "github.com/asaskevich/govalidator"
	"github.com/google/uuid"
	"github.com/ketowell/waitlist-manager/internal/dependency"
	"github.com/ketowell/waitlist-manager/internal/drip"
	"github.com/ketowell/waitlist-manager/internal/dto"
	"github.com/ketowell/waitlist-manager/internal/entity"
	gerr "github.com/ketowell/waitlist-manager/internal/errors"
)

type Config struct {
	// BaseURL is the public address confirmation and unsubscribe links point to.
	BaseURL string `mapstructure:"base_url"`
}

type Service struct {
	repo   dependency.Repository
	mailer dependency.Mailer
	c      *Config

	now      func() time.Time
	newToken func() string
}

func New(c *Config, repo dependency.Repository, mailer dependency.Mailer) *Service {
	return &Service{
		repo:     repo,
		mailer:   mailer,
		c:        c,
		now:      func() time.Time { return time.Now().UTC() },
		newToken: uuid.NewString,
	}
}

// NormalizeEmail trims and lowercases an address and checks its syntax.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !v.IsEmail(email) {
		return "", gerr.ErrInvalidEmail
	}
	return email, nil
}

// Join adds email to the waitlist and sends the confirmation link. A pending
// signup gets the link again with its original token, a confirmed one is
// reported as ErrAlreadyOnWaitlist. Delivery problems are logged and recorded
// but do not fail the signup.
func (s *Service) Join(ctx context.Context, email, firstName string) (*entity.WaitlistMember, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	firstName = strings.TrimSpace(firstName)

	member, err := s.repo.Waitlist().GetMemberByEmail(ctx, email)
	switch {
	case err == nil:
		if member.Confirmed() {
			return nil, gerr.ErrAlreadyOnWaitlist
		}
	case errors.Is(err, sql.ErrNoRows):
		member, err = s.addMember(ctx, email, firstName)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("can't get waitlist member: %w", err)
	}

	s.sendConfirmation(ctx, member)
	return member, nil
}

func (s *Service) addMember(ctx context.Context, email, firstName string) (*entity.WaitlistMember, error) {
	ins := &entity.WaitlistMemberInsert{
		Email:             email,
		FirstName:         sql.NullString{String: firstName, Valid: firstName != ""},
		ConfirmationToken: s.newToken(),
	}
	id, err := s.repo.Waitlist().AddMember(ctx, ins)
	if err != nil {
		return nil, err
	}
	return &entity.WaitlistMember{
		Id:                id,
		Email:             ins.Email,
		FirstName:         ins.FirstName,
		ConfirmationToken: sql.NullString{String: ins.ConfirmationToken, Valid: true},
		CreatedAt:         s.now(),
	}, nil
}

// sendConfirmation delivers the confirmation email and logs it in the send log
// the same way drip emails are logged.
func (s *Service) sendConfirmation(ctx context.Context, m *entity.WaitlistMember) {
	attemptId := uuid.NewString()
	sends := s.repo.EmailSends()

	_, err := sends.CreateEmailSend(ctx, &entity.EmailSendInsert{
		MemberId:  m.Id,
		EmailType: entity.EmailTypeConfirmation,
		Status:    entity.EmailSendAttempting,
		AttemptId: attemptId,
	})
	if err != nil {
		slog.Default().ErrorContext(ctx, "can't log confirmation attempt",
			slog.Int("member_id", m.Id),
			slog.String("err", err.Error()),
		)
		return
	}

	messageId, sendErr := s.mailer.SendConfirmation(ctx, m.Email, &dto.ConfirmationEmail{
		Preheader:  "Confirm your email to save your spot",
		FirstName:  m.FirstName.String,
		ConfirmURL: s.confirmURL(m.ConfirmationToken.String),
		MemberId:   m.Id,
	})

	outcome := &entity.EmailSendInsert{
		MemberId:  m.Id,
		EmailType: entity.EmailTypeConfirmation,
		Status:    entity.EmailSendSent,
		AttemptId: attemptId,
		MessageId: messageId,
	}
	if sendErr != nil {
		outcome.Status = entity.EmailSendFailed
		outcome.ErrorKind = drip.Classify(sendErr)
		outcome.ErrorMessage = sendErr.Error()
		slog.Default().ErrorContext(ctx, "can't send confirmation email",
			slog.Int("member_id", m.Id),
			slog.String("kind", string(outcome.ErrorKind)),
			slog.String("err", sendErr.Error()),
		)
	}
	if _, err := sends.CreateEmailSend(context.WithoutCancel(ctx), outcome); err != nil {
		slog.Default().ErrorContext(ctx, "can't log confirmation outcome",
			slog.String("attempt_id", attemptId),
			slog.String("err", err.Error()),
		)
	}
}

func (s *Service) confirmURL(token string) string {
	return fmt.Sprintf("%s/api/waitlist/confirm?token=%s", strings.TrimRight(s.c.BaseURL, "/"), url.QueryEscape(token))
}

// Confirm redeems a confirmation token. confirmed_at is set once and the token
// cannot be used again.
func (s *Service) Confirm(ctx context.Context, token string) (*entity.WaitlistMember, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, gerr.ErrInvalidConfirmationToken
	}
	return s.repo.Waitlist().ConfirmMember(ctx, token, s.now())
}
