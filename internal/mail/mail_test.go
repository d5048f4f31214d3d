package mail

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/ketowell/waitlist-manager/internal/dto"
	"github.com/ketowell/waitlist-manager/internal/entity"
	gerr "github.com/ketowell/waitlist-manager/internal/errors"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent []*mail.SGMailV3
	resp *rest.Response
	err  error
}

func (f *fakeSender) SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error) {
	f.sent = append(f.sent, email)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func accepted(id string) *rest.Response {
	return &rest.Response{
		StatusCode: http.StatusAccepted,
		Headers:    map[string][]string{"X-Message-Id": {id}},
	}
}

func testConfig() *Config {
	return &Config{
		APIKey:    "SG.test",
		FromEmail: "hello@ketowell.test",
		FromName:  "KetoWell",
		ReplyTo:   "support@ketowell.test",
		BaseURL:   "https://ketowell.test",
	}
}

func newTestMailer(t *testing.T, s *fakeSender) *Mailer {
	t.Helper()
	m, err := NewWithSender(testConfig(), s)
	require.NoError(t, err)
	return m
}

func TestNewWithSender_IncompleteConfig(t *testing.T) {
	_, err := NewWithSender(&Config{FromEmail: "a@b.c"}, &fakeSender{})
	assert.Error(t, err)

	_, err = New(&Config{FromEmail: "a@b.c", FromName: "x"})
	assert.Error(t, err)
}

func TestTemplatesHaveSubjects(t *testing.T) {
	m := newTestMailer(t, &fakeSender{})
	for tn := range templateSubjects {
		_, ok := m.templates[tn]
		assert.True(t, ok, "missing template %s", tn)
	}
	assert.Len(t, m.templates, len(templateSubjects))
}

func TestSendDrip(t *testing.T) {
	s := &fakeSender{resp: accepted("msg-123")}
	m := newTestMailer(t, s)

	id, err := m.SendDrip(context.Background(), entity.EmailTypeDay3, "ann@example.com", &dto.DripEmail{
		FirstName:      "Ann",
		IdempotencyKey: "attempt-1",
		MemberId:       42,
	})
	require.NoError(t, err)
	assert.Equal(t, "msg-123", id)

	require.Len(t, s.sent, 1)
	msg := s.sent[0]
	assert.Equal(t, templateSubjects[Day3], msg.Subject)
	assert.Equal(t, "ann@example.com", msg.Personalizations[0].To[0].Address)
	assert.Equal(t, "support@ketowell.test", msg.ReplyTo.Address)
	assert.Equal(t, map[string]string{
		"attempt_id": "attempt-1",
		"member_id":  "42",
		"email_type": "day_3",
	}, msg.CustomArgs)
	require.Len(t, msg.Content, 1)
	assert.Contains(t, msg.Content[0].Value, "Ann")
	assert.Contains(t, msg.Content[0].Value, "https://ketowell.test/recipes")
}

func TestSendDrip_NotDrip(t *testing.T) {
	s := &fakeSender{resp: accepted("x")}
	m := newTestMailer(t, s)
	_, err := m.SendDrip(context.Background(), entity.EmailTypeConfirmation, "a@b.c", &dto.DripEmail{})
	assert.Error(t, err)
	assert.Empty(t, s.sent)
}

func TestSendDayHelpers(t *testing.T) {
	s := &fakeSender{resp: accepted("x")}
	m := newTestMailer(t, s)
	ctx := context.Background()

	_, err := m.SendDay1Email(ctx, "a@b.c", &dto.DripEmail{})
	require.NoError(t, err)
	_, err = m.SendDay3Email(ctx, "a@b.c", &dto.DripEmail{})
	require.NoError(t, err)
	_, err = m.SendDay7Email(ctx, "a@b.c", &dto.DripEmail{})
	require.NoError(t, err)

	require.Len(t, s.sent, 3)
	assert.Equal(t, templateSubjects[Day1], s.sent[0].Subject)
	assert.Equal(t, templateSubjects[Day3], s.sent[1].Subject)
	assert.Equal(t, templateSubjects[Day7], s.sent[2].Subject)
}

func TestSendConfirmation_EscapesInput(t *testing.T) {
	s := &fakeSender{resp: accepted("x")}
	m := newTestMailer(t, s)

	_, err := m.SendConfirmation(context.Background(), "a@b.c", &dto.ConfirmationEmail{
		FirstName:  "<script>",
		ConfirmURL: "https://ketowell.test/confirm?token=abc",
		MemberId:   7,
	})
	require.NoError(t, err)
	body := s.sent[0].Content[0].Value
	assert.NotContains(t, body, "<script>")
	assert.Contains(t, body, "https://ketowell.test/confirm?token=abc")
	assert.Equal(t, "7", s.sent[0].CustomArgs["member_id"])

	_, err = m.SendConfirmation(context.Background(), "a@b.c", &dto.ConfirmationEmail{})
	assert.Error(t, err)
}

func TestSendPurchaseReceipt(t *testing.T) {
	s := &fakeSender{resp: accepted("x")}
	m := newTestMailer(t, s)

	_, err := m.SendPurchaseReceipt(context.Background(), "a@b.c", &dto.PurchaseReceipt{
		Email:        "a@b.c",
		Amount:       "17.99",
		Currency:     "USD",
		ReferralCode: "FRIEND10",
		DownloadURL:  "https://ketowell.test/download/abc",
	})
	require.NoError(t, err)
	assert.Contains(t, s.sent[0].Content[0].Value, "FRIEND10")

	_, err = m.SendPurchaseReceipt(context.Background(), "a@b.c", &dto.PurchaseReceipt{})
	assert.Error(t, err)
}

func TestSendNewSubscriber(t *testing.T) {
	s := &fakeSender{resp: accepted("x")}
	m := newTestMailer(t, s)
	_, err := m.SendNewSubscriber(context.Background(), "a@b.c", &dto.NewSubscriber{Name: "Bo"})
	require.NoError(t, err)
	assert.Equal(t, templateSubjects[NewSubscriber], s.sent[0].Subject)
}

func TestSendErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		resp *rest.Response
		err  error
		want error
	}{
		{
			name: "rate limited",
			resp: &rest.Response{StatusCode: http.StatusTooManyRequests},
			want: gerr.MailApiLimitReached,
		},
		{
			name: "server error",
			resp: &rest.Response{StatusCode: http.StatusBadGateway},
			want: gerr.ErrProviderUnavailable,
		},
		{
			name: "transport error",
			err:  errors.New("connection reset"),
			want: gerr.ErrProviderUnavailable,
		},
		{
			name: "invalid address",
			resp: &rest.Response{
				StatusCode: http.StatusBadRequest,
				Body:       `{"errors":[{"message":"Does not contain a valid address.","field":"personalizations.0.to.0.email"}]}`,
			},
			want: gerr.ErrInvalidRecipient,
		},
		{
			name: "other bad request",
			resp: &rest.Response{StatusCode: http.StatusBadRequest, Body: `{"errors":[{"message":"The subject is required."}]}`},
			want: gerr.BadMailRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMailer(t, &fakeSender{resp: tt.resp, err: tt.err})
			_, err := m.SendDay1Email(context.Background(), "a@b.c", &dto.DripEmail{})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
