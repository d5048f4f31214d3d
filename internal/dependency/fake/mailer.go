package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ketowell/waitlist-manager/internal/dependency"
	"github.com/ketowell/waitlist-manager/internal/dto"
	"github.com/ketowell/waitlist-manager/internal/entity"
)

// Sent is one message accepted by the fake mailer.
type Sent struct {
	Kind      string
	To        string
	EmailType entity.EmailType
	Data      any
	MessageId string
}

// Mailer records messages instead of delivering them.
type Mailer struct {
	mu    sync.Mutex
	sent  []Sent
	calls int

	// Fail, when set, decides the error for each delivery attempt. call counts
	// attempts across all messages, starting at 1.
	Fail func(kind, to string, emailType entity.EmailType, call int) error
	// Delay is the latency of every delivery attempt.
	Delay time.Duration
}

var _ dependency.Mailer = (*Mailer)(nil)

// Sent returns accepted messages in delivery order.
func (m *Mailer) Sent() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Sent(nil), m.sent...)
}

// Calls returns the number of delivery attempts, failed ones included.
func (m *Mailer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *Mailer) deliver(ctx context.Context, kind, to string, et entity.EmailType, data any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	m.calls++
	call := m.calls
	fail := m.Fail
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(m.Delay):
		}
	}

	if fail != nil {
		if err := fail(kind, to, et, call); err != nil {
			return "", err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	id := fmt.Sprintf("msg-%d", call)
	m.sent = append(m.sent, Sent{Kind: kind, To: to, EmailType: et, Data: data, MessageId: id})
	return id, nil
}

func (m *Mailer) SendConfirmation(ctx context.Context, to string, data *dto.ConfirmationEmail) (string, error) {
	return m.deliver(ctx, "confirmation", to, entity.EmailTypeConfirmation, data)
}

func (m *Mailer) SendDrip(ctx context.Context, emailType entity.EmailType, to string, data *dto.DripEmail) (string, error) {
	return m.deliver(ctx, "drip", to, emailType, data)
}

func (m *Mailer) SendPurchaseReceipt(ctx context.Context, to string, data *dto.PurchaseReceipt) (string, error) {
	return m.deliver(ctx, "purchase_receipt", to, "", data)
}

func (m *Mailer) SendNewSubscriber(ctx context.Context, to string, data *dto.NewSubscriber) (string, error) {
	return m.deliver(ctx, "new_subscriber", to, "", data)
}
