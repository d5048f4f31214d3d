package mail

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"strconv"

	"log/slog"

	"github.com/google/uuid"
	"github.com/ketowell/waitlist-manager/internal/dependency"
	"github.com/ketowell/waitlist-manager/internal/entity"
	gerr "github.com/ketowell/waitlist-manager/internal/errors"
	"github.com/sendgrid/sendgrid-go/helpers/eventwebhook"
)

// Headers carrying the signed event webhook signature.
const (
	SignatureHeader = "X-Twilio-Email-Event-Webhook-Signature"
	TimestampHeader = "X-Twilio-Email-Event-Webhook-Timestamp"
)

const (
	eventBounce  = "bounce"
	eventDropped = "dropped"
)

// Event is one entry of a SendGrid event webhook batch. Custom args set on the
// message are flattened into the event.
type Event struct {
	Email     string `json:"email"`
	Event     string `json:"event"`
	MessageId string `json:"sg_message_id"`
	Reason    string `json:"reason"`
	Timestamp int64  `json:"timestamp"`
	AttemptId string `json:"attempt_id"`
	MemberId  string `json:"member_id"`
	EmailType string `json:"email_type"`
}

// Undeliverable reports whether the event marks the address as unreachable.
func (e *Event) Undeliverable() bool {
	return e.Event == eventBounce || e.Event == eventDropped
}

// EventVerifier checks signed event webhook payloads.
type EventVerifier struct {
	key *ecdsa.PublicKey
}

func NewEventVerifier(base64Key string) (*EventVerifier, error) {
	key, err := eventwebhook.ConvertPublicKeyBase64ToECDSA(base64Key)
	if err != nil {
		return nil, fmt.Errorf("can't parse webhook verification key: %w", err)
	}
	return &EventVerifier{key: key}, nil
}

// Parse verifies the payload signature and decodes the event batch.
func (v *EventVerifier) Parse(payload []byte, signature, timestamp string) ([]Event, error) {
	ok, err := eventwebhook.VerifySignature(v.key, payload, signature, timestamp)
	if err != nil || !ok {
		return nil, gerr.ErrInvalidWebhook
	}
	var events []Event
	if err := json.Unmarshal(payload, &events); err != nil {
		return nil, fmt.Errorf("can't decode events: %w", err)
	}
	return events, nil
}

// RecordBounces appends a bounced row for every undeliverable event that can
// be traced back to a waitlist member. SendGrid redelivers failed batches, so an
// event whose bounced row already exists is skipped. It returns the number of
// rows written.
func RecordBounces(ctx context.Context, sends dependency.EmailSends, events []Event) (int, error) {
	n := 0
	for _, e := range events {
		if !e.Undeliverable() {
			continue
		}
		memberId, err := strconv.Atoi(e.MemberId)
		et := entity.EmailType(e.EmailType)
		if err != nil || !et.Valid() {
			slog.Default().DebugContext(ctx, "skipping untraceable event",
				slog.String("event", e.Event),
				slog.String("message_id", e.MessageId),
			)
			continue
		}
		attemptId := e.bounceAttemptId()

		history, err := sends.ListEmailSends(ctx, memberId)
		if err != nil {
			return n, fmt.Errorf("can't check bounces for member %d: %w", memberId, err)
		}
		if hasBounce(history, attemptId) {
			continue
		}

		_, err = sends.CreateEmailSend(ctx, &entity.EmailSendInsert{
			MemberId:     memberId,
			EmailType:    et,
			Status:       entity.EmailSendBounced,
			AttemptId:    attemptId,
			MessageId:    e.MessageId,
			ErrorMessage: fmt.Sprintf("%s: %s", e.Event, e.Reason),
		})
		if err != nil {
			return n, fmt.Errorf("can't record bounce for member %d: %w", memberId, err)
		}
		n++
	}
	return n, nil
}

// bounceAttemptId is the attempt the event belongs to. Messages sent without an
// attempt id get one derived from the event itself, stable across redeliveries.
func (e *Event) bounceAttemptId() string {
	if e.AttemptId != "" {
		return e.AttemptId
	}
	name := fmt.Sprintf("%s|%s|%s|%s|%d", e.MemberId, e.EmailType, e.MessageId, e.Event, e.Timestamp)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

func hasBounce(history []entity.EmailSendRecord, attemptId string) bool {
	for _, r := range history {
		if r.Status == entity.EmailSendBounced && r.AttemptId == attemptId {
			return true
		}
	}
	return false
}
