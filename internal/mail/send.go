package mail

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ketowell/waitlist-manager/internal/dto"
	"github.com/ketowell/waitlist-manager/internal/entity"
)

type templateName string

const (
	Confirmation    templateName = "confirmation.gohtml"
	Day1            templateName = "day_1.gohtml"
	Day3            templateName = "day_3.gohtml"
	Day7            templateName = "day_7.gohtml"
	PurchaseReceipt templateName = "purchase_receipt.gohtml"
	NewSubscriber   templateName = "new_subscriber.gohtml"
)

// Define a map for template names to subjects
var templateSubjects = map[templateName]string{
	Confirmation:    "Confirm your spot on the KetoWell waitlist",
	Day1:            "Welcome to KetoWell: your first step",
	Day3:            "Three days in: what to eat this week",
	Day7:            "One week with KetoWell",
	PurchaseReceipt: "Your KetoWell book receipt",
	NewSubscriber:   "Welcome to the KetoWell newsletter",
}

var dripTemplates = map[entity.EmailType]templateName{
	entity.EmailTypeDay1: Day1,
	entity.EmailTypeDay3: Day3,
	entity.EmailTypeDay7: Day7,
}

// Custom args attached to drip emails, echoed back by event webhooks.
const (
	argAttemptId = "attempt_id"
	argMemberId  = "member_id"
	argEmailType = "email_type"
)

// SendConfirmation sends the double opt-in link to a new waitlist member.
func (m *Mailer) SendConfirmation(ctx context.Context, to string, data *dto.ConfirmationEmail) (string, error) {
	if data.ConfirmURL == "" {
		return "", fmt.Errorf("incomplete confirmation details: %+v", data)
	}
	args := map[string]string{
		argEmailType: entity.EmailTypeConfirmation.String(),
	}
	if data.MemberId != 0 {
		args[argMemberId] = strconv.Itoa(data.MemberId)
	}
	msg, err := m.buildMessage(to, Confirmation, data, args)
	if err != nil {
		return "", err
	}
	return m.send(ctx, msg)
}

// SendDrip sends one of the drip campaign emails.
func (m *Mailer) SendDrip(ctx context.Context, emailType entity.EmailType, to string, data *dto.DripEmail) (string, error) {
	tn, ok := dripTemplates[emailType]
	if !ok {
		return "", fmt.Errorf("not a drip email type: %q", emailType)
	}
	if data.BaseURL == "" {
		data.BaseURL = m.c.BaseURL
	}
	args := map[string]string{
		argEmailType: emailType.String(),
	}
	if data.IdempotencyKey != "" {
		args[argAttemptId] = data.IdempotencyKey
	}
	if data.MemberId != 0 {
		args[argMemberId] = strconv.Itoa(data.MemberId)
	}
	msg, err := m.buildMessage(to, tn, data, args)
	if err != nil {
		return "", err
	}
	return m.send(ctx, msg)
}

func (m *Mailer) SendDay1Email(ctx context.Context, to string, data *dto.DripEmail) (string, error) {
	return m.SendDrip(ctx, entity.EmailTypeDay1, to, data)
}

func (m *Mailer) SendDay3Email(ctx context.Context, to string, data *dto.DripEmail) (string, error) {
	return m.SendDrip(ctx, entity.EmailTypeDay3, to, data)
}

func (m *Mailer) SendDay7Email(ctx context.Context, to string, data *dto.DripEmail) (string, error) {
	return m.SendDrip(ctx, entity.EmailTypeDay7, to, data)
}

// SendPurchaseReceipt sends the book receipt with the download link.
func (m *Mailer) SendPurchaseReceipt(ctx context.Context, to string, data *dto.PurchaseReceipt) (string, error) {
	if data.Amount == "" || data.DownloadURL == "" {
		return "", fmt.Errorf("incomplete receipt details: %+v", data)
	}
	msg, err := m.buildMessage(to, PurchaseReceipt, data, nil)
	if err != nil {
		return "", err
	}
	return m.send(ctx, msg)
}

// SendNewSubscriber sends a welcome email to a new newsletter subscriber.
func (m *Mailer) SendNewSubscriber(ctx context.Context, to string, data *dto.NewSubscriber) (string, error) {
	msg, err := m.buildMessage(to, NewSubscriber, data, nil)
	if err != nil {
		return "", err
	}
	return m.send(ctx, msg)
}
