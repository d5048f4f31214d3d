package mail

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/ketowell/waitlist-manager/internal/dependency"
	gerr "github.com/ketowell/waitlist-manager/internal/errors"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

//go:embed templates/*.gohtml
var templatesFS embed.FS

const messageIdHeader = "X-Message-Id"

type Config struct {
	APIKey    string `mapstructure:"sendgrid_api_key"`
	FromEmail string `mapstructure:"from_email"`
	FromName  string `mapstructure:"from_email_name"`
	ReplyTo   string `mapstructure:"reply_to"`
	// BaseURL is the public site address used to build links in emails.
	BaseURL string `mapstructure:"base_url"`
	// WebhookVerificationKey is the base64 public key of the signed event webhook.
	WebhookVerificationKey string `mapstructure:"webhook_verification_key"`
}

type Mailer struct {
	cli       dependency.Sender
	from      *mail.Email
	replyTo   *mail.Email
	c         *Config
	templates map[templateName]*template.Template
}

// New creates a mailer backed by the SendGrid v3 API.
func New(c *Config) (*Mailer, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("incomplete config: sendgrid api key is empty")
	}
	return NewWithSender(c, sendgrid.NewSendClient(c.APIKey))
}

// NewWithSender creates a mailer delivering through cli.
func NewWithSender(c *Config, cli dependency.Sender) (*Mailer, error) {
	if c.FromEmail == "" || c.FromName == "" {
		return nil, fmt.Errorf("incomplete config: from email and name are required")
	}

	m := &Mailer{
		cli:       cli,
		from:      mail.NewEmail(c.FromName, c.FromEmail),
		c:         c,
		templates: make(map[templateName]*template.Template),
	}
	if c.ReplyTo != "" {
		m.replyTo = mail.NewEmail(c.FromName, c.ReplyTo)
	}

	if err := m.parseTemplates(); err != nil {
		return nil, fmt.Errorf("error parsing templates: %w", err)
	}

	return m, nil
}

func (m *Mailer) parseTemplates() error {
	templateDir := "templates"

	dirEntries, err := templatesFS.ReadDir(templateDir)
	if err != nil {
		return fmt.Errorf("error reading template directory: %w", err)
	}

	for _, entry := range dirEntries {
		if entry.IsDir() {
			continue
		}

		templatePath := filepath.Join(templateDir, entry.Name())

		tmpl, err := template.ParseFS(templatesFS, templatePath)
		if err != nil {
			return fmt.Errorf("error parsing template '%s': %w", entry.Name(), err)
		}

		m.templates[templateName(entry.Name())] = tmpl
	}

	return nil
}

// buildMessage renders tn into a single recipient message. customArgs are
// echoed back by the provider in event webhooks.
func (m *Mailer) buildMessage(to string, tn templateName, data any, customArgs map[string]string) (*mail.SGMailV3, error) {
	tmpl, ok := m.templates[tn]
	if !ok {
		return nil, fmt.Errorf("template not found: %v", tn)
	}

	subject, ok := templateSubjects[tn]
	if !ok {
		return nil, fmt.Errorf("subject not found for template: %v", tn)
	}

	body := &strings.Builder{}
	if err := tmpl.Execute(body, data); err != nil {
		return nil, fmt.Errorf("error executing template: %w", err)
	}

	msg := mail.NewV3Mail()
	msg.SetFrom(m.from)
	msg.Subject = subject
	if m.replyTo != nil {
		msg.SetReplyTo(m.replyTo)
	}

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail("", to))
	msg.AddPersonalizations(p)
	msg.AddContent(mail.NewContent("text/html", body.String()))

	for k, v := range customArgs {
		msg.SetCustomArg(k, v)
	}

	return msg, nil
}

// send delivers msg and returns the provider message id.
func (m *Mailer) send(ctx context.Context, msg *mail.SGMailV3) (string, error) {
	resp, err := m.cli.SendWithContext(ctx, msg)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %v", gerr.ErrProviderUnavailable, err)
	}
	if err := classifyResponse(resp); err != nil {
		return "", err
	}
	return messageId(resp), nil
}

// classifyResponse maps a provider response onto the failure taxonomy.
func classifyResponse(resp *rest.Response) error {
	if resp == nil {
		return gerr.ErrProviderUnavailable
	}
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return gerr.MailApiLimitReached
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status code %d", gerr.ErrProviderUnavailable, resp.StatusCode)
	case isRecipientRejection(resp):
		return fmt.Errorf("%w: %s", gerr.ErrInvalidRecipient, resp.Body)
	default:
		return fmt.Errorf("%w: status code %d: %s", gerr.BadMailRequest, resp.StatusCode, resp.Body)
	}
}

func isRecipientRejection(resp *rest.Response) bool {
	if resp.StatusCode != http.StatusBadRequest && resp.StatusCode != http.StatusForbidden {
		return false
	}
	body := strings.ToLower(resp.Body)
	return strings.Contains(body, "valid address") ||
		strings.Contains(body, "personalizations.0.to") ||
		strings.Contains(body, "recipient")
}

func messageId(resp *rest.Response) string {
	return http.Header(resp.Headers).Get(messageIdHeader)
}
