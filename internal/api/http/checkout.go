package httpapi

import (
	"errors"
	"io"
	"net/http"

	"log/slog"

	"github.com/go-chi/render"
	"github.com/ketowell/waitlist-manager/internal/entity"
	"github.com/ketowell/waitlist-manager/internal/mail"
	clientid "github.com/ketowell/waitlist-manager/internal/middleware"
)

const (
	maxWebhookBody        = 1 << 20
	stripeSignatureHeader = "Stripe-Signature"
)

type CheckoutRequest struct {
	Email        string `json:"email"`
	ReferralCode string `json:"referralCode,omitempty"`
}

func (c *CheckoutRequest) Bind(r *http.Request) error {
	if c.Email == "" {
		return errors.New("email is required")
	}
	return nil
}

type CheckoutResponse struct {
	*entity.Checkout
}

func (c *CheckoutResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, http.StatusCreated)
	return nil
}

func (s *Server) createCheckout(w http.ResponseWriter, r *http.Request) {
	req := &CheckoutRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	if err := s.limiter.CheckCheckout(clientid.GetClientIP(r.Context()), req.Email); err != nil {
		render.Render(w, r, ErrFromService(r, err))
		return
	}
	co, err := s.d.Purchase.CreateCheckout(r.Context(), req.Email, req.ReferralCode)
	if err != nil {
		render.Render(w, r, ErrFromService(r, err))
		return
	}
	render.Render(w, r, &CheckoutResponse{Checkout: co})
}

func (s *Server) verifyCheckout(w http.ResponseWriter, r *http.Request) {
	p, err := s.d.Purchase.VerifySession(r.Context(), r.URL.Query().Get("session_id"))
	if err != nil {
		render.Render(w, r, ErrFromService(r, err))
		return
	}
	render.Render(w, r, NewPurchaseResponse(p))
}

func (s *Server) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	if err := s.d.Purchase.HandleWebhook(r.Context(), payload, r.Header.Get(stripeSignatureHeader)); err != nil {
		render.Render(w, r, ErrFromService(r, err))
		return
	}
	render.Render(w, r, &StatusResponse{Status: "ok"})
}

func (s *Server) sendgridWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	events, err := s.d.Events.Parse(payload, r.Header.Get(mail.SignatureHeader), r.Header.Get(mail.TimestampHeader))
	if err != nil {
		render.Render(w, r, ErrFromService(r, err))
		return
	}
	n, err := mail.RecordBounces(r.Context(), s.d.Repo.EmailSends(), events)
	if err != nil {
		render.Render(w, r, ErrFromService(r, err))
		return
	}
	if n > 0 {
		slog.Default().InfoContext(r.Context(), "recorded bounces", slog.Int("count", n))
	}
	render.Render(w, r, &StatusResponse{Status: "ok"})
}
