package httpapi

import (
	"errors"
	"net/http"
	"net/url"

	"log/slog"

	"github.com/go-chi/render"
	clientid "github.com/ketowell/waitlist-manager/internal/middleware"
	"github.com/ketowell/waitlist-manager/internal/waitlist"
)

type JoinRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
}

func (j *JoinRequest) Bind(r *http.Request) error {
	if j.Email == "" {
		return errors.New("email is required")
	}
	return nil
}

func (s *Server) joinWaitlist(w http.ResponseWriter, r *http.Request) {
	req := &JoinRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	email, err := waitlist.NormalizeEmail(req.Email)
	if err != nil {
		render.Render(w, r, ErrFromService(r, err))
		return
	}
	if err := s.limiter.CheckSignup(clientid.GetClientIP(r.Context()), email); err != nil {
		render.Render(w, r, ErrFromService(r, err))
		return
	}

	if _, err := s.d.Waitlist.Join(r.Context(), email, req.FirstName); err != nil {
		render.Render(w, r, ErrFromService(r, err))
		return
	}
	render.Render(w, r, &StatusResponse{
		HTTPStatusCode: http.StatusAccepted,
		Status:         "confirmation_sent",
	})
}

func (s *Server) confirmWaitlist(w http.ResponseWriter, r *http.Request) {
	m, err := s.d.Waitlist.Confirm(r.Context(), r.URL.Query().Get("token"))

	if s.c.ConfirmRedirectURL != "" {
		status := "confirmed"
		if err != nil {
			status = "invalid"
			if code, _ := statusOf(err); code >= http.StatusInternalServerError {
				status = "error"
				slog.Default().ErrorContext(r.Context(), "can't confirm waitlist member", slog.String("err", err.Error()))
			}
		}
		http.Redirect(w, r, s.c.ConfirmRedirectURL+"?status="+url.QueryEscape(status), http.StatusSeeOther)
		return
	}

	if err != nil {
		render.Render(w, r, ErrFromService(r, err))
		return
	}
	render.Render(w, r, NewMemberResponse(m))
}

type NewsletterRequest struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

func (n *NewsletterRequest) Bind(r *http.Request) error {
	if n.Email == "" {
		return errors.New("email is required")
	}
	return nil
}

func (s *Server) subscribeNewsletter(w http.ResponseWriter, r *http.Request) {
	req := &NewsletterRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	if err := s.limiter.CheckSignup(clientid.GetClientIP(r.Context()), req.Email); err != nil {
		render.Render(w, r, ErrFromService(r, err))
		return
	}
	if err := s.d.Waitlist.Subscribe(r.Context(), req.Email, req.Name); err != nil {
		render.Render(w, r, ErrFromService(r, err))
		return
	}
	render.Render(w, r, &StatusResponse{HTTPStatusCode: http.StatusCreated, Status: "subscribed"})
}

func (s *Server) unsubscribeNewsletter(w http.ResponseWriter, r *http.Request) {
	req := &NewsletterRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	if err := s.d.Waitlist.Unsubscribe(r.Context(), req.Email); err != nil {
		render.Render(w, r, ErrFromService(r, err))
		return
	}
	render.Render(w, r, &StatusResponse{Status: "unsubscribed"})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.d.Repo.Ping(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("db unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
