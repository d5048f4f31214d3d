package httpapi

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/ketowell/waitlist-manager/internal/entity"
	"github.com/ketowell/waitlist-manager/internal/waitlist"
	"github.com/shopspring/decimal"
)

const defaultDripRunsLimit = 30

type LoginRequest struct {
	Password string `json:"password"`
}

func (l *LoginRequest) Bind(r *http.Request) error {
	if l.Password == "" {
		return errors.New("password is required")
	}
	return nil
}

type LoginResponse struct {
	AuthToken string `json:"authToken"`
}

func (l *LoginResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	req := &LoginRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	token, err := s.d.Auth.Login(req.Password)
	if err != nil {
		render.Render(w, r, ErrFromService(r, err))
		return
	}
	render.Render(w, r, &LoginResponse{AuthToken: token})
}

func (s *Server) emailStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.d.Repo.EmailSends().GetEmailSendStats(r.Context())
	if err != nil {
		render.Render(w, r, ErrFromService(r, err))
		return
	}
	if stats == nil {
		stats = []entity.EmailSendStats{}
	}
	render.JSON(w, r, stats)
}

func (s *Server) waitlistStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.d.Repo.Waitlist().GetWaitlistStats(r.Context())
	if err != nil {
		render.Render(w, r, ErrFromService(r, err))
		return
	}
	render.JSON(w, r, stats)
}

func (s *Server) dripRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultDripRunsLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			render.Render(w, r, ErrInvalidRequest(errors.New("limit must be a positive integer")))
			return
		}
		limit = n
	}
	runs, err := s.d.Repo.DripRuns().ListDripRuns(r.Context(), limit)
	if err != nil {
		render.Render(w, r, ErrFromService(r, err))
		return
	}
	render.RenderList(w, r, NewDripRunListResponse(runs))
}

func (s *Server) memberSends(w http.ResponseWriter, r *http.Request) {
	email, err := waitlist.NormalizeEmail(chi.URLParam(r, "email"))
	if err != nil {
		render.Render(w, r, ErrFromService(r, err))
		return
	}
	m, err := s.d.Repo.Waitlist().GetMemberByEmail(r.Context(), email)
	if errors.Is(err, sql.ErrNoRows) {
		render.Render(w, r, ErrNotFound)
		return
	}
	if err != nil {
		render.Render(w, r, ErrFromService(r, err))
		return
	}
	sends, err := s.d.Repo.EmailSends().ListEmailSends(r.Context(), m.Id)
	if err != nil {
		render.Render(w, r, ErrFromService(r, err))
		return
	}
	render.RenderList(w, r, NewEmailSendListResponse(sends))
}

func (s *Server) listReferralCodes(w http.ResponseWriter, r *http.Request) {
	codes, err := s.d.Repo.Referrals().ListReferralCodes(r.Context())
	if err != nil {
		render.Render(w, r, ErrFromService(r, err))
		return
	}
	if codes == nil {
		codes = []entity.ReferralCodeStats{}
	}
	render.JSON(w, r, codes)
}

type ReferralCodeRequest struct {
	Code            string          `json:"code,omitempty"`
	OwnerEmail      string          `json:"ownerEmail"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
	MaxRedemptions  int             `json:"maxRedemptions"`
}

func (rc *ReferralCodeRequest) Bind(r *http.Request) error {
	if rc.OwnerEmail == "" {
		return errors.New("ownerEmail is required")
	}
	return nil
}

func (s *Server) createReferralCode(w http.ResponseWriter, r *http.Request) {
	req := &ReferralCodeRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	rc, err := s.d.Purchase.CreateReferralCode(r.Context(), &entity.ReferralCodeInsert{
		Code:            req.Code,
		OwnerEmail:      req.OwnerEmail,
		DiscountPercent: req.DiscountPercent,
		MaxRedemptions:  req.MaxRedemptions,
	})
	if err != nil {
		render.Render(w, r, ErrFromService(r, err))
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, rc)
}

// runDrip runs the campaign synchronously and returns its summary. The run
// continues if the caller goes away.
func (s *Server) runDrip(w http.ResponseWriter, r *http.Request) {
	summary, err := s.d.Drip.Run(context.WithoutCancel(r.Context()))
	if err != nil {
		render.Render(w, r, ErrFromService(r, err))
		return
	}
	render.JSON(w, r, summary)
}
