package httpapi

import (
	"errors"
	"net/http"
	"time"

	"log/slog"

	"github.com/go-chi/render"
	"github.com/ketowell/waitlist-manager/internal/entity"
	gerr "github.com/ketowell/waitlist-manager/internal/errors"
)

type ErrResponse struct {
	Err            error `json:"-"` // low-level runtime error
	HTTPStatusCode int   `json:"-"` // http response status code

	StatusText string `json:"status"`          // user-level status message
	ErrorText  string `json:"error,omitempty"` // application-level error message
}

func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func ErrInvalidRequest(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusBadRequest,
		StatusText:     "Invalid request.",
		ErrorText:      err.Error(),
	}
}

var ErrNotFound = &ErrResponse{HTTPStatusCode: http.StatusNotFound, StatusText: "Resource not found."}

var ErrTooManyRequests = &ErrResponse{
	HTTPStatusCode: http.StatusTooManyRequests,
	StatusText:     http.StatusText(http.StatusTooManyRequests),
	ErrorText:      gerr.ErrTooManyRequests.Error(),
}

var errStatus = []struct {
	err    error
	status int
}{
	{gerr.ErrInvalidEmail, http.StatusBadRequest},
	{gerr.ErrInvalidConfirmationToken, http.StatusBadRequest},
	{gerr.ErrInvalidReferralCode, http.StatusBadRequest},
	{gerr.ErrCheckoutAmountTooLow, http.StatusBadRequest},
	{gerr.ErrInvalidWebhook, http.StatusBadRequest},
	{gerr.ErrNotAuthenticated, http.StatusUnauthorized},
	{gerr.ErrReferralCodeNotFound, http.StatusNotFound},
	{gerr.ErrPurchaseNotFound, http.StatusNotFound},
	{gerr.ErrAlreadyOnWaitlist, http.StatusConflict},
	{gerr.ErrAlreadySubscribed, http.StatusConflict},
	{gerr.ErrReferralCodeExhausted, http.StatusConflict},
	{gerr.ErrDripRunInProgress, http.StatusConflict},
	{gerr.ErrTooManyRequests, http.StatusTooManyRequests},
}

// statusOf returns the response status for err and the sentinel it matched.
func statusOf(err error) (int, error) {
	for _, es := range errStatus {
		if errors.Is(err, es.err) {
			return es.status, es.err
		}
	}
	return http.StatusInternalServerError, nil
}

// ErrFromService maps service errors to responses. Unknown errors are logged
// and reported as internal errors without details.
func ErrFromService(r *http.Request, err error) render.Renderer {
	status, known := statusOf(err)
	if known != nil {
		return &ErrResponse{
			Err:            err,
			HTTPStatusCode: status,
			StatusText:     http.StatusText(status),
			ErrorText:      known.Error(),
		}
	}
	slog.Default().ErrorContext(r.Context(), "request failed",
		slog.String("path", r.URL.Path),
		slog.String("err", err.Error()),
	)
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: status,
		StatusText:     http.StatusText(status),
	}
}

// StatusResponse is a bare acknowledgement.
type StatusResponse struct {
	HTTPStatusCode int    `json:"-"`
	Status         string `json:"status"`
}

func (s *StatusResponse) Render(w http.ResponseWriter, r *http.Request) error {
	if s.HTTPStatusCode != 0 {
		render.Status(r, s.HTTPStatusCode)
	}
	return nil
}

type MemberResponse struct {
	Email       string     `json:"email"`
	Confirmed   bool       `json:"confirmed"`
	ConfirmedAt *time.Time `json:"confirmedAt,omitempty"`
}

func NewMemberResponse(m *entity.WaitlistMember) *MemberResponse {
	resp := &MemberResponse{
		Email:     m.Email,
		Confirmed: m.Confirmed(),
	}
	if m.ConfirmedAt.Valid {
		resp.ConfirmedAt = &m.ConfirmedAt.Time
	}
	return resp
}

func (m *MemberResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

type PurchaseResponse struct {
	SessionId string                `json:"sessionId"`
	Email     string                `json:"email"`
	Status    entity.PurchaseStatus `json:"status"`
	Amount    string                `json:"amount"`
	Currency  string                `json:"currency"`
	PaidAt    *time.Time            `json:"paidAt,omitempty"`
}

func NewPurchaseResponse(p *entity.BookPurchase) *PurchaseResponse {
	resp := &PurchaseResponse{
		SessionId: p.CheckoutSessionId,
		Email:     p.Email,
		Status:    p.Status,
		Amount:    p.Amount.StringFixed(2),
		Currency:  p.Currency,
	}
	if p.PaidAt.Valid {
		resp.PaidAt = &p.PaidAt.Time
	}
	return resp
}

func (p *PurchaseResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

type DripRunResponse struct {
	entity.DripRun
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Error      string     `json:"error,omitempty"`
}

func NewDripRunListResponse(runs []entity.DripRun) []render.Renderer {
	list := []render.Renderer{}
	for _, run := range runs {
		resp := &DripRunResponse{DripRun: run, Error: run.Error.String}
		if run.FinishedAt.Valid {
			resp.FinishedAt = &run.FinishedAt.Time
		}
		list = append(list, resp)
	}
	return list
}

func (d *DripRunResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

type EmailSendResponse struct {
	EmailType    entity.EmailType       `json:"emailType"`
	Status       entity.EmailSendStatus `json:"status"`
	AttemptId    string                 `json:"attemptId"`
	MessageId    string                 `json:"messageId,omitempty"`
	ErrorKind    string                 `json:"errorKind,omitempty"`
	ErrorMessage string                 `json:"errorMessage,omitempty"`
	CreatedAt    time.Time              `json:"createdAt"`
}

func NewEmailSendListResponse(sends []entity.EmailSendRecord) []render.Renderer {
	list := []render.Renderer{}
	for _, es := range sends {
		list = append(list, &EmailSendResponse{
			EmailType:    es.EmailType,
			Status:       es.Status,
			AttemptId:    es.AttemptId,
			MessageId:    es.MessageId.String,
			ErrorKind:    es.ErrorKind.String,
			ErrorMessage: es.ErrorMessage.String,
			CreatedAt:    es.CreatedAt,
		})
	}
	return list
}

func (e *EmailSendResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}
