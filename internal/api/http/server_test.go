package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ketowell/waitlist-manager/internal/auth"
	"github.com/ketowell/waitlist-manager/internal/dependency/fake"
	"github.com/ketowell/waitlist-manager/internal/drip"
	"github.com/ketowell/waitlist-manager/internal/dto"
	"github.com/ketowell/waitlist-manager/internal/entity"
	"github.com/ketowell/waitlist-manager/internal/purchase"
	"github.com/ketowell/waitlist-manager/internal/ratelimit"
	"github.com/ketowell/waitlist-manager/internal/waitlist"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
)

type fakeCheckout struct {
	n int
}

func (f *fakeCheckout) NewSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.n++
	id := fmt.Sprintf("cs_test_%d", f.n)
	return &stripe.CheckoutSession{ID: id, URL: "https://checkout.stripe.com/pay/" + id}, nil
}

func (f *fakeCheckout) GetSession(id string) (*stripe.CheckoutSession, error) {
	return &stripe.CheckoutSession{ID: id, PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid}, nil
}

type env struct {
	store  *fake.Store
	mailer *fake.Mailer
	h      http.Handler
}

func newEnv(t *testing.T, mut func(*Config)) *env {
	t.Helper()
	store := fake.NewStore(nil)
	mailer := &fake.Mailer{}

	pur, err := purchase.New(&purchase.Config{
		WebhookSecret: "whsec_test",
		ProductName:   "The KetoWell Book",
		Price:         "20.00",
		Currency:      "usd",
	}, store, mailer, &fakeCheckout{})
	require.NoError(t, err)

	a, err := auth.New(&auth.Config{JWTSecret: "secret", MasterPassword: "master", JWTTTL: "1h"})
	require.NoError(t, err)

	dc := drip.DefaultConfig()
	dc.SendInterval = 0
	reg := prometheus.NewRegistry()

	c := &Config{
		Limits: ratelimit.Limits{SignupsPerIP: 100, SignupsPerEmail: 100, CheckoutsPerIP: 100, CheckoutsPerEmail: 100},
	}
	if mut != nil {
		mut(c)
	}
	s := New(c, Deps{
		Repo:     store,
		Waitlist: waitlist.New(&waitlist.Config{BaseURL: "https://ketowell.com"}, store, mailer),
		Purchase: pur,
		Drip:     drip.New(&dc, store, mailer, nil, drip.NewMetrics(reg)),
		Auth:     a,
		Gatherer: reg,
	})
	return &env{store: store, mailer: mailer, h: s.Router()}
}

func (e *env) do(t *testing.T, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	for k, v := range header {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.h.ServeHTTP(w, r)
	return w
}

func (e *env) adminHeader(t *testing.T) map[string]string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/auth/login", `{"password":"master"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return map[string]string{"Authorization": "Bearer " + resp.AuthToken}
}

func TestJoinAndConfirm(t *testing.T) {
	e := newEnv(t, nil)

	w := e.do(t, http.MethodPost, "/api/waitlist", `{"email":"ada@example.com","firstName":"Ada"}`, nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	sent := e.mailer.Sent()
	require.Len(t, sent, 1)
	confirmURL := sent[0].Data.(*dto.ConfirmationEmail).ConfirmURL
	_, token, ok := strings.Cut(confirmURL, "token=")
	require.True(t, ok)

	w = e.do(t, http.MethodGet, "/api/waitlist/confirm?token="+token, "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var member MemberResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &member))
	assert.True(t, member.Confirmed)
	assert.Equal(t, "ada@example.com", member.Email)

	w = e.do(t, http.MethodGet, "/api/waitlist/confirm?token="+token, "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, "/api/waitlist", `{"email":"ada@example.com"}`, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestJoin_BadRequests(t *testing.T) {
	e := newEnv(t, nil)

	w := e.do(t, http.MethodPost, "/api/waitlist", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, "/api/waitlist", `{"email":"nope"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp ErrResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "invalid email address", resp.ErrorText)
}

func TestJoin_RateLimited(t *testing.T) {
	e := newEnv(t, func(c *Config) {
		c.Limits.SignupsPerEmail = 1
	})

	w := e.do(t, http.MethodPost, "/api/waitlist", `{"email":"bo@example.com"}`, nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	w = e.do(t, http.MethodPost, "/api/waitlist", `{"email":"bo@example.com"}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestConfirm_Redirect(t *testing.T) {
	e := newEnv(t, func(c *Config) {
		c.ConfirmRedirectURL = "https://ketowell.com/waitlist/confirmed"
	})
	e.store.AddUnconfirmed("cy@example.com", "tok", time.Now())

	w := e.do(t, http.MethodGet, "/api/waitlist/confirm?token=tok", "", nil)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "https://ketowell.com/waitlist/confirmed?status=confirmed", w.Header().Get("Location"))

	w = e.do(t, http.MethodGet, "/api/waitlist/confirm?token=tok", "", nil)
	assert.Equal(t, "https://ketowell.com/waitlist/confirmed?status=invalid", w.Header().Get("Location"))
}

func TestNewsletter(t *testing.T) {
	e := newEnv(t, nil)

	w := e.do(t, http.MethodPost, "/api/newsletter", `{"email":"dee@example.com","name":"Dee"}`, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = e.do(t, http.MethodPost, "/api/newsletter", `{"email":"dee@example.com"}`, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.do(t, http.MethodDelete, "/api/newsletter", `{"email":"dee@example.com"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	ok, err := e.store.IsSubscribed(context.Background(), "dee@example.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckout(t *testing.T) {
	e := newEnv(t, nil)

	w := e.do(t, http.MethodPost, "/api/checkout", `{"email":"eve@example.com"}`, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var co struct {
		SessionId string `json:"sessionId"`
		URL       string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &co))
	assert.Equal(t, "cs_test_1", co.SessionId)

	w = e.do(t, http.MethodGet, "/api/checkout/verify?session_id=cs_test_1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var p PurchaseResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, entity.PurchasePending, p.Status)
	assert.Equal(t, "20.00", p.Amount)

	w = e.do(t, http.MethodPost, "/api/checkout", `{"email":"eve@example.com","referralCode":"MISSING"}`, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodGet, "/api/checkout/verify?session_id=cs_nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStripeWebhook_BadSignature(t *testing.T) {
	e := newEnv(t, nil)
	w := e.do(t, http.MethodPost, "/api/webhooks/stripe", `{"id":"evt_1"}`, map[string]string{
		"Stripe-Signature": "t=1,v1=00",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdmin_RequiresToken(t *testing.T) {
	e := newEnv(t, nil)

	w := e.do(t, http.MethodGet, "/api/admin/email-stats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(t, http.MethodPost, "/api/auth/login", `{"password":"wrong"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdmin_DripRunAndStats(t *testing.T) {
	e := newEnv(t, nil)
	h := e.adminHeader(t)
	e.store.AddConfirmed("fay@example.com", "Fay", time.Now().Add(-36*time.Hour))
	e.store.AddUnconfirmed("gus@example.com", "tok", time.Now())

	w := e.do(t, http.MethodPost, "/api/admin/drip/run", "", h)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var summary entity.DripRunSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.Sent)
	assert.Equal(t, 0, summary.Failed)

	w = e.do(t, http.MethodPost, "/api/admin/drip/run", "", h)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, 0, summary.Sent)

	w = e.do(t, http.MethodGet, "/api/admin/waitlist-stats", "", h)
	require.Equal(t, http.StatusOK, w.Code)
	var ws entity.WaitlistStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ws))
	assert.Equal(t, entity.WaitlistStats{Total: 2, Confirmed: 1}, ws)

	w = e.do(t, http.MethodGet, "/api/admin/email-stats", "", h)
	require.Equal(t, http.StatusOK, w.Code)
	var es []entity.EmailSendStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &es))
	require.Len(t, es, 1)
	assert.Equal(t, entity.EmailSendStats{EmailType: entity.EmailTypeDay1, Status: entity.EmailSendSent, Count: 1}, es[0])

	w = e.do(t, http.MethodGet, "/api/admin/drip-runs?limit=5", "", h)
	require.Equal(t, http.StatusOK, w.Code)
	var runs []DripRunResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, drip.RunKey(time.Now()), runs[0].RunKey)
	assert.NotNil(t, runs[0].FinishedAt)

	w = e.do(t, http.MethodGet, "/api/admin/drip-runs?limit=zero", "", h)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodGet, "/api/admin/members/fay@example.com/sends", "", h)
	require.Equal(t, http.StatusOK, w.Code)
	var sends []EmailSendResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sends))
	require.Len(t, sends, 2)
	assert.Equal(t, entity.EmailSendAttempting, sends[0].Status)
	assert.Equal(t, entity.EmailSendSent, sends[1].Status)

	w = e.do(t, http.MethodGet, "/api/admin/members/Fay@Example.COM/sends", "", h)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sends))
	assert.Len(t, sends, 2)

	w = e.do(t, http.MethodGet, "/api/admin/members/nobody@example.com/sends", "", h)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodGet, "/api/admin/members/not-an-email/sends", "", h)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdmin_ReferralCodes(t *testing.T) {
	e := newEnv(t, nil)
	h := e.adminHeader(t)

	w := e.do(t, http.MethodPost, "/api/admin/referral-codes",
		`{"code":"friend","ownerEmail":"owner@example.com","discountPercent":"25","maxRedemptions":10}`, h)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = e.do(t, http.MethodPost, "/api/admin/referral-codes",
		`{"ownerEmail":"owner@example.com","discountPercent":"250"}`, h)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodGet, "/api/admin/referral-codes", "", h)
	require.Equal(t, http.StatusOK, w.Code)
	var codes []entity.ReferralCodeStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &codes))
	require.Len(t, codes, 1)
	assert.Equal(t, "FRIEND", codes[0].Code)
	assert.Equal(t, "25", codes[0].DiscountPercent.String())
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEnv(t, nil)

	w := e.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	h := e.adminHeader(t)
	e.do(t, http.MethodPost, "/api/admin/drip/run", "", h)

	w = e.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "drip_runs_total")
}

func TestCORS(t *testing.T) {
	e := newEnv(t, func(c *Config) {
		c.AllowedOrigins = []string{"https://ketowell.com"}
	})

	w := e.do(t, http.MethodGet, "/healthz", "", map[string]string{"Origin": "https://ketowell.com"})
	assert.Equal(t, "https://ketowell.com", w.Header().Get("Access-Control-Allow-Origin"))

	w = e.do(t, http.MethodGet, "/healthz", "", map[string]string{"Origin": "https://evil.example"})
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
