package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-chi/render"
	clientid "github.com/ketowell/waitlist-manager/internal/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router builds the http handler with every route mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			return isOriginAllowed(origin, s.c.AllowedOrigins)
		},
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodOptions,
			http.MethodDelete,
		},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(middleware.RequestID)
	r.Use(clientid.ClientIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	if s.d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		// Provider webhooks are signed and retried, they are exempt from the per-IP limit.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.c.RequestTimeout))
			if s.d.Purchase != nil {
				r.Post("/webhooks/stripe", s.stripeWebhook)
			}
			if s.d.Events != nil {
				r.Post("/webhooks/sendgrid", s.sendgridWebhook)
			}
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.c.RequestTimeout))
			r.Use(httprate.Limit(
				s.c.RequestsPerMinute,
				time.Minute,
				httprate.WithKeyFuncs(clientIPKey),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					render.Render(w, r, ErrTooManyRequests)
				}),
			))

			r.Post("/waitlist", s.joinWaitlist)
			r.Get("/waitlist/confirm", s.confirmWaitlist)
			r.Post("/newsletter", s.subscribeNewsletter)
			r.Delete("/newsletter", s.unsubscribeNewsletter)
			if s.d.Purchase != nil {
				r.Post("/checkout", s.createCheckout)
				r.Get("/checkout/verify", s.verifyCheckout)
			}
			r.Post("/auth/login", s.login)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.d.Auth.WithAuth)
			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(s.c.RequestTimeout))
				r.Get("/email-stats", s.emailStats)
				r.Get("/drip-runs", s.dripRuns)
				r.Get("/waitlist-stats", s.waitlistStats)
				r.Get("/members/{email}/sends", s.memberSends)
				if s.d.Purchase != nil {
					r.Get("/referral-codes", s.listReferralCodes)
					r.Post("/referral-codes", s.createReferralCode)
				}
			})
			// A drip run outlives the request timeout.
			r.Post("/drip/run", s.runDrip)
		})
	})

	return r
}

func clientIPKey(r *http.Request) (string, error) {
	return clientid.GetClientIP(r.Context()), nil
}

func isOriginAllowed(origin string, allowedOrigins []string) bool {
	for _, allowedOrigin := range allowedOrigins {
		if allowedOrigin == "*" || origin == allowedOrigin {
			return true
		}
	}
	return false
}
