package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"log/slog"

	"github.com/ketowell/waitlist-manager/internal/auth"
	"github.com/ketowell/waitlist-manager/internal/dependency"
	"github.com/ketowell/waitlist-manager/internal/drip"
	"github.com/ketowell/waitlist-manager/internal/mail"
	"github.com/ketowell/waitlist-manager/internal/purchase"
	"github.com/ketowell/waitlist-manager/internal/ratelimit"
	"github.com/ketowell/waitlist-manager/internal/waitlist"
	"github.com/prometheus/client_golang/prometheus"
)

// Config is the configuration for the http server
type Config struct {
	Port           string        `mapstructure:"port"`
	Address        string        `mapstructure:"address"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// RequestsPerMinute caps public requests per client IP.
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	// ConfirmRedirectURL, when set, turns the confirmation link into a redirect
	// to this page with a status query parameter instead of a JSON response.
	ConfirmRedirectURL string           `mapstructure:"confirm_redirect_url"`
	Limits             ratelimit.Limits `mapstructure:"limits"`
}

// Deps are the services behind the API. Purchase and Events are optional,
// their routes are not mounted when nil.
type Deps struct {
	Repo     dependency.Repository
	Waitlist *waitlist.Service
	Purchase *purchase.Service
	Drip     *drip.Scheduler
	Auth     *auth.Auth
	Events   *mail.EventVerifier
	Gatherer prometheus.Gatherer
}

// Server is the http server
type Server struct {
	hs      *http.Server
	c       *Config
	d       Deps
	limiter *ratelimit.MultiKeyLimiter
}

// New creates a new server
func New(c *Config, d Deps) *Server {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = 120
	}
	if c.Limits == (ratelimit.Limits{}) {
		c.Limits = ratelimit.DefaultLimits()
	}
	s := &Server{
		c:       c,
		d:       d,
		limiter: ratelimit.NewMultiKeyLimiter(c.Limits),
	}
	s.hs = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", c.Address, c.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until ctx is done, then shuts the listener down gracefully.
func (s *Server) Start(ctx context.Context) error {
	go s.limiter.Run(ctx, time.Minute)

	errc := make(chan error, 1)
	go func() {
		slog.Default().InfoContext(ctx, "http server listening", slog.String("addr", s.hs.Addr))
		errc <- s.hs.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("http server exited: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := s.hs.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Default().InfoContext(ctx, "http server returned")
	return nil
}
