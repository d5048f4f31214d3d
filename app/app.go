package app

import (
	"context"
	"fmt"

	"log/slog"

	"github.com/ketowell/waitlist-manager/config"
	httpapi "github.com/ketowell/waitlist-manager/internal/api/http"
	"github.com/ketowell/waitlist-manager/internal/auth"
	"github.com/ketowell/waitlist-manager/internal/dependency"
	"github.com/ketowell/waitlist-manager/internal/drip"
	"github.com/ketowell/waitlist-manager/internal/entity"
	"github.com/ketowell/waitlist-manager/internal/mail"
	"github.com/ketowell/waitlist-manager/internal/purchase"
	"github.com/ketowell/waitlist-manager/internal/runlock"
	"github.com/ketowell/waitlist-manager/internal/store"
	"github.com/ketowell/waitlist-manager/internal/waitlist"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// App is the main application
type App struct {
	c   *config.Config
	db  dependency.Repository
	rdb *redis.Client
	reg *prometheus.Registry

	mailer    *mail.Mailer
	scheduler *drip.Scheduler
}

// New returns a new instance of App
func New(c *config.Config) *App {
	return &App{c: c}
}

// Init connects to the database, the mailer and, when configured, Redis, and
// builds the drip scheduler. It is shared by the serve and drip commands.
func (a *App) Init(ctx context.Context) error {
	db, err := store.New(ctx, a.c.DB)
	if err != nil {
		return fmt.Errorf("couldn't connect to mysql: %w", err)
	}
	a.db = db

	a.mailer, err = mail.New(&a.c.Mailer)
	if err != nil {
		return fmt.Errorf("couldn't create mailer: %w", err)
	}

	a.reg = prometheus.NewRegistry()
	a.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var locker dependency.RunLocker
	if a.c.RunLock.Addr != "" {
		a.rdb, err = runlock.NewClient(ctx, &a.c.RunLock)
		if err != nil {
			return err
		}
		locker = runlock.New(a.rdb, a.c.RunLock.Prefix, a.db.DripRuns())
		slog.Default().InfoContext(ctx, "drip runs are locked in redis", slog.String("addr", a.c.RunLock.Addr))
	}

	a.scheduler = drip.New(&a.c.Drip, a.db, a.mailer, locker, drip.NewMetrics(a.reg))
	return nil
}

// Scheduler returns the drip scheduler. Init must have been called.
func (a *App) Scheduler() *drip.Scheduler {
	return a.scheduler
}

// Serve runs the http api and, if configured, the drip worker until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	authS, err := auth.New(&a.c.Auth)
	if err != nil {
		return fmt.Errorf("failed create auth: %w", err)
	}

	deps := httpapi.Deps{
		Repo:     a.db,
		Waitlist: waitlist.New(&a.c.Waitlist, a.db, a.mailer),
		Drip:     a.scheduler,
		Auth:     authS,
		Gatherer: a.reg,
	}

	if a.c.Stripe.SecretKey != "" {
		deps.Purchase, err = purchase.New(&a.c.Stripe, a.db, a.mailer, purchase.NewStripeClient(a.c.Stripe.SecretKey))
		if err != nil {
			return fmt.Errorf("failed create purchase service: %w", err)
		}
	} else {
		slog.Default().WarnContext(ctx, "stripe secret key is not set, checkout is disabled")
	}

	if a.c.Mailer.WebhookVerificationKey != "" {
		deps.Events, err = mail.NewEventVerifier(a.c.Mailer.WebhookVerificationKey)
		if err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	hs := httpapi.New(&a.c.HTTP, deps)
	g.Go(func() error {
		return hs.Start(ctx)
	})

	if a.c.Drip.WorkerInterval > 0 {
		w := drip.NewWorker(a.scheduler, a.c.Drip.WorkerInterval)
		if err := w.Start(ctx); err != nil {
			return err
		}
		slog.Default().InfoContext(ctx, "drip worker started", slog.Duration("interval", a.c.Drip.WorkerInterval))
		g.Go(func() error {
			<-ctx.Done()
			return w.Stop()
		})
	}

	return g.Wait()
}

// Close releases connections opened by Init.
func (a *App) Close() {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			slog.Default().Error("can't close redis client", slog.String("err", err.Error()))
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}

// RunDrip performs a single drip run. Init must have been called.
func (a *App) RunDrip(ctx context.Context) (*entity.DripRunSummary, error) {
	return a.scheduler.Run(ctx)
}
