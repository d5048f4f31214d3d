package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"log/slog"

	"github.com/ketowell/waitlist-manager/app"
	"github.com/ketowell/waitlist-manager/config"
	dripsvc "github.com/ketowell/waitlist-manager/internal/drip"
	"github.com/ketowell/waitlist-manager/internal/entity"
	"github.com/ketowell/waitlist-manager/log"
	"github.com/spf13/cobra"
)

// dripApp is the part of the application the drip command drives.
type dripApp interface {
	Init(ctx context.Context) error
	RunDrip(ctx context.Context) (*entity.DripRunSummary, error)
	Close()
}

var newDripApp = func(cfg *config.Config) dripApp {
	return app.New(cfg)
}

func setup(cmd *cobra.Command, logOut io.Writer) (*config.Config, context.Context, context.CancelFunc, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("cannot load a config: %w", err)
	}
	slog.SetDefault(log.New(logOut, cfg.Logger))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	return cfg, ctx, cancel, nil
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, ctx, cancel, err := setup(cmd, os.Stdout)
	if err != nil {
		return err
	}
	defer cancel()

	a := app.New(cfg)
	defer a.Close()
	if err := a.Init(ctx); err != nil {
		return fmt.Errorf("cannot start the application: %w", err)
	}

	slog.Default().InfoContext(ctx, "application started", slog.String("version", version))
	err = a.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Default().Warn("application exited")
	return nil
}

// drip runs the scheduler once. The summary goes to stdout and logs to stderr,
// a failed run exits non-zero so the cron job is reported.
func drip(cmd *cobra.Command, args []string) error {
	cfg, ctx, cancel, err := setup(cmd, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer cancel()

	a := newDripApp(cfg)
	defer a.Close()
	if err := a.Init(ctx); err != nil {
		return fmt.Errorf("cannot start the application: %w", err)
	}

	summary, runErr := a.RunDrip(ctx)
	if summary != nil {
		if err := dripsvc.WriteSummary(cmd.OutOrStdout(), summary); err != nil {
			return err
		}
	}
	if runErr != nil {
		return fmt.Errorf("drip run failed: %w", runErr)
	}
	return nil
}
