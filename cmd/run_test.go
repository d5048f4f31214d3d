package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/ketowell/waitlist-manager/config"
	"github.com/ketowell/waitlist-manager/internal/entity"
	gerr "github.com/ketowell/waitlist-manager/internal/errors"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDripApp struct {
	initErr error
	summary *entity.DripRunSummary
	runErr  error
	closed  bool
}

func (f *fakeDripApp) Init(ctx context.Context) error {
	slog.Default().InfoContext(ctx, "connected")
	return f.initErr
}

func (f *fakeDripApp) RunDrip(ctx context.Context) (*entity.DripRunSummary, error) {
	return f.summary, f.runErr
}

func (f *fakeDripApp) Close() {
	f.closed = true
}

func runDripCmd(t *testing.T, fa *fakeDripApp) (string, string, error) {
	t.Helper()
	prev := newDripApp
	newDripApp = func(*config.Config) dripApp { return fa }
	t.Cleanup(func() { newDripApp = prev })

	var out, logs bytes.Buffer
	cmd := &cobra.Command{Use: "drip", RunE: drip}
	cmd.SetOut(&out)
	cmd.SetErr(&logs)
	err := drip(cmd, nil)
	return out.String(), logs.String(), err
}

func testSummary() *entity.DripRunSummary {
	s := &entity.DripRunSummary{RunKey: "2026-10-16", Duration: 1500 * time.Millisecond}
	s.Add(entity.DripTypeSummary{EmailType: entity.EmailTypeDay1, Eligible: 3, Sent: 2, Failed: 1,
		FailedByKind: map[entity.FailureKind]int{entity.FailureProviderUnavailable: 1}})
	return s
}

func TestDripCommand(t *testing.T) {
	fa := &fakeDripApp{summary: testSummary()}
	out, logs, err := runDripCmd(t, fa)
	require.NoError(t, err)
	assert.True(t, fa.closed)

	assert.Contains(t, out, "drip run 2026-10-16 finished in 1.5s")
	assert.Contains(t, out, "provider_unavailable=1")
	assert.NotContains(t, out, "connected")
	assert.Contains(t, logs, "connected")
}

func TestDripCommand_RunFails(t *testing.T) {
	fa := &fakeDripApp{summary: testSummary(), runErr: errors.New("database is down")}
	out, _, err := runDripCmd(t, fa)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is down")
	// the partial summary is still printed
	assert.Contains(t, out, "day_1")
}

func TestDripCommand_LeaseHeld(t *testing.T) {
	fa := &fakeDripApp{runErr: gerr.ErrDripRunInProgress}
	out, _, err := runDripCmd(t, fa)
	assert.ErrorIs(t, err, gerr.ErrDripRunInProgress)
	assert.Empty(t, out)
}

func TestDripCommand_InitFails(t *testing.T) {
	fa := &fakeDripApp{initErr: errors.New("can't connect")}
	_, _, err := runDripCmd(t, fa)
	require.Error(t, err)
	assert.True(t, fa.closed)
}
