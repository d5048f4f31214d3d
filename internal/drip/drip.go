package drip

import (
	"context"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/ketowell/waitlist-manager/internal/dependency"
	"github.com/ketowell/waitlist-manager/internal/dto"
	"github.com/ketowell/waitlist-manager/internal/entity"
	gerr "github.com/ketowell/waitlist-manager/internal/errors"
	"github.com/lestrrat-go/backoff/v2"
	"golang.org/x/time/rate"
)

// Config holds configuration for the drip campaign scheduler.
type Config struct {
	// SendInterval is the pause between two sends of the same batch. Zero disables pacing.
	SendInterval time.Duration `mapstructure:"send_interval"`
	// LeaseTTL bounds how long a crashed run keeps other runs out.
	LeaseTTL time.Duration `mapstructure:"lease_ttl"`
	// StaleAttemptAfter is the age after which an attempt without outcome is closed as unknown.
	StaleAttemptAfter   time.Duration `mapstructure:"stale_attempt_after"`
	RateLimitRetries    int           `mapstructure:"rate_limit_retries"`
	RateLimitBackoff    time.Duration `mapstructure:"rate_limit_backoff"`
	RateLimitMaxBackoff time.Duration `mapstructure:"rate_limit_max_backoff"`
	// WorkerInterval enables the in-process worker when positive.
	WorkerInterval time.Duration `mapstructure:"worker_interval"`
}

// DefaultConfig returns default configuration values.
func DefaultConfig() Config {
	return Config{
		SendInterval:        100 * time.Millisecond,
		LeaseTTL:            30 * time.Minute,
		StaleAttemptAfter:   15 * time.Minute,
		RateLimitRetries:    3,
		RateLimitBackoff:    time.Second,
		RateLimitMaxBackoff: 30 * time.Second,
	}
}

// Scheduler runs the day_1, day_3 and day_7 batches.
type Scheduler struct {
	repo    dependency.Repository
	mailer  dependency.Mailer
	locker  dependency.RunLocker
	metrics *Metrics
	c       *Config

	now   func() time.Time
	newID func() string
}

// New creates a drip scheduler. A nil locker falls back to the run marker in the store.
func New(c *Config, repo dependency.Repository, mailer dependency.Mailer, locker dependency.RunLocker, metrics *Metrics) *Scheduler {
	if c == nil {
		dc := DefaultConfig()
		c = &dc
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = 30 * time.Minute
	}
	if c.StaleAttemptAfter <= 0 {
		c.StaleAttemptAfter = 15 * time.Minute
	}
	if c.RateLimitBackoff <= 0 {
		c.RateLimitBackoff = time.Second
	}
	if c.RateLimitMaxBackoff < c.RateLimitBackoff {
		c.RateLimitMaxBackoff = c.RateLimitBackoff
	}
	if c.RateLimitRetries < 0 {
		c.RateLimitRetries = 0
	}
	if locker == nil {
		locker = NewStoreLocker(repo.DripRuns())
	}
	return &Scheduler{
		repo:    repo,
		mailer:  mailer,
		locker:  locker,
		metrics: metrics,
		c:       c,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
}

// RunKey is the run marker key for a run started at t, one per calendar day.
func RunKey(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

// Run processes every drip email type once, in order. A failing eligibility
// query aborts the run and is returned together with the partial summary.
// Individual send failures are counted and never abort a batch.
func (s *Scheduler) Run(ctx context.Context) (*entity.DripRunSummary, error) {
	start := s.now()
	runKey := RunKey(start)

	lease, err := s.locker.Acquire(ctx, runKey, s.c.LeaseTTL)
	if err != nil {
		if errors.Is(err, gerr.ErrDripRunInProgress) && s.metrics != nil {
			s.metrics.RunsTotal.WithLabelValues("skipped").Inc()
		}
		return nil, err
	}

	summary := &entity.DripRunSummary{
		RunKey:    runKey,
		StartedAt: start,
	}
	runErr := s.run(ctx, summary)
	summary.Duration = s.now().Sub(start)

	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := lease.Release(releaseCtx, summary, runErr); err != nil {
		slog.Default().ErrorContext(ctx, "can't release drip run lease",
			slog.String("run_key", runKey),
			slog.String("err", err.Error()),
		)
	}

	s.metrics.run(summary, runErr)
	slog.Default().InfoContext(ctx, "drip run finished",
		slog.String("run_key", runKey),
		slog.Int("sent", summary.Sent),
		slog.Int("failed", summary.Failed),
		slog.Int("reconciled", summary.Reconciled),
		slog.Duration("duration", summary.Duration),
	)
	return summary, runErr
}

func (s *Scheduler) run(ctx context.Context, summary *entity.DripRunSummary) error {
	n, err := s.repo.EmailSends().ReconcileStaleAttempts(ctx, s.now().Add(-s.c.StaleAttemptAfter))
	if err != nil {
		return fmt.Errorf("can't reconcile stale attempts: %w", err)
	}
	summary.Reconciled = n
	if n > 0 {
		slog.Default().WarnContext(ctx, "closed stale send attempts as unknown",
			slog.Int("count", n),
		)
	}

	for _, et := range entity.DripEmailTypes {
		ts, err := s.runType(ctx, et)
		if ts != nil {
			summary.Add(*ts)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// runType sends emailType to its eligibility set. The returned summary always
// accounts for every eligible member, members skipped by cancellation are
// counted as interrupted.
func (s *Scheduler) runType(ctx context.Context, et entity.EmailType) (*entity.DripTypeSummary, error) {
	members, err := s.repo.Waitlist().GetMembersForDripEmail(ctx, et, Cutoff(et, s.now()))
	if err != nil {
		return nil, fmt.Errorf("can't get members for %s: %w", et, err)
	}

	ts := &entity.DripTypeSummary{
		EmailType:    et,
		Eligible:     len(members),
		FailedByKind: map[entity.FailureKind]int{},
	}
	s.metrics.eligible(et, len(members))

	limiter := rate.NewLimiter(s.limit(), 1)
	for i := range members {
		if err := limiter.Wait(ctx); err != nil {
			left := len(members) - i
			ts.Failed += left
			ts.FailedByKind[entity.FailureInterrupted] += left
			return ts, fmt.Errorf("%s batch interrupted: %w", et, err)
		}

		kind, err := s.sendOne(ctx, et, &members[i])
		if err != nil {
			ts.Failed++
			ts.FailedByKind[kind]++
			s.metrics.failed(et, kind)
			slog.Default().ErrorContext(ctx, "can't send drip email",
				slog.String("email_type", et.String()),
				slog.Int("member_id", members[i].Id),
				slog.String("kind", string(kind)),
				slog.String("err", err.Error()),
			)
			continue
		}
		ts.Sent++
		s.metrics.sent(et)
	}
	return ts, nil
}

func (s *Scheduler) limit() rate.Limit {
	if s.c.SendInterval <= 0 {
		return rate.Inf
	}
	return rate.Every(s.c.SendInterval)
}

// sendOne logs the attempt, sends and logs the outcome under the same attempt id.
func (s *Scheduler) sendOne(ctx context.Context, et entity.EmailType, m *entity.WaitlistMember) (entity.FailureKind, error) {
	attemptId := s.newID()
	sends := s.repo.EmailSends()

	_, err := sends.CreateEmailSend(ctx, &entity.EmailSendInsert{
		MemberId:  m.Id,
		EmailType: et,
		Status:    entity.EmailSendAttempting,
		AttemptId: attemptId,
	})
	if err != nil {
		return entity.FailureStoreUnavailable, fmt.Errorf("can't log attempt: %w", err)
	}

	messageId, sendErr := s.sendWithRetry(ctx, et, m, attemptId)

	outcome := &entity.EmailSendInsert{
		MemberId:  m.Id,
		EmailType: et,
		AttemptId: attemptId,
	}
	var kind entity.FailureKind
	if sendErr == nil {
		outcome.Status = entity.EmailSendSent
		outcome.MessageId = messageId
	} else {
		kind = Classify(sendErr)
		outcome.Status = entity.EmailSendFailed
		outcome.ErrorKind = kind
		outcome.ErrorMessage = sendErr.Error()
	}

	// The outcome is written even when the run is being cancelled.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if _, err := sends.CreateEmailSend(recordCtx, outcome); err != nil {
		// The dangling attempt keeps the member out until reconciliation closes it.
		slog.Default().ErrorContext(ctx, "can't log send outcome",
			slog.String("attempt_id", attemptId),
			slog.String("status", string(outcome.Status)),
			slog.String("err", err.Error()),
		)
	}

	return kind, sendErr
}

// sendWithRetry retries rate limited sends with exponential backoff. Every other
// error is returned right away. The wait starts only after a failed send, so
// slow provider calls never eat into the backoff.
func (s *Scheduler) sendWithRetry(ctx context.Context, et entity.EmailType, m *entity.WaitlistMember, attemptId string) (string, error) {
	interval := backoff.NewExponentialInterval(
		backoff.WithMinInterval(s.c.RateLimitBackoff),
		backoff.WithMaxInterval(s.c.RateLimitMaxBackoff),
		backoff.WithJitterFactor(0.1),
	)

	data := &dto.DripEmail{
		FirstName:      m.FirstName.String,
		IdempotencyKey: attemptId,
		MemberId:       m.Id,
	}

	for tries := 0; ; tries++ {
		messageId, err := s.mailer.SendDrip(ctx, et, m.Email, data)
		if err == nil {
			return messageId, nil
		}
		if !errors.Is(err, gerr.MailApiLimitReached) || tries >= s.c.RateLimitRetries {
			return "", err
		}

		t := time.NewTimer(interval.Next())
		select {
		case <-ctx.Done():
			t.Stop()
			return "", ctx.Err()
		case <-t.C:
		}
	}
}

// Classify maps a send error onto the failure taxonomy.
func Classify(err error) entity.FailureKind {
	switch {
	case errors.Is(err, gerr.ErrInvalidRecipient):
		return entity.FailureInvalidRecipient
	case errors.Is(err, gerr.MailApiLimitReached):
		return entity.FailureRateLimited
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return entity.FailureInterrupted
	default:
		return entity.FailureProviderUnavailable
	}
}
