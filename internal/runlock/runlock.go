// Package runlock guards drip runs with a Redis lock for deployments running
// more than one instance.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/ketowell/waitlist-manager/internal/dependency"
	"github.com/ketowell/waitlist-manager/internal/entity"
	gerr "github.com/ketowell/waitlist-manager/internal/errors"
	"github.com/redis/go-redis/v9"
)

// Config defines the Redis connection. The locker is disabled when Addr is empty.
type Config struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker takes the run lock in Redis. When history is set the run marker is
// also kept in the store so the dashboard sees the run.
type Locker struct {
	rdb     redis.UniversalClient
	prefix  string
	history dependency.DripRuns
}

// NewClient connects to Redis and checks the connection.
func NewClient(ctx context.Context, c *Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         c.Addr,
		Password:     c.Password,
		DB:           c.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func New(rdb redis.UniversalClient, prefix string, history dependency.DripRuns) *Locker {
	if prefix == "" {
		prefix = "ketowell:drip:"
	}
	return &Locker{
		rdb:     rdb,
		prefix:  prefix,
		history: history,
	}
}

func (l *Locker) key(runKey string) string {
	return l.prefix + runKey
}

func (l *Locker) Acquire(ctx context.Context, runKey string, ttl time.Duration) (dependency.Lease, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.key(runKey), token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("can't take redis run lock: %w", err)
	}
	if !ok {
		return nil, gerr.ErrDripRunInProgress
	}

	lease := &lease{l: l, runKey: runKey, token: token}
	if l.history != nil {
		ok, err := l.history.AcquireLease(ctx, runKey, token, ttl)
		if err == nil && !ok {
			err = gerr.ErrDripRunInProgress
		}
		if err != nil {
			if uerr := lease.unlock(context.WithoutCancel(ctx)); uerr != nil {
				slog.Default().ErrorContext(ctx, "can't release redis run lock",
					slog.String("run_key", runKey),
					slog.String("err", uerr.Error()),
				)
			}
			return nil, err
		}
	}
	return lease, nil
}

type lease struct {
	l      *Locker
	runKey string
	token  string
}

func (ls *lease) Release(ctx context.Context, summary *entity.DripRunSummary, runErr error) error {
	var herr error
	if ls.l.history != nil {
		herr = ls.l.history.ReleaseLease(ctx, ls.runKey, ls.token, summary, runErr)
	}
	return errors.Join(herr, ls.unlock(ctx))
}

func (ls *lease) unlock(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, ls.l.rdb, []string{ls.l.key(ls.runKey)}, ls.token).Int()
	if err != nil {
		return fmt.Errorf("can't release redis run lock: %w", err)
	}
	if n == 0 {
		return gerr.ErrLeaseLost
	}
	return nil
}
