package reconciliation

import (
	"context"
	"errors"
	"time"

	"admission-portal/internal/common/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultLeaseKey = "admission:reconciliation:lease"
	DefaultLeaseTTL = 10 * time.Minute
)

// releaseLease deletes the key only if it still holds our token.
var releaseLease = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// PassRunner is satisfied by *Engine.
type PassRunner interface {
	RunPass(ctx context.Context, trigger string) (*Result, error)
}

// Scheduler runs passes on an interval. With a Redis client, each pass is
// guarded by a lease so only one replica runs at a time.
type Scheduler struct {
	runner   PassRunner
	redis    redis.Cmdable
	logger   logger.Logger
	interval time.Duration
	leaseKey string
	leaseTTL time.Duration
}

type SchedulerOption func(*Scheduler)

func WithLease(client redis.Cmdable, key string, ttl time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.redis = client
		if key != "" {
			s.leaseKey = key
		}
		if ttl > 0 {
			s.leaseTTL = ttl
		}
	}
}

func NewScheduler(runner PassRunner, interval time.Duration, log logger.Logger, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		runner:   runner,
		logger:   log.WithFields(map[string]interface{}{"component": "reconciliation-scheduler"}),
		interval: interval,
		leaseKey: DefaultLeaseKey,
		leaseTTL: DefaultLeaseTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs passes until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Reconciliation scheduler started", map[string]interface{}{
		"interval": s.interval.String(),
		"leased":   s.redis != nil,
	})
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Reconciliation scheduler stopped", nil)
			return
		case <-ticker.C:
			if _, _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("Scheduled reconciliation pass failed", map[string]interface{}{"error": err})
			}
		}
	}
}

// RunOnce runs one scheduled pass if the lease can be taken. ran is false
// when another replica holds the lease.
func (s *Scheduler) RunOnce(ctx context.Context) (res *Result, ran bool, err error) {
	if s.redis == nil {
		res, err = s.runner.RunPass(ctx, TriggerScheduled)
		return res, true, err
	}

	token := uuid.NewString()
	ok, err := s.redis.SetNX(ctx, s.leaseKey, token, s.leaseTTL).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		s.logger.Debug("Reconciliation lease held elsewhere", map[string]interface{}{"key": s.leaseKey})
		return nil, false, nil
	}
	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if rerr := releaseLease.Run(rctx, s.redis, []string{s.leaseKey}, token).Err(); rerr != nil && !errors.Is(rerr, redis.Nil) {
			s.logger.Warn("Failed to release reconciliation lease", map[string]interface{}{"error": rerr})
		}
	}()

	res, err = s.runner.RunPass(ctx, TriggerScheduled)
	return res, true, err
}
