package sweeper

import (
	"context"
	"time"

	"cloudfund-settlement/pkg/config"
	"cloudfund-settlement/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Scheduler struct {
	service  *Service
	rdb      *redis.Client
	interval time.Duration
}

func NewScheduler(svc *Service, rdb *redis.Client, cfg *config.Config) *Scheduler {
	return &Scheduler{
		service:  svc,
		rdb:      rdb,
		interval: cfg.Settlement.SweepInterval,
	}
}

// StartScheduler wires the sweep loop into the application lifecycle.
func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go s.run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func (s *Scheduler) run(ctx context.Context) {
	zap.L().Info("[Scheduler] started settlement sweep scheduler",
		zap.Duration("interval", s.interval),
	)

	for {
		select {
		case <-time.After(s.interval):
			s.runOnce(ctx)
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	// One enqueue per interval across all worker replicas.
	ok, err := s.rdb.SetNX(ctx, rediskey.SweepLockKey, 1, s.interval/2).Result()
	if err != nil {
		zap.L().Error("[Scheduler] failed to take sweep lock", zap.Error(err))
		return
	}
	if !ok {
		zap.L().Info("[Scheduler] sweep already claimed by another worker")
		return
	}

	start := time.Now()
	zap.L().Info("[Scheduler] enqueueing sweep job")

	if _, err := s.service.Enqueue(ctx, "scheduler"); err != nil {
		zap.L().Error("[Scheduler] failed to enqueue sweep", zap.Error(err))
		return
	}

	zap.L().Info("[Scheduler] sweep enqueued",
		zap.Duration("duration", time.Since(start)),
	)
}
