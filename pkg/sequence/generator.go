package sequence

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloudfund-settlement/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("sequence",
	fx.Provide(NewRedisGenerator),
)

// Generator hands out human-readable codes for new campaigns and pledges.
type Generator interface {
	NextCampaignCode(ctx context.Context) (string, error)
	NextPledgeCode(ctx context.Context, campaignID string) (string, error)
}

type RedisGenerator struct {
	rdb *redis.Client
}

type Params struct {
	fx.In

	Redis *redis.Client
}

func NewRedisGenerator(p Params) Generator {
	return &RedisGenerator{
		rdb: p.Redis,
	}
}

func (g *RedisGenerator) NextCampaignCode(ctx context.Context) (string, error) {
	return g.nextDailyCode(ctx, "CMP", "global")
}

func (g *RedisGenerator) NextPledgeCode(ctx context.Context, campaignID string) (string, error) {
	return g.nextDailyCode(ctx, "PLG", campaignID)
}

// nextDailyCode issues a per-day monotonically increasing code, base36
// encoded. The counter key expires at the end of the day.
func (g *RedisGenerator) nextDailyCode(ctx context.Context, prefix, scope string) (string, error) {
	today := time.Now().UTC().Format("060102")
	key := rediskey.BuildSequenceKey(prefix, scope, today)

	seq, err := g.rdb.Incr(ctx, key).Result()
	if err != nil {
		return "", err
	}

	if seq == 1 {
		expire := time.Until(time.Now().Truncate(24 * time.Hour).Add(24*time.Hour - time.Second))
		_ = g.rdb.Expire(ctx, key, expire).Err()
	}

	encoded := strings.ToUpper(fmt.Sprintf("%03s", strconv.FormatInt(seq, 36)))

	return fmt.Sprintf("%s-%s-%s", prefix, today, encoded), nil
}
