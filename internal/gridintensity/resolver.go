package gridintensity

import (
	"context"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	cacheKeyPrefix  = "grid:intensity:"
	defaultCacheTTL = time.Hour
)

// Resolver looks up live grid intensity with a redis cache in front of
// the HTTP source. When neither yields a value the caller falls back to
// its static factor tables, so every miss is reported as ok=false
// rather than an error.
type Resolver struct {
	log    *zap.Logger
	client *Client
	redis  *redis.Client
	ttl    time.Duration
}

func NewResolver(log *zap.Logger, client *Client, rdb *redis.Client, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Resolver{
		log:    log.Named("gridintensity"),
		client: client,
		redis:  rdb,
		ttl:    ttl,
	}
}

// Intensity returns the grid intensity for region in gCO2e/kWh.
func (r *Resolver) Intensity(ctx context.Context, region string) (decimal.Decimal, bool) {
	if r == nil || r.client == nil {
		return decimal.Zero, false
	}
	region = strings.ToUpper(strings.TrimSpace(region))
	if region == "" {
		return decimal.Zero, false
	}

	if cached, ok := r.fromCache(ctx, region); ok {
		return cached, true
	}

	value, err := r.client.Fetch(ctx, region)
	if err != nil {
		r.log.Debug("grid intensity fetch failed, using static factors",
			zap.String("region", region),
			zap.Error(err),
		)
		return decimal.Zero, false
	}

	r.storeCache(ctx, region, value)
	return value, true
}

func (r *Resolver) fromCache(ctx context.Context, region string) (decimal.Decimal, bool) {
	if r.redis == nil {
		return decimal.Zero, false
	}
	raw, err := r.redis.Get(ctx, cacheKeyPrefix+region).Result()
	if err != nil {
		if err != redis.Nil {
			r.log.Warn("grid intensity cache read failed", zap.String("region", region), zap.Error(err))
		}
		return decimal.Zero, false
	}
	value, err := decimal.NewFromString(raw)
	if err != nil || !value.IsPositive() {
		return decimal.Zero, false
	}
	return value, true
}

func (r *Resolver) storeCache(ctx context.Context, region string, value decimal.Decimal) {
	if r.redis == nil {
		return
	}
	if err := r.redis.Set(ctx, cacheKeyPrefix+region, value.String(), r.ttl).Err(); err != nil {
		r.log.Warn("grid intensity cache write failed", zap.String("region", region), zap.Error(err))
	}
}
