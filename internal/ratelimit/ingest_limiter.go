package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/evergrid/carbonledger/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const keyIngestTenant = "ingest:tenant:%s"

// IngestLimiter applies a per-tenant token bucket to the event ingest
// endpoints. A nil limiter (no redis configured) allows everything.
type IngestLimiter struct {
	enabled bool
	bucket  *TokenBucket
	rate    float64
	burst   int
}

func NewIngestLimiter(cfg config.Config) *IngestLimiter {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" || cfg.IngestRateLimit <= 0 || cfg.IngestRateBurst <= 0 {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})

	return &IngestLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		rate:    cfg.IngestRateLimit,
		burst:   cfg.IngestRateBurst,
	}
}

func (l *IngestLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *IngestLimiter) AllowTenant(ctx context.Context, tenantID string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyIngestTenant, strings.TrimSpace(tenantID)), l.rate, l.burst)
}
