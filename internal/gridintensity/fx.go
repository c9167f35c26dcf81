package gridintensity

import (
	"strings"

	"github.com/evergrid/carbonledger/internal/config"
	"github.com/evergrid/carbonledger/internal/processor"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func newResolver(cfg config.Config, log *zap.Logger) *Resolver {
	client := NewClient(cfg.GridIntensityURL)

	var rdb *redis.Client
	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: strings.TrimSpace(cfg.RedisPassword),
			DB:       cfg.RedisDB,
		})
	}

	return NewResolver(log, client, rdb, cfg.GridIntensityCacheTTL)
}

var Module = fx.Module("gridintensity",
	fx.Provide(
		fx.Annotate(newResolver, fx.As(new(processor.GridIntensityResolver))),
	),
)
