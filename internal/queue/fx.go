package queue

import (
	"context"

	"github.com/evergrid/carbonledger/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func New(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*Broker, error) {
	broker, err := NewBroker(Config{
		URL:             cfg.QueueURL,
		QueueName:       cfg.QueueName,
		DeadLetterQueue: cfg.DeadLetterQueue,
		Prefetch:        cfg.QueuePrefetch,
	}, log)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return broker.Close()
		},
	})
	return broker, nil
}

var Module = fx.Module("queue",
	fx.Provide(
		New,
		func(b *Broker) Publisher { return b },
	),
)
