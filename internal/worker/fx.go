package worker

import (
	"context"

	carbondomain "github.com/evergrid/carbonledger/internal/carbon/domain"
	"github.com/evergrid/carbonledger/internal/config"
	faileddomain "github.com/evergrid/carbonledger/internal/failedevent/domain"
	"github.com/evergrid/carbonledger/internal/processor"
	"github.com/evergrid/carbonledger/internal/queue"
	sessiondomain "github.com/evergrid/carbonledger/internal/session/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Cfg      config.Config
	Registry *processor.Registry
	Carbon   carbondomain.Service
	Sessions sessiondomain.Service
	Failed   faileddomain.Service
	Broker   *queue.Broker
}

func newDispatcher(p Params) *Dispatcher {
	return NewDispatcher(p.Log, p.Registry, p.Carbon, p.Sessions)
}

func newConsumer(p Params, dispatcher *Dispatcher) *Consumer {
	return NewConsumer(p.Log, p.Broker, dispatcher, p.Failed, p.Cfg.WorkerConcurrency)
}

// Run wires the dispatcher and the queue consumer. Processes that do
// not consume the queue (API, scheduler) have no business here.
var Run = fx.Module("worker.run",
	fx.Provide(newDispatcher, newConsumer),
	fx.Invoke(func(lc fx.Lifecycle, consumer *Consumer) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return consumer.Start(context.Background())
			},
			OnStop: func(ctx context.Context) error {
				consumer.Stop()
				return nil
			},
		})
	}),
)
