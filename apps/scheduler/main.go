package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/evergrid/carbonledger/internal/clock"
	"github.com/evergrid/carbonledger/internal/config"
	"github.com/evergrid/carbonledger/internal/failedevent"
	"github.com/evergrid/carbonledger/internal/logger"
	"github.com/evergrid/carbonledger/internal/observability"
	"github.com/evergrid/carbonledger/internal/queue"
	"github.com/evergrid/carbonledger/internal/scheduler"
	"github.com/evergrid/carbonledger/internal/session"
	"github.com/evergrid/carbonledger/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// The retry job only re-enqueues; event processing stays with
		// the worker pool.
		queue.Module,
		session.Module,
		failedevent.Module,

		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
