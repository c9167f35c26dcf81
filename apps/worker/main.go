package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/evergrid/carbonledger/internal/carbon"
	"github.com/evergrid/carbonledger/internal/clock"
	"github.com/evergrid/carbonledger/internal/config"
	"github.com/evergrid/carbonledger/internal/dedup"
	"github.com/evergrid/carbonledger/internal/failedevent"
	"github.com/evergrid/carbonledger/internal/gridintensity"
	"github.com/evergrid/carbonledger/internal/logger"
	"github.com/evergrid/carbonledger/internal/observability"
	"github.com/evergrid/carbonledger/internal/processor"
	"github.com/evergrid/carbonledger/internal/queue"
	"github.com/evergrid/carbonledger/internal/session"
	"github.com/evergrid/carbonledger/internal/worker"
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

		processor.Module,
		gridintensity.Module,
		queue.Module,

		dedup.Module,
		carbon.Module,
		session.Module,
		failedevent.Module,

		// No HTTP server in this process.
		worker.Run,
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
