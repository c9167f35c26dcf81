package session

import (
	"github.com/evergrid/carbonledger/internal/session/service"
	"go.uber.org/fx"
)

var Module = fx.Module("session",
	fx.Provide(service.NewService),
)
