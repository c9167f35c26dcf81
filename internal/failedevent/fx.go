package failedevent

import (
	"github.com/evergrid/carbonledger/internal/failedevent/service"
	"go.uber.org/fx"
)

var Module = fx.Module("failedevent",
	fx.Provide(service.NewService),
)
