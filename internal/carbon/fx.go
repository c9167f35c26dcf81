package carbon

import (
	"github.com/evergrid/carbonledger/internal/carbon/repository"
	"github.com/evergrid/carbonledger/internal/carbon/service"
	"go.uber.org/fx"
)

var Module = fx.Module("carbon",
	fx.Provide(
		repository.NewRepository,
		service.NewService,
	),
)
