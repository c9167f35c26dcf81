package apikey

import (
	"github.com/evergrid/carbonledger/internal/apikey/repository"
	"github.com/evergrid/carbonledger/internal/apikey/service"
	"go.uber.org/fx"
)

var Module = fx.Module("apikey.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
