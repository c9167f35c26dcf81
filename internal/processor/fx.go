package processor

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log  *zap.Logger
	Grid GridIntensityResolver `optional:"true"`
}

// NewDefaultRegistry builds the registry with every supported event type.
// Resolution happens at process start so an unknown type fails fast.
func NewDefaultRegistry(p Params) *Registry {
	return NewRegistry(p.Log,
		NewWebProcessor(p.Grid),
		NewAdsProcessor(p.Grid),
		NewCDNProcessor(p.Grid),
		NewCloudProcessor(),
		NewOnPremProcessor(p.Grid),
		NewTravelProcessor(),
		NewWorkforceProcessor(),
		NewLubricantProcessor(),
	)
}

var Module = fx.Module("processor",
	fx.Provide(NewDefaultRegistry),
)
