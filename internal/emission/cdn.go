package emission

import (
	"strings"

	"github.com/shopspring/decimal"
)

var cdnDefaultPUE = dec("1.2")

// CDNInput describes a monthly CDN data transfer emission event.
type CDNInput struct {
	MonthlyGBTransferred decimal.Decimal
	Provider             string
	Regions              []string

	GridIntensity decimal.Decimal
}

// CalculateCDN computes CO2e for CDN delivery. Multi-region deployments use
// the arithmetic mean of the regional grid factors.
func CalculateCDN(in CDNInput) Result {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		provider = "generic"
	}
	regions := in.Regions
	if len(regions) == 0 {
		regions = []string{"WORLD"}
	}

	kwhPerGB := CDNEfficiency(provider)
	energyKwh := in.MonthlyGBTransferred.Mul(kwhPerGB).Mul(cdnDefaultPUE)

	var gridFactorKg decimal.Decimal
	if in.GridIntensity.IsPositive() {
		gridFactorKg = in.GridIntensity.Div(thousand)
	} else if len(regions) > 1 {
		sum := decimal.Zero
		for _, region := range regions {
			sum = sum.Add(GridIntensityDefault(region))
		}
		gridFactorKg = sum.Div(decimal.NewFromInt(int64(len(regions)))).Div(thousand)
	} else {
		gridFactorKg = GridFactorKgPerKwh(regions[0])
	}

	emissionsKg := energyKwh.Mul(gridFactorKg)

	return Result{
		TotalKg: emissionsKg,
		Breakdown: map[string]decimal.Decimal{
			"monthly_gb_transferred": in.MonthlyGBTransferred,
			"energy_kwh":             energyKwh,
			"kwh_per_gb":             kwhPerGB,
			"pue":                    cdnDefaultPUE,
		},
		Factors: map[string]any{
			"provider":                  provider,
			"regions":                   regions,
			"grid_factor_kg_per_kwh":    gridFactorKg.String(),
			"cdn_efficiency_kwh_per_gb": kwhPerGB.String(),
		},
	}
}
