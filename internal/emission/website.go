package emission

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Website energy model: bytes to GB, 0.5 kWh per GB transferred, with a 1.2
// multiplier for network and datacenter overhead.
var (
	websiteKwhPerGB           = dec("0.5")
	websiteOverheadMultiplier = dec("1.2")
	bytesPerGB                = decimal.NewFromInt(1073741824)
)

// WebsiteInput describes a page-traffic emission event.
type WebsiteInput struct {
	BytesTransferred decimal.Decimal
	CountryCode      string

	// GridIntensity is an already-resolved gCO2/kWh value. Zero means use
	// the static regional default.
	GridIntensity decimal.Decimal
}

// CalculateWebsite computes CO2e for website data transfer.
func CalculateWebsite(in WebsiteInput) Result {
	region := strings.ToUpper(strings.TrimSpace(in.CountryCode))
	if region == "" {
		region = "WORLD"
	}
	gridEfKg := resolveGridFactorKg(in.GridIntensity, region)

	dataGB := in.BytesTransferred.Div(bytesPerGB)
	energyUseKwh := dataGB.Mul(websiteKwhPerGB)
	totalEnergyKwh := energyUseKwh.Mul(websiteOverheadMultiplier)
	emissionsKg := totalEnergyKwh.Mul(gridEfKg)

	return Result{
		TotalKg: emissionsKg,
		Breakdown: map[string]decimal.Decimal{
			"data_gb":          dataGB,
			"energy_use_kwh":   energyUseKwh,
			"total_energy_kwh": totalEnergyKwh,
		},
		Factors: map[string]any{
			"grid_ef_kg_per_kwh": gridEfKg.String(),
			"region":             region,
			"source":             GridFactorSource(region),
		},
	}
}

func resolveGridFactorKg(injected decimal.Decimal, region string) decimal.Decimal {
	if injected.IsPositive() {
		return injected.Div(thousand)
	}
	return GridFactorKgPerKwh(region)
}
