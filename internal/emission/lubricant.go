package emission

import "github.com/shopspring/decimal"

// Lubricant lifecycle factors in kgCO2e per liter.
var (
	lubricantCombustionKgPerLiter = dec("2.68")
	lubricantProductionKgPerLiter = dec("0.42")
	lubricantTransportKgPerLiter  = dec("0.15")
)

// LubricantInput describes an oil and gas lubricant emission event. Custom
// production and transport factors override the defaults when positive.
type LubricantInput struct {
	VolumeLiters     decimal.Decimal
	ProductionFactor decimal.Decimal
	TransportFactor  decimal.Decimal
}

// CalculateLubricant computes lifecycle CO2e for lubricant volumes.
func CalculateLubricant(in LubricantInput) Result {
	productionFactor := in.ProductionFactor
	if !productionFactor.IsPositive() {
		productionFactor = lubricantProductionKgPerLiter
	}
	transportFactor := in.TransportFactor
	if !transportFactor.IsPositive() {
		transportFactor = lubricantTransportKgPerLiter
	}

	combustionKg := in.VolumeLiters.Mul(lubricantCombustionKgPerLiter)
	productionKg := in.VolumeLiters.Mul(productionFactor)
	transportKg := in.VolumeLiters.Mul(transportFactor)
	totalKg := combustionKg.Add(productionKg).Add(transportKg)

	return Result{
		TotalKg: totalKg,
		Breakdown: map[string]decimal.Decimal{
			"combustion_emissions_kg": combustionKg,
			"production_emissions_kg": productionKg,
			"transport_emissions_kg":  transportKg,
		},
		Factors: map[string]any{
			"volume_liters":             in.VolumeLiters.String(),
			"emission_factor_per_liter": lubricantCombustionKgPerLiter.String(),
			"production_factor":         productionFactor.String(),
			"transport_factor":          transportFactor.String(),
		},
	}
}
