package emission

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Grid carbon intensity defaults in gCO2/kWh, used when no live intensity is
// injected. Sources: UK BEIS 2023 via IEA (GB), EPA eGRID 2023 (US), IEA 2023
// elsewhere.
var gridIntensityDefaults = map[string]decimal.Decimal{
	"GB":    dec("233"),
	"US":    dec("417"),
	"DE":    dec("385"),
	"FR":    dec("57"),
	"EU":    dec("295"),
	"WORLD": dec("475"),
}

// GridIntensityDefault returns the static gCO2/kWh for a region, falling back
// to the world average for unknown regions.
func GridIntensityDefault(region string) decimal.Decimal {
	region = strings.ToUpper(strings.TrimSpace(region))
	if v, ok := gridIntensityDefaults[region]; ok {
		return v
	}
	return gridIntensityDefaults["WORLD"]
}

// GridFactorKgPerKwh converts a region's static intensity to kgCO2/kWh.
func GridFactorKgPerKwh(region string) decimal.Decimal {
	return GridIntensityDefault(region).Div(thousand)
}

// GridFactorSource names the dataset behind a region's static factor.
func GridFactorSource(region string) string {
	switch strings.ToUpper(strings.TrimSpace(region)) {
	case "GB":
		return "UK BEIS 2023 via IEA"
	case "US":
		return "EPA eGRID 2023"
	case "DE", "FR", "EU":
		return "IEA 2023"
	default:
		return "IEA 2023 World Average"
	}
}

// Server component power draw at full load.
var (
	serverCPUWattsPerCore       = dec("10")
	serverRAMWattsPerGB         = dec("0.375")
	serverStorageHDDWattsPerTB  = dec("0.65")
	serverStorageSSDWattsPerTB  = dec("1.2")
	serverStorageNVMeWattsPerTB = dec("1.5")
	serverNetworkBaseWatts      = dec("10")
)

// DefaultPUE is the power usage effectiveness applied when a facility does
// not report its own.
var DefaultPUE = dec("1.6")

// Travel emission factors in kgCO2e per passenger-km (per night for hotels).
// DEFRA 2024 conversion factors.
var travelFactorsKgPerKm = map[string]decimal.Decimal{
	"flight_domestic":             dec("0.2443"),
	"flight_intl_economy":         dec("0.1496"),
	"flight_intl_premium_economy": dec("0.2393"),
	"flight_intl_business":        dec("0.4337"),
	"flight_intl_first":           dec("0.5982"),
	"rail_national":               dec("0.0355"),
	"rail_international":          dec("0.0049"),
	"car_petrol_small":            dec("0.1408"),
	"car_petrol_medium":           dec("0.1743"),
	"car_petrol_large":            dec("0.2190"),
	"car_diesel_medium":           dec("0.1680"),
	"car_electric":                dec("0.0477"),
	"taxi":                        dec("0.2087"),
	"bus_coach":                   dec("0.0272"),
	"motorbike":                   dec("0.1135"),
	"hotel_night_uk":              dec("10.4"),
	"hotel_night_average":         dec("20.0"),
}

// flightRadiativeForcing uplifts aviation CO2 for non-CO2 warming effects.
var flightRadiativeForcing = dec("1.9")

// Workforce energy constants.
var (
	remoteHomeEnergyKwhPerDay    = dec("5.0")
	workingDaysPerMonth          = dec("21")
	workingDaysPerYear           = dec("250")
	officeEnergyKwhPerSqmPerYear = dec("200")
)

// CDN energy intensity in kWh per GB delivered, by provider.
var cdnEfficiencyKwhPerGB = map[string]decimal.Decimal{
	"cloudflare":     dec("0.030"),
	"aws_cloudfront": dec("0.035"),
	"fastly":         dec("0.030"),
	"akamai":         dec("0.040"),
	"gcp_cdn":        dec("0.030"),
	"azure_cdn":      dec("0.035"),
	"generic":        dec("0.060"),
}

// CDNEfficiency returns the kWh/GB intensity for a provider.
func CDNEfficiency(provider string) decimal.Decimal {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if v, ok := cdnEfficiencyKwhPerGB[provider]; ok {
		return v
	}
	return cdnEfficiencyKwhPerGB["generic"]
}

// Cloud spend-based emission factors in kgCO2e per USD.
var cloudCostFactorsKgPerUSD = map[string]decimal.Decimal{
	"aws":   dec("0.098"),
	"gcp":   dec("0.045"),
	"azure": dec("0.080"),
}

var cloudCostFactorDefault = dec("0.100")

// CloudCostFactor returns the kgCO2e/USD factor for a provider.
func CloudCostFactor(provider string) decimal.Decimal {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if v, ok := cloudCostFactorsKgPerUSD[provider]; ok {
		return v
	}
	return cloudCostFactorDefault
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
