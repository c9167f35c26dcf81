package emission

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ServerSpec describes one physical server for the TDP model.
type ServerSpec struct {
	Name              string
	CPUCores          decimal.Decimal
	RAMGB             decimal.Decimal
	StorageTB         decimal.Decimal
	StorageType       string
	AvgCPUUtilization decimal.Decimal
	HoursPerDay       decimal.Decimal
	DaysPerMonth      decimal.Decimal
}

// OnPremInput describes an on-premise server fleet emission event.
type OnPremInput struct {
	Servers             []ServerSpec
	LocationCountryCode string
	PUE                 decimal.Decimal
	CalculationPeriod   string

	GridIntensity decimal.Decimal
}

// CalculateOnPrem computes CO2e for a server fleet from component TDP,
// utilization, runtime hours and facility PUE.
func CalculateOnPrem(in OnPremInput) Result {
	region := strings.ToUpper(strings.TrimSpace(in.LocationCountryCode))
	if region == "" {
		region = "WORLD"
	}
	pue := in.PUE
	if !pue.IsPositive() {
		pue = DefaultPUE
	}
	period := strings.ToLower(strings.TrimSpace(in.CalculationPeriod))
	if period != "annual" {
		period = "monthly"
	}
	gridFactorKg := resolveGridFactorKg(in.GridIntensity, region)

	totalKg := decimal.Zero
	totalEnergyKwh := decimal.Zero
	for _, server := range in.Servers {
		energyKwh := serverEnergyKwh(server, pue, period)
		totalEnergyKwh = totalEnergyKwh.Add(energyKwh)
		totalKg = totalKg.Add(energyKwh.Mul(gridFactorKg))
	}

	return Result{
		TotalKg: totalKg,
		Breakdown: map[string]decimal.Decimal{
			"server_count":     decimal.NewFromInt(int64(len(in.Servers))),
			"total_energy_kwh": totalEnergyKwh,
		},
		Factors: map[string]any{
			"location_country_code":  region,
			"pue":                    pue.String(),
			"calculation_period":     period,
			"grid_factor_kg_per_kwh": gridFactorKg.String(),
			"source":                 GridFactorSource(region),
		},
	}
}

func serverEnergyKwh(server ServerSpec, pue decimal.Decimal, period string) decimal.Decimal {
	cpuWatts := server.CPUCores.Mul(serverCPUWattsPerCore)
	ramWatts := server.RAMGB.Mul(serverRAMWattsPerGB)

	var storageWatts decimal.Decimal
	switch strings.ToLower(strings.TrimSpace(server.StorageType)) {
	case "ssd":
		storageWatts = server.StorageTB.Mul(serverStorageSSDWattsPerTB)
	case "nvme":
		storageWatts = server.StorageTB.Mul(serverStorageNVMeWattsPerTB)
	default:
		storageWatts = server.StorageTB.Mul(serverStorageHDDWattsPerTB)
	}

	totalTDPWatts := cpuWatts.Add(ramWatts).Add(storageWatts).Add(serverNetworkBaseWatts)

	utilization := server.AvgCPUUtilization
	if !utilization.IsPositive() {
		utilization = dec("0.5")
	}
	actualWatts := totalTDPWatts.Mul(utilization)

	hoursPerDay := server.HoursPerDay
	if !hoursPerDay.IsPositive() {
		hoursPerDay = dec("24")
	}
	var totalHours decimal.Decimal
	if period == "annual" {
		totalHours = hoursPerDay.Mul(dec("365"))
	} else {
		daysPerMonth := server.DaysPerMonth
		if !daysPerMonth.IsPositive() {
			daysPerMonth = dec("30")
		}
		totalHours = hoursPerDay.Mul(daysPerMonth)
	}

	return actualWatts.Mul(totalHours).Mul(pue).Div(thousand)
}
