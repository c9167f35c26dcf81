package emission

import (
	"strings"

	"github.com/shopspring/decimal"
)

// OfficeLocation describes one office for the workforce model.
type OfficeLocation struct {
	City         string
	CountryCode  string
	SquareMeters decimal.Decimal
}

// WorkforceInput describes a workforce energy emission event.
type WorkforceInput struct {
	TotalEmployees    decimal.Decimal
	RemotePercentage  decimal.Decimal
	OfficeLocations   []OfficeLocation
	CalculationPeriod string
}

// CalculateWorkforce computes CO2e from remote-work home energy and office
// floorspace energy.
func CalculateWorkforce(in WorkforceInput) Result {
	period := strings.ToLower(strings.TrimSpace(in.CalculationPeriod))
	if period != "annual" {
		period = "monthly"
	}

	remoteShare := in.RemotePercentage.Div(decimal.NewFromInt(100))
	remoteEmployees := in.TotalEmployees.Mul(remoteShare)

	workingDays := workingDaysPerMonth
	if period == "annual" {
		workingDays = workingDaysPerYear
	}
	remoteEnergyKwh := remoteEmployees.Mul(remoteHomeEnergyKwhPerDay).Mul(workingDays)
	remoteKg := remoteEnergyKwh.Mul(GridFactorKgPerKwh("WORLD"))

	officeKg := decimal.Zero
	officeEnergyKwh := decimal.Zero
	for _, office := range in.OfficeLocations {
		perSqm := officeEnergyKwhPerSqmPerYear
		if period == "monthly" {
			perSqm = perSqm.Div(decimal.NewFromInt(12))
		}
		energyKwh := office.SquareMeters.Mul(perSqm)
		officeEnergyKwh = officeEnergyKwh.Add(energyKwh)
		officeKg = officeKg.Add(energyKwh.Mul(GridFactorKgPerKwh(office.CountryCode)))
	}

	totalKg := remoteKg.Add(officeKg)

	return Result{
		TotalKg: totalKg,
		Breakdown: map[string]decimal.Decimal{
			"remote_work_kg":    remoteKg,
			"office_energy_kg":  officeKg,
			"remote_employees":  remoteEmployees,
			"remote_energy_kwh": remoteEnergyKwh,
			"office_energy_kwh": officeEnergyKwh,
		},
		Factors: map[string]any{
			"calculation_period":             period,
			"working_days":                   workingDays.String(),
			"remote_home_energy_kwh_per_day": remoteHomeEnergyKwhPerDay.String(),
			"office_count":                   len(in.OfficeLocations),
		},
	}
}
