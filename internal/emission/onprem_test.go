package emission

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCalculateOnPrem_DeterministicFleet(t *testing.T) {
	server := ServerSpec{
		CPUCores:          dec("8"),
		RAMGB:             dec("16"),
		AvgCPUUtilization: dec("0.5"),
		HoursPerDay:       dec("24"),
		DaysPerMonth:      dec("30"),
	}

	result := CalculateOnPrem(OnPremInput{
		Servers:           []ServerSpec{server, server},
		PUE:               dec("1.6"),
		CalculationPeriod: "monthly",
	})

	// 2 x (8*10 + 16*0.375 + 10)W at 50% load, 720h, PUE 1.6 is
	// 110.592 kWh; at the 475 g/kWh world average that is 52.5312 kg.
	assert.Equal(t, "52.5312", result.TotalKg.String())
	assert.Equal(t, "110.592", result.Breakdown["total_energy_kwh"].String())
	assert.Equal(t, "2", result.Breakdown["server_count"].String())

	// Same input twice gives the same bits.
	again := CalculateOnPrem(OnPremInput{
		Servers:           []ServerSpec{server, server},
		PUE:               dec("1.6"),
		CalculationPeriod: "monthly",
	})
	assert.True(t, result.TotalKg.Equal(again.TotalKg))
}

func TestCalculateOnPrem_Defaults(t *testing.T) {
	result := CalculateOnPrem(OnPremInput{
		Servers: []ServerSpec{{CPUCores: dec("4"), RAMGB: dec("8")}},
	})

	assert.Equal(t, "1.6", result.Factors["pue"])
	assert.Equal(t, "monthly", result.Factors["calculation_period"])
	assert.Equal(t, "WORLD", result.Factors["location_country_code"])
	assert.True(t, result.TotalKg.IsPositive())
}

func TestCalculateOnPrem_StorageTypes(t *testing.T) {
	base := ServerSpec{
		CPUCores:          dec("8"),
		RAMGB:             dec("16"),
		StorageTB:         dec("10"),
		AvgCPUUtilization: dec("1"),
		HoursPerDay:       dec("24"),
		DaysPerMonth:      dec("30"),
	}

	hdd := base
	hdd.StorageType = "hdd"
	nvme := base
	nvme.StorageType = "nvme"

	hddResult := CalculateOnPrem(OnPremInput{Servers: []ServerSpec{hdd}})
	nvmeResult := CalculateOnPrem(OnPremInput{Servers: []ServerSpec{nvme}})

	assert.True(t, nvmeResult.TotalKg.GreaterThan(hddResult.TotalKg))
}

func TestCalculateOnPrem_AnnualPeriod(t *testing.T) {
	server := ServerSpec{
		CPUCores:          dec("8"),
		RAMGB:             dec("16"),
		AvgCPUUtilization: dec("0.5"),
		HoursPerDay:       dec("24"),
	}

	monthly := CalculateOnPrem(OnPremInput{Servers: []ServerSpec{server}, CalculationPeriod: "monthly"})
	annual := CalculateOnPrem(OnPremInput{Servers: []ServerSpec{server}, CalculationPeriod: "annual"})

	// 365 days versus 30.
	ratio := annual.TotalKg.Div(monthly.TotalKg)
	assert.True(t, ratio.Equal(decimal.NewFromInt(365).Div(decimal.NewFromInt(30))))
}
