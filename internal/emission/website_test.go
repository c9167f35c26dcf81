package emission

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCalculateWebsite_OneGigabyte(t *testing.T) {
	result := CalculateWebsite(WebsiteInput{
		BytesTransferred: decimal.NewFromInt(1073741824),
		CountryCode:      "GB",
	})

	// 1 GB * 0.5 kWh/GB * 1.2 overhead * 0.233 kg/kWh
	assert.Equal(t, "0.1398", result.TotalKg.String())
	assert.Equal(t, "1", result.Breakdown["data_gb"].String())
	assert.Equal(t, "0.6", result.Breakdown["total_energy_kwh"].String())
	assert.Equal(t, "GB", result.Factors["region"])
}

func TestCalculateWebsite_InjectedIntensityWins(t *testing.T) {
	static := CalculateWebsite(WebsiteInput{
		BytesTransferred: decimal.NewFromInt(1073741824),
		CountryCode:      "GB",
	})
	live := CalculateWebsite(WebsiteInput{
		BytesTransferred: decimal.NewFromInt(1073741824),
		CountryCode:      "GB",
		GridIntensity:    dec("100"),
	})

	assert.Equal(t, "0.06", live.TotalKg.String())
	assert.True(t, live.TotalKg.LessThan(static.TotalKg))
}

func TestCalculateWebsite_EmptyRegionIsWorld(t *testing.T) {
	result := CalculateWebsite(WebsiteInput{
		BytesTransferred: decimal.NewFromInt(1024),
	})
	assert.Equal(t, "WORLD", result.Factors["region"])
}
