package emission

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestGridIntensityDefault_FallsBackToWorld(t *testing.T) {
	assert.Equal(t, "233", GridIntensityDefault("gb").String())
	assert.Equal(t, "233", GridIntensityDefault(" GB ").String())
	assert.Equal(t, "475", GridIntensityDefault("XX").String())
	assert.Equal(t, "475", GridIntensityDefault("").String())
}

func TestGridFactorKgPerKwh(t *testing.T) {
	assert.Equal(t, "0.057", GridFactorKgPerKwh("FR").String())
	assert.Equal(t, "0.475", GridFactorKgPerKwh("unknown").String())
}

func TestConvert(t *testing.T) {
	one := decimal.NewFromInt(1)

	assert.Equal(t, "1000", Convert(one, UnitKilograms, UnitGrams).String())
	assert.Equal(t, "0.001", Convert(one, UnitGrams, UnitKilograms).String())
	assert.Equal(t, "1000000", Convert(one, UnitTonnes, UnitGrams).String())
	assert.Equal(t, "0.0005", Convert(dec("500"), UnitGrams, UnitTonnes).String())

	// Same unit is a no-op, not a round trip through kg.
	assert.True(t, Convert(dec("42.5"), UnitTonnes, UnitTonnes).Equal(dec("42.5")))
}

func TestCDNEfficiency_UnknownProviderUsesGeneric(t *testing.T) {
	assert.Equal(t, "0.03", CDNEfficiency("cloudflare").String())
	assert.Equal(t, "0.06", CDNEfficiency("some-new-cdn").String())
}

func TestCloudCostFactor(t *testing.T) {
	assert.Equal(t, "0.045", CloudCostFactor("GCP").String())
	assert.Equal(t, "0.1", CloudCostFactor("oracle").String())
}
