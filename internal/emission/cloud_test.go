package emission

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateCloud_FromUsageRows(t *testing.T) {
	result, err := CalculateCloud(CloudInput{
		Provider:          "aws",
		CalculationMethod: "csv",
		UsageRows: []CloudUsageRow{
			{Service: "ec2", Region: "us-east-1", EmissionsKgCO2: dec("12.5")},
			{Service: "s3", Region: "us-east-1", EmissionsKgCO2: dec("2.5")},
			{Service: "ec2", Region: "eu-west-1", EmissionsKgCO2: dec("5")},
		},
	})
	assert.NoError(t, err)

	assert.Equal(t, "20", result.TotalKg.String())
	assert.Equal(t, "17.5", result.Breakdown["service_ec2"].String())
	assert.Equal(t, "15", result.Breakdown["region_us-east-1"].String())
	assert.Equal(t, "high", result.Factors["accuracy"])
}

func TestCalculateCloud_FromMonthlySpend(t *testing.T) {
	result, err := CalculateCloud(CloudInput{
		Provider:          "aws",
		CalculationMethod: "cost",
		MonthlyCostUSD:    dec("1000"),
	})
	assert.NoError(t, err)

	assert.Equal(t, "98", result.TotalKg.String())
	assert.Equal(t, "cost_estimate", result.Factors["calculation_method"])
	assert.Equal(t, "medium", result.Factors["accuracy"])
}

func TestCalculateCloud_MissingDataFails(t *testing.T) {
	_, err := CalculateCloud(CloudInput{Provider: "aws", CalculationMethod: "csv"})
	assert.ErrorIs(t, err, ErrInvalidCloudInput)

	_, err = CalculateCloud(CloudInput{Provider: "aws", CalculationMethod: "cost"})
	assert.ErrorIs(t, err, ErrInvalidCloudInput)
}
