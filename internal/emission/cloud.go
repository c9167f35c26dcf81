package emission

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// CloudUsageRow is one line of a provider carbon export.
type CloudUsageRow struct {
	Service        string
	Region         string
	EmissionsKgCO2 decimal.Decimal
}

// CloudInput describes a cloud provider emission event. Exported usage rows
// take precedence; spend-based estimation is the coarse fallback.
type CloudInput struct {
	Provider          string
	CalculationMethod string
	UsageRows         []CloudUsageRow
	MonthlyCostUSD    decimal.Decimal
	Region            string
}

var ErrInvalidCloudInput = errors.New("invalid cloud calculation method or missing data")

// CalculateCloud computes CO2e from either exported usage data or monthly spend.
func CalculateCloud(in CloudInput) (Result, error) {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		provider = "aws"
	}
	method := strings.ToLower(strings.TrimSpace(in.CalculationMethod))
	if method == "" {
		method = "csv"
	}

	switch {
	case method == "csv" && len(in.UsageRows) > 0:
		return cloudFromUsage(in.UsageRows, provider), nil
	case method == "cost" && in.MonthlyCostUSD.IsPositive():
		return cloudFromCost(in.MonthlyCostUSD, provider, in.Region), nil
	default:
		return Result{}, ErrInvalidCloudInput
	}
}

func cloudFromUsage(rows []CloudUsageRow, provider string) Result {
	total := decimal.Zero
	byService := map[string]decimal.Decimal{}
	byRegion := map[string]decimal.Decimal{}

	for _, row := range rows {
		service := row.Service
		if service == "" {
			service = "unknown"
		}
		region := row.Region
		if region == "" {
			region = "unknown"
		}
		total = total.Add(row.EmissionsKgCO2)
		byService[service] = byService[service].Add(row.EmissionsKgCO2)
		byRegion[region] = byRegion[region].Add(row.EmissionsKgCO2)
	}

	breakdown := map[string]decimal.Decimal{}
	for service, kg := range byService {
		breakdown["service_"+service] = kg
	}
	for region, kg := range byRegion {
		breakdown["region_"+region] = kg
	}

	return Result{
		TotalKg:   total,
		Breakdown: breakdown,
		Factors: map[string]any{
			"provider":           provider,
			"calculation_method": "csv_data",
			"accuracy":           "high",
		},
	}
}

func cloudFromCost(cost decimal.Decimal, provider, region string) Result {
	factor := CloudCostFactor(provider)
	total := cost.Mul(factor)

	if strings.TrimSpace(region) == "" {
		region = "default"
	}

	return Result{
		TotalKg: total,
		Breakdown: map[string]decimal.Decimal{
			"monthly_cost_usd":           cost,
			"emission_factor_kg_per_usd": factor,
		},
		Factors: map[string]any{
			"provider":           provider,
			"region":             region,
			"calculation_method": "cost_estimate",
			"accuracy":           "medium",
		},
	}
}
