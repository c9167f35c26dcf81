package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/evergrid/carbonledger/internal/emission"
	"github.com/shopspring/decimal"
)

type cloudUsageRow struct {
	Service        string          `json:"service"`
	Region         string          `json:"region"`
	EmissionsKgCO2 decimal.Decimal `json:"emissions_kg_co2"`
}

type cloudEventPayload struct {
	ReferenceID       string          `json:"reference_id"`
	Month             string          `json:"month"`
	Provider          string          `json:"provider"`
	CalculationMethod string          `json:"calculation_method"`
	CSVData           []cloudUsageRow `json:"csv_data"`
	MonthlyCostUSD    decimal.Decimal `json:"monthly_cost_usd"`
	Region            string          `json:"region"`
}

// CloudProcessor handles cloud provider usage and spend reports.
type CloudProcessor struct{}

func NewCloudProcessor() *CloudProcessor { return &CloudProcessor{} }

func (p *CloudProcessor) EventType() string { return EventTypeCloudEmissions }

func (p *CloudProcessor) Validate(raw json.RawMessage) error {
	var payload cloudEventPayload
	if err := decodePayload(raw, &payload); err != nil {
		return err
	}
	if payload.Provider == "" {
		return missingField("provider")
	}
	if payload.CalculationMethod == "" {
		return missingField("calculation_method")
	}
	return nil
}

func (p *CloudProcessor) Process(ctx context.Context, raw json.RawMessage) (Result, error) {
	_ = ctx
	var payload cloudEventPayload
	if err := decodePayload(raw, &payload); err != nil {
		return Result{}, err
	}
	if payload.Provider == "" {
		return Result{}, missingField("provider")
	}

	rows := make([]emission.CloudUsageRow, 0, len(payload.CSVData))
	for _, row := range payload.CSVData {
		rows = append(rows, emission.CloudUsageRow{
			Service:        row.Service,
			Region:         row.Region,
			EmissionsKgCO2: row.EmissionsKgCO2,
		})
	}

	result, err := emission.CalculateCloud(emission.CloudInput{
		Provider:          payload.Provider,
		CalculationMethod: payload.CalculationMethod,
		UsageRows:         rows,
		MonthlyCostUSD:    payload.MonthlyCostUSD,
		Region:            payload.Region,
	})
	if err != nil {
		return Result{}, invalidField("calculation_method", err.Error())
	}

	provider := strings.ToLower(strings.TrimSpace(payload.Provider))
	referenceID := payload.ReferenceID
	if referenceID == "" {
		referenceID = fmt.Sprintf("cloud_%s_%s", provider, monthOrUnknown(payload.Month))
	}

	accuracy, _ := result.Factors["accuracy"].(string)

	return Result{
		KgCO2Emitted:  result.TotalKg,
		ReferenceID:   referenceID,
		ReferenceType: "cloud_" + provider,
		Metadata: map[string]any{
			"provider":           provider,
			"calculation_method": payload.CalculationMethod,
			"accuracy":           accuracy,
			"breakdown":          breakdownMetadata(result.Breakdown),
			"factors":            result.Factors,
		},
	}, nil
}
