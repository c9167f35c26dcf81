package processor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/evergrid/carbonledger/internal/emission"
	"github.com/shopspring/decimal"
)

type officeLocation struct {
	City         string          `json:"city"`
	CountryCode  string          `json:"country_code"`
	SquareMeters decimal.Decimal `json:"square_meters"`
}

type workforceEventPayload struct {
	ReferenceID       string           `json:"reference_id"`
	Month             string           `json:"month"`
	TotalEmployees    decimal.Decimal  `json:"total_employees"`
	RemotePercentage  decimal.Decimal  `json:"remote_percentage"`
	OfficeLocations   []officeLocation `json:"office_locations"`
	CalculationPeriod string           `json:"calculation_period"`
}

// WorkforceProcessor handles workforce energy reports.
type WorkforceProcessor struct{}

func NewWorkforceProcessor() *WorkforceProcessor { return &WorkforceProcessor{} }

func (p *WorkforceProcessor) EventType() string { return EventTypeWorkforceEmissions }

func (p *WorkforceProcessor) Validate(raw json.RawMessage) error {
	var payload workforceEventPayload
	if err := decodePayload(raw, &payload); err != nil {
		return err
	}
	if !payload.TotalEmployees.IsPositive() {
		return missingField("total_employees")
	}
	return nil
}

func (p *WorkforceProcessor) Process(ctx context.Context, raw json.RawMessage) (Result, error) {
	_ = ctx
	var payload workforceEventPayload
	if err := decodePayload(raw, &payload); err != nil {
		return Result{}, err
	}
	if !payload.TotalEmployees.IsPositive() {
		return Result{}, missingField("total_employees")
	}

	offices := make([]emission.OfficeLocation, 0, len(payload.OfficeLocations))
	for _, office := range payload.OfficeLocations {
		offices = append(offices, emission.OfficeLocation{
			City:         office.City,
			CountryCode:  office.CountryCode,
			SquareMeters: office.SquareMeters,
		})
	}

	result := emission.CalculateWorkforce(emission.WorkforceInput{
		TotalEmployees:    payload.TotalEmployees,
		RemotePercentage:  payload.RemotePercentage,
		OfficeLocations:   offices,
		CalculationPeriod: payload.CalculationPeriod,
	})

	referenceID := payload.ReferenceID
	if referenceID == "" {
		referenceID = fmt.Sprintf("workforce_%s", monthOrUnknown(payload.Month))
	}

	return Result{
		KgCO2Emitted:  result.TotalKg,
		ReferenceID:   referenceID,
		ReferenceType: "workforce",
		Metadata: map[string]any{
			"total_employees":   payload.TotalEmployees.String(),
			"remote_percentage": payload.RemotePercentage.String(),
			"breakdown":         breakdownMetadata(result.Breakdown),
			"factors":           result.Factors,
		},
	}, nil
}
