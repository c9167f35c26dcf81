package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/evergrid/carbonledger/internal/emission"
	"github.com/shopspring/decimal"
)

type cdnEventPayload struct {
	ReferenceID          string          `json:"reference_id"`
	Month                string          `json:"month"`
	MonthlyGBTransferred decimal.Decimal `json:"monthly_gb_transferred"`
	Provider             string          `json:"provider"`
	Regions              []string        `json:"regions"`
}

// CDNProcessor handles monthly CDN data transfer reports.
type CDNProcessor struct {
	grid GridIntensityResolver
}

func NewCDNProcessor(grid GridIntensityResolver) *CDNProcessor {
	return &CDNProcessor{grid: grid}
}

func (p *CDNProcessor) EventType() string { return EventTypeCDNDataTransfer }

func (p *CDNProcessor) Validate(raw json.RawMessage) error {
	var payload cdnEventPayload
	if err := decodePayload(raw, &payload); err != nil {
		return err
	}
	if !payload.MonthlyGBTransferred.IsPositive() {
		return invalidField("monthly_gb_transferred", "must be positive")
	}
	return nil
}

func (p *CDNProcessor) Process(ctx context.Context, raw json.RawMessage) (Result, error) {
	var payload cdnEventPayload
	if err := decodePayload(raw, &payload); err != nil {
		return Result{}, err
	}
	if !payload.MonthlyGBTransferred.IsPositive() {
		return Result{}, invalidField("monthly_gb_transferred", "must be positive")
	}

	var intensity decimal.Decimal
	if len(payload.Regions) == 1 {
		intensity = resolveIntensity(ctx, p.grid, payload.Regions[0])
	}

	result := emission.CalculateCDN(emission.CDNInput{
		MonthlyGBTransferred: payload.MonthlyGBTransferred,
		Provider:             payload.Provider,
		Regions:              payload.Regions,
		GridIntensity:        intensity,
	})

	provider := strings.ToLower(strings.TrimSpace(payload.Provider))
	if provider == "" {
		provider = "generic"
	}
	referenceID := payload.ReferenceID
	if referenceID == "" {
		referenceID = fmt.Sprintf("cdn_%s_%s", provider, monthOrUnknown(payload.Month))
	}

	return Result{
		KgCO2Emitted:  result.TotalKg,
		ReferenceID:   referenceID,
		ReferenceType: "cdn_data_transfer",
		Metadata: map[string]any{
			"provider":  provider,
			"regions":   payload.Regions,
			"breakdown": breakdownMetadata(result.Breakdown),
			"factors":   result.Factors,
		},
	}, nil
}

func monthOrUnknown(month string) string {
	if strings.TrimSpace(month) == "" {
		return "unknown"
	}
	return month
}
