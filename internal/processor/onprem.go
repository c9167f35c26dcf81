package processor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/evergrid/carbonledger/internal/emission"
	"github.com/shopspring/decimal"
)

type onPremServerSpec struct {
	Name              string          `json:"name"`
	CPUCores          decimal.Decimal `json:"cpu_cores"`
	RAMGB             decimal.Decimal `json:"ram_gb"`
	StorageTB         decimal.Decimal `json:"storage_tb"`
	StorageType       string          `json:"storage_type"`
	AvgCPUUtilization decimal.Decimal `json:"avg_cpu_utilization"`
	HoursPerDay       decimal.Decimal `json:"hours_per_day"`
	DaysPerMonth      decimal.Decimal `json:"days_per_month"`
}

type onPremEventPayload struct {
	ReferenceID         string             `json:"reference_id"`
	Month               string             `json:"month"`
	Servers             []onPremServerSpec `json:"servers"`
	LocationCountryCode string             `json:"location_country_code"`
	PUE                 decimal.Decimal    `json:"pue"`
	CalculationPeriod   string             `json:"calculation_period"`
}

// OnPremProcessor handles on-premise server fleet reports.
type OnPremProcessor struct {
	grid GridIntensityResolver
}

func NewOnPremProcessor(grid GridIntensityResolver) *OnPremProcessor {
	return &OnPremProcessor{grid: grid}
}

func (p *OnPremProcessor) EventType() string { return EventTypeOnPremServer }

func (p *OnPremProcessor) Validate(raw json.RawMessage) error {
	var payload onPremEventPayload
	if err := decodePayload(raw, &payload); err != nil {
		return err
	}
	if len(payload.Servers) == 0 {
		return missingField("servers")
	}
	return nil
}

func (p *OnPremProcessor) Process(ctx context.Context, raw json.RawMessage) (Result, error) {
	var payload onPremEventPayload
	if err := decodePayload(raw, &payload); err != nil {
		return Result{}, err
	}
	if len(payload.Servers) == 0 {
		return Result{}, missingField("servers")
	}

	servers := make([]emission.ServerSpec, 0, len(payload.Servers))
	for _, s := range payload.Servers {
		servers = append(servers, emission.ServerSpec{
			Name:              s.Name,
			CPUCores:          s.CPUCores,
			RAMGB:             s.RAMGB,
			StorageTB:         s.StorageTB,
			StorageType:       s.StorageType,
			AvgCPUUtilization: s.AvgCPUUtilization,
			HoursPerDay:       s.HoursPerDay,
			DaysPerMonth:      s.DaysPerMonth,
		})
	}

	result := emission.CalculateOnPrem(emission.OnPremInput{
		Servers:             servers,
		LocationCountryCode: payload.LocationCountryCode,
		PUE:                 payload.PUE,
		CalculationPeriod:   payload.CalculationPeriod,
		GridIntensity:       resolveIntensity(ctx, p.grid, payload.LocationCountryCode),
	})

	referenceID := payload.ReferenceID
	if referenceID == "" {
		referenceID = fmt.Sprintf("onprem_%s", monthOrUnknown(payload.Month))
	}

	return Result{
		KgCO2Emitted:  result.TotalKg,
		ReferenceID:   referenceID,
		ReferenceType: "onprem_server",
		Metadata: map[string]any{
			"server_count": len(payload.Servers),
			"breakdown":    breakdownMetadata(result.Breakdown),
			"factors":      result.Factors,
		},
	}, nil
}
