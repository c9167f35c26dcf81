package processor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/evergrid/carbonledger/internal/emission"
	"github.com/shopspring/decimal"
)

type lubricantEventPayload struct {
	MachineID        string          `json:"machine_id"`
	RunID            string          `json:"run_id"`
	VolumeLiters     decimal.Decimal `json:"volume_liters"`
	StartedAt        time.Time       `json:"started_at"`
	EndedAt          time.Time       `json:"ended_at"`
	MachineType      string          `json:"machine_type"`
	Location         string          `json:"location"`
	FuelType         string          `json:"fuel_type"`
	ProductionFactor decimal.Decimal `json:"production_factor"`
	TransportFactor  decimal.Decimal `json:"transport_factor"`
}

// LubricantProcessor handles oil and gas lubricant machine runs.
type LubricantProcessor struct{}

func NewLubricantProcessor() *LubricantProcessor { return &LubricantProcessor{} }

func (p *LubricantProcessor) EventType() string { return EventTypeOilGasLubricant }

func (p *LubricantProcessor) Validate(raw json.RawMessage) error {
	var payload lubricantEventPayload
	if err := decodePayload(raw, &payload); err != nil {
		return err
	}
	if payload.MachineID == "" {
		return missingField("machine_id")
	}
	if payload.RunID == "" {
		return missingField("run_id")
	}
	if !payload.VolumeLiters.IsPositive() {
		return invalidField("volume_liters", "must be positive")
	}
	if !payload.EndedAt.IsZero() && !payload.StartedAt.IsZero() && payload.EndedAt.Before(payload.StartedAt) {
		return invalidField("ended_at", "must be after started_at")
	}
	return nil
}

func (p *LubricantProcessor) Process(ctx context.Context, raw json.RawMessage) (Result, error) {
	_ = ctx
	var payload lubricantEventPayload
	if err := decodePayload(raw, &payload); err != nil {
		return Result{}, err
	}
	if err := p.Validate(raw); err != nil {
		return Result{}, err
	}

	result := emission.CalculateLubricant(emission.LubricantInput{
		VolumeLiters:     payload.VolumeLiters,
		ProductionFactor: payload.ProductionFactor,
		TransportFactor:  payload.TransportFactor,
	})

	machineType := payload.MachineType
	if machineType == "" {
		machineType = "generic"
	}

	metadata := map[string]any{
		"machine_id":    payload.MachineID,
		"machine_type":  machineType,
		"location":      payload.Location,
		"volume_liters": payload.VolumeLiters.String(),
		"fuel_type":     payload.FuelType,
		"breakdown":     breakdownMetadata(result.Breakdown),
	}
	if !payload.StartedAt.IsZero() && !payload.EndedAt.IsZero() {
		metadata["duration_seconds"] = payload.EndedAt.Sub(payload.StartedAt).Seconds()
		metadata["started_at"] = payload.StartedAt.UTC().Format(time.RFC3339)
		metadata["ended_at"] = payload.EndedAt.UTC().Format(time.RFC3339)
	}

	return Result{
		KgCO2Emitted:  result.TotalKg,
		ReferenceID:   payload.RunID,
		ReferenceType: "oil_gas_lubricant_run",
		Metadata:      metadata,
	}, nil
}
