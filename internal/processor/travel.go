package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/evergrid/carbonledger/internal/emission"
	"github.com/shopspring/decimal"
)

type travelEventPayload struct {
	ReferenceID    string          `json:"reference_id"`
	Date           string          `json:"date"`
	TravelType     string          `json:"travel_type"`
	DistanceKm     decimal.Decimal `json:"distance_km"`
	Nights         decimal.Decimal `json:"nights"`
	PassengerCount decimal.Decimal `json:"passenger_count"`
	FlightClass    string          `json:"flight_class"`
	IsDomestic     bool            `json:"is_domestic"`
	RailType       string          `json:"rail_type"`
	VehicleType    string          `json:"vehicle_type"`
	CountryCode    string          `json:"country_code"`
}

// TravelProcessor handles business travel reports.
type TravelProcessor struct{}

func NewTravelProcessor() *TravelProcessor { return &TravelProcessor{} }

func (p *TravelProcessor) EventType() string { return EventTypeTravelEmissions }

func (p *TravelProcessor) Validate(raw json.RawMessage) error {
	var payload travelEventPayload
	if err := decodePayload(raw, &payload); err != nil {
		return err
	}
	if payload.TravelType == "" {
		return missingField("travel_type")
	}
	if _, err := emission.CalculateTravel(emission.TravelInput{TravelType: payload.TravelType}); err != nil {
		return invalidField("travel_type", "is not a supported travel type")
	}
	return nil
}

func (p *TravelProcessor) Process(ctx context.Context, raw json.RawMessage) (Result, error) {
	_ = ctx
	var payload travelEventPayload
	if err := decodePayload(raw, &payload); err != nil {
		return Result{}, err
	}
	if payload.TravelType == "" {
		return Result{}, missingField("travel_type")
	}

	result, err := emission.CalculateTravel(emission.TravelInput{
		TravelType:     payload.TravelType,
		DistanceKm:     payload.DistanceKm,
		Nights:         payload.Nights,
		PassengerCount: payload.PassengerCount,
		FlightClass:    payload.FlightClass,
		IsDomestic:     payload.IsDomestic,
		RailType:       payload.RailType,
		VehicleType:    payload.VehicleType,
		CountryCode:    payload.CountryCode,
	})
	if err != nil {
		return Result{}, invalidField("travel_type", err.Error())
	}

	travelType := strings.ToLower(strings.TrimSpace(payload.TravelType))
	referenceID := payload.ReferenceID
	if referenceID == "" {
		referenceID = fmt.Sprintf("travel_%s_%s", travelType, dateOrUnknown(payload.Date))
	}

	return Result{
		KgCO2Emitted:  result.TotalKg,
		ReferenceID:   referenceID,
		ReferenceType: "travel_" + travelType,
		Metadata: map[string]any{
			"travel_type": travelType,
			"breakdown":   breakdownMetadata(result.Breakdown),
			"factors":     result.Factors,
		},
	}, nil
}

func dateOrUnknown(date string) string {
	if strings.TrimSpace(date) == "" {
		return "unknown"
	}
	return date
}
