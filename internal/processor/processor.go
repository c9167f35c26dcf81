package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Event type keys routed through the registry.
const (
	EventTypeInternetWeb        = "internet_web"
	EventTypeInternetAds        = "internet_ads"
	EventTypeCDNDataTransfer    = "cdn_data_transfer"
	EventTypeCloudEmissions     = "cloud_emissions"
	EventTypeOnPremServer       = "onprem_server"
	EventTypeTravelEmissions    = "travel_emissions"
	EventTypeWorkforceEmissions = "workforce_emissions"
	EventTypeOilGasLubricant    = "oil_gas_lubricant"
)

// Result is the outcome of processing one event. ReferenceID and
// ReferenceType together form the dedup key, so both must be stable across
// re-delivery of the identical event.
type Result struct {
	KgCO2Emitted  decimal.Decimal
	ReferenceID   string
	ReferenceType string
	Metadata      map[string]any
}

// Processor validates and computes emissions for one event type.
type Processor interface {
	EventType() string
	Validate(raw json.RawMessage) error
	Process(ctx context.Context, raw json.RawMessage) (Result, error)
}

// GridIntensityResolver supplies an already-resolved gCO2/kWh value for a
// region. A zero return with ok=false means use the static default table.
type GridIntensityResolver interface {
	Intensity(ctx context.Context, region string) (decimal.Decimal, bool)
}

// ValidationError marks a payload the submitter must fix; it is reported
// synchronously and never enqueued.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid payload: %s %s", e.Field, e.Reason)
}

// IsValidationError reports whether err is a payload validation failure.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func missingField(field string) error {
	return &ValidationError{Field: field, Reason: "is required"}
}

func invalidField(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func decodePayload(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return &ValidationError{Field: "payload", Reason: "is empty"}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &ValidationError{Field: "payload", Reason: "is not valid JSON: " + err.Error()}
	}
	return nil
}
