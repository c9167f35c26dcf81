package processor

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/evergrid/carbonledger/internal/emission"
	"github.com/shopspring/decimal"
)

// webEventPayload is the SDK tracking payload for website traffic events.
type webEventPayload struct {
	Event        string         `json:"event"`
	SessionID    string         `json:"session_id"`
	TrackerToken string         `json:"tracker_token"`
	EventID      string         `json:"event_id"`
	UserID       string         `json:"user_id"`
	PageURL      string         `json:"page_url"`
	Referrer     string         `json:"referrer"`
	Timestamp    time.Time      `json:"timestamp"`
	UTMParams    map[string]any `json:"utm_params"`

	UserAgent        string `json:"user_agent"`
	ScreenResolution string `json:"screen_resolution"`
	Language         string `json:"language"`
	Timezone         string `json:"timezone"`
	PageTitle        string `json:"page_title"`
	CountryCode      string `json:"country_code"`

	BytesPerPageView   int64 `json:"bytesPerPageView"`
	BytesPerClick      int64 `json:"bytesPerClick"`
	BytesPerConversion int64 `json:"bytesPerConversion"`
	EncodedSize        int64 `json:"encodedSize"`
	DecodedSize        int64 `json:"decodedSize"`

	TimeSpentSeconds int64 `json:"time_spent_seconds"`
	IsVisible        bool  `json:"is_visible"`

	ConversionType   string  `json:"conversion_type"`
	ConversionLabel  string  `json:"conversion_label"`
	ConversionValue  float64 `json:"conversion_value"`
	ConversionRuleID string  `json:"conversion_rule_id"`
}

// Default transfer sizes when the SDK did not measure real bytes.
var webDefaultBytes = map[string]int64{
	"page_view":  512 * 1024,
	"click":      5 * 1024,
	"conversion": 20 * 1024,
	"ping":       1 * 1024,
}

// WebProcessor handles website traffic events from the tracking SDK.
type WebProcessor struct {
	grid GridIntensityResolver
}

func NewWebProcessor(grid GridIntensityResolver) *WebProcessor {
	return &WebProcessor{grid: grid}
}

func (p *WebProcessor) EventType() string { return EventTypeInternetWeb }

func (p *WebProcessor) Validate(raw json.RawMessage) error {
	var payload webEventPayload
	if err := decodePayload(raw, &payload); err != nil {
		return err
	}
	if payload.EventID == "" {
		return missingField("event_id")
	}
	if payload.SessionID == "" {
		return missingField("session_id")
	}
	if payload.PageURL == "" {
		return missingField("page_url")
	}
	return nil
}

func (p *WebProcessor) Process(ctx context.Context, raw json.RawMessage) (Result, error) {
	var payload webEventPayload
	if err := decodePayload(raw, &payload); err != nil {
		return Result{}, err
	}
	if payload.EventID == "" {
		return Result{}, missingField("event_id")
	}

	subtype := strings.TrimSpace(payload.Event)
	if subtype == "" {
		subtype = "page_view"
	}

	bytes := p.bytesTransferred(&payload, subtype)
	if bytes == 0 {
		if def, ok := webDefaultBytes[subtype]; ok {
			bytes = def
		} else {
			bytes = webDefaultBytes["page_view"]
		}
	}

	device := detectDeviceType(payload.UserAgent, payload.ScreenResolution)
	region := strings.ToUpper(strings.TrimSpace(payload.CountryCode))
	if region == "" {
		region = "US"
	}

	result := emission.CalculateWebsite(emission.WebsiteInput{
		BytesTransferred: decimal.NewFromInt(bytes),
		CountryCode:      region,
		GridIntensity:    resolveIntensity(ctx, p.grid, region),
	})

	metadata := map[string]any{
		"event_type":        subtype,
		"session_id":        payload.SessionID,
		"page_url":          payload.PageURL,
		"referrer":          payload.Referrer,
		"device_type":       device,
		"utm_params":        payload.UTMParams,
		"bytes_transferred": bytes,
		"breakdown":         breakdownMetadata(result.Breakdown),
		"factors":           result.Factors,
	}
	if !payload.Timestamp.IsZero() {
		metadata["timestamp"] = payload.Timestamp.UTC().Format(time.RFC3339)
	}
	if payload.PageTitle != "" {
		metadata["page_title"] = payload.PageTitle
	}
	if payload.UserAgent != "" {
		metadata["user_agent"] = payload.UserAgent
	}
	switch subtype {
	case "conversion":
		metadata["conversion_type"] = payload.ConversionType
		metadata["conversion_label"] = payload.ConversionLabel
		metadata["conversion_value"] = payload.ConversionValue
		metadata["conversion_rule_id"] = payload.ConversionRuleID
	case "ping":
		metadata["time_spent_seconds"] = payload.TimeSpentSeconds
		metadata["is_visible"] = payload.IsVisible
	}

	return Result{
		KgCO2Emitted:  result.TotalKg,
		ReferenceID:   payload.EventID,
		ReferenceType: "internet_web_" + subtype,
		Metadata:      metadata,
	}, nil
}

func (p *WebProcessor) bytesTransferred(payload *webEventPayload, subtype string) int64 {
	switch subtype {
	case "page_view":
		if payload.BytesPerPageView > 0 {
			return payload.BytesPerPageView
		}
		if payload.DecodedSize > 0 {
			return payload.DecodedSize
		}
		return payload.EncodedSize
	case "conversion":
		return payload.BytesPerConversion
	case "click":
		return payload.BytesPerClick
	default:
		return 0
	}
}

func resolveIntensity(ctx context.Context, grid GridIntensityResolver, region string) decimal.Decimal {
	if grid == nil {
		return decimal.Zero
	}
	if intensity, ok := grid.Intensity(ctx, region); ok {
		return intensity
	}
	return decimal.Zero
}

func breakdownMetadata(breakdown map[string]decimal.Decimal) map[string]string {
	out := make(map[string]string, len(breakdown))
	for key, value := range breakdown {
		out[key] = value.String()
	}
	return out
}
