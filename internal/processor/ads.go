package processor

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/evergrid/carbonledger/internal/emission"
	"github.com/shopspring/decimal"
)

type adsEventPayload struct {
	Event        string            `json:"event"`
	SessionID    string            `json:"session_id"`
	TrackerToken string            `json:"tracker_token"`
	EventID      string            `json:"event_id"`
	UserID       string            `json:"user_id"`
	PageURL      string            `json:"page_url"`
	Referrer     string            `json:"referrer"`
	Timestamp    time.Time         `json:"timestamp"`
	UTMParams    map[string]string `json:"utm_params"`

	UserAgent        string `json:"user_agent"`
	ScreenResolution string `json:"screen_resolution"`
	CountryCode      string `json:"country_code"`

	Platform   string `json:"platform"`
	CampaignID string `json:"campaign_id"`
	AdID       string `json:"ad_id"`
	AdFormat   string `json:"ad_format"`

	Impressions int64 `json:"impressions"`
	Clicks      int64 `json:"clicks"`
	Conversions int64 `json:"conversions"`
}

// AdsProcessor handles ad impression, click and conversion traffic.
type AdsProcessor struct {
	grid GridIntensityResolver
}

func NewAdsProcessor(grid GridIntensityResolver) *AdsProcessor {
	return &AdsProcessor{grid: grid}
}

func (p *AdsProcessor) EventType() string { return EventTypeInternetAds }

func (p *AdsProcessor) Validate(raw json.RawMessage) error {
	var payload adsEventPayload
	if err := decodePayload(raw, &payload); err != nil {
		return err
	}
	if payload.EventID == "" {
		return missingField("event_id")
	}
	if payload.SessionID == "" {
		return missingField("session_id")
	}
	return nil
}

func (p *AdsProcessor) Process(ctx context.Context, raw json.RawMessage) (Result, error) {
	var payload adsEventPayload
	if err := decodePayload(raw, &payload); err != nil {
		return Result{}, err
	}
	if payload.EventID == "" {
		return Result{}, missingField("event_id")
	}

	platform := p.platform(&payload)
	adFormat := p.adFormat(&payload)
	device := detectDeviceType(payload.UserAgent, payload.ScreenResolution)
	region := strings.ToUpper(strings.TrimSpace(payload.CountryCode))
	if region == "" {
		region = "US"
	}

	impressions := payload.Impressions
	if impressions <= 0 {
		// Each tracked event is one impression unless the platform
		// reported an aggregate.
		impressions = 1
	}

	campaignID := firstNonEmpty(payload.UTMParams["utm_campaign"], payload.CampaignID, payload.SessionID)
	adID := firstNonEmpty(payload.UTMParams["utm_content"], payload.UTMParams["utm_term"], payload.EventID)

	result := emission.CalculateAds(emission.AdsInput{
		Platform:      platform,
		AdFormat:      adFormat,
		Impressions:   decimal.NewFromInt(impressions),
		Clicks:        decimal.NewFromInt(payload.Clicks),
		Conversions:   decimal.NewFromInt(payload.Conversions),
		DeviceType:    device,
		CountryCode:   region,
		GridIntensity: resolveIntensity(ctx, p.grid, region),
	})

	return Result{
		KgCO2Emitted:  result.TotalKg,
		ReferenceID:   payload.EventID,
		ReferenceType: "internet_ads_" + platform,
		Metadata: map[string]any{
			"event_type":  payload.Event,
			"campaign_id": campaignID,
			"ad_id":       adID,
			"platform":    platform,
			"ad_format":   adFormat,
			"device_type": device,
			"utm_params":  payload.UTMParams,
			"page_url":    payload.PageURL,
			"breakdown":   breakdownMetadata(result.Breakdown),
			"factors":     result.Factors,
		},
	}, nil
}

func (p *AdsProcessor) platform(payload *adsEventPayload) string {
	if payload.Platform != "" {
		return strings.ToLower(strings.TrimSpace(payload.Platform))
	}

	utmSource := strings.ToLower(payload.UTMParams["utm_source"])
	switch {
	case strings.Contains(utmSource, "google"), strings.Contains(utmSource, "adwords"):
		return "google_ads"
	case strings.Contains(utmSource, "facebook"), strings.Contains(utmSource, "meta"), strings.Contains(utmSource, "fb"):
		return "meta"
	case strings.Contains(utmSource, "linkedin"):
		return "linkedin"
	case strings.Contains(utmSource, "twitter"), strings.Contains(utmSource, "x.com"):
		return "twitter"
	case strings.Contains(utmSource, "tiktok"):
		return "tiktok"
	default:
		return "google_ads"
	}
}

func (p *AdsProcessor) adFormat(payload *adsEventPayload) string {
	if payload.AdFormat != "" {
		return strings.ToLower(strings.TrimSpace(payload.AdFormat))
	}
	switch payload.Event {
	case "ping":
		return "video"
	case "click", "conversion":
		return "rich_media"
	default:
		return "static_display"
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
