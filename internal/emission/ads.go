package emission

import (
	"strings"

	"github.com/shopspring/decimal"
)

// AdFormat classifies the creative delivered per impression.
type AdFormat string

const (
	AdFormatStaticDisplay AdFormat = "static_display"
	AdFormatRichMedia     AdFormat = "rich_media"
	AdFormatVideo         AdFormat = "video"
)

// AdPlatform identifies the serving platform.
type AdPlatform string

const (
	PlatformGoogleAds  AdPlatform = "google_ads"
	PlatformDV360      AdPlatform = "dv360"
	PlatformMeta       AdPlatform = "meta"
	PlatformTikTok     AdPlatform = "tiktok"
	PlatformSnapchat   AdPlatform = "snapchat"
	PlatformLinkedIn   AdPlatform = "linkedin"
	PlatformTwitterX   AdPlatform = "twitter_x"
	PlatformDSPGeneric AdPlatform = "dsp_generic"
)

// Ad serving energy per impression in Wh, by platform and format.
var adServingWhPerImp = map[AdPlatform]map[AdFormat]decimal.Decimal{
	PlatformGoogleAds: {
		AdFormatStaticDisplay: dec("0.0005"),
		AdFormatRichMedia:     dec("0.0020"),
		AdFormatVideo:         dec("0.0120"),
	},
	PlatformDV360: {
		AdFormatStaticDisplay: dec("0.0005"),
		AdFormatRichMedia:     dec("0.0020"),
		AdFormatVideo:         dec("0.0120"),
	},
	PlatformMeta: {
		AdFormatStaticDisplay: dec("0.0005"),
		AdFormatRichMedia:     dec("0.0015"),
		AdFormatVideo:         dec("0.0020"),
	},
	PlatformTikTok: {
		AdFormatVideo: dec("0.0120"),
	},
	PlatformSnapchat: {
		AdFormatVideo: dec("0.0020"),
	},
	PlatformLinkedIn: {
		AdFormatStaticDisplay: dec("0.0004"),
		AdFormatRichMedia:     dec("0.0010"),
	},
	PlatformTwitterX: {
		AdFormatStaticDisplay: dec("0.0010"),
		AdFormatRichMedia:     dec("0.0015"),
	},
	PlatformDSPGeneric: {
		AdFormatStaticDisplay: dec("0.0007"),
		AdFormatRichMedia:     dec("0.0015"),
		AdFormatVideo:         dec("0.0020"),
	},
}

// CDN delivery energy per impression in Wh, by platform and format.
var adCDNWhPerImp = map[AdPlatform]map[AdFormat]decimal.Decimal{
	PlatformGoogleAds: {
		AdFormatStaticDisplay: dec("0.0006"),
		AdFormatRichMedia:     dec("0.0008"),
		AdFormatVideo:         dec("0.0010"),
	},
	PlatformMeta: {
		AdFormatStaticDisplay: dec("0.0003"),
		AdFormatRichMedia:     dec("0.0004"),
		AdFormatVideo:         dec("0.0005"),
	},
	PlatformTikTok: {
		AdFormatVideo: dec("0.0010"),
	},
	PlatformSnapchat: {
		AdFormatVideo: dec("0.0010"),
	},
	PlatformLinkedIn: {
		AdFormatStaticDisplay: dec("0.0004"),
		AdFormatRichMedia:     dec("0.0005"),
	},
	PlatformTwitterX: {
		AdFormatStaticDisplay: dec("0.0006"),
		AdFormatRichMedia:     dec("0.0007"),
	},
	PlatformDSPGeneric: {
		AdFormatStaticDisplay: dec("0.0008"),
		AdFormatRichMedia:     dec("0.0009"),
		AdFormatVideo:         dec("0.0010"),
	},
}

// Network transfer energy per impression in Wh, by format.
var adNetworkWhPerImp = map[AdFormat]decimal.Decimal{
	AdFormatStaticDisplay: dec("0.00006"),
	AdFormatRichMedia:     dec("0.00020"),
	AdFormatVideo:         dec("0.00100"),
}

var (
	adTrackWhPerClick  = dec("0.0003")
	adServerWatts      = dec("100")
	adProcessingHours  = dec("0.001")
	adDataWhPerMB      = dec("0.20")
	adTransferMB       = dec("0.1")
	adServingDefaultWh = dec("0.0010")
	adCDNDefaultWh     = dec("0.0008")
	adNetworkDefaultWh = dec("0.00020")
	adDwellDefaultSec  = dec("5")
	secondsPerHour     = dec("3600")
)

// Device power draw while an ad is on screen, in watts.
var adDeviceWatts = map[string]decimal.Decimal{
	"mobile":  dec("2.0"),
	"desktop": dec("60.0"),
	"tablet":  dec("8.0"),
}

// Dwell time per impression by format, in seconds.
var adDwellSeconds = map[AdFormat]decimal.Decimal{
	AdFormatStaticDisplay: dec("2"),
	AdFormatRichMedia:     dec("5"),
	AdFormatVideo:         dec("15"),
}

// AdsInput describes an ad-campaign traffic emission event.
type AdsInput struct {
	Platform    string
	AdFormat    string
	Impressions decimal.Decimal
	Clicks      decimal.Decimal
	Conversions decimal.Decimal
	DeviceType  string
	CountryCode string

	GridIntensity decimal.Decimal
}

// CalculateAds computes upstream CO2e for ad serving, clicks and conversions.
// Downstream device emissions are reported in the breakdown but excluded from
// the total, matching the upstream accounting boundary.
func CalculateAds(in AdsInput) Result {
	platform := normalizePlatform(in.Platform)
	format := normalizeAdFormat(in.AdFormat)
	device := strings.ToLower(strings.TrimSpace(in.DeviceType))
	if _, ok := adDeviceWatts[device]; !ok {
		device = "desktop"
	}
	region := strings.ToUpper(strings.TrimSpace(in.CountryCode))
	if region == "" {
		region = "US"
	}
	gridEfKg := resolveGridFactorKg(in.GridIntensity, region)

	eAdserv := adCoefficient(adServingWhPerImp, platform, format, adServingDefaultWh)
	eCDN := adCoefficient(adCDNWhPerImp, platform, format, adCDNDefaultWh)
	eNetwork, ok := adNetworkWhPerImp[format]
	if !ok {
		eNetwork = adNetworkDefaultWh
	}

	eUpstreamPerImpWh := eAdserv.Add(eCDN).Add(eNetwork)
	impEnergyKwh := eUpstreamPerImpWh.Mul(in.Impressions).Div(thousand)
	impressionsKg := impEnergyKwh.Mul(gridEfKg)

	clickEnergyKwh := adTrackWhPerClick.Mul(in.Clicks).Div(thousand)
	clicksKg := clickEnergyKwh.Mul(gridEfKg)

	serverKwh := adServerWatts.Mul(adProcessingHours).Div(thousand)
	dataKwh := adDataWhPerMB.Mul(adTransferMB).Div(thousand)
	convEnergyKwh := serverKwh.Add(dataKwh).Mul(in.Conversions)
	conversionsKg := convEnergyKwh.Mul(gridEfKg)

	upstreamKg := impressionsKg.Add(clicksKg).Add(conversionsKg)

	deviceWatts := adDeviceWatts[device]
	dwellSec, ok := adDwellSeconds[format]
	if !ok {
		dwellSec = adDwellDefaultSec
	}
	dwellHours := dwellSec.Div(secondsPerHour)
	deviceEnergyPerImpKwh := deviceWatts.Mul(dwellHours).Div(thousand)
	downstreamKwh := deviceEnergyPerImpKwh.Mul(in.Impressions)
	downstreamKg := downstreamKwh.Mul(gridEfKg)

	return Result{
		TotalKg: upstreamKg,
		Breakdown: map[string]decimal.Decimal{
			"upstream_total_kg":   upstreamKg,
			"impressions_kg":      impressionsKg,
			"clicks_kg":           clicksKg,
			"conversions_kg":      conversionsKg,
			"adserving_kg":        eAdserv.Mul(in.Impressions).Div(thousand).Mul(gridEfKg),
			"cdn_kg":              eCDN.Mul(in.Impressions).Div(thousand).Mul(gridEfKg),
			"network_kg":          eNetwork.Mul(in.Impressions).Div(thousand).Mul(gridEfKg),
			"downstream_total_kg": downstreamKg,
			"user_device_kg":      downstreamKg,
		},
		Factors: map[string]any{
			"platform":                    string(platform),
			"ad_format":                   string(format),
			"device_type":                 device,
			"region":                      region,
			"source":                      GridFactorSource(region),
			"grid_ef_kg_per_kwh":          gridEfKg.String(),
			"e_adserv_wh_per_imp":         eAdserv.String(),
			"e_cdn_wh_per_imp":            eCDN.String(),
			"e_network_wh_per_imp":        eNetwork.String(),
			"e_upstream_total_wh_per_imp": eUpstreamPerImpWh.String(),
			"e_device_w":                  deviceWatts.String(),
			"t_dwell_s":                   dwellSec.String(),
			"impressions":                 in.Impressions.String(),
			"clicks":                      in.Clicks.String(),
			"conversions":                 in.Conversions.String(),
		},
	}
}

// adCoefficient resolves a platform+format coefficient, falling back first to
// the generic DSP table and then to a fixed default. Fallback order is fixed
// so repeated calculations always pick the same value.
func adCoefficient(table map[AdPlatform]map[AdFormat]decimal.Decimal, platform AdPlatform, format AdFormat, def decimal.Decimal) decimal.Decimal {
	if formats, ok := table[platform]; ok {
		if v, ok := formats[format]; ok {
			return v
		}
	}
	if formats, ok := table[PlatformDSPGeneric]; ok {
		if v, ok := formats[format]; ok {
			return v
		}
	}
	return def
}

func normalizePlatform(raw string) AdPlatform {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "google", "google_ads", "gads":
		return PlatformGoogleAds
	case "dv360":
		return PlatformDV360
	case "meta", "facebook", "instagram":
		return PlatformMeta
	case "tiktok":
		return PlatformTikTok
	case "snapchat", "snap":
		return PlatformSnapchat
	case "linkedin":
		return PlatformLinkedIn
	case "twitter", "x", "twitter_x":
		return PlatformTwitterX
	case "dsp", "dsp_generic":
		return PlatformDSPGeneric
	default:
		return PlatformGoogleAds
	}
}

func normalizeAdFormat(raw string) AdFormat {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "rich", "rich_media":
		return AdFormatRichMedia
	case "video":
		return AdFormatVideo
	default:
		return AdFormatStaticDisplay
	}
}
