package processor

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticResolver struct {
	intensity decimal.Decimal
}

func (r staticResolver) Intensity(ctx context.Context, region string) (decimal.Decimal, bool) {
	return r.intensity, true
}

func TestWebProcessor_ValidateRequiredFields(t *testing.T) {
	proc := NewWebProcessor(nil)

	cases := []struct {
		name    string
		payload string
	}{
		{"missing event_id", `{"session_id":"s1","page_url":"https://example.com"}`},
		{"missing session_id", `{"event_id":"e1","page_url":"https://example.com"}`},
		{"missing page_url", `{"event_id":"e1","session_id":"s1"}`},
		{"not json", `{"event_id":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := proc.Validate(json.RawMessage(tc.payload))
			assert.Error(t, err)
			assert.True(t, IsValidationError(err))
		})
	}

	err := proc.Validate(json.RawMessage(`{"event_id":"e1","session_id":"s1","page_url":"https://example.com"}`))
	assert.NoError(t, err)
}

func TestWebProcessor_PageViewDefaults(t *testing.T) {
	proc := NewWebProcessor(nil)

	result, err := proc.Process(context.Background(), json.RawMessage(
		`{"event_id":"evt-1","session_id":"s1","page_url":"https://example.com","country_code":"GB"}`,
	))
	require.NoError(t, err)

	assert.Equal(t, "evt-1", result.ReferenceID)
	assert.Equal(t, "internet_web_page_view", result.ReferenceType)
	assert.True(t, result.KgCO2Emitted.IsPositive())
	// No measured bytes, so the 512 KiB page view default applies.
	assert.Equal(t, int64(512*1024), result.Metadata["bytes_transferred"])
}

func TestWebProcessor_MeasuredBytesWin(t *testing.T) {
	proc := NewWebProcessor(nil)

	measured, err := proc.Process(context.Background(), json.RawMessage(
		`{"event_id":"evt-1","session_id":"s1","page_url":"https://example.com","bytesPerPageView":1048576}`,
	))
	require.NoError(t, err)
	assert.Equal(t, int64(1048576), measured.Metadata["bytes_transferred"])
}

func TestWebProcessor_LiveGridIntensity(t *testing.T) {
	static := NewWebProcessor(nil)
	live := NewWebProcessor(staticResolver{intensity: decimal.NewFromInt(50)})

	payload := json.RawMessage(`{"event_id":"evt-1","session_id":"s1","page_url":"https://example.com","country_code":"US"}`)

	staticResult, err := static.Process(context.Background(), payload)
	require.NoError(t, err)
	liveResult, err := live.Process(context.Background(), payload)
	require.NoError(t, err)

	// 50 g/kWh is far below the US static 417, so live must be lower.
	assert.True(t, liveResult.KgCO2Emitted.LessThan(staticResult.KgCO2Emitted))
}

func TestWebProcessor_SubtypeReferenceTypes(t *testing.T) {
	proc := NewWebProcessor(nil)

	conversion, err := proc.Process(context.Background(), json.RawMessage(
		`{"event":"conversion","event_id":"evt-2","session_id":"s1","page_url":"https://example.com","conversion_type":"signup"}`,
	))
	require.NoError(t, err)
	assert.Equal(t, "internet_web_conversion", conversion.ReferenceType)
	assert.Equal(t, "signup", conversion.Metadata["conversion_type"])
}

func TestDetectDeviceType(t *testing.T) {
	assert.Equal(t, "mobile", detectDeviceType("Mozilla/5.0 (Linux; Android 14) Mobile", ""))
	assert.Equal(t, "tablet", detectDeviceType("Mozilla/5.0 (iPad; CPU OS 17_0)", ""))
	assert.Equal(t, "mobile", detectDeviceType("SomeAgent", "390x844"))
	assert.Equal(t, "tablet", detectDeviceType("SomeAgent", "800x1280"))
	assert.Equal(t, "desktop", detectDeviceType("SomeAgent", "1920x1080"))
	assert.Equal(t, "desktop", detectDeviceType("", ""))
}
