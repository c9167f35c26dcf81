package processor

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOnPremProcessor_DeterministicTotal(t *testing.T) {
	proc := NewOnPremProcessor(nil)

	payload := json.RawMessage(`{
		"reference_id": "onprem-2026-08",
		"servers": [
			{"cpu_cores": 8, "ram_gb": 16, "avg_cpu_utilization": 0.5, "hours_per_day": 24, "days_per_month": 30},
			{"cpu_cores": 8, "ram_gb": 16, "avg_cpu_utilization": 0.5, "hours_per_day": 24, "days_per_month": 30}
		],
		"pue": 1.6,
		"calculation_period": "monthly"
	}`)

	first, err := proc.Process(context.Background(), payload)
	require.NoError(t, err)
	second, err := proc.Process(context.Background(), payload)
	require.NoError(t, err)

	assert.Equal(t, "52.5312", first.KgCO2Emitted.String())
	assert.True(t, first.KgCO2Emitted.Equal(second.KgCO2Emitted))
	assert.Equal(t, "onprem-2026-08", first.ReferenceID)
	assert.Equal(t, "onprem_server", first.ReferenceType)
}

func TestOnPremProcessor_ReferenceFallsBackToMonth(t *testing.T) {
	proc := NewOnPremProcessor(nil)

	result, err := proc.Process(context.Background(), json.RawMessage(
		`{"month":"2026-08","servers":[{"cpu_cores":4,"ram_gb":8}]}`,
	))
	require.NoError(t, err)
	assert.Equal(t, "onprem_2026-08", result.ReferenceID)

	result, err = proc.Process(context.Background(), json.RawMessage(
		`{"servers":[{"cpu_cores":4,"ram_gb":8}]}`,
	))
	require.NoError(t, err)
	assert.Equal(t, "onprem_unknown", result.ReferenceID)
}

func TestOnPremProcessor_RequiresServers(t *testing.T) {
	proc := NewOnPremProcessor(nil)

	err := proc.Validate(json.RawMessage(`{"servers":[]}`))
	assert.True(t, IsValidationError(err))

	_, err = proc.Process(context.Background(), json.RawMessage(`{}`))
	assert.True(t, IsValidationError(err))
}
