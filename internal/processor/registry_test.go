package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestDefaultRegistry_CoversAllEventTypes(t *testing.T) {
	registry := NewDefaultRegistry(Params{Log: zap.NewNop()})

	for _, eventType := range []string{
		EventTypeInternetWeb,
		EventTypeInternetAds,
		EventTypeCDNDataTransfer,
		EventTypeCloudEmissions,
		EventTypeOnPremServer,
		EventTypeTravelEmissions,
		EventTypeWorkforceEmissions,
		EventTypeOilGasLubricant,
	} {
		proc, err := registry.Get(eventType)
		assert.NoError(t, err, eventType)
		assert.Equal(t, eventType, proc.EventType())
	}
	assert.Len(t, registry.EventTypes(), 8)
}

func TestRegistry_UnknownEventType(t *testing.T) {
	registry := NewDefaultRegistry(Params{Log: zap.NewNop()})

	_, err := registry.Get("blockchain_mining")
	assert.ErrorIs(t, err, ErrNoProcessor)
}
