package ingest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/evergrid/carbonledger/internal/clock"
	"github.com/evergrid/carbonledger/internal/processor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// The broker stays nil in these tests, so they only exercise paths
// that reject before publishing.
func newTestService(t *testing.T) (Service, snowflake.ID) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{
		Log:      zap.NewNop(),
		Clock:    clock.NewFakeClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)),
		Registry: processor.NewDefaultRegistry(processor.Params{Log: zap.NewNop()}),
	})
	return svc, node.Generate()
}

func TestSubmitEvent_MissingPayload(t *testing.T) {
	svc, tenantID := newTestService(t)

	_, err := svc.SubmitEvent(context.Background(), tenantID, "key_1", EventRequest{
		EventType: processor.EventTypeInternetWeb,
	})
	assert.ErrorIs(t, err, ErrMissingPayload)
}

func TestSubmitEvent_UnknownEventType(t *testing.T) {
	svc, tenantID := newTestService(t)

	_, err := svc.SubmitEvent(context.Background(), tenantID, "key_1", EventRequest{
		EventType: "quantum_compute",
		Payload:   json.RawMessage(`{}`),
	})
	assert.ErrorIs(t, err, ErrUnknownEventType)
}

func TestSubmitEvent_InvalidPayloadSurfacesProcessorError(t *testing.T) {
	svc, tenantID := newTestService(t)

	_, err := svc.SubmitEvent(context.Background(), tenantID, "key_1", EventRequest{
		EventType: processor.EventTypeInternetWeb,
		Payload:   json.RawMessage(`{"session_id":"s-1"}`),
	})
	assert.True(t, processor.IsValidationError(err))
}

func TestSubmitBatch_SizeLimits(t *testing.T) {
	svc, tenantID := newTestService(t)
	ctx := context.Background()

	_, err := svc.SubmitBatch(ctx, tenantID, "key_1", nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)

	oversized := make([]EventRequest, maxBatchSize+1)
	_, err = svc.SubmitBatch(ctx, tenantID, "key_1", oversized)
	assert.ErrorIs(t, err, ErrBatchTooLarge)
}

func TestSubmitBatch_DropsInvalidEntriesIndividually(t *testing.T) {
	svc, tenantID := newTestService(t)

	receipt, err := svc.SubmitBatch(context.Background(), tenantID, "key_1", []EventRequest{
		{EventType: processor.EventTypeInternetWeb},
		{EventType: "quantum_compute", Payload: json.RawMessage(`{}`)},
		{EventType: processor.EventTypeInternetWeb, Payload: json.RawMessage(`{"session_id":"s-1"}`)},
	})
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.NotEmpty(t, receipt.BatchID)
	assert.Empty(t, receipt.Accepted)
	require.Len(t, receipt.Dropped, 3)

	assert.Equal(t, 0, receipt.Dropped[0].Index)
	assert.Equal(t, ErrMissingPayload.Error(), receipt.Dropped[0].Reason)
	assert.Equal(t, ErrUnknownEventType.Error(), receipt.Dropped[1].Reason)
	assert.Equal(t, 2, receipt.Dropped[2].Index)
}
