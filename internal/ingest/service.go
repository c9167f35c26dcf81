package ingest

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/evergrid/carbonledger/internal/clock"
	obsmetrics "github.com/evergrid/carbonledger/internal/observability/metrics"
	"github.com/evergrid/carbonledger/internal/processor"
	"github.com/evergrid/carbonledger/internal/queue"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrEmptyBatch       = errors.New("ingest: batch contains no events")
	ErrBatchTooLarge    = errors.New("ingest: batch exceeds maximum size")
	ErrMissingPayload   = errors.New("ingest: payload is required")
	ErrUnknownEventType = errors.New("ingest: unknown event type")
)

const maxBatchSize = 500

// EventRequest is one event as submitted by an SDK.
type EventRequest struct {
	EventType string          `json:"event_type" binding:"required"`
	Payload   json.RawMessage `json:"payload" binding:"required"`
}

// Receipt acknowledges a queued event.
type Receipt struct {
	MessageID string `json:"message_id"`
	EventType string `json:"event_type"`
}

// DroppedEvent explains why a batch entry was rejected.
type DroppedEvent struct {
	Index     int    `json:"index"`
	EventType string `json:"event_type"`
	Reason    string `json:"reason"`
}

// BatchReceipt acknowledges a queued batch. Invalid entries are
// dropped individually, never the whole batch.
type BatchReceipt struct {
	BatchID  string         `json:"batch_id"`
	Accepted []Receipt      `json:"accepted"`
	Dropped  []DroppedEvent `json:"dropped,omitempty"`
}

type Service interface {
	SubmitEvent(ctx context.Context, tenantID snowflake.ID, apiKeyID string, request EventRequest) (*Receipt, error)
	SubmitBatch(ctx context.Context, tenantID snowflake.ID, apiKeyID string, requests []EventRequest) (*BatchReceipt, error)
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Clock    clock.Clock
	Registry *processor.Registry
	Broker   *queue.Broker
}

type service struct {
	log      *zap.Logger
	clock    clock.Clock
	registry *processor.Registry
	broker   *queue.Broker
}

func NewService(p Params) Service {
	return &service{
		log:      p.Log.Named("ingest.service"),
		clock:    p.Clock,
		registry: p.Registry,
		broker:   p.Broker,
	}
}

func (s *service) SubmitEvent(ctx context.Context, tenantID snowflake.ID, apiKeyID string, request EventRequest) (*Receipt, error) {
	envelope, err := s.validate(ctx, tenantID, apiKeyID, request)
	if err != nil {
		return nil, err
	}

	if err := s.broker.Publish(ctx, *envelope); err != nil {
		return nil, err
	}

	obsmetrics.Pipeline().IncEventIngested(request.EventType)
	return &Receipt{
		MessageID: envelope.MessageID,
		EventType: envelope.EventType,
	}, nil
}

func (s *service) SubmitBatch(ctx context.Context, tenantID snowflake.ID, apiKeyID string, requests []EventRequest) (*BatchReceipt, error) {
	if len(requests) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(requests) > maxBatchSize {
		return nil, ErrBatchTooLarge
	}

	receipt := &BatchReceipt{
		BatchID:  uuid.NewString(),
		Accepted: make([]Receipt, 0, len(requests)),
	}

	for index, request := range requests {
		envelope, err := s.validate(ctx, tenantID, apiKeyID, request)
		if err != nil {
			s.log.Warn("dropping invalid batch entry",
				zap.String("batch_id", receipt.BatchID),
				zap.Int("index", index),
				zap.String("event_type", request.EventType),
				zap.Error(err),
			)
			receipt.Dropped = append(receipt.Dropped, DroppedEvent{
				Index:     index,
				EventType: request.EventType,
				Reason:    err.Error(),
			})
			continue
		}

		envelope.BatchID = receipt.BatchID
		if err := s.broker.Publish(ctx, *envelope); err != nil {
			// A broker failure is not an entry problem, fail the batch
			// so the client can resubmit the remainder.
			return nil, err
		}

		obsmetrics.Pipeline().IncEventIngested(request.EventType)
		receipt.Accepted = append(receipt.Accepted, Receipt{
			MessageID: envelope.MessageID,
			EventType: envelope.EventType,
		})
	}
	return receipt, nil
}

func (s *service) validate(ctx context.Context, tenantID snowflake.ID, apiKeyID string, request EventRequest) (*queue.Envelope, error) {
	_ = ctx
	if len(request.Payload) == 0 {
		return nil, ErrMissingPayload
	}

	proc, err := s.registry.Get(request.EventType)
	if err != nil {
		return nil, ErrUnknownEventType
	}
	if err := proc.Validate(request.Payload); err != nil {
		return nil, err
	}

	return &queue.Envelope{
		MessageID: uuid.NewString(),
		TenantID:  tenantID.String(),
		APIKeyID:  apiKeyID,
		EventType: request.EventType,
		Payload:   request.Payload,
		QueuedAt:  s.clock.Now(),
	}, nil
}
