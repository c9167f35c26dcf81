package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/bwmarrin/snowflake"
	faileddomain "github.com/evergrid/carbonledger/internal/failedevent/domain"
	obsmetrics "github.com/evergrid/carbonledger/internal/observability/metrics"
	"github.com/evergrid/carbonledger/internal/queue"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RetryFailedEventsJob hands captured failures back to the primary
// queue. The worker pool re-processes them under its own concurrency
// bounds; a replay of an already-recorded event is harmless because
// the marker insert is idempotent.
func (s *Scheduler) RetryFailedEventsJob(ctx context.Context) error {
	var jobErr error

	for {
		if err := ctx.Err(); err != nil {
			return errors.Join(jobErr, err)
		}

		claimed, err := s.failed.ClaimForRetry(ctx, s.cfg.RetryBatchSize)
		if err != nil {
			return errors.Join(jobErr, err)
		}
		if len(claimed) == 0 {
			obsmetrics.Pipeline().IncBatchDeferred("retry_failed", obsmetrics.BatchDeferredReasonSkipLockedEmpty)
			return jobErr
		}

		processed := 0
		for _, failed := range claimed {
			if err := ctx.Err(); err != nil {
				return errors.Join(jobErr, err)
			}
			if err := s.retryOne(ctx, failed); err != nil {
				jobErr = errors.Join(jobErr, err)
				continue
			}
			processed++
		}
		obsmetrics.Pipeline().IncBatchProcessed("retry_failed", obsmetrics.LockResourceFailedEvents, processed)

		if len(claimed) < s.cfg.RetryBatchSize {
			return jobErr
		}
	}
}

func (s *Scheduler) retryOne(ctx context.Context, failed faileddomain.FailedEvent) error {
	envelope := queue.Envelope{
		MessageID: failed.OriginalMessageID,
		TenantID:  failed.TenantID.String(),
		EventType: failed.EventType,
		Payload:   json.RawMessage(failed.Payload),
		QueuedAt:  failed.FailedAt,
	}

	if err := s.publisher.Publish(ctx, envelope); err != nil {
		s.log.Warn("failed event re-enqueue failed",
			zap.String("failed_event_id", failed.ID.String()),
			zap.String("event_type", failed.EventType),
			zap.Int("retry_count", failed.RetryCount),
			zap.Error(err),
		)
		return s.failed.MarkRetryFailed(ctx, failed.ID, err.Error())
	}

	// The row resolves on hand-off. If the worker fails the replay it
	// captures the same message again, which reopens this row with its
	// retry count intact.
	return s.failed.MarkResolved(ctx, failed.ID)
}

// DrainDeadLettersJob moves dead-lettered messages into failed_events
// so they become visible to the retry sweep and to operators.
func (s *Scheduler) DrainDeadLettersJob(ctx context.Context) error {
	drained, err := s.broker.DrainDeadLetters(ctx, s.cfg.DLQBatchSize, func(ctx context.Context, delivery amqp.Delivery) error {
		var envelope queue.Envelope
		if unmarshalErr := json.Unmarshal(delivery.Body, &envelope); unmarshalErr != nil {
			// Unparseable and unattributable, drop it after logging.
			s.log.Error("dropping unparseable dead letter",
				zap.String("message_id", delivery.MessageId),
				zap.Error(unmarshalErr),
			)
			return nil
		}

		tenantID, parseErr := parseTenantID(envelope.TenantID)
		if parseErr != nil {
			s.log.Error("dropping dead letter with invalid tenant",
				zap.String("message_id", envelope.MessageID),
				zap.Error(parseErr),
			)
			return nil
		}

		_, captureErr := s.failed.Capture(ctx, faileddomain.CaptureInput{
			TenantID:          tenantID,
			EventType:         envelope.EventType,
			Payload:           envelope.Payload,
			ErrorMessage:      "dead-lettered by broker",
			OriginalMessageID: envelope.MessageID,
			DLQMessageID:      delivery.MessageId,
		})
		return captureErr
	})

	if drained > 0 {
		obsmetrics.Pipeline().IncBatchProcessed("drain_dlq", "dead_letters", drained)
	}
	return err
}

// CloseSessionsJob demotes idle sessions and closes the ones past the
// grace period.
func (s *Scheduler) CloseSessionsJob(ctx context.Context) error {
	changed, err := s.sessions.SweepIdle(ctx, s.cfg.SessionBatchSize)
	if changed > 0 {
		obsmetrics.Pipeline().IncBatchProcessed("close_sessions", obsmetrics.LockResourceSessions, changed)
	}
	return err
}

func parseTenantID(raw string) (snowflake.ID, error) {
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return snowflake.ID(value), nil
}
