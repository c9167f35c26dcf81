package worker

import (
	"context"
	"encoding/json"
	"sync"

	faileddomain "github.com/evergrid/carbonledger/internal/failedevent/domain"
	obsmetrics "github.com/evergrid/carbonledger/internal/observability/metrics"
	"github.com/evergrid/carbonledger/internal/processor"
	"github.com/evergrid/carbonledger/internal/queue"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Consumer drains the event queue with a pool of dispatch goroutines.
type Consumer struct {
	log         *zap.Logger
	broker      *queue.Broker
	dispatcher  *Dispatcher
	failed      faileddomain.Service
	concurrency int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewConsumer(
	log *zap.Logger,
	broker *queue.Broker,
	dispatcher *Dispatcher,
	failed faileddomain.Service,
	concurrency int,
) *Consumer {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Consumer{
		log:         log.Named("worker.consumer"),
		broker:      broker,
		dispatcher:  dispatcher,
		failed:      failed,
		concurrency: concurrency,
	}
}

// Start begins consuming. It returns once the consumer goroutines are
// running; Stop blocks until they drain.
func (c *Consumer) Start(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	c.cancel = cancel

	deliveries, err := c.broker.Consume(ctx)
	if err != nil {
		cancel()
		return err
	}

	for i := 0; i < c.concurrency; i++ {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.run(ctx, deliveries)
		}()
	}

	c.log.Info("worker consumer started", zap.Int("concurrency", c.concurrency))
	return nil
}

func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

func (c *Consumer) run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case delivery, ok := <-deliveries:
			if !ok {
				return
			}
			c.handle(ctx, delivery)
		}
	}
}

// handle settles exactly one delivery. Malformed messages go straight
// to the DLQ; processing failures are captured for retry and acked so
// a poisoned event cannot wedge the queue.
func (c *Consumer) handle(ctx context.Context, delivery amqp.Delivery) {
	var envelope queue.Envelope
	if err := json.Unmarshal(delivery.Body, &envelope); err != nil {
		c.log.Error("dropping malformed message to dead letter queue",
			zap.String("message_id", delivery.MessageId),
			zap.Error(err),
		)
		c.nackToDeadLetter(delivery)
		return
	}

	outcome, err := c.dispatcher.Dispatch(ctx, envelope)
	switch {
	case err == nil && outcome.Duplicate:
		obsmetrics.Pipeline().IncEventProcessed(envelope.EventType, obsmetrics.ResultSkipped)
		c.log.Debug("skipping duplicate event",
			zap.String("message_id", envelope.MessageID),
			zap.String("event_type", envelope.EventType),
		)
		c.ack(delivery)

	case err == nil:
		obsmetrics.Pipeline().IncEventProcessed(envelope.EventType, obsmetrics.ResultProcessed)
		c.ack(delivery)

	default:
		obsmetrics.Pipeline().IncEventProcessed(envelope.EventType, obsmetrics.ResultFailed)
		c.capture(ctx, delivery, envelope, err)
	}
}

func (c *Consumer) capture(ctx context.Context, delivery amqp.Delivery, envelope queue.Envelope, dispatchErr error) {
	tenantID, err := parseTenantID(envelope.TenantID)
	if err != nil {
		// No tenant to attribute the failure to, let the DLQ keep it.
		c.log.Error("message with invalid tenant routed to dead letter queue",
			zap.String("message_id", envelope.MessageID),
			zap.Error(err),
		)
		c.nackToDeadLetter(delivery)
		return
	}

	input := faileddomain.CaptureInput{
		TenantID:          tenantID,
		EventType:         envelope.EventType,
		Payload:           envelope.Payload,
		ErrorMessage:      dispatchErr.Error(),
		OriginalMessageID: envelope.MessageID,
	}
	if processor.IsValidationError(dispatchErr) {
		input.ErrorTrace = "validation"
	}

	if _, err := c.failed.Capture(ctx, input); err != nil {
		c.log.Error("failed event capture failed, requeueing delivery",
			zap.String("message_id", envelope.MessageID),
			zap.Error(err),
		)
		if nackErr := delivery.Nack(false, true); nackErr != nil {
			c.log.Warn("nack failed", zap.Error(nackErr))
		}
		return
	}
	c.ack(delivery)
}

func (c *Consumer) ack(delivery amqp.Delivery) {
	if err := delivery.Ack(false); err != nil {
		c.log.Warn("ack failed", zap.String("message_id", delivery.MessageId), zap.Error(err))
	}
}

func (c *Consumer) nackToDeadLetter(delivery amqp.Delivery) {
	if err := delivery.Nack(false, false); err != nil {
		c.log.Warn("nack failed", zap.String("message_id", delivery.MessageId), zap.Error(err))
		return
	}
	c.broker.DeadLetter()
}
