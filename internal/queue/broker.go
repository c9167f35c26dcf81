package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	obsmetrics "github.com/evergrid/carbonledger/internal/observability/metrics"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const publishConfirmTimeout = 10 * time.Second

var ErrBrokerClosed = errors.New("queue: broker connection is closed")

// Config holds the broker topology.
type Config struct {
	URL             string
	QueueName       string
	DeadLetterQueue string
	Prefetch        int
}

// Broker wraps one AMQP connection with publisher confirms enabled.
// The main queue dead-letters rejected messages to the DLQ, so a
// poisoned payload needs exactly one nack to leave the hot path.
type Broker struct {
	cfg        Config
	log        *zap.Logger
	conn       *amqp.Connection
	channel    *amqp.Channel
	connClosed chan *amqp.Error
	chanClosed chan *amqp.Error
	healthy    atomic.Bool
	closeOnce  sync.Once
	cancel     context.CancelFunc
}

func NewBroker(cfg Config, log *zap.Logger) (*Broker, error) {
	if cfg.QueueName == "" {
		return nil, errors.New("queue: queue name is required")
	}
	if cfg.DeadLetterQueue == "" {
		cfg.DeadLetterQueue = cfg.QueueName + ".dlq"
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 16
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("queue: dial: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("queue: open channel: %w", err)
	}

	if err := declareTopology(channel, cfg); err != nil {
		channel.Close()
		conn.Close()
		return nil, err
	}

	if err := channel.Confirm(false); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("queue: enable publisher confirms: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	broker := &Broker{
		cfg:        cfg,
		log:        log.Named("queue"),
		conn:       conn,
		channel:    channel,
		connClosed: make(chan *amqp.Error, 1),
		chanClosed: make(chan *amqp.Error, 1),
		cancel:     cancel,
	}
	broker.healthy.Store(true)
	broker.conn.NotifyClose(broker.connClosed)
	broker.channel.NotifyClose(broker.chanClosed)

	go func() {
		select {
		case err := <-broker.connClosed:
			broker.healthy.Store(false)
			broker.log.Warn("broker connection closed", zap.Error(err))
		case err := <-broker.chanClosed:
			broker.healthy.Store(false)
			broker.log.Warn("broker channel closed", zap.Error(err))
		case <-ctx.Done():
		}
	}()

	broker.log.Info("connected to message broker",
		zap.String("queue", cfg.QueueName),
		zap.String("dead_letter_queue", cfg.DeadLetterQueue),
	)
	return broker, nil
}

func declareTopology(channel *amqp.Channel, cfg Config) error {
	if _, err := channel.QueueDeclare(
		cfg.DeadLetterQueue,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("queue: declare dead letter queue: %w", err)
	}

	if _, err := channel.QueueDeclare(
		cfg.QueueName,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": cfg.DeadLetterQueue,
		},
	); err != nil {
		return fmt.Errorf("queue: declare queue: %w", err)
	}
	return nil
}

// Publish sends the envelope to the main queue and blocks until the
// broker confirms the write.
func (b *Broker) Publish(ctx context.Context, envelope Envelope) error {
	if !b.Healthy() {
		return ErrBrokerClosed
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("queue: marshal envelope: %w", err)
	}

	deferred, err := b.channel.PublishWithDeferredConfirmWithContext(
		ctx,
		"",
		b.cfg.QueueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    envelope.MessageID,
			Timestamp:    envelope.QueuedAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("queue: publish: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-deferred.Done():
		if !deferred.Acked() {
			return errors.New("queue: broker nacked message")
		}
	case <-time.After(publishConfirmTimeout):
		return errors.New("queue: publisher confirm timeout")
	}

	obsmetrics.Pipeline().IncQueuePublished(b.cfg.QueueName)
	return nil
}

// Consume opens a dedicated channel with the configured prefetch and
// returns the delivery stream for the main queue. Deliveries must be
// acked or nacked by the caller.
func (b *Broker) Consume(ctx context.Context) (<-chan amqp.Delivery, error) {
	if !b.Healthy() {
		return nil, ErrBrokerClosed
	}

	channel, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("queue: open consumer channel: %w", err)
	}
	if err := channel.Qos(b.cfg.Prefetch, 0, false); err != nil {
		channel.Close()
		return nil, fmt.Errorf("queue: set qos: %w", err)
	}

	deliveries, err := channel.Consume(b.cfg.QueueName, "", false, false, false, false, nil)
	if err != nil {
		channel.Close()
		return nil, fmt.Errorf("queue: register consumer: %w", err)
	}

	go func() {
		<-ctx.Done()
		channel.Close()
	}()
	return deliveries, nil
}

// DrainDeadLetters pulls up to max messages off the DLQ one at a time.
// Each message is handed to fn; a nil return acks it, an error leaves
// it on the queue for the next sweep.
func (b *Broker) DrainDeadLetters(ctx context.Context, max int, fn func(ctx context.Context, delivery amqp.Delivery) error) (int, error) {
	if !b.Healthy() {
		return 0, ErrBrokerClosed
	}
	if max <= 0 {
		max = 50
	}

	drained := 0
	for drained < max {
		if err := ctx.Err(); err != nil {
			return drained, err
		}

		delivery, ok, err := b.channel.Get(b.cfg.DeadLetterQueue, false)
		if err != nil {
			return drained, fmt.Errorf("queue: get from dead letter queue: %w", err)
		}
		if !ok {
			return drained, nil
		}

		if err := fn(ctx, delivery); err != nil {
			if nackErr := delivery.Nack(false, true); nackErr != nil {
				b.log.Warn("failed to nack dead letter", zap.Error(nackErr))
			}
			return drained, err
		}
		if err := delivery.Ack(false); err != nil {
			return drained, fmt.Errorf("queue: ack dead letter: %w", err)
		}
		drained++
	}
	return drained, nil
}

// DeadLetter counts one message routed to the DLQ.
func (b *Broker) DeadLetter() {
	obsmetrics.Pipeline().IncQueueDeadLetter(b.cfg.DeadLetterQueue)
}

func (b *Broker) QueueName() string      { return b.cfg.QueueName }
func (b *Broker) DeadLetterName() string { return b.cfg.DeadLetterQueue }

func (b *Broker) Healthy() bool {
	return b != nil && b.healthy.Load()
}

func (b *Broker) Close() error {
	b.closeOnce.Do(func() {
		b.cancel()
		if b.channel != nil {
			b.channel.Close()
		}
		if b.conn != nil {
			b.conn.Close()
		}
	})
	return nil
}
