package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/config"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/logging"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/metrics"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/provisioning"
	"github.com/therealutkarshpriyadarshi/streamflow/pkg/models"
)

const (
	// LifecycleExchangeName is a topic exchange; routing keys are event names
	LifecycleExchangeName = "streamflow.lifecycle"
	// IngestExchangeName receives publisher connect/disconnect notices from the ingest edge
	IngestExchangeName = "streamflow.ingest"
	IngestQueueName    = "ingest_events"
)

// Queue provides message queue operations
type Queue struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *logging.Logger
}

var _ provisioning.EventPublisher = (*Queue)(nil)

// New creates a new queue client and declares the exchanges and queues it uses
func New(cfg config.QueueConfig, logger *logging.Logger) (*Queue, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	url := fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Vhost)

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	q := &Queue{conn: conn, channel: channel, logger: logger}
	if err := q.declare(); err != nil {
		q.Close()
		return nil, err
	}

	return q, nil
}

func (q *Queue) declare() error {
	// Declare lifecycle exchange
	err := q.channel.ExchangeDeclare(
		LifecycleExchangeName,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare lifecycle exchange: %w", err)
	}

	// Declare ingest exchange
	err = q.channel.ExchangeDeclare(
		IngestExchangeName,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare ingest exchange: %w", err)
	}

	if err := q.SetupDeadLetterQueue(); err != nil {
		return err
	}

	// Undecodable or exhausted messages are routed to the DLQ by the broker
	_, err = q.channel.QueueDeclare(
		IngestQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		amqp.Table{
			"x-dead-letter-exchange":    DeadLetterExchangeName,
			"x-dead-letter-routing-key": DeadLetterQueueName,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to declare ingest queue: %w", err)
	}

	for _, key := range []string{models.IngestStreamStarted, models.IngestStreamStopped} {
		if err := q.channel.QueueBind(IngestQueueName, key, IngestExchangeName, false, nil); err != nil {
			return fmt.Errorf("failed to bind ingest queue: %w", err)
		}
	}

	return nil
}

// Close closes the queue connection
func (q *Queue) Close() error {
	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

// PublishLifecycle publishes a channel lifecycle event, routed by event name
func (q *Queue) PublishLifecycle(ctx context.Context, event models.LifecycleEvent) error {
	msg, err := lifecycleMessage(event)
	if err != nil {
		return err
	}

	err = q.channel.PublishWithContext(ctx,
		LifecycleExchangeName,
		event.Event,
		false, // mandatory
		false, // immediate
		msg,
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// PublishIngest publishes an ingest notice. The ingest edge normally does
// this; the method exists for tooling and replay.
func (q *Queue) PublishIngest(ctx context.Context, event models.IngestEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal ingest event: %w", err)
	}

	err = q.channel.PublishWithContext(ctx,
		IngestExchangeName,
		event.Event,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish ingest event: %w", err)
	}

	return nil
}

func lifecycleMessage(event models.LifecycleEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal event: %w", err)
	}

	return amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Body:         body,
		Timestamp:    time.Now(),
		Type:         event.Event,
	}, nil
}

// IngestHandler applies one ingest notice
type IngestHandler func(ctx context.Context, event models.IngestEvent) error

// ConsumeIngest starts consuming ingest notices until ctx is done
func (q *Queue) ConsumeIngest(ctx context.Context, handler IngestHandler) error {
	// Set QoS to limit concurrent processing
	err := q.channel.Qos(
		1,     // prefetch count
		0,     // prefetch size
		false, // global
	)
	if err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := q.channel.Consume(
		IngestQueueName,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				q.handleDelivery(ctx, msg, handler)
			}
		}
	}()

	return nil
}

func (q *Queue) handleDelivery(ctx context.Context, msg amqp.Delivery, handler IngestHandler) {
	event, err := decodeIngest(msg.Body)
	if err != nil {
		q.logger.WithError(err).Warn("Dropping malformed ingest event")
		metrics.RecordError("queue", "malformed_ingest_event")
		msg.Nack(false, false)
		return
	}

	log := q.logger.WithChannelID(event.ChannelID).WithField("event", event.Event)

	switch decide(handler(ctx, event), retryCount(msg.Headers)) {
	case outcomeAck:
		msg.Ack(false)
	case outcomeRetry:
		if err := q.PublishToRetryQueue(ctx, msg.Body, retryCount(msg.Headers)); err != nil {
			log.WithError(err).Error("Failed to schedule ingest retry")
			msg.Nack(false, true)
			return
		}
		msg.Ack(false)
	case outcomeDeadLetter:
		log.Warn("Ingest event exhausted retries")
		msg.Nack(false, false)
	}
}

// decodeIngest parses and validates an ingest notice
func decodeIngest(body []byte) (models.IngestEvent, error) {
	var event models.IngestEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return event, fmt.Errorf("failed to unmarshal ingest event: %w", err)
	}
	if event.ChannelID == "" {
		return event, fmt.Errorf("ingest event has no channel_id")
	}
	switch event.Event {
	case models.IngestStreamStarted, models.IngestStreamStopped:
		return event, nil
	default:
		return event, fmt.Errorf("unknown ingest event %q", event.Event)
	}
}
