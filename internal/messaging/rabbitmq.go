package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"tender-admin/internal/domain"
	"tender-admin/internal/observability"
)

const (
	SessionsExchange = "admin.sessions"
	AuditQueue       = "session.audit"
	routingKeyPrefix = "session."
)

var ErrInvalidEvent = errors.New("invalid session event")

type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	pubMu   sync.Mutex
}

// RoutingKey is the topic a session event of typ is published under.
func RoutingKey(typ domain.SessionEventType) string {
	return routingKeyPrefix + string(typ)
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	rmq := &RabbitMQ{
		conn:    conn,
		channel: ch,
	}

	if err := rmq.Setup(); err != nil {
		rmq.Close()
		return nil, err
	}

	return rmq, nil
}

// NewRabbitMQWithRetry dials until it succeeds or ctx ends, doubling the
// wait between attempts up to 10s.
func NewRabbitMQWithRetry(ctx context.Context, url string) (*RabbitMQ, error) {
	backoff := 500 * time.Millisecond
	for attempt := 1; ; attempt++ {
		rmq, err := NewRabbitMQ(url)
		if err == nil {
			return rmq, nil
		}

		slog.Warn("rabbitmq not ready, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("gave up connecting to RabbitMQ: %w", errors.Join(ctx.Err(), err))
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 10*time.Second)
	}
}

func (r *RabbitMQ) Setup() error {
	if err := r.channel.ExchangeDeclare(
		SessionsExchange, // name
		"topic",          // type
		true,             // durable
		false,            // auto-deleted
		false,            // internal
		false,            // no-wait
		nil,              // arguments
	); err != nil {
		return fmt.Errorf("failed to declare sessions exchange: %w", err)
	}

	if _, err := r.channel.QueueDeclare(
		AuditQueue, // name
		true,       // durable
		false,      // delete when unused
		false,      // exclusive
		false,      // no-wait
		nil,        // arguments
	); err != nil {
		return fmt.Errorf("failed to declare %s queue: %w", AuditQueue, err)
	}

	if err := r.channel.QueueBind(
		AuditQueue,           // queue name
		routingKeyPrefix+"#", // routing key
		SessionsExchange,     // exchange
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to bind %s queue: %w", AuditQueue, err)
	}

	slog.Info("rabbitmq setup completed successfully")
	return nil
}

// PublishSessionEvent publishes a session lifecycle event. It satisfies the
// session machine's event sink.
func (r *RabbitMQ) PublishSessionEvent(ctx context.Context, event *domain.SessionEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal session event: %w", err)
	}

	r.pubMu.Lock()
	err = r.channel.PublishWithContext(
		ctx,
		SessionsExchange,
		RoutingKey(event.Type),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    event.OccurredAt,
			AppId:        event.InstanceID,
		},
	)
	r.pubMu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to publish session event: %w", err)
	}

	observability.SessionEventsPublished.WithLabelValues(string(event.Type)).Inc()
	slog.Debug("published session event",
		slog.String("type", string(event.Type)),
		slog.String("client_id", event.ClientID))
	return nil
}

// ConsumeAudit starts a manual-ack consumer on the durable audit queue.
func (r *RabbitMQ) ConsumeAudit() (<-chan amqp.Delivery, error) {
	if err := r.channel.Qos(32, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}

	msgs, err := r.channel.Consume(
		AuditQueue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	slog.Info("started consuming session audit events",
		slog.String("queue", AuditQueue))
	return msgs, nil
}

// DecodeSessionEvent parses a delivery body. Events without a type or a
// client id are rejected.
func DecodeSessionEvent(body []byte) (*domain.SessionEvent, error) {
	var event domain.SessionEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	if event.Type == "" || event.ClientID == "" {
		return nil, fmt.Errorf("%w: missing type or client_id", ErrInvalidEvent)
	}
	return &event, nil
}

func (r *RabbitMQ) IsClosed() bool {
	return r.conn == nil || r.conn.IsClosed()
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
