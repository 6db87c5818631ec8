package messaging

import (
	"context"
	"fmt"
	"log/slog"

	"tender-admin/internal/domain"
)

// SessionEventHandler reacts to session events from any instance.
type SessionEventHandler interface {
	HandleSessionEvent(ctx context.Context, event *domain.SessionEvent)
}

// SessionEventConsumer feeds session-ending events from the bus to a
// handler. Each instance consumes from its own auto-delete queue so every
// instance sees every event.
type SessionEventConsumer struct {
	rmq     *RabbitMQ
	handler SessionEventHandler
}

func NewSessionEventConsumer(rmq *RabbitMQ, handler SessionEventHandler) *SessionEventConsumer {
	return &SessionEventConsumer{
		rmq:     rmq,
		handler: handler,
	}
}

func (c *SessionEventConsumer) Start(ctx context.Context) error {
	queue, err := c.rmq.channel.QueueDeclare(
		"",    // auto-generated name
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare instance queue: %w", err)
	}

	for _, typ := range []domain.SessionEventType{domain.EventLoggedOut, domain.EventInvalidated} {
		if err := c.rmq.channel.QueueBind(
			queue.Name,       // queue name
			RoutingKey(typ),  // routing key
			SessionsExchange, // exchange
			false,
			nil,
		); err != nil {
			return fmt.Errorf("failed to bind instance queue: %w", err)
		}
	}

	msgs, err := c.rmq.channel.Consume(
		queue.Name, // queue
		"",         // consumer
		true,       // auto-ack
		false,      // exclusive
		false,      // no-local
		false,      // no-wait
		nil,        // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	slog.Info("started consuming session events",
		slog.String("queue", queue.Name),
		slog.String("exchange", SessionsExchange))

	go func() {
		for {
			select {
			case <-ctx.Done():
				slog.Info("stopping session event consumer")
				return
			case msg, ok := <-msgs:
				if !ok {
					slog.Warn("session event consumer channel closed")
					return
				}

				event, err := DecodeSessionEvent(msg.Body)
				if err != nil {
					slog.Error("dropping malformed session event",
						slog.String("error", err.Error()),
						slog.Int("body_size", len(msg.Body)))
					continue
				}
				c.handler.HandleSessionEvent(ctx, event)
			}
		}
	}()

	return nil
}
