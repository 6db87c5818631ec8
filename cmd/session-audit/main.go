package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"tender-admin/internal/config"
	"tender-admin/internal/messaging"
	"tender-admin/internal/observability"
)

func main() {
	cfg := config.Load()
	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	slog.Info("starting session audit")

	if !cfg.EventsEnabled() {
		slog.Error("RABBITMQ_URL must be set for the session audit")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rmqCtx, rmqCancel := context.WithTimeout(ctx, 60*time.Second)
	rmq, err := messaging.NewRabbitMQWithRetry(rmqCtx, cfg.RabbitMQURL)
	rmqCancel()
	if err != nil {
		slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer rmq.Close()

	msgs, err := rmq.ConsumeAudit()
	if err != nil {
		slog.Error("failed to start consuming", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("session audit is ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				slog.Info("stopping audit consumer")
				return
			case msg, ok := <-msgs:
				if !ok {
					slog.Info("audit channel closed")
					return
				}
				record(msg)
			}
		}
	}()

	select {
	case <-sigChan:
	case <-done:
	}
	slog.Info("shutting down session audit")
	cancel()
	time.Sleep(500 * time.Millisecond)
	slog.Info("session audit stopped")
}

// record writes one audit line per event. Malformed deliveries are dropped
// rather than requeued so they cannot block the queue.
func record(msg amqp.Delivery) {
	event, err := messaging.DecodeSessionEvent(msg.Body)
	if err != nil {
		slog.Error("dropping malformed audit event",
			slog.String("routing_key", msg.RoutingKey),
			slog.String("error", err.Error()))
		if err := msg.Nack(false, false); err != nil {
			slog.Warn("failed to nack audit event", slog.String("error", err.Error()))
		}
		return
	}

	slog.Info("session event",
		slog.String("audit", "session"),
		slog.String("type", string(event.Type)),
		slog.String("client_id", event.ClientID),
		slog.String("username", event.Username),
		slog.String("instance_id", event.InstanceID),
		slog.String("reason", event.Reason),
		slog.Time("occurred_at", event.OccurredAt))

	if err := msg.Ack(false); err != nil {
		slog.Warn("failed to ack audit event", slog.String("error", err.Error()))
	}
}
