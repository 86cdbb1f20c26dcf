package main

import (
	"encoding/json"
	"log/slog"
	"os"

	"github.com/rabbitmq/amqp091-go"

	"github.com/MagnunAVF/shortlinks/internal/config"
	applog "github.com/MagnunAVF/shortlinks/internal/logger"
	"github.com/MagnunAVF/shortlinks/internal/metrics"
	"github.com/MagnunAVF/shortlinks/internal/notify"
)

// The notify worker drains the review-notification queue. Delivery today
// is a structured log line per event; mail or chat hooks would slot in
// here without touching the producers.
func main() {
	cfg := config.Load()
	applog.InitFromEnv()

	rabbitConn, err := amqp091.Dial(cfg.RabbitURL)
	if err != nil {
		slog.Error("Unable to connect to RabbitMQ", "err", err)
		os.Exit(1)
	}
	defer rabbitConn.Close()

	rabbitCH, err := rabbitConn.Channel()
	if err != nil {
		slog.Error("Unable to open RabbitMQ channel", "err", err)
		os.Exit(1)
	}
	defer rabbitCH.Close()

	q, err := rabbitCH.QueueDeclare(
		cfg.NotifyQueue,
		true, false, false, false, nil,
	)
	if err != nil {
		slog.Error("Failed to declare queue", "err", err)
		os.Exit(1)
	}

	msgs, err := rabbitCH.Consume(
		q.Name, "", false, false, false, false, nil,
	)
	if err != nil {
		slog.Error("Failed to register consumer", "err", err)
		os.Exit(1)
	}

	slog.Info("Notify worker started, waiting for review events", "queue", q.Name)

	for d := range msgs {
		var event notify.ReviewEvent
		if err := json.Unmarshal(d.Body, &event); err != nil {
			slog.Error("Error decoding message, rejecting", "err", err)
			d.Reject(false)
			metrics.RecordEventConsumed(cfg.NotifyQueue, false)
			continue
		}

		slog.Info("review status changed",
			"pending_id", event.PendingID,
			"destination", event.Destination,
			"owner", event.Owner,
			"from", event.From,
			"to", event.To,
			"modifier", event.Modifier,
			"at", event.At,
		)

		d.Ack(false)
		metrics.RecordEventConsumed(cfg.NotifyQueue, true)
	}

	slog.Warn("RabbitMQ channel closed, exiting")
}
