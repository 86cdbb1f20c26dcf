package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/MagnunAVF/shortlinks/internal/config"
	applog "github.com/MagnunAVF/shortlinks/internal/logger"
	"github.com/MagnunAVF/shortlinks/internal/metrics"
	"github.com/MagnunAVF/shortlinks/internal/notify"
	"github.com/MagnunAVF/shortlinks/internal/store"
)

const flushInterval = 2 * time.Second

func main() {
	cfg := config.Load()
	applog.InitFromEnv()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger:         applog.NewGormLogger(cfg.GormLogLevel),
		TranslateError: true,
	})
	if err != nil {
		slog.Error("Unable to connect to database", "err", err)
		os.Exit(1)
	}
	st := store.New(db, nil)

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
		cfg.VisitQueue,
		true, false, false, false, nil,
	)
	if err != nil {
		slog.Error("Failed to declare queue", "err", err)
		os.Exit(1)
	}

	if err := rabbitCH.Qos(cfg.WorkerBatchSize, 0, false); err != nil {
		slog.Error("Failed to set QoS", "err", err)
		os.Exit(1)
	}

	msgs, err := rabbitCH.Consume(
		q.Name, "", false, false, false, false, nil,
	)
	if err != nil {
		slog.Error("Failed to register consumer", "err", err)
		os.Exit(1)
	}

	slog.Info("Analytics worker started, waiting for visit events", "queue", q.Name)

	var events []notify.VisitEvent
	var deliveries []amqp091.Delivery

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case d, ok := <-msgs:
			if !ok {
				slog.Warn("RabbitMQ channel closed, flushing and exiting")
				processBatch(st, cfg.VisitQueue, events, deliveries)
				return
			}
			var event notify.VisitEvent
			if err := json.Unmarshal(d.Body, &event); err != nil {
				slog.Error("Error decoding message, rejecting", "err", err)
				d.Reject(false)
				metrics.RecordEventConsumed(cfg.VisitQueue, false)
				continue
			}
			events = append(events, event)
			deliveries = append(deliveries, d)

			if len(events) >= cfg.WorkerBatchSize {
				processBatch(st, cfg.VisitQueue, events, deliveries)
				events, deliveries = nil, nil
				ticker.Reset(flushInterval)
			}

		case <-ticker.C:
			if len(events) > 0 {
				slog.Info("Timer flush, processing queued events", "count", len(events))
				processBatch(st, cfg.VisitQueue, events, deliveries)
				events, deliveries = nil, nil
			}
		}
	}
}

// processBatch folds the batch into per-day counts and upserts them into
// the traffic rollup. The whole batch is acked or nacked together.
func processBatch(st *store.Store, queue string, events []notify.VisitEvent, deliveries []amqp091.Delivery) {
	if len(events) == 0 {
		return
	}

	counts := make(map[time.Time]int64)
	for _, event := range events {
		day := event.VisitedAt.UTC().Truncate(24 * time.Hour)
		counts[day]++
	}

	if err := st.AddDailyTraffic(context.Background(), counts); err != nil {
		slog.Error("Failed to upsert daily traffic, nacking batch", "err", err)
		for _, d := range deliveries {
			d.Nack(false, true)
			metrics.RecordEventConsumed(queue, false)
		}
		return
	}

	for _, d := range deliveries {
		d.Ack(false)
		metrics.RecordEventConsumed(queue, true)
	}
	slog.Info("Processed visit batch", "events", len(events), "days", len(counts))
}
