// Package notify carries the event streams that leave the core: visit
// events for the analytics worker and review/lifecycle notifications for
// the outbound channels. The core only decides that an event fires;
// delivery is someone else's job.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"github.com/MagnunAVF/shortlinks/internal/logger"
	"github.com/MagnunAVF/shortlinks/internal/models"
)

type VisitEvent struct {
	LinkID     uuid.UUID `json:"link_id"`
	Alias      string    `json:"alias"`
	TrackingID string    `json:"tracking_id"`
	VisitedAt  time.Time `json:"visited_at"`
}

type ReviewEvent struct {
	PendingID   uuid.UUID           `json:"pending_id"`
	Destination string              `json:"destination"`
	Owner       string              `json:"owner"`
	From        models.ReviewStatus `json:"from"`
	To          models.ReviewStatus `json:"to"`
	Modifier    string              `json:"modifier"`
	At          time.Time           `json:"at"`
}

type Publisher interface {
	PublishVisit(ctx context.Context, event VisitEvent)
	PublishReview(ctx context.Context, event ReviewEvent)
}

// AMQP publishes events onto durable RabbitMQ queues. Publish failures
// are logged and dropped: event delivery is best-effort and must never
// fail a request.
type AMQP struct {
	ch          *amqp091.Channel
	visitQueue  string
	reviewQueue string
}

func NewAMQP(ch *amqp091.Channel, visitQueue, reviewQueue string) (*AMQP, error) {
	for _, name := range []string{visitQueue, reviewQueue} {
		if _, err := ch.QueueDeclare(
			name,
			true,  // durable
			false, // autoDelete
			false, // exclusive
			false, // noWait
			nil,
		); err != nil {
			return nil, err
		}
	}
	return &AMQP{ch: ch, visitQueue: visitQueue, reviewQueue: reviewQueue}, nil
}

func (a *AMQP) PublishVisit(ctx context.Context, event VisitEvent) {
	a.publish(ctx, a.visitQueue, event)
}

func (a *AMQP) PublishReview(ctx context.Context, event ReviewEvent) {
	a.publish(ctx, a.reviewQueue, event)
}

func (a *AMQP) publish(ctx context.Context, queue string, event interface{}) {
	body, err := json.Marshal(event)
	if err != nil {
		logger.FromContext(ctx).Error("marshal event", "queue", queue, "err", err)
		return
	}
	err = a.ch.PublishWithContext(
		ctx,
		"", queue, false, false,
		amqp091.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
	if err != nil {
		logger.FromContext(ctx).Error("publish event", "queue", queue, "err", err)
	}
}

// Nop discards all events; used in tests and when no broker is wired.
type Nop struct{}

func (Nop) PublishVisit(context.Context, VisitEvent)   {}
func (Nop) PublishReview(context.Context, ReviewEvent) {}
