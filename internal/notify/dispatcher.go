package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type EventKind string

const (
	EventCreation     EventKind = "creation"
	EventConfirmation EventKind = "confirmation"
	EventCancellation EventKind = "cancellation"
	EventRejection    EventKind = "rejection"
	EventReminder     EventKind = "reminder"
	EventBlockCreated EventKind = "block_created"
)

// Event is one notification to deliver. Delivery is asynchronous and
// best-effort; nothing in the domain waits on it.
type Event struct {
	Kind          EventKind `json:"kind"`
	TenantID      string    `json:"tenant_id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	RecipientID   string    `json:"recipient_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Dispatcher accepts events fire-and-forget. Implementations must never
// block the caller beyond a short bounded enqueue and must swallow failures
// (logging them) rather than propagate.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev Event)
}

const DefaultQueue = "mentora:notifications"

// QueueDispatcher pushes events onto a redis list consumed by the Worker.
// A crash after the domain write but before the push loses at most the
// notification, never domain state.
type QueueDispatcher struct {
	rdb     *redis.Client
	queue   string
	timeout time.Duration
	log     *slog.Logger
}

func NewQueueDispatcher(rdb *redis.Client, queue string, log *slog.Logger) *QueueDispatcher {
	if queue == "" {
		queue = DefaultQueue
	}
	if log == nil {
		log = slog.Default()
	}
	return &QueueDispatcher{
		rdb:     rdb,
		queue:   queue,
		timeout: 2 * time.Second,
		log:     log.With(slog.String("component", "notify.dispatcher")),
	}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, ev Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		d.log.Error("event marshal failed", slog.Any("err", err), slog.String("kind", string(ev.Kind)))
		return
	}

	// Detach from the caller's context so a cancelled request cannot drop
	// the event of a write that already committed.
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	if err := d.rdb.LPush(pushCtx, d.queue, payload).Err(); err != nil {
		d.log.Error(
			"event enqueue failed",
			slog.Any("err", err),
			slog.String("kind", string(ev.Kind)),
			slog.String("appointment_id", ev.AppointmentID.String()),
		)
		return
	}

	d.log.Debug(
		"event enqueued",
		slog.String("kind", string(ev.Kind)),
		slog.String("appointment_id", ev.AppointmentID.String()),
		slog.String("recipient_id", ev.RecipientID),
	)
}

// NopDispatcher discards events. Used in tests and when no redis is
// configured.
type NopDispatcher struct{}

func (NopDispatcher) Dispatch(context.Context, Event) {}
