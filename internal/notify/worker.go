package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Sender performs the actual delivery for one event. Errors are logged by
// the worker and the event is dropped; this pipeline is best-effort.
type Sender interface {
	Send(ctx context.Context, ev Event) error
}

// Worker drains the notification queue and hands events to a Sender. It is
// the consumer half of the outbox split: domain operations only enqueue.
type Worker struct {
	rdb    *redis.Client
	queue  string
	sender Sender
	log    *slog.Logger
}

func NewWorker(rdb *redis.Client, queue string, sender Sender, log *slog.Logger) *Worker {
	if queue == "" {
		queue = DefaultQueue
	}
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		rdb:    rdb,
		queue:  queue,
		sender: sender,
		log:    log.With(slog.String("component", "notify.worker")),
	}
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		res, err := w.rdb.BRPop(ctx, 5*time.Second, w.queue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			w.log.Warn("queue pop failed", slog.Any("err", err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if len(res) != 2 {
			continue
		}
		w.process(ctx, []byte(res[1]))
	}
}

func (w *Worker) process(ctx context.Context, payload []byte) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		w.log.Warn("discarding malformed event", slog.Any("err", err))
		return
	}

	if err := w.sender.Send(ctx, ev); err != nil {
		w.log.Error(
			"event delivery failed",
			slog.Any("err", err),
			slog.String("kind", string(ev.Kind)),
			slog.String("appointment_id", ev.AppointmentID.String()),
			slog.String("recipient_id", ev.RecipientID),
		)
		return
	}

	w.log.Info(
		"event delivered",
		slog.String("kind", string(ev.Kind)),
		slog.String("appointment_id", ev.AppointmentID.String()),
		slog.String("recipient_id", ev.RecipientID),
	)
}
