package blocking

import (
	"context"
	"log/slog"

	"mentora/backend/internal/domain"
	"mentora/backend/internal/notify"
	"mentora/backend/internal/store"
)

// Engine cancels every pending or confirmed appointment that a schedule
// block now overlaps. It runs synchronously after block creation and again
// from the recovery sweep; both paths are idempotent because re-cancelling
// an already-cancelled appointment is a no-op.
type Engine struct {
	appts      store.AppointmentRepository
	dispatcher notify.Dispatcher
	log        *slog.Logger
}

func NewEngine(appts store.AppointmentRepository, dispatcher notify.Dispatcher, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		appts:      appts,
		dispatcher: dispatcher,
		log:        log.With(slog.String("component", "blocking.engine")),
	}
}

// Apply cancels the block's overlapping appointments and returns how many it
// cancelled this run. A single appointment's failure is logged and the batch
// continues; partial completion is safe because the next Apply picks up
// whatever is still pending or confirmed.
func (e *Engine) Apply(ctx context.Context, block domain.Block) (int, error) {
	q := store.AppointmentQuery{
		TenantID: block.TenantID,
		Statuses: domain.ActiveStatuses,
		From:     block.StartAt,
		To:       block.EndAt,
	}
	if block.ProviderID != nil {
		q.ProviderID = *block.ProviderID
	}

	affected, err := e.appts.List(ctx, q)
	if err != nil {
		return 0, err
	}

	reason := block.CancellationReason()
	cancelled := 0
	for _, appt := range affected {
		changed := false
		updated, err := e.appts.Transition(ctx, appt.TenantID, appt.ID, func(a *domain.Appointment) error {
			if a.Status == domain.StatusCancelled {
				return nil
			}
			if err := a.CancelBySystem(reason); err != nil {
				return err
			}
			changed = true
			return nil
		})
		if err != nil {
			e.log.Error(
				"block cancellation failed",
				slog.Any("err", err),
				slog.String("block_id", block.ID.String()),
				slog.String("appointment_id", appt.ID.String()),
			)
			continue
		}
		if !changed {
			continue
		}

		cancelled++
		e.dispatcher.Dispatch(ctx, notify.Event{
			Kind:          notify.EventBlockCreated,
			TenantID:      updated.TenantID,
			AppointmentID: updated.ID,
			RecipientID:   updated.ConsumerID,
		})
	}

	if cancelled > 0 {
		e.log.Info(
			"block applied",
			slog.String("block_id", block.ID.String()),
			slog.String("tenant_id", block.TenantID),
			slog.Int("cancelled", cancelled),
		)
	}
	return cancelled, nil
}
