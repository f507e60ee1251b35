package sweep

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mentora/backend/internal/domain"
	"mentora/backend/internal/notify"
	"mentora/backend/internal/service/blocking"
	"mentora/backend/internal/store"
)

const (
	reminderSchedule   = "@every 1m"
	completionSchedule = "@every 5m"
	blockSchedule      = "@every 1m"

	// completionBatch bounds one completion sweep; leftovers wait for the
	// next run.
	completionBatch = 200

	// blockLookback is how far the first block sweep looks back after a
	// process start.
	blockLookback = 24 * time.Hour
)

// Config tunes the periodic sweeps.
type Config struct {
	// ReminderWindow is how far ahead of an appointment's start its
	// reminder goes out.
	ReminderWindow time.Duration
}

// Sweeper owns the background maintenance loops: sending reminders for
// upcoming confirmed appointments, completing confirmed appointments whose
// end time passed, and re-applying recent blocks whose cancellations may
// have been interrupted.
type Sweeper struct {
	appts      store.AppointmentRepository
	blocks     store.BlockRepository
	engine     *blocking.Engine
	dispatcher notify.Dispatcher

	reminderWindow time.Duration
	log            *slog.Logger
	now            func() time.Time
	cron           *cron.Cron

	mu             sync.Mutex
	blockSweepMark time.Time
}

func NewSweeper(
	appts store.AppointmentRepository,
	blocks store.BlockRepository,
	engine *blocking.Engine,
	dispatcher notify.Dispatcher,
	cfg Config,
	log *slog.Logger,
) *Sweeper {
	window := cfg.ReminderWindow
	if window <= 0 {
		window = time.Hour
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Sweeper{
		appts:          appts,
		blocks:         blocks,
		engine:         engine,
		dispatcher:     dispatcher,
		reminderWindow: window,
		log:            log.With(slog.String("component", "sweep")),
		now:            time.Now,
		cron:           cron.New(),
	}
	s.blockSweepMark = time.Now().UTC().Add(-blockLookback)
	return s
}

// Start schedules the sweeps and launches the cron runner.
func (s *Sweeper) Start() error {
	jobs := []struct {
		schedule string
		run      func(context.Context)
	}{
		{reminderSchedule, s.SweepReminders},
		{completionSchedule, s.SweepCompletions},
		{blockSchedule, s.SweepBlocks},
	}
	for _, job := range jobs {
		run := job.run
		if _, err := s.cron.AddFunc(job.schedule, func() {
			run(context.Background())
		}); err != nil {
			return err
		}
	}
	s.cron.Start()
	return nil
}

// Stop halts scheduling and waits for running sweeps, up to ctx.
func (s *Sweeper) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// SweepReminders sends one reminder per confirmed appointment starting
// within the reminder window. The sent flag is set before dispatch, so a
// crash in between drops the reminder rather than double-sending it.
func (s *Sweeper) SweepReminders(ctx context.Context) {
	now := s.now().UTC()
	due, err := s.appts.ListDueReminders(ctx, now, now.Add(s.reminderWindow))
	if err != nil {
		s.log.Error("reminder sweep query failed", slog.Any("err", err))
		return
	}

	sent := 0
	for _, appt := range due {
		if err := s.appts.MarkReminderSent(ctx, appt.TenantID, appt.ID, now); err != nil {
			s.log.Error(
				"marking reminder failed",
				slog.Any("err", err),
				slog.String("appointment_id", appt.ID.String()),
			)
			continue
		}
		sent++
		s.dispatcher.Dispatch(ctx, notify.Event{
			Kind:          notify.EventReminder,
			TenantID:      appt.TenantID,
			AppointmentID: appt.ID,
			RecipientID:   appt.ConsumerID,
		})
	}
	if sent > 0 {
		s.log.Info("reminders sent", slog.Int("count", sent))
	}
}

// SweepCompletions marks confirmed appointments whose end time has passed
// as completed.
func (s *Sweeper) SweepCompletions(ctx context.Context) {
	now := s.now().UTC()
	elapsed, err := s.appts.ListElapsedConfirmed(ctx, now, completionBatch)
	if err != nil {
		s.log.Error("completion sweep query failed", slog.Any("err", err))
		return
	}

	completed := 0
	for _, appt := range elapsed {
		_, err := s.appts.Transition(ctx, appt.TenantID, appt.ID, func(a *domain.Appointment) error {
			if a.Status != domain.StatusConfirmed {
				return nil
			}
			return a.Complete(now)
		})
		if err != nil {
			s.log.Error(
				"completing appointment failed",
				slog.Any("err", err),
				slog.String("appointment_id", appt.ID.String()),
			)
			continue
		}
		completed++
	}
	if completed > 0 {
		s.log.Info("appointments completed", slog.Int("count", completed))
	}
}

// SweepBlocks re-applies blocks created since the last successful sweep so
// cancellations interrupted mid-batch are finished. Re-application is
// idempotent. The checkpoint only advances on a fully clean run.
func (s *Sweeper) SweepBlocks(ctx context.Context) {
	started := s.now().UTC()

	s.mu.Lock()
	since := s.blockSweepMark
	s.mu.Unlock()

	blocks, err := s.blocks.ListBlocksCreatedSince(ctx, since)
	if err != nil {
		s.log.Error("block sweep query failed", slog.Any("err", err))
		return
	}

	clean := true
	for _, block := range blocks {
		if _, err := s.engine.Apply(ctx, block); err != nil {
			clean = false
			s.log.Error(
				"block re-application failed",
				slog.Any("err", err),
				slog.String("block_id", block.ID.String()),
			)
		}
	}
	if !clean {
		return
	}

	s.mu.Lock()
	if started.After(s.blockSweepMark) {
		s.blockSweepMark = started
	}
	s.mu.Unlock()
}
