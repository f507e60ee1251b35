package blocking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"mentora/backend/internal/domain"
	"mentora/backend/internal/notify"
	"mentora/backend/internal/store"
)

type fakeApptRepo struct {
	appts   map[uuid.UUID]*domain.Appointment
	failIDs map[uuid.UUID]bool
}

func newFakeApptRepo(appts ...*domain.Appointment) *fakeApptRepo {
	r := &fakeApptRepo{
		appts:   make(map[uuid.UUID]*domain.Appointment),
		failIDs: make(map[uuid.UUID]bool),
	}
	for _, a := range appts {
		r.appts[a.ID] = a
	}
	return r
}

func (r *fakeApptRepo) Create(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	panic("not used")
}

func (r *fakeApptRepo) Get(ctx context.Context, tenantID string, id uuid.UUID) (domain.Appointment, error) {
	a, ok := r.appts[id]
	if !ok || a.TenantID != tenantID {
		return domain.Appointment{}, store.ErrNotFound
	}
	return *a, nil
}

func (r *fakeApptRepo) List(ctx context.Context, q store.AppointmentQuery) ([]domain.Appointment, error) {
	var out []domain.Appointment
	for _, a := range r.appts {
		if a.TenantID != q.TenantID {
			continue
		}
		if q.ProviderID != "" && a.ProviderID != q.ProviderID {
			continue
		}
		if len(q.Statuses) > 0 {
			match := false
			for _, s := range q.Statuses {
				if a.Status == s {
					match = true
				}
			}
			if !match {
				continue
			}
		}
		if !q.From.IsZero() && !a.EndAt.After(q.From) {
			continue
		}
		if !q.To.IsZero() && !a.StartAt.Before(q.To) {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (r *fakeApptRepo) Transition(ctx context.Context, tenantID string, id uuid.UUID, apply func(*domain.Appointment) error) (domain.Appointment, error) {
	if r.failIDs[id] {
		return domain.Appointment{}, store.ErrUnavailable
	}
	a, ok := r.appts[id]
	if !ok || a.TenantID != tenantID {
		return domain.Appointment{}, store.ErrNotFound
	}
	if err := apply(a); err != nil {
		return domain.Appointment{}, err
	}
	return *a, nil
}

func (r *fakeApptRepo) ListDueReminders(ctx context.Context, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	return nil, nil
}

func (r *fakeApptRepo) MarkReminderSent(ctx context.Context, tenantID string, id uuid.UUID, at time.Time) error {
	return nil
}

func (r *fakeApptRepo) ListElapsedConfirmed(ctx context.Context, asOf time.Time, limit int) ([]domain.Appointment, error) {
	return nil, nil
}

type recordingDispatcher struct {
	events []notify.Event
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, ev notify.Event) {
	d.events = append(d.events, ev)
}

func at(hour, min int) time.Time {
	return time.Date(2026, 3, 9, hour, min, 0, 0, time.UTC)
}

func appt(provider string, status domain.AppointmentStatus, start, end time.Time) *domain.Appointment {
	id, _ := uuid.NewV7()
	return &domain.Appointment{
		ID:         id,
		TenantID:   "t1",
		ProviderID: provider,
		ConsumerID: "c-" + provider,
		StartAt:    start,
		EndAt:      end,
		Status:     status,
	}
}

func TestEngineApply(t *testing.T) {
	providerID := "p1"
	block := domain.Block{
		ID:         uuid.MustParse("00000000-0000-0000-0000-0000000000b1"),
		TenantID:   "t1",
		ProviderID: &providerID,
		Kind:       domain.BlockKindUnforeseen,
		Reason:     "power outage",
		StartAt:    at(14, 0),
		EndAt:      at(16, 0),
	}

	t.Run("cancels only overlapping active appointments", func(t *testing.T) {
		before := appt("p1", domain.StatusConfirmed, at(13, 0), at(14, 0))
		inside := appt("p1", domain.StatusPending, at(15, 0), at(16, 0))
		straddle := appt("p1", domain.StatusConfirmed, at(15, 30), at(16, 30))
		after := appt("p1", domain.StatusPending, at(16, 0), at(17, 0))
		done := appt("p1", domain.StatusCompleted, at(14, 0), at(15, 0))
		otherProv := appt("p2", domain.StatusConfirmed, at(14, 0), at(15, 0))
		repo := newFakeApptRepo(before, inside, straddle, after, done, otherProv)
		disp := &recordingDispatcher{}

		n, err := NewEngine(repo, disp, nil).Apply(context.Background(), block)
		if err != nil {
			t.Fatalf("Apply error: %v", err)
		}
		if n != 2 {
			t.Fatalf("cancelled = %d, want 2", n)
		}
		for _, a := range []*domain.Appointment{inside, straddle} {
			if a.Status != domain.StatusCancelled {
				t.Errorf("appointment %s status = %s, want cancelled", a.ID, a.Status)
			}
			if a.CancellationReason != "schedule block: power outage" {
				t.Errorf("reason = %q", a.CancellationReason)
			}
		}
		for _, a := range []*domain.Appointment{before, after, otherProv} {
			if a.Status == domain.StatusCancelled {
				t.Errorf("appointment %s was cancelled, want untouched", a.ID)
			}
		}
		if done.Status != domain.StatusCompleted {
			t.Errorf("completed appointment status = %s", done.Status)
		}
		if len(disp.events) != 2 {
			t.Fatalf("events = %d, want 2", len(disp.events))
		}
		for _, ev := range disp.events {
			if ev.Kind != notify.EventBlockCreated {
				t.Errorf("event kind = %s", ev.Kind)
			}
			if ev.RecipientID != "c-p1" {
				t.Errorf("recipient = %s", ev.RecipientID)
			}
		}
	})

	t.Run("tenant-wide block reaches every provider", func(t *testing.T) {
		a1 := appt("p1", domain.StatusPending, at(14, 0), at(15, 0))
		a2 := appt("p2", domain.StatusConfirmed, at(15, 0), at(16, 0))
		repo := newFakeApptRepo(a1, a2)
		wide := block
		wide.ProviderID = nil

		n, err := NewEngine(repo, notify.NopDispatcher{}, nil).Apply(context.Background(), wide)
		if err != nil {
			t.Fatalf("Apply error: %v", err)
		}
		if n != 2 {
			t.Fatalf("cancelled = %d, want 2", n)
		}
	})

	t.Run("second apply is a no-op", func(t *testing.T) {
		a := appt("p1", domain.StatusConfirmed, at(14, 0), at(15, 0))
		repo := newFakeApptRepo(a)
		disp := &recordingDispatcher{}
		eng := NewEngine(repo, disp, nil)

		if n, _ := eng.Apply(context.Background(), block); n != 1 {
			t.Fatalf("first apply cancelled = %d, want 1", n)
		}
		n, err := eng.Apply(context.Background(), block)
		if err != nil {
			t.Fatalf("second apply error: %v", err)
		}
		if n != 0 {
			t.Fatalf("second apply cancelled = %d, want 0", n)
		}
		if len(disp.events) != 1 {
			t.Fatalf("events = %d, want 1", len(disp.events))
		}
	})

	t.Run("continues past a failing appointment", func(t *testing.T) {
		bad := appt("p1", domain.StatusPending, at(14, 0), at(15, 0))
		good := appt("p1", domain.StatusConfirmed, at(15, 0), at(16, 0))
		repo := newFakeApptRepo(bad, good)
		repo.failIDs[bad.ID] = true

		n, err := NewEngine(repo, notify.NopDispatcher{}, nil).Apply(context.Background(), block)
		if err != nil {
			t.Fatalf("Apply error: %v", err)
		}
		if n != 1 {
			t.Fatalf("cancelled = %d, want 1", n)
		}
		if good.Status != domain.StatusCancelled {
			t.Errorf("good appointment status = %s, want cancelled", good.Status)
		}
		if bad.Status != domain.StatusPending {
			t.Errorf("failing appointment status = %s, want pending", bad.Status)
		}
	})

	t.Run("list failure is returned", func(t *testing.T) {
		n, err := NewEngine(failingListRepo{}, notify.NopDispatcher{}, nil).Apply(context.Background(), block)
		if !errors.Is(err, store.ErrUnavailable) {
			t.Fatalf("err = %v, want ErrUnavailable", err)
		}
		if n != 0 {
			t.Fatalf("cancelled = %d, want 0", n)
		}
	})
}

type failingListRepo struct{ *fakeApptRepo }

func (failingListRepo) List(context.Context, store.AppointmentQuery) ([]domain.Appointment, error) {
	return nil, store.ErrUnavailable
}
