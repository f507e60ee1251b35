package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
)

// ActiveStatuses are the statuses that occupy a provider's time. Cancelled and
// completed appointments are historical and never count toward overlap checks.
var ActiveStatuses = []AppointmentStatus{StatusPending, StatusConfirmed}

// StateError reports a transition the state machine does not permit. The
// appointment is left unchanged.
type StateError struct {
	From   AppointmentStatus
	To     AppointmentStatus
	Reason string
}

func (e *StateError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot transition from %s to %s: %s", e.From, e.To, e.Reason)
	}
	return fmt.Sprintf("cannot transition from %s to %s", e.From, e.To)
}

type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID                 uuid.UUID         `bun:"id,pk,type:uuid"`
	TenantID           string            `bun:"tenant_id,notnull"`
	ProviderID         string            `bun:"provider_id,notnull"`
	ConsumerID         string            `bun:"consumer_id,notnull"`
	StartAt            time.Time         `bun:"start_at,notnull"`
	EndAt              time.Time         `bun:"end_at,notnull"`
	Status             AppointmentStatus `bun:"status,notnull"`
	MeetingLink        string            `bun:"meeting_link"`
	Notes              string            `bun:"notes"`
	CancellationReason string            `bun:"cancellation_reason"`
	CancelledBy        string            `bun:"cancelled_by"`
	ConfirmedAt        *time.Time        `bun:"confirmed_at"`
	ReminderSent       bool              `bun:"reminder_sent,notnull,default:false"`
	ReminderSentAt     *time.Time        `bun:"reminder_sent_at"`
	CreatedAt          time.Time         `bun:"created_at,notnull"`
	UpdatedAt          time.Time         `bun:"updated_at,notnull"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}

func (a *Appointment) Span() Slot {
	return Slot{StartAt: a.StartAt, EndAt: a.EndAt}
}

// Confirm moves a pending appointment to confirmed. The meeting link is
// optional; an empty link leaves any previously set link in place.
func (a *Appointment) Confirm(meetingLink string, now time.Time) error {
	if a.Status != StatusPending {
		return &StateError{From: a.Status, To: StatusConfirmed}
	}
	a.Status = StatusConfirmed
	if meetingLink != "" {
		a.MeetingLink = meetingLink
	}
	at := now.UTC()
	a.ConfirmedAt = &at
	return nil
}

// Cancel moves a pending or confirmed appointment to cancelled on behalf of
// an actor. Cancelling an already terminal appointment is a StateError.
func (a *Appointment) Cancel(reason, actorID string) error {
	if a.Status != StatusPending && a.Status != StatusConfirmed {
		return &StateError{From: a.Status, To: StatusCancelled}
	}
	a.Status = StatusCancelled
	a.CancellationReason = reason
	a.CancelledBy = actorID
	return nil
}

// CancelBySystem is the blocking engine's transition. Unlike Cancel it treats
// an already-cancelled appointment as a no-op so block re-application stays
// idempotent. Completed appointments are still off limits.
func (a *Appointment) CancelBySystem(reason string) error {
	switch a.Status {
	case StatusCancelled:
		return nil
	case StatusCompleted:
		return &StateError{From: a.Status, To: StatusCancelled}
	}
	a.Status = StatusCancelled
	a.CancellationReason = reason
	return nil
}

// Complete moves a confirmed appointment to completed once its end time has
// passed.
func (a *Appointment) Complete(now time.Time) error {
	if a.Status != StatusConfirmed {
		return &StateError{From: a.Status, To: StatusCompleted}
	}
	if now.UTC().Before(a.EndAt) {
		return &StateError{From: a.Status, To: StatusCompleted, Reason: "appointment has not ended"}
	}
	a.Status = StatusCompleted
	return nil
}
