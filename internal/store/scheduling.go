package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"mentora/backend/internal/domain"
)

// AppointmentQuery scopes an appointment listing. TenantID is required;
// everything else narrows the result set.
type AppointmentQuery struct {
	TenantID   string
	ProviderID string
	ConsumerID string
	Statuses   []domain.AppointmentStatus
	// Window [From, To); zero values leave the window unbounded on that side.
	From time.Time
	To   time.Time
}

// AppointmentRepository is the appointment store. Create is the atomic
// check-and-insert from the booking path: it must fail with ErrConflict when
// another pending or confirmed appointment for the same provider overlaps,
// even under concurrent calls. Transition is a read-modify-write under a
// row-scoped lock; the apply callback is the only place status changes.
type AppointmentRepository interface {
	Create(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	Get(ctx context.Context, tenantID string, id uuid.UUID) (domain.Appointment, error)
	List(ctx context.Context, q AppointmentQuery) ([]domain.Appointment, error)
	Transition(ctx context.Context, tenantID string, id uuid.UUID, apply func(*domain.Appointment) error) (domain.Appointment, error)

	// Sweep queries run across tenants.
	ListDueReminders(ctx context.Context, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
	MarkReminderSent(ctx context.Context, tenantID string, id uuid.UUID, at time.Time) error
	ListElapsedConfirmed(ctx context.Context, asOf time.Time, limit int) ([]domain.Appointment, error)
}

// RecurrenceRepository is the recurrence store. Rules are soft-deactivated,
// never hard-deleted.
type RecurrenceRepository interface {
	CreateRule(ctx context.Context, rule domain.RecurrenceRule) (domain.RecurrenceRule, error)
	UpdateRule(ctx context.Context, rule domain.RecurrenceRule) (domain.RecurrenceRule, error)
	DeactivateRule(ctx context.Context, tenantID, providerID string, id uuid.UUID) error
	GetRule(ctx context.Context, tenantID string, id uuid.UUID) (domain.RecurrenceRule, error)
	ListRules(ctx context.Context, tenantID, providerID string) ([]domain.RecurrenceRule, error)
	// ListActiveRulesIntersecting returns active rules whose validity window
	// intersects [from, to).
	ListActiveRulesIntersecting(ctx context.Context, tenantID, providerID string, from, to time.Time) ([]domain.RecurrenceRule, error)
}

// BlockRepository is the block store.
type BlockRepository interface {
	CreateBlock(ctx context.Context, block domain.Block) (domain.Block, error)
	UpdateBlock(ctx context.Context, block domain.Block) (domain.Block, error)
	DeleteBlock(ctx context.Context, tenantID string, id uuid.UUID) error
	GetBlock(ctx context.Context, tenantID string, id uuid.UUID) (domain.Block, error)
	// ListBlocksOverlapping returns blocks intersecting [from, to) that apply
	// to the provider: provider-scoped blocks for that provider plus
	// tenant-wide ones.
	ListBlocksOverlapping(ctx context.Context, tenantID, providerID string, from, to time.Time) ([]domain.Block, error)
	ListBlocks(ctx context.Context, tenantID string, from, to time.Time) ([]domain.Block, error)
	// ListBlocksCreatedSince feeds the blocking recovery sweep.
	ListBlocksCreatedSince(ctx context.Context, since time.Time) ([]domain.Block, error)
}
