package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"mentora/backend/internal/domain"
	"mentora/backend/internal/store"
)

// ScheduleRepo implements the appointment, recurrence and block repositories
// on Postgres. Booking atomicity relies on a per-provider advisory lock taken
// inside the transaction plus the appointments_no_overlap exclusion
// constraint on (provider_id, tstzrange(start_at, end_at)) filtered to
// pending/confirmed rows; the constraint is the backstop, the in-transaction
// overlap check gives the friendly error.
type ScheduleRepo struct {
	db *bun.DB
}

func NewScheduleRepo(db *bun.DB) *ScheduleRepo {
	return &ScheduleRepo{db: db}
}

func lockProviderSchedule(ctx context.Context, tx bun.Tx, tenantID, providerID string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", tenantID+"/"+providerID).Exec(ctx)
	return err
}

func (r *ScheduleRepo) Create(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	var out domain.Appointment
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockProviderSchedule(ctx, tx, appt.TenantID, appt.ProviderID); err != nil {
			return err
		}

		exists, err := tx.NewSelect().
			Model((*domain.Appointment)(nil)).
			Where("tenant_id = ?", appt.TenantID).
			Where("provider_id = ?", appt.ProviderID).
			Where("status IN (?)", bun.In(domain.ActiveStatuses)).
			Where("start_at < ?", appt.EndAt).
			Where("end_at > ?", appt.StartAt).
			Exists(ctx)
		if err != nil {
			return err
		}
		if exists {
			return store.ErrConflict
		}

		m := appt
		if _, err := tx.NewInsert().Model(&m).Exec(ctx); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return domain.Appointment{}, mapStoreError(err)
	}
	return out, nil
}

func (r *ScheduleRepo) Get(ctx context.Context, tenantID string, id uuid.UUID) (domain.Appointment, error) {
	var a domain.Appointment
	err := r.db.NewSelect().
		Model(&a).
		Where("tenant_id = ?", tenantID).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Appointment{}, mapStoreError(err)
	}
	return a, nil
}

func (r *ScheduleRepo) List(ctx context.Context, q store.AppointmentQuery) ([]domain.Appointment, error) {
	sel := r.db.NewSelect().
		Model((*domain.Appointment)(nil)).
		Where("tenant_id = ?", q.TenantID)
	if q.ProviderID != "" {
		sel = sel.Where("provider_id = ?", q.ProviderID)
	}
	if q.ConsumerID != "" {
		sel = sel.Where("consumer_id = ?", q.ConsumerID)
	}
	if len(q.Statuses) > 0 {
		sel = sel.Where("status IN (?)", bun.In(q.Statuses))
	}
	if !q.From.IsZero() {
		sel = sel.Where("end_at > ?", q.From)
	}
	if !q.To.IsZero() {
		sel = sel.Where("start_at < ?", q.To)
	}

	var rows []domain.Appointment
	if err := sel.OrderExpr("start_at ASC").Scan(ctx, &rows); err != nil {
		return nil, mapStoreError(err)
	}
	return rows, nil
}

func (r *ScheduleRepo) Transition(ctx context.Context, tenantID string, id uuid.UUID, apply func(*domain.Appointment) error) (domain.Appointment, error) {
	var out domain.Appointment
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var a domain.Appointment
		err := tx.NewSelect().
			Model(&a).
			Where("tenant_id = ?", tenantID).
			Where("id = ?", id).
			For("UPDATE").
			Limit(1).
			Scan(ctx)
		if err != nil {
			return err
		}

		if err := apply(&a); err != nil {
			return err
		}

		if _, err := tx.NewUpdate().
			Model(&a).
			WherePK().
			Where("tenant_id = ?", tenantID).
			Exec(ctx); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return domain.Appointment{}, mapStoreError(err)
	}
	return out, nil
}

func (r *ScheduleRepo) ListDueReminders(ctx context.Context, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		Where("status = ?", domain.StatusConfirmed).
		Where("reminder_sent = FALSE").
		Where("start_at >= ?", windowStart).
		Where("start_at < ?", windowEnd).
		OrderExpr("start_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return rows, nil
}

func (r *ScheduleRepo) MarkReminderSent(ctx context.Context, tenantID string, id uuid.UUID, at time.Time) error {
	res, err := r.db.NewUpdate().
		Model((*domain.Appointment)(nil)).
		Set("reminder_sent = TRUE").
		Set("reminder_sent_at = ?", at).
		Set("updated_at = ?", time.Now().UTC()).
		Where("tenant_id = ?", tenantID).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return mapStoreError(err)
	}
	return requireAffected(res)
}

func (r *ScheduleRepo) ListElapsedConfirmed(ctx context.Context, asOf time.Time, limit int) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		Where("status = ?", domain.StatusConfirmed).
		Where("end_at <= ?", asOf).
		OrderExpr("end_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return rows, nil
}

func (r *ScheduleRepo) CreateRule(ctx context.Context, rule domain.RecurrenceRule) (domain.RecurrenceRule, error) {
	m := rule
	if _, err := r.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.RecurrenceRule{}, mapStoreError(err)
	}
	return m, nil
}

func (r *ScheduleRepo) UpdateRule(ctx context.Context, rule domain.RecurrenceRule) (domain.RecurrenceRule, error) {
	m := rule
	res, err := r.db.NewUpdate().
		Model(&m).
		ExcludeColumn("id", "tenant_id", "provider_id", "created_at").
		WherePK().
		Where("tenant_id = ?", rule.TenantID).
		Where("provider_id = ?", rule.ProviderID).
		Exec(ctx)
	if err != nil {
		return domain.RecurrenceRule{}, mapStoreError(err)
	}
	if err := requireAffected(res); err != nil {
		return domain.RecurrenceRule{}, err
	}
	return m, nil
}

func (r *ScheduleRepo) DeactivateRule(ctx context.Context, tenantID, providerID string, id uuid.UUID) error {
	res, err := r.db.NewUpdate().
		Model((*domain.RecurrenceRule)(nil)).
		Set("active = FALSE").
		Set("updated_at = ?", time.Now().UTC()).
		Where("tenant_id = ?", tenantID).
		Where("provider_id = ?", providerID).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return mapStoreError(err)
	}
	return requireAffected(res)
}

func (r *ScheduleRepo) GetRule(ctx context.Context, tenantID string, id uuid.UUID) (domain.RecurrenceRule, error) {
	var rule domain.RecurrenceRule
	err := r.db.NewSelect().
		Model(&rule).
		Where("tenant_id = ?", tenantID).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.RecurrenceRule{}, mapStoreError(err)
	}
	return rule, nil
}

func (r *ScheduleRepo) ListRules(ctx context.Context, tenantID, providerID string) ([]domain.RecurrenceRule, error) {
	var rows []domain.RecurrenceRule
	err := r.db.NewSelect().
		Model(&rows).
		Where("tenant_id = ?", tenantID).
		Where("provider_id = ?", providerID).
		OrderExpr("weekday ASC, start_minute ASC").
		Scan(ctx)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return rows, nil
}

func (r *ScheduleRepo) ListActiveRulesIntersecting(ctx context.Context, tenantID, providerID string, from, to time.Time) ([]domain.RecurrenceRule, error) {
	// Coarse prefilter with a day of slack on either end; the resolver's
	// per-date AppliesOn check is the exact gate.
	var rows []domain.RecurrenceRule
	err := r.db.NewSelect().
		Model(&rows).
		Where("tenant_id = ?", tenantID).
		Where("provider_id = ?", providerID).
		Where("active = TRUE").
		Where("start_date < ?", to.Add(24*time.Hour)).
		Where("(end_date IS NULL OR end_date >= ?)", from.Add(-24*time.Hour)).
		OrderExpr("weekday ASC, start_minute ASC").
		Scan(ctx)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return rows, nil
}

func (r *ScheduleRepo) CreateBlock(ctx context.Context, block domain.Block) (domain.Block, error) {
	m := block
	if _, err := r.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.Block{}, mapStoreError(err)
	}
	return m, nil
}

func (r *ScheduleRepo) UpdateBlock(ctx context.Context, block domain.Block) (domain.Block, error) {
	m := block
	res, err := r.db.NewUpdate().
		Model(&m).
		ExcludeColumn("id", "tenant_id", "created_by", "created_at").
		WherePK().
		Where("tenant_id = ?", block.TenantID).
		Exec(ctx)
	if err != nil {
		return domain.Block{}, mapStoreError(err)
	}
	if err := requireAffected(res); err != nil {
		return domain.Block{}, err
	}
	return m, nil
}

func (r *ScheduleRepo) DeleteBlock(ctx context.Context, tenantID string, id uuid.UUID) error {
	res, err := r.db.NewDelete().
		Model((*domain.Block)(nil)).
		Where("tenant_id = ?", tenantID).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return mapStoreError(err)
	}
	return requireAffected(res)
}

func (r *ScheduleRepo) GetBlock(ctx context.Context, tenantID string, id uuid.UUID) (domain.Block, error) {
	var b domain.Block
	err := r.db.NewSelect().
		Model(&b).
		Where("tenant_id = ?", tenantID).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Block{}, mapStoreError(err)
	}
	return b, nil
}

func (r *ScheduleRepo) ListBlocksOverlapping(ctx context.Context, tenantID, providerID string, from, to time.Time) ([]domain.Block, error) {
	var rows []domain.Block
	err := r.db.NewSelect().
		Model(&rows).
		Where("tenant_id = ?", tenantID).
		Where("(provider_id IS NULL OR provider_id = ?)", providerID).
		Where("start_at < ?", to).
		Where("end_at > ?", from).
		OrderExpr("start_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return rows, nil
}

func (r *ScheduleRepo) ListBlocks(ctx context.Context, tenantID string, from, to time.Time) ([]domain.Block, error) {
	sel := r.db.NewSelect().
		Model((*domain.Block)(nil)).
		Where("tenant_id = ?", tenantID)
	if !from.IsZero() {
		sel = sel.Where("end_at > ?", from)
	}
	if !to.IsZero() {
		sel = sel.Where("start_at < ?", to)
	}

	var rows []domain.Block
	if err := sel.OrderExpr("start_at ASC").Scan(ctx, &rows); err != nil {
		return nil, mapStoreError(err)
	}
	return rows, nil
}

func (r *ScheduleRepo) ListBlocksCreatedSince(ctx context.Context, since time.Time) ([]domain.Block, error) {
	var rows []domain.Block
	err := r.db.NewSelect().
		Model(&rows).
		Where("created_at >= ?", since).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return rows, nil
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// mapStoreError translates driver failures into the store's sentinel errors.
// Domain errors returned by transition callbacks pass through untouched.
func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrNotFound) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23P01" && pgErr.ConstraintName == "appointments_no_overlap" {
			return store.ErrConflict
		}
		// Connection failures (class 08), resource exhaustion (class 53) and
		// statement timeouts are transient.
		if strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "53") || pgErr.Code == "57014" {
			return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
		}
		return err
	}
	if pgconn.Timeout(err) {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return err
}
