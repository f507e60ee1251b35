package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"mentora/backend/internal/auth"
	"mentora/backend/internal/domain"
	"mentora/backend/internal/notify"
	"mentora/backend/internal/service/blocking"
	"mentora/backend/internal/store"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// maxAvailabilityWindow caps how far one availability query may look ahead.
const maxAvailabilityWindow = 92 * 24 * time.Hour

// Config carries the deployment-level scheduling knobs.
type Config struct {
	// Location is the canonical zone recurrence windows are expanded in.
	Location *time.Location
	// MinAdvance is how far in the future a booking's start must lie.
	MinAdvance time.Duration
	// DefaultMeetingLink is attached on confirmation when neither the
	// provider nor the appointment supplies one.
	DefaultMeetingLink string
	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

type Service struct {
	appts      store.AppointmentRepository
	rules      store.RecurrenceRepository
	blocks     store.BlockRepository
	authz      auth.Authorizer
	dispatcher notify.Dispatcher
	engine     *blocking.Engine

	loc                *time.Location
	minAdvance         time.Duration
	defaultMeetingLink string

	log *slog.Logger
	now func() time.Time
}

func NewService(
	appts store.AppointmentRepository,
	rules store.RecurrenceRepository,
	blocks store.BlockRepository,
	authz auth.Authorizer,
	dispatcher notify.Dispatcher,
	engine *blocking.Engine,
	cfg Config,
	log *slog.Logger,
) *Service {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		appts:              appts,
		rules:              rules,
		blocks:             blocks,
		authz:              authz,
		dispatcher:         dispatcher,
		engine:             engine,
		loc:                loc,
		minAdvance:         cfg.MinAdvance,
		defaultMeetingLink: cfg.DefaultMeetingLink,
		log:                log.With(slog.String("component", "scheduling.service")),
		now:                now,
	}
}

// ListAvailability resolves the provider's bookable slots in [from, to):
// recurrence rules expanded day by day, minus every slot touching a block or
// a pending/confirmed appointment.
func (s *Service) ListAvailability(ctx context.Context, tenantID, providerID string, from, to time.Time) ([]domain.Slot, error) {
	if tenantID == "" {
		return nil, validationError("tenant_id is required")
	}
	if providerID == "" {
		return nil, validationError("provider_id is required")
	}

	from = from.UTC()
	to = to.UTC()
	if !from.Before(to) {
		return nil, validationError("window_end must be after window_start")
	}
	if to.Sub(from) > maxAvailabilityWindow {
		return nil, validationError("availability window too large")
	}

	rules, err := s.rules.ListActiveRulesIntersecting(ctx, tenantID, providerID, from, to)
	if err != nil {
		return nil, err
	}
	slots := domain.ExpandSlots(rules, from, to, s.loc)
	if len(slots) == 0 {
		return nil, nil
	}

	busy, err := s.busyIntervals(ctx, tenantID, providerID, from, to)
	if err != nil {
		return nil, err
	}
	return domain.SubtractBusy(slots, busy), nil
}

func (s *Service) busyIntervals(ctx context.Context, tenantID, providerID string, from, to time.Time) ([]domain.Slot, error) {
	blocks, err := s.blocks.ListBlocksOverlapping(ctx, tenantID, providerID, from, to)
	if err != nil {
		return nil, err
	}
	appts, err := s.appts.List(ctx, store.AppointmentQuery{
		TenantID:   tenantID,
		ProviderID: providerID,
		Statuses:   domain.ActiveStatuses,
		From:       from,
		To:         to,
	})
	if err != nil {
		return nil, err
	}

	busy := make([]domain.Slot, 0, len(blocks)+len(appts))
	for _, b := range blocks {
		busy = append(busy, b.Span())
	}
	for _, a := range appts {
		busy = append(busy, a.Span())
	}
	return busy, nil
}

type BookInput struct {
	TenantID   string
	ProviderID string
	ConsumerID string
	StartAt    time.Time
	EndAt      time.Time
	Notes      string
}

// Book places a pending appointment on one of the provider's offered slots.
// The slot must match an expanded recurrence slot exactly, must not touch a
// block, and the store rejects it when another active appointment already
// holds the time.
func (s *Service) Book(ctx context.Context, in BookInput) (domain.Appointment, error) {
	if in.TenantID == "" {
		return domain.Appointment{}, validationError("tenant_id is required")
	}
	if in.ProviderID == "" {
		return domain.Appointment{}, validationError("provider_id is required")
	}
	if in.ConsumerID == "" {
		return domain.Appointment{}, validationError("consumer_id is required")
	}
	if in.ConsumerID == in.ProviderID {
		return domain.Appointment{}, validationError("consumer and provider must differ")
	}

	start := in.StartAt.UTC()
	end := in.EndAt.UTC()
	if !start.Before(end) {
		return domain.Appointment{}, validationError("end_at must be after start_at")
	}
	if start.Before(s.now().UTC().Add(s.minAdvance)) {
		return domain.Appointment{}, validationError("start_at is too soon")
	}

	rules, err := s.rules.ListActiveRulesIntersecting(ctx, in.TenantID, in.ProviderID, start, end)
	if err != nil {
		return domain.Appointment{}, err
	}
	if !slotOffered(rules, start, end, s.loc) {
		return domain.Appointment{}, validationError("requested slot is not offered by the provider")
	}

	blocks, err := s.blocks.ListBlocksOverlapping(ctx, in.TenantID, in.ProviderID, start, end)
	if err != nil {
		return domain.Appointment{}, err
	}
	if len(blocks) > 0 {
		return domain.Appointment{}, fmt.Errorf("%w: requested slot is blocked", store.ErrConflict)
	}

	created, err := s.appts.Create(ctx, domain.Appointment{
		TenantID:   in.TenantID,
		ProviderID: in.ProviderID,
		ConsumerID: in.ConsumerID,
		StartAt:    start,
		EndAt:      end,
		Status:     domain.StatusPending,
		Notes:      strings.TrimSpace(in.Notes),
	})
	if err != nil {
		return domain.Appointment{}, err
	}

	s.dispatcher.Dispatch(ctx, notify.Event{
		Kind:          notify.EventCreation,
		TenantID:      created.TenantID,
		AppointmentID: created.ID,
		RecipientID:   created.ProviderID,
	})
	return created, nil
}

func slotOffered(rules []domain.RecurrenceRule, start, end time.Time, loc *time.Location) bool {
	for _, slot := range domain.ExpandSlots(rules, start, end, loc) {
		if slot.StartAt.Equal(start) && slot.EndAt.Equal(end) {
			return true
		}
	}
	return false
}

// Confirm moves a pending appointment to confirmed on behalf of its provider.
// When neither the call nor the appointment carries a meeting link, the
// deployment default is attached.
func (s *Service) Confirm(ctx context.Context, tenantID string, id uuid.UUID, actorID, meetingLink string) (domain.Appointment, error) {
	appt, err := s.getForUpdate(ctx, tenantID, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	if err := s.authz.Allow(ctx, actorID, auth.ActionConfirm, appointmentResource(appt)); err != nil {
		return domain.Appointment{}, err
	}

	link := strings.TrimSpace(meetingLink)
	if link == "" && appt.MeetingLink == "" {
		link = s.defaultMeetingLink
	}

	updated, err := s.appts.Transition(ctx, tenantID, id, func(a *domain.Appointment) error {
		return a.Confirm(link, s.now())
	})
	if err != nil {
		return domain.Appointment{}, err
	}

	s.dispatcher.Dispatch(ctx, notify.Event{
		Kind:          notify.EventConfirmation,
		TenantID:      updated.TenantID,
		AppointmentID: updated.ID,
		RecipientID:   updated.ConsumerID,
	})
	return updated, nil
}

// Reject declines a pending appointment. Only the provider may reject, and a
// reason is required.
func (s *Service) Reject(ctx context.Context, tenantID string, id uuid.UUID, actorID, reason string) (domain.Appointment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.Appointment{}, validationError("reason is required")
	}

	appt, err := s.getForUpdate(ctx, tenantID, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	if err := s.authz.Allow(ctx, actorID, auth.ActionReject, appointmentResource(appt)); err != nil {
		return domain.Appointment{}, err
	}

	updated, err := s.appts.Transition(ctx, tenantID, id, func(a *domain.Appointment) error {
		if a.Status != domain.StatusPending {
			return &domain.StateError{From: a.Status, To: domain.StatusCancelled, Reason: "only pending appointments can be rejected"}
		}
		return a.Cancel(reason, actorID)
	})
	if err != nil {
		return domain.Appointment{}, err
	}

	s.dispatcher.Dispatch(ctx, notify.Event{
		Kind:          notify.EventRejection,
		TenantID:      updated.TenantID,
		AppointmentID: updated.ID,
		RecipientID:   updated.ConsumerID,
	})
	return updated, nil
}

// Cancel cancels a pending or confirmed appointment on behalf of either
// party. The counterparty is notified.
func (s *Service) Cancel(ctx context.Context, tenantID string, id uuid.UUID, actorID, reason string) (domain.Appointment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.Appointment{}, validationError("reason is required")
	}

	appt, err := s.getForUpdate(ctx, tenantID, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	if err := s.authz.Allow(ctx, actorID, auth.ActionCancel, appointmentResource(appt)); err != nil {
		return domain.Appointment{}, err
	}

	updated, err := s.appts.Transition(ctx, tenantID, id, func(a *domain.Appointment) error {
		return a.Cancel(reason, actorID)
	})
	if err != nil {
		return domain.Appointment{}, err
	}

	recipient := updated.ConsumerID
	if actorID == updated.ConsumerID {
		recipient = updated.ProviderID
	}
	s.dispatcher.Dispatch(ctx, notify.Event{
		Kind:          notify.EventCancellation,
		TenantID:      updated.TenantID,
		AppointmentID: updated.ID,
		RecipientID:   recipient,
	})
	return updated, nil
}

// Complete marks a confirmed appointment completed once its end time has
// passed.
func (s *Service) Complete(ctx context.Context, tenantID string, id uuid.UUID, actorID string) (domain.Appointment, error) {
	appt, err := s.getForUpdate(ctx, tenantID, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	if err := s.authz.Allow(ctx, actorID, auth.ActionComplete, appointmentResource(appt)); err != nil {
		return domain.Appointment{}, err
	}

	return s.appts.Transition(ctx, tenantID, id, func(a *domain.Appointment) error {
		return a.Complete(s.now())
	})
}

func (s *Service) GetAppointment(ctx context.Context, tenantID string, id uuid.UUID) (domain.Appointment, error) {
	if tenantID == "" {
		return domain.Appointment{}, validationError("tenant_id is required")
	}
	if id == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	return s.appts.Get(ctx, tenantID, id)
}

func (s *Service) ListAppointments(ctx context.Context, q store.AppointmentQuery) ([]domain.Appointment, error) {
	if q.TenantID == "" {
		return nil, validationError("tenant_id is required")
	}
	if !q.From.IsZero() && !q.To.IsZero() && !q.From.Before(q.To) {
		return nil, validationError("window_end must be after window_start")
	}
	q.From = q.From.UTC()
	q.To = q.To.UTC()
	return s.appts.List(ctx, q)
}

func (s *Service) getForUpdate(ctx context.Context, tenantID string, id uuid.UUID) (domain.Appointment, error) {
	if tenantID == "" {
		return domain.Appointment{}, validationError("tenant_id is required")
	}
	if id == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	return s.appts.Get(ctx, tenantID, id)
}

func appointmentResource(a domain.Appointment) auth.Resource {
	return auth.Resource{
		TenantID:   a.TenantID,
		ProviderID: a.ProviderID,
		ConsumerID: a.ConsumerID,
	}
}

type RecurrenceInput struct {
	TenantID    string
	ProviderID  string
	ServiceKind domain.ServiceKind
	Weekday     int16
	StartMinute int16
	EndMinute   int16
	SlotMinutes int16
	StartDate   time.Time
	EndDate     *time.Time
}

func (s *Service) CreateRecurrence(ctx context.Context, actorID string, in RecurrenceInput) (domain.RecurrenceRule, error) {
	if in.TenantID == "" {
		return domain.RecurrenceRule{}, validationError("tenant_id is required")
	}
	if in.ProviderID == "" {
		return domain.RecurrenceRule{}, validationError("provider_id is required")
	}
	if err := s.authz.Allow(ctx, actorID, auth.ActionManageRecurrence, auth.Resource{TenantID: in.TenantID, ProviderID: in.ProviderID}); err != nil {
		return domain.RecurrenceRule{}, err
	}

	rule := domain.RecurrenceRule{
		TenantID:    in.TenantID,
		ProviderID:  in.ProviderID,
		ServiceKind: in.ServiceKind,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		Weekday:     in.Weekday,
		StartMinute: in.StartMinute,
		EndMinute:   in.EndMinute,
		SlotMinutes: in.SlotMinutes,
		Active:      true,
	}
	if rule.StartDate.IsZero() {
		rule.StartDate = s.now().In(s.loc)
	}
	if err := rule.Validate(); err != nil {
		return domain.RecurrenceRule{}, validationError(err.Error())
	}
	return s.rules.CreateRule(ctx, rule)
}

// UpdateRecurrence replaces the rule's schedule fields. Identity fields are
// immutable; slots already booked under the old shape stay booked.
func (s *Service) UpdateRecurrence(ctx context.Context, actorID, tenantID string, id uuid.UUID, in RecurrenceInput) (domain.RecurrenceRule, error) {
	rule, err := s.rules.GetRule(ctx, tenantID, id)
	if err != nil {
		return domain.RecurrenceRule{}, err
	}
	if err := s.authz.Allow(ctx, actorID, auth.ActionManageRecurrence, auth.Resource{TenantID: rule.TenantID, ProviderID: rule.ProviderID}); err != nil {
		return domain.RecurrenceRule{}, err
	}

	rule.ServiceKind = in.ServiceKind
	rule.Weekday = in.Weekday
	rule.StartMinute = in.StartMinute
	rule.EndMinute = in.EndMinute
	rule.SlotMinutes = in.SlotMinutes
	if !in.StartDate.IsZero() {
		rule.StartDate = in.StartDate
	}
	rule.EndDate = in.EndDate
	if err := rule.Validate(); err != nil {
		return domain.RecurrenceRule{}, validationError(err.Error())
	}
	return s.rules.UpdateRule(ctx, rule)
}

// DeactivateRecurrence soft-deletes the rule. Existing appointments are
// untouched; the rule simply stops generating slots.
func (s *Service) DeactivateRecurrence(ctx context.Context, actorID, tenantID string, id uuid.UUID) error {
	rule, err := s.rules.GetRule(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if err := s.authz.Allow(ctx, actorID, auth.ActionManageRecurrence, auth.Resource{TenantID: rule.TenantID, ProviderID: rule.ProviderID}); err != nil {
		return err
	}
	return s.rules.DeactivateRule(ctx, tenantID, rule.ProviderID, id)
}

func (s *Service) ListRecurrences(ctx context.Context, tenantID, providerID string) ([]domain.RecurrenceRule, error) {
	if tenantID == "" {
		return nil, validationError("tenant_id is required")
	}
	if providerID == "" {
		return nil, validationError("provider_id is required")
	}
	return s.rules.ListRules(ctx, tenantID, providerID)
}

type BlockInput struct {
	TenantID string
	// ProviderID nil blocks the whole tenant.
	ProviderID *string
	Kind       domain.BlockKind
	StartAt    time.Time
	EndAt      time.Time
	Reason     string
}

// BlockResult reports a block write together with how many active
// appointments its application cancelled.
type BlockResult struct {
	Block     domain.Block
	Cancelled int
}

// CreateBlock persists the block and synchronously cancels the active
// appointments it covers. The block is durable before cancellation starts;
// if cancellation is interrupted, the recovery sweep finishes the job.
func (s *Service) CreateBlock(ctx context.Context, actorID string, in BlockInput) (BlockResult, error) {
	if in.TenantID == "" {
		return BlockResult{}, validationError("tenant_id is required")
	}
	res := auth.Resource{TenantID: in.TenantID}
	if in.ProviderID != nil {
		res.ProviderID = *in.ProviderID
	}
	if err := s.authz.Allow(ctx, actorID, auth.ActionCreateBlock, res); err != nil {
		return BlockResult{}, err
	}

	block := domain.Block{
		TenantID:   in.TenantID,
		ProviderID: in.ProviderID,
		Kind:       in.Kind,
		StartAt:    in.StartAt.UTC(),
		EndAt:      in.EndAt.UTC(),
		Reason:     strings.TrimSpace(in.Reason),
		CreatedBy:  actorID,
	}
	if err := block.Validate(); err != nil {
		return BlockResult{}, validationError(err.Error())
	}

	created, err := s.blocks.CreateBlock(ctx, block)
	if err != nil {
		return BlockResult{}, err
	}
	return BlockResult{Block: created, Cancelled: s.applyBlock(ctx, created)}, nil
}

// UpdateBlock rewrites the block's range, kind and reason, then re-applies
// it so a widened range cancels the newly covered appointments. Appointments
// cancelled under the old range stay cancelled.
func (s *Service) UpdateBlock(ctx context.Context, actorID, tenantID string, id uuid.UUID, in BlockInput) (BlockResult, error) {
	block, err := s.blocks.GetBlock(ctx, tenantID, id)
	if err != nil {
		return BlockResult{}, err
	}
	if err := s.authz.Allow(ctx, actorID, auth.ActionManageBlock, blockResource(block)); err != nil {
		return BlockResult{}, err
	}

	block.Kind = in.Kind
	block.StartAt = in.StartAt.UTC()
	block.EndAt = in.EndAt.UTC()
	block.Reason = strings.TrimSpace(in.Reason)
	if err := block.Validate(); err != nil {
		return BlockResult{}, validationError(err.Error())
	}

	updated, err := s.blocks.UpdateBlock(ctx, block)
	if err != nil {
		return BlockResult{}, err
	}
	return BlockResult{Block: updated, Cancelled: s.applyBlock(ctx, updated)}, nil
}

// DeleteBlock removes the block. Appointments it already cancelled are not
// resurrected.
func (s *Service) DeleteBlock(ctx context.Context, actorID, tenantID string, id uuid.UUID) error {
	block, err := s.blocks.GetBlock(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if err := s.authz.Allow(ctx, actorID, auth.ActionManageBlock, blockResource(block)); err != nil {
		return err
	}
	return s.blocks.DeleteBlock(ctx, tenantID, id)
}

func (s *Service) ListBlocks(ctx context.Context, tenantID string, from, to time.Time) ([]domain.Block, error) {
	if tenantID == "" {
		return nil, validationError("tenant_id is required")
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return nil, validationError("window_end must be after window_start")
	}
	return s.blocks.ListBlocks(ctx, tenantID, from.UTC(), to.UTC())
}

func (s *Service) applyBlock(ctx context.Context, block domain.Block) int {
	cancelled, err := s.engine.Apply(ctx, block)
	if err != nil {
		// The block is already durable; the recovery sweep retries the
		// cancellations.
		s.log.Error(
			"block application failed",
			slog.Any("err", err),
			slog.String("block_id", block.ID.String()),
		)
	}
	return cancelled
}

func blockResource(b domain.Block) auth.Resource {
	res := auth.Resource{TenantID: b.TenantID, CreatedBy: b.CreatedBy}
	if b.ProviderID != nil {
		res.ProviderID = *b.ProviderID
	}
	return res
}
