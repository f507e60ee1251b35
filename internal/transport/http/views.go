package http

import (
	"time"

	"mentora/backend/internal/domain"
)

type appointmentView struct {
	ID                 string     `json:"id"`
	TenantID           string     `json:"tenant_id"`
	ProviderID         string     `json:"provider_id"`
	ConsumerID         string     `json:"consumer_id"`
	StartAt            time.Time  `json:"start_at"`
	EndAt              time.Time  `json:"end_at"`
	Status             string     `json:"status"`
	MeetingLink        string     `json:"meeting_link,omitempty"`
	Notes              string     `json:"notes,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	CancelledBy        string     `json:"cancelled_by,omitempty"`
	ConfirmedAt        *time.Time `json:"confirmed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

func viewAppointment(a domain.Appointment) appointmentView {
	return appointmentView{
		ID:                 a.ID.String(),
		TenantID:           a.TenantID,
		ProviderID:         a.ProviderID,
		ConsumerID:         a.ConsumerID,
		StartAt:            a.StartAt,
		EndAt:              a.EndAt,
		Status:             string(a.Status),
		MeetingLink:        a.MeetingLink,
		Notes:              a.Notes,
		CancellationReason: a.CancellationReason,
		CancelledBy:        a.CancelledBy,
		ConfirmedAt:        a.ConfirmedAt,
		CreatedAt:          a.CreatedAt,
	}
}

func viewAppointments(appts []domain.Appointment) []appointmentView {
	out := make([]appointmentView, 0, len(appts))
	for _, a := range appts {
		out = append(out, viewAppointment(a))
	}
	return out
}

type recurrenceView struct {
	ID          string  `json:"id"`
	TenantID    string  `json:"tenant_id"`
	ProviderID  string  `json:"provider_id"`
	ServiceKind string  `json:"service_kind"`
	Weekday     int16   `json:"weekday"`
	StartTime   string  `json:"start_time"`
	EndTime     string  `json:"end_time"`
	SlotMinutes int16   `json:"slot_duration_minutes"`
	StartDate   string  `json:"start_date"`
	EndDate     *string `json:"end_date,omitempty"`
	Active      bool    `json:"active"`
}

func viewRecurrence(r domain.RecurrenceRule) recurrenceView {
	view := recurrenceView{
		ID:          r.ID.String(),
		TenantID:    r.TenantID,
		ProviderID:  r.ProviderID,
		ServiceKind: string(r.ServiceKind),
		Weekday:     r.Weekday,
		StartTime:   domain.FormatMinuteOfDay(r.StartMinute),
		EndTime:     domain.FormatMinuteOfDay(r.EndMinute),
		SlotMinutes: r.SlotMinutes,
		StartDate:   r.StartDate.Format(dateLayout),
		Active:      r.Active,
	}
	if r.EndDate != nil {
		end := r.EndDate.Format(dateLayout)
		view.EndDate = &end
	}
	return view
}

func viewRecurrences(rules []domain.RecurrenceRule) []recurrenceView {
	out := make([]recurrenceView, 0, len(rules))
	for _, r := range rules {
		out = append(out, viewRecurrence(r))
	}
	return out
}

type blockView struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	ProviderID *string   `json:"provider_id,omitempty"`
	Kind       string    `json:"kind"`
	StartAt    time.Time `json:"start_at"`
	EndAt      time.Time `json:"end_at"`
	Reason     string    `json:"reason,omitempty"`
	CreatedBy  string    `json:"created_by"`
}

func viewBlock(b domain.Block) blockView {
	return blockView{
		ID:         b.ID.String(),
		TenantID:   b.TenantID,
		ProviderID: b.ProviderID,
		Kind:       string(b.Kind),
		StartAt:    b.StartAt,
		EndAt:      b.EndAt,
		Reason:     b.Reason,
		CreatedBy:  b.CreatedBy,
	}
}

func viewBlocks(blocks []domain.Block) []blockView {
	out := make([]blockView, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, viewBlock(b))
	}
	return out
}
