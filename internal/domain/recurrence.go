package domain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type ServiceKind string

const (
	ServiceKindOfficeHours ServiceKind = "office_hours"
	ServiceKindMentoring   ServiceKind = "mentoring"
)

// RecurrenceRule is a weekly-repeating availability template for one
// provider. Times of day are minutes since midnight in the tenant's canonical
// zone; the validity window is a date range with an optional open end.
type RecurrenceRule struct {
	bun.BaseModel `bun:"table:recurrence_rules"`

	ID          uuid.UUID   `bun:"id,pk,type:uuid"`
	TenantID    string      `bun:"tenant_id,notnull"`
	ProviderID  string      `bun:"provider_id,notnull"`
	ServiceKind ServiceKind `bun:"service_kind,notnull"`
	StartDate   time.Time   `bun:"start_date,notnull"`
	EndDate     *time.Time  `bun:"end_date"`
	Weekday     int16       `bun:"weekday,notnull"`
	StartMinute int16       `bun:"start_minute,notnull"`
	EndMinute   int16       `bun:"end_minute,notnull"`
	SlotMinutes int16       `bun:"slot_minutes,notnull"`
	Active      bool        `bun:"active,notnull,default:true"`
	CreatedAt   time.Time   `bun:"created_at,notnull"`
	UpdatedAt   time.Time   `bun:"updated_at,notnull"`
}

func (r *RecurrenceRule) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if r.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			r.ID = id
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		if r.UpdatedAt.IsZero() {
			r.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		r.UpdatedAt = now
	}
	return nil
}

// Validate checks the rule's internal invariants. Identity fields are the
// caller's concern.
func (r RecurrenceRule) Validate() error {
	if r.Weekday < 0 || r.Weekday > 6 {
		return errors.New("weekday must be between 0 and 6")
	}
	if r.StartMinute < 0 || r.EndMinute > 24*60 {
		return errors.New("time-of-day window out of range")
	}
	if r.StartMinute >= r.EndMinute {
		return errors.New("start_time must be before end_time")
	}
	if r.SlotMinutes <= 0 {
		return errors.New("slot_duration_minutes must be positive")
	}
	if r.ServiceKind != ServiceKindOfficeHours && r.ServiceKind != ServiceKindMentoring {
		return errors.New("unknown service kind")
	}
	if r.EndDate != nil && r.EndDate.Before(r.StartDate) {
		return errors.New("end_date must not be before start_date")
	}
	return nil
}

// AppliesOn reports whether the rule generates slots on the given calendar
// date. The date's weekday and the validity window are both evaluated in loc.
func (r RecurrenceRule) AppliesOn(date time.Time, loc *time.Location) bool {
	if !r.Active {
		return false
	}
	d := date.In(loc)
	if int16(d.Weekday()) != r.Weekday {
		return false
	}
	day := civilDate(d)
	if day.Before(civilDate(r.StartDate)) {
		return false
	}
	if r.EndDate != nil && day.After(civilDate(*r.EndDate)) {
		return false
	}
	return true
}

// Slot is a concrete bookable interval [StartAt, EndAt).
type Slot struct {
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
}

func (s Slot) Overlaps(o Slot) bool {
	return s.StartAt.Before(o.EndAt) && s.EndAt.After(o.StartAt)
}

// ExpandRuleSlots generates the rule's slots for one calendar date, stepping
// from the window start in slot-duration increments. A trailing remainder
// shorter than the slot duration is dropped.
func ExpandRuleSlots(rule RecurrenceRule, date time.Time, loc *time.Location) []Slot {
	if !rule.AppliesOn(date, loc) {
		return nil
	}
	d := date.In(loc)
	midnight := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)

	step := time.Duration(rule.SlotMinutes) * time.Minute
	windowEnd := midnight.Add(time.Duration(rule.EndMinute) * time.Minute)

	var out []Slot
	for start := midnight.Add(time.Duration(rule.StartMinute) * time.Minute); !start.Add(step).After(windowEnd); start = start.Add(step) {
		out = append(out, Slot{StartAt: start.UTC(), EndAt: start.Add(step).UTC()})
	}
	return out
}

// ExpandSlots expands every rule over each calendar date intersecting
// [from, to), de-duplicates exact (start, end) pairs produced by overlapping
// rules, and returns the slots sorted ascending by start.
func ExpandSlots(rules []RecurrenceRule, from, to time.Time, loc *time.Location) []Slot {
	if !from.Before(to) {
		return nil
	}

	type span struct{ start, end int64 }
	seen := make(map[span]struct{})
	var out []Slot

	start := from.In(loc)
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	for ; day.Before(to); day = day.AddDate(0, 0, 1) {
		for _, rule := range rules {
			for _, slot := range ExpandRuleSlots(rule, day, loc) {
				if !slot.StartAt.Before(to) || !slot.EndAt.After(from) {
					continue
				}
				key := span{slot.StartAt.UnixNano(), slot.EndAt.UnixNano()}
				if _, ok := seen[key]; ok {
					continue
				}
				seen[key] = struct{}{}
				out = append(out, slot)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out
}

// SubtractBusy removes every slot that overlaps any busy interval, even
// partially. No slot is ever shortened; a partial overlap removes it whole.
func SubtractBusy(slots []Slot, busy []Slot) []Slot {
	if len(busy) == 0 {
		return slots
	}
	out := make([]Slot, 0, len(slots))
	for _, s := range slots {
		blocked := false
		for _, b := range busy {
			if s.Overlaps(b) {
				blocked = true
				break
			}
		}
		if !blocked {
			out = append(out, s)
		}
	}
	return out
}

// ParseMinuteOfDay parses an "HH:MM" time-of-day into minutes since midnight.
// Both fields must be exactly two digits; "24:00" is accepted as end-of-day.
func ParseMinuteOfDay(s string) (int16, error) {
	if len(s) != 5 || s[2] != ':' || !isDigits(s[:2]) || !isDigits(s[3:]) {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	if m > 59 || h*60+m > 24*60 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return int16(h*60 + m), nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// FormatMinuteOfDay renders minutes since midnight as "HH:MM".
func FormatMinuteOfDay(m int16) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

func civilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
