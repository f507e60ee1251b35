package domain

import (
	"testing"
	"time"
)

func mondayRule(startMinute, endMinute, slotMinutes int16) RecurrenceRule {
	return RecurrenceRule{
		TenantID:    "t1",
		ProviderID:  "p1",
		ServiceKind: ServiceKindOfficeHours,
		StartDate:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Weekday:     1,
		StartMinute: startMinute,
		EndMinute:   endMinute,
		SlotMinutes: slotMinutes,
		Active:      true,
	}
}

func TestExpandRuleSlots_DropsTrailingRemainder(t *testing.T) {
	// 08:00-09:10 with 30 minute slots: 08:00-08:30 and 08:30-09:00 only.
	rule := mondayRule(8*60, 9*60+10, 30)
	monday := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	slots := ExpandRuleSlots(rule, monday, time.UTC)
	if len(slots) != 2 {
		t.Fatalf("len(slots) = %d, want 2", len(slots))
	}
	want := []Slot{
		{StartAt: time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC), EndAt: time.Date(2026, 1, 5, 8, 30, 0, 0, time.UTC)},
		{StartAt: time.Date(2026, 1, 5, 8, 30, 0, 0, time.UTC), EndAt: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)},
	}
	for i, w := range want {
		if !slots[i].StartAt.Equal(w.StartAt) || !slots[i].EndAt.Equal(w.EndAt) {
			t.Fatalf("slot[%d] = %v-%v, want %v-%v", i, slots[i].StartAt, slots[i].EndAt, w.StartAt, w.EndAt)
		}
	}
}

func TestExpandRuleSlots_WrongWeekdayYieldsNothing(t *testing.T) {
	rule := mondayRule(9*60, 10*60, 30)
	tuesday := time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC)

	if slots := ExpandRuleSlots(rule, tuesday, time.UTC); len(slots) != 0 {
		t.Fatalf("len(slots) = %d, want 0", len(slots))
	}
}

func TestExpandRuleSlots_InactiveRuleYieldsNothing(t *testing.T) {
	rule := mondayRule(9*60, 10*60, 30)
	rule.Active = false
	monday := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	if slots := ExpandRuleSlots(rule, monday, time.UTC); len(slots) != 0 {
		t.Fatalf("len(slots) = %d, want 0", len(slots))
	}
}

func TestExpandRuleSlots_ValidityWindow(t *testing.T) {
	rule := mondayRule(9*60, 10*60, 30)
	end := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	rule.EndDate = &end

	t.Run("date after end_date", func(t *testing.T) {
		monday := time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC)
		if slots := ExpandRuleSlots(rule, monday, time.UTC); len(slots) != 0 {
			t.Fatalf("len(slots) = %d, want 0", len(slots))
		}
	})

	t.Run("date before start_date", func(t *testing.T) {
		monday := time.Date(2025, 12, 29, 0, 0, 0, 0, time.UTC)
		if slots := ExpandRuleSlots(rule, monday, time.UTC); len(slots) != 0 {
			t.Fatalf("len(slots) = %d, want 0", len(slots))
		}
	})

	t.Run("date on end_date still applies", func(t *testing.T) {
		// 2026-01-05 is a Monday inside [2026-01-01, 2026-01-10].
		monday := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
		if slots := ExpandRuleSlots(rule, monday, time.UTC); len(slots) != 2 {
			t.Fatalf("len(slots) = %d, want 2", len(slots))
		}
	})
}

func TestExpandSlots_OpenEndedRuleGeneratesFarFuture(t *testing.T) {
	rule := mondayRule(9*60, 10*60, 60)

	from := time.Date(2030, 6, 3, 0, 0, 0, 0, time.UTC) // Monday
	to := from.AddDate(0, 0, 1)

	slots := ExpandSlots([]RecurrenceRule{rule}, from, to, time.UTC)
	if len(slots) != 1 {
		t.Fatalf("len(slots) = %d, want 1", len(slots))
	}
	if !slots[0].StartAt.Equal(time.Date(2030, 6, 3, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("slot start = %v", slots[0].StartAt)
	}
}

func TestExpandSlots_DeduplicatesOverlappingRules(t *testing.T) {
	a := mondayRule(9*60, 10*60, 30)
	b := mondayRule(9*60, 10*60, 30)
	b.ServiceKind = ServiceKindMentoring

	from := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	slots := ExpandSlots([]RecurrenceRule{a, b}, from, to, time.UTC)
	if len(slots) != 2 {
		t.Fatalf("len(slots) = %d, want 2 (deduplicated)", len(slots))
	}
}

func TestExpandSlots_DifferentDurationsCoexist(t *testing.T) {
	a := mondayRule(9*60, 10*60, 30)
	b := mondayRule(9*60, 10*60, 60)

	from := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	// 09:00-09:30, 09:30-10:00 from a plus 09:00-10:00 from b.
	slots := ExpandSlots([]RecurrenceRule{a, b}, from, to, time.UTC)
	if len(slots) != 3 {
		t.Fatalf("len(slots) = %d, want 3", len(slots))
	}
	for i := 1; i < len(slots); i++ {
		if slots[i].StartAt.Before(slots[i-1].StartAt) {
			t.Fatalf("slots not sorted ascending: %v before %v", slots[i].StartAt, slots[i-1].StartAt)
		}
	}
}

func TestExpandSlots_MultipleWeeks(t *testing.T) {
	rule := mondayRule(9*60, 10*60, 60)

	from := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 14)

	slots := ExpandSlots([]RecurrenceRule{rule}, from, to, time.UTC)
	if len(slots) != 2 {
		t.Fatalf("len(slots) = %d, want 2", len(slots))
	}
}

func TestSubtractBusy_PartialOverlapRemovesWholeSlot(t *testing.T) {
	base := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	slots := []Slot{
		{StartAt: base, EndAt: base.Add(30 * time.Minute)},
		{StartAt: base.Add(30 * time.Minute), EndAt: base.Add(60 * time.Minute)},
	}
	busy := []Slot{
		// Overlaps only the last 10 minutes of the first slot.
		{StartAt: base.Add(20 * time.Minute), EndAt: base.Add(25 * time.Minute)},
	}

	out := SubtractBusy(slots, busy)
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	if !out[0].StartAt.Equal(base.Add(30 * time.Minute)) {
		t.Fatalf("kept slot start = %v, want %v", out[0].StartAt, base.Add(30*time.Minute))
	}
}

func TestSubtractBusy_AdjacentIntervalDoesNotRemove(t *testing.T) {
	base := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	slots := []Slot{{StartAt: base, EndAt: base.Add(30 * time.Minute)}}
	busy := []Slot{{StartAt: base.Add(30 * time.Minute), EndAt: base.Add(60 * time.Minute)}}

	if out := SubtractBusy(slots, busy); len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1 (adjacent interval is not an overlap)", len(out))
	}
}

func TestRecurrenceRuleValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*RecurrenceRule)
		wantErr bool
	}{
		{"valid", func(r *RecurrenceRule) {}, false},
		{"inverted window", func(r *RecurrenceRule) { r.StartMinute, r.EndMinute = r.EndMinute, r.StartMinute }, true},
		{"zero slot duration", func(r *RecurrenceRule) { r.SlotMinutes = 0 }, true},
		{"weekday out of range", func(r *RecurrenceRule) { r.Weekday = 7 }, true},
		{"end date before start date", func(r *RecurrenceRule) {
			d := r.StartDate.AddDate(0, 0, -1)
			r.EndDate = &d
		}, true},
		{"unknown service kind", func(r *RecurrenceRule) { r.ServiceKind = "yoga" }, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rule := mondayRule(8*60, 9*60, 30)
			tc.mutate(&rule)
			err := rule.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestParseMinuteOfDay(t *testing.T) {
	m, err := ParseMinuteOfDay("08:30")
	if err != nil {
		t.Fatalf("ParseMinuteOfDay error: %v", err)
	}
	if m != 8*60+30 {
		t.Fatalf("minute = %d, want %d", m, 8*60+30)
	}
	if got := FormatMinuteOfDay(m); got != "08:30" {
		t.Fatalf("FormatMinuteOfDay = %q, want %q", got, "08:30")
	}
	if m, err := ParseMinuteOfDay("24:00"); err != nil || m != 24*60 {
		t.Fatalf("ParseMinuteOfDay(24:00) = %d, %v", m, err)
	}

	for _, bad := range []string{"25:00", "08:60", "8:30", "08:3", "+8:30", "08-30", "bogus", ""} {
		if _, err := ParseMinuteOfDay(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
