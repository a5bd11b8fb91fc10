package engine_test

import (
	"testing"
	"time"

	"github.com/Nishu1044/MedTrack/engine"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func at(year int, month time.Month, d, hour, minute int) time.Time {
	return time.Date(year, month, d, hour, minute, 0, 0, time.UTC)
}

func testMedication(times ...string) engine.Medication {
	return engine.Medication{
		ID:      "med-1",
		OwnerID: "owner-1",
		Name:    "Ibuprofen",
		Dose:    "200mg",
		Recurrence: engine.Recurrence{
			TimesPerDay: len(times),
			Times:       times,
		},
		ActiveFrom: day(2025, time.March, 10),
		ActiveTo:   engine.EndOfDay(day(2025, time.March, 12)),
		Category:   engine.CategoryMe,
	}
}

// =============================================================================
// GENERATION TESTS
// =============================================================================

func TestGenerate_FullRange_ProducesNTimesDOccurrences(t *testing.T) {
	// GIVEN: 2 times/day over a 3-day range
	// WHEN: Generating from before the range start
	// THEN: Exactly 2x3 = 6 occurrences, in chronological order

	med := testMedication("08:00", "20:00")

	drafts, err := engine.GenerateOccurrences(med, day(2025, time.March, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(drafts) != 6 {
		t.Fatalf("expected 6 occurrences, got %d", len(drafts))
	}
	for i := 1; i < len(drafts); i++ {
		if !drafts[i-1].ScheduledTime.Before(drafts[i].ScheduledTime) {
			t.Errorf("occurrences out of order at %d: %v then %v",
				i, drafts[i-1].ScheduledTime, drafts[i].ScheduledTime)
		}
	}
	if !drafts[0].ScheduledTime.Equal(at(2025, time.March, 10, 8, 0)) {
		t.Errorf("first occurrence = %v, want 08:00 on day one", drafts[0].ScheduledTime)
	}
	if !drafts[5].ScheduledTime.Equal(at(2025, time.March, 12, 20, 0)) {
		t.Errorf("last occurrence = %v, want 20:00 on day three", drafts[5].ScheduledTime)
	}
}

func TestGenerate_FromMidRange_SkipsPastInstants(t *testing.T) {
	// GIVEN: Range starting today at 07:00 with times 08:00 and 20:00
	// WHEN: Generating from 09:00 on day one
	// THEN: Day one's 08:00 slot is dropped, yielding 5

	med := testMedication("08:00", "20:00")

	drafts, err := engine.GenerateOccurrences(med, at(2025, time.March, 10, 9, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(drafts) != 5 {
		t.Fatalf("expected 5 occurrences, got %d", len(drafts))
	}
	if !drafts[0].ScheduledTime.Equal(at(2025, time.March, 10, 20, 0)) {
		t.Errorf("first occurrence = %v, want 20:00 on day one", drafts[0].ScheduledTime)
	}
}

func TestGenerate_BeforeRange_AllSlotsMaterialized(t *testing.T) {
	// Generating at 07:00 on day one keeps the 08:00 slot.
	med := testMedication("08:00", "20:00")

	drafts, err := engine.GenerateOccurrences(med, at(2025, time.March, 10, 7, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(drafts) != 6 {
		t.Fatalf("expected 6 occurrences, got %d", len(drafts))
	}
}

func TestGenerate_UnsortedTimes_EmittedInClockOrder(t *testing.T) {
	med := testMedication("20:00", "08:00", "13:30")

	drafts, err := engine.GenerateOccurrences(med, day(2025, time.March, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []int{8, 13, 20}
	for i, hour := range want {
		if drafts[i].ScheduledTime.Hour() != hour {
			t.Errorf("slot %d hour = %d, want %d", i, drafts[i].ScheduledTime.Hour(), hour)
		}
	}
}

func TestGenerate_MalformedTime_FailsWholeMedication(t *testing.T) {
	// Fail-fast: one bad time string aborts the whole set.
	for _, bad := range []string{"8:00", "24:00", "08:60", "0800", "ab:cd", ""} {
		med := testMedication("08:00", bad)
		drafts, err := engine.GenerateOccurrences(med, day(2025, time.March, 1))
		if err == nil {
			t.Errorf("time %q: expected error, got %d drafts", bad, len(drafts))
		}
		if drafts != nil {
			t.Errorf("time %q: expected no partial output", bad)
		}
	}
}

func TestGenerate_InvalidRange_Rejected(t *testing.T) {
	med := testMedication("08:00")
	med.ActiveTo = med.ActiveFrom

	if _, err := engine.GenerateOccurrences(med, day(2025, time.March, 1)); err == nil {
		t.Fatal("expected error for activeTo == activeFrom")
	}
}

// =============================================================================
// RECURRENCE VALIDATION TESTS
// =============================================================================

func TestValidateRecurrence(t *testing.T) {
	cases := []struct {
		name    string
		r       engine.Recurrence
		wantErr bool
	}{
		{"valid single", engine.Recurrence{TimesPerDay: 1, Times: []string{"08:00"}}, false},
		{"valid at cap", engine.Recurrence{TimesPerDay: 4, Times: []string{"06:00", "12:00", "18:00", "23:59"}}, false},
		{"zero times per day", engine.Recurrence{TimesPerDay: 0, Times: nil}, true},
		{"over cap", engine.Recurrence{TimesPerDay: 5, Times: []string{"01:00", "02:00", "03:00", "04:00", "05:00"}}, true},
		{"length mismatch", engine.Recurrence{TimesPerDay: 2, Times: []string{"08:00"}}, true},
		{"duplicate time", engine.Recurrence{TimesPerDay: 2, Times: []string{"08:00", "08:00"}}, true},
		{"malformed entry", engine.Recurrence{TimesPerDay: 1, Times: []string{"8am"}}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := engine.ValidateRecurrence(tc.r, engine.DefaultTimesPerDayCap)
			if tc.wantErr && err == nil {
				t.Error("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestParseClockTime(t *testing.T) {
	h, m, err := engine.ParseClockTime("23:45")
	if err != nil || h != 23 || m != 45 {
		t.Fatalf("ParseClockTime(23:45) = %d,%d,%v", h, m, err)
	}
	if _, _, err := engine.ParseClockTime("23:60"); err == nil {
		t.Error("expected error for minute 60")
	}
}
