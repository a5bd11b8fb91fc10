package engine_test

import (
	"testing"
	"time"

	"github.com/Nishu1044/MedTrack/engine"
)

func ptr(t time.Time) *time.Time { return &t }

// =============================================================================
// STATUS RESOLUTION TESTS
// =============================================================================

func TestResolveStatus_TakenWithinGrace(t *testing.T) {
	// GIVEN: Grace of 30 minutes, dose scheduled 08:00
	// WHEN: Taken at 08:20
	// THEN: Status is taken, regardless of when resolution runs

	th := engine.DefaultThresholds()
	scheduled := at(2025, time.March, 10, 8, 0)
	taken := at(2025, time.March, 10, 8, 20)

	got := engine.ResolveStatus(scheduled, ptr(taken), at(2025, time.March, 10, 12, 0), th)
	if got != engine.StatusTaken {
		t.Fatalf("status = %s, want taken", got)
	}
}

func TestResolveStatus_TakenAfterGrace(t *testing.T) {
	// Taken at 09:00 against an 08:00 slot with 30m grace: late, and adherent.
	th := engine.DefaultThresholds()
	scheduled := at(2025, time.March, 10, 8, 0)
	taken := at(2025, time.March, 10, 9, 0)

	got := engine.ResolveStatus(scheduled, ptr(taken), taken, th)
	if got != engine.StatusLate {
		t.Fatalf("status = %s, want late", got)
	}
}

func TestResolveStatus_TakenExactlyAtGraceBoundary(t *testing.T) {
	// Lateness == grace is still within grace.
	th := engine.DefaultThresholds()
	scheduled := at(2025, time.March, 10, 8, 0)
	taken := scheduled.Add(th.Grace)

	got := engine.ResolveStatus(scheduled, ptr(taken), taken, th)
	if got != engine.StatusTaken {
		t.Fatalf("status = %s, want taken at exact grace boundary", got)
	}
}

func TestResolveStatus_TakenEarly(t *testing.T) {
	// Negative lateness is within grace.
	th := engine.DefaultThresholds()
	scheduled := at(2025, time.March, 10, 8, 0)
	taken := at(2025, time.March, 10, 7, 30)

	got := engine.ResolveStatus(scheduled, ptr(taken), taken, th)
	if got != engine.StatusTaken {
		t.Fatalf("status = %s, want taken for early intake", got)
	}
}

func TestResolveStatus_UntakenProgression(t *testing.T) {
	// GIVEN: An un-taken dose scheduled at 08:00, missed threshold 4h
	// THEN: scheduled before 08:00, late until 12:00, missed after

	th := engine.DefaultThresholds()
	scheduled := at(2025, time.March, 10, 8, 0)

	cases := []struct {
		name string
		now  time.Time
		want engine.DoseStatus
	}{
		{"before slot", at(2025, time.March, 10, 7, 59), engine.StatusScheduled},
		{"exactly at slot", scheduled, engine.StatusScheduled},
		{"shortly after", at(2025, time.March, 10, 8, 1), engine.StatusLate},
		{"at missed boundary", scheduled.Add(th.Missed), engine.StatusLate},
		{"past missed boundary", scheduled.Add(th.Missed + time.Minute), engine.StatusMissed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := engine.ResolveStatus(scheduled, nil, tc.now, th)
			if got != tc.want {
				t.Errorf("status = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestTerminal(t *testing.T) {
	taken := at(2025, time.March, 10, 8, 5)

	if !engine.StatusTaken.Terminal(&taken) {
		t.Error("taken with takenTime should be terminal")
	}
	if !engine.StatusLate.Terminal(&taken) {
		t.Error("late with takenTime should be terminal")
	}
	if engine.StatusLate.Terminal(nil) {
		t.Error("interim late without takenTime should not be terminal")
	}
	if !engine.StatusMissed.Terminal(nil) {
		t.Error("missed should be terminal")
	}
	if engine.StatusScheduled.Terminal(nil) {
		t.Error("scheduled should not be terminal")
	}
}

// =============================================================================
// TAKE ELIGIBILITY TESTS
// =============================================================================

func TestCanTake(t *testing.T) {
	th := engine.DefaultThresholds() // action cutoff 2h
	scheduled := at(2025, time.March, 10, 8, 0)

	cases := []struct {
		name   string
		now    time.Time
		wantOK bool
	}{
		{"early", at(2025, time.March, 10, 7, 0), true},
		{"on time", scheduled, true},
		{"within cutoff", scheduled.Add(90 * time.Minute), true},
		{"at cutoff", scheduled.Add(th.ActionCutoff), true},
		{"past cutoff", scheduled.Add(th.ActionCutoff + time.Second), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lateness, ok := engine.CanTake(scheduled, tc.now, th)
			if ok != tc.wantOK {
				t.Errorf("ok = %v, want %v (lateness %v)", ok, tc.wantOK, lateness)
			}
		})
	}
}
