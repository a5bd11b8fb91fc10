/*
Package engine provides the dose-occurrence scheduling and adherence engine.

PURPOSE:
  This package contains the domain types and algorithms for tracking
  recurring medication schedules: expanding a recurrence into concrete dose
  instants, advancing each instant through its status lifecycle, and
  reducing dose collections into adherence statistics.

KEY CONCEPTS IN THIS FILE (types.go):
  - Medication: A recurring schedule (N fixed clock times per day over a
    date range)
  - Dose: One concrete scheduled instant derived from a medication
  - DoseStatus: The lifecycle state machine (scheduled/taken/late/missed)
  - Thresholds: The three durations governing status transitions

DESIGN PRINCIPLES:
  1. Immutability: A dose's scheduled instant never changes after creation
  2. Purity: Status resolution and statistics are pure functions over data
  3. Type Safety: Strong typing for ids prevents mixing owners/medications
  4. Determinism: All time-dependent behavior flows through a Clock

SEE ALSO:
  - status.go: Status resolution rules
  - generate.go: Occurrence expansion
  - stats.go: Adherence reductions
  - engine.go: The operation facade
*/
package engine

import (
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type OwnerID string
type MedicationID string
type DoseID string

// =============================================================================
// DOSE STATUS - The lifecycle state machine
// =============================================================================

type DoseStatus string

const (
	// StatusScheduled is the initial state: the instant is in the future, or
	// past but not yet reconciled.
	StatusScheduled DoseStatus = "scheduled"

	// StatusTaken means the dose was logged within the grace window.
	// Terminal.
	StatusTaken DoseStatus = "taken"

	// StatusLate has two meanings, both counted as adherent:
	//   1. Taken-late: TakenTime is set but fell outside the grace window.
	//      Terminal.
	//   2. Interim-late: overdue and un-taken, but the missed threshold has
	//      not elapsed yet. The sweeper may still advance this to missed,
	//      and the user may still take it while inside the action cutoff.
	StatusLate DoseStatus = "late"

	// StatusMissed means the dose was never logged and the missed threshold
	// elapsed. Terminal.
	StatusMissed DoseStatus = "missed"
)

// Terminal reports whether a dose in this status with the given taken time
// can never change status again. Anything with a taken time is frozen;
// missed is always final.
func (s DoseStatus) Terminal(takenTime *time.Time) bool {
	if takenTime != nil {
		return true
	}
	return s == StatusMissed
}

func ValidStatus(s DoseStatus) bool {
	switch s {
	case StatusScheduled, StatusTaken, StatusLate, StatusMissed:
		return true
	}
	return false
}

// =============================================================================
// CATEGORY - Who the medication is for
// =============================================================================

type Category string

const (
	CategoryMe    Category = "Me"
	CategoryMom   Category = "Mom"
	CategoryDad   Category = "Dad"
	CategoryOther Category = "Other"
)

func ValidCategory(c Category) bool {
	switch c {
	case CategoryMe, CategoryMom, CategoryDad, CategoryOther:
		return true
	}
	return false
}

// =============================================================================
// MEDICATION - A recurring schedule definition
// =============================================================================

// Recurrence is the only supported rule: a fixed set of clock times, hit
// every day of the medication's active range.
type Recurrence struct {
	TimesPerDay int      // must equal len(Times)
	Times       []string // "HH:MM", 24-hour, no duplicates
}

type Medication struct {
	ID         MedicationID
	OwnerID    OwnerID
	Name       string
	Dose       string // strength text, e.g. "200mg"
	Recurrence Recurrence
	ActiveFrom time.Time // inclusive; normalized to local day-start
	ActiveTo   time.Time // inclusive; normalized to local day-end
	Category   Category
	Notes      string
	Active     bool
	CreatedAt  time.Time
}

// SameTimes reports whether two recurrences hit the same clock times.
// Comparison is order-insensitive because the generator sorts times anyway.
func (r Recurrence) SameTimes(other Recurrence) bool {
	if len(r.Times) != len(other.Times) {
		return false
	}
	seen := make(map[string]bool, len(r.Times))
	for _, t := range r.Times {
		seen[t] = true
	}
	for _, t := range other.Times {
		if !seen[t] {
			return false
		}
	}
	return true
}

// =============================================================================
// DOSE - One concrete occurrence
// =============================================================================

type Dose struct {
	ID           DoseID
	OwnerID      OwnerID // denormalized from the medication for query isolation
	MedicationID MedicationID
	// ScheduledTime is fixed at generation time (day + clock time from the
	// recurrence) and never recomputed afterward.
	ScheduledTime time.Time
	TakenTime     *time.Time
	Status        DoseStatus
	Notes         string
	CreatedAt     time.Time
}

// DoseDraft is a dose before it has an identity: what the generator emits
// and the store turns into Dose rows.
type DoseDraft struct {
	OwnerID       OwnerID
	MedicationID  MedicationID
	ScheduledTime time.Time
}

// =============================================================================
// THRESHOLDS - The three durations governing the state machine
// =============================================================================

// Thresholds holds the three independently configurable durations used by
// every status-changing path. The take action and the sweeper must read the
// same value; there is no second source of truth.
//
// Defaults are provisional (see config package): the historical system
// carried three diverging hardcoded values and the intended magnitudes are
// an open product decision.
type Thresholds struct {
	// Grace is the maximum lateness still counted as on-time "taken".
	Grace time.Duration

	// Missed is how long after the scheduled instant an un-taken dose
	// becomes "missed" rather than interim "late".
	Missed time.Duration

	// ActionCutoff is how long after the scheduled instant a user can still
	// retroactively log the dose. Expected to be at most Missed.
	ActionCutoff time.Duration
}

// DefaultThresholds returns the provisional defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Grace:        30 * time.Minute,
		Missed:       4 * time.Hour,
		ActionCutoff: 2 * time.Hour,
	}
}

// =============================================================================
// RECONCILIATION EVENT - Audit record of a sweeper transition
// =============================================================================

// ReconcileEvent records one status transition applied by the sweeper.
type ReconcileEvent struct {
	ID            string
	DoseID        DoseID
	MedicationID  MedicationID
	OwnerID       OwnerID
	FromStatus    DoseStatus
	ToStatus      DoseStatus
	ScheduledTime time.Time
	Lateness      time.Duration // now - scheduledTime at sweep time
	SweptAt       time.Time
}
