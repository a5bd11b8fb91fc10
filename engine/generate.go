/*
generate.go - Occurrence expansion

PURPOSE:
  Expands a medication's recurrence into the ordered set of concrete dose
  instants covering its active range. Pure: no I/O, no clock access; the
  caller supplies the "from" boundary.

FROM BOUNDARY:
  At creation time callers pass "now", so instants already in the past are
  not materialized (no backfilled missed history). On recompute the
  rescheduler passes start-of-today instead, so the current day's remaining
  occurrences are regenerated while earlier days stay untouched.

FAIL-FAST:
  A single malformed time string fails generation for the whole medication.
  Nothing partial is emitted.
*/
package engine

import (
	"fmt"
	"sort"
	"time"
)

// =============================================================================
// RECURRENCE VALIDATION
// =============================================================================

// DefaultTimesPerDayCap bounds how many fixed times a recurrence may carry.
const DefaultTimesPerDayCap = 4

// ParseClockTime parses a strict 24-hour "HH:MM" string.
func ParseClockTime(s string) (hour, minute int, err error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, 0, fmt.Errorf("%q is not HH:MM", s)
	}
	for _, i := range []int{0, 1, 3, 4} {
		if s[i] < '0' || s[i] > '9' {
			return 0, 0, fmt.Errorf("%q is not HH:MM", s)
		}
	}
	hour = int(s[0]-'0')*10 + int(s[1]-'0')
	minute = int(s[3]-'0')*10 + int(s[4]-'0')
	if hour > 23 {
		return 0, 0, fmt.Errorf("%q: hour out of range", s)
	}
	if minute > 59 {
		return 0, 0, fmt.Errorf("%q: minute out of range", s)
	}
	return hour, minute, nil
}

// ValidateRecurrence checks the recurrence invariants: a positive
// timesPerDay within the cap, a times list of matching length, every entry
// a valid clock time, no duplicates.
func ValidateRecurrence(r Recurrence, cap int) error {
	if cap <= 0 {
		cap = DefaultTimesPerDayCap
	}
	if r.TimesPerDay < 1 {
		return &ValidationError{Field: "recurrence.timesPerDay", Message: "must be at least 1"}
	}
	if r.TimesPerDay > cap {
		return &ValidationError{Field: "recurrence.timesPerDay", Message: fmt.Sprintf("must be at most %d", cap)}
	}
	if len(r.Times) != r.TimesPerDay {
		return &ValidationError{
			Field:   "recurrence.times",
			Message: fmt.Sprintf("got %d times for timesPerDay=%d", len(r.Times), r.TimesPerDay),
		}
	}
	seen := make(map[string]bool, len(r.Times))
	for _, s := range r.Times {
		if _, _, err := ParseClockTime(s); err != nil {
			return &ValidationError{Field: "recurrence.times", Message: err.Error()}
		}
		if seen[s] {
			return &ValidationError{Field: "recurrence.times", Message: fmt.Sprintf("duplicate time %q", s)}
		}
		seen[s] = true
	}
	return nil
}

// sortedTimes returns the recurrence times in ascending clock order.
// Assumes the recurrence already validated.
func sortedTimes(r Recurrence) []string {
	times := append([]string(nil), r.Times...)
	sort.Strings(times) // lexicographic order == clock order for zero-padded HH:MM
	return times
}

// =============================================================================
// GENERATION
// =============================================================================

// GenerateOccurrences expands the medication into dose drafts covering
// every day in [ActiveFrom, ActiveTo], one per recurrence time per day,
// dropping instants strictly before the from boundary. Output is in
// ascending chronological order.
func GenerateOccurrences(med Medication, from time.Time) ([]DoseDraft, error) {
	if err := ValidateRecurrence(med.Recurrence, DefaultTimesPerDayCap); err != nil {
		return nil, err
	}
	if !med.ActiveTo.After(med.ActiveFrom) {
		return nil, &ValidationError{Field: "activeTo", Message: "must be after activeFrom"}
	}

	times := sortedTimes(med.Recurrence)
	var drafts []DoseDraft

	day := StartOfDay(med.ActiveFrom)
	end := med.ActiveTo
	for !day.After(end) {
		for _, ct := range times {
			hour, minute, err := ParseClockTime(ct)
			if err != nil {
				return nil, &ValidationError{Field: "recurrence.times", Message: err.Error()}
			}
			instant := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
			if instant.Before(from) || instant.Before(med.ActiveFrom) || instant.After(end) {
				continue
			}
			drafts = append(drafts, DoseDraft{
				OwnerID:       med.OwnerID,
				MedicationID:  med.ID,
				ScheduledTime: instant,
			})
		}
		day = day.AddDate(0, 0, 1)
	}
	return drafts, nil
}
