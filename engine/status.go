/*
status.go - Dose status resolution

PURPOSE:
  The single source of truth for the dose state machine. Every write path
  (take action, sweeper) calls ResolveStatus; status is never recomputed
  implicitly inside a persistence hook.

STATE MACHINE:
  scheduled -> taken | late | missed

  Once a taken time is set the status is frozen (taken or late) and the
  sweeper never overwrites it. An interim "late" (overdue, un-taken) is the
  only non-initial state that can still advance: to missed by the sweeper,
  or to a frozen taken/late by a take action inside the action cutoff.
*/
package engine

import "time"

// ResolveStatus computes a dose's status from its scheduled time, optional
// taken time, and the current instant. Pure; evaluated in priority order.
func ResolveStatus(scheduled time.Time, taken *time.Time, now time.Time, th Thresholds) DoseStatus {
	if taken != nil {
		if taken.Sub(scheduled) <= th.Grace {
			return StatusTaken // on time or early
		}
		return StatusLate
	}
	if now.After(scheduled) {
		if now.Sub(scheduled) > th.Missed {
			return StatusMissed
		}
		return StatusLate // overdue, not yet given up on
	}
	return StatusScheduled
}

// CanTake reports whether a take action at now is still inside the action
// cutoff, along with the computed lateness. Early takes (negative lateness)
// are always allowed.
func CanTake(scheduled, now time.Time, th Thresholds) (lateness time.Duration, ok bool) {
	lateness = now.Sub(scheduled)
	return lateness, lateness <= th.ActionCutoff
}
