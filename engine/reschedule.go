/*
reschedule.go - Recurrence edit diffing

PURPOSE:
  On a medication edit, decide what the Rescheduler must do. Pure; the
  engine facade performs the deletes and inserts it prescribes.

CONTRACT:
  Times changed:  delete all still-scheduled doses from start of today,
                  regenerate today through activeTo with the new times.
                  Anything strictly before today, and anything already
                  taken/late/missed, is untouched. History is immutable.
  Range changed:  (without a times change) only the occurrence range is
                  extended or truncated. Still-scheduled future doses
                  outside the new range are deleted; new occurrences are
                  generated only inside it.
*/
package engine

// RescheduleDiff describes which parts of a medication edit affect its
// occurrence set.
type RescheduleDiff struct {
	TimesChanged bool
	RangeChanged bool
}

// NeedsReschedule reports whether any occurrences must be touched.
func (d RescheduleDiff) NeedsReschedule() bool {
	return d.TimesChanged || d.RangeChanged
}

// DiffMedications compares the schedule-relevant fields of an edit.
// Name, dose text, category, notes and the active flag never move
// occurrences.
func DiffMedications(old, updated Medication) RescheduleDiff {
	return RescheduleDiff{
		TimesChanged: !old.Recurrence.SameTimes(updated.Recurrence),
		RangeChanged: !old.ActiveFrom.Equal(updated.ActiveFrom) || !old.ActiveTo.Equal(updated.ActiveTo),
	}
}

// RescheduleResult reports what a reschedule did.
type RescheduleResult struct {
	Deleted int `json:"deleted"`
	Created int `json:"created"`
}
