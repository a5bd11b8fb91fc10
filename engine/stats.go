/*
stats.go - Adherence reductions

PURPOSE:
  Pure reductions over dose collections: totals, adherence rate, and
  calendar-bucketed summaries. No I/O here; the engine facade loads the
  doses and hands them in.

ADHERENCE POLICY:
  A dose counts as adherent when its status is taken OR late. That covers
  both meanings of late: taken-late (logged outside the grace window) and
  interim-late (overdue but below the missed threshold). "Late but logged
  counts" is deliberate product policy, distinct from the sweeper's interim
  late state.

PRECISION:
  Rates are computed with decimal arithmetic and rounded half-up to a whole
  percentage, so 2/3 taken reports 67, not 66. Rate is defined as 0 when
  there are no doses.
*/
package engine

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STATS VALUE OBJECTS
// =============================================================================

// Window is a closed scheduled-time interval.
type Window struct {
	From time.Time
	To   time.Time
}

// TrailingWindow returns the fixed N-day trailing window ending with all of
// today (the per-medication stats contract uses N=30).
func TrailingWindow(now time.Time, days int) Window {
	end := EndOfDay(now)
	return Window{From: StartOfDay(now).AddDate(0, 0, -(days - 1)), To: end}
}

// MedicationStats is the per-medication slice of a stats reduction.
type MedicationStats struct {
	MedicationID  MedicationID `json:"medicationId"`
	Name          string       `json:"name"`
	TotalDoses    int          `json:"totalDoses"`
	TakenDoses    int          `json:"takenDoses"`
	MissedDoses   int          `json:"missedDoses"`
	LateDoses     int          `json:"lateDoses"`
	AdherenceRate int          `json:"adherenceRate"`
}

// AdherenceStats is an immutable reduction over a set of doses.
type AdherenceStats struct {
	TotalDoses    int               `json:"totalDoses"`
	TakenDoses    int               `json:"takenDoses"` // status taken or late
	MissedDoses   int               `json:"missedDoses"`
	LateDoses     int               `json:"lateDoses"`
	AdherenceRate int               `json:"adherenceRate"` // 0..100, 0 when empty
	Medications   []MedicationStats `json:"medications"`
}

// DayBucket is one calendar day's dose counts. Coloring (alert/good/neutral)
// is a UI concern; the counts here are sufficient to derive it.
type DayBucket struct {
	Date   string `json:"date"` // YYYY-MM-DD
	Total  int    `json:"total"`
	Taken  int    `json:"taken"` // taken or late
	Missed int    `json:"missed"`
	Late   int    `json:"late"`
}

// =============================================================================
// REDUCTIONS
// =============================================================================

func adherent(s DoseStatus) bool { return s == StatusTaken || s == StatusLate }

// rate computes round(100 * taken / total) with decimal precision.
func rate(taken, total int) int {
	if total == 0 {
		return 0
	}
	r := decimal.NewFromInt(int64(taken) * 100).
		Div(decimal.NewFromInt(int64(total))).
		Round(0)
	return int(r.IntPart())
}

// Reduce computes adherence statistics over doses, with per-medication
// breakdowns named from the medication context map. Doses whose medication
// is missing from the map still count toward the global totals.
func Reduce(doses []Dose, meds map[MedicationID]Medication) AdherenceStats {
	stats := AdherenceStats{}
	perMed := make(map[MedicationID]*MedicationStats)

	for _, d := range doses {
		stats.TotalDoses++
		if adherent(d.Status) {
			stats.TakenDoses++
		}
		switch d.Status {
		case StatusMissed:
			stats.MissedDoses++
		case StatusLate:
			stats.LateDoses++
		}

		ms, ok := perMed[d.MedicationID]
		if !ok {
			ms = &MedicationStats{MedicationID: d.MedicationID}
			if med, found := meds[d.MedicationID]; found {
				ms.Name = med.Name
			}
			perMed[d.MedicationID] = ms
		}
		ms.TotalDoses++
		if adherent(d.Status) {
			ms.TakenDoses++
		}
		switch d.Status {
		case StatusMissed:
			ms.MissedDoses++
		case StatusLate:
			ms.LateDoses++
		}
	}

	stats.AdherenceRate = rate(stats.TakenDoses, stats.TotalDoses)

	for _, ms := range perMed {
		ms.AdherenceRate = rate(ms.TakenDoses, ms.TotalDoses)
		stats.Medications = append(stats.Medications, *ms)
	}
	sort.Slice(stats.Medications, func(i, j int) bool {
		return stats.Medications[i].Name < stats.Medications[j].Name
	})

	return stats
}

// CalendarBuckets groups doses into one bucket per calendar day of the
// given month. Every day of the month gets a bucket, counts zero when no
// dose is scheduled that day; doses outside the month are ignored.
func CalendarBuckets(doses []Dose, year int, month time.Month, loc *time.Location) []DayBucket {
	if loc == nil {
		loc = time.Local
	}
	monthStart := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	daysInMonth := monthStart.AddDate(0, 1, -1).Day()

	buckets := make([]DayBucket, daysInMonth)
	index := make(map[string]*DayBucket, daysInMonth)
	for i := range buckets {
		day := monthStart.AddDate(0, 0, i)
		buckets[i].Date = DayKey(day)
		index[buckets[i].Date] = &buckets[i]
	}

	for _, d := range doses {
		b, ok := index[DayKey(d.ScheduledTime.In(loc))]
		if !ok {
			continue
		}
		b.Total++
		if adherent(d.Status) {
			b.Taken++
		}
		switch d.Status {
		case StatusMissed:
			b.Missed++
		case StatusLate:
			b.Late++
		}
	}
	return buckets
}
