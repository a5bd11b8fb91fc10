package engine_test

import (
	"testing"
	"time"

	"github.com/Nishu1044/MedTrack/engine"
)

func TestDiffMedications(t *testing.T) {
	base := testMedication("08:00", "20:00")

	cases := []struct {
		name   string
		mutate func(*engine.Medication)
		want   engine.RescheduleDiff
	}{
		{"no change", func(m *engine.Medication) {}, engine.RescheduleDiff{}},
		{"metadata only", func(m *engine.Medication) {
			m.Name = "Renamed"
			m.Dose = "400mg"
			m.Notes = "new notes"
			m.Category = engine.CategoryOther
		}, engine.RescheduleDiff{}},
		{"times reordered", func(m *engine.Medication) {
			m.Recurrence.Times = []string{"20:00", "08:00"}
		}, engine.RescheduleDiff{}},
		{"times replaced", func(m *engine.Medication) {
			m.Recurrence.Times = []string{"09:00", "21:00"}
		}, engine.RescheduleDiff{TimesChanged: true}},
		{"times added", func(m *engine.Medication) {
			m.Recurrence = engine.Recurrence{
				TimesPerDay: 3,
				Times:       []string{"08:00", "14:00", "20:00"},
			}
		}, engine.RescheduleDiff{TimesChanged: true}},
		{"range extended", func(m *engine.Medication) {
			m.ActiveTo = engine.EndOfDay(day(2025, time.March, 20))
		}, engine.RescheduleDiff{RangeChanged: true}},
		{"range and times", func(m *engine.Medication) {
			m.Recurrence.Times = []string{"09:00", "21:00"}
			m.ActiveFrom = day(2025, time.March, 11)
		}, engine.RescheduleDiff{TimesChanged: true, RangeChanged: true}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			updated := base
			updated.Recurrence.Times = append([]string(nil), base.Recurrence.Times...)
			tc.mutate(&updated)

			got := engine.DiffMedications(base, updated)
			if got != tc.want {
				t.Errorf("diff = %+v, want %+v", got, tc.want)
			}
			if got.NeedsReschedule() != (tc.want.TimesChanged || tc.want.RangeChanged) {
				t.Errorf("NeedsReschedule inconsistent with %+v", got)
			}
		})
	}
}
