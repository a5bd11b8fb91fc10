package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nishu1044/MedTrack/engine"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testMedication(id engine.MedicationID, owner engine.OwnerID) engine.Medication {
	return engine.Medication{
		ID:      id,
		OwnerID: owner,
		Name:    "Metformin",
		Dose:    "500mg",
		Recurrence: engine.Recurrence{
			TimesPerDay: 2,
			Times:       []string{"08:00", "20:00"},
		},
		ActiveFrom: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		ActiveTo:   time.Date(2025, 3, 14, 23, 59, 59, 0, time.UTC),
		Category:   engine.CategoryMom,
		Notes:      "with breakfast and dinner",
		Active:     true,
		CreatedAt:  time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC),
	}
}

func draft(med engine.MedicationID, owner engine.OwnerID, scheduled time.Time) engine.DoseDraft {
	return engine.DoseDraft{OwnerID: owner, MedicationID: med, ScheduledTime: scheduled}
}

// =============================================================================
// MEDICATION TESTS
// =============================================================================

func TestMedicationRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	med := testMedication("med-1", "owner-1")
	require.NoError(t, s.SaveMedication(ctx, med))

	got, err := s.GetMedication(ctx, "owner-1", "med-1")
	require.NoError(t, err)
	assert.Equal(t, med.Name, got.Name)
	assert.Equal(t, med.Recurrence.TimesPerDay, got.Recurrence.TimesPerDay)
	assert.Equal(t, med.Recurrence.Times, got.Recurrence.Times)
	assert.True(t, med.ActiveFrom.Equal(got.ActiveFrom))
	assert.True(t, med.ActiveTo.Equal(got.ActiveTo))
	assert.Equal(t, med.Category, got.Category)
	assert.Equal(t, med.Notes, got.Notes)
	assert.True(t, got.Active)
}

func TestSaveMedication_Upsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	med := testMedication("med-1", "owner-1")
	require.NoError(t, s.SaveMedication(ctx, med))

	med.Name = "Metformin XR"
	med.Recurrence = engine.Recurrence{TimesPerDay: 1, Times: []string{"09:00"}}
	require.NoError(t, s.SaveMedication(ctx, med))

	got, err := s.GetMedication(ctx, "owner-1", "med-1")
	require.NoError(t, err)
	assert.Equal(t, "Metformin XR", got.Name)
	assert.Equal(t, []string{"09:00"}, got.Recurrence.Times)

	// Upsert must not clone the row.
	all, err := s.ListMedications(ctx, "owner-1", false)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGetMedication_OwnershipEnforced(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveMedication(ctx, testMedication("med-1", "owner-1")))

	_, err := s.GetMedication(ctx, "owner-2", "med-1")
	assert.ErrorIs(t, err, engine.ErrMedicationNotFound)
}

func TestListMedications_ActiveFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	active := testMedication("med-1", "owner-1")
	retired := testMedication("med-2", "owner-1")
	retired.Name = "Old med"
	retired.Active = false
	require.NoError(t, s.SaveMedication(ctx, active))
	require.NoError(t, s.SaveMedication(ctx, retired))

	onlyActive, err := s.ListMedications(ctx, "owner-1", true)
	require.NoError(t, err)
	require.Len(t, onlyActive, 1)
	assert.Equal(t, engine.MedicationID("med-1"), onlyActive[0].ID)

	all, err := s.ListMedications(ctx, "owner-1", false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDeleteMedication_CascadesToDoses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveMedication(ctx, testMedication("med-1", "owner-1")))
	_, err := s.InsertDoses(ctx, []engine.DoseDraft{
		draft("med-1", "owner-1", time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)),
		draft("med-1", "owner-1", time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)

	require.NoError(t, s.DeleteMedication(ctx, "owner-1", "med-1"))

	doses, err := s.ListDoses(ctx, "owner-1", nil,
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, doses, "doses must not survive their medication")

	err = s.DeleteMedication(ctx, "owner-1", "med-1")
	assert.ErrorIs(t, err, engine.ErrMedicationNotFound)
}

// =============================================================================
// DOSE TESTS
// =============================================================================

func TestInsertDoses_ReplayIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveMedication(ctx, testMedication("med-1", "owner-1")))

	drafts := []engine.DoseDraft{
		draft("med-1", "owner-1", time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)),
		draft("med-1", "owner-1", time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC)),
	}

	created, err := s.InsertDoses(ctx, drafts)
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	// Replaying the same occurrence keys inserts nothing.
	created, err = s.InsertDoses(ctx, drafts)
	require.NoError(t, err)
	assert.Equal(t, 0, created)

	// A partially-new batch only inserts the new key.
	created, err = s.InsertDoses(ctx, append(drafts,
		draft("med-1", "owner-1", time.Date(2025, 3, 11, 8, 0, 0, 0, time.UTC))))
	require.NoError(t, err)
	assert.Equal(t, 1, created)
}

func TestUpdateDoseStatus_ConditionalWrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveMedication(ctx, testMedication("med-1", "owner-1")))

	scheduled := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	_, err := s.InsertDoses(ctx, []engine.DoseDraft{draft("med-1", "owner-1", scheduled)})
	require.NoError(t, err)

	doses, err := s.ListDoses(ctx, "owner-1", nil, scheduled, scheduled)
	require.NoError(t, err)
	require.Len(t, doses, 1)
	id := doses[0].ID

	taken := scheduled.Add(10 * time.Minute)
	err = s.UpdateDoseStatus(ctx, id, engine.StatusScheduled, engine.StatusUpdate{
		Status:    engine.StatusTaken,
		TakenTime: &taken,
		Notes:     "on time",
	})
	require.NoError(t, err)

	got, err := s.GetDose(ctx, "owner-1", id)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusTaken, got.Status)
	require.NotNil(t, got.TakenTime)
	assert.True(t, taken.Equal(*got.TakenTime))
	assert.Equal(t, "on time", got.Notes)

	// Second writer expecting the old status loses.
	err = s.UpdateDoseStatus(ctx, id, engine.StatusScheduled, engine.StatusUpdate{
		Status: engine.StatusMissed,
	})
	var conflict *engine.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, engine.StatusTaken, conflict.Actual)

	// The losing write changed nothing.
	got, err = s.GetDose(ctx, "owner-1", id)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusTaken, got.Status)
}

func TestUpdateDoseStatus_MissingDose(t *testing.T) {
	s := newTestStore(t)

	err := s.UpdateDoseStatus(context.Background(), "nope", engine.StatusScheduled,
		engine.StatusUpdate{Status: engine.StatusLate})
	assert.ErrorIs(t, err, engine.ErrDoseNotFound)
}

func TestListDue_OnlyUntakenOverdue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveMedication(ctx, testMedication("med-1", "owner-1")))

	morning := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	evening := time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC)
	_, err := s.InsertDoses(ctx, []engine.DoseDraft{
		draft("med-1", "owner-1", morning),
		draft("med-1", "owner-1", evening),
	})
	require.NoError(t, err)

	// At noon only the morning dose is due.
	due, err := s.ListDue(ctx, time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.True(t, morning.Equal(due[0].ScheduledTime))

	// Once taken it leaves the queue even though it is overdue.
	taken := morning.Add(5 * time.Minute)
	require.NoError(t, s.UpdateDoseStatus(ctx, due[0].ID, engine.StatusScheduled,
		engine.StatusUpdate{Status: engine.StatusTaken, TakenTime: &taken}))

	due, err = s.ListDue(ctx, time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestListDue_IncludesInterimLate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveMedication(ctx, testMedication("med-1", "owner-1")))

	scheduled := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	_, err := s.InsertDoses(ctx, []engine.DoseDraft{draft("med-1", "owner-1", scheduled)})
	require.NoError(t, err)

	doses, _ := s.ListDoses(ctx, "owner-1", nil, scheduled, scheduled)
	require.Len(t, doses, 1)

	// Interim late (no takenTime) stays in the sweeper queue.
	require.NoError(t, s.UpdateDoseStatus(ctx, doses[0].ID, engine.StatusScheduled,
		engine.StatusUpdate{Status: engine.StatusLate}))

	due, err := s.ListDue(ctx, time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestDeleteScheduledFrom(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveMedication(ctx, testMedication("med-1", "owner-1")))

	d1 := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	d2 := time.Date(2025, 3, 11, 8, 0, 0, 0, time.UTC)
	d3 := time.Date(2025, 3, 12, 8, 0, 0, 0, time.UTC)
	_, err := s.InsertDoses(ctx, []engine.DoseDraft{
		draft("med-1", "owner-1", d1),
		draft("med-1", "owner-1", d2),
		draft("med-1", "owner-1", d3),
	})
	require.NoError(t, err)

	// Freeze the middle dose: taken history is never deleted.
	doses, _ := s.ListDoses(ctx, "owner-1", nil, d2, d2)
	require.Len(t, doses, 1)
	taken := d2.Add(time.Minute)
	require.NoError(t, s.UpdateDoseStatus(ctx, doses[0].ID, engine.StatusScheduled,
		engine.StatusUpdate{Status: engine.StatusTaken, TakenTime: &taken}))

	deleted, err := s.DeleteScheduledFrom(ctx, "med-1", time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, deleted, "only the still-scheduled Mar 12 dose is deletable")

	remaining, err := s.ListDoses(ctx, "owner-1", nil, d1, d3)
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}

func TestDeleteScheduledOutside(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveMedication(ctx, testMedication("med-1", "owner-1")))

	var drafts []engine.DoseDraft
	for day := 10; day <= 14; day++ {
		drafts = append(drafts, draft("med-1", "owner-1",
			time.Date(2025, 3, day, 8, 0, 0, 0, time.UTC)))
	}
	_, err := s.InsertDoses(ctx, drafts)
	require.NoError(t, err)

	// New range keeps Mar 10-12; Mar 13-14 fall out.
	deleted, err := s.DeleteScheduledOutside(ctx, "med-1",
		time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 12, 23, 59, 59, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
}

// =============================================================================
// RECONCILE LOG TESTS
// =============================================================================

func TestReconcileEventRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		ev := engine.ReconcileEvent{
			ID:            "ev-" + string(rune('a'+i)),
			DoseID:        "dose-1",
			MedicationID:  "med-1",
			OwnerID:       "owner-1",
			FromStatus:    engine.StatusScheduled,
			ToStatus:      engine.StatusMissed,
			ScheduledTime: base,
			Lateness:      4*time.Hour + 30*time.Minute,
			SweptAt:       base.Add(time.Duration(i) * time.Hour),
		}
		require.NoError(t, s.AppendReconcileEvent(ctx, ev))
	}

	events, err := s.ListReconcileEvents(ctx, "owner-1", 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	// Newest first.
	assert.True(t, events[0].SweptAt.After(events[1].SweptAt))
	assert.Equal(t, 4*time.Hour+30*time.Minute, events[0].Lateness)
	assert.Equal(t, engine.StatusMissed, events[0].ToStatus)

	none, err := s.ListReconcileEvents(ctx, "owner-2", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPersistenceErrorsAreRetryable(t *testing.T) {
	s := newTestStore(t)
	s.Close()

	_, err := s.ListMedications(context.Background(), "owner-1", false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrPersistence))
	assert.True(t, engine.IsRetryable(err))
}
