/*
engine.go - The operation facade

PURPOSE:
  Wires the pure pieces (generator, status resolver, reductions) to the
  Dose Store and exposes the operations the surrounding CRUD/auth layer
  calls: medication lifecycle, the take action, reconciliation, stats and
  calendar queries.

CONCURRENCY:
  Request-triggered operations run concurrently with each other and with
  the sweeper. Per-dose writes are serialized via the store's conditional
  update, not a global lock; different doses update fully in parallel.

BULK INSERTS:
  Occurrence inserts are chunked to bound single-transaction size. A chunk
  failure does not roll back earlier chunks; because the store keys
  occurrences on (medication, scheduledTime), retrying the whole generation
  is safe and never duplicates.
*/
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// =============================================================================
// ENGINE
// =============================================================================

// Options configures an Engine. Zero values fall back to sane defaults.
type Options struct {
	Clock           Clock
	Thresholds      Thresholds
	Location        *time.Location
	TimesPerDayCap  int
	InsertChunkSize int
	Logger          zerolog.Logger
}

// Engine owns the dose-occurrence lifecycle. Safe for concurrent use.
type Engine struct {
	store Store
	clock Clock
	th    Thresholds
	loc   *time.Location
	cap   int
	chunk int
	log   zerolog.Logger
}

const defaultInsertChunk = 200

func New(store Store, opts Options) *Engine {
	e := &Engine{
		store: store,
		clock: opts.Clock,
		th:    opts.Thresholds,
		loc:   opts.Location,
		cap:   opts.TimesPerDayCap,
		chunk: opts.InsertChunkSize,
		log:   opts.Logger,
	}
	if e.clock == nil {
		e.clock = SystemClock{}
	}
	if e.th == (Thresholds{}) {
		e.th = DefaultThresholds()
	}
	if e.loc == nil {
		e.loc = time.Local
	}
	if e.cap <= 0 {
		e.cap = DefaultTimesPerDayCap
	}
	if e.chunk <= 0 {
		e.chunk = defaultInsertChunk
	}
	return e
}

// Thresholds returns the configured durations (one authoritative source for
// both the take path and the sweeper).
func (e *Engine) Thresholds() Thresholds { return e.th }

// =============================================================================
// MEDICATION LIFECYCLE
// =============================================================================

// validateMedication checks and normalizes a medication in place: dates are
// snapped to day boundaries in the engine's location and the recurrence
// invariants are enforced. Rejected before any persistence.
func (e *Engine) validateMedication(m *Medication) error {
	if strings.TrimSpace(m.Name) == "" {
		return &ValidationError{Field: "name", Message: "must not be empty"}
	}
	if strings.TrimSpace(m.Dose) == "" {
		return &ValidationError{Field: "dose", Message: "must not be empty"}
	}
	if !ValidCategory(m.Category) {
		return &ValidationError{Field: "category", Message: fmt.Sprintf("unknown category %q", m.Category)}
	}
	if err := ValidateRecurrence(m.Recurrence, e.cap); err != nil {
		return err
	}
	if m.ActiveFrom.IsZero() || m.ActiveTo.IsZero() {
		return &ValidationError{Field: "activeFrom", Message: "active range is required"}
	}
	m.ActiveFrom = StartOfDay(m.ActiveFrom.In(e.loc))
	m.ActiveTo = EndOfDay(m.ActiveTo.In(e.loc))
	if !m.ActiveTo.After(m.ActiveFrom) {
		return &ValidationError{Field: "activeTo", Message: "must be after activeFrom"}
	}
	return nil
}

// CreateMedication validates and persists the medication, then generates
// its occurrences from now (past instants within the range are not
// backfilled). Returns the created dose count.
func (e *Engine) CreateMedication(ctx context.Context, m Medication) (*Medication, int, error) {
	if err := e.validateMedication(&m); err != nil {
		return nil, 0, err
	}
	if m.ID == "" {
		m.ID = MedicationID(uuid.NewString())
	}
	now := e.clock.Now().In(e.loc)
	m.Active = true
	m.CreatedAt = now

	if err := e.store.SaveMedication(ctx, m); err != nil {
		return nil, 0, err
	}

	created, err := e.generateAndInsert(ctx, m, now)
	if err != nil {
		// Generation failure aborts only this medication's occurrence set.
		return nil, 0, err
	}
	e.log.Info().
		Str("medication", string(m.ID)).
		Int("doses", created).
		Msg("medication created")
	return &m, created, nil
}

func (e *Engine) GetMedication(ctx context.Context, owner OwnerID, id MedicationID) (*Medication, error) {
	return e.store.GetMedication(ctx, owner, id)
}

func (e *Engine) ListMedications(ctx context.Context, owner OwnerID) ([]Medication, error) {
	return e.store.ListMedications(ctx, owner, true)
}

// UpdateMedication persists the edit and, when the recurrence times or the
// active range changed, reschedules the un-taken future occurrences.
func (e *Engine) UpdateMedication(ctx context.Context, updated Medication) (*Medication, RescheduleResult, error) {
	var result RescheduleResult

	old, err := e.store.GetMedication(ctx, updated.OwnerID, updated.ID)
	if err != nil {
		return nil, result, err
	}
	if err := e.validateMedication(&updated); err != nil {
		return nil, result, err
	}
	updated.CreatedAt = old.CreatedAt

	if err := e.store.SaveMedication(ctx, updated); err != nil {
		return nil, result, err
	}

	if DiffMedications(*old, updated).NeedsReschedule() {
		result, err = e.RescheduleMedication(ctx, *old, updated)
		if err != nil {
			return nil, result, err
		}
	}
	return &updated, result, nil
}

// DeleteMedication removes the medication together with all its doses.
func (e *Engine) DeleteMedication(ctx context.Context, owner OwnerID, id MedicationID) error {
	if err := e.store.DeleteMedication(ctx, owner, id); err != nil {
		return err
	}
	e.log.Info().Str("medication", string(id)).Msg("medication deleted with doses")
	return nil
}

// =============================================================================
// RESCHEDULER
// =============================================================================

// RescheduleMedication diffs the old and new definitions and rebuilds the
// un-taken future occurrence set accordingly. Occurrences strictly before
// today, and anything already taken/late/missed, are left untouched.
func (e *Engine) RescheduleMedication(ctx context.Context, old, updated Medication) (RescheduleResult, error) {
	var result RescheduleResult

	diff := DiffMedications(old, updated)
	if !diff.NeedsReschedule() {
		return result, nil
	}

	today := StartOfDay(e.clock.Now().In(e.loc))

	if diff.TimesChanged {
		// New times invalidate every pending future occurrence.
		deleted, err := e.store.DeleteScheduledFrom(ctx, updated.ID, today)
		if err != nil {
			return result, err
		}
		result.Deleted = deleted
	} else {
		// Range-only change: prune pending occurrences that fell out of
		// the new range.
		deleted, err := e.store.DeleteScheduledOutside(ctx, updated.ID, today, updated.ActiveFrom, updated.ActiveTo)
		if err != nil {
			return result, err
		}
		result.Deleted = deleted
	}

	from := today
	if updated.ActiveFrom.After(from) {
		from = updated.ActiveFrom
	}
	created, err := e.generateAndInsert(ctx, updated, from)
	if err != nil {
		return result, err
	}
	result.Created = created

	e.log.Info().
		Str("medication", string(updated.ID)).
		Int("deleted", result.Deleted).
		Int("created", result.Created).
		Bool("times_changed", diff.TimesChanged).
		Msg("rescheduled")
	return result, nil
}

// generateAndInsert expands the recurrence from the boundary and inserts
// the drafts in chunks. Idempotent under retry: the store ignores drafts
// whose (medication, scheduledTime) key already exists.
func (e *Engine) generateAndInsert(ctx context.Context, m Medication, from time.Time) (int, error) {
	drafts, err := GenerateOccurrences(m, from)
	if err != nil {
		return 0, err
	}

	created := 0
	for start := 0; start < len(drafts); start += e.chunk {
		end := start + e.chunk
		if end > len(drafts) {
			end = len(drafts)
		}
		n, err := e.store.InsertDoses(ctx, drafts[start:end])
		if err != nil {
			// Earlier chunks stay inserted; a retry of the whole
			// generation is safe.
			return created, err
		}
		created += n
	}
	return created, nil
}

// =============================================================================
// TAKE ACTION
// =============================================================================

// TakeDose logs a dose as taken. takenAt defaults to now; notes are
// appended to the dose. Rejected with a TooLateError once the action
// cutoff has passed, and with ErrConflict if the dose is already frozen.
func (e *Engine) TakeDose(ctx context.Context, owner OwnerID, id DoseID, takenAt *time.Time, notes string) (*Dose, error) {
	dose, err := e.store.GetDose(ctx, owner, id)
	if err != nil {
		return nil, err
	}

	if dose.Status.Terminal(dose.TakenTime) {
		return nil, &ConflictError{DoseID: id, Expected: StatusScheduled, Actual: dose.Status}
	}

	now := e.clock.Now().In(e.loc)
	if lateness, ok := CanTake(dose.ScheduledTime, now, e.th); !ok {
		return nil, &TooLateError{
			DoseID:        id,
			ScheduledTime: dose.ScheduledTime,
			Lateness:      lateness,
			Cutoff:        e.th.ActionCutoff,
		}
	}

	when := now
	if takenAt != nil {
		when = takenAt.In(e.loc)
	}
	status := ResolveStatus(dose.ScheduledTime, &when, now, e.th)

	update := StatusUpdate{Status: status, TakenTime: &when, Notes: notes}
	if notes == "" {
		update.Notes = dose.Notes
	}
	if err := e.store.UpdateDoseStatus(ctx, id, dose.Status, update); err != nil {
		return nil, err
	}

	dose.Status = status
	dose.TakenTime = &when
	dose.Notes = update.Notes
	return dose, nil
}

// =============================================================================
// RECONCILIATION (called by the sweeper, and directly in tests)
// =============================================================================

// ReconcileOnce scans every overdue un-taken dose and advances its status
// through the resolver. A failing update is logged and skipped, never
// fatal to the sweep. Returns the number of doses transitioned.
func (e *Engine) ReconcileOnce(ctx context.Context, now time.Time) (int, error) {
	due, err := e.store.ListDue(ctx, now)
	if err != nil {
		return 0, err
	}

	transitioned := 0
	for _, d := range due {
		next := ResolveStatus(d.ScheduledTime, d.TakenTime, now, e.th)
		if next == d.Status {
			continue
		}

		err := e.store.UpdateDoseStatus(ctx, d.ID, d.Status, StatusUpdate{
			Status:    next,
			TakenTime: d.TakenTime,
			Notes:     d.Notes,
		})
		if err != nil {
			if errors.Is(err, ErrConflict) {
				// Lost to a concurrent take. The other write wins.
				e.log.Debug().Str("dose", string(d.ID)).Msg("reconcile lost race, skipping")
			} else {
				e.log.Warn().Err(err).Str("dose", string(d.ID)).Msg("reconcile update failed, skipping")
			}
			continue
		}
		transitioned++

		ev := ReconcileEvent{
			ID:            uuid.NewString(),
			DoseID:        d.ID,
			MedicationID:  d.MedicationID,
			OwnerID:       d.OwnerID,
			FromStatus:    d.Status,
			ToStatus:      next,
			ScheduledTime: d.ScheduledTime,
			Lateness:      now.Sub(d.ScheduledTime),
			SweptAt:       now,
		}
		if err := e.store.AppendReconcileEvent(ctx, ev); err != nil {
			// Audit failure must not undo the transition.
			e.log.Warn().Err(err).Str("dose", string(d.ID)).Msg("failed to record reconcile event")
		}
	}
	return transitioned, nil
}

// ReconcileEvents returns the owner's recent sweeper audit records.
func (e *Engine) ReconcileEvents(ctx context.Context, owner OwnerID, limit int) ([]ReconcileEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	return e.store.ListReconcileEvents(ctx, owner, limit)
}

// =============================================================================
// QUERIES
// =============================================================================

// TodayDoses returns the owner's doses scheduled today, all statuses.
func (e *Engine) TodayDoses(ctx context.Context, owner OwnerID) ([]Dose, error) {
	now := e.clock.Now().In(e.loc)
	return e.store.ListDoses(ctx, owner, nil, StartOfDay(now), EndOfDay(now))
}

// UpcomingDoses returns the owner's next still-scheduled doses.
func (e *Engine) UpcomingDoses(ctx context.Context, owner OwnerID, limit int) ([]Dose, error) {
	if limit <= 0 {
		limit = 10
	}
	return e.store.ListUpcoming(ctx, owner, e.clock.Now().In(e.loc), limit)
}

// DueForReminder returns scheduled doses falling due within the lead
// window. The engine only determines that a reminder should fire;
// delivery belongs to a collaborator.
func (e *Engine) DueForReminder(ctx context.Context, lead time.Duration) ([]Dose, error) {
	now := e.clock.Now().In(e.loc)
	return e.store.ListDueSoon(ctx, now, now.Add(lead))
}

// ComputeStats reduces the owner's doses in the window into adherence
// statistics. When medication is set, the window argument is ignored and
// the fixed 30-day trailing window (inclusive of today) applies.
func (e *Engine) ComputeStats(ctx context.Context, owner OwnerID, medication *MedicationID, window Window) (AdherenceStats, error) {
	if medication != nil {
		if _, err := e.store.GetMedication(ctx, owner, *medication); err != nil {
			return AdherenceStats{}, err
		}
		window = TrailingWindow(e.clock.Now().In(e.loc), 30)
	}

	doses, err := e.store.ListDoses(ctx, owner, medication, window.From, window.To)
	if err != nil {
		return AdherenceStats{}, err
	}
	meds, err := e.medicationContext(ctx, owner)
	if err != nil {
		return AdherenceStats{}, err
	}
	return Reduce(doses, meds), nil
}

// ComputeCalendar returns one bucket per calendar day of the month.
func (e *Engine) ComputeCalendar(ctx context.Context, owner OwnerID, year int, month time.Month) ([]DayBucket, error) {
	monthStart := time.Date(year, month, 1, 0, 0, 0, 0, e.loc)
	monthEnd := EndOfDay(monthStart.AddDate(0, 1, -1))

	doses, err := e.store.ListDoses(ctx, owner, nil, monthStart, monthEnd)
	if err != nil {
		return nil, err
	}
	return CalendarBuckets(doses, year, month, e.loc), nil
}

func (e *Engine) medicationContext(ctx context.Context, owner OwnerID) (map[MedicationID]Medication, error) {
	meds, err := e.store.ListMedications(ctx, owner, false)
	if err != nil {
		return nil, err
	}
	byID := make(map[MedicationID]Medication, len(meds))
	for _, m := range meds {
		byID[m.ID] = m
	}
	return byID, nil
}
