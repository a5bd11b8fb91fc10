/*
store.go - Persistence interfaces for medications and doses

PURPOSE:
  Defines the interface between the engine and the database. The Dose
  Store is the sole mutable shared resource; everything above it is pure.

KEY CONTRACTS:
  InsertDoses:     Idempotent bulk insert keyed on (medication, scheduledTime).
                   Replaying the same drafts never duplicates occurrences.
  UpdateDoseStatus: Compare-and-set. The update applies only if the stored
                   status still equals the expected one, so a race between
                   a take action and the sweeper resolves to whichever write
                   lands first; the loser gets ErrConflict, never a lost
                   update.
  DeleteMedication: Cascading. A dose cannot outlive its medication.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite
  - engine/store: in-memory for tests and development
*/
package engine

import (
	"context"
	"time"
)

// =============================================================================
// MEDICATION STORE
// =============================================================================

type MedicationStore interface {
	// SaveMedication inserts or replaces a medication record.
	SaveMedication(ctx context.Context, m Medication) error

	// GetMedication returns the medication, or ErrMedicationNotFound if it
	// is absent or owned by someone else.
	GetMedication(ctx context.Context, owner OwnerID, id MedicationID) (*Medication, error)

	// ListMedications returns the owner's medications, active only when
	// activeOnly is set, ordered by name.
	ListMedications(ctx context.Context, owner OwnerID, activeOnly bool) ([]Medication, error)

	// DeleteMedication removes the medication and every dose that belongs
	// to it. No orphan doses survive.
	DeleteMedication(ctx context.Context, owner OwnerID, id MedicationID) error
}

// =============================================================================
// DOSE STORE
// =============================================================================

// StatusUpdate is the mutation applied by a conditional status write.
type StatusUpdate struct {
	Status    DoseStatus
	TakenTime *time.Time
	Notes     string
}

type DoseStore interface {
	// InsertDoses persists drafts, silently skipping any whose
	// (medication, scheduledTime) key already exists. Returns the number
	// actually created. A single call is atomic; callers chunk larger sets.
	InsertDoses(ctx context.Context, drafts []DoseDraft) (int, error)

	// GetDose returns the dose, or ErrDoseNotFound if absent or not owned
	// by the caller.
	GetDose(ctx context.Context, owner OwnerID, id DoseID) (*Dose, error)

	// ListDoses returns the owner's doses with scheduledTime in [from, to],
	// optionally restricted to one medication, ordered by scheduledTime.
	ListDoses(ctx context.Context, owner OwnerID, medication *MedicationID, from, to time.Time) ([]Dose, error)

	// ListUpcoming returns up to limit doses still in status scheduled with
	// scheduledTime at or after from, ordered by scheduledTime.
	ListUpcoming(ctx context.Context, owner OwnerID, from time.Time, limit int) ([]Dose, error)

	// ListDue returns all un-taken doses (status scheduled or late, no
	// taken time) with scheduledTime at or before now, across all owners.
	// This is the sweeper's work queue.
	ListDue(ctx context.Context, now time.Time) ([]Dose, error)

	// ListDueSoon returns scheduled doses with scheduledTime in (from, to],
	// across all owners. Used to determine that a reminder should fire.
	ListDueSoon(ctx context.Context, from, to time.Time) ([]Dose, error)

	// UpdateDoseStatus applies update only if the stored status still
	// equals expect. Returns ErrConflict (as a ConflictError when the
	// current status is known) if another writer got there first.
	UpdateDoseStatus(ctx context.Context, id DoseID, expect DoseStatus, update StatusUpdate) error

	// DeleteScheduledFrom deletes the medication's doses that are still in
	// status scheduled with scheduledTime at or after the boundary.
	// History (taken/late/missed) is never touched.
	DeleteScheduledFrom(ctx context.Context, medication MedicationID, onOrAfter time.Time) (int, error)

	// DeleteScheduledOutside deletes still-scheduled doses at or after the
	// boundary whose scheduledTime falls outside [rangeFrom, rangeTo].
	// Used when a medication's active range is truncated.
	DeleteScheduledOutside(ctx context.Context, medication MedicationID, onOrAfter, rangeFrom, rangeTo time.Time) (int, error)
}

// =============================================================================
// RECONCILE LOG - Audit trail of sweeper transitions
// =============================================================================

type ReconcileLog interface {
	// AppendReconcileEvent records one sweeper transition. Append-only.
	AppendReconcileEvent(ctx context.Context, ev ReconcileEvent) error

	// ListReconcileEvents returns the owner's most recent events, newest
	// first, up to limit.
	ListReconcileEvents(ctx context.Context, owner OwnerID, limit int) ([]ReconcileEvent, error)
}

// Store is everything the engine needs from persistence.
type Store interface {
	MedicationStore
	DoseStore
	ReconcileLog
}
