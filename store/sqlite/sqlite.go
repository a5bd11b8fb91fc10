/*
Package sqlite provides a SQLite-backed implementation of the engine's
storage interfaces.

PURPOSE:
  Implements engine.Store (medications, doses, reconcile log) on SQLite.
  The same patterns apply to PostgreSQL with minor dialect changes.

KEY TABLES:
  medications:       Recurring schedule definitions
  doses:             Concrete occurrences, one row per scheduled instant
  reconcile_events:  Append-only audit of sweeper transitions

IDEMPOTENT GENERATION:
  idx_doses_occurrence is a UNIQUE index on (medication_id, scheduled_time).
  Inserts use ON CONFLICT DO NOTHING, so regenerating a range never
  duplicates occurrences.

CONDITIONAL UPDATES:
  Status transitions use UPDATE ... WHERE id = ? AND status = ?. A zero
  rows-affected result means another writer won the race and surfaces as
  engine.ErrConflict, never as a lost update.

INDEXES:
  idx_doses_owner_med_time: owner/medication/time range queries (hot path)
  idx_doses_owner_status:   sweep and status filtering
  idx_doses_status_time:    the sweeper's due scan across owners

WAL MODE:
  Opened with WAL for concurrent readers alongside the single writer.

USAGE:
  store, err := sqlite.New("./data/medtrack.db")
  if err != nil { ... }
  defer store.Close()
  eng := engine.New(store, engine.Options{})
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Nishu1044/MedTrack/engine"
)

// Store implements engine.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS medications (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		dose TEXT NOT NULL,
		times_per_day INTEGER NOT NULL,
		times TEXT NOT NULL,            -- comma-joined HH:MM list
		active_from TEXT NOT NULL,
		active_to TEXT NOT NULL,
		category TEXT NOT NULL,
		notes TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_medications_owner_active
		ON medications(owner_id, active);
	CREATE INDEX IF NOT EXISTS idx_medications_owner_category
		ON medications(owner_id, category);

	CREATE TABLE IF NOT EXISTS doses (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		medication_id TEXT NOT NULL REFERENCES medications(id) ON DELETE CASCADE,
		scheduled_time TEXT NOT NULL,
		taken_time TEXT,
		status TEXT NOT NULL DEFAULT 'scheduled',
		notes TEXT,
		created_at TEXT NOT NULL
	);

	-- CRITICAL: generation keys on (medication, scheduledTime). Replaying
	-- the same range must never duplicate occurrences.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_doses_occurrence
		ON doses(medication_id, scheduled_time);

	CREATE INDEX IF NOT EXISTS idx_doses_owner_med_time
		ON doses(owner_id, medication_id, scheduled_time);
	CREATE INDEX IF NOT EXISTS idx_doses_owner_status
		ON doses(owner_id, status);
	CREATE INDEX IF NOT EXISTS idx_doses_status_time
		ON doses(status, scheduled_time);

	CREATE TABLE IF NOT EXISTS reconcile_events (
		id TEXT PRIMARY KEY,
		dose_id TEXT NOT NULL,
		medication_id TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		from_status TEXT NOT NULL,
		to_status TEXT NOT NULL,
		scheduled_time TEXT NOT NULL,
		lateness_seconds INTEGER NOT NULL,
		swept_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reconcile_events_owner
		ON reconcile_events(owner_id, swept_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// MEDICATION STORE (engine.MedicationStore interface)
// =============================================================================

// SaveMedication inserts or replaces a medication record.
func (s *Store) SaveMedication(ctx context.Context, m engine.Medication) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO medications
		(id, owner_id, name, dose, times_per_day, times, active_from, active_to,
		 category, notes, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			dose = excluded.dose,
			times_per_day = excluded.times_per_day,
			times = excluded.times,
			active_from = excluded.active_from,
			active_to = excluded.active_to,
			category = excluded.category,
			notes = excluded.notes,
			active = excluded.active
	`

	_, err := s.db.ExecContext(ctx, query,
		m.ID,
		m.OwnerID,
		m.Name,
		m.Dose,
		m.Recurrence.TimesPerDay,
		strings.Join(m.Recurrence.Times, ","),
		m.ActiveFrom.Format(time.RFC3339Nano),
		m.ActiveTo.Format(time.RFC3339Nano),
		m.Category,
		nullString(m.Notes),
		m.Active,
		m.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return &engine.PersistenceError{Op: "save medication", Err: err}
	}
	return nil
}

// GetMedication returns the medication if it exists and belongs to owner.
func (s *Store) GetMedication(ctx context.Context, owner engine.OwnerID, id engine.MedicationID) (*engine.Medication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, medicationSelect+` WHERE id = ? AND owner_id = ?`, id, owner)
	m, err := scanMedication(row)
	if err == sql.ErrNoRows {
		return nil, engine.ErrMedicationNotFound
	}
	if err != nil {
		return nil, &engine.PersistenceError{Op: "get medication", Err: err}
	}
	return m, nil
}

// ListMedications returns the owner's medications ordered by name.
func (s *Store) ListMedications(ctx context.Context, owner engine.OwnerID, activeOnly bool) ([]engine.Medication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := medicationSelect + ` WHERE owner_id = ?`
	if activeOnly {
		query += ` AND active = TRUE`
	}
	query += ` ORDER BY name ASC`

	rows, err := s.db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, &engine.PersistenceError{Op: "list medications", Err: err}
	}
	defer rows.Close()

	var result []engine.Medication
	for rows.Next() {
		m, err := scanMedication(rows)
		if err != nil {
			return nil, &engine.PersistenceError{Op: "scan medication", Err: err}
		}
		result = append(result, *m)
	}
	return result, rows.Err()
}

// DeleteMedication removes the medication and cascades to its doses.
func (s *Store) DeleteMedication(ctx context.Context, owner engine.OwnerID, id engine.MedicationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &engine.PersistenceError{Op: "delete medication", Err: err}
	}
	defer tx.Rollback()

	// Explicit dose delete alongside the FK cascade keeps the contract
	// independent of pragma settings.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM doses WHERE medication_id = ? AND owner_id = ?`, id, owner); err != nil {
		return &engine.PersistenceError{Op: "delete doses", Err: err}
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM medications WHERE id = ? AND owner_id = ?`, id, owner)
	if err != nil {
		return &engine.PersistenceError{Op: "delete medication", Err: err}
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return engine.ErrMedicationNotFound
	}

	return tx.Commit()
}

const medicationSelect = `
	SELECT id, owner_id, name, dose, times_per_day, times, active_from,
	       active_to, category, notes, active, created_at
	FROM medications`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMedication(row rowScanner) (*engine.Medication, error) {
	var (
		m          engine.Medication
		times      string
		activeFrom string
		activeTo   string
		notes      sql.NullString
		createdAt  string
	)
	err := row.Scan(
		&m.ID, &m.OwnerID, &m.Name, &m.Dose, &m.Recurrence.TimesPerDay,
		&times, &activeFrom, &activeTo, &m.Category, &notes, &m.Active, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	if times != "" {
		m.Recurrence.Times = strings.Split(times, ",")
	}
	m.ActiveFrom, _ = time.Parse(time.RFC3339Nano, activeFrom)
	m.ActiveTo, _ = time.Parse(time.RFC3339Nano, activeTo)
	m.Notes = notes.String
	m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &m, nil
}

// =============================================================================
// DOSE STORE (engine.DoseStore interface)
// =============================================================================

// InsertDoses bulk-inserts drafts, ignoring occurrence-key conflicts.
// One call is one transaction; callers chunk larger sets.
func (s *Store) InsertDoses(ctx context.Context, drafts []engine.DoseDraft) (int, error) {
	if len(drafts) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &engine.PersistenceError{Op: "insert doses", Err: err}
	}
	defer tx.Rollback()

	query := `
		INSERT INTO doses
		(id, owner_id, medication_id, scheduled_time, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(medication_id, scheduled_time) DO NOTHING
	`

	created := 0
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, d := range drafts {
		res, err := tx.ExecContext(ctx, query,
			uuid.NewString(),
			d.OwnerID,
			d.MedicationID,
			d.ScheduledTime.Format(time.RFC3339Nano),
			engine.StatusScheduled,
			now,
		)
		if err != nil {
			return 0, &engine.PersistenceError{Op: "insert dose", Err: err}
		}
		if n, _ := res.RowsAffected(); n > 0 {
			created++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, &engine.PersistenceError{Op: "insert doses", Err: err}
	}
	return created, nil
}

// GetDose returns the dose if it exists and belongs to owner.
func (s *Store) GetDose(ctx context.Context, owner engine.OwnerID, id engine.DoseID) (*engine.Dose, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, doseSelect+` WHERE id = ? AND owner_id = ?`, id, owner)
	d, err := scanDose(row)
	if err == sql.ErrNoRows {
		return nil, engine.ErrDoseNotFound
	}
	if err != nil {
		return nil, &engine.PersistenceError{Op: "get dose", Err: err}
	}
	return d, nil
}

// ListDoses returns the owner's doses with scheduled_time in [from, to].
func (s *Store) ListDoses(ctx context.Context, owner engine.OwnerID, medication *engine.MedicationID, from, to time.Time) ([]engine.Dose, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := doseSelect + ` WHERE owner_id = ? AND scheduled_time >= ? AND scheduled_time <= ?`
	args := []any{owner, from.Format(time.RFC3339Nano), to.Format(time.RFC3339Nano)}
	if medication != nil {
		query += ` AND medication_id = ?`
		args = append(args, *medication)
	}
	query += ` ORDER BY scheduled_time ASC`

	return s.queryDoses(ctx, query, args...)
}

// ListUpcoming returns the next still-scheduled doses.
func (s *Store) ListUpcoming(ctx context.Context, owner engine.OwnerID, from time.Time, limit int) ([]engine.Dose, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := doseSelect + `
		WHERE owner_id = ? AND status = ? AND scheduled_time >= ?
		ORDER BY scheduled_time ASC
		LIMIT ?`
	return s.queryDoses(ctx, query, owner, engine.StatusScheduled, from.Format(time.RFC3339Nano), limit)
}

// ListDue returns the sweeper's work queue across all owners.
func (s *Store) ListDue(ctx context.Context, now time.Time) ([]engine.Dose, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := doseSelect + `
		WHERE status IN (?, ?) AND taken_time IS NULL AND scheduled_time <= ?
		ORDER BY scheduled_time ASC`
	return s.queryDoses(ctx, query,
		engine.StatusScheduled, engine.StatusLate, now.Format(time.RFC3339Nano))
}

// ListDueSoon returns scheduled doses falling due in (from, to].
func (s *Store) ListDueSoon(ctx context.Context, from, to time.Time) ([]engine.Dose, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := doseSelect + `
		WHERE status = ? AND scheduled_time > ? AND scheduled_time <= ?
		ORDER BY scheduled_time ASC`
	return s.queryDoses(ctx, query,
		engine.StatusScheduled, from.Format(time.RFC3339Nano), to.Format(time.RFC3339Nano))
}

// UpdateDoseStatus applies the update only if the stored status still
// equals expect (optimistic concurrency, serialized per dose).
func (s *Store) UpdateDoseStatus(ctx context.Context, id engine.DoseID, expect engine.DoseStatus, update engine.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var takenTime sql.NullString
	if update.TakenTime != nil {
		takenTime = sql.NullString{String: update.TakenTime.Format(time.RFC3339Nano), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE doses
		SET status = ?, taken_time = ?, notes = ?
		WHERE id = ? AND status = ?`,
		update.Status, takenTime, nullString(update.Notes), id, expect,
	)
	if err != nil {
		return &engine.PersistenceError{Op: "update dose status", Err: err}
	}
	affected, _ := res.RowsAffected()
	if affected == 1 {
		return nil
	}

	// Distinguish a lost race from a missing row for the caller.
	var actual engine.DoseStatus
	err = s.db.QueryRowContext(ctx, `SELECT status FROM doses WHERE id = ?`, id).Scan(&actual)
	if err == sql.ErrNoRows {
		return engine.ErrDoseNotFound
	}
	if err != nil {
		return &engine.PersistenceError{Op: "update dose status", Err: err}
	}
	return &engine.ConflictError{DoseID: id, Expected: expect, Actual: actual}
}

// DeleteScheduledFrom deletes still-scheduled doses at or after the boundary.
func (s *Store) DeleteScheduledFrom(ctx context.Context, medication engine.MedicationID, onOrAfter time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM doses
		WHERE medication_id = ? AND status = ? AND scheduled_time >= ?`,
		medication, engine.StatusScheduled, onOrAfter.Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, &engine.PersistenceError{Op: "delete scheduled doses", Err: err}
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DeleteScheduledOutside prunes still-scheduled future doses that fell out
// of the medication's new active range.
func (s *Store) DeleteScheduledOutside(ctx context.Context, medication engine.MedicationID, onOrAfter, rangeFrom, rangeTo time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM doses
		WHERE medication_id = ? AND status = ? AND scheduled_time >= ?
		  AND (scheduled_time < ? OR scheduled_time > ?)`,
		medication, engine.StatusScheduled,
		onOrAfter.Format(time.RFC3339Nano),
		rangeFrom.Format(time.RFC3339Nano),
		rangeTo.Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, &engine.PersistenceError{Op: "delete out-of-range doses", Err: err}
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

const doseSelect = `
	SELECT id, owner_id, medication_id, scheduled_time, taken_time, status,
	       notes, created_at
	FROM doses`

func (s *Store) queryDoses(ctx context.Context, query string, args ...any) ([]engine.Dose, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &engine.PersistenceError{Op: "query doses", Err: err}
	}
	defer rows.Close()

	var doses []engine.Dose
	for rows.Next() {
		d, err := scanDose(rows)
		if err != nil {
			return nil, &engine.PersistenceError{Op: "scan dose", Err: err}
		}
		doses = append(doses, *d)
	}
	return doses, rows.Err()
}

func scanDose(row rowScanner) (*engine.Dose, error) {
	var (
		d             engine.Dose
		scheduledTime string
		takenTime     sql.NullString
		notes         sql.NullString
		createdAt     string
	)
	err := row.Scan(
		&d.ID, &d.OwnerID, &d.MedicationID, &scheduledTime, &takenTime,
		&d.Status, &notes, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	d.ScheduledTime, _ = time.Parse(time.RFC3339Nano, scheduledTime)
	if takenTime.Valid {
		t, _ := time.Parse(time.RFC3339Nano, takenTime.String)
		d.TakenTime = &t
	}
	d.Notes = notes.String
	d.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &d, nil
}

// =============================================================================
// RECONCILE LOG (engine.ReconcileLog interface)
// =============================================================================

// AppendReconcileEvent records a sweeper transition. Append-only.
func (s *Store) AppendReconcileEvent(ctx context.Context, ev engine.ReconcileEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reconcile_events
		(id, dose_id, medication_id, owner_id, from_status, to_status,
		 scheduled_time, lateness_seconds, swept_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.DoseID, ev.MedicationID, ev.OwnerID, ev.FromStatus, ev.ToStatus,
		ev.ScheduledTime.Format(time.RFC3339Nano),
		int64(ev.Lateness/time.Second),
		ev.SweptAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return &engine.PersistenceError{Op: "append reconcile event", Err: err}
	}
	return nil
}

// ListReconcileEvents returns the owner's most recent events, newest first.
func (s *Store) ListReconcileEvents(ctx context.Context, owner engine.OwnerID, limit int) ([]engine.ReconcileEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, dose_id, medication_id, owner_id, from_status, to_status,
		       scheduled_time, lateness_seconds, swept_at
		FROM reconcile_events
		WHERE owner_id = ?
		ORDER BY swept_at DESC
		LIMIT ?`, owner, limit)
	if err != nil {
		return nil, &engine.PersistenceError{Op: "list reconcile events", Err: err}
	}
	defer rows.Close()

	var events []engine.ReconcileEvent
	for rows.Next() {
		var (
			ev            engine.ReconcileEvent
			scheduledTime string
			latenessSecs  int64
			sweptAt       string
		)
		err := rows.Scan(&ev.ID, &ev.DoseID, &ev.MedicationID, &ev.OwnerID,
			&ev.FromStatus, &ev.ToStatus, &scheduledTime, &latenessSecs, &sweptAt)
		if err != nil {
			return nil, &engine.PersistenceError{Op: "scan reconcile event", Err: err}
		}
		ev.ScheduledTime, _ = time.Parse(time.RFC3339Nano, scheduledTime)
		ev.Lateness = time.Duration(latenessSecs) * time.Second
		ev.SweptAt, _ = time.Parse(time.RFC3339Nano, sweptAt)
		events = append(events, ev)
	}
	return events, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
