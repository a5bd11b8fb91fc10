// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Nishu1044/MedTrack/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements engine.Store with maps guarded by one RWMutex. The
// conditional-update contract matches the SQLite store: an update applies
// only when the stored status still equals the expected one.
type Memory struct {
	mu          sync.RWMutex
	medications map[engine.MedicationID]engine.Medication
	doses       map[engine.DoseID]engine.Dose
	// occurrence key (medication, scheduledTime) -> dose id, the
	// idempotency index for generation.
	occurrences map[occKey]engine.DoseID
	events      []engine.ReconcileEvent
}

type occKey struct {
	Medication engine.MedicationID
	Scheduled  int64 // unix nanos
}

func NewMemory() *Memory {
	return &Memory{
		medications: make(map[engine.MedicationID]engine.Medication),
		doses:       make(map[engine.DoseID]engine.Dose),
		occurrences: make(map[occKey]engine.DoseID),
	}
}

// =============================================================================
// MEDICATION STORE
// =============================================================================

func (m *Memory) SaveMedication(_ context.Context, med engine.Medication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.medications[med.ID] = med
	return nil
}

func (m *Memory) GetMedication(_ context.Context, owner engine.OwnerID, id engine.MedicationID) (*engine.Medication, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	med, ok := m.medications[id]
	if !ok || med.OwnerID != owner {
		return nil, engine.ErrMedicationNotFound
	}
	out := med
	return &out, nil
}

func (m *Memory) ListMedications(_ context.Context, owner engine.OwnerID, activeOnly bool) ([]engine.Medication, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []engine.Medication
	for _, med := range m.medications {
		if med.OwnerID != owner {
			continue
		}
		if activeOnly && !med.Active {
			continue
		}
		result = append(result, med)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *Memory) DeleteMedication(_ context.Context, owner engine.OwnerID, id engine.MedicationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	med, ok := m.medications[id]
	if !ok || med.OwnerID != owner {
		return engine.ErrMedicationNotFound
	}
	delete(m.medications, id)
	// Cascade: no orphan doses.
	for doseID, d := range m.doses {
		if d.MedicationID == id {
			delete(m.occurrences, occKey{Medication: id, Scheduled: d.ScheduledTime.UnixNano()})
			delete(m.doses, doseID)
		}
	}
	return nil
}

// =============================================================================
// DOSE STORE
// =============================================================================

func (m *Memory) InsertDoses(_ context.Context, drafts []engine.DoseDraft) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	created := 0
	for _, d := range drafts {
		k := occKey{Medication: d.MedicationID, Scheduled: d.ScheduledTime.UnixNano()}
		if _, exists := m.occurrences[k]; exists {
			continue // idempotent replay
		}
		dose := engine.Dose{
			ID:            engine.DoseID(uuid.NewString()),
			OwnerID:       d.OwnerID,
			MedicationID:  d.MedicationID,
			ScheduledTime: d.ScheduledTime,
			Status:        engine.StatusScheduled,
			CreatedAt:     time.Now(),
		}
		m.doses[dose.ID] = dose
		m.occurrences[k] = dose.ID
		created++
	}
	return created, nil
}

func (m *Memory) GetDose(_ context.Context, owner engine.OwnerID, id engine.DoseID) (*engine.Dose, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.doses[id]
	if !ok || d.OwnerID != owner {
		return nil, engine.ErrDoseNotFound
	}
	out := d
	return &out, nil
}

func (m *Memory) ListDoses(_ context.Context, owner engine.OwnerID, medication *engine.MedicationID, from, to time.Time) ([]engine.Dose, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []engine.Dose
	for _, d := range m.doses {
		if d.OwnerID != owner {
			continue
		}
		if medication != nil && d.MedicationID != *medication {
			continue
		}
		if d.ScheduledTime.Before(from) || d.ScheduledTime.After(to) {
			continue
		}
		result = append(result, d)
	}
	sortDoses(result)
	return result, nil
}

func (m *Memory) ListUpcoming(_ context.Context, owner engine.OwnerID, from time.Time, limit int) ([]engine.Dose, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []engine.Dose
	for _, d := range m.doses {
		if d.OwnerID != owner || d.Status != engine.StatusScheduled {
			continue
		}
		if d.ScheduledTime.Before(from) {
			continue
		}
		result = append(result, d)
	}
	sortDoses(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *Memory) ListDue(_ context.Context, now time.Time) ([]engine.Dose, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []engine.Dose
	for _, d := range m.doses {
		if d.TakenTime != nil {
			continue
		}
		if d.Status != engine.StatusScheduled && d.Status != engine.StatusLate {
			continue
		}
		if d.ScheduledTime.After(now) {
			continue
		}
		result = append(result, d)
	}
	sortDoses(result)
	return result, nil
}

func (m *Memory) ListDueSoon(_ context.Context, from, to time.Time) ([]engine.Dose, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []engine.Dose
	for _, d := range m.doses {
		if d.Status != engine.StatusScheduled {
			continue
		}
		if !d.ScheduledTime.After(from) || d.ScheduledTime.After(to) {
			continue
		}
		result = append(result, d)
	}
	sortDoses(result)
	return result, nil
}

func (m *Memory) UpdateDoseStatus(_ context.Context, id engine.DoseID, expect engine.DoseStatus, update engine.StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doses[id]
	if !ok {
		return engine.ErrDoseNotFound
	}
	if d.Status != expect {
		return &engine.ConflictError{DoseID: id, Expected: expect, Actual: d.Status}
	}
	d.Status = update.Status
	d.TakenTime = update.TakenTime
	d.Notes = update.Notes
	m.doses[id] = d
	return nil
}

func (m *Memory) DeleteScheduledFrom(_ context.Context, medication engine.MedicationID, onOrAfter time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for id, d := range m.doses {
		if d.MedicationID != medication || d.Status != engine.StatusScheduled {
			continue
		}
		if d.ScheduledTime.Before(onOrAfter) {
			continue
		}
		delete(m.occurrences, occKey{Medication: medication, Scheduled: d.ScheduledTime.UnixNano()})
		delete(m.doses, id)
		deleted++
	}
	return deleted, nil
}

func (m *Memory) DeleteScheduledOutside(_ context.Context, medication engine.MedicationID, onOrAfter, rangeFrom, rangeTo time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for id, d := range m.doses {
		if d.MedicationID != medication || d.Status != engine.StatusScheduled {
			continue
		}
		if d.ScheduledTime.Before(onOrAfter) {
			continue
		}
		if !d.ScheduledTime.Before(rangeFrom) && !d.ScheduledTime.After(rangeTo) {
			continue // still inside the new range
		}
		delete(m.occurrences, occKey{Medication: medication, Scheduled: d.ScheduledTime.UnixNano()})
		delete(m.doses, id)
		deleted++
	}
	return deleted, nil
}

// =============================================================================
// RECONCILE LOG
// =============================================================================

func (m *Memory) AppendReconcileEvent(_ context.Context, ev engine.ReconcileEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *Memory) ListReconcileEvents(_ context.Context, owner engine.OwnerID, limit int) ([]engine.ReconcileEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []engine.ReconcileEvent
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].OwnerID != owner {
			continue
		}
		result = append(result, m.events[i])
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func sortDoses(doses []engine.Dose) {
	sort.Slice(doses, func(i, j int) bool {
		if doses[i].ScheduledTime.Equal(doses[j].ScheduledTime) {
			return doses[i].ID < doses[j].ID
		}
		return doses[i].ScheduledTime.Before(doses[j].ScheduledTime)
	})
}
