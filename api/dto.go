/*
dto.go - Request/response data structures

PURPOSE:
  JSON shapes for the HTTP surface. Stats and calendar responses reuse the
  engine's value objects directly; everything else is translated here so
  the wire format stays stable if the domain types move.
*/
package api

import (
	"time"

	"github.com/Nishu1044/MedTrack/engine"
)

// =============================================================================
// ERROR RESPONSE
// =============================================================================

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	// MinutesLate is set on too-late rejections so the UI can explain the
	// cutoff to the user.
	MinutesLate *int `json:"minutesLate,omitempty"`
}

// =============================================================================
// MEDICATIONS
// =============================================================================

type RecurrenceDTO struct {
	TimesPerDay int      `json:"timesPerDay"`
	Times       []string `json:"times"`
}

type MedicationDTO struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Dose       string        `json:"dose"`
	Frequency  RecurrenceDTO `json:"frequency"`
	StartDate  string        `json:"startDate"` // YYYY-MM-DD
	EndDate    string        `json:"endDate"`   // YYYY-MM-DD
	Category   string        `json:"category"`
	Notes      string        `json:"notes,omitempty"`
	Active     bool          `json:"active"`
	CreatedAt  string        `json:"createdAt"`
	DosesAdded int           `json:"dosesAdded,omitempty"`
}

type SaveMedicationRequest struct {
	Name      string        `json:"name"`
	Dose      string        `json:"dose"`
	Frequency RecurrenceDTO `json:"frequency"`
	StartDate string        `json:"startDate"` // YYYY-MM-DD
	EndDate   string        `json:"endDate"`   // YYYY-MM-DD
	Category  string        `json:"category"`
	Notes     string        `json:"notes"`
}

func toMedicationDTO(m engine.Medication) MedicationDTO {
	return MedicationDTO{
		ID:   string(m.ID),
		Name: m.Name,
		Dose: m.Dose,
		Frequency: RecurrenceDTO{
			TimesPerDay: m.Recurrence.TimesPerDay,
			Times:       m.Recurrence.Times,
		},
		StartDate: m.ActiveFrom.Format("2006-01-02"),
		EndDate:   m.ActiveTo.Format("2006-01-02"),
		Category:  string(m.Category),
		Notes:     m.Notes,
		Active:    m.Active,
		CreatedAt: m.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// DOSES
// =============================================================================

type DoseDTO struct {
	ID            string  `json:"id"`
	MedicationID  string  `json:"medicationId"`
	Medication    string  `json:"medication,omitempty"` // display name when known
	ScheduledTime string  `json:"scheduledTime"`
	TakenTime     *string `json:"takenTime,omitempty"`
	Status        string  `json:"status"`
	Notes         string  `json:"notes,omitempty"`
}

type TakeDoseRequest struct {
	TakenTime *string `json:"takenTime,omitempty"` // RFC3339; defaults to now
	Notes     string  `json:"notes,omitempty"`
}

func toDoseDTO(d engine.Dose, medNames map[engine.MedicationID]string) DoseDTO {
	dto := DoseDTO{
		ID:            string(d.ID),
		MedicationID:  string(d.MedicationID),
		Medication:    medNames[d.MedicationID],
		ScheduledTime: d.ScheduledTime.Format(time.RFC3339),
		Status:        string(d.Status),
		Notes:         d.Notes,
	}
	if d.TakenTime != nil {
		taken := d.TakenTime.Format(time.RFC3339)
		dto.TakenTime = &taken
	}
	return dto
}

// =============================================================================
// RECONCILIATION
// =============================================================================

type ReconcileEventDTO struct {
	ID            string `json:"id"`
	DoseID        string `json:"doseId"`
	MedicationID  string `json:"medicationId"`
	FromStatus    string `json:"fromStatus"`
	ToStatus      string `json:"toStatus"`
	ScheduledTime string `json:"scheduledTime"`
	LatenessSecs  int64  `json:"latenessSeconds"`
	SweptAt       string `json:"sweptAt"`
}

type ReconcileRunResponse struct {
	Transitioned int `json:"transitioned"`
}

func toReconcileEventDTO(ev engine.ReconcileEvent) ReconcileEventDTO {
	return ReconcileEventDTO{
		ID:            ev.ID,
		DoseID:        string(ev.DoseID),
		MedicationID:  string(ev.MedicationID),
		FromStatus:    string(ev.FromStatus),
		ToStatus:      string(ev.ToStatus),
		ScheduledTime: ev.ScheduledTime.Format(time.RFC3339),
		LatenessSecs:  int64(ev.Lateness / time.Second),
		SweptAt:       ev.SweptAt.Format(time.RFC3339),
	}
}
