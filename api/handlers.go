/*
handlers.go - HTTP handlers exposing the dose engine

PURPOSE:
  Translates HTTP requests into engine operations and engine errors into
  status codes. No temporal logic lives here; the engine owns all of it.

ENDPOINTS:
  Medications:
    GET    /api/medications              List active medications
    POST   /api/medications              Create (generates occurrences)
    GET    /api/medications/{id}         Get one
    PUT    /api/medications/{id}         Update (reschedules when needed)
    DELETE /api/medications/{id}         Delete with all doses
    GET    /api/medications/{id}/stats   30-day trailing adherence

  Doses:
    GET    /api/doses/today              Today's doses, all statuses
    GET    /api/doses/upcoming           Next scheduled doses
    POST   /api/doses/{id}/take          Log a dose as taken
    GET    /api/doses/stats              Adherence for a window (default today)
    GET    /api/doses/calendar           Month buckets (?month=YYYY-MM)

  Reconciliation:
    GET    /api/reconciliation/events    Recent sweeper transitions
    POST   /api/reconciliation/run       Trigger an immediate sweep

ERROR HANDLING:
  400 validation, 404 not found, 409 conflict (benign race), 422 too late,
  503 store unavailable.

OWNERSHIP:
  The authentication layer is an external collaborator. It identifies the
  caller via the X-Owner-ID header; requests without one are rejected.

SEE ALSO:
  - dto.go: Wire shapes
  - server.go: Router and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/Nishu1044/MedTrack/engine"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine  *engine.Engine
	Sweeper *Sweeper
	Log     zerolog.Logger
}

// NewHandler creates a handler around the engine.
func NewHandler(eng *engine.Engine, sweeper *Sweeper, log zerolog.Logger) *Handler {
	return &Handler{Engine: eng, Sweeper: sweeper, Log: log}
}

const ownerHeader = "X-Owner-ID"

func owner(r *http.Request) engine.OwnerID {
	return engine.OwnerID(r.Header.Get(ownerHeader))
}

// =============================================================================
// MEDICATION HANDLERS
// =============================================================================

// ListMedications returns the caller's active medications.
func (h *Handler) ListMedications(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	meds, err := h.Engine.ListMedications(r.Context(), ownerID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	dtos := make([]MedicationDTO, len(meds))
	for i, m := range meds {
		dtos[i] = toMedicationDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetMedication returns a single medication.
func (h *Handler) GetMedication(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	med, err := h.Engine.GetMedication(r.Context(), ownerID, engine.MedicationID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMedicationDTO(*med))
}

// CreateMedication creates a medication and its occurrence set.
func (h *Handler) CreateMedication(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	med, err := h.decodeMedication(w, r, ownerID, "")
	if err != nil {
		return // response already written
	}

	created, doses, err := h.Engine.CreateMedication(r.Context(), *med)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	dto := toMedicationDTO(*created)
	dto.DosesAdded = doses
	writeJSON(w, http.StatusCreated, dto)
}

// UpdateMedication updates a medication; schedule edits trigger the
// rescheduler.
func (h *Handler) UpdateMedication(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	id := engine.MedicationID(chi.URLParam(r, "id"))
	med, err := h.decodeMedication(w, r, ownerID, id)
	if err != nil {
		return
	}

	updated, result, err := h.Engine.UpdateMedication(r.Context(), *med)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	dto := toMedicationDTO(*updated)
	dto.DosesAdded = result.Created
	writeJSON(w, http.StatusOK, dto)
}

// DeleteMedication removes a medication together with all its doses.
func (h *Handler) DeleteMedication(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	id := engine.MedicationID(chi.URLParam(r, "id"))
	if err := h.Engine.DeleteMedication(r.Context(), ownerID, id); err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "medication and associated doses deleted"})
}

// MedicationStats returns the fixed 30-day trailing adherence for one
// medication.
func (h *Handler) MedicationStats(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	id := engine.MedicationID(chi.URLParam(r, "id"))
	stats, err := h.Engine.ComputeStats(r.Context(), ownerID, &id, engine.Window{})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) decodeMedication(w http.ResponseWriter, r *http.Request, ownerID engine.OwnerID, id engine.MedicationID) (*engine.Medication, error) {
	var req SaveMedicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return nil, err
	}

	start, err := time.ParseInLocation("2006-01-02", req.StartDate, time.Local)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid startDate format (use YYYY-MM-DD)", err)
		return nil, err
	}
	end, err := time.ParseInLocation("2006-01-02", req.EndDate, time.Local)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid endDate format (use YYYY-MM-DD)", err)
		return nil, err
	}

	return &engine.Medication{
		ID:      id,
		OwnerID: ownerID,
		Name:    req.Name,
		Dose:    req.Dose,
		Recurrence: engine.Recurrence{
			TimesPerDay: req.Frequency.TimesPerDay,
			Times:       req.Frequency.Times,
		},
		ActiveFrom: start,
		ActiveTo:   end,
		Category:   engine.Category(req.Category),
		Notes:      req.Notes,
		Active:     true,
	}, nil
}

// =============================================================================
// DOSE HANDLERS
// =============================================================================

// TodayDoses returns the caller's doses scheduled today.
func (h *Handler) TodayDoses(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	doses, err := h.Engine.TodayDoses(r.Context(), ownerID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeDoses(w, r, ownerID, doses)
}

// UpcomingDoses returns the caller's next scheduled doses.
func (h *Handler) UpcomingDoses(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	doses, err := h.Engine.UpcomingDoses(r.Context(), ownerID, limit)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeDoses(w, r, ownerID, doses)
}

// TakeDose logs a dose as taken.
func (h *Handler) TakeDose(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	var req TakeDoseRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	var takenAt *time.Time
	if req.TakenTime != nil {
		t, err := time.Parse(time.RFC3339, *req.TakenTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid takenTime (use RFC3339)", err)
			return
		}
		takenAt = &t
	}

	id := engine.DoseID(chi.URLParam(r, "id"))
	dose, err := h.Engine.TakeDose(r.Context(), ownerID, id, takenAt, req.Notes)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDoseDTO(*dose, nil))
}

// Stats returns adherence statistics for a window (default: today).
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	window, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid window (use from/to as YYYY-MM-DD)", err)
		return
	}

	stats, err := h.Engine.ComputeStats(r.Context(), ownerID, nil, window)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Calendar returns one bucket per day of the requested month
// (?month=YYYY-MM, default: current month).
func (h *Handler) Calendar(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	year, month := time.Now().Year(), time.Now().Month()
	if raw := r.URL.Query().Get("month"); raw != "" {
		t, err := time.Parse("2006-01", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid month (use YYYY-MM)", err)
			return
		}
		year, month = t.Year(), t.Month()
	}

	buckets, err := h.Engine.ComputeCalendar(r.Context(), ownerID, year, month)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, buckets)
}

// =============================================================================
// RECONCILIATION HANDLERS
// =============================================================================

// ReconcileEvents returns recent sweeper audit records for the caller.
func (h *Handler) ReconcileEvents(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	events, err := h.Engine.ReconcileEvents(r.Context(), ownerID, limit)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	dtos := make([]ReconcileEventDTO, len(events))
	for i, ev := range events {
		dtos[i] = toReconcileEventDTO(ev)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RunReconciliation triggers an immediate sweep.
func (h *Handler) RunReconciliation(w http.ResponseWriter, r *http.Request) {
	transitioned, err := h.Engine.ReconcileOnce(r.Context(), time.Now())
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ReconcileRunResponse{Transitioned: transitioned})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) requireOwner(w http.ResponseWriter, r *http.Request) (engine.OwnerID, bool) {
	ownerID := owner(r)
	if ownerID == "" {
		writeError(w, http.StatusUnauthorized, "Missing "+ownerHeader+" header", nil)
		return "", false
	}
	return ownerID, true
}

// writeDoses decorates doses with medication display names before writing.
func (h *Handler) writeDoses(w http.ResponseWriter, r *http.Request, ownerID engine.OwnerID, doses []engine.Dose) {
	names := make(map[engine.MedicationID]string)
	meds, err := h.Engine.ListMedications(r.Context(), ownerID)
	if err == nil {
		for _, m := range meds {
			names[m.ID] = m.Name
		}
	}

	dtos := make([]DoseDTO, len(doses))
	for i, d := range doses {
		dtos[i] = toDoseDTO(d, names)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	var tooLate *engine.TooLateError
	switch {
	case errors.As(err, &tooLate):
		minutes := int(tooLate.Lateness / time.Minute)
		resp := ErrorResponse{Error: "Dose can no longer be taken", Details: err.Error(), MinutesLate: &minutes}
		writeJSON(w, http.StatusUnprocessableEntity, resp)
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, engine.ErrValidation):
		writeError(w, http.StatusBadRequest, "Validation failed", err)
	case errors.Is(err, engine.ErrConflict):
		writeError(w, http.StatusConflict, "Dose was modified concurrently", err)
	case errors.Is(err, engine.ErrPersistence):
		writeError(w, http.StatusServiceUnavailable, "Storage temporarily unavailable", err)
	default:
		h.Log.Error().Err(err).Msg("unhandled engine error")
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func parseWindow(r *http.Request) (engine.Window, error) {
	now := time.Now()
	window := engine.Window{From: engine.StartOfDay(now), To: engine.EndOfDay(now)}

	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := time.ParseInLocation("2006-01-02", raw, time.Local)
		if err != nil {
			return window, err
		}
		window.From = engine.StartOfDay(t)
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := time.ParseInLocation("2006-01-02", raw, time.Local)
		if err != nil {
			return window, err
		}
		window.To = engine.EndOfDay(t)
	}
	return window, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
