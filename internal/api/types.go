package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/clinicaonline/scheduling/internal/scheduling"
)

type RequestAppointmentRequest struct {
	SpecialistID string `json:"specialist_id"`
	SpecialtyID  string `json:"specialty_id"`
	Date         string `json:"date"`
	Time         string `json:"time"`
}

type ReasonRequest struct {
	Reason string `json:"reason"`
}

// CompleteRequest carries the specialist's note. The field must be present
// even when empty, hence the pointer.
type CompleteRequest struct {
	Note *string `json:"note"`
}

type CreateWindowRequest struct {
	SpecialtyID string `json:"specialty_id"`
	Weekday     int    `json:"weekday"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	SlotMinutes int    `json:"slot_minutes"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID `json:"id"`
	SpecialtyID        uuid.UUID `json:"specialty_id"`
	SpecialistID       uuid.UUID `json:"specialist_id"`
	PatientID          uuid.UUID `json:"patient_id"`
	Date               string    `json:"date"`
	Time               string    `json:"time"`
	Status             string    `json:"status"`
	RejectionReason    *string   `json:"rejection_reason,omitempty"`
	CancellationReason *string   `json:"cancellation_reason,omitempty"`
	SpecialistNote     *string   `json:"specialist_note,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func toAppointmentResponse(a *scheduling.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                 a.ID,
		SpecialtyID:        a.SpecialtyID,
		SpecialistID:       a.SpecialistID,
		PatientID:          a.PatientID,
		Date:               a.Date,
		Time:               a.Time,
		Status:             string(a.Status),
		RejectionReason:    a.RejectionReason,
		CancellationReason: a.CancellationReason,
		SpecialistNote:     a.SpecialistNote,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
}

type WindowResponse struct {
	ID          uuid.UUID `json:"id"`
	SpecialtyID uuid.UUID `json:"specialty_id"`
	Weekday     int       `json:"weekday"`
	StartTime   string    `json:"start_time"`
	EndTime     string    `json:"end_time"`
	SlotMinutes int       `json:"slot_minutes"`
	Active      bool      `json:"active"`
}

func toWindowResponse(w scheduling.AvailabilityWindow) WindowResponse {
	return WindowResponse{
		ID:          w.ID,
		SpecialtyID: w.SpecialtyID,
		Weekday:     int(w.Weekday),
		StartTime:   w.StartTime,
		EndTime:     w.EndTime,
		SlotMinutes: w.SlotMinutes,
		Active:      w.Active,
	}
}

type SpecialtyResponse struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
