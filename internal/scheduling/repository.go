package scheduling

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrSlotTaken: the write-time precondition of the booking path failed;
	// another occupying appointment holds the (specialist, date, time).
	ErrSlotTaken = errors.New("slot no longer available")

	// ErrSlotContended: another booking for the same slot holds the lock.
	ErrSlotContended = errors.New("slot is currently being booked, please retry")

	// ErrActionNotAllowed covers wrong status, wrong owner, a role outside
	// the transition table and a non-existent id alike. Callers cannot tell
	// these apart on purpose.
	ErrActionNotAllowed = errors.New("action is not currently possible")

	ErrWindowNotFound = errors.New("availability window not found")
)

// OwnerFilter narrows a conditional write to rows owned by one party.
// At most one field is set; the zero value matches any appointment.
type OwnerFilter struct {
	SpecialistID *uuid.UUID
	PatientID    *uuid.UUID
}

// TransitionUpdate carries the side data a transition writes. Nil fields
// are left untouched.
type TransitionUpdate struct {
	RejectionReason    *string
	CancellationReason *string
	SpecialistNote     *string
}

// AvailabilityRepository stores recurring weekly availability windows.
// Read-mostly; the generator only ever sees active windows.
type AvailabilityRepository interface {
	ListActive(ctx context.Context, specialistID, specialtyID uuid.UUID) ([]AvailabilityWindow, error)
	ListBySpecialist(ctx context.Context, specialistID uuid.UUID) ([]AvailabilityWindow, error)
	CreateWindow(ctx context.Context, w *AvailabilityWindow) error
	// DeactivateWindow flips active off for a window the specialist owns.
	// Windows are never hard-deleted.
	DeactivateWindow(ctx context.Context, id, specialistID uuid.UUID) error
}

// AppointmentRepository stores appointment records. Every mutation is a
// single atomic conditional write, never a read-then-write pair.
type AppointmentRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// ListOccupiedBetween returns appointments in occupying status for the
	// specialist+specialty whose date falls in [fromDate, toDate).
	ListOccupiedBetween(ctx context.Context, specialistID, specialtyID uuid.UUID, fromDate, toDate string) ([]Appointment, error)

	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error)
	ListBySpecialist(ctx context.Context, specialistID uuid.UUID) ([]Appointment, error)
	ListAll(ctx context.Context) ([]Appointment, error)

	// Create inserts a REQUESTED appointment, failing with ErrSlotTaken if
	// an occupying appointment already holds (specialist_id, date, time).
	Create(ctx context.Context, a *Appointment) error

	// Transition updates the row to the target status iff its current
	// status is in from and the owner filter matches, returning
	// ErrActionNotAllowed when no row qualifies.
	Transition(ctx context.Context, id uuid.UUID, from []Status, to Status, owner OwnerFilter, upd TransitionUpdate) (*Appointment, error)
}

// SpecialtyRepository is the read-only specialty catalog.
type SpecialtyRepository interface {
	ListSpecialties(ctx context.Context) ([]Specialty, error)
}
