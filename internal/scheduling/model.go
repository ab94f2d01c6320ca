package scheduling

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusRequested Status = "REQUESTED"
	StatusAccepted  Status = "ACCEPTED"
	StatusRejected  Status = "REJECTED"
	StatusCancelled Status = "CANCELLED"
	StatusCompleted Status = "COMPLETED"
)

// OccupyingStatuses are the statuses that keep a (specialist, date, time)
// slot blocked. REJECTED and CANCELLED free the slot for re-booking.
var OccupyingStatuses = []Status{StatusRequested, StatusAccepted, StatusCompleted}

func (s Status) Occupying() bool {
	return s == StatusRequested || s == StatusAccepted || s == StatusCompleted
}

type Specialty struct {
	ID        uuid.UUID
	Name      string
	Active    bool
	CreatedAt time.Time
}

// AvailabilityWindow is one recurring weekly block of bookable time for a
// specialist in one specialty. Times are naive wall-clock "HH:MM" strings,
// the shape they take in the store; the generator parses them and skips
// windows it cannot parse.
type AvailabilityWindow struct {
	ID           uuid.UUID
	SpecialistID uuid.UUID
	SpecialtyID  uuid.UUID
	Weekday      time.Weekday
	StartTime    string
	EndTime      string
	SlotMinutes  int
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Appointment struct {
	ID                 uuid.UUID
	SpecialtyID        uuid.UUID
	SpecialistID       uuid.UUID
	PatientID          uuid.UUID
	Date               string // "YYYY-MM-DD"
	Time               string // "HH:MM"
	Status             Status
	RejectionReason    *string
	CancellationReason *string
	SpecialistNote     *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Slot is a transient bookable instant. It has no identity beyond its
// (date, time) pair and is never persisted.
type Slot struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

// Key is the occupied-set lookup key. Zero-padded date and time make the
// lexicographic order of keys equal to chronological order.
func (s Slot) Key() string {
	return s.Date + "T" + s.Time
}
