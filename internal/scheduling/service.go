package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinicaonline/scheduling/internal/identity"
	redisclient "github.com/clinicaonline/scheduling/internal/redis"
)

// MinSlotMinutes is the coarsest slot granularity a specialist may
// configure.
const MinSlotMinutes = 30

var (
	ErrReasonRequired = errors.New("reason text is required")
	ErrNoteRequired   = errors.New("specialist note must be supplied")
	ErrInvalidSlot    = errors.New("invalid appointment date or time")
	ErrInvalidWindow  = errors.New("invalid availability window")
	ErrWindowOverlap  = errors.New("availability window overlaps an active window for that weekday")
)

type Service struct {
	windows      AvailabilityRepository
	appointments AppointmentRepository
	specialties  SpecialtyRepository
	locker       redisclient.Locker
	horizonDays  int
	now          func() time.Time
	logger       *zap.Logger
}

func NewService(windows AvailabilityRepository, appointments AppointmentRepository, specialties SpecialtyRepository, locker redisclient.Locker, horizonDays int, logger *zap.Logger) *Service {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	return &Service{
		windows:      windows,
		appointments: appointments,
		specialties:  specialties,
		locker:       locker,
		horizonDays:  horizonDays,
		now:          time.Now,
		logger:       logger,
	}
}

// ListSpecialties returns the active specialty catalog.
func (s *Service) ListSpecialties(ctx context.Context) ([]Specialty, error) {
	return s.specialties.ListSpecialties(ctx)
}

// ListAvailableSlots computes the bookable slots for a specialist and
// specialty over the configured horizon starting today. Both reads are a
// point-in-time snapshot; staleness is tolerated because the booking path
// rechecks at write time.
func (s *Service) ListAvailableSlots(ctx context.Context, specialistID, specialtyID uuid.UUID) ([]Slot, error) {
	windows, err := s.windows.ListActive(ctx, specialistID, specialtyID)
	if err != nil {
		return nil, fmt.Errorf("load availability: %w", err)
	}
	if len(windows) == 0 {
		return nil, nil
	}

	start := s.today()
	fromDate := start.Format(dateLayout)
	toDate := start.AddDate(0, 0, s.horizonDays).Format(dateLayout)

	taken, err := s.appointments.ListOccupiedBetween(ctx, specialistID, specialtyID, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("load occupied slots: %w", err)
	}

	return GenerateSlots(windows, occupiedSet(taken), start, s.horizonDays), nil
}

// RequestAppointment is the only path that turns a slot into a persisted
// appointment. The patient id is taken from the actor; the slot is
// whatever the caller picked, recency not required. Correctness comes from
// the write-time conflict check, the per-slot lock only narrows the window
// in which two competing inserts reach the store.
func (s *Service) RequestAppointment(ctx context.Context, actor identity.Actor, specialistID, specialtyID uuid.UUID, date, timeOfDay string) (*Appointment, error) {
	if actor.Role != identity.RolePatient {
		return nil, ErrActionNotAllowed
	}
	date, timeOfDay, err := normalizeSlot(date, timeOfDay)
	if err != nil {
		return nil, err
	}

	appt := &Appointment{
		SpecialtyID:  specialtyID,
		SpecialistID: specialistID,
		PatientID:    actor.ID,
		Date:         date,
		Time:         timeOfDay,
		Status:       StatusRequested,
	}

	lockKey := fmt.Sprintf("%s:%s:%s", specialistID, date, timeOfDay)
	err = s.locker.WithSlotLock(ctx, lockKey, func(lockCtx context.Context) error {
		return s.appointments.Create(lockCtx, appt)
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotContended
		}
		if errors.Is(err, ErrSlotTaken) {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("request appointment: %w", err)
	}

	s.logger.Info("appointment requested",
		zap.Stringer("appointment_id", appt.ID),
		zap.Stringer("specialist_id", specialistID),
		zap.String("date", date),
		zap.String("time", timeOfDay),
	)
	return appt, nil
}

// AcceptAppointment moves a requested appointment to accepted. Specialist
// only, and only for their own appointments.
func (s *Service) AcceptAppointment(ctx context.Context, actor identity.Actor, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, actor, id, ActionAccept, "", nil)
}

func (s *Service) RejectAppointment(ctx context.Context, actor identity.Actor, id uuid.UUID, reason string) (*Appointment, error) {
	return s.transition(ctx, actor, id, ActionReject, reason, nil)
}

func (s *Service) CancelAppointment(ctx context.Context, actor identity.Actor, id uuid.UUID, reason string) (*Appointment, error) {
	return s.transition(ctx, actor, id, ActionCancel, reason, nil)
}

// CompleteAppointment closes an accepted appointment with the specialist's
// clinical note. The note may be empty but must be supplied.
func (s *Service) CompleteAppointment(ctx context.Context, actor identity.Actor, id uuid.UUID, note *string) (*Appointment, error) {
	return s.transition(ctx, actor, id, ActionComplete, "", note)
}

func (s *Service) transition(ctx context.Context, actor identity.Actor, id uuid.UUID, action Action, reason string, note *string) (*Appointment, error) {
	rule, err := ruleFor(action, actor.Role)
	if err != nil {
		return nil, err
	}
	if rule.needsReason && strings.TrimSpace(reason) == "" {
		return nil, ErrReasonRequired
	}
	if rule.needsNote && note == nil {
		return nil, ErrNoteRequired
	}

	var owner OwnerFilter
	switch rule.scope {
	case ownerSpecialist:
		actorID := actor.ID
		owner.SpecialistID = &actorID
	case ownerPatient:
		actorID := actor.ID
		owner.PatientID = &actorID
	}

	var upd TransitionUpdate
	switch action {
	case ActionReject:
		upd.RejectionReason = &reason
	case ActionCancel:
		upd.CancellationReason = &reason
	case ActionComplete:
		upd.SpecialistNote = note
	}

	appt, err := s.appointments.Transition(ctx, id, rule.from, rule.to, owner, upd)
	if err != nil {
		if errors.Is(err, ErrActionNotAllowed) {
			return nil, ErrActionNotAllowed
		}
		return nil, fmt.Errorf("%s appointment: %w", action, err)
	}

	s.logger.Info("appointment transitioned",
		zap.Stringer("appointment_id", id),
		zap.String("action", string(action)),
		zap.String("status", string(appt.Status)),
	)
	return appt, nil
}

// ListAppointments returns the appointments the actor may see: their own
// for patients and specialists, everything for admins.
func (s *Service) ListAppointments(ctx context.Context, actor identity.Actor) ([]Appointment, error) {
	switch actor.Role {
	case identity.RolePatient:
		return s.appointments.ListByPatient(ctx, actor.ID)
	case identity.RoleSpecialist:
		return s.appointments.ListBySpecialist(ctx, actor.ID)
	case identity.RoleAdmin:
		return s.appointments.ListAll(ctx)
	}
	return nil, ErrActionNotAllowed
}

// CreateAvailabilityWindow validates and stores a new recurring window for
// the acting specialist. Overlap against any active window for the same
// weekday is rejected here, at the write boundary, so the generator never
// needs to deduplicate.
func (s *Service) CreateAvailabilityWindow(ctx context.Context, actor identity.Actor, specialtyID uuid.UUID, weekday time.Weekday, startTime, endTime string, slotMinutes int) (*AvailabilityWindow, error) {
	if actor.Role != identity.RoleSpecialist {
		return nil, ErrActionNotAllowed
	}
	if weekday < time.Sunday || weekday > time.Saturday {
		return nil, fmt.Errorf("%w: weekday out of range", ErrInvalidWindow)
	}
	from, err := parseTimeOfDay(startTime)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWindow, err)
	}
	until, err := parseTimeOfDay(endTime)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWindow, err)
	}
	if until.minutes() <= from.minutes() {
		return nil, fmt.Errorf("%w: end time must be after start time", ErrInvalidWindow)
	}
	if slotMinutes < MinSlotMinutes {
		return nil, fmt.Errorf("%w: slot length must be at least %d minutes", ErrInvalidWindow, MinSlotMinutes)
	}

	existing, err := s.windows.ListBySpecialist(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("load existing windows: %w", err)
	}
	for _, w := range existing {
		if !w.Active || w.Weekday != weekday {
			continue
		}
		wFrom, err := parseTimeOfDay(w.StartTime)
		if err != nil {
			continue
		}
		wUntil, err := parseTimeOfDay(w.EndTime)
		if err != nil {
			continue
		}
		if from.minutes() < wUntil.minutes() && wFrom.minutes() < until.minutes() {
			return nil, ErrWindowOverlap
		}
	}

	window := &AvailabilityWindow{
		SpecialistID: actor.ID,
		SpecialtyID:  specialtyID,
		Weekday:      weekday,
		StartTime:    minutesToClock(from.minutes()),
		EndTime:      minutesToClock(until.minutes()),
		SlotMinutes:  slotMinutes,
		Active:       true,
	}
	if err := s.windows.CreateWindow(ctx, window); err != nil {
		return nil, err
	}

	s.logger.Info("availability window created",
		zap.Stringer("window_id", window.ID),
		zap.Stringer("specialist_id", actor.ID),
		zap.Int("weekday", int(weekday)),
	)
	return window, nil
}

// ListMyAvailability returns all windows the acting specialist owns,
// active and deactivated alike.
func (s *Service) ListMyAvailability(ctx context.Context, actor identity.Actor) ([]AvailabilityWindow, error) {
	if actor.Role != identity.RoleSpecialist {
		return nil, ErrActionNotAllowed
	}
	return s.windows.ListBySpecialist(ctx, actor.ID)
}

func (s *Service) DeactivateAvailabilityWindow(ctx context.Context, actor identity.Actor, id uuid.UUID) error {
	if actor.Role != identity.RoleSpecialist {
		return ErrActionNotAllowed
	}
	return s.windows.DeactivateWindow(ctx, id, actor.ID)
}

func (s *Service) today() time.Time {
	now := s.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

// normalizeSlot validates the wire shape of a booking target and
// canonicalizes it to zero-padded "YYYY-MM-DD" and "HH:MM".
func normalizeSlot(date, clock string) (string, string, error) {
	d, err := time.Parse(dateLayout, date)
	if err != nil {
		return "", "", ErrInvalidSlot
	}
	t, err := parseTimeOfDay(clock)
	if err != nil {
		return "", "", ErrInvalidSlot
	}
	return d.Format(dateLayout), minutesToClock(t.minutes()), nil
}
