package scheduling

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clinicaonline/scheduling/internal/identity"
)

// -- In-memory fakes --
//
// The appointment fake mirrors the store's guarantees: every mutation is a
// single atomic conditional write under one mutex, including the
// occupying-slot uniqueness check that the real store enforces with a
// partial unique index.

type fakeWindowRepo struct {
	mu      sync.Mutex
	windows map[uuid.UUID]AvailabilityWindow
}

func newFakeWindowRepo() *fakeWindowRepo {
	return &fakeWindowRepo{windows: make(map[uuid.UUID]AvailabilityWindow)}
}

func (f *fakeWindowRepo) ListActive(_ context.Context, specialistID, specialtyID uuid.UUID) ([]AvailabilityWindow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []AvailabilityWindow
	for _, w := range f.windows {
		if w.Active && w.SpecialistID == specialistID && w.SpecialtyID == specialtyID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (f *fakeWindowRepo) ListBySpecialist(_ context.Context, specialistID uuid.UUID) ([]AvailabilityWindow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []AvailabilityWindow
	for _, w := range f.windows {
		if w.SpecialistID == specialistID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (f *fakeWindowRepo) CreateWindow(_ context.Context, w *AvailabilityWindow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	w.CreatedAt = time.Now()
	w.UpdatedAt = w.CreatedAt
	f.windows[w.ID] = *w
	return nil
}

func (f *fakeWindowRepo) DeactivateWindow(_ context.Context, id, specialistID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.windows[id]
	if !ok || w.SpecialistID != specialistID || !w.Active {
		return ErrWindowNotFound
	}
	w.Active = false
	w.UpdatedAt = time.Now()
	f.windows[id] = w
	return nil
}

type fakeAppointmentRepo struct {
	mu    sync.Mutex
	appts map[uuid.UUID]Appointment
}

func newFakeAppointmentRepo() *fakeAppointmentRepo {
	return &fakeAppointmentRepo{appts: make(map[uuid.UUID]Appointment)}
}

func (f *fakeAppointmentRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appts[id]
	if !ok {
		return nil, ErrActionNotAllowed
	}
	return &a, nil
}

func (f *fakeAppointmentRepo) ListOccupiedBetween(_ context.Context, specialistID, specialtyID uuid.UUID, fromDate, toDate string) ([]Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Appointment
	for _, a := range f.appts {
		if a.SpecialistID == specialistID && a.SpecialtyID == specialtyID &&
			a.Status.Occupying() && a.Date >= fromDate && a.Date < toDate {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAppointmentRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Appointment
	for _, a := range f.appts {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAppointmentRepo) ListBySpecialist(_ context.Context, specialistID uuid.UUID) ([]Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Appointment
	for _, a := range f.appts {
		if a.SpecialistID == specialistID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAppointmentRepo) ListAll(_ context.Context) ([]Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Appointment, 0, len(f.appts))
	for _, a := range f.appts {
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeAppointmentRepo) Create(_ context.Context, a *Appointment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.appts {
		if existing.SpecialistID == a.SpecialistID && existing.Date == a.Date &&
			existing.Time == a.Time && existing.Status.Occupying() {
			return ErrSlotTaken
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.Status = StatusRequested
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	f.appts[a.ID] = *a
	return nil
}

func (f *fakeAppointmentRepo) Transition(_ context.Context, id uuid.UUID, from []Status, to Status, owner OwnerFilter, upd TransitionUpdate) (*Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, ok := f.appts[id]
	if !ok {
		return nil, ErrActionNotAllowed
	}
	statusOK := false
	for _, s := range from {
		if a.Status == s {
			statusOK = true
		}
	}
	if !statusOK {
		return nil, ErrActionNotAllowed
	}
	if owner.SpecialistID != nil && a.SpecialistID != *owner.SpecialistID {
		return nil, ErrActionNotAllowed
	}
	if owner.PatientID != nil && a.PatientID != *owner.PatientID {
		return nil, ErrActionNotAllowed
	}

	a.Status = to
	if upd.RejectionReason != nil {
		a.RejectionReason = upd.RejectionReason
	}
	if upd.CancellationReason != nil {
		a.CancellationReason = upd.CancellationReason
	}
	if upd.SpecialistNote != nil {
		a.SpecialistNote = upd.SpecialistNote
	}
	a.UpdatedAt = time.Now()
	f.appts[id] = a
	return &a, nil
}

type fakeSpecialtyRepo struct {
	specialties []Specialty
}

func (f *fakeSpecialtyRepo) ListSpecialties(_ context.Context) ([]Specialty, error) {
	return f.specialties, nil
}

// noopLocker runs the critical section directly; the fake repository's
// mutex provides the atomicity.
type noopLocker struct{}

func (noopLocker) WithSlotLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// -- Fixture --

type fixture struct {
	svc          *Service
	windows      *fakeWindowRepo
	appointments *fakeAppointmentRepo
	specialist   identity.Actor
	patient      identity.Actor
	admin        identity.Actor
	specialtyID  uuid.UUID
}

func newFixture(t *testing.T, horizonDays int) *fixture {
	t.Helper()
	windows := newFakeWindowRepo()
	appointments := newFakeAppointmentRepo()
	specialties := &fakeSpecialtyRepo{}

	svc := NewService(windows, appointments, specialties, noopLocker{}, horizonDays, zap.NewNop())
	svc.now = func() time.Time { return monday.Add(8 * time.Hour) } // Monday 08:00

	return &fixture{
		svc:          svc,
		windows:      windows,
		appointments: appointments,
		specialist:   identity.Actor{ID: uuid.New(), Role: identity.RoleSpecialist},
		patient:      identity.Actor{ID: uuid.New(), Role: identity.RolePatient},
		admin:        identity.Actor{ID: uuid.New(), Role: identity.RoleAdmin},
		specialtyID:  uuid.New(),
	}
}

func (fx *fixture) addMondayWindow(t *testing.T) {
	t.Helper()
	_, err := fx.svc.CreateAvailabilityWindow(context.Background(), fx.specialist,
		fx.specialtyID, time.Monday, "09:00", "10:00", 30)
	require.NoError(t, err)
}

// -- Booking round trip --

func TestBookingRoundTrip(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, 7)
	fx.addMondayWindow(t)

	slots, err := fx.svc.ListAvailableSlots(ctx, fx.specialist.ID, fx.specialtyID)
	require.NoError(t, err)
	require.Equal(t, []Slot{
		{Date: "2026-01-05", Time: "09:00"},
		{Date: "2026-01-05", Time: "09:30"},
	}, slots)

	appt, err := fx.svc.RequestAppointment(ctx, fx.patient, fx.specialist.ID, fx.specialtyID, "2026-01-05", "09:00")
	require.NoError(t, err)
	assert.Equal(t, StatusRequested, appt.Status)
	assert.Equal(t, fx.patient.ID, appt.PatientID)

	slots, err = fx.svc.ListAvailableSlots(ctx, fx.specialist.ID, fx.specialtyID)
	require.NoError(t, err)
	require.Equal(t, []Slot{{Date: "2026-01-05", Time: "09:30"}}, slots)

	// Rejection frees the slot on the next generation.
	_, err = fx.svc.RejectAppointment(ctx, fx.specialist, appt.ID, "overbooked that day")
	require.NoError(t, err)

	slots, err = fx.svc.ListAvailableSlots(ctx, fx.specialist.ID, fx.specialtyID)
	require.NoError(t, err)
	require.Len(t, slots, 2)
}

func TestBookingSameSlotTwice(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, 7)
	fx.addMondayWindow(t)

	_, err := fx.svc.RequestAppointment(ctx, fx.patient, fx.specialist.ID, fx.specialtyID, "2026-01-05", "09:00")
	require.NoError(t, err)

	other := identity.Actor{ID: uuid.New(), Role: identity.RolePatient}
	_, err = fx.svc.RequestAppointment(ctx, other, fx.specialist.ID, fx.specialtyID, "2026-01-05", "09:00")
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestBookingRace(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, 7)
	fx.addMondayWindow(t)

	const racers = 8
	errs := make(chan error, racers)
	var start sync.WaitGroup
	start.Add(1)

	for i := 0; i < racers; i++ {
		go func() {
			patient := identity.Actor{ID: uuid.New(), Role: identity.RolePatient}
			start.Wait()
			_, err := fx.svc.RequestAppointment(ctx, patient, fx.specialist.ID, fx.specialtyID, "2026-01-05", "09:00")
			errs <- err
		}()
	}
	start.Done()

	var successes, taken int
	for i := 0; i < racers; i++ {
		err := <-errs
		switch {
		case err == nil:
			successes++
		case assert.ErrorIs(t, err, ErrSlotTaken):
			taken++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, racers-1, taken)
}

func TestBookingValidation(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, 7)
	fx.addMondayWindow(t)

	_, err := fx.svc.RequestAppointment(ctx, fx.specialist, fx.specialist.ID, fx.specialtyID, "2026-01-05", "09:00")
	assert.ErrorIs(t, err, ErrActionNotAllowed, "only patients book")

	_, err = fx.svc.RequestAppointment(ctx, fx.patient, fx.specialist.ID, fx.specialtyID, "05/01/2026", "09:00")
	assert.ErrorIs(t, err, ErrInvalidSlot)

	_, err = fx.svc.RequestAppointment(ctx, fx.patient, fx.specialist.ID, fx.specialtyID, "2026-01-05", "nine")
	assert.ErrorIs(t, err, ErrInvalidSlot)
}

// -- Lifecycle transitions --

func TestAcceptOwnershipGuard(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, 7)
	fx.addMondayWindow(t)

	appt, err := fx.svc.RequestAppointment(ctx, fx.patient, fx.specialist.ID, fx.specialtyID, "2026-01-05", "09:00")
	require.NoError(t, err)

	stranger := identity.Actor{ID: uuid.New(), Role: identity.RoleSpecialist}
	_, err = fx.svc.AcceptAppointment(ctx, stranger, appt.ID)
	assert.ErrorIs(t, err, ErrActionNotAllowed)

	accepted, err := fx.svc.AcceptAppointment(ctx, fx.specialist, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, accepted.Status)

	// Accept is not legal twice.
	_, err = fx.svc.AcceptAppointment(ctx, fx.specialist, appt.ID)
	assert.ErrorIs(t, err, ErrActionNotAllowed)
}

func TestRejectRequiresReason(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, 7)
	fx.addMondayWindow(t)

	appt, err := fx.svc.RequestAppointment(ctx, fx.patient, fx.specialist.ID, fx.specialtyID, "2026-01-05", "09:00")
	require.NoError(t, err)

	_, err = fx.svc.RejectAppointment(ctx, fx.specialist, appt.ID, "   ")
	assert.ErrorIs(t, err, ErrReasonRequired)

	rejected, err := fx.svc.RejectAppointment(ctx, fx.specialist, appt.ID, "not my specialty")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectionReason)
	assert.Equal(t, "not my specialty", *rejected.RejectionReason)
}

func TestCompleteNoteMayBeEmptyButMustBeSupplied(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, 7)
	fx.addMondayWindow(t)

	appt, err := fx.svc.RequestAppointment(ctx, fx.patient, fx.specialist.ID, fx.specialtyID, "2026-01-05", "09:00")
	require.NoError(t, err)

	// Completion is only legal from ACCEPTED.
	note := "all good"
	_, err = fx.svc.CompleteAppointment(ctx, fx.specialist, appt.ID, &note)
	assert.ErrorIs(t, err, ErrActionNotAllowed)

	_, err = fx.svc.AcceptAppointment(ctx, fx.specialist, appt.ID)
	require.NoError(t, err)

	_, err = fx.svc.CompleteAppointment(ctx, fx.specialist, appt.ID, nil)
	assert.ErrorIs(t, err, ErrNoteRequired)

	empty := ""
	done, err := fx.svc.CompleteAppointment(ctx, fx.specialist, appt.ID, &empty)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	require.NotNil(t, done.SpecialistNote)
	assert.Equal(t, "", *done.SpecialistNote)
}

func TestCancelScopes(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, 7)
	fx.addMondayWindow(t)

	appt, err := fx.svc.RequestAppointment(ctx, fx.patient, fx.specialist.ID, fx.specialtyID, "2026-01-05", "09:00")
	require.NoError(t, err)

	otherPatient := identity.Actor{ID: uuid.New(), Role: identity.RolePatient}
	_, err = fx.svc.CancelAppointment(ctx, otherPatient, appt.ID, "changed my mind")
	assert.ErrorIs(t, err, ErrActionNotAllowed)

	cancelled, err := fx.svc.CancelAppointment(ctx, fx.patient, appt.ID, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	// Admin may cancel any appointment in a live status.
	second, err := fx.svc.RequestAppointment(ctx, fx.patient, fx.specialist.ID, fx.specialtyID, "2026-01-05", "09:30")
	require.NoError(t, err)
	_, err = fx.svc.CancelAppointment(ctx, fx.admin, second.ID, "clinic closure")
	require.NoError(t, err)

	// Terminal: no further transitions.
	_, err = fx.svc.CancelAppointment(ctx, fx.admin, second.ID, "again")
	assert.ErrorIs(t, err, ErrActionNotAllowed)
}

func TestCancelledSlotIsBookableAgain(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, 7)
	fx.addMondayWindow(t)

	appt, err := fx.svc.RequestAppointment(ctx, fx.patient, fx.specialist.ID, fx.specialtyID, "2026-01-05", "09:00")
	require.NoError(t, err)
	_, err = fx.svc.CancelAppointment(ctx, fx.patient, appt.ID, "conflict")
	require.NoError(t, err)

	other := identity.Actor{ID: uuid.New(), Role: identity.RolePatient}
	_, err = fx.svc.RequestAppointment(ctx, other, fx.specialist.ID, fx.specialtyID, "2026-01-05", "09:00")
	require.NoError(t, err)
}

// -- Listings --

func TestListAppointmentsRoleScoping(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, 7)
	fx.addMondayWindow(t)

	otherPatient := identity.Actor{ID: uuid.New(), Role: identity.RolePatient}
	_, err := fx.svc.RequestAppointment(ctx, fx.patient, fx.specialist.ID, fx.specialtyID, "2026-01-05", "09:00")
	require.NoError(t, err)
	_, err = fx.svc.RequestAppointment(ctx, otherPatient, fx.specialist.ID, fx.specialtyID, "2026-01-05", "09:30")
	require.NoError(t, err)

	mine, err := fx.svc.ListAppointments(ctx, fx.patient)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	specialists, err := fx.svc.ListAppointments(ctx, fx.specialist)
	require.NoError(t, err)
	assert.Len(t, specialists, 2)

	all, err := fx.svc.ListAppointments(ctx, fx.admin)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

// -- Availability editing --

func TestCreateWindowValidation(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, 7)

	_, err := fx.svc.CreateAvailabilityWindow(ctx, fx.patient, fx.specialtyID, time.Monday, "09:00", "10:00", 30)
	assert.ErrorIs(t, err, ErrActionNotAllowed)

	_, err = fx.svc.CreateAvailabilityWindow(ctx, fx.specialist, fx.specialtyID, time.Weekday(7), "09:00", "10:00", 30)
	assert.ErrorIs(t, err, ErrInvalidWindow)

	_, err = fx.svc.CreateAvailabilityWindow(ctx, fx.specialist, fx.specialtyID, time.Monday, "9am", "10:00", 30)
	assert.ErrorIs(t, err, ErrInvalidWindow)

	_, err = fx.svc.CreateAvailabilityWindow(ctx, fx.specialist, fx.specialtyID, time.Monday, "10:00", "09:00", 30)
	assert.ErrorIs(t, err, ErrInvalidWindow)

	_, err = fx.svc.CreateAvailabilityWindow(ctx, fx.specialist, fx.specialtyID, time.Monday, "09:00", "10:00", 15)
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestCreateWindowRejectsOverlap(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, 7)
	fx.addMondayWindow(t)

	_, err := fx.svc.CreateAvailabilityWindow(ctx, fx.specialist, fx.specialtyID, time.Monday, "09:30", "11:00", 30)
	assert.ErrorIs(t, err, ErrWindowOverlap)

	// Overlap is checked per (specialist, weekday) across specialties.
	otherSpecialty := uuid.New()
	_, err = fx.svc.CreateAvailabilityWindow(ctx, fx.specialist, otherSpecialty, time.Monday, "09:30", "11:00", 30)
	assert.ErrorIs(t, err, ErrWindowOverlap)

	// Adjacent is not overlapping.
	_, err = fx.svc.CreateAvailabilityWindow(ctx, fx.specialist, fx.specialtyID, time.Monday, "10:00", "11:00", 30)
	require.NoError(t, err)

	// Same range on another weekday is fine.
	_, err = fx.svc.CreateAvailabilityWindow(ctx, fx.specialist, fx.specialtyID, time.Tuesday, "09:00", "10:00", 30)
	require.NoError(t, err)
}

func TestDeactivateWindowHidesSlots(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, 7)

	window, err := fx.svc.CreateAvailabilityWindow(ctx, fx.specialist, fx.specialtyID, time.Monday, "09:00", "10:00", 30)
	require.NoError(t, err)

	stranger := identity.Actor{ID: uuid.New(), Role: identity.RoleSpecialist}
	err = fx.svc.DeactivateAvailabilityWindow(ctx, stranger, window.ID)
	assert.ErrorIs(t, err, ErrWindowNotFound)

	err = fx.svc.DeactivateAvailabilityWindow(ctx, fx.specialist, window.ID)
	require.NoError(t, err)

	slots, err := fx.svc.ListAvailableSlots(ctx, fx.specialist.ID, fx.specialtyID)
	require.NoError(t, err)
	assert.Empty(t, slots)

	// Deactivation is not repeatable and the window is retained.
	err = fx.svc.DeactivateAvailabilityWindow(ctx, fx.specialist, window.ID)
	assert.ErrorIs(t, err, ErrWindowNotFound)

	kept, err := fx.svc.ListMyAvailability(ctx, fx.specialist)
	require.NoError(t, err)
	require.Len(t, kept, 1)
	assert.False(t, kept[0].Active)
}

func TestUnknownSpecialistYieldsEmptySlots(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, 7)

	slots, err := fx.svc.ListAvailableSlots(ctx, uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, slots)
}
