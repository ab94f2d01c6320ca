package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgRepository implements the availability, appointment and specialty
// repositories on a single pgx pool.
type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `
	id, specialty_id, specialist_id, patient_id,
	to_char(date, 'YYYY-MM-DD'), to_char(time, 'HH24:MI'),
	status, rejection_reason, cancellation_reason, specialist_note,
	created_at, updated_at`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.SpecialtyID,
		&a.SpecialistID,
		&a.PatientID,
		&a.Date,
		&a.Time,
		&a.Status,
		&a.RejectionReason,
		&a.CancellationReason,
		&a.SpecialistNote,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrActionNotAllowed
		}
		return nil, err
	}
	return &a, nil
}

func scanWindow(row pgx.Row) (*AvailabilityWindow, error) {
	var w AvailabilityWindow
	var weekday int
	err := row.Scan(
		&w.ID,
		&w.SpecialistID,
		&w.SpecialtyID,
		&weekday,
		&w.StartTime,
		&w.EndTime,
		&w.SlotMinutes,
		&w.Active,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	w.Weekday = time.Weekday(weekday)
	return &w, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Availability

const windowColumns = `
	id, specialist_id, specialty_id, weekday,
	to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'),
	slot_minutes, active, created_at, updated_at`

func (r *PgRepository) ListActive(ctx context.Context, specialistID, specialtyID uuid.UUID) ([]AvailabilityWindow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+windowColumns+`
		FROM availability_windows
		WHERE specialist_id = $1 AND specialty_id = $2 AND active
		ORDER BY weekday, start_time
	`, specialistID, specialtyID)
	if err != nil {
		return nil, err
	}
	return collectWindows(rows)
}

func (r *PgRepository) ListBySpecialist(ctx context.Context, specialistID uuid.UUID) ([]AvailabilityWindow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+windowColumns+`
		FROM availability_windows
		WHERE specialist_id = $1
		ORDER BY weekday, start_time
	`, specialistID)
	if err != nil {
		return nil, err
	}
	return collectWindows(rows)
}

func collectWindows(rows pgx.Rows) ([]AvailabilityWindow, error) {
	defer rows.Close()

	var result []AvailabilityWindow
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) CreateWindow(ctx context.Context, w *AvailabilityWindow) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO availability_windows
			(id, specialist_id, specialty_id, weekday, start_time, end_time, slot_minutes, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::time, $6::time, $7, true, now(), now())
		RETURNING `+windowColumns+`
	`, w.ID, w.SpecialistID, w.SpecialtyID, int(w.Weekday), w.StartTime, w.EndTime, w.SlotMinutes)

	created, err := scanWindow(row)
	if err != nil {
		return fmt.Errorf("create availability window: %w", err)
	}
	*w = *created
	return nil
}

func (r *PgRepository) DeactivateWindow(ctx context.Context, id, specialistID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE availability_windows
		SET active = false,
		    updated_at = now()
		WHERE id = $1
		  AND specialist_id = $2
		  AND active
	`, id, specialistID)
	if err != nil {
		return fmt.Errorf("deactivate availability window: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrWindowNotFound
	}
	return nil
}

// Appointments

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListOccupiedBetween(ctx context.Context, specialistID, specialtyID uuid.UUID, fromDate, toDate string) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE specialist_id = $1
		  AND specialty_id = $2
		  AND date >= $3::date
		  AND date < $4::date
		  AND status = ANY($5)
	`, specialistID, specialtyID, fromDate, toDate, statusStrings(OccupyingStatuses))
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY date, time
	`, patientID)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// pgAppointmentRepo restricts PgRepository to the AppointmentRepository
// interface; the wrapper exists because ListBySpecialist returns windows
// on PgRepository itself and appointments here.
type pgAppointmentRepo struct {
	*PgRepository
}

// Appointments returns the repository's AppointmentRepository view.
func (r *PgRepository) Appointments() AppointmentRepository {
	return pgAppointmentRepo{r}
}

func (r pgAppointmentRepo) ListBySpecialist(ctx context.Context, specialistID uuid.UUID) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE specialist_id = $1
		ORDER BY date, time
	`, specialistID)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListAll(ctx context.Context) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		ORDER BY date, time
	`)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments
			(id, specialty_id, specialist_id, patient_id, date, time, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::date, $6::time, 'REQUESTED', now(), now())
		RETURNING `+appointmentColumns+`
	`, a.ID, a.SpecialtyID, a.SpecialistID, a.PatientID, a.Date, a.Time)

	created, err := scanAppointment(row)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("create appointment: %w", err)
	}
	*a = *created
	return nil
}

func (r *PgRepository) Transition(ctx context.Context, id uuid.UUID, from []Status, to Status, owner OwnerFilter, upd TransitionUpdate) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    rejection_reason = COALESCE($3, rejection_reason),
		    cancellation_reason = COALESCE($4, cancellation_reason),
		    specialist_note = COALESCE($5, specialist_note),
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($6)
		  AND ($7::uuid IS NULL OR specialist_id = $7)
		  AND ($8::uuid IS NULL OR patient_id = $8)
		RETURNING `+appointmentColumns+`
	`, id, to, upd.RejectionReason, upd.CancellationReason, upd.SpecialistNote,
		statusStrings(from), owner.SpecialistID, owner.PatientID)

	return scanAppointment(row)
}

// Specialties

func (r *PgRepository) ListSpecialties(ctx context.Context) ([]Specialty, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, active, created_at
		FROM specialties
		WHERE active
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Specialty
	for rows.Next() {
		var sp Specialty
		if err := rows.Scan(&sp.ID, &sp.Name, &sp.Active, &sp.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
