package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgxpool.Pool the repository needs.
// pgxmock satisfies it in tests.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PgRepository struct {
	pool Querier
}

func NewPgRepository(pool Querier) *PgRepository {
	return &PgRepository{pool: pool}
}

// storageErr classifies every non-not-found database failure as
// transient so callers can retry with backoff.
func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, op, err)
}

// Scan helpers

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var email *string

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Specialization,
		&email,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, storageErr("scan doctor", err)
	}

	d.Email = email
	return &d, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, storageErr("scan patient", err)
	}

	p.Email = email
	return &p, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var date time.Time
	var symptoms, notes *string

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&date,
		&a.TimeSlot,
		&a.Status,
		&symptoms,
		&notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, storageErr("scan appointment", err)
	}

	a.Date = date.Format(DateLayout)
	a.Symptoms = symptoms
	a.Notes = notes
	return &a, nil
}

const appointmentColumns = `id, doctor_id, patient_id, date, time_slot, status, symptoms, notes, created_at, updated_at`

// Interface methods

func (r *PgRepository) GetDoctorByName(ctx context.Context, name string) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialization, email, created_at, updated_at
		FROM doctors
		WHERE name = $1
	`, name)
	return scanDoctor(row)
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialization, email, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) ListDoctors(ctx context.Context) ([]Doctor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, specialization, email, created_at, updated_at
		FROM doctors
		ORDER BY name
	`)
	if err != nil {
		return nil, storageErr("list doctors", err)
	}
	defer rows.Close()

	var result []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr("list doctors", err)
	}

	return result, nil
}

func (r *PgRepository) CreateDoctor(ctx context.Context, name, specialization string, email *string) (*Doctor, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO doctors (id, name, specialization, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (name) DO NOTHING
		RETURNING id, name, specialization, email, created_at, updated_at
	`, id, name, specialization, email)

	d, err := scanDoctor(row)
	if errors.Is(err, ErrDoctorNotFound) {
		// the conflict swallowed the insert
		return nil, ErrDoctorExists
	}
	return d, err
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetScheduledSlots(ctx context.Context, doctorID uuid.UUID, date string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT time_slot
		FROM appointments
		WHERE doctor_id = $1
		  AND date = $2::date
		  AND status = 'scheduled'
		ORDER BY time_slot
	`, doctorID, date)
	if err != nil {
		return nil, storageErr("get scheduled slots", err)
	}
	defer rows.Close()

	var slots []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, storageErr("scan slot", err)
		}
		slots = append(slots, s)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr("get scheduled slots", err)
	}

	return slots, nil
}

// InsertAppointmentIfAbsent relies on the partial unique index on
// (doctor_id, date, time_slot) WHERE status = 'scheduled'. Two
// concurrent inserts for the same triple can never both land: the
// loser gets zero rows back and is told the slot is booked.
func (r *PgRepository) InsertAppointmentIfAbsent(ctx context.Context, p InsertParams) (*Appointment, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, doctor_id, patient_id, date, time_slot, status, symptoms, created_at, updated_at)
		VALUES ($1, $2, $3, $4::date, $5, 'scheduled', $6, now(), now())
		ON CONFLICT (doctor_id, date, time_slot) WHERE status = 'scheduled' DO NOTHING
		RETURNING `+appointmentColumns+`
	`, id, p.DoctorID, p.PatientID, p.Date, p.TimeSlot, p.Symptoms)

	a, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, ErrAlreadyBooked
	}
	return a, err
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)

	return scanAppointment(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, f ListFilter) ([]AppointmentDetail, error) {
	var patientID, doctorID *uuid.UUID
	if f.PatientID != uuid.Nil {
		patientID = &f.PatientID
	}
	if f.DoctorID != uuid.Nil {
		doctorID = &f.DoctorID
	}
	var date *string
	if f.Date != "" {
		date = &f.Date
	}

	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.doctor_id, a.patient_id, a.date, a.time_slot, a.status,
		       a.symptoms, a.notes, a.created_at, a.updated_at,
		       p.name, d.name
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		JOIN doctors d ON d.id = a.doctor_id
		WHERE ($1::uuid IS NULL OR a.patient_id = $1)
		  AND ($2::uuid IS NULL OR a.doctor_id = $2)
		  AND ($3::date IS NULL OR a.date = $3::date)
		ORDER BY a.date, a.time_slot
	`, patientID, doctorID, date)
	if err != nil {
		return nil, storageErr("list appointments", err)
	}
	defer rows.Close()

	var result []AppointmentDetail
	for rows.Next() {
		var ad AppointmentDetail
		var date time.Time
		var symptoms, notes *string

		err := rows.Scan(
			&ad.ID,
			&ad.DoctorID,
			&ad.PatientID,
			&date,
			&ad.TimeSlot,
			&ad.Status,
			&symptoms,
			&notes,
			&ad.CreatedAt,
			&ad.UpdatedAt,
			&ad.PatientName,
			&ad.DoctorName,
		)
		if err != nil {
			return nil, storageErr("scan appointment detail", err)
		}

		ad.Date = date.Format(DateLayout)
		ad.Symptoms = symptoms
		ad.Notes = notes
		result = append(result, ad)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr("list appointments", err)
	}

	return result, nil
}

func (r *PgRepository) FindPastScheduled(ctx context.Context, date, timeSlot string) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'scheduled'
		  AND (date < $1::date OR (date = $1::date AND time_slot < $2))
	`, date, timeSlot)
	if err != nil {
		return nil, storageErr("find past scheduled", err)
	}
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
		return nil, storageErr("find past scheduled", err)
	}

	return result, nil
}

func (r *PgRepository) CountByDoctorAndDate(ctx context.Context, doctorID uuid.UUID, date string) (StatusCounts, error) {
	var c StatusCounts

	err := r.pool.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE status = 'scheduled'),
		       count(*) FILTER (WHERE status = 'completed'),
		       count(*) FILTER (WHERE status = 'cancelled')
		FROM appointments
		WHERE doctor_id = $1
		  AND date = $2::date
	`, doctorID, date).Scan(&c.Total, &c.Scheduled, &c.Completed, &c.Cancelled)
	if err != nil {
		return StatusCounts{}, storageErr("count by doctor and date", err)
	}

	return c, nil
}

func (r *PgRepository) CountCompletedOn(ctx context.Context, doctorID uuid.UUID, date string) (int, error) {
	var n int

	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE doctor_id = $1
		  AND date = $2::date
		  AND status = 'completed'
	`, doctorID, date).Scan(&n)
	if err != nil {
		return 0, storageErr("count completed", err)
	}

	return n, nil
}

func (r *PgRepository) CountBySymptom(ctx context.Context, doctorID uuid.UUID, symptom string) (int, error) {
	var n int

	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE doctor_id = $1
		  AND symptoms ILIKE '%' || $2 || '%'
	`, doctorID, symptom).Scan(&n)
	if err != nil {
		return 0, storageErr("count by symptom", err)
	}

	return n, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return storageErr("insert event log", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
