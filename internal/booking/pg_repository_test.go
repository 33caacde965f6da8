package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*PgRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPgRepository(mock), mock
}

var fixedTime = time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)

func doctorRow(id uuid.UUID, name string) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "name", "specialization", "email", "created_at", "updated_at"}).
		AddRow(id, name, "Cardiology", (*string)(nil), fixedTime, fixedTime)
}

func appointmentRow(id, doctorID, patientID uuid.UUID, date time.Time, slot string, status AppointmentStatus) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "doctor_id", "patient_id", "date", "time_slot", "status",
		"symptoms", "notes", "created_at", "updated_at",
	}).AddRow(id, doctorID, patientID, date, slot, status, (*string)(nil), (*string)(nil), fixedTime, fixedTime)
}

func TestPgGetDoctorByName(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectQuery("FROM doctors").
		WithArgs("Dr. Adams").
		WillReturnRows(doctorRow(id, "Dr. Adams"))

	doctor, err := repo.GetDoctorByName(context.Background(), "Dr. Adams")
	require.NoError(t, err)
	assert.Equal(t, id, doctor.ID)
	assert.Equal(t, "Dr. Adams", doctor.Name)
	assert.Nil(t, doctor.Email)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgGetDoctorByNameNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("FROM doctors").
		WithArgs("Dr. Nobody").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetDoctorByName(context.Background(), "Dr. Nobody")
	assert.ErrorIs(t, err, ErrDoctorNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgGetDoctorByNameStorageError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("FROM doctors").
		WithArgs("Dr. Adams").
		WillReturnError(errors.New("connection reset"))

	_, err := repo.GetDoctorByName(context.Background(), "Dr. Adams")
	assert.ErrorIs(t, err, ErrStorageUnavailable)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgCreateDoctorConflict(t *testing.T) {
	repo, mock := newMockRepo(t)

	// ON CONFLICT DO NOTHING returns zero rows for a duplicate name
	mock.ExpectQuery("INSERT INTO doctors").
		WithArgs(pgxmock.AnyArg(), "Dr. Adams", "Cardiology", (*string)(nil)).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.CreateDoctor(context.Background(), "Dr. Adams", "Cardiology", nil)
	assert.ErrorIs(t, err, ErrDoctorExists)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgGetScheduledSlots(t *testing.T) {
	repo, mock := newMockRepo(t)
	doctorID := uuid.New()

	mock.ExpectQuery("SELECT time_slot").
		WithArgs(doctorID, "2024-01-15").
		WillReturnRows(pgxmock.NewRows([]string{"time_slot"}).
			AddRow("09:30").
			AddRow("11:00"))

	slots, err := repo.GetScheduledSlots(context.Background(), doctorID, "2024-01-15")
	require.NoError(t, err)
	assert.Equal(t, []string{"09:30", "11:00"}, slots)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgInsertAppointmentIfAbsent(t *testing.T) {
	repo, mock := newMockRepo(t)
	doctorID, patientID := uuid.New(), uuid.New()
	apptID := uuid.New()
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), doctorID, patientID, "2024-01-15", "09:30", (*string)(nil)).
		WillReturnRows(appointmentRow(apptID, doctorID, patientID, date, "09:30", StatusScheduled))

	appt, err := repo.InsertAppointmentIfAbsent(context.Background(), InsertParams{
		DoctorID:  doctorID,
		PatientID: patientID,
		Date:      "2024-01-15",
		TimeSlot:  "09:30",
	})
	require.NoError(t, err)
	assert.Equal(t, apptID, appt.ID)
	assert.Equal(t, "2024-01-15", appt.Date)
	assert.Equal(t, StatusScheduled, appt.Status)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgInsertAppointmentIfAbsentConflict(t *testing.T) {
	repo, mock := newMockRepo(t)
	doctorID, patientID := uuid.New(), uuid.New()

	// the partial unique index swallowed the insert: zero rows back
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), doctorID, patientID, "2024-01-15", "09:30", (*string)(nil)).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.InsertAppointmentIfAbsent(context.Background(), InsertParams{
		DoctorID:  doctorID,
		PatientID: patientID,
		Date:      "2024-01-15",
		TimeSlot:  "09:30",
	})
	assert.ErrorIs(t, err, ErrAlreadyBooked)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgUpdateAppointmentStatus(t *testing.T) {
	repo, mock := newMockRepo(t)
	apptID, doctorID, patientID := uuid.New(), uuid.New(), uuid.New()
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("UPDATE appointments").
		WithArgs(apptID, StatusCancelled, StatusScheduled).
		WillReturnRows(appointmentRow(apptID, doctorID, patientID, date, "09:30", StatusCancelled))

	appt, err := repo.UpdateAppointmentStatus(context.Background(), apptID, StatusScheduled, StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, appt.Status)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgUpdateAppointmentStatusNoMatch(t *testing.T) {
	repo, mock := newMockRepo(t)
	apptID := uuid.New()

	mock.ExpectQuery("UPDATE appointments").
		WithArgs(apptID, StatusCompleted, StatusScheduled).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.UpdateAppointmentStatus(context.Background(), apptID, StatusScheduled, StatusCompleted)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgCountByDoctorAndDate(t *testing.T) {
	repo, mock := newMockRepo(t)
	doctorID := uuid.New()

	mock.ExpectQuery("FILTER").
		WithArgs(doctorID, "2024-01-10").
		WillReturnRows(pgxmock.NewRows([]string{"total", "scheduled", "completed", "cancelled"}).
			AddRow(5, 2, 2, 1))

	counts, err := repo.CountByDoctorAndDate(context.Background(), doctorID, "2024-01-10")
	require.NoError(t, err)
	assert.Equal(t, StatusCounts{Total: 5, Scheduled: 2, Completed: 2, Cancelled: 1}, counts)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgInsertEvent(t *testing.T) {
	repo, mock := newMockRepo(t)
	apptID := uuid.New()

	mock.ExpectExec("INSERT INTO event_logs").
		WithArgs(EventBookingConfirmed, &apptID, []byte(`{}`), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.InsertEvent(context.Background(), EventLog{
		EventType:     EventBookingConfirmed,
		AppointmentID: &apptID,
		Payload:       []byte(`{}`),
		CreatedAt:     fixedTime,
	})
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}
