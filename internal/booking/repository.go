package booking

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrDoctorExists        = errors.New("doctor already exists")
	ErrAlreadyBooked       = errors.New("slot already has a scheduled appointment")

	// ErrStorageUnavailable marks transient persistence failures the
	// caller may retry with backoff. The service itself never retries.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// ListFilter narrows an appointment listing. Zero values mean "any".
type ListFilter struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Date      string
}

// InsertParams carries everything needed to persist a new scheduled
// appointment.
type InsertParams struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Date      string
	TimeSlot  string
	Symptoms  *string
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetDoctorByName(ctx context.Context, name string) (*Doctor, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	ListDoctors(ctx context.Context) ([]Doctor, error)
	CreateDoctor(ctx context.Context, name, specialization string, email *string) (*Doctor, error)

	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	// GetScheduledSlots returns the occupied grid labels for one
	// (doctor, date), in grid order.
	GetScheduledSlots(ctx context.Context, doctorID uuid.UUID, date string) ([]string, error)

	// InsertAppointmentIfAbsent atomically checks and inserts the
	// triple; a lost race yields ErrAlreadyBooked, never a second row.
	InsertAppointmentIfAbsent(ctx context.Context, p InsertParams) (*Appointment, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)
	ListAppointments(ctx context.Context, f ListFilter) ([]AppointmentDetail, error)

	// Sweep worker
	FindPastScheduled(ctx context.Context, date, timeSlot string) ([]Appointment, error)

	// Reports
	CountByDoctorAndDate(ctx context.Context, doctorID uuid.UUID, date string) (StatusCounts, error)
	CountCompletedOn(ctx context.Context, doctorID uuid.UUID, date string) (int, error)
	CountBySymptom(ctx context.Context, doctorID uuid.UUID, symptom string) (int, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
