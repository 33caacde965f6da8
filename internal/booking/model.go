package booking

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// DateLayout is the wire and storage format for appointment dates.
const DateLayout = "2006-01-02"

// SlotLayout is the wire format for grid slot labels.
const SlotLayout = "15:04"

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Doctor struct {
	ID             uuid.UUID
	Name           string
	Specialization string
	Email          *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Appointment is one booked grid cell. Cancellation flips the status,
// the row itself is never deleted.
type Appointment struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Date      string // YYYY-MM-DD
	TimeSlot  string // HH:MM, a member of the doctor's grid
	Status    AppointmentStatus
	Symptoms  *string
	Notes     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AppointmentDetail hydrates an appointment with display names for
// list endpoints and reports.
type AppointmentDetail struct {
	Appointment
	PatientName string
	DoctorName  string
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// StatusCounts aggregates a doctor's appointments for one date.
type StatusCounts struct {
	Total     int
	Scheduled int
	Completed int
	Cancelled int
}
