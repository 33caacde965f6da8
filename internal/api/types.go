package api

import (
	"time"

	"github.com/google/uuid"
)

type BookAppointmentRequest struct {
	PatientID  string  `json:"patient_id" validate:"required,uuid"`
	DoctorName string  `json:"doctor_name" validate:"required"`
	Date       string  `json:"date" validate:"required,datetime=2006-01-02"`
	TimeSlot   string  `json:"time_slot" validate:"required,datetime=15:04"`
	Symptoms   *string `json:"symptoms,omitempty"`
}

type AddDoctorRequest struct {
	Name           string  `json:"name" validate:"required"`
	Specialization string  `json:"specialization" validate:"required"`
	Email          *string `json:"email,omitempty" validate:"omitempty,email"`
}

// ReportRequest carries the tagged report variant; kind decides which
// of the optional fields matter.
type ReportRequest struct {
	Kind    string `json:"kind" validate:"required,oneof=daily_summary yesterday_visits today_tomorrow symptom_count"`
	Date    string `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Symptom string `json:"symptom,omitempty"`
}

type AppointmentResponse struct {
	ID          uuid.UUID `json:"id"`
	DoctorID    uuid.UUID `json:"doctor_id"`
	PatientID   uuid.UUID `json:"patient_id"`
	DoctorName  string    `json:"doctor_name,omitempty"`
	PatientName string    `json:"patient_name,omitempty"`
	Date        string    `json:"date"`
	TimeSlot    string    `json:"time_slot"`
	Status      string    `json:"status"`
	Symptoms    *string   `json:"symptoms,omitempty"`
	Notes       *string   `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type AvailabilityResponse struct {
	Doctor         string   `json:"doctor"`
	Date           string   `json:"date"`
	AvailableSlots []string `json:"available_slots"`
}

type DoctorResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Specialization string    `json:"specialization"`
	Email          *string   `json:"email,omitempty"`
}

type ReportResponse struct {
	Kind       string `json:"kind"`
	DoctorName string `json:"doctor_name"`
	Date       string `json:"date,omitempty"`

	Total     *int `json:"total,omitempty"`
	Scheduled *int `json:"scheduled,omitempty"`
	Completed *int `json:"completed,omitempty"`
	Cancelled *int `json:"cancelled,omitempty"`

	CompletedVisits *int `json:"completed_visits,omitempty"`

	TodayTotal    *int `json:"today_total,omitempty"`
	TomorrowTotal *int `json:"tomorrow_total,omitempty"`

	Symptom string `json:"symptom,omitempty"`
	Matches *int   `json:"matches,omitempty"`
}

type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}
