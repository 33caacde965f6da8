package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinichq/clinic-booking/internal/notify"
	redisclient "github.com/clinichq/clinic-booking/internal/redis"
)

const (
	EventBookingConfirmed     = "BOOKING_CONFIRMED"
	EventBookingCancelled     = "BOOKING_CANCELLED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
)

var (
	ErrInvalidSlot             = errors.New("time slot is not on the booking grid")
	ErrInvalidDate             = errors.New("date is outside the bookable horizon")
	ErrSlotTaken               = errors.New("slot already booked")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

// Settings are the static scheduling rules: one bookable window per
// day and a bounded future horizon. Requests outside the horizon are
// rejected, never clamped.
type Settings struct {
	Hours       WorkingHours
	HorizonDays int
}

type Service struct {
	repo     Repository
	locker   redisclient.Locker
	notifier notify.Notifier
	log      *zap.Logger
	settings Settings

	now func() time.Time // injectable for tests
}

func NewService(repo Repository, locker redisclient.Locker, notifier notify.Notifier, log *zap.Logger, settings Settings) *Service {
	return &Service{
		repo:     repo,
		locker:   locker,
		notifier: notifier,
		log:      log,
		settings: settings,
		now:      time.Now,
	}
}

// FreeSlots computes the doctor's open grid for one date: the full
// candidate grid minus every scheduled slot, in grid order. It is a
// pure read; the result may be stale the moment it returns, which is
// why Book re-validates against the store under the slot lock.
func (s *Service) FreeSlots(ctx context.Context, doctorName, date string) ([]string, error) {
	doctor, err := s.repo.GetDoctorByName(ctx, doctorName)
	if err != nil {
		return nil, err
	}

	if _, err := time.Parse(DateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: %q is not a valid date", ErrInvalidDate, date)
	}

	grid := s.settings.Hours.Slots()
	if len(grid) == 0 {
		// no working hours configured: nothing bookable, not an error
		return []string{}, nil
	}

	booked, err := s.repo.GetScheduledSlots(ctx, doctor.ID, date)
	if err != nil {
		return nil, err
	}

	return Subtract(grid, booked), nil
}

// Book validates the request and atomically commits the appointment.
// The availability a caller saw earlier is never trusted: grid
// membership, horizon and occupancy are all re-checked here, the
// occupancy check inside a per-triple lock backed by a conditional
// insert. Exactly one of any number of concurrent requests for the
// same (doctor, date, slot) wins; the rest get ErrSlotTaken.
func (s *Service) Book(ctx context.Context, patientID uuid.UUID, doctorName, date, timeSlot string, symptoms *string) (*Appointment, error) {
	doctor, err := s.repo.GetDoctorByName(ctx, doctorName)
	if err != nil {
		return nil, err
	}

	patient, err := s.repo.GetPatientByID(ctx, patientID)
	if err != nil {
		return nil, err
	}

	if !s.settings.Hours.Contains(timeSlot) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSlot, timeSlot)
	}

	if err := s.validateDate(date, timeSlot); err != nil {
		return nil, err
	}

	var created *Appointment

	err = s.locker.WithSlotLock(ctx, doctor.ID, date, timeSlot, func(lockCtx context.Context) error {
		booked, err := s.repo.GetScheduledSlots(lockCtx, doctor.ID, date)
		if err != nil {
			return err
		}
		for _, b := range booked {
			if b == timeSlot {
				return ErrSlotTaken
			}
		}

		appt, err := s.repo.InsertAppointmentIfAbsent(lockCtx, InsertParams{
			DoctorID:  doctor.ID,
			PatientID: patient.ID,
			Date:      date,
			TimeSlot:  timeSlot,
			Symptoms:  symptoms,
		})
		if err != nil {
			if errors.Is(err, ErrAlreadyBooked) {
				return ErrSlotTaken
			}
			return fmt.Errorf("insert appointment: %w", err)
		}

		created = appt

		s.logEvent(lockCtx, appt.ID, EventBookingConfirmed, map[string]any{
			"doctor_id":  doctor.ID.String(),
			"patient_id": patient.ID.String(),
			"date":       date,
			"time_slot":  timeSlot,
		})

		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			// another caller held the lock for the whole wait window;
			// first-committed-wins, so report the slot as taken
			return nil, ErrSlotTaken
		}
		return nil, err
	}

	s.notifier.Notify(ctx, notify.Request{
		Kind:       notify.KindBookingConfirmed,
		PatientID:  patient.ID,
		DoctorName: doctor.Name,
		Date:       date,
		TimeSlot:   timeSlot,
	})

	return created, nil
}

// validateDate enforces the bookable horizon. The date must parse,
// must not be in the past and must be at most HorizonDays ahead. A
// same-day slot that has already passed is an invalid slot.
func (s *Service) validateDate(date, timeSlot string) error {
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return fmt.Errorf("%w: %q is not a valid date", ErrInvalidDate, date)
	}

	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	if d.Before(today) {
		return fmt.Errorf("%w: %s is in the past", ErrInvalidDate, date)
	}
	if d.After(today.AddDate(0, 0, s.settings.HorizonDays)) {
		return fmt.Errorf("%w: %s is more than %d days ahead", ErrInvalidDate, date, s.settings.HorizonDays)
	}

	if d.Equal(today) {
		if timeSlot <= now.Format(SlotLayout) {
			return fmt.Errorf("%w: %s has already passed today", ErrInvalidSlot, timeSlot)
		}
	}

	return nil
}

// Cancel flips a scheduled appointment to cancelled. The record is
// kept for reporting.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if appt.Status != StatusScheduled {
		return nil, fmt.Errorf("%w: cannot cancel a %s appointment", ErrInvalidStatusTransition, appt.Status)
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, StatusScheduled, StatusCancelled)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// lost a race with the sweep or another cancel
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventBookingCancelled, map[string]any{})

	doctor, err := s.repo.GetDoctorByID(ctx, updated.DoctorID)
	if err == nil {
		s.notifier.Notify(ctx, notify.Request{
			Kind:       notify.KindBookingCancelled,
			PatientID:  updated.PatientID,
			DoctorName: doctor.Name,
			Date:       updated.Date,
			TimeSlot:   updated.TimeSlot,
		})
	}

	return updated, nil
}

// ListAppointments returns hydrated appointments matching the filter.
func (s *Service) ListAppointments(ctx context.Context, f ListFilter) ([]AppointmentDetail, error) {
	result, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return result, nil
}

// ListDoctors returns all doctors ordered by name.
func (s *Service) ListDoctors(ctx context.Context) ([]Doctor, error) {
	result, err := s.repo.ListDoctors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	return result, nil
}

// AddDoctor registers a new doctor. Names are the lookup key callers
// use, so they must be unique.
func (s *Service) AddDoctor(ctx context.Context, name, specialization string, email *string) (*Doctor, error) {
	doctor, err := s.repo.CreateDoctor(ctx, name, specialization, email)
	if err != nil {
		return nil, err
	}
	return doctor, nil
}

// CompletePast marks every scheduled appointment whose slot has
// passed as completed. Called periodically by the sweep worker.
func (s *Service) CompletePast(ctx context.Context) (int, error) {
	now := s.now()
	date := now.Format(DateLayout)
	slot := now.Format(SlotLayout)

	past, err := s.repo.FindPastScheduled(ctx, date, slot)
	if err != nil {
		return 0, fmt.Errorf("find past scheduled: %w", err)
	}

	completed := 0
	for _, appt := range past {
		_, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, StatusScheduled, StatusCompleted)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				continue // cancelled under us
			}
			s.log.Error("failed to complete appointment",
				zap.String("appointment_id", appt.ID.String()),
				zap.Error(err),
			)
			continue
		}
		completed++
		s.logEvent(ctx, appt.ID, EventAppointmentCompleted, map[string]any{
			"reason": "sweep",
		})
	}

	return completed, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error("failed to marshal event payload",
			zap.String("event_type", eventType),
			zap.Error(err),
		)
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error("failed to insert event log",
			zap.String("event_type", eventType),
			zap.String("appointment_id", appointmentID.String()),
			zap.Error(err),
		)
	}
}
