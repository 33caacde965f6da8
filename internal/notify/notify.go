// Package notify carries booking notification requests from the
// engine to whatever delivers them. The engine only emits a request
// value; delivery, retries and provider failures live behind Sender.
package notify

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	KindBookingConfirmed = "booking_confirmed"
	KindBookingCancelled = "booking_cancelled"
)

// Request describes one notification to be delivered out of band.
type Request struct {
	Kind       string    `json:"kind"`
	PatientID  uuid.UUID `json:"patient_id"`
	DoctorName string    `json:"doctor_name"`
	Date       string    `json:"date"`
	TimeSlot   string    `json:"time_slot"`
}

// Notifier accepts a request without waiting for delivery. A booking
// succeeds or fails independently of what happens here.
type Notifier interface {
	Notify(ctx context.Context, req Request)
}

// Sender performs the actual delivery of one request.
type Sender interface {
	Send(ctx context.Context, req Request) error
}

// LogSender is the default sender: it records the request and leaves
// delivery to an external notifier consuming the logs.
type LogSender struct {
	log *zap.Logger
}

func NewLogSender(log *zap.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, req Request) error {
	s.log.Info("notification request",
		zap.String("kind", req.Kind),
		zap.String("patient_id", req.PatientID.String()),
		zap.String("doctor_name", req.DoctorName),
		zap.String("date", req.Date),
		zap.String("time_slot", req.TimeSlot),
	)
	return nil
}
