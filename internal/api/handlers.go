package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinichq/clinic-booking/internal/booking"
	"github.com/clinichq/clinic-booking/internal/metrics"
	"github.com/clinichq/clinic-booking/internal/session"
)

type Handlers struct {
	svc      *booking.Service
	sessions *session.Store
	metrics  *metrics.BookingMetrics
	log      *zap.Logger
}

func NewHandlers(svc *booking.Service, sessions *session.Store, m *metrics.BookingMetrics, log *zap.Logger) *Handlers {
	return &Handlers{
		svc:      svc,
		sessions: sessions,
		metrics:  m,
		log:      log,
	}
}

// GET /doctors/{name}/availability?date=YYYY-MM-DD
func (h *Handlers) Availability(w http.ResponseWriter, r *http.Request) {
	doctorName := chi.URLParam(r, "name")
	date := r.URL.Query().Get("date")
	if date == "" {
		writeError(w, http.StatusBadRequest, "missing_date", "date query parameter is required")
		return
	}

	slots, err := h.svc.FreeSlots(r.Context(), doctorName, date)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.metrics.ObserveAvailabilityQuery()

	writeJSON(w, http.StatusOK, AvailabilityResponse{
		Doctor:         doctorName,
		Date:           date,
		AvailableSlots: slots,
	})
}

// POST /appointments
func (h *Handlers) BookAppointment(w http.ResponseWriter, r *http.Request) {
	var req BookAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}
	if err := validateStruct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
		return
	}

	appt, err := h.svc.Book(r.Context(), patientID, req.DoctorName, req.Date, req.TimeSlot, req.Symptoms)
	if err != nil {
		h.metrics.ObserveBooking(errorCode(err))
		h.writeServiceError(w, err)
		return
	}

	h.metrics.ObserveBooking("success")

	writeJSON(w, http.StatusCreated, appointmentResponse(appt))
}

// GET /appointments?patient_id=&doctor_id=&date=
func (h *Handlers) ListAppointments(w http.ResponseWriter, r *http.Request) {
	var f booking.ListFilter

	if v := r.URL.Query().Get("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		f.PatientID = id
	}
	if v := r.URL.Query().Get("doctor_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}
		f.DoctorID = id
	}
	f.Date = r.URL.Query().Get("date")

	appts, err := h.svc.ListAppointments(r.Context(), f)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	resp := make([]AppointmentResponse, 0, len(appts))
	for i := range appts {
		ar := appointmentResponse(&appts[i].Appointment)
		ar.DoctorName = appts[i].DoctorName
		ar.PatientName = appts[i].PatientName
		resp = append(resp, ar)
	}

	writeJSON(w, http.StatusOK, resp)
}

// POST /appointments/{id}/cancel
func (h *Handlers) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return
	}

	appt, err := h.svc.Cancel(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, appointmentResponse(appt))
}

// GET /doctors
func (h *Handlers) ListDoctors(w http.ResponseWriter, r *http.Request) {
	doctors, err := h.svc.ListDoctors(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	resp := make([]DoctorResponse, 0, len(doctors))
	for _, d := range doctors {
		resp = append(resp, DoctorResponse{
			ID:             d.ID,
			Name:           d.Name,
			Specialization: d.Specialization,
			Email:          d.Email,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// POST /doctors
func (h *Handlers) AddDoctor(w http.ResponseWriter, r *http.Request) {
	var req AddDoctorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}
	if err := validateStruct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	doctor, err := h.svc.AddDoctor(r.Context(), req.Name, req.Specialization, req.Email)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, DoctorResponse{
		ID:             doctor.ID,
		Name:           doctor.Name,
		Specialization: doctor.Specialization,
		Email:          doctor.Email,
	})
}

// POST /doctors/{id}/reports
func (h *Handlers) DoctorReport(w http.ResponseWriter, r *http.Request) {
	doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
		return
	}

	var req ReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}
	if err := validateStruct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	report, err := h.svc.Report(r.Context(), doctorID, booking.ReportRequest{
		Kind:    booking.ReportKind(req.Kind),
		Date:    req.Date,
		Symptom: req.Symptom,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reportResponse(report))
}

// GET /chat/sessions/{userID}
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	data, err := h.sessions.Get(r.Context(), userID)
	if err != nil {
		h.log.Error("session read failed", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "session_unavailable", "could not read session context")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// PUT /chat/sessions/{userID}
func (h *Handlers) PutSession(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 64<<10))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not read body")
		return
	}

	if err := h.sessions.Put(r.Context(), userID, body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_session_data", err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DELETE /chat/sessions/{userID}
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	if err := h.sessions.Delete(r.Context(), userID); err != nil {
		h.log.Error("session delete failed", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "session_unavailable", "could not delete session context")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func appointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		DoctorID:  a.DoctorID,
		PatientID: a.PatientID,
		Date:      a.Date,
		TimeSlot:  a.TimeSlot,
		Status:    string(a.Status),
		Symptoms:  a.Symptoms,
		Notes:     a.Notes,
		CreatedAt: a.CreatedAt,
	}
}

func reportResponse(rep *booking.Report) ReportResponse {
	out := ReportResponse{
		Kind:       string(rep.Kind),
		DoctorName: rep.DoctorName,
		Date:       rep.Date,
	}

	switch rep.Kind {
	case booking.ReportDailySummary:
		out.Total = intPtr(rep.Counts.Total)
		out.Scheduled = intPtr(rep.Counts.Scheduled)
		out.Completed = intPtr(rep.Counts.Completed)
		out.Cancelled = intPtr(rep.Counts.Cancelled)
	case booking.ReportYesterdayVisit:
		out.CompletedVisits = intPtr(rep.CompletedVisits)
	case booking.ReportTodayTomorrow:
		out.TodayTotal = intPtr(rep.TodayTotal)
		out.TomorrowTotal = intPtr(rep.TomorrowTotal)
	case booking.ReportSymptomCount:
		out.Symptom = rep.Symptom
		out.Matches = intPtr(rep.Matches)
	}

	return out
}

func intPtr(n int) *int { return &n }

// errorCode maps a service error to its wire code, shared by the
// error responses and the booking outcome metric.
func errorCode(err error) string {
	switch {
	case errors.Is(err, booking.ErrDoctorNotFound):
		return "doctor_not_found"
	case errors.Is(err, booking.ErrPatientNotFound):
		return "patient_not_found"
	case errors.Is(err, booking.ErrAppointmentNotFound):
		return "appointment_not_found"
	case errors.Is(err, booking.ErrInvalidSlot):
		return "invalid_slot"
	case errors.Is(err, booking.ErrInvalidDate):
		return "invalid_date"
	case errors.Is(err, booking.ErrSlotTaken):
		return "slot_taken"
	case errors.Is(err, booking.ErrInvalidStatusTransition):
		return "invalid_status_transition"
	case errors.Is(err, booking.ErrDoctorExists):
		return "doctor_exists"
	case errors.Is(err, booking.ErrInvalidReport):
		return "invalid_report"
	case errors.Is(err, booking.ErrStorageUnavailable):
		return "storage_unavailable"
	default:
		return "internal_error"
	}
}

func (h *Handlers) writeServiceError(w http.ResponseWriter, err error) {
	code := errorCode(err)

	var status int
	switch code {
	case "doctor_not_found", "patient_not_found", "appointment_not_found":
		status = http.StatusNotFound
	case "invalid_slot", "invalid_date":
		status = http.StatusUnprocessableEntity
	case "slot_taken", "invalid_status_transition", "doctor_exists":
		status = http.StatusConflict
	case "invalid_report":
		status = http.StatusBadRequest
	case "storage_unavailable":
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
		h.log.Error("unexpected service error", zap.Error(err))
	}

	writeError(w, status, code, err.Error())
}
