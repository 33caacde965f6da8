package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clinichq/clinic-booking/internal/notify"
)

// testNow keeps every date computation deterministic: a Wednesday at
// noon, so same-day morning slots are already in the past.
var testNow = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

// memRepo is an in-memory Repository with the same atomicity
// guarantees as the Postgres implementation.
type memRepo struct {
	mu          sync.Mutex
	doctors     map[uuid.UUID]*Doctor
	patients    map[uuid.UUID]*Patient
	appts       map[uuid.UUID]*Appointment
	events      []EventLog
	failStorage bool
}

func newMemRepo() *memRepo {
	return &memRepo{
		doctors:  make(map[uuid.UUID]*Doctor),
		patients: make(map[uuid.UUID]*Patient),
		appts:    make(map[uuid.UUID]*Appointment),
	}
}

func (r *memRepo) addDoctor(name, specialization string) *Doctor {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := &Doctor{ID: uuid.New(), Name: name, Specialization: specialization}
	r.doctors[d.ID] = d
	return d
}

func (r *memRepo) addPatient(name string) *Patient {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := &Patient{ID: uuid.New(), Name: name}
	r.patients[p.ID] = p
	return p
}

func (r *memRepo) storageCheck() error {
	if r.failStorage {
		return fmt.Errorf("%w: connection refused", ErrStorageUnavailable)
	}
	return nil
}

func (r *memRepo) GetDoctorByName(_ context.Context, name string) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.storageCheck(); err != nil {
		return nil, err
	}
	for _, d := range r.doctors {
		if d.Name == name {
			cp := *d
			return &cp, nil
		}
	}
	return nil, ErrDoctorNotFound
}

func (r *memRepo) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *memRepo) ListDoctors(_ context.Context) ([]Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Doctor
	for _, d := range r.doctors {
		out = append(out, *d)
	}
	return out, nil
}

func (r *memRepo) CreateDoctor(_ context.Context, name, specialization string, email *string) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.doctors {
		if d.Name == name {
			return nil, ErrDoctorExists
		}
	}
	d := &Doctor{ID: uuid.New(), Name: name, Specialization: specialization, Email: email}
	r.doctors[d.ID] = d
	cp := *d
	return &cp, nil
}

func (r *memRepo) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.storageCheck(); err != nil {
		return nil, err
	}
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memRepo) GetScheduledSlots(_ context.Context, doctorID uuid.UUID, date string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.storageCheck(); err != nil {
		return nil, err
	}
	var slots []string
	for _, a := range r.appts {
		if a.DoctorID == doctorID && a.Date == date && a.Status == StatusScheduled {
			slots = append(slots, a.TimeSlot)
		}
	}
	return slots, nil
}

func (r *memRepo) InsertAppointmentIfAbsent(_ context.Context, p InsertParams) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.storageCheck(); err != nil {
		return nil, err
	}
	for _, a := range r.appts {
		if a.DoctorID == p.DoctorID && a.Date == p.Date && a.TimeSlot == p.TimeSlot && a.Status == StatusScheduled {
			return nil, ErrAlreadyBooked
		}
	}
	a := &Appointment{
		ID:        uuid.New(),
		DoctorID:  p.DoctorID,
		PatientID: p.PatientID,
		Date:      p.Date,
		TimeSlot:  p.TimeSlot,
		Status:    StatusScheduled,
		Symptoms:  p.Symptoms,
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}
	r.appts[a.ID] = a
	cp := *a
	return &cp, nil
}

func (r *memRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memRepo) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	cp := *a
	return &cp, nil
}

func (r *memRepo) ListAppointments(_ context.Context, f ListFilter) ([]AppointmentDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []AppointmentDetail
	for _, a := range r.appts {
		if f.PatientID != uuid.Nil && a.PatientID != f.PatientID {
			continue
		}
		if f.DoctorID != uuid.Nil && a.DoctorID != f.DoctorID {
			continue
		}
		if f.Date != "" && a.Date != f.Date {
			continue
		}
		ad := AppointmentDetail{Appointment: *a}
		if d, ok := r.doctors[a.DoctorID]; ok {
			ad.DoctorName = d.Name
		}
		if p, ok := r.patients[a.PatientID]; ok {
			ad.PatientName = p.Name
		}
		out = append(out, ad)
	}
	return out, nil
}

func (r *memRepo) FindPastScheduled(_ context.Context, date, timeSlot string) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appts {
		if a.Status != StatusScheduled {
			continue
		}
		if a.Date < date || (a.Date == date && a.TimeSlot < timeSlot) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *memRepo) CountByDoctorAndDate(_ context.Context, doctorID uuid.UUID, date string) (StatusCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var c StatusCounts
	for _, a := range r.appts {
		if a.DoctorID != doctorID || a.Date != date {
			continue
		}
		c.Total++
		switch a.Status {
		case StatusScheduled:
			c.Scheduled++
		case StatusCompleted:
			c.Completed++
		case StatusCancelled:
			c.Cancelled++
		}
	}
	return c, nil
}

func (r *memRepo) CountCompletedOn(_ context.Context, doctorID uuid.UUID, date string) (int, error) {
	c, err := r.CountByDoctorAndDate(context.Background(), doctorID, date)
	return c.Completed, err
}

func (r *memRepo) CountBySymptom(_ context.Context, doctorID uuid.UUID, symptom string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.appts {
		if a.DoctorID == doctorID && a.Symptoms != nil &&
			strings.Contains(strings.ToLower(*a.Symptoms), strings.ToLower(symptom)) {
			n++
		}
	}
	return n, nil
}

func (r *memRepo) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// memLocker serializes critical sections per triple, like the Redis
// locker but blocking instead of failing on contention.
type memLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newMemLocker() *memLocker {
	return &memLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *memLocker) WithSlotLock(ctx context.Context, doctorID uuid.UUID, date, timeSlot string, fn func(ctx context.Context) error) error {
	key := doctorID.String() + "|" + date + "|" + timeSlot
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}

type captureNotifier struct {
	mu       sync.Mutex
	requests []notify.Request
}

func (n *captureNotifier) Notify(_ context.Context, req notify.Request) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requests = append(n.requests, req)
}

func (n *captureNotifier) all() []notify.Request {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Request(nil), n.requests...)
}

func newTestService(t *testing.T, settings Settings) (*Service, *memRepo, *captureNotifier) {
	t.Helper()
	repo := newMemRepo()
	notifier := &captureNotifier{}
	svc := NewService(repo, newMemLocker(), notifier, zap.NewNop(), settings)
	svc.now = func() time.Time { return testNow }
	return svc, repo, notifier
}

func defaultSettings() Settings {
	return Settings{
		Hours:       WorkingHours{Start: "09:00", End: "17:00", SlotMinutes: 30},
		HorizonDays: 30,
	}
}

func TestFreeSlotsFullGrid(t *testing.T) {
	svc, repo, _ := newTestService(t, Settings{
		Hours:       WorkingHours{Start: "09:00", End: "11:00", SlotMinutes: 30},
		HorizonDays: 30,
	})
	repo.addDoctor("Dr. Adams", "Cardiology")

	slots, err := svc.FreeSlots(context.Background(), "Dr. Adams", "2024-01-15")
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "09:30", "10:00", "10:30"}, slots)
}

func TestFreeSlotsSubtraction(t *testing.T) {
	svc, repo, _ := newTestService(t, Settings{
		Hours:       WorkingHours{Start: "09:00", End: "11:00", SlotMinutes: 30},
		HorizonDays: 30,
	})
	doctor := repo.addDoctor("Dr. Adams", "Cardiology")
	patient := repo.addPatient("Pat")

	_, err := repo.InsertAppointmentIfAbsent(context.Background(), InsertParams{
		DoctorID: doctor.ID, PatientID: patient.ID, Date: "2024-01-15", TimeSlot: "09:30",
	})
	require.NoError(t, err)

	slots, err := svc.FreeSlots(context.Background(), "Dr. Adams", "2024-01-15")
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "10:00", "10:30"}, slots)
}

func TestFreeSlotsIdempotentRead(t *testing.T) {
	svc, repo, _ := newTestService(t, defaultSettings())
	repo.addDoctor("Dr. Adams", "Cardiology")

	first, err := svc.FreeSlots(context.Background(), "Dr. Adams", "2024-01-15")
	require.NoError(t, err)
	second, err := svc.FreeSlots(context.Background(), "Dr. Adams", "2024-01-15")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestFreeSlotsUnknownDoctor(t *testing.T) {
	svc, _, _ := newTestService(t, defaultSettings())

	_, err := svc.FreeSlots(context.Background(), "Dr. Nobody", "2024-01-15")
	assert.ErrorIs(t, err, ErrDoctorNotFound)
}

func TestFreeSlotsNoWorkingHours(t *testing.T) {
	svc, repo, _ := newTestService(t, Settings{HorizonDays: 30})
	repo.addDoctor("Dr. Adams", "Cardiology")

	slots, err := svc.FreeSlots(context.Background(), "Dr. Adams", "2024-01-15")
	require.NoError(t, err)
	assert.Empty(t, slots)
	assert.NotNil(t, slots, "empty, not nil: no hours is not an error")
}

func TestBookEndToEnd(t *testing.T) {
	svc, repo, notifier := newTestService(t, Settings{
		Hours:       WorkingHours{Start: "09:00", End: "10:30", SlotMinutes: 30},
		HorizonDays: 30,
	})
	repo.addDoctor("Dr. Smith", "General Practice")
	patient := repo.addPatient("Pat")

	appt, err := svc.Book(context.Background(), patient.ID, "Dr. Smith", "2024-01-15", "09:30", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, appt.Status)
	assert.Equal(t, "2024-01-15", appt.Date)
	assert.Equal(t, "09:30", appt.TimeSlot)

	// identical repeat loses
	_, err = svc.Book(context.Background(), patient.ID, "Dr. Smith", "2024-01-15", "09:30", nil)
	assert.ErrorIs(t, err, ErrSlotTaken)

	// the winning booking emitted exactly one confirmation request
	reqs := notifier.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, notify.KindBookingConfirmed, reqs[0].Kind)
	assert.Equal(t, "Dr. Smith", reqs[0].DoctorName)
	assert.Equal(t, "09:30", reqs[0].TimeSlot)

	// and the slot no longer shows as free
	slots, err := svc.FreeSlots(context.Background(), "Dr. Smith", "2024-01-15")
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "10:00"}, slots)
}

func TestBookRejectsOffGridSlot(t *testing.T) {
	svc, repo, notifier := newTestService(t, defaultSettings())
	repo.addDoctor("Dr. Smith", "General Practice")
	patient := repo.addPatient("Pat")

	_, err := svc.Book(context.Background(), patient.ID, "Dr. Smith", "2024-01-15", "09:15", nil)
	assert.ErrorIs(t, err, ErrInvalidSlot)
	assert.Empty(t, notifier.all())
}

func TestBookHorizon(t *testing.T) {
	svc, repo, _ := newTestService(t, defaultSettings())
	repo.addDoctor("Dr. Smith", "General Practice")
	patient := repo.addPatient("Pat")

	tests := []struct {
		name    string
		date    string
		wantErr error
	}{
		{"yesterday", "2024-01-09", ErrInvalidDate},
		{"last day inside horizon", "2024-02-09", nil},
		{"one day past horizon", "2024-02-10", ErrInvalidDate},
		{"unparseable date", "2024-13-45", ErrInvalidDate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Book(context.Background(), patient.ID, "Dr. Smith", tt.date, "10:00", nil)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestBookSameDayPastSlot(t *testing.T) {
	svc, repo, _ := newTestService(t, defaultSettings())
	repo.addDoctor("Dr. Smith", "General Practice")
	patient := repo.addPatient("Pat")

	// testNow is 12:00, so the morning is gone
	_, err := svc.Book(context.Background(), patient.ID, "Dr. Smith", "2024-01-10", "09:30", nil)
	assert.ErrorIs(t, err, ErrInvalidSlot)

	// the afternoon still books
	_, err = svc.Book(context.Background(), patient.ID, "Dr. Smith", "2024-01-10", "14:00", nil)
	assert.NoError(t, err)
}

func TestBookUnknownDoctorAndPatient(t *testing.T) {
	svc, repo, _ := newTestService(t, defaultSettings())
	repo.addDoctor("Dr. Smith", "General Practice")

	_, err := svc.Book(context.Background(), uuid.New(), "Dr. Nobody", "2024-01-15", "10:00", nil)
	assert.ErrorIs(t, err, ErrDoctorNotFound)

	_, err = svc.Book(context.Background(), uuid.New(), "Dr. Smith", "2024-01-15", "10:00", nil)
	assert.ErrorIs(t, err, ErrPatientNotFound)
}

func TestBookStorageUnavailable(t *testing.T) {
	svc, repo, _ := newTestService(t, defaultSettings())
	repo.addDoctor("Dr. Smith", "General Practice")
	patient := repo.addPatient("Pat")
	repo.failStorage = true

	_, err := svc.Book(context.Background(), patient.ID, "Dr. Smith", "2024-01-15", "10:00", nil)
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}

// TestBookNoDoubleBookingUnderConcurrency is the core property: N
// concurrent attempts on the identical triple produce exactly one
// appointment and N-1 ErrSlotTaken.
func TestBookNoDoubleBookingUnderConcurrency(t *testing.T) {
	const n = 50

	svc, repo, notifier := newTestService(t, defaultSettings())
	repo.addDoctor("Dr. Smith", "General Practice")

	patients := make([]*Patient, n)
	for i := range patients {
		patients[i] = repo.addPatient(fmt.Sprintf("patient-%d", i))
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		taken     int
		others    []error
	)

	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(p *Patient) {
			defer wg.Done()
			<-start
			_, err := svc.Book(context.Background(), p.ID, "Dr. Smith", "2024-01-15", "10:00", nil)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrSlotTaken):
				taken++
			default:
				others = append(others, err)
			}
		}(patients[i])
	}

	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes, "exactly one booking must win")
	assert.Equal(t, n-1, taken, "every loser must see ErrSlotTaken")
	assert.Empty(t, others, "no other error kinds allowed")
	assert.Len(t, notifier.all(), 1, "only the winner notifies")

	// exactly one scheduled row for the triple
	slots, err := svc.FreeSlots(context.Background(), "Dr. Smith", "2024-01-15")
	require.NoError(t, err)
	assert.NotContains(t, slots, "10:00")
}

func TestCancel(t *testing.T) {
	svc, repo, notifier := newTestService(t, defaultSettings())
	repo.addDoctor("Dr. Smith", "General Practice")
	patient := repo.addPatient("Pat")

	appt, err := svc.Book(context.Background(), patient.ID, "Dr. Smith", "2024-01-15", "10:00", nil)
	require.NoError(t, err)

	cancelled, err := svc.Cancel(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	// the slot opens back up
	slots, err := svc.FreeSlots(context.Background(), "Dr. Smith", "2024-01-15")
	require.NoError(t, err)
	assert.Contains(t, slots, "10:00")

	// cancelling twice is an invalid transition
	_, err = svc.Cancel(context.Background(), appt.ID)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	// unknown id
	_, err = svc.Cancel(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrAppointmentNotFound)

	reqs := notifier.all()
	require.Len(t, reqs, 2)
	assert.Equal(t, notify.KindBookingCancelled, reqs[1].Kind)
}

func TestCompletePast(t *testing.T) {
	svc, repo, _ := newTestService(t, defaultSettings())
	doctor := repo.addDoctor("Dr. Smith", "General Practice")
	patient := repo.addPatient("Pat")

	// one appointment yesterday, one earlier today, one later today
	for _, slot := range []struct{ date, slot string }{
		{"2024-01-09", "10:00"},
		{"2024-01-10", "09:00"},
		{"2024-01-10", "15:00"},
	} {
		_, err := repo.InsertAppointmentIfAbsent(context.Background(), InsertParams{
			DoctorID: doctor.ID, PatientID: patient.ID, Date: slot.date, TimeSlot: slot.slot,
		})
		require.NoError(t, err)
	}

	n, err := svc.CompletePast(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	counts, err := repo.CountByDoctorAndDate(context.Background(), doctor.ID, "2024-01-10")
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Completed)
	assert.Equal(t, 1, counts.Scheduled)
}
