package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ReportKind string

const (
	ReportDailySummary   ReportKind = "daily_summary"
	ReportYesterdayVisit ReportKind = "yesterday_visits"
	ReportTodayTomorrow  ReportKind = "today_tomorrow"
	ReportSymptomCount   ReportKind = "symptom_count"
)

var ErrInvalidReport = errors.New("invalid report request")

// ReportRequest is a closed tagged variant: Kind selects the report
// and decides which of the remaining fields are meaningful. Anything
// outside the known kinds is rejected before touching the store.
type ReportRequest struct {
	Kind    ReportKind
	Date    string // daily_summary only; defaults to today
	Symptom string // symptom_count only; required
}

func (r ReportRequest) Validate() error {
	switch r.Kind {
	case ReportDailySummary:
		if r.Date != "" {
			if _, err := time.Parse(DateLayout, r.Date); err != nil {
				return fmt.Errorf("%w: %q is not a valid date", ErrInvalidReport, r.Date)
			}
		}
	case ReportYesterdayVisit, ReportTodayTomorrow:
		// no parameters
	case ReportSymptomCount:
		if r.Symptom == "" {
			return fmt.Errorf("%w: symptom_count requires a symptom", ErrInvalidReport)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidReport, r.Kind)
	}
	return nil
}

// Report is the result for any kind; only the fields matching the
// requested kind are populated.
type Report struct {
	Kind       ReportKind
	DoctorName string

	// daily_summary
	Date   string
	Counts StatusCounts

	// yesterday_visits
	CompletedVisits int

	// today_tomorrow
	TodayTotal    int
	TomorrowTotal int

	// symptom_count
	Symptom string
	Matches int
}

// Report answers a doctor-facing reporting request. Reads only, no
// engine state involved.
func (s *Service) Report(ctx context.Context, doctorID uuid.UUID, req ReportRequest) (*Report, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	doctor, err := s.repo.GetDoctorByID(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	out := &Report{Kind: req.Kind, DoctorName: doctor.Name}
	today := s.now().Format(DateLayout)

	switch req.Kind {
	case ReportDailySummary:
		date := req.Date
		if date == "" {
			date = today
		}
		counts, err := s.repo.CountByDoctorAndDate(ctx, doctor.ID, date)
		if err != nil {
			return nil, err
		}
		out.Date = date
		out.Counts = counts

	case ReportYesterdayVisit:
		yesterday := s.now().AddDate(0, 0, -1).Format(DateLayout)
		n, err := s.repo.CountCompletedOn(ctx, doctor.ID, yesterday)
		if err != nil {
			return nil, err
		}
		out.Date = yesterday
		out.CompletedVisits = n

	case ReportTodayTomorrow:
		tomorrow := s.now().AddDate(0, 0, 1).Format(DateLayout)
		todayCounts, err := s.repo.CountByDoctorAndDate(ctx, doctor.ID, today)
		if err != nil {
			return nil, err
		}
		tomorrowCounts, err := s.repo.CountByDoctorAndDate(ctx, doctor.ID, tomorrow)
		if err != nil {
			return nil, err
		}
		out.TodayTotal = todayCounts.Total
		out.TomorrowTotal = tomorrowCounts.Total

	case ReportSymptomCount:
		n, err := s.repo.CountBySymptom(ctx, doctor.ID, req.Symptom)
		if err != nil {
			return nil, err
		}
		out.Symptom = req.Symptom
		out.Matches = n
	}

	return out, nil
}
