// Simulate hammers the booking API with concurrent requests that
// deliberately collide on the same (doctor, date, slot) triples, then
// checks the database for double bookings. A non-zero violation count
// means the race protection is broken.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinichq/clinic-booking/internal/db"
)

type simConfig struct {
	APIBaseURL string
	Duration   time.Duration
	Workers    int
	Doctors    int // how many doctors to collide on
	Days       int // how many future dates to spread over
}

type tally struct {
	total    int64
	success  int64
	conflict int64
	rejected int64
	errors   int64
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := simConfig{
		APIBaseURL: getEnv("SIM_API_URL", "http://127.0.0.1:8080"),
		Duration:   getDurationEnv("SIM_DURATION", 30*time.Second),
		Workers:    getIntEnv("SIM_WORKERS", 32),
		Doctors:    getIntEnv("SIM_DOCTORS", 5),
		Days:       getIntEnv("SIM_DAYS", 7),
	}

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(ctx, dsn)
	cancel()
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	doctors, err := loadDoctorNames(context.Background(), pool, cfg.Doctors)
	if err != nil {
		log.Fatalf("load doctors: %v", err)
	}
	patients, err := loadPatientIDs(context.Background(), pool, 500)
	if err != nil {
		log.Fatalf("load patients: %v", err)
	}
	if len(doctors) == 0 || len(patients) == 0 {
		log.Fatal("run cmd/seed first: no doctors or patients found")
	}

	log.Printf("simulating: workers=%d duration=%s doctors=%d days=%d",
		cfg.Workers, cfg.Duration, len(doctors), cfg.Days)

	slots := gridLabels("09:00", "17:00", 30)
	dates := make([]string, cfg.Days)
	for i := range dates {
		dates[i] = time.Now().AddDate(0, 0, i+1).Format("2006-01-02")
	}

	var t tally
	deadline := time.Now().Add(cfg.Duration)
	client := &http.Client{Timeout: 10 * time.Second}

	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for time.Now().Before(deadline) {
				bookOnce(client, cfg.APIBaseURL, rng, doctors, patients, dates, slots, &t)
			}
		}(time.Now().UnixNano() + int64(w))
	}
	wg.Wait()

	violations, err := countDoubleBookings(context.Background(), pool)
	if err != nil {
		log.Fatalf("verify double bookings: %v", err)
	}

	log.Printf("requests=%d success=%d slot_taken=%d rejected=%d errors=%d",
		atomic.LoadInt64(&t.total),
		atomic.LoadInt64(&t.success),
		atomic.LoadInt64(&t.conflict),
		atomic.LoadInt64(&t.rejected),
		atomic.LoadInt64(&t.errors),
	)
	log.Printf("double-booking violations: %d", violations)

	if violations > 0 {
		os.Exit(1)
	}
}

func bookOnce(client *http.Client, baseURL string, rng *rand.Rand, doctors []string, patients []uuid.UUID, dates, slots []string, t *tally) {
	body, _ := json.Marshal(map[string]any{
		"patient_id":  patients[rng.Intn(len(patients))].String(),
		"doctor_name": doctors[rng.Intn(len(doctors))],
		"date":        dates[rng.Intn(len(dates))],
		"time_slot":   slots[rng.Intn(len(slots))],
	})

	resp, err := client.Post(baseURL+"/appointments", "application/json", bytes.NewReader(body))
	atomic.AddInt64(&t.total, 1)
	if err != nil {
		atomic.AddInt64(&t.errors, 1)
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusCreated:
		atomic.AddInt64(&t.success, 1)
	case resp.StatusCode == http.StatusConflict:
		atomic.AddInt64(&t.conflict, 1)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		atomic.AddInt64(&t.rejected, 1)
	default:
		atomic.AddInt64(&t.errors, 1)
	}
}

func gridLabels(start, end string, stepMinutes int) []string {
	s, _ := time.Parse("15:04", start)
	e, _ := time.Parse("15:04", end)

	var out []string
	for cur := s; cur.Before(e); cur = cur.Add(time.Duration(stepMinutes) * time.Minute) {
		out = append(out, cur.Format("15:04"))
	}
	return out
}

func loadDoctorNames(ctx context.Context, pool *pgxpool.Pool, limit int) ([]string, error) {
	rows, err := pool.Query(ctx, `SELECT name FROM doctors ORDER BY name LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func loadPatientIDs(ctx context.Context, pool *pgxpool.Pool, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func countDoubleBookings(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var n int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM (
			SELECT doctor_id, date, time_slot
			FROM appointments
			WHERE status = 'scheduled'
			GROUP BY doctor_id, date, time_slot
			HAVING count(*) > 1
		) dup
	`).Scan(&n)
	return n, err
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getIntEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
