// The sweep worker drives the scheduled → completed transition: any
// scheduled appointment whose slot has passed is marked completed so
// it shows up in doctor reports as a visit.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/clinichq/clinic-booking/internal/booking"
	"github.com/clinichq/clinic-booking/internal/config"
	"github.com/clinichq/clinic-booking/internal/db"
	"github.com/clinichq/clinic-booking/internal/logger"
	"github.com/clinichq/clinic-booking/internal/notify"
	redisclient "github.com/clinichq/clinic-booking/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	zl.Info("sweep-worker starting",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.WorkerInterval),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		zl.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	zl.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		zl.Fatal("redis connection error", zap.Error(err))
	}
	defer func() { _ = rdb.Close() }()
	zl.Info("connected to Redis")

	dispatcher := notify.NewDispatcher(notify.NewLogSender(zl), zl, 64)
	defer dispatcher.Close()

	repo := booking.NewPgRepository(pgPool)
	locker := redisclient.NewSlotLocker(rdb, cfg.LockTTL, cfg.LockWait)
	svc := booking.NewService(repo, locker, dispatcher, zl, booking.Settings{
		Hours: booking.WorkingHours{
			Start:       cfg.WorkdayStart,
			End:         cfg.WorkdayEnd,
			SlotMinutes: cfg.SlotMinutes,
		},
		HorizonDays: cfg.HorizonDays,
	})

	// Run once at startup
	runOnce(rootCtx, svc, zl)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			zl.Info("shutdown signal received, stopping sweep worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, zl)
		}
	}
}

func runOnce(ctx context.Context, svc *booking.Service, zl *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := svc.CompletePast(runCtx)
	if err != nil {
		zl.Error("sweep run error", zap.Error(err))
		return
	}
	zl.Info("sweep run complete",
		zap.Int("completed", n),
		zap.Duration("took", time.Since(start)),
	)
}
