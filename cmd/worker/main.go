package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"internattend/internal/attendance"
	"internattend/internal/config"
	"internattend/internal/logging"
	"internattend/internal/metrics"
	"internattend/internal/qrtoken"
	"internattend/internal/queue"
	"internattend/internal/store"
	"internattend/internal/worker"
)

// Worker regenerates QR artifacts from the queue and materializes absences
// on a schedule.
func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	var ledger attendance.Store
	if cfg.StoreBackend == "memory" {
		logger.Warn("worker running against an in-memory store")
		ledger = attendance.NewMemoryStore()
	} else {
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("db connect failed", zap.Error(err))
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			logger.Fatal("migrate failed", zap.Error(err))
		}
		ledger = attendance.NewRepository(db.Client)
	}

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		redisClient := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer redisClient.Close()
		q = queue.NewRedisQueue(redisClient.Client, "")
	}

	svc := attendance.NewService(ledger, attendance.Options{
		Location:        cfg.Location(),
		EnforceGeofence: cfg.EnforceGeofence,
		MaxLeaveDays:    cfg.MaxLeaveDays,
		Metrics:         metrics.New(prometheus.DefaultRegisterer),
		Logger:          logger.Named("attendance"),
	})

	codec, err := qrtoken.NewCodec(cfg.QRSecret)
	if err != nil {
		logger.Fatal("qr codec", zap.Error(err))
	}

	artifacts, err := worker.NewArtifactStore(cfg, logger)
	if err != nil {
		logger.Fatal("qr artifact store", zap.Error(err))
	}

	sched := worker.NewCron(cfg.Location(), logger.Named("cron"))
	if cfg.AbsenceCron != "" {
		if _, err := sched.AddFunc(cfg.AbsenceCron, worker.AbsenceJob(svc, 2*time.Minute, logger.Named("absences"))); err != nil {
			logger.Fatal("invalid ABSENCE_CRON", zap.String("spec", cfg.AbsenceCron), zap.Error(err))
		}
	}
	sched.Start()
	defer func() { <-sched.Stop().Done() }()

	regen := &worker.Regenerator{
		Students:  svc,
		Codec:     codec,
		Artifacts: artifacts,
		Size:      cfg.QRImageSize,
		Log:       logger.Named("qr"),
	}

	jobs, err := q.Consume(ctx)
	if err != nil {
		logger.Fatal("queue consume init failed", zap.Error(err))
	}

	logger.Info("worker started", zap.String("absence_cron", cfg.AbsenceCron))
	n := worker.Consume(ctx, jobs, regen.Handle, logger)
	logger.Info("worker stopped", zap.Int("jobs", n))
}
