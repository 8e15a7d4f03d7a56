package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"internattend/internal/attendance"
	"internattend/internal/auth"
	"internattend/internal/config"
	"internattend/internal/handler"
	"internattend/internal/httpmiddleware"
	"internattend/internal/logging"
	"internattend/internal/metrics"
	"internattend/internal/qrtoken"
	"internattend/internal/queue"
	"internattend/internal/scanlock"
	"internattend/internal/store"
	"internattend/internal/worker"
)

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

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, logger); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, logger *zap.Logger) error {
	ctx := context.Background()

	var (
		db     *store.DB
		ledger attendance.Store
	)
	switch cfg.StoreBackend {
	case "memory":
		logger.Warn("using in-memory store; data is lost on restart")
		ledger = attendance.NewMemoryStore()
	default:
		var err error
		db, err = store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		ledger = attendance.NewRepository(db.Client)
	}

	var redisClient *store.Redis
	if cfg.UsesRedis() {
		redisClient = store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer redisClient.Close()
		if !redisClient.Healthy(ctx) {
			logger.Warn("redis not reachable at startup", zap.String("addr", cfg.RedisAddr))
		}
	}

	var (
		q   queue.Queue
		mem *queue.InMemory
	)
	if cfg.QueueBackend == "memory" {
		mem = queue.NewInMemory(64)
		q = mem
		logger.Warn("in-memory queue: regeneration jobs are handled inside this process")
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "")
	}

	var locker scanlock.Locker = scanlock.NewLocal()
	if cfg.LockBackend == "redis" {
		locker = scanlock.NewRedis(redisClient.Client, "")
	}

	var limiter httpmiddleware.Limiter = httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	if cfg.RateLimitBackend == "redis" {
		limiter = httpmiddleware.NewRedisWindow(redisClient.Client, cfg.RateLimitPerMin)
	}

	codec, err := qrtoken.NewCodec(cfg.QRSecret)
	if err != nil {
		return err
	}

	svc := attendance.NewService(ledger, attendance.Options{
		Location:        cfg.Location(),
		EnforceGeofence: cfg.EnforceGeofence,
		MaxLeaveDays:    cfg.MaxLeaveDays,
		ScanLockTTL:     cfg.ScanLockTTL,
		Locker:          locker,
		Metrics:         metrics.New(prometheus.DefaultRegisterer),
		Logger:          logger.Named("attendance"),
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:   []string{"Content-Length"},
		MaxAge:          12 * time.Hour,
	}))
	r.Use(securityHeaders())
	r.Use(httpmiddleware.RateLimit(limiter, logger))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		body := gin.H{"status": "ok"}
		healthy := true
		if db != nil {
			ok := db.Healthy(c.Request.Context())
			body["db"] = ok
			healthy = healthy && ok
		}
		if redisClient != nil {
			ok := redisClient.Healthy(c.Request.Context())
			body["redis"] = ok
			healthy = healthy && ok
		}
		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
		c.JSON(status, body)
	})

	// without a shared queue no worker process can see the jobs, so this
	// process consumes its own
	consumed := make(chan struct{})
	consumeCtx, stopConsume := context.WithCancel(ctx)
	defer stopConsume()
	if mem != nil {
		artifacts, err := worker.NewArtifactStore(cfg, logger)
		if err != nil {
			return err
		}
		regen := &worker.Regenerator{
			Students:  svc,
			Codec:     codec,
			Artifacts: artifacts,
			Size:      cfg.QRImageSize,
			Log:       logger.Named("qr"),
		}
		jobs, err := mem.Consume(consumeCtx)
		if err != nil {
			return err
		}
		go func() {
			defer close(consumed)
			n := worker.Consume(consumeCtx, jobs, regen.Handle, logger)
			logger.Info("in-process regeneration stopped", zap.Int("jobs", n))
		}()
	} else {
		close(consumed)
	}

	h := &handler.Handler{
		Svc:    svc,
		Codec:  codec,
		Queue:  q,
		Log:    logger.Named("http"),
		QRSize: cfg.QRImageSize,
	}
	h.Register(r, auth.Authenticate(cfg.JWTSigningKey, cfg.JWTIssuer))

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr), zap.String("store", cfg.StoreBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced shutdown", zap.Error(err))
	}
	stopConsume()
	<-consumed
	logger.Info("server exited")
	return nil
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
