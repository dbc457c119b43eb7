package main

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"helvetia/internal/billing"
	"helvetia/internal/config"
	"helvetia/internal/httpapi"
	"helvetia/internal/httpapi/handlers"
	"helvetia/internal/jobqueue"
	"helvetia/internal/metrics"
	"helvetia/internal/notify"
	"helvetia/internal/pipeline"
	"helvetia/internal/pkg/logger"
	"helvetia/internal/pkg/shutdown"
	"helvetia/internal/ratelimit"
	"helvetia/internal/repositories"
	"helvetia/internal/tempfiles"
	"helvetia/internal/transcode"
	"helvetia/internal/transform"
)

func main() {
	// Initialize logger
	log := logger.New(logger.Config{
		Level:       config.Env("LOG_LEVEL", "info"),
		Format:      config.Env("LOG_FORMAT", "json"),
		ServiceName: "helvetia-api",
		AddSource:   config.BoolEnv("LOG_SOURCE", false),
	})

	log.Info("starting Helvetia API",
		"version", "0.1.0",
	)

	// Load configuration
	cfg := config.Load()

	ctx := context.Background()

	// Initialize shutdown manager
	shutdownMgr := shutdown.NewManager(log, 30*time.Second)

	// Connect to PostgreSQL
	log.Info("connecting to PostgreSQL")
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.LogFatal("failed to connect to PostgreSQL", err)
	}
	shutdownMgr.Register("postgres", func(ctx context.Context) error {
		pool.Close()
		return nil
	})

	// Verify PostgreSQL connection
	if err := pool.Ping(ctx); err != nil {
		log.LogFatal("failed to ping PostgreSQL", err)
	}
	log.Info("PostgreSQL connected")

	// Apply pending migrations
	if err := repositories.MigrateUp(ctx, pool); err != nil {
		log.LogFatal("failed to apply migrations", err)
	}

	// Connect to Redis
	log.Info("connecting to Redis")
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	shutdownMgr.Register("redis", func(ctx context.Context) error {
		return rdb.Close()
	})

	// Verify Redis connection
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.LogFatal("failed to ping Redis", err)
	}
	log.Info("Redis connected")

	// Temp file manager, plus a boot sweep for leftovers of an
	// unclean previous run
	tmp, err := tempfiles.NewManager(cfg.TempDir, log)
	if err != nil {
		log.LogFatal("failed to prepare temp dir", err)
	}
	if n, err := tmp.Sweep(cfg.SweepMaxAge); err != nil {
		log.Warn("boot sweep failed", "error", err.Error())
	} else if n > 0 {
		log.Info("boot sweep removed stale entries", "count", n)
	}

	// Transcoder: a missing binary fails here, not on the first job
	invoker, err := transcode.NewInvoker(transcode.Options{
		FFmpegPath:         cfg.FFmpegPath,
		FFprobePath:        cfg.FFprobePath,
		Timeout:            cfg.TranscodeTimeout,
		StderrExcerptBytes: cfg.StderrExcerptBytes,
	}, log)
	if err != nil {
		log.LogFatal("transcoder unavailable", err)
	}

	// Background loops (worker, reaper, sweep) stop after the queue
	// has drained; handlers below run in reverse registration order.
	runCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()
	shutdownMgr.RegisterSimple("background-loops", stopBackground)

	// Encode queue with its single worker
	queue := jobqueue.New(cfg.QueueCapacity, log)
	queue.Start(runCtx)
	metrics.RegisterQueue(queue.InFlight, queue.Depth)
	shutdownMgr.Register("queue", func(ctx context.Context) error {
		return queue.Stop(ctx)
	})

	// Pipeline facade
	pipe := pipeline.New(pipeline.Deps{
		Gen:      transform.NewGenerator(cfg.Transform, nil),
		Invoker:  invoker,
		Temp:     tmp,
		Queue:    queue,
		Log:      log,
		ClaimTTL: cfg.ClaimTTL,
	})
	pipe.Start(runCtx)

	go sweepLoop(runCtx, tmp, cfg.SweepInterval, cfg.SweepMaxAge)

	// Billing is optional: without credentials the endpoints answer 503
	var billingClient *billing.Client
	if cfg.Cryptomus.Enabled() {
		billingClient = billing.NewClient(billing.Config{
			BaseURL:        cfg.Cryptomus.BaseURL,
			Merchant:       cfg.Cryptomus.Merchant,
			APIKey:         cfg.Cryptomus.APIKey,
			CallbackSecret: cfg.Cryptomus.CallbackSecret,
		})
		log.Info("billing enabled", "merchant", cfg.Cryptomus.Merchant)
	} else {
		log.Warn("billing disabled: Cryptomus credentials not configured")
	}

	// Create HTTP router
	deps := httpapi.Deps{
		Handlers: handlers.Deps{
			Cfg:      cfg,
			Pool:     pool,
			RDB:      rdb,
			Pipeline: pipe,
			Queue:    queue,
			Users:    repositories.NewUserRepository(pool),
			Payments: repositories.NewPaymentRepository(pool),
			Billing:  billingClient,
			Notifier: notify.NewNotifier(rdb, log),
			Log:      log,
		},
		Limiter: ratelimit.New(cfg.RateLimitPerMinute, rdb, log),
	}
	router := httpapi.NewRouter(deps)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	// Register server shutdown
	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	// Start server in goroutine
	go func() {
		log.Info("HTTP server listening",
			"addr", server.Addr,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogFatal("HTTP server failed", err)
		}
	}()

	// Wait for shutdown signal
	shutdownMgr.Wait()
}

// sweepLoop periodically removes temp entries orphaned by crashes.
// Normal cleanup does not depend on it; handles release their own files.
func sweepLoop(ctx context.Context, tmp *tempfiles.Manager, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Sweep logs removals and errors itself.
			_, _ = tmp.Sweep(maxAge)
		}
	}
}
