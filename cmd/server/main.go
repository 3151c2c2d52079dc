package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/kenneth/solar-entropy-pool/internal/api"
	"github.com/kenneth/solar-entropy-pool/internal/audit"
	"github.com/kenneth/solar-entropy-pool/internal/blob"
	"github.com/kenneth/solar-entropy-pool/internal/conditioner"
	"github.com/kenneth/solar-entropy-pool/internal/config"
	"github.com/kenneth/solar-entropy-pool/internal/debug"
	"github.com/kenneth/solar-entropy-pool/internal/extractor"
	"github.com/kenneth/solar-entropy-pool/internal/frames"
	"github.com/kenneth/solar-entropy-pool/internal/hardware"
	"github.com/kenneth/solar-entropy-pool/internal/metrics"
	"github.com/kenneth/solar-entropy-pool/internal/middleware"
	"github.com/kenneth/solar-entropy-pool/internal/pool"
	"github.com/kenneth/solar-entropy-pool/internal/refill"
	"github.com/kenneth/solar-entropy-pool/internal/validator"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	logger := logrus.New()

	watcher, err := config.NewWatcher(*configPath, logger, nil)
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}
	defer watcher.Close()

	cfg := watcher.Current()

	level, err := logrus.ParseLevel(cfg.App.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	debug.InitFromLogLevel(cfg.App.LogLevel)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	store := pool.NewRedisStore(redisClient)
	entropyPool := pool.New(store, cfg.Pool.EntropyTTL, cfg.Pool.StatsSampleSize)
	entropyPool.SetReinsertRemainder(cfg.Pool.ReinsertRemainder)

	m := metrics.NewMetrics()
	m.SetHardwareAccelerationStatus("avx2", hardware.HasAVX2())
	m.SetHardwareAccelerationStatus("neon", hardware.HasNEON())
	m.StartSystemMetricsCollector()

	auditLogger, err := audit.NewLoggerFromConfig(cfg.Audit)
	if err != nil {
		log.Fatalf("configure audit logger: %v", err)
	}
	defer auditLogger.Close()

	var archiver blob.Archiver
	if cfg.Archive.Enabled {
		a, err := blob.NewLocalArchiver(cfg.Archive.Dir)
		if err != nil {
			logger.WithError(err).Warn("archive directory unavailable, continuing without archival")
		} else {
			archiver = a
		}
	}

	source := frames.NewSDOSource(cfg.Frames, archiver, logger)
	ext := extractor.New(extractor.Config{
		CutoffRatio:   cfg.Extractor.CutoffRatio,
		RandomRegions: cfg.Extractor.RandomRegions,
		RegionSize:    cfg.Extractor.RegionSize,
	})
	cond := conditioner.New()
	val := validator.New(validator.Config{
		MinShannonEntropy: cfg.Validator.MinShannonEntropy,
		MinQualityScore:   cfg.Validator.MinQualityScore,
	})

	refillLoop := refill.New(entropyPool, source, ext, cond, val, cfg.Pool, m, auditLogger, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go refillLoop.Run(ctx)

	go func() {
		ticker := time.NewTicker(cfg.Frames.FetchInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fetchCtx, cancelFetch := context.WithTimeout(ctx, cfg.Frames.FetchTimeout)
				if _, err := source.FetchLatest(fetchCtx); err != nil {
					logger.WithError(err).Warn("periodic frame fetch failed")
				}
				cancelFetch()
			}
		}
	}()

	handler := api.NewHandler(entropyPool, logger, m, auditLogger, cfg.API.DefaultRandomBytes, cfg.API.MaxBytesPerRequest)

	router := mux.NewRouter()
	apiRouter := router.PathPrefix(cfg.API.RoutePrefix).Subrouter()
	handler.RegisterRoutes(apiRouter)
	router.Handle("/metrics", m.Handler())

	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.RecoveryMiddleware(logger))

	srv := &http.Server{
		Addr:         cfg.API.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.API.ListenAddr).Info("starting solar entropy pool server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("graceful shutdown failed")
	}
}
