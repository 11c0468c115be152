package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"finextract/internal/config"
	"finextract/internal/handler"
	"finextract/internal/logger"
	"finextract/internal/notify/noop"
	"finextract/internal/notify/ses"
	"finextract/internal/pipeline"
	"finextract/internal/port"
	"finextract/internal/repository/sqlstore"
	"finextract/internal/router"
	"finextract/internal/service"
	"finextract/internal/storage"
	s3storage "finextract/internal/storage/s3"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlstore.NewDB(&cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := sqlstore.MigrateUp(db); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	runRepo := sqlstore.NewRunRepo(db)

	// Initialize storage
	var archive *storage.Archive
	if cfg.S3.Enabled {
		s3Client, err := s3storage.NewS3Client(ctx, &cfg.S3)
		if err != nil {
			return fmt.Errorf("failed to initialize S3 client: %w", err)
		}
		archive = storage.NewArchive(s3Client, cfg.S3.Bucket, cfg.S3.Prefix, zl)
	}

	notifier, err := newNotifier(ctx, &cfg.Notify, zl)
	if err != nil {
		return fmt.Errorf("failed to initialize notifier: %w", err)
	}

	p, err := pipeline.FromConfig(cfg, zl)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}

	extractionSvc := service.NewExtractionService(service.ExtractionDeps{
		Processor:     p,
		Runs:          runRepo,
		Archive:       archive,
		Notifier:      notifier,
		Cache:         cache.New(cfg.Cache.TTL, cfg.Cache.Cleanup),
		AccuracyFloor: cfg.Notify.AccuracyFloor,
		PresignTTL:    cfg.S3.PresignTTL,
		Logger:        zl,
	})

	// Initialize handlers
	extractionH := handler.NewExtractionHandler(extractionSvc, zl)
	healthH := handler.NewHealthHandler(runRepo)

	r := router.Setup(cfg, extractionH, healthH, zl)

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		zl.Info("server starting",
			zap.String("addr", cfg.Server.Port),
			zap.String("environment", cfg.Server.Environment),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

func newNotifier(ctx context.Context, cfg *config.NotifyConfig, zl *zap.Logger) (port.Notifier, error) {
	switch cfg.Provider {
	case "ses":
		return ses.NewSESNotifier(ctx, cfg)
	case "", "noop":
		return noop.NewNoopNotifier(zl), nil
	default:
		return nil, fmt.Errorf("unknown notify provider: %s", cfg.Provider)
	}
}
