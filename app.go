package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Jonathanamir1/mixedbyyonatan/internal/config"
	"github.com/Jonathanamir1/mixedbyyonatan/internal/db"
	"github.com/Jonathanamir1/mixedbyyonatan/internal/events"
	"github.com/Jonathanamir1/mixedbyyonatan/internal/handler"
	"github.com/Jonathanamir1/mixedbyyonatan/internal/identity"
	mw "github.com/Jonathanamir1/mixedbyyonatan/internal/middleware"
	"github.com/Jonathanamir1/mixedbyyonatan/internal/repository"
	"github.com/Jonathanamir1/mixedbyyonatan/internal/router"
	"github.com/Jonathanamir1/mixedbyyonatan/internal/service"
	"github.com/Jonathanamir1/mixedbyyonatan/internal/storage"
	"go.uber.org/zap"
)

const (
	shutdownTimeout = 15 * time.Second
	orphanTimeout   = 10 * time.Second
)

func runServe(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	pool, err := db.NewPool(cfg.OxiDBHost, cfg.OxiDBPort, cfg.PoolSize, log)
	if err != nil {
		return fmt.Errorf("connect to oxidb: %w", err)
	}
	defer pool.Close()
	log.Info("connected to oxidb",
		zap.String("host", cfg.OxiDBHost),
		zap.Int("port", cfg.OxiDBPort),
		zap.Int("poolSize", cfg.PoolSize))

	users := repository.NewUserRepo(pool)
	sessions := repository.NewSessionRepo(pool)
	subs := repository.NewSubmissionRepo(pool)

	blobs, files, err := newStorage(ctx, cfg, pool)
	if err != nil {
		return err
	}

	var federated []*identity.FederatedProvider
	if cfg.GoogleEnabled() {
		federated = append(federated, identity.NewGoogle(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.PublicURL+"/api/v1/auth/google/callback"))
		log.Info("federated sign-in enabled", zap.String("provider", "google"))
	}
	idp := identity.NewProvider(users, sessions, identity.NewHub(), cfg.JWTSecret, cfg.SessionTTL, log, federated...)

	var notifier events.Notifier = events.Nop{}
	if cfg.AMQPURL != "" {
		pub, err := events.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, log)
		if err != nil {
			log.Warn("submission notifications disabled", zap.Error(err))
		} else {
			defer pub.Close()
			notifier = pub
		}
	}

	intakes := service.NewFactory(service.Deps{
		Store:    subs,
		Storage:  blobs,
		Notifier: notifier,
		Sessions: idp,
		Log:      log,
	}, service.WithOrphanHandler(func(ctx context.Context, key string) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), orphanTimeout)
		defer cancel()
		if err := blobs.Delete(ctx, key); err != nil {
			log.Warn("orphaned asset cleanup failed", zap.String("key", key), zap.Error(err))
		}
	}))

	h := router.Handlers{
		Auth:       handler.NewAuthHandler(idp, !cfg.Development(), log),
		Submission: handler.NewSubmissionHandler(intakes, log),
		Dashboard:  handler.NewDashboardHandler(subs, log),
	}
	if files != nil {
		h.Files = handler.NewFilesHandler(files)
	}
	r := router.New(idp, mw.NewRateLimiter(cfg.AuthRateLimit), h, log)

	// Serve immediately; index builds run on a dedicated connection so they do
	// not hold the request pool.
	go func() {
		if err := runInit(ctx, cfg, log); err != nil {
			log.Warn("background init failed", zap.Error(err))
		}
	}()

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Info("server starting", zap.String("addr", cfg.HTTPAddr), zap.String("storage", cfg.StorageBackend))

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newStorage returns the configured asset backend and, for the oxidb
// backend, the opener behind the /files route.
func newStorage(ctx context.Context, cfg *config.Config, pool db.Source) (storage.Storage, handler.BlobOpener, error) {
	if cfg.StorageBackend == config.StorageS3 {
		s3, err := storage.NewS3Storage(ctx, storage.S3Options{
			Bucket:        cfg.S3Bucket,
			Region:        cfg.S3Region,
			Endpoint:      cfg.S3Endpoint,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			PublicBaseURL: cfg.S3PublicBaseURL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("configure s3 storage: %w", err)
		}
		return s3, nil, nil
	}
	blobs := storage.NewOxiDBStorage(pool, cfg.PublicURL)
	return blobs, blobs, nil
}

// runInit creates indexes and the blob bucket and seeds the admin account.
func runInit(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	log.Info("init: starting")
	pool, err := db.NewPool(cfg.OxiDBHost, cfg.OxiDBPort, 1, log)
	if err != nil {
		return fmt.Errorf("init pool: %w", err)
	}
	defer pool.Close()

	users := repository.NewUserRepo(pool)
	sessions := repository.NewSessionRepo(pool)
	subs := repository.NewSubmissionRepo(pool)

	var errs []error
	if err := users.EnsureIndexes(ctx); err != nil {
		errs = append(errs, fmt.Errorf("user indexes: %w", err))
	}
	if err := sessions.EnsureIndexes(ctx); err != nil {
		errs = append(errs, fmt.Errorf("session indexes: %w", err))
	}
	start := time.Now()
	if err := subs.EnsureIndexes(ctx); err != nil {
		errs = append(errs, fmt.Errorf("submission indexes: %w", err))
	} else {
		log.Info("init: submission indexes ready", zap.Duration("took", time.Since(start).Round(time.Millisecond)))
	}
	if cfg.StorageBackend == config.StorageOxiDB {
		if err := storage.NewOxiDBStorage(pool, cfg.PublicURL).EnsureBucket(ctx); err != nil {
			errs = append(errs, fmt.Errorf("blob bucket: %w", err))
		}
	}

	idp := identity.NewProvider(users, sessions, identity.NewHub(), cfg.JWTSecret, cfg.SessionTTL, log)
	if cfg.AdminEmail != "" && cfg.AdminPass != "" {
		if err := idp.SeedAdmin(ctx, cfg.AdminEmail, cfg.AdminPass); err != nil {
			errs = append(errs, fmt.Errorf("seed admin: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	n, err := subs.CountAll(ctx)
	if err != nil {
		return fmt.Errorf("count submissions: %w", err)
	}
	log.Info("init: done", zap.Int("submissions", n))
	return nil
}
