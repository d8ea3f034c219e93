// Package main is the entry point for the tasks service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vyrodovalexey/taskcache/internal/auth"
	"github.com/vyrodovalexey/taskcache/internal/config"
	"github.com/vyrodovalexey/taskcache/internal/handler"
	"github.com/vyrodovalexey/taskcache/internal/imagestore"
	"github.com/vyrodovalexey/taskcache/internal/model"
	"github.com/vyrodovalexey/taskcache/internal/repository"
	"github.com/vyrodovalexey/taskcache/internal/server"
	"github.com/vyrodovalexey/taskcache/internal/store"
	"github.com/vyrodovalexey/taskcache/internal/store/remote"
	"github.com/vyrodovalexey/taskcache/internal/store/sqlstore"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		basicLogger, _ := zap.NewProduction()
		basicLogger.Error("failed to load configuration", zap.Error(err))
		return 1
	}

	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		basicLogger, _ := zap.NewProduction()
		basicLogger.Error("failed to initialize logger", zap.Error(err))
		return 1
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("configuration loaded",
		zap.Int("server_port", cfg.ServerPort),
		zap.String("log_level", cfg.LogLevel),
		zap.Duration("shutdown_timeout", cfg.ShutdownTimeout),
		zap.Bool("metrics_enabled", cfg.MetricsEnabled),
		zap.String("auth_mode", cfg.AuthMode),
		zap.String("source_kind", cfg.SourceKind),
		zap.String("image_store", cfg.ImageStore),
	)

	ctx := context.Background()

	authenticator, err := createAuthenticator(cfg, logger)
	if err != nil {
		logger.Error("failed to create authenticator", zap.Error(err))
		return 1
	}

	source, closeSource, err := openSource(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open task source", zap.Error(err))
		return 1
	}
	defer closeSource()

	images, err := openImageStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open image store", zap.Error(err))
		return 1
	}

	events := handler.NewEventHub(logger)
	repo := repository.New(source,
		repository.WithLogger(logger),
		repository.WithObserver(events),
	)

	srv := server.New(cfg, logger, server.Deps{
		Tasks:         repo,
		Events:        events,
		Authenticator: authenticator,
		Images:        images,
	})

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", zap.Error(err))
		return 1
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
			return 1
		}
	}

	logger.Info("server stopped")
	return 0
}

// initLogger initializes a zap logger with the specified log level.
func initLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}

	zapConfig := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Sampling: &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "message",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return zapConfig.Build()
}

// openSource opens the task source selected by the config. The returned
// func releases it.
func openSource(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, func(), error) {
	noop := func() {}

	var seed []model.Task
	if cfg.SeedTasks {
		seed = store.SampleTasks()
	}

	switch cfg.Kind() {
	case store.KindMemory:
		return store.NewMemoryStore(seed...), noop, nil

	case store.KindFake:
		logger.Info("using fake remote task source", zap.Duration("latency", cfg.FakeLatency))
		return store.NewFakeRemoteStore(cfg.FakeLatency, seed...), noop, nil

	case store.KindSQLite, store.KindPostgres:
		var (
			db  *sqlstore.Store
			err error
		)
		if cfg.Kind() == store.KindSQLite {
			db, err = sqlstore.OpenSQLite(ctx, cfg.SQLitePath)
		} else {
			db, err = sqlstore.OpenPostgres(ctx, cfg.PostgresDSN)
		}
		if err != nil {
			return nil, nil, err
		}
		logger.Info("task database opened", zap.String("dialect", db.Dialect()))

		closeDB := func() {
			if err := db.Close(); err != nil {
				logger.Warn("failed to close task database", zap.Error(err))
			}
		}
		if err := seedIfEmpty(ctx, db, seed); err != nil {
			closeDB()
			return nil, nil, err
		}
		return db, closeDB, nil

	case store.KindRemote:
		logger.Info("using remote task source", zap.String("url", cfg.RemoteURL))
		rs, err := remote.New(remote.Config{
			BaseURL: cfg.RemoteURL,
			Timeout: cfg.RemoteTimeout,
			APIKey:  cfg.RemoteAPIKey,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("creating remote source: %w", err)
		}
		return rs, noop, nil

	default:
		return nil, nil, fmt.Errorf("%w: %q", store.ErrUnknownKind, cfg.SourceKind)
	}
}

// seedIfEmpty writes seed into a persistent source that holds no tasks yet.
func seedIfEmpty(ctx context.Context, s store.Store, seed []model.Task) error {
	if len(seed) == 0 {
		return nil
	}

	existing, err := s.List(ctx)
	if err != nil {
		return fmt.Errorf("checking existing tasks: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	for _, task := range seed {
		if err := s.Save(ctx, task); err != nil {
			return fmt.Errorf("seeding task %s: %w", task.ID, err)
		}
	}
	return nil
}

// openImageStore returns nil when image uploads are disabled.
func openImageStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (imagestore.Store, error) {
	driver, err := imagestore.ParseDriver(cfg.ImageStore)
	if err != nil {
		return nil, err
	}

	switch driver {
	case imagestore.DriverMemory:
		logger.Info("image uploads stored in memory")
		return imagestore.NewMemoryStore(), nil
	case imagestore.DriverS3:
		logger.Info("image uploads stored in S3",
			zap.String("bucket", cfg.S3Bucket),
			zap.String("endpoint", cfg.S3Endpoint),
		)
		s3Store, err := imagestore.NewS3Store(ctx, cfg.S3Config())
		if err != nil {
			return nil, fmt.Errorf("creating S3 image store: %w", err)
		}
		return s3Store, nil
	default:
		return nil, nil
	}
}

// createAuthenticator creates an authenticator based on the config auth mode.
// It returns nil when authentication is disabled.
func createAuthenticator(cfg *config.Config, logger *zap.Logger) (auth.Authenticator, error) {
	method, err := auth.ParseMethod(cfg.AuthMode)
	if err != nil {
		return nil, err
	}

	switch method {
	case auth.MethodBasic:
		logger.Info("authentication mode: basic auth")
		return auth.NewBasicAuthenticator(cfg.BasicAuthUsers)
	case auth.MethodAPIKey:
		logger.Info("authentication mode: API key")
		return auth.NewAPIKeyAuthenticator(cfg.APIKeys)
	case auth.MethodMulti:
		logger.Info("authentication mode: multi")
		return createMultiAuthenticator(cfg, logger)
	default:
		logger.Info("authentication disabled")
		return nil, nil
	}
}

// createMultiAuthenticator combines every configured method, Basic first.
func createMultiAuthenticator(cfg *config.Config, logger *zap.Logger) (auth.Authenticator, error) {
	var authenticators []auth.Authenticator

	if cfg.BasicAuthUsers != "" {
		ba, err := auth.NewBasicAuthenticator(cfg.BasicAuthUsers)
		if err != nil {
			return nil, fmt.Errorf("creating basic authenticator: %w", err)
		}
		authenticators = append(authenticators, ba)
		logger.Info("multi-auth: basic auth enabled")
	}

	if cfg.APIKeys != "" {
		ak, err := auth.NewAPIKeyAuthenticator(cfg.APIKeys)
		if err != nil {
			return nil, fmt.Errorf("creating API key authenticator: %w", err)
		}
		authenticators = append(authenticators, ak)
		logger.Info("multi-auth: API key auth enabled")
	}

	if len(authenticators) == 0 {
		return nil, fmt.Errorf("multi auth mode requires at least one authenticator")
	}

	return auth.NewMultiAuthenticator(authenticators...), nil
}
