package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/ksteimel/fast-coref/internal/checkpoint"
	"github.com/ksteimel/fast-coref/internal/config"
	"github.com/ksteimel/fast-coref/internal/data"
	"github.com/ksteimel/fast-coref/internal/experiment"
	"github.com/ksteimel/fast-coref/internal/handler"
	"github.com/ksteimel/fast-coref/internal/model"
	_ "github.com/ksteimel/fast-coref/internal/model/oracle"
	"github.com/ksteimel/fast-coref/internal/pkg/database"
	"github.com/ksteimel/fast-coref/internal/pkg/logger"
	"github.com/ksteimel/fast-coref/internal/pkg/storage"
	pgrepo "github.com/ksteimel/fast-coref/internal/repository/postgres"
)

const sentryFlushTimeout = 5 * time.Second

// initLogging initializes the global logger, mirrored into
// <model_dir>/train.log when log.to_file is set
func initLogging(cfg *config.Config) (*zap.Logger, error) {
	lc := logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}
	if cfg.Log.ToFile && cfg.Experiment.ModelDir != "" {
		if err := os.MkdirAll(cfg.Experiment.ModelDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create model dir: %w", err)
		}
		lc.File = filepath.Join(cfg.Experiment.ModelDir, "train.log")
	}
	return logger.Init(lc)
}

// initSentry enables error reporting when a DSN is configured. The returned
// function flushes buffered events.
func initSentry(cfg *config.Config, log *zap.Logger) func() {
	if cfg.Sentry.DSN == "" {
		return func() {}
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.Sentry.DSN,
		Environment:      cfg.Sentry.Environment,
		Release:          "fastcoref@" + Version,
		AttachStacktrace: true,
	})
	if err != nil {
		log.Error("failed to initialize Sentry", zap.Error(err))
		return func() {}
	}
	log.Info("Sentry initialized", zap.String("environment", cfg.Sentry.Environment))
	return func() { sentry.Flush(sentryFlushTimeout) }
}

// reportError sends a failed run to Sentry, tagged with the run
func reportError(runID string, err error) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("run_id", runID)
		sentry.CaptureException(err)
	})
}

// runtime holds the process-wide collaborators shared by every experiment
type runtime struct {
	logger  *zap.Logger
	objects *storage.MinIOStore
	db      *database.PostgresDB
	sinks   []experiment.ResultSink
}

// newRuntime connects to the configured object store and results database
func newRuntime(ctx context.Context, cfg *config.Config, log *zap.Logger) (*runtime, error) {
	rt := &runtime{logger: log}

	if cfg.Storage.Kind == "minio" {
		mc := cfg.Storage.MinIO
		store, err := storage.NewMinIO(ctx, storage.MinIOConfig{
			Endpoint:  mc.Endpoint,
			AccessKey: mc.AccessKey,
			SecretKey: mc.SecretKey,
			UseSSL:    mc.UseSSL,
			Bucket:    mc.Bucket,
			Prefix:    mc.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize MinIO: %w", err)
		}
		rt.objects = store
	}

	if cfg.Postgres.Enabled {
		db, err := database.NewPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		repo := pgrepo.NewResultRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		rt.db = db
		rt.sinks = append(rt.sinks, repo)
	}

	return rt, nil
}

// Close releases the database pool
func (rt *runtime) Close() {
	if rt.db != nil {
		rt.db.Close()
	}
}

// locations places checkpoints on the object store, mirroring the local
// directory layout. Local storage is the experiment's default.
func (rt *runtime) locations(cfg *config.Config) checkpoint.Locations {
	if rt.objects == nil {
		return checkpoint.Locations{}
	}
	return checkpoint.Locations{
		Last: rt.objects.Sub(objectDir(cfg.Experiment.ModelDir)),
		Best: rt.objects.Sub(objectDir(cfg.Experiment.BestModelDir)),
	}
}

func objectDir(dir string) string {
	return strings.TrimPrefix(filepath.ToSlash(filepath.Clean(dir)), "/")
}

// newExperiment resolves the registered model and backend for cfg
func (rt *runtime) newExperiment(cfg *config.Config) (*experiment.Experiment, error) {
	factory, err := model.Lookup(cfg.Model.Name)
	if err != nil {
		return nil, err
	}
	newBackend, err := model.LookupBackend(cfg.Backend.Name)
	if err != nil {
		return nil, err
	}
	backend, err := newBackend()
	if err != nil {
		return nil, fmt.Errorf("failed to create backend %s: %w", cfg.Backend.Name, err)
	}

	return experiment.New(cfg, experiment.Deps{
		Logger:       rt.logger,
		ModelFactory: factory,
		Backend:      backend,
		Tensorizer:   data.NewPassthrough,
		Checkpoints:  rt.locations(cfg),
		Sinks:        rt.sinks,
	})
}

// run executes one experiment, serving its status while it runs when
// enabled
func (rt *runtime) run(ctx context.Context, cfg *config.Config) error {
	exp, err := rt.newExperiment(cfg)
	if err != nil {
		return err
	}

	if cfg.Status.Enabled {
		app := handler.NewApp(handler.NewStatusHandler(exp, Version), rt.logger)
		go func() {
			if err := app.Listen(cfg.Status.Addr); err != nil {
				rt.logger.Error("status server error", zap.Error(err))
			}
		}()
		defer func() {
			if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
				rt.logger.Warn("status server shutdown failed", zap.Error(err))
			}
		}()
		rt.logger.Info("serving run status", zap.String("addr", cfg.Status.Addr))
	}

	if err := exp.Run(ctx); err != nil {
		reportError(exp.RunID(), err)
		return err
	}
	for _, rep := range exp.Reports() {
		for key, result := range rep.Results {
			rt.logger.Info("final performance",
				zap.String("result", key),
				zap.Float64("fscore", result.FScore),
				zap.String("source", string(result.Source)),
			)
		}
	}
	return nil
}
