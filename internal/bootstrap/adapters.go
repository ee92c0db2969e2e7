package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/audioscribe/audioscribe/config"
	"github.com/audioscribe/audioscribe/internal/adapters/jobrunner"
	"github.com/audioscribe/audioscribe/internal/core"
	"github.com/audioscribe/audioscribe/internal/data"
	domainjob "github.com/audioscribe/audioscribe/internal/domain/job"
	"github.com/audioscribe/audioscribe/internal/observability/statsd"
	"github.com/audioscribe/audioscribe/internal/service"
)

// TranscriberRunnerConfig contains configuration for the transcription worker pool.
type TranscriberRunnerConfig struct {
	DB        *sql.DB
	Logger    *slog.Logger
	Engine    config.EngineConfig
	Artifacts core.ArtifactStore
	Worker    config.TranscriberConfig
	Registry  *domainjob.CancelRegistry
	Metrics   statsd.Sink
}

// RunTranscriber starts the transcription worker pool.
func RunTranscriber(ctx context.Context, cfg TranscriberRunnerConfig) error {
	engine, err := buildEngine(cfg.Engine, cfg.Logger)
	if err != nil {
		return err
	}

	runner, err := jobrunner.NewRunner(jobrunner.RunnerOptions{
		DB:              cfg.DB,
		Logger:          cfg.Logger,
		Engine:          engine,
		Artifacts:       cfg.Artifacts,
		Concurrency:     cfg.Worker.Concurrency,
		Heartbeat:       cfg.Worker.Heartbeat,
		SettingsRefresh: cfg.Worker.SettingsRefresh,
		Registry:        cfg.Registry,
		Metrics:         cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create transcription runner: %w", err)
	}

	if runErr := runner.Run(ctx); runErr != nil {
		return fmt.Errorf("run transcription runner: %w", runErr)
	}
	return nil
}

// RecoveryRunnerConfig contains configuration for the orphan recovery sweeper.
type RecoveryRunnerConfig struct {
	DB       *sql.DB
	Logger   *slog.Logger
	Config   config.RecoveryConfig
	Registry *domainjob.CancelRegistry
	Metrics  statsd.Sink
}

// RunRecovery performs the startup orphan sweep and then runs the periodic
// stale-job sweeper until the context is cancelled.
func RunRecovery(ctx context.Context, cfg RecoveryRunnerConfig) error {
	svc, err := service.NewRecoveryService(service.RecoveryServiceOptions{
		Repo:     data.NewJobRepo(cfg.DB, data.RepoConfig{Logger: cfg.Logger}),
		Config:   cfg.Config,
		Registry: cfg.Registry,
		Logger:   cfg.Logger,
		Metrics:  cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create recovery service: %w", err)
	}

	if err := svc.RecoverOnStartup(ctx); err != nil {
		return fmt.Errorf("startup recovery: %w", err)
	}

	return svc.Run(ctx)
}

// ReaperRunnerConfig contains configuration for the retention reaper.
type ReaperRunnerConfig struct {
	DB        *sql.DB
	Logger    *slog.Logger
	Config    config.ReaperConfig
	Metrics   statsd.Sink
	Artifacts core.ArtifactStore
	Lock      service.SweepLock
}

// RunReaper starts the retention reaper service.
func RunReaper(ctx context.Context, cfg ReaperRunnerConfig) error {
	svc, err := service.NewReaperService(service.ReaperServiceOptions{
		Repo:      data.NewJobRepo(cfg.DB, data.RepoConfig{Logger: cfg.Logger}),
		Config:    cfg.Config,
		Logger:    cfg.Logger,
		Metrics:   cfg.Metrics,
		Artifacts: cfg.Artifacts,
		Lock:      cfg.Lock,
	})
	if err != nil {
		return fmt.Errorf("create reaper service: %w", err)
	}

	return svc.Run(ctx)
}
