package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/audioscribe/audioscribe/config"
	"github.com/audioscribe/audioscribe/internal/artifact"
	"github.com/audioscribe/audioscribe/internal/core"
	"github.com/audioscribe/audioscribe/internal/data"
	domainjob "github.com/audioscribe/audioscribe/internal/domain/job"
	"github.com/audioscribe/audioscribe/internal/observability/statsd"
	"github.com/audioscribe/audioscribe/internal/service"
	"github.com/audioscribe/audioscribe/internal/transcribe"
	"github.com/redis/go-redis/v9"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Jobs     *service.JobService
	Events   *service.EventService
	Settings *service.SettingsService

	// Artifacts is shared between the HTTP API (transcript reads, signed
	// URLs) and the transcription workers (media reads, transcript writes).
	Artifacts core.ArtifactStore

	// Registry tracks jobs running in this process. Sharing it lets the API
	// cancel local jobs immediately and keeps the recovery sweep away from
	// them.
	Registry *domainjob.CancelRegistry

	Observability ObservabilityContainer
}

// ObservabilityContainer groups observability dependencies.
type ObservabilityContainer struct {
	MetricsSink   statsd.Sink
	MetricsConfig config.ObservabilityMetricsConfig
}

// ServiceDeps contains dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// serviceRepositories groups repository construction results.
type serviceRepositories struct {
	DB          *sql.DB
	Redis       redis.UniversalClient
	JobRepo     *data.JobRepo
	EventRepo   *data.JobEventRepo
	Settings    core.SettingsRepository
	Transcripts *data.TranscriptRepo
	Publisher   core.EventPublisher
}

func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink statsd.Sink
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  "audioscribe",
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	return ObservabilityContainer{
		MetricsSink:   metricsSink,
		MetricsConfig: cfg.Metrics,
	}
}

// buildRepositories builds repositories backing service ports; no business rules here.
func buildRepositories(deps *ServiceDeps) *serviceRepositories {
	logger := deps.Logger
	cfg := deps.Config

	var settings core.SettingsRepository = data.NewSettingsRepo(deps.DB, nil)
	if deps.RedisClient != nil {
		cache := data.NewRedisCacheRepo(deps.RedisClient)
		settings = data.NewCachedSettingsRepo(settings, cache, cfg.Redis.SettingsCacheTTL, logger)
	}

	var publisher core.EventPublisher
	if cfg.Events.PublishEnabled && deps.RedisClient != nil {
		publisher = data.NewRedisEventPublisher(deps.RedisClient)
	}

	return &serviceRepositories{
		DB:          deps.DB,
		Redis:       deps.RedisClient,
		JobRepo:     data.NewJobRepo(deps.DB, data.RepoConfig{Logger: logger}),
		EventRepo:   data.NewJobEventRepo(deps.DB),
		Settings:    settings,
		Transcripts: data.NewTranscriptRepo(deps.DB),
		Publisher:   publisher,
	}
}

// buildArtifactStore constructs the blob backend named by configuration.
//
//nolint:ireturn // Callers program against the ArtifactStore port.
func buildArtifactStore(ctx context.Context, cfg config.ArtifactConfig, logger *slog.Logger) (core.ArtifactStore, error) {
	switch cfg.Backend {
	case config.ArtifactBackendFS:
		store, err := artifact.NewFSStore(cfg.FSRoot)
		if err != nil {
			return nil, fmt.Errorf("create filesystem artifact store: %w", err)
		}
		return store, nil
	case config.ArtifactBackendS3:
		store, err := artifact.NewS3Store(ctx, artifact.S3Config{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			ForcePathStyle:  cfg.S3ForcePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("create s3 artifact store: %w", err)
		}
		if logger != nil {
			logger.Info("using s3 artifact store", "bucket", cfg.S3Bucket, "endpoint", cfg.S3Endpoint)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown artifact backend %q", cfg.Backend)
	}
}

// buildEngine constructs the transcription engine named by configuration.
//
//nolint:ireturn // Callers program against the Engine port.
func buildEngine(cfg config.EngineConfig, logger *slog.Logger) (transcribe.Engine, error) {
	switch cfg.Kind {
	case config.EngineKindFasterWhisper:
		return transcribe.NewFasterWhisperEngine(transcribe.FasterWhisperConfig{
			Binary:     cfg.Binary,
			ModelDir:   cfg.ModelDir,
			RunTimeout: cfg.RunTimeout,
			Logger:     logger,
		}), nil
	case config.EngineKindOpenAI:
		engine, err := transcribe.NewOpenAIEngine(transcribe.OpenAIConfig{
			BaseURL: cfg.OpenAIBaseURL,
			APIKey:  cfg.OpenAIAPIKey,
			Logger:  logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create openai engine: %w", err)
		}
		return engine, nil
	default:
		return nil, fmt.Errorf("unknown engine kind %q", cfg.Kind)
	}
}

func newJobService(
	repos *serviceRepositories,
	artifacts core.ArtifactStore,
	registry *domainjob.CancelRegistry,
	logger *slog.Logger,
) *service.JobService {
	return service.MustNewJobService(service.JobServiceOptions{
		Repo:        repos.JobRepo,
		Transcripts: repos.Transcripts,
		Settings:    repos.Settings,
		Artifacts:   artifacts,
		Registry:    registry,
		Logger:      logger,
	})
}

func newEventService(repos *serviceRepositories, cfg config.EventsConfig, logger *slog.Logger) (*service.EventService, error) {
	svc, err := service.NewEventService(service.EventServiceOptions{
		Repo:         repos.EventRepo,
		Publisher:    repos.Publisher,
		Logger:       logger,
		PollInterval: cfg.PollInterval,
		BatchSize:    cfg.BatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("create event service: %w", err)
	}
	return svc, nil
}

func newSettingsService(repos *serviceRepositories, logger *slog.Logger) (*service.SettingsService, error) {
	svc, err := service.NewSettingsService(service.SettingsServiceOptions{
		Repo:   repos.Settings,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create settings service: %w", err)
	}
	return svc, nil
}

// NewServices initializes all application services with their dependencies.
func NewServices(ctx context.Context, deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	observability := buildObservability(logger, deps.Config.Observability)
	repos := buildRepositories(deps)
	registry := domainjob.NewCancelRegistry()

	artifacts, err := buildArtifactStore(ctx, deps.Config.Artifacts, logger)
	if err != nil {
		return ServiceContainer{}, err
	}

	events, err := newEventService(repos, deps.Config.Events, logger)
	if err != nil {
		return ServiceContainer{}, err
	}

	settings, err := newSettingsService(repos, logger)
	if err != nil {
		return ServiceContainer{}, err
	}

	return ServiceContainer{
		Jobs:          newJobService(repos, artifacts, registry, logger),
		Events:        events,
		Settings:      settings,
		Artifacts:     artifacts,
		Registry:      registry,
		Observability: observability,
	}, nil
}

// ServiceOrchestrationConfig contains everything needed to run the enabled services.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// startHTTPServerIfEnabled starts the HTTP server if enabled.
func startHTTPServerIfEnabled(deps *serviceStartupDeps) *http.Server {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		Logger:   deps.logger,
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				if deps.logger != nil {
					deps.logger.WarnContext(
						ctx,
						"dropping background service error",
						"service",
						descriptor.name,
						"error",
						errMsg,
					)
				} else {
					slog.Default().WarnContext(ctx, "dropping background service error", "service", descriptor.name, "error", errMsg)
				}
			}
		}
	}()

	if deps.logger != nil {
		deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	} else {
		slog.Default().InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	}

	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newTranscriberBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeTranscriber,
		name: "transcriber",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil || deps.cfg.Config == nil {
				return nil
			}
			appCfg := deps.cfg.Config
			return RunTranscriber(ctx, TranscriberRunnerConfig{
				DB:        deps.cfg.DB,
				Logger:    deps.logger,
				Engine:    appCfg.Engine,
				Artifacts: deps.cfg.Services.Artifacts,
				Worker:    appCfg.Transcriber,
				Registry:  deps.cfg.Services.Registry,
				Metrics:   deps.cfg.Services.Observability.MetricsSink,
			})
		},
	}
}

func newEventDispatcherBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeEvents,
		name: "event dispatcher",
		start: func(ctx context.Context) error {
			if deps == nil {
				return nil
			}
			return deps.cfg.Services.Events.Run(ctx)
		},
	}
}

func newRecoveryBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeRecovery,
		name: "recovery sweeper",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			var recoveryCfg config.RecoveryConfig
			if deps.cfg.Config != nil {
				recoveryCfg = deps.cfg.Config.Recovery
			}
			return RunRecovery(ctx, RecoveryRunnerConfig{
				DB:       deps.cfg.DB,
				Logger:   deps.logger,
				Config:   recoveryCfg,
				Registry: deps.cfg.Services.Registry,
				Metrics:  deps.cfg.Services.Observability.MetricsSink,
			})
		},
	}
}

func newReaperBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeReaper,
		name: "reaper",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			var reaperCfg config.ReaperConfig
			if deps.cfg.Config != nil {
				reaperCfg = deps.cfg.Config.Reaper
			}
			var lock service.SweepLock
			if deps.cfg.RedisClient != nil {
				lock = data.NewRedisCacheRepo(deps.cfg.RedisClient)
			}
			return RunReaper(ctx, ReaperRunnerConfig{
				DB:        deps.cfg.DB,
				Logger:    deps.logger,
				Config:    reaperCfg,
				Metrics:   deps.cfg.Services.Observability.MetricsSink,
				Artifacts: deps.cfg.Services.Artifacts,
				Lock:      lock,
			})
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newTranscriberBackgroundService(deps),
		newEventDispatcherBackgroundService(deps),
		newRecoveryBackgroundService(deps),
		newReaperBackgroundService(deps),
	}
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// startServices starts all enabled services and returns their completion channels.
func startServices(deps *serviceStartupDeps) ServiceStartupResult {
	return ServiceStartupResult{
		HTTPServer: startHTTPServerIfEnabled(deps),
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	ctx := context.Background()
	serviceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	// Determine which services are enabled
	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}

	// The HTTP event stream is fed by the dispatcher, so the API cannot
	// run without it.
	if enabledServices[config.ServiceModeHTTP] {
		enabledServices[config.ServiceModeEvents] = true
	}

	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	// Start all enabled services
	result := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})

	// Wait for shutdown signal or error
	return waitForShutdown(shutdownConfig{
		ctx:         serviceCtx,
		cancel:      cancel,
		errCh:       errCh,
		httpServer:  result.HTTPServer,
		jobService:  cfg.Services.Jobs,
		logger:      logger,
		backgrounds: result.Background,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	modes := []config.ServiceMode{
		config.ServiceModeHTTP,
		config.ServiceModeTranscriber,
		config.ServiceModeEvents,
		config.ServiceModeRecovery,
		config.ServiceModeReaper,
	}

	count := 0
	for _, mode := range modes {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	size := errorChannelCapacity(enabled) + 1
	if size < 1 {
		return 1
	}
	return size
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx         context.Context
	cancel      context.CancelFunc
	errCh       <-chan error
	httpServer  *http.Server
	jobService  *service.JobService
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel() // Cancel service context before waiting
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel() // Cancel service context before waiting
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services.
func gracefulStop(cfg shutdownConfig) error {
	// Gracefully stop HTTP server if running
	if cfg.httpServer != nil {
		// Create a timeout context for HTTP shutdown
		shutdownCtx, cancel := context.WithTimeout(cfg.ctx, shutdownWaitTimeout)
		defer cancel()

		if err := ShutdownHTTPServer(ShutdownConfig{
			Context:    shutdownCtx,
			Server:     cfg.httpServer,
			JobService: cfg.jobService,
			Logger:     cfg.logger,
		}); err != nil {
			return err
		}
	}

	// Wait for background services to finish
	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	return nil
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
