// Package jobrunner provides the transcription worker pool: it claims queued
// jobs, runs the speech-to-text engine on their media, and persists results.
package jobrunner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/audioscribe/audioscribe/internal/core"
	"github.com/audioscribe/audioscribe/internal/data"
	domainjob "github.com/audioscribe/audioscribe/internal/domain/job"
	"github.com/audioscribe/audioscribe/internal/domain/model"
	"github.com/audioscribe/audioscribe/internal/observability/metrics"
	"github.com/audioscribe/audioscribe/internal/observability/statsd"
	"github.com/audioscribe/audioscribe/internal/service"
	"github.com/audioscribe/audioscribe/internal/transcribe"
)

const (
	defaultHeartbeat       = 15 * time.Second
	defaultSettingsRefresh = 30 * time.Second
	defaultClaimBatch      = 32
)

// RunnerOptions configures the transcription worker pool.
type RunnerOptions struct {
	DB        *sql.DB
	Logger    *slog.Logger
	Engine    transcribe.Engine  // Required: speech-to-text backend
	Artifacts core.ArtifactStore // Required: media and transcript storage

	// Worker settings
	Concurrency     int           // number of worker goroutines; defaults to 1
	Heartbeat       time.Duration // activity touch interval; defaults to 15s
	SettingsRefresh time.Duration // global limit reload interval; defaults to 30s

	// Optional dependency injections (useful for tests/decoupling)
	JobsRepo     core.JobRepository
	SettingsRepo core.SettingsRepository
	Registry     *domainjob.CancelRegistry
	Gate         *domainjob.Gate
	Metrics      statsd.Sink
}

// Runner claims queued jobs in admission order and executes them, bounded by
// the global and per-owner concurrency limits.
type Runner struct {
	jobs      *service.JobService
	repo      core.JobRepository
	settings  core.SettingsRepository
	engine    transcribe.Engine
	artifacts core.ArtifactStore
	gate      *domainjob.Gate
	registry  *domainjob.CancelRegistry
	logger    *slog.Logger
	metrics   statsd.Sink

	workers         int
	heartbeat       time.Duration
	settingsRefresh time.Duration
}

// NewRunner wires repositories and constructs the worker pool.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.DB == nil && opts.JobsRepo == nil {
		return nil, errors.New("either DB or JobsRepo must be provided")
	}
	if opts.Engine == nil {
		return nil, errors.New("transcription engine is required")
	}
	if opts.Artifacts == nil {
		return nil, errors.New("artifact store is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	repo := opts.JobsRepo
	if repo == nil {
		repo = data.NewJobRepo(opts.DB, data.RepoConfig{Logger: logger})
	}
	settings := opts.SettingsRepo
	if settings == nil && opts.DB != nil {
		settings = data.NewSettingsRepo(opts.DB, nil)
	}

	registry := opts.Registry
	if registry == nil {
		registry = domainjob.NewCancelRegistry()
	}
	gate := opts.Gate
	if gate == nil {
		gate = domainjob.NewGate(model.DefaultMaxConcurrentJobs)
	}

	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}
	heartbeat := opts.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	settingsRefresh := opts.SettingsRefresh
	if settingsRefresh <= 0 {
		settingsRefresh = defaultSettingsRefresh
	}

	jobSvc := service.MustNewJobService(service.JobServiceOptions{
		Repo:     repo,
		Settings: settings,
		Registry: registry,
		Logger:   logger,
	})

	return &Runner{
		jobs:            jobSvc,
		repo:            repo,
		settings:        settings,
		engine:          opts.Engine,
		artifacts:       opts.Artifacts,
		gate:            gate,
		registry:        registry,
		logger:          logger,
		metrics:         opts.Metrics,
		workers:         workers,
		heartbeat:       heartbeat,
		settingsRefresh: settingsRefresh,
	}, nil
}

// Registry exposes the cancel registry so the HTTP surface and recovery
// sweep can observe locally running jobs.
func (r *Runner) Registry() *domainjob.CancelRegistry { return r.registry }

// Run starts worker goroutines and processes jobs until the context is
// cancelled. The first worker error cancels its siblings.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting transcription runner",
		"workers", r.workers, "engine", r.engine.Name(), "heartbeat", r.heartbeat)

	r.refreshGlobalLimit(ctx)

	unsub, wakeups := r.jobs.Subscribe()
	defer unsub()
	defer r.jobs.StopAllListeners()

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		r.settingsLoop(gctx)
		return nil
	})
	for range r.workers {
		group.Go(func() error { return r.workerLoop(gctx, wakeups) })
	}
	return group.Wait()
}

// settingsLoop keeps the gate's global limit aligned with stored settings.
func (r *Runner) settingsLoop(ctx context.Context) {
	ticker := time.NewTicker(r.settingsRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refreshGlobalLimit(ctx)
		}
	}
}

func (r *Runner) refreshGlobalLimit(ctx context.Context) {
	if r.settings == nil {
		return
	}
	global, err := r.settings.Get(ctx, model.GlobalOwnerID)
	if err != nil {
		r.logger.WarnContext(ctx, "failed to load global settings", "error", err)
		return
	}
	if global.MaxConcurrentJobs != r.gate.Limit() {
		r.logger.InfoContext(ctx, "global concurrency limit changed",
			"old", r.gate.Limit(), "new", global.MaxConcurrentJobs)
		r.gate.SetLimit(global.MaxConcurrentJobs)
	}
}

func (r *Runner) workerLoop(ctx context.Context, wakeups <-chan struct{}) error {
	for ctx.Err() == nil {
		claimed, err := r.claimAndProcess(ctx)
		switch {
		case err == nil && claimed:
			// Look for more work immediately.
		case err == nil:
			if !r.waitForWakeup(ctx, wakeups) {
				return nil
			}
		case errors.Is(err, context.Canceled):
			return nil
		default:
			return fmt.Errorf("claim next job: %w", err)
		}
	}
	return nil
}

func (r *Runner) waitForWakeup(ctx context.Context, wakeups <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return false
	case _, ok := <-wakeups:
		return ok
	}
}

// claimAndProcess scans the queue head in admission order and runs the first
// job whose owner has capacity. Returns false when nothing was claimable.
func (r *Runner) claimAndProcess(ctx context.Context) (bool, error) {
	candidates, err := r.repo.ListQueued(ctx, defaultClaimBatch)
	if err != nil {
		return false, err
	}

	for _, candidate := range candidates {
		release, ok := r.acquireSlot(ctx, candidate)
		if !ok {
			continue
		}

		job, err := r.repo.Transition(ctx, core.TransitionParams{
			ID:   candidate.ID,
			From: model.JobStateQueued,
			To:   model.JobStateRunning,
		})
		if err != nil {
			release()
			if errors.Is(err, data.ErrTransitionConflict) || errors.Is(err, data.ErrJobNotFound) {
				// Another worker or a cancel got there first.
				continue
			}
			return false, err
		}

		func() {
			defer release()
			r.processJob(ctx, job)
		}()
		return true, nil
	}
	return false, nil
}

func (r *Runner) acquireSlot(ctx context.Context, job *model.Job) (func(), bool) {
	release, ok := r.gate.TryAcquire(job.OwnerID, r.ownerLimit(ctx, job.OwnerID))
	return release, ok
}

func (r *Runner) ownerLimit(ctx context.Context, ownerID string) int {
	if r.settings == nil {
		return 0
	}
	settings, err := r.settings.Get(ctx, ownerID)
	if err != nil {
		r.logger.WarnContext(ctx, "failed to load owner settings, owner unbounded",
			"owner", ownerID, "error", err)
		return 0
	}
	return settings.MaxConcurrentJobs
}

func (r *Runner) processJob(ctx context.Context, job *model.Job) {
	start := time.Now()
	logger := r.logger.With("job_id", job.ID, "owner", job.OwnerID, "attempt", job.RetryCount+1)

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	deregister := r.registry.Register(job.ID, cancel)
	defer deregister()

	// A cancel that landed between claim and registration.
	if job.CancelRequested {
		r.finishCancelled(ctx, job, logger)
		return
	}

	stopHeartbeat := r.startHeartbeat(jobCtx, job.ID, logger)
	defer stopHeartbeat()

	result, err := r.runEngine(jobCtx, job, logger)
	if err != nil {
		r.handleEngineFailure(ctx, jobCtx, job, err, logger)
		return
	}

	r.finishCompleted(ctx, job, result, start, logger)
}

// startHeartbeat touches the job's activity timestamp until the job ends so
// the recovery sweep can tell live jobs from orphans.
func (r *Runner) startHeartbeat(ctx context.Context, jobID string, logger *slog.Logger) func() {
	hbCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(r.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				if _, err := r.repo.Touch(hbCtx, jobID); err != nil && hbCtx.Err() == nil {
					logger.WarnContext(hbCtx, "job heartbeat failed", "error", err)
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// runEngine stages the media locally and invokes the engine.
func (r *Runner) runEngine(ctx context.Context, job *model.Job, logger *slog.Logger) (*transcribe.Result, error) {
	mediaPath, cleanup, err := stageMedia(ctx, r.artifacts, job.MediaRef)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	logger.InfoContext(ctx, "transcription started",
		"engine", r.engine.Name(), "model", job.Model, "media_ref", job.MediaRef)

	return r.engine.Run(ctx, mediaPath, transcribe.Config{
		Model:      job.Model,
		Language:   job.Language,
		Diarizer:   job.Diarizer,
		Diarize:    job.DiarizationEnabled,
		Timestamps: job.TimestampsEnabled,
	})
}

func (r *Runner) handleEngineFailure(
	ctx, jobCtx context.Context,
	job *model.Job,
	err error,
	logger *slog.Logger,
) {
	// Pool shutdown: leave the job running, recovery will requeue it.
	if ctx.Err() != nil {
		logger.InfoContext(ctx, "job interrupted by shutdown")
		return
	}

	// A cancel request interrupted the engine.
	if jobCtx.Err() != nil {
		r.finishCancelled(ctx, job, logger)
		return
	}

	ee := transcribe.AsEngineError(err)
	if ee.Transient() && job.RetryCount < job.MaxRetries {
		requeued, terr := r.repo.Transition(ctx, core.TransitionParams{
			ID:             job.ID,
			From:           model.JobStateRunning,
			To:             model.JobStateQueued,
			IncrementRetry: true,
		})
		if terr != nil {
			r.logTransitionError(ctx, job.ID, terr, logger)
			return
		}
		logger.WarnContext(ctx, "transient failure, job requeued",
			"kind", ee.Kind, "error", ee.Message, "retry_count", requeued.RetryCount)
		r.emitLifecycle(job, model.JobStateQueued, metrics.ResultError, 0, err)
		return
	}

	kind := ee.Kind
	msg := ee.Message
	if _, terr := r.repo.Transition(ctx, core.TransitionParams{
		ID:             job.ID,
		From:           model.JobStateRunning,
		To:             model.JobStateFailed,
		FailureKind:    &kind,
		FailureMessage: &msg,
	}); terr != nil {
		r.logTransitionError(ctx, job.ID, terr, logger)
		return
	}
	logger.WarnContext(ctx, "job failed", "kind", kind, "error", msg)
	r.emitLifecycle(job, model.JobStateFailed, metrics.ResultError, 0, err)
}

func (r *Runner) finishCancelled(ctx context.Context, job *model.Job, logger *slog.Logger) {
	if _, err := r.repo.Transition(ctx, core.TransitionParams{
		ID:   job.ID,
		From: model.JobStateRunning,
		To:   model.JobStateCancelled,
	}); err != nil {
		r.logTransitionError(ctx, job.ID, err, logger)
		return
	}
	logger.InfoContext(ctx, "job cancelled")
	r.emitLifecycle(job, model.JobStateCancelled, metrics.ResultSuccess, 0, nil)
}

func (r *Runner) finishCompleted(
	ctx context.Context,
	job *model.Job,
	result *transcribe.Result,
	start time.Time,
	logger *slog.Logger,
) {
	transcript, err := storeTranscript(ctx, r.artifacts, job, result)
	if err != nil {
		logger.ErrorContext(ctx, "failed to store transcript artifact", "error", err)
		kind := model.FailureKindEngine
		msg := fmt.Sprintf("store transcript: %v", err)
		if _, terr := r.repo.Transition(ctx, core.TransitionParams{
			ID:             job.ID,
			From:           model.JobStateRunning,
			To:             model.JobStateFailed,
			FailureKind:    &kind,
			FailureMessage: &msg,
		}); terr != nil {
			r.logTransitionError(ctx, job.ID, terr, logger)
		}
		r.emitLifecycle(job, model.JobStateFailed, metrics.ResultError, 0, err)
		return
	}

	completed, err := r.repo.CompleteWithTranscript(ctx, transcript)
	if err != nil {
		r.logTransitionError(ctx, job.ID, err, logger)
		return
	}

	if completed.CancelRequested {
		// The cancel arrived after the engine finished; the result stands.
		logger.WarnContext(ctx, "job completed despite cancel request")
	}
	logger.InfoContext(ctx, "transcription completed",
		"duration", time.Since(start),
		"segments", transcript.SegmentCount,
		"words", transcript.WordCount)
	r.emitLifecycle(job, model.JobStateCompleted, metrics.ResultSuccess, time.Since(start), nil)
}

func (r *Runner) emitLifecycle(job *model.Job, to model.JobState, result string, duration time.Duration, err error) {
	metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
		Engine:     r.engine.Name(),
		Model:      job.Model,
		Transition: string(to),
		Result:     result,
		Duration:   duration,
		Err:        err,
	})
}

func (r *Runner) logTransitionError(ctx context.Context, jobID string, err error, logger *slog.Logger) {
	if errors.Is(err, data.ErrTransitionConflict) {
		logger.DebugContext(ctx, "job state changed elsewhere", "error", err)
		return
	}
	logger.ErrorContext(ctx, "job transition failed", "error", err)
}
