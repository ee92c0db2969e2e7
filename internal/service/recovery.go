package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/audioscribe/audioscribe/config"
	"github.com/audioscribe/audioscribe/internal/core"
	"github.com/audioscribe/audioscribe/internal/data"
	domainjob "github.com/audioscribe/audioscribe/internal/domain/job"
	"github.com/audioscribe/audioscribe/internal/domain/model"
	apperrors "github.com/audioscribe/audioscribe/internal/errors"
	"github.com/audioscribe/audioscribe/internal/observability/metrics"
	"github.com/audioscribe/audioscribe/internal/observability/statsd"
)

// RecoveryServiceOptions groups dependencies for RecoveryService.
type RecoveryServiceOptions struct {
	Repo   core.JobRepository // Required: job repository
	Config config.RecoveryConfig
	// Registry identifies jobs actively running in this process so the
	// periodic sweep never touches them.
	Registry *domainjob.CancelRegistry
	Logger   *slog.Logger
	Metrics  statsd.Sink
}

// RecoveryService returns orphaned running jobs to a consistent state.
//
// A job is orphaned when the process executing it died. Liveness is judged
// by heartbeat: a running job whose activity timestamp has gone stale and
// that no local worker holds is an orphan, at startup and at runtime alike.
// Orphans with retry budget left go back to the queue; exhausted ones fail
// as interrupted; ones already flagged for cancellation are cancelled.
type RecoveryService struct {
	repo     core.JobRepository
	config   config.RecoveryConfig
	registry *domainjob.CancelRegistry
	logger   *slog.Logger
	metrics  statsd.Sink
}

// NewRecoveryService constructs a new RecoveryService.
func NewRecoveryService(opts RecoveryServiceOptions) (*RecoveryService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "recovery_service")
	}

	return &RecoveryService{
		repo:     opts.Repo,
		config:   opts.Config,
		registry: opts.Registry,
		logger:   logger,
		metrics:  opts.Metrics,
	}, nil
}

// RecoverOnStartup sweeps running jobs whose heartbeats have gone quiet.
// Call this before workers start so a restart never strands jobs in running.
// A running job with a fresh activity timestamp is left alone: it may be
// live on another instance, or a local worker may have claimed it between
// the list and this scan. Such a job becomes recoverable through the
// periodic sweep once its heartbeats actually stop.
func (s *RecoveryService) RecoverOnStartup(ctx context.Context) error {
	jobs, err := s.repo.ListRunning(ctx)
	if err != nil {
		return fmt.Errorf("list running jobs: %w", err)
	}

	cutoff := time.Now().Add(-s.maxIdle())
	recovered := 0
	live := 0
	for _, job := range jobs {
		if s.registry != nil && s.registry.Active(job.ID) {
			live++
			continue
		}
		if job.LastActiveAt != nil && job.LastActiveAt.After(cutoff) {
			live++
			continue
		}
		if err := s.recoverJob(ctx, job); err != nil {
			if isContextCancellation(err) {
				return err
			}
			if s.logger != nil {
				s.logger.ErrorContext(ctx, "startup recovery failed for job",
					"id", job.ID, "error", err)
			}
			continue
		}
		recovered++
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "startup recovery finished",
			"running", len(jobs), "live", live, "recovered", recovered)
	}
	metrics.EmitSweep(s.metrics, "startup_recovery", recovered, nil)
	return nil
}

// Run periodically sweeps stale running jobs until the context is cancelled.
// Returns nil on graceful shutdown.
func (s *RecoveryService) Run(ctx context.Context) error {
	interval := s.config.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting recovery service",
			"interval", interval, "max_idle", s.config.MaxIdle)
	}

	waitWithJitter(ctx, interval, s.logger)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "recovery service stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if err := s.sweepStale(ctx); err != nil && !isContextCancellation(err) && s.logger != nil {
				s.logger.ErrorContext(ctx, "stale job sweep failed", "error", err)
			}
		}
	}
}

func (s *RecoveryService) maxIdle() time.Duration {
	if s.config.MaxIdle <= 0 {
		return 5 * time.Minute
	}
	return s.config.MaxIdle
}

func (s *RecoveryService) sweepStale(ctx context.Context) error {
	jobs, err := s.repo.ListStaleRunning(ctx, s.maxIdle())
	if err != nil {
		return fmt.Errorf("list stale running jobs: %w", err)
	}

	recovered := 0
	for _, job := range jobs {
		if s.registry != nil && s.registry.Active(job.ID) {
			// Locally active but missing heartbeats, leave it to the worker.
			continue
		}
		if err := s.recoverJob(ctx, job); err != nil {
			if isContextCancellation(err) {
				return err
			}
			if s.logger != nil {
				s.logger.ErrorContext(ctx, "recovery failed for stale job",
					"id", job.ID, "error", err)
			}
			continue
		}
		recovered++
	}
	metrics.EmitSweep(s.metrics, "stale_recovery", recovered, nil)
	return nil
}

// recoverJob moves one orphaned running job to its recovery state. A conflict
// means another instance already handled it, which is fine.
func (s *RecoveryService) recoverJob(ctx context.Context, job *model.Job) error {
	var (
		recovered *model.Job
		err       error
		outcome   string
	)
	switch {
	case job.CancelRequested:
		outcome = "cancelled"
		recovered, err = s.repo.Transition(ctx, core.TransitionParams{
			ID:   job.ID,
			From: model.JobStateRunning,
			To:   model.JobStateCancelled,
		})

	case job.RetryCount < job.MaxRetries:
		outcome = "requeued"
		recovered, err = s.repo.Transition(ctx, core.TransitionParams{
			ID:             job.ID,
			From:           model.JobStateRunning,
			To:             model.JobStateQueued,
			IncrementRetry: true,
		})

	default:
		outcome = "failed"
		kind := model.FailureKindInterrupted
		msg := fmt.Sprintf("interrupted after %d attempts and no retry budget left", job.RetryCount+1)
		recovered, err = s.repo.Transition(ctx, core.TransitionParams{
			ID:             job.ID,
			From:           model.JobStateRunning,
			To:             model.JobStateFailed,
			FailureKind:    &kind,
			FailureMessage: &msg,
		})
	}

	if err != nil {
		if apperrors.IsConflict(err) || errors.Is(err, data.ErrTransitionConflict) {
			if s.logger != nil {
				s.logger.DebugContext(ctx, "orphan already recovered elsewhere", "id", job.ID)
			}
			return nil
		}
		return err
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "orphaned job recovered",
			"id", recovered.ID, "outcome", outcome,
			"retry_count", recovered.RetryCount, "max_retries", recovered.MaxRetries)
	}
	return nil
}
