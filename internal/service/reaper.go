package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/audioscribe/audioscribe/config"
	"github.com/audioscribe/audioscribe/internal/core"
	"github.com/audioscribe/audioscribe/internal/domain/model"
	"github.com/audioscribe/audioscribe/internal/observability/metrics"
	"github.com/audioscribe/audioscribe/internal/observability/statsd"
)

// SweepLock takes a best-effort distributed lock so only one instance
// runs a given sweep tick. Satisfied by the Redis cache repository.
type SweepLock interface {
	SetIfNotExists(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
}

// sweepLockKey guards the retention sweep across instances.
const sweepLockKey = "audioscribe:reaper:sweep"

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Repo      core.ReaperRepository // Required: retention repository
	Config    config.ReaperConfig   // Required: retention configuration
	Logger    *slog.Logger          // Optional: structured logger
	Metrics   statsd.Sink           // Optional: sweep metrics
	Artifacts core.ArtifactStore    // Optional: transcript blob cleanup
	Lock      SweepLock             // Optional: cross-instance sweep lock
}

// ReaperService deletes old terminal jobs to keep the jobs table bounded.
// Transcript rows follow their job via the cascade; the matching blobs are
// removed from the artifact store when DeleteArtifacts is set.
type ReaperService struct {
	repo      core.ReaperRepository
	config    config.ReaperConfig
	logger    *slog.Logger
	metrics   statsd.Sink
	artifacts core.ArtifactStore
	lock      SweepLock
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ReaperRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "reaper_service")
		logger.Debug("ReaperService initialized",
			"interval", opts.Config.Interval,
			"completed_max_age", opts.Config.CompletedMaxAge,
			"failed_max_age", opts.Config.FailedMaxAge,
			"cancelled_max_age", opts.Config.CancelledMaxAge,
		)
	}

	return &ReaperService{
		repo:      opts.Repo,
		config:    opts.Config,
		logger:    logger,
		metrics:   opts.Metrics,
		artifacts: opts.Artifacts,
		lock:      opts.Lock,
	}, nil
}

// Run starts the cleanup loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReaperService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)
	}

	// Jitter prevents a thundering herd if multiple instances start together.
	waitWithJitter(ctx, s.config.Interval, s.logger)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if err := s.runCleanup(ctx); err != nil {
		s.logCleanupError(err, "initial cleanup")
	}

	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if err := s.runCleanup(ctx); err != nil {
				s.logCleanupError(err, "cleanup")
				// Continue running despite errors
			}
		}
	}
}

// runCleanup deletes each terminal state's expired jobs in batches. When a
// sweep lock is configured, a tick whose lock is held elsewhere is skipped;
// the other instance is already sweeping.
func (s *ReaperService) runCleanup(ctx context.Context) error {
	if !s.acquireSweepLock(ctx) {
		return nil
	}

	steps := []struct {
		state  model.JobState
		maxAge time.Duration
	}{
		{model.JobStateCompleted, s.config.CompletedMaxAge},
		{model.JobStateFailed, s.config.FailedMaxAge},
		{model.JobStateCancelled, s.config.CancelledMaxAge},
	}

	var (
		errs    []error
		deleted int64
	)
	for _, step := range steps {
		if step.maxAge <= 0 {
			continue
		}
		count, refs, err := s.deleteOldJobs(ctx, step.state, step.maxAge)
		if err != nil {
			errs = append(errs, fmt.Errorf("delete old %s jobs: %w", step.state, err))
			if isContextCancellation(err) {
				break
			}
			continue
		}
		deleted += count
		if count > 0 && s.logger != nil {
			s.logger.InfoContext(ctx, "deleted old jobs",
				"state", step.state, "count", count, "max_age", step.maxAge)
		}
		s.deleteArtifacts(ctx, refs)
	}

	if len(errs) > 0 {
		joined := errors.Join(errs...)
		if isContextCancellation(joined) {
			return context.Canceled
		}
		metrics.EmitSweep(s.metrics, "retention", int(deleted), joined)
		return fmt.Errorf("cleanup failed: %w", joined)
	}
	metrics.EmitSweep(s.metrics, "retention", int(deleted), nil)
	return nil
}

// deleteOldJobs loops until no more rows are affected to handle large
// datasets in batches. Collects the transcript artifact refs the batches
// orphaned so the caller can clean up blob storage.
func (s *ReaperService) deleteOldJobs(ctx context.Context, state model.JobState, maxAge time.Duration) (int64, []string, error) {
	var (
		total int64
		refs  []string
	)
	for {
		result, err := s.repo.DeleteOldJobs(ctx, core.DeleteOldJobsParams{
			State:     state,
			MaxAge:    maxAge,
			BatchSize: s.config.BatchSize,
		})
		if err != nil {
			return total, refs, err
		}
		total += result.Deleted
		refs = append(refs, result.TranscriptRefs...)
		if result.Deleted == 0 {
			return total, refs, nil
		}
		// Check context between batches
		if ctx.Err() != nil {
			return total, refs, ctx.Err()
		}
	}
}

// deleteArtifacts removes reaped transcript blobs from the artifact store.
// Best effort: the database rows are already gone, so a failed delete is
// logged and skipped rather than retried.
func (s *ReaperService) deleteArtifacts(ctx context.Context, refs []string) {
	if !s.config.DeleteArtifacts || s.artifacts == nil {
		return
	}
	for _, ref := range refs {
		if err := s.artifacts.Delete(ctx, ref); err != nil {
			if s.logger != nil {
				s.logger.WarnContext(ctx, "failed to delete reaped transcript artifact",
					"ref", ref, "error", err)
			}
			continue
		}
		if s.logger != nil {
			s.logger.DebugContext(ctx, "deleted reaped transcript artifact", "ref", ref)
		}
	}
}

// acquireSweepLock reports whether this instance should run the tick. A
// Redis error falls open: a duplicate sweep is cheaper than a stalled one.
func (s *ReaperService) acquireSweepLock(ctx context.Context) bool {
	if s.lock == nil {
		return true
	}
	ttl := s.config.Interval / 2
	if ttl < time.Second {
		ttl = time.Second
	}
	ok, err := s.lock.SetIfNotExists(ctx, sweepLockKey, []byte("1"), ttl)
	if err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "sweep lock unavailable, proceeding", "error", err)
		}
		return true
	}
	if !ok && s.logger != nil {
		s.logger.DebugContext(ctx, "sweep lock held by another instance, skipping tick")
	}
	return ok
}

func (s *ReaperService) logCleanupError(err error, label string) {
	if err == nil || s.logger == nil {
		return
	}
	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}
	s.logger.Error(label+" failed", "error", err)
}

// waitWithJitter sleeps a random duration up to 10% of interval.
func waitWithJitter(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	maxJitter := int64(interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// If crypto/rand fails, skip jitter rather than failing startup
		if logger != nil {
			logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
		// Graceful shutdown during jitter
	}
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
