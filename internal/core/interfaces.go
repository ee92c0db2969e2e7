package core

import (
	"context"
	"io"
	"time"

	"github.com/audioscribe/audioscribe/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// These interfaces define the contracts between the service layer and data layer.
// Service implementations should depend on these interfaces, not concrete implementations.

// TransitionParams groups parameters for a guarded job state transition. The
// transition only applies if the job is still in From when the update runs;
// a lost race surfaces as a Conflict error.
type TransitionParams struct {
	ID             string
	From           model.JobState
	To             model.JobState
	FailureKind    *model.FailureKind
	FailureMessage *string
	// IncrementRetry bumps the retry counter, used when recovery re-admits
	// an interrupted job.
	IncrementRetry bool
}

// JobRepository defines the interface for job data operations.
type JobRepository interface {
	Create(ctx context.Context, job *model.Job) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	List(ctx context.Context, opts *model.JobListOptions) ([]*model.Job, error)
	// ListQueued returns queued jobs in submission order, oldest first.
	ListQueued(ctx context.Context, limit int) ([]*model.Job, error)
	// ListRunning returns all jobs currently in the running state.
	ListRunning(ctx context.Context) ([]*model.Job, error)
	// ListStaleRunning returns running jobs whose last activity is older than maxIdle.
	ListStaleRunning(ctx context.Context, maxIdle time.Duration) ([]*model.Job, error)
	// Transition applies a guarded state change and records a lifecycle event
	// in the same transaction.
	Transition(ctx context.Context, params TransitionParams) (*model.Job, error)
	// CompleteWithTranscript transitions a running job to completed and
	// inserts its transcript row in the same transaction.
	CompleteWithTranscript(ctx context.Context, transcript *model.Transcript) (*model.Job, error)
	// RequestCancel marks a running job for cooperative cancellation. Returns
	// the updated job.
	RequestCancel(ctx context.Context, id string) (*model.Job, error)
	AddTags(ctx context.Context, id string, tags []string) (*model.Job, error)
	// Touch refreshes the job's activity timestamp while a worker holds it.
	Touch(ctx context.Context, id string) (bool, error)
	CountByOwnerInState(ctx context.Context, ownerID string, state model.JobState) (int, error)
	Stats(ctx context.Context) (*model.JobStats, error)
	// WaitForQueueNotification blocks until a new job is admitted to the
	// queue or the context ends.
	WaitForQueueNotification(ctx context.Context) error
	// DeleteOldJobs removes terminal jobs older than maxAge in batches.
	DeleteOldJobs(ctx context.Context, params DeleteOldJobsParams) (ReapResult, error)
}

// DeleteOldJobsParams groups parameters for DeleteOldJobs to keep param count ≤3.
type DeleteOldJobsParams struct {
	State     model.JobState
	MaxAge    time.Duration
	BatchSize int
}

// ReapResult reports what a retention batch removed. TranscriptRefs lists the
// artifact refs of transcripts that went down with their jobs, so the caller
// can clean up the corresponding blobs.
type ReapResult struct {
	Deleted        int64
	TranscriptRefs []string
}

// ReaperRepository is the narrow port the retention sweep needs.
type ReaperRepository interface {
	DeleteOldJobs(ctx context.Context, params DeleteOldJobsParams) (ReapResult, error)
}

// TranscriptRepository defines the interface for transcript metadata operations.
type TranscriptRepository interface {
	GetByJobID(ctx context.Context, jobID string) (*model.Transcript, error)
	DeleteByJobID(ctx context.Context, jobID string) (bool, error)
}

// JobEventRepository defines the interface for reading the lifecycle event log.
// Writes happen inside JobRepository.Transition; this port only consumes.
type JobEventRepository interface {
	ListAfter(ctx context.Context, query model.JobEventQuery) ([]*model.JobEvent, error)
	LatestSeq(ctx context.Context) (int64, error)
	// WaitForNotification blocks until a new event row lands or the context ends.
	WaitForNotification(ctx context.Context) error
}

// SettingsRepository defines the interface for owner settings storage. Get
// falls back to built-in defaults when no row exists.
type SettingsRepository interface {
	Get(ctx context.Context, ownerID string) (*model.OwnerSettings, error)
	Upsert(ctx context.Context, settings *model.OwnerSettings) (*model.OwnerSettings, error)
}

// ArtifactStore defines the interface for media and transcript blob storage.
// Refs are opaque keys scoped to the store's backend.
type ArtifactStore interface {
	Get(ctx context.Context, ref string) (io.ReadCloser, error)
	Put(ctx context.Context, ref string, body io.Reader, contentType string) error
	Delete(ctx context.Context, ref string) error
	Exists(ctx context.Context, ref string) (bool, error)
	// SignedURL returns a time-limited fetch URL, or an empty string if the
	// backend has no URL scheme.
	SignedURL(ctx context.Context, ref string, ttl time.Duration) (string, error)
}

// EventPublisher fans a lifecycle event out to external consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event *model.JobEvent) error
}
