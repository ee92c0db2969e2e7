package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/audioscribe/audioscribe/internal/core"
	domainjob "github.com/audioscribe/audioscribe/internal/domain/job"
	"github.com/audioscribe/audioscribe/internal/domain/model"
	apperrors "github.com/audioscribe/audioscribe/internal/errors"
)

// TranscriptContentType is the media type of stored transcript artifacts.
const TranscriptContentType = "application/json"

const defaultSignedURLTTL = 15 * time.Minute

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Repo            core.JobRepository        // Required: job repository
	Transcripts     core.TranscriptRepository // Optional: needed for transcript reads
	Settings        core.SettingsRepository   // Optional: defaults applied without it
	Artifacts       core.ArtifactStore        // Optional: needed for transcript bodies
	Registry        *domainjob.CancelRegistry // Optional: in-process cancellation
	Logger          *slog.Logger              // Optional: structured logger
	Notifier        domainjob.Notifier        // Optional: custom queue notifier
	NotifierOptions domainjob.NotifierOptions // Optional: configure default notifier
	SignedURLTTL    time.Duration             // Optional: transcript URL lifetime
}

// JobService provides business logic for transcription job operations.
//
// This service manages:
// - Job submission with per-owner admission limits
// - Cancellation of queued and running jobs
// - Transcript retrieval
// - Pub/sub notification of queue admissions.
type JobService struct {
	repo         core.JobRepository
	transcripts  core.TranscriptRepository
	settings     core.SettingsRepository
	artifacts    core.ArtifactStore
	registry     *domainjob.CancelRegistry
	notifier     domainjob.Notifier
	logger       *slog.Logger
	signedURLTTL time.Duration
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Repo == nil {
		return nil, apperrors.Internal("JobRepository is required")
	}

	notifier := opts.Notifier
	if notifier == nil {
		options := opts.NotifierOptions
		if options.Waiter == nil {
			options.Waiter = domainjob.WaiterFunc(opts.Repo.WaitForQueueNotification)
		}
		var err error
		notifier, err = domainjob.NewNotifier(options)
		if err != nil {
			return nil, fmt.Errorf("create queue notifier: %w", err)
		}
	}

	ttl := opts.SignedURLTTL
	if ttl <= 0 {
		ttl = defaultSignedURLTTL
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "job_service")
	}

	return &JobService{
		repo:         opts.Repo,
		transcripts:  opts.Transcripts,
		settings:     opts.Settings,
		artifacts:    opts.Artifacts,
		registry:     opts.Registry,
		notifier:     notifier,
		logger:       logger,
		signedURLTTL: ttl,
	}, nil
}

// MustNewJobService constructs a new JobService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewJobService(opts JobServiceOptions) *JobService {
	svc, err := NewJobService(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create JobService: %v", err))
	}
	return svc
}

// Submit validates a submission, fills owner defaults, checks the media ref
// resolves in the artifact store, enforces the owner's queue depth cap, and
// admits the job to the queue.
func (s *JobService) Submit(ctx context.Context, req *model.SubmitJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, apperrors.Validation("request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid job submission")
	}

	settings, err := s.ownerSettings(ctx, req.OwnerID)
	if err != nil {
		return nil, err
	}

	job := buildJob(req, settings)
	if err := validateJobConfig(job); err != nil {
		return nil, err
	}

	if s.artifacts != nil {
		exists, err := s.artifacts.Exists(ctx, req.MediaRef)
		if err != nil {
			return nil, fmt.Errorf("check media ref %s: %w", req.MediaRef, err)
		}
		if !exists {
			return nil, apperrors.ValidationField("media_ref",
				fmt.Sprintf("media %q not found in artifact store", req.MediaRef))
		}
	}

	queued, err := s.repo.CountByOwnerInState(ctx, req.OwnerID, model.JobStateQueued)
	if err != nil {
		return nil, fmt.Errorf("count queued jobs: %w", err)
	}
	if settings.MaxQueuedJobs > 0 && queued >= settings.MaxQueuedJobs {
		return nil, apperrors.Conflictf(
			"owner %s has %d queued jobs, limit is %d", req.OwnerID, queued, settings.MaxQueuedJobs)
	}

	created, err := s.repo.Create(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "job submitted",
			"id", created.ID, "owner", created.OwnerID, "model", created.Model)
	}

	return created, nil
}

func (s *JobService) ownerSettings(ctx context.Context, ownerID string) (*model.OwnerSettings, error) {
	if s.settings == nil {
		return model.DefaultOwnerSettings(ownerID), nil
	}
	settings, err := s.settings.Get(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load owner settings: %w", err)
	}
	return settings, nil
}

// buildJob merges the request over the owner's defaults.
func buildJob(req *model.SubmitJobRequest, settings *model.OwnerSettings) *model.Job {
	job := &model.Job{
		OwnerID:            req.OwnerID,
		MediaRef:           req.MediaRef,
		Model:              settings.Model,
		Language:           settings.Language,
		Diarizer:           settings.Diarizer,
		DiarizationEnabled: settings.DiarizationEnabled,
		TimestampsEnabled:  settings.TimestampsEnabled,
		Tags:               req.Tags,
		MaxRetries:         settings.MaxRetries,
	}
	if req.Model != nil {
		job.Model = *req.Model
	}
	if req.Language != nil {
		job.Language = *req.Language
	}
	if req.Diarizer != nil {
		job.Diarizer = *req.Diarizer
	}
	if req.DiarizationEnabled != nil {
		job.DiarizationEnabled = *req.DiarizationEnabled
	}
	if req.TimestampsEnabled != nil {
		job.TimestampsEnabled = *req.TimestampsEnabled
	}
	return job
}

func validateJobConfig(job *model.Job) error {
	if !model.KnownModel(job.Model) {
		return apperrors.ValidationField("model",
			fmt.Sprintf("unknown model %q, known models: %v", job.Model, model.KnownModels()))
	}
	if !model.KnownDiarizer(job.Diarizer) {
		return apperrors.ValidationField("diarizer",
			fmt.Sprintf("unknown diarizer %q, known diarizers: %v", job.Diarizer, model.KnownDiarizers()))
	}
	if job.DiarizationEnabled && job.Diarizer == model.DefaultDiarizer {
		return apperrors.ValidationField("diarizer", "diarization enabled but diarizer is none")
	}
	return nil
}

// Get returns a job by ID.
func (s *JobService) Get(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

// List returns jobs matching the given filters.
func (s *JobService) List(ctx context.Context, opts *model.JobListOptions) ([]*model.Job, error) {
	jobs, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Cancel cancels a job. Queued jobs are cancelled immediately; running jobs
// are flagged for cooperative cancellation and, when running in this process,
// interrupted right away. Cancelling a terminal job is an invalid state error.
func (s *JobService) Cancel(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}

	switch job.State {
	case model.JobStateQueued:
		cancelled, err := s.repo.Transition(ctx, core.TransitionParams{
			ID:   id,
			From: model.JobStateQueued,
			To:   model.JobStateCancelled,
		})
		if err != nil {
			return nil, fmt.Errorf("cancel queued job %s: %w", id, err)
		}
		if s.logger != nil {
			s.logger.InfoContext(ctx, "queued job cancelled", "id", id)
		}
		return cancelled, nil

	case model.JobStateRunning:
		flagged, err := s.repo.RequestCancel(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("request cancel for job %s: %w", id, err)
		}
		if s.registry != nil && s.registry.Cancel(id) && s.logger != nil {
			s.logger.InfoContext(ctx, "running job interrupted", "id", id)
		}
		return flagged, nil

	default:
		return nil, apperrors.InvalidStatef("job %s is already %s", id, job.State)
	}
}

// AddTags appends tags to a job, ignoring ones it already carries.
func (s *JobService) AddTags(ctx context.Context, id string, tags []string) (*model.Job, error) {
	if err := model.ValidateTags(tags); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid tags")
	}
	job, err := s.repo.AddTags(ctx, id, tags)
	if err != nil {
		return nil, fmt.Errorf("add tags to job %s: %w", id, err)
	}
	return job, nil
}

// Stats returns job counts per state.
func (s *JobService) Stats(ctx context.Context) (*model.JobStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	return stats, nil
}

// TranscriptResult bundles transcript metadata with its document and, when
// the store supports it, a time-limited download URL.
type TranscriptResult struct {
	Transcript *model.Transcript         `json:"transcript"`
	Document   *model.TranscriptDocument `json:"document,omitempty"`
	SignedURL  string                    `json:"signed_url,omitempty"`
}

// GetTranscript loads the transcript for a completed job. The document body
// is fetched from the artifact store unless the store offers a signed URL.
func (s *JobService) GetTranscript(ctx context.Context, jobID string) (*TranscriptResult, error) {
	if s.transcripts == nil {
		return nil, apperrors.Internal("transcript repository not configured")
	}

	transcript, err := s.transcripts.GetByJobID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get transcript for job %s: %w", jobID, err)
	}

	result := &TranscriptResult{Transcript: transcript}
	if s.artifacts == nil {
		return result, nil
	}

	url, err := s.artifacts.SignedURL(ctx, transcript.ArtifactRef, s.signedURLTTL)
	if err == nil && url != "" {
		result.SignedURL = url
		return result, nil
	}
	if err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "signed URL unavailable, streaming transcript",
			"job_id", jobID, "error", err)
	}

	doc, err := s.readTranscriptDocument(ctx, transcript.ArtifactRef)
	if err != nil {
		return nil, fmt.Errorf("read transcript artifact for job %s: %w", jobID, err)
	}
	result.Document = doc
	return result, nil
}

func (s *JobService) readTranscriptDocument(ctx context.Context, ref string) (*model.TranscriptDocument, error) {
	rc, err := s.artifacts.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var doc model.TranscriptDocument
	if err := json.NewDecoder(rc).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode transcript document: %w", err)
	}
	// Drain so pooled HTTP connections can be reused by blob backends.
	_, _ = io.Copy(io.Discard, rc)
	return &doc, nil
}

// Subscribe creates a subscription for queue admission notifications.
// Returns an unsubscribe function and a channel that receives wakeups.
func (s *JobService) Subscribe() (func(), <-chan struct{}) {
	if s.notifier == nil {
		ch := make(chan struct{})
		close(ch)
		return func() {}, ch
	}
	return s.notifier.Subscribe()
}

// StopAllListeners stops the queue notification listener. This should be
// called during graceful shutdown to clean up goroutines.
func (s *JobService) StopAllListeners() {
	if s.logger != nil {
		s.logger.Info("stopping queue listeners")
	}
	if s.notifier != nil {
		s.notifier.StopAll()
	}
}
