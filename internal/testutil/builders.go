// Package testutil provides testing utilities and helpers for the audioscribe job system.
package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/audioscribe/audioscribe/internal/domain/model"
)

// SubmitRequestBuilder provides a fluent interface for building SubmitJobRequest objects for testing.
type SubmitRequestBuilder struct {
	req *model.SubmitJobRequest
}

// NewSubmitRequest creates a new SubmitRequestBuilder with sensible defaults.
func NewSubmitRequest() *SubmitRequestBuilder {
	return &SubmitRequestBuilder{
		req: &model.SubmitJobRequest{
			OwnerID:  "owner-test",
			MediaRef: "s3://media/sample.wav",
		},
	}
}

// WithOwner sets the owner ID.
func (b *SubmitRequestBuilder) WithOwner(ownerID string) *SubmitRequestBuilder {
	b.req.OwnerID = ownerID
	return b
}

// WithMediaRef sets the media reference.
func (b *SubmitRequestBuilder) WithMediaRef(ref string) *SubmitRequestBuilder {
	b.req.MediaRef = ref
	return b
}

// WithModel sets the transcription model override.
func (b *SubmitRequestBuilder) WithModel(name string) *SubmitRequestBuilder {
	b.req.Model = &name
	return b
}

// WithLanguage sets the language override.
func (b *SubmitRequestBuilder) WithLanguage(lang string) *SubmitRequestBuilder {
	b.req.Language = &lang
	return b
}

// WithDiarizer sets the diarizer override and enables diarization.
func (b *SubmitRequestBuilder) WithDiarizer(name string) *SubmitRequestBuilder {
	enabled := true
	b.req.Diarizer = &name
	b.req.DiarizationEnabled = &enabled
	return b
}

// WithTimestamps sets the timestamps flag.
func (b *SubmitRequestBuilder) WithTimestamps(enabled bool) *SubmitRequestBuilder {
	b.req.TimestampsEnabled = &enabled
	return b
}

// WithTags sets the request tags.
func (b *SubmitRequestBuilder) WithTags(tags ...string) *SubmitRequestBuilder {
	b.req.Tags = tags
	return b
}

// Build returns the constructed SubmitJobRequest.
func (b *SubmitRequestBuilder) Build() *model.SubmitJobRequest {
	return b.req
}

// JobBuilder provides a fluent interface for building Job rows for testing.
type JobBuilder struct {
	job *model.Job
}

// NewJob creates a JobBuilder for a freshly queued job with defaults.
func NewJob() *JobBuilder {
	now := time.Now().UTC()
	return &JobBuilder{
		job: &model.Job{
			ID:          uuid.NewString(),
			OwnerID:     "owner-test",
			MediaRef:    "s3://media/sample.wav",
			Model:       model.DefaultModel,
			Language:    model.DefaultLanguage,
			Diarizer:    model.DefaultDiarizer,
			State:       model.JobStateQueued,
			MaxRetries:  model.DefaultMaxRetries,
			SubmittedAt: now,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	}
}

// WithID sets the job ID.
func (b *JobBuilder) WithID(id string) *JobBuilder {
	b.job.ID = id
	return b
}

// WithOwner sets the owner ID.
func (b *JobBuilder) WithOwner(ownerID string) *JobBuilder {
	b.job.OwnerID = ownerID
	return b
}

// WithMediaRef sets the media reference.
func (b *JobBuilder) WithMediaRef(ref string) *JobBuilder {
	b.job.MediaRef = ref
	return b
}

// WithModel sets the transcription model.
func (b *JobBuilder) WithModel(name string) *JobBuilder {
	b.job.Model = name
	return b
}

// WithState sets the job state.
func (b *JobBuilder) WithState(state model.JobState) *JobBuilder {
	b.job.State = state
	return b
}

// WithTags sets the job tags.
func (b *JobBuilder) WithTags(tags ...string) *JobBuilder {
	b.job.Tags = tags
	return b
}

// WithRetries sets the retry counters.
func (b *JobBuilder) WithRetries(count, max int) *JobBuilder {
	b.job.RetryCount = count
	b.job.MaxRetries = max
	return b
}

// WithCancelRequested marks the job as cancel-requested.
func (b *JobBuilder) WithCancelRequested() *JobBuilder {
	b.job.CancelRequested = true
	return b
}

// Running marks the job running as of the given time.
func (b *JobBuilder) Running(since time.Time) *JobBuilder {
	b.job.State = model.JobStateRunning
	b.job.StartedAt = &since
	b.job.LastActiveAt = &since
	return b
}

// StaleSince marks the job running with a last heartbeat at the given time.
func (b *JobBuilder) StaleSince(started, lastActive time.Time) *JobBuilder {
	b.job.State = model.JobStateRunning
	b.job.StartedAt = &started
	b.job.LastActiveAt = &lastActive
	return b
}

// Finished marks the job terminal in the given state at the given time.
func (b *JobBuilder) Finished(state model.JobState, at time.Time) *JobBuilder {
	b.job.State = state
	b.job.FinishedAt = &at
	return b
}

// Build returns the constructed Job.
func (b *JobBuilder) Build() *model.Job {
	return b.job
}
