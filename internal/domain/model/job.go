// Package model defines the core data types and structures used throughout the audioscribe job system.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// JobState represents the lifecycle state of a transcription job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobState string

const (
	// JobStateQueued indicates a job has been admitted and is waiting for a worker.
	JobStateQueued JobState = "queued"
	// JobStateRunning indicates a job is currently being transcribed.
	JobStateRunning JobState = "running"
	// JobStateCompleted indicates a job finished and produced a transcript.
	JobStateCompleted JobState = "completed"
	// JobStateFailed indicates a job finished without producing a transcript.
	JobStateFailed JobState = "failed"
	// JobStateCancelled indicates a job was cancelled before it could complete.
	JobStateCancelled JobState = "cancelled"
)

// FailureKind classifies why a job ended in the failed state.
type FailureKind string

const (
	// FailureKindInterrupted is reserved for jobs cut short by a process
	// crash or shutdown and not re-admitted.
	FailureKindInterrupted FailureKind = "interrupted"
	// FailureKindTimeout indicates the engine exceeded its run deadline.
	FailureKindTimeout FailureKind = "timeout"
	// FailureKindUnsupportedFormat indicates the media could not be decoded.
	FailureKindUnsupportedFormat FailureKind = "unsupported_format"
	// FailureKindBadMedia indicates the media reference could not be fetched or read.
	FailureKindBadMedia FailureKind = "bad_media"
	// FailureKindModelUnavailable indicates the requested model could not be loaded.
	FailureKindModelUnavailable FailureKind = "model_unavailable"
	// FailureKindResourceExhausted indicates the engine ran out of memory or compute.
	FailureKindResourceExhausted FailureKind = "resource_exhausted"
	// FailureKindEngine covers engine failures with no more specific classification.
	FailureKindEngine FailureKind = "engine"
)

// ErrNoJobsQueued is returned when no queued jobs are available for claiming.
var ErrNoJobsQueued = errors.New("no jobs queued")

// UnmarshalText implements encoding.TextUnmarshaler for JobState to allow env and query parsing.
func (s *JobState) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	js := JobState(v)
	if js.Valid() {
		*s = js
		return nil
	}
	return fmt.Errorf("invalid JobState: %q", v)
}

// Valid returns true if the JobState is one of the five lifecycle states.
func (s JobState) Valid() bool {
	switch s {
	case JobStateQueued, JobStateRunning, JobStateCompleted, JobStateFailed, JobStateCancelled:
		return true
	}
	return false
}

// Terminal returns true for states a job can never leave.
func (s JobState) Terminal() bool {
	switch s {
	case JobStateCompleted, JobStateFailed, JobStateCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the state machine permits moving from s to
// next. Running jobs may return to queued only through restart recovery.
func (s JobState) CanTransitionTo(next JobState) bool {
	switch s {
	case JobStateQueued:
		return next == JobStateRunning || next == JobStateCancelled
	case JobStateRunning:
		return next == JobStateCompleted || next == JobStateFailed ||
			next == JobStateCancelled || next == JobStateQueued
	default:
		return false
	}
}

// Job represents a transcription job with its configuration snapshot and lifecycle metadata.
type Job struct {
	ID                 string       `json:"id"                        db:"id"`
	OwnerID            string       `json:"owner_id"                  db:"owner_id"`
	MediaRef           string       `json:"media_ref"                 db:"media_ref"`
	Model              string       `json:"model"                     db:"model"`
	Language           string       `json:"language"                  db:"language"`
	Diarizer           string       `json:"diarizer"                  db:"diarizer"`
	DiarizationEnabled bool         `json:"diarization_enabled"       db:"diarization_enabled"`
	TimestampsEnabled  bool         `json:"timestamps_enabled"        db:"timestamps_enabled"`
	State              JobState     `json:"state"                     db:"state"`
	Tags               []string     `json:"tags"                      db:"tags"`
	CancelRequested    bool         `json:"cancel_requested"          db:"cancel_requested"`
	SubmittedAt        time.Time    `json:"submitted_at"              db:"submitted_at"`
	StartedAt          *time.Time   `json:"started_at,omitempty"      db:"started_at"`
	FinishedAt         *time.Time   `json:"finished_at,omitempty"     db:"finished_at"`
	FailureKind        *FailureKind `json:"failure_kind,omitempty"    db:"failure_kind"`
	FailureMessage     *string      `json:"failure_message,omitempty" db:"failure_message"`
	RetryCount         int          `json:"retry_count"               db:"retry_count"`
	MaxRetries         int          `json:"max_retries"               db:"max_retries"`
	LastActiveAt       *time.Time   `json:"last_active_at,omitempty"  db:"last_active_at"`
	CreatedAt          time.Time    `json:"created_at"                db:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"                db:"updated_at"`
}

// Finished returns true once the job has reached a terminal state.
func (j *Job) Finished() bool {
	return j.State.Terminal()
}

// SubmitJobRequest represents a request to submit a new transcription job.
// Unset configuration fields are filled from the owner's settings snapshot at
// admission time.
type SubmitJobRequest struct {
	OwnerID            string   `json:"owner_id"`
	MediaRef           string   `json:"media_ref"`
	Model              *string  `json:"model,omitempty"`
	Language           *string  `json:"language,omitempty"`
	Diarizer           *string  `json:"diarizer,omitempty"`
	DiarizationEnabled *bool    `json:"diarization_enabled,omitempty"`
	TimestampsEnabled  *bool    `json:"timestamps_enabled,omitempty"`
	Tags               []string `json:"tags,omitempty"`
}

const (
	maxTagsPerJob = 32
	maxTagLength  = 64
)

// Validate validates the SubmitJobRequest fields. Configuration values are
// checked here only for shape; catalog membership is checked after defaults
// are applied.
func (r *SubmitJobRequest) Validate() error {
	if strings.TrimSpace(r.OwnerID) == "" {
		return errors.New("owner id is required")
	}
	if err := ValidateMediaRef(r.MediaRef); err != nil {
		return err
	}
	if r.Model != nil && strings.TrimSpace(*r.Model) == "" {
		return errors.New("model must not be blank when provided")
	}
	if r.Diarizer != nil && strings.TrimSpace(*r.Diarizer) == "" {
		return errors.New("diarizer must not be blank when provided")
	}
	return ValidateTags(r.Tags)
}

// ValidateMediaRef checks that a media reference is non-empty and printable.
// The reference is otherwise opaque; the submission path separately checks
// that it resolves in the artifact store.
func ValidateMediaRef(ref string) error {
	if ref == "" {
		return errors.New("media ref is required")
	}
	for _, r := range ref {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return errors.New("media ref must not contain whitespace or control characters")
		}
	}
	return nil
}

// ValidateTags checks tag count and per-tag shape.
func ValidateTags(tags []string) error {
	if len(tags) > maxTagsPerJob {
		return fmt.Errorf("at most %d tags allowed", maxTagsPerJob)
	}
	for _, tag := range tags {
		if strings.TrimSpace(tag) == "" {
			return errors.New("tags must not be blank")
		}
		if len(tag) > maxTagLength {
			return fmt.Errorf("tag %q exceeds %d characters", tag, maxTagLength)
		}
	}
	return nil
}

// JobStats represents counts of jobs in each lifecycle state.
type JobStats struct {
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}
