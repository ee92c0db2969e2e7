package model

import "time"

// GlobalOwnerID is the owner_settings row that carries system-wide defaults.
// Its MaxConcurrentJobs value doubles as the scheduler's global slot limit and
// may be changed at runtime.
const GlobalOwnerID = "_global"

// Default configuration applied when neither the submission nor the owner's
// settings specify a value.
const (
	DefaultModel             = "base"
	DefaultLanguage          = "auto"
	DefaultDiarizer          = "none"
	DefaultMaxConcurrentJobs = 2
	DefaultMaxQueuedJobs     = 100
	DefaultMaxRetries        = 1
)

// OwnerSettings holds per-owner transcription defaults and admission limits.
// A job snapshots these values at submission time; later settings changes do
// not affect jobs already admitted.
type OwnerSettings struct {
	OwnerID            string    `json:"owner_id"            db:"owner_id"`
	Model              string    `json:"model"               db:"model"`
	Language           string    `json:"language"            db:"language"`
	Diarizer           string    `json:"diarizer"            db:"diarizer"`
	DiarizationEnabled bool      `json:"diarization_enabled" db:"diarization_enabled"`
	TimestampsEnabled  bool      `json:"timestamps_enabled"  db:"timestamps_enabled"`
	MaxConcurrentJobs  int       `json:"max_concurrent_jobs" db:"max_concurrent_jobs"`
	MaxQueuedJobs      int       `json:"max_queued_jobs"     db:"max_queued_jobs"`
	MaxRetries         int       `json:"max_retries"         db:"max_retries"`
	UpdatedAt          time.Time `json:"updated_at"          db:"updated_at"`
}

// DefaultOwnerSettings returns the built-in settings used when an owner has no
// stored row.
func DefaultOwnerSettings(ownerID string) *OwnerSettings {
	return &OwnerSettings{
		OwnerID:            ownerID,
		Model:              DefaultModel,
		Language:           DefaultLanguage,
		Diarizer:           DefaultDiarizer,
		DiarizationEnabled: false,
		TimestampsEnabled:  true,
		MaxConcurrentJobs:  DefaultMaxConcurrentJobs,
		MaxQueuedJobs:      DefaultMaxQueuedJobs,
		MaxRetries:         DefaultMaxRetries,
	}
}
