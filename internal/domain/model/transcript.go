package model

import "time"

// Transcript represents the stored outcome of a completed transcription job.
// The transcript body lives in the artifact store; this row carries the
// pointer and summary metadata.
type Transcript struct {
	JobID           string    `json:"job_id"           db:"job_id"`
	OwnerID         string    `json:"owner_id"         db:"owner_id"`
	ArtifactRef     string    `json:"artifact_ref"     db:"artifact_ref"`
	Language        string    `json:"language"         db:"language"`
	Model           string    `json:"model"            db:"model"`
	DurationSeconds float64   `json:"duration_seconds" db:"duration_seconds"`
	SegmentCount    int       `json:"segment_count"    db:"segment_count"`
	WordCount       int       `json:"word_count"       db:"word_count"`
	SizeBytes       int64     `json:"size_bytes"       db:"size_bytes"`
	CreatedAt       time.Time `json:"created_at"       db:"created_at"`
}

// TranscriptSegment is a single timed span of transcribed speech. Segments are
// what the artifact body is made of; Speaker is empty unless diarization ran.
type TranscriptSegment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker,omitempty"`
	Text    string  `json:"text"`
}

// TranscriptDocument is the artifact body written for a completed job.
type TranscriptDocument struct {
	JobID              string              `json:"job_id"`
	Language           string              `json:"language"`
	Model              string              `json:"model"`
	DurationSeconds    float64             `json:"duration_seconds"`
	DiarizationApplied bool                `json:"diarization_applied"`
	Text               string              `json:"text"`
	Segments           []TranscriptSegment `json:"segments,omitempty"`
}
