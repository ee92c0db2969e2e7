package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/audioscribe/audioscribe/internal/domain/model"
)

// ErrTranscriptNotFound is returned when a job has no transcript row.
var ErrTranscriptNotFound = errors.New("transcript not found")

// TranscriptRepo provides read access to transcript metadata. Rows are
// written by JobRepo.CompleteWithTranscript, never here.
type TranscriptRepo struct {
	DB *sql.DB
}

// NewTranscriptRepo creates a new TranscriptRepo instance.
func NewTranscriptRepo(db *sql.DB) *TranscriptRepo {
	return &TranscriptRepo{DB: db}
}

const transcriptColumns = `
  job_id,
  owner_id,
  artifact_ref,
  language,
  model,
  duration_seconds,
  segment_count,
  word_count,
  size_bytes,
  created_at
`

// GetByJobID retrieves the transcript metadata for a completed job.
func (r *TranscriptRepo) GetByJobID(ctx context.Context, jobID string) (*model.Transcript, error) {
	var t model.Transcript
	err := r.DB.QueryRowContext(ctx, `
		SELECT `+transcriptColumns+`
		FROM transcripts
		WHERE job_id = $1
	`, jobID).Scan(
		&t.JobID,
		&t.OwnerID,
		&t.ArtifactRef,
		&t.Language,
		&t.Model,
		&t.DurationSeconds,
		&t.SegmentCount,
		&t.WordCount,
		&t.SizeBytes,
		&t.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTranscriptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transcript: %w", err)
	}
	return &t, nil
}

// DeleteByJobID removes a transcript row. Returns false if none existed.
func (r *TranscriptRepo) DeleteByJobID(ctx context.Context, jobID string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM transcripts WHERE job_id = $1`, jobID)
	if err != nil {
		return false, fmt.Errorf("delete transcript: %w", err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete transcript rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}
