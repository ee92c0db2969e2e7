package data_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/audioscribe/audioscribe/internal/data"
	"github.com/audioscribe/audioscribe/internal/domain/model"
	"github.com/audioscribe/audioscribe/internal/testutil"
)

// completeWithTranscript walks a fresh job to completed with a stored
// transcript row.
func completeWithTranscript(t *testing.T, jobs *JobRepo, owner string) *model.Job {
	t.Helper()
	created := mustCreate(t, jobs, queuedJob(owner))
	mustRun(t, jobs, created.ID)

	completed, err := jobs.CompleteWithTranscript(context.Background(), &model.Transcript{
		JobID:           created.ID,
		ArtifactRef:     "transcripts/" + created.ID + ".json",
		Language:        "en",
		Model:           created.Model,
		DurationSeconds: 12.25,
		SegmentCount:    2,
		WordCount:       40,
		SizeBytes:       512,
	})
	require.NoError(t, err)
	return completed
}

func TestTranscriptRepo_GetByJobID(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		jobs := NewJobRepo(db, RepoConfig{})
		repo := NewTranscriptRepo(db)

		job := completeWithTranscript(t, jobs, "owner-a")

		got, err := repo.GetByJobID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, job.ID, got.JobID)
		assert.Equal(t, "owner-a", got.OwnerID)
		assert.Equal(t, "en", got.Language)
		assert.InDelta(t, 12.25, got.DurationSeconds, 0.001)
		assert.Equal(t, int64(512), got.SizeBytes)
		assert.False(t, got.CreatedAt.IsZero())

		_, err = repo.GetByJobID(ctx, "00000000-0000-0000-0000-000000000000")
		assert.ErrorIs(t, err, ErrTranscriptNotFound)
	})
}

func TestTranscriptRepo_DeleteByJobID(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		jobs := NewJobRepo(db, RepoConfig{})
		repo := NewTranscriptRepo(db)

		job := completeWithTranscript(t, jobs, "owner-a")

		deleted, err := repo.DeleteByJobID(ctx, job.ID)
		require.NoError(t, err)
		assert.True(t, deleted)

		_, err = repo.GetByJobID(ctx, job.ID)
		assert.ErrorIs(t, err, ErrTranscriptNotFound)

		deleted, err = repo.DeleteByJobID(ctx, job.ID)
		require.NoError(t, err)
		assert.False(t, deleted)
	})
}
