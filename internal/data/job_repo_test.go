package data_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/audioscribe/audioscribe/internal/data"
	"github.com/audioscribe/audioscribe/internal/core"
	"github.com/audioscribe/audioscribe/internal/domain/model"
	"github.com/audioscribe/audioscribe/internal/testutil"
)

func queuedJob(owner string) *model.Job {
	return &model.Job{
		OwnerID:    owner,
		MediaRef:   "s3://media/sample.wav",
		Model:      model.DefaultModel,
		Language:   model.DefaultLanguage,
		Diarizer:   model.DefaultDiarizer,
		MaxRetries: 2,
	}
}

// mustCreate admits a job and returns the stored row.
func mustCreate(t *testing.T, repo *JobRepo, job *model.Job) *model.Job {
	t.Helper()
	created, err := repo.Create(context.Background(), job)
	require.NoError(t, err)
	return created
}

// mustRun moves a queued job to running.
func mustRun(t *testing.T, repo *JobRepo, id string) *model.Job {
	t.Helper()
	running, err := repo.Transition(context.Background(), core.TransitionParams{
		ID:   id,
		From: model.JobStateQueued,
		To:   model.JobStateRunning,
	})
	require.NoError(t, err)
	return running
}

func TestJobRepo_Create(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	t.Run("admits a job in the queued state", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewJobRepo(db, RepoConfig{})

			created := mustCreate(t, repo, queuedJob("owner-a"))

			assert.NotEmpty(t, created.ID)
			assert.Equal(t, model.JobStateQueued, created.State)
			assert.Equal(t, "owner-a", created.OwnerID)
			assert.Equal(t, 0, created.RetryCount)
			assert.Equal(t, 2, created.MaxRetries)
			assert.NotNil(t, created.Tags)
			assert.Empty(t, created.Tags)
			assert.False(t, created.SubmittedAt.IsZero())
			assert.Nil(t, created.StartedAt)
			assert.Nil(t, created.FinishedAt)
		})
	})

	t.Run("records the admission event", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewJobRepo(db, RepoConfig{})
			events := NewJobEventRepo(db)

			created := mustCreate(t, repo, queuedJob("owner-a"))

			got, err := events.ListAfter(context.Background(), model.JobEventQuery{JobID: &created.ID})
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, model.JobStateQueued, got[0].ToState)
			assert.Empty(t, string(got[0].FromState))
		})
	})

	t.Run("validation", func(t *testing.T) {
		tests := []struct {
			name   string
			job    *model.Job
			errMsg string
		}{
			{"nil job", nil, "job is required"},
			{"missing owner", &model.Job{MediaRef: "s3://m.wav"}, "owner id is required"},
			{"missing media ref", &model.Job{OwnerID: "owner-a"}, "media ref is required"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				testutil.WithAutoDB(t, func(db *sql.DB) {
					repo := NewJobRepo(db, RepoConfig{})

					_, err := repo.Create(context.Background(), tt.job)
					require.Error(t, err)
					assert.Contains(t, err.Error(), tt.errMsg)
				})
			})
		}
	})
}

func TestJobRepo_GetByID(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewJobRepo(db, RepoConfig{})

		created := mustCreate(t, repo, queuedJob("owner-a"))

		got, err := repo.GetByID(context.Background(), created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)

		_, err = repo.GetByID(context.Background(), "00000000-0000-0000-0000-000000000000")
		assert.ErrorIs(t, err, ErrJobNotFound)
	})
}

func TestJobRepo_List(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewJobRepo(db, RepoConfig{})

		a1 := mustCreate(t, repo, queuedJob("owner-a"))
		tagged := queuedJob("owner-a")
		tagged.Tags = []string{"meeting"}
		a2 := mustCreate(t, repo, tagged)
		b1 := mustCreate(t, repo, queuedJob("owner-b"))
		mustRun(t, repo, b1.ID)

		t.Run("filters by owner", func(t *testing.T) {
			owner := "owner-a"
			jobs, err := repo.List(ctx, &model.JobListOptions{OwnerID: &owner, Limit: 10})
			require.NoError(t, err)
			require.Len(t, jobs, 2)
		})

		t.Run("filters by state", func(t *testing.T) {
			state := model.JobStateRunning
			jobs, err := repo.List(ctx, &model.JobListOptions{State: &state, Limit: 10})
			require.NoError(t, err)
			require.Len(t, jobs, 1)
			assert.Equal(t, b1.ID, jobs[0].ID)
		})

		t.Run("filters by tag", func(t *testing.T) {
			tag := "meeting"
			jobs, err := repo.List(ctx, &model.JobListOptions{Tag: &tag, Limit: 10})
			require.NoError(t, err)
			require.Len(t, jobs, 1)
			assert.Equal(t, a2.ID, jobs[0].ID)
		})

		t.Run("ascending order returns oldest first", func(t *testing.T) {
			owner := "owner-a"
			jobs, err := repo.List(ctx, &model.JobListOptions{
				OwnerID:   &owner,
				SortOrder: "asc",
				Limit:     10,
			})
			require.NoError(t, err)
			require.Len(t, jobs, 2)
			assert.Equal(t, a1.ID, jobs[0].ID)
		})

		t.Run("respects limit and offset", func(t *testing.T) {
			jobs, err := repo.List(ctx, &model.JobListOptions{Limit: 2, Offset: 1})
			require.NoError(t, err)
			assert.Len(t, jobs, 2)
		})
	})
}

func TestJobRepo_ListQueued(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewJobRepo(db, RepoConfig{})

		first := mustCreate(t, repo, queuedJob("owner-a"))
		second := mustCreate(t, repo, queuedJob("owner-b"))
		running := mustCreate(t, repo, queuedJob("owner-c"))
		mustRun(t, repo, running.ID)

		jobs, err := repo.ListQueued(context.Background(), 10)
		require.NoError(t, err)
		require.Len(t, jobs, 2)
		// Admission order, oldest first.
		assert.Equal(t, first.ID, jobs[0].ID)
		assert.Equal(t, second.ID, jobs[1].ID)
	})
}

func TestJobRepo_Transition(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	ctx := context.Background()

	t.Run("queued to running stamps start and activity", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewJobRepo(db, RepoConfig{})
			created := mustCreate(t, repo, queuedJob("owner-a"))

			running := mustRun(t, repo, created.ID)
			assert.Equal(t, model.JobStateRunning, running.State)
			require.NotNil(t, running.StartedAt)
			require.NotNil(t, running.LastActiveAt)
			assert.Nil(t, running.FinishedAt)
		})
	})

	t.Run("lost race yields a transition conflict", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewJobRepo(db, RepoConfig{})
			created := mustCreate(t, repo, queuedJob("owner-a"))
			mustRun(t, repo, created.ID)

			// A second claim of the same queued job must lose.
			_, err := repo.Transition(ctx, core.TransitionParams{
				ID:   created.ID,
				From: model.JobStateQueued,
				To:   model.JobStateRunning,
			})
			assert.ErrorIs(t, err, ErrTransitionConflict)
		})
	})

	t.Run("missing job is not a conflict", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewJobRepo(db, RepoConfig{})

			_, err := repo.Transition(ctx, core.TransitionParams{
				ID:   "00000000-0000-0000-0000-000000000000",
				From: model.JobStateQueued,
				To:   model.JobStateRunning,
			})
			assert.ErrorIs(t, err, ErrJobNotFound)
		})
	})

	t.Run("rejects transitions the lifecycle does not allow", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewJobRepo(db, RepoConfig{})

			_, err := repo.Transition(ctx, core.TransitionParams{
				ID:   "irrelevant",
				From: model.JobStateCompleted,
				To:   model.JobStateRunning,
			})
			assert.ErrorIs(t, err, ErrInvalidTransition)
		})
	})

	t.Run("failed requires a failure kind", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewJobRepo(db, RepoConfig{})

			_, err := repo.Transition(ctx, core.TransitionParams{
				ID:   "irrelevant",
				From: model.JobStateRunning,
				To:   model.JobStateFailed,
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "failure kind is required")
		})
	})

	t.Run("requeue increments the retry counter and clears activity", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewJobRepo(db, RepoConfig{})
			created := mustCreate(t, repo, queuedJob("owner-a"))
			mustRun(t, repo, created.ID)

			requeued, err := repo.Transition(ctx, core.TransitionParams{
				ID:             created.ID,
				From:           model.JobStateRunning,
				To:             model.JobStateQueued,
				IncrementRetry: true,
			})
			require.NoError(t, err)
			assert.Equal(t, model.JobStateQueued, requeued.State)
			assert.Equal(t, 1, requeued.RetryCount)
			assert.Nil(t, requeued.LastActiveAt)
			// started_at survives the requeue; first start time is permanent.
			assert.NotNil(t, requeued.StartedAt)
		})
	})

	t.Run("failure transition stores the classification", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewJobRepo(db, RepoConfig{})
			created := mustCreate(t, repo, queuedJob("owner-a"))
			mustRun(t, repo, created.ID)

			kind := model.FailureKindTimeout
			msg := "engine run exceeded deadline"
			failed, err := repo.Transition(ctx, core.TransitionParams{
				ID:             created.ID,
				From:           model.JobStateRunning,
				To:             model.JobStateFailed,
				FailureKind:    &kind,
				FailureMessage: &msg,
			})
			require.NoError(t, err)
			assert.Equal(t, model.JobStateFailed, failed.State)
			require.NotNil(t, failed.FailureKind)
			assert.Equal(t, kind, *failed.FailureKind)
			require.NotNil(t, failed.FailureMessage)
			assert.Equal(t, msg, *failed.FailureMessage)
			assert.NotNil(t, failed.FinishedAt)
		})
	})

	t.Run("every transition appends to the event log", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewJobRepo(db, RepoConfig{})
			events := NewJobEventRepo(db)
			created := mustCreate(t, repo, queuedJob("owner-a"))
			mustRun(t, repo, created.ID)

			_, err := repo.Transition(ctx, core.TransitionParams{
				ID:   created.ID,
				From: model.JobStateRunning,
				To:   model.JobStateCancelled,
			})
			require.NoError(t, err)

			got, err := events.ListAfter(ctx, model.JobEventQuery{JobID: &created.ID})
			require.NoError(t, err)
			require.Len(t, got, 3)
			assert.Equal(t, model.JobStateQueued, got[0].ToState)
			assert.Equal(t, model.JobStateRunning, got[1].ToState)
			assert.Equal(t, model.JobStateCancelled, got[2].ToState)
			// Sequence numbers are strictly increasing.
			assert.Greater(t, got[1].Seq, got[0].Seq)
			assert.Greater(t, got[2].Seq, got[1].Seq)
		})
	})
}

func TestJobRepo_CompleteWithTranscript(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	ctx := context.Background()

	t.Run("completes the job and records the transcript atomically", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewJobRepo(db, RepoConfig{})
			transcripts := NewTranscriptRepo(db)
			created := mustCreate(t, repo, queuedJob("owner-a"))
			mustRun(t, repo, created.ID)

			completed, err := repo.CompleteWithTranscript(ctx, &model.Transcript{
				JobID:           created.ID,
				ArtifactRef:     "transcripts/" + created.ID + ".json",
				Language:        "en",
				Model:           created.Model,
				DurationSeconds: 42.5,
				SegmentCount:    3,
				WordCount:       120,
				SizeBytes:       2048,
			})
			require.NoError(t, err)
			assert.Equal(t, model.JobStateCompleted, completed.State)
			assert.NotNil(t, completed.FinishedAt)

			stored, err := transcripts.GetByJobID(ctx, created.ID)
			require.NoError(t, err)
			assert.Equal(t, "owner-a", stored.OwnerID)
			assert.Equal(t, 3, stored.SegmentCount)
			assert.Equal(t, 120, stored.WordCount)
		})
	})

	t.Run("conflicts when the job is no longer running", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewJobRepo(db, RepoConfig{})
			created := mustCreate(t, repo, queuedJob("owner-a"))

			_, err := repo.CompleteWithTranscript(ctx, &model.Transcript{
				JobID:       created.ID,
				ArtifactRef: "transcripts/x.json",
			})
			assert.ErrorIs(t, err, ErrTransitionConflict)
		})
	})
}

func TestJobRepo_RequestCancel(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	ctx := context.Background()

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewJobRepo(db, RepoConfig{})

		t.Run("flags a running job", func(t *testing.T) {
			created := mustCreate(t, repo, queuedJob("owner-a"))
			mustRun(t, repo, created.ID)

			flagged, err := repo.RequestCancel(ctx, created.ID)
			require.NoError(t, err)
			assert.True(t, flagged.CancelRequested)
			assert.Equal(t, model.JobStateRunning, flagged.State)
		})

		t.Run("conflicts for a job that is not running", func(t *testing.T) {
			created := mustCreate(t, repo, queuedJob("owner-a"))

			_, err := repo.RequestCancel(ctx, created.ID)
			assert.ErrorIs(t, err, ErrTransitionConflict)
		})

		t.Run("missing job is not found", func(t *testing.T) {
			_, err := repo.RequestCancel(ctx, "00000000-0000-0000-0000-000000000000")
			assert.ErrorIs(t, err, ErrJobNotFound)
		})
	})
}

func TestJobRepo_AddTags(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewJobRepo(db, RepoConfig{})

		tagged := queuedJob("owner-a")
		tagged.Tags = []string{"meeting"}
		created := mustCreate(t, repo, tagged)

		got, err := repo.AddTags(ctx, created.ID, []string{"meeting", "q3"})
		require.NoError(t, err)
		assert.Equal(t, []string{"meeting", "q3"}, got.Tags)

		// No tags means a plain read.
		same, err := repo.AddTags(ctx, created.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"meeting", "q3"}, same.Tags)
	})
}

func TestJobRepo_Touch(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewJobRepo(db, RepoConfig{})

		created := mustCreate(t, repo, queuedJob("owner-a"))

		touched, err := repo.Touch(ctx, created.ID)
		require.NoError(t, err)
		assert.False(t, touched, "queued jobs have no activity to refresh")

		mustRun(t, repo, created.ID)
		touched, err = repo.Touch(ctx, created.ID)
		require.NoError(t, err)
		assert.True(t, touched)
	})
}

func TestJobRepo_ListStaleRunning(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewJobRepo(db, RepoConfig{})

		stale := mustCreate(t, repo, queuedJob("owner-a"))
		mustRun(t, repo, stale.ID)
		fresh := mustCreate(t, repo, queuedJob("owner-b"))
		mustRun(t, repo, fresh.ID)

		// Age the first job's heartbeat past the idle window.
		_, err := db.ExecContext(ctx, `
			UPDATE jobs SET last_active_at = now() - interval '10 minutes' WHERE id = $1
		`, stale.ID)
		require.NoError(t, err)

		jobs, err := repo.ListStaleRunning(ctx, 5*time.Minute)
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, stale.ID, jobs[0].ID)
	})
}

func TestJobRepo_CountAndStats(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewJobRepo(db, RepoConfig{})

		mustCreate(t, repo, queuedJob("owner-a"))
		mustCreate(t, repo, queuedJob("owner-a"))
		running := mustCreate(t, repo, queuedJob("owner-b"))
		mustRun(t, repo, running.ID)

		count, err := repo.CountByOwnerInState(ctx, "owner-a", model.JobStateQueued)
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		stats, err := repo.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.Queued)
		assert.Equal(t, 1, stats.Running)
		assert.Zero(t, stats.Completed)
	})
}

func TestJobRepo_DeleteOldJobs(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	ctx := context.Background()

	t.Run("deletes expired terminal jobs and their events", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewJobRepo(db, RepoConfig{})
			events := NewJobEventRepo(db)

			created := mustCreate(t, repo, queuedJob("owner-a"))
			_, err := repo.Transition(ctx, core.TransitionParams{
				ID:   created.ID,
				From: model.JobStateQueued,
				To:   model.JobStateCancelled,
			})
			require.NoError(t, err)

			_, err = db.ExecContext(ctx, `
				UPDATE jobs SET finished_at = now() - interval '30 days' WHERE id = $1
			`, created.ID)
			require.NoError(t, err)

			result, err := repo.DeleteOldJobs(ctx, core.DeleteOldJobsParams{
				State:     model.JobStateCancelled,
				MaxAge:    7 * 24 * time.Hour,
				BatchSize: 100,
			})
			require.NoError(t, err)
			assert.Equal(t, int64(1), result.Deleted)
			// A cancelled job never produced a transcript.
			assert.Empty(t, result.TranscriptRefs)

			_, err = repo.GetByID(ctx, created.ID)
			assert.ErrorIs(t, err, ErrJobNotFound)

			// Event rows follow the job via cascade.
			got, err := events.ListAfter(ctx, model.JobEventQuery{JobID: &created.ID})
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	})

	t.Run("reports transcript refs of reaped completed jobs", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewJobRepo(db, RepoConfig{})

			created := mustCreate(t, repo, queuedJob("owner-a"))
			mustRun(t, repo, created.ID)

			ref := "transcripts/" + created.ID + ".json"
			_, err := repo.CompleteWithTranscript(ctx, &model.Transcript{
				JobID:       created.ID,
				ArtifactRef: ref,
				Language:    "en",
				Model:       created.Model,
			})
			require.NoError(t, err)

			_, err = db.ExecContext(ctx, `
				UPDATE jobs SET finished_at = now() - interval '30 days' WHERE id = $1
			`, created.ID)
			require.NoError(t, err)

			result, err := repo.DeleteOldJobs(ctx, core.DeleteOldJobsParams{
				State:     model.JobStateCompleted,
				MaxAge:    7 * 24 * time.Hour,
				BatchSize: 100,
			})
			require.NoError(t, err)
			assert.Equal(t, int64(1), result.Deleted)
			assert.Equal(t, []string{ref}, result.TranscriptRefs)
		})
	})

	t.Run("keeps jobs inside the retention window", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewJobRepo(db, RepoConfig{})

			created := mustCreate(t, repo, queuedJob("owner-a"))
			_, err := repo.Transition(ctx, core.TransitionParams{
				ID:   created.ID,
				From: model.JobStateQueued,
				To:   model.JobStateCancelled,
			})
			require.NoError(t, err)

			result, err := repo.DeleteOldJobs(ctx, core.DeleteOldJobsParams{
				State:     model.JobStateCancelled,
				MaxAge:    7 * 24 * time.Hour,
				BatchSize: 100,
			})
			require.NoError(t, err)
			assert.Zero(t, result.Deleted)
		})
	})

	t.Run("rejects non-terminal states and bad batch sizes", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewJobRepo(db, RepoConfig{})

			_, err := repo.DeleteOldJobs(ctx, core.DeleteOldJobsParams{
				State:     model.JobStateRunning,
				MaxAge:    time.Hour,
				BatchSize: 100,
			})
			require.Error(t, err)

			_, err = repo.DeleteOldJobs(ctx, core.DeleteOldJobsParams{
				State:     model.JobStateCompleted,
				MaxAge:    time.Hour,
				BatchSize: 0,
			})
			require.Error(t, err)
		})
	})
}
