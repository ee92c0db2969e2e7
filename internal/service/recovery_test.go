package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/audioscribe/audioscribe/config"
	"github.com/audioscribe/audioscribe/internal/core"
	"github.com/audioscribe/audioscribe/internal/data"
	domainjob "github.com/audioscribe/audioscribe/internal/domain/job"
	"github.com/audioscribe/audioscribe/internal/domain/model"
	"github.com/audioscribe/audioscribe/internal/mocks"
	"github.com/audioscribe/audioscribe/internal/testutil"
)

func newRecoveryServiceForTest(t *testing.T, repo core.JobRepository, registry *domainjob.CancelRegistry) *RecoveryService {
	t.Helper()
	svc, err := NewRecoveryService(RecoveryServiceOptions{
		Repo:     repo,
		Config:   config.RecoveryConfig{SweepInterval: time.Minute, MaxIdle: 5 * time.Minute},
		Registry: registry,
	})
	require.NoError(t, err)
	return svc
}

func TestNewRecoveryService(t *testing.T) {
	t.Run("requires job repository", func(t *testing.T) {
		_, err := NewRecoveryService(RecoveryServiceOptions{})
		require.Error(t, err)
	})
}

func TestRecoverOnStartup(t *testing.T) {
	ctx := context.Background()
	started := time.Now().Add(-time.Hour)

	t.Run("requeues an orphan with retry budget left", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRepository(ctrl)
		orphan := testutil.NewJob().WithID("job-1").Running(started).WithRetries(0, 2).Build()
		repo.EXPECT().ListRunning(gomock.Any()).Return([]*model.Job{orphan}, nil)
		repo.EXPECT().Transition(gomock.Any(), core.TransitionParams{
			ID:             "job-1",
			From:           model.JobStateRunning,
			To:             model.JobStateQueued,
			IncrementRetry: true,
		}).Return(testutil.NewJob().WithID("job-1").WithRetries(1, 2).Build(), nil)

		svc := newRecoveryServiceForTest(t, repo, nil)
		require.NoError(t, svc.RecoverOnStartup(ctx))
	})

	t.Run("fails an orphan with no retry budget as interrupted", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRepository(ctrl)
		orphan := testutil.NewJob().WithID("job-2").Running(started).WithRetries(2, 2).Build()
		repo.EXPECT().ListRunning(gomock.Any()).Return([]*model.Job{orphan}, nil)
		repo.EXPECT().Transition(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, params core.TransitionParams) (*model.Job, error) {
				assert.Equal(t, model.JobStateFailed, params.To)
				require.NotNil(t, params.FailureKind)
				assert.Equal(t, model.FailureKindInterrupted, *params.FailureKind)
				require.NotNil(t, params.FailureMessage)
				return testutil.NewJob().WithID("job-2").Finished(model.JobStateFailed, time.Now()).Build(), nil
			})

		svc := newRecoveryServiceForTest(t, repo, nil)
		require.NoError(t, svc.RecoverOnStartup(ctx))
	})

	t.Run("cancels an orphan already flagged for cancellation", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRepository(ctrl)
		orphan := testutil.NewJob().WithID("job-3").Running(started).WithCancelRequested().Build()
		repo.EXPECT().ListRunning(gomock.Any()).Return([]*model.Job{orphan}, nil)
		repo.EXPECT().Transition(gomock.Any(), core.TransitionParams{
			ID:   "job-3",
			From: model.JobStateRunning,
			To:   model.JobStateCancelled,
		}).Return(testutil.NewJob().WithID("job-3").Finished(model.JobStateCancelled, time.Now()).Build(), nil)

		svc := newRecoveryServiceForTest(t, repo, nil)
		require.NoError(t, svc.RecoverOnStartup(ctx))
	})

	t.Run("skips jobs running in this process", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		registry := domainjob.NewCancelRegistry()
		_, cancel := context.WithCancel(context.Background())
		defer cancel()
		deregister := registry.Register("job-local", cancel)
		defer deregister()

		repo := mocks.NewMockJobRepository(ctrl)
		local := testutil.NewJob().WithID("job-local").Running(started).Build()
		repo.EXPECT().ListRunning(gomock.Any()).Return([]*model.Job{local}, nil)

		svc := newRecoveryServiceForTest(t, repo, registry)
		require.NoError(t, svc.RecoverOnStartup(ctx))
	})

	t.Run("leaves a job with a fresh heartbeat alone", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// Heartbeating within the idle window: live on another instance, or
		// claimed by a local worker racing this sweep. No Transition expected;
		// the periodic sweep picks it up if its heartbeats stop.
		live := testutil.NewJob().WithID("job-live").Running(time.Now().Add(-time.Minute)).Build()

		repo := mocks.NewMockJobRepository(ctrl)
		repo.EXPECT().ListRunning(gomock.Any()).Return([]*model.Job{live}, nil)

		svc := newRecoveryServiceForTest(t, repo, nil)
		require.NoError(t, svc.RecoverOnStartup(ctx))
	})

	t.Run("tolerates an orphan recovered by another instance", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRepository(ctrl)
		orphan := testutil.NewJob().WithID("job-4").Running(started).WithRetries(0, 2).Build()
		repo.EXPECT().ListRunning(gomock.Any()).Return([]*model.Job{orphan}, nil)
		repo.EXPECT().Transition(gomock.Any(), gomock.Any()).Return(nil, data.ErrTransitionConflict)

		svc := newRecoveryServiceForTest(t, repo, nil)
		require.NoError(t, svc.RecoverOnStartup(ctx))
	})
}

func TestSweepStale(t *testing.T) {
	ctx := context.Background()
	started := time.Now().Add(-time.Hour)

	t.Run("recovers stale jobs not owned by this process", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		stale := testutil.NewJob().WithID("job-stale").
			StaleSince(started, time.Now().Add(-10*time.Minute)).
			WithRetries(0, 1).
			Build()

		repo := mocks.NewMockJobRepository(ctrl)
		repo.EXPECT().ListStaleRunning(gomock.Any(), 5*time.Minute).Return([]*model.Job{stale}, nil)
		repo.EXPECT().Transition(gomock.Any(), core.TransitionParams{
			ID:             "job-stale",
			From:           model.JobStateRunning,
			To:             model.JobStateQueued,
			IncrementRetry: true,
		}).Return(testutil.NewJob().WithID("job-stale").WithRetries(1, 1).Build(), nil)

		svc := newRecoveryServiceForTest(t, repo, nil)
		require.NoError(t, svc.sweepStale(ctx))
	})

	t.Run("leaves locally active jobs to their worker", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		registry := domainjob.NewCancelRegistry()
		_, cancel := context.WithCancel(context.Background())
		defer cancel()
		deregister := registry.Register("job-busy", cancel)
		defer deregister()

		stale := testutil.NewJob().WithID("job-busy").
			StaleSince(started, time.Now().Add(-10*time.Minute)).
			Build()

		repo := mocks.NewMockJobRepository(ctrl)
		repo.EXPECT().ListStaleRunning(gomock.Any(), gomock.Any()).Return([]*model.Job{stale}, nil)

		svc := newRecoveryServiceForTest(t, repo, registry)
		require.NoError(t, svc.sweepStale(ctx))
	})
}
