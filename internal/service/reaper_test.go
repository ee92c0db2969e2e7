package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/audioscribe/audioscribe/config"
	"github.com/audioscribe/audioscribe/internal/core"
	"github.com/audioscribe/audioscribe/internal/domain/model"
	"github.com/audioscribe/audioscribe/internal/mocks"
)

// mockReaperRepo is a simple mock implementation for testing.
type mockReaperRepo struct {
	calls  map[model.JobState]int
	counts map[model.JobState]int64
	refs   map[model.JobState][]string
	err    error

	seenParams []core.DeleteOldJobsParams
}

func (m *mockReaperRepo) DeleteOldJobs(
	_ context.Context,
	params core.DeleteOldJobsParams,
) (core.ReapResult, error) {
	if m.calls == nil {
		m.calls = make(map[model.JobState]int)
	}
	m.calls[params.State]++
	m.seenParams = append(m.seenParams, params)
	if m.err != nil {
		return core.ReapResult{}, m.err
	}
	// Return the configured count on the first call per state, then 0 to
	// simulate batch exhaustion.
	if m.calls[params.State] == 1 {
		return core.ReapResult{
			Deleted:        m.counts[params.State],
			TranscriptRefs: m.refs[params.State],
		}, nil
	}
	return core.ReapResult{}, nil
}

// mockSweepLock records lock attempts and answers with a fixed verdict.
type mockSweepLock struct {
	acquired bool
	err      error
	attempts int
	lastKey  string
	lastTTL  time.Duration
}

func (m *mockSweepLock) SetIfNotExists(
	_ context.Context,
	key string,
	_ []byte,
	ttl time.Duration,
) (bool, error) {
	m.attempts++
	m.lastKey = key
	m.lastTTL = ttl
	return m.acquired, m.err
}

func reaperTestConfig() config.ReaperConfig {
	return config.ReaperConfig{
		Interval:        5 * time.Minute,
		CompletedMaxAge: 7 * 24 * time.Hour,
		FailedMaxAge:    7 * 24 * time.Hour,
		CancelledMaxAge: 3 * 24 * time.Hour,
		BatchSize:       500,
	}
}

func TestNewReaperService(t *testing.T) {
	t.Run("creates service with valid options", func(t *testing.T) {
		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:   &mockReaperRepo{},
			Config: reaperTestConfig(),
		})
		require.NoError(t, err)
		assert.NotNil(t, svc)
	})

	t.Run("requires repository", func(t *testing.T) {
		_, err := NewReaperService(ReaperServiceOptions{Config: reaperTestConfig()})
		require.Error(t, err)
	})
}

func TestRunCleanup(t *testing.T) {
	ctx := context.Background()

	t.Run("sweeps every terminal state with its retention window", func(t *testing.T) {
		repo := &mockReaperRepo{
			counts: map[model.JobState]int64{
				model.JobStateCompleted: 12,
				model.JobStateFailed:    3,
				model.JobStateCancelled: 1,
			},
		}
		svc, err := NewReaperService(ReaperServiceOptions{Repo: repo, Config: reaperTestConfig()})
		require.NoError(t, err)

		require.NoError(t, svc.runCleanup(ctx))

		assert.Equal(t, 2, repo.calls[model.JobStateCompleted])
		assert.Equal(t, 2, repo.calls[model.JobStateFailed])
		assert.Equal(t, 2, repo.calls[model.JobStateCancelled])

		for _, params := range repo.seenParams {
			assert.Equal(t, 500, params.BatchSize)
			if params.State == model.JobStateCancelled {
				assert.Equal(t, 3*24*time.Hour, params.MaxAge)
			}
		}
	})

	t.Run("skips states with retention disabled", func(t *testing.T) {
		repo := &mockReaperRepo{}
		cfg := reaperTestConfig()
		cfg.FailedMaxAge = 0
		cfg.CancelledMaxAge = 0

		svc, err := NewReaperService(ReaperServiceOptions{Repo: repo, Config: cfg})
		require.NoError(t, err)

		require.NoError(t, svc.runCleanup(ctx))

		assert.Equal(t, 1, repo.calls[model.JobStateCompleted])
		assert.Zero(t, repo.calls[model.JobStateFailed])
		assert.Zero(t, repo.calls[model.JobStateCancelled])
	})

	t.Run("reports repository errors", func(t *testing.T) {
		repo := &mockReaperRepo{err: errors.New("boom")}
		svc, err := NewReaperService(ReaperServiceOptions{Repo: repo, Config: reaperTestConfig()})
		require.NoError(t, err)

		err = svc.runCleanup(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")
	})

	t.Run("stops sweeping on context cancellation", func(t *testing.T) {
		repo := &mockReaperRepo{err: context.Canceled}
		svc, err := NewReaperService(ReaperServiceOptions{Repo: repo, Config: reaperTestConfig()})
		require.NoError(t, err)

		err = svc.runCleanup(ctx)
		require.ErrorIs(t, err, context.Canceled)
		// Only the first state is attempted before the sweep gives up.
		assert.Equal(t, 1, repo.calls[model.JobStateCompleted])
		assert.Zero(t, repo.calls[model.JobStateFailed])
	})

	t.Run("removes orphaned transcript artifacts when enabled", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := &mockReaperRepo{
			counts: map[model.JobState]int64{model.JobStateCompleted: 2},
			refs: map[model.JobState][]string{
				model.JobStateCompleted: {"transcripts/job-1.json", "transcripts/job-2.json"},
			},
		}
		artifacts := mocks.NewMockArtifactStore(ctrl)
		artifacts.EXPECT().Delete(gomock.Any(), "transcripts/job-1.json").Return(nil)
		// A failed blob delete is logged and skipped, not surfaced.
		artifacts.EXPECT().Delete(gomock.Any(), "transcripts/job-2.json").Return(errors.New("gone"))

		cfg := reaperTestConfig()
		cfg.DeleteArtifacts = true
		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:      repo,
			Config:    cfg,
			Artifacts: artifacts,
		})
		require.NoError(t, err)

		require.NoError(t, svc.runCleanup(ctx))
	})

	t.Run("retains artifacts unless deletion is enabled", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := &mockReaperRepo{
			counts: map[model.JobState]int64{model.JobStateCompleted: 1},
			refs: map[model.JobState][]string{
				model.JobStateCompleted: {"transcripts/job-1.json"},
			},
		}
		// No Delete expectation: the store must not be touched.
		artifacts := mocks.NewMockArtifactStore(ctrl)

		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:      repo,
			Config:    reaperTestConfig(),
			Artifacts: artifacts,
		})
		require.NoError(t, err)

		require.NoError(t, svc.runCleanup(ctx))
	})

	t.Run("skips the tick when another instance holds the sweep lock", func(t *testing.T) {
		repo := &mockReaperRepo{counts: map[model.JobState]int64{model.JobStateCompleted: 5}}
		lock := &mockSweepLock{acquired: false}

		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:   repo,
			Config: reaperTestConfig(),
			Lock:   lock,
		})
		require.NoError(t, err)

		require.NoError(t, svc.runCleanup(ctx))

		assert.Equal(t, 1, lock.attempts)
		assert.Zero(t, repo.calls[model.JobStateCompleted])
	})

	t.Run("sweeps anyway when the lock backend is unavailable", func(t *testing.T) {
		repo := &mockReaperRepo{counts: map[model.JobState]int64{model.JobStateCompleted: 5}}
		lock := &mockSweepLock{err: errors.New("redis down")}

		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:   repo,
			Config: reaperTestConfig(),
			Lock:   lock,
		})
		require.NoError(t, err)

		require.NoError(t, svc.runCleanup(ctx))

		assert.Positive(t, repo.calls[model.JobStateCompleted])
		// Lock TTL covers half the tick so a crashed holder frees up quickly.
		assert.Equal(t, reaperTestConfig().Interval/2, lock.lastTTL)
	})
}

func TestReaperRun(t *testing.T) {
	t.Run("returns nil on graceful shutdown", func(t *testing.T) {
		repo := &mockReaperRepo{}
		cfg := reaperTestConfig()
		cfg.Interval = 10 * time.Millisecond

		svc, err := NewReaperService(ReaperServiceOptions{Repo: repo, Config: cfg})
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- svc.Run(ctx) }()

		time.Sleep(50 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("reaper did not stop after context cancellation")
		}
	})
}
