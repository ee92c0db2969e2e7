package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/audioscribe/audioscribe/internal/domain/model"
	apperrors "github.com/audioscribe/audioscribe/internal/errors"
	"github.com/audioscribe/audioscribe/internal/mocks"
)

func TestNewSettingsService(t *testing.T) {
	t.Run("requires settings repository", func(t *testing.T) {
		_, err := NewSettingsService(SettingsServiceOptions{})
		require.Error(t, err)
	})
}

func TestSettingsServiceGet(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the owner's stored settings", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockSettingsRepository(ctrl)
		stored := model.DefaultOwnerSettings("owner-a")
		stored.Model = "medium"
		repo.EXPECT().Get(gomock.Any(), "owner-a").Return(stored, nil)

		svc, err := NewSettingsService(SettingsServiceOptions{Repo: repo})
		require.NoError(t, err)

		got, err := svc.Get(ctx, "owner-a")
		require.NoError(t, err)
		assert.Equal(t, "medium", got.Model)
	})

	t.Run("rejects empty owner id", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		svc, err := NewSettingsService(SettingsServiceOptions{Repo: mocks.NewMockSettingsRepository(ctrl)})
		require.NoError(t, err)

		_, err = svc.Get(ctx, "")
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("GetGlobal reads the reserved global row", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockSettingsRepository(ctrl)
		repo.EXPECT().Get(gomock.Any(), model.GlobalOwnerID).
			Return(model.DefaultOwnerSettings(model.GlobalOwnerID), nil)

		svc, err := NewSettingsService(SettingsServiceOptions{Repo: repo})
		require.NoError(t, err)

		got, err := svc.GetGlobal(ctx)
		require.NoError(t, err)
		assert.Equal(t, model.GlobalOwnerID, got.OwnerID)
	})
}

func TestSettingsServiceUpdate(t *testing.T) {
	ctx := context.Background()

	valid := func() *model.OwnerSettings {
		return model.DefaultOwnerSettings("owner-a")
	}

	t.Run("stores valid settings", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockSettingsRepository(ctrl)
		settings := valid()
		settings.MaxConcurrentJobs = 8
		repo.EXPECT().Upsert(gomock.Any(), settings).Return(settings, nil)

		svc, err := NewSettingsService(SettingsServiceOptions{Repo: repo})
		require.NoError(t, err)

		updated, err := svc.Update(ctx, settings)
		require.NoError(t, err)
		assert.Equal(t, 8, updated.MaxConcurrentJobs)
	})

	t.Run("validation", func(t *testing.T) {
		tests := []struct {
			name   string
			mutate func(*model.OwnerSettings)
		}{
			{"empty owner id", func(s *model.OwnerSettings) { s.OwnerID = "" }},
			{"unknown model", func(s *model.OwnerSettings) { s.Model = "gigantic" }},
			{"unknown diarizer", func(s *model.OwnerSettings) { s.Diarizer = "who" }},
			{"zero concurrency", func(s *model.OwnerSettings) { s.MaxConcurrentJobs = 0 }},
			{"zero queue depth", func(s *model.OwnerSettings) { s.MaxQueuedJobs = 0 }},
			{"negative retries", func(s *model.OwnerSettings) { s.MaxRetries = -1 }},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				ctrl := gomock.NewController(t)
				defer ctrl.Finish()

				svc, err := NewSettingsService(SettingsServiceOptions{Repo: mocks.NewMockSettingsRepository(ctrl)})
				require.NoError(t, err)

				settings := valid()
				tt.mutate(settings)

				_, err = svc.Update(ctx, settings)
				require.Error(t, err)
				assert.True(t, apperrors.IsValidation(err))
			})
		}
	})

	t.Run("rejects nil settings", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		svc, err := NewSettingsService(SettingsServiceOptions{Repo: mocks.NewMockSettingsRepository(ctrl)})
		require.NoError(t, err)

		_, err = svc.Update(ctx, nil)
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})
}
