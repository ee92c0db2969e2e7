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

func TestSettingsRepo_Get(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewSettingsRepo(db, nil)

		t.Run("missing row falls back to defaults", func(t *testing.T) {
			got, err := repo.Get(ctx, "owner-unconfigured")
			require.NoError(t, err)
			assert.Equal(t, "owner-unconfigured", got.OwnerID)
			assert.Equal(t, model.DefaultModel, got.Model)
			assert.Equal(t, model.DefaultMaxConcurrentJobs, got.MaxConcurrentJobs)
		})

		t.Run("empty owner id is an error", func(t *testing.T) {
			_, err := repo.Get(ctx, "  ")
			require.Error(t, err)
		})
	})
}

func TestSettingsRepo_Upsert(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewSettingsRepo(db, nil)

		settings := model.DefaultOwnerSettings("owner-a")
		settings.Model = "medium"
		settings.MaxConcurrentJobs = 4

		t.Run("insert then read back", func(t *testing.T) {
			stored, err := repo.Upsert(ctx, settings)
			require.NoError(t, err)
			assert.Equal(t, "medium", stored.Model)
			assert.False(t, stored.UpdatedAt.IsZero())

			got, err := repo.Get(ctx, "owner-a")
			require.NoError(t, err)
			assert.Equal(t, 4, got.MaxConcurrentJobs)
		})

		t.Run("second upsert replaces the row", func(t *testing.T) {
			settings.MaxConcurrentJobs = 8
			settings.Language = "de"
			stored, err := repo.Upsert(ctx, settings)
			require.NoError(t, err)
			assert.Equal(t, 8, stored.MaxConcurrentJobs)
			assert.Equal(t, "de", stored.Language)
		})

		t.Run("stores the reserved global row like any owner", func(t *testing.T) {
			global := model.DefaultOwnerSettings(model.GlobalOwnerID)
			global.MaxConcurrentJobs = 16

			stored, err := repo.Upsert(ctx, global)
			require.NoError(t, err)
			assert.Equal(t, model.GlobalOwnerID, stored.OwnerID)
			assert.Equal(t, 16, stored.MaxConcurrentJobs)
		})

		t.Run("nil settings are rejected", func(t *testing.T) {
			_, err := repo.Upsert(ctx, nil)
			require.Error(t, err)
		})
	})
}
