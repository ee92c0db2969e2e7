package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/audioscribe/audioscribe/internal/domain/model"
)

// SettingsRepo provides database operations for owner settings.
type SettingsRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewSettingsRepo creates a new SettingsRepo instance.
func NewSettingsRepo(db *sql.DB, tp TimeProvider) *SettingsRepo {
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &SettingsRepo{DB: db, timeProvider: tp}
}

const settingsColumns = `
  owner_id,
  model,
  language,
  diarizer,
  diarization_enabled,
  timestamps_enabled,
  max_concurrent_jobs,
  max_queued_jobs,
  max_retries,
  updated_at
`

// Get returns the owner's stored settings, falling back to built-in defaults
// when no row exists. Missing rows are not an error: most owners never
// customize anything.
func (r *SettingsRepo) Get(ctx context.Context, ownerID string) (*model.OwnerSettings, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, errors.New("owner id is required")
	}

	var s model.OwnerSettings
	err := r.DB.QueryRowContext(ctx, `
		SELECT `+settingsColumns+`
		FROM owner_settings
		WHERE owner_id = $1
	`, ownerID).Scan(
		&s.OwnerID,
		&s.Model,
		&s.Language,
		&s.Diarizer,
		&s.DiarizationEnabled,
		&s.TimestampsEnabled,
		&s.MaxConcurrentJobs,
		&s.MaxQueuedJobs,
		&s.MaxRetries,
		&s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DefaultOwnerSettings(ownerID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get owner settings: %w", err)
	}
	return &s, nil
}

// Upsert stores the owner's settings, replacing any existing row.
func (r *SettingsRepo) Upsert(ctx context.Context, settings *model.OwnerSettings) (*model.OwnerSettings, error) {
	if settings == nil {
		return nil, errors.New("settings are required")
	}
	if strings.TrimSpace(settings.OwnerID) == "" {
		return nil, errors.New("owner id is required")
	}

	currentTime := r.timeProvider.Now().UTC()

	var s model.OwnerSettings
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO owner_settings (
			owner_id, model, language, diarizer, diarization_enabled,
			timestamps_enabled, max_concurrent_jobs, max_queued_jobs, max_retries, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (owner_id) DO UPDATE SET
			model = EXCLUDED.model,
			language = EXCLUDED.language,
			diarizer = EXCLUDED.diarizer,
			diarization_enabled = EXCLUDED.diarization_enabled,
			timestamps_enabled = EXCLUDED.timestamps_enabled,
			max_concurrent_jobs = EXCLUDED.max_concurrent_jobs,
			max_queued_jobs = EXCLUDED.max_queued_jobs,
			max_retries = EXCLUDED.max_retries,
			updated_at = EXCLUDED.updated_at
		RETURNING `+settingsColumns,
		settings.OwnerID, settings.Model, settings.Language, settings.Diarizer, settings.DiarizationEnabled,
		settings.TimestampsEnabled, settings.MaxConcurrentJobs, settings.MaxQueuedJobs, settings.MaxRetries, currentTime,
	).Scan(
		&s.OwnerID,
		&s.Model,
		&s.Language,
		&s.Diarizer,
		&s.DiarizationEnabled,
		&s.TimestampsEnabled,
		&s.MaxConcurrentJobs,
		&s.MaxQueuedJobs,
		&s.MaxRetries,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert owner settings: %w", err)
	}
	return &s, nil
}
