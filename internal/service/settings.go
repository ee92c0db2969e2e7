package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/audioscribe/audioscribe/internal/core"
	"github.com/audioscribe/audioscribe/internal/domain/model"
	apperrors "github.com/audioscribe/audioscribe/internal/errors"
)

// SettingsServiceOptions groups dependencies for SettingsService.
type SettingsServiceOptions struct {
	Repo   core.SettingsRepository // Required: settings repository
	Logger *slog.Logger            // Optional: structured logger
}

// SettingsService manages per-owner defaults and limits. The reserved owner
// id "_global" carries the scheduler-wide concurrency limit.
type SettingsService struct {
	repo   core.SettingsRepository
	logger *slog.Logger
}

// NewSettingsService constructs a new SettingsService.
func NewSettingsService(opts SettingsServiceOptions) (*SettingsService, error) {
	if opts.Repo == nil {
		return nil, errors.New("SettingsRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "settings_service")
	}

	return &SettingsService{repo: opts.Repo, logger: logger}, nil
}

// Get returns the owner's settings, falling back to built-in defaults.
func (s *SettingsService) Get(ctx context.Context, ownerID string) (*model.OwnerSettings, error) {
	if ownerID == "" {
		return nil, apperrors.ValidationField("owner_id", "owner id is required")
	}
	settings, err := s.repo.Get(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("get settings for %s: %w", ownerID, err)
	}
	return settings, nil
}

// GetGlobal returns the scheduler-wide settings row.
func (s *SettingsService) GetGlobal(ctx context.Context) (*model.OwnerSettings, error) {
	return s.Get(ctx, model.GlobalOwnerID)
}

// Update validates and stores the owner's settings.
func (s *SettingsService) Update(ctx context.Context, settings *model.OwnerSettings) (*model.OwnerSettings, error) {
	if settings == nil {
		return nil, apperrors.Validation("settings are required")
	}
	if err := validateSettings(settings); err != nil {
		return nil, err
	}

	updated, err := s.repo.Upsert(ctx, settings)
	if err != nil {
		return nil, fmt.Errorf("update settings for %s: %w", settings.OwnerID, err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "owner settings updated",
			"owner", updated.OwnerID,
			"max_concurrent_jobs", updated.MaxConcurrentJobs,
			"max_queued_jobs", updated.MaxQueuedJobs)
	}
	return updated, nil
}

func validateSettings(settings *model.OwnerSettings) error {
	if settings.OwnerID == "" {
		return apperrors.ValidationField("owner_id", "owner id is required")
	}
	if !model.KnownModel(settings.Model) {
		return apperrors.ValidationField("model",
			fmt.Sprintf("unknown model %q, known models: %v", settings.Model, model.KnownModels()))
	}
	if !model.KnownDiarizer(settings.Diarizer) {
		return apperrors.ValidationField("diarizer",
			fmt.Sprintf("unknown diarizer %q, known diarizers: %v", settings.Diarizer, model.KnownDiarizers()))
	}
	if settings.MaxConcurrentJobs < 1 {
		return apperrors.ValidationField("max_concurrent_jobs", "must be at least 1")
	}
	if settings.MaxQueuedJobs < 1 {
		return apperrors.ValidationField("max_queued_jobs", "must be at least 1")
	}
	if settings.MaxRetries < 0 {
		return apperrors.ValidationField("max_retries", "must not be negative")
	}
	return nil
}
