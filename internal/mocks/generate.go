// Package mocks provides mock implementations for testing the audioscribe services.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our repository interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockRepo := mocks.NewMockJobRepository(ctrl)
//	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(job, nil)
package mocks

// Generate mock for JobRepository interface from internal/core package.
// This creates MockJobRepository with methods for all JobRepository interface methods:
// Create, GetByID, List, ListQueued, ListRunning, ListStaleRunning, Transition,
// CompleteWithTranscript, RequestCancel, AddTags, Touch, CountByOwnerInState,
// Stats, WaitForQueueNotification, DeleteOldJobs
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=job_repository_mock.go github.com/audioscribe/audioscribe/internal/core JobRepository

// Generate mock for JobEventRepository interface from internal/core package.
// This creates MockJobEventRepository with methods for all JobEventRepository interface methods:
// ListAfter, LatestSeq, WaitForNotification
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=job_event_repository_mock.go github.com/audioscribe/audioscribe/internal/core JobEventRepository

// Generate mock for SettingsRepository interface from internal/core package.
// This creates MockSettingsRepository with methods for all SettingsRepository interface methods:
// Get, Upsert
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=settings_repository_mock.go github.com/audioscribe/audioscribe/internal/core SettingsRepository

// Generate mock for TranscriptRepository interface from internal/core package.
// This creates MockTranscriptRepository with methods for all TranscriptRepository interface methods:
// GetByJobID, DeleteByJobID
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=transcript_repository_mock.go github.com/audioscribe/audioscribe/internal/core TranscriptRepository

// Generate mock for ArtifactStore interface from internal/core package.
// This creates MockArtifactStore with methods for all ArtifactStore interface methods:
// Get, Put, Delete, Exists, SignedURL
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=artifact_store_mock.go github.com/audioscribe/audioscribe/internal/core ArtifactStore

// Generate mock for EventPublisher interface from internal/core package.
// This creates MockEventPublisher with methods for all EventPublisher interface methods:
// Publish
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=event_publisher_mock.go github.com/audioscribe/audioscribe/internal/core EventPublisher

// Generate mock for Engine interface from internal/transcribe package.
// This creates MockEngine with methods for all Engine interface methods:
// Name, Run
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=engine_mock.go github.com/audioscribe/audioscribe/internal/transcribe Engine
