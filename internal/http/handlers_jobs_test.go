package httpx

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/audioscribe/audioscribe/internal/core"
	"github.com/audioscribe/audioscribe/internal/data"
	"github.com/audioscribe/audioscribe/internal/domain/model"
	"github.com/audioscribe/audioscribe/internal/mocks"
	"github.com/audioscribe/audioscribe/internal/service"
)

type jobHandlerFixture struct {
	handlers    *JobHandlers
	repo        *mocks.MockJobRepository
	settings    *mocks.MockSettingsRepository
	transcripts *mocks.MockTranscriptRepository
	artifacts   *mocks.MockArtifactStore
}

func newJobHandlerFixture(t *testing.T) *jobHandlerFixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	f := &jobHandlerFixture{
		repo:        mocks.NewMockJobRepository(ctrl),
		settings:    mocks.NewMockSettingsRepository(ctrl),
		transcripts: mocks.NewMockTranscriptRepository(ctrl),
		artifacts:   mocks.NewMockArtifactStore(ctrl),
	}
	svc := service.MustNewJobService(service.JobServiceOptions{
		Repo:        f.repo,
		Settings:    f.settings,
		Transcripts: f.transcripts,
		Artifacts:   f.artifacts,
	})
	f.handlers = &JobHandlers{Svc: svc}
	return f
}

func TestSubmitJob_Success(t *testing.T) {
	f := newJobHandlerFixture(t)

	reqBody := model.SubmitJobRequest{
		OwnerID:  "owner-1",
		MediaRef: "media/interview.wav",
	}
	expected := &model.Job{
		ID:       "job-123",
		OwnerID:  "owner-1",
		MediaRef: "media/interview.wav",
		Model:    model.DefaultModel,
		State:    model.JobStateQueued,
	}

	f.settings.EXPECT().Get(gomock.Any(), "owner-1").
		Return(model.DefaultOwnerSettings("owner-1"), nil)
	f.repo.EXPECT().CountByOwnerInState(gomock.Any(), "owner-1", model.JobStateQueued).
		Return(0, nil)
	f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(expected, nil)

	b, _ := json.Marshal(reqBody)
	r := httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewReader(b))
	w := httptest.NewRecorder()

	f.handlers.Submit(w, r)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var got model.Job
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, expected.ID, got.ID)
	assert.Equal(t, model.JobStateQueued, got.State)
}

func TestSubmitJob_InvalidJSON(t *testing.T) {
	f := newJobHandlerFixture(t)

	r := httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewBufferString("{bad"))
	w := httptest.NewRecorder()

	f.handlers.Submit(w, r)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmitJob_QueueLimitReached(t *testing.T) {
	f := newJobHandlerFixture(t)

	settings := model.DefaultOwnerSettings("owner-1")
	settings.MaxQueuedJobs = 2

	f.settings.EXPECT().Get(gomock.Any(), "owner-1").Return(settings, nil)
	f.repo.EXPECT().CountByOwnerInState(gomock.Any(), "owner-1", model.JobStateQueued).
		Return(2, nil)

	b, _ := json.Marshal(model.SubmitJobRequest{OwnerID: "owner-1", MediaRef: "media/a.wav"})
	r := httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewReader(b))
	w := httptest.NewRecorder()

	f.handlers.Submit(w, r)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestSubmitJob_UnknownModel(t *testing.T) {
	f := newJobHandlerFixture(t)

	f.settings.EXPECT().Get(gomock.Any(), "owner-1").
		Return(model.DefaultOwnerSettings("owner-1"), nil)

	badModel := "no-such-model"
	b, _ := json.Marshal(model.SubmitJobRequest{
		OwnerID:  "owner-1",
		MediaRef: "media/a.wav",
		Model:    &badModel,
	})
	r := httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewReader(b))
	w := httptest.NewRecorder()

	f.handlers.Submit(w, r)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetJob_Success(t *testing.T) {
	f := newJobHandlerFixture(t)

	f.repo.EXPECT().GetByID(gomock.Any(), "job-123").
		Return(&model.Job{ID: "job-123", State: model.JobStateRunning}, nil)

	r := httptest.NewRequest(http.MethodGet, "/api/jobs/job-123", nil)
	r.SetPathValue("id", "job-123")
	w := httptest.NewRecorder()

	f.handlers.Get(w, r)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGetJob_NotFound(t *testing.T) {
	f := newJobHandlerFixture(t)

	f.repo.EXPECT().GetByID(gomock.Any(), "missing").Return(nil, data.ErrJobNotFound)

	r := httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil)
	r.SetPathValue("id", "missing")
	w := httptest.NewRecorder()

	f.handlers.Get(w, r)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListJobs_Filters(t *testing.T) {
	f := newJobHandlerFixture(t)

	var captured *model.JobListOptions
	f.repo.EXPECT().List(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ any, opts *model.JobListOptions) ([]*model.Job, error) {
			captured = opts
			return []*model.Job{{ID: "job-1"}}, nil
		})

	r := httptest.NewRequest(http.MethodGet, "/api/jobs?owner=owner-1&state=queued&tag=nightly&limit=10", nil)
	w := httptest.NewRecorder()

	f.handlers.List(w, r)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, captured)
	require.NotNil(t, captured.OwnerID)
	assert.Equal(t, "owner-1", *captured.OwnerID)
	require.NotNil(t, captured.State)
	assert.Equal(t, model.JobStateQueued, *captured.State)
	require.NotNil(t, captured.Tag)
	assert.Equal(t, "nightly", *captured.Tag)
	assert.Equal(t, 10, captured.Limit)
}

func TestListJobs_InvalidState(t *testing.T) {
	f := newJobHandlerFixture(t)

	r := httptest.NewRequest(http.MethodGet, "/api/jobs?state=paused", nil)
	w := httptest.NewRecorder()

	f.handlers.List(w, r)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCancelJob_Queued(t *testing.T) {
	f := newJobHandlerFixture(t)

	f.repo.EXPECT().GetByID(gomock.Any(), "job-123").
		Return(&model.Job{ID: "job-123", State: model.JobStateQueued}, nil)
	f.repo.EXPECT().Transition(gomock.Any(), core.TransitionParams{
		ID:   "job-123",
		From: model.JobStateQueued,
		To:   model.JobStateCancelled,
	}).Return(&model.Job{ID: "job-123", State: model.JobStateCancelled}, nil)

	r := httptest.NewRequest(http.MethodDelete, "/api/jobs/job-123", nil)
	r.SetPathValue("id", "job-123")
	w := httptest.NewRecorder()

	f.handlers.Cancel(w, r)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var got model.Job
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, model.JobStateCancelled, got.State)
}

func TestCancelJob_AlreadyFinished(t *testing.T) {
	f := newJobHandlerFixture(t)

	f.repo.EXPECT().GetByID(gomock.Any(), "job-123").
		Return(&model.Job{ID: "job-123", State: model.JobStateCompleted}, nil)

	r := httptest.NewRequest(http.MethodDelete, "/api/jobs/job-123", nil)
	r.SetPathValue("id", "job-123")
	w := httptest.NewRecorder()

	f.handlers.Cancel(w, r)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAddTags_Success(t *testing.T) {
	f := newJobHandlerFixture(t)

	f.repo.EXPECT().AddTags(gomock.Any(), "job-123", []string{"nightly"}).
		Return(&model.Job{ID: "job-123", Tags: []string{"nightly"}}, nil)

	r := httptest.NewRequest(http.MethodPost, "/api/jobs/job-123/tags",
		bytes.NewBufferString(`{"tags":["nightly"]}`))
	r.SetPathValue("id", "job-123")
	w := httptest.NewRecorder()

	f.handlers.AddTags(w, r)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestJobStats(t *testing.T) {
	f := newJobHandlerFixture(t)

	f.repo.EXPECT().Stats(gomock.Any()).
		Return(&model.JobStats{Queued: 3, Running: 1, Completed: 10}, nil)

	r := httptest.NewRequest(http.MethodGet, "/api/jobs/stats", nil)
	w := httptest.NewRecorder()

	f.handlers.Stats(w, r)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got model.JobStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, 3, got.Queued)
}

func TestGetTranscript_SignedURL(t *testing.T) {
	f := newJobHandlerFixture(t)

	f.transcripts.EXPECT().GetByJobID(gomock.Any(), "job-123").
		Return(&model.Transcript{JobID: "job-123", ArtifactRef: "transcripts/job-123.json"}, nil)
	f.artifacts.EXPECT().SignedURL(gomock.Any(), "transcripts/job-123.json", gomock.Any()).
		Return("https://blobs.example.com/transcripts/job-123.json?sig=abc", nil)

	r := httptest.NewRequest(http.MethodGet, "/api/jobs/job-123/transcript", nil)
	r.SetPathValue("id", "job-123")
	w := httptest.NewRecorder()

	f.handlers.GetTranscript(w, r)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got service.TranscriptResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.NotEmpty(t, got.SignedURL)
	assert.Nil(t, got.Document)
}

func TestGetTranscript_NotFound(t *testing.T) {
	f := newJobHandlerFixture(t)

	f.transcripts.EXPECT().GetByJobID(gomock.Any(), "job-123").
		Return(nil, data.ErrTranscriptNotFound)

	r := httptest.NewRequest(http.MethodGet, "/api/jobs/job-123/transcript", nil)
	r.SetPathValue("id", "job-123")
	w := httptest.NewRecorder()

	f.handlers.GetTranscript(w, r)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
