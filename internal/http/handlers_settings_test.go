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

	"github.com/audioscribe/audioscribe/internal/domain/model"
	"github.com/audioscribe/audioscribe/internal/mocks"
	"github.com/audioscribe/audioscribe/internal/service"
)

func newSettingsHandlers(t *testing.T) (*SettingsHandlers, *mocks.MockSettingsRepository) {
	t.Helper()
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockSettingsRepository(ctrl)

	svc, err := service.NewSettingsService(service.SettingsServiceOptions{Repo: repo})
	require.NoError(t, err)
	return &SettingsHandlers{Svc: svc}, repo
}

func TestGetSettings_DefaultsForUnknownOwner(t *testing.T) {
	h, repo := newSettingsHandlers(t)

	repo.EXPECT().Get(gomock.Any(), "owner-1").
		Return(model.DefaultOwnerSettings("owner-1"), nil)

	r := httptest.NewRequest(http.MethodGet, "/api/owners/owner-1/settings", nil)
	r.SetPathValue("owner", "owner-1")
	w := httptest.NewRecorder()

	h.Get(w, r)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got model.OwnerSettings
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "owner-1", got.OwnerID)
	assert.Equal(t, model.DefaultModel, got.Model)
}

func TestUpdateSettings_Success(t *testing.T) {
	h, repo := newSettingsHandlers(t)

	updated := model.DefaultOwnerSettings("owner-1")
	updated.MaxConcurrentJobs = 2

	repo.EXPECT().Upsert(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ any, s *model.OwnerSettings) (*model.OwnerSettings, error) {
			assert.Equal(t, "owner-1", s.OwnerID)
			assert.Equal(t, 2, s.MaxConcurrentJobs)
			return updated, nil
		})

	body := model.DefaultOwnerSettings("ignored")
	body.MaxConcurrentJobs = 2
	b, _ := json.Marshal(body)

	r := httptest.NewRequest(http.MethodPut, "/api/owners/owner-1/settings", bytes.NewReader(b))
	r.SetPathValue("owner", "owner-1")
	w := httptest.NewRecorder()

	h.Update(w, r)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUpdateSettings_RejectsBadLimits(t *testing.T) {
	h, _ := newSettingsHandlers(t)

	body := model.DefaultOwnerSettings("owner-1")
	body.MaxConcurrentJobs = -1
	b, _ := json.Marshal(body)

	r := httptest.NewRequest(http.MethodPut, "/api/owners/owner-1/settings", bytes.NewReader(b))
	r.SetPathValue("owner", "owner-1")
	w := httptest.NewRecorder()

	h.Update(w, r)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
