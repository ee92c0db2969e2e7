package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/audioscribe/audioscribe/internal/domain/model"
	"github.com/audioscribe/audioscribe/internal/mocks"
	"github.com/audioscribe/audioscribe/internal/service"
)

func newEventHandlers(t *testing.T) (*EventHandlers, *mocks.MockJobEventRepository) {
	t.Helper()
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobEventRepository(ctrl)

	svc, err := service.NewEventService(service.EventServiceOptions{Repo: repo})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	return &EventHandlers{Svc: svc, Logger: logger}, repo
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func sampleEvents(seqs ...int64) []*model.JobEvent {
	events := make([]*model.JobEvent, 0, len(seqs))
	for _, seq := range seqs {
		events = append(events, &model.JobEvent{
			Seq:        seq,
			JobID:      "job-1",
			OwnerID:    "owner-1",
			FromState:  model.JobStateQueued,
			ToState:    model.JobStateRunning,
			OccurredAt: time.Now().UTC(),
		})
	}
	return events
}

func TestListEvents(t *testing.T) {
	h, repo := newEventHandlers(t)

	var captured model.JobEventQuery
	repo.EXPECT().ListAfter(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ any, query model.JobEventQuery) ([]*model.JobEvent, error) {
			captured = query
			return sampleEvents(11, 12), nil
		})

	r := httptest.NewRequest(http.MethodGet, "/api/events?after=10&owner=owner-1", nil)
	w := httptest.NewRecorder()

	h.List(w, r)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(10), captured.AfterSeq)
	require.NotNil(t, captured.OwnerID)
	assert.Equal(t, "owner-1", *captured.OwnerID)

	var got struct {
		Events  []*model.JobEvent `json:"events"`
		LastSeq int64             `json:"last_seq"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Len(t, got.Events, 2)
	assert.Equal(t, int64(12), got.LastSeq)
}

func TestListEvents_BadCursor(t *testing.T) {
	h, _ := newEventHandlers(t)

	r := httptest.NewRequest(http.MethodGet, "/api/events?after=abc", nil)
	w := httptest.NewRecorder()

	h.List(w, r)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListEventsForJob(t *testing.T) {
	h, repo := newEventHandlers(t)

	repo.EXPECT().ListAfter(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ any, query model.JobEventQuery) ([]*model.JobEvent, error) {
			require.NotNil(t, query.JobID)
			assert.Equal(t, "job-1", *query.JobID)
			return sampleEvents(1), nil
		})

	r := httptest.NewRequest(http.MethodGet, "/api/jobs/job-1/events", nil)
	r.SetPathValue("id", "job-1")
	w := httptest.NewRecorder()

	h.ListForJob(w, r)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStreamEvents_CatchUpThenDisconnect(t *testing.T) {
	h, repo := newEventHandlers(t)

	// One page of stored events, then the client disconnects.
	repo.EXPECT().ListAfter(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ any, query model.JobEventQuery) ([]*model.JobEvent, error) {
			if query.AfterSeq >= 7 {
				return nil, nil
			}
			return sampleEvents(6, 7), nil
		}).AnyTimes()

	ctx, cancel := context.WithCancel(context.Background())
	r := httptest.NewRequest(http.MethodGet, "/api/events/stream", nil).WithContext(ctx)
	r.Header.Set("Last-Event-ID", "5")
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Stream(w, r)
	}()

	// Give the handler a moment to write the catch-up page, then hang up.
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream handler did not exit after disconnect")
	}

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var ids []string
	scanner := bufio.NewScanner(w.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "id: ") {
			ids = append(ids, strings.TrimPrefix(line, "id: "))
		}
	}
	assert.Equal(t, []string{"6", "7"}, ids)
}

func TestStreamEvents_OwnerAndJobFilter(t *testing.T) {
	h, repo := newEventHandlers(t)

	var captured model.JobEventQuery
	repo.EXPECT().ListAfter(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ any, query model.JobEventQuery) ([]*model.JobEvent, error) {
			captured = query
			return nil, nil
		}).AnyTimes()

	ctx, cancel := context.WithCancel(context.Background())
	r := httptest.NewRequest(http.MethodGet, "/api/events/stream?owner=owner-1&job=job-1", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Stream(w, r)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream handler did not exit after disconnect")
	}

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, captured.OwnerID)
	assert.Equal(t, "owner-1", *captured.OwnerID)
	require.NotNil(t, captured.JobID)
	assert.Equal(t, "job-1", *captured.JobID)
}

func TestStreamEvents_BadLastEventID(t *testing.T) {
	h, _ := newEventHandlers(t)

	r := httptest.NewRequest(http.MethodGet, "/api/events/stream", nil)
	r.Header.Set("Last-Event-ID", "not-a-number")
	w := httptest.NewRecorder()

	h.Stream(w, r)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
