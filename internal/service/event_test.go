package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/audioscribe/audioscribe/internal/domain/model"
	"github.com/audioscribe/audioscribe/internal/mocks"
)

func testEvent(seq int64, ownerID, jobID string) *model.JobEvent {
	return &model.JobEvent{
		Seq:        seq,
		JobID:      jobID,
		OwnerID:    ownerID,
		FromState:  model.JobStateQueued,
		ToState:    model.JobStateRunning,
		OccurredAt: time.Now(),
	}
}

func TestNewEventService(t *testing.T) {
	t.Run("requires event repository", func(t *testing.T) {
		_, err := NewEventService(EventServiceOptions{})
		require.Error(t, err)
	})

	t.Run("applies poll and batch defaults", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		svc, err := NewEventService(EventServiceOptions{Repo: mocks.NewMockJobEventRepository(ctrl)})
		require.NoError(t, err)
		assert.Equal(t, defaultEventPollInterval, svc.pollInterval)
		assert.Equal(t, defaultEventBatchSize, svc.batchSize)
	})
}

func TestEventSubscriptionMatches(t *testing.T) {
	event := testEvent(1, "owner-a", "job-1")

	tests := []struct {
		name   string
		filter EventSubscription
		want   bool
	}{
		{"empty filter matches everything", EventSubscription{}, true},
		{"owner filter matches", EventSubscription{OwnerID: "owner-a"}, true},
		{"owner filter rejects other owners", EventSubscription{OwnerID: "owner-b"}, false},
		{"job filter matches", EventSubscription{JobID: "job-1"}, true},
		{"job filter rejects other jobs", EventSubscription{JobID: "job-2"}, false},
		{"combined filter must match both", EventSubscription{OwnerID: "owner-a", JobID: "job-2"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.matches(event))
		})
	}
}

func TestEventServiceDispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers to matching subscribers only", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		svc, err := NewEventService(EventServiceOptions{Repo: mocks.NewMockJobEventRepository(ctrl)})
		require.NoError(t, err)

		unsubAll, all := svc.Subscribe(EventSubscription{})
		defer unsubAll()
		unsubOther, other := svc.Subscribe(EventSubscription{OwnerID: "owner-b"})
		defer unsubOther()

		svc.dispatch(ctx, testEvent(7, "owner-a", "job-1"))

		select {
		case got := <-all:
			assert.Equal(t, int64(7), got.Seq)
		default:
			t.Fatal("unfiltered subscriber received nothing")
		}

		select {
		case got := <-other:
			t.Fatalf("filtered subscriber received event %d", got.Seq)
		default:
		}
	})

	t.Run("forwards events to the external publisher", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		publisher := mocks.NewMockEventPublisher(ctrl)
		event := testEvent(3, "owner-a", "job-1")
		publisher.EXPECT().Publish(gomock.Any(), event).Return(nil)

		svc, err := NewEventService(EventServiceOptions{
			Repo:      mocks.NewMockJobEventRepository(ctrl),
			Publisher: publisher,
		})
		require.NoError(t, err)

		svc.dispatch(ctx, event)
	})

	t.Run("unsubscribe closes the delivery channel", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		svc, err := NewEventService(EventServiceOptions{Repo: mocks.NewMockJobEventRepository(ctrl)})
		require.NoError(t, err)

		unsub, ch := svc.Subscribe(EventSubscription{})
		unsub()

		_, open := <-ch
		assert.False(t, open)

		// A second unsubscribe is a no-op.
		unsub()
	})
}

func TestEventServiceDrain(t *testing.T) {
	ctx := context.Background()

	t.Run("advances the cursor past dispatched events", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobEventRepository(ctrl)
		repo.EXPECT().ListAfter(gomock.Any(), model.JobEventQuery{AfterSeq: 5, Limit: 2}).
			Return([]*model.JobEvent{testEvent(6, "owner-a", "job-1"), testEvent(7, "owner-a", "job-1")}, nil)
		repo.EXPECT().ListAfter(gomock.Any(), model.JobEventQuery{AfterSeq: 7, Limit: 2}).
			Return(nil, nil)

		svc, err := NewEventService(EventServiceOptions{Repo: repo, BatchSize: 2})
		require.NoError(t, err)

		unsub, ch := svc.Subscribe(EventSubscription{})
		defer unsub()

		cursor, err := svc.drain(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, int64(7), cursor)
		assert.Len(t, ch, 2)
	})

	t.Run("short batch ends the drain without a second read", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobEventRepository(ctrl)
		repo.EXPECT().ListAfter(gomock.Any(), model.JobEventQuery{AfterSeq: 0, Limit: 16}).
			Return([]*model.JobEvent{testEvent(1, "owner-a", "job-1")}, nil)

		svc, err := NewEventService(EventServiceOptions{Repo: repo, BatchSize: 16})
		require.NoError(t, err)

		cursor, err := svc.drain(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), cursor)
	})
}

func TestEventServiceListAfter(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockJobEventRepository(ctrl)
	query := model.JobEventQuery{AfterSeq: 10, Limit: 50}
	repo.EXPECT().ListAfter(gomock.Any(), query).
		Return([]*model.JobEvent{testEvent(11, "owner-a", "job-1")}, nil)

	svc, err := NewEventService(EventServiceOptions{Repo: repo})
	require.NoError(t, err)

	events, err := svc.ListAfter(context.Background(), query)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(11), events[0].Seq)
}
