package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/audioscribe/audioscribe/internal/core"
	domainjob "github.com/audioscribe/audioscribe/internal/domain/job"
	"github.com/audioscribe/audioscribe/internal/domain/model"
)

const (
	defaultEventPollInterval = 5 * time.Second
	defaultEventBatchSize    = 256
	defaultSubscriberBuffer  = 64
)

// EventServiceOptions groups dependencies for EventService.
type EventServiceOptions struct {
	Repo core.JobEventRepository // Required: event log reader
	// Publisher optionally forwards every event to an external bus.
	Publisher core.EventPublisher
	Logger    *slog.Logger
	// PollInterval bounds how stale the dispatcher can get if a wakeup is
	// lost; defaults to 5s.
	PollInterval time.Duration
	BatchSize    int
}

// EventSubscription filters which events a subscriber receives.
type EventSubscription struct {
	OwnerID string
	JobID   string
}

// EventService tails the lifecycle event log and fans events out to
// in-process subscribers and the optional external publisher. Events are
// delivered in log order; a slow subscriber drops events rather than
// stalling the dispatcher.
type EventService struct {
	repo      core.JobEventRepository
	publisher core.EventPublisher
	notifier  *domainjob.DefaultNotifier
	logger    *slog.Logger

	pollInterval time.Duration
	batchSize    int

	mu     sync.Mutex
	nextID int
	subs   map[int]*eventSubscriber
}

type eventSubscriber struct {
	filter EventSubscription
	ch     chan *model.JobEvent
}

// NewEventService constructs a new EventService.
func NewEventService(opts EventServiceOptions) (*EventService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobEventRepository is required")
	}

	notifier, err := domainjob.NewNotifier(domainjob.NotifierOptions{
		Waiter:     domainjob.WaiterFunc(opts.Repo.WaitForNotification),
		WaitWindow: opts.PollInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("create event notifier: %w", err)
	}

	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultEventPollInterval
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultEventBatchSize
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "event_service")
	}

	return &EventService{
		repo:         opts.Repo,
		publisher:    opts.Publisher,
		notifier:     notifier,
		logger:       logger,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		subs:         make(map[int]*eventSubscriber),
	}, nil
}

// Subscribe registers an event consumer. Returns an unsubscribe function and
// the delivery channel. The channel is closed on unsubscribe.
func (s *EventService) Subscribe(filter EventSubscription) (func(), <-chan *model.JobEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	sub := &eventSubscriber{
		filter: filter,
		ch:     make(chan *model.JobEvent, defaultSubscriberBuffer),
	}
	s.subs[id] = sub

	unsub := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existing, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(existing.ch)
		}
	}
	return unsub, sub.ch
}

// ListAfter reads events directly from the log, for catch-up reads such as
// SSE reconnects with a Last-Event-ID.
func (s *EventService) ListAfter(ctx context.Context, query model.JobEventQuery) ([]*model.JobEvent, error) {
	events, err := s.repo.ListAfter(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// Run tails the event log until the context is cancelled. It wakes on log
// notifications and on the poll interval, dispatching every new event once.
// Returns nil on graceful shutdown.
func (s *EventService) Run(ctx context.Context) error {
	cursor, err := s.repo.LatestSeq(ctx)
	if err != nil {
		return fmt.Errorf("read event cursor: %w", err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting event dispatcher", "cursor", cursor)
	}

	unsub, wakeups := s.notifier.Subscribe()
	defer unsub()
	defer s.notifier.StopAll()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		cursor, err = s.drain(ctx, cursor)
		if err != nil {
			if isContextCancellation(err) {
				return nil
			}
			if s.logger != nil {
				s.logger.ErrorContext(ctx, "event dispatch failed", "error", err)
			}
		}

		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "event dispatcher stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-wakeups:
		case <-ticker.C:
		}
	}
}

// drain dispatches all events past the cursor and returns the new cursor.
func (s *EventService) drain(ctx context.Context, cursor int64) (int64, error) {
	for {
		events, err := s.repo.ListAfter(ctx, model.JobEventQuery{
			AfterSeq: cursor,
			Limit:    s.batchSize,
		})
		if err != nil {
			return cursor, err
		}
		if len(events) == 0 {
			return cursor, nil
		}
		for _, event := range events {
			s.dispatch(ctx, event)
			cursor = event.Seq
		}
		if len(events) < s.batchSize {
			return cursor, nil
		}
	}
}

func (s *EventService) dispatch(ctx context.Context, event *model.JobEvent) {
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, event); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "external event publish failed",
				"seq", event.Seq, "job_id", event.JobID, "error", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if !sub.filter.matches(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			if s.logger != nil {
				s.logger.WarnContext(ctx, "dropping event for slow subscriber",
					"seq", event.Seq, "job_id", event.JobID)
			}
		}
	}
}

func (f EventSubscription) matches(event *model.JobEvent) bool {
	if f.OwnerID != "" && event.OwnerID != f.OwnerID {
		return false
	}
	if f.JobID != "" && event.JobID != f.JobID {
		return false
	}
	return true
}
