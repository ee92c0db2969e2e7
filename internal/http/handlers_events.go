package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/audioscribe/audioscribe/internal/domain/model"
	"github.com/audioscribe/audioscribe/internal/service"
)

const (
	defaultEventPageSize = 100
	maxEventPageSize     = 1000
	ssePingInterval      = 15 * time.Second
)

// EventHandlers holds dependencies for event-related HTTP handlers.
type EventHandlers struct {
	Svc    *service.EventService
	Logger *slog.Logger
}

// List handles GET /api/events, a paged read of the event log.
func (h *EventHandlers) List(w http.ResponseWriter, r *http.Request) {
	query, err := parseEventQuery(r)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_filter", Err: err})
		return
	}

	events, err := h.Svc.ListAfter(r.Context(), query)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	var lastSeq int64
	if len(events) > 0 {
		lastSeq = events[len(events)-1].Seq
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"events":   events,
		"last_seq": lastSeq,
	})
}

// ListForJob handles GET /api/jobs/{id}/events.
func (h *EventHandlers) ListForJob(w http.ResponseWriter, r *http.Request) {
	query, err := parseEventQuery(r)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_filter", Err: err})
		return
	}
	jobID := r.PathValue("id")
	query.JobID = &jobID

	events, err := h.Svc.ListAfter(r.Context(), query)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

// Stream handles GET /api/events/stream, a server-sent-events feed of
// lifecycle transitions. Clients resume with Last-Event-ID (or ?after=) and
// get a catch-up read from the event log before live delivery starts.
func (h *EventHandlers) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "streaming_unsupported",
			Err:     fmt.Errorf("response writer does not support streaming"),
		})
		return
	}

	query, err := parseEventQuery(r)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_filter", Err: err})
		return
	}
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		seq, parseErr := strconv.ParseInt(v, 10, 64)
		if parseErr != nil {
			WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_filter", Err: parseErr})
			return
		}
		query.AfterSeq = seq
	}

	// Subscribe before the catch-up read so nothing falls between the two.
	var filter service.EventSubscription
	if query.OwnerID != nil {
		filter.OwnerID = *query.OwnerID
	}
	if query.JobID != nil {
		filter.JobID = *query.JobID
	}
	unsubscribe, live := h.Svc.Subscribe(filter)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	cursor, err := h.replayEvents(r.Context(), w, flusher, query)
	if err != nil {
		h.Logger.Warn("event stream catch-up failed", slog.Any("error", err))
		return
	}

	ping := time.NewTicker(ssePingInterval)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case event, open := <-live:
			if !open {
				return
			}
			if event.Seq <= cursor {
				continue
			}
			if err := writeSSEEvent(w, event); err != nil {
				return
			}
			cursor = event.Seq
			flusher.Flush()
		}
	}
}

// replayEvents pages through the stored log from the client's cursor and
// returns the sequence number of the last event written.
func (h *EventHandlers) replayEvents(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, query model.JobEventQuery) (int64, error) {
	cursor := query.AfterSeq
	for {
		query.AfterSeq = cursor
		events, err := h.Svc.ListAfter(ctx, query)
		if err != nil {
			return cursor, err
		}
		for _, event := range events {
			if err := writeSSEEvent(w, event); err != nil {
				return cursor, err
			}
			cursor = event.Seq
		}
		flusher.Flush()
		if len(events) < query.Limit {
			return cursor, nil
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, event *model.JobEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %d: %w", event.Seq, err)
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: job_event\ndata: %s\n\n", event.Seq, payload)
	return err
}

func parseEventQuery(r *http.Request) (model.JobEventQuery, error) {
	query := model.JobEventQuery{}
	query.Limit, _ = ParseLimitOffset(r, defaultEventPageSize, maxEventPageSize)

	q := r.URL.Query()
	if v := q.Get("after"); v != "" {
		seq, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return query, &badQueryError{param: "after", value: v}
		}
		query.AfterSeq = seq
	}
	if v := q.Get("owner"); v != "" {
		query.OwnerID = &v
	}
	if v := q.Get("job"); v != "" {
		query.JobID = &v
	}
	return query, nil
}
