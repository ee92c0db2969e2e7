// Package data provides database access layer and repository implementations for the audioscribe job system.
package data

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/audioscribe/audioscribe/internal/domain/model"
)

// JobEventRepo provides read access to the lifecycle event log. Event rows
// are written inside job transitions; consumers tail them by sequence number.
type JobEventRepo struct {
	DB *sql.DB
}

// NewJobEventRepo creates a new JobEventRepo instance.
func NewJobEventRepo(db *sql.DB) *JobEventRepo {
	return &JobEventRepo{DB: db}
}

const defaultEventPageSize = 256

// ListAfter returns events with seq greater than query.AfterSeq, oldest
// first, up to query.Limit rows.
func (r *JobEventRepo) ListAfter(ctx context.Context, query model.JobEventQuery) ([]*model.JobEvent, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = defaultEventPageSize
	}

	sqlQuery := `
		SELECT seq, job_id, owner_id, from_state, to_state, failure_kind, failure_message, occurred_at
		FROM job_events`
	conds := []string{"seq > $1"}
	args := []any{query.AfterSeq}

	if query.OwnerID != nil {
		args = append(args, *query.OwnerID)
		conds = append(conds, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if query.JobID != nil {
		args = append(args, *query.JobID)
		conds = append(conds, fmt.Sprintf("job_id = $%d", len(args)))
	}

	sqlQuery += " WHERE " + strings.Join(conds, " AND ")
	args = append(args, limit)
	sqlQuery += fmt.Sprintf(" ORDER BY seq ASC LIMIT $%d", len(args))

	rows, err := r.DB.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("list job events: %w", err)
	}
	defer rows.Close()

	var events []*model.JobEvent
	for rows.Next() {
		var (
			ev             model.JobEvent
			fromState      string
			failureKind    sql.NullString
			failureMessage sql.NullString
		)
		if scanErr := rows.Scan(
			&ev.Seq,
			&ev.JobID,
			&ev.OwnerID,
			&fromState,
			&ev.ToState,
			&failureKind,
			&failureMessage,
			&ev.OccurredAt,
		); scanErr != nil {
			return nil, fmt.Errorf("scan job event: %w", scanErr)
		}
		ev.FromState = model.JobState(fromState)
		ev.FailureKind = cloneNullableFailureKind(failureKind)
		ev.FailureMessage = cloneNullableString(failureMessage)
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list job events: %w", err)
	}
	return events, nil
}

// LatestSeq returns the highest event sequence number, or zero when the log
// is empty. Consumers that only care about new events start their cursor here.
func (r *JobEventRepo) LatestSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(max(seq), 0) FROM job_events`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("latest event seq: %w", err)
	}
	return seq, nil
}

// WaitForNotification blocks until a new event row lands or the context ends.
func (r *JobEventRepo) WaitForNotification(ctx context.Context) error {
	return waitForNotification(ctx, r.DB, eventsChannel)
}
