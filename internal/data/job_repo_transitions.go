package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/audioscribe/audioscribe/internal/core"
	"github.com/audioscribe/audioscribe/internal/data/pgxutil"
	"github.com/audioscribe/audioscribe/internal/domain/model"
)

// eventParams groups the fields of a lifecycle event row.
type eventParams struct {
	job            *model.Job
	fromState      model.JobState
	toState        model.JobState
	failureKind    *model.FailureKind
	failureMessage *string
	occurredAt     time.Time
}

// insertJobEventInTx appends a lifecycle event row and notifies listeners on
// the events channel with the new sequence number.
func insertJobEventInTx(ctx context.Context, tx pgx.Tx, p eventParams) error {
	var seq int64
	err := tx.QueryRow(ctx, `
		INSERT INTO job_events (job_id, owner_id, from_state, to_state, failure_kind, failure_message, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING seq
	`, p.job.ID, p.job.OwnerID, string(p.fromState), string(p.toState),
		failureKindArg(p.failureKind), p.failureMessage, p.occurredAt).Scan(&seq)
	if err != nil {
		return fmt.Errorf("insert job event: %w", err)
	}

	if _, execErr := tx.Exec(ctx, `SELECT pg_notify($1::text, $2::text)`, eventsChannel, fmt.Sprintf("%d", seq)); execErr != nil {
		return fmt.Errorf("notify job event: %w", execErr)
	}
	return nil
}

func failureKindArg(k *model.FailureKind) *string {
	if k == nil {
		return nil
	}
	s := string(*k)
	return &s
}

// notifyQueueInTx wakes scheduler workers waiting for queued jobs.
func notifyQueueInTx(ctx context.Context, tx pgx.Tx, jobID string) error {
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1::text, $2::text)`, queueChannel, jobID); err != nil {
		return fmt.Errorf("send queue notification: %w", err)
	}
	return nil
}

// Transition applies a guarded state change. The update only matches while
// the job is still in params.From; losing that race yields
// ErrTransitionConflict, which callers treat as "someone else got there
// first", not as failure.
func (r *JobRepo) Transition(ctx context.Context, params core.TransitionParams) (*model.Job, error) {
	if err := validateTransition(params); err != nil {
		return nil, err
	}

	currentTime := r.timeProvider.Now().UTC()
	query, args := buildTransitionQuery(params, currentTime)

	var job *model.Job
	txErr := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			rows, qerr := tx.Query(ctx, query, args...)
			if qerr != nil {
				return fmt.Errorf("transition job: %w", qerr)
			}
			updated, collectErr := collectJobFromRows(rows)
			rows.Close()
			if errors.Is(collectErr, pgx.ErrNoRows) {
				return r.classifyLostTransition(ctx, tx, params)
			}
			if collectErr != nil {
				return fmt.Errorf("collect job: %w", collectErr)
			}
			job = updated

			if eventErr := insertJobEventInTx(ctx, tx, eventParams{
				job:            job,
				fromState:      params.From,
				toState:        params.To,
				failureKind:    params.FailureKind,
				failureMessage: params.FailureMessage,
				occurredAt:     currentTime,
			}); eventErr != nil {
				return eventErr
			}

			if params.To == model.JobStateQueued {
				return notifyQueueInTx(ctx, tx, job.ID)
			}
			return nil
		},
	})
	if txErr != nil {
		return nil, txErr
	}
	return job, nil
}

func validateTransition(params core.TransitionParams) error {
	if params.ID == "" {
		return errors.New("job id is required")
	}
	if !params.From.Valid() || !params.To.Valid() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, params.From, params.To)
	}
	if !params.From.CanTransitionTo(params.To) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, params.From, params.To)
	}
	if params.To == model.JobStateFailed && params.FailureKind == nil {
		return errors.New("failure kind is required when transitioning to failed")
	}
	if params.To != model.JobStateFailed && params.FailureKind != nil {
		return errors.New("failure kind is only valid when transitioning to failed")
	}
	return nil
}

// buildTransitionQuery produces the guarded UPDATE for the target state.
// started_at is set only on the first move to running and never after;
// finished_at is set exactly on entry to a terminal state.
func buildTransitionQuery(params core.TransitionParams, now time.Time) (string, []any) {
	args := []any{params.ID, params.From, now}

	var set string
	switch params.To {
	case model.JobStateRunning:
		set = `state = 'running',
		       started_at = COALESCE(started_at, $3),
		       last_active_at = $3,
		       updated_at = $3`
	case model.JobStateQueued:
		increment := 0
		if params.IncrementRetry {
			increment = 1
		}
		args = append(args, increment)
		set = `state = 'queued',
		       last_active_at = NULL,
		       retry_count = retry_count + $4,
		       updated_at = $3`
	case model.JobStateFailed:
		args = append(args, string(*params.FailureKind), params.FailureMessage)
		set = `state = 'failed',
		       finished_at = $3,
		       failure_kind = $4,
		       failure_message = $5,
		       last_active_at = NULL,
		       updated_at = $3`
	default: // completed, cancelled
		args = append(args, params.To)
		set = `state = $4,
		       finished_at = $3,
		       last_active_at = NULL,
		       updated_at = $3`
	}

	query := `UPDATE jobs SET ` + set + `
		WHERE id = $1 AND state = $2
		RETURNING ` + jobColumns
	return query, args
}

// classifyLostTransition distinguishes a missing job from a lost race.
func (r *JobRepo) classifyLostTransition(ctx context.Context, tx pgx.Tx, params core.TransitionParams) error {
	var actual model.JobState
	err := tx.QueryRow(ctx, `SELECT state FROM jobs WHERE id = $1`, params.ID).Scan(&actual)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("recheck job state: %w", err)
	}
	return fmt.Errorf("%w: job %s is %s, expected %s", ErrTransitionConflict, params.ID, actual, params.From)
}

// CompleteWithTranscript transitions a running job to completed and inserts
// its transcript row in the same transaction, so a completed job always has
// its transcript and vice versa.
func (r *JobRepo) CompleteWithTranscript(ctx context.Context, transcript *model.Transcript) (*model.Job, error) {
	if transcript == nil {
		return nil, errors.New("transcript is required")
	}
	if transcript.JobID == "" {
		return nil, errors.New("transcript job id is required")
	}

	currentTime := r.timeProvider.Now().UTC()

	var job *model.Job
	txErr := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			rows, qerr := tx.Query(ctx, `
				UPDATE jobs SET
					state = 'completed',
					finished_at = $2,
					last_active_at = NULL,
					updated_at = $2
				WHERE id = $1 AND state = 'running'
				RETURNING `+jobColumns,
				transcript.JobID, currentTime,
			)
			if qerr != nil {
				return fmt.Errorf("complete job: %w", qerr)
			}
			updated, collectErr := collectJobFromRows(rows)
			rows.Close()
			if errors.Is(collectErr, pgx.ErrNoRows) {
				return r.classifyLostTransition(ctx, tx, core.TransitionParams{
					ID:   transcript.JobID,
					From: model.JobStateRunning,
					To:   model.JobStateCompleted,
				})
			}
			if collectErr != nil {
				return fmt.Errorf("collect job: %w", collectErr)
			}
			job = updated

			if _, insErr := tx.Exec(ctx, `
				INSERT INTO transcripts (job_id, owner_id, artifact_ref, language, model, duration_seconds, segment_count, word_count, size_bytes, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			`, transcript.JobID, job.OwnerID, transcript.ArtifactRef, transcript.Language, transcript.Model,
				transcript.DurationSeconds, transcript.SegmentCount, transcript.WordCount, transcript.SizeBytes, currentTime,
			); insErr != nil {
				return fmt.Errorf("insert transcript: %w", insErr)
			}

			return insertJobEventInTx(ctx, tx, eventParams{
				job:        job,
				fromState:  model.JobStateRunning,
				toState:    model.JobStateCompleted,
				occurredAt: currentTime,
			})
		},
	})
	if txErr != nil {
		return nil, txErr
	}
	return job, nil
}

// RequestCancel marks a running job for cooperative cancellation. The worker
// holding the job observes the flag and performs the actual transition.
func (r *JobRepo) RequestCancel(ctx context.Context, id string) (*model.Job, error) {
	currentTime := r.timeProvider.Now().UTC()

	var job *model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, qerr := pgxConn.Query(ctx, `
			UPDATE jobs SET cancel_requested = TRUE, updated_at = $2
			WHERE id = $1 AND state = 'running'
			RETURNING `+jobColumns,
			id, currentTime,
		)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		var collectErr error
		job, collectErr = collectJobFromRows(rows)
		return collectErr
	})
	if errors.Is(err, pgx.ErrNoRows) {
		// Either missing or no longer running; let the caller re-read.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("%w: job %s is not running", ErrTransitionConflict, id)
	}
	if err != nil {
		return nil, fmt.Errorf("request cancel: %w", err)
	}
	return job, nil
}

// AddTags appends tags the job does not already carry. Existing tag order is
// preserved; duplicates within the input are the caller's responsibility.
func (r *JobRepo) AddTags(ctx context.Context, id string, tags []string) (*model.Job, error) {
	if len(tags) == 0 {
		return r.GetByID(ctx, id)
	}

	currentTime := r.timeProvider.Now().UTC()

	var job *model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, qerr := pgxConn.Query(ctx, `
			UPDATE jobs SET
				tags = tags || (
					SELECT COALESCE(array_agg(t), '{}')
					FROM unnest($2::text[]) AS t
					WHERE NOT (t = ANY(tags))
				),
				updated_at = $3
			WHERE id = $1
			RETURNING `+jobColumns,
			id, tags, currentTime,
		)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		var collectErr error
		job, collectErr = collectJobFromRows(rows)
		return collectErr
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("add tags: %w", err)
	}
	return job, nil
}

// Touch refreshes the activity timestamp of a running job. Returns false if
// the job is no longer running.
func (r *JobRepo) Touch(ctx context.Context, id string) (bool, error) {
	currentTime := r.timeProvider.Now().UTC()

	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET last_active_at = $2,
		    updated_at = $2
		WHERE id = $1 AND state = 'running'
	`, id, currentTime)
	if err != nil {
		return false, fmt.Errorf("touch job: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("touch rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}
