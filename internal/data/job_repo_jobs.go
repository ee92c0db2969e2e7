package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/audioscribe/audioscribe/internal/core"
	"github.com/audioscribe/audioscribe/internal/data/pgxutil"
	"github.com/audioscribe/audioscribe/internal/domain/model"
)

// Create inserts a new job in the queued state and records its admission
// event in the same transaction. The job's configuration snapshot must
// already be resolved by the caller.
func (r *JobRepo) Create(ctx context.Context, job *model.Job) (*model.Job, error) {
	if job == nil {
		return nil, errors.New("job is required")
	}
	if strings.TrimSpace(job.OwnerID) == "" {
		return nil, errors.New("owner id is required")
	}
	if strings.TrimSpace(job.MediaRef) == "" {
		return nil, errors.New("media ref is required")
	}

	currentTime := r.timeProvider.Now().UTC()
	id := job.ID
	if id == "" {
		id = uuid.NewString()
	}
	tags := job.Tags
	if tags == nil {
		tags = []string{}
	}

	var created *model.Job
	txErr := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			rows, err := tx.Query(ctx, `
				INSERT INTO jobs (
					id, owner_id, media_ref, model, language, diarizer,
					diarization_enabled, timestamps_enabled, state, tags,
					max_retries, submitted_at, created_at, updated_at
				)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'queued',$9,$10,$11,$11,$11)
				RETURNING `+jobColumns,
				id, job.OwnerID, job.MediaRef, job.Model, job.Language, job.Diarizer,
				job.DiarizationEnabled, job.TimestampsEnabled, tags,
				job.MaxRetries, currentTime,
			)
			if err != nil {
				return fmt.Errorf("insert job: %w", err)
			}
			inserted, collectErr := collectJobFromRows(rows)
			rows.Close()
			if collectErr != nil {
				return fmt.Errorf("collect job: %w", collectErr)
			}
			created = inserted

			if eventErr := insertJobEventInTx(ctx, tx, eventParams{
				job:        created,
				fromState:  "",
				toState:    model.JobStateQueued,
				occurredAt: currentTime,
			}); eventErr != nil {
				return eventErr
			}

			return notifyQueueInTx(ctx, tx, created.ID)
		},
	})
	if txErr != nil {
		return nil, txErr
	}

	return created, nil
}

// GetByID retrieves a job by its ID.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	var job *model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, `
			SELECT `+jobColumns+`
			FROM jobs
			WHERE id = $1
		`, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		job, err = collectJobFromRows(rows)
		return err
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// List returns jobs matching the given filters, ordered by submission time.
func (r *JobRepo) List(ctx context.Context, opts *model.JobListOptions) ([]*model.Job, error) {
	if opts == nil {
		opts = &model.JobListOptions{}
	}

	query := `SELECT ` + jobColumns + ` FROM jobs`
	var conds []string
	var args []any

	appendCond := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if opts.OwnerID != nil {
		appendCond("owner_id = $%d", *opts.OwnerID)
	}
	if opts.State != nil {
		appendCond("state = $%d", *opts.State)
	}
	if opts.Tag != nil {
		appendCond("$%d = ANY(tags)", *opts.Tag)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	order := "DESC"
	if strings.EqualFold(opts.SortOrder, "asc") {
		order = "ASC"
	}
	query += " ORDER BY submitted_at " + order + ", id " + order

	args = append(args, opts.Limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	args = append(args, opts.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	var jobs []*model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, qerr := pgxConn.Query(ctx, query, args...)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		jobs, qerr = collectJobsFromRows(rows)
		return qerr
	})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// ListQueued returns queued jobs in admission order, oldest first.
func (r *JobRepo) ListQueued(ctx context.Context, limit int) ([]*model.Job, error) {
	var jobs []*model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, qerr := pgxConn.Query(ctx, `
			SELECT `+jobColumns+`
			FROM jobs
			WHERE state = 'queued'
			ORDER BY submitted_at ASC, id ASC
			LIMIT $1
		`, limit)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		jobs, qerr = collectJobsFromRows(rows)
		return qerr
	})
	if err != nil {
		return nil, fmt.Errorf("list queued jobs: %w", err)
	}
	return jobs, nil
}

// ListRunning returns all jobs currently in the running state.
func (r *JobRepo) ListRunning(ctx context.Context) ([]*model.Job, error) {
	var jobs []*model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, qerr := pgxConn.Query(ctx, `
			SELECT `+jobColumns+`
			FROM jobs
			WHERE state = 'running'
			ORDER BY started_at ASC
		`)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		jobs, qerr = collectJobsFromRows(rows)
		return qerr
	})
	if err != nil {
		return nil, fmt.Errorf("list running jobs: %w", err)
	}
	return jobs, nil
}

// ListStaleRunning returns running jobs whose activity timestamp is older
// than maxIdle. A running job with no activity timestamp counts as stale.
func (r *JobRepo) ListStaleRunning(ctx context.Context, maxIdle time.Duration) ([]*model.Job, error) {
	cutoff := r.timeProvider.Now().Add(-maxIdle).UTC()

	var jobs []*model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, qerr := pgxConn.Query(ctx, `
			SELECT `+jobColumns+`
			FROM jobs
			WHERE state = 'running'
			  AND (last_active_at IS NULL OR last_active_at < $1)
			ORDER BY started_at ASC
		`, cutoff)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		jobs, qerr = collectJobsFromRows(rows)
		return qerr
	})
	if err != nil {
		return nil, fmt.Errorf("list stale running jobs: %w", err)
	}
	return jobs, nil
}

// CountByOwnerInState counts an owner's jobs in the given state.
func (r *JobRepo) CountByOwnerInState(ctx context.Context, ownerID string, state model.JobState) (int, error) {
	var count int
	err := r.DB.QueryRowContext(ctx, `
		SELECT count(*) FROM jobs WHERE owner_id = $1 AND state = $2
	`, ownerID, state).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count jobs by owner and state: %w", err)
	}
	return count, nil
}

// Stats returns counts of jobs in each lifecycle state.
func (r *JobRepo) Stats(ctx context.Context) (*model.JobStats, error) {
	var s model.JobStats
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    count(*) FILTER (WHERE state = 'queued')    AS queued,
    count(*) FILTER (WHERE state = 'running')   AS running,
    count(*) FILTER (WHERE state = 'completed') AS completed,
    count(*) FILTER (WHERE state = 'failed')    AS failed,
    count(*) FILTER (WHERE state = 'cancelled') AS cancelled
  FROM jobs
  `).Scan(
		&s.Queued,
		&s.Running,
		&s.Completed,
		&s.Failed,
		&s.Cancelled,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get job stats: %w", err)
	}
	return &s, nil
}

// DeleteOldJobs removes terminal jobs older than MaxAge in batches to keep
// lock times short. Dependent transcript and event rows go with them via
// cascade. The CTE joins the doomed set against transcripts before the
// delete commits, so the result can report which artifact refs are now
// orphaned in blob storage.
func (r *JobRepo) DeleteOldJobs(ctx context.Context, params core.DeleteOldJobsParams) (core.ReapResult, error) {
	if !params.State.Terminal() {
		return core.ReapResult{}, fmt.Errorf("delete old jobs: state %q is not terminal", params.State)
	}
	if params.BatchSize <= 0 {
		return core.ReapResult{}, errors.New("delete old jobs: batch size must be positive")
	}

	cutoff := r.timeProvider.Now().Add(-params.MaxAge).UTC()
	rows, err := r.DB.QueryContext(ctx, `
		WITH doomed AS (
			DELETE FROM jobs
			WHERE id IN (
				SELECT id FROM jobs
				WHERE state = $1 AND finished_at < $2
				ORDER BY finished_at ASC
				LIMIT $3
			)
			RETURNING id
		)
		SELECT d.id, t.artifact_ref
		FROM doomed d
		LEFT JOIN transcripts t ON t.job_id = d.id
	`, params.State, cutoff, params.BatchSize)
	if err != nil {
		return core.ReapResult{}, fmt.Errorf("delete old jobs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result core.ReapResult
	for rows.Next() {
		var id string
		var ref sql.NullString
		if err := rows.Scan(&id, &ref); err != nil {
			return core.ReapResult{}, fmt.Errorf("delete old jobs scan: %w", err)
		}
		result.Deleted++
		if ref.Valid && ref.String != "" {
			result.TranscriptRefs = append(result.TranscriptRefs, ref.String)
		}
	}
	if err := rows.Err(); err != nil {
		return core.ReapResult{}, fmt.Errorf("delete old jobs rows: %w", err)
	}
	return result, nil
}

// WaitForQueueNotification blocks until a job is admitted to the queue or the
// context ends.
func (r *JobRepo) WaitForQueueNotification(ctx context.Context) error {
	return waitForNotification(ctx, r.DB, queueChannel)
}

// waitForNotification LISTENs on a Postgres channel over a dedicated pooled
// connection and blocks until a notification arrives or the context ends.
func waitForNotification(ctx context.Context, db *sql.DB, channel string) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			_ = cerr
		}
	}()

	quoted := pgx.Identifier{channel}.Sanitize()

	if _, execErr := conn.ExecContext(ctx, "LISTEN "+quoted); execErr != nil {
		return fmt.Errorf("listen %s: %w", channel, execErr)
	}
	defer func() {
		if _, execErr := conn.ExecContext(context.Background(), "UNLISTEN "+quoted); execErr != nil {
			_ = execErr
		}
	}()

	return conn.Raw(func(dc any) error {
		sc, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		_, notifyErr := sc.Conn().WaitForNotification(ctx)
		return notifyErr
	})
}
