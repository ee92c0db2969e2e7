package data

import (
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/audioscribe/audioscribe/internal/domain/model"
)

var (
	// ErrJobNotFound is returned when a job is not found.
	ErrJobNotFound = errors.New("job not found")
	// ErrTransitionConflict is returned when a guarded transition lost the
	// race: the job was no longer in the expected state when the update ran.
	ErrTransitionConflict = errors.New("job state changed concurrently")
	// ErrInvalidTransition is returned when the requested transition is not
	// permitted by the lifecycle state machine.
	ErrInvalidTransition = errors.New("transition not permitted by job lifecycle")
)

// Postgres notification channels. queueChannel fires when a job enters the
// queued state; eventsChannel fires on every lifecycle event row.
const (
	queueChannel  = "jobs_admitted"
	eventsChannel = "job_events"
)

// RepoConfig holds configuration options for the job repository.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRepo provides database operations for job lifecycle management.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	return &JobRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const jobColumns = `
  id,
  owner_id,
  media_ref,
  model,
  language,
  diarizer,
  diarization_enabled,
  timestamps_enabled,
  state,
  tags,
  cancel_requested,
  submitted_at,
  started_at,
  finished_at,
  failure_kind,
  failure_message,
  retry_count,
  max_retries,
  last_active_at,
  created_at,
  updated_at
`

type jobRowScanner interface {
	Scan(dest ...any) error
}

type jobRowData struct {
	tags                        []string
	failureKind, failureMessage sql.NullString
	startedAt, finishedAt       sql.NullTime
	lastActiveAt                sql.NullTime
}

func (d *jobRowData) scanInto(scanner jobRowScanner, job *model.Job) error {
	return scanner.Scan(
		&job.ID,
		&job.OwnerID,
		&job.MediaRef,
		&job.Model,
		&job.Language,
		&job.Diarizer,
		&job.DiarizationEnabled,
		&job.TimestampsEnabled,
		&job.State,
		&d.tags,
		&job.CancelRequested,
		&job.SubmittedAt,
		&d.startedAt,
		&d.finishedAt,
		&d.failureKind,
		&d.failureMessage,
		&job.RetryCount,
		&job.MaxRetries,
		&d.lastActiveAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
}

func (d *jobRowData) apply(job *model.Job) {
	job.Tags = append([]string(nil), d.tags...)
	job.FailureKind = cloneNullableFailureKind(d.failureKind)
	job.FailureMessage = cloneNullableString(d.failureMessage)
	job.StartedAt = cloneNullableTime(d.startedAt)
	job.FinishedAt = cloneNullableTime(d.finishedAt)
	job.LastActiveAt = cloneNullableTime(d.lastActiveAt)
}

func scanJobFromRow(scanner jobRowScanner) (*model.Job, error) {
	job := &model.Job{}
	var data jobRowData
	if err := data.scanInto(scanner, job); err != nil {
		return nil, err
	}

	data.apply(job)
	return job, nil
}

// collectJobFromRows collects a single job from pgx rows.
func collectJobFromRows(rows pgx.Rows) (*model.Job, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}

	job, err := scanJobFromRow(rows)
	if err != nil {
		return nil, err
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}

	return job, nil
}

func collectJobsFromRows(rows pgx.Rows) ([]*model.Job, error) {
	var jobs []*model.Job
	for rows.Next() {
		job, err := scanJobFromRow(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableFailureKind(ns sql.NullString) *model.FailureKind {
	if !ns.Valid {
		return nil
	}
	k := model.FailureKind(ns.String)
	return &k
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
