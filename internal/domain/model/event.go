package model

import "time"

// JobEvent records a single lifecycle transition. Events are written in the
// same transaction as the transition itself, so the event log and the jobs
// table can never disagree; Seq gives consumers a total order and a resume
// cursor.
type JobEvent struct {
	Seq            int64        `json:"seq"                       db:"seq"`
	JobID          string       `json:"job_id"                    db:"job_id"`
	OwnerID        string       `json:"owner_id"                  db:"owner_id"`
	FromState      JobState     `json:"from_state"                db:"from_state"`
	ToState        JobState     `json:"to_state"                  db:"to_state"`
	FailureKind    *FailureKind `json:"failure_kind,omitempty"    db:"failure_kind"`
	FailureMessage *string      `json:"failure_message,omitempty" db:"failure_message"`
	OccurredAt     time.Time    `json:"occurred_at"               db:"occurred_at"`
}

// JobEventQuery groups parameters for reading the event log.
type JobEventQuery struct {
	AfterSeq int64   // Return only events with seq greater than this
	OwnerID  *string // Optional filter by owner
	JobID    *string // Optional filter by job
	Limit    int     // Page size
}
