package errors

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Regular expressions for parsing PgError.Detail messages.
var (
	// reKeyField extracts field name from unique violation detail: "Key (field)=(value) already exists.".
	reKeyField = regexp.MustCompile(`Key \(([^)]+)\)=`)
	// reNotPresent detects missing parent: "... is not present in table ...".
	reNotPresent = regexp.MustCompile(`is not present in table "?([^"]+)"?`)
)

// MapDBError maps database errors to AppError instances.
// It handles common database error patterns including:
// - pgx.ErrNoRows → NotFound
// - Unique constraint violations → Conflict
// - Foreign key violations → ForeignKey
// - Check constraint violations → Validation
// - NOT NULL violations → Validation
// - Context timeouts/cancellations → Timeout/Canceled
//
// If the error is not a recognized database error, it returns the original error.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	// Check for context errors first
	if errors.Is(err, context.DeadlineExceeded) {
		return &AppError{
			Code:    ErrCodeTimeout,
			Message: "Request timed out. Please try again.",
			Cause:   err,
		}
	}
	if errors.Is(err, context.Canceled) {
		return &AppError{
			Code:    ErrCodeCanceled,
			Message: "Request was canceled.",
			Cause:   err,
		}
	}

	// Check for pgx.ErrNoRows (not found)
	if errors.Is(err, pgx.ErrNoRows) {
		return &AppError{
			Code:    ErrCodeNotFound,
			Message: "Resource not found",
			Cause:   err,
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapPgError(pgErr)
	}

	return err
}

func mapPgError(pgErr *pgconn.PgError) error {
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return mapUniqueViolation(pgErr)
	case pgerrcode.ForeignKeyViolation:
		return mapForeignKeyViolation(pgErr)
	case pgerrcode.CheckViolation:
		return mapCheckViolation(pgErr)
	case pgerrcode.NotNullViolation:
		return mapNotNullViolation(pgErr)
	default:
		return &AppError{
			Code:    ErrCodeInternal,
			Message: "A database error occurred. Please try again.",
			Cause:   pgErr,
		}
	}
}

// mapUniqueViolation maps unique constraint violations to Conflict errors.
func mapUniqueViolation(pgErr *pgconn.PgError) error {
	var field string

	// Prefer ColumnName metadata when available (most reliable)
	if pgErr.ColumnName != "" {
		field = pgErr.ColumnName
	}

	// Fallback: Parse Detail message for "Key (field)=(value) already exists."
	if field == "" && pgErr.Detail != "" {
		if m := reKeyField.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
			field = m[1]
		}
	}

	return &AppError{
		Code:    ErrCodeConflict,
		Message: "This value already exists. Please choose a different one.",
		Field:   field,
		Cause:   pgErr,
	}
}

// mapForeignKeyViolation maps foreign key constraint violations to ForeignKey
// errors. The only child tables in this schema reference jobs, so a missing
// parent always means a missing job.
func mapForeignKeyViolation(pgErr *pgconn.PgError) error {
	var message string

	if pgErr.Detail != "" {
		if m := reNotPresent.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
			message = "Cannot complete operation because the referenced " + tableDomainName(m[1]) + " does not exist."
		}
	}

	if message == "" && pgErr.TableName != "" {
		message = "Cannot complete operation because this item is in use by " + tableDomainName(pgErr.TableName) + "."
	}

	if message == "" {
		message = "Cannot complete operation because this item is in use."
	}

	return &AppError{
		Code:    ErrCodeForeignKey,
		Message: message,
		Cause:   pgErr,
	}
}

// mapNotNullViolation maps NOT NULL constraint violations to Validation errors.
func mapNotNullViolation(pgErr *pgconn.PgError) error {
	if pgErr.ColumnName != "" {
		return &AppError{
			Code:    ErrCodeValidation,
			Message: "This field is required.",
			Field:   pgErr.ColumnName,
			Cause:   pgErr,
		}
	}

	return &AppError{
		Code:    ErrCodeValidation,
		Message: "Required field is missing. Please check your input.",
		Cause:   pgErr,
	}
}

// mapCheckViolation maps CHECK constraint violations to Validation errors.
func mapCheckViolation(pgErr *pgconn.PgError) error {
	if pgErr.ColumnName != "" {
		return &AppError{
			Code:    ErrCodeValidation,
			Message: "This field has an invalid value.",
			Field:   pgErr.ColumnName,
			Cause:   pgErr,
		}
	}

	return &AppError{
		Code:    ErrCodeValidation,
		Message: "Invalid data. Please check your input.",
		Cause:   pgErr,
	}
}

// tableDomainName maps internal table names to user-facing resource names.
func tableDomainName(tableName string) string {
	switch strings.ToLower(strings.TrimSpace(tableName)) {
	case "jobs":
		return "Job"
	case "transcripts":
		return "Transcript"
	case "job_events":
		return "Job Event"
	case "owner_settings":
		return "Owner Settings"
	default:
		return strings.ReplaceAll(tableName, "_", " ")
	}
}
