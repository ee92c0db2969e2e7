package httpx

import (
	"errors"
	"net/http"

	"github.com/audioscribe/audioscribe/internal/data"
	apperrors "github.com/audioscribe/audioscribe/internal/errors"
)

// WriteAppError maps a service error onto an HTTP status and writes the JSON
// error body.
func WriteAppError(w http.ResponseWriter, err error) {
	WriteError(w, ErrorParams{
		Code:    statusForError(err),
		ErrCode: errCodeForError(err),
		Err:     err,
	})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, data.ErrJobNotFound),
		errors.Is(err, data.ErrTranscriptNotFound),
		apperrors.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, data.ErrTransitionConflict),
		errors.Is(err, data.ErrInvalidTransition),
		apperrors.IsConflict(err),
		apperrors.IsInvalidState(err),
		apperrors.IsForeignKey(err):
		return http.StatusConflict
	case apperrors.IsValidation(err):
		return http.StatusBadRequest
	case apperrors.IsTimeout(err):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func errCodeForError(err error) string {
	switch {
	case errors.Is(err, data.ErrJobNotFound):
		return "job_not_found"
	case errors.Is(err, data.ErrTranscriptNotFound):
		return "transcript_not_found"
	case errors.Is(err, data.ErrTransitionConflict):
		return "state_conflict"
	case errors.Is(err, data.ErrInvalidTransition):
		return "invalid_transition"
	}
	if code := apperrors.GetCode(err); code != "" {
		return string(code)
	}
	return "internal"
}
