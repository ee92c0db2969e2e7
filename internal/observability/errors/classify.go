package errors

import (
	goerrors "errors"
	"reflect"
	"strings"

	"github.com/audioscribe/audioscribe/internal/data"
)

// Classify returns a normalized error type name suitable for tagging metrics/logs.
// Known lifecycle sentinels get stable names; everything else falls back to the
// innermost concrete type converted to snake_case-ish.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case goerrors.Is(err, data.ErrJobNotFound):
		return "job_not_found"
	case goerrors.Is(err, data.ErrTransitionConflict):
		return "transition_conflict"
	case goerrors.Is(err, data.ErrInvalidTransition):
		return "invalid_transition"
	case goerrors.Is(err, data.ErrTranscriptNotFound):
		return "transcript_not_found"
	}

	// Unwrap to the innermost error for better signal.
	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}

	name := strings.ToLower(strings.ReplaceAll(t.String(), "*", ""))
	name = strings.ReplaceAll(name, ".", "_")
	if name == "" {
		return "unknown"
	}
	return name
}
