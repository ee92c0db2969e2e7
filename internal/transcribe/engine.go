// Package transcribe defines the speech-to-text engine abstraction and its
// concrete backends. Engines consume a local media file and produce a
// structured transcription result.
package transcribe

import (
	"context"
	"errors"
	"fmt"

	"github.com/audioscribe/audioscribe/internal/domain/model"
)

// Engine runs speech-to-text on a local media file. Implementations must
// honor context cancellation and return an *EngineError on failure.
type Engine interface {
	Name() string
	Run(ctx context.Context, mediaPath string, cfg Config) (*Result, error)
}

// Config carries per-job engine parameters resolved from the job row.
type Config struct {
	Model      string
	Language   string
	Diarizer   string
	Diarize    bool
	Timestamps bool
}

// Segment is one timed span of recognized speech.
type Segment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker,omitempty"`
	Text    string  `json:"text"`
}

// Result is the output of a successful engine run.
type Result struct {
	Language        string
	DurationSeconds float64
	Text            string
	Segments        []Segment
}

// WordCount counts whitespace-separated tokens across all segments.
func (r *Result) WordCount() int {
	n := 0
	for _, seg := range r.Segments {
		inWord := false
		for _, c := range seg.Text {
			switch c {
			case ' ', '\t', '\n', '\r':
				inWord = false
			default:
				if !inWord {
					n++
				}
				inWord = true
			}
		}
	}
	return n
}

// EngineError classifies an engine failure so callers can decide whether the
// job should be retried or failed permanently.
type EngineError struct {
	Kind    model.FailureKind
	Message string
	Cause   error
}

func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("engine: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("engine: %s", e.Message)
}

func (e *EngineError) Unwrap() error { return e.Cause }

// Transient reports whether retrying the same job could plausibly succeed.
func (e *EngineError) Transient() bool {
	switch e.Kind {
	case model.FailureKindResourceExhausted, model.FailureKindTimeout, model.FailureKindModelUnavailable:
		return true
	default:
		return false
	}
}

// AsEngineError unwraps err to an EngineError, or wraps it as a generic
// engine failure so callers always get a classified error. The wrapped
// error's text is kept as the message so the job's failure detail says what
// actually went wrong.
func AsEngineError(err error) *EngineError {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee
	}
	msg := "transcription failed"
	if err != nil {
		msg = err.Error()
	}
	return &EngineError{Kind: model.FailureKindEngine, Message: msg, Cause: err}
}
