package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/audioscribe/audioscribe/internal/domain/model"
)

const defaultRunTimeout = 30 * time.Minute

// FasterWhisperConfig configures the local CLI backend.
type FasterWhisperConfig struct {
	// Binary is the transcriber executable; defaults to "faster-whisper".
	Binary string
	// ModelDir optionally points the CLI at a local model cache.
	ModelDir string
	// RunTimeout bounds a single transcription run; defaults to 30m.
	RunTimeout time.Duration
	Logger     *slog.Logger
}

// FasterWhisperEngine shells out to a faster-whisper CLI and parses its JSON
// output file.
type FasterWhisperEngine struct {
	binary     string
	modelDir   string
	runTimeout time.Duration
	logger     *slog.Logger
}

// NewFasterWhisperEngine creates the CLI-backed engine.
func NewFasterWhisperEngine(cfg FasterWhisperConfig) *FasterWhisperEngine {
	binary := cfg.Binary
	if binary == "" {
		binary = "faster-whisper"
	}
	timeout := cfg.RunTimeout
	if timeout <= 0 {
		timeout = defaultRunTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &FasterWhisperEngine{
		binary:     binary,
		modelDir:   cfg.ModelDir,
		runTimeout: timeout,
		logger:     logger,
	}
}

func (e *FasterWhisperEngine) Name() string { return "faster-whisper" }

// cliOutput mirrors the JSON document the CLI writes.
type cliOutput struct {
	Language string    `json:"language"`
	Duration float64   `json:"duration"`
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
}

func (e *FasterWhisperEngine) Run(ctx context.Context, mediaPath string, cfg Config) (*Result, error) {
	outDir, err := os.MkdirTemp("", "scribe-out-*")
	if err != nil {
		return nil, &EngineError{Kind: model.FailureKindEngine, Message: "create output dir", Cause: err}
	}
	defer os.RemoveAll(outDir)

	outFile := filepath.Join(outDir, "result.json")

	runCtx, cancel := context.WithTimeout(ctx, e.runTimeout)
	defer cancel()

	args := []string{
		mediaPath,
		"--model", cfg.Model,
		"--output_format", "json",
		"--output_file", outFile,
	}
	if cfg.Language != "" && cfg.Language != "auto" {
		args = append(args, "--language", cfg.Language)
	}
	if !cfg.Timestamps {
		args = append(args, "--no_timestamps")
	}
	if cfg.Diarize {
		args = append(args, "--diarize", "--diarizer", cfg.Diarizer)
	}
	if e.modelDir != "" {
		args = append(args, "--model_dir", e.modelDir)
	}

	cmd := exec.CommandContext(runCtx, e.binary, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if runErr != nil {
		return nil, e.classifyRunError(ctx, runCtx, runErr, stderr.String(), elapsed)
	}

	raw, err := os.ReadFile(outFile)
	if err != nil {
		return nil, &EngineError{Kind: model.FailureKindEngine, Message: "read transcription output", Cause: err}
	}
	var out cliOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &EngineError{Kind: model.FailureKindEngine, Message: "decode transcription output", Cause: err}
	}

	e.logger.InfoContext(ctx, "transcription run finished",
		"engine", e.Name(), "model", cfg.Model, "duration", elapsed, "segments", len(out.Segments))

	return &Result{
		Language:        out.Language,
		DurationSeconds: out.Duration,
		Text:            out.Text,
		Segments:        out.Segments,
	}, nil
}

// classifyRunError maps process failures onto failure kinds using the exit
// state and stderr heuristics.
func (e *FasterWhisperEngine) classifyRunError(
	ctx, runCtx context.Context,
	runErr error,
	stderr string,
	elapsed time.Duration,
) *EngineError {
	if ctx.Err() != nil {
		// The job context was cancelled; surface it unclassified so the
		// worker can treat it as a cancellation rather than a failure.
		return &EngineError{Kind: model.FailureKindInterrupted, Message: "transcription interrupted", Cause: ctx.Err()}
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return &EngineError{
			Kind:    model.FailureKindTimeout,
			Message: fmt.Sprintf("transcription exceeded %s", e.runTimeout),
			Cause:   runErr,
		}
	}

	kind := model.FailureKindEngine
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "unsupported format") || strings.Contains(lower, "invalid data found"):
		kind = model.FailureKindUnsupportedFormat
	case strings.Contains(lower, "corrupt") || strings.Contains(lower, "decode error"):
		kind = model.FailureKindBadMedia
	case strings.Contains(lower, "out of memory") || strings.Contains(lower, "cuda out of memory"):
		kind = model.FailureKindResourceExhausted
	case strings.Contains(lower, "model") && strings.Contains(lower, "not found"):
		kind = model.FailureKindModelUnavailable
	}

	msg := firstLine(stderr)
	if msg == "" {
		msg = runErr.Error()
	}

	e.logger.WarnContext(ctx, "transcription run failed",
		"engine", e.Name(), "kind", kind, "duration", elapsed, "error", msg)

	return &EngineError{Kind: kind, Message: msg, Cause: runErr}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	const maxLen = 512
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return s
}
