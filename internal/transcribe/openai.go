package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/audioscribe/audioscribe/internal/domain/model"
)

const maxErrorBodyBytes = 4 * 1024

// OpenAIConfig configures the remote OpenAI-compatible backend.
type OpenAIConfig struct {
	// BaseURL is the API root, e.g. "https://api.openai.com/v1".
	BaseURL string
	APIKey  string
	// HTTPClient defaults to a client with a 30 minute timeout.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// OpenAIEngine sends media to an OpenAI-compatible transcription endpoint.
type OpenAIEngine struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

// NewOpenAIEngine creates the HTTP-backed engine.
func NewOpenAIEngine(cfg OpenAIConfig) (*OpenAIEngine, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("openai base URL is required")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultRunTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIEngine{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    hc,
		logger:  logger,
	}, nil
}

func (e *OpenAIEngine) Name() string { return "openai" }

type openAIResponse struct {
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func (e *OpenAIEngine) Run(ctx context.Context, mediaPath string, cfg Config) (*Result, error) {
	body, contentType, err := e.buildRequestBody(mediaPath, cfg)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/audio/transcriptions", body)
	if err != nil {
		return nil, &EngineError{Kind: model.FailureKindEngine, Message: "build request", Cause: err}
	}
	req.Header.Set("Content-Type", contentType)
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	start := time.Now()
	resp, err := e.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &EngineError{Kind: model.FailureKindInterrupted, Message: "transcription interrupted", Cause: ctx.Err()}
		}
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, &EngineError{Kind: model.FailureKindTimeout, Message: "transcription request timed out", Cause: err}
		}
		return nil, &EngineError{Kind: model.FailureKindModelUnavailable, Message: "transcription endpoint unreachable", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, e.classifyStatus(resp)
	}

	var out openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &EngineError{Kind: model.FailureKindEngine, Message: "decode transcription response", Cause: err}
	}

	segments := make([]Segment, 0, len(out.Segments))
	for _, s := range out.Segments {
		segments = append(segments, Segment{Start: s.Start, End: s.End, Text: strings.TrimSpace(s.Text)})
	}

	e.logger.InfoContext(ctx, "transcription run finished",
		"engine", e.Name(), "model", cfg.Model, "duration", time.Since(start), "segments", len(segments))

	return &Result{
		Language:        out.Language,
		DurationSeconds: out.Duration,
		Text:            out.Text,
		Segments:        segments,
	}, nil
}

func (e *OpenAIEngine) buildRequestBody(mediaPath string, cfg Config) (io.Reader, string, error) {
	f, err := os.Open(mediaPath)
	if err != nil {
		return nil, "", &EngineError{Kind: model.FailureKindBadMedia, Message: "open media file", Cause: err}
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer f.Close()
		err := writeMultipartFields(mw, f, filepath.Base(mediaPath), cfg)
		if cerr := mw.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err)
	}()

	return pr, mw.FormDataContentType(), nil
}

func writeMultipartFields(mw *multipart.Writer, media io.Reader, filename string, cfg Config) error {
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, media); err != nil {
		return err
	}
	if err := mw.WriteField("model", cfg.Model); err != nil {
		return err
	}
	if cfg.Language != "" && cfg.Language != "auto" {
		if err := mw.WriteField("language", cfg.Language); err != nil {
			return err
		}
	}
	if cfg.Timestamps {
		if err := mw.WriteField("response_format", "verbose_json"); err != nil {
			return err
		}
		return mw.WriteField("timestamp_granularities[]", "segment")
	}
	return mw.WriteField("response_format", "json")
}

func (e *OpenAIEngine) classifyStatus(resp *http.Response) *EngineError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	msg := fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, firstLine(string(body)))

	kind := model.FailureKindEngine
	switch {
	case resp.StatusCode == http.StatusUnsupportedMediaType:
		kind = model.FailureKindUnsupportedFormat
	case resp.StatusCode == http.StatusRequestEntityTooLarge:
		kind = model.FailureKindBadMedia
	case resp.StatusCode == http.StatusTooManyRequests:
		kind = model.FailureKindResourceExhausted
	case resp.StatusCode == http.StatusServiceUnavailable, resp.StatusCode == http.StatusBadGateway:
		kind = model.FailureKindModelUnavailable
	}
	return &EngineError{Kind: kind, Message: msg}
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
