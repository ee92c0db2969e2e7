package config

import (
	"strings"
	"time"
)

// Engine kinds selectable via ENGINE_KIND.
const (
	EngineKindFasterWhisper = "faster-whisper"
	EngineKindOpenAI        = "openai"
)

// EngineConfig contains transcription engine configuration.
type EngineConfig struct {
	// Kind selects the engine backend: faster-whisper or openai.
	Kind string `env:"ENGINE_KIND" envDefault:"faster-whisper"`

	// Binary is the faster-whisper CLI binary to invoke.
	Binary string `env:"ENGINE_BINARY" envDefault:"faster-whisper"`

	// ModelDir is the local directory holding downloaded model weights.
	// Empty means the engine's own default cache location.
	ModelDir string `env:"ENGINE_MODEL_DIR" envDefault:""`

	// RunTimeout bounds a single transcription run.
	RunTimeout time.Duration `env:"ENGINE_RUN_TIMEOUT" envDefault:"30m"`

	// OpenAIBaseURL is the API base URL for the openai engine, e.g.
	// "https://api.openai.com/v1" or a local compatible server.
	OpenAIBaseURL string `env:"ENGINE_OPENAI_BASE_URL" envDefault:""`

	// OpenAIAPIKey is the bearer token for the openai engine.
	OpenAIAPIKey string `env:"ENGINE_OPENAI_API_KEY" envDefault:""`
}

// Sanitize applies guardrails to engine configuration values.
func (e *EngineConfig) Sanitize() {
	e.Kind = strings.ToLower(strings.TrimSpace(e.Kind))
	if e.Kind == "" {
		e.Kind = EngineKindFasterWhisper
	}
	if strings.TrimSpace(e.Binary) == "" {
		e.Binary = "faster-whisper"
	}
	if e.RunTimeout < time.Minute {
		e.RunTimeout = time.Minute
	}
	e.OpenAIBaseURL = strings.TrimRight(strings.TrimSpace(e.OpenAIBaseURL), "/")
}
