package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Database and Redis configuration
//   - http.go: HTTP server configuration
//   - engine.go: Transcription engine configuration
//   - artifacts.go: Artifact store configuration
//   - services.go: Service mode and worker configuration
type AppConfig struct {
	// IsDev controls development mode behavior (verbose logging, relaxed
	// guardrails). Set DEV=true for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// HTTP server configuration
	HTTP HTTPConfig

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"http"`

	// Transcriber worker configuration
	Transcriber TranscriberConfig

	// Transcription engine configuration
	Engine EngineConfig

	// Artifact store configuration
	Artifacts ArtifactConfig

	// Event feed configuration
	Events EventsConfig

	// Orphan recovery configuration
	Recovery RecoveryConfig

	// Reaper configuration
	Reaper ReaperConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Transcriber.Sanitize()
	c.Engine.Sanitize()
	c.Artifacts.Sanitize()
	c.Events.Sanitize()
	c.Recovery.Sanitize()
	c.Reaper.Sanitize()
	c.Observability.Sanitize()

	c.detectDevMode()
}

// detectDevMode checks the GO_ENV environment variable as a fallback for DEV.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		goEnv := strings.ToLower(os.Getenv("GO_ENV"))
		c.IsDev = goEnv == "development" || goEnv == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool {
	return c.serviceEnabled(ServiceModeHTTP)
}

// IsTranscriberEnabled returns true if the transcriber worker pool is enabled.
func (c *AppConfig) IsTranscriberEnabled() bool {
	return c.serviceEnabled(ServiceModeTranscriber)
}

// IsEventsEnabled returns true if the event feed service is enabled.
func (c *AppConfig) IsEventsEnabled() bool {
	return c.serviceEnabled(ServiceModeEvents)
}

// IsRecoveryEnabled returns true if the orphan recovery service is enabled.
func (c *AppConfig) IsRecoveryEnabled() bool {
	return c.serviceEnabled(ServiceModeRecovery)
}

// IsReaperEnabled returns true if the reaper service is enabled.
func (c *AppConfig) IsReaperEnabled() bool {
	return c.serviceEnabled(ServiceModeReaper)
}

func (c *AppConfig) serviceEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}
