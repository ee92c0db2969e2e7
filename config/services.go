package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP API server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeTranscriber runs the transcription worker pool.
	ServiceModeTranscriber ServiceMode = "transcriber"
	// ServiceModeEvents runs the lifecycle event feed and fan-out.
	ServiceModeEvents ServiceMode = "events"
	// ServiceModeRecovery runs the orphaned-job recovery sweep.
	ServiceModeRecovery ServiceMode = "recovery"
	// ServiceModeReaper runs the terminal-job retention sweep.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeTranscriber,
		ServiceModeEvents,
		ServiceModeRecovery,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP,
			ServiceModeTranscriber,
			ServiceModeEvents,
			ServiceModeRecovery,
			ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, transcriber, events, recovery, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// TranscriberConfig contains transcription worker pool configuration.
type TranscriberConfig struct {
	// Concurrency is the number of worker goroutines. The effective
	// parallelism is still capped by the stored global concurrency limit.
	Concurrency int `env:"TRANSCRIBER_CONCURRENCY" envDefault:"4"`

	// Heartbeat is how often a worker refreshes its job's activity timestamp.
	Heartbeat time.Duration `env:"TRANSCRIBER_HEARTBEAT" envDefault:"15s"`

	// SettingsRefresh is how often the worker re-reads the stored global
	// concurrency limit.
	SettingsRefresh time.Duration `env:"TRANSCRIBER_SETTINGS_REFRESH" envDefault:"30s"`
}

// Sanitize applies guardrails to transcriber configuration values.
func (t *TranscriberConfig) Sanitize() {
	if t.Concurrency < 1 {
		t.Concurrency = 1
	}
	if t.Heartbeat < time.Second {
		t.Heartbeat = time.Second
	}
	if t.SettingsRefresh < 5*time.Second {
		t.SettingsRefresh = 5 * time.Second
	}
}

// EventsConfig contains lifecycle event feed configuration.
type EventsConfig struct {
	// PollInterval is the fallback poll interval when no notifications arrive.
	PollInterval time.Duration `env:"EVENTS_POLL_INTERVAL" envDefault:"5s"`

	// BatchSize is the maximum number of events to read per drain.
	BatchSize int `env:"EVENTS_BATCH_SIZE" envDefault:"256"`

	// PublishEnabled controls fan-out of events to the Redis channel.
	PublishEnabled bool `env:"EVENTS_PUBLISH_ENABLED" envDefault:"false"`
}

// Sanitize applies guardrails to event feed configuration values.
func (e *EventsConfig) Sanitize() {
	if e.PollInterval < time.Second {
		e.PollInterval = time.Second
	}
	if e.BatchSize < 1 {
		e.BatchSize = 1
	}
}

// RecoveryConfig contains orphaned-job recovery configuration.
type RecoveryConfig struct {
	// SweepInterval is how often the stale-running sweep runs.
	SweepInterval time.Duration `env:"RECOVERY_SWEEP_INTERVAL" envDefault:"1m"`

	// MaxIdle is how long a running job may go without a heartbeat before
	// the sweep treats it as orphaned.
	MaxIdle time.Duration `env:"RECOVERY_MAX_IDLE" envDefault:"5m"`
}

// Sanitize applies guardrails to recovery configuration values.
func (r *RecoveryConfig) Sanitize() {
	if r.SweepInterval < 10*time.Second {
		r.SweepInterval = 10 * time.Second
	}
	// The sweep must tolerate at least a few missed heartbeats, or healthy
	// jobs get recovered out from under their workers.
	if r.MaxIdle < time.Minute {
		r.MaxIdle = time.Minute
	}
}

// ReaperConfig contains terminal-job retention configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// CompletedMaxAge is the maximum age for completed jobs before deletion.
	CompletedMaxAge time.Duration `env:"REAPER_COMPLETED_MAX_AGE" envDefault:"168h"` // 7 days

	// FailedMaxAge is the maximum age for failed jobs before deletion.
	FailedMaxAge time.Duration `env:"REAPER_FAILED_MAX_AGE" envDefault:"168h"` // 7 days

	// CancelledMaxAge is the maximum age for cancelled jobs before deletion.
	CancelledMaxAge time.Duration `env:"REAPER_CANCELLED_MAX_AGE" envDefault:"72h"` // 3 days

	// BatchSize is the maximum number of rows to process per operation.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`

	// DeleteArtifacts removes transcript artifacts from object storage
	// when their jobs are reaped. Off by default so retention of the
	// database rows can be shorter than retention of the transcripts.
	DeleteArtifacts bool `env:"REAPER_DELETE_ARTIFACTS" envDefault:"false"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive database load
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	if r.CompletedMaxAge < 1*time.Hour {
		r.CompletedMaxAge = 1 * time.Hour
	}
	if r.FailedMaxAge < 1*time.Hour {
		r.FailedMaxAge = 1 * time.Hour
	}
	if r.CancelledMaxAge < 1*time.Hour {
		r.CancelledMaxAge = 1 * time.Hour
	}

	// Enforce batch size bounds to prevent excessive locks or inefficiency
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}
