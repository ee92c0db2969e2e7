package bootstrap

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/audioscribe/audioscribe/config"
	httpx "github.com/audioscribe/audioscribe/internal/http"
	"github.com/audioscribe/audioscribe/internal/service"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// StartHTTPServer creates and starts the HTTP server.
// Returns the server instance for graceful shutdown.
func StartHTTPServer(cfg *HTTPServerConfig) *http.Server {
	if cfg == nil {
		return nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	// NewRouter wires logging and panic recovery around the mux.
	handler := httpx.NewRouter(httpx.RouterServices{
		Jobs:     cfg.Services.Jobs,
		Events:   cfg.Services.Events,
		Settings: cfg.Services.Settings,
		Logger:   logger,
	})

	return startServer(logger, handler, appCfg.HTTP.Addr)
}

func startServer(logger *slog.Logger, handler http.Handler, addr string) *http.Server {
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}

	server := &http.Server{
		Addr:        addr,
		Handler:     handler,
		ReadTimeout: 30 * time.Second,
		// WriteTimeout must stay generous; the event stream holds its
		// response open across many keepalive intervals.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
		}
	}()

	return server
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context    context.Context
	Server     *http.Server
	JobService *service.JobService
	Logger     *slog.Logger
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("shutting down HTTP server")
	}

	// Stop queue listeners first so waiting subscribers unblock
	if cfg.JobService != nil {
		cfg.JobService.StopAllListeners()
	}

	// Shutdown HTTP server with timeout
	shutdownCtx, cancel := context.WithTimeout(cfg.Context, 10*time.Second)
	defer cancel()

	if err := cfg.Server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("HTTP server stopped")
	}

	return nil
}
