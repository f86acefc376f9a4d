// Package app provides the main application setup and dependency injection.
package app

import (
	"context"
	"fmt"
	"time"

	"media-metadata-go/pkg/appctx"
	"media-metadata-go/pkg/config"
	"media-metadata-go/pkg/extractors"
	"media-metadata-go/pkg/fsguard"
	"media-metadata-go/pkg/handlers/api"
	"media-metadata-go/pkg/hls"
	"media-metadata-go/pkg/httpclient"
	"media-metadata-go/pkg/logging"
	"media-metadata-go/pkg/netstate"
	"media-metadata-go/pkg/registry"
	"media-metadata-go/pkg/server"
	"media-metadata-go/pkg/services"
	"media-metadata-go/pkg/telemetry"
)

// Version is set at build time with -ldflags "-X media-metadata-go/internal/app.Version=...".
var Version = "dev"

// App is the main application container.
type App struct {
	Ctx          *appctx.Context
	Server       *server.Server
	HTTPClient   *httpclient.Client
	ExtractorReg *registry.ExtractorRegistry
	Telemetry    *telemetry.Provider

	stopWatch context.CancelFunc
}

// New creates and initializes the application.
func New() (*App, error) {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// Initialize logger
	log := logging.New(cfg.LogLevel, cfg.LogJSON, nil)
	log.Info("initializing MediaMetadata",
		"version", Version,
		"port", cfg.Port,
		"log_level", cfg.LogLevel,
		"network_policy", cfg.NetworkPolicy,
	)

	tp, err := telemetry.NewProvider(context.Background(), telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "media-metadata",
		ServiceVersion: Version,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	// Create application context
	ctx := appctx.New(cfg, log)
	ctx.Version = Version

	// Create HTTP client
	httpClient := httpclient.New(cfg, log)

	guard := fsguard.New(cfg.AllowedDirs)
	if len(guard.Roots()) == 0 {
		log.Warn("no usable allowed directories, local files will be rejected", "configured", cfg.AllowedDirs)
	}
	ctx.WithGuard(guard)

	monitor := netstate.New(cfg.NetworkPolicy, log)
	ctx.WithMonitor(monitor)

	prober := services.NewFFprobe(cfg, log)
	progressive := extractors.NewProgressiveExtractor(prober, monitor, guard, log)

	// Register extractors
	extractorReg := registry.NewExtractorRegistry()
	registerExtractors(extractorReg, httpClient, progressive, log)

	ctx.WithMetadataService(services.NewMetadataService(log, extractorReg, progressive, cfg.BatchConcurrency))

	// Create HTTP server
	srv := server.New(cfg, log)

	// Create API handlers
	handlers := api.NewHandlers(ctx)
	handlers.RegisterRoutes(srv.Router())

	a := &App{
		Ctx:          ctx,
		Server:       srv,
		HTTPClient:   httpClient,
		ExtractorReg: extractorReg,
		Telemetry:    tp,
	}

	if cfg.ConfigFile != "" {
		watchCtx, cancel := context.WithCancel(context.Background())
		if err := config.Watch(watchCtx, cfg.ConfigFile, log, ctx.ApplyConfig); err != nil {
			cancel()
			log.Warn("config hot reload disabled", "path", cfg.ConfigFile, "error", err)
		} else {
			a.stopWatch = cancel
			log.Info("watching config file", "path", cfg.ConfigFile)
		}
	}

	return a, nil
}

// Run starts the application.
func (a *App) Run() error {
	a.Ctx.Log.Info("starting MediaMetadata server", "port", a.Ctx.Config.Port)
	return a.Server.Start()
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown() {
	a.Ctx.Log.Info("shutting down application")

	if a.stopWatch != nil {
		a.stopWatch()
	}

	a.HTTPClient.CloseIdleConnections()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Telemetry.Shutdown(ctx); err != nil {
		a.Ctx.Log.Warn("telemetry shutdown failed", "error", err)
	}
}

// registerExtractors registers the metadata pipelines.
// Add new pipelines here by:
// 1. Creating a new extractor in pkg/extractors/
// 2. Registering it below
func registerExtractors(
	reg *registry.ExtractorRegistry,
	client *httpclient.Client,
	progressive *extractors.ProgressiveExtractor,
	log *logging.Logger,
) {
	// HLS playlists are recognised by URL shape
	hlsExtractor := extractors.NewHLSExtractor(hls.NewFetcher(client, log), log)
	reg.Register(hlsExtractor)

	// Everything else is progressive media
	reg.SetFallback(progressive)

	log.Info("registered extractors", "count", len(reg.All())+1) // +1 for fallback
}
