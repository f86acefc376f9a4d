// Package appctx provides the application context that holds all runtime dependencies.
package appctx

import (
	"fmt"

	"media-metadata-go/pkg/config"
	"media-metadata-go/pkg/fsguard"
	"media-metadata-go/pkg/logging"
	"media-metadata-go/pkg/netstate"
	"media-metadata-go/pkg/services"
)

// Context holds all application runtime dependencies.
// Pass this single struct to components instead of individual parameters.
type Context struct {
	Config          *config.Config
	Log             *logging.Logger
	MetadataService *services.MetadataService
	Guard           *fsguard.Guard
	Monitor         *netstate.Monitor
	BaseURL         string
	Version         string
}

// New creates a new application context.
func New(cfg *config.Config, log *logging.Logger) *Context {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}
	return &Context{
		Config:  cfg,
		Log:     log,
		BaseURL: baseURL,
		Version: "dev",
	}
}

// WithMetadataService sets the metadata service.
func (c *Context) WithMetadataService(ms *services.MetadataService) *Context {
	c.MetadataService = ms
	return c
}

// WithGuard sets the local file allow-list.
func (c *Context) WithGuard(g *fsguard.Guard) *Context {
	c.Guard = g
	return c
}

// WithMonitor sets the network reachability monitor.
func (c *Context) WithMonitor(m *netstate.Monitor) *Context {
	c.Monitor = m
	return c
}

// ApplyConfig pushes the settings of a reloaded configuration that can change
// at runtime to the live components. Everything else needs a restart.
func (c *Context) ApplyConfig(cfg *config.Config) {
	if c.Guard != nil {
		c.Guard.SetRoots(cfg.AllowedDirs)
	}
	if c.Monitor != nil {
		c.Monitor.SetPolicy(cfg.NetworkPolicy)
	}
	c.Log.Info("runtime settings applied",
		"allowed_dirs", len(cfg.AllowedDirs),
		"network_policy", cfg.NetworkPolicy,
	)
}
