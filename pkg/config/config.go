// Package config handles application configuration from environment variables
// and an optional YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Network policies understood by the reachability monitor.
const (
	NetworkPolicyAuto   = "auto"
	NetworkPolicyAlways = "always"
	NetworkPolicyNever  = "never"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port         int
	BaseURL      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Authentication
	APIPassword string

	// Outbound transport settings
	GlobalProxies   []string
	TransportRoutes []TransportRoute
	UTLSDomains     []string
	FetchTimeout    time.Duration

	// Progressive media probing
	FFprobePath  string
	FFprobeRate  float64
	FFprobeBurst int
	ProbeTimeout time.Duration
	AllowedDirs  []string

	// NetworkPolicy is one of auto, always, never.
	NetworkPolicy string

	// API limits
	BatchConcurrency  int
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string
	LogJSON  bool

	// Tracing
	Telemetry TelemetryConfig

	// ConfigFile is the YAML file the config was overlaid from, if any.
	ConfigFile string
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool
	Exporter     string
	Endpoint     string
	SamplingRate float64
}

// TransportRoute defines URL-specific proxy routing.
type TransportRoute struct {
	URLPattern string `yaml:"url"`
	Proxy      string `yaml:"proxy"`
	DisableSSL bool   `yaml:"disable_ssl"`
	Direct     bool   `yaml:"direct"` // If true, bypass global proxy and connect directly
}

// fileConfig mirrors the YAML layout. Pointer fields distinguish unset keys.
type fileConfig struct {
	Port          *int             `yaml:"port"`
	BaseURL       *string          `yaml:"base_url"`
	APIPassword   *string          `yaml:"api_password"`
	GlobalProxies []string         `yaml:"global_proxies"`
	Routes        []TransportRoute `yaml:"transport_routes"`
	UTLSDomains   []string         `yaml:"utls_domains"`
	FetchTimeout  *time.Duration   `yaml:"fetch_timeout"`
	FFprobe       struct {
		Path    *string        `yaml:"path"`
		Rate    *float64       `yaml:"rate"`
		Burst   *int           `yaml:"burst"`
		Timeout *time.Duration `yaml:"timeout"`
	} `yaml:"ffprobe"`
	AllowedDirs      []string `yaml:"allowed_dirs"`
	NetworkPolicy    *string  `yaml:"network_policy"`
	BatchConcurrency *int     `yaml:"batch_concurrency"`
	Log              struct {
		Level *string `yaml:"level"`
		JSON  *bool   `yaml:"json"`
	} `yaml:"log"`
	Telemetry struct {
		Enabled      *bool    `yaml:"enabled"`
		Exporter     *string  `yaml:"exporter"`
		Endpoint     *string  `yaml:"endpoint"`
		SamplingRate *float64 `yaml:"sampling_rate"`
	} `yaml:"telemetry"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Port:              7860,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
		UTLSDomains:       nil,
		FetchTimeout:      15 * time.Second,
		FFprobePath:       "ffprobe",
		FFprobeRate:       4,
		FFprobeBurst:      8,
		ProbeTimeout:      30 * time.Second,
		AllowedDirs:       []string{"media"},
		NetworkPolicy:     NetworkPolicyAuto,
		BatchConcurrency:  4,
		RateLimitRequests: 120,
		RateLimitWindow:   time.Minute,
		LogLevel:          "info",
		Telemetry: TelemetryConfig{
			Exporter:     "http",
			Endpoint:     "localhost:4318",
			SamplingRate: 1.0,
		},
	}
}

// Load builds the configuration: defaults, then CONFIG_FILE, then environment.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
		cfg.ConfigFile = path
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.NetworkPolicy {
	case NetworkPolicyAuto, NetworkPolicyAlways, NetworkPolicyNever:
	default:
		return fmt.Errorf("invalid network policy %q (want auto, always or never)", c.NetworkPolicy)
	}
	if c.BatchConcurrency < 1 {
		return fmt.Errorf("batch concurrency must be positive, got %d", c.BatchConcurrency)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setIf(&c.Port, fc.Port)
	setIf(&c.BaseURL, fc.BaseURL)
	setIf(&c.APIPassword, fc.APIPassword)
	setIf(&c.FetchTimeout, fc.FetchTimeout)
	setIf(&c.FFprobePath, fc.FFprobe.Path)
	setIf(&c.FFprobeRate, fc.FFprobe.Rate)
	setIf(&c.FFprobeBurst, fc.FFprobe.Burst)
	setIf(&c.ProbeTimeout, fc.FFprobe.Timeout)
	setIf(&c.NetworkPolicy, fc.NetworkPolicy)
	setIf(&c.BatchConcurrency, fc.BatchConcurrency)
	setIf(&c.LogLevel, fc.Log.Level)
	setIf(&c.LogJSON, fc.Log.JSON)
	setIf(&c.Telemetry.Enabled, fc.Telemetry.Enabled)
	setIf(&c.Telemetry.Exporter, fc.Telemetry.Exporter)
	setIf(&c.Telemetry.Endpoint, fc.Telemetry.Endpoint)
	setIf(&c.Telemetry.SamplingRate, fc.Telemetry.SamplingRate)

	if fc.GlobalProxies != nil {
		c.GlobalProxies = fc.GlobalProxies
	}
	if fc.Routes != nil {
		c.TransportRoutes = fc.Routes
	}
	if fc.UTLSDomains != nil {
		c.UTLSDomains = fc.UTLSDomains
	}
	if fc.AllowedDirs != nil {
		c.AllowedDirs = fc.AllowedDirs
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnvInt("PORT", c.Port)
	if c.BaseURL == "" {
		c.BaseURL = fmt.Sprintf("http://localhost:%d", c.Port)
	}
	c.BaseURL = getEnvString("BASE_URL", c.BaseURL)
	c.ReadTimeout = getEnvDuration("READ_TIMEOUT", c.ReadTimeout)
	c.WriteTimeout = getEnvDuration("WRITE_TIMEOUT", c.WriteTimeout)
	c.IdleTimeout = getEnvDuration("IDLE_TIMEOUT", c.IdleTimeout)
	c.APIPassword = getEnvString("API_PASSWORD", c.APIPassword)
	c.GlobalProxies = getEnvStringSlice("GLOBAL_PROXIES", c.GlobalProxies)
	c.UTLSDomains = getEnvStringSlice("UTLS_DOMAINS", c.UTLSDomains)
	c.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", c.FetchTimeout)
	c.FFprobePath = getEnvString("FFPROBE_PATH", c.FFprobePath)
	c.FFprobeRate = getEnvFloat("FFPROBE_RATE", c.FFprobeRate)
	c.FFprobeBurst = getEnvInt("FFPROBE_BURST", c.FFprobeBurst)
	c.ProbeTimeout = getEnvDuration("PROBE_TIMEOUT", c.ProbeTimeout)
	c.AllowedDirs = getEnvStringSlice("ALLOWED_DIRS", c.AllowedDirs)
	c.NetworkPolicy = strings.ToLower(getEnvString("NETWORK_POLICY", c.NetworkPolicy))
	c.BatchConcurrency = getEnvInt("BATCH_CONCURRENCY", c.BatchConcurrency)
	c.RateLimitRequests = getEnvInt("RATE_LIMIT_REQUESTS", c.RateLimitRequests)
	c.RateLimitWindow = getEnvDuration("RATE_LIMIT_WINDOW", c.RateLimitWindow)
	c.LogLevel = getEnvString("LOG_LEVEL", c.LogLevel)
	c.LogJSON = getEnvBool("LOG_JSON", c.LogJSON)
	c.Telemetry.Enabled = getEnvBool("OTEL_ENABLED", c.Telemetry.Enabled)
	c.Telemetry.Exporter = getEnvString("OTEL_EXPORTER", c.Telemetry.Exporter)
	c.Telemetry.Endpoint = getEnvString("OTEL_ENDPOINT", c.Telemetry.Endpoint)
	c.Telemetry.SamplingRate = getEnvFloat("OTEL_SAMPLING_RATE", c.Telemetry.SamplingRate)

	if routes := parseTransportRoutes(os.Getenv("TRANSPORT_ROUTES")); routes != nil {
		c.TransportRoutes = routes
	}

	// Legacy single proxy support
	if globalProxy := os.Getenv("GLOBAL_PROXY"); globalProxy != "" && len(c.GlobalProxies) == 0 {
		c.GlobalProxies = []string{globalProxy}
	}
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// parseTransportRoutes parses the TRANSPORT_ROUTES env var.
// Format: {URL=pattern, PROXY=url, DISABLE_SSL=true}, {URL=pattern2}
func parseTransportRoutes(s string) []TransportRoute {
	if s == "" {
		return nil
	}

	var routes []TransportRoute
	s = strings.TrimSpace(s)

	parts := strings.Split(s, "}, {")
	for _, part := range parts {
		part = strings.Trim(part, "{} ")
		if part == "" {
			continue
		}

		route := TransportRoute{}
		for _, field := range strings.Split(part, ", ") {
			kv := strings.SplitN(field, "=", 2)
			if len(kv) != 2 {
				continue
			}
			value := strings.TrimSpace(kv[1])

			switch strings.ToUpper(strings.TrimSpace(kv[0])) {
			case "URL":
				route.URLPattern = value
			case "PROXY":
				route.Proxy = value
			case "DISABLE_SSL":
				route.DisableSSL = strings.EqualFold(value, "true")
			case "DIRECT":
				route.Direct = strings.EqualFold(value, "true")
			}
		}
		if route.URLPattern != "" {
			routes = append(routes, route)
		}
	}

	return routes
}

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return strings.ToLower(val) == "true" || val == "1"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		// Try parsing as seconds first
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvStringSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		parts := strings.Split(val, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return defaultVal
}
