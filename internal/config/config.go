// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/docker/go-units"
	toml "github.com/pelletier/go-toml/v2"

	"relay-proxy-go/internal/options"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/relay-proxy/config.toml",
	"configs/config.toml",
}

// reservedPaths are served by the proxy itself and cannot be used as mounts.
var reservedPaths = []string{"/healthz", "/proxy/status"}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config    string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host      string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port      int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	LogLevel  string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
	LogFormat string `kong:"help='Log format: json|text (overrides config).',env='LOG_FORMAT'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Upstream UpstreamConfig `toml:"upstream"`
	Routes   []RouteConfig  `toml:"routes"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Tracing  TracingConfig  `toml:"tracing"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host      string          `toml:"host"`
	Port      int             `toml:"port"` // 0 means "use default" (8000); TOML cannot distinguish 0 from unset
	BodyLimit string          `toml:"body_limit"`
	RateLimit RateLimitConfig `toml:"rate_limit"`

	bodyLimitBytes int64
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// UpstreamConfig holds connection settings shared by all routes.
type UpstreamConfig struct {
	DialTimeoutSeconds int `toml:"dial_timeout_seconds"`
	IdleConnections    int `toml:"idle_connections"`
}

// RouteConfig mounts one proxy under a path prefix.
type RouteConfig struct {
	Mount  string `toml:"mount"`
	Target string `toml:"target"`
	// StripPrefix removes Mount from the forwarded path. Defaults to true.
	StripPrefix *bool `toml:"strip_prefix"`

	PreserveHostHeader  bool              `toml:"preserve_host_header"`
	ParseRequestBody    *bool             `toml:"parse_request_body"`
	RequestBodyEncoding string            `toml:"request_body_encoding"`
	RequestAsBuffer     bool              `toml:"request_as_buffer"`
	MemoizeURL          *bool             `toml:"memoize_url"`
	Secure              bool              `toml:"secure"`
	TimeoutMS           int               `toml:"timeout_ms"`
	Method              string            `toml:"method"`
	Headers             map[string]string `toml:"headers"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// TracingConfig controls the OpenTelemetry stdout exporter.
type TracingConfig struct {
	Enabled     bool   `toml:"enabled"`
	ServiceName string `toml:"service_name"`
}

// Load reads the TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/relay-proxy/config.toml then configs/config.toml.
func Load(cli *CLI) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path == "" {
		return nil, fmt.Errorf("config: no config file found (searched %v)", configSearchPaths)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.filePath = path
	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		c.Log.Format = cli.LogFormat
	}
}

func (c *Config) validate() error {
	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0-65535; got %d", c.Server.Port)
	}
	if c.Server.BodyLimit != "" {
		n, err := units.FromHumanSize(c.Server.BodyLimit)
		if err != nil {
			return fmt.Errorf("server.body_limit is not a valid size: %w", err)
		}
		if n <= 0 {
			return fmt.Errorf("server.body_limit must be positive; got %q", c.Server.BodyLimit)
		}
		c.Server.bodyLimitBytes = n
	}
	if c.Upstream.DialTimeoutSeconds < 0 {
		return fmt.Errorf("upstream.dial_timeout_seconds must be non-negative; got %d", c.Upstream.DialTimeoutSeconds)
	}
	if c.Upstream.IdleConnections < 0 {
		return fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	// Log fields.
	level := strings.ToLower(c.Log.Level)
	switch level {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	format := strings.ToLower(c.Log.Format)
	switch format {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	if len(c.Routes) == 0 {
		return fmt.Errorf("at least one [[routes]] entry is required")
	}
	seen := make(map[string]bool, len(c.Routes))
	for i := range c.Routes {
		r := &c.Routes[i]
		if err := r.validate(); err != nil {
			return fmt.Errorf("routes[%d]: %w", i, err)
		}
		if seen[r.Mount] {
			return fmt.Errorf("routes[%d]: duplicate mount %q", i, r.Mount)
		}
		seen[r.Mount] = true
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled {
		p := c.Metrics.Path
		if p == "" {
			p = "/metrics"
		}
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		reserved := append([]string{}, reservedPaths...)
		for _, r := range c.Routes {
			if r.Mount != "/" {
				reserved = append(reserved, r.Mount)
			}
		}
		for _, r := range reserved {
			if p == r || strings.HasPrefix(p, r+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, r)
			}
		}
	}

	return nil
}

func (r *RouteConfig) validate() error {
	if r.Mount == "" || r.Mount[0] != '/' {
		return fmt.Errorf("mount must start with '/'; got %q", r.Mount)
	}
	if len(r.Mount) > 1 && strings.HasSuffix(r.Mount, "/") {
		return fmt.Errorf("mount must not end with '/'; got %q", r.Mount)
	}
	for _, p := range reservedPaths {
		if r.Mount == p || strings.HasPrefix(r.Mount, p+"/") {
			return fmt.Errorf("mount %q conflicts with reserved route %q", r.Mount, p)
		}
	}

	if r.Target == "" {
		return fmt.Errorf("target is required")
	}
	u, err := url.Parse(r.Target)
	if err != nil {
		return fmt.Errorf("target is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("target must use http or https; got %q", r.Target)
	}
	if u.Host == "" {
		return fmt.Errorf("target must include a host; got %q", r.Target)
	}

	if _, err := options.ParseBodyEncoding(r.RequestBodyEncoding); err != nil {
		return fmt.Errorf("request_body_encoding: %w", err)
	}
	if r.TimeoutMS < 0 {
		return fmt.Errorf("timeout_ms must be non-negative; got %d", r.TimeoutMS)
	}
	if r.Method != "" && !validMethod(r.Method) {
		return fmt.Errorf("method %q is not a valid HTTP method token", r.Method)
	}
	return nil
}

func validMethod(m string) bool {
	for _, ch := range m {
		if (ch < 'A' || ch > 'Z') && (ch < 'a' || ch > 'z') {
			return false
		}
	}
	return true
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields (Port, IdleConnections, etc.), zero means "unset" because TOML
// cannot distinguish between an explicit 0 and an omitted key.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.BodyLimit == "" {
		c.Server.BodyLimit = "10MB"
		c.Server.bodyLimitBytes = 10 * units.MB
	}
	if c.Upstream.DialTimeoutSeconds == 0 {
		c.Upstream.DialTimeoutSeconds = 30
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "relay-proxy"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// BodyLimitBytes returns the parsed body_limit in bytes.
func (c *ServerConfig) BodyLimitBytes() int64 {
	return c.bodyLimitBytes
}

// Mounts returns the mount path of every route.
func (c *Config) Mounts() []string {
	out := make([]string, 0, len(c.Routes))
	for _, r := range c.Routes {
		out = append(out, r.Mount)
	}
	return out
}

// Options converts the route into unresolved proxy options.
func (r *RouteConfig) Options() *options.Options {
	enc, _ := options.ParseBodyEncoding(r.RequestBodyEncoding) // validated on load

	o := &options.Options{
		PreserveHostHeader:  r.PreserveHostHeader,
		ParseRequestBody:    r.ParseRequestBody,
		RequestBodyEncoding: enc,
		RequestAsBuffer:     r.RequestAsBuffer,
		MemoizeURL:          r.MemoizeURL,
		Secure:              r.Secure,
		Timeout:             time.Duration(r.TimeoutMS) * time.Millisecond,
		Method:              r.Method,
	}
	if r.StripPrefix == nil || *r.StripPrefix {
		if r.Mount != "/" {
			o.StripPrefix = r.Mount
		}
	}
	if len(r.Headers) > 0 {
		o.Header = make(http.Header, len(r.Headers))
		for k, v := range r.Headers {
			o.Header.Set(k, v)
		}
	}
	return o
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
