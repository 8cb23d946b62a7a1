// Package config handles TOML configuration loading and validation.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/subdomain-proxy/config.toml",
	"configs/config.toml",
}

// DefaultBaseDomain is appended to the routing key when upstream.base_domain is unset.
const DefaultBaseDomain = "roblox.com"

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config          string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host            string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port            int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	BaseDomain      string `kong:"help='Domain appended to the routing key (overrides config).',env='BASE_DOMAIN'"`
	ExcludedHeaders string `kong:"help='JSON list of header names stripped from upstream requests.',env='EXCLUDED_HEADER_NAMES'"`
	RequiredHeaders string `kong:"help='JSON object of header names to the exact values clients must send.',env='REQUIRED_HEADERS'"`
	AdminAddr       string `kong:"help='Admin listener address for health and metrics (overrides config).',env='ADMIN_ADDR'"`
	LogLevel        string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
	LogFormat       string `kong:"help='Log format: json|text (overrides config).',env='LOG_FORMAT'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Upstream UpstreamConfig `toml:"upstream"`
	Headers  HeadersConfig  `toml:"headers"`
	Admin    AdminConfig    `toml:"admin"`
	Log      LogConfig      `toml:"log"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds proxy listener settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"` // required; there is no default proxy port
}

// UpstreamConfig holds upstream connection settings.
type UpstreamConfig struct {
	BaseDomain      string `toml:"base_domain"`
	TimeoutSeconds  int    `toml:"timeout_seconds"` // response-header timeout; 0 disables it
	IdleConnections int    `toml:"idle_connections"`
}

// HeadersConfig holds the header policy applied to every proxied request.
type HeadersConfig struct {
	Excluded []string          `toml:"excluded"`
	Required map[string]string `toml:"required"`
}

// AdminConfig holds the health/metrics listener settings.
// The admin endpoints live on their own listener because every path on the
// proxy listener is a routing key.
type AdminConfig struct {
	Addr           string `toml:"addr"` // empty disables the admin listener
	MetricsEnabled bool   `toml:"metrics_enabled"`
	MetricsPath    string `toml:"metrics_path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Load reads the optional TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/subdomain-proxy/config.toml then configs/config.toml, and falls back to
// CLI and environment values alone if neither exists.
func Load(cli *CLI) (*Config, error) {
	var cfg Config

	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	if err := cfg.applyCLI(cli); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) error {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.BaseDomain != "" {
		c.Upstream.BaseDomain = cli.BaseDomain
	}
	if cli.AdminAddr != "" {
		c.Admin.Addr = cli.AdminAddr
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		c.Log.Format = cli.LogFormat
	}
	if cli.ExcludedHeaders != "" {
		var names []string
		if err := json.Unmarshal([]byte(cli.ExcludedHeaders), &names); err != nil {
			return fmt.Errorf("excluded headers must be a JSON list of strings: %w", err)
		}
		c.Headers.Excluded = names
	}
	if cli.RequiredHeaders != "" {
		var required map[string]string
		if err := json.Unmarshal([]byte(cli.RequiredHeaders), &required); err != nil {
			return fmt.Errorf("required headers must be a JSON object of strings: %w", err)
		}
		c.Headers.Required = required
	}
	return nil
}

func (c *Config) validate() error {
	// The proxy port has no default: fail fast at startup.
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1–65535; got %d", c.Server.Port)
	}

	if d := c.Upstream.BaseDomain; d != "" {
		if strings.HasPrefix(d, ".") || strings.HasSuffix(d, ".") || strings.ContainsAny(d, "/:@ ") {
			return fmt.Errorf("upstream.base_domain must be a bare domain name; got %q", d)
		}
	}
	if c.Upstream.TimeoutSeconds < 0 {
		return fmt.Errorf("upstream.timeout_seconds must be non-negative; got %d", c.Upstream.TimeoutSeconds)
	}
	if c.Upstream.IdleConnections < 0 {
		return fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections)
	}

	for _, name := range c.Headers.Excluded {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("headers.excluded contains an empty name")
		}
	}
	for name := range c.Headers.Required {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("headers.required contains an empty name")
		}
	}

	if c.Admin.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Admin.Addr); err != nil {
			return fmt.Errorf("admin.addr must be host:port: %w", err)
		}
		if listenersOverlap(c.Admin.Addr, c.Server.Addr()) {
			return fmt.Errorf("admin.addr %q conflicts with the proxy listener", c.Admin.Addr)
		}
	}
	if c.Admin.MetricsEnabled && c.Admin.MetricsPath != "" {
		p := c.Admin.MetricsPath
		if p[0] != '/' {
			return fmt.Errorf("admin.metrics_path must start with '/'; got %q", p)
		}
		for _, reserved := range []string{"/healthz", "/proxy/status"} {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("admin.metrics_path %q conflicts with reserved route %q", p, reserved)
			}
		}
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

	return nil
}

// listenersOverlap reports whether two listen addresses compete for the same
// port. An empty or wildcard host binds every interface.
func listenersOverlap(a, b string) bool {
	ah, ap, err := net.SplitHostPort(a)
	if err != nil {
		return false
	}
	bh, bp, err := net.SplitHostPort(b)
	if err != nil || ap != bp || ap == "0" {
		return false
	}
	return ah == bh || isWildcardHost(ah) || isWildcardHost(bh)
}

func isWildcardHost(h string) bool {
	return h == "" || h == "0.0.0.0" || h == "::"
}

// setDefaults fills zero-valued fields with sensible defaults.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Upstream.BaseDomain == "" {
		c.Upstream.BaseDomain = DefaultBaseDomain
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Headers.Excluded == nil {
		c.Headers.Excluded = []string{}
	}
	if c.Headers.Required == nil {
		c.Headers.Required = map[string]string{}
	}
	if c.Admin.MetricsPath == "" {
		c.Admin.MetricsPath = "/metrics"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
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
	return net.JoinHostPort(c.Host, fmt.Sprint(c.Port))
}

// WarnPermissions logs a warning if the config file is readable by group or
// others. The file may carry required header values.
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
