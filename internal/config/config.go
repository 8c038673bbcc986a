// Package config handles loading and validating SecureTools configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Defaults.
const (
	DefaultOllamaURL      = "http://localhost:11434"
	DefaultOllamaModel    = "llama3.1:8b"
	DefaultOllamaTimeout  = 120 * time.Second
	DefaultVault          = "SecureTools"
	DefaultOPCLI          = "op"
	DefaultOPTimeout      = 30 * time.Second
	DefaultMaxToolCalls   = 10
	DefaultWeatherTimeout = 10 * time.Second
)

// Secret stores.
const (
	StoreOnePassword = "onepassword"
	StoreVault       = "vault"
	StoreEnv         = "env" // Environment variables only.
)

// Audit sinks.
const (
	SinkJSONL    = "jsonl"
	SinkSQLite   = "sqlite"
	SinkPostgres = "postgres"
)

// Config is the root configuration for SecureTools.
type Config struct {
	Ollama        OllamaConfig         `json:"ollama" yaml:"ollama" toml:"ollama"`
	OnePassword   OnePasswordConfig    `json:"onepassword" yaml:"onepassword" toml:"onepassword"`
	Secrets       *SecretsConfig       `json:"secrets,omitempty" yaml:"secrets,omitempty" toml:"secrets,omitempty"` // nil = 1Password CLI
	Security      SecurityConfig       `json:"security" yaml:"security" toml:"security"`
	Audit         *AuditConfig         `json:"audit,omitempty" yaml:"audit,omitempty" toml:"audit,omitempty"`                         // nil = JSONL under the data dir
	Observability *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty" toml:"observability,omitempty"` // nil = observability disabled
	Tools         ToolsConfig          `json:"tools" yaml:"tools" toml:"tools"`
	Weather       WeatherConfig        `json:"weather" yaml:"weather" toml:"weather"`
	Logging       LoggingConfig        `json:"logging" yaml:"logging" toml:"logging"`
	DataDir       string               `json:"data_dir,omitempty" yaml:"data_dir,omitempty" toml:"data_dir,omitempty"` // Default: ~/.securetools
}

// OllamaConfig configures the model endpoint.
type OllamaConfig struct {
	BaseURL        string `json:"base_url" yaml:"base_url" toml:"base_url"`                      // Default: http://localhost:11434. Override: OLLAMA_BASE_URL.
	Model          string `json:"model" yaml:"model" toml:"model"`                               // Default: llama3.1:8b. Override: OLLAMA_MODEL.
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds" toml:"timeout_seconds"` // Default: 120
	Seed           *int   `json:"seed,omitempty" yaml:"seed,omitempty" toml:"seed,omitempty"`    // Optional; fixed seed for reproducible output.
}

// URL returns the base URL without a trailing slash.
func (o OllamaConfig) URL() string {
	if o.BaseURL == "" {
		return DefaultOllamaURL
	}
	return strings.TrimRight(o.BaseURL, "/")
}

// ModelName returns the configured model.
func (o OllamaConfig) ModelName() string {
	if o.Model == "" {
		return DefaultOllamaModel
	}
	return o.Model
}

// Timeout returns the request timeout.
func (o OllamaConfig) Timeout() time.Duration {
	if o.TimeoutSeconds <= 0 {
		return DefaultOllamaTimeout
	}
	return time.Duration(o.TimeoutSeconds) * time.Second
}

// OnePasswordConfig configures the 1Password CLI.
type OnePasswordConfig struct {
	Vault               string `json:"vault" yaml:"vault" toml:"vault"`                                                                               // Default: SecureTools. Override: SECURETOOLS_VAULT.
	ServiceAccountToken string `json:"service_account_token,omitempty" yaml:"service_account_token,omitempty" toml:"service_account_token,omitempty"` // Override: OP_SERVICE_ACCOUNT_TOKEN.
	CLIPath             string `json:"cli_path" yaml:"cli_path" toml:"cli_path"`                                                                      // Default: op
	TimeoutSeconds      int    `json:"timeout_seconds" yaml:"timeout_seconds" toml:"timeout_seconds"`                                                 // Default: 30
}

// VaultName returns the vault that holds tool secrets.
func (o OnePasswordConfig) VaultName() string {
	if o.Vault == "" {
		return DefaultVault
	}
	return o.Vault
}

// CLI returns the op executable.
func (o OnePasswordConfig) CLI() string {
	if o.CLIPath == "" {
		return DefaultOPCLI
	}
	return o.CLIPath
}

// Timeout returns the per-invocation timeout.
func (o OnePasswordConfig) Timeout() time.Duration {
	if o.TimeoutSeconds <= 0 {
		return DefaultOPTimeout
	}
	return time.Duration(o.TimeoutSeconds) * time.Second
}

// SecretsConfig selects the external secret store.
type SecretsConfig struct {
	Store               string              `json:"store" yaml:"store" toml:"store"`                                                                            // "onepassword" (default), "vault" or "env".
	Vault               *VaultSecretsConfig `json:"vault,omitempty" yaml:"vault,omitempty" toml:"vault,omitempty"`                                              // Required when store is "vault".
	CacheFlushSchedule  string              `json:"cache_flush_schedule,omitempty" yaml:"cache_flush_schedule,omitempty" toml:"cache_flush_schedule,omitempty"` // Cron expression; empty = never.
	FallbackOnePassword bool                `json:"fallback_onepassword,omitempty" yaml:"fallback_onepassword,omitempty" toml:"fallback_onepassword,omitempty"` // With store "vault", try 1Password on a miss.
}

// StoreName returns the configured store, defaulting to 1Password.
func (s *SecretsConfig) StoreName() string {
	if s != nil && s.Store != "" {
		return s.Store
	}
	return StoreOnePassword
}

// FlushSchedule returns the cache flush cron expression, or "".
func (s *SecretsConfig) FlushSchedule() string {
	if s == nil {
		return ""
	}
	return s.CacheFlushSchedule
}

// VaultSecretsConfig configures HashiCorp Vault KV v2.
type VaultSecretsConfig struct {
	Address        string `json:"address" yaml:"address" toml:"address"`                         // Override: VAULT_ADDR.
	Token          string `json:"token,omitempty" yaml:"token,omitempty" toml:"token,omitempty"` // Override: VAULT_TOKEN.
	Namespace      string `json:"namespace,omitempty" yaml:"namespace,omitempty" toml:"namespace,omitempty"`
	Mount          string `json:"mount" yaml:"mount" toml:"mount"`                               // Default: secret
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds" toml:"timeout_seconds"` // Default: 5
	TLSSkipVerify  bool   `json:"tls_skip_verify" yaml:"tls_skip_verify" toml:"tls_skip_verify"`
}

// SecurityConfig bounds what the model may do in a session.
type SecurityConfig struct {
	MaxToolCalls int      `json:"max_tool_calls" yaml:"max_tool_calls" toml:"max_tool_calls"`                            // Default: 10
	AuditLogging *bool    `json:"audit_logging,omitempty" yaml:"audit_logging,omitempty" toml:"audit_logging,omitempty"` // Default: true
	AllowedTools []string `json:"allowed_tools,omitempty" yaml:"allowed_tools,omitempty" toml:"allowed_tools,omitempty"` // Empty = all tools.
	DeniedTools  []string `json:"denied_tools,omitempty" yaml:"denied_tools,omitempty" toml:"denied_tools,omitempty"`
	// Per-tool rate limit. 0 = unlimited.
	ToolCallsPerMinute int `json:"tool_calls_per_minute,omitempty" yaml:"tool_calls_per_minute,omitempty" toml:"tool_calls_per_minute,omitempty"`
}

// ToolCallLimit returns the cumulative tool call limit per session.
func (s SecurityConfig) ToolCallLimit() int {
	if s.MaxToolCalls <= 0 {
		return DefaultMaxToolCalls
	}
	return s.MaxToolCalls
}

// AuditEnabled reports whether tool calls are audited.
func (s SecurityConfig) AuditEnabled() bool {
	return s.AuditLogging == nil || *s.AuditLogging
}

// AuditConfig selects where audit events go.
type AuditConfig struct {
	Sink string `json:"sink" yaml:"sink" toml:"sink"`                               // "jsonl" (default), "sqlite" or "postgres".
	Path string `json:"path,omitempty" yaml:"path,omitempty" toml:"path,omitempty"` // jsonl/sqlite file. Default: under data_dir.
	DSN  string `json:"dsn,omitempty" yaml:"dsn,omitempty" toml:"dsn,omitempty"`    // postgres only. Override: SECURETOOLS_AUDIT_DSN.
}

// SinkName returns the configured sink, defaulting to JSONL.
func (a *AuditConfig) SinkName() string {
	if a != nil && a.Sink != "" {
		return a.Sink
	}
	return SinkJSONL
}

// ObservabilityConfig configures metrics, tracing and the telemetry server.
// When nil, all observability features are disabled with zero overhead.
type ObservabilityConfig struct {
	Metrics    *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty" toml:"metrics,omitempty"`
	Tracing    *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty" toml:"tracing,omitempty"`
	ListenAddr string         `json:"listen_addr,omitempty" yaml:"listen_addr,omitempty" toml:"listen_addr,omitempty"` // Empty = no telemetry server.
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" toml:"enabled"`
}

// TracingConfig configures OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled" toml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint" toml:"endpoint"`             // OTLP endpoint, e.g. "localhost:4317"
	Protocol    string  `json:"protocol" yaml:"protocol" toml:"protocol"`             // "grpc" or "http". Default: "grpc"
	ServiceName string  `json:"service_name" yaml:"service_name" toml:"service_name"` // Default: "securetools"
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate" toml:"sample_rate"`    // 0.0–1.0. Default: 1.0
	Insecure    bool    `json:"insecure" yaml:"insecure" toml:"insecure"`             // Skip TLS for dev
}

// ToolsConfig points at the tool definitions.
type ToolsConfig struct {
	ConfigPath string `json:"config_path,omitempty" yaml:"config_path,omitempty" toml:"config_path,omitempty"` // Empty = embedded defaults.
}

// WeatherConfig configures the weather API client.
type WeatherConfig struct {
	BaseURL           string `json:"base_url,omitempty" yaml:"base_url,omitempty" toml:"base_url,omitempty"`    // Default: https://api.openweathermap.org
	RequestsPerMinute int    `json:"requests_per_minute" yaml:"requests_per_minute" toml:"requests_per_minute"` // Default: 60
	TimeoutSeconds    int    `json:"timeout_seconds" yaml:"timeout_seconds" toml:"timeout_seconds"`             // Default: 10
}

// Timeout returns the per-request timeout.
func (w WeatherConfig) Timeout() time.Duration {
	if w.TimeoutSeconds <= 0 {
		return DefaultWeatherTimeout
	}
	return time.Duration(w.TimeoutSeconds) * time.Second
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" toml:"level"`    // debug, info, warn, error. Default: warn
	Format string `json:"format" yaml:"format" toml:"format"` // text or json. Default: text
}

// SlogLevel parses Level. Unknown values fall back to warn.
func (l LoggingConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{}
}

// DefaultConfigPath returns the default config file path (~/.securetools/config.yml).
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "securetools.yml"
	}
	return filepath.Join(home, ".securetools", "config.yml")
}

// Load reads a YAML, TOML or JSON config file and returns a validated Config.
// The format is detected by file extension. A missing file yields the
// defaults. Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		resolved, err := resolvePath(path)
		if err != nil {
			return nil, fmt.Errorf("resolving config path %s: %w", path, err)
		}
		data, err := os.ReadFile(resolved)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// Defaults.
		case err != nil:
			return nil, fmt.Errorf("reading config %s: %w", resolved, err)
		default:
			if err := decode(resolved, data, cfg); err != nil {
				return nil, err
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parsing YAML config %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("parsing TOML config %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parsing JSON config %s: %w", path, err)
		}
	}
	return nil
}

// applyEnv applies environment variable overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" {
		c.Ollama.BaseURL = v
	}
	if v := os.Getenv("OLLAMA_MODEL"); v != "" {
		c.Ollama.Model = v
	}
	if v := os.Getenv("OP_SERVICE_ACCOUNT_TOKEN"); v != "" {
		c.OnePassword.ServiceAccountToken = v
	}
	if v := os.Getenv("SECURETOOLS_VAULT"); v != "" {
		c.OnePassword.Vault = v
	}
	if v := os.Getenv("VAULT_ADDR"); v != "" && c.Secrets != nil && c.Secrets.Vault != nil {
		c.Secrets.Vault.Address = v
	}
	if v := os.Getenv("VAULT_TOKEN"); v != "" && c.Secrets != nil && c.Secrets.Vault != nil {
		c.Secrets.Vault.Token = v
	}
	if v := os.Getenv("SECURETOOLS_AUDIT_DSN"); v != "" {
		if c.Audit == nil {
			c.Audit = &AuditConfig{}
		}
		c.Audit.DSN = v
	}
}

// resolvePath expands ~ to the user home directory and returns an absolute path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}

// ResolvedDataDir returns the data directory, resolving ~ if needed.
func (c *Config) ResolvedDataDir() string {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ".securetools"
		}
		return filepath.Join(home, ".securetools")
	}
	resolved, err := resolvePath(c.DataDir)
	if err != nil {
		return c.DataDir
	}
	return resolved
}

// AuditPath returns the audit file for the jsonl and sqlite sinks.
func (c *Config) AuditPath() string {
	if c.Audit != nil && c.Audit.Path != "" {
		if resolved, err := resolvePath(c.Audit.Path); err == nil {
			return resolved
		}
		return c.Audit.Path
	}
	if c.Audit.SinkName() == SinkSQLite {
		return filepath.Join(c.ResolvedDataDir(), "audit.db")
	}
	return filepath.Join(c.ResolvedDataDir(), "audit.jsonl")
}

// ToolsPath returns the tools.yml path, or "" for the embedded defaults.
func (c *Config) ToolsPath() string {
	if c.Tools.ConfigPath == "" {
		return ""
	}
	if resolved, err := resolvePath(c.Tools.ConfigPath); err == nil {
		return resolved
	}
	return c.Tools.ConfigPath
}

// TelemetryAddr returns the telemetry server address, or "" when disabled.
func (c *Config) TelemetryAddr() string {
	if c.Observability == nil {
		return ""
	}
	return c.Observability.ListenAddr
}

func (c *Config) validate() error {
	if c.Security.MaxToolCalls < 0 {
		return fmt.Errorf("security.max_tool_calls must not be negative")
	}
	if c.Security.ToolCallsPerMinute < 0 {
		return fmt.Errorf("security.tool_calls_per_minute must not be negative")
	}
	for _, name := range c.Security.AllowedTools {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("security.allowed_tools must not contain empty names")
		}
	}
	if c.Ollama.TimeoutSeconds < 0 {
		return fmt.Errorf("ollama.timeout_seconds must not be negative")
	}
	if c.Weather.RequestsPerMinute < 0 {
		return fmt.Errorf("weather.requests_per_minute must not be negative")
	}

	switch store := c.Secrets.StoreName(); store {
	case StoreOnePassword, StoreEnv:
	case StoreVault:
		if c.Secrets.Vault == nil {
			return fmt.Errorf("secrets.vault is required when secrets.store is %q", StoreVault)
		}
	default:
		return fmt.Errorf("secrets.store %q is not supported (use onepassword, vault or env)", store)
	}
	if expr := c.Secrets.FlushSchedule(); expr != "" {
		if _, err := cron.ParseStandard(expr); err != nil {
			return fmt.Errorf("secrets.cache_flush_schedule %q: %w", expr, err)
		}
	}

	switch sink := c.Audit.SinkName(); sink {
	case SinkJSONL, SinkSQLite:
	case SinkPostgres:
		if c.Audit.DSN == "" {
			return fmt.Errorf("audit.dsn is required for the postgres sink")
		}
	default:
		return fmt.Errorf("audit.sink %q is not supported (use jsonl, sqlite or postgres)", sink)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not supported (use text or json)", c.Logging.Format)
	}
	return nil
}
