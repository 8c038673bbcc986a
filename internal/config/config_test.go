package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Ollama.URL(); got != DefaultOllamaURL {
		t.Errorf("ollama url = %q, want %q", got, DefaultOllamaURL)
	}
	if got := cfg.Ollama.ModelName(); got != DefaultOllamaModel {
		t.Errorf("model = %q, want %q", got, DefaultOllamaModel)
	}
	if got := cfg.Ollama.Timeout(); got != DefaultOllamaTimeout {
		t.Errorf("timeout = %v, want %v", got, DefaultOllamaTimeout)
	}
	if got := cfg.Security.ToolCallLimit(); got != 10 {
		t.Errorf("tool call limit = %d, want 10", got)
	}
	if !cfg.Security.AuditEnabled() {
		t.Error("audit logging should default to enabled")
	}
	if got := cfg.OnePassword.VaultName(); got != "SecureTools" {
		t.Errorf("vault = %q, want SecureTools", got)
	}
	if got := cfg.Secrets.StoreName(); got != StoreOnePassword {
		t.Errorf("store = %q, want %q", got, StoreOnePassword)
	}
	if got := cfg.Audit.SinkName(); got != SinkJSONL {
		t.Errorf("sink = %q, want %q", got, SinkJSONL)
	}
	if cfg.TelemetryAddr() != "" {
		t.Error("telemetry should be disabled by default")
	}
	if cfg.ToolsPath() != "" {
		t.Error("tools path should default to the embedded definitions")
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "config.yml", `
ollama:
  base_url: http://gpu-box:11434/
  model: qwen2
  timeout_seconds: 30
  seed: 7
onepassword:
  vault: Ops
security:
  max_tool_calls: 4
  audit_logging: false
  denied_tools: [get_protected_status]
audit:
  sink: sqlite
  path: /tmp/audit.db
observability:
  listen_addr: 127.0.0.1:9464
  metrics:
    enabled: true
weather:
  requests_per_minute: 30
logging:
  level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Ollama.URL(); got != "http://gpu-box:11434" {
		t.Errorf("url = %q", got)
	}
	if cfg.Ollama.ModelName() != "qwen2" {
		t.Errorf("model = %q", cfg.Ollama.ModelName())
	}
	if cfg.Ollama.Timeout() != 30*time.Second {
		t.Errorf("timeout = %v", cfg.Ollama.Timeout())
	}
	if cfg.Ollama.Seed == nil || *cfg.Ollama.Seed != 7 {
		t.Errorf("seed = %v", cfg.Ollama.Seed)
	}
	if cfg.OnePassword.VaultName() != "Ops" {
		t.Errorf("vault = %q", cfg.OnePassword.VaultName())
	}
	if cfg.Security.ToolCallLimit() != 4 {
		t.Errorf("limit = %d", cfg.Security.ToolCallLimit())
	}
	if cfg.Security.AuditEnabled() {
		t.Error("audit logging should be disabled")
	}
	if len(cfg.Security.DeniedTools) != 1 || cfg.Security.DeniedTools[0] != "get_protected_status" {
		t.Errorf("denied = %v", cfg.Security.DeniedTools)
	}
	if cfg.Audit.SinkName() != SinkSQLite || cfg.AuditPath() != "/tmp/audit.db" {
		t.Errorf("audit = %+v", cfg.Audit)
	}
	if cfg.TelemetryAddr() != "127.0.0.1:9464" {
		t.Errorf("telemetry = %q", cfg.TelemetryAddr())
	}
	if cfg.Observability.Metrics == nil || !cfg.Observability.Metrics.Enabled {
		t.Error("metrics should be enabled")
	}
	if cfg.Weather.RequestsPerMinute != 30 {
		t.Errorf("rpm = %d", cfg.Weather.RequestsPerMinute)
	}
	if cfg.Logging.SlogLevel().String() != "DEBUG" {
		t.Errorf("level = %v", cfg.Logging.SlogLevel())
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
[ollama]
model = "mistral"

[security]
max_tool_calls = 3
allowed_tools = ["get_current_weather"]

[secrets]
store = "env"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ollama.ModelName() != "mistral" {
		t.Errorf("model = %q", cfg.Ollama.ModelName())
	}
	if cfg.Security.ToolCallLimit() != 3 {
		t.Errorf("limit = %d", cfg.Security.ToolCallLimit())
	}
	if cfg.Secrets.StoreName() != StoreEnv {
		t.Errorf("store = %q", cfg.Secrets.StoreName())
	}
}

func TestLoad_JSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{"ollama":{"model":"phi3"},"audit":{"sink":"jsonl","path":"/var/log/st.jsonl"}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ollama.ModelName() != "phi3" {
		t.Errorf("model = %q", cfg.Ollama.ModelName())
	}
	if cfg.AuditPath() != "/var/log/st.jsonl" {
		t.Errorf("audit path = %q", cfg.AuditPath())
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "http://env-host:11434")
	t.Setenv("OLLAMA_MODEL", "env-model")
	t.Setenv("SECURETOOLS_VAULT", "EnvVault")
	t.Setenv("OP_SERVICE_ACCOUNT_TOKEN", "ops_token_value")

	path := writeConfig(t, "config.yml", "ollama:\n  model: file-model\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ollama.URL() != "http://env-host:11434" {
		t.Errorf("url = %q", cfg.Ollama.URL())
	}
	if cfg.Ollama.ModelName() != "env-model" {
		t.Errorf("model = %q, want env-model", cfg.Ollama.ModelName())
	}
	if cfg.OnePassword.VaultName() != "EnvVault" {
		t.Errorf("vault = %q", cfg.OnePassword.VaultName())
	}
	if cfg.OnePassword.ServiceAccountToken != "ops_token_value" {
		t.Error("service account token not applied")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"negative limit", "security:\n  max_tool_calls: -1\n", "max_tool_calls"},
		{"negative rate limit", "security:\n  tool_calls_per_minute: -5\n", "tool_calls_per_minute"},
		{"unknown store", "secrets:\n  store: keychain\n", "secrets.store"},
		{"vault without settings", "secrets:\n  store: vault\n", "secrets.vault is required"},
		{"bad schedule", "secrets:\n  cache_flush_schedule: every hour\n", "cache_flush_schedule"},
		{"unknown sink", "audit:\n  sink: kafka\n", "audit.sink"},
		{"postgres without dsn", "audit:\n  sink: postgres\n", "audit.dsn"},
		{"bad log format", "logging:\n  format: xml\n", "logging.format"},
		{"malformed yaml", "ollama: [", "parsing YAML config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "config.yml", tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should contain %q", err, tt.want)
			}
		})
	}
}

func TestLoad_ValidSchedule(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.yml", "secrets:\n  cache_flush_schedule: \"*/15 * * * *\"\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Secrets.FlushSchedule() != "*/15 * * * *" {
		t.Errorf("schedule = %q", cfg.Secrets.FlushSchedule())
	}
}

func TestAuditPath_DefaultsUnderDataDir(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{DataDir: dir}
	if got, want := cfg.AuditPath(), filepath.Join(dir, "audit.jsonl"); got != want {
		t.Errorf("jsonl path = %q, want %q", got, want)
	}
	cfg.Audit = &AuditConfig{Sink: SinkSQLite}
	if got, want := cfg.AuditPath(), filepath.Join(dir, "audit.db"); got != want {
		t.Errorf("sqlite path = %q, want %q", got, want)
	}
}

func TestResolvePath_Home(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	got, err := resolvePath("~/tools.yml")
	if err != nil {
		t.Fatalf("resolvePath: %v", err)
	}
	if want := filepath.Join(home, "tools.yml"); got != want {
		t.Errorf("resolved = %q, want %q", got, want)
	}
}
