package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	goutils "github.com/jkaninda/go-utils"
	"github.com/robfig/cron/v3"

	"github.com/jkaninda/securetools/internal/agent"
	"github.com/jkaninda/securetools/internal/broker"
	"github.com/jkaninda/securetools/internal/config"
	"github.com/jkaninda/securetools/internal/llm"
	"github.com/jkaninda/securetools/internal/llm/ollama"
	"github.com/jkaninda/securetools/internal/observability"
	"github.com/jkaninda/securetools/internal/ratelimit"
	"github.com/jkaninda/securetools/internal/secrets"
	"github.com/jkaninda/securetools/internal/security"
	"github.com/jkaninda/securetools/internal/storage"
	pgstore "github.com/jkaninda/securetools/internal/storage/postgres"
	sqlitestore "github.com/jkaninda/securetools/internal/storage/sqlite"
	"github.com/jkaninda/securetools/internal/tools"
	"github.com/jkaninda/securetools/internal/tools/executors"
	"github.com/jkaninda/securetools/internal/tools/loader"
)

// Global flags.
var (
	configPath string
	logLevel   string
	logFormat  string
)

// loadConfig reads the config file named by $SECURETOOLS_CONFIG, --config
// or the default path, in that order.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(goutils.Env("SECURETOOLS_CONFIG", path))
}

// newLogger builds the process logger. Flags override the config file.
func newLogger(cfg *config.Config) *slog.Logger {
	lc := cfg.Logging
	if logLevel != "" {
		lc.Level = logLevel
	}
	if logFormat != "" {
		lc.Format = logFormat
	}
	opts := &slog.HandlerOptions{Level: lc.SlogLevel()}
	if strings.EqualFold(lc.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// sharedOptions selects how the shared components are built.
type sharedOptions struct {
	Live      bool   // Missing secrets fail tool calls instead of degrading to mock data.
	Vault     string // 1Password vault holding tool secrets.
	ToolsPath string // "" = config value, then embedded defaults.
	Caller    string // "chat" or "mcp", recorded in the audit trail.
}

// SharedComponents holds the subsystems every tool-running command needs.
// Built once by initShared, torn down by Cleanup.
type SharedComponents struct {
	Config     *config.Config
	Logger     *slog.Logger
	Obs        *observability.Observability // nil = observability disabled
	Broker     *broker.Broker
	Registry   *tools.Registry
	Dispatcher *agent.Dispatcher
	DB         *storage.DB // nil unless the audit sink is sqlite or postgres
	Vault      string

	cleanups []func()
}

// Cleanup runs all deferred cleanup functions in reverse order.
func (sc *SharedComponents) Cleanup() {
	for i := len(sc.cleanups) - 1; i >= 0; i-- {
		sc.cleanups[i]()
	}
}

func (sc *SharedComponents) addCleanup(fn func()) {
	sc.cleanups = append(sc.cleanups, fn)
}

// initShared wires observability, the secret store, the broker, the tool
// registry, the audit trail and the dispatcher. Callers must call
// sc.Cleanup() when done, also on error.
func initShared(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts sharedOptions) (*SharedComponents, error) {
	vault := opts.Vault
	if vault == "" {
		vault = cfg.OnePassword.VaultName()
	}
	sc := &SharedComponents{Config: cfg, Logger: logger, Vault: vault}

	// Observability.
	obs, err := observability.New(cfg.Observability, logger)
	if err != nil {
		return sc, fmt.Errorf("initializing observability: %w", err)
	}
	sc.Obs = obs
	sc.addCleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		obs.Shutdown(shutdownCtx)
	})

	// Secret store and broker.
	store, err := newSecretStore(cfg, obs, logger)
	if err != nil {
		return sc, err
	}
	sc.Broker = broker.New(broker.Config{
		RequireSecrets: opts.Live,
		Store:          store,
		Recorder:       obs.MetricsOrNil(),
		Logger:         logger,
	})

	// Tools.
	toolsPath := opts.ToolsPath
	if toolsPath == "" {
		toolsPath = cfg.ToolsPath()
	}
	toolsCfg, err := loader.Load(toolsPath)
	if err != nil {
		return sc, err
	}
	catalog := executors.DefaultCatalog(executors.Options{
		Weather: executors.WeatherConfig{
			BaseURL:           cfg.Weather.BaseURL,
			Timeout:           cfg.Weather.Timeout(),
			RequestsPerMinute: cfg.Weather.RequestsPerMinute,
		},
	}, logger)
	sc.Registry = tools.NewRegistry()
	names, err := loader.Setup(toolsCfg, sc.Registry, sc.Broker, catalog, vault)
	if err != nil {
		return sc, err
	}
	logger.Debug("tools registered",
		slog.String("source", toolsCfg.Source),
		slog.Any("tools", names),
	)

	// Dispatcher.
	var executor agent.ToolExecutor = sc.Broker
	if obs != nil {
		executor = observability.NewInstrumentedToolExecutor(sc.Broker, obs.Metrics, obs.Tracer)
	}
	sc.Dispatcher = agent.NewDispatcher(sc.Registry, executor, opts.Caller, logger).
		WithPolicy(security.NewToolPolicy(cfg.Security.AllowedTools, cfg.Security.DeniedTools)).
		WithMetrics(obs.MetricsOrNil())
	if rpm := cfg.Security.ToolCallsPerMinute; rpm > 0 {
		sc.Dispatcher.WithRateLimit(ratelimit.New(ratelimit.Config{CallsPerMinute: rpm}))
	}

	// Audit trail.
	if cfg.Security.AuditEnabled() {
		auditor, err := sc.initAuditor(ctx)
		if err != nil {
			return sc, err
		}
		sc.Dispatcher.WithAuditor(auditor)
		sc.addCleanup(func() { _ = auditor.Close() })
	}

	// Scheduled cache flush.
	if schedule := cfg.Secrets.FlushSchedule(); schedule != "" {
		if err := sc.startCacheFlush(schedule); err != nil {
			return sc, err
		}
	}

	sc.startTelemetry(ctx)
	return sc, nil
}

// newSecretStore builds the configured store reader. The "env" store
// returns nil: secrets then resolve from environment variables only.
func newSecretStore(cfg *config.Config, obs *observability.Observability, logger *slog.Logger) (secrets.StoreReader, error) {
	onePassword := func() secrets.StoreReader {
		return secrets.NewOnePasswordCLI(secrets.OnePasswordConfig{
			CLIPath:             cfg.OnePassword.CLI(),
			Timeout:             cfg.OnePassword.Timeout(),
			ServiceAccountToken: cfg.OnePassword.ServiceAccountToken,
		}, logger)
	}

	var store secrets.StoreReader
	switch cfg.Secrets.StoreName() {
	case config.StoreEnv:
		return nil, nil
	case config.StoreVault:
		vc := cfg.Secrets.Vault
		vs, err := secrets.NewVaultStore(secrets.VaultConfig{
			Address:       vc.Address,
			Token:         vc.Token,
			Namespace:     vc.Namespace,
			Mount:         vc.Mount,
			Timeout:       time.Duration(vc.TimeoutSeconds) * time.Second,
			TLSSkipVerify: vc.TLSSkipVerify,
		})
		if err != nil {
			return nil, fmt.Errorf("initializing vault store: %w", err)
		}
		store = vs
		if cfg.Secrets.FallbackOnePassword {
			store = secrets.NewCompositeStore(vs, onePassword())
		}
	default:
		store = onePassword()
	}

	if obs != nil {
		if p, ok := store.(secrets.Pinger); ok && obs.Health != nil {
			obs.Health.AddOptionalCheck("secret_store", p.Ping)
		}
		store = observability.NewInstrumentedStore(store, obs.Metrics, obs.Tracer)
	}
	return store, nil
}

// initAuditor opens the configured audit sink.
func (sc *SharedComponents) initAuditor(ctx context.Context) (security.Auditor, error) {
	db, err := openAuditDB(ctx, sc.Config, sc.Logger)
	if err != nil {
		return nil, err
	}
	if db != nil {
		sc.useDB(db)
		return security.NewStoreAuditLogger(db.Audit(), sc.Logger), nil
	}
	auditor, err := security.NewAuditLogger(sc.Config.AuditPath(), sc.Logger)
	if err != nil {
		return nil, fmt.Errorf("initializing audit log: %w", err)
	}
	return auditor, nil
}

// openAuditDB opens the audit database, or returns nil for the JSONL sink.
func openAuditDB(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storage.DB, error) {
	var (
		db  *storage.DB
		err error
	)
	switch cfg.Audit.SinkName() {
	case config.SinkSQLite:
		db, err = sqlitestore.Open(ctx, sqlitestore.Config{Path: cfg.AuditPath()}, logger)
	case config.SinkPostgres:
		db, err = pgstore.Open(ctx, pgstore.Config{DSN: cfg.Audit.DSN}, logger)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}
	return db, nil
}

func (sc *SharedComponents) useDB(db *storage.DB) {
	sc.DB = db
	sc.addCleanup(func() { _ = db.Close() })
	if sc.Obs != nil && sc.Obs.Health != nil {
		sc.Obs.Health.AddCheck("audit_db", db.Ping)
	}
}

// startCacheFlush clears the broker's secret cache on a cron schedule.
func (sc *SharedComponents) startCacheFlush(schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		n := sc.Broker.ClearCache()
		sc.Obs.MetricsOrNil().RecordCacheFlush()
		sc.Logger.Info("secret cache flushed", slog.Int("entries", n))
	})
	if err != nil {
		return fmt.Errorf("scheduling cache flush %q: %w", schedule, err)
	}
	c.Start()
	sc.addCleanup(func() { <-c.Stop().Done() })
	sc.Logger.Debug("cache flush scheduled", slog.String("schedule", schedule))
	return nil
}

// startTelemetry serves /healthz, /readyz and /metrics in the background
// when observability.listen_addr is set.
func (sc *SharedComponents) startTelemetry(ctx context.Context) {
	addr := sc.Config.TelemetryAddr()
	if addr == "" || sc.Obs == nil {
		return
	}
	srv := observability.NewServer(addr, sc.Obs, sc.Logger)
	go func() {
		if err := srv.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sc.Logger.Error("telemetry server failed", slog.String("error", err.Error()))
		}
	}()
	sc.addCleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Stop(stopCtx)
	})
}

// newProvider builds the Ollama client, instrumented when observability is on.
func newProvider(cfg *config.Config, model string, obs *observability.Observability, logger *slog.Logger) *ollamaProvider {
	if model == "" {
		model = cfg.Ollama.ModelName()
	}
	client := ollama.NewClient(model, logger,
		ollama.WithBaseURL(cfg.Ollama.URL()),
		ollama.WithTimeout(cfg.Ollama.Timeout()),
	)
	p := &ollamaProvider{Client: client, Provider: client}
	if obs != nil {
		p.Provider = observability.NewInstrumentedProvider(client, model, obs.Metrics, obs.Tracer)
	}
	return p
}

// ollamaProvider keeps the concrete client for diagnostics next to the
// (possibly instrumented) provider used for chat.
type ollamaProvider struct {
	Client   *ollama.Client
	Provider llm.Provider
}
