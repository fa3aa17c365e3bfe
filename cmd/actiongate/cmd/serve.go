package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/actiongate/actiongate/internal/adapter/inbound/api"
	"github.com/actiongate/actiongate/internal/adapter/inbound/httpx"
	"github.com/actiongate/actiongate/internal/adapter/outbound/cel"
	"github.com/actiongate/actiongate/internal/adapter/outbound/memory"
	"github.com/actiongate/actiongate/internal/adapter/outbound/sqlite"
	"github.com/actiongate/actiongate/internal/config"
	"github.com/actiongate/actiongate/internal/domain/approval"
	"github.com/actiongate/actiongate/internal/domain/audit"
	"github.com/actiongate/actiongate/internal/domain/auth"
	"github.com/actiongate/actiongate/internal/domain/capability"
	"github.com/actiongate/actiongate/internal/domain/invoke"
	"github.com/actiongate/actiongate/internal/domain/policy"
	"github.com/actiongate/actiongate/internal/obs"
	"github.com/actiongate/actiongate/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the governance API server",
	Long: `Start the actiongate HTTP API.

The server mediates capability invocations against each organization's
permission policy, holds a durable approval queue for actions awaiting a
human decision, and appends every attempt to the action log.

Examples:
  # Start with config file settings
  actiongate serve

  # Start with a specific config file
  actiongate --config /path/to/actiongate.yaml serve

  # Development mode: open API, in-memory stores, a seeded dev organization
  actiongate serve --dev`,
	RunE: runServe,
}

var devMode bool

func init() {
	serveCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (debug logging, open API, seeded dev org)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Load without validation so the --dev flag can apply first.
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// stop() restores default signal handling so a second Ctrl+C kills hard.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))
	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}
	if cfg.DevMode {
		logger.Warn("development mode enabled: API is unauthenticated, stores are in memory")
	}

	return run(ctx, cfg, logger)
}

// run wires every component together and blocks until the context is
// cancelled and the server has drained.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// ===== Tracing =====
	tracing, err := obs.Init(ctx, obs.Config{
		Enabled:     cfg.Tracing.Enabled,
		Exporter:    cfg.Tracing.Exporter,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRate:  cfg.Tracing.SampleRate,
	}, Version)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := tracing.Shutdown(context.Background()); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	// ===== Persistence =====
	var (
		pendingStore approval.Store
		auditStore   interface {
			audit.Store
			audit.QueryStore
		}
	)
	switch cfg.Store.Backend {
	case "sqlite":
		db, err := sqlite.Open(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open sqlite store: %w", err)
		}
		defer func() { _ = db.Close() }()
		pendingStore = sqlite.NewPendingStore(db)
		auditStore = sqlite.NewAuditStore(db)
		logger.Info("store backend: sqlite", "path", cfg.Store.Path)
	default:
		pendingStore = memory.NewPendingStore()
		auditStore = memory.NewAuditStore()
		logger.Info("store backend: memory (non-durable)")
	}

	// ===== Capability catalog =====
	var extra []capability.Capability
	if cfg.Capabilities.CatalogPath != "" {
		extra, err = capability.LoadCatalogFile(cfg.Capabilities.CatalogPath)
		if err != nil {
			return err
		}
		logger.Info("loaded capability catalog", "path", cfg.Capabilities.CatalogPath, "capabilities", len(extra))
	}
	registry, err := capability.NewBuiltinRegistry(extra...)
	if err != nil {
		return fmt.Errorf("build capability registry: %w", err)
	}
	bindDemoHandlers(registry, logger)
	registry.Freeze()

	// ===== Policy =====
	policySeed := memory.NewPolicyStore()
	for _, org := range cfg.Organizations {
		policySeed.Seed(org.PermissionPolicy())
	}
	logger.Info("seeded organization policies", "organizations", len(cfg.Organizations))

	var policyStore policy.Store = policySeed
	if ttl := config.Duration(cfg.Policy.CacheTTL); ttl > 0 {
		policyStore = policy.NewCachingStore(policySeed, ttl)
	}

	guardEval, err := cel.NewGuardEvaluator(logger)
	if err != nil {
		return fmt.Errorf("build guard evaluator: %w", err)
	}
	// A guard typo must fail the boot, not fail closed per request.
	if err := cfg.ValidateGuardExpressions(guardEval); err != nil {
		return fmt.Errorf("guard validation failed: %w", err)
	}

	// ===== Metrics =====
	registryProm := prometheus.NewRegistry()
	metrics := httpx.NewMetrics(registryProm)

	// ===== Action log writer =====
	auditService := service.NewAuditService(auditStore, logger,
		service.WithDropHook(metrics.AuditDropsTotal.Inc),
		service.WithChannelSize(cfg.Audit.ChannelSize),
		service.WithBatchSize(cfg.Audit.BatchSize),
		service.WithFlushInterval(config.Duration(cfg.Audit.FlushInterval)),
		service.WithSendTimeout(config.Duration(cfg.Audit.SendTimeout)),
		service.WithWarningThreshold(cfg.Audit.WarningThreshold),
	)
	auditService.Start(ctx)
	defer auditService.Stop()

	// ===== Core services =====
	interceptor := invoke.NewInterceptor(registry, policyStore, pendingStore, auditService, logger,
		invoke.WithExecutionTimeout(config.Duration(cfg.Execution.Timeout)),
		invoke.WithApprovalWindow(config.Duration(cfg.Approval.Window)),
		invoke.WithGuardEvaluator(guardEval),
		invoke.WithNotifier(memory.NewLogNotifier(logger)),
	)

	decisionService := service.NewDecisionService(pendingStore, registry, auditService, logger,
		service.WithDecisionExecutionTimeout(config.Duration(cfg.Execution.Timeout)),
	)
	// Resolve actions stuck mid-execution by a previous crash before any
	// decision can race with them.
	recovered, err := decisionService.RecoverInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("recover interrupted actions: %w", err)
	}
	if recovered > 0 {
		logger.Warn("recovered interrupted actions", "count", recovered)
	}

	expiryService := service.NewExpiryService(pendingStore, auditService, logger,
		service.WithSweepSchedule(cfg.Approval.SweepSchedule),
	)
	if err := expiryService.Start(ctx); err != nil {
		return fmt.Errorf("start expiry sweep: %w", err)
	}
	defer expiryService.Stop()

	// ===== HTTP API =====
	handlerOpts := []api.HandlerOption{
		api.WithAuditQuery(auditStore),
		api.WithMetrics(metrics),
		api.WithTracer(tracing.Tracer),
	}
	if len(cfg.Auth.Identities) > 0 {
		authStore := memory.NewAuthStore()
		seedAuthFromConfig(cfg, authStore)
		handlerOpts = append(handlerOpts, api.WithAPIKeys(auth.NewAPIKeyService(authStore)))
		logger.Info("API key authentication enabled",
			"identities", len(cfg.Auth.Identities),
			"api_keys", len(cfg.Auth.APIKeys),
		)
	} else {
		logger.Warn("no identities configured: API runs unauthenticated")
	}

	handler := api.NewHandler(interceptor, decisionService, logger, handlerOpts...)
	health := httpx.NewHealthChecker(pendingStore, auditService, Version)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/", handler.Routes())
	mux.Handle("/metrics", promhttp.HandlerFor(registryProm, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health.Handler())

	server := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: httpx.MetricsMiddleware(metrics)(mux),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("actiongate listening",
			"version", Version,
			"addr", cfg.Server.HTTPAddr,
			"store", cfg.Store.Backend,
			"organizations", len(cfg.Organizations),
			"capabilities", len(registry.List()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Duration(cfg.Server.ShutdownTimeout))
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown incomplete", "error", err)
		return err
	}
	logger.Info("actiongate stopped")
	return nil
}

// bindDemoHandlers binds a stub to every catalogued capability. Real
// deployments embed the interceptor as a library and bind handlers that call
// their business systems; the standalone server simulates execution so the
// full policy/approval/audit flow can be exercised.
func bindDemoHandlers(registry *capability.Registry, logger *slog.Logger) {
	for _, c := range registry.List() {
		name := c.Name
		_ = registry.Bind(name, func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			logger.Info("demo handler executed", "capability", name)
			return map[string]interface{}{
				"summary":   fmt.Sprintf("%s completed (demo)", name),
				"simulated": true,
			}, nil
		})
	}
}

// seedAuthFromConfig loads configured identities and API keys into the auth
// store. SHA-256 hashes are stored bare for direct lookup; Argon2id PHC
// strings are kept whole and verified by iteration.
func seedAuthFromConfig(cfg *config.Config, authStore *memory.AuthStore) {
	for _, identityCfg := range cfg.Auth.Identities {
		roles := make([]auth.Role, len(identityCfg.Roles))
		for i, role := range identityCfg.Roles {
			roles[i] = auth.Role(role)
		}
		authStore.AddIdentity(&auth.Identity{
			ID:             identityCfg.ID,
			Name:           identityCfg.Name,
			OrganizationID: identityCfg.OrganizationID,
			Roles:          roles,
		})
	}

	for _, keyCfg := range cfg.Auth.APIKeys {
		authStore.AddKey(&auth.APIKey{
			Key:        strings.TrimPrefix(keyCfg.KeyHash, "sha256:"),
			IdentityID: keyCfg.IdentityID,
			Name:       keyCfg.Name,
		})
	}
}

// parseLogLevel converts a string log level to slog.Level. Unrecognized
// values fall back to info.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
