// Package main wires the Highstation gateway executable entry point and
// lifecycle management.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/highstation/gateway/internal/governance"
	"github.com/highstation/gateway/pkg/config"
	"github.com/highstation/gateway/pkg/domain"
	"github.com/highstation/gateway/pkg/logging"
	"github.com/highstation/gateway/pkg/netsafe"
	"github.com/highstation/gateway/pkg/openseal"
	"github.com/highstation/gateway/pkg/policy"
	"github.com/highstation/gateway/pkg/probe"
	proxypkg "github.com/highstation/gateway/pkg/proxy"
	"github.com/highstation/gateway/pkg/registry"
	"github.com/highstation/gateway/pkg/reputation"
	"github.com/highstation/gateway/pkg/resolver"
	"github.com/highstation/gateway/pkg/server"
	"github.com/highstation/gateway/pkg/telemetry"
)

const (
	defaultConfigPath        = "gateway.yaml"
	defaultServiceName       = "highstation-gateway"
	telemetryShutdownTimeout = 5 * time.Second
	gracefulShutdownTimeout  = 10 * time.Second
)

// serviceStore is the registry surface the gateway needs: lookups for the
// data plane and verification marking for the admin plane.
type serviceStore interface {
	domain.ServiceRegistry
	domain.ServiceVerifier
}

func main() {
	// Load .env file if present
	_ = godotenv.Load()

	configPath := flag.String("config-path", defaultConfigPath, "Path to the configuration file")
	adminAddr := flag.String("admin-listen", "", "HTTP listen address for the admin endpoints")
	dataAddr := flag.String("data-listen", "", "HTTP listen address for the data plane")
	registryFile := flag.String("registry-file", "", "Path to the YAML service registry")
	otelEndpoint := flag.String("otel-endpoint", "", "OTLP endpoint")
	logLevel := flag.String("log-level", "", "Log level")

	flag.Parse()

	path := *configPath
	if path == defaultConfigPath {
		if _, err := os.Stat(path); err != nil {
			path = ""
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("configuration load failed: %v", err)
	}

	// Apply flag overrides
	if *adminAddr != "" {
		cfg.Server.AdminAddress = *adminAddr
	}
	if *dataAddr != "" {
		cfg.Server.DataAddress = *dataAddr
	}
	if *registryFile != "" {
		cfg.Registry.File = *registryFile
	}
	if *otelEndpoint != "" {
		cfg.Telemetry.OTLPEndpoint = *otelEndpoint
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("application failed: %v", err)
	}
}

// run orchestrates the application lifecycle.
func run(ctx context.Context, cfg *config.Config) error {
	logger := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Pretty: cfg.Logging.Pretty,
	})
	slog.SetDefault(logger)

	telemetryShutdown, err := telemetry.SetupProvider(ctx, telemetry.Config{
		ServiceName:  defaultServiceName,
		Endpoint:     cfg.Telemetry.OTLPEndpoint,
		Insecure:     cfg.Telemetry.Insecure,
		Environment:  os.Getenv("GATEWAY_ENVIRONMENT"),
		ResourceTags: map[string]string{"log.level": cfg.Logging.Level},
	})
	if err != nil {
		return fmt.Errorf("telemetry initialization failed: %w", err)
	}
	defer shutdownTelemetry(logger, telemetryShutdown)

	store, closeStore, err := buildRegistry(cfg, logger)
	if err != nil {
		return fmt.Errorf("registry initialization failed: %w", err)
	}
	defer closeStore()

	safeResolver, err := netsafe.NewResolver(logger)
	if err != nil {
		return fmt.Errorf("resolver initialization failed: %w", err)
	}

	timeouts := governance.TimeoutConfig{
		ForwardTimeout: cfg.Upstream.ForwardTimeout(),
		ProbeTimeout:   cfg.Upstream.ProbeTimeout(),
	}

	trust, err := buildTrustPolicy(ctx, cfg)
	if err != nil {
		return fmt.Errorf("trust policy initialization failed: %w", err)
	}

	dataHandler := server.NewDataHandler(server.DataHandlerConfig{
		Resolver: resolver.New(store, cfg.Platform.RootDomains(), logger),
		Forwarder: proxypkg.NewForwarder(proxypkg.Config{
			Verifier: openseal.NewVerifier(cfg.OpenSeal.VerifierBinary, logger),
			Reporter: buildReporter(cfg, logger),
			Timeouts: timeouts,
			Logger:   logger,
		}),
		Limiter: buildRateLimiter(cfg),
		Trust:   trust,
		Logger:  logger,
	})

	adminHandler := server.NewAdminHandler(server.AdminHandlerConfig{
		Prober:    probe.NewProber(safeResolver, timeouts, logger),
		Ownership: probe.NewOwnershipVerifier(safeResolver, store, timeouts, logger),
		Logger:    logger,
	})

	dataServer := startServer(logger, "data plane", cfg.Server.DataAddress,
		otelhttp.NewHandler(dataHandler, "gateway.data"))
	adminServer := startServer(logger, "admin", cfg.Server.AdminAddress, adminHandler)

	awaitShutdownSignal(logger)

	shutdownServer(logger, "data plane", dataServer)
	shutdownServer(logger, "admin", adminServer)
	return nil
}

// buildRegistry selects the file-backed hot-reloading store when configured,
// falling back to an empty in-memory store.
func buildRegistry(cfg *config.Config, logger *slog.Logger) (serviceStore, func(), error) {
	if cfg.Registry.File == "" {
		logger.Info("no registry file configured, using empty in-memory registry")
		return registry.NewMemoryStore(), func() {}, nil
	}

	store, err := registry.NewFileStore(cfg.Registry.File, logger)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {
		if err := store.Close(); err != nil {
			logger.Warn("registry close failed", "error", err)
		}
	}, nil
}

func buildTrustModule(cfg *config.Config) (string, error) {
	if cfg.Policy.ModuleFile == "" {
		return policy.DefaultModule, nil
	}
	//nolint:gosec // Module path is controlled by admin/operator
	data, err := os.ReadFile(cfg.Policy.ModuleFile)
	if err != nil {
		return "", fmt.Errorf("read policy module %s: %w", cfg.Policy.ModuleFile, err)
	}
	return string(data), nil
}

func buildTrustPolicy(ctx context.Context, cfg *config.Config) (*policy.TrustPolicy, error) {
	module, err := buildTrustModule(cfg)
	if err != nil {
		return nil, err
	}
	return policy.NewTrustPolicy(ctx, module)
}

func buildRateLimiter(cfg *config.Config) *governance.RateLimiter {
	if len(cfg.RateLimits) == 0 {
		return nil
	}
	limits := make(map[string]governance.RateLimitConfig, len(cfg.RateLimits))
	for slug, rl := range cfg.RateLimits {
		limits[slug] = governance.RateLimitConfig{
			RequestsPerSecond: rl.RequestsPerSecond,
			BurstSize:         rl.BurstSize,
		}
	}
	return governance.NewRateLimiter(limits)
}

func buildReporter(cfg *config.Config, logger *slog.Logger) domain.LatencyReporter {
	if cfg.Feed.WebhookURL != "" {
		return reputation.NewWebhookReporter(cfg.Feed.WebhookURL, logger)
	}
	return reputation.NewLogReporter(logger)
}

// startServer binds the listener and serves in the background.
func startServer(logger *slog.Logger, name, addr string, handler http.Handler) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			logger.Error("server listen error", "server", name, "addr", addr, "error", err)
			return
		}
		logger.Info("server listening", "server", name, "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "server", name, "error", err)
		}
	}()

	return srv
}

// awaitShutdownSignal blocks until a shutdown signal arrives.
func awaitShutdownSignal(logger *slog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigCh
	logger.Info("received signal, initiating graceful shutdown", "signal", sig.String())
}

func shutdownServer(logger *slog.Logger, name string, srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("server shutdown error", "server", name, "error", err)
	}
}

func shutdownTelemetry(logger *slog.Logger, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Warn("telemetry shutdown error", "error", err)
	}
}
