// Discern - lexical manipulation detection and projection service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensource-finance/discern/internal/analysis"
	"github.com/opensource-finance/discern/internal/api"
	"github.com/opensource-finance/discern/internal/assistant"
	"github.com/opensource-finance/discern/internal/bus"
	"github.com/opensource-finance/discern/internal/cache"
	"github.com/opensource-finance/discern/internal/catalog"
	"github.com/opensource-finance/discern/internal/config"
	"github.com/opensource-finance/discern/internal/domain"
	"github.com/opensource-finance/discern/internal/quota"
	"github.com/opensource-finance/discern/internal/repository"
	"github.com/opensource-finance/discern/internal/rules"
	"github.com/opensource-finance/discern/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration (default $DISCERN_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	handlerOpts := &slog.HandlerOptions{Level: config.LogLevel(cfg)}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, handlerOpts)
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, handlerOpts)
	}
	slog.SetDefault(slog.New(handler))

	slog.Info("starting discern",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	if err := run(cfg); err != nil {
		slog.Error("discern failed", "error", err)
		os.Exit(1)
	}
	slog.Info("discern shutdown complete")
}

func run(cfg *domain.Config) error {
	slog.Info("configuration loaded",
		"profile", cfg.Profile,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"assistant", cfg.Assistant.Enabled,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Catalog
	cat, err := catalog.FromPath(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	slog.Info("catalog loaded", "detectors", cat.Len(), "version", cat.Version(), "path", cfg.Catalog.Path)

	opts := analysis.Options{}

	// Repository
	if cfg.Repository.Driver != "" && cfg.Repository.Driver != "none" {
		repo, err := repository.New(cfg.Repository)
		if err != nil {
			return fmt.Errorf("initialize repository: %w", err)
		}
		defer repo.Close()
		opts.Repository = repo
		slog.Info("repository initialized", "driver", cfg.Repository.Driver)
	}

	// Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("initialize cache: %w", err)
	}
	if cacheImpl != nil {
		defer cacheImpl.Close()
		opts.Cache = cacheImpl
		slog.Info("cache initialized", "type", cfg.Cache.Type)
	}

	// Event bus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("initialize event bus: %w", err)
	}
	if busImpl != nil {
		defer busImpl.Close()
		opts.Bus = busImpl
		slog.Info("event bus initialized", "type", cfg.EventBus.Type)
	}

	// Escalation rules: file rules are global, stored rules belong to tenants.
	engine, err := rules.NewEngine(cfg.Rules.MaxWorkers)
	if err != nil {
		return fmt.Errorf("initialize rule engine: %w", err)
	}
	defer engine.Close()
	if cfg.Rules.Path != "" {
		fileRules, err := rules.LoadFile(cfg.Rules.Path)
		if err != nil {
			return fmt.Errorf("load rules file: %w", err)
		}
		if err := engine.LoadRules(rules.Global, fileRules); err != nil {
			return fmt.Errorf("compile rules file: %w", err)
		}
	}
	opts.Rules = engine

	// Assistant
	if a := assistant.NewBusAssistant(busImpl, cfg.Assistant); a != nil {
		opts.Assistant = a
		slog.Info("assistant enabled", "topic", cfg.Assistant.Topic, "timeout", cfg.Assistant.Timeout)
	}

	svc := analysis.New(cat, opts)

	tenants := tenantList(os.Getenv("DISCERN_TENANTS"))
	if opts.Repository != nil {
		loadStoredRules(ctx, svc, tenants)
	}
	slog.Info("rule engine initialized", "rules_count", engine.Len())

	// Async worker
	var asyncWorker *worker.Worker
	if busImpl != nil {
		asyncWorker = worker.NewWorker(busImpl, svc)
		if err := asyncWorker.Start(worker.Config{TenantIDs: tenants}); err != nil {
			slog.Error("failed to start async worker", "error", err)
			asyncWorker = nil
		}
	}

	// Quota
	limiter := quota.NewLimiter(cacheImpl, cfg.Quota)
	if limiter != nil {
		slog.Info("quota enabled", "limit", limiter.Limit(), "window", cfg.Quota.Window)
	}

	srv := api.NewServer(cfg.Server, svc, limiter, Version)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("discern is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)
	printBanner(cfg, Version, cat.Len())

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	return nil
}

// loadStoredRules loads repository rules for the known tenants.
// Rules created later through POST /rules apply immediately.
func loadStoredRules(ctx context.Context, svc *analysis.Service, tenants []string) {
	if len(tenants) == 0 {
		tenants = []string{domain.DefaultTenant}
	}
	for _, tenantID := range tenants {
		n, err := svc.ReloadRules(ctx, tenantID)
		if err != nil {
			slog.Warn("failed to load stored rules", "tenant_id", tenantID, "error", err)
			continue
		}
		if n > 0 {
			slog.Info("stored rules loaded", "tenant_id", tenantID, "count", n)
		}
	}
}

// tenantList parses a comma-separated tenant list.
func tenantList(raw string) []string {
	var out []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func printBanner(cfg *domain.Config, version string, detectors int) {
	fmt.Println()
	fmt.Println("  DISCERN - lexical manipulation detection")
	fmt.Println()
	fmt.Printf("  Version:   %s\n", version)
	fmt.Printf("  Profile:   %s\n", cfg.Profile)
	fmt.Printf("  Detectors: %d\n", detectors)
	fmt.Printf("  Server:    http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /detect                  - Multi-category threat report")
	fmt.Println("    POST /quick                   - Truth/deceit split")
	fmt.Println("    POST /chat                    - Chat with pattern-analysis fallback")
	fmt.Println("    POST /project                 - Seven-domain projection")
	fmt.Println("    GET  /detectors               - List catalog detectors")
	fmt.Println("    POST /detectors/{id}/analyze  - Run one detector")
	fmt.Println("    GET  /analyses/{id}           - Stored analysis")
	fmt.Println("    GET  /rules, POST /rules      - Escalation rules")
	fmt.Println("    GET  /health, GET /ready      - Health and readiness")
	fmt.Println()
}
