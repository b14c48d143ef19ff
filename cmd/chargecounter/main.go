package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/adserve-lab/chargecounter/internal/billing"
	"github.com/adserve-lab/chargecounter/internal/charge"
	corecfg "github.com/adserve-lab/chargecounter/internal/core/config"
	"github.com/adserve-lab/chargecounter/internal/core/storage"
	"github.com/adserve-lab/chargecounter/internal/core/storage/postgres"
	"github.com/adserve-lab/chargecounter/internal/core/storage/redisstore"
	"github.com/adserve-lab/chargecounter/internal/delivery"
	"github.com/adserve-lab/chargecounter/internal/migrations"
	"github.com/adserve-lab/chargecounter/internal/policy"
	"github.com/adserve-lab/chargecounter/internal/rollover"
	"github.com/adserve-lab/chargecounter/internal/server"
)

func main() {
	configPath := flag.String("config", "chargecounter.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration (includes campaign/group limit files)
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config",
		"store", cfg.Store.Type,
		"limit_entries", cfg.LimitSource.Count(),
		"timezone", cfg.LimitSource.Location().String(),
	)

	// 2. Initialize Counter Store
	store, dbAdapter, err := buildStore(cfg)
	if err != nil {
		slog.Error("Failed to initialize counter store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// 3. Initialize Billing Recorder
	var recorder billing.Recorder = billing.NewLogRecorder()
	if cfg.Audit.Recorder == "postgres" {
		recorder = billing.NewPostgresRecorder(dbAdapter.DB())
	}

	// 4. Initialize Policy Engine and Services
	engine := policy.NewEngine(store, cfg.LimitSource,
		policy.WithGroupBudgetCoupling(cfg.Charging.CoupleGroupBudget),
	)
	chargeSvc := charge.NewService(engine, recorder, int32(cfg.Charging.MaxCostScale), cfg.Charging.ReplayTTLDuration())
	deliverySvc := delivery.NewService(engine)

	// 5. Initialize Rollover Scheduler
	scheduler := rollover.NewScheduler(
		cfg.Rollover.TickIntervalDuration(),
		cfg.Rollover.GracePeriodDuration(),
		store,
	)

	// 6. Initialize Server
	var srv *server.Server
	if dbAdapter != nil {
		srv = server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), dbAdapter.DB(), cfg.Server.Mode)
	} else {
		srv = server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), nil, cfg.Server.Mode)
	}
	chargeSvc.RegisterRoutes(srv.Engine)
	deliverySvc.RegisterRoutes(srv.Engine)
	srv.RegisterCounterInspection(store, cfg.LimitSource)

	// 7. Start Services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signal handler → triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Rollover.Enabled {
		g.Go(func() error { return scheduler.Start(gctx) })
	} else {
		slog.Info("Rollover scheduler disabled by config")
	}
	g.Go(func() error { return srv.Run(gctx) })

	if err := g.Wait(); err != nil {
		slog.Error("Service stopped with error", "error", err)
	}
	slog.Info("Shutdown complete")
}

// buildStore constructs the configured CounterStore backend. The postgres
// adapter is returned separately so health checks and the audit recorder can
// share its handle.
func buildStore(cfg *corecfg.Config) (storage.CounterStore, *postgres.Adapter, error) {
	switch cfg.Store.Type {
	case "postgres":
		adapter, err := bootstrapPostgres(cfg)
		if err != nil {
			return nil, nil, err
		}
		return adapter, adapter, nil
	case "redis":
		store, err := redisstore.New(redisstore.Config{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	default:
		slog.Warn("Using in-memory counter store; budgets do not survive a restart")
		return storage.NewMemoryStore(), nil, nil
	}
}

func bootstrapPostgres(cfg *corecfg.Config) (*postgres.Adapter, error) {
	// Migrations must run before the adapter prepares its statements, so open
	// a bare handle first.
	migrationAdapter, err := postgres.OpenForMigration(cfg.Store.DSN)
	if err != nil {
		return nil, err
	}
	if err := migrations.RunMigrations(migrationAdapter, cfg.Store.AutoMigrate); err != nil {
		migrationAdapter.Close()
		return nil, err
	}
	migrationAdapter.Close()

	return postgres.NewAdapter(cfg.Store.DSN, cfg.Store.MaxOpenConns, cfg.Store.MaxIdleConns)
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
