package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/example/screening-console/internal/application"
	"github.com/example/screening-console/internal/config"
	httptransport "github.com/example/screening-console/internal/http"
	"github.com/example/screening-console/internal/jobs"
	"github.com/example/screening-console/internal/logging"
	"github.com/example/screening-console/internal/metrics"
	"github.com/example/screening-console/internal/persistence"
	"github.com/example/screening-console/internal/persistence/firestore"
	"github.com/example/screening-console/internal/persistence/memory"
	"github.com/example/screening-console/internal/persistence/postgres"
	"github.com/example/screening-console/internal/persistence/sqlite"
	"github.com/example/screening-console/internal/supplies"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		slog.Error("failed to configure logging", "error", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("console stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	location, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("resolve timezone: %w", err)
	}
	catalog, err := loadCatalog(cfg.Supplies)
	if err != nil {
		return err
	}

	storage, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := storage.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	var reg *metrics.Metrics
	if cfg.HTTP.MetricsEnabled {
		reg = metrics.New()
	}
	store := metrics.InstrumentStore(storage.DocumentStore, reg)
	now := time.Now

	accounts := application.NewAccountStore(store, now)
	if cfg.Bootstrap.AdminEmail != "" {
		admin, err := accounts.EnsureAccount(ctx, cfg.Bootstrap.AdminEmail, cfg.Bootstrap.AdminDisplayName, cfg.Bootstrap.AdminPasswordHash, true)
		if err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
		logger.Info("administrator account ready", "user_id", admin.ID, "email", admin.Email)
	}

	authService := application.NewAuthService(accounts, application.AuthOptions{
		Verify:     application.VerifyPassword,
		NewToken:   func() string { return randomHex(32) },
		Now:        now,
		SessionTTL: cfg.Session.TTL,
		Logger:     logger,
	})
	sessions := application.NewSessionManager(authService, storage.Probe, logger)
	defer sessions.Dispose()

	registry := application.NewEventStoreRegistry(store, now, logger)
	sessions.Subscribe(registry.HandleSessionChange)
	if err := sessions.Init(ctx); err != nil {
		return err
	}

	inventory := application.NewInventoryServiceWithLogger(store, now, logger)
	notifications := application.NewNotificationServiceWithLogger(store, now, logger)
	ledger := application.NewSupplyLedgerWithLogger(inventory, notifications, catalog, logger)
	if reg != nil {
		ledger = ledger.WithObserver(reg)
	}
	controller := application.NewSchedulingControllerWithLogger(registry, ledger, now, location, logger)

	jobsCfg := jobs.Config{
		LowStockSchedule: cfg.Jobs.LowStockSchedule,
		Location:         location,
		Inventory:        inventory,
		Notifier:         notifications,
		Sessions:         accounts,
		Now:              now,
	}
	if reg != nil {
		jobsCfg.Observer = reg
	}
	if strings.TrimSpace(cfg.Jobs.LowStockSchedule) != "" {
		scheduler, err := jobs.New(jobsCfg, logger)
		if err != nil {
			return err
		}
		scheduler.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
			defer cancel()
			if err := scheduler.Stop(stopCtx); err != nil {
				logger.Error("failed to stop jobs", "error", err)
			}
		}()
	}

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Auth:          httptransport.NewAuthHandler(sessions, logger),
		Events:        httptransport.NewEventHandler(controller, logger),
		Calendar:      httptransport.NewCalendarHandler(controller, logger),
		Inventory:     httptransport.NewInventoryHandler(inventory, logger),
		Notifications: httptransport.NewNotificationHandler(notifications, logger),
	})
	var api http.Handler = httptransport.Protect(router, sessions, logger, "/sessions")
	if reg != nil {
		api = reg.Middleware(api)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := storage.Probe(r.Context()); err != nil {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	if reg != nil {
		mux.Handle("/metrics", reg.Handler())
	}
	mux.Handle("/", api)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           httptransport.RequestLogger(logger)(mux),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("console API listening", "addr", server.Addr, "store", cfg.Store.Driver, "timezone", location.String())
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// openedStore bundles a document store with its lifecycle hooks.
type openedStore struct {
	persistence.DocumentStore
	Probe func(context.Context) error
	Close func() error
}

func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (openedStore, error) {
	noop := func() error { return nil }
	ready := func(context.Context) error { return nil }

	switch cfg.Driver {
	case config.DriverMemory:
		return openedStore{DocumentStore: memory.NewStore(nil), Probe: ready, Close: noop}, nil
	case config.DriverSQLite:
		store, err := sqlite.Open(sqlite.DefaultConfig(cfg.SQLitePath), logger)
		if err != nil {
			return openedStore{}, fmt.Errorf("open sqlite: %w", err)
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return openedStore{}, fmt.Errorf("migrate sqlite: %w", err)
		}
		return openedStore{DocumentStore: store, Probe: store.Ping, Close: store.Close}, nil
	case config.DriverPostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return openedStore{}, err
		}
		return openedStore{DocumentStore: store, Probe: store.DB().PingContext, Close: store.Close}, nil
	case config.DriverFirestore:
		store, err := firestore.Open(ctx, cfg.FirestoreProject)
		if err != nil {
			return openedStore{}, err
		}
		return openedStore{DocumentStore: store, Probe: ready, Close: store.Close}, nil
	}
	return openedStore{}, fmt.Errorf("unsupported store driver %q", cfg.Driver)
}

func loadCatalog(cfg config.SuppliesConfig) (supplies.Catalog, error) {
	if path := strings.TrimSpace(cfg.CatalogFile); path != "" {
		catalog, err := supplies.Load(path)
		if err != nil {
			return supplies.Catalog{}, fmt.Errorf("load supply catalog: %w", err)
		}
		return catalog, nil
	}
	catalog, err := supplies.Named(cfg.Catalog)
	if err != nil {
		return supplies.Catalog{}, fmt.Errorf("supply catalog: %w", err)
	}
	return catalog, nil
}

func randomHex(bytes int) string {
	if bytes <= 0 {
		bytes = 16
	}
	buf := make([]byte, bytes)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
