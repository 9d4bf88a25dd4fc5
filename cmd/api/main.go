package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mietwagen/internal/api"
	"mietwagen/internal/config"
	"mietwagen/internal/database"
	"mietwagen/internal/domain"
	"mietwagen/internal/events"
	"mietwagen/internal/logging"
	"mietwagen/internal/metrics"
	"mietwagen/internal/models"
	"mietwagen/internal/repository"
	"mietwagen/internal/service"
	"mietwagen/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		stdlog.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	fleet, err := loadFleet(&logger)
	if err != nil {
		return err
	}

	db, err := initDatabase(cfg, fleet, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}
	quotes := initQuoteRepository(redisClient, &logger)

	exportWorker := initExportWorker(ctx, cfg, db, redisClient)

	eventBus := events.NewEventBus()
	subscribeRentalEvents(eventBus, &logger)

	rentalService := service.NewRentalService(db, quotes, eventBus, exportWorker, cfg.Rental, &logger)
	vehicleService := service.NewVehicleService(db, &logger)

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, &logger)
		go backupService.Start(ctx)
	}

	httpServer := api.NewHTTPServer(cfg.API, rentalService, vehicleService, &logger)

	startMetrics(ctx, cfg, &logger)

	return startServer(ctx, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func loadFleet(logger *zerolog.Logger) ([]models.Vehicle, error) {
	fleetPath := os.Getenv("FLEET_PATH")
	if fleetPath == "" {
		fleetPath = "configs/fleet.yaml"
	}
	fleetData, err := os.ReadFile(fleetPath)
	if err != nil {
		logger.Error().Err(err).Str("fleet_path", fleetPath).Msg("read fleet")
		return nil, err
	}

	var fleetConfig struct {
		Vehicles []models.Vehicle `yaml:"vehicles"`
	}
	if err := yaml.Unmarshal(fleetData, &fleetConfig); err != nil {
		logger.Error().Err(err).Str("fleet_path", fleetPath).Msg("parse fleet")
		return nil, err
	}

	if err := config.ValidateFleet(fleetConfig.Vehicles); err != nil {
		return nil, fmt.Errorf("fleet file %s: %w", fleetPath, err)
	}

	return fleetConfig.Vehicles, nil
}

func initDatabase(cfg *config.Config, fleet []models.Vehicle, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	if err := db.SyncVehicles(context.Background(), fleet); err != nil {
		db.Close()
		return nil, fmt.Errorf("sync fleet: %w", err)
	}
	return db, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initQuoteRepository prefers redis with an in-memory fallback so quote
// caching and reserve throttling survive a redis outage.
func initQuoteRepository(redisClient *redis.Client, logger *zerolog.Logger) domain.QuoteRepository {
	memory := repository.NewMemoryQuoteRepository()
	if redisClient == nil {
		return memory
	}
	return repository.NewFailoverQuoteRepository(repository.NewRedisQuoteRepository(redisClient), memory, logger)
}

func initExportWorker(ctx context.Context, cfg *config.Config, db *database.DB, redisClient *redis.Client) *worker.ExportWorker {
	exportsPath := cfg.Exports.Path
	if exportsPath == "" {
		exportsPath = "data/rentals.xlsx"
	}

	ledger := worker.NewExcelLedger(exportsPath)
	retryPolicy := worker.RetryPolicy{MaxRetries: 5, InitialDelay: 2 * time.Second, MaxDelay: time.Minute, BackoffFactor: 2}
	exportWorker := worker.NewExportWorker(db, ledger, redisClient, retryPolicy, stdlog.New(os.Stdout, "export-worker: ", stdlog.LstdFlags))
	go exportWorker.Start(ctx)
	return exportWorker
}

// subscribeRentalEvents keeps an audit trail of lifecycle events. Export
// tasks are enqueued by the service itself; this is observation only.
func subscribeRentalEvents(bus *events.EventBus, logger *zerolog.Logger) {
	handler := func(ev *events.Event) error {
		var payload events.RentalEventPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			logger.Error().Err(err).Str("event", ev.Type).Msg("event bus: decode payload")
			return nil
		}

		logger.Info().
			Str("event", ev.Type).
			Int64("rental_id", payload.RentalID).
			Int64("vehicle_id", payload.VehicleID).
			Str("status", payload.Status).
			Msg("rental lifecycle event")
		return nil
	}

	bus.Subscribe(events.EventRentalReserved, handler)
	bus.Subscribe(events.EventRentalReturned, handler)
	bus.Subscribe(events.EventRentalCancelled, handler)
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServer(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
