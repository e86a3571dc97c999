package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/kevin07696/payment-reconciler/internal/adapters/events"
	"github.com/kevin07696/payment-reconciler/internal/adapters/memory"
	"github.com/kevin07696/payment-reconciler/internal/adapters/postgres"
	redisadapter "github.com/kevin07696/payment-reconciler/internal/adapters/redis"
	"github.com/kevin07696/payment-reconciler/internal/adapters/secrets"
	"github.com/kevin07696/payment-reconciler/internal/adapters/unzer"
	"github.com/kevin07696/payment-reconciler/internal/config"
	"github.com/kevin07696/payment-reconciler/internal/domain/ports"
	callbackHandler "github.com/kevin07696/payment-reconciler/internal/handlers/callback"
	checkoutHandler "github.com/kevin07696/payment-reconciler/internal/handlers/checkout"
	cronHandler "github.com/kevin07696/payment-reconciler/internal/handlers/cron"
	paymentHandler "github.com/kevin07696/payment-reconciler/internal/handlers/payment"
	"github.com/kevin07696/payment-reconciler/internal/middleware"
	paymentService "github.com/kevin07696/payment-reconciler/internal/services/payment"
	pkgmiddleware "github.com/kevin07696/payment-reconciler/pkg/middleware"
	"github.com/kevin07696/payment-reconciler/pkg/observability"
	"github.com/kevin07696/payment-reconciler/pkg/security"
	"github.com/kevin07696/payment-reconciler/pkg/shutdown"
)

const version = "1.0.0"

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := security.NewLogger(cfg.Logger.Level, cfg.Logger.Development || !cfg.IsProduction())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting payment reconciler",
		zap.String("version", version),
		zap.String("environment", cfg.Server.Environment),
		zap.Bool("gateway_test_mode", cfg.Gateway.TestMode))

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Payment reconciler stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()
	shutdownManager := shutdown.NewManager(logger, cfg.Server.ShutdownTimeout)

	store, err := secrets.NewStore(ctx, cfg.SecretStoreConfig(), logger)
	if err != nil {
		return fmt.Errorf("init secret store: %w", err)
	}
	if err := cfg.ResolveSecrets(ctx, store); err != nil {
		return err
	}

	deps, dbPool, err := initStorage(ctx, cfg, logger, shutdownManager)
	if err != nil {
		return err
	}

	healthChecker := observability.NewHealthChecker(dbPool)

	portsLogger := security.NewZapLogger(logger)
	deps.Logger = portsLogger
	deps.Gateway = unzer.NewClientWithDefaults(unzer.Config{
		BaseURL: cfg.Gateway.BaseURL,
		APIKey:  cfg.Gateway.APIKey,
		Timeout: cfg.Gateway.Timeout,
	}, portsLogger)

	if err := initCoordination(ctx, cfg, logger, portsLogger, &deps, healthChecker, shutdownManager); err != nil {
		return err
	}

	publisher, err := initEvents(ctx, cfg, logger, healthChecker, shutdownManager)
	if err != nil {
		return err
	}
	deps.Events = publisher

	service := paymentService.NewService(deps, paymentService.Config{
		CallbackURL:     cfg.Gateway.CallbackURL,
		ContinueURL:     cfg.Gateway.ContinueURL,
		CancelURL:       cfg.Gateway.CancelURL,
		PrivateKey:      cfg.Gateway.PrivateKey,
		TestMode:        cfg.Gateway.TestMode,
		BrandingID:      cfg.Gateway.BrandingID,
		Language:        cfg.Gateway.Language,
		PaymentMethods:  cfg.Gateway.PaymentMethods,
		ShopSystem:      ports.ShopSystem{Name: "payment-reconciler", Version: version},
		GatewayTimeout:  cfg.Gateway.Timeout,
		LockTimeout:     cfg.Lock.Timeout,
		RollbackTimeout: cfg.Lock.RollbackTimeout,
		PublishTimeout:  cfg.Events.PublishTimeout,
		BasketTTL:       cfg.Gateway.BasketTTL,
	})

	metricsServer := observability.StartMetricsServer(strconv.Itoa(cfg.Server.MetricsPort), healthChecker, logger)
	shutdownManager.Register("metrics server", func(ctx context.Context) error {
		return observability.ShutdownMetricsServer(ctx, metricsServer)
	})

	if cfg.Cron.Interval > 0 {
		worker := shutdown.NewPeriodicWorker("stale-payment-sync", cfg.Cron.Interval, logger)
		worker.Start(func(ctx context.Context) {
			report, err := service.SyncStalePayments(ctx, cfg.Cron.OlderThan, cfg.Cron.BatchSize)
			if err != nil {
				logger.Error("Scheduled stale payment sync failed", zap.Error(err))
				return
			}
			logger.Info("Scheduled stale payment sync completed",
				zap.Int("checked", report.Checked),
				zap.Int("changed", report.Changed),
				zap.Int("failed", len(report.Failed)))
		})
		shutdownManager.Register("stale payment sync", worker.Shutdown)
	}

	grpcServer, healthServer := newGRPCServer(logger)
	grpcListener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	go watchHealth(ctx, healthChecker, healthServer, 10*time.Second, logger)
	go func() {
		logger.Info("gRPC server listening", zap.String("address", grpcListener.Addr().String()))
		if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()
	shutdownManager.RegisterNoErr("grpc server", func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
	})

	rateLimiter := pkgmiddleware.NewRateLimiter(cfg.RateLimit.CallbackRPS, cfg.RateLimit.CallbackBurst, logger)
	shutdownManager.RegisterNoErr("rate limiter", rateLimiter.Shutdown)

	inflight := shutdown.NewInFlightTracker("http", logger)
	handler, err := newRouter(routerDeps{
		callback:    callbackHandler.NewHandler(service, logger),
		payments:    paymentHandler.NewHandler(service, logger),
		checkout:    checkoutHandler.NewHandler(service, logger),
		cron:        cronHandler.NewSyncHandler(service, logger, cfg.Cron.Secret, cfg.Cron.OlderThan, cfg.Cron.BatchSize),
		adminAuth:   middleware.NewAdminAuth(cfg.Admin.JWTSecret, cfg.Admin.JWTIssuer, logger),
		rateLimiter: rateLimiter,
		headers:     middleware.NewSecurityHeaders(!cfg.IsProduction()),
		inflight:    inflight,
		logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// capture, cancel and refund wait for the gateway and the payment lock
		WriteTimeout: cfg.Gateway.Timeout + cfg.Lock.Timeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("HTTP server listening", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	shutdownManager.RegisterHTTPServer("http server", httpServer)
	shutdownManager.Register("in-flight requests", inflight.Shutdown)
	shutdownManager.RegisterNoErr("readiness", healthChecker.SetDraining)

	shutdownManager.WaitForShutdown(ctx)
	return nil
}

// initStorage wires the payment and operation repositories. The pool is nil
// for the in-memory backend.
func initStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger, sm *shutdown.Manager) (paymentService.Dependencies, *pgxpool.Pool, error) {
	if cfg.Database.StorageBackend == "memory" {
		logger.Warn("Using in-memory storage, payments are lost on restart")
		store := memory.NewStore()
		return paymentService.Dependencies{
			DB:         store,
			Payments:   store.Payments(),
			Operations: store.Operations(),
		}, nil, nil
	}

	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
		DatabaseURL:     cfg.Database.URL,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	}, logger)
	if err != nil {
		return paymentService.Dependencies{}, nil, fmt.Errorf("init database: %w", err)
	}
	sm.RegisterNoErr("database", pool.Close)

	if cfg.Database.AutoMigrate {
		if err := postgres.MigrateUp(ctx, pool); err != nil {
			return paymentService.Dependencies{}, nil, fmt.Errorf("migrate database: %w", err)
		}
		logger.Info("Database migrations applied")
	}

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	postgres.StartPoolMonitoring(monitorCtx, pool, 30*time.Second, logger)
	sm.RegisterNoErr("pool monitor", stopMonitor)

	executor := postgres.NewDBExecutor(pool)
	return paymentService.Dependencies{
		DB:         executor,
		Payments:   postgres.NewPaymentRepository(executor),
		Operations: postgres.NewOperationRepository(executor),
	}, pool, nil
}

// initCoordination selects the payment lock and the parked-basket store
func initCoordination(
	ctx context.Context,
	cfg *config.Config,
	logger *zap.Logger,
	portsLogger ports.Logger,
	deps *paymentService.Dependencies,
	health *observability.HealthChecker,
	sm *shutdown.Manager,
) error {
	if cfg.Lock.Backend != "redis" {
		deps.Locker = paymentService.NewKeyedLocker()
		deps.Baskets = memory.NewBasketStore()
		return nil
	}

	rdb, err := redisadapter.NewClient(ctx, redisadapter.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, logger)
	if err != nil {
		return fmt.Errorf("init redis: %w", err)
	}
	sm.RegisterCloser("redis", rdb)
	health.Register("redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})

	deps.Locker = redisadapter.NewLocker(rdb, redisadapter.LockerConfig{TTL: cfg.Lock.TTL}, portsLogger)
	deps.Baskets = redisadapter.NewBasketStore(rdb)
	return nil
}

// initEvents selects the status-change publisher. "none" disables events.
func initEvents(ctx context.Context, cfg *config.Config, logger *zap.Logger, health *observability.HealthChecker, sm *shutdown.Manager) (ports.EventPublisher, error) {
	switch cfg.Events.Broker {
	case events.BrokerNATS:
		publisher, err := events.NewNATSPublisher(ctx, events.NATSConfig{
			URL:           cfg.Events.NATSURL,
			Name:          cfg.Events.NATSName,
			Stream:        cfg.Events.NATSStream,
			SubjectPrefix: cfg.Events.NATSSubject,
			MaxReconnects: cfg.Events.NATSReconnects,
			ReconnectWait: cfg.Events.NATSWait,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("init nats: %w", err)
		}
		health.Register("nats", publisher.HealthCheck)
		sm.RegisterCloser("nats", publisher)
		return publisher, nil

	case events.BrokerKafka:
		producer, err := events.NewKafkaProducer(events.KafkaConfig{
			Brokers:  cfg.Events.KafkaBrokers,
			Topic:    cfg.Events.KafkaTopic,
			ClientID: cfg.Events.NATSName,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("init kafka: %w", err)
		}
		publisher := events.NewKafkaPublisher(producer, cfg.Events.KafkaTopic, logger)
		sm.RegisterCloser("kafka", publisher)
		return publisher, nil

	case events.BrokerLog:
		return events.NewLogPublisher(logger), nil

	default:
		return nil, nil
	}
}
