package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"

	"github.com/iho/satledger/internal/adapter/bitcoin"
	httpAdapter "github.com/iho/satledger/internal/adapter/http"
	"github.com/iho/satledger/internal/adapter/http/handler"
	"github.com/iho/satledger/internal/adapter/http/middleware"
	"github.com/iho/satledger/internal/adapter/lnd"
	"github.com/iho/satledger/internal/adapter/rates"
	mongoRepo "github.com/iho/satledger/internal/adapter/repository/mongo"
	postgresRepo "github.com/iho/satledger/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/satledger/internal/adapter/repository/redis"
	"github.com/iho/satledger/internal/infrastructure/config"
	"github.com/iho/satledger/internal/infrastructure/eventpublisher"
	"github.com/iho/satledger/internal/infrastructure/kafka"
	"github.com/iho/satledger/internal/infrastructure/listener"
	"github.com/iho/satledger/internal/infrastructure/logger"
	"github.com/iho/satledger/internal/infrastructure/metrics"
	"github.com/iho/satledger/internal/infrastructure/mongo"
	"github.com/iho/satledger/internal/infrastructure/nodehealth"
	"github.com/iho/satledger/internal/infrastructure/postgres"
	"github.com/iho/satledger/internal/infrastructure/redis"
	"github.com/iho/satledger/internal/infrastructure/resolver"
	"github.com/iho/satledger/internal/infrastructure/sweeper"
	"github.com/iho/satledger/internal/usecase"
)

const limiterCleanupInterval = 5 * time.Minute

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Setup logger
	zerolog.TimeFieldFormat = time.RFC3339Nano
	lg := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	log.Logger = lg

	m := metrics.New()
	clk := clock.NewDefaultClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL and bring the schema up to date
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns, cfg.DatabaseMinConns)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()
	log.Info().Msg("connected to postgres")

	if err := postgres.NewMigrator(cfg.DatabaseURL, cfg.MigrationsPath, lg).Up(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	// Connect to Redis
	redisClient, err := redis.NewClient(ctx, cfg.RedisURL, lg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("connected to redis")

	// Connect to MongoDB (invoice store)
	mongoClient, err := mongo.Connect(ctx, mongo.Config{
		URI:         cfg.MongoURI,
		Database:    cfg.MongoDatabase,
		Timeout:     cfg.MongoTimeout,
		MaxPoolSize: cfg.MongoMaxPoolSize,
	}, lg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to mongodb")
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.MongoTimeout)
		defer cancel()
		if err := mongoClient.Close(closeCtx); err != nil {
			log.Error().Err(err).Msg("failed to close mongodb")
		}
	}()

	invoiceRepo := mongoRepo.NewInvoiceRepository(mongoClient.Database(), lg)
	if err := invoiceRepo.EnsureIndexes(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to create invoice indexes")
	}
	paymentRepo := mongoRepo.NewPaymentRepository(mongoClient.Database(), lg)
	if err := paymentRepo.EnsureIndexes(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to create payment indexes")
	}

	// Open the lightning nodes
	descs, err := config.LoadNodes(cfg.NodesFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load node descriptors")
	}

	var conns []*grpc.ClientConn
	defer func() {
		for _, c := range conns {
			_ = c.Close()
		}
	}()

	nodes, err := buildNodeSet(descs, func(d config.NodeConfig) (*lnd.Node, error) {
		conn, err := lnd.Dial(lnd.ConnConfig{
			Host:         d.Host,
			TLSCertPath:  d.TLSCertPath,
			MacaroonPath: d.MacaroonPath,
		})
		if err != nil {
			return nil, err
		}
		conns = append(conns, conn)
		return lnd.New(d.ID, conn, lg, lnd.WithClock(clk), lnd.WithTargetConf(cfg.TargetConfirmations)), nil
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open lightning nodes")
	}

	monitor, err := nodehealth.New(nodehealth.Config{
		Nodes:        nodes.connections,
		Probers:      nodes.probers,
		Interval:     cfg.NodeHealthInterval,
		ProbeTimeout: cfg.NodeProbeTimeout,
		Clock:        clk,
		Logger:       lg.With().Str("component", "nodehealth").Logger(),
		Metrics:      m,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create node monitor")
	}
	if err := monitor.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start node monitor")
	}
	defer func() {
		if err := monitor.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop node monitor")
		}
	}()

	// Destination parsing and exchange rates
	params, err := bitcoin.NetworkParams(cfg.BitcoinNetwork)
	if err != nil {
		log.Fatal().Err(err).Msg("unknown bitcoin network")
	}
	parser := bitcoin.NewParser(params, clk)

	usdRate, err := cfg.UsdRate()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid exchange rate")
	}
	staticRates, err := rates.NewStatic(usdRate)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid exchange rate")
	}
	cache := redisRepo.NewCache(redisClient)
	rateSource := rates.NewCached(staticRates, cache, cfg.RateCacheTTL, lg)

	// Initialize repositories
	txManager := postgresRepo.NewTxManager(pool, postgresRepo.WithLockTimeout(cfg.DatabaseLockTimeout))
	journalRepo := postgresRepo.NewJournalRepository(pool)
	entryRepo := postgresRepo.NewEntryRepository(pool)
	ledgerRepo := postgresRepo.NewLedgerRepository(pool)
	outboxRepo := postgresRepo.NewOutboxRepository(pool)
	walletRepo := postgresRepo.NewWalletRepository(pool)
	idempotencyStore := redisRepo.NewIdempotencyStore(redisClient)
	idGen := postgresRepo.NewULIDGenerator(clk)
	directory := usecase.NewDirectory(walletRepo, invoiceRepo)

	// Initialize use cases
	ledgerUC := usecase.NewLedgerUseCase(txManager, journalRepo, entryRepo, ledgerRepo, outboxRepo, idGen,
		usecase.WithLedgerRetrier(postgresRepo.NewRetrier(lg)),
		usecase.WithLedgerClock(clk),
		usecase.WithLedgerLogger(lg),
		usecase.WithLedgerMetrics(m),
	)
	invoiceUC := usecase.NewInvoiceUseCase(usecase.InvoiceDeps{
		InvoiceRepo: invoiceRepo,
		Directory:   directory,
		Selector:    monitor,
		Nodes:       nodes.pool,
		Rates:       rateSource,
		TxManager:   txManager,
		OutboxRepo:  outboxRepo,
		IDGen:       idGen,
		Clock:       clk,
		Logger:      lg,
		Metrics:     m,
	})
	engine := usecase.NewReconciliationUseCase(usecase.ReconciliationDeps{
		Ledger:              ledgerUC,
		Invoices:            invoiceUC,
		Payments:            paymentRepo,
		Directory:           directory,
		Parser:              parser,
		Selector:            monitor,
		Nodes:               nodes.pool,
		Rates:               rateSource,
		Cache:               cache,
		Clock:               clk,
		Logger:              lg,
		Metrics:             m,
		TargetConfirmations: cfg.TargetConfirmations,
		DispatchTimeout:     cfg.DispatchTimeout,
		FeeCapBasisPoints:   cfg.LightningFeeCapBps,
		SettledEventTTL:     cfg.SettledEventTTL,
		PaymentGracePeriod:  cfg.PaymentGracePeriod,
	})

	// Background workers
	var wg sync.WaitGroup
	runWorker := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
			log.Debug().Str("worker", name).Msg("worker exited")
		}()
	}

	events, err := listener.New(listener.Config{
		Nodes:   nodes.streams,
		Handler: engine,
		Logger:  lg.With().Str("component", "listener").Logger(),
		Workers: cfg.SettlementWorkers,

		SettlementPollLimit: cfg.SettlementPollLimit,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create node listener")
	}
	runWorker("listener", func() { events.Run(ctx) })

	nodeEvents, err := monitor.Subscribe()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe to node events")
	}
	defer nodeEvents.Cancel()
	runWorker("node-events", func() { events.WatchNodeEvents(ctx, nodeEvents) })

	invoiceSweeper := sweeper.New(sweeper.Config{
		Invoices: invoiceUC,
		Interval: cfg.InvoiceSweepInterval,
		Clock:    clk,
		Logger:   lg.With().Str("component", "sweeper").Logger(),
	})
	runWorker("sweeper", func() { invoiceSweeper.Start(ctx) })

	paymentResolver := resolver.New(resolver.Config{
		Payments:  engine,
		Interval:  cfg.PaymentResolveEvery,
		BatchSize: cfg.PaymentResolveBatch,
		Logger:    lg,
	})
	runWorker("payment-resolver", func() { paymentResolver.Start(ctx) })

	var publisher eventpublisher.Publisher = eventpublisher.NewLogPublisher(lg)
	if cfg.KafkaEnabled {
		kafkaPublisher, err := kafka.NewOutboxPublisher(cfg.KafkaBrokers, cfg.KafkaEventsTopic, lg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create kafka publisher")
		}
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher

		consumer := kafka.NewSettlementConsumer(kafka.ConsumerConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaSettlementTopic,
			GroupID: cfg.KafkaConsumerGroup,
		}, engine.ReconcileSettlement, lg)
		defer consumer.Close()
		runWorker("settlement-consumer", func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("settlement consumer stopped")
			}
		})
	}

	outbox := eventpublisher.NewEventPublisher(eventpublisher.Config{
		OutboxRepo: outboxRepo,
		Publisher:  publisher,
		Logger:     lg,
		Clock:      clk,
		Metrics:    m,
		BatchSize:  cfg.OutboxBatchSize,
		Interval:   cfg.OutboxPollInterval,
		Retention:  cfg.OutboxRetention,
	})
	runWorker("outbox", func() { _ = outbox.Start(ctx) })

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst, m)
	runWorker("limiter-cleanup", func() { limiter.RunCleanup(ctx, limiterCleanupInterval) })

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(readinessChecks(
		func(ctx context.Context) error { return pool.Ping(ctx) },
		redisPing(redisClient),
		mongoClient.Ping,
	)...)

	// Create router
	router := httpAdapter.NewRouter(httpAdapter.RouterConfig{
		PaymentHandler:    handler.NewPaymentHandler(engine),
		InvoiceHandler:    handler.NewInvoiceHandler(invoiceUC),
		SettlementHandler: handler.NewSettlementHandler(engine, clk),
		WalletHandler:     handler.NewWalletHandler(engine),
		NodeHandler:       handler.NewNodeHandler(monitor),
		LedgerHandler:     handler.NewLedgerHandler(ledgerUC),
		HealthHandler:     healthHandler,
		IdempotencyStore:  idempotencyStore,
		IdempotencyTTL:    cfg.IdempotencyTTL,
		RateLimiter:       limiter,
		Logger:            lg,
	})

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("port", cfg.HTTPPort).Int("nodes", len(descs)).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server failed")
			stop()
		}
	}()

	// Wait for interrupt signal
	<-ctx.Done()
	log.Info().Msg("shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	wg.Wait()
	log.Info().Msg("server stopped")
}

// readinessChecks names the dependencies probed by /ready.
func readinessChecks(postgresPing, redisPing, mongoPing func(context.Context) error) []handler.Check {
	return []handler.Check{
		{Name: "postgres", Ping: postgresPing},
		{Name: "redis", Ping: redisPing},
		{Name: "mongodb", Ping: mongoPing},
	}
}

func redisPing(client goredis.UniversalClient) func(context.Context) error {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
