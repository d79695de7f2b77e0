package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/rl1809/inventory-control/internal/adapter/handler"
	"github.com/rl1809/inventory-control/internal/adapter/messaging"
	"github.com/rl1809/inventory-control/internal/adapter/storage"
	"github.com/rl1809/inventory-control/internal/config"
	"github.com/rl1809/inventory-control/internal/core/service"
	"github.com/rl1809/inventory-control/internal/observability"
	"github.com/rl1809/inventory-control/internal/port"
)

const serviceVersion = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited with error", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: serviceVersion,
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		SampleRatio:    cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Error("failed to flush traces", zap.Error(err))
		}
	}()

	// Initialize relational store
	repo, closeRepo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	logger.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))

	lock, closeLock, err := openLock(cfg, rdb, logger)
	if err != nil {
		return err
	}
	defer closeLock()

	counter := storage.NewStockCounterAdapter(rdb)
	metrics := observability.NewPrometheusMetrics()
	syncer := service.NewCounterSyncService(repo, counter, cfg.Events.SyncBatchSize, logger)

	publisher, consumer, closeEvents := openEvents(cfg, syncer, logger)
	defer closeEvents()

	opts := service.Options{Publisher: publisher, Metrics: metrics, Logger: logger}
	retry := service.RetryPolicy{MaxAttempts: cfg.Retry.MaxAttempts, Backoff: cfg.Retry.Backoff}
	deduct := service.NewDeductStockService(repo, repo, retry, opts)

	services := handler.Services{
		Initialize: service.NewInitializeStockService(repo, opts),
		Deduct:     deduct,
		Restore:    service.NewRestoreStockService(repo, repo, retry, opts),
		Set: service.NewSetStockService(repo, repo, lock,
			service.LockPolicy{Wait: cfg.Lock.Wait, Lease: cfg.Lock.Lease}, opts),
		Reserve: service.NewReserveStockService(
			storage.NewRedisIdempotencyStore(rdb, cfg.Redis.IdempotencyTTL), counter, deduct, opts),
		Query: service.NewStockQueryService(repo, counter),
		Sync:  syncer,
	}

	// Sync stock to Redis
	n, err := syncer.SyncAll(ctx)
	if err != nil {
		return fmt.Errorf("initial counter sync: %w", err)
	}
	logger.Info("initialized stock counters", zap.Int("count", n))

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(handler.AdminAuthInterceptor(cfg.AdminToken)))
	handler.RegisterStockServiceServer(grpcServer, handler.NewGRPCHandler(services, logger))

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.NewHTTPHandler(services, cfg.AdminToken, logger).Routes(metrics.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		return grpcServer.Serve(lis)
	})

	if consumer != nil {
		g.Go(func() error { return consumer.Run(gctx) })
	}

	if cfg.Events.ResyncInterval > 0 {
		g.Go(func() error {
			syncer.Run(gctx, cfg.Events.ResyncInterval)
			return nil
		})
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP shutdown failed", zap.Error(err))
		}
		logger.Info("HTTP server stopped")

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")
		return nil
	})

	return g.Wait()
}

func openRepository(ctx context.Context, cfg config.Config, logger *zap.Logger) (port.StockRepository, func(), error) {
	if cfg.Storage.Backend == config.StorageMemory {
		logger.Warn("using in-memory stock repository")
		return storage.NewMemoryStockRepository(), func() {}, nil
	}

	db, err := sql.Open("mysql", cfg.Storage.MySQLDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(cfg.Storage.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Storage.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Storage.ConnLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping mysql: %w", err)
	}
	logger.Info("connected to mysql")

	if cfg.Storage.AutoMigrate {
		if err := storage.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("product_stock schema migrated")
	}

	return storage.NewMySQLStockRepository(db), func() { db.Close() }, nil
}

func openLock(cfg config.Config, rdb redis.UniversalClient, logger *zap.Logger) (port.DistributedLock, func(), error) {
	switch cfg.Lock.Backend {
	case config.LockZookeeper:
		conn, _, err := zk.Connect(cfg.Lock.ZKServers, cfg.Lock.ZKSessionTimeout)
		if err != nil {
			return nil, nil, fmt.Errorf("connect zookeeper: %w", err)
		}
		logger.Info("using zookeeper lock", zap.Strings("servers", cfg.Lock.ZKServers))
		return storage.NewZookeeperLock(conn, cfg.Lock.ZKSessionTimeout), conn.Close, nil
	case config.LockLocal:
		logger.Warn("using process-local stock lock")
		return storage.NewLocalLock(), func() {}, nil
	default:
		return storage.NewRedisLock(rdb, 0), func() {}, nil
	}
}

// openEvents returns the publisher used by the services and, for the kafka
// backend, the consumer that applies events to the counter.
func openEvents(cfg config.Config, syncer *service.CounterSyncService, logger *zap.Logger) (port.StockEventPublisher, *messaging.CounterSyncConsumer, func()) {
	switch cfg.Events.Backend {
	case config.EventsKafka:
		pub := messaging.NewKafkaStockEventPublisher(
			messaging.NewStockWriter(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic))
		consumer := messaging.NewCounterSyncConsumer(
			messaging.NewStockReader(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic, cfg.Events.KafkaGroupID),
			syncer, logger)
		logger.Info("publishing stock events to kafka", zap.String("topic", cfg.Events.KafkaTopic))
		return pub, consumer, func() {
			if err := pub.Close(); err != nil {
				logger.Error("failed to close kafka writer", zap.Error(err))
			}
			if err := consumer.Close(); err != nil {
				logger.Error("failed to close kafka reader", zap.Error(err))
			}
		}
	case config.EventsNone:
		return port.NopStockEventPublisher{}, nil, func() {}
	default:
		return syncer, nil, func() {}
	}
}
