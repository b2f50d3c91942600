package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fekuna/omnipos-warehouse-service/config"
	"github.com/fekuna/omnipos-warehouse-service/internal/broker"
	"github.com/fekuna/omnipos-warehouse-service/internal/cache"
	"github.com/fekuna/omnipos-warehouse-service/internal/database"
	"github.com/fekuna/omnipos-warehouse-service/internal/events"
	"github.com/fekuna/omnipos-warehouse-service/internal/inventory"
	invListenerPkg "github.com/fekuna/omnipos-warehouse-service/internal/inventory/listener"
	invRepoPkg "github.com/fekuna/omnipos-warehouse-service/internal/inventory/repository"
	invUCPkg "github.com/fekuna/omnipos-warehouse-service/internal/inventory/usecase"
	"github.com/fekuna/omnipos-warehouse-service/internal/logger"
	"github.com/fekuna/omnipos-warehouse-service/internal/memstore"
	"github.com/fekuna/omnipos-warehouse-service/internal/model"
	"github.com/fekuna/omnipos-warehouse-service/internal/replen"
	replenRepoPkg "github.com/fekuna/omnipos-warehouse-service/internal/replen/repository"
	"github.com/fekuna/omnipos-warehouse-service/internal/replen/scheduler"
	"github.com/fekuna/omnipos-warehouse-service/internal/replen/subscriber"
	replenUCPkg "github.com/fekuna/omnipos-warehouse-service/internal/replen/usecase"
	"github.com/fekuna/omnipos-warehouse-service/internal/search"
	"github.com/fekuna/omnipos-warehouse-service/internal/warehouse"
	whRepoPkg "github.com/fekuna/omnipos-warehouse-service/internal/warehouse/repository"
	whUCPkg "github.com/fekuna/omnipos-warehouse-service/internal/warehouse/usecase"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

type repositories struct {
	inventory inventory.Repository
	warehouse warehouse.Repository
	replen    replen.Repository
	tx        database.Transactor
}

func main() {
	// 1. Load Configuration
	_ = godotenv.Load()
	cfg := config.LoadEnv()

	// 2. Initialize Logger
	logConfig := &logger.ZapLoggerConfig{
		Encoding:          cfg.Logger.Encoding,
		Level:             cfg.Logger.Level,
		DisableCaller:     cfg.Logger.DisableCaller,
		DisableStacktrace: cfg.Logger.DisableStacktrace,
	}
	if cfg.Server.AppEnv == "development" || cfg.Server.AppEnv == "dev" {
		logConfig.IsDevelopment = true
	}
	appLogger := logger.NewZapLogger(logConfig)
	defer appLogger.Sync()

	// 3. Storage
	repos, db := openStorage(cfg, appLogger)
	if db != nil {
		defer db.Close()
	}

	// 4. Event dispatcher
	dispatcher := events.NewDispatcher(cfg.Replen.EventQueueSize, appLogger)

	// 5. Initialize Redis (optional: settings cache and scan lock)
	var locker scheduler.Locker
	replenOpts := []replenUCPkg.Option{
		replenUCPkg.WithDefaultSettings(model.WarehouseSettings{
			ReplenMode:           model.ReplenMode(cfg.Replen.DefaultMode),
			InlineReplenMaxUnits: cfg.Replen.InlineMaxUnits,
			VelocityLookbackDays: cfg.Replen.VelocityLookbackDays,
		}),
	}
	redisClient, err := cache.NewRedisClient(&cache.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		appLogger.Warn("Could not connect to Redis, running without settings cache and scan lock", zap.Error(err))
	} else {
		defer redisClient.Close()
		appLogger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))
		locker = redisClient
		replenOpts = append(replenOpts,
			replenUCPkg.WithSettingsCache(cache.NewSettingsCache(redisClient, cfg.Replen.SettingsCacheTTL, appLogger)))
	}

	// 6. Initialize UseCases
	invUC := invUCPkg.NewInventoryUseCase(repos.inventory, repos.tx, dispatcher, appLogger)
	whUC := whUCPkg.NewWarehouseUseCase(repos.warehouse, appLogger)
	replenUC := replenUCPkg.NewReplenUseCase(repos.replen, invUC, whUC, repos.tx, dispatcher, appLogger, replenOpts...)

	// 7. Event subscribers
	producer := broker.NewProducer(&broker.Config{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.EventsTopic})
	defer producer.Close()
	dispatcher.Subscribe("kafka-sink", events.KafkaSink(producer))

	esClient, err := search.NewClient(&search.Config{
		Addresses: cfg.Elastic.Addresses,
		Username:  cfg.Elastic.Username,
		Password:  cfg.Elastic.Password,
	})
	if err != nil {
		appLogger.Warn("Could not connect to Elasticsearch, audit indexing disabled", zap.Error(err))
	} else {
		indexer := search.NewAuditIndexer(esClient, cfg.Elastic.AuditIndex)
		if err := indexer.EnsureIndex(context.Background()); err != nil {
			appLogger.Warn("Could not create audit index", zap.Error(err))
		}
		dispatcher.Subscribe("audit-index", indexer.Handle, events.TransactionRecorded)
		appLogger.Info("Connected to Elasticsearch", zap.Strings("addresses", cfg.Elastic.Addresses))
	}

	recheck := subscriber.NewCycleCountRecheck(replenUC, appLogger)
	dispatcher.Subscribe("cycle-count-recheck", recheck.Handle, events.TransactionRecorded)
	dispatcher.Start()

	// 8. Background workers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup

	consumer := broker.NewConsumer(&broker.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.WarehouseTopic,
		GroupID: cfg.Kafka.GroupID,
	})
	defer consumer.Close()
	appLogger.Info("Connected to Kafka Consumer", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.WarehouseTopic))

	invListener := invListenerPkg.NewInventoryListener(consumer, invUC, replenUC, appLogger)
	sched := scheduler.New(replenUC, locker, scheduler.Config{
		ScanInterval:     cfg.Replen.ScanInterval,
		GenerateInterval: cfg.Replen.GenerateInterval,
		WarehouseIDs:     cfg.Replen.WarehouseIDs,
		LockTTL:          cfg.Replen.LockTTL,
	}, appLogger)

	wg.Add(2)
	go func() {
		defer wg.Done()
		invListener.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()

	// 9. Start gRPC Server (health and reflection)
	port := cfg.Server.GRPCPort
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}

	lis, err := net.Listen("tcp", port)
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	appLogger.Info("Starting gRPC server", zap.String("port", port))

	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			appLogger.Fatal("failed to serve", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	healthServer.Shutdown()
	cancel()
	wg.Wait()
	dispatcher.Close()
	grpcServer.GracefulStop()
	appLogger.Info("Server stopped")
}

func openStorage(cfg *config.Config, appLogger *zap.Logger) (repositories, *sqlx.DB) {
	if cfg.Storage.Driver == "memory" {
		appLogger.Warn("Using in-memory storage, data is lost on exit")
		store := memstore.New()
		return repositories{inventory: store, warehouse: store, replen: store, tx: store}, nil
	}

	db, err := database.NewPostgres(&database.Config{
		Host:            cfg.Postgres.Host,
		Port:            cfg.Postgres.Port,
		User:            cfg.Postgres.User,
		Password:        cfg.Postgres.Password,
		DBName:          cfg.Postgres.DBName,
		SSLMode:         cfg.Postgres.SSLMode,
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Postgres.ConnMaxLifetime) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.Postgres.ConnMaxIdleTime) * time.Second,
	})
	if err != nil {
		appLogger.Fatal("Could not connect to database", zap.Error(err))
	}
	appLogger.Info("Connected to PostgreSQL database", zap.String("db_name", cfg.Postgres.DBName))

	if cfg.Storage.AutoMigrate {
		if err := database.Migrate(context.Background(), db); err != nil {
			appLogger.Fatal("Could not migrate database", zap.Error(err))
		}
	}

	return repositories{
		inventory: invRepoPkg.NewPGRepository(db),
		warehouse: whRepoPkg.NewPGRepository(db),
		replen:    replenRepoPkg.NewPGRepository(db),
		tx:        database.NewTxManager(db),
	}, db
}
