package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"standings/internal/projector"
	"standings/internal/standings"
	"standings/pkg/cache"
	"standings/pkg/config"
	"standings/pkg/consumer"
	"standings/pkg/logger"
	"standings/pkg/server"
	"standings/pkg/snapshot"
	"standings/pkg/store"
	"standings/pkg/worker"
)

func main() {
	configPath := flag.String("config", "", "optional config file")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load(*configPath, "projector")
	if err == nil {
		err = errors.Join(cfg.RequireKafka(), cfg.RequirePostgres())
	}
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	l, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Environment,
		ServiceName: cfg.ServiceName,
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer l.Sync()

	l.Info("projector service initializing", zap.String("env", cfg.Environment))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Initialize MongoDB and PostgreSQL
	client, err := store.Connect(ctx, cfg.MongoDB.URI, cfg.MongoDB.ConnectTimeout, l)
	if err != nil {
		l.Error("failed to connect to mongodb", err)
		os.Exit(1)
	}
	defer client.Disconnect(context.Background())

	pgWriter, err := snapshot.NewPostgresWriter(ctx, snapshot.PostgresConfig{
		URI:      cfg.Postgres.URI,
		MinConns: int32(cfg.Postgres.MinConns),
		MaxConns: int32(cfg.Postgres.MaxConns),
	}, l)
	if err != nil {
		l.Error("failed to connect to postgres", err)
		os.Exit(1)
	}
	defer pgWriter.Close()

	obsServer := server.New(cfg.HTTP.MetricsAddr, l)
	obsServer.AddCheck("mongodb", func(ctx context.Context) error {
		return client.Ping(ctx, readpref.Primary())
	})
	obsServer.AddCheck("postgres", pgWriter.Ping)

	// 4. The cache the API reads; only a shared Redis cache can be invalidated from here
	var backend cache.Backend = cache.NewMemory()
	if cfg.RedisEnabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		backend = cache.NewRedis(rdb, cfg.Redis.Prefix)
		obsServer.AddCheck("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	} else {
		l.Warn("redis not configured, API caches expire on their own ttl")
	}
	resultCache := cache.New(backend, cache.TTLs{
		cache.ClassEvent:    cfg.Cache.EventTTL,
		cache.ClassSchedule: cfg.Cache.ScheduleTTL,
		cache.ClassMatch:    cfg.Cache.MatchTTL,
	}, l)
	svc := standings.NewService(l, store.NewMongoStore(client.Database(cfg.MongoDB.Database)), resultCache)

	// 5. Initialize consumer and worker pool
	kafkaConsumer := consumer.NewKafkaConsumer(consumer.Config{
		Brokers:     cfg.Kafka.Brokers,
		Topic:       cfg.Kafka.Topic,
		GroupID:     cfg.Kafka.GroupID,
		ErrorLogger: l.Named("kafka"),
	})

	workerPool := worker.NewWorkerPool(l, projector.NewRebuilder(svc, pgWriter, l), kafkaConsumer, worker.Config{
		Workers:       cfg.Projector.WorkerCount,
		BatchSize:     cfg.Projector.BatchSize,
		FlushInterval: cfg.Projector.FlushInterval,
	})

	go func() {
		if err := obsServer.Start(); err != nil {
			l.Error("observability server failed", err)
		}
	}()

	// 6. Start service
	l.Info("projector service starting")
	if err := projector.NewService(l, kafkaConsumer, workerPool, svc).Start(ctx); err != nil {
		l.Error("projector service failed", err)
	} else {
		l.Info("projector service stopping")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = obsServer.Shutdown(shutdownCtx)
}
