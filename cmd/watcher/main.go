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

	"standings/internal/watcher"
	"standings/pkg/changestream"
	"standings/pkg/checkpoint"
	"standings/pkg/config"
	"standings/pkg/logger"
	"standings/pkg/producer"
	"standings/pkg/retry"
	"standings/pkg/server"
	"standings/pkg/store"
)

func main() {
	configPath := flag.String("config", "", "optional config file")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load(*configPath, "watcher")
	if err == nil {
		err = cfg.RequireKafka()
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

	l.Info("watcher service initializing", zap.String("env", cfg.Environment))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Initialize MongoDB
	client, err := store.Connect(ctx, cfg.MongoDB.URI, cfg.MongoDB.ConnectTimeout, l)
	if err != nil {
		l.Error("failed to connect to mongodb", err)
		os.Exit(1)
	}
	defer client.Disconnect(context.Background())

	mongoStore := store.NewMongoStore(client.Database(cfg.MongoDB.Database))
	if err := mongoStore.EnsureIndexes(ctx); err != nil {
		l.Error("failed to create indexes", err)
		os.Exit(1)
	}
	if err := mongoStore.EnablePreImages(ctx); err != nil {
		l.Warn("deletes will not carry their group", zap.Error(err))
	}
	matches := mongoStore.Matches()

	obsServer := server.New(cfg.HTTP.MetricsAddr, l)
	obsServer.AddCheck("mongodb", func(ctx context.Context) error {
		return client.Ping(ctx, readpref.Primary())
	})

	// 4. Checkpoint in Redis when configured, otherwise on local disk
	var cp checkpoint.Store = checkpoint.NewFile(cfg.Watcher.CheckpointPath)
	if cfg.RedisEnabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		key := cfg.Watcher.CheckpointKey
		if key == "" {
			key = cfg.Redis.Prefix + ":watcher:resume-token"
		}
		cp = checkpoint.NewRedis(rdb, key)
		obsServer.AddCheck("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}

	go func() {
		if err := obsServer.Start(); err != nil {
			l.Error("observability server failed", err)
		}
	}()

	// 5. Forward changes, reopening the stream from the last checkpoint when it drops
	opts := retry.DefaultOptions()
	opts.MaxAttempts = 10
	err = retry.Do(ctx, opts, func(ctx context.Context) error {
		svc := watcher.NewService(l, cp,
			producer.NewKafkaProducer(producer.Config{
				Brokers:     cfg.Kafka.Brokers,
				Topic:       cfg.Kafka.Topic,
				ErrorLogger: l.Named("kafka"),
			}),
			changestream.NewMongoWatcher(matches))
		defer func() {
			if err := svc.Stop(context.Background()); err != nil {
				l.Error("error during service stop", err)
			}
		}()

		l.Info("watcher service starting")
		err := svc.Start(ctx)
		if err != nil && ctx.Err() == nil {
			l.Warn("watcher service interrupted", zap.Error(err))
		}
		return err
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		l.Error("watcher service failed", err)
	} else {
		l.Info("watcher service stopping")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = obsServer.Shutdown(shutdownCtx)
}
