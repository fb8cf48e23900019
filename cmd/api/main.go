package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"standings/internal/api"
	"standings/internal/standings"
	"standings/pkg/cache"
	"standings/pkg/config"
	"standings/pkg/logger"
	"standings/pkg/ratelimit"
	"standings/pkg/retry"
	"standings/pkg/server"
	"standings/pkg/store"
)

func main() {
	configPath := flag.String("config", "", "optional config file")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load(*configPath, "api")
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

	l.Info("api service initializing", zap.String("env", cfg.Environment))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, l); err != nil {
		l.Error("api service failed", err)
		os.Exit(1)
	}
	l.Info("api service stopped")
}

func run(ctx context.Context, cfg *config.AppConfig, l *logger.Logger) error {
	// 3. Initialize MongoDB
	client, err := store.Connect(ctx, cfg.MongoDB.URI, cfg.MongoDB.ConnectTimeout, l)
	if err != nil {
		return err
	}
	defer client.Disconnect(context.Background())

	mongoStore := store.NewMongoStore(client.Database(cfg.MongoDB.Database))
	if err := mongoStore.EnsureIndexes(ctx); err != nil {
		return err
	}

	obsServer := server.New(cfg.HTTP.MetricsAddr, l)
	obsServer.AddCheck("mongodb", func(ctx context.Context) error {
		return client.Ping(ctx, readpref.Primary())
	})

	g, gctx := errgroup.WithContext(ctx)

	// 4. Cache and limiter, shared through Redis when configured
	var (
		backend cache.Backend
		limiter ratelimit.Limiter
	)
	if cfg.RedisEnabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := retry.Do(ctx, retry.DefaultOptions(), func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}); err != nil {
			return fmt.Errorf("failed to reach redis: %w", err)
		}
		obsServer.AddCheck("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})

		backend = cache.NewRedis(rdb, cfg.Redis.Prefix)
		limiter = ratelimit.NewRedisWindow(rdb, cfg.Redis.Prefix, cfg.RateLimit.Window, cfg.RateLimit.MaxRequests)
		l.Info("using redis for cache and rate limits", zap.String("addr", cfg.Redis.Addr))
	} else {
		mem := cache.NewMemory()
		window := ratelimit.NewFixedWindow(cfg.RateLimit.Window, cfg.RateLimit.MaxRequests)
		g.Go(func() error {
			mem.Run(gctx, cfg.Cache.SweepInterval)
			return nil
		})
		g.Go(func() error {
			window.Run(gctx, cfg.RateLimit.SweepInterval)
			return nil
		})
		backend = mem
		limiter = window
		l.Info("using in-process cache and rate limits")
	}

	resultCache := cache.New(backend, cache.TTLs{
		cache.ClassEvent:    cfg.Cache.EventTTL,
		cache.ClassSchedule: cfg.Cache.ScheduleTTL,
		cache.ClassMatch:    cfg.Cache.MatchTTL,
	}, l)

	// 5. Service and router
	svc := standings.NewService(l, mongoStore, resultCache)
	router := api.NewRouter(api.NewHandler(svc, l), api.RouterConfig{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Limiter:        limiter,
		RequestTimeout: cfg.HTTP.RequestTimeout,
	}, l)

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.HTTP.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 6. Serve until the signal context ends
	g.Go(func() error {
		l.Info("api server starting", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(obsServer.Start)
	g.Go(func() error {
		<-gctx.Done()
		l.Info("api service stopping")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return errors.Join(httpServer.Shutdown(shutdownCtx), obsServer.Shutdown(shutdownCtx))
	})

	return g.Wait()
}
