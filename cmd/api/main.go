package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"livex/config"
	"livex/internal/catalog"
	"livex/internal/handler"
	"livex/internal/middleware"
	"livex/internal/redis"
	"livex/internal/repository"
	"livex/internal/server"
	"livex/internal/services"
	"livex/internal/storage"
	"livex/internal/websocket"
	"livex/pkg/database"
	"livex/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.LoadConfig()

	l := logger.New(cfg.LogMode)
	logger.SetGlobalLogger(l)
	defer l.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, l); err != nil {
		l.Errorf("livex stopped: %v", err)
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg *config.Config, l *logger.Logger) error {
	checks := make(map[string]handler.Pinger)

	var redisClient *goredis.Client
	if cfg.AggregateBackend == config.AggregateRedis || cfg.FanoutMode == config.FanoutRedis {
		redisClient = redis.NewClient(redis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, redis.NewCircuitBreakerHook(l.Named("redis")))
		defer redisClient.Close()
		checks["redis"] = pingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	}

	eventLog, err := newEventLog(ctx, cfg, l, checks)
	if err != nil {
		return err
	}

	var store repository.AggregateStore
	switch cfg.AggregateBackend {
	case config.AggregateMemory:
		store = repository.NewMemoryAggregateStore(cfg.DefaultCurrency)
	default:
		store = redis.NewAggregateStore(redisClient, redis.AggregateStoreConfig{
			DefaultCurrency: cfg.DefaultCurrency,
			DedupeTTL:       cfg.EventDedupeTTL,
		})
	}

	registry := websocket.NewRegistry()
	dispatcher := websocket.NewDispatcher(registry, l)

	var notifier services.Notifier = dispatcher
	if cfg.FanoutMode == config.FanoutRedis {
		notifier = redis.NewUpdatePublisher(redis.NewPublisher(redisClient))
		bridge := websocket.NewRedisBridge(redis.NewSubscriber(redisClient), dispatcher, l)
		go func() {
			if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				l.Errorf("redis bridge stopped: %v", err)
			}
		}()
	}

	ingest := services.NewIngestService(eventLog, store, notifier, services.IngestConfig{}, l)
	widgets := services.NewWidgetService(store, notifier, l)

	if cfg.WidgetCatalog != "" {
		stopWatch, err := loadCatalog(ctx, cfg.WidgetCatalog, widgets, l)
		if err != nil {
			return err
		}
		defer stopWatch()
	}

	var limiter middleware.IngestLimiter
	if redisClient != nil && cfg.IngestRateLimit > 0 {
		rl := redis.DefaultRateLimitConfig()
		rl.IngestLimit = cfg.IngestRateLimit
		limiter = redis.NewRateLimiter(redisClient, rl)
	}

	srv := server.New(cfg, l)
	srv.SetupRoutes(&server.Handlers{
		Health: handler.NewHealthHandler(checks),
		Event:  handler.NewEventHandler(ingest),
		Widget: handler.NewWidgetHandler(widgets),
		WebSocket: websocket.NewHandler(registry, store, websocket.HandlerConfig{
			AllowedOrigins:  cfg.AllowedOrigins,
			DefaultCurrency: cfg.DefaultCurrency,
			SendBuffer:      cfg.SendBuffer,
		}, l),
	}, limiter)

	return srv.Start(ctx)
}

func newEventLog(ctx context.Context, cfg *config.Config, l *logger.Logger, checks map[string]handler.Pinger) (repository.EventLog, error) {
	switch cfg.EventLogBackend {
	case config.EventLogMemory:
		l.Warnf("event log is in memory; events are lost on restart")
		return repository.NewMemoryEventRepository(), nil
	case config.EventLogS3:
		client, err := storage.NewClient(ctx, storage.S3Config{
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Endpoint:  cfg.S3Endpoint,
		})
		if err != nil {
			return nil, err
		}
		checks["s3"] = client
		return repository.NewS3EventRepository(client), nil
	default:
		pool, err := database.Connect(ctx, cfg.DatabaseURL, l)
		if err != nil {
			return nil, err
		}
		if err := database.ApplyMigrations(ctx, pool, l); err != nil {
			pool.Close()
			return nil, err
		}
		checks["postgres"] = pool
		return repository.NewEventRepository(pool), nil
	}
}

func loadCatalog(ctx context.Context, path string, widgets *services.WidgetService, l *logger.Logger) (func(), error) {
	cl := l.Named("catalog")
	loader, err := catalog.NewLoader(path, cl)
	if err != nil {
		return nil, err
	}
	if failed := catalog.Apply(ctx, widgets, loader.Catalog(), cl); failed > 0 {
		cl.Warnf("%d catalog widgets could not be registered", failed)
	}
	loader.OnChange(func(c *catalog.Catalog) {
		catalog.Apply(ctx, widgets, c, cl)
	})
	return loader.Watch()
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }
