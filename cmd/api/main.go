package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"todo-system/config"
	"todo-system/internal/events"
	"todo-system/internal/handler"
	"todo-system/internal/jsonplaceholder"
	"todo-system/internal/metrics"
	"todo-system/internal/outbox"
	"todo-system/internal/redis"
	"todo-system/internal/repository"
	"todo-system/internal/server"
	"todo-system/internal/services"
	"todo-system/internal/storage"
	"todo-system/internal/tracing"
	"todo-system/internal/websocket"
	"todo-system/pkg/database"
	"todo-system/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.New("release").Errorf("Invalid configuration: %v", err)
		os.Exit(1)
	}

	l := logger.New(cfg.AppMode)
	logger.SetGlobalLogger(l)
	defer l.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, l); err != nil {
		l.Errorf("Server exited with error: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, l *logger.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		ServiceName: "todo-system-api",
		Exporter:    cfg.TracingExporter,
		ZipkinURL:   cfg.TracingZipkinURL,
		SampleRatio: cfg.TracingSampleRatio,
	}, l)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			l.Warnf("Flushing spans failed: %v", err)
		}
	}()

	db, err := database.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	applied, err := database.Migrate(ctx, db, database.Migrations())
	if err != nil {
		return err
	}
	for _, v := range applied {
		l.Info(ctx, "migration applied", zap.String("version", v))
	}

	store := repository.NewStore(db)
	m := metrics.New()

	redis.Initialize(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	rdb := redis.GetClient()
	defer rdb.Close()
	checkRedis(ctx, rdb, l)

	publisher := redis.NewPublisher(rdb)
	subscriber := redis.NewSubscriber(rdb)
	cache := redis.NewCacheStore(rdb, cfg.ExternalCacheTTL())
	limiter := redis.NewRateLimiter(rdb, redis.RateLimitConfig{
		Limit:  cfg.RateLimitRequests,
		Window: time.Duration(cfg.RateLimitWindowSec) * time.Second,
	})

	broker, err := newBroker(cfg, publisher, subscriber, l)
	if err != nil {
		return err
	}
	if broker != nil {
		defer broker.Close()
	}

	var eventPublisher events.EventPublisher = events.NewNoopEventPublisher(l)
	if broker != nil {
		eventPublisher = events.NewBrokerEventPublisher(broker, cfg.EventTopic, l, m)
	}

	authService := services.NewAuthService(store.Users, services.NewBcryptHasher(cfg.BcryptCost), services.NewAuthConfig(cfg), l)
	todoService := services.NewTodoService(db, store.Todos, store.Outbox, l)

	upstream := jsonplaceholder.NewClient(jsonplaceholder.Config{
		BaseURL:    cfg.ExternalAPIBaseURL,
		Timeout:    time.Duration(cfg.ExternalAPITimeoutSec) * time.Second,
		RetryCount: cfg.ExternalAPIRetryCount,
		UserAgent:  cfg.ExternalAPIUserAgent,
	}, l)
	externalAPI := services.NewCachedExternalTodoAPI(upstream, cache, cfg.ExternalCacheTTL(), m, l)
	externalService := services.NewExternalTodoService(externalAPI, eventPublisher, l)

	var objectStore services.ObjectStore
	if cfg.S3Bucket != "" {
		s3Client, err := storage.NewClient(ctx, storage.S3Config{
			Region:     cfg.S3Region,
			Bucket:     cfg.S3Bucket,
			AccessKey:  cfg.S3AccessKey,
			SecretKey:  cfg.S3SecretKey,
			Endpoint:   cfg.S3Endpoint,
			PresignTTL: time.Duration(cfg.S3PresignTTLMin) * time.Minute,
		})
		if err != nil {
			return err
		}
		objectStore = s3Client
	} else {
		l.Warnf("S3_BUCKET is not set, todo export is disabled")
	}
	exportService := services.NewExportService(todoService, objectStore, l)

	hub := websocket.NewHub(m, l)

	var wg sync.WaitGroup
	background := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			supervise(ctx, name, fn, l)
		}()
	}

	background("hub", func(ctx context.Context) error {
		hub.Run(ctx)
		return nil
	})
	background("outbox", func(ctx context.Context) error {
		outbox.DefaultProcessor(store.Outbox, publisher, m, l).Run(ctx)
		return nil
	})
	background("redis-bridge", websocket.NewRedisBridge(subscriber, hub).Run)
	if broker != nil {
		consumer := events.NewConsumer(broker, cfg.EventTopic, cfg.EventConsumerGroup, l, m,
			hub.EventForwarder(websocket.ChannelExternalTodos))
		background("consumer", consumer.Run)
	}

	srv := server.New(cfg, l)
	srv.SetupRoutes(&server.Handlers{
		Auth:          handler.NewAuthHandler(authService, l),
		Todos:         handler.NewTodoHandler(todoService, l),
		ExternalTodos: handler.NewExternalTodoHandler(externalService, l),
		Export:        handler.NewExportHandler(exportService, l),
		WebSocket:     websocket.NewHandler(authService, hub, cfg.AuthTrustedOrigins, l),
	}, server.Dependencies{
		Auth:    authService,
		Limiter: limiter,
		Metrics: m,
	})

	err = srv.Start(ctx)
	cancel()
	wg.Wait()
	return err
}

func newBroker(cfg *config.Config, publisher *redis.Publisher, subscriber *redis.Subscriber, l *logger.Logger) (events.Broker, error) {
	switch cfg.EventBroker {
	case "nats":
		return events.NewNATSBroker(events.NATSConfig{URL: cfg.NATSURL, Name: "todo-system"}, l)
	case "none":
		return nil, nil
	default:
		return events.NewRedisBroker(publisher, subscriber, l), nil
	}
}
