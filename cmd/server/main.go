package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nairobikonnect/konnect/internal/adapter/events"
	"github.com/nairobikonnect/konnect/internal/adapter/handler"
	"github.com/nairobikonnect/konnect/internal/adapter/provider"
	"github.com/nairobikonnect/konnect/internal/adapter/storage"
	"github.com/nairobikonnect/konnect/internal/auth"
	"github.com/nairobikonnect/konnect/internal/config"
	"github.com/nairobikonnect/konnect/internal/core/domain"
	"github.com/nairobikonnect/konnect/internal/core/service"
	"github.com/nairobikonnect/konnect/internal/metrics"
	"github.com/nairobikonnect/konnect/internal/port"
	"github.com/nairobikonnect/konnect/pkg/logger"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.ServiceName, cfg.LogLevel)
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize MySQL
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal("failed to connect mysql", zap.Error(err))
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatal("failed to ping mysql", zap.Error(err))
	}
	if err := storage.Migrate(ctx, db); err != nil {
		log.Fatal("failed to migrate schema", zap.Error(err))
	}
	log.Info("connected to mysql")

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("failed to connect redis", zap.Error(err))
	}
	log.Info("connected to redis")

	// Initialize RabbitMQ publisher
	publisher, err := events.NewPublisher(cfg.RabbitMQURL, log)
	if err != nil {
		log.Fatal("failed to connect rabbitmq", zap.Error(err))
	}

	// Initialize adapters
	mysqlAdapter := storage.NewMySQLAdapter(db)
	redisAdapter := storage.NewRedisAdapter(rdb)
	daraja := provider.NewDaraja(provider.DarajaConfig{
		BaseURL:     cfg.ProviderBaseURL,
		AppKey:      cfg.ProviderAppKey,
		AppSecret:   cfg.ProviderAppSecret,
		ShortCode:   cfg.ProviderShortCode,
		Passkey:     cfg.ProviderPasskey,
		CallbackURL: cfg.ProviderCallbackURL,
		Timeout:     cfg.ProviderTimeout,
	}, log)

	// Identity: sessions live in Redis; seed the bootstrap admin if configured.
	identity := auth.NewRedisIdentity(rdb)
	if cfg.AdminToken != "" {
		if err := identity.Grant(ctx, cfg.AdminToken, "admin", auth.RoleAdmin, 0); err != nil {
			log.Fatal("failed to seed admin session", zap.Error(err))
		}
		log.Info("seeded bootstrap admin session")
	}

	// Initialize services
	queue := service.NewEventQueue(cfg.EventQueueSize)
	metrics.RegisterQueueDepth(queue.Depth)
	reservations := service.NewReservationService(mysqlAdapter, redisAdapter, queue, log)
	payments := service.NewPaymentService(mysqlAdapter, daraja, queue, log)

	// Start event workers
	var wg sync.WaitGroup
	for i := 0; i < cfg.EventWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			eventLoop(id, queue.C(), publisher, log)
		}(i)
	}
	log.Info("started event workers", zap.Int("count", cfg.EventWorkers))

	// Start expiry reaper
	reaper := service.NewReaper(reservations, cfg.ReaperInterval, cfg.ReservationTTL, cfg.ReaperBatch, log)
	go reaper.Run(ctx)

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(reservations, payments, log)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpHandler.Routes(identity),
	}

	go func() {
		log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Error("http server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	log.Info("http server stopped")

	// Stop the reaper, then drain the event queue
	cancel()
	queue.Close()
	wg.Wait()
	log.Info("event workers stopped")

	publisher.Close()
	rdb.Close()
	db.Close()
	log.Info("connections closed")
}

func eventLoop(id int, queue <-chan domain.Event, publisher port.EventPublisher, log *zap.Logger) {
	for ev := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

		if err := publisher.Publish(ctx, ev); err != nil {
			log.Warn("failed to publish event",
				zap.Int("worker", id),
				zap.String("event_type", string(ev.Type)),
				zap.String("event_id", ev.ID),
				zap.Error(err))
		}

		cancel()
	}
}
