package main

import (
	"context"
	"fmt"
	"helpdesk-chat/auth"
	"helpdesk-chat/contract"
	"helpdesk-chat/domain/event"
	grpcinfra "helpdesk-chat/infrastructure/grpc"
	"helpdesk-chat/infrastructure/storage"
	"helpdesk-chat/infrastructure/ws"
	"helpdesk-chat/internal"
	"helpdesk-chat/observability"
	"helpdesk-chat/runtime"
	"helpdesk-chat/runtime/workers"
	"helpdesk-chat/services"
	"helpdesk-chat/session"
	"helpdesk-chat/sink"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const shutdownTimeout = 5 * time.Second

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Helpdesk chat terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and blocks until a signal or a server failure.
// Deferred closes run before the exit code reaches main.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Message store
	store, err := openStore(ctx, config, log)
	if err != nil {
		return exitRuntime, err
	}
	defer store.close()
	repository := storage.NewBreakerRepository(store.messages, log, config.BreakerMaxFailures, config.BreakerOpenTimeout)

	// 3. Presence, delivery and sessions
	events := make(chan event.DomainEvent, config.EventBufferSize)
	registry := runtime.NewRegistry()
	hub := runtime.NewHub(log)
	delivery := services.NewDeliveryService(log, repository, registry, events)
	handler := session.NewHandler(log, registry, hub, delivery, events, config.PresenceGracePeriod)
	defer handler.Shutdown()

	// 4. Sinks & supervised workers
	metrics := observability.NewMonitoringManager(log)
	sinks, closeSinks := buildSinks(ctx, config, log, metrics)
	defer closeSinks()

	health := grpcinfra.NewHealthServer(log)
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(
		workers.NewEventFanout(log, events, config.SinkTimeout, sinks...),
		workers.NewChannelCapacityWorker(log, []workers.NamedChannel{
			{Name: "domain_events", Channel: events},
		}, metrics, config.StatsInterval),
		workers.NewHealthMonitoringWorker(log, health, config.HealthInterval, map[string]workers.Probe{
			"message_store": repository.Available,
		}),
	)
	supDone := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supDone)
	}()

	metrics.RegisterGauge("online_users", func() int64 { return int64(registry.Len()) })
	metrics.RegisterGauge("connections", func() int64 { return int64(hub.Len()) })
	metrics.RegisterGauge("pending_evictions", func() int64 { return int64(handler.PendingEvictions()) })
	metrics.RegisterGauge("worker_restarts", sup.Restarts)
	go metrics.Listen(ctx, config.StatsInterval)

	if store.db != nil && log.Enabled(ctx, slog.LevelDebug) {
		url := fmt.Sprintf("http://localhost:%d/inspect", config.DebugPort)
		log.Info("Debug Badger inspector available", "url", url)
		database.StartDebugServer(store.db, config.DebugPort, "/inspect", MessageMapper)
	}

	// 5. Servers
	var authenticator *auth.Authenticator
	if config.AuthSecret != "" {
		authenticator = auth.NewAuthenticator(config.AuthSecret)
	} else {
		log.Warn("AUTH_SECRET is empty, websocket connections are not authenticated")
	}
	server := ws.NewServer(ctx, log, handler, ws.Config{
		BufferSize:     config.ConnectionBufferSize,
		WriteTimeout:   config.WriteTimeout,
		PingInterval:   config.PingInterval,
		MaxMessageSize: int64(config.MaxMessageSize),
		RatePerSecond:  config.RateLimitPerSecond,
		RateBurst:      config.RateLimitBurst,
	}, authenticator, metrics, func() any { return metrics.GetLatest() })

	grpcAddress := fmt.Sprintf("%s:%d", config.Host, config.GrpcPort)
	listener, err := net.Listen("tcp", grpcAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", grpcAddress, err)
	}

	// Use an error channel to capture Serve() issues
	errChan := make(chan error, 2)
	go func() {
		if err := health.Serve(listener); err != nil {
			errChan <- err
		}
	}()
	go func() {
		if err := server.Listen(fmt.Sprintf("%s:%d", config.Host, config.Port)); err != nil {
			errChan <- err
		}
	}()

	// 6. Wait for Stop or Error
	code := exitOK
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err = <-errChan:
		log.Error("Server failed, shutting down", "error", err)
		code = exitRuntime
	}

	// 7. Final Cleanup
	stop()
	if shutdownErr := server.Shutdown(shutdownTimeout); shutdownErr != nil {
		log.Warn("Websocket server shutdown", "error", shutdownErr)
	}
	sup.Stop()
	<-supDone
	health.Stop()
	log.Info("Program stopped cleanly")
	return code, err
}

type messageStore struct {
	messages contract.IMessageRepository
	db       *badger.DB
	close    func()
}

func openStore(ctx context.Context, config internal.Config, log *slog.Logger) (messageStore, error) {
	switch config.StoreBackend {
	case internal.BackendMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(config.MongoURI))
		if err != nil {
			return messageStore{}, fmt.Errorf("mongo connection failed: %w", err)
		}
		closeClient := func() {
			log.Info("Closing MongoDB client...")
			_ = client.Disconnect(context.Background())
		}
		db := client.Database(config.MongoDatabase)
		users := storage.NewMongoUserRepository(db)
		messages, err := storage.NewMongoMessageRepository(ctx, db, log, users, config.MaxContentLength)
		if err != nil {
			closeClient()
			return messageStore{}, err
		}
		return messageStore{messages: messages, close: closeClient}, nil
	default:
		db, err := badger.Open(buildBadgerOpts(ctx, config, log))
		if err != nil {
			return messageStore{}, fmt.Errorf("database opening failed: %w", err)
		}
		users := storage.NewUserRepository(db)
		return messageStore{
			messages: storage.NewMessageRepository(db, log, users, config.MaxContentLength),
			db:       db,
			close: func() {
				// Releases the database lock and flushes buffers
				log.Info("Closing BadgerDB...")
				_ = db.Close()
			},
		}, nil
	}
}

func buildBadgerOpts(ctx context.Context, config internal.Config, log *slog.Logger) badger.Options {
	opts := badger.DefaultOptions(config.BadgerFilepath)
	if log.Enabled(ctx, slog.LevelDebug) {
		return opts.WithLoggingLevel(badger.DEBUG)
	}
	return opts.WithLoggingLevel(badger.WARNING)
}

// buildSinks always returns the audit and metrics sinks; kafka and redis are
// added when configured. Unreachable brokers only degrade the side effects.
func buildSinks(ctx context.Context, config internal.Config, log *slog.Logger,
	metrics *observability.MonitoringManager) ([]contract.EventSink, func()) {
	sinks := []contract.EventSink{sink.NewAuditSink(log), metrics}
	var closers []func()

	if brokers := config.Brokers(); len(brokers) > 0 {
		kafkaSink := sink.NewKafkaSink(log, brokers, config.KafkaTopic)
		sinks = append(sinks, kafkaSink)
		closers = append(closers, func() { _ = kafkaSink.Close() })
		log.Info("Kafka sink enabled", "brokers", strings.Join(brokers, ","), "topic", config.KafkaTopic)
	}

	if config.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     config.RedisAddr,
			Password: config.RedisPassword,
			DB:       config.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, config.SinkTimeout)
		if err := client.Ping(pingCtx).Err(); err != nil {
			log.Warn("Redis unreachable, presence mirror will retry on each change", "addr", config.RedisAddr, "error", err)
		}
		cancel()
		sinks = append(sinks, sink.NewPresenceSink(log, client, config.RedisPrefix))
		closers = append(closers, func() { _ = client.Close() })
		log.Info("Redis presence mirror enabled", "addr", config.RedisAddr)
	}

	return sinks, func() {
		for _, closeSink := range closers {
			closeSink()
		}
	}
}

// MessageMapper renders "msg:" values in the badger inspector.
func MessageMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)
	if !strings.HasPrefix(key, "msg:") {
		return row
	}
	message, err := storage.DecodeMessage(val)
	if err != nil {
		row.Detail = "Error: decode failed"
		return row
	}
	row.Detail = fmt.Sprintf("%s -> %s [%s]", message.Sender, message.Receiver, message.Status)
	return row
}
