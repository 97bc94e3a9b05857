package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
)

const (
	BackendBadger = "badger"
	BackendMongo  = "mongo"
)

type Config struct {
	Host      string `env:"HOST,default=0.0.0.0"`
	Port      int    `env:"PORT,default=3000"`
	GrpcPort  int    `env:"GRPC_PORT,default=3001"`
	DebugPort int    `env:"DEBUG_PORT,default=8081"`
	LogLevel  string `env:"LOG_LEVEL,default=INFO"`

	StoreBackend   string `env:"STORE_BACKEND,default=badger"`
	BadgerFilepath string `env:"BADGER_FILEPATH,default=./data/badger"`
	MongoURI       string `env:"MONGO_URI"`
	MongoDatabase  string `env:"MONGO_DATABASE,default=helpdesk"`

	PresenceGracePeriod  time.Duration `env:"PRESENCE_GRACE_PERIOD,default=20s"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	EventBufferSize      int           `env:"EVENT_BUFFER_SIZE,default=1024"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,default=2s"`
	WriteTimeout         time.Duration `env:"WRITE_TIMEOUT,default=10s"`
	PingInterval         time.Duration `env:"PING_INTERVAL,default=25s"`
	MaxMessageSize       int           `env:"MAX_MESSAGE_SIZE,default=65536"`
	MaxContentLength     int           `env:"MAX_CONTENT_LENGTH,default=4000"`
	RateLimitPerSecond   float64       `env:"RATE_LIMIT_PER_SECOND,default=20"`
	RateLimitBurst       int           `env:"RATE_LIMIT_BURST,default=40"`
	BreakerMaxFailures   uint32        `env:"BREAKER_MAX_FAILURES,default=5"`
	BreakerOpenTimeout   time.Duration `env:"BREAKER_OPEN_TIMEOUT,default=10s"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	HealthInterval       time.Duration `env:"HEALTH_INTERVAL,default=5s"`
	StatsInterval        time.Duration `env:"STATS_INTERVAL,default=1s"`

	AuthSecret string `env:"AUTH_SECRET"`

	KafkaBrokers  string `env:"KAFKA_BROKERS"`
	KafkaTopic    string `env:"KAFKA_TOPIC,default=helpdesk.chat.events"`
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB,default=0"`
	RedisPrefix   string `env:"REDIS_PREFIX,default=helpdesk:presence"`
}

// Validate checks the combinations go-env cannot express with tags.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case BackendBadger:
		if c.BadgerFilepath == "" {
			return fmt.Errorf("BADGER_FILEPATH is required with the badger backend")
		}
	case BackendMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required with the mongo backend")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendBadger, BackendMongo, c.StoreBackend)
	}
	if c.PresenceGracePeriod < 0 {
		return fmt.Errorf("PRESENCE_GRACE_PERIOD must not be negative, got %s", c.PresenceGracePeriod)
	}
	if c.ConnectionBufferSize <= 0 || c.EventBufferSize <= 0 {
		return fmt.Errorf("CONNECTION_BUFFER_SIZE and EVENT_BUFFER_SIZE must be positive")
	}
	return nil
}

// Brokers splits KAFKA_BROKERS on commas, ignoring blanks.
func (c Config) Brokers() []string {
	parts := lo.Map(strings.Split(c.KafkaBrokers, ","), func(s string, _ int) string {
		return strings.TrimSpace(s)
	})
	return lo.Compact(parts)
}
