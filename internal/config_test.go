package internal

import (
	"testing"
	"time"

	"github.com/Netflix/go-env"
	"github.com/stretchr/testify/require"
)

func TestConfig_Defaults(t *testing.T) {
	req := require.New(t)
	var config Config

	_, err := env.UnmarshalFromEnviron(&config)
	req.NoError(err)

	req.Equal(20*time.Second, config.PresenceGracePeriod)
	req.Equal(BackendBadger, config.StoreBackend)
	req.NoError(config.Validate())
	req.Empty(config.Brokers())
}

func TestConfig_FromEnvironment(t *testing.T) {
	req := require.New(t)
	t.Setenv("PRESENCE_GRACE_PERIOD", "3s")
	t.Setenv("STORE_BACKEND", "mongo")
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, ,kafka-2:9092")
	var config Config

	_, err := env.UnmarshalFromEnviron(&config)
	req.NoError(err)

	req.Equal(3*time.Second, config.PresenceGracePeriod)
	req.NoError(config.Validate())
	req.Equal([]string{"kafka-1:9092", "kafka-2:9092"}, config.Brokers())
}

func TestConfig_Validate(t *testing.T) {
	req := require.New(t)
	config := Config{StoreBackend: "postgres", ConnectionBufferSize: 1, EventBufferSize: 1}
	req.Error(config.Validate())

	config.StoreBackend = BackendMongo
	req.Error(config.Validate())

	config.MongoURI = "mongodb://localhost"
	req.NoError(config.Validate())

	config.ConnectionBufferSize = 0
	req.Error(config.Validate())
}
