package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Offchain: DatabaseConfig{Host: "localhost", Port: 5432, User: "pragma", Database: "pragma"},
		Redis:    RedisConfig{Host: "localhost"},
		Queue:    QueueConfig{Brokers: []string{"localhost:9092"}},
		API:      APIConfig{Port: 8080},
		Signer:   SignerConfig{PrivateKeyHex: "deadbeef"},
	}
}

func TestValidateFillsDefaults(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "dev", cfg.Mode)
	assert.Equal(t, 20, cfg.Offchain.MaxOpenConns)
	assert.Equal(t, 5, cfg.Offchain.MaxIdleConns)
	assert.Equal(t, cfg.Offchain, cfg.Onchain) // falls back when unset
	assert.Equal(t, 6379, cfg.Redis.Port)
	assert.Equal(t, 50, cfg.API.PublishRate)
	assert.Equal(t, 100, cfg.API.PublishBurst)
	assert.Equal(t, "SN_MAIN", cfg.API.ChainID)
	assert.Equal(t, "pragma-data", cfg.Queue.Topic)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)

	// ws defaults per spec: 500ms pacing, 256KiB/s, 100 pairs per socket.
	assert.Equal(t, int64(500*1000*1000), int64(cfg.WS.PacingInterval))
	assert.Equal(t, 256*1024, cfg.WS.BytesPerIPPerSecond)
	assert.Equal(t, 100, cfg.WS.MaxPairsPerSocket)
}

func TestValidateRequiresOffchainHost(t *testing.T) {
	cfg := validConfig()
	cfg.Offchain.Host = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateRequiresSignerKey(t *testing.T) {
	cfg := validConfig()
	cfg.Signer.PrivateKeyHex = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateRequiresQueueBrokers(t *testing.T) {
	cfg := validConfig()
	cfg.Queue.Brokers = nil
	assert.Error(t, cfg.Validate())
}

func TestApplyEnvOverrides(t *testing.T) {
	os.Setenv("MODE", "prod")
	os.Setenv("DB_HOST", "db.internal")
	os.Setenv("QUEUE_BROKERS", "broker-a:9092,broker-b:9092")
	os.Setenv("SIGNER_PRIVATE_KEY_HEX", "abc123")
	defer func() {
		os.Unsetenv("MODE")
		os.Unsetenv("DB_HOST")
		os.Unsetenv("QUEUE_BROKERS")
		os.Unsetenv("SIGNER_PRIVATE_KEY_HEX")
	}()

	cfg := &Config{}
	cfg.applyEnvOverrides()

	assert.Equal(t, "prod", cfg.Mode)
	assert.Equal(t, "db.internal", cfg.Offchain.Host)
	assert.Equal(t, []string{"broker-a:9092", "broker-b:9092"}, cfg.Queue.Brokers)
	assert.Equal(t, "abc123", cfg.Signer.PrivateKeyHex)
}

func TestGetConnectionString(t *testing.T) {
	db := DatabaseConfig{Host: "localhost", Port: 5432, User: "u", Password: "p", Database: "d"}
	assert.Equal(t, "host=localhost port=5432 user=u password=p dbname=d sslmode=disable", db.GetConnectionString())
}
