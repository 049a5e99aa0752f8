package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete configuration for pragma-node.
type Config struct {
	Mode     string         `yaml:"mode"`
	Offchain DatabaseConfig `yaml:"offchain_database"`
	Onchain  DatabaseConfig `yaml:"onchain_database"`
	Redis    RedisConfig    `yaml:"redis"`
	Queue    QueueConfig    `yaml:"queue"`
	API      APIConfig      `yaml:"api"`
	WS       WSConfig       `yaml:"ws"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Signer   SignerConfig   `yaml:"signer"`
}

// DatabaseConfig holds PostgreSQL connection settings for one pool.
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig holds Redis cache settings.
type RedisConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
}

// QueueConfig holds the ingest-queue producer settings.
type QueueConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// APIConfig holds the HTTP publish/query server settings.
type APIConfig struct {
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	CORSOrigins   []string      `yaml:"cors_origins"`
	PublishRate   int           `yaml:"publish_rate_per_second"`
	PublishBurst  int           `yaml:"publish_burst"`
	Timeout       time.Duration `yaml:"timeout"`
	ChainID       string        `yaml:"chain_id"`
}

// WSConfig holds the subscription-actor server settings.
type WSConfig struct {
	PacingInterval      time.Duration `yaml:"pacing_interval"`
	BytesPerIPPerSecond int           `yaml:"bytes_per_ip_per_second"`
	MaxPairsPerSocket   int           `yaml:"max_pairs_per_socket"`
}

// MetricsConfig holds the standalone metrics server settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// SignerConfig holds the process-wide Pragma signer settings.
type SignerConfig struct {
	PrivateKeyHex string `yaml:"private_key_hex"`
}

// LoadConfig loads configuration from a YAML file, then applies .env and
// process environment overrides.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if mode := os.Getenv("MODE"); mode != "" {
		c.Mode = mode
	}

	if dbHost := os.Getenv("DB_HOST"); dbHost != "" {
		c.Offchain.Host = dbHost
	}
	if dbPort := os.Getenv("DB_PORT"); dbPort != "" {
		fmt.Sscanf(dbPort, "%d", &c.Offchain.Port)
	}
	if dbUser := os.Getenv("DB_USER"); dbUser != "" {
		c.Offchain.User = dbUser
	}
	if dbPass := os.Getenv("DB_PASSWORD"); dbPass != "" {
		c.Offchain.Password = dbPass
	}
	if dbName := os.Getenv("DB_NAME"); dbName != "" {
		c.Offchain.Database = dbName
	}

	if onchainURL := os.Getenv("ONCHAIN_DB_HOST"); onchainURL != "" {
		c.Onchain.Host = onchainURL
	}

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		host, port, ok := splitHostPort(redisURL)
		if ok {
			c.Redis.Host = host
			c.Redis.Port = port
		}
	}
	if redisPass := os.Getenv("REDIS_PASSWORD"); redisPass != "" {
		c.Redis.Password = redisPass
	}

	if brokers := os.Getenv("QUEUE_BROKERS"); brokers != "" {
		c.Queue.Brokers = strings.Split(brokers, ",")
	}
	if topic := os.Getenv("QUEUE_TOPIC"); topic != "" {
		c.Queue.Topic = topic
	}

	if signerKey := os.Getenv("SIGNER_PRIVATE_KEY_HEX"); signerKey != "" {
		c.Signer.PrivateKeyHex = signerKey
	}
}

func splitHostPort(addr string) (string, int, bool) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return addr, 6379, true
	}
	port, err := strconv.Atoi(addr[idx+1:])
	if err != nil {
		return addr, 6379, false
	}
	return addr[:idx], port, true
}

// Validate checks required fields and fills in defaults for the rest.
func (c *Config) Validate() error {
	if c.Mode == "" {
		c.Mode = "dev"
	}

	if c.Offchain.Host == "" {
		return fmt.Errorf("offchain database host is required")
	}
	if c.Offchain.Port == 0 {
		return fmt.Errorf("offchain database port is required")
	}
	if c.Offchain.User == "" {
		return fmt.Errorf("offchain database user is required")
	}
	if c.Offchain.Database == "" {
		return fmt.Errorf("offchain database name is required")
	}
	if c.Offchain.MaxOpenConns <= 0 {
		c.Offchain.MaxOpenConns = 20
	}
	if c.Offchain.MaxIdleConns <= 0 {
		c.Offchain.MaxIdleConns = 5
	}

	// the onchain pool is optional; when unset, the routing resolver
	// falls back to the offchain pool for both legs.
	if c.Onchain.Host == "" {
		c.Onchain = c.Offchain
	}

	if c.Redis.Host == "" {
		return fmt.Errorf("redis host is required")
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Redis.PoolSize <= 0 {
		c.Redis.PoolSize = 10
	}
	if c.Redis.CacheTTL <= 0 {
		c.Redis.CacheTTL = 5 * time.Second
	}

	if c.Queue.Topic == "" {
		c.Queue.Topic = "pragma-data"
	}
	if len(c.Queue.Brokers) == 0 {
		return fmt.Errorf("at least one queue broker is required")
	}

	if c.API.Port == 0 {
		return fmt.Errorf("API port is required")
	}
	if c.API.PublishRate <= 0 {
		c.API.PublishRate = 50
	}
	if c.API.PublishBurst <= 0 {
		c.API.PublishBurst = 100
	}
	if c.API.Timeout <= 0 {
		c.API.Timeout = 10 * time.Second
	}
	if c.API.ChainID == "" {
		c.API.ChainID = "SN_MAIN"
	}

	if c.WS.PacingInterval <= 0 {
		c.WS.PacingInterval = 500 * time.Millisecond
	}
	if c.WS.BytesPerIPPerSecond <= 0 {
		c.WS.BytesPerIPPerSecond = 256 * 1024
	}
	if c.WS.MaxPairsPerSocket <= 0 {
		c.WS.MaxPairsPerSocket = 100
	}

	if c.Metrics.Enabled && c.Metrics.Port == 0 {
		return fmt.Errorf("metrics port is required when metrics are enabled")
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.Signer.PrivateKeyHex == "" {
		return fmt.Errorf("signer private key is required")
	}

	return nil
}

// GetConnectionString returns the PostgreSQL connection string for this pool.
func (c *DatabaseConfig) GetConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// GetRedisAddr returns the Redis connection address.
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
