package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log        LogConfig        `yaml:"log"`
	Stream     StreamConfig     `yaml:"stream"`
	Shipper    ShipperConfig    `yaml:"shipper"`
	TokenStore TokenStoreConfig `yaml:"token_store"`
	Transport  TransportConfig  `yaml:"transport"`
	Filter     FilterConfig     `yaml:"filter"`
	Sink       SinkConfig       `yaml:"sink"`
	Processor  ProcessorConfig  `yaml:"processor"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// StreamConfig identifies the one log stream a shipper appends to.
type StreamConfig struct {
	Group  string `yaml:"group"`
	Stream string `yaml:"stream"`
}

type ShipperConfig struct {
	MaxRetries int `yaml:"max_retries"`
	BatchSize  int `yaml:"batch_size"`
}

type TokenStoreConfig struct {
	// Driver is one of memory, file, redis, sqlite, pebble.
	Driver string      `yaml:"driver"`
	Path   string      `yaml:"path"`
	Redis  RedisConfig `yaml:"redis"`
}

type TransportConfig struct {
	// Kind is one of cloudwatch, http.
	Kind       string           `yaml:"kind"`
	Timeout    time.Duration    `yaml:"timeout"`
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
	HTTP       HTTPConfig       `yaml:"http"`
}

type CloudWatchConfig struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type HTTPConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

type FilterConfig struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

type SinkConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Heads     string          `yaml:"heads"`
	Auth      AuthConfig      `yaml:"auth"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	GeoIP     GeoIPConfig     `yaml:"geoip"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type ServerConfig struct {
	GRPCPort int `yaml:"grpc_port"`
	HTTPPort int `yaml:"http_port"`
}

type AuthConfig struct {
	Enabled bool `yaml:"enabled"`
}

type KafkaConfig struct {
	Brokers       []string          `yaml:"brokers"`
	Topics        map[string]string `yaml:"topics"`
	ConsumerGroup string            `yaml:"consumer_group"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type GeoIPConfig struct {
	DatabasePath string `yaml:"database_path"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	Burst             int `yaml:"burst"`
}

type ProcessorConfig struct {
	Kafka      KafkaConfig      `yaml:"kafka"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Batch      BatchConfig      `yaml:"batch"`
}

type ClickHouseConfig struct {
	Addr         string `yaml:"addr"`
	Database     string `yaml:"database"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type BatchConfig struct {
	Size          int           `yaml:"size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	// Shipper defaults
	if cfg.Shipper.MaxRetries == 0 {
		cfg.Shipper.MaxRetries = 3
	}
	if cfg.Shipper.BatchSize == 0 {
		cfg.Shipper.BatchSize = 100
	}
	if cfg.TokenStore.Driver == "" {
		cfg.TokenStore.Driver = "file"
	}
	if cfg.TokenStore.Path == "" {
		cfg.TokenStore.Path = ".perfship/tokens.json"
	}
	if cfg.Transport.Kind == "" {
		cfg.Transport.Kind = "cloudwatch"
	}
	if cfg.Transport.Timeout == 0 {
		cfg.Transport.Timeout = 10 * time.Second
	}

	// Sink defaults
	if cfg.Sink.Server.HTTPPort == 0 {
		cfg.Sink.Server.HTTPPort = 8080
	}
	if cfg.Sink.Server.GRPCPort == 0 {
		cfg.Sink.Server.GRPCPort = 9090
	}
	if cfg.Sink.Heads == "" {
		cfg.Sink.Heads = "memory"
	}
	if cfg.Sink.RateLimit.RequestsPerSecond == 0 {
		cfg.Sink.RateLimit.RequestsPerSecond = 50
	}

	// Processor defaults
	if cfg.Processor.Batch.Size == 0 {
		cfg.Processor.Batch.Size = 1000
	}
	if cfg.Processor.Batch.FlushInterval == 0 {
		cfg.Processor.Batch.FlushInterval = 5 * time.Second
	}
	if cfg.Processor.ClickHouse.MaxOpenConns == 0 {
		cfg.Processor.ClickHouse.MaxOpenConns = 10
	}
	if cfg.Processor.ClickHouse.MaxIdleConns == 0 {
		cfg.Processor.ClickHouse.MaxIdleConns = 5
	}
}
