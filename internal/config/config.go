package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	Broker         BrokerConfig
	Outbox         OutboxConfig
	CircuitBreaker CircuitBreakerConfig
	Monitor        MonitorConfig
	Inbox          InboxConfig
	Logging        LoggingConfig
	Tracing        TracingConfig
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Postgres       PostgresConfig
	Redis          RedisConfig
	RunMigrations  bool   `mapstructure:"run_migrations"`
	MigrationsPath string `mapstructure:"migrations_path"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type BrokerConfig struct {
	Type  string      `mapstructure:"type"`
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	GroupID string   `mapstructure:"group_id"`
}

type OutboxConfig struct {
	Backend       string        `mapstructure:"backend"`
	SQLitePath    string        `mapstructure:"sqlite_path"`
	LeaseDuration time.Duration `mapstructure:"lease_duration"`
	Drainer       DrainerConfig `mapstructure:"drainer"`
}

type DrainerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	BatchSize     int           `mapstructure:"batch_size"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
	PurgeAfter    time.Duration `mapstructure:"purge_after"`
}

type CircuitBreakerConfig struct {
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	RecoveryTimeout  time.Duration `mapstructure:"recovery_timeout"`
}

type MonitorConfig struct {
	RingCapacity   int           `mapstructure:"ring_capacity"`
	SampleInterval time.Duration `mapstructure:"sample_interval"`
}

type InboxConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}
