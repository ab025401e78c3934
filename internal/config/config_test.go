package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 9090
broker:
  type: kafka
  kafka:
    brokers:
      - localhost:9092
    group_id: bus-service
outbox:
  backend: sqlite
  sqlite_path: /tmp/outbox.db
  lease_duration: 45s
  drainer:
    interval: 10s
    batch_size: 25
circuitbreaker:
  failure_threshold: 7
  recovery_timeout: 15s
monitor:
  ring_capacity: 500
  sample_interval: 10s
logging:
  level: debug
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "kafka", cfg.Broker.Type)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Broker.Kafka.Brokers)
	assert.Equal(t, "sqlite", cfg.Outbox.Backend)
	assert.Equal(t, 45*time.Second, cfg.Outbox.LeaseDuration)
	assert.Equal(t, 10*time.Second, cfg.Outbox.Drainer.Interval)
	assert.Equal(t, 25, cfg.Outbox.Drainer.BatchSize)
	assert.Equal(t, uint32(7), cfg.CircuitBreaker.FailureThreshold)
	assert.Equal(t, 15*time.Second, cfg.CircuitBreaker.RecoveryTimeout)
	assert.Equal(t, 500, cfg.Monitor.RingCapacity)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfigFile(t, `
broker:
  type: channel
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Outbox.Backend)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateStatic(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server: ServerConfig{Port: 8080},
			Broker: BrokerConfig{Type: "channel"},
			Outbox: OutboxConfig{Backend: "sqlite"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr bool
	}{
		{
			name:   "channel broker",
			mutate: func(cfg *Config) {},
		},
		{
			name: "kafka with brokers",
			mutate: func(cfg *Config) {
				cfg.Broker = BrokerConfig{Type: "kafka", Kafka: KafkaConfig{Brokers: []string{"localhost:9092"}}}
			},
		},
		{
			name: "kafka without brokers",
			mutate: func(cfg *Config) {
				cfg.Broker = BrokerConfig{Type: "kafka"}
			},
			wantErr: true,
		},
		{
			name: "unknown broker type",
			mutate: func(cfg *Config) {
				cfg.Broker.Type = "nats"
			},
			wantErr: true,
		},
		{
			name: "postgres outbox without host",
			mutate: func(cfg *Config) {
				cfg.Outbox.Backend = "postgres"
			},
			wantErr: true,
		},
		{
			name: "postgres outbox with host",
			mutate: func(cfg *Config) {
				cfg.Outbox.Backend = "postgres"
				cfg.Database.Postgres.Host = "localhost"
			},
		},
		{
			name: "unknown outbox backend",
			mutate: func(cfg *Config) {
				cfg.Outbox.Backend = "etcd"
			},
			wantErr: true,
		},
		{
			name: "negative lease",
			mutate: func(cfg *Config) {
				cfg.Outbox.LeaseDuration = -time.Second
			},
			wantErr: true,
		},
		{
			name: "port out of range",
			mutate: func(cfg *Config) {
				cfg.Server.Port = 70000
			},
			wantErr: true,
		},
		{
			name: "inbox without redis",
			mutate: func(cfg *Config) {
				cfg.Inbox.Enabled = true
			},
			wantErr: true,
		},
		{
			name: "inbox with redis",
			mutate: func(cfg *Config) {
				cfg.Inbox.Enabled = true
				cfg.Database.Redis.Host = "localhost"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := ValidateStatic(cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
