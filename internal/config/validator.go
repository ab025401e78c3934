package config

import (
	"fmt"
)

// ValidateStatic rejects configurations that cannot work at all.
// Unknown stream/consumer names are a runtime concern of the topology
// manager, not of this check.
func ValidateStatic(cfg *Config) error {
	switch cfg.Broker.Type {
	case "kafka":
		if len(cfg.Broker.Kafka.Brokers) == 0 {
			return fmt.Errorf("broker.kafka.brokers must not be empty")
		}
	case "channel":
	default:
		return fmt.Errorf("broker.type must be kafka or channel, got %q", cfg.Broker.Type)
	}

	switch cfg.Outbox.Backend {
	case "", "sqlite":
	case "postgres":
		if cfg.Database.Postgres.Host == "" {
			return fmt.Errorf("outbox.backend postgres requires database.postgres.host")
		}
	default:
		return fmt.Errorf("outbox.backend must be sqlite or postgres, got %q", cfg.Outbox.Backend)
	}

	if cfg.Outbox.LeaseDuration < 0 {
		return fmt.Errorf("outbox.lease_duration must not be negative")
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	if cfg.Inbox.Enabled && cfg.Database.Redis.Host == "" {
		return fmt.Errorf("inbox.enabled requires database.redis.host")
	}

	return nil
}
