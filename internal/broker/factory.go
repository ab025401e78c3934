package broker

import (
	"fmt"

	"synapse/internal/config"
	"synapse/internal/logger"
)

func New(cfg config.BrokerConfig, log logger.Logger) (Transport, error) {
	switch cfg.Type {
	case "kafka":
		return NewKafkaTransport(cfg.Kafka, log), nil
	case "channel":
		return NewChannelTransport(log), nil
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
}
