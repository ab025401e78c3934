package bootstrap

import (
	"context"
	"fmt"

	"synapse/internal/broker"
	"synapse/internal/config"
	"synapse/internal/logger"
)

type Base struct {
	Config    *config.Config
	Logger    logger.Logger
	Transport broker.Transport
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

func (b *Base) InitTransport() error {
	transport, err := broker.New(b.Config.Broker, b.Logger)
	if err != nil {
		return fmt.Errorf("failed to create transport: %w", err)
	}

	b.Transport = transport
	return nil
}

func (b *Base) Shutdown(ctx context.Context, additionalShutdown func(ctx context.Context) []error) error {
	b.Logger.Info("Shutting down application...")

	var errs []error

	if b.Transport != nil {
		if err := b.Transport.Close(); err != nil {
			errs = append(errs, fmt.Errorf("transport close error: %w", err))
		}
	}

	if additionalShutdown != nil {
		errs = append(errs, additionalShutdown(ctx)...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	b.Logger.Info("Application exited successfully")
	return nil
}
