package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"gridsim/internal/broker"
	"gridsim/internal/config"
	"gridsim/internal/logger"
	"gridsim/pkg/tracing"
)

// Base holds what every process needs regardless of what it serves: config,
// logger, the event sink and tracing.
type Base struct {
	Config         *config.Config
	Logger         logger.Logger
	Producer       broker.Producer
	TracerProvider *tracing.TracerProvider
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

func (b *Base) InitBroker() error {
	producer, err := broker.NewProducer(b.Config.Broker, b.Logger)
	if err != nil {
		return fmt.Errorf("failed to create producer: %w", err)
	}
	b.Producer = producer
	return nil
}

func (b *Base) InitTracing(ctx context.Context, serviceName string) error {
	tp, err := tracing.Init(ctx, b.Config.Tracing, serviceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	b.TracerProvider = tp
	return nil
}

// Shutdown runs additionalShutdown first, then flushes traces. The producer
// is expected to be closed by whoever owns in-flight writes to it.
func (b *Base) Shutdown(ctx context.Context, additionalShutdown func(ctx context.Context) []error) error {
	b.Logger.InfowCtx(ctx, "Shutting down application...")

	var errs []error

	if additionalShutdown != nil {
		errs = append(errs, additionalShutdown(ctx)...)
	}

	if b.TracerProvider != nil {
		if err := b.TracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	b.Logger.InfowCtx(ctx, "Application exited successfully")
	return nil
}
