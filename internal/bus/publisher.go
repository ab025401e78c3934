package bus

import (
	"context"
	"time"

	"synapse/internal/broker"
	"synapse/internal/logger"
	"synapse/internal/monitor"
	"synapse/internal/outbox"
	"synapse/internal/validator"
	"synapse/pkg/circuitbreaker"
	"synapse/pkg/errors"
	"synapse/pkg/logging"
	"synapse/pkg/metrics"
	"synapse/pkg/models"
)

// Publisher is the resilient publish pipeline: validate, publish
// through the per-target breaker, fall back to the outbox when the
// transport fails or the breaker refuses the call. Every attempt is
// reported to the performance monitor.
type Publisher struct {
	transport broker.Transport
	breakers  *circuitbreaker.Registry
	store     outbox.Store // nil disables the persistence fallback
	monitor   *monitor.Monitor
	validator *validator.Validator
	logger    logger.Logger
}

func NewPublisher(
	transport broker.Transport,
	breakers *circuitbreaker.Registry,
	store outbox.Store,
	mon *monitor.Monitor,
	val *validator.Validator,
	log logger.Logger,
) *Publisher {
	return &Publisher{
		transport: transport,
		breakers:  breakers,
		store:     store,
		monitor:   mon,
		validator: val,
		logger:    log,
	}
}

// Publish validates raw and moves it toward the transport. A nil
// return means the message is either published or durably queued for
// redelivery; at-least-once from here on.
func (p *Publisher) Publish(ctx context.Context, subject string, raw []byte) error {
	start := time.Now()

	result := p.validator.Validate(subject, raw)
	if !result.Valid {
		p.monitor.RecordError()
		metrics.ValidationFailuresTotal.WithLabelValues(subject).Inc()
		metrics.IncPublish(subject, "invalid")
		return result.Err()
	}

	env, err := models.Unmarshal(raw)
	if err != nil {
		// unreachable after validation, but never publish garbage
		p.monitor.RecordError()
		return errors.Wrap(err, errors.ErrValidation)
	}

	ctx = logging.WithMessageID(logging.WithSubject(ctx, subject), env.ID)

	br := p.breakers.Get(subject)
	_, pubErr := br.ExecuteWithContext(ctx, func() (interface{}, error) {
		return nil, p.transport.Publish(ctx, subject, raw)
	})

	if pubErr == nil {
		elapsed := time.Since(start)
		p.monitor.RecordMessage(latencyMs(elapsed))
		metrics.IncPublish(subject, "published")
		metrics.ObservePublishDuration(subject, elapsed)
		return nil
	}

	p.monitor.RecordError()

	if !circuitbreaker.IsFastFail(pubErr) && !errors.IsTransport(pubErr) {
		// canceled context or other non-transport failure: not the
		// outbox's problem
		metrics.IncPublish(subject, "failed")
		return pubErr
	}

	if p.store == nil {
		metrics.IncPublish(subject, "failed")
		if circuitbreaker.IsFastFail(pubErr) {
			return errors.ErrCircuitOpen.WithCause(pubErr).WithDetail("subject", subject)
		}
		return pubErr
	}

	id, storeErr := p.store.StoreMessage(ctx, subject, raw, env.Priority)
	if storeErr != nil {
		metrics.IncPublish(subject, "failed")
		p.logger.ErrorwCtx(ctx, "Publish failed and persistence fallback failed",
			"error", storeErr,
			"publish_error", pubErr,
		)
		return storeErr
	}

	metrics.IncPublish(subject, "deferred")
	metrics.OutboxStoredTotal.WithLabelValues(subject).Inc()
	p.logger.WarnwCtx(ctx, "Publish deferred to outbox",
		"outbox_id", id,
		"priority", env.Priority,
		"publish_error", pubErr,
	)

	return nil
}

// PublishEnvelope marshals and publishes a constructed envelope.
func (p *Publisher) PublishEnvelope(ctx context.Context, subject string, env *models.MessageEnvelope) error {
	raw, err := env.Marshal()
	if err != nil {
		return errors.Wrap(err, errors.ErrValidation)
	}
	return p.Publish(ctx, subject, raw)
}

// BreakerStates exposes the per-target breaker states for the health
// and stats surfaces.
func (p *Publisher) BreakerStates() map[string]string {
	return p.breakers.States()
}

func latencyMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
