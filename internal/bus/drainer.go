package bus

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"synapse/internal/broker"
	"synapse/internal/logger"
	"synapse/internal/monitor"
	"synapse/internal/outbox"
	"synapse/pkg/circuitbreaker"
	"synapse/pkg/errors"
	"synapse/pkg/metrics"
	"synapse/pkg/retry"
)

type DrainerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	BatchSize     int           `mapstructure:"batch_size"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
	PurgeAfter    time.Duration `mapstructure:"purge_after"`
}

func DefaultDrainerConfig() DrainerConfig {
	return DrainerConfig{
		Interval:      5 * time.Second,
		BatchSize:     50,
		RatePerSecond: 100,
		Burst:         10,
		PurgeAfter:    24 * time.Hour,
	}
}

// Drainer republishes persisted messages through the same breakers as
// the live path. Failed redeliveries keep their lease and become
// visible again after it expires; nothing is lost.
type Drainer struct {
	store     outbox.Store
	transport broker.Transport
	breakers  *circuitbreaker.Registry
	monitor   *monitor.Monitor
	logger    logger.Logger
	cfg       DrainerConfig
	limiter   *rate.Limiter
}

func NewDrainer(
	store outbox.Store,
	transport broker.Transport,
	breakers *circuitbreaker.Registry,
	mon *monitor.Monitor,
	cfg DrainerConfig,
	log logger.Logger,
) *Drainer {
	def := DefaultDrainerConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = def.RatePerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.PurgeAfter <= 0 {
		cfg.PurgeAfter = def.PurgeAfter
	}

	return &Drainer{
		store:     store,
		transport: transport,
		breakers:  breakers,
		monitor:   mon,
		logger:    log,
		cfg:       cfg,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
	}
}

// Run drains until the context is canceled. Rounds that move nothing
// back off exponentially; a productive round resets to the base
// interval.
func (d *Drainer) Run(ctx context.Context) error {
	backoff := retry.ExponentialBackoff(d.cfg.Interval, 10*d.cfg.Interval, 2.0)
	rounds := 0

	for {
		drained, err := d.DrainOnce(ctx)
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			d.logger.ErrorwCtx(ctx, "Drain round failed", "error", err)
		}

		rounds++
		if rounds%20 == 0 {
			if removed, purgeErr := d.store.PurgeAcknowledged(ctx, d.cfg.PurgeAfter); purgeErr != nil {
				d.logger.WarnwCtx(ctx, "Failed to purge acknowledged messages", "error", purgeErr)
			} else if removed > 0 {
				d.logger.InfowCtx(ctx, "Purged acknowledged messages", "removed", removed)
			}
		}

		wait := d.cfg.Interval
		if err != nil || drained == 0 {
			wait = backoff.NextBackOff()
		} else {
			backoff.Reset()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// DrainOnce leases one batch and republishes it, returning how many
// messages were redelivered and acknowledged.
func (d *Drainer) DrainOnce(ctx context.Context) (int, error) {
	var msgs []outbox.Message

	// lease contention is recoverable: retry the acquisition
	leasePolicy := retry.Policy{MaxAttempts: 3, InitialInterval: 50 * time.Millisecond, MaxInterval: time.Second, Multiplier: 2.0}
	err := retry.Retry(ctx, leasePolicy, func() error {
		batch, leaseErr := d.store.GetPending(ctx, d.cfg.BatchSize)
		if leaseErr != nil {
			if errors.IsLeaseConflict(leaseErr) {
				return leaseErr
			}
			return errors.Wrap(leaseErr, errors.ErrPersistence).AsFatal()
		}
		msgs = batch
		return nil
	})
	if err != nil {
		return 0, err
	}

	drained := 0
	for _, msg := range msgs {
		if err := d.limiter.Wait(ctx); err != nil {
			d.updateBacklog(ctx)
			return drained, err
		}

		start := time.Now()
		subject := msg.Subject
		payload := msg.Payload

		br := d.breakers.Get(subject)
		_, pubErr := br.ExecuteWithContext(ctx, func() (interface{}, error) {
			return nil, d.transport.Publish(ctx, subject, payload)
		})

		if pubErr != nil {
			d.monitor.RecordError()
			metrics.OutboxDrainedTotal.WithLabelValues("failed").Inc()

			if circuitbreaker.IsFastFail(pubErr) {
				// target still down; leave the rest of the batch
				// leased and give the breaker time to recover
				d.logger.WarnwCtx(ctx, "Drain halted, breaker refused call",
					"subject", subject,
					"remaining", len(msgs)-drained,
				)
				break
			}

			d.logger.WarnwCtx(ctx, "Redelivery failed, lease will expire",
				"subject", subject,
				"outbox_id", msg.ID,
				"attempt_count", msg.AttemptCount,
				"error", pubErr,
			)
			continue
		}

		if ackErr := d.store.Acknowledge(ctx, msg.ID); ackErr != nil {
			// redelivered but not acknowledged: it will surface again,
			// consumers must tolerate the duplicate
			d.logger.ErrorwCtx(ctx, "Failed to acknowledge redelivered message",
				"outbox_id", msg.ID,
				"error", ackErr,
			)
			continue
		}

		d.monitor.RecordMessage(latencyMs(time.Since(start)))
		metrics.OutboxDrainedTotal.WithLabelValues("redelivered").Inc()
		drained++
	}

	d.updateBacklog(ctx)
	return drained, nil
}

func (d *Drainer) updateBacklog(ctx context.Context) {
	if count, err := d.store.PendingCount(ctx); err == nil {
		metrics.SetOutboxBacklog(count)
	}
}
