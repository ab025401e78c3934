package inbox

import (
	"context"
	"encoding/json"
	"time"

	"synapse/internal/broker"
	"synapse/internal/constants"
	"synapse/internal/logger"
	"synapse/pkg/metrics"
)

// Repository is the claim store behind the guard. SetNX returns true
// when the key was newly claimed.
type Repository interface {
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
}

// Guard suppresses duplicate deliveries on the consumer side. The bus
// is at-least-once, so redelivered and drained messages can arrive
// twice; wrapping a handler with the guard keys each delivery by
// envelope id and skips ones already claimed within the TTL.
//
// Claim failures fail open: a delivery is never dropped because the
// claim store is down.
type Guard struct {
	repo   Repository
	ttl    time.Duration
	logger logger.Logger
}

func NewGuard(repo Repository, ttl time.Duration, log logger.Logger) *Guard {
	if ttl <= 0 {
		ttl = constants.DefaultInboxTTL
	}
	return &Guard{repo: repo, ttl: ttl, logger: log}
}

func (g *Guard) Wrap(handler broker.Handler) broker.Handler {
	return func(ctx context.Context, subject string, payload []byte) error {
		id := envelopeID(payload)
		if id == "" {
			// no id to key on; let validation deal with it downstream
			return handler(ctx, subject, payload)
		}

		claimed, err := g.repo.SetNX(ctx, constants.InboxKeyPrefix+id, subject, g.ttl)
		if err != nil {
			g.logger.WarnwCtx(ctx, "Inbox claim failed, processing anyway",
				"subject", subject,
				"error", err,
			)
			return handler(ctx, subject, payload)
		}

		if !claimed {
			metrics.InboxDuplicatesTotal.WithLabelValues(subject).Inc()
			g.logger.DebugwCtx(ctx, "Duplicate delivery suppressed",
				"subject", subject,
				"message_id", id,
			)
			return nil
		}

		return handler(ctx, subject, payload)
	}
}

func envelopeID(payload []byte) string {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return ""
	}
	return probe.ID
}
