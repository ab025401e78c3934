package broker

import (
	"context"
	"sync"

	"synapse/internal/logger"
	"synapse/internal/topology"
	"synapse/pkg/errors"
)

// ChannelTransport is an in-process transport for tests and local
// development. Subscriptions accept exact subjects or trailing ".>"
// wildcard patterns; delivery is synchronous in publish order.
type ChannelTransport struct {
	mu     sync.RWMutex
	subs   map[string][]Handler
	closed bool
	logger logger.Logger
}

func NewChannelTransport(log logger.Logger) *ChannelTransport {
	return &ChannelTransport{
		subs:   make(map[string][]Handler),
		logger: log,
	}
}

func (t *ChannelTransport) Publish(ctx context.Context, subject string, payload []byte) error {
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return errors.ErrTransport.WithDetail("reason", "transport closed")
	}

	var handlers []Handler
	for pattern, hs := range t.subs {
		if topology.SubjectMatches(pattern, subject) {
			handlers = append(handlers, hs...)
		}
	}
	t.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, subject, payload); err != nil {
			t.logger.WarnwCtx(ctx, "Channel handler failed",
				"subject", subject,
				"error", err,
			)
		}
	}

	return nil
}

func (t *ChannelTransport) Subscribe(ctx context.Context, subject string, handler Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return errors.ErrTransport.WithDetail("reason", "transport closed")
	}

	t.subs[subject] = append(t.subs[subject], handler)
	return nil
}

func (t *ChannelTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	t.subs = make(map[string][]Handler)
	return nil
}
