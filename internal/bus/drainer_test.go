package bus

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"synapse/internal/logger"
	"synapse/internal/monitor"
	"synapse/internal/validator"
	"synapse/pkg/errors"
	"synapse/pkg/models"
)

func TestDrainOnceRedeliversAndAcknowledges(t *testing.T) {
	transport := newFakeTransport()
	store := newTestStore(t)
	registry := newTestRegistry(5, time.Minute)
	mon := monitor.New(monitor.Config{}, logger.NopLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.StoreMessage(ctx, "system.health_check", healthCheckEnvelope(t, 5), 5)
		require.NoError(t, err)
	}

	d := NewDrainer(store, transport, registry, mon, DrainerConfig{RatePerSecond: 10000, Burst: 100}, logger.NopLogger())

	drained, err := d.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, drained)
	assert.Equal(t, 3, transport.count("system.health_check"))

	backlog, err := store.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, backlog)
}

func TestDrainOnceEmptyOutbox(t *testing.T) {
	transport := newFakeTransport()
	store := newTestStore(t)

	d := NewDrainer(store, transport, newTestRegistry(5, time.Minute), monitor.New(monitor.Config{}, logger.NopLogger()), DrainerConfig{}, logger.NopLogger())

	drained, err := d.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, drained)
	assert.Equal(t, 0, transport.calls)
}

func TestDrainOncePriorityOrder(t *testing.T) {
	transport := newFakeTransport()
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.StoreMessage(ctx, "bus.low", []byte(`{"p":2}`), 2)
	require.NoError(t, err)
	_, err = store.StoreMessage(ctx, "bus.high", []byte(`{"p":9}`), 9)
	require.NoError(t, err)
	_, err = store.StoreMessage(ctx, "bus.mid", []byte(`{"p":5}`), 5)
	require.NoError(t, err)

	d := NewDrainer(store, transport, newTestRegistry(5, time.Minute), monitor.New(monitor.Config{}, logger.NopLogger()), DrainerConfig{RatePerSecond: 10000, Burst: 100}, logger.NopLogger())

	drained, err := d.DrainOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, drained)

	assert.Equal(t, []string{"bus.high", "bus.mid", "bus.low"}, transport.subjectOrder())
}

func TestDrainOnceHaltsOnOpenBreaker(t *testing.T) {
	transport := newFakeTransport()
	transport.setFailFn(alwaysTransportError)
	store := newTestStore(t)
	registry := newTestRegistry(1, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.StoreMessage(ctx, "system.health_check", healthCheckEnvelope(t, 5), 5)
		require.NoError(t, err)
	}

	d := NewDrainer(store, transport, registry, monitor.New(monitor.Config{}, logger.NopLogger()), DrainerConfig{RatePerSecond: 10000, Burst: 100}, logger.NopLogger())

	drained, err := d.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, drained)
	// one real attempt trips the breaker, the rest of the batch is skipped
	assert.Equal(t, 1, transport.calls)

	backlog, err := store.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, backlog, "nothing is lost when the target stays down")
}

func TestDrainOnceFailedRedeliveryKeepsMessage(t *testing.T) {
	transport := newFakeTransport()
	store := newTestStore(t)
	ctx := context.Background()

	// fail the first call only; threshold high enough to stay closed
	transport.setFailFn(func(call int) error {
		if call == 1 {
			return errors.ErrTransport.WithDetail("reason", "flaky")
		}
		return nil
	})

	_, err := store.StoreMessage(ctx, "system.health_check", healthCheckEnvelope(t, 5), 5)
	require.NoError(t, err)
	_, err = store.StoreMessage(ctx, "system.health_check", healthCheckEnvelope(t, 5), 5)
	require.NoError(t, err)

	d := NewDrainer(store, transport, newTestRegistry(10, time.Minute), monitor.New(monitor.Config{}, logger.NopLogger()), DrainerConfig{RatePerSecond: 10000, Burst: 100}, logger.NopLogger())

	drained, err := d.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, drained)

	backlog, err := store.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, backlog, "the failed message stays leased until expiry")
}

func TestRunStopsOnContextCancel(t *testing.T) {
	transport := newFakeTransport()
	store := newTestStore(t)

	d := NewDrainer(store, transport, newTestRegistry(5, time.Minute), monitor.New(monitor.Config{}, logger.NopLogger()), DrainerConfig{Interval: 5 * time.Millisecond}, logger.NopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("drainer did not stop on cancel")
	}
}

// TestOutageRecovery pushes a burst of messages through a transport
// that drops roughly a third of them, then heals the transport and
// drains until the backlog is empty. Every message must arrive.
func TestOutageRecovery(t *testing.T) {
	transport := newFakeTransport()
	store := newTestStore(t)
	registry := newTestRegistry(5, 20*time.Millisecond)
	mon := monitor.New(monitor.Config{RingCapacity: 1000}, logger.NopLogger())
	ctx := context.Background()

	rng := rand.New(rand.NewSource(42))
	transport.setFailFn(func(int) error {
		if rng.Float64() < 0.3 {
			return errors.ErrTransport.WithDetail("reason", "intermittent")
		}
		return nil
	})

	p := NewPublisher(transport, registry, store, mon, validator.New(), logger.NopLogger())

	const total = 100
	sent := make(map[string]bool, total)
	for i := 0; i < total; i++ {
		env := models.NewMessageEnvelopeBuilder().
			WithType("consciousness.state_change").
			WithSource("chaos-test").
			WithDataField("consciousness_level", 0.5).
			WithPriority(1 + i%10).
			Build()
		sent[env.ID] = true

		require.NoError(t, p.PublishEnvelope(ctx, "consciousness.state_change", env),
			"every accept must be durable, live or deferred")
	}

	// heal the transport and let the breaker recover
	transport.setFailFn(nil)
	d := NewDrainer(store, transport, registry, mon, DrainerConfig{RatePerSecond: 10000, Burst: 100, BatchSize: 50}, logger.NopLogger())

	deadline := time.Now().Add(5 * time.Second)
	for {
		backlog, err := store.PendingCount(ctx)
		require.NoError(t, err)
		if backlog == 0 {
			break
		}
		require.True(t, time.Now().Before(deadline), "backlog did not drain, %d left", backlog)

		time.Sleep(25 * time.Millisecond) // past the recovery timeout
		_, err = d.DrainOnce(ctx)
		require.NoError(t, err)
	}

	delivered := make(map[string]bool, total)
	for _, raw := range transport.payloads() {
		env, err := models.Unmarshal(raw)
		require.NoError(t, err)
		delivered[env.ID] = true
	}

	assert.Equal(t, total, len(delivered), "all accepted messages must eventually arrive")
	for id := range sent {
		assert.True(t, delivered[id], "message %s was never delivered", id)
	}

	snap := mon.Snapshot()
	assert.GreaterOrEqual(t, snap.MessageCount, uint64(total))
}
