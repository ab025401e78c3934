package broker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"synapse/internal/logger"
	"synapse/pkg/errors"
)

func TestChannelTransportDelivers(t *testing.T) {
	tr := NewChannelTransport(logger.NopLogger())
	ctx := context.Background()

	var got []string
	err := tr.Subscribe(ctx, "system.health_check", func(ctx context.Context, subject string, payload []byte) error {
		got = append(got, string(payload))
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, tr.Publish(ctx, "system.health_check", []byte("a")))
	require.NoError(t, tr.Publish(ctx, "system.health_check", []byte("b")))

	assert.Equal(t, []string{"a", "b"}, got)
}

func TestChannelTransportWildcardSubscription(t *testing.T) {
	tr := NewChannelTransport(logger.NopLogger())
	ctx := context.Background()

	var subjects []string
	err := tr.Subscribe(ctx, "consciousness.>", func(ctx context.Context, subject string, payload []byte) error {
		subjects = append(subjects, subject)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, tr.Publish(ctx, "consciousness.state_change", nil))
	require.NoError(t, tr.Publish(ctx, "consciousness.emotion_update", nil))
	require.NoError(t, tr.Publish(ctx, "system.health_check", nil))

	assert.Equal(t, []string{"consciousness.state_change", "consciousness.emotion_update"}, subjects)
}

func TestChannelTransportNoSubscribers(t *testing.T) {
	tr := NewChannelTransport(logger.NopLogger())

	// publishing into the void is not an error
	assert.NoError(t, tr.Publish(context.Background(), "orchestrator.task_dispatch", []byte("{}")))
}

func TestChannelTransportHandlerErrorDoesNotFailPublish(t *testing.T) {
	tr := NewChannelTransport(logger.NopLogger())
	ctx := context.Background()

	require.NoError(t, tr.Subscribe(ctx, "system.>", func(ctx context.Context, subject string, payload []byte) error {
		return errors.ErrInternal
	}))

	assert.NoError(t, tr.Publish(ctx, "system.health_check", nil))
}

func TestChannelTransportClosed(t *testing.T) {
	tr := NewChannelTransport(logger.NopLogger())
	require.NoError(t, tr.Close())

	err := tr.Publish(context.Background(), "system.health_check", nil)
	require.Error(t, err)
	assert.True(t, errors.IsTransport(err))

	err = tr.Subscribe(context.Background(), "system.>", func(ctx context.Context, subject string, payload []byte) error {
		return nil
	})
	require.Error(t, err)
	assert.True(t, errors.IsTransport(err))
}
