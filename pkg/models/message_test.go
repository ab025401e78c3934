package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderFillsDefaults(t *testing.T) {
	env := NewMessageEnvelopeBuilder().
		WithType("system.health_check").
		WithSource("models-test").
		WithDataField("component", "broker").
		Build()

	assert.NotEmpty(t, env.ID, "builder generates an id when none is set")
	assert.False(t, env.Timestamp.IsZero())
	assert.Equal(t, DefaultPriority, env.Priority)
	assert.Equal(t, "system.health_check", env.Type)

	component, ok := env.GetDataField("component")
	require.True(t, ok)
	assert.Equal(t, "broker", component)
}

func TestBuilderKeepsExplicitValues(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	env := NewMessageEnvelopeBuilder().
		WithID("fixed-id").
		WithType("orchestrator.task_dispatch").
		WithSource("models-test").
		WithTimestamp(ts).
		WithPriority(9).
		Build()

	assert.Equal(t, "fixed-id", env.ID)
	assert.Equal(t, ts, env.Timestamp)
	assert.Equal(t, 9, env.Priority)
}

func TestEnvelopeRoundtrip(t *testing.T) {
	env := NewMessageEnvelopeBuilder().
		WithType("consciousness.state_change").
		WithSource("models-test").
		WithDataField("consciousness_level", 0.7).
		Build()

	raw, err := env.Marshal()
	require.NoError(t, err)

	decoded, err := Unmarshal(raw)
	require.NoError(t, err)
	assert.Equal(t, env.ID, decoded.ID)
	assert.Equal(t, env.Type, decoded.Type)
	assert.Equal(t, env.Priority, decoded.Priority)

	level, ok := decoded.GetDataField("consciousness_level")
	require.True(t, ok)
	assert.InDelta(t, 0.7, level, 0.001)
}

func TestSetDataFieldInitializesMap(t *testing.T) {
	var env MessageEnvelope
	env.SetDataField("key", "value")

	v, ok := env.GetDataField("key")
	require.True(t, ok)
	assert.Equal(t, "value", v)
}
