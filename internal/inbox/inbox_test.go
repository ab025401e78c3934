package inbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"synapse/internal/logger"
	"synapse/pkg/errors"
)

type fakeRepository struct {
	claims map[string]bool
	err    error
	keys   []string
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{claims: make(map[string]bool)}
}

func (r *fakeRepository) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	if r.err != nil {
		return false, r.err
	}
	r.keys = append(r.keys, key)
	if r.claims[key] {
		return false, nil
	}
	r.claims[key] = true
	return true, nil
}

func countingHandler(calls *int) func(ctx context.Context, subject string, payload []byte) error {
	return func(ctx context.Context, subject string, payload []byte) error {
		*calls++
		return nil
	}
}

func TestGuardProcessesFirstDelivery(t *testing.T) {
	repo := newFakeRepository()
	guard := NewGuard(repo, time.Hour, logger.NopLogger())

	calls := 0
	handler := guard.Wrap(countingHandler(&calls))

	err := handler(context.Background(), "system.health_check", []byte(`{"id":"m1"}`))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"inbox:m1"}, repo.keys)
}

func TestGuardSuppressesDuplicate(t *testing.T) {
	repo := newFakeRepository()
	guard := NewGuard(repo, time.Hour, logger.NopLogger())

	calls := 0
	handler := guard.Wrap(countingHandler(&calls))
	ctx := context.Background()

	require.NoError(t, handler(ctx, "system.health_check", []byte(`{"id":"m1"}`)))
	require.NoError(t, handler(ctx, "system.health_check", []byte(`{"id":"m1"}`)))

	assert.Equal(t, 1, calls, "second delivery of the same id must be dropped")
}

func TestGuardDistinctIDsBothProcessed(t *testing.T) {
	repo := newFakeRepository()
	guard := NewGuard(repo, time.Hour, logger.NopLogger())

	calls := 0
	handler := guard.Wrap(countingHandler(&calls))
	ctx := context.Background()

	require.NoError(t, handler(ctx, "system.health_check", []byte(`{"id":"m1"}`)))
	require.NoError(t, handler(ctx, "system.health_check", []byte(`{"id":"m2"}`)))

	assert.Equal(t, 2, calls)
}

func TestGuardFailsOpenOnRepositoryError(t *testing.T) {
	repo := newFakeRepository()
	repo.err = errors.ErrPersistence.WithDetail("reason", "redis down")
	guard := NewGuard(repo, time.Hour, logger.NopLogger())

	calls := 0
	handler := guard.Wrap(countingHandler(&calls))

	err := handler(context.Background(), "system.health_check", []byte(`{"id":"m1"}`))
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "a broken claim store must not drop deliveries")
}

func TestGuardPassesThroughWithoutID(t *testing.T) {
	repo := newFakeRepository()
	guard := NewGuard(repo, time.Hour, logger.NopLogger())

	calls := 0
	handler := guard.Wrap(countingHandler(&calls))
	ctx := context.Background()

	require.NoError(t, handler(ctx, "system.health_check", []byte(`{}`)))
	require.NoError(t, handler(ctx, "system.health_check", []byte("not json")))

	assert.Equal(t, 2, calls)
	assert.Empty(t, repo.keys, "payloads without an id are never claimed")
}

func TestGuardPropagatesHandlerError(t *testing.T) {
	repo := newFakeRepository()
	guard := NewGuard(repo, time.Hour, logger.NopLogger())

	want := errors.ErrInternal.WithDetail("reason", "boom")
	handler := guard.Wrap(func(ctx context.Context, subject string, payload []byte) error {
		return want
	})

	err := handler(context.Background(), "system.health_check", []byte(`{"id":"m1"}`))
	assert.ErrorIs(t, err, errors.ErrInternal)
}
