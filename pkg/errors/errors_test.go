package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessageIncludesCause(t *testing.T) {
	base := errors.New("connection refused")
	err := ErrTransport.WithCause(base)

	assert.Contains(t, err.Error(), "TRANSPORT_ERROR")
	assert.Contains(t, err.Error(), "connection refused")
	assert.ErrorIs(t, err, base)
}

func TestErrorsIsMatchesByCode(t *testing.T) {
	err := ErrTransport.WithCause(errors.New("boom")).WithDetail("subject", "system.health_check")

	assert.ErrorIs(t, err, ErrTransport)
	assert.NotErrorIs(t, err, ErrValidation)

	wrapped := fmt.Errorf("publish: %w", err)
	assert.ErrorIs(t, wrapped, ErrTransport)
}

func TestCodePredicates(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		predicate func(error) bool
		want      bool
	}{
		{name: "validation", err: ErrValidation.WithDetail("field", "id"), predicate: IsValidation, want: true},
		{name: "transport", err: ErrTransport.WithCause(errors.New("x")), predicate: IsTransport, want: true},
		{name: "persistence", err: ErrPersistence, predicate: IsPersistence, want: true},
		{name: "configuration", err: ErrConfiguration, predicate: IsConfiguration, want: true},
		{name: "lease conflict", err: ErrLeaseConflict, predicate: IsLeaseConflict, want: true},
		{name: "circuit open", err: ErrCircuitOpen, predicate: IsCircuitOpen, want: true},
		{name: "wrapped transport", err: fmt.Errorf("outer: %w", ErrTransport.WithCause(errors.New("x"))), predicate: IsTransport, want: true},
		{name: "mismatch", err: ErrValidation, predicate: IsTransport, want: false},
		{name: "plain error", err: errors.New("plain"), predicate: IsTransport, want: false},
		{name: "nil", err: nil, predicate: IsTransport, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.predicate(tt.err))
		})
	}
}

func TestWithDetailDoesNotMutateTemplate(t *testing.T) {
	a := ErrValidation.WithDetail("field", "id")
	b := ErrValidation.WithDetail("field", "priority")

	assert.Equal(t, "id", a.Details["field"])
	assert.Equal(t, "priority", b.Details["field"])
	assert.Empty(t, ErrValidation.Details)
}

func TestRetryableClassification(t *testing.T) {
	assert.False(t, ErrValidation.IsRetryable())
	assert.True(t, ErrValidation.IsFatal())
	assert.False(t, ErrConfiguration.IsRetryable())
	assert.True(t, ErrTransport.IsRetryable())
	assert.True(t, ErrLeaseConflict.IsRetryable())

	// explicit overrides win over the code default
	assert.False(t, ErrTransport.AsFatal().IsRetryable())
	assert.True(t, ErrValidation.AsRetryable().IsRetryable())
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrPersistence))

	base := errors.New("disk full")
	err := Wrap(base, ErrPersistence)
	require.NotNil(t, err)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, base)
}

func TestToHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "validation", err: ErrValidation, want: http.StatusBadRequest},
		{name: "transport", err: ErrTransport, want: http.StatusBadGateway},
		{name: "circuit open", err: ErrCircuitOpen, want: http.StatusServiceUnavailable},
		{name: "lease conflict", err: ErrLeaseConflict, want: http.StatusConflict},
		{name: "plain error", err: errors.New("x"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToHTTPStatus(tt.err))
		})
	}
}

func TestToErrorResponse(t *testing.T) {
	resp := ToErrorResponse(ErrValidation.WithDetail("fields", []string{"id"}))
	assert.Equal(t, "VALIDATION_ERROR", resp["error_code"])
	assert.NotEmpty(t, resp["error"])
	assert.Contains(t, resp, "details")

	plain := ToErrorResponse(errors.New("mystery"))
	assert.Equal(t, "INTERNAL_ERROR", plain["error_code"])
}
