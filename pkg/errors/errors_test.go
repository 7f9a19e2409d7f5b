package livex_errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationErrorUnwrapsToInvalidInput(t *testing.T) {
	err := fmt.Errorf("ingest: %w", &ValidationError{Field: "amountCents", Reason: "is required"})

	assert.True(t, IsValidation(err))
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.False(t, IsPersistence(err))
	assert.Contains(t, err.Error(), "amountCents is required")
}

func TestPersistenceErrorKeepsCause(t *testing.T) {
	err := &PersistenceError{Op: "aggregate increment", Err: ErrServiceUnavailable}

	assert.True(t, IsPersistence(err))
	assert.ErrorIs(t, err, ErrServiceUnavailable)
	assert.Equal(t, "aggregate increment: service unavailable", err.Error())
}

func TestWidgetNotFoundIsNotFound(t *testing.T) {
	assert.True(t, errors.Is(ErrWidgetNotFound, ErrNotFound))
}

func TestDeliveryError(t *testing.T) {
	err := &DeliveryError{ConnectionID: "c1", WidgetID: "W1", Err: ErrSendBufferFull}

	assert.ErrorIs(t, err, ErrSendBufferFull)
	assert.Equal(t, "deliver W1 to c1: send buffer full", err.Error())
}
