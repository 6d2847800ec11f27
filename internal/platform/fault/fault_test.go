package fault

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewMatchesSentinelAndKind(t *testing.T) {
	errDuplicate := New(ErrConflict, "settlement: duplicate period")
	wrapped := fmt.Errorf("%w: 2025-03", errDuplicate)

	assert.True(t, errors.Is(wrapped, errDuplicate))
	assert.True(t, errors.Is(wrapped, ErrConflict))
	assert.False(t, errors.Is(wrapped, ErrValidation))
}

func TestStorageKeepsClassifiedErrors(t *testing.T) {
	notFound := New(ErrNotFound, "incident: not found")
	assert.Same(t, notFound, Storage("get incident", notFound))

	raw := errors.New("connection reset")
	err := Storage("get incident", raw)
	var storageErr *StorageError
	assert.True(t, errors.As(err, &storageErr))
	assert.True(t, errors.Is(err, ErrStorage))
	assert.True(t, errors.Is(err, raw))
	assert.Equal(t, "storage: get incident: connection reset", err.Error())
}

func TestStorageNil(t *testing.T) {
	assert.NoError(t, Storage("noop", nil))
	assert.False(t, Classified(context.Canceled))
}
