package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("assign: %w", InvalidOperation("would create a cycle"))

	assert.True(t, errors.Is(err, ErrInvalidOperation))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, KindInvalidOperation, KindOf(err))
	assert.Equal(t, "assign: would create a cycle", err.Error())
}

func TestKindOfForeignError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("connection reset")))
}

func TestValidationMessageListsFields(t *testing.T) {
	err := Validation("invalid leave details", FieldIssue{Field: "startDate", Reason: "is required"})
	assert.Equal(t, "invalid leave details (startDate: is required)", err.Error())
}
