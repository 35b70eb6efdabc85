package domainerrors_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "datamarket/pkg/domain-errors"
)

func TestNew(t *testing.T) {
	err := dErrors.New(dErrors.CodeInvalidPrice, "price must be greater than zero")

	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidPrice))
	assert.False(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	assert.Equal(t, "invalid_price: price must be greater than zero", err.Error())
}

func TestWrap(t *testing.T) {
	t.Run("nil cause returns nil", func(t *testing.T) {
		assert.NoError(t, dErrors.Wrap(nil, dErrors.CodeInternal, "should not happen"))
	})

	t.Run("cause remains reachable through errors.Is", func(t *testing.T) {
		cause := errors.New("connection reset")
		err := dErrors.Wrap(cause, dErrors.CodeInternal, "store unavailable")

		require.Error(t, err)
		assert.ErrorIs(t, err, cause)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func TestHasCodeThroughWrapping(t *testing.T) {
	inner := dErrors.New(dErrors.CodeNotFound, "record not found")
	outer := fmt.Errorf("grant access: %w", inner)

	assert.True(t, dErrors.HasCode(outer, dErrors.CodeNotFound))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, dErrors.CodeInvalidFee,
		dErrors.CodeOf(dErrors.New(dErrors.CodeInvalidFee, "fee out of range")))
	assert.Equal(t, dErrors.CodeInternal, dErrors.CodeOf(errors.New("plain error")))
}

func TestMessageOfHidesInternals(t *testing.T) {
	assert.Equal(t, "record not found",
		dErrors.MessageOf(dErrors.New(dErrors.CodeNotFound, "record not found")))
	assert.Equal(t, "internal error", dErrors.MessageOf(errors.New("pq: relation missing")))
}
