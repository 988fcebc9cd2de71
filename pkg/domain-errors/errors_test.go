package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	t.Run("nil cause yields nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeInternal, "should vanish"))
	})

	t.Run("cause stays reachable through errors.Is", func(t *testing.T) {
		cause := errors.New("connection reset")
		err := Wrap(cause, CodeRetryable, "store write failed")
		require.Error(t, err)
		assert.True(t, errors.Is(err, cause))
		assert.Contains(t, err.Error(), "connection reset")
		assert.Contains(t, err.Error(), "retryable")
	})
}

func TestHasCode(t *testing.T) {
	inner := New(CodeNotFound, "record missing")
	outer := Wrap(inner, CodeRetryable, "lookup failed")

	assert.True(t, HasCode(outer, CodeRetryable), "outer code matches")
	assert.True(t, HasCode(outer, CodeNotFound), "walks the chain to inner codes")
	assert.False(t, HasCode(outer, CodeConflict))
	assert.False(t, HasCode(nil, CodeInternal))

	t.Run("plain errors carry no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("plain"), CodeInternal))
	})

	t.Run("coded error behind fmt wrapping is still found", func(t *testing.T) {
		wrapped := fmt.Errorf("handler: %w", New(CodeAlreadyProcessed, "done"))
		assert.True(t, HasCode(wrapped, CodeAlreadyProcessed))
	})
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeValidation, CodeOf(New(CodeValidation, "bad field")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")), "uncoded errors default to internal")

	t.Run("outermost code wins", func(t *testing.T) {
		err := Wrap(New(CodeNotFound, "inner"), CodeRetryable, "outer")
		assert.Equal(t, CodeRetryable, CodeOf(err))
	})
}

func TestNewf(t *testing.T) {
	err := Newf(CodeInvalidInput, "unrecognized event_name %q", "BOGUS")
	assert.Contains(t, err.Error(), `"BOGUS"`)
	assert.True(t, HasCode(err, CodeInvalidInput))
}
