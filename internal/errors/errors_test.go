package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/telemetryd/internal/errors"
)

func TestFactory(t *testing.T) {
	f := errors.New()

	t.Run("New uses the registered message", func(t *testing.T) {
		err := f.New(errors.ErrInvalidInterval)
		assert.Equal(t, "Invalid interval value", err.Error())
		assert.Equal(t, errors.ErrInvalidInterval, err.Code())
	})

	t.Run("Wrap keeps the cause", func(t *testing.T) {
		cause := stderrors.New("disk full")
		err := f.Wrap(errors.ErrOperationFailed, cause)
		assert.Equal(t, "Operation failed: disk full", err.Error())
		assert.ErrorIs(t, err, cause)
	})

	t.Run("WithMessage does not mutate the original", func(t *testing.T) {
		base := f.New(errors.ErrTimeout)
		derived := base.WithMessage("sampling took too long")
		assert.Equal(t, "Operation timed out", base.Error())
		assert.Equal(t, "sampling took too long", derived.Error())
		assert.Equal(t, errors.ErrTimeout, derived.Code())
	})

	t.Run("WithData is rendered", func(t *testing.T) {
		err := f.WithData(errors.ErrInvalidArgument, "limit=-1")
		assert.Equal(t, "Invalid argument provided: limit=-1", err.Error())
		assert.Equal(t, "limit=-1", err.GetData())
	})

	t.Run("unknown code falls back to the code string", func(t *testing.T) {
		err := f.New(errors.ErrorCode("something_odd"))
		assert.Equal(t, "something_odd", err.Error())
	})
}

func TestRegisterMessages(t *testing.T) {
	code := errors.ErrorCode("errors_test_registered")
	errors.RegisterMessages(map[errors.ErrorCode]string{
		code:               "Registered in test",
		errors.ErrInternal: "should not overwrite",
	})

	assert.Equal(t, "Registered in test", errors.GetErrorMessage(code))
	assert.Equal(t, "Internal error occurred", errors.GetErrorMessage(errors.ErrInternal))
}

func TestCodeOf(t *testing.T) {
	f := errors.New()

	assert.Equal(t, errors.ErrInternal, errors.CodeOf(stderrors.New("plain")))

	inner := f.New(errors.ErrResourceNotFound)
	wrapped := fmt.Errorf("lookup: %w", inner)
	assert.Equal(t, errors.ErrResourceNotFound, errors.CodeOf(wrapped))

	outer := f.Wrap(errors.ErrBootstrap, inner)
	assert.Equal(t, errors.ErrBootstrap, errors.CodeOf(outer))
}

func TestHasCode(t *testing.T) {
	f := errors.New()
	inner := f.New(errors.ErrTimeout)
	outer := f.Wrap(errors.ErrOperationFailed, inner)

	assert.True(t, errors.HasCode(outer, errors.ErrTimeout))
	assert.True(t, errors.HasCode(outer, errors.ErrOperationFailed))
	assert.False(t, errors.HasCode(outer, errors.ErrInternal))
	assert.False(t, errors.HasCode(nil, errors.ErrTimeout))

	joined := errors.Join(stderrors.New("first"), f.New(errors.ErrInvalidInterval))
	assert.True(t, errors.HasCode(joined, errors.ErrInvalidInterval))
}

func TestKindOf(t *testing.T) {
	f := errors.New()

	assert.Equal(t, errors.KindValidation, errors.KindOf(f.New(errors.ErrInvalidArgument)))
	assert.Equal(t, errors.KindNotFound, errors.KindOf(f.New(errors.ErrResourceNotFound)))
	assert.Equal(t, errors.KindInternal, errors.KindOf(stderrors.New("plain")))
	assert.Equal(t, errors.KindInternal, errors.KindOf(nil))

	code := errors.ErrorCode("errors_test_store")
	errors.RegisterKinds(map[errors.ErrorCode]errors.Kind{code: errors.KindStore})
	err := fmt.Errorf("wrapped: %w", f.New(code))
	require.Error(t, err)
	assert.Equal(t, errors.KindStore, errors.KindOf(err))
	assert.Equal(t, "store", errors.KindOf(err).String())
}
