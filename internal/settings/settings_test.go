package settings_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/telemetryd/internal/errors"
	"codeberg.org/mutker/telemetryd/internal/logger"
	"codeberg.org/mutker/telemetryd/internal/settings"
	"codeberg.org/mutker/telemetryd/internal/telemetry"
)

func newStore(t *testing.T) telemetry.Store {
	t.Helper()
	cfg := telemetry.DefaultConfig()
	cfg.DBPath = telemetry.MemoryPath
	store, err := telemetry.Open(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestEnsureDefault(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	iv := settings.NewStoreInterval(store, settings.DefaultInterval)

	require.NoError(t, iv.EnsureDefault(ctx))

	doc, ok, err := store.GetSetting(ctx, settings.IntervalKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "10", doc.Value)
	assert.Equal(t, settings.IntervalDescription, doc.Description)

	require.NoError(t, iv.Set(ctx, 42))
	require.NoError(t, iv.EnsureDefault(ctx))

	got, err := iv.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42, got, "existing value is kept")
}

func TestGetWithoutStoredValue(t *testing.T) {
	iv := settings.NewStoreInterval(newStore(t), 0)

	got, err := iv.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, settings.DefaultInterval, got)
}

func TestSetAndGet(t *testing.T) {
	ctx := context.Background()
	iv := settings.NewStoreInterval(newStore(t), 10)

	require.NoError(t, iv.Set(ctx, 3))
	got, err := iv.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, got)

	require.NoError(t, iv.Set(ctx, settings.MaxInterval))
	got, err = iv.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, settings.MaxInterval, got)
}

func TestSetRejectsOutOfRange(t *testing.T) {
	ctx := context.Background()
	iv := settings.NewStoreInterval(newStore(t), 10)
	require.NoError(t, iv.Set(ctx, 5))

	for _, v := range []int{0, -5, settings.MaxInterval + 1, 10_000_000_000} {
		err := iv.Set(ctx, v)
		require.Error(t, err, v)
		assert.True(t, errors.HasCode(err, settings.ErrInvalidInterval))
		assert.Equal(t, errors.KindValidation, errors.KindOf(err))
	}

	got, err := iv.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, got, "rejected values are not stored")
}

func TestGetCorruptValue(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	iv := settings.NewStoreInterval(store, 10)
	require.NoError(t, iv.Set(ctx, 7))

	for _, raw := range []string{"abc", "0", "-1", "2.5", "86401", "10000000000"} {
		require.NoError(t, store.PutSetting(ctx, telemetry.Setting{Key: settings.IntervalKey, Value: raw}))

		_, err := iv.Get(ctx)
		require.Error(t, err, raw)
		assert.True(t, errors.HasCode(err, settings.ErrCorruptInterval))
	}
}
