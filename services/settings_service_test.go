package services

import (
	"context"
	"testing"

	"permledger/events"
	"permledger/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAuthorityEndpoint(t *testing.T) {
	ctx := context.Background()
	tl := setupLedger(t, nil)

	t.Run("Sentinel rejected", func(t *testing.T) {
		err := tl.Settings.SetAuthorityEndpoint(ctx, "admin", models.SentinelPrincipal)
		assert.ErrorIs(t, err, ErrInvalidEndpoint)
	})

	t.Run("Set once", func(t *testing.T) {
		require.NoError(t, tl.Settings.SetAuthorityEndpoint(ctx, "admin", endpointE))
		s, err := tl.Settings.Settings(ctx)
		require.NoError(t, err)
		require.True(t, s.EndpointSet())
		assert.Equal(t, endpointE, *s.AuthorityEndpoint)
		assert.Equal(t, events.EndpointSet, tl.events.last().Kind)
	})

	t.Run("Never updated", func(t *testing.T) {
		err := tl.Settings.SetAuthorityEndpoint(ctx, "admin", "F")
		assert.ErrorIs(t, err, ErrEndpointAlreadySet)
		s, err := tl.Settings.Settings(ctx)
		require.NoError(t, err)
		assert.Equal(t, endpointE, *s.AuthorityEndpoint)
	})

	t.Run("Sentinel checked before already set", func(t *testing.T) {
		err := tl.Settings.SetAuthorityEndpoint(ctx, "admin", models.SentinelPrincipal)
		assert.ErrorIs(t, err, ErrInvalidEndpoint)
	})
}

func TestBootstrap(t *testing.T) {
	ctx := context.Background()
	tl := setupLedger(t, nil)

	set, err := tl.Settings.Bootstrap(ctx, endpointE)
	require.NoError(t, err)
	assert.True(t, set)
	assert.Equal(t, models.SystemPrincipal, tl.events.last().Principal)

	set, err = tl.Settings.Bootstrap(ctx, "F")
	require.NoError(t, err)
	assert.False(t, set)

	s, err := tl.Settings.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, endpointE, *s.AuthorityEndpoint)

	_, err = tl.Settings.Bootstrap(ctx, models.SentinelPrincipal)
	assert.ErrorIs(t, err, ErrInvalidEndpoint)
}

func TestSetCapacity(t *testing.T) {
	ctx := context.Background()
	tl := setupLedger(t, nil)

	t.Run("Invalid before unset", func(t *testing.T) {
		assert.ErrorIs(t, tl.Settings.SetCapacity(ctx, "admin", 0), ErrInvalidCapacity)
		assert.ErrorIs(t, tl.Settings.SetCapacity(ctx, "admin", -3), ErrInvalidCapacity)
	})

	t.Run("Endpoint unset", func(t *testing.T) {
		assert.ErrorIs(t, tl.Settings.SetCapacity(ctx, "admin", 5), ErrEndpointUnset)
		s, err := tl.Settings.Settings(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(10000), s.Capacity)
	})

	t.Run("Replaces ceiling", func(t *testing.T) {
		require.NoError(t, tl.Settings.SetAuthorityEndpoint(ctx, "admin", endpointE))
		require.NoError(t, tl.Settings.SetCapacity(ctx, "admin", 5))
		s, err := tl.Settings.Settings(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(5), s.Capacity)
		assert.Equal(t, uint64(500), s.Fee)
		assert.Equal(t, events.CapacitySet, tl.events.last().Kind)
	})
}

func TestSetFee(t *testing.T) {
	ctx := context.Background()
	tl := setupLedger(t, nil)

	assert.ErrorIs(t, tl.Settings.SetFee(ctx, "admin", -1), ErrInvalidFee)
	assert.ErrorIs(t, tl.Settings.SetFee(ctx, "admin", 10), ErrEndpointUnset)

	require.NoError(t, tl.Settings.SetAuthorityEndpoint(ctx, "admin", endpointE))
	require.NoError(t, tl.Settings.SetFee(ctx, "admin", 0))
	s, err := tl.Settings.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), s.Fee)
	assert.Equal(t, uint64(10000), s.Capacity)

	require.NoError(t, tl.Settings.SetFee(ctx, "admin", 750))
	s, err = tl.Settings.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(750), s.Fee)
	assert.Equal(t, events.FeeSet, tl.events.last().Kind)
}
