package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phantomwg/wsbridge/internal/bridgeerr"
)

func TestSetStateAndMode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t, Options{})

	before, err := s.GetStatus(ctx)
	require.NoError(t, err)

	require.NoError(t, s.SetState(ctx, StateStarted))
	require.NoError(t, s.SetMode(ctx, ModeServer))

	after, err := s.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateStarted, after.State)
	assert.Equal(t, ModeServer, after.Mode)
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))
}

func TestSetStateRejectsUnknownValues(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t, Options{})

	assert.ErrorIs(t, s.SetState(ctx, "uninitialized"), bridgeerr.InvalidParam)
	assert.ErrorIs(t, s.SetMode(ctx, "relay"), bridgeerr.InvalidParam)

	status, err := s.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateInitialized, status.State)
	assert.Equal(t, ModeClient, status.Mode)
}

func TestGetStatusWithoutSeedIsLookupError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t, Options{})

	_, err := s.DB().ExecContext(ctx, `DELETE FROM status`)
	require.NoError(t, err)

	_, err = s.GetStatus(ctx)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.ErrorIs(t, err, bridgeerr.DbQuery)

	err = s.SetState(ctx, StateStarted)
	assert.True(t, IsNotFound(err))
}
