package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPresenceConnect(t *testing.T) {
	ctx := context.Background()

	t.Run("first connection reports the transition", func(t *testing.T) {
		p := NewMemoryPresence()

		first, err := p.Connect(ctx, "alice")

		require.NoError(t, err)
		assert.True(t, first)
	})

	t.Run("second connection of the same user does not", func(t *testing.T) {
		p := NewMemoryPresence()
		_, err := p.Connect(ctx, "alice")
		require.NoError(t, err)

		first, err := p.Connect(ctx, "alice")

		require.NoError(t, err)
		assert.False(t, first)
	})
}

func TestMemoryPresenceDisconnect(t *testing.T) {
	ctx := context.Background()

	t.Run("user with two connections stays online after one drops", func(t *testing.T) {
		p := NewMemoryPresence()
		_, err := p.Connect(ctx, "alice")
		require.NoError(t, err)
		_, err = p.Connect(ctx, "alice")
		require.NoError(t, err)

		last, err := p.Disconnect(ctx, "alice")

		require.NoError(t, err)
		assert.False(t, last)
		users, err := p.Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"alice"}, users)
	})

	t.Run("final disconnect reports the transition", func(t *testing.T) {
		p := NewMemoryPresence()
		_, err := p.Connect(ctx, "alice")
		require.NoError(t, err)

		last, err := p.Disconnect(ctx, "alice")

		require.NoError(t, err)
		assert.True(t, last)
		users, err := p.Snapshot(ctx)
		require.NoError(t, err)
		assert.Empty(t, users)
	})

	t.Run("disconnect of an unknown user is a no-op", func(t *testing.T) {
		p := NewMemoryPresence()

		last, err := p.Disconnect(ctx, "ghost")

		require.NoError(t, err)
		assert.False(t, last)
	})
}

func TestMemoryPresenceSnapshot(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPresence()
	for _, u := range []string{"carol", "alice", "bob"} {
		_, err := p.Connect(ctx, u)
		require.NoError(t, err)
	}

	users, err := p.Snapshot(ctx)

	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "carol"}, users)
}
