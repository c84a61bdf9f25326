package kv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, ok, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, "a", "1"))
	v, ok, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	set, err := m.SetIfAbsent(ctx, "a", "2")
	require.NoError(t, err)
	assert.False(t, set)
	set, err = m.SetIfAbsent(ctx, "b", "2")
	require.NoError(t, err)
	assert.True(t, set)

	require.NoError(t, m.Delete(ctx, "a"))
	_, ok, _ = m.Get(ctx, "a")
	assert.False(t, ok)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "flowin-recent-searches", RecentSearchesKey(""))
	assert.Equal(t, "flowin-recent-searches:u1", RecentSearchesKey("u1"))
	assert.Equal(t, "flowin-welcome-u1", WelcomeKey("u1"))
}
