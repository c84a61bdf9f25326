package app

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowin/internal/config"
	"flowin/internal/feed"
	"flowin/internal/repo"
)

func TestOpenDefaultsWithoutConfigFile(t *testing.T) {
	ctx := context.Background()
	w, err := Open(ctx, t.TempDir())
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, "memory", w.Config.Feed.Backend)
	assert.IsType(t, &feed.Hub{}, w.Engine.Feed)
	assert.IsType(t, repo.Prefs{}, w.Engine.Prefs)

	p, err := w.Engine.CreateProject(ctx, "Local", "", "u1")
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(config.Path(dir), []byte("feed:\n  backend: kafka\n"), 0o644))
	_, err := Open(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feed.backend")
}

func TestResolveUser(t *testing.T) {
	ctx := context.Background()
	w, err := Open(ctx, t.TempDir())
	require.NoError(t, err)
	defer w.Close()

	def, err := ResolveUser(ctx, w.Engine, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultLocalUser, def.Email)

	again, err := ResolveUser(ctx, w.Engine, def.ID)
	require.NoError(t, err)
	assert.Equal(t, def.ID, again.ID)

	byEmail, err := ResolveUser(ctx, w.Engine, "  "+DefaultLocalUser)
	require.NoError(t, err)
	assert.Equal(t, def.ID, byEmail.ID)

	_, err = ResolveUser(ctx, w.Engine, "no-such-id")
	require.Error(t, err)
}
