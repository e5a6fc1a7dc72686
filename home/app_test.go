package home

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/NinjaGamerz509/Bot/sys"
	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAdmin snowflake.ID = 1310109265389817888

func newTestApp(t *testing.T, mutate func(cfg *sys.Config)) *App {
	t.Helper()

	cfg, err := sys.ConfigFromEnv(func(key string) string {
		switch key {
		case "DISCORD_TOKEN":
			return "token"
		case "ADMIN_ID":
			return testAdmin.String()
		}
		return ""
	})
	require.NoError(t, err)
	if mutate != nil {
		mutate(cfg)
	}

	store, err := sys.OpenStore(context.Background(), filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	loader, err := sys.NewLoader(store, 4)
	require.NoError(t, err)
	t.Cleanup(func() { loader.Release(time.Second) })

	app, err := NewApp(cfg, store, loader, nil)
	require.NoError(t, err)
	return app
}

func TestNewAppWithoutLocalServerIsSimulated(t *testing.T) {
	app := newTestApp(t, nil)

	assert.Nil(t, app.supervisor)
	assert.Nil(t, app.Client())
	assert.True(t, app.Config.IsAdmin(testAdmin))

	snap := app.Machine.Status()
	assert.True(t, snap.Simulated)
	assert.Equal(t, sys.DefaultServerIP, snap.Endpoint)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0h 0m 0s", formatDuration(0))
	assert.Equal(t, "1h 1m 1s", formatDuration(time.Hour+time.Minute+time.Second))
	assert.Equal(t, "26h 0m 5s", formatDuration(26*time.Hour+4600*time.Millisecond))
}

func TestMentions(t *testing.T) {
	assert.Equal(t, "<#42>", mentionChannel(42))
	assert.Equal(t, "<@42>", mentionUser(42))
	assert.Equal(t, "<@&42>", mentionRole(42))
}
