package sys

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/NinjaGamerz509/Bot/proc"
	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenStoreIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s, err := OpenStore(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.SetBotConfig(ctx, "k", "v"))
	require.NoError(t, s.Close())

	s, err = OpenStore(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	v, err := s.GetBotConfig(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestBotConfig(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	v, err := s.GetBotConfig(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetBotConfig(ctx, "last_cmd_hash", "a"))
	require.NoError(t, s.SetBotConfig(ctx, "last_cmd_hash", "b"))
	v, err = s.GetBotConfig(ctx, "last_cmd_hash")
	require.NoError(t, err)
	assert.Equal(t, "b", v)
}

func TestConsoleChannel(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.ConsoleChannel(ctx)
	require.NoError(t, err)
	assert.Zero(t, id)

	changed, err := s.SetConsoleChannel(ctx, 555)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.SetConsoleChannel(ctx, 555)
	require.NoError(t, err)
	assert.False(t, changed, "same channel twice is a duplicate")

	id, err = s.ConsoleChannel(ctx)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(555), id)
}

func TestGuildSettings(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	const guild snowflake.ID = 900

	settings, err := s.GuildSettings(ctx, guild)
	require.NoError(t, err)
	assert.Equal(t, GuildSettings{GuildID: guild}, settings)

	changed, err := s.SetWelcomeChannel(ctx, guild, 10)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = s.SetWelcomeChannel(ctx, guild, 10)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = s.SetLevelChannel(ctx, guild, 11)
	require.NoError(t, err)
	_, err = s.SetAutoRole(ctx, guild, 12)
	require.NoError(t, err)

	settings, err = s.GuildSettings(ctx, guild)
	require.NoError(t, err)
	assert.Equal(t, GuildSettings{GuildID: guild, WelcomeChannel: 10, LevelChannel: 11, AutoRole: 12}, settings)

	other, err := s.GuildSettings(ctx, 901)
	require.NoError(t, err)
	assert.Zero(t, other.WelcomeChannel, "settings are per guild")
}

func TestLevelsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveLevels(ctx, []proc.LevelRecord{
		{UserID: 1, XP: 40, Level: 2},
		{UserID: 2, XP: 5, Level: 1},
	}))
	require.NoError(t, s.SaveLevels(ctx, []proc.LevelRecord{{UserID: 1, XP: 0, Level: 3}}))

	rows, err := s.LoadLevels(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []proc.LevelRecord{
		{UserID: 1, XP: 0, Level: 3},
		{UserID: 2, XP: 5, Level: 1},
	}, rows)

	lv := proc.NewLevels(proc.LevelsConfig{Store: s})
	require.NoError(t, lv.Load(ctx))
	assert.Equal(t, 3, lv.Get(1).Level)
}

func TestClaimDueEvents(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	past := &ServerEvent{GuildID: 900, ChannelID: 10, CreatedBy: 1, Name: "PvP", EndsAt: now.Add(-time.Minute)}
	future := &ServerEvent{GuildID: 900, ChannelID: 10, CreatedBy: 1, Name: "Build", EndsAt: now.Add(time.Hour)}
	require.NoError(t, s.AddEvent(ctx, past))
	require.NoError(t, s.AddEvent(ctx, future))
	assert.NotZero(t, past.ID)

	due, err := s.ClaimDueEvents(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "PvP", due[0].Name)
	assert.Equal(t, snowflake.ID(10), due[0].ChannelID)

	due, err = s.ClaimDueEvents(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, due, "claimed events are removed")

	n, err := s.CountEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
