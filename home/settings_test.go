package home

import (
	"context"
	"testing"
	"time"

	"github.com/NinjaGamerz509/Bot/sys"
	"github.com/sho0pi/naturaltime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventEnd(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	end, err := parseEventEnd(nil, "90m", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(90*time.Minute), end)

	end, err = parseEventEnd(nil, "2h30m", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(150*time.Minute), end)

	_, err = parseEventEnd(nil, "-5m", now)
	assert.ErrorIs(t, err, errBadDuration)

	_, err = parseEventEnd(nil, "0s", now)
	assert.ErrorIs(t, err, errBadDuration)

	_, err = parseEventEnd(nil, "9000h", now)
	assert.ErrorIs(t, err, errBadDuration)

	_, err = parseEventEnd(nil, "whenever", now)
	assert.Error(t, err)
}

func TestParseEventEndNaturalLanguage(t *testing.T) {
	parser, err := naturaltime.New()
	require.NoError(t, err)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	end, err := parseEventEnd(parser, "in 3 days", now)
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(72*time.Hour), end, time.Hour)

	_, err = parseEventEnd(parser, "purple elephants", now)
	assert.Error(t, err)
}

func TestDispatchDueEventsWithoutClientKeepsEvents(t *testing.T) {
	app := newTestApp(t, nil)
	ctx := context.Background()

	require.NoError(t, app.Store.AddEvent(ctx, &sys.ServerEvent{
		GuildID:   1,
		ChannelID: 2,
		CreatedBy: testAdmin,
		Name:      "Build contest",
		EndsAt:    time.Now().Add(-time.Minute),
	}))

	app.dispatchDueEvents(ctx)

	n, err := app.Store.CountEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "events stay queued until the client is ready")
}
