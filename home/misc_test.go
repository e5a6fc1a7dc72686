package home

import (
	"fmt"
	"testing"
	"time"

	"github.com/NinjaGamerz509/Bot/proc"
	"github.com/NinjaGamerz509/Bot/sys"
	"github.com/stretchr/testify/assert"
)

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, fmt.Sprintf(sys.MsgUptime, 0, 0, 42), formatUptime(42*time.Second))
	assert.Equal(t, fmt.Sprintf(sys.MsgUptime, 27, 3, 9), formatUptime(27*time.Hour+3*time.Minute+9*time.Second+900*time.Millisecond))
}

func TestFormatLeaderboard(t *testing.T) {
	assert.Equal(t, sys.MsgLeaderboardEmpty, formatLeaderboard(nil))

	got := formatLeaderboard([]proc.LevelRecord{
		{UserID: 11, Level: 5, XP: 40},
		{UserID: 22, Level: 3, XP: 10},
	})
	assert.Equal(t,
		fmt.Sprintf(sys.MsgLeaderboardRow, 1, "11", 5, 40)+"\n"+fmt.Sprintf(sys.MsgLeaderboardRow, 2, "22", 3, 10),
		got)
}

func TestPresenceCandidates(t *testing.T) {
	snap := proc.Snapshot{State: proc.StateStarted}

	got := presenceCandidates(snap, sys.DefaultServerIP, time.Hour, 0)
	assert.Equal(t, []string{
		fmt.Sprintf(sys.MsgPresenceServer, "started"),
		fmt.Sprintf(sys.MsgPresenceUptime, "1h 0m 0s"),
	}, got)

	got = presenceCandidates(snap, "play.darkmc.net", time.Minute, 87*time.Millisecond)
	assert.Len(t, got, 4)
	assert.Contains(t, got, fmt.Sprintf(sys.MsgPresenceIP, "play.darkmc.net"))
	assert.Contains(t, got, fmt.Sprintf(sys.MsgPresencePing, 87))
}

func TestPickPresence(t *testing.T) {
	first := func(int) int { return 0 }

	assert.Equal(t, sys.MsgPresenceDefault, pickPresence(nil, "", first))
	assert.Equal(t, "a", pickPresence([]string{"a"}, "a", first), "a lone candidate may repeat")
	assert.Equal(t, "b", pickPresence([]string{"a", "b"}, "a", first))

	last := "b"
	for i := 0; i < 20; i++ {
		next := pickPresence([]string{"a", "b", "c"}, last, func(n int) int { return i % n })
		assert.NotEqual(t, last, next)
		last = next
	}
}

func TestWelcomeMessage(t *testing.T) {
	msg := welcomeMessage(77, "")
	assert.Len(t, msg.Components, 1)

	withAvatar := welcomeMessage(77, "https://cdn.discordapp.com/avatars/77/a.png")
	assert.Len(t, withAvatar.Components, 1)
}
