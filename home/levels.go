package home

import (
	"fmt"
	"strings"

	"github.com/NinjaGamerz509/Bot/proc"
	"github.com/NinjaGamerz509/Bot/sys"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
)

const leaderboardSize = 10

func (a *App) registerLevels() {
	a.Loader.RegisterCommand(discord.SlashCommandCreate{
		Name:        "rank",
		Description: "Check your level",
	}, a.handleRank)

	a.Loader.RegisterCommand(discord.SlashCommandCreate{
		Name:        "leaderboard",
		Description: "Top 10 users by level",
	}, a.handleLeaderboard)

	a.Loader.RegisterMessageHandler(a.onLevelMessage)
}

func (a *App) onLevelMessage(event *events.MessageCreate) {
	if event.Message.Author.Bot || event.GuildID == nil {
		return
	}

	rec, levelUp := a.Levels.Award(event.Message.Author.ID)
	if !levelUp {
		return
	}

	settings, err := a.Store.GuildSettings(a.Loader.Context(), *event.GuildID)
	if err != nil {
		sys.LogLevels(sys.MsgLevelsPostFail, err)
		return
	}
	if settings.LevelChannel == 0 {
		return
	}

	msg := card{
		Title: sys.MsgLevelUpTitle,
		Body:  fmt.Sprintf(sys.MsgLevelUpBody, mentionUser(rec.UserID), rec.Level),
	}.message()
	if _, err := event.Client().Rest.CreateMessage(settings.LevelChannel, msg); err != nil {
		sys.LogLevels(sys.MsgLevelsPostFail, err)
	}
}

func (a *App) handleRank(event *events.ApplicationCommandInteractionCreate) {
	rec := a.Levels.Get(event.User().ID)
	reply(event, fmt.Sprintf(sys.MsgRank, rec.Level, rec.XP))
}

func (a *App) handleLeaderboard(event *events.ApplicationCommandInteractionCreate) {
	_ = event.CreateMessage(card{
		Title: sys.MsgLeaderboardTitle,
		Body:  formatLeaderboard(a.Levels.Top(leaderboardSize)),
	}.message())
}

func formatLeaderboard(top []proc.LevelRecord) string {
	if len(top) == 0 {
		return sys.MsgLeaderboardEmpty
	}
	rows := make([]string, len(top))
	for i, r := range top {
		rows[i] = fmt.Sprintf(sys.MsgLeaderboardRow, i+1, r.UserID, r.Level, r.XP)
	}
	return strings.Join(rows, "\n")
}
