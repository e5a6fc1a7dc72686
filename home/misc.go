package home

import (
	"fmt"
	"time"

	"github.com/NinjaGamerz509/Bot/sys"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
)

func (a *App) registerMisc() {
	a.Loader.RegisterCommand(discord.SlashCommandCreate{Name: "ping", Description: "Check bot latency"}, a.handlePing)
	a.Loader.RegisterCommand(discord.SlashCommandCreate{Name: "uptime", Description: "Check bot uptime"}, a.handleUptime)
	a.Loader.RegisterCommand(discord.SlashCommandCreate{Name: "help", Description: "Show all commands"}, a.handleHelp)

	a.Loader.RegisterCommand(discord.SlashCommandCreate{
		Name:                     "stop",
		Description:              "Stop the bot",
		DefaultMemberPermissions: adminOnly(),
	}, func(event *events.ApplicationCommandInteractionCreate) { a.handleBotExit(event, false) })

	a.Loader.RegisterCommand(discord.SlashCommandCreate{
		Name:                     "restart",
		Description:              "Restart the bot",
		DefaultMemberPermissions: adminOnly(),
	}, func(event *events.ApplicationCommandInteractionCreate) { a.handleBotExit(event, true) })
}

func (a *App) handlePing(event *events.ApplicationCommandInteractionCreate) {
	var latency time.Duration
	if gw := event.Client().Gateway; gw != nil {
		latency = gw.Latency()
	}
	reply(event, fmt.Sprintf(sys.MsgPing, latency.Milliseconds()))
}

func (a *App) handleUptime(event *events.ApplicationCommandInteractionCreate) {
	reply(event, formatUptime(time.Since(a.Loader.StartedAt())))
}

func formatUptime(d time.Duration) string {
	secs := int(d / time.Second)
	return fmt.Sprintf(sys.MsgUptime, secs/3600, (secs/60)%60, secs%60)
}

func (a *App) handleHelp(event *events.ApplicationCommandInteractionCreate) {
	_ = event.CreateMessage(discord.NewMessageCreateBuilder().
		SetIsComponentsV2(true).
		AddComponents(discord.NewContainer(
			discord.NewTextDisplay(sys.MsgHelpTitle+"\n"+sys.MsgHelpBody),
			discord.NewSeparator(discord.SeparatorSpacingSizeSmall).WithDivider(true),
			discord.NewTextDisplay(sys.MsgHelpFooter),
		).WithAccentColor(BrandColor)).
		Build())
}

func (a *App) handleBotExit(event *events.ApplicationCommandInteractionCreate, restart bool) {
	if !a.requireAdmin(event) {
		return
	}
	user := event.User()
	if restart {
		sys.LogInfo(sys.MsgRebootCommand, user.Username, user.ID)
		reply(event, sys.MsgBotRestarting)
	} else {
		sys.LogInfo(sys.MsgStopCommanded, user.Username, user.ID)
		reply(event, sys.MsgBotStopping)
	}
	if a.shutdown != nil {
		a.shutdown(restart)
	}
}
