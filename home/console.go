package home

import (
	"context"
	"fmt"
	"time"

	"github.com/NinjaGamerz509/Bot/sys"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/rest"
)

const consoleDrainTimeout = 3 * time.Second

// consoleSink delivers relay blocks to the configured console channel.
type consoleSink struct {
	app *App
}

func (s consoleSink) SendConsole(ctx context.Context, block string) error {
	client := s.app.Client()
	if client == nil {
		return errNotReady
	}
	channelID, err := s.app.Store.ConsoleChannel(ctx)
	if err != nil {
		return err
	}
	if channelID == 0 {
		sys.LogDebug(sys.MsgConsoleNoChannel)
		return nil
	}
	_, err = client.Rest.CreateMessage(channelID, discord.NewMessageCreateBuilder().
		SetContent(block).
		SetAllowedMentions(&discord.AllowedMentions{}).
		Build(), rest.WithCtx(ctx))
	return err
}

func (a *App) registerConsole() {
	a.Loader.RegisterCommand(discord.SlashCommandCreate{
		Name:        "setconsolechannel",
		Description: "Stream the Minecraft server console to a channel",
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionChannel{
				Name:         "channel",
				Description:  "Channel for console output",
				Required:     true,
				ChannelTypes: []discord.ChannelType{discord.ChannelTypeGuildText},
			},
		},
		DefaultMemberPermissions: adminOnly(),
		Contexts:                 guildOnly,
	}, a.handleSetConsoleChannel)

	a.Loader.RegisterDaemon(sys.LogConsole, func(ctx context.Context) (bool, func(), func()) {
		runCtx, cancel := context.WithCancel(ctx)
		return true, func() {
			a.Relay.Run(runCtx)
		}, func() {
			sys.LogConsole(sys.MsgConsoleRelayStop)
			cancel()
			drainCtx, done := context.WithTimeout(context.Background(), consoleDrainTimeout)
			defer done()
			if err := a.Relay.Drain(drainCtx); err != nil {
				sys.LogConsole(sys.MsgConsoleDrainFail, err)
			}
		}
	})
}

func (a *App) handleSetConsoleChannel(event *events.ApplicationCommandInteractionCreate) {
	if !a.requireAdmin(event) {
		return
	}
	channel, ok := event.SlashCommandInteractionData().OptChannel("channel")
	if !ok {
		replyEphemeral(event, sys.ErrMissingChannel)
		return
	}

	changed, err := a.Store.SetConsoleChannel(a.Loader.Context(), channel.ID)
	if err != nil {
		replyEphemeral(event, fmt.Sprintf(sys.ErrSettingSaveFail, err))
		return
	}
	if !changed {
		replyEphemeral(event, sys.MsgConsoleDuplicate)
		return
	}
	reply(event, fmt.Sprintf(sys.MsgConsoleSet, mentionChannel(channel.ID)))
}
