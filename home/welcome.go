package home

import (
	"fmt"

	"github.com/NinjaGamerz509/Bot/sys"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
)

func (a *App) registerWelcome() {
	a.Loader.RegisterMemberJoinHandler(a.onMemberJoin)
}

func (a *App) onMemberJoin(event *events.GuildMemberJoin) {
	member := event.Member
	if member.User.Bot {
		return
	}
	sys.LogWelcome(sys.MsgWelcomeLogJoin, member.User.Username, event.GuildID)

	settings, err := a.Store.GuildSettings(a.Loader.Context(), event.GuildID)
	if err != nil {
		sys.LogWelcome(sys.MsgGenericError, err)
		return
	}
	rest := event.Client().Rest

	if settings.AutoRole != 0 {
		if err := rest.AddMemberRole(event.GuildID, member.User.ID, settings.AutoRole); err != nil {
			sys.LogWelcome(sys.MsgWelcomeRoleFail, settings.AutoRole, member.User.ID, err)
		}
	}

	if settings.WelcomeChannel != 0 {
		msg := welcomeMessage(member.User.ID, member.User.EffectiveAvatarURL())
		if _, err := rest.CreateMessage(settings.WelcomeChannel, msg); err != nil {
			sys.LogWelcome(sys.MsgWelcomeSendFail, err)
		}
	}
}

func welcomeMessage(userID snowflake.ID, avatarURL string) discord.MessageCreate {
	text := "### " + sys.MsgWelcomeTitle + "\n" + fmt.Sprintf(sys.MsgWelcomeBody, mentionUser(userID))

	var head discord.ContainerSubComponent = discord.NewTextDisplay(text)
	if avatarURL != "" {
		head = discord.NewSection(discord.NewTextDisplay(text)).WithAccessory(discord.NewThumbnail(avatarURL))
	}

	return discord.NewMessageCreateBuilder().
		SetIsComponentsV2(true).
		AddComponents(discord.NewContainer(
			head,
			discord.NewSeparator(discord.SeparatorSpacingSizeSmall).WithDivider(true),
			discord.NewTextDisplay(sys.MsgWelcomeFooter),
		).WithAccentColor(BrandColor)).
		Build()
}
