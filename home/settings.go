package home

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/NinjaGamerz509/Bot/sys"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sho0pi/naturaltime"
)

const (
	eventPollInterval = 10 * time.Second
	maxEventDuration  = 365 * 24 * time.Hour
)

var errBadDuration = errors.New("duration must be in the future")

func (a *App) registerSettings() {
	channelOption := func(desc string) discord.ApplicationCommandOption {
		return discord.ApplicationCommandOptionChannel{
			Name:         "channel",
			Description:  desc,
			Required:     true,
			ChannelTypes: []discord.ChannelType{discord.ChannelTypeGuildText},
		}
	}

	a.Loader.RegisterCommand(discord.SlashCommandCreate{
		Name:                     "setwelcomechannel",
		Description:              "Set the channel for welcome messages",
		Options:                  []discord.ApplicationCommandOption{channelOption("Welcome channel")},
		DefaultMemberPermissions: adminOnly(),
		Contexts:                 guildOnly,
	}, a.handleSetWelcomeChannel)

	a.Loader.RegisterCommand(discord.SlashCommandCreate{
		Name:                     "setlevelchannel",
		Description:              "Set the channel for level-up messages",
		Options:                  []discord.ApplicationCommandOption{channelOption("Level-up channel")},
		DefaultMemberPermissions: adminOnly(),
		Contexts:                 guildOnly,
	}, a.handleSetLevelChannel)

	a.Loader.RegisterCommand(discord.SlashCommandCreate{
		Name:        "setautorole",
		Description: "Set the role given to new members",
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionRole{Name: "role", Description: "Role to assign", Required: true},
		},
		DefaultMemberPermissions: adminOnly(),
		Contexts:                 guildOnly,
	}, a.handleSetAutoRole)

	a.Loader.RegisterCommand(discord.SlashCommandCreate{
		Name:        "greettest",
		Description: "Send a test greeting to the welcome channel",
		Contexts:    guildOnly,
	}, a.handleGreetTest)
}

func (a *App) handleSetWelcomeChannel(event *events.ApplicationCommandInteractionCreate) {
	a.setGuildChannel(event, a.Store.SetWelcomeChannel, sys.MsgWelcomeSet, sys.MsgWelcomeDuplicate)
}

func (a *App) handleSetLevelChannel(event *events.ApplicationCommandInteractionCreate) {
	a.setGuildChannel(event, a.Store.SetLevelChannel, sys.MsgLevelChannelSet, sys.MsgLevelChannelDup)
}

type guildSetter func(ctx context.Context, guildID, id snowflake.ID) (bool, error)

func (a *App) setGuildChannel(event *events.ApplicationCommandInteractionCreate, set guildSetter, okMsg, dupMsg string) {
	if !a.requireAdmin(event) {
		return
	}
	guildID := event.GuildID()
	if guildID == nil {
		replyEphemeral(event, sys.ErrGuildOnly)
		return
	}
	channel, ok := event.SlashCommandInteractionData().OptChannel("channel")
	if !ok {
		replyEphemeral(event, sys.ErrMissingChannel)
		return
	}

	changed, err := set(a.Loader.Context(), *guildID, channel.ID)
	switch {
	case err != nil:
		sys.LogDatabase(sys.MsgGenericError, err)
		replyEphemeral(event, fmt.Sprintf(sys.ErrSettingSaveFail, err))
	case !changed:
		replyEphemeral(event, dupMsg)
	default:
		reply(event, fmt.Sprintf(okMsg, mentionChannel(channel.ID)))
	}
}

func (a *App) handleSetAutoRole(event *events.ApplicationCommandInteractionCreate) {
	if !a.requireAdmin(event) {
		return
	}
	guildID := event.GuildID()
	if guildID == nil {
		replyEphemeral(event, sys.ErrGuildOnly)
		return
	}
	role, ok := event.SlashCommandInteractionData().OptRole("role")
	if !ok {
		replyEphemeral(event, sys.ErrMissingRole)
		return
	}

	changed, err := a.Store.SetAutoRole(a.Loader.Context(), *guildID, role.ID)
	switch {
	case err != nil:
		sys.LogDatabase(sys.MsgGenericError, err)
		replyEphemeral(event, fmt.Sprintf(sys.ErrSettingSaveFail, err))
	case !changed:
		replyEphemeral(event, fmt.Sprintf(sys.MsgAutoRoleDuplicate, mentionRole(role.ID)))
	default:
		reply(event, fmt.Sprintf(sys.MsgAutoRoleSet, mentionRole(role.ID)))
	}
}

func (a *App) handleGreetTest(event *events.ApplicationCommandInteractionCreate) {
	guildID := event.GuildID()
	if guildID == nil {
		replyEphemeral(event, sys.ErrGuildOnly)
		return
	}
	settings, err := a.Store.GuildSettings(a.Loader.Context(), *guildID)
	if err != nil || settings.WelcomeChannel == 0 {
		replyEphemeral(event, sys.ErrWelcomeNotSet)
		return
	}

	if _, err := event.Client().Rest.CreateMessage(settings.WelcomeChannel,
		discord.NewMessageCreateBuilder().SetContent(sys.MsgGreetTestContent).Build()); err != nil {
		sys.LogWelcome(sys.MsgWelcomeSendFail, err)
	}
	reply(event, sys.MsgGreetTestSent)
}

// --- Events ---

func (a *App) registerEvents() {
	a.Loader.RegisterCommand(discord.SlashCommandCreate{
		Name:        "setevent",
		Description: "Announce a server event with a duration",
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionString{Name: "name", Description: "Event name", Required: true, MaxLength: intPtr(100)},
			discord.ApplicationCommandOptionString{Name: "duration", Description: "How long it runs, e.g. 2h or \"in 3 days\"", Required: true},
		},
		DefaultMemberPermissions: adminOnly(),
		Contexts:                 guildOnly,
	}, a.handleSetEvent)

	a.Loader.RegisterDaemon(sys.LogEvents, a.startEventScheduler)
}

func (a *App) handleSetEvent(event *events.ApplicationCommandInteractionCreate) {
	if !a.requireAdmin(event) {
		return
	}
	data := event.SlashCommandInteractionData()
	name := strings.TrimSpace(data.String("name"))
	duration := strings.TrimSpace(data.String("duration"))

	now := a.Clock.Now()
	endsAt, err := parseEventEnd(a.dates, duration, now)
	if err != nil {
		replyEphemeral(event, fmt.Sprintf(sys.ErrEventDuration, duration))
		return
	}

	ev := &sys.ServerEvent{
		ChannelID: event.Channel().ID(),
		CreatedBy: event.User().ID,
		Name:      name,
		EndsAt:    endsAt,
	}
	if guildID := event.GuildID(); guildID != nil {
		ev.GuildID = *guildID
	}
	if err := a.Store.AddEvent(a.Loader.Context(), ev); err != nil {
		sys.LogEvents(sys.MsgGenericError, err)
		replyEphemeral(event, fmt.Sprintf(sys.ErrSettingSaveFail, err))
		return
	}
	reply(event, fmt.Sprintf(sys.MsgEventSet, name, duration, endsAt.Unix()))
}

// parseEventEnd accepts a Go duration ("90m") or a natural phrase ("in 2
// hours", "tomorrow at 6pm") and returns the absolute end time.
func parseEventEnd(parser *naturaltime.Parser, input string, now time.Time) (time.Time, error) {
	var end time.Time
	if d, err := time.ParseDuration(input); err == nil {
		end = now.Add(d)
	} else if parser != nil {
		t, err := parser.ParseDate(input, now)
		if err != nil {
			return time.Time{}, err
		}
		if t == nil {
			return time.Time{}, fmt.Errorf("could not parse time: %s", input)
		}
		end = *t
	} else {
		return time.Time{}, fmt.Errorf("could not parse time: %s", input)
	}

	if !end.After(now) || end.Sub(now) > maxEventDuration {
		return time.Time{}, errBadDuration
	}
	return end, nil
}

func (a *App) startEventScheduler(ctx context.Context) (bool, func(), func()) {
	runCtx, cancel := context.WithCancel(ctx)
	return true, func() {
		ticker := time.NewTicker(eventPollInterval)
		defer ticker.Stop()

		a.dispatchDueEvents(runCtx)
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				a.dispatchDueEvents(runCtx)
			}
		}
	}, func() {
		sys.LogEvents(sys.MsgEventSchedulerStop)
		cancel()
	}
}

func (a *App) dispatchDueEvents(ctx context.Context) {
	client := a.Client()
	if client == nil {
		return
	}
	due, err := a.Store.ClaimDueEvents(ctx, a.Clock.Now())
	if err != nil {
		sys.LogEvents(sys.MsgEventQueryFail, err)
		return
	}
	for _, ev := range due {
		a.Loader.Go(func() {
			msg := card{
				Title: sys.MsgEventEndedTitle,
				Body:  fmt.Sprintf(sys.MsgEventEndedBody, ev.Name, mentionUser(ev.CreatedBy)),
			}.message()
			if _, err := client.Rest.CreateMessage(ev.ChannelID, msg, rest.WithCtx(ctx)); err != nil {
				sys.LogEvents(sys.MsgEventSendFail, ev.ID, err)
				return
			}
			sys.LogEvents(sys.MsgEventEndedLog, ev.Name, ev.ChannelID)
		})
	}
}

func intPtr(v int) *int { return &v }
