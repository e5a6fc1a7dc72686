package home

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/NinjaGamerz509/Bot/proc"
	"github.com/NinjaGamerz509/Bot/sys"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
)

const (
	annButtonPrefix = "ann:"
	annModalPrefix  = "ann_modal:"
	annPickPrefix   = "ann_pick:"

	annActionChannel = "channel"
	annActionSend    = "send"
	annActionClose   = "close"

	maxPickerChannels = 25
	previewRunes      = 80
)

// annFields maps button actions to draft fields and their modal text.
var annFields = map[string]struct {
	field     proc.Field
	title     string
	label     string
	maxLen    int
	paragraph bool
}{
	"title": {proc.FieldTitle, sys.MsgAnnounceModalTitle, sys.MsgAnnounceModalTitleLabel, proc.MaxTitleLen, false},
	"desc":  {proc.FieldDescription, sys.MsgAnnounceModalDesc, sys.MsgAnnounceModalDescLabel, proc.MaxDescriptionLen, true},
	"color": {proc.FieldColor, sys.MsgAnnounceModalColor, sys.MsgAnnounceModalColorLabel, proc.MaxColorLen, false},
	"image": {proc.FieldImage, sys.MsgAnnounceModalImage, sys.MsgAnnounceModalImageLabel, proc.MaxImageURLLen, false},
}

func (a *App) registerAnnounce() {
	a.Loader.RegisterCommand(discord.SlashCommandCreate{
		Name:                     "announce",
		Description:              "Open the interactive announcement panel",
		DefaultMemberPermissions: adminOnly(),
		Contexts:                 guildOnly,
	}, a.handleAnnounce)

	a.Loader.RegisterComponentHandler(annButtonPrefix, a.handleAnnounceButton)
	a.Loader.RegisterComponentHandler(annPickPrefix, a.handleAnnouncePick)
	a.Loader.RegisterModalHandler(annModalPrefix, a.handleAnnounceModal)
}

func (a *App) handleAnnounce(event *events.ApplicationCommandInteractionCreate) {
	if !a.Config.IsAdmin(event.User().ID) {
		replyEphemeral(event, sys.ErrAnnounceAdminOnly)
		return
	}
	guildID := event.GuildID()
	if guildID == nil {
		replyEphemeral(event, sys.ErrGuildOnly)
		return
	}

	view, err := a.Announce.Open(event.User().ID, *guildID, func(view proc.PanelView) (proc.PanelRef, error) {
		if err := event.CreateMessage(discord.NewMessageCreateBuilder().
			SetIsComponentsV2(true).
			AddComponents(panelContainer(view)).
			Build()); err != nil {
			return proc.PanelRef{}, err
		}
		msg, err := event.Client().Rest.GetInteractionResponse(event.ApplicationID(), event.Token())
		if err != nil {
			return proc.PanelRef{}, err
		}
		return proc.PanelRef{ChannelID: msg.ChannelID, MessageID: msg.ID}, nil
	})
	if err != nil {
		sys.LogAnnounce(sys.MsgAnnounceLogRender, "new", err)
		replyEphemeral(event, announceErrorText(err))
		return
	}
	sys.LogAnnounce(sys.MsgAnnounceLogOpened, view.Ref.MessageID, event.User().Username)
}

func (a *App) handleAnnounceButton(event *events.ComponentInteractionCreate) {
	action := strings.TrimPrefix(event.Data.CustomID(), annButtonPrefix)
	ref := proc.PanelRef{ChannelID: event.Message.ChannelID, MessageID: event.Message.ID}
	actor := event.User().ID

	if owner, ok := a.Announce.Owner(ref); ok && owner != actor {
		replyEphemeral(event, sys.ErrAnnounceNotOwner)
		return
	}

	if f, ok := annFields[action]; ok {
		view, ok := a.Announce.View(ref)
		if !ok {
			// Trigger the expiry path so the panel is finalized.
			_, err := a.Announce.Edit(ref, actor, f.field, "")
			replyEphemeral(event, announceErrorText(orNotFound(err)))
			return
		}
		_ = event.Modal(announceModal(action, view))
		return
	}

	switch action {
	case annActionChannel:
		a.showChannelPicker(event, ref)

	case annActionSend:
		_ = event.DeferCreateMessage(true)
		err := a.Announce.Send(a.Loader.Context(), ref, actor)
		content := sys.MsgAnnounceSent
		if err != nil {
			content = announceErrorText(err)
			if errors.Is(err, proc.ErrDelivery) {
				sys.LogAnnounce(sys.MsgAnnounceLogDeliver, err)
			}
		} else {
			sys.LogAnnounce(sys.MsgAnnounceLogSent, ref.MessageID, ref.ChannelID)
		}
		_, _ = event.Client().Rest.UpdateInteractionResponse(event.ApplicationID(), event.Token(),
			discord.NewMessageUpdateBuilder().
				SetIsComponentsV2(true).
				SetComponents(discord.NewContainer(discord.NewTextDisplay(content))).
				Build())

	case annActionClose:
		if err := a.Announce.Close(ref, actor); err != nil {
			replyEphemeral(event, announceErrorText(err))
			return
		}
		replyEphemeral(event, sys.MsgAnnounceClosed)
	}
}

func (a *App) showChannelPicker(event *events.ComponentInteractionCreate, ref proc.PanelRef) {
	view, ok := a.Announce.View(ref)
	if !ok {
		_, err := a.Announce.PickChannel(ref, event.User().ID, 0)
		replyEphemeral(event, announceErrorText(orNotFound(err)))
		return
	}

	channels := sendableChannels(event.Client(), view.GuildID, maxPickerChannels)
	if len(channels) == 0 {
		replyEphemeral(event, sys.MsgAnnounceNoChannels)
		return
	}

	opts := make([]discord.StringSelectMenuOption, 0, len(channels))
	for _, ch := range channels {
		opt := discord.NewStringSelectMenuOption("#"+ch.Name(), ch.ID().String())
		if ch.ID() == view.Draft.ChannelID {
			opt = opt.WithDefault(true)
		}
		opts = append(opts, opt)
	}

	_ = event.CreateMessage(discord.NewMessageCreateBuilder().
		SetIsComponentsV2(true).
		SetEphemeral(true).
		AddComponents(discord.NewContainer(
			discord.NewTextDisplay(sys.MsgAnnouncePickPrompt),
			discord.NewActionRow(discord.NewStringSelectMenu(annPickPrefix+ref.MessageID.String(), sys.MsgAnnouncePickPlaceholder, opts...)),
		)).
		Build())
}

func (a *App) handleAnnouncePick(event *events.ComponentInteractionCreate) {
	panelID, err := snowflake.Parse(strings.TrimPrefix(event.Data.CustomID(), annPickPrefix))
	if err != nil {
		replyEphemeral(event, sys.ErrAnnounceNotFound)
		return
	}
	menu, ok := event.Data.(discord.StringSelectMenuInteractionData)
	if !ok || len(menu.Values) == 0 {
		return
	}
	channelID, err := snowflake.Parse(menu.Values[0])
	if err != nil {
		replyEphemeral(event, sys.ErrAnnounceUnreachable)
		return
	}

	content := sys.MsgAnnounceFieldUpdated
	if _, err := a.Announce.PickChannel(proc.PanelRef{MessageID: panelID}, event.User().ID, channelID); err != nil {
		content = announceErrorText(err)
	}
	_ = event.UpdateMessage(discord.NewMessageUpdateBuilder().
		SetIsComponentsV2(true).
		SetComponents(discord.NewContainer(discord.NewTextDisplay(content))).
		Build())
}

func (a *App) handleAnnounceModal(event *events.ModalSubmitInteractionCreate) {
	action, panelID, ok := parseModalID(event.Data.CustomID)
	if !ok {
		replyEphemeral(event, sys.ErrAnnounceNotFound)
		return
	}
	f := annFields[action]
	value, _ := event.Data.OptText(action)

	if _, err := a.Announce.Edit(proc.PanelRef{MessageID: panelID}, event.User().ID, f.field, value); err != nil {
		replyEphemeral(event, announceErrorText(err))
		return
	}
	replyEphemeral(event, sys.MsgAnnounceFieldUpdated)
}

// --- Rendering ---

func announceModal(action string, view proc.PanelView) discord.ModalCreate {
	f := annFields[action]
	current := ""
	switch f.field {
	case proc.FieldTitle:
		current = view.Draft.Title
	case proc.FieldDescription:
		current = view.Draft.Description
	case proc.FieldColor:
		current = view.Draft.Color
	case proc.FieldImage:
		current = view.Draft.ImageURL
	}

	input := discord.NewShortTextInput(action)
	if f.paragraph {
		input = discord.NewParagraphTextInput(action)
	}
	input = input.WithRequired(false).WithMaxLength(f.maxLen)
	if current != "" {
		input = input.WithValue(current)
	}

	return discord.ModalCreate{
		CustomID:   modalID(action, view.Ref.MessageID),
		Title:      f.title,
		Components: []discord.LayoutComponent{discord.NewLabel(f.label, input)},
	}
}

func modalID(action string, panelID snowflake.ID) string {
	return annModalPrefix + action + ":" + panelID.String()
}

func parseModalID(customID string) (string, snowflake.ID, bool) {
	tail, ok := strings.CutPrefix(customID, annModalPrefix)
	if !ok {
		return "", 0, false
	}
	action, rawID, ok := strings.Cut(tail, ":")
	if !ok {
		return "", 0, false
	}
	if _, known := annFields[action]; !known {
		return "", 0, false
	}
	id, err := snowflake.Parse(rawID)
	if err != nil {
		return "", 0, false
	}
	return action, id, true
}

// panelText is the builder summary shown above the buttons.
func panelText(view proc.PanelView) string {
	title := orNotSet(view.Draft.Title)
	desc := orNotSet(truncateRunes(view.Draft.Description, previewRunes))

	color := view.Draft.Color
	if color == "" || color == proc.DefaultAnnounceColor {
		color = fmt.Sprintf(sys.MsgAnnounceColorDefault, proc.DefaultAnnounceColor)
	}

	image := sys.MsgAnnounceNotSet
	if view.Draft.ImageURL != "" {
		image = sys.MsgAnnounceSet
	}

	channel := sys.MsgAnnounceNotSelected
	if view.Draft.ChannelID != 0 {
		channel = mentionChannel(view.Draft.ChannelID)
	}

	return "### " + sys.MsgAnnounceBuilderTitle + "\n" +
		fmt.Sprintf(sys.MsgAnnounceBuilderBody, title, desc, color, image, channel) + "\n\n" +
		fmt.Sprintf(sys.MsgAnnounceBuilderTip, view.ExpiresAt.Unix())
}

func panelContainer(view proc.PanelView) discord.ContainerComponent {
	accent, err := proc.ParseColor(view.Draft.Color)
	if err != nil {
		accent = BrandColor
	}
	return discord.NewContainer(
		discord.NewTextDisplay(panelText(view)),
		discord.NewSeparator(discord.SeparatorSpacingSizeSmall).WithDivider(true),
		discord.NewActionRow(
			discord.NewButton(discord.ButtonStyleSecondary, sys.MsgAnnounceBtnTitle, annButtonPrefix+"title", "", 0),
			discord.NewButton(discord.ButtonStyleSecondary, sys.MsgAnnounceBtnDesc, annButtonPrefix+"desc", "", 0),
			discord.NewButton(discord.ButtonStyleSecondary, sys.MsgAnnounceBtnColor, annButtonPrefix+"color", "", 0),
			discord.NewButton(discord.ButtonStyleSecondary, sys.MsgAnnounceBtnImage, annButtonPrefix+"image", "", 0),
		),
		discord.NewActionRow(
			discord.NewButton(discord.ButtonStylePrimary, sys.MsgAnnounceBtnChannel, annButtonPrefix+annActionChannel, "", 0),
			discord.NewButton(discord.ButtonStyleSuccess, sys.MsgAnnounceBtnSend, annButtonPrefix+annActionSend, "", 0),
			discord.NewButton(discord.ButtonStyleDanger, sys.MsgAnnounceBtnClose, annButtonPrefix+annActionClose, "", 0),
		),
		discord.NewTextDisplay(sys.MsgAnnounceBuilderFooter),
	).WithAccentColor(accent)
}

func outcomeText(outcome proc.Outcome) string {
	switch outcome {
	case proc.OutcomeSent:
		return sys.MsgAnnounceSent
	case proc.OutcomeClosed:
		return sys.MsgAnnounceClosed
	case proc.OutcomeExpired:
		return sys.MsgAnnounceExpired
	default:
		return sys.MsgAnnounceFailed
	}
}

// announceErrorText maps manager errors to the reply shown to the user.
func announceErrorText(err error) string {
	switch {
	case errors.Is(err, proc.ErrForbidden):
		return sys.ErrAnnounceNotOwner
	case errors.Is(err, proc.ErrExpired):
		return sys.ErrAnnounceExpired
	case errors.Is(err, proc.ErrNotFound):
		return sys.ErrAnnounceNotFound
	case errors.Is(err, proc.ErrNoChannelSelected):
		return sys.ErrAnnounceNoChannel
	case errors.Is(err, proc.ErrStaleImage):
		return sys.ErrAnnounceStaleImage
	case errors.Is(err, proc.ErrChannelUnavailable):
		return sys.ErrAnnounceUnreachable
	case errors.Is(err, proc.ErrValidation):
		return fmt.Sprintf(sys.ErrAnnounceInvalid, strings.TrimPrefix(err.Error(), proc.ErrValidation.Error()+": "))
	case errors.Is(err, proc.ErrDelivery):
		return fmt.Sprintf(sys.ErrAnnounceDelivery, strings.TrimPrefix(err.Error(), proc.ErrDelivery.Error()+": "))
	default:
		return sys.ErrGeneric
	}
}

func orNotFound(err error) error {
	if err == nil {
		return proc.ErrNotFound
	}
	return err
}

func orNotSet(s string) string {
	if s == "" {
		return sys.MsgAnnounceNotSet
	}
	return s
}

// truncateRunes shortens s to n runes, ending in "..." when cut.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}

// --- Adapters ---

// discordPanels edits the panel message in place.
type discordPanels struct {
	app *App
}

func (p *discordPanels) RenderPanel(view proc.PanelView) error {
	client := p.app.Client()
	if client == nil {
		return errNotReady
	}
	_, err := client.Rest.UpdateMessage(view.Ref.ChannelID, view.Ref.MessageID,
		discord.NewMessageUpdateBuilder().
			SetIsComponentsV2(true).
			SetComponents(panelContainer(view)).
			Build())
	if err != nil {
		return fmt.Errorf(sys.MsgAnnounceLogRender, view.Ref.MessageID, err)
	}
	return nil
}

func (p *discordPanels) FinishPanel(ref proc.PanelRef, outcome proc.Outcome) error {
	client := p.app.Client()
	if client == nil || ref.ChannelID == 0 {
		return nil
	}
	color := BrandColor
	if outcome != proc.OutcomeSent {
		color = colorRed
	}
	_, err := client.Rest.UpdateMessage(ref.ChannelID, ref.MessageID,
		discord.NewMessageUpdateBuilder().
			SetIsComponentsV2(true).
			SetComponents(discord.NewContainer(
				discord.NewTextDisplay("### "+sys.MsgAnnounceBuilderTitle+"\n"+outcomeText(outcome)),
			).WithAccentColor(color)).
			Build())
	if err != nil {
		return fmt.Errorf(sys.MsgAnnounceLogRender, ref.MessageID, err)
	}
	return nil
}

// discordBroadcaster posts finished announcements.
type discordBroadcaster struct {
	app *App
}

func (b *discordBroadcaster) Reachable(guildID, channelID snowflake.ID) bool {
	client := b.app.Client()
	if client == nil {
		return false
	}
	ch, ok := client.Caches.Channel(channelID)
	if !ok || ch.GuildID() != guildID {
		return false
	}
	return canSend(client, ch)
}

func (b *discordBroadcaster) Deliver(ctx context.Context, ann proc.Announcement) error {
	client := b.app.Client()
	if client == nil {
		return errNotReady
	}
	_, err := client.Rest.CreateMessage(ann.ChannelID, announcementCard(ann).message(), rest.WithCtx(ctx))
	return err
}

func announcementCard(ann proc.Announcement) card {
	return card{
		Title:  ann.Title,
		Body:   ann.Description,
		Footer: sys.MsgAnnounceFooter,
		Color:  ann.Color,
		Image:  ann.ImageURL,
	}
}
