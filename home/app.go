package home

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/NinjaGamerz509/Bot/proc"
	"github.com/NinjaGamerz509/Bot/sys"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/omit"
	"github.com/disgoorg/snowflake/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sho0pi/naturaltime"
)

// BrandColor is the accent used on every card.
const BrandColor = 0x00E5E5

var errNotReady = errors.New("discord client not ready")

const (
	colorRed   = 0xFF5555
	colorAmber = 0xFFB020
)

// App is the bot's shared state. Every handler hangs off it; nothing lives in
// package globals.
type App struct {
	Config   *sys.Config
	Store    *sys.Store
	Loader   *sys.Loader
	Machine  *proc.Machine
	Relay    *proc.ConsoleRelay
	Announce *proc.AnnounceManager
	Levels   *proc.Levels
	Metrics  *proc.Metrics
	Registry *prometheus.Registry
	Clock    proc.Clock

	supervisor *proc.Supervisor
	dates      *naturaltime.Parser
	client     atomic.Pointer[bot.Client]
	shutdown   func(restart bool)
}

// NewApp wires the core components together. shutdown is called by /stop and
// /restart to end the process.
func NewApp(cfg *sys.Config, store *sys.Store, loader *sys.Loader, shutdown func(restart bool)) (*App, error) {
	dates, err := naturaltime.New()
	if err != nil {
		return nil, fmt.Errorf("natural time parser: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app := &App{
		Config:   cfg,
		Store:    store,
		Loader:   loader,
		Registry: registry,
		Metrics:  proc.NewMetrics(registry),
		Clock:    proc.RealClock(),
		dates:    dates,
		shutdown: shutdown,
	}

	app.Relay = proc.NewConsoleRelay(proc.RelayConfig{
		Sink:    consoleSink{app},
		Metrics: app.Metrics,
		OnError: func(err error) { sys.LogConsole(sys.MsgConsoleSendFail, err) },
	})

	// A nil *Supervisor must not become a non-nil Runner.
	var runner proc.Runner
	if cfg.LocalServer {
		app.supervisor = proc.NewSupervisor(proc.SupervisorConfig{
			Command: cfg.JavaCmd,
			Args:    cfg.JavaArgs,
			Dir:     cfg.ServerDir,
		})
		runner = app.supervisor
	}

	app.Machine = proc.NewMachine(proc.MachineConfig{
		Runner:         runner,
		Endpoint:       cfg.ServerIP,
		AutoRestart:    cfg.AutoRestart,
		AutoRestartMax: cfg.AutoRestartMax,
		Console:        app.Relay,
		Metrics:        app.Metrics,
	})
	if app.supervisor != nil {
		app.supervisor.OnOutput(app.Machine.HandleOutput)
	}

	app.Announce = proc.NewAnnounceManager(proc.AnnounceConfig{
		Renderer:    &discordPanels{app: app},
		Broadcaster: &discordBroadcaster{app: app},
		IsAdmin:     cfg.IsAdmin,
		Metrics:     app.Metrics,
		OnError:     func(err error) { sys.LogAnnounce(sys.MsgGenericError, err) },
	})

	app.Levels = proc.NewLevels(proc.LevelsConfig{
		Store:   store,
		Metrics: app.Metrics,
		OnError: func(err error) { sys.LogLevels(sys.MsgLevelsSaveFail, err) },
	})

	return app, nil
}

// Register installs every command, handler and daemon on the loader.
func (a *App) Register() {
	a.Loader.OnClientReady(func(ctx context.Context, client *bot.Client) {
		a.client.Store(client)
	})

	a.registerServer()
	a.registerConsole()
	a.registerAnnounce()
	a.registerSettings()
	a.registerEvents()
	a.registerLevels()
	a.registerWelcome()
	a.registerMisc()
	a.registerPresence()
	a.registerKeepAlive()
}

// Client returns the connected client, or nil before the gateway is ready.
func (a *App) Client() *bot.Client { return a.client.Load() }

// SetClient is used by main before the gateway opens.
func (a *App) SetClient(client *bot.Client) { a.client.Store(client) }

// Close stops the game server and flushes unsaved state.
func (a *App) Close(ctx context.Context) {
	if a.supervisor != nil {
		sys.LogServer(sys.MsgServerLogShutdown)
	}
	a.Machine.Shutdown(ctx)
	// Server shutdown output arrives after the relay daemon stops.
	drainCtx, done := context.WithTimeout(ctx, consoleDrainTimeout)
	defer done()
	if err := a.Relay.Drain(drainCtx); err != nil {
		sys.LogConsole(sys.MsgConsoleDrainFail, err)
	}

	sys.LogLevels(sys.MsgLevelsFlushOnExit)
	if err := a.Levels.Flush(ctx); err != nil {
		sys.LogLevels(sys.MsgLevelsSaveFail, err)
	}
}

// --- Response helpers ---

var guildOnly = []discord.InteractionContextType{discord.InteractionContextTypeGuild}

// adminOnly hides a command from members without Administrator. ADMIN_ID is
// still checked on every invocation.
func adminOnly() omit.Omit[*discord.Permissions] {
	perm := discord.PermissionAdministrator
	return omit.New(&perm)
}

func (a *App) requireAdmin(event *events.ApplicationCommandInteractionCreate) bool {
	if a.Config.IsAdmin(event.User().ID) {
		return true
	}
	replyEphemeral(event, sys.ErrAdminOnly)
	return false
}

type messageCreator interface {
	CreateMessage(messageCreate discord.MessageCreate, opts ...rest.RequestOpt) error
}

func replyEphemeral(event messageCreator, content string) {
	_ = event.CreateMessage(discord.NewMessageCreateBuilder().
		SetIsComponentsV2(true).
		SetEphemeral(true).
		AddComponents(discord.NewContainer(discord.NewTextDisplay(content))).
		Build())
}

func reply(event messageCreator, content string) {
	_ = event.CreateMessage(discord.NewMessageCreateBuilder().
		SetIsComponentsV2(true).
		AddComponents(discord.NewContainer(discord.NewTextDisplay(content))).
		Build())
}

// card is a titled block rendered as a colored container.
type card struct {
	Title  string
	Body   string
	Footer string
	Color  int
	Image  string
}

func (c card) container() discord.ContainerComponent {
	text := "### " + c.Title
	if c.Body != "" {
		text += "\n" + c.Body
	}
	parts := []discord.ContainerSubComponent{discord.NewTextDisplay(text)}
	if c.Image != "" {
		parts = append(parts, discord.NewMediaGallery(discord.MediaGalleryItem{Media: discord.UnfurledMediaItem{URL: c.Image}}))
	}
	if c.Footer != "" {
		parts = append(parts,
			discord.NewSeparator(discord.SeparatorSpacingSizeSmall).WithDivider(true),
			discord.NewTextDisplay(c.Footer))
	}
	color := c.Color
	if color == 0 {
		color = BrandColor
	}
	return discord.NewContainer(parts...).WithAccentColor(color)
}

func (c card) message() discord.MessageCreate {
	return discord.NewMessageCreateBuilder().
		SetIsComponentsV2(true).
		AddComponents(c.container()).
		Build()
}

func mentionChannel(id snowflake.ID) string { return "<#" + id.String() + ">" }
func mentionUser(id snowflake.ID) string    { return "<@" + id.String() + ">" }
func mentionRole(id snowflake.ID) string    { return "<@&" + id.String() + ">" }

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%dh %dm %ds", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}
