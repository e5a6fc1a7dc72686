package home

import (
	"errors"
	"fmt"
	"time"

	"github.com/NinjaGamerz509/Bot/proc"
	"github.com/NinjaGamerz509/Bot/sys"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
)

func (a *App) registerServer() {
	a.Loader.RegisterCommand(discord.SlashCommandCreate{
		Name:        "serverstart",
		Description: "Start the Minecraft server",
	}, a.handleServerStart)

	a.Loader.RegisterCommand(discord.SlashCommandCreate{
		Name:                     "serverstop",
		Description:              "Stop the Minecraft server",
		DefaultMemberPermissions: adminOnly(),
		Contexts:                 guildOnly,
	}, a.handleServerStop)

	a.Loader.RegisterCommand(discord.SlashCommandCreate{
		Name:                     "serverrestart",
		Description:              "Restart the Minecraft server",
		DefaultMemberPermissions: adminOnly(),
		Contexts:                 guildOnly,
	}, a.handleServerRestart)

	a.Loader.RegisterCommand(discord.SlashCommandCreate{
		Name:        "serverstatus",
		Description: "Show the Minecraft server status",
	}, a.handleServerStatus)
}

func (a *App) handleServerStart(event *events.ApplicationCommandInteractionCreate) {
	_ = event.CreateMessage(card{Title: sys.MsgServerCmdStarting, Body: sys.MsgServerCmdStartDesc}.message())
	a.runTransition(event, a.Machine.Start)
}

func (a *App) handleServerStop(event *events.ApplicationCommandInteractionCreate) {
	if !a.requireAdmin(event) {
		return
	}
	_ = event.CreateMessage(card{Title: sys.MsgServerCmdStopping, Body: sys.MsgServerCmdStopDesc, Color: colorRed}.message())
	a.runTransition(event, a.Machine.Stop)
}

func (a *App) handleServerRestart(event *events.ApplicationCommandInteractionCreate) {
	if !a.requireAdmin(event) {
		return
	}
	_ = event.CreateMessage(card{Title: sys.MsgServerCmdRestarting, Body: sys.MsgServerCmdRestDesc, Color: colorAmber}.message())
	a.runTransition(event, a.Machine.Restart)
}

// runTransition hands the operation a reporter bound to the invoking channel.
// Later notices from the same run, such as a crash, land there too.
func (a *App) runTransition(event *events.ApplicationCommandInteractionCreate, op func(proc.Reporter) error) {
	rep := &channelReporter{
		app:       a,
		rest:      event.Client().Rest,
		channelID: event.Channel().ID(),
	}
	err := op(rep)
	switch {
	case err == nil, errors.Is(err, proc.ErrInvalidState):
	default:
		sys.LogServer(sys.MsgGenericError, err)
	}
}

func (a *App) handleServerStatus(event *events.ApplicationCommandInteractionCreate) {
	_ = event.CreateMessage(a.statusCard(a.Machine.Status()).message())
}

func (a *App) statusCard(snap proc.Snapshot) card {
	body := fmt.Sprintf(sys.MsgServerStatusBody, snap.State, snap.Endpoint)
	if snap.Simulated {
		body += sys.MsgServerStatusSim
	}
	if snap.Process != nil {
		if stats, err := proc.SampleProcess(snap.Process.PID); err == nil {
			body += fmt.Sprintf(sys.MsgServerStatusProcess,
				stats.PID, stats.CPUPercent, float64(stats.RSSBytes)/1024/1024, stats.Threads, formatDuration(stats.Uptime))
		}
	}
	return card{
		Title:  sys.MsgServerStatusTitle,
		Body:   body,
		Footer: "-# " + sys.MsgServerStatusFooter,
		Color:  stateColor(snap.State),
	}
}

func stateColor(s proc.State) int {
	switch s {
	case proc.StateStarted:
		return BrandColor
	case proc.StateStopped, proc.StateStopping:
		return colorRed
	default:
		return colorAmber
	}
}

// --- Notices ---

// channelReporter posts lifecycle notices to one channel, in order.
type channelReporter struct {
	app       *App
	rest      rest.Rest
	channelID snowflake.ID
}

func (r *channelReporter) Report(n proc.Notice) {
	sys.LogServer(sys.MsgServerLogTransition, n.State, noticeName(n.Kind))
	if n.Kind == proc.NoticeStarting {
		if p := r.app.Machine.Status().Process; p != nil {
			sys.LogServer(sys.MsgServerLogSpawned, p.PID)
		}
	}
	if n.Kind == proc.NoticeCrashed {
		sys.LogServer(sys.MsgServerLogExit, n.Exit)
	}

	c, ok := noticeCard(n, r.app.Config.AutoRestartMax)
	if !ok {
		return
	}
	if _, err := r.rest.CreateMessage(r.channelID, c.message()); err != nil {
		sys.LogServer(sys.MsgServerLogNoticeFail, err)
	}
}

// noticeCard renders a notice. Kinds without a user-facing message report
// false.
func noticeCard(n proc.Notice, autoRestartMax int) (card, bool) {
	switch n.Kind {
	case proc.NoticeRejected:
		return rejectionCard(n), true
	case proc.NoticeStarting:
		return card{Title: sys.MsgServerStarting, Body: sys.MsgServerStartingDesc, Color: colorAmber}, true
	case proc.NoticeStarted:
		return card{Title: sys.MsgServerReady, Body: fmt.Sprintf(sys.MsgServerReadyDesc, n.Endpoint)}, true
	case proc.NoticeStartedFallback:
		return card{Title: sys.MsgServerFallback, Body: fmt.Sprintf(sys.MsgServerFallbackDesc, n.Endpoint)}, true
	case proc.NoticeSimulatedStarted:
		return card{Title: sys.MsgServerSimStarted, Body: fmt.Sprintf(sys.MsgServerSimStartedDesc, n.Endpoint)}, true
	case proc.NoticeStopping:
		return card{Title: sys.MsgServerStopping, Body: sys.MsgServerStoppingDesc, Color: colorRed}, true
	case proc.NoticeStopped:
		return card{Title: sys.MsgServerStopped, Body: sys.MsgServerStoppedDesc, Color: colorRed}, true
	case proc.NoticeRestarting:
		return card{Title: sys.MsgServerRestarting, Body: sys.MsgServerRestartingDesc, Color: colorAmber}, true
	case proc.NoticeRebooting:
		return card{Title: sys.MsgServerRebooting, Body: sys.MsgServerRebootingDesc, Color: colorAmber}, true
	case proc.NoticeRestarted:
		return card{Title: sys.MsgServerRestarted, Body: sys.MsgServerRestartedDesc}, true
	case proc.NoticeCrashed:
		return card{Title: sys.MsgServerCrashed, Body: fmt.Sprintf(sys.MsgServerCrashedDesc, n.Exit), Color: colorRed}, true
	case proc.NoticeAutoRestart:
		return card{Title: fmt.Sprintf(sys.MsgServerAutoRestart, int(n.Delay/time.Second)), Color: colorAmber}, true
	case proc.NoticeAutoRestartExhausted:
		return card{Title: sys.MsgServerAutoRestartDone, Body: fmt.Sprintf(sys.MsgServerAutoRestartDesc, autoRestartMax+1), Color: colorRed}, true
	case proc.NoticeSpawnFailed:
		body := ""
		if n.Err != nil {
			body = "```\n" + n.Err.Error() + "\n```"
		}
		return card{Title: sys.MsgServerSpawnFailed, Body: body, Color: colorRed}, true
	}
	return card{}, false
}

func rejectionCard(n proc.Notice) card {
	switch {
	case n.Op == proc.OpStart:
		return card{Title: sys.MsgServerAlreadyRunning, Body: sys.MsgServerAlreadyRunningDesc, Color: colorAmber}
	case n.Op == proc.OpStop && n.State == proc.StateStopped:
		return card{Title: sys.MsgServerAlreadyStopped, Body: sys.MsgServerAlreadyStoppedDesc, Color: colorAmber}
	case n.Op == proc.OpRestart && n.State == proc.StateStopped:
		return card{Title: sys.MsgServerIsStopped, Body: sys.MsgServerIsStoppedDesc, Color: colorAmber}
	default:
		return card{Title: sys.MsgServerBusy, Body: fmt.Sprintf(sys.MsgServerBusyDesc, n.State), Color: colorAmber}
	}
}

var noticeNames = map[proc.NoticeKind]string{
	proc.NoticeRejected:             "rejected",
	proc.NoticeStarting:             "starting",
	proc.NoticeStarted:              "ready",
	proc.NoticeStartedFallback:      "fallback",
	proc.NoticeSimulatedStarted:     "simulated",
	proc.NoticeStopping:             "stopping",
	proc.NoticeStopped:              "stopped",
	proc.NoticeRestarting:           "restarting",
	proc.NoticeRebooting:            "rebooting",
	proc.NoticeRestarted:            "restarted",
	proc.NoticeCrashed:              "crashed",
	proc.NoticeAutoRestart:          "auto-restart",
	proc.NoticeAutoRestartExhausted: "auto-restart exhausted",
	proc.NoticeSpawnFailed:          "spawn failed",
}

func noticeName(k proc.NoticeKind) string {
	if name, ok := noticeNames[k]; ok {
		return name
	}
	return fmt.Sprintf("notice(%d)", int(k))
}
