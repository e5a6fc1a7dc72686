package home

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/NinjaGamerz509/Bot/proc"
	"github.com/NinjaGamerz509/Bot/sys"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/gateway"
)

func rotationInterval() time.Duration {
	return time.Duration(15+rand.IntN(46)) * time.Second
}

func (a *App) registerPresence() {
	a.Loader.RegisterDaemon(sys.LogPresence, func(ctx context.Context) (bool, func(), func()) {
		runCtx, cancel := context.WithCancel(ctx)
		return true, func() {
			last := ""
			for {
				next := rotationInterval()
				last = a.updatePresence(runCtx, last, next)
				select {
				case <-time.After(next):
				case <-runCtx.Done():
					return
				}
			}
		}, func() {
			sys.LogPresence(sys.MsgPresenceShutdown)
			cancel()
		}
	})
}

// updatePresence shows a status line different from last and returns it.
func (a *App) updatePresence(ctx context.Context, last string, next time.Duration) string {
	client := a.Client()
	if client == nil {
		return last
	}

	var latency time.Duration
	if client.Gateway != nil {
		latency = client.Gateway.Latency()
	}
	candidates := presenceCandidates(a.Machine.Status(), a.Config.ServerIP, time.Since(a.Loader.StartedAt()), latency)
	text := pickPresence(candidates, last, rand.IntN)

	if err := client.SetPresence(ctx,
		gateway.WithOnlineStatus(discord.OnlineStatusOnline),
		gateway.WithPlayingActivity(text),
	); err != nil {
		sys.LogPresence(sys.MsgPresenceFail, err)
		return last
	}
	sys.LogDebug(sys.MsgPresenceRotated, text, next)
	return text
}

func presenceCandidates(snap proc.Snapshot, ip string, uptime, latency time.Duration) []string {
	out := []string{
		fmt.Sprintf(sys.MsgPresenceServer, snap.State),
		fmt.Sprintf(sys.MsgPresenceUptime, formatDuration(uptime)),
	}
	if ip != "" && ip != sys.DefaultServerIP {
		out = append(out, fmt.Sprintf(sys.MsgPresenceIP, ip))
	}
	if latency > 0 {
		out = append(out, fmt.Sprintf(sys.MsgPresencePing, latency.Milliseconds()))
	}
	return out
}

// pickPresence chooses a random candidate, avoiding an immediate repeat.
func pickPresence(candidates []string, last string, intn func(int) int) string {
	if len(candidates) == 0 {
		return sys.MsgPresenceDefault
	}
	choices := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c != last {
			choices = append(choices, c)
		}
	}
	if len(choices) == 0 {
		return candidates[0]
	}
	return choices[intn(len(choices))]
}
