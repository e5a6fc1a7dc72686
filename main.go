package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/NinjaGamerz509/Bot/home"
	"github.com/NinjaGamerz509/Bot/sys"
)

const (
	pidFile         = ".bot.pid"
	shutdownTimeout = 30 * time.Second
)

func main() {
	// LogFatal panics so defers run; report it without a stack trace.
	defer func() {
		if r := recover(); r != nil {
			if msg, ok := r.(string); ok {
				fmt.Fprintf(os.Stderr, "\n[FATAL] %s\n", msg)
				os.Exit(1)
			}
			panic(r)
		}
	}()

	silent := flag.Bool("silent", false, "Disable all log output")
	skipReg := flag.Bool("skip-reg", false, "Skip command registration")
	clearAll := flag.Bool("clear-all", false, "Clear every global and guild command, then exit")
	flag.Parse()

	sys.InitLogger(*silent, true)
	defer sys.CloseLogger()

	cfg, err := sys.LoadConfig()
	if err != nil {
		sys.LogFatal(sys.MsgConfigFailedToLoad, err)
	}

	sys.LogInfo(sys.MsgBotStarting, sys.GetProjectName())

	lock, err := acquirePIDLock(pidFile)
	if err != nil {
		sys.LogFatal(sys.MsgBotLockFail, err)
	}

	restart, err := run(cfg, *silent || cfg.Silent, *skipReg, *clearAll)
	lock.release()
	if err != nil {
		sys.LogFatal(sys.MsgGenericError, err)
	}

	if restart {
		sys.LogInfo(sys.MsgBotSelfRestart)
		sys.CloseLogger()
		if err := reexec(); err != nil {
			sys.LogFatal(sys.MsgBotReexecFail, err)
		}
	}
}

// run blocks until a signal or /stop, and reports whether /restart was used.
func run(cfg *sys.Config, silent, skipReg, clearAll bool) (bool, error) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	store, err := sys.OpenStore(ctx, cfg.DatabasePath)
	if err != nil {
		return false, fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	loader, err := sys.NewLoader(store, 0)
	if err != nil {
		return false, fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer loader.Release(5 * time.Second)
	loader.SetContext(ctx)

	var restart atomic.Bool
	app, err := home.NewApp(cfg, store, loader, func(r bool) {
		restart.Store(r)
		stop()
	})
	if err != nil {
		return false, err
	}
	app.Register()

	if err := app.Levels.Load(ctx); err != nil {
		return false, fmt.Errorf("failed to load levels: %w", err)
	}
	sys.LogLevels(sys.MsgLevelsLoaded, app.Levels.Len())

	client, err := loader.CreateClient(cfg)
	if err != nil {
		return false, fmt.Errorf("failed to create Discord client: %w", err)
	}
	defer client.Close(context.Background())
	app.SetClient(client)

	if clearAll {
		if err := loader.ClearAllCommands(ctx, client); err != nil {
			return false, fmt.Errorf(sys.MsgBotClearFail, err)
		}
		return false, nil
	}

	if !skipReg {
		if err := loader.RegisterCommands(ctx, client, cfg.GuildID, false); err != nil {
			sys.LogError(sys.MsgBotRegisterFail, err)
		}
	} else {
		sys.LogInfo(sys.MsgBotSkipReg)
	}

	web := app.ServeKeepAlive()

	if err := client.OpenGateway(ctx); err != nil {
		return false, fmt.Errorf("failed to open gateway: %w", err)
	}

	<-ctx.Done()
	if !silent {
		fmt.Println()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	sys.LogInfo(sys.MsgDaemonShutdownAll)
	loader.ShutdownDaemons()

	sys.LogKeepAlive(sys.MsgKeepAliveShutdown)
	_ = web.Shutdown(shutdownCtx)

	app.Close(shutdownCtx)

	if botUser, ok := client.Caches.SelfUser(); ok {
		sys.LogInfo(sys.MsgBotShutdown, botUser.Username)
	} else {
		sys.LogInfo(sys.MsgBotShutdown, sys.GetProjectName())
	}
	return restart.Load(), nil
}
