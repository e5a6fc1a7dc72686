package sys

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/cache"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/panjf2000/ants/v2"
)

const DefaultPoolSize = 64

type (
	CommandHandler    func(event *events.ApplicationCommandInteractionCreate)
	ComponentHandler  func(event *events.ComponentInteractionCreate)
	ModalHandler      func(event *events.ModalSubmitInteractionCreate)
	MessageHandler    func(event *events.MessageCreate)
	MemberJoinHandler func(event *events.GuildMemberJoin)
	ReadyCallback     func(ctx context.Context, client *bot.Client)
	// DaemonStarter reports whether the daemon should run, its loop and an
	// optional shutdown hook.
	DaemonStarter func(ctx context.Context) (bool, func(), func())
)

type daemonEntry struct {
	starter DaemonStarter
	logger  func(format string, v ...any)
}

// Loader owns the disgo client wiring: handler registries, the worker pool
// that runs every handler, and background daemons.
type Loader struct {
	store     *Store
	pool      *ants.Pool
	startedAt time.Time

	mu                 sync.RWMutex
	ctx                context.Context
	commands           []discord.ApplicationCommandCreate
	commandHandlers    map[string]CommandHandler
	componentHandlers  map[string]ComponentHandler
	modalHandlers      map[string]ModalHandler
	messageHandlers    []MessageHandler
	memberJoinHandlers []MemberJoinHandler
	readyCallbacks     []ReadyCallback

	daemons       []daemonEntry
	daemonsOnce   sync.Once
	shutdownHooks []func()
	shutdownMu    sync.Mutex
}

// NewLoader creates a loader whose handlers run on a pool of poolSize
// workers. Panics inside handlers are logged and swallowed.
func NewLoader(store *Store, poolSize int) (*Loader, error) {
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	pool, err := ants.NewPool(poolSize, ants.WithPanicHandler(func(r any) {
		LogError(MsgLoaderPanicRecovered, r)
		LogDebug("%s", debug.Stack())
	}))
	if err != nil {
		return nil, err
	}

	return &Loader{
		store:             store,
		pool:              pool,
		startedAt:         time.Now(),
		ctx:               context.Background(),
		commandHandlers:   make(map[string]CommandHandler),
		componentHandlers: make(map[string]ComponentHandler),
		modalHandlers:     make(map[string]ModalHandler),
	}, nil
}

func (l *Loader) SetContext(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ctx = ctx
}

func (l *Loader) Context() context.Context {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ctx
}

func (l *Loader) StartedAt() time.Time { return l.startedAt }

// Go runs fn on the worker pool.
func (l *Loader) Go(fn func()) {
	if err := l.pool.Submit(fn); err != nil {
		LogError(MsgLoaderPoolSubmitFail, err)
	}
}

// Release waits up to timeout for running handlers, then frees the pool.
func (l *Loader) Release(timeout time.Duration) {
	if err := l.pool.ReleaseTimeout(timeout); err != nil {
		LogWarn(MsgGenericError, err)
	}
}

// --- Bot Initialization ---

// CreateClient creates and configures a disgo client routed through this loader.
func (l *Loader) CreateClient(cfg *Config) (*bot.Client, error) {
	return disgo.New(cfg.Token,
		bot.WithGatewayConfigOpts(
			gateway.WithIntents(
				gateway.IntentGuilds,
				gateway.IntentGuildMessages,
				gateway.IntentGuildMembers,
				gateway.IntentMessageContent,
			),
			gateway.WithPresenceOpts(
				gateway.WithPlayingActivity(MsgPresenceDefault),
				gateway.WithOnlineStatus(discord.OnlineStatusOnline),
			),
		),
		bot.WithCacheConfigOpts(
			cache.WithCaches(cache.FlagGuilds, cache.FlagMembers, cache.FlagRoles, cache.FlagChannels),
		),
		bot.WithEventListenerFunc(l.onApplicationCommandInteraction),
		bot.WithEventListenerFunc(l.onComponentInteraction),
		bot.WithEventListenerFunc(l.onModalSubmit),
		bot.WithEventListenerFunc(l.onMessageCreate),
		bot.WithEventListenerFunc(l.onGuildMemberJoin),
		bot.WithEventListenerFunc(l.onReady),
		bot.WithLogger(slog.Default()),
		bot.WithRestClientConfigOpts(
			rest.WithHTTPClient(&http.Client{
				Timeout: 60 * time.Second,
				Transport: &http.Transport{
					MaxIdleConns:        100,
					MaxIdleConnsPerHost: 50,
					IdleConnTimeout:     90 * time.Second,
				},
			}),
		),
	)
}

// --- Command & Handler Registration ---

func (l *Loader) RegisterCommand(cmd discord.SlashCommandCreate, handler CommandHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.commands = append(l.commands, cmd)
	l.commandHandlers[cmd.CommandName()] = handler
}

// RegisterComponentHandler matches customID exactly, or as a prefix when it
// ends in ":".
func (l *Loader) RegisterComponentHandler(customID string, handler ComponentHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.componentHandlers[customID] = handler
}

// RegisterModalHandler follows the same matching rules as components.
func (l *Loader) RegisterModalHandler(customID string, handler ModalHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.modalHandlers[customID] = handler
}

func (l *Loader) RegisterMessageHandler(handler MessageHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messageHandlers = append(l.messageHandlers, handler)
}

func (l *Loader) RegisterMemberJoinHandler(handler MemberJoinHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.memberJoinHandlers = append(l.memberJoinHandlers, handler)
}

func (l *Loader) OnClientReady(cb ReadyCallback) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.readyCallbacks = append(l.readyCallbacks, cb)
}

func (l *Loader) Commands() []discord.ApplicationCommandCreate {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]discord.ApplicationCommandCreate(nil), l.commands...)
}

func (l *Loader) commandHandler(name string) (CommandHandler, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	h, ok := l.commandHandlers[name]
	return h, ok
}

func (l *Loader) componentHandler(customID string) (ComponentHandler, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return matchHandler(l.componentHandlers, customID)
}

func (l *Loader) modalHandler(customID string) (ModalHandler, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return matchHandler(l.modalHandlers, customID)
}

func matchHandler[H any](handlers map[string]H, customID string) (H, bool) {
	// 1. Try exact match
	if h, ok := handlers[customID]; ok {
		return h, true
	}

	// 2. Try prefix match, longest prefix wins
	var best H
	bestLen := -1
	for prefix, h := range handlers {
		if strings.HasSuffix(prefix, ":") && strings.HasPrefix(customID, prefix) && len(prefix) > bestLen {
			best, bestLen = h, len(prefix)
		}
	}
	return best, bestLen >= 0
}

// --- Command Syncing Logic ---

// calculateCommandHash generates a SHA256 hash of the commands slice
func calculateCommandHash(cmds []discord.ApplicationCommandCreate) string {
	data, err := json.Marshal(cmds)
	if err != nil {
		return ""
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// RegisterCommands syncs commands globally (guildIDStr == "") or to one dev
// guild. Unchanged command sets are skipped unless forceScan is set.
func (l *Loader) RegisterCommands(ctx context.Context, client *bot.Client, guildIDStr string, forceScan bool) error {
	commands := l.Commands()
	lastGuildID, _ := l.store.GetBotConfig(ctx, "last_guild_id")

	isProduction := guildIDStr == ""
	currentMode := "guild"
	if isProduction {
		currentMode = "global"
	}

	LogInfo(MsgLoaderSyncCommands, strings.ToUpper(currentMode))

	currentHash := calculateCommandHash(commands)
	lastHash, _ := l.store.GetBotConfig(ctx, "last_cmd_hash")
	lastMode, _ := l.store.GetBotConfig(ctx, "last_reg_mode")

	shouldRegister := true
	if currentHash != "" && currentHash == lastHash && currentMode == lastMode && !forceScan {
		shouldRegister = false
		LogInfo(MsgLoaderUpToDate, currentHash[:8])
	}

	if isProduction {
		if shouldRegister {
			LogInfo(MsgLoaderProdStarting)
			created, err := client.Rest.SetGlobalCommands(client.ApplicationID, commands)
			if err != nil {
				return fmt.Errorf(MsgLoaderProdFail, err)
			}
			for _, cmd := range created {
				LogInfo(MsgLoaderProdRegistered, cmd.Name())
			}
		}

		if forceScan || lastMode != currentMode {
			l.clearGhostCommands(client, 0)
		}
		if lastGuildID != "" {
			l.clearGuildCommands(client, lastGuildID)
		}
	} else {
		guildID, err := snowflake.Parse(guildIDStr)
		if err != nil {
			return fmt.Errorf("invalid GUILD_ID: %w", err)
		}

		if shouldRegister {
			LogInfo(MsgLoaderDevStarting, guildIDStr)
			created, err := client.Rest.SetGuildCommands(client.ApplicationID, guildID, commands)
			if err != nil {
				LogWarn(MsgLoaderDevFail, err)
			} else {
				for _, cmd := range created {
					LogInfo(MsgLoaderDevRegistered, cmd.Name())
				}
			}
		}

		if lastMode != currentMode || forceScan {
			if cmds, err := client.Rest.GetGlobalCommands(client.ApplicationID, false); err == nil && len(cmds) > 0 {
				LogInfo(MsgLoaderDevGlobalClear)
				if _, err := client.Rest.SetGlobalCommands(client.ApplicationID, []discord.ApplicationCommandCreate{}); err != nil {
					LogWarn(MsgLoaderDevGlobalClearFail, err)
				}
			}
		}
		if lastGuildID != "" && lastGuildID != guildIDStr {
			l.clearGuildCommands(client, lastGuildID)
		}
		if forceScan {
			l.clearGhostCommands(client, guildID)
		}
	}

	_ = l.store.SetBotConfig(ctx, "last_reg_mode", currentMode)
	_ = l.store.SetBotConfig(ctx, "last_guild_id", guildIDStr)
	if currentHash != "" {
		_ = l.store.SetBotConfig(ctx, "last_cmd_hash", currentHash)
	}
	return nil
}

// ClearAllCommands wipes global commands and every guild's commands.
func (l *Loader) ClearAllCommands(ctx context.Context, client *bot.Client) error {
	if _, err := client.Rest.SetGlobalCommands(client.ApplicationID, []discord.ApplicationCommandCreate{}); err != nil {
		return err
	}
	l.clearGhostCommands(client, 0)
	_ = l.store.SetBotConfig(ctx, "last_cmd_hash", "")
	return nil
}

func (l *Loader) clearGuildCommands(client *bot.Client, guildIDStr string) {
	id, err := snowflake.Parse(guildIDStr)
	if err != nil {
		return
	}
	if cmds, err := client.Rest.GetGuildCommands(client.ApplicationID, id, false); err == nil && len(cmds) > 0 {
		LogInfo(MsgLoaderCleanup, guildIDStr)
		_, _ = client.Rest.SetGuildCommands(client.ApplicationID, id, []discord.ApplicationCommandCreate{})
	}
}

// clearGhostCommands removes guild commands everywhere except keep.
func (l *Loader) clearGhostCommands(client *bot.Client, keep snowflake.ID) {
	LogInfo(MsgLoaderScanStarting)
	guilds, err := client.Rest.GetCurrentUserGuilds("", 0, 0, 100, false)
	if err != nil {
		return
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, 5)
	for _, g := range guilds {
		if g.ID == keep {
			continue
		}
		wg.Add(1)
		go func(guild discord.OAuth2Guild) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if cmds, err := client.Rest.GetGuildCommands(client.ApplicationID, guild.ID, false); err == nil && len(cmds) > 0 {
				LogInfo(MsgLoaderScanCleared, guild.Name, guild.ID.String())
				_, _ = client.Rest.SetGuildCommands(client.ApplicationID, guild.ID, []discord.ApplicationCommandCreate{})
			}
		}(g)
	}
	wg.Wait()
}

// --- Event Handlers ---

func (l *Loader) onReady(event *events.Ready) {
	client := event.Client()
	botUser := event.User

	LogInfo(MsgBotReady, botUser.Username, botUser.ID.String(), os.Getpid(), time.Since(l.startedAt).Milliseconds())

	ctx := l.Context()
	l.mu.RLock()
	callbacks := append([]ReadyCallback(nil), l.readyCallbacks...)
	l.mu.RUnlock()
	for _, cb := range callbacks {
		cb(ctx, client)
	}
	l.StartDaemons(ctx)
}

func (l *Loader) onApplicationCommandInteraction(event *events.ApplicationCommandInteractionCreate) {
	if h, ok := l.commandHandler(event.Data.CommandName()); ok {
		l.Go(func() { h(event) })
	}
}

func (l *Loader) onComponentInteraction(event *events.ComponentInteractionCreate) {
	if h, ok := l.componentHandler(event.Data.CustomID()); ok {
		l.Go(func() { h(event) })
	}
}

func (l *Loader) onModalSubmit(event *events.ModalSubmitInteractionCreate) {
	if h, ok := l.modalHandler(event.Data.CustomID); ok {
		l.Go(func() { h(event) })
	}
}

func (l *Loader) onMessageCreate(event *events.MessageCreate) {
	l.mu.RLock()
	handlers := l.messageHandlers
	l.mu.RUnlock()
	for _, h := range handlers {
		l.Go(func() { h(event) })
	}
}

func (l *Loader) onGuildMemberJoin(event *events.GuildMemberJoin) {
	l.mu.RLock()
	handlers := l.memberJoinHandlers
	l.mu.RUnlock()
	for _, h := range handlers {
		l.Go(func() { h(event) })
	}
}

// --- Daemon System ---

// RegisterDaemon registers a background daemon with a logger and start function
func (l *Loader) RegisterDaemon(logger func(format string, v ...any), starter DaemonStarter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.daemons = append(l.daemons, daemonEntry{starter: starter, logger: logger})
}

// StartDaemons starts every registered daemon once. Later calls are no-ops.
func (l *Loader) StartDaemons(ctx context.Context) {
	l.daemonsOnce.Do(func() {
		l.mu.RLock()
		daemons := append([]daemonEntry(nil), l.daemons...)
		l.mu.RUnlock()

		type activeDaemon struct {
			entry daemonEntry
			run   func()
		}
		var active []activeDaemon

		for _, daemon := range daemons {
			if ok, run, shutdown := daemon.starter(ctx); ok && run != nil {
				if shutdown != nil {
					l.shutdownMu.Lock()
					l.shutdownHooks = append(l.shutdownHooks, shutdown)
					l.shutdownMu.Unlock()
				}
				active = append(active, activeDaemon{daemon, run})
			}
		}

		for _, ad := range active {
			ad.entry.logger(MsgDaemonStarting)
		}
		for _, ad := range active {
			go ad.run()
		}
	})
}

// ShutdownDaemons runs every shutdown hook in parallel and waits for them.
func (l *Loader) ShutdownDaemons() {
	l.shutdownMu.Lock()
	hooks := l.shutdownHooks
	l.shutdownHooks = nil
	l.shutdownMu.Unlock()

	var wg sync.WaitGroup
	for _, shutdown := range hooks {
		wg.Add(1)
		go func(s func()) {
			defer wg.Done()
			s()
		}(shutdown)
	}
	wg.Wait()
}
