package sys

// --- Core & Loader ---

const (
	MsgConfigFailedToLoad  = "Failed to load config: %v"
	MsgConfigMissingToken  = "DISCORD_TOKEN is not set in .env file"
	MsgConfigInvalidBool   = "%s must be true or false (got %q)"
	MsgConfigInvalidInt    = "%s must be a whole number (got %q)"
	MsgConfigInvalidAdmin  = "ADMIN_ID entry %q is not a valid Snowflake"
	MsgDatabaseInitSuccess = "Database initialized successfully"
	MsgDatabaseTableError  = "Failed to create table: %w"
	MsgDatabasePragmaError = "Failed to set pragma %s: %w"
	MsgDatabaseMigrateFail = "Migration failed: %w"
	MsgDaemonStarting      = "Starting..."
	MsgDaemonShutdownAll   = "Shutting down all daemons..."
	MsgBotStarting         = "Starting %s..."
	MsgBotReady            = "%s is ready! (ID: %s) (PID: %d) (Took: %dms)"
	MsgBotShutdown         = "Shutting down %s..."
	MsgBotKillingOld       = "Killing running instance... (PID: %d)"
	MsgBotKillFail         = "Failed to kill old instance: %v"
	MsgBotOldTerminated    = "Old instance terminated."
	MsgBotPIDWriteFail     = "Failed to write PID file: %v"
	MsgBotRegisterFail     = "Command registration failed: %v"
	MsgBotSkipReg          = "Skipping command registration as requested."
	MsgBotClearFail        = "Clearing commands failed: %v"
	MsgBotStubborn         = "Old process %d is stubborn. Sending SIGKILL..."
	MsgBotLockFail         = "Failed to lock PID file: %v"
	MsgBotSelfRestart      = "Self-restarting process..."
	MsgBotReexecFail       = "Failed to re-execute: %v"
	MsgGenericError        = "%v"

	MsgLoaderSyncCommands       = "Syncing %s commands..."
	MsgLoaderUpToDate           = "[LOADER] Commands are up to date. (Hash: %s)"
	MsgLoaderCleanup            = "[CLEANUP] Removing commands from previous dev guild: %s"
	MsgLoaderDevStarting        = "[DEV] Registering commands to guild: %s"
	MsgLoaderDevRegistered      = "[DEV] Registered: %s"
	MsgLoaderDevFail            = "[DEV] Registration failed: %v"
	MsgLoaderDevGlobalClear     = "[DEV] Verifying global commands are cleared..."
	MsgLoaderDevGlobalClearFail = "[DEV] Global clear skipped (likely rate limited): %v"
	MsgLoaderProdStarting       = "[PROD] Registering commands globally..."
	MsgLoaderProdRegistered     = "[PROD] Registered: %s"
	MsgLoaderProdFail           = "[PROD] Global registration failed: %w"
	MsgLoaderScanStarting       = "[SCAN] Checking all guilds for ghost commands..."
	MsgLoaderScanCleared        = "[SCAN] Cleared ghost commands from: %s (%s)"
	MsgLoaderPanicRecovered     = "Panic recovered in handler: %v"
	MsgLoaderPoolSubmitFail     = "Handler dropped, worker pool unavailable: %v"
)

// --- Access ---

const (
	ErrAdminOnly       = "⛔ Only admin can use this command."
	ErrGuildOnly       = "This command can only be used in a server."
	ErrGeneric         = "❌ An error occurred."
	ErrMissingChannel  = "❌ Please provide a channel."
	ErrMissingRole     = "❌ Please provide a role."
	ErrSettingSaveFail = "❌ Failed to save setting: %v"
)

// --- Game Server ---

const (
	MsgServerStatusFooter = "DarkMC • Server Status 💧"

	MsgServerCmdStarting   = "🟢 Starting Server"
	MsgServerCmdStartDesc  = "Attempting to start the Minecraft server..."
	MsgServerCmdStopping   = "🔴 Stopping Server"
	MsgServerCmdStopDesc   = "Attempting to stop the Minecraft server..."
	MsgServerCmdRestarting = "🔁 Restarting Server"
	MsgServerCmdRestDesc   = "Attempting to restart the Minecraft server..."

	MsgServerStatusTitle   = "📡 Server Status"
	MsgServerStatusBody    = "Current status: **%s**\nIP: `%s`"
	MsgServerStatusSim     = "\nMode: _simulated (LOCAL_SERVER=false)_"
	MsgServerStatusProcess = "\nPID: `%d`\nCPU: `%.1f%%`\nMemory: `%.1f MB`\nThreads: `%d`\nUptime: `%s`"

	MsgServerAlreadyRunning     = "⚠️ Already running or starting"
	MsgServerAlreadyRunningDesc = "Server is not in stopped state."
	MsgServerAlreadyStopped     = "⚠️ Already stopped"
	MsgServerAlreadyStoppedDesc = "Server is already stopped."
	MsgServerIsStopped          = "⚠️ Server is stopped"
	MsgServerIsStoppedDesc      = "Use start command to start the server."
	MsgServerBusy               = "⚠️ Server is busy"
	MsgServerBusyDesc           = "Another operation is in progress (state: **%s**). Try again shortly."

	MsgServerStarting        = "🟢 Server Starting..."
	MsgServerStartingDesc    = "Please wait, the Minecraft server is starting..."
	MsgServerReady           = "✅ Server has started!"
	MsgServerReadyDesc       = "Server is online — join at `%s`"
	MsgServerFallback        = "✅ Server Started (fallback)"
	MsgServerFallbackDesc    = "Server assumed online — join at `%s`"
	MsgServerSimStarted      = "✅ Server Started!"
	MsgServerSimStartedDesc  = "DarkMC server is now online — join at `%s`"
	MsgServerStopping        = "🔴 Server Stopping..."
	MsgServerStoppingDesc    = "Please wait, server is shutting down..."
	MsgServerStopped         = "🛑 Server Stopped"
	MsgServerStoppedDesc     = "Server has been stopped successfully."
	MsgServerRestarting      = "🔁 Server Restarting..."
	MsgServerRestartingDesc  = "Server will stop and restart — please wait..."
	MsgServerRebooting       = "🟡 Server Starting..."
	MsgServerRebootingDesc   = "Booting up the server again..."
	MsgServerRestarted       = "✅ Server Restarted!"
	MsgServerRestartedDesc   = "Server is back online 💧"
	MsgServerCrashed         = "❌ Server stopped unexpectedly"
	MsgServerCrashedDesc     = "Server process exited (%s)."
	MsgServerAutoRestart     = "🔁 Auto-restart enabled — attempting to restart in %d seconds..."
	MsgServerAutoRestartDone = "⛔ Auto-restart gave up"
	MsgServerAutoRestartDesc = "The server crashed %d times in a row. Start it manually with /serverstart."
	MsgServerSpawnFailed     = "❌ Failed to start server"

	MsgServerLogTransition = "State -> %s (%s)"
	MsgServerLogSpawned    = "Spawned server process with PID %d"
	MsgServerLogExit       = "Minecraft process exited (%s)"
	MsgServerLogNoticeFail = "Failed to post status notice: %v"
	MsgServerLogShutdown   = "Stopping game server before exit..."
)

// --- Console ---

const (
	MsgConsoleSet        = "✅ Server console output will be shown in %s\nNote: Only works when LOCAL_SERVER=true"
	MsgConsoleDuplicate  = "Server console output already is channel pe aa raha hai 💧"
	MsgConsoleSendFail   = "Failed to relay console output: %v"
	MsgConsoleNoChannel  = "Console output dropped, no console channel configured"
	MsgConsoleRelayStop  = "Shutting down Console Relay..."
	MsgConsoleDrainFail  = "Console output left unsent on shutdown: %v"
	MsgConsoleStreamOpen = "Console stream client connected from %s"
	MsgConsoleStreamDrop = "Console stream client %s disconnected: %v"
)

// --- Announcements ---

const (
	MsgAnnounceBuilderTitle  = "📣 Announcement Builder"
	MsgAnnounceBuilderBody   = "**Title:** %s\n**Description:** %s\n**Color:** %s\n**Image:** %s\n**Channel:** %s"
	MsgAnnounceBuilderTip    = "_Tip: Use the buttons below to set each field. Session expires <t:%d:R>._"
	MsgAnnounceBuilderFooter = "-# DarkMC • Announcement Builder 💧"
	MsgAnnounceFooter        = "-# DarkMC • Announcement 💧"
	MsgAnnounceNotSet        = "_Not set_"
	MsgAnnounceSet           = "_Set_"
	MsgAnnounceColorDefault  = "_Default (%s)_"
	MsgAnnounceNotSelected   = "_Not selected_"

	MsgAnnounceBtnTitle   = "Title"
	MsgAnnounceBtnDesc    = "Description"
	MsgAnnounceBtnColor   = "Color"
	MsgAnnounceBtnImage   = "Image (URL)"
	MsgAnnounceBtnChannel = "Pick Channel"
	MsgAnnounceBtnSend    = "🚀 Send"
	MsgAnnounceBtnClose   = "❌ Close"

	MsgAnnounceModalTitle      = "Set Announcement Title"
	MsgAnnounceModalTitleLabel = "Title (leave empty to clear)"
	MsgAnnounceModalDesc       = "Set Announcement Description"
	MsgAnnounceModalDescLabel  = "Description"
	MsgAnnounceModalColor      = "Set Embed Color (hex)"
	MsgAnnounceModalColorLabel = "Hex color (e.g. #00E5E5)"
	MsgAnnounceModalImage      = "Set Image URL (valid 10 min)"
	MsgAnnounceModalImageLabel = "Image URL (https://...)"

	MsgAnnouncePickPrompt      = "Choose a channel from the menu below:"
	MsgAnnouncePickPlaceholder = "Choose channel for announcement"
	MsgAnnounceNoChannels      = "No selectable channels available."
	MsgAnnounceFieldUpdated    = "✅ Updated."

	MsgAnnounceSent    = "✅ Announcement sent!"
	MsgAnnounceClosed  = "❌ Announcement session closed."
	MsgAnnounceExpired = "⏳ Announcement builder session expired."
	MsgAnnounceFailed  = "❌ Announcement could not be delivered."

	ErrAnnounceAdminOnly   = "⛔ Only admin can open announce panel."
	ErrAnnounceNotOwner    = "⛔ Only the admin who opened this panel can interact."
	ErrAnnounceNotFound    = "Session expired or not found."
	ErrAnnounceExpired     = "Session expired."
	ErrAnnounceNoChannel   = "❌ Please select a channel first."
	ErrAnnounceStaleImage  = "❌ The provided image URL is older than 10 minutes. Set it again."
	ErrAnnounceUnreachable = "❌ Selected channel not found or bot has no access."
	ErrAnnounceDelivery    = "❌ Failed to send announcement: %v"
	ErrAnnounceInvalid     = "❌ %v"

	MsgAnnounceLogOpened  = "Panel %s opened by %s"
	MsgAnnounceLogSent    = "Panel %s delivered to channel %s"
	MsgAnnounceLogRender  = "Failed to render panel %s: %v"
	MsgAnnounceLogDeliver = "Failed to send announcement: %v"
)

// --- Settings ---

const (
	MsgWelcomeSet        = "✅ Welcome channel set to %s"
	MsgWelcomeDuplicate  = "Hey! Yehi channel pe welcome messages already set hain 🎉"
	MsgAutoRoleSet       = "✅ Auto role set to %s"
	MsgAutoRoleDuplicate = "✅ Auto role is already %s"
	MsgLevelChannelSet   = "✅ Level-up messages will be sent in %s"
	MsgLevelChannelDup   = "Chill maar bhai, yehi channel pe level-up messages already jayenge 💧"

	MsgEventSet         = "✅ Event \"%s\" set for %s (ends <t:%d:R>)"
	ErrEventDuration    = "❌ Could not understand duration %q. Try 10s, 5m, 1h or \"in 2 hours\"."
	MsgGreetTestSent    = "✅ Greeting test sent"
	MsgGreetTestContent = "Test Greeting! Welcome!"
	ErrWelcomeNotSet    = "❌ Welcome channel not set"

	MsgEventEndedTitle    = "🏁 Event Ended"
	MsgEventEndedBody     = "**%s** has ended. Thanks for joining! (set by %s)"
	MsgEventEndedLog      = "Event %q ended, notice posted to %s"
	MsgEventQueryFail     = "Failed to query due events: %v"
	MsgEventSendFail      = "Failed to post end notice for event %d: %v"
	MsgEventSchedulerStop = "Shutting down Event Scheduler..."

	MsgWelcomeTitle    = "🎉 Welcome to DarkMC!"
	MsgWelcomeBody     = "Hey %s! 🎉\nWelcome to the DarkMC Community 💀\nChill maar, chat kar aur apna level badha ⚡\nCheck #rules aur #updates channels!"
	MsgWelcomeFooter   = "-# DarkMC • Stay Cool 💧"
	MsgWelcomeLogJoin  = "%s joined guild %s"
	MsgWelcomeRoleFail = "Failed to assign auto role %s to %s: %v"
	MsgWelcomeSendFail = "Failed to post welcome card: %v"
)

// --- Levels ---

const (
	MsgRank              = "You are Level **%d** with **%d XP**"
	MsgLeaderboardTitle  = "🏆 Leaderboard"
	MsgLeaderboardRow    = "%d. <@%s> — Level %d (%d XP)"
	MsgLeaderboardEmpty  = "No data yet."
	MsgLevelUpTitle      = "🎯 Level Up!"
	MsgLevelUpBody       = "%s just reached **Level %d!** 🔥\nKeep chatting and flex your grind!"
	MsgLevelsLoaded      = "Loaded %d level records"
	MsgLevelsSaveFail    = "Failed to save levels: %v"
	MsgLevelsPostFail    = "Failed to post level-up: %v"
	MsgLevelsFlushOnExit = "Flushing levels before exit..."
)

// --- Misc ---

const (
	MsgPing           = "🏓 Pong! Latency: %dms"
	MsgUptime         = "Bot Uptime: %dh %dm %ds"
	MsgBotStopping    = "Shutting down bot... Bye!"
	MsgBotRestarting  = "Restarting bot..."
	MsgStopCommanded  = "Shutdown commanded by %s (%s)"
	MsgRebootCommand  = "Restart commanded by %s (%s)"
	MsgHelpTitle      = "## DarkMC Bot Commands"
	MsgHelpFooter     = "-# DarkMC • Made with 💧"
	MsgHelpBody       = "**General Commands:**\n/help - Show this help\n/ping - Check bot latency\n/uptime - Check bot uptime\n\n" +
		"**Level System:**\n/rank - Check your level\n/leaderboard - Top 10 users\n\n" +
		"**Admin Commands:**\n/announce - Open announcement panel\n/setwelcomechannel <channel>\n/setautorole <role>\n" +
		"/setlevelchannel <channel>\n/setconsolechannel <channel> - Live server console\n/setevent <name> <duration>\n" +
		"/greettest - Test welcome\n/stop - Stop bot\n/restart - Restart bot\n\n" +
		"**Minecraft Server:**\n/serverstart - Start server (anyone)\n/serverstop - Stop server (admin)\n" +
		"/serverrestart - Restart server (admin)\n/serverstatus - Check status"
)

// --- Presence ---

const (
	MsgPresenceServer   = "DarkMC • server %s"
	MsgPresenceIP       = "IP: %s"
	MsgPresenceUptime   = "up %s"
	MsgPresencePing     = "ping %dms"
	MsgPresenceDefault  = "DarkMC 💧"
	MsgPresenceRotated  = "Presence -> %s (next in %v)"
	MsgPresenceFail     = "Failed to update presence: %v"
	MsgPresenceShutdown = "Shutting down Presence Rotator..."
)

// --- Keep-alive ---

const (
	MsgKeepAliveRoot     = "✅ DarkMC Bot is alive and running!"
	MsgKeepAliveListen   = "🌐 Web server running on port %d"
	MsgKeepAlivePing     = "🔁 Keep-alive ping: %s"
	MsgKeepAliveFail     = "Web server stopped: %v"
	MsgKeepAliveShutdown = "Shutting down web server..."
)
