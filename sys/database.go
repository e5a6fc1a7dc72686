package sys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/NinjaGamerz509/Bot/proc"
	"github.com/disgoorg/snowflake/v2"
	"github.com/mattn/go-sqlite3"
)

const configKeyConsoleChannel = "console_channel_id"

// GuildSettings holds the per-guild channel and role configuration. Zero IDs
// mean "not set".
type GuildSettings struct {
	GuildID        snowflake.ID
	WelcomeChannel snowflake.ID
	LevelChannel   snowflake.ID
	AutoRole       snowflake.ID
}

// Store is the SQLite-backed persistence layer.
type Store struct {
	db *sql.DB
}

// OpenStore opens the database, applies pragmas and creates the schema.
func OpenStore(ctx context.Context, dataSourceName string) (*Store, error) {
	// Explicitly reference sqlite3 driver to avoid blank identifier
	_ = sqlite3.SQLiteDriver{}

	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(5)

	s := &Store{db: db}
	if err := s.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	LogDatabase(MsgDatabaseInitSuccess)
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA cache_size=-2000;",
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, p := range pragmas {
		if _, err := s.db.ExecContext(initCtx, p); err != nil {
			return fmt.Errorf(MsgDatabasePragmaError, p, err)
		}
	}

	tx, err := s.db.BeginTx(initCtx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tableQueries := []string{
		`CREATE TABLE IF NOT EXISTS bot_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS guild_settings (
			guild_id TEXT PRIMARY KEY,
			welcome_channel_id TEXT,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS server_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			guild_id TEXT,
			channel_id TEXT NOT NULL,
			created_by TEXT NOT NULL,
			name TEXT NOT NULL,
			ends_at DATETIME NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS levels (
			user_id TEXT PRIMARY KEY,
			xp INTEGER NOT NULL DEFAULT 0,
			level INTEGER NOT NULL DEFAULT 1,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, q := range tableQueries {
		if _, err := tx.ExecContext(initCtx, q); err != nil {
			return fmt.Errorf(MsgDatabaseTableError, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	migrations := []string{
		"ALTER TABLE guild_settings ADD COLUMN level_channel_id TEXT",
		"ALTER TABLE guild_settings ADD COLUMN auto_role_id TEXT",
	}

	for _, m := range migrations {
		if _, err := s.db.ExecContext(initCtx, m); err != nil {
			if !strings.Contains(err.Error(), "duplicate column") {
				return fmt.Errorf(MsgDatabaseMigrateFail, err)
			}
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping measures a round trip to the database.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	err := s.db.PingContext(ctx)
	return time.Since(start), err
}

// --- bot_config ---

// GetBotConfig returns "" for a missing key.
func (s *Store) GetBotConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM bot_config WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func (s *Store) SetBotConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bot_config (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// ConsoleChannel returns the global console channel, or 0 when unset.
func (s *Store) ConsoleChannel(ctx context.Context) (snowflake.ID, error) {
	raw, err := s.GetBotConfig(ctx, configKeyConsoleChannel)
	if err != nil || raw == "" {
		return 0, err
	}
	return snowflake.Parse(raw)
}

// SetConsoleChannel reports changed=false when the channel was already set.
func (s *Store) SetConsoleChannel(ctx context.Context, channelID snowflake.ID) (bool, error) {
	current, err := s.ConsoleChannel(ctx)
	if err != nil {
		return false, err
	}
	if current == channelID {
		return false, nil
	}
	return true, s.SetBotConfig(ctx, configKeyConsoleChannel, channelID.String())
}

// --- guild_settings ---

func (s *Store) GuildSettings(ctx context.Context, guildID snowflake.ID) (GuildSettings, error) {
	settings := GuildSettings{GuildID: guildID}
	var welcome, level, role sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT welcome_channel_id, level_channel_id, auto_role_id FROM guild_settings WHERE guild_id = ?",
		guildID.String()).Scan(&welcome, &level, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return settings, nil
	}
	if err != nil {
		return settings, err
	}
	settings.WelcomeChannel = parseNullID(welcome)
	settings.LevelChannel = parseNullID(level)
	settings.AutoRole = parseNullID(role)
	return settings, nil
}

func (s *Store) SetWelcomeChannel(ctx context.Context, guildID, channelID snowflake.ID) (bool, error) {
	return s.setGuildColumn(ctx, guildID, "welcome_channel_id", channelID)
}

func (s *Store) SetLevelChannel(ctx context.Context, guildID, channelID snowflake.ID) (bool, error) {
	return s.setGuildColumn(ctx, guildID, "level_channel_id", channelID)
}

func (s *Store) SetAutoRole(ctx context.Context, guildID, roleID snowflake.ID) (bool, error) {
	return s.setGuildColumn(ctx, guildID, "auto_role_id", roleID)
}

var guildColumns = map[string]bool{
	"welcome_channel_id": true,
	"level_channel_id":   true,
	"auto_role_id":       true,
}

func (s *Store) setGuildColumn(ctx context.Context, guildID snowflake.ID, column string, value snowflake.ID) (bool, error) {
	if !guildColumns[column] {
		return false, fmt.Errorf("unknown guild setting %q", column)
	}

	var current sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT "+column+" FROM guild_settings WHERE guild_id = ?", guildID.String()).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}
	if parseNullID(current) == value {
		return false, nil
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO guild_settings (guild_id, `+column+`, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(guild_id) DO UPDATE SET `+column+` = excluded.`+column+`, updated_at = CURRENT_TIMESTAMP
	`, guildID.String(), value.String())
	return err == nil, err
}

func parseNullID(v sql.NullString) snowflake.ID {
	if !v.Valid || v.String == "" {
		return 0
	}
	id, err := snowflake.Parse(v.String)
	if err != nil {
		return 0
	}
	return id
}

// --- levels ---

func (s *Store) LoadLevels(ctx context.Context) ([]proc.LevelRecord, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT user_id, xp, level FROM levels")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []proc.LevelRecord
	for rows.Next() {
		var userID string
		var r proc.LevelRecord
		if err := rows.Scan(&userID, &r.XP, &r.Level); err != nil {
			return nil, err
		}
		id, err := snowflake.Parse(userID)
		if err != nil {
			continue
		}
		r.UserID = id
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveLevels upserts the given records in one transaction.
func (s *Store) SaveLevels(ctx context.Context, records []proc.LevelRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO levels (user_id, xp, level, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET xp = excluded.xp, level = excluded.level, updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.UserID.String(), r.XP, r.Level); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// --- server_events ---

// ServerEvent is a named event announced with /setevent.
type ServerEvent struct {
	ID        int64
	GuildID   snowflake.ID
	ChannelID snowflake.ID
	CreatedBy snowflake.ID
	Name      string
	EndsAt    time.Time
}

func (s *Store) AddEvent(ctx context.Context, e *ServerEvent) error {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO server_events (guild_id, channel_id, created_by, name, ends_at) VALUES (?, ?, ?, ?, ?)",
		e.GuildID.String(), e.ChannelID.String(), e.CreatedBy.String(), e.Name, e.EndsAt.UTC())
	if err != nil {
		return err
	}
	e.ID, err = res.LastInsertId()
	return err
}

func (s *Store) CountEvents(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM server_events").Scan(&n)
	return n, err
}

// ClaimDueEvents atomically removes and returns every event that ended by now.
func (s *Store) ClaimDueEvents(ctx context.Context, now time.Time) ([]*ServerEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		DELETE FROM server_events
		WHERE ends_at <= ?
		RETURNING id, guild_id, channel_id, created_by, name, ends_at
	`, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ServerEvent
	for rows.Next() {
		e := &ServerEvent{}
		var gid, cid, uid sql.NullString
		if err := rows.Scan(&e.ID, &gid, &cid, &uid, &e.Name, &e.EndsAt); err != nil {
			return nil, err
		}
		e.GuildID = parseNullID(gid)
		e.ChannelID = parseNullID(cid)
		e.CreatedBy = parseNullID(uid)
		if e.ChannelID == 0 {
			return nil, fmt.Errorf("claimed event %d has no channel", e.ID)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
