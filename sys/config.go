package sys

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/disgoorg/snowflake/v2"
	"github.com/joho/godotenv"
)

const (
	DefaultAdminID        = "1310109265389817888"
	DefaultServerIP       = "Not set"
	DefaultJavaCmd        = "java"
	DefaultJavaArgs       = "-Xmx8G -Xms8G -jar server.jar nogui"
	DefaultPort           = 3000
	DefaultAutoRestartMax = 5
)

type Config struct {
	Token        string
	GuildID      string
	AdminIDs     []snowflake.ID
	DatabasePath string
	Silent       bool
	Debug        bool

	// Minecraft server
	ServerIP       string
	LocalServer    bool
	AutoRestart    bool
	AutoRestartMax int
	JavaCmd        string
	JavaArgs       []string
	ServerDir      string

	// Keep-alive server
	Port               int
	ConsoleStreamToken string
}

// LoadConfig reads .env (if present) and the process environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := ConfigFromEnv(os.Getenv)
	if err != nil {
		return nil, err
	}
	if cfg.Silent {
		SetSilentMode(true)
	}
	return cfg, nil
}

// ConfigFromEnv builds a validated Config from a lookup function.
func ConfigFromEnv(getenv func(string) string) (*Config, error) {
	var errs []string
	parseBool := func(key string, def bool) bool {
		raw := strings.TrimSpace(getenv(key))
		if raw == "" {
			return def
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			errs = append(errs, fmt.Sprintf(MsgConfigInvalidBool, key, raw))
			return def
		}
		return v
	}
	parseInt := func(key string, def int) int {
		raw := strings.TrimSpace(getenv(key))
		if raw == "" {
			return def
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			errs = append(errs, fmt.Sprintf(MsgConfigInvalidInt, key, raw))
			return def
		}
		return v
	}
	orDefault := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	dbPath := getenv("DATABASE_PATH")
	if dbPath == "" {
		folder := "."
		if info, err := os.Stat("data"); err == nil && info.IsDir() {
			folder = "./data"
		}
		dbPath = filepath.Join(folder, GetProjectName()+".db")
	}

	var adminIDs []snowflake.ID
	for _, part := range strings.Split(orDefault("ADMIN_ID", DefaultAdminID), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := snowflake.Parse(part)
		if err != nil {
			errs = append(errs, fmt.Sprintf(MsgConfigInvalidAdmin, part))
			continue
		}
		adminIDs = append(adminIDs, id)
	}

	cfg := &Config{
		Token:              strings.TrimSpace(getenv("DISCORD_TOKEN")),
		GuildID:            strings.TrimSpace(getenv("GUILD_ID")),
		AdminIDs:           adminIDs,
		DatabasePath:       dbPath,
		Silent:             parseBool("SILENT", false),
		Debug:              parseBool("DEBUG", false),
		ServerIP:           orDefault("SERVER_IP", DefaultServerIP),
		LocalServer:        parseBool("LOCAL_SERVER", false),
		AutoRestart:        parseBool("AUTO_RESTART", false),
		AutoRestartMax:     parseInt("AUTO_RESTART_MAX", DefaultAutoRestartMax),
		JavaCmd:            orDefault("JAVA_CMD", DefaultJavaCmd),
		JavaArgs:           strings.Fields(orDefault("JAVA_ARGS", DefaultJavaArgs)),
		ServerDir:          getenv("SERVER_DIR"),
		Port:               parseInt("PORT", DefaultPort),
		ConsoleStreamToken: getenv("CONSOLE_STREAM_TOKEN"),
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf(MsgConfigMissingToken)
	}
	if c.GuildID != "" && (len(c.GuildID) < 17 || len(c.GuildID) > 20) {
		return fmt.Errorf("invalid GUILD_ID: must be a valid Snowflake")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d", c.Port)
	}
	if c.AutoRestartMax < 0 {
		return fmt.Errorf("invalid AUTO_RESTART_MAX: must not be negative")
	}
	if c.LocalServer && c.JavaCmd == "" {
		return fmt.Errorf("JAVA_CMD is required when LOCAL_SERVER=true")
	}
	return nil
}

func (c *Config) IsAdmin(id snowflake.ID) bool {
	return slices.Contains(c.AdminIDs, id)
}

func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

func GetProjectName() string {
	exePath, err := os.Executable()
	projectName := "bot"
	if err == nil {
		projectName = filepath.Base(exePath)
		projectName = strings.TrimSuffix(projectName, ".exe")

		if projectName == "main" || strings.HasPrefix(projectName, "go_build_") || strings.HasSuffix(projectName, ".test") {
			projectName = "darkmc"
			if modData, err := os.ReadFile("go.mod"); err == nil {
				lines := strings.Split(string(modData), "\n")
				if len(lines) > 0 && strings.HasPrefix(lines[0], "module ") {
					parts := strings.Split(lines[0], "/")
					projectName = strings.TrimSpace(parts[len(parts)-1])
				}
			}
		}
	}
	return projectName
}
