package sys

import (
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

func TestConfigDefaults(t *testing.T) {
	cfg, err := ConfigFromEnv(envMap(map[string]string{
		"DISCORD_TOKEN": "token",
		"DATABASE_PATH": "test.db",
	}))
	require.NoError(t, err)

	assert.Equal(t, "test.db", cfg.DatabasePath)
	assert.Equal(t, DefaultServerIP, cfg.ServerIP)
	assert.False(t, cfg.LocalServer)
	assert.False(t, cfg.AutoRestart, "auto-restart is opt-in")
	assert.Equal(t, DefaultAutoRestartMax, cfg.AutoRestartMax)
	assert.Equal(t, "java", cfg.JavaCmd)
	assert.Equal(t, []string{"-Xmx8G", "-Xms8G", "-jar", "server.jar", "nogui"}, cfg.JavaArgs)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, ":3000", cfg.Addr())
	assert.True(t, cfg.IsAdmin(snowflake.MustParse(DefaultAdminID)))
}

func TestConfigOverrides(t *testing.T) {
	cfg, err := ConfigFromEnv(envMap(map[string]string{
		"DISCORD_TOKEN":    "token",
		"DATABASE_PATH":    "test.db",
		"ADMIN_ID":         "111111111111111111, 222222222222222222",
		"SERVER_IP":        "play.darkmc.net",
		"LOCAL_SERVER":     "true",
		"AUTO_RESTART":     "1",
		"AUTO_RESTART_MAX": "0",
		"JAVA_ARGS":        "-Xmx2G -jar paper.jar nogui",
		"SERVER_DIR":       "/srv/mc",
		"PORT":             "8080",
	}))
	require.NoError(t, err)

	assert.True(t, cfg.IsAdmin(111111111111111111))
	assert.True(t, cfg.IsAdmin(222222222222222222))
	assert.False(t, cfg.IsAdmin(snowflake.MustParse(DefaultAdminID)))
	assert.True(t, cfg.LocalServer)
	assert.True(t, cfg.AutoRestart)
	assert.Zero(t, cfg.AutoRestartMax)
	assert.Equal(t, []string{"-Xmx2G", "-jar", "paper.jar", "nogui"}, cfg.JavaArgs)
	assert.Equal(t, "/srv/mc", cfg.ServerDir)
	assert.Equal(t, 8080, cfg.Port)
}

func TestConfigRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing token", map[string]string{}},
		{"bad bool", map[string]string{"DISCORD_TOKEN": "t", "AUTO_RESTART": "yes please"}},
		{"bad int", map[string]string{"DISCORD_TOKEN": "t", "PORT": "http"}},
		{"port range", map[string]string{"DISCORD_TOKEN": "t", "PORT": "70000"}},
		{"bad admin", map[string]string{"DISCORD_TOKEN": "t", "ADMIN_ID": "steve"}},
		{"bad guild", map[string]string{"DISCORD_TOKEN": "t", "GUILD_ID": "123"}},
		{"negative budget", map[string]string{"DISCORD_TOKEN": "t", "AUTO_RESTART_MAX": "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.env["DATABASE_PATH"] = "test.db"
			_, err := ConfigFromEnv(envMap(tt.env))
			assert.Error(t, err)
		})
	}
}
