package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("TOKEN", "")
	t.Setenv("GUILD_ID", "")
	t.Setenv("DATA_DIR", t.TempDir())
}

func TestParseDefaults(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DISCORD_TOKEN", "abc")

	cfg, err := parse()
	require.NoError(t, err)
	assert.Equal(t, "abc", cfg.DiscordToken)
	assert.Equal(t, "music-room", cfg.MusicChannelName)
	assert.Equal(t, 180, cfg.IdleSeconds)
	assert.Equal(t, 3*time.Minute, cfg.IdleTimeout())
	assert.InDelta(t, 0.6, cfg.DefaultVolume, 1e-9)
	assert.InDelta(t, 2.0, cfg.MaxVolume, 1e-9)
	assert.Equal(t, ":8080", cfg.KeepAliveAddr)
	assert.False(t, cfg.SpotifyEnabled())
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestParseMissingToken(t *testing.T) {
	setBaseEnv(t)

	_, err := parse()
	var cfgErr ErrConfig
	require.ErrorAs(t, err, &cfgErr)
}

func TestParseTokenFallback(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("TOKEN", "legacy")

	cfg, err := parse()
	require.NoError(t, err)
	assert.Equal(t, "legacy", cfg.DiscordToken)
}

func TestParseGuildID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "numeric", in: "123456789012345678", want: "123456789012345678"},
		{name: "non-numeric ignored", in: "my-guild", want: ""},
		{name: "empty", in: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBaseEnv(t)
			t.Setenv("DISCORD_TOKEN", "abc")
			t.Setenv("GUILD_ID", tt.in)

			cfg, err := parse()
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.GuildID)
		})
	}
}

func TestParseClampsDefaultVolume(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DISCORD_TOKEN", "abc")
	t.Setenv("DEFAULT_VOLUME", "3.5")
	t.Setenv("MAX_VOLUME", "1.5")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := parse()
	require.NoError(t, err)
	assert.InDelta(t, 1.5, cfg.DefaultVolume, 1e-9)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestParseRejectsBadIdle(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DISCORD_TOKEN", "abc")
	t.Setenv("AUTO_DC_IDLE_SECONDS", "0")

	_, err := parse()
	require.Error(t, err)
}
