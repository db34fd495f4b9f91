package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/disgoorg/snowflake/v2"
	"github.com/joho/godotenv"
)

// LoadConfig reads an optional .env file and then the process environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()
	return parse()
}

func parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.DiscordToken == "" {
		cfg.DiscordToken = os.Getenv("TOKEN")
	}
	if cfg.DiscordToken == "" {
		return nil, ErrConfig("DISCORD_TOKEN required")
	}

	cfg.GuildID = strings.TrimSpace(cfg.GuildID)
	if cfg.GuildID != "" {
		if _, err := snowflake.Parse(cfg.GuildID); err != nil {
			slog.Warn("ignoring non-numeric GUILD_ID", "value", cfg.GuildID)
			cfg.GuildID = ""
		}
	}

	if cfg.MaxVolume <= 0 {
		return nil, ErrConfig("MAX_VOLUME must be positive")
	}
	if cfg.DefaultVolume < 0 {
		cfg.DefaultVolume = 0
	}
	if cfg.DefaultVolume > cfg.MaxVolume {
		cfg.DefaultVolume = cfg.MaxVolume
	}
	if cfg.IdleSeconds <= 0 {
		return nil, ErrConfig("AUTO_DC_IDLE_SECONDS must be positive")
	}
	if cfg.ResolverWorkers < 1 {
		cfg.ResolverWorkers = 1
	}
	if cfg.ResolverBurst < 1 {
		cfg.ResolverBurst = 1
	}

	_ = os.MkdirAll(cfg.DataDir, 0o755)
	return cfg, nil
}

// SlogLevel maps LOG_LEVEL onto a slog.Level; unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
