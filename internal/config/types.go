package config

import "time"

type Config struct {
	DiscordToken     string  `env:"DISCORD_TOKEN"`
	GuildID          string  `env:"GUILD_ID"`
	MusicChannelName string  `env:"MUSIC_CHANNEL_NAME" envDefault:"music-room"`
	IdleSeconds      int     `env:"AUTO_DC_IDLE_SECONDS" envDefault:"180"`
	DefaultVolume    float64 `env:"DEFAULT_VOLUME" envDefault:"0.6"`
	MaxVolume        float64 `env:"MAX_VOLUME" envDefault:"2.0"`

	DataDir       string `env:"DATA_DIR" envDefault:"./data"`
	KeepAliveAddr string `env:"KEEPALIVE_ADDR" envDefault:":8080"`

	SpotifyClientID     string `env:"SPOTIFY_CLIENT_ID"`
	SpotifyClientSecret string `env:"SPOTIFY_CLIENT_SECRET"`

	ResolverWorkers int     `env:"RESOLVER_WORKERS" envDefault:"2"`
	ResolverRate    float64 `env:"RESOLVER_RATE" envDefault:"2"`
	ResolverBurst   int     `env:"RESOLVER_BURST" envDefault:"4"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// IdleTimeout is how long a player waits on an empty queue before leaving voice.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleSeconds) * time.Second
}

func (c *Config) SpotifyEnabled() bool {
	return c.SpotifyClientID != "" && c.SpotifyClientSecret != ""
}
