package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sonroyaalmerol/musicroom/internal/config"
	"github.com/sonroyaalmerol/musicroom/internal/player"
	"github.com/sonroyaalmerol/musicroom/internal/stream"
)

const shutdownTimeout = 15 * time.Second

type Bot struct {
	cfg      *config.Config
	settings SettingsStore
	session  *discordgo.Session
	pm       *player.PlayerManager
	cmd      *CommandHandler
}

// NewBot builds the discord session and the per-guild player manager. ctx
// bounds every player the bot creates.
func NewBot(ctx context.Context, cfg *config.Config, settings SettingsStore, resolver TrackResolver, suggest Suggester) (*Bot, error) {
	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent

	b := &Bot{cfg: cfg, settings: settings, session: dg}

	notifier := NewNotifier(dg, b.announceTarget)
	dialer := stream.NewVoiceDialer(dg)
	b.pm = player.NewPlayerManager(ctx, func(ctx context.Context, guildID snowflake.ID) *player.Player {
		return player.NewPlayer(ctx, guildID, player.Options{
			IdleTimeout:   cfg.IdleTimeout(),
			DefaultVolume: b.defaultVolume(ctx, guildID),
			MaxVolume:     cfg.MaxVolume,
			Dialer:        dialer,
			Notifier:      notifier,
		})
	})
	b.cmd = NewCommandHandler(cfg, b.pm, resolver, settings, suggest)
	return b, nil
}

func (b *Bot) defaultVolume(ctx context.Context, guildID snowflake.ID) float64 {
	if b.settings == nil {
		return b.cfg.DefaultVolume
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	set, err := b.settings.GetSettings(ctx, guildID)
	if err != nil {
		slog.Warn("get settings failed, using default volume", "guildID", guildID, "err", err)
		return b.cfg.DefaultVolume
	}
	if set.DefaultVolume != nil {
		return *set.DefaultVolume
	}
	return b.cfg.DefaultVolume
}

func (b *Bot) announceTarget(guildID string) string {
	g, err := b.session.State.Guild(guildID)
	if err != nil {
		slog.Debug("guild not in state", "guildID", guildID, "err", err)
		return ""
	}
	music := b.cfg.MusicChannelName
	if id, ok := parseGuildID(guildID); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		music = b.cmd.musicChannel(ctx, id)
		cancel()
	}
	return announceChannel(g, music)
}

// Stats reports joined guilds and players currently in a voice channel.
func (b *Bot) Stats() (guilds, playing int) {
	if b.session.State != nil {
		b.session.State.RLock()
		guilds = len(b.session.State.Guilds)
		b.session.State.RUnlock()
	}
	return guilds, b.pm.Active()
}

func (b *Bot) Run(ctx context.Context) error {
	dg := b.session

	dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("connected", "user", r.User.Username, "guilds", len(r.Guilds))
		if err := b.cmd.RegisterCommands(s, r.User.ID, b.cfg.GuildID); err != nil {
			slog.Error("register commands", "guildID", b.cfg.GuildID, "err", err)
		}
	})
	dg.AddHandler(b.cmd.HandleInteraction)
	dg.AddHandler(b.cmd.HandleMessage)

	if err := dg.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}

	<-ctx.Done()
	slog.Info("shutting down bot")

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := b.pm.Shutdown(sctx); err != nil {
		slog.Warn("player shutdown", "err", err)
	}
	return dg.Close()
}
