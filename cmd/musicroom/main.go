package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sonroyaalmerol/musicroom/internal/autocomplete"
	"github.com/sonroyaalmerol/musicroom/internal/config"
	"github.com/sonroyaalmerol/musicroom/internal/handlers"
	"github.com/sonroyaalmerol/musicroom/internal/player"
	"github.com/sonroyaalmerol/musicroom/internal/repository"
	"github.com/sonroyaalmerol/musicroom/internal/server"
	"github.com/sonroyaalmerol/musicroom/internal/spotify"
	"github.com/sonroyaalmerol/musicroom/internal/stream"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	setupLogger(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(1)
	}
}

func setupLogger(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if strings.EqualFold(cfg.LogFormat, "json") {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

func run(ctx context.Context, cfg *config.Config) error {
	db, err := repository.OpenDB(cfg.DataDir)
	if err != nil {
		return err
	}
	defer db.Close()
	repo := repository.NewRepo(db)

	resolverOpts := player.ResolverOptions{
		Workers: cfg.ResolverWorkers,
		Rate:    cfg.ResolverRate,
		Burst:   cfg.ResolverBurst,
	}
	suggest := autocomplete.NewSuggester(nil)
	if cfg.SpotifyEnabled() {
		sp := spotify.NewClientCredentials(ctx, cfg.SpotifyClientID, cfg.SpotifyClientSecret)
		resolverOpts.Spotify = sp
		suggest.Spotify = sp
		slog.Info("spotify links enabled")
	}
	resolver := player.NewResolver(stream.NewYTDLP(), resolverOpts)

	bot, err := handlers.NewBot(ctx, cfg, repo, resolver, suggest)
	if err != nil {
		return err
	}

	if cfg.KeepAliveAddr != "" {
		srv := server.New(cfg.KeepAliveAddr, cfg.SlogLevel() <= slog.LevelDebug, bot.Stats)
		go func() {
			if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("keep-alive server", "addr", cfg.KeepAliveAddr, "err", err)
			}
		}()
	}

	slog.Info("starting bot", "musicChannel", cfg.MusicChannelName, "guildID", cfg.GuildID)
	return bot.Run(ctx)
}
