package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sonroyaalmerol/musicroom/internal/config"
	"github.com/sonroyaalmerol/musicroom/internal/player"
	"github.com/sonroyaalmerol/musicroom/internal/repository"
	"github.com/sonroyaalmerol/musicroom/internal/ui"
	"github.com/sonroyaalmerol/musicroom/internal/utils"
)

const (
	playTimeout         = 90 * time.Second
	autocompleteTimeout = 2500 * time.Millisecond
	queuePageSize       = 10
)

// SettingsStore persists per-guild overrides.
type SettingsStore interface {
	GetSettings(ctx context.Context, guild snowflake.ID) (*repository.Settings, error)
	SetDefaultVolume(ctx context.Context, guild snowflake.ID, vol *float64) error
	SetMusicChannel(ctx context.Context, guild snowflake.ID, name string) error
}

// Suggester feeds the play autocomplete.
type Suggester interface {
	Choices(ctx context.Context, query string, limit int) []*discordgo.ApplicationCommandOptionChoice
}

type CommandHandler struct {
	cfg      *config.Config
	pm       *player.PlayerManager
	resolver TrackResolver
	settings SettingsStore
	suggest  Suggester

	// per-guild music channel override, "" when the default applies
	channelMu sync.RWMutex
	channels  map[snowflake.ID]string
}

func NewCommandHandler(cfg *config.Config, pm *player.PlayerManager, r TrackResolver, settings SettingsStore, suggest Suggester) *CommandHandler {
	return &CommandHandler{
		cfg:      cfg,
		pm:       pm,
		resolver: r,
		settings: settings,
		suggest:  suggest,
		channels: make(map[snowflake.ID]string),
	}
}

func commandDefinitions() []*discordgo.ApplicationCommand {
	zero := 0.0
	manageGuild := int64(discordgo.PermissionManageGuild)
	noDM := false

	return []*discordgo.ApplicationCommand{
		{
			Name:        "play",
			Description: "Play a song by name or URL",
			Options: []*discordgo.ApplicationCommandOption{
				{Name: "query", Description: "song name or URL", Type: discordgo.ApplicationCommandOptionString, Required: true, Autocomplete: true},
			},
		},
		{Name: "skip", Description: "Skip the current song"},
		{Name: "pause", Description: "Pause playback"},
		{Name: "resume", Description: "Resume playback"},
		{Name: "stop", Description: "Stop playback and clear the queue"},
		{
			Name:        "queue",
			Description: "Show the queue",
			Options: []*discordgo.ApplicationCommandOption{
				{Name: "page", Description: "page of the queue to show [default: 1]", Type: discordgo.ApplicationCommandOptionInteger, MinValue: ptr(1.0)},
			},
		},
		{Name: "nowplaying", Description: "Show what is playing"},
		{
			Name:        "volume",
			Description: "Set volume 0-200% (default 60%)",
			Options: []*discordgo.ApplicationCommandOption{
				{Name: "percent", Description: "0-200", Type: discordgo.ApplicationCommandOptionInteger, Required: true, MinValue: &zero, MaxValue: 200},
			},
		},
		{
			Name:        "loop",
			Description: "Loop mode: off / one / all",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Name: "mode", Description: "loop mode", Type: discordgo.ApplicationCommandOptionString, Required: true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "off", Value: "off"},
						{Name: "one", Value: "one"},
						{Name: "all", Value: "all"},
					},
				},
			},
		},
		{Name: "leave", Description: "Leave the voice channel"},
		{
			Name:                     "config",
			Description:              "Server settings",
			DefaultMemberPermissions: &manageGuild,
			DMPermission:             &noDM,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "get", Description: "show settings"},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "set-volume", Description: "default volume for new sessions", Options: []*discordgo.ApplicationCommandOption{
					{Name: "percent", Description: "0-200", Type: discordgo.ApplicationCommandOptionInteger, Required: true, MinValue: &zero, MaxValue: 200},
				}},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "set-channel", Description: "text channel that takes song requests", Options: []*discordgo.ApplicationCommandOption{
					{Name: "name", Description: "channel name, empty to reset", Type: discordgo.ApplicationCommandOptionString},
				}},
			},
		},
	}
}

func ptr[T any](v T) *T { return &v }

// RegisterCommands replaces the bot's command set, in one guild when guildID
// is set, else globally.
func (h *CommandHandler) RegisterCommands(s *discordgo.Session, appID string, guildID string) error {
	start := time.Now()
	cmds := commandDefinitions()
	created, err := s.ApplicationCommandBulkOverwrite(appID, guildID, cmds)
	if err != nil {
		return fmt.Errorf("bulk overwrite commands: %w", err)
	}
	slog.Info("registered application commands", "guildID", guildID, "count", len(created), "took", time.Since(start))
	return nil
}

func (h *CommandHandler) HandleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		slog.Debug("interaction: application command", "guildID", i.GuildID, "userID", userIDOf(i), "command", i.ApplicationCommandData().Name)
		h.handleChatCommand(s, i)
	case discordgo.InteractionApplicationCommandAutocomplete:
		h.handleAutocomplete(s, i)
	default:
		slog.Debug("interaction: ignored type", "type", i.Type, "guildID", i.GuildID)
	}
}

func (h *CommandHandler) handleAutocomplete(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	if data.Name != "play" {
		return
	}

	var query string
	for _, opt := range data.Options {
		if opt.Focused {
			query = opt.StringValue()
			break
		}
	}

	choices := []*discordgo.ApplicationCommandOptionChoice{}
	if h.suggest != nil && strings.TrimSpace(query) != "" {
		ctx, cancel := context.WithTimeout(context.Background(), autocompleteTimeout)
		choices = h.suggest.Choices(ctx, query, 10)
		cancel()
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	}); err != nil {
		slog.Debug("autocomplete respond failed", "guildID", i.GuildID, "err", err)
	}
}

func (h *CommandHandler) handleChatCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	guildID, ok := parseGuildID(i.GuildID)
	if !ok {
		h.reply(s, i, "Commands only work inside a server.", true)
		return
	}

	data := i.ApplicationCommandData()
	switch data.Name {
	case "play":
		h.cmdPlay(s, i, guildID)
	case "skip":
		h.cmdSkip(s, i, guildID)
	case "pause":
		h.cmdPause(s, i, guildID)
	case "resume":
		h.cmdResume(s, i, guildID)
	case "stop":
		h.cmdStop(s, i, guildID)
	case "queue":
		h.cmdQueue(s, i, guildID)
	case "nowplaying":
		h.cmdNowPlaying(s, i, guildID)
	case "volume":
		h.cmdVolume(s, i, guildID)
	case "loop":
		h.cmdLoop(s, i, guildID)
	case "leave":
		h.cmdLeave(s, i, guildID)
	case "config":
		h.cmdConfig(s, i, guildID)
	default:
		slog.Debug("unknown command", "name", data.Name, "guildID", i.GuildID, "userID", userIDOf(i))
	}
}

func (h *CommandHandler) reply(s *discordgo.Session, i *discordgo.InteractionCreate, content string, ephemeral bool) {
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   flags,
		},
	}); err != nil {
		slog.Warn("reply failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	}
}

func (h *CommandHandler) replyEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
		},
	}); err != nil {
		slog.Warn("embed reply failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	}
}

func (h *CommandHandler) deferReply(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		slog.Warn("defer reply failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	}
}

func (h *CommandHandler) editReply(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content: &content,
	}); err != nil {
		slog.Warn("edit reply failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	}
}

func userVoiceChannel(s *discordgo.Session, guildID, userID string) string {
	if vs, err := s.State.VoiceState(guildID, userID); err == nil && vs != nil {
		return vs.ChannelID
	}
	return ""
}

func (h *CommandHandler) cmdPlay(s *discordgo.Session, i *discordgo.InteractionCreate, guildID snowflake.ID) {
	var query string
	for _, o := range i.ApplicationCommandData().Options {
		if o.Name == "query" {
			query = o.StringValue()
		}
	}

	userID := userIDOf(i)
	chID := userVoiceChannel(s, i.GuildID, userID)
	if chID == "" {
		h.reply(s, i, errorMessage(player.ErrNoVoiceChannel), true)
		return
	}

	slog.Info("cmd play", "guildID", i.GuildID, "userID", userID, "query", query)
	h.deferReply(s, i)

	ctx, cancel := context.WithTimeout(context.Background(), playTimeout)
	defer cancel()

	var user *discordgo.User
	if i.Member != nil {
		user = i.Member.User
	}
	t, pos, err := queueRequest(ctx, h.pm, h.resolver, playRequest{
		GuildID:        guildID,
		VoiceChannelID: chID,
		Query:          query,
		RequestedBy:    displayName(i.Member, user),
	})
	if err != nil {
		slog.Info("play request failed", "guildID", i.GuildID, "query", query, "err", err)
		h.editReply(s, i, errorMessage(err))
		return
	}
	h.editReply(s, i, addedMessage("➕", t, pos))
}

func addedMessage(icon string, t player.Track, pos int) string {
	msg := fmt.Sprintf("%s Added to queue: **%s**", icon, utils.EscapeMd(t.Title))
	if pos > 1 {
		msg += fmt.Sprintf(" (#%d)", pos)
	}
	return msg
}

func (h *CommandHandler) cmdSkip(s *discordgo.Session, i *discordgo.InteractionCreate, guildID snowflake.ID) {
	p := h.pm.Peek(guildID)
	if p == nil || p.Skip() != nil {
		h.reply(s, i, "❌ Nothing is playing.", true)
		return
	}
	slog.Info("cmd skip", "guildID", i.GuildID, "userID", userIDOf(i))
	h.reply(s, i, "⏭ Skipped.", false)
}

func (h *CommandHandler) cmdPause(s *discordgo.Session, i *discordgo.InteractionCreate, guildID snowflake.ID) {
	p := h.pm.Peek(guildID)
	if p == nil || p.Pause() != nil {
		h.reply(s, i, "❌ Nothing is playing.", true)
		return
	}
	slog.Info("cmd pause", "guildID", i.GuildID, "userID", userIDOf(i))
	h.reply(s, i, "⏸ Paused.", false)
}

func (h *CommandHandler) cmdResume(s *discordgo.Session, i *discordgo.InteractionCreate, guildID snowflake.ID) {
	p := h.pm.Peek(guildID)
	if p == nil || p.Resume() != nil {
		h.reply(s, i, "❌ Playback isn't paused.", true)
		return
	}
	slog.Info("cmd resume", "guildID", i.GuildID, "userID", userIDOf(i))
	h.reply(s, i, "▶️ Resumed.", false)
}

func (h *CommandHandler) cmdStop(s *discordgo.Session, i *discordgo.InteractionCreate, guildID snowflake.ID) {
	if p := h.pm.Peek(guildID); p != nil {
		p.Stop()
	}
	slog.Info("cmd stop", "guildID", i.GuildID, "userID", userIDOf(i))
	h.reply(s, i, "⏹️ Stopped and cleared the queue.", false)
}

func (h *CommandHandler) cmdQueue(s *discordgo.Session, i *discordgo.InteractionCreate, guildID snowflake.ID) {
	page := 1
	for _, o := range i.ApplicationCommandData().Options {
		if o.Name == "page" {
			page = int(o.IntValue())
		}
	}

	p := h.pm.Peek(guildID)
	if p == nil {
		h.reply(s, i, "📭 The queue is empty.", false)
		return
	}
	snap := ui.SnapshotOf(p)
	if snap.Current == nil && len(snap.Queue) == 0 {
		h.reply(s, i, "📭 The queue is empty.", false)
		return
	}
	embed, err := ui.QueueEmbed(snap, page, queuePageSize)
	if err != nil {
		h.reply(s, i, err.Error(), true)
		return
	}
	h.replyEmbed(s, i, embed)
}

func (h *CommandHandler) cmdNowPlaying(s *discordgo.Session, i *discordgo.InteractionCreate, guildID snowflake.ID) {
	p := h.pm.Peek(guildID)
	if p == nil || p.Current() == nil {
		h.reply(s, i, "⏹️ Nothing is playing yet.", false)
		return
	}
	h.replyEmbed(s, i, ui.PlayingEmbed(ui.SnapshotOf(p)))
}

func (h *CommandHandler) cmdVolume(s *discordgo.Session, i *discordgo.InteractionCreate, guildID snowflake.ID) {
	var percent int64
	for _, o := range i.ApplicationCommandData().Options {
		if o.Name == "percent" {
			percent = o.IntValue()
		}
	}
	applied := h.pm.Get(guildID).SetVolume(float64(percent) / 100)
	slog.Info("cmd volume", "guildID", i.GuildID, "userID", userIDOf(i), "requested", percent, "applied", applied)
	h.reply(s, i, fmt.Sprintf("🔊 Volume set to %d%% (applies from the next song)", int(applied*100+0.5)), false)
}

func (h *CommandHandler) cmdLoop(s *discordgo.Session, i *discordgo.InteractionCreate, guildID snowflake.ID) {
	var raw string
	for _, o := range i.ApplicationCommandData().Options {
		if o.Name == "mode" {
			raw = o.StringValue()
		}
	}
	mode, err := player.ParseLoopMode(raw)
	if err != nil {
		h.reply(s, i, "❌ Loop mode must be off, one or all.", true)
		return
	}
	h.pm.Get(guildID).SetLoopMode(mode)
	slog.Info("cmd loop", "guildID", i.GuildID, "userID", userIDOf(i), "mode", mode)
	h.reply(s, i, fmt.Sprintf("🔁 Loop mode: **%s**", mode), false)
}

func (h *CommandHandler) cmdLeave(s *discordgo.Session, i *discordgo.InteractionCreate, guildID snowflake.ID) {
	if p := h.pm.Peek(guildID); p != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := p.Leave(ctx)
		cancel()
		if err != nil && !errors.Is(err, player.ErrNotConnected) {
			slog.Warn("leave failed", "guildID", i.GuildID, "err", err)
		}
	}
	slog.Info("cmd leave", "guildID", i.GuildID, "userID", userIDOf(i))
	h.reply(s, i, "👋 Left the voice channel.", false)
}

func (h *CommandHandler) cmdConfig(s *discordgo.Session, i *discordgo.InteractionCreate, guildID snowflake.ID) {
	opts := i.ApplicationCommandData().Options
	if len(opts) == 0 {
		return
	}
	sub := opts[0]
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch sub.Name {
	case "get":
		gc, err := h.guildConfig(ctx, guildID)
		if err != nil {
			slog.Error("get settings failed", "guildID", i.GuildID, "err", err)
			h.reply(s, i, "failed to fetch config", true)
			return
		}
		h.replyEmbed(s, i, ui.ConfigEmbed(gc))

	case "set-volume":
		vol := min(float64(sub.Options[0].IntValue())/100, h.cfg.MaxVolume)
		if err := h.settings.SetDefaultVolume(ctx, guildID, &vol); err != nil {
			slog.Error("set default volume failed", "guildID", i.GuildID, "err", err)
			h.reply(s, i, "failed to save config", true)
			return
		}
		// the guild player outlives sessions, so the new default applies now
		if p := h.pm.Peek(guildID); p != nil {
			p.SetVolume(vol)
		}
		slog.Info("config updated", "guildID", i.GuildID, "key", "default_volume", "value", vol)
		h.reply(s, i, fmt.Sprintf("👍 Default volume set to %d%%", int(vol*100+0.5)), false)

	case "set-channel":
		var name string
		if len(sub.Options) > 0 {
			name = strings.TrimPrefix(strings.TrimSpace(sub.Options[0].StringValue()), "#")
		}
		if err := h.setMusicChannel(ctx, guildID, name); err != nil {
			slog.Error("set music channel failed", "guildID", i.GuildID, "err", err)
			h.reply(s, i, "failed to save config", true)
			return
		}
		if name == "" {
			name = h.cfg.MusicChannelName
		}
		slog.Info("config updated", "guildID", i.GuildID, "key", "music_channel", "value", name)
		h.reply(s, i, fmt.Sprintf("👍 Song requests now come from #%s", name), false)
	}
}

func (h *CommandHandler) guildConfig(ctx context.Context, guildID snowflake.ID) (ui.GuildConfig, error) {
	set, err := h.settings.GetSettings(ctx, guildID)
	if err != nil {
		return ui.GuildConfig{}, err
	}
	gc := ui.GuildConfig{
		MusicChannel:     h.cfg.MusicChannelName,
		DefaultVolume:    h.cfg.DefaultVolume,
		MaxVolume:        h.cfg.MaxVolume,
		IdleTimeout:      h.cfg.IdleTimeout(),
		SpotifyAvailable: h.cfg.SpotifyEnabled(),
	}
	if set.MusicChannel != "" {
		gc.MusicChannel = set.MusicChannel
		gc.ChannelOverride = true
	}
	if set.DefaultVolume != nil {
		gc.DefaultVolume = *set.DefaultVolume
		gc.VolumeOverride = true
	}
	return gc, nil
}

// musicChannel is the trigger channel name for a guild. Overrides are read
// from the store once per guild and cached.
func (h *CommandHandler) musicChannel(ctx context.Context, guildID snowflake.ID) string {
	h.channelMu.RLock()
	name, ok := h.channels[guildID]
	h.channelMu.RUnlock()

	if !ok && h.settings != nil {
		set, err := h.settings.GetSettings(ctx, guildID)
		if err != nil {
			// not cached, so the next message retries
			slog.Warn("get settings failed", "guildID", guildID, "err", err)
		} else {
			name = set.MusicChannel
			h.channelMu.Lock()
			h.channels[guildID] = name
			h.channelMu.Unlock()
		}
	}
	if name != "" {
		return name
	}
	return h.cfg.MusicChannelName
}

func (h *CommandHandler) setMusicChannel(ctx context.Context, guildID snowflake.ID, name string) error {
	if err := h.settings.SetMusicChannel(ctx, guildID, name); err != nil {
		return err
	}
	h.channelMu.Lock()
	h.channels[guildID] = name
	h.channelMu.Unlock()
	return nil
}

func userIDOf(i *discordgo.InteractionCreate) string {
	if i == nil {
		return ""
	}
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
