package handlers

import (
	"context"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/sonroyaalmerol/musicroom/internal/player"
)

// HandleMessage plays plain-text song requests posted in the music channel.
func (h *CommandHandler) HandleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}
	if !isTrigger(m.Content) {
		return
	}
	guildID, ok := parseGuildID(m.GuildID)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), playTimeout)
	defer cancel()

	name := channelName(s, m.ChannelID)
	if name == "" || name != h.musicChannel(ctx, guildID) {
		return
	}

	query := strings.TrimSpace(m.Content)
	slog.Info("music channel request", "guildID", m.GuildID, "userID", m.Author.ID, "query", query)

	chID := userVoiceChannel(s, m.GuildID, m.Author.ID)
	if chID == "" {
		h.replyTo(s, m, errorMessage(player.ErrNoVoiceChannel))
		return
	}

	t, pos, err := queueRequest(ctx, h.pm, h.resolver, playRequest{
		GuildID:        guildID,
		VoiceChannelID: chID,
		Query:          query,
		RequestedBy:    displayName(m.Member, m.Author),
	})
	if err != nil {
		slog.Info("music channel request failed", "guildID", m.GuildID, "query", query, "err", err)
		h.replyTo(s, m, errorMessage(err))
		return
	}
	h.replyTo(s, m, addedMessage("🎶", t, pos))
}

func (h *CommandHandler) replyTo(s *discordgo.Session, m *discordgo.MessageCreate, content string) {
	if _, err := s.ChannelMessageSendReply(m.ChannelID, content, m.Reference()); err != nil {
		if isForbidden(err) {
			slog.Debug("reply forbidden", "guildID", m.GuildID, "channelID", m.ChannelID)
			return
		}
		slog.Warn("message reply failed", "guildID", m.GuildID, "channelID", m.ChannelID, "err", err)
	}
}

// channelName reads the gateway state cache, falling back to REST only for
// channels the cache has not seen.
func channelName(s *discordgo.Session, channelID string) string {
	if ch, err := s.State.Channel(channelID); err == nil && ch != nil {
		return ch.Name
	}
	ch, err := s.Channel(channelID)
	if err != nil {
		slog.Debug("channel lookup failed", "channelID", channelID, "err", err)
		return ""
	}
	return ch.Name
}
