package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sonroyaalmerol/musicroom/internal/player"
	"github.com/sonroyaalmerol/musicroom/internal/ui"
)

const notifyTimeout = 10 * time.Second

type channelSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Notifier posts playback announcements to a guild's system channel, falling
// back to its music channel.
type Notifier struct {
	send   channelSender
	target func(guildID string) string
}

func NewNotifier(send channelSender, target func(guildID string) string) *Notifier {
	return &Notifier{send: send, target: target}
}

func (n *Notifier) NowPlaying(guildID string, t player.Track) {
	n.deliver(guildID, func(chID string, opt discordgo.RequestOption) error {
		_, err := n.send.ChannelMessageSendEmbed(chID, ui.NowPlaying(t), opt)
		return err
	})
}

func (n *Notifier) PlaybackFailed(guildID string, _ *player.Track, err error) {
	msg := fmt.Sprintf("⚠️ Error during playback: `%v`", err)
	n.deliver(guildID, func(chID string, opt discordgo.RequestOption) error {
		_, err := n.send.ChannelMessageSend(chID, msg, opt)
		return err
	})
}

func (n *Notifier) deliver(guildID string, fn func(chID string, opt discordgo.RequestOption) error) {
	chID := n.target(guildID)
	if chID == "" {
		slog.Debug("no announcement channel", "guildID", guildID)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	err := fn(chID, discordgo.WithContext(ctx))
	switch {
	case err == nil:
	case isForbidden(err):
		slog.Debug("announcement forbidden", "guildID", guildID, "channelID", chID)
	default:
		slog.Warn("announcement failed", "guildID", guildID, "channelID", chID, "err", err)
	}
}

func isForbidden(err error) bool {
	var rerr *discordgo.RESTError
	return errors.As(err, &rerr) && rerr.Response != nil && rerr.Response.StatusCode == http.StatusForbidden
}

// announceChannel picks the system channel, else the first text channel named
// musicChannel.
func announceChannel(g *discordgo.Guild, musicChannel string) string {
	if g == nil {
		return ""
	}
	if g.SystemChannelID != "" {
		return g.SystemChannelID
	}
	return findTextChannel(g, musicChannel)
}

func findTextChannel(g *discordgo.Guild, name string) string {
	for _, ch := range g.Channels {
		if ch != nil && ch.Type == discordgo.ChannelTypeGuildText && ch.Name == name {
			return ch.ID
		}
	}
	return ""
}
