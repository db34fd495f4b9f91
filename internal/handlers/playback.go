package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sonroyaalmerol/musicroom/internal/player"
)

// TrackResolver turns a user query into a playable track.
type TrackResolver interface {
	Resolve(ctx context.Context, query, requestedBy string) (player.Track, error)
}

type playRequest struct {
	GuildID        snowflake.ID
	VoiceChannelID string
	Query          string
	RequestedBy    string
}

// queueRequest joins the requester's voice channel, resolves the query and
// enqueues the result. Nothing is enqueued when any step fails.
func queueRequest(ctx context.Context, pm *player.PlayerManager, r TrackResolver, req playRequest) (player.Track, int, error) {
	if req.VoiceChannelID == "" {
		return player.Track{}, 0, &player.VoiceConnectError{Err: player.ErrNoVoiceChannel}
	}

	p := pm.Get(req.GuildID)
	if _, err := p.Connect(ctx, req.VoiceChannelID); err != nil {
		return player.Track{}, 0, err
	}

	t, err := r.Resolve(ctx, req.Query, req.RequestedBy)
	if err != nil {
		return player.Track{}, 0, err
	}

	pos := p.Enqueue(t)
	p.Start()
	return t, pos, nil
}

// isTrigger reports whether a music channel message should be played. Text
// that looks like another bot's command is ignored.
func isTrigger(content string) bool {
	content = strings.TrimSpace(content)
	if content == "" {
		return false
	}
	switch content[0] {
	case '/', '!', '.':
		return false
	}
	return true
}

func errorMessage(err error) string {
	var (
		verr *player.VoiceConnectError
		rerr *player.ResolutionError
	)
	switch {
	case errors.Is(err, player.ErrNoVoiceChannel):
		return "❌ Join a voice channel first."
	case errors.As(err, &verr):
		if isForbidden(verr.Err) {
			return "❌ I don't have permission to join that voice channel."
		}
		return "❌ Couldn't connect to the voice channel."
	case errors.Is(err, player.ErrSpotifyDisabled):
		return "❌ Spotify links aren't enabled on this bot."
	case errors.As(err, &rerr):
		return fmt.Sprintf("❌ Couldn't find that song: `%v`", rerr.Err)
	}
	return fmt.Sprintf("⚠️ Something went wrong: `%v`", err)
}

func parseGuildID(id string) (snowflake.ID, bool) {
	if id == "" {
		return 0, false
	}
	g, err := snowflake.Parse(id)
	return g, err == nil
}

func displayName(m *discordgo.Member, u *discordgo.User) string {
	if m != nil && m.Nick != "" {
		return m.Nick
	}
	if u != nil {
		return u.DisplayName()
	}
	if m != nil && m.User != nil {
		return m.User.DisplayName()
	}
	return ""
}
