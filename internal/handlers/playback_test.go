package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sonroyaalmerol/musicroom/internal/player"
	"github.com/sonroyaalmerol/musicroom/internal/player/playertest"
	"github.com/sonroyaalmerol/musicroom/internal/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testGuild = snowflake.ID(4242)

type fixture struct {
	dialer *playertest.FakeDialer
	ex     *playertest.FakeExtractor
	pm     *player.PlayerManager
	r      *player.Resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		dialer: &playertest.FakeDialer{},
		ex:     playertest.NewFakeExtractor(),
	}
	opener := &playertest.FakeOpener{}
	f.pm = player.NewPlayerManager(context.Background(), func(ctx context.Context, guildID snowflake.ID) *player.Player {
		return player.NewPlayer(ctx, guildID, player.Options{
			IdleTimeout:   time.Minute,
			DefaultVolume: 0.6,
			Dialer:        f.dialer,
			OpenSource:    opener.Open,
		})
	})
	f.r = player.NewResolver(f.ex, player.ResolverOptions{})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = f.pm.Shutdown(ctx)
	})
	return f
}

func TestQueueRequestPlaysResolvedTrack(t *testing.T) {
	f := newFixture(t)
	f.ex.Add("ytsearch1:lofi beats", &stream.Info{Title: "Lofi Beats", WebpageURL: "https://yt/lofi", URL: "https://cdn/lofi"})

	tr, pos, err := queueRequest(context.Background(), f.pm, f.r, playRequest{
		GuildID: testGuild, VoiceChannelID: "vc-1", Query: "lofi beats", RequestedBy: "bob",
	})
	require.NoError(t, err)
	assert.Equal(t, "Lofi Beats", tr.Title)
	assert.Equal(t, "bob", tr.RequestedBy)
	assert.Equal(t, 1, pos)

	p := f.pm.Peek(testGuild)
	require.NotNil(t, p)
	assert.True(t, p.Connected())
	assert.Eventually(t, func() bool {
		cur := p.Current()
		return cur != nil && cur.Title == "Lofi Beats"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "vc-1", f.dialer.Last().ChannelID())
}

func TestQueueRequestWithoutVoiceChannel(t *testing.T) {
	f := newFixture(t)

	_, _, err := queueRequest(context.Background(), f.pm, f.r, playRequest{GuildID: testGuild, Query: "anything"})
	assert.ErrorIs(t, err, player.ErrNoVoiceChannel)
	assert.Nil(t, f.pm.Peek(testGuild))
	assert.Zero(t, f.dialer.Joins())
	assert.Equal(t, "❌ Join a voice channel first.", errorMessage(err))
}

func TestQueueRequestResolutionFailureEnqueuesNothing(t *testing.T) {
	f := newFixture(t)

	_, _, err := queueRequest(context.Background(), f.pm, f.r, playRequest{
		GuildID: testGuild, VoiceChannelID: "vc-1", Query: "xyyzzqqnonexistent",
	})
	var rerr *player.ResolutionError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "xyyzzqqnonexistent", rerr.Query)

	p := f.pm.Peek(testGuild)
	require.NotNil(t, p)
	assert.Empty(t, p.Queue())
	assert.Nil(t, p.Current())
	assert.Contains(t, errorMessage(err), "Couldn't find that song")
}

func TestQueueRequestConnectFailure(t *testing.T) {
	f := newFixture(t)
	forbidden := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusForbidden}}
	f.dialer.SetErr(forbidden)

	_, _, err := queueRequest(context.Background(), f.pm, f.r, playRequest{
		GuildID: testGuild, VoiceChannelID: "vc-1", Query: "lofi",
	})
	var verr *player.VoiceConnectError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "vc-1", verr.ChannelID)
	assert.Empty(t, f.ex.Targets())
	assert.Equal(t, "❌ I don't have permission to join that voice channel.", errorMessage(err))

	f.dialer.SetErr(errors.New("udp timeout"))
	_, _, err = queueRequest(context.Background(), f.pm, f.r, playRequest{
		GuildID: testGuild, VoiceChannelID: "vc-1", Query: "lofi",
	})
	assert.Equal(t, "❌ Couldn't connect to the voice channel.", errorMessage(err))
}

func TestIsTrigger(t *testing.T) {
	tests := []struct {
		content string
		want    bool
	}{
		{"never gonna give you up", true},
		{"  https://youtu.be/dQw4w9WgXcQ", true},
		{"/play x", false},
		{"!skip", false},
		{".np", false},
		{"   ", false},
		{"", false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, isTrigger(tc.content), "content %q", tc.content)
	}
}

func TestErrorMessageFallback(t *testing.T) {
	assert.Equal(t, "❌ Spotify links aren't enabled on this bot.",
		errorMessage(&player.ResolutionError{Query: "x", Err: player.ErrSpotifyDisabled}))
	assert.Equal(t, "⚠️ Something went wrong: `boom`", errorMessage(errors.New("boom")))
}

func TestParseGuildID(t *testing.T) {
	id, ok := parseGuildID("123456789012345678")
	require.True(t, ok)
	assert.Equal(t, snowflake.ID(123456789012345678), id)

	_, ok = parseGuildID("")
	assert.False(t, ok)
	_, ok = parseGuildID("not-a-number")
	assert.False(t, ok)
}

func TestDisplayName(t *testing.T) {
	u := &discordgo.User{Username: "alice", GlobalName: "Alice A"}
	assert.Equal(t, "nick", displayName(&discordgo.Member{Nick: "nick"}, u))
	assert.Equal(t, "Alice A", displayName(&discordgo.Member{}, u))
	assert.Equal(t, "alice", displayName(&discordgo.Member{User: &discordgo.User{Username: "alice"}}, nil))
	assert.Equal(t, "", displayName(nil, nil))
}

type fakeSender struct {
	mu     sync.Mutex
	err    error
	texts  []string
	embeds []*discordgo.MessageEmbed
	chans  []string
}

func (f *fakeSender) ChannelMessageSend(chID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chans = append(f.chans, chID)
	f.texts = append(f.texts, content)
	return &discordgo.Message{}, f.err
}

func (f *fakeSender) ChannelMessageSendEmbed(chID string, e *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chans = append(f.chans, chID)
	f.embeds = append(f.embeds, e)
	return &discordgo.Message{}, f.err
}

func TestNotifierDelivers(t *testing.T) {
	send := &fakeSender{}
	n := NewNotifier(send, func(string) string { return "sys" })

	n.NowPlaying("1", player.Track{Title: "Song", SourceURL: "q"})
	n.PlaybackFailed("1", nil, errors.New("decoder broke"))

	require.Len(t, send.embeds, 1)
	assert.Equal(t, "Now Playing", send.embeds[0].Title)
	assert.Equal(t, []string{"⚠️ Error during playback: `decoder broke`"}, send.texts)
	assert.Equal(t, []string{"sys", "sys"}, send.chans)
}

func TestNotifierSwallowsForbiddenAndMissingChannel(t *testing.T) {
	send := &fakeSender{err: &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusForbidden}}}
	n := NewNotifier(send, func(string) string { return "sys" })
	assert.NotPanics(t, func() { n.NowPlaying("1", player.Track{Title: "Song"}) })
	assert.Len(t, send.embeds, 1)

	quiet := &fakeSender{}
	NewNotifier(quiet, func(string) string { return "" }).NowPlaying("1", player.Track{Title: "Song"})
	assert.Empty(t, quiet.chans)
}

func TestAnnounceChannel(t *testing.T) {
	g := &discordgo.Guild{
		Channels: []*discordgo.Channel{
			{ID: "voice", Name: "music-room", Type: discordgo.ChannelTypeGuildVoice},
			{ID: "text", Name: "music-room", Type: discordgo.ChannelTypeGuildText},
		},
	}
	assert.Equal(t, "text", announceChannel(g, "music-room"))
	assert.Equal(t, "", announceChannel(g, "general"))

	g.SystemChannelID = "sys"
	assert.Equal(t, "sys", announceChannel(g, "music-room"))
	assert.Equal(t, "", announceChannel(nil, "music-room"))
}

func TestAddedMessage(t *testing.T) {
	assert.Equal(t, "➕ Added to queue: **a\\_b**", addedMessage("➕", player.Track{Title: "a_b"}, 1))
	assert.Equal(t, "🎶 Added to queue: **x** (#3)", addedMessage("🎶", player.Track{Title: "x"}, 3))
}
