package handlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sonroyaalmerol/musicroom/internal/config"
	"github.com/sonroyaalmerol/musicroom/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSettings struct {
	set   repository.Settings
	err   error
	reads int
}

func (m *memSettings) GetSettings(_ context.Context, guild snowflake.ID) (*repository.Settings, error) {
	m.reads++
	if m.err != nil {
		return nil, m.err
	}
	s := m.set
	s.GuildID = guild
	return &s, nil
}

func (m *memSettings) SetDefaultVolume(_ context.Context, _ snowflake.ID, vol *float64) error {
	m.set.DefaultVolume = vol
	return m.err
}

func (m *memSettings) SetMusicChannel(_ context.Context, _ snowflake.ID, name string) error {
	m.set.MusicChannel = name
	return m.err
}

func testConfig() *config.Config {
	return &config.Config{
		MusicChannelName: "music-room",
		IdleSeconds:      180,
		DefaultVolume:    0.6,
		MaxVolume:        2,
	}
}

func TestCommandDefinitions(t *testing.T) {
	byName := map[string]*discordgo.ApplicationCommand{}
	for _, c := range commandDefinitions() {
		byName[c.Name] = c
	}
	for _, name := range []string{"play", "skip", "pause", "resume", "stop", "queue", "nowplaying", "volume", "loop", "leave", "config"} {
		assert.Contains(t, byName, name)
	}

	play := byName["play"]
	require.Len(t, play.Options, 1)
	assert.True(t, play.Options[0].Required)
	assert.True(t, play.Options[0].Autocomplete)

	vol := byName["volume"].Options[0]
	require.NotNil(t, vol.MinValue)
	assert.Equal(t, 0.0, *vol.MinValue)
	assert.Equal(t, 200.0, vol.MaxValue)
	assert.Equal(t, discordgo.ApplicationCommandOptionInteger, vol.Type)

	var modes []string
	for _, c := range byName["loop"].Options[0].Choices {
		modes = append(modes, c.Value.(string))
	}
	assert.Equal(t, []string{"off", "one", "all"}, modes)

	cfg := byName["config"]
	require.NotNil(t, cfg.DefaultMemberPermissions)
	assert.Equal(t, int64(discordgo.PermissionManageGuild), *cfg.DefaultMemberPermissions)
}

func TestMusicChannelOverride(t *testing.T) {
	store := &memSettings{}
	h := NewCommandHandler(testConfig(), nil, nil, store, nil)
	ctx := context.Background()

	assert.Equal(t, "music-room", h.musicChannel(ctx, testGuild))
	assert.Equal(t, "music-room", h.musicChannel(ctx, testGuild))
	assert.Equal(t, 1, store.reads, "override is cached after the first lookup")

	require.NoError(t, h.setMusicChannel(ctx, testGuild, "requests"))
	assert.Equal(t, "requests", h.musicChannel(ctx, testGuild))
	assert.Equal(t, "requests", store.set.MusicChannel)

	require.NoError(t, h.setMusicChannel(ctx, testGuild, ""))
	assert.Equal(t, "music-room", h.musicChannel(ctx, testGuild))
	assert.Equal(t, 1, store.reads)
}

func TestMusicChannelStoreFailureIsRetried(t *testing.T) {
	store := &memSettings{err: errors.New("db locked")}
	h := NewCommandHandler(testConfig(), nil, nil, store, nil)
	ctx := context.Background()

	assert.Equal(t, "music-room", h.musicChannel(ctx, testGuild))

	store.err = nil
	store.set.MusicChannel = "requests"
	assert.Equal(t, "requests", h.musicChannel(ctx, testGuild))
	assert.Equal(t, 2, store.reads)
}

func TestGuildConfig(t *testing.T) {
	vol := 0.8
	store := &memSettings{set: repository.Settings{DefaultVolume: &vol}}
	h := NewCommandHandler(testConfig(), nil, nil, store, nil)

	gc, err := h.guildConfig(context.Background(), testGuild)
	require.NoError(t, err)
	assert.Equal(t, "music-room", gc.MusicChannel)
	assert.False(t, gc.ChannelOverride)
	assert.Equal(t, 0.8, gc.DefaultVolume)
	assert.True(t, gc.VolumeOverride)
	assert.Equal(t, 3*time.Minute, gc.IdleTimeout)
	assert.False(t, gc.SpotifyAvailable)

	store.err = errors.New("db locked")
	_, err = h.guildConfig(context.Background(), testGuild)
	assert.Error(t, err)
}

func TestUserIDOf(t *testing.T) {
	assert.Equal(t, "", userIDOf(nil))
	assert.Equal(t, "m", userIDOf(&discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Member: &discordgo.Member{User: &discordgo.User{ID: "m"}},
	}}))
	assert.Equal(t, "u", userIDOf(&discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		User: &discordgo.User{ID: "u"},
	}}))
}
