package repository

import (
	"context"
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	db, err := OpenDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewRepo(db)
}

func TestGetSettingsDefaults(t *testing.T) {
	r := newTestRepo(t)
	s, err := r.GetSettings(context.Background(), snowflake.ID(1))
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(1), s.GuildID)
	assert.Nil(t, s.DefaultVolume)
	assert.Empty(t, s.MusicChannel)
}

func TestSettingsUpsert(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	g := snowflake.ID(123456789012345678)

	vol := 1.25
	require.NoError(t, r.SetDefaultVolume(ctx, g, &vol))
	require.NoError(t, r.SetMusicChannel(ctx, g, "jukebox"))

	s, err := r.GetSettings(ctx, g)
	require.NoError(t, err)
	require.NotNil(t, s.DefaultVolume)
	assert.InDelta(t, 1.25, *s.DefaultVolume, 1e-9)
	assert.Equal(t, "jukebox", s.MusicChannel)

	// updating one column leaves the other alone
	vol = 0.3
	require.NoError(t, r.SetDefaultVolume(ctx, g, &vol))
	s, err = r.GetSettings(ctx, g)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, *s.DefaultVolume, 1e-9)
	assert.Equal(t, "jukebox", s.MusicChannel)

	require.NoError(t, r.SetDefaultVolume(ctx, g, nil))
	require.NoError(t, r.SetMusicChannel(ctx, g, ""))
	s, err = r.GetSettings(ctx, g)
	require.NoError(t, err)
	assert.Nil(t, s.DefaultVolume)
	assert.Empty(t, s.MusicChannel)

	other, err := r.GetSettings(ctx, snowflake.ID(2))
	require.NoError(t, err)
	assert.Nil(t, other.DefaultVolume)
}

func TestOpenDBIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	db, err := OpenDB(dir)
	require.NoError(t, err)
	r := NewRepo(db)
	require.NoError(t, r.SetMusicChannel(context.Background(), snowflake.ID(7), "tunes"))
	require.NoError(t, db.Close())

	db, err = OpenDB(dir)
	require.NoError(t, err)
	defer db.Close()
	s, err := NewRepo(db).GetSettings(context.Background(), snowflake.ID(7))
	require.NoError(t, err)
	assert.Equal(t, "tunes", s.MusicChannel)
}
