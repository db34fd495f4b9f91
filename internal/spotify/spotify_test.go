package spotify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zmb3/spotify/v2"
)

func TestParseID(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		typ     string
		id      spotify.ID
		wantErr bool
	}{
		{name: "track url", raw: "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC?si=abc", typ: "track", id: "4uLU6hMCjMI75M1A2tKUQC"},
		{name: "album url", raw: "https://open.spotify.com/album/1DFixLWuPkv3KT3TnV35m3", typ: "album", id: "1DFixLWuPkv3KT3TnV35m3"},
		{name: "localized", raw: "https://open.spotify.com/intl-de/track/abc123", typ: "track", id: "abc123"},
		{name: "uri", raw: "spotify:playlist:37i9dQZF1DXcBWIGoYBM5M", typ: "playlist", id: "37i9dQZF1DXcBWIGoYBM5M"},
		{name: "bad uri", raw: "spotify:track", wantErr: true},
		{name: "other host", raw: "https://www.youtube.com/watch?v=x", wantErr: true},
		{name: "unsupported type", raw: "https://open.spotify.com/show/abc", wantErr: true},
		{name: "missing id", raw: "https://open.spotify.com/track/", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typ, id, err := ParseID(tt.raw)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidLink)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.typ, typ)
			assert.Equal(t, tt.id, id)
		})
	}
}

func TestIsLink(t *testing.T) {
	assert.True(t, IsLink("https://open.spotify.com/track/abc"))
	assert.True(t, IsLink(" spotify:track:abc"))
	assert.False(t, IsLink("never gonna give you up"))
	assert.False(t, IsLink("https://youtu.be/dQw4w9WgXcQ"))
}

func TestTrackPhrase(t *testing.T) {
	assert.Equal(t, "Blue Eiffel 65", Track{Name: "Blue", Artist: "Eiffel 65"}.Phrase())
	assert.Equal(t, "Blue", Track{Name: "Blue"}.Phrase())
}
