package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
)

var (
	ErrInvalidLink = errors.New("invalid spotify link")
	ErrNoTracks    = errors.New("spotify returned no tracks")
)

// Track is the part of a Spotify track needed to search for it elsewhere.
type Track struct {
	Name   string
	Artist string
}

// Phrase is the free-text search used to find the track on YouTube.
func (t Track) Phrase() string {
	return strings.TrimSpace(t.Name + " " + t.Artist)
}

type Client struct {
	raw *spotify.Client
}

func NewClientCredentials(ctx context.Context, clientID, clientSecret string) *Client {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	httpClient := cfg.Client(ctx)
	return &Client{raw: spotify.New(httpClient, spotify.WithRetry(true))}
}

// IsLink reports whether raw looks like a Spotify URL or URI.
func IsLink(raw string) bool {
	raw = strings.TrimSpace(raw)
	return strings.HasPrefix(raw, "spotify:") ||
		strings.Contains(raw, "open.spotify.com/")
}

func ParseID(raw string) (typ string, id spotify.ID, err error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "spotify:") {
		parts := strings.Split(raw, ":")
		if len(parts) == 3 && parts[2] != "" {
			return parts[1], spotify.ID(parts[2]), nil
		}
		return "", "", fmt.Errorf("%w: bad URI", ErrInvalidLink)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}
	if u.Host != "open.spotify.com" && u.Host != "www.open.spotify.com" {
		return "", "", fmt.Errorf("%w: not a spotify URL", ErrInvalidLink)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	// localized links look like /intl-de/track/<id>
	if len(parts) > 0 && strings.HasPrefix(parts[0], "intl-") {
		parts = parts[1:]
	}
	if len(parts) < 2 || parts[1] == "" {
		return "", "", fmt.Errorf("%w: bad path", ErrInvalidLink)
	}
	switch parts[0] {
	case "album", "playlist", "track", "artist":
		return parts[0], spotify.ID(parts[1]), nil
	}
	return "", "", fmt.Errorf("%w: unsupported type %q", ErrInvalidLink, parts[0])
}

// FirstTrack returns the track a link points at. Collections yield their
// first track only.
func (c *Client) FirstTrack(ctx context.Context, link string) (Track, error) {
	typ, id, err := ParseID(link)
	if err != nil {
		return Track{}, err
	}

	switch typ {
	case "track":
		t, err := c.raw.GetTrack(ctx, id)
		if err != nil {
			return Track{}, fmt.Errorf("get track: %w", err)
		}
		return Track{Name: t.Name, Artist: firstArtist(t.Artists)}, nil

	case "album":
		page, err := c.raw.GetAlbumTracks(ctx, id, spotify.Limit(1))
		if err != nil {
			return Track{}, fmt.Errorf("get album tracks: %w", err)
		}
		if len(page.Tracks) == 0 {
			return Track{}, ErrNoTracks
		}
		t := page.Tracks[0]
		return Track{Name: t.Name, Artist: firstArtist(t.Artists)}, nil

	case "playlist":
		page, err := c.raw.GetPlaylistItems(ctx, id, spotify.Limit(5))
		if err != nil {
			return Track{}, fmt.Errorf("get playlist items: %w", err)
		}
		for _, it := range page.Items {
			if t := it.Track.Track; t != nil {
				return Track{Name: t.Name, Artist: firstArtist(t.Artists)}, nil
			}
		}
		return Track{}, ErrNoTracks

	case "artist":
		top, err := c.raw.GetArtistsTopTracks(ctx, id, "US")
		if err != nil {
			return Track{}, fmt.Errorf("get artist top tracks: %w", err)
		}
		if len(top) == 0 {
			return Track{}, ErrNoTracks
		}
		return Track{Name: top[0].Name, Artist: firstArtist(top[0].Artists)}, nil
	}
	return Track{}, fmt.Errorf("%w: unsupported type %q", ErrInvalidLink, typ)
}

// SearchPhrase resolves a link to a "<name> <artist>" search phrase.
func (c *Client) SearchPhrase(ctx context.Context, link string) (string, error) {
	t, err := c.FirstTrack(ctx, link)
	if err != nil {
		return "", err
	}
	return t.Phrase(), nil
}

// SearchTracks returns up to limit tracks matching query.
func (c *Client) SearchTracks(ctx context.Context, query string, limit int) ([]Track, error) {
	if limit <= 0 {
		limit = 10
	}
	res, err := c.raw.Search(ctx, query, spotify.SearchTypeTrack, spotify.Limit(limit))
	if err != nil {
		return nil, err
	}
	if res.Tracks == nil {
		return nil, nil
	}
	out := make([]Track, 0, min(limit, len(res.Tracks.Tracks)))
	for _, t := range res.Tracks.Tracks {
		if len(out) >= limit {
			break
		}
		out = append(out, Track{Name: t.Name, Artist: firstArtist(t.Artists)})
	}
	return out, nil
}

func firstArtist(artists []spotify.SimpleArtist) string {
	if len(artists) == 0 {
		return ""
	}
	return artists[0].Name
}
