package autocomplete

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sonroyaalmerol/musicroom/internal/spotify"
	"github.com/sonroyaalmerol/musicroom/internal/utils"
)

const (
	DefaultSuggestURL = "https://suggestqueries.google.com/complete/search"
	// Discord rejects choice names and values longer than this.
	maxChoiceLen = 100
	maxChoices   = 25
)

// TrackSearcher is the Spotify search used for extra suggestions.
type TrackSearcher interface {
	SearchTracks(ctx context.Context, query string, limit int) ([]spotify.Track, error)
}

type Suggester struct {
	SuggestURL string
	HTTP       *http.Client
	Spotify    TrackSearcher
}

func NewSuggester(sp TrackSearcher) *Suggester {
	return &Suggester{
		SuggestURL: DefaultSuggestURL,
		HTTP:       &http.Client{Timeout: 2 * time.Second},
		Spotify:    sp,
	}
}

func (s *Suggester) YouTube(ctx context.Context, query string) ([]string, error) {
	u, err := url.Parse(s.SuggestURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("client", "firefox")
	q.Set("ds", "yt")
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", utils.RandomUserAgent())

	resp, err := s.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("suggest: status %d", resp.StatusCode)
	}

	// ["query", ["s1", "s2", ...], ...]
	var parsed []any
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	if len(parsed) < 2 {
		return nil, nil
	}
	arr, ok := parsed[1].([]any)
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// Choices merges YouTube and Spotify suggestions for the play autocomplete.
// Spotify takes up to half of the slots when it is configured.
func (s *Suggester) Choices(ctx context.Context, query string, limit int) []*discordgo.ApplicationCommandOptionChoice {
	query = strings.TrimSpace(query)
	if query == "" {
		return []*discordgo.ApplicationCommandOptionChoice{}
	}
	if limit <= 0 || limit > maxChoices {
		limit = maxChoices
	}

	yt, err := s.YouTube(ctx, query)
	if err != nil {
		slog.Debug("youtube suggestions failed", "err", err)
	}

	var sp []spotify.Track
	if s.Spotify != nil {
		sp, err = s.Spotify.SearchTracks(ctx, query, limit/2)
		if err != nil {
			slog.Debug("spotify suggestions failed", "err", err)
			sp = nil
		}
	}

	ytSlots := min(len(yt), limit-min(len(sp), limit/2))
	out := make([]*discordgo.ApplicationCommandOptionChoice, 0, limit)
	for _, v := range yt[:ytSlots] {
		out = append(out, choice("YouTube: "+v, v))
	}
	for _, t := range sp {
		if len(out) >= limit {
			break
		}
		name := "Spotify: " + t.Name
		if t.Artist != "" {
			name += " - " + t.Artist
		}
		out = append(out, choice(name, t.Phrase()))
	}
	return out
}

func choice(name, value string) *discordgo.ApplicationCommandOptionChoice {
	return &discordgo.ApplicationCommandOptionChoice{
		Name:  utils.Truncate(name, maxChoiceLen),
		Value: utils.Truncate(value, maxChoiceLen),
	}
}
