package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	ytdlp "github.com/lrstanley/go-ytdlp"
)

// SearchPrefix makes yt-dlp return the first search hit for free text.
const SearchPrefix = "ytsearch1:"

var ErrNoEntries = errors.New("yt-dlp returned no entries")

// Info is the subset of yt-dlp metadata a track needs.
type Info struct {
	ID               string
	Title            string
	Uploader         string
	Duration         float64
	IsLive           bool
	WebpageURL       string
	URL              string
	Thumbnail        string
	Formats          []string
	RequestedFormats []string
}

// YTDLP extracts media metadata by shelling out to yt-dlp.
type YTDLP struct {
	installOnce sync.Once
}

func NewYTDLP() *YTDLP { return &YTDLP{} }

func (y *YTDLP) install(ctx context.Context) {
	y.installOnce.Do(func() {
		if _, err := ytdlp.Install(ctx, nil); err != nil {
			slog.Warn("yt-dlp install failed, relying on PATH", "err", err)
		}
	})
}

// Extract runs yt-dlp -J for target and returns its first entry when the
// result is a collection (search results, playlists).
func (y *YTDLP) Extract(ctx context.Context, target string) (*Info, error) {
	y.install(ctx)

	cmd := ytdlp.New().
		Format("bestaudio/best").
		NoPlaylist().
		NoCheckCertificates().
		DumpJSON()

	res, err := cmd.Run(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp run: %w", err)
	}

	infos, err := res.GetExtractedInfo()
	if err != nil {
		return nil, fmt.Errorf("parse yt-dlp json: %w", err)
	}
	if len(infos) == 0 || infos[0] == nil {
		return nil, ErrNoEntries
	}

	ext := infos[0]
	if len(ext.Entries) > 0 {
		for _, e := range ext.Entries {
			if e != nil {
				return fromExtracted(e), nil
			}
		}
		return nil, ErrNoEntries
	}
	return fromExtracted(ext), nil
}

func fromExtracted(e *ytdlp.ExtractedInfo) *Info {
	out := &Info{
		ID:         e.ID,
		Title:      deref(e.Title),
		Uploader:   deref(e.Uploader),
		WebpageURL: deref(e.WebpageURL),
		URL:        deref(e.URL),
	}
	if e.Duration != nil {
		out.Duration = *e.Duration
	}
	if e.IsLive != nil {
		out.IsLive = *e.IsLive
	}
	// thumbnails are sorted worst to best
	for i := len(e.Thumbnails) - 1; i >= 0; i-- {
		if t := e.Thumbnails[i]; t != nil && t.URL != "" {
			out.Thumbnail = t.URL
			break
		}
	}
	for _, f := range e.RequestedFormats {
		if f != nil {
			out.RequestedFormats = append(out.RequestedFormats, f.URL)
		}
	}
	for _, f := range e.Formats {
		if f != nil {
			out.Formats = append(out.Formats, f.URL)
		}
	}
	return out
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// AudioURL returns the best directly playable URL.
// Preferred order: requested_formats, top-level url, then formats.
func AudioURL(info *Info) string {
	for _, u := range info.RequestedFormats {
		if strings.HasPrefix(u, "http") {
			return u
		}
	}
	if strings.HasPrefix(info.URL, "http") {
		return info.URL
	}
	for _, u := range info.Formats {
		if strings.HasPrefix(u, "http") {
			return u
		}
	}
	return ""
}
