package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/sonroyaalmerol/musicroom/internal/metrics"
	"github.com/sonroyaalmerol/musicroom/internal/spotify"
	"github.com/sonroyaalmerol/musicroom/internal/stream"
	"github.com/sonroyaalmerol/musicroom/internal/utils"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Extractor fetches media metadata for a URL or a yt-dlp search target.
type Extractor interface {
	Extract(ctx context.Context, target string) (*stream.Info, error)
}

// SpotifyLookup turns a Spotify link into a search phrase.
type SpotifyLookup interface {
	SearchPhrase(ctx context.Context, link string) (string, error)
}

type ResolverOptions struct {
	Workers int
	Rate    float64
	Burst   int
	// Spotify is optional; Spotify links fail without it.
	Spotify SpotifyLookup
}

// Resolver turns free text or links into playable tracks. Extractions run on
// a bounded pool behind a rate limiter.
type Resolver struct {
	extractor Extractor
	spotify   SpotifyLookup
	sem       *semaphore.Weighted
	limiter   *rate.Limiter
}

func NewResolver(ex Extractor, opts ResolverOptions) *Resolver {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Burst < 1 {
		opts.Burst = 1
	}
	limit := rate.Inf
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
	}
	return &Resolver{
		extractor: ex,
		spotify:   opts.Spotify,
		sem:       semaphore.NewWeighted(int64(opts.Workers)),
		limiter:   rate.NewLimiter(limit, opts.Burst),
	}
}

// Resolve returns the first playable result for query. Every failure is a
// *ResolutionError.
func (r *Resolver) Resolve(ctx context.Context, query, requestedBy string) (Track, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return Track{}, r.fail(query, ErrEmptyQuery)
	}

	target := q
	switch {
	case spotify.IsLink(q):
		if r.spotify == nil {
			return Track{}, r.fail(q, ErrSpotifyDisabled)
		}
		phrase, err := r.spotify.SearchPhrase(ctx, q)
		if err != nil {
			return Track{}, r.fail(q, fmt.Errorf("spotify: %w", err))
		}
		target = stream.SearchPrefix + phrase
	case !utils.IsURL(q):
		target = stream.SearchPrefix + q
	}

	info, err := r.extract(ctx, target)
	if err != nil {
		return Track{}, r.fail(q, err)
	}

	streamURL := stream.AudioURL(info)
	if streamURL == "" {
		return Track{}, r.fail(q, ErrNoPlayableResult)
	}

	t := Track{
		Title:       info.Title,
		SourceURL:   info.WebpageURL,
		StreamURL:   streamURL,
		Thumbnail:   info.Thumbnail,
		RequestedBy: requestedBy,
		IsLive:      info.IsLive,
	}
	if t.Title == "" {
		t.Title = "Unknown"
	}
	if t.SourceURL == "" {
		t.SourceURL = q
	}
	if !info.IsLive && info.Duration > 0 {
		t.Duration = int(math.Round(info.Duration))
	}

	metrics.Resolutions.WithLabelValues("ok").Inc()
	slog.Debug("resolved query", "query", q, "title", t.Title)
	return t, nil
}

func (r *Resolver) extract(ctx context.Context, target string) (*stream.Info, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.sem.Release(1)

	start := time.Now()
	info, err := r.extractor.Extract(ctx, target)
	metrics.ResolveDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, ErrNoPlayableResult
	}
	return info, nil
}

func (r *Resolver) fail(query string, err error) error {
	result := "error"
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		result = "canceled"
	}
	metrics.Resolutions.WithLabelValues(result).Inc()
	return &ResolutionError{Query: query, Err: err}
}
