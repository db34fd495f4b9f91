package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ActivePlayers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "musicroom_active_players",
			Help: "Guild players with a running playback loop",
		},
	)
	TracksStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "musicroom_tracks_started_total",
			Help: "Tracks handed to a voice sink",
		},
	)
	PlaybackErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "musicroom_playback_errors_total",
			Help: "Per-track failures isolated by the playback loop",
		},
	)
	IdleDisconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "musicroom_idle_disconnects_total",
			Help: "Voice disconnects caused by an empty queue timing out",
		},
	)
	Resolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "musicroom_resolutions_total",
			Help: "Query resolutions by result",
		},
		[]string{"result"},
	)
	ResolveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "musicroom_resolve_duration_seconds",
			Help:    "Time spent extracting a query with yt-dlp",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		ActivePlayers,
		TracksStarted,
		PlaybackErrors,
		IdleDisconnects,
		Resolutions,
		ResolveDuration,
	)
}
