package ui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sonroyaalmerol/musicroom/internal/player"
	"github.com/sonroyaalmerol/musicroom/internal/utils"
)

const (
	colorPlaying = 0x006400
	colorPaused  = 0x8B0000
	colorEmpty   = 0x992222
	colorInfo    = 0x2F3136
	maxDesc      = 4096
)

var ErrPageOutOfRange = errors.New("the queue isn't that big")

// Snapshot is a consistent-enough view of a player for rendering.
type Snapshot struct {
	Current  *player.Track
	Queue    []player.Track
	Position time.Duration
	Paused   bool
	Loop     player.LoopMode
	Volume   float64
}

func SnapshotOf(p *player.Player) Snapshot {
	return Snapshot{
		Current:  p.Current(),
		Queue:    p.Queue(),
		Position: p.Position(),
		Paused:   p.Paused(),
		Loop:     p.LoopMode(),
		Volume:   p.Volume(),
	}
}

func songLink(t player.Track) string {
	title := utils.EscapeMd(t.Title)
	if t.SourceURL == "" || !utils.IsURL(t.SourceURL) {
		return title
	}
	return fmt.Sprintf("[%s](%s)", title, t.SourceURL)
}

func duration(t player.Track) string {
	if t.IsLive {
		return "live"
	}
	if t.Duration <= 0 {
		return "?"
	}
	return utils.PrettyTime(t.Duration)
}

func loopIcon(m player.LoopMode) string {
	switch m {
	case player.LoopOne:
		return "🔂"
	case player.LoopAll:
		return "🔁"
	}
	return ""
}

func requestedBy(t player.Track) string {
	if t.RequestedBy == "" {
		return ""
	}
	return "\nRequested by: " + utils.EscapeMd(t.RequestedBy)
}

func progressLine(s Snapshot) string {
	cur := s.Current
	pos := int(s.Position / time.Second)
	button := "▶️"
	if s.Paused {
		button = "⏸️"
	}
	if cur.IsLive || cur.Duration <= 0 {
		return fmt.Sprintf("%s %s `[ %s ]` %s", button, ProgressBar(10, 0), utils.PrettyTime(pos), loopIcon(s.Loop))
	}
	progress := float64(pos) / float64(cur.Duration)
	return fmt.Sprintf("%s %s `[ %s/%s ]` %s",
		button, ProgressBar(10, progress),
		utils.PrettyTime(pos), utils.PrettyTime(cur.Duration),
		loopIcon(s.Loop),
	)
}

// NowPlaying is the announcement posted when a track starts.
func NowPlaying(t player.Track) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       "Now Playing",
		Description: fmt.Sprintf("**%s** `[ %s ]`%s", songLink(t), duration(t), requestedBy(t)),
		Color:       colorPlaying,
	}
	if t.Thumbnail != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: t.Thumbnail}
	}
	return embed
}

func PlayingEmbed(s Snapshot) *discordgo.MessageEmbed {
	cur := s.Current
	if cur == nil {
		return &discordgo.MessageEmbed{
			Title:       "Nothing Playing",
			Description: "No playing song found",
			Color:       colorEmpty,
		}
	}

	color := colorPlaying
	title := "Now Playing"
	if s.Paused {
		color = colorPaused
		title = "Paused"
	}

	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: fmt.Sprintf("**%s**%s\n\n%s", songLink(*cur), requestedBy(*cur), progressLine(s)),
		Color:       color,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Volume %d%% • Loop %s", volumePercent(s.Volume), s.Loop),
		},
	}
	if cur.Thumbnail != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: cur.Thumbnail}
	}
	return embed
}

// QueueEmbed renders page (1-based) of the pending tracks.
func QueueEmbed(s Snapshot, page, pageSize int) (*discordgo.MessageEmbed, error) {
	if s.Current == nil && len(s.Queue) == 0 {
		return &discordgo.MessageEmbed{
			Title:       "Queue",
			Description: "The queue is empty.",
			Color:       colorEmpty,
		}, nil
	}
	if pageSize <= 0 {
		pageSize = 10
	}
	maxPage := max(1, (len(s.Queue)+pageSize-1)/pageSize)
	if page < 1 {
		page = 1
	}
	if page > maxPage {
		return nil, ErrPageOutOfRange
	}

	var desc strings.Builder
	if s.Current != nil {
		fmt.Fprintf(&desc, "**%s**%s\n%s\n\n", songLink(*s.Current), requestedBy(*s.Current), progressLine(s))
	}

	begin := (page - 1) * pageSize
	end := min(begin+pageSize, len(s.Queue))
	if begin < end {
		desc.WriteString("**Up next:**\n")
		for i, t := range s.Queue[begin:end] {
			line := fmt.Sprintf("`%d.` %s `[ %s ]`\n", begin+i+1, songLink(t), duration(t))
			if desc.Len()+len(line) > maxDesc-32 {
				fmt.Fprintf(&desc, "…and %d more", end-begin-i)
				break
			}
			desc.WriteString(line)
		}
	}

	total := 0
	for _, t := range s.Queue {
		total += t.Duration
	}

	title := "Queue"
	if icon := loopIcon(s.Loop); icon != "" {
		title += " " + icon
	}

	return &discordgo.MessageEmbed{
		Title:       title,
		Description: desc.String(),
		Color:       colorPlaying,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "In queue", Value: queueInfo(len(s.Queue)), Inline: true},
			{Name: "Total length", Value: totalLenStr(total), Inline: true},
			{Name: "Page", Value: fmt.Sprintf("%d out of %d", page, maxPage), Inline: true},
		},
	}, nil
}

// GuildConfig is what /config get shows.
type GuildConfig struct {
	MusicChannel     string
	ChannelOverride  bool
	DefaultVolume    float64
	VolumeOverride   bool
	MaxVolume        float64
	IdleTimeout      time.Duration
	SpotifyAvailable bool
}

func ConfigEmbed(c GuildConfig) *discordgo.MessageEmbed {
	source := func(overridden bool) string {
		if overridden {
			return " (server)"
		}
		return " (default)"
	}
	spotify := "disabled"
	if c.SpotifyAvailable {
		spotify = "enabled"
	}
	return &discordgo.MessageEmbed{
		Title: "Settings",
		Color: colorInfo,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Music channel", Value: "#" + utils.EscapeMd(c.MusicChannel) + source(c.ChannelOverride), Inline: true},
			{Name: "Default volume", Value: fmt.Sprintf("%d%%%s", volumePercent(c.DefaultVolume), source(c.VolumeOverride)), Inline: true},
			{Name: "Max volume", Value: fmt.Sprintf("%d%%", volumePercent(c.MaxVolume)), Inline: true},
			{Name: "Idle disconnect", Value: c.IdleTimeout.String(), Inline: true},
			{Name: "Spotify links", Value: spotify, Inline: true},
		},
	}
}

func volumePercent(v float64) int {
	return int(v*100 + 0.5)
}

func queueInfo(n int) string {
	switch n {
	case 0:
		return "-"
	case 1:
		return "1 song"
	}
	return fmt.Sprintf("%d songs", n)
}

func totalLenStr(sec int) string {
	if sec <= 0 {
		return "-"
	}
	return utils.PrettyTime(sec)
}
