package player

import (
	"fmt"
	"strings"
)

// Track is one resolved request. It is immutable once created.
type Track struct {
	Title string
	// SourceURL is the canonical page for the track.
	SourceURL string
	// StreamURL is a short-lived direct media URL; it is only ever handed to
	// the decoder.
	StreamURL   string
	Thumbnail   string
	RequestedBy string
	Duration    int // seconds, 0 when unknown
	IsLive      bool
}

type LoopMode int

const (
	LoopOff LoopMode = iota
	LoopOne
	LoopAll
)

func (m LoopMode) String() string {
	switch m {
	case LoopOne:
		return "one"
	case LoopAll:
		return "all"
	default:
		return "off"
	}
}

func ParseLoopMode(s string) (LoopMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off":
		return LoopOff, nil
	case "one":
		return LoopOne, nil
	case "all":
		return LoopAll, nil
	}
	return LoopOff, fmt.Errorf("unknown loop mode %q", s)
}

type Status int

const (
	StatusIdle Status = iota
	StatusWaiting
	StatusPlaying
	StatusAwaitingCompletion
)

func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusPlaying:
		return "playing"
	case StatusAwaitingCompletion:
		return "awaiting-completion"
	default:
		return "idle"
	}
}
