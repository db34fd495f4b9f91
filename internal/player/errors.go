package player

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyQuery       = errors.New("empty query")
	ErrNoPlayableResult = errors.New("no playable result")
	ErrSpotifyDisabled  = errors.New("spotify is not enabled")
	ErrNoVoiceChannel   = errors.New("user is not in a voice channel")
	ErrNothingPlaying   = errors.New("nothing is playing")
	ErrNotPaused        = errors.New("playback is not paused")
	ErrNotConnected     = errors.New("not connected to voice")
)

// ResolutionError means a query could not be turned into a Track.
type ResolutionError struct {
	Query string
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %q: %v", e.Query, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// VoiceConnectError means the bot could not join or find a voice channel.
type VoiceConnectError struct {
	ChannelID string
	Err       error
}

func (e *VoiceConnectError) Error() string {
	if e.ChannelID == "" {
		return fmt.Sprintf("voice connect: %v", e.Err)
	}
	return fmt.Sprintf("voice connect %s: %v", e.ChannelID, e.Err)
}

func (e *VoiceConnectError) Unwrap() error { return e.Err }

// PlaybackError is a failure while building or playing one track.
type PlaybackError struct {
	Track Track
	Err   error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("play %q: %v", e.Track.Title, e.Err)
}

func (e *PlaybackError) Unwrap() error { return e.Err }
