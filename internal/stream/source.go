package stream

import (
	"context"
	"errors"
	"time"
)

const (
	SampleRate = 48000
	Channels   = 2
	// FrameSamples is 20ms of audio per channel at 48kHz.
	FrameSamples = 960
	// FrameBytes is one interleaved s16le stereo frame.
	FrameBytes    = FrameSamples * Channels * 2
	FrameDuration = 20 * time.Millisecond
)

var (
	ErrNotConnected = errors.New("voice not connected")
	ErrSinkBusy     = errors.New("voice sink already playing")
)

// Source yields fixed-size PCM frames (FrameBytes of s16le 48kHz stereo).
// ReadFrame returns io.EOF once the track is exhausted.
type Source interface {
	ReadFrame() ([]byte, error)
	Close() error
}

// Playback is the handle for one track attached to a Sink.
type Playback interface {
	// Done is closed when the track finished, failed or was stopped.
	Done() <-chan struct{}
	// Err is the failure that ended playback, nil for normal completion or Stop.
	Err() error
	Stop()
	Pause() bool
	Resume() bool
	Paused() bool
	Position() time.Duration
}

// Sink is a guild's voice connection.
type Sink interface {
	ChannelID() string
	Connected() bool
	Play(ctx context.Context, src Source) (Playback, error)
	Disconnect(ctx context.Context) error
}

type Dialer interface {
	Join(ctx context.Context, guildID, channelID string) (Sink, error)
}
