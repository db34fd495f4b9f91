package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sonroyaalmerol/musicroom/internal/metrics"
	"github.com/sonroyaalmerol/musicroom/internal/stream"
)

const disconnectTimeout = 5 * time.Second

var (
	errStopRequested = errors.New("stop requested")
	errIdleTimeout   = errors.New("idle timeout")
)

// Notifier receives best-effort announcements from the playback loop.
type Notifier interface {
	NowPlaying(guildID string, t Track)
	PlaybackFailed(guildID string, t *Track, err error)
}

// SourceOpener builds the raw PCM source for a stream URL.
type SourceOpener func(ctx context.Context, streamURL string) (stream.Source, error)

type Options struct {
	IdleTimeout   time.Duration
	DefaultVolume float64
	MaxVolume     float64
	Dialer        stream.Dialer
	OpenSource    SourceOpener
	Notifier      Notifier
}

// Player is one guild's queue and playback loop.
type Player struct {
	guildID     snowflake.ID
	ctx         context.Context
	idleTimeout time.Duration
	maxVolume   float64
	dialer      stream.Dialer
	open        SourceOpener
	notify      Notifier
	log         *slog.Logger

	// serializes voice dials
	connMu sync.Mutex

	mu            sync.Mutex
	queue         []Track
	current       *Track
	volume        float64
	loopMode      LoopMode
	status        Status
	running       bool
	stopRequested bool
	// bumped by Stop so tracks halted by it are never requeued
	stopGen   uint64
	sink      stream.Sink
	channelID string
	playback  stream.Playback
	loopDone  chan struct{}

	wake chan struct{}
}

func NewPlayer(ctx context.Context, guildID snowflake.ID, opts Options) *Player {
	if opts.OpenSource == nil {
		opts.OpenSource = stream.OpenPCM
	}
	if opts.MaxVolume <= 0 {
		opts.MaxVolume = 2.0
	}
	p := &Player{
		guildID:     guildID,
		ctx:         ctx,
		idleTimeout: opts.IdleTimeout,
		maxVolume:   opts.MaxVolume,
		dialer:      opts.Dialer,
		open:        opts.OpenSource,
		notify:      opts.Notifier,
		log:         slog.With("guildID", guildID.String()),
		status:      StatusIdle,
		wake:        make(chan struct{}, 1),
	}
	p.volume = p.clamp(opts.DefaultVolume)
	return p
}

func (p *Player) GuildID() snowflake.ID { return p.guildID }

// Connect joins channelID, or reuses the current connection when there is
// one. A fresh connection starts the loop so an unused connection still
// times out.
func (p *Player) Connect(ctx context.Context, channelID string) (stream.Sink, error) {
	sink, fresh, err := p.dial(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if fresh {
		p.Start()
	}
	return sink, nil
}

// dial reuses a connected sink or joins channelID without starting the loop.
func (p *Player) dial(ctx context.Context, channelID string) (sink stream.Sink, fresh bool, err error) {
	p.connMu.Lock()
	defer p.connMu.Unlock()

	p.mu.Lock()
	if p.sink != nil && p.sink.Connected() {
		cur := p.sink
		p.mu.Unlock()
		return cur, false, nil
	}
	stale := p.sink
	p.sink = nil
	p.mu.Unlock()

	if stale != nil {
		dctx, cancel := context.WithTimeout(ctx, disconnectTimeout)
		_ = stale.Disconnect(dctx)
		cancel()
	}

	sink, err = p.dialer.Join(ctx, p.guildID.String(), channelID)
	if err != nil {
		return nil, false, &VoiceConnectError{ChannelID: channelID, Err: err}
	}

	p.mu.Lock()
	p.sink = sink
	p.channelID = channelID
	p.mu.Unlock()

	p.log.Info("joined voice", "channelID", channelID)
	return sink, true, nil
}

// Enqueue appends t to the queue and returns its 1-based position.
func (p *Player) Enqueue(t Track) int {
	p.mu.Lock()
	p.queue = append(p.queue, t)
	n := len(p.queue)
	p.mu.Unlock()
	p.signal()
	return n
}

// Start launches the playback loop if it is not running. A pending Stop on a
// loop that has not exited yet is cancelled.
func (p *Player) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		if p.stopRequested {
			p.stopRequested = false
			p.log.Debug("pending stop superseded by new request")
		}
		return
	}

	p.running = true
	p.stopRequested = false
	p.status = StatusWaiting
	done := make(chan struct{})
	p.loopDone = done
	metrics.ActivePlayers.Inc()
	go p.loop(done)
}

// Stop drains the queue, halts the current track and asks the loop to exit.
func (p *Player) Stop() {
	p.mu.Lock()
	p.queue = nil
	p.stopGen++
	if p.running {
		p.stopRequested = true
	}
	pb := p.playback
	p.mu.Unlock()

	if pb != nil {
		pb.Stop()
	}
	p.signal()
}

// Leave stops playback and disconnects right away.
func (p *Player) Leave(ctx context.Context) error {
	p.Stop()

	p.mu.Lock()
	sink := p.sink
	p.sink = nil
	p.channelID = ""
	p.mu.Unlock()

	if sink == nil {
		return ErrNotConnected
	}
	dctx, cancel := context.WithTimeout(ctx, disconnectTimeout)
	defer cancel()
	return sink.Disconnect(dctx)
}

// Close leaves voice and waits for the loop to finish.
func (p *Player) Close(ctx context.Context) error {
	if err := p.Leave(ctx); err != nil && !errors.Is(err, ErrNotConnected) {
		p.log.Warn("disconnect on close failed", "err", err)
	}

	p.mu.Lock()
	done := p.loopDone
	running := p.running
	p.mu.Unlock()
	if !running || done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Player) Skip() error {
	pb := p.activePlayback()
	if pb == nil || pb.Paused() {
		return ErrNothingPlaying
	}
	pb.Stop()
	return nil
}

func (p *Player) Pause() error {
	pb := p.activePlayback()
	if pb == nil || !pb.Pause() {
		return ErrNothingPlaying
	}
	return nil
}

func (p *Player) Resume() error {
	pb := p.activePlayback()
	if pb == nil || !pb.Resume() {
		return ErrNotPaused
	}
	return nil
}

// SetVolume clamps v to [0, max] and returns the applied gain. It applies to
// tracks started afterwards.
func (p *Player) SetVolume(v float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = p.clamp(v)
	return p.volume
}

func (p *Player) clamp(v float64) float64 {
	return min(max(v, 0), p.maxVolume)
}

func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

func (p *Player) MaxVolume() float64 { return p.maxVolume }

func (p *Player) SetLoopMode(m LoopMode) {
	p.mu.Lock()
	p.loopMode = m
	p.mu.Unlock()
}

func (p *Player) LoopMode() LoopMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loopMode
}

// Queue returns a snapshot of the pending tracks.
func (p *Player) Queue() []Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Track, len(p.queue))
	copy(out, p.queue)
	return out
}

func (p *Player) Current() *Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	t := *p.current
	return &t
}

func (p *Player) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Player) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Player) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sink != nil && p.sink.Connected()
}

func (p *Player) Paused() bool {
	pb := p.activePlayback()
	return pb != nil && pb.Paused()
}

// Position is how far into the current track playback has got.
func (p *Player) Position() time.Duration {
	pb := p.activePlayback()
	if pb == nil {
		return 0
	}
	return pb.Position()
}

func (p *Player) activePlayback() stream.Playback {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playback
}

func (p *Player) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Player) loop(done chan struct{}) {
	defer close(done)
	p.log.Debug("playback loop started")

	for {
		t, gen, err := p.next()
		if err != nil {
			if p.exit(err) {
				return
			}
			continue
		}
		p.process(t, gen)
	}
}

// next blocks until a track is available, a stop is requested or the idle
// timeout elapses with nothing queued. gen is the stop generation the track
// was dequeued under.
func (p *Player) next() (Track, uint64, error) {
	var timeout <-chan time.Time
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		p.mu.Lock()
		if p.stopRequested {
			p.mu.Unlock()
			return Track{}, 0, errStopRequested
		}
		if len(p.queue) > 0 {
			t := p.queue[0]
			p.queue[0] = Track{}
			p.queue = p.queue[1:]
			p.current = &t
			p.status = StatusPlaying
			gen := p.stopGen
			p.mu.Unlock()
			return t, gen, nil
		}
		p.status = StatusWaiting
		p.mu.Unlock()

		if timer == nil {
			timer = time.NewTimer(p.idleTimeout)
			timeout = timer.C
		}

		select {
		case <-p.wake:
		case <-timeout:
			return Track{}, 0, errIdleTimeout
		case <-p.ctx.Done():
			return Track{}, 0, p.ctx.Err()
		}
	}
}

// exit tears the loop down. It reports false when the reason went stale
// before the lock was retaken: a Start cancelled the stop, or a track arrived
// as the idle timer fired.
func (p *Player) exit(reason error) bool {
	p.mu.Lock()
	switch {
	case errors.Is(reason, errStopRequested) && !p.stopRequested,
		errors.Is(reason, errIdleTimeout) && !p.stopRequested && len(p.queue) > 0:
		p.mu.Unlock()
		return false
	}
	p.running = false
	p.stopRequested = false
	p.status = StatusIdle
	p.current = nil
	sink := p.sink
	p.sink = nil
	p.mu.Unlock()

	metrics.ActivePlayers.Dec()
	if errors.Is(reason, errIdleTimeout) {
		metrics.IdleDisconnects.Inc()
		p.log.Info("idle timeout, leaving voice", "after", p.idleTimeout)
	} else {
		p.log.Debug("playback loop exiting", "reason", reason)
	}

	if sink != nil && sink.Connected() {
		ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
		defer cancel()
		if err := sink.Disconnect(ctx); err != nil {
			p.log.Warn("voice disconnect failed", "err", err)
		}
	}
	return true
}

// process plays one track; every failure stays contained to that track.
func (p *Player) process(t Track, gen uint64) {
	defer func() {
		if r := recover(); r != nil {
			p.mu.Lock()
			p.current = nil
			p.playback = nil
			p.mu.Unlock()
			p.fail(&t, &PlaybackError{Track: t, Err: fmt.Errorf("panic: %v", r)})
		}
	}()

	if err := p.play(t, gen); err != nil {
		p.fail(&t, err)
	}
}

func (p *Player) play(t Track, gen uint64) error {
	sink, err := p.ensureSink()
	if err != nil {
		p.clearCurrent()
		return err
	}

	p.mu.Lock()
	gain := p.volume
	stopped := p.stopGen != gen
	p.mu.Unlock()
	if stopped {
		p.clearCurrent()
		p.log.Debug("track dropped by stop before playback", "title", t.Title)
		return nil
	}

	raw, err := p.open(p.ctx, t.StreamURL)
	if err != nil {
		p.clearCurrent()
		return &PlaybackError{Track: t, Err: err}
	}

	pb, err := sink.Play(p.ctx, stream.NewVolumeAdapter(raw, gain))
	if err != nil {
		_ = raw.Close()
		p.clearCurrent()
		return &PlaybackError{Track: t, Err: err}
	}

	p.mu.Lock()
	p.playback = pb
	p.status = StatusAwaitingCompletion
	stopped = p.stopGen != gen
	p.mu.Unlock()
	if stopped {
		pb.Stop()
	}

	metrics.TracksStarted.Inc()
	p.log.Info("now playing", "title", t.Title, "volume", gain)
	p.announce(t)

	select {
	case <-pb.Done():
	case <-p.ctx.Done():
		pb.Stop()
		<-pb.Done()
	}
	playErr := pb.Err()

	p.mu.Lock()
	p.playback = nil
	requeue := p.loopMode != LoopOff && p.stopGen == gen && p.ctx.Err() == nil
	if requeue {
		p.queue = append(p.queue, t)
	} else {
		p.current = nil
	}
	p.mu.Unlock()

	if playErr != nil {
		return &PlaybackError{Track: t, Err: playErr}
	}
	return nil
}

func (p *Player) ensureSink() (stream.Sink, error) {
	p.mu.Lock()
	sink := p.sink
	channelID := p.channelID
	p.mu.Unlock()

	if sink != nil && sink.Connected() {
		return sink, nil
	}
	if channelID == "" {
		return nil, &VoiceConnectError{Err: ErrNotConnected}
	}
	sink, _, err := p.dial(p.ctx, channelID)
	return sink, err
}

func (p *Player) clearCurrent() {
	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()
}

func (p *Player) announce(t Track) {
	if p.notify == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.log.Warn("now-playing notification panicked", "panic", r)
		}
	}()
	p.notify.NowPlaying(p.guildID.String(), t)
}

func (p *Player) fail(t *Track, err error) {
	metrics.PlaybackErrors.Inc()
	p.log.Warn("track failed", "title", t.Title, "err", err)
	if p.notify == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.log.Warn("failure notification panicked", "panic", r)
		}
	}()
	p.notify.PlaybackFailed(p.guildID.String(), t, err)
}
