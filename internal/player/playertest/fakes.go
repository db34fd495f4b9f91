// Package playertest provides in-memory voice and extraction fakes for
// exercising players without Discord or ffmpeg.
package playertest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sonroyaalmerol/musicroom/internal/player"
	"github.com/sonroyaalmerol/musicroom/internal/stream"
)

// FakePlayback finishes when Finish or Stop is called.
type FakePlayback struct {
	mu      sync.Mutex
	done    chan struct{}
	err     error
	paused  bool
	stopped bool
	ended   bool
	src     stream.Source
	started time.Time
}

func newPlayback(src stream.Source) *FakePlayback {
	return &FakePlayback{done: make(chan struct{}), src: src, started: time.Now()}
}

// Finish ends playback with err. Later calls are ignored.
func (p *FakePlayback) Finish(err error) {
	p.mu.Lock()
	if p.ended {
		p.mu.Unlock()
		return
	}
	p.ended = true
	p.err = err
	p.paused = false
	p.mu.Unlock()
	_ = p.src.Close()
	close(p.done)
}

func (p *FakePlayback) Done() <-chan struct{} { return p.done }

func (p *FakePlayback) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *FakePlayback) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.Finish(nil)
}

func (p *FakePlayback) Stopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

func (p *FakePlayback) Pause() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ended || p.paused {
		return false
	}
	p.paused = true
	return true
}

func (p *FakePlayback) Resume() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ended || !p.paused {
		return false
	}
	p.paused = false
	return true
}

func (p *FakePlayback) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *FakePlayback) Position() time.Duration { return time.Since(p.started) }

// FakeSink records plays and disconnects. With AutoFinish set, each playback
// ends on its own after that long; otherwise the test drives it.
type FakeSink struct {
	AutoFinish time.Duration
	PlayErr    error

	mu             sync.Mutex
	channelID      string
	connected      bool
	disconnects    int
	disconnectedAt time.Time
	playbacks      []*FakePlayback
	gains          []float64
	plays          chan *FakePlayback
}

func NewFakeSink(channelID string, autoFinish time.Duration) *FakeSink {
	return &FakeSink{
		AutoFinish: autoFinish,
		channelID:  channelID,
		connected:  true,
		plays:      make(chan *FakePlayback, 256),
	}
}

func (s *FakeSink) ChannelID() string { return s.channelID }

func (s *FakeSink) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *FakeSink) Play(_ context.Context, src stream.Source) (stream.Playback, error) {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return nil, stream.ErrNotConnected
	}
	if s.PlayErr != nil {
		err := s.PlayErr
		s.mu.Unlock()
		return nil, err
	}
	pb := newPlayback(src)
	s.playbacks = append(s.playbacks, pb)
	if va, ok := src.(*stream.VolumeAdapter); ok {
		s.gains = append(s.gains, va.Gain())
	}
	auto := s.AutoFinish
	s.mu.Unlock()

	if auto > 0 {
		time.AfterFunc(auto, func() { pb.Finish(nil) })
	}
	select {
	case s.plays <- pb:
	default:
	}
	return pb, nil
}

func (s *FakeSink) Disconnect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		s.disconnectedAt = time.Now()
	}
	s.connected = false
	s.disconnects++
	return nil
}

// Drop simulates Discord closing the voice connection underneath the bot.
func (s *FakeSink) Drop() {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
}

// Plays delivers each playback as it starts.
func (s *FakeSink) Plays() <-chan *FakePlayback { return s.plays }

// NextPlay waits for the next playback to start.
func (s *FakeSink) NextPlay(timeout time.Duration) (*FakePlayback, error) {
	select {
	case pb := <-s.plays:
		return pb, nil
	case <-time.After(timeout):
		return nil, errors.New("no playback started")
	}
}

func (s *FakeSink) Gains() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.gains...)
}

func (s *FakeSink) Disconnects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnects
}

func (s *FakeSink) DisconnectedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnectedAt
}

// FakeDialer hands out a new FakeSink per join.
type FakeDialer struct {
	AutoFinish time.Duration

	mu    sync.Mutex
	err   error
	sinks []*FakeSink
	hold  *dialHold
}

type dialHold struct {
	entered chan struct{}
	release chan struct{}
}

// Hold makes the next Join block until release is called. entered is closed
// once that Join is waiting.
func (d *FakeDialer) Hold() (entered <-chan struct{}, release func()) {
	h := &dialHold{entered: make(chan struct{}), release: make(chan struct{})}
	d.mu.Lock()
	d.hold = h
	d.mu.Unlock()
	var once sync.Once
	return h.entered, func() { once.Do(func() { close(h.release) }) }
}

func (d *FakeDialer) Join(ctx context.Context, _, channelID string) (stream.Sink, error) {
	d.mu.Lock()
	h := d.hold
	d.hold = nil
	d.mu.Unlock()
	if h != nil {
		close(h.entered)
		select {
		case <-h.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	s := NewFakeSink(channelID, d.AutoFinish)
	d.sinks = append(d.sinks, s)
	return s, nil
}

func (d *FakeDialer) SetErr(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

func (d *FakeDialer) Joins() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sinks)
}

// Last returns the most recently dialed sink, or nil.
func (d *FakeDialer) Last() *FakeSink {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sinks) == 0 {
		return nil
	}
	return d.sinks[len(d.sinks)-1]
}

type silentSource struct{ url string }

func (s *silentSource) ReadFrame() ([]byte, error) { return nil, io.EOF }
func (s *silentSource) Close() error               { return nil }

// FakeOpener records opened stream URLs. URLs registered with Fail return an
// error and those registered with Panic panic.
type FakeOpener struct {
	mu     sync.Mutex
	opened []string
	fail   map[string]error
	panics map[string]bool
}

func (o *FakeOpener) Fail(url string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail == nil {
		o.fail = make(map[string]error)
	}
	o.fail[url] = err
}

func (o *FakeOpener) Panic(url string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.panics == nil {
		o.panics = make(map[string]bool)
	}
	o.panics[url] = true
}

func (o *FakeOpener) Open(_ context.Context, url string) (stream.Source, error) {
	o.mu.Lock()
	o.opened = append(o.opened, url)
	err := o.fail[url]
	boom := o.panics[url]
	o.mu.Unlock()

	if boom {
		panic(fmt.Sprintf("decoder exploded on %s", url))
	}
	if err != nil {
		return nil, err
	}
	return &silentSource{url: url}, nil
}

func (o *FakeOpener) Opened() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.opened...)
}

// FakeExtractor answers from a fixed table keyed by extraction target.
type FakeExtractor struct {
	mu      sync.Mutex
	results map[string]*stream.Info
	targets []string
}

func NewFakeExtractor() *FakeExtractor {
	return &FakeExtractor{results: make(map[string]*stream.Info)}
}

func (e *FakeExtractor) Add(target string, info *stream.Info) {
	e.mu.Lock()
	e.results[target] = info
	e.mu.Unlock()
}

func (e *FakeExtractor) Extract(_ context.Context, target string) (*stream.Info, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.targets = append(e.targets, target)
	info, ok := e.results[target]
	if !ok {
		return nil, stream.ErrNoEntries
	}
	cp := *info
	return &cp, nil
}

func (e *FakeExtractor) Targets() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.targets...)
}

type Failure struct {
	Track *player.Track
	Err   error
}

// RecordingNotifier keeps every notification it receives.
type RecordingNotifier struct {
	mu       sync.Mutex
	started  []player.Track
	failures []Failure
}

func (n *RecordingNotifier) NowPlaying(_ string, t player.Track) {
	n.mu.Lock()
	n.started = append(n.started, t)
	n.mu.Unlock()
}

func (n *RecordingNotifier) PlaybackFailed(_ string, t *player.Track, err error) {
	n.mu.Lock()
	n.failures = append(n.failures, Failure{Track: t, Err: err})
	n.mu.Unlock()
}

func (n *RecordingNotifier) Started() []player.Track {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]player.Track(nil), n.started...)
}

func (n *RecordingNotifier) Failures() []Failure {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Failure(nil), n.failures...)
}
