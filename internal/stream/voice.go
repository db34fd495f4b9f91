package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
)

const (
	voiceReadyTimeout = 5 * time.Second
	opusSendTimeout   = 200 * time.Millisecond
	// consecutive dropped packets before the session gives up
	maxSendStalls = 50
)

var errSendStalled = errors.New("voice send stalled")

// VoiceDialer joins voice channels through a discordgo session.
type VoiceDialer struct {
	s *discordgo.Session
}

func NewVoiceDialer(s *discordgo.Session) *VoiceDialer {
	return &VoiceDialer{s: s}
}

func (d *VoiceDialer) Join(ctx context.Context, guildID, channelID string) (Sink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vc, err := d.s.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, err
	}
	// Kill() closes these; make sure they exist
	if vc.OpusSend == nil {
		vc.OpusSend = make(chan []byte, 2)
	}
	if vc.OpusRecv == nil {
		vc.OpusRecv = make(chan *discordgo.Packet, 2)
	}
	return &VoiceSink{vc: vc, guildID: guildID, channelID: channelID}, nil
}

// VoiceSink plays one Source at a time on a discordgo voice connection.
type VoiceSink struct {
	vc        *discordgo.VoiceConnection
	guildID   string
	channelID string

	mu  sync.Mutex
	cur *voiceSession
}

func (v *VoiceSink) ChannelID() string { return v.channelID }

func (v *VoiceSink) Connected() bool {
	if v.vc == nil {
		return false
	}
	v.vc.RLock()
	defer v.vc.RUnlock()
	return v.vc.Ready
}

func (v *VoiceSink) Play(ctx context.Context, src Source) (Playback, error) {
	if !v.Connected() {
		return nil, ErrNotConnected
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cur != nil {
		return nil, ErrSinkBusy
	}

	sctx, cancel := context.WithCancel(ctx)
	sess := &voiceSession{
		id:     uuid.NewString(),
		sink:   v,
		src:    src,
		ctx:    sctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	v.cur = sess
	go sess.run()
	return sess, nil
}

func (v *VoiceSink) release(sess *voiceSession) {
	v.mu.Lock()
	if v.cur == sess {
		v.cur = nil
	}
	v.mu.Unlock()
}

// Disconnect halts the active session and leaves the channel.
func (v *VoiceSink) Disconnect(ctx context.Context) error {
	v.mu.Lock()
	sess := v.cur
	v.mu.Unlock()
	if sess != nil {
		sess.Stop()
		select {
		case <-sess.done:
		case <-ctx.Done():
		}
	}

	errCh := make(chan error, 1)
	go func() { errCh <- v.safeDisconnect() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (v *VoiceSink) safeDisconnect() (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("voice disconnect panic recovered", "panic", r, "guildID", v.guildID)
			err = fmt.Errorf("voice disconnect panic: %v", r)
		}
	}()
	_ = v.vc.Speaking(false)
	return v.vc.Disconnect()
}

type voiceSession struct {
	id     string
	sink   *VoiceSink
	src    Source
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	frames atomic.Int64

	mu       sync.Mutex
	err      error
	resumeCh chan struct{} // non-nil while paused
}

func (s *voiceSession) Done() <-chan struct{} { return s.done }

func (s *voiceSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *voiceSession) Stop() { s.cancel() }

func (s *voiceSession) Pause() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resumeCh != nil {
		return false
	}
	s.resumeCh = make(chan struct{})
	return true
}

func (s *voiceSession) Resume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resumeCh == nil {
		return false
	}
	close(s.resumeCh)
	s.resumeCh = nil
	return true
}

func (s *voiceSession) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumeCh != nil
}

func (s *voiceSession) Position() time.Duration {
	return time.Duration(s.frames.Load()) * FrameDuration
}

func (s *voiceSession) setErr(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

func (s *voiceSession) pauseWait() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumeCh
}

func (s *voiceSession) run() {
	vc := s.sink.vc
	log := slog.With("guildID", s.sink.guildID, "session", s.id)

	defer func() {
		_ = s.src.Close()
		_ = vc.Speaking(false)
		s.cancel()
		s.sink.release(s)
		close(s.done)
	}()

	enc, err := NewEncoder()
	if err != nil {
		s.setErr(err)
		return
	}
	defer enc.Close()

	deadline := time.Now().Add(voiceReadyTimeout)
	for !s.sink.Connected() {
		if time.Now().After(deadline) {
			s.setErr(ErrNotConnected)
			return
		}
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(100 * time.Millisecond):
		}
	}

	_ = vc.Speaking(true)
	log.Debug("voice session started")

	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	stalls := 0
	send := func(pkt []byte) bool {
		select {
		case <-s.ctx.Done():
			return false
		case <-ticker.C:
		}
		select {
		case vc.OpusSend <- pkt:
			stalls = 0
		case <-time.After(opusSendTimeout):
			stalls++
			if stalls >= maxSendStalls {
				s.setErr(errSendStalled)
				return false
			}
		case <-s.ctx.Done():
			return false
		}
		return true
	}

	for {
		if wait := s.pauseWait(); wait != nil {
			_ = vc.Speaking(false)
			select {
			case <-wait:
				_ = vc.Speaking(true)
			case <-s.ctx.Done():
				return
			}
		}

		pcm, err := s.src.ReadFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				if s.ctx.Err() == nil {
					s.setErr(fmt.Errorf("read pcm: %w", err))
				}
				return
			}
			tail, _ := enc.Flush()
			for _, pkt := range tail {
				if !send(pkt) {
					return
				}
			}
			log.Debug("voice session finished", "position", s.Position())
			return
		}

		pkts, err := enc.Encode(pcm)
		if err != nil {
			s.setErr(err)
			return
		}
		for _, pkt := range pkts {
			if !send(pkt) {
				return
			}
		}
		s.frames.Add(1)
	}
}
