package stream

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/asticode/go-astiav"
)

// Encoder turns 20ms PCM frames into Opus packets via libopus.
type Encoder struct {
	cc     *astiav.CodecContext
	frame  *astiav.Frame
	packet *astiav.Packet
	pts    int64
}

// NewEncoder creates a 48k stereo libopus encoder at ~128kbps.
func NewEncoder() (*Encoder, error) {
	codec := astiav.FindEncoderByName("libopus")
	if codec == nil {
		return nil, errors.New("libopus encoder not found (check ffmpeg installation)")
	}

	cc := astiav.AllocCodecContext(codec)
	if cc == nil {
		return nil, errors.New("failed to allocate codec context for libopus")
	}
	cc.SetSampleRate(SampleRate)
	cc.SetChannelLayout(astiav.ChannelLayoutStereo)
	cc.SetSampleFormat(astiav.SampleFormatS16)
	cc.SetBitRate(128_000)
	cc.SetTimeBase(astiav.NewRational(1, SampleRate))

	opts := astiav.NewDictionary()
	defer opts.Free()
	_ = opts.Set("frame_duration", "20", 0)
	_ = opts.Set("application", "audio", 0)

	if err := cc.Open(codec, opts); err != nil {
		cc.Free()
		return nil, fmt.Errorf("open opus encoder: %w", err)
	}

	frame := astiav.AllocFrame()
	if frame == nil {
		cc.Free()
		return nil, errors.New("failed to allocate audio frame for encoder")
	}
	frame.SetSampleRate(SampleRate)
	frame.SetChannelLayout(astiav.ChannelLayoutStereo)
	frame.SetSampleFormat(astiav.SampleFormatS16)
	frame.SetNbSamples(FrameSamples)
	if err := frame.AllocBuffer(0); err != nil {
		frame.Free()
		cc.Free()
		return nil, fmt.Errorf("failed to allocate frame buffer: %w", err)
	}

	pkt := astiav.AllocPacket()
	if pkt == nil {
		frame.Free()
		cc.Free()
		return nil, errors.New("failed to allocate packet for encoder")
	}

	slog.Debug("opus encoder ready", "sampleRate", cc.SampleRate(), "bitRate", cc.BitRate())
	return &Encoder{cc: cc, frame: frame, packet: pkt}, nil
}

func (e *Encoder) Close() {
	e.packet.Free()
	e.frame.Free()
	e.cc.Free()
}

// Encode consumes one FrameBytes PCM frame and returns the packets the
// encoder emitted for it, usually exactly one.
func (e *Encoder) Encode(pcm []byte) ([][]byte, error) {
	if len(pcm) != FrameBytes {
		return nil, fmt.Errorf("invalid PCM frame size: expected %d bytes, got %d", FrameBytes, len(pcm))
	}
	if err := e.frame.MakeWritable(); err != nil {
		return nil, fmt.Errorf("frame not writable: %w", err)
	}
	if err := e.frame.Data().SetBytes(pcm, 0); err != nil {
		return nil, fmt.Errorf("set frame bytes: %w", err)
	}
	e.frame.SetPts(e.pts)
	e.pts += FrameSamples

	if err := e.cc.SendFrame(e.frame); err != nil {
		return nil, fmt.Errorf("send frame to encoder: %w", err)
	}
	return e.receive()
}

// Flush drains the packets still buffered in the encoder.
func (e *Encoder) Flush() ([][]byte, error) {
	if err := e.cc.SendFrame(nil); err != nil && !errors.Is(err, astiav.ErrEof) {
		return nil, fmt.Errorf("send flush frame: %w", err)
	}
	return e.receive()
}

func (e *Encoder) receive() ([][]byte, error) {
	var out [][]byte
	for {
		e.packet.Unref()
		if err := e.cc.ReceivePacket(e.packet); err != nil {
			if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
				return out, nil
			}
			return out, fmt.Errorf("receive opus packet: %w", err)
		}
		data := e.packet.Data()
		pkt := make([]byte, len(data))
		copy(pkt, data)
		out = append(out, pkt)
	}
}
