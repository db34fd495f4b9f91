package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/asticode/go-astiav"
	"github.com/sonroyaalmerol/musicroom/internal/utils"
)

// Decoder demuxes and decodes a media URL into s16le stereo 48k PCM frames.
type Decoder struct {
	fc          *astiav.FormatContext
	audioStream *astiav.Stream
	decCtx      *astiav.CodecContext
	swr         *astiav.SoftwareResampleContext
	srcFrame    *astiav.Frame
	dstFrame    *astiav.Frame
	// set once the resampler has seen input; only the run goroutine uses it
	converted bool

	cancel context.CancelFunc
	pr     *io.PipeReader
	pw     *io.PipeWriter
	r      *bufio.Reader
	done   chan struct{}

	closeOnce sync.Once
	eof       bool
}

// OpenPCM opens inputURL and starts decoding in the background. Reads block
// until the decoder has produced a full frame.
func OpenPCM(ctx context.Context, inputURL string) (Source, error) {
	fc := astiav.AllocFormatContext()
	if fc == nil {
		return nil, errors.New("alloc format context")
	}

	dict := astiav.NewDictionary()
	defer dict.Free()
	_ = dict.Set("reconnect", "1", 0)
	_ = dict.Set("reconnect_streamed", "1", 0)
	_ = dict.Set("reconnect_delay_max", "5", 0)
	_ = dict.Set("headers", utils.BuildFFmpegHeaders(nil), 0)

	if err := fc.OpenInput(inputURL, nil, dict); err != nil {
		fc.Free()
		return nil, fmt.Errorf("open input: %w", err)
	}

	if err := fc.FindStreamInfo(nil); err != nil {
		fc.CloseInput()
		fc.Free()
		return nil, fmt.Errorf("find stream info: %w", err)
	}

	st, codec, err := fc.FindBestStream(astiav.MediaTypeAudio, -1, -1)
	if err != nil || st == nil || codec == nil {
		fc.CloseInput()
		fc.Free()
		if err != nil {
			return nil, fmt.Errorf("find best audio stream: %w", err)
		}
		return nil, errors.New("no audio stream found")
	}

	decCtx := astiav.AllocCodecContext(codec)
	if decCtx == nil {
		fc.CloseInput()
		fc.Free()
		return nil, errors.New("alloc codec context")
	}
	if err := decCtx.FromCodecParameters(st.CodecParameters()); err != nil {
		decCtx.Free()
		fc.CloseInput()
		fc.Free()
		return nil, fmt.Errorf("codec from params: %w", err)
	}
	decCtx.SetTimeBase(st.TimeBase())

	if err := decCtx.Open(codec, nil); err != nil {
		decCtx.Free()
		fc.CloseInput()
		fc.Free()
		return nil, fmt.Errorf("open decoder: %w", err)
	}

	swr := astiav.AllocSoftwareResampleContext()
	srcFrame := astiav.AllocFrame()
	dstFrame := astiav.AllocFrame()
	if swr == nil || srcFrame == nil || dstFrame == nil {
		if swr != nil {
			swr.Free()
		}
		if srcFrame != nil {
			srcFrame.Free()
		}
		if dstFrame != nil {
			dstFrame.Free()
		}
		decCtx.Free()
		fc.CloseInput()
		fc.Free()
		return nil, errors.New("alloc resampler")
	}

	pr, pw := io.Pipe()
	runCtx, cancel := context.WithCancel(ctx)
	d := &Decoder{
		fc:          fc,
		audioStream: st,
		decCtx:      decCtx,
		swr:         swr,
		srcFrame:    srcFrame,
		dstFrame:    dstFrame,
		cancel:      cancel,
		pr:          pr,
		pw:          pw,
		r:           bufio.NewReaderSize(pr, 16*FrameBytes),
		done:        make(chan struct{}),
	}

	go d.run(runCtx)

	return d, nil
}

// ReadFrame returns exactly FrameBytes. A trailing partial frame is padded
// with silence.
func (d *Decoder) ReadFrame() ([]byte, error) {
	if d.eof {
		return nil, io.EOF
	}
	frame := make([]byte, FrameBytes)
	n, err := io.ReadFull(d.r, frame)
	switch {
	case err == nil:
		return frame, nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		clear(frame[n:])
		d.eof = true
		return frame, nil
	default:
		return nil, err
	}
}

// Close stops decoding. The decode goroutine owns the ffmpeg contexts and
// frees them once it notices; it may still be blocked on network I/O.
func (d *Decoder) Close() error {
	d.closeOnce.Do(func() {
		d.cancel()
		_ = d.pr.Close()
	})
	return nil
}

func (d *Decoder) run(ctx context.Context) {
	var runErr error
	defer func() {
		_ = d.pw.CloseWithError(runErr)
		d.srcFrame.Free()
		d.dstFrame.Free()
		d.swr.Free()
		d.decCtx.Free()
		d.fc.CloseInput()
		d.fc.Free()
		close(d.done)
	}()

	packet := astiav.AllocPacket()
	defer packet.Free()

	for {
		if err := ctx.Err(); err != nil {
			runErr = err
			return
		}

		packet.Unref()
		if err := d.fc.ReadFrame(packet); err != nil {
			if errors.Is(err, astiav.ErrEof) {
				_ = d.decCtx.SendPacket(nil)
				if runErr = d.drain(); runErr == nil {
					runErr = d.flushResampler()
				}
				return
			}
			if errors.Is(err, astiav.ErrEagain) {
				continue
			}
			runErr = fmt.Errorf("read frame: %w", err)
			return
		}

		if packet.StreamIndex() != d.audioStream.Index() {
			continue
		}

		if err := d.decCtx.SendPacket(packet); err != nil && !errors.Is(err, astiav.ErrEagain) {
			slog.Debug("decoder rejected packet", "err", err)
			continue
		}

		if err := d.drain(); err != nil {
			runErr = err
			return
		}
	}
}

// drain pulls every frame the decoder has ready and writes it as PCM.
func (d *Decoder) drain() error {
	for {
		d.srcFrame.Unref()
		if err := d.decCtx.ReceiveFrame(d.srcFrame); err != nil {
			if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
				return nil
			}
			return fmt.Errorf("receive frame: %w", err)
		}
		if err := d.writePCM(d.srcFrame); err != nil {
			return err
		}
	}
}

func (d *Decoder) writePCM(src *astiav.Frame) error {
	// room for upsampling plus whatever the resampler buffered
	capacity := src.NbSamples()*SampleRate/max(src.SampleRate(), 1) + 256
	d.converted = true
	return d.convert(src, capacity)
}

// flushResampler writes the samples the resampler still holds at end of input.
func (d *Decoder) flushResampler() error {
	if !d.converted {
		return nil
	}
	capacity := int(max(d.swr.Delay(SampleRate), 0)) + 256
	return d.convert(nil, capacity)
}

// convert resamples src, or flushes buffered samples when src is nil.
func (d *Decoder) convert(src *astiav.Frame, capacity int) error {
	d.dstFrame.Unref()
	d.dstFrame.SetNbSamples(capacity)
	d.dstFrame.SetChannelLayout(astiav.ChannelLayoutStereo)
	d.dstFrame.SetSampleRate(SampleRate)
	d.dstFrame.SetSampleFormat(astiav.SampleFormatS16)
	if err := d.dstFrame.AllocBuffer(0); err != nil {
		return fmt.Errorf("dst alloc buffer: %w", err)
	}

	if err := d.swr.ConvertFrame(src, d.dstFrame); err != nil {
		return fmt.Errorf("swr convert: %w", err)
	}
	if d.dstFrame.NbSamples() == 0 {
		return nil
	}

	b, err := d.dstFrame.Data().Bytes(1)
	if err != nil {
		return fmt.Errorf("dst bytes: %w", err)
	}
	_, err = d.pw.Write(b)
	return err
}
