package stream

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeWAV writes a mono s16le WAV holding n samples of a constant level.
func writeWAV(t *testing.T, rate, n int, level int16) string {
	t.Helper()
	var data bytes.Buffer
	for i := 0; i < n; i++ {
		_ = binary.Write(&data, binary.LittleEndian, level)
	}

	var b bytes.Buffer
	b.WriteString("RIFF")
	_ = binary.Write(&b, binary.LittleEndian, uint32(36+data.Len()))
	b.WriteString("WAVEfmt ")
	_ = binary.Write(&b, binary.LittleEndian, uint32(16))
	_ = binary.Write(&b, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&b, binary.LittleEndian, uint16(1)) // mono
	_ = binary.Write(&b, binary.LittleEndian, uint32(rate))
	_ = binary.Write(&b, binary.LittleEndian, uint32(rate*2))
	_ = binary.Write(&b, binary.LittleEndian, uint16(2))
	_ = binary.Write(&b, binary.LittleEndian, uint16(16))
	b.WriteString("data")
	_ = binary.Write(&b, binary.LittleEndian, uint32(data.Len()))
	b.Write(data.Bytes())

	path := filepath.Join(t.TempDir(), "tone.wav")
	require.NoError(t, os.WriteFile(path, b.Bytes(), 0o644))
	return path
}

func TestDecoderKeepsResamplerTail(t *testing.T) {
	// 882 samples at 44.1kHz resample to exactly one 20ms frame at 48kHz
	path := writeWAV(t, 44100, 882, 8000)

	src, err := OpenPCM(context.Background(), path)
	require.NoError(t, err)
	defer src.Close()

	var pcm []byte
	for {
		frame, err := src.ReadFrame()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		require.Len(t, frame, FrameBytes)
		pcm = append(pcm, frame...)
	}
	require.NotEmpty(t, pcm)

	lastAudible := -1
	for i := 0; i+1 < len(pcm); i += 2 * Channels {
		if int16(binary.LittleEndian.Uint16(pcm[i:])) != 0 {
			lastAudible = i / (2 * Channels)
		}
	}
	require.GreaterOrEqual(t, lastAudible, FrameSamples-5, "resampled tail was dropped")
}
