package stream

import (
	"encoding/binary"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceSource struct {
	frames [][]byte
	closed bool
}

func (s *sliceSource) ReadFrame() ([]byte, error) {
	if len(s.frames) == 0 {
		return nil, io.EOF
	}
	f := s.frames[0]
	s.frames = s.frames[1:]
	return f, nil
}

func (s *sliceSource) Close() error {
	s.closed = true
	return nil
}

func pcmOf(samples ...int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(v))
	}
	return b
}

func samplesOf(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

func TestScalePCM(t *testing.T) {
	tests := []struct {
		name string
		in   []int16
		gain float64
		want []int16
	}{
		{name: "unity", in: []int16{100, -100}, gain: 1, want: []int16{100, -100}},
		{name: "half", in: []int16{1000, -1000, 3}, gain: 0.5, want: []int16{500, -500, 2}},
		{name: "mute", in: []int16{1234, -4321}, gain: 0, want: []int16{0, 0}},
		{name: "saturates high", in: []int16{30000}, gain: 2, want: []int16{math.MaxInt16}},
		{name: "saturates low", in: []int16{-30000}, gain: 2, want: []int16{math.MinInt16}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := pcmOf(tt.in...)
			ScalePCM(buf, tt.gain)
			assert.Equal(t, tt.want, samplesOf(buf))
		})
	}
}

func TestVolumeAdapterCapturesGain(t *testing.T) {
	src := &sliceSource{frames: [][]byte{pcmOf(1000), pcmOf(2000)}}
	gain := 0.6
	va := NewVolumeAdapter(src, gain)
	gain = 2.0 // later changes must not affect the adapter

	f, err := va.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, []int16{600}, samplesOf(f))
	assert.InDelta(t, 0.6, va.Gain(), 1e-9)

	f, err = va.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, []int16{1200}, samplesOf(f))

	_, err = va.ReadFrame()
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, va.Close())
	assert.True(t, src.closed)
}

func TestVolumeAdapterNegativeGain(t *testing.T) {
	va := NewVolumeAdapter(&sliceSource{}, -1)
	assert.Zero(t, va.Gain())
}

func TestAudioURL(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want string
	}{
		{
			name: "requested formats first",
			info: Info{RequestedFormats: []string{"", "https://a"}, URL: "https://b", Formats: []string{"https://c"}},
			want: "https://a",
		},
		{
			name: "top-level url",
			info: Info{URL: "https://b", Formats: []string{"https://c"}},
			want: "https://b",
		},
		{
			name: "formats fallback",
			info: Info{URL: "rtmp://x", Formats: []string{"ftp://x", "https://c"}},
			want: "https://c",
		},
		{
			name: "nothing playable",
			info: Info{WebpageURL: "https://page"},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AudioURL(&tt.info))
		})
	}
}
