package stream

import (
	"encoding/binary"
	"math"
)

// VolumeAdapter scales every sample of the wrapped source by a gain fixed
// at construction. Later volume changes need a new adapter.
type VolumeAdapter struct {
	src  Source
	gain float64
}

func NewVolumeAdapter(src Source, gain float64) *VolumeAdapter {
	if gain < 0 {
		gain = 0
	}
	return &VolumeAdapter{src: src, gain: gain}
}

func (v *VolumeAdapter) Gain() float64 { return v.gain }

func (v *VolumeAdapter) ReadFrame() ([]byte, error) {
	frame, err := v.src.ReadFrame()
	if len(frame) > 0 && v.gain != 1 {
		ScalePCM(frame, v.gain)
	}
	return frame, err
}

func (v *VolumeAdapter) Close() error { return v.src.Close() }

// ScalePCM multiplies s16le samples in place, saturating at the int16 range.
func ScalePCM(pcm []byte, gain float64) {
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(binary.LittleEndian.Uint16(pcm[i:]))
		scaled := math.Round(float64(s) * gain)
		switch {
		case scaled > math.MaxInt16:
			scaled = math.MaxInt16
		case scaled < math.MinInt16:
			scaled = math.MinInt16
		}
		binary.LittleEndian.PutUint16(pcm[i:], uint16(int16(scaled)))
	}
}
