package audio

import (
	"time"

	"github.com/gopxl/beep/v2"
)

const (
	SampleRate    = 48000
	Channels      = 2
	BitDepth      = 16
	FrameDuration = 20 * time.Millisecond
	FrameSize     = 960                  // samples per channel per 20ms frame
	FrameSamples  = FrameSize * Channels // total interleaved samples per frame
	FrameBytes    = FrameSamples * 2     // bytes per frame (int16 = 2 bytes)
)

// Format is the device format. Every decoded buffer is resampled to it.
var Format = beep.Format{
	SampleRate:  SampleRate,
	NumChannels: Channels,
	Precision:   BitDepth / 8,
}

// Buffer is decoded PCM held in memory at the device rate.
type Buffer struct {
	buf *beep.Buffer
}

// NewBuffer wraps already-decoded stereo samples.
func NewBuffer(samples [][2]float64) *Buffer {
	b := beep.NewBuffer(Format)
	b.Append(&sliceStreamer{samples: samples})
	return &Buffer{buf: b}
}

// Len is the length in sample frames.
func (b *Buffer) Len() int {
	return b.buf.Len()
}

// Duration is the length in seconds.
func (b *Buffer) Duration() float64 {
	return float64(b.buf.Len()) / SampleRate
}

// Samples copies out the whole buffer.
func (b *Buffer) Samples() [][2]float64 {
	out := make([][2]float64, b.buf.Len())
	s := b.buf.Streamer(0, b.buf.Len())
	for n := 0; n < len(out); {
		m, ok := s.Stream(out[n:])
		n += m
		if !ok {
			break
		}
	}
	return out
}

type sliceStreamer struct {
	samples [][2]float64
	pos     int
}

func (s *sliceStreamer) Stream(samples [][2]float64) (int, bool) {
	if s.pos >= len(s.samples) {
		return 0, false
	}
	n := copy(samples, s.samples[s.pos:])
	s.pos += n
	return n, true
}

func (s *sliceStreamer) Err() error { return nil }
