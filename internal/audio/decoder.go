package audio

import (
	"errors"
	"fmt"
	"io"

	"github.com/gopxl/beep/v2"
	"github.com/hajimehoshi/go-mp3"
)

// ErrDecode matches every DecodeError.
var ErrDecode = errors.New("audio decode failed")

// DecodeError reports bytes that are not decodable audio.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode audio: %v", e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

const resampleQuality = 4

// Decode reads an MP3 stream into a Buffer at the device sample rate.
// It blocks for the whole decode, so callers run it off the event loop.
func Decode(r io.Reader) (*Buffer, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}

	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("read frames: %w", err)}
	}
	if len(pcm) < 4 {
		return nil, &DecodeError{Err: errors.New("stream contains no samples")}
	}

	var s beep.Streamer = &pcmStreamer{data: pcm}
	if sr := beep.SampleRate(dec.SampleRate()); sr != Format.SampleRate {
		s = beep.Resample(resampleQuality, sr, Format.SampleRate, s)
	}

	buf := beep.NewBuffer(Format)
	buf.Append(s)
	if buf.Len() == 0 {
		return nil, &DecodeError{Err: errors.New("stream contains no samples")}
	}
	return &Buffer{buf: buf}, nil
}

// pcmStreamer reads go-mp3 output: interleaved int16 little-endian stereo.
type pcmStreamer struct {
	data []byte
	pos  int
}

func (p *pcmStreamer) Stream(samples [][2]float64) (int, bool) {
	const frame = 4
	n := 0
	for n < len(samples) && p.pos+frame <= len(p.data) {
		l := int16(p.data[p.pos]) | int16(p.data[p.pos+1])<<8
		r := int16(p.data[p.pos+2]) | int16(p.data[p.pos+3])<<8
		samples[n][0] = float64(l) / 32768
		samples[n][1] = float64(r) / 32768
		p.pos += frame
		n++
	}
	if n == 0 {
		return 0, false
	}
	return n, true
}

func (p *pcmStreamer) Err() error { return nil }
