package audio

import "math"

// WaveformPoints is the default number of peaks for the seek bar.
const WaveformPoints = 1000

// waveformScale lifts quiet material so the bar is readable.
const waveformScale = 1.5

// Waveform reduces the first channel to points block peaks (absolute max per
// block, scaled by 1.5). Trailing samples that do not fill a block are
// ignored.
func Waveform(b *Buffer, points int) []float64 {
	if b == nil || points <= 0 {
		return nil
	}
	samples := b.Samples()
	block := len(samples) / points
	out := make([]float64, points)
	if block == 0 {
		return out
	}
	for i := range out {
		peak := 0.0
		for _, s := range samples[i*block : (i+1)*block] {
			peak = math.Max(peak, math.Abs(s[0]))
		}
		out[i] = peak * waveformScale
	}
	return out
}
