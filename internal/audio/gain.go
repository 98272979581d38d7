package audio

import "github.com/gopxl/beep/v2"

// Gain scales its input by a value that can be set at once or ramped
// linearly over a number of rendered samples.
type Gain struct {
	Streamer beep.Streamer

	value    float64
	from, to float64
	rampPos  int
	rampLen  int
}

// NewGain wraps s at unity gain.
func NewGain(s beep.Streamer) *Gain {
	return &Gain{Streamer: s, value: 1}
}

// Value is the gain applied to the next sample.
func (g *Gain) Value() float64 { return g.value }

// SetValue jumps to v and drops any ramp in progress.
func (g *Gain) SetValue(v float64) {
	g.value = v
	g.rampLen = 0
}

// LinearRampTo moves from the current value to v over the next n samples.
func (g *Gain) LinearRampTo(v float64, n int) {
	if n <= 0 {
		g.SetValue(v)
		return
	}
	g.from, g.to = g.value, v
	g.rampPos, g.rampLen = 0, n
}

// Ramping reports whether a ramp is still in progress.
func (g *Gain) Ramping() bool { return g.rampLen > 0 }

func (g *Gain) Stream(samples [][2]float64) (int, bool) {
	n, ok := g.Streamer.Stream(samples)
	for i := range samples[:n] {
		if g.rampLen > 0 {
			g.rampPos++
			g.value = g.from + (g.to-g.from)*float64(g.rampPos)/float64(g.rampLen)
			if g.rampPos >= g.rampLen {
				g.value = g.to
				g.rampLen = 0
			}
		}
		samples[i][0] *= g.value
		samples[i][1] *= g.value
	}
	return n, ok
}

func (g *Gain) Err() error { return g.Streamer.Err() }
