package engine

import "github.com/satindergrewal/harmonia/internal/analysis"

// AppState is the session's coarse UI state.
type AppState string

const (
	AppIdle         AppState = "idle"
	AppAnalyzing    AppState = "analyzing"
	AppResultsShown AppState = "results_shown"
)

// TimingState is the shared record the render loop reads every frame.
// Only the loop goroutine touches it.
type TimingState struct {
	// Written by the playback controller.
	Playing           bool
	Duration          float64 // seconds, 0 when nothing is loaded
	PlaybackStartTime float64 // audio-clock seconds at which offset 0 would have played
	PausedAtOffset    float64
	CurrentTime       float64 // sampled for display only

	// Written by the session.
	Features *analysis.FeatureRecord
}

// Position is the authoritative playback position at audio-clock time now.
func (t *TimingState) Position(now float64) float64 {
	if !t.Playing {
		return t.PausedAtOffset
	}
	return clamp(now-t.PlaybackStartTime, 0, t.Duration)
}

// Progress is Position as a fraction of the duration, or 0 with nothing loaded.
func (t *TimingState) Progress(now float64) float64 {
	if t.Duration <= 0 {
		return 0
	}
	return t.Position(now) / t.Duration
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
